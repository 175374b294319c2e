// Package integration provides integration tests for the supernova-sync schedule daemon.
// These tests run the daemon against a fake upstream and check the runs it schedules
// through its status API.
package integration
