// Package helpers provides the fake upstream and daemon lifecycle used by the integration tests.
package helpers

import (
	"net/http"
	"net/http/httptest"
	"sync"
)

// FakeUpstream serves canned JSON by path and counts the requests it receives
type FakeUpstream struct {
	server *httptest.Server

	mu     sync.Mutex
	routes map[string]string
	hits   map[string]int
}

// NewFakeUpstream starts a fake upstream. Call Close when done.
func NewFakeUpstream() *FakeUpstream {
	f := &FakeUpstream{
		routes: make(map[string]string),
		hits:   make(map[string]int),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	f.server.Config.SetKeepAlivesEnabled(false)
	return f
}

func (f *FakeUpstream) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[r.URL.Path]++
	body, ok := f.routes[r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

// Serve sets the body returned for path
func (f *FakeUpstream) Serve(path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[path] = body
}

// ServeEmptyCollections answers every collection endpoint with an empty list
func (f *FakeUpstream) ServeEmptyCollections() {
	for _, path := range []string{"/departments/", "/buildings/", "/rooms/", "/courses/", "/students/", "/teachers/"} {
		f.Serve(path, `[]`)
	}
}

// Hits returns how many requests path received
func (f *FakeUpstream) Hits(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

// URL is the base URL of the fake upstream
func (f *FakeUpstream) URL() string {
	return f.server.URL
}

// Close shuts the fake upstream down
func (f *FakeUpstream) Close() {
	f.server.Close()
}
