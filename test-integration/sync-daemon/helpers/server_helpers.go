package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/onsi/gomega"

	"github.com/NovaUNL/Supernova-sub000/internal/api"
	"github.com/NovaUNL/Supernova-sub000/internal/app"
	"github.com/NovaUNL/Supernova-sub000/internal/config"
)

// DaemonTestHelper manages the schedule daemon lifecycle for testing
type DaemonTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	address    string
	httpClient *http.Client
	app        *app.SyncApp
}

// NewDaemonTestHelper creates a helper for the daemon configured by configPath,
// listening on a free local port
func NewDaemonTestHelper(ctx context.Context, configPath string) (*DaemonTestHelper, error) {
	address, err := freeAddress()
	if err != nil {
		return nil, err
	}
	return &DaemonTestHelper{
		ctx:        ctx,
		configPath: configPath,
		address:    address,
		baseURL:    "http://" + address,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

func freeAddress() (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to find a free port: %w", err)
	}
	defer func() {
		_ = listener.Close()
	}()
	return listener.Addr().String(), nil
}

// StartServer starts the daemon programmatically
func (d *DaemonTestHelper) StartServer() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(d.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	syncApp, err := app.NewSyncApp(d.ctx, app.WithConfig(cfg), app.WithAddress(d.address))
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	d.app = syncApp

	// Start the server in a goroutine (non-blocking)
	go func() {
		if err := syncApp.Start(); err != nil {
			// The test will fail when it tries to connect
			fmt.Fprintf(os.Stderr, "Daemon start failed: %v\n", err)
		}
	}()

	return nil
}

// StopServer gracefully stops the daemon
func (d *DaemonTestHelper) StopServer() error {
	if d.app != nil {
		return d.app.Stop(5 * time.Second)
	}
	return nil
}

// WaitForServerReady waits for the daemon to accept requests
func (d *DaemonTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := d.httpClient.Get(d.baseURL + "/health")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 100*time.Millisecond).Should(gomega.Succeed(), "Daemon should be ready")
}

// GetStatus fetches GET /status
func (d *DaemonTestHelper) GetStatus() (*api.StatusResponse, error) {
	resp, err := d.httpClient.Get(d.baseURL + "/status")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status returned %d", resp.StatusCode)
	}
	var body api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &body, nil
}

// Get makes a GET request to path
func (d *DaemonTestHelper) Get(path string) (*http.Response, error) {
	return d.httpClient.Get(d.baseURL + path)
}

// WriteConfigYAML writes a memory storage configuration with the given schedule and
// returns its path. The status files live under dir.
func WriteConfigYAML(dir, upstreamURL, fast, slow, full string) string {
	configContent := fmt.Sprintf(`upstream:
  url: %s
  timeout: 5s

storage: memory

status:
  type: file
  path: %s

sync:
  year: 2025
  period: 1
  schedule:
    fast: %s
    slow: %s
    full: %s
    failureBackoff: 1m
`, upstreamURL, filepath.Join(dir, "status"), fast, slow, full)

	configPath := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(configPath, []byte(configContent), 0600)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return configPath
}
