// Package upstreamtest serves canned upstream responses for tests.
package upstreamtest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Server answers GET requests from a map of path to JSON body. Unknown paths get 404.
type Server struct {
	URL string

	mu       sync.Mutex
	routes   map[string]string
	failures map[string]int
	hits     map[string]int
}

// NewServer starts a server that is closed when the test ends. Keep-alives are disabled.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		routes:   make(map[string]string),
		failures: make(map[string]int),
		hits:     make(map[string]int),
	}
	server := httptest.NewServer(s)
	server.Config.SetKeepAlivesEnabled(false)
	t.Cleanup(server.Close)
	s.URL = server.URL
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[r.URL.Path]++
	if s.failures[r.URL.Path] > 0 {
		s.failures[r.URL.Path]--
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	body, ok := s.routes[r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

// Serve sets the body returned for path.
func (s *Server) Serve(path, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[path] = body
}

// Fail makes the next times requests of path answer 503.
func (s *Server) Fail(path string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = times
}

// Hits returns how many requests path received.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}
