// Package common holds the JSON plumbing shared by the daemon's handlers.
package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ErrorBody is the JSON body of every non-2xx answer
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON encodes v before touching w, so an unencodable value still yields a clean 500.
func JSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode response", "type", fmt.Sprintf("%T", v), "error", err)
		code = http.StatusInternalServerError
		body = []byte(`{"error":"failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(body, '\n'))
}

// Error answers with code and an ErrorBody built from format
func Error(w http.ResponseWriter, code int, format string, args ...any) {
	JSON(w, code, ErrorBody{Error: fmt.Sprintf(format, args...)})
}

// PathParam returns the unescaped chi route parameter name. Blank values and values
// with whitespace are rejected.
func PathParam(r *http.Request, name string) (string, error) {
	v, err := url.PathUnescape(chi.URLParam(r, name))
	switch {
	case err != nil:
		return "", fmt.Errorf("%s is not a valid path segment", name)
	case strings.TrimSpace(v) == "":
		return "", fmt.Errorf("%s cannot be empty", name)
	case strings.ContainsAny(v, " \t\r\n"):
		return "", errors.New(name + " cannot contain whitespace")
	}
	return v, nil
}
