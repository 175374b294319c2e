package httpclient

import (
	"errors"
	"fmt"
)

// HTTPError is a response outside 2xx. Message is the status line or a short reason.
type HTTPError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.StatusCode, e.Message)
}

// NewHTTPError returns an *HTTPError as an error
func NewHTTPError(statusCode int, url, message string) error {
	return &HTTPError{StatusCode: statusCode, URL: url, Message: message}
}

// StatusCode is the status of the *HTTPError in err's chain, or 0 if there is none
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
