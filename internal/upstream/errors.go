package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork matches every *NetworkError. Only these are retried.
	ErrNetwork = errors.New("upstream unreachable")

	// ErrInvalidPayload is returned when a record lacks a required key or is not valid JSON.
	ErrInvalidPayload = errors.New("invalid upstream payload")
)

// NetworkError is a transport failure or a non-2xx answer from upstream.
type NetworkError struct {
	Path       string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s answered %d: %v", e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s: %v", e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrNetwork) hold for any NetworkError.
func (*NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// IsNetwork reports whether err is, or wraps, a NetworkError.
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}

func invalidPayload(path, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidPayload, path, fmt.Sprintf(format, args...))
}
