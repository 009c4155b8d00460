package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Reason classifies a fetch failure
type Reason string

const (
	ReasonNetwork    Reason = "network"
	ReasonTimeout    Reason = "timeout"
	ReasonHTTPStatus Reason = "http-status"
	ReasonRobots     Reason = "robots"
)

// Error is returned by every PageFetcher on failure
type Error struct {
	URL        string
	Reason     Reason
	StatusCode int // Set for ReasonHTTPStatus
	Cause      error

	// permanent marks network-class failures that cannot succeed on retry,
	// such as a URL that does not form a valid request
	permanent bool
}

func (e *Error) Error() string {
	switch {
	case e.Reason == ReasonHTTPStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	case e.Cause != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Reason, e.Cause)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the same request may succeed later
func (e *Error) Retryable() bool {
	switch e.Reason {
	case ReasonTimeout:
		return true
	case ReasonNetwork:
		return !e.permanent && !errors.Is(e.Cause, context.Canceled)
	case ReasonHTTPStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	default:
		return false
	}
}

// ReasonOf returns the reason of a fetch error, or "" when err is not one
func ReasonOf(err error) Reason {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ""
}

// classify maps a transport error to a fetch error
func classify(rawURL string, err error) *Error {
	reason := ReasonNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		reason = ReasonTimeout
	}
	return &Error{URL: rawURL, Reason: reason, Cause: err}
}
