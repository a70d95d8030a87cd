// Package fetcher retrieves listing pages over HTTP using gocolly.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a failed fetch.
type Kind string

// Fetch failure kinds.
const (
	KindBlocked          Kind = "blocked"
	KindUnexpectedStatus Kind = "unexpected_status"
	KindTimeout          Kind = "timeout"
	KindNetwork          Kind = "network"
)

// FetchError reports why a page could not be retrieved.
type FetchError struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindBlocked:
		return fmt.Sprintf("fetch %s: access forbidden (403), client may be blocked", e.URL)
	case KindUnexpectedStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	case KindTimeout:
		return fmt.Sprintf("fetch %s: timeout: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from err, or "" when err is not a FetchError.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

func statusError(url string, code int) error {
	if code == http.StatusOK {
		return nil
	}
	if code == http.StatusForbidden {
		return &FetchError{Kind: KindBlocked, URL: url, StatusCode: code}
	}
	return &FetchError{Kind: KindUnexpectedStatus, URL: url, StatusCode: code}
}

func transportError(url string, err error) error {
	if isTimeout(err) {
		return &FetchError{Kind: KindTimeout, URL: url, Err: err}
	}
	return &FetchError{Kind: KindNetwork, URL: url, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
