package crawler

import (
	"errors"
	"fmt"
)

// ErrRendererClosed is returned by fetchers used after their session closed.
var ErrRendererClosed = errors.New("renderer closed")

// DiscoveryError reports a seed document that could not be parsed.
type DiscoveryError struct {
	Cause error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover links: %v", e.Cause)
}

func (e *DiscoveryError) Unwrap() error { return e.Cause }

// FetchError reports a network, timeout, policy, or render failure for one URL.
type FetchError struct {
	URL   DocumentURL
	Cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// ExtractionError reports an unexpected structural failure while applying
// field rules to a fetched page.
type ExtractionError struct {
	URL   DocumentURL
	Cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// FailureKind names the stage at which a URL failed, for logs and metrics.
func FailureKind(err error) string {
	var (
		fetchErr   *FetchError
		extractErr *ExtractionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &extractErr):
		return "extract"
	default:
		return "other"
	}
}
