package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrTransientFetch marks a fetch that may succeed later: network
	// failures and unexpected status codes.
	ErrTransientFetch = errors.New("transient fetch failure")
	// ErrRetryLimitExceeded ends a probing crawl after too many failures in a row.
	ErrRetryLimitExceeded = errors.New("retry limit exceeded")
	// ErrBootstrap means no starting cursor could be determined.
	ErrBootstrap = errors.New("cannot determine starting cursor")
)

// StatusError reports a non-success HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.StatusCode)
}

// Is makes StatusError match ErrTransientFetch.
func (e *StatusError) Is(target error) bool {
	return target == ErrTransientFetch
}
