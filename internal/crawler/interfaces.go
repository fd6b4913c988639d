package crawler

import (
	"context"
	"time"
)

// Source is one crawl target. Start picks the first state; Step advances it.
//
// saved is the last checkpoint, or nil when none exists. A Source with an
// explicitly configured start ignores saved.
type Source interface {
	Name() string
	Start(ctx context.Context, saved *State) (State, error)
	Step(ctx context.Context, state State) (StepResult, error)
}

// CheckpointStore persists State per source between runs.
type CheckpointStore interface {
	Load(ctx context.Context, source string) (State, bool, error)
	Save(ctx context.Context, source string, state State) error
	Clear(ctx context.Context, source string) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// RetryPolicy decides whether and when a failed fetch is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Hasher computes digests for archive keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
