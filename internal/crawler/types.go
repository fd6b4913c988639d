package crawler

import (
	"net/http"
	"time"
)

// State is the progress of one source. It is passed and returned by value.
type State struct {
	Cursor       int `json:"cursor"`
	FailureInRow int `json:"failure_in_row"`
	Emitted      int `json:"emitted"`
}

// Stats counts what a step wrote.
type Stats struct {
	Merged  int
	Linked  int
	Skipped int
}

// Add returns the sum of two Stats.
func (s Stats) Add(o Stats) Stats {
	return Stats{Merged: s.Merged + o.Merged, Linked: s.Linked + o.Linked, Skipped: s.Skipped + o.Skipped}
}

// StepResult is the outcome of one Step.
type StepResult struct {
	Next  State
	Done  bool
	Stats Stats
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	Source  string
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	FetchedAt  time.Time
	ArchiveURI string
}

// ContentType returns the response Content-Type or a default.
func (r FetchResponse) ContentType() string {
	if ct := r.Headers.Get("Content-Type"); ct != "" {
		return ct
	}
	return "text/html"
}
