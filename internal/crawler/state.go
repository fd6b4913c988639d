package crawler

import "fmt"

// AdvanceProbe moves a monotonic-id cursor past the probed id. A success
// resets FailureInRow; a failure increments it and returns
// ErrRetryLimitExceeded once it reaches limit.
func AdvanceProbe(s State, ok bool, limit int) (State, error) {
	next := State{Cursor: s.Cursor + 1, Emitted: s.Emitted}
	if ok {
		next.Emitted++
		return next, nil
	}
	next.FailureInRow = s.FailureInRow + 1
	if limit > 0 && next.FailureInRow >= limit {
		return next, fmt.Errorf("%w: %d failures in a row at id %d", ErrRetryLimitExceeded, next.FailureInRow, next.Cursor)
	}
	return next, nil
}

// ProbeResumeCursor is the id a probing crawl restarts from: the first id of
// the failing run recorded in s.
func ProbeResumeCursor(s State) int {
	c := s.Cursor - s.FailureInRow
	if c < 0 {
		return 0
	}
	return c
}

// AdvanceOffset moves an offset cursor to the server-reported next position.
// A nil next position ends the crawl.
func AdvanceOffset(s State, next *int, emitted int) (State, bool) {
	out := State{Cursor: s.Cursor, Emitted: s.Emitted + emitted}
	if next == nil {
		return out, true
	}
	out.Cursor = *next
	return out, false
}

// AdvanceBounded moves a page-number cursor and ends the crawl once the
// cumulative emitted count reaches limit.
func AdvanceBounded(s State, emitted, limit int) (State, bool) {
	out := State{Cursor: s.Cursor + 1, Emitted: s.Emitted + emitted}
	return out, limit > 0 && out.Emitted >= limit
}
