package entity

import (
	"context"
	"errors"
)

// Fetch failure taxonomy. Upstream clients wrap one of these.
var (
	ErrNotFound     = errors.New("entity not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrTimeout      = errors.New("upstream timeout")
)

// FetchReason classifies a fetch error.
type FetchReason string

const (
	ReasonNotFound     FetchReason = "not_found"
	ReasonUnauthorized FetchReason = "unauthorized"
	ReasonTimeout      FetchReason = "timeout"
	ReasonUnknown      FetchReason = "unknown"
)

// Classify maps an error onto the fetch taxonomy.
func Classify(err error) FetchReason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return ReasonUnauthorized
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonUnknown
	}
}
