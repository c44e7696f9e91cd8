package tracker

import (
	"errors"
	"fmt"

	"rrtracker/internal/entity"
)

var (
	ErrAlreadyStarted = errors.New("tracker: already started")
	ErrInvalidConfig  = errors.New("tracker: invalid config")
	// ErrSupervisorClosed is returned by Supervisor.Add once it is waiting or stopping.
	ErrSupervisorClosed = errors.New("tracker: supervisor closed")
)

// ConstructionError means the tracker never started: bad config, or the
// initial describe/fetch failed.
type ConstructionError struct {
	Kind string
	ID   int64
	Err  error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("tracker %s/%d: construction failed: %v", e.Kind, e.ID, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// AuthRenewalError terminates a tracker whose credential could not be renewed.
type AuthRenewalError struct {
	Tracker string
	Err     error
}

func (e *AuthRenewalError) Error() string {
	return fmt.Sprintf("tracker %s: credential renewal failed: %v", e.Tracker, e.Err)
}

func (e *AuthRenewalError) Unwrap() error { return e.Err }

// FetchError terminates a tracker whose entity could not be fetched.
type FetchError struct {
	Tracker string
	Reason  entity.FetchReason
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("tracker %s: fetch failed (%s): %v", e.Tracker, e.Reason, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
