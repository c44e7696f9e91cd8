package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// MaxEntries caps the sqlite journal. 0 means DefaultMaxEntries.
	MaxEntries int
}

const DefaultMaxEntries = 10000

// Entry is one journal line. Keep it compact and schema-stable.
type Entry struct {
	At          time.Time `json:"at"`
	Type        string    `json:"type"`
	Tracker     string    `json:"tracker,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Title       string    `json:"title,omitempty"`
	Status      int       `json:"status,omitempty"`
	OK          bool      `json:"ok"`
	Error       string    `json:"error,omitempty"`
	TookMS      int64     `json:"took_ms,omitempty"`
}
