package app

import (
	"strings"
	"time"

	"rrtracker/internal/config"
	"rrtracker/internal/storage"
)

const defaultBusyTimeout = time.Second

// mapStorageConfig turns the validated storage section into storage.Config.
// The boolean is false when the journal is disabled.
func mapStorageConfig(sc *config.StorageConfig) (storage.Config, bool, error) {
	if sc == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	out := storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path)}
	if driver == "sqlite" || driver == "sqlite3" {
		busy, err := config.ParseDuration("storage.busy_timeout", sc.BusyTimeout, defaultBusyTimeout)
		if err != nil {
			return storage.Config{}, false, err
		}
		out.BusyTimeout = busy
	}
	return out, true, nil
}
