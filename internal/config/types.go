package config

import (
	"strings"
)

// Config is the on-disk configuration (JSON or YAML).
//
// Example (YAML):
//
//	logging: { level: info, console: true }
//	destinations:
//	  - { type: discord, url: "https://discord.com/api/webhooks/..." }
//	trackers:
//	  - { kind: account, username: self, interval: 3s }
//	  - { kind: room, name: "^RecCenter", interval: 10s }
//	  - { kind: room_stats, id: 1234, schedule: "*/5 * * * *" }
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	RecNet   RecNetConfig   `json:"recnet"`
	Delivery DeliveryConfig `json:"delivery"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Debug    DebugConfig    `json:"debug"`

	// Destinations apply to every tracker that lists none of its own.
	// If empty, a single Discord webhook from RR_WEBHOOK is used.
	Destinations []DestinationConfig `json:"destinations,omitempty"`
	Trackers     []TrackerConfig     `json:"trackers"`

	// UpdateFrequency is the legacy default interval in seconds.
	UpdateFrequency float64 `json:"update_frequency,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// RecNetConfig overrides upstream endpoints. Empty values use the public hosts.
type RecNetConfig struct {
	AuthURL     string `json:"auth_url,omitempty"`
	AccountsURL string `json:"accounts_url,omitempty"`
	ClubsURL    string `json:"clubs_url,omitempty"`
	RoomsURL    string `json:"rooms_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	// Timeout is a Go duration string. Default "3s".
	Timeout string `json:"timeout,omitempty"`
}

// DeliveryConfig controls notification dispatch.
type DeliveryConfig struct {
	// Timeout bounds one attempt to one destination. Default "3s".
	Timeout    string  `json:"timeout,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
}

// StorageConfig enables the delivery journal.
//
//	"storage": { "driver": "sqlite", "path": "./rrtracker.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// DebugConfig enables the local liveness/status/pprof listener.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default 127.0.0.1:6060
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

type DestinationConfig struct {
	Type string `json:"type,omitempty"` // discord (default) | slack | telegram
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"` // webhook URL (discord, slack)

	// telegram
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	APIURL   string `json:"api_url,omitempty"`
}

type TrackerConfig struct {
	Kind string `json:"kind"`

	// Exactly one way to pick the entity: ID, or Username (accounts; "self"
	// or empty = the logged-in account), or Name (rooms).
	ID       int64  `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`

	// Interval is a Go duration ("10s") or HH:MM. Default per kind.
	Interval string `json:"interval,omitempty"`
	// Schedule is a cron expression used instead of Interval.
	Schedule string `json:"schedule,omitempty"`

	Destinations []DestinationConfig `json:"destinations,omitempty"`
}

// Ref is the lookup key used when ID is not set.
func (t TrackerConfig) Ref() string {
	if s := strings.TrimSpace(t.Username); s != "" {
		return s
	}
	return strings.TrimSpace(t.Name)
}

// Default is used when no config file exists: one tracker on the logged-in
// account, posting to RR_WEBHOOK.
func Default() *Config {
	return &Config{
		Logging:  LoggingConfig{Level: "info", Console: true},
		Trackers: []TrackerConfig{{Kind: "account", Username: "self"}},
	}
}
