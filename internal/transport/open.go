// Package transport builds notification destinations from configuration.
package transport

import (
	"fmt"
	"net/http"
	"strings"

	"rrtracker/internal/notify"
	"rrtracker/internal/transport/discord"
	"rrtracker/internal/transport/slack"
	"rrtracker/internal/transport/telegram"
)

// Destination types.
const (
	TypeDiscord  = "discord"
	TypeSlack    = "slack"
	TypeTelegram = "telegram"
)

// Config describes one destination. Type defaults to discord.
type Config struct {
	Type     string
	Name     string
	URL      string
	Token    string
	ChatID   int64
	ThreadID int
	APIURL   string
}

// Open builds the destination for cfg.
func Open(cfg Config, client *http.Client) (notify.Destination, error) {
	typ := strings.ToLower(strings.TrimSpace(cfg.Type))
	if typ == "" {
		typ = TypeDiscord
	}
	switch typ {
	case TypeDiscord:
		return discord.New(cfg.Name, cfg.URL, client)
	case TypeSlack:
		return slack.New(cfg.Name, cfg.URL, client)
	case TypeTelegram:
		return telegram.New(telegram.Config{
			Name:     cfg.Name,
			Token:    cfg.Token,
			ChatID:   cfg.ChatID,
			ThreadID: cfg.ThreadID,
			APIURL:   cfg.APIURL,
		}, client)
	default:
		return nil, fmt.Errorf("unknown destination type %q (supported: discord, slack, telegram)", cfg.Type)
	}
}

// OpenAll builds every destination, failing on the first invalid one.
func OpenAll(cfgs []Config, client *http.Client) ([]notify.Destination, error) {
	out := make([]notify.Destination, 0, len(cfgs))
	for i, c := range cfgs {
		d, err := Open(c, client)
		if err != nil {
			return nil, fmt.Errorf("destination %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}
