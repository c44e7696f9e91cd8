package transport

import (
	"testing"

	"rrtracker/internal/transport/discord"
	"rrtracker/internal/transport/slack"
	"rrtracker/internal/transport/telegram"
)

func TestOpenTypes(t *testing.T) {
	t.Parallel()
	d, err := Open(Config{URL: "https://discord.test/api/webhooks/1/x"}, nil)
	if err != nil {
		t.Fatalf("Open(default): %v", err)
	}
	if _, ok := d.(*discord.Webhook); !ok {
		t.Fatalf("default type = %T, want *discord.Webhook", d)
	}
	s, err := Open(Config{Type: "Slack", Name: "ops", URL: "https://hooks.slack.test/x"}, nil)
	if err != nil {
		t.Fatalf("Open(slack): %v", err)
	}
	if _, ok := s.(*slack.Webhook); !ok || s.Name() != "ops" {
		t.Fatalf("slack = %T %q", s, s.Name())
	}
	tg, err := Open(Config{Type: "telegram", Token: "1:x", ChatID: 42}, nil)
	if err != nil {
		t.Fatalf("Open(telegram): %v", err)
	}
	if _, ok := tg.(*telegram.Chat); !ok {
		t.Fatalf("telegram = %T", tg)
	}
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Type: "email"}, nil); err == nil {
		t.Fatal("expected unknown type error")
	}
	if _, err := OpenAll([]Config{{URL: "https://a"}, {Type: "slack"}}, nil); err == nil {
		t.Fatal("expected error for slack without url")
	}
}
