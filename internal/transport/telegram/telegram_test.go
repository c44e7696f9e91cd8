package telegram

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"rrtracker/internal/notify"
)

func TestRenderEscapesHTML(t *testing.T) {
	t.Parallel()
	got := Render(notify.Message{
		Title:  "Gained visits!",
		Fields: []notify.Field{{Label: "Visits", Previous: "1,000", Current: "1,002", Delta: "+2"}},
		Footer: "Room: ^<Lobby>",
	})
	want := "<b>Gained visits!</b>\n\n<b>Visits</b>\n1,000 (+2)\nTotal: <code>1,002</code>\n\n<i>Room: ^&lt;Lobby&gt;</i>"
	if got != want {
		t.Fatalf("Render =\n%q\nwant\n%q", got, want)
	}
}

func TestRenderOmitsEmptyDelta(t *testing.T) {
	t.Parallel()
	got := Render(notify.Message{Title: "t", Fields: []notify.Field{{Label: "Visitors", Previous: "3", Current: "3"}}})
	if strings.Contains(got, "(") {
		t.Fatalf("unexpected delta annotation in %q", got)
	}
}

func TestNewValidates(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{ChatID: 1}, nil); err == nil {
		t.Fatal("expected error for missing token")
	}
	if _, err := New(Config{Token: "123:abc"}, nil); err == nil {
		t.Fatal("expected error for missing chat id")
	}
	c, err := New(Config{Token: "123:abc", ChatID: -100}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Name() != "telegram:-100" {
		t.Fatalf("Name = %q", c.Name())
	}
}

func TestBoundedClient(t *testing.T) {
	t.Parallel()
	if got := boundedClient(nil); got.Timeout != DefaultSendTimeout {
		t.Fatalf("nil client timeout = %v", got.Timeout)
	}
	shared := &http.Client{}
	got := boundedClient(shared)
	if got.Timeout != DefaultSendTimeout {
		t.Fatalf("timeout = %v, want %v", got.Timeout, DefaultSendTimeout)
	}
	if shared.Timeout != 0 {
		t.Fatal("caller's client was modified")
	}
	own := &http.Client{Timeout: time.Second}
	if boundedClient(own) != own {
		t.Fatal("client with a timeout should be used as is")
	}
}
