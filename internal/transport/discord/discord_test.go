package discord

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"rrtracker/internal/notify"
)

func sampleMessage() notify.Message {
	return notify.Message{
		Title: "Gained visits!",
		Fields: []notify.Field{
			{Label: "Visits", Previous: "1,000", Current: "1,005", Delta: "+5", Inline: true},
			{Label: "Visitors", Previous: "300", Current: "300", Inline: true},
		},
		Color:        0xE67E22,
		ThumbnailURL: "https://img.rec.net/room.png",
		Footer:       "Room: ^Lobby",
	}
}

func TestRenderEmbed(t *testing.T) {
	t.Parallel()
	b, err := Render(sampleMessage())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	var p payload
	if err := json.Unmarshal(b, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(p.Embeds) != 1 {
		t.Fatalf("embeds = %d", len(p.Embeds))
	}
	e := p.Embeds[0]
	if e.Title != "Gained visits!" || e.Color != 0xE67E22 || e.Footer.Text != "Room: ^Lobby" || e.Thumbnail.URL == "" {
		t.Fatalf("unexpected embed: %+v", e)
	}
	if got, want := e.Fields[0].Value, "1,000 (+5)\n**Total:** `1,005`"; got != want {
		t.Fatalf("field 0 = %q, want %q", got, want)
	}
	if got, want := e.Fields[1].Value, "300\n**Total:** `300`"; got != want {
		t.Fatalf("field 1 = %q, want %q", got, want)
	}
}

func TestPostSuccessAndFailure(t *testing.T) {
	t.Parallel()
	var gotBody []byte
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q", r.Header.Get("Content-Type"))
		}
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ok.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer bad.Close()

	w, err := New("main", ok.URL, ok.Client())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Post(context.Background(), sampleMessage()); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if len(gotBody) == 0 {
		t.Fatal("server received empty body")
	}

	w2, _ := New("", bad.URL, bad.Client())
	err = w2.Post(context.Background(), sampleMessage())
	var de *notify.DeliveryError
	if !errors.As(err, &de) || de.Status != http.StatusTooManyRequests || de.Destination != "discord" {
		t.Fatalf("Post err = %v", err)
	}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New("x", "  ", nil); err == nil {
		t.Fatal("expected error for empty url")
	}
}
