package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/slack-go/slack"

	"rrtracker/internal/notify"
)

func sample() notify.Message {
	return notify.Message{
		Title:  "Lost subscribers!",
		Fields: []notify.Field{{Label: "Subscribers", Previous: "10", Current: "9", Delta: "-1", Inline: true}},
		Color:  0xE67E22,
		Footer: "Account: @coach",
	}
}

func TestRender(t *testing.T) {
	t.Parallel()
	m := Render(sample())
	if len(m.Attachments) != 1 {
		t.Fatalf("attachments = %d", len(m.Attachments))
	}
	a := m.Attachments[0]
	if a.Color != "#e67e22" || a.Title != "Lost subscribers!" || a.Footer != "Account: @coach" {
		t.Fatalf("unexpected attachment: %+v", a)
	}
	if got, want := a.Fields[0].Value, "10 (-1)\n*Total:* `9`"; got != want {
		t.Fatalf("field value = %q, want %q", got, want)
	}
}

func TestPost(t *testing.T) {
	t.Parallel()
	var got slack.WebhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w, err := New("ops", srv.URL, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Post(context.Background(), sample()); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if got.Text != "Lost subscribers!" {
		t.Fatalf("server got %+v", got)
	}
}

func TestPostStatusError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	w, _ := New("", srv.URL, srv.Client())
	err := w.Post(context.Background(), sample())
	var de *notify.DeliveryError
	if !errors.As(err, &de) || de.Status != http.StatusForbidden || de.Destination != "slack" {
		t.Fatalf("Post err = %v", err)
	}
}
