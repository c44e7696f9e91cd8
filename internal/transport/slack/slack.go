// Package slack posts notifications to Slack incoming webhooks as one
// attachment.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/slack-go/slack"

	"rrtracker/internal/notify"
)

type Webhook struct {
	name string
	url  string
	http *http.Client
}

func New(name, url string, client *http.Client) (*Webhook, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("slack: webhook url is empty")
	}
	if client == nil {
		client = http.DefaultClient
	}
	if name == "" {
		name = "slack"
	}
	return &Webhook{name: name, url: url, http: client}, nil
}

func (w *Webhook) Name() string { return w.name }

// Render converts a message into a Slack webhook message.
func Render(msg notify.Message) *slack.WebhookMessage {
	att := slack.Attachment{
		Color:    fmt.Sprintf("#%06x", msg.Color),
		Title:    msg.Title,
		ThumbURL: msg.ThumbnailURL,
		Footer:   msg.Footer,
		Fields:   make([]slack.AttachmentField, 0, len(msg.Fields)),
	}
	for _, f := range msg.Fields {
		v := f.Previous
		if f.Delta != "" {
			v += " (" + f.Delta + ")"
		}
		v += "\n*Total:* `" + f.Current + "`"
		att.Fields = append(att.Fields, slack.AttachmentField{Title: f.Label, Value: v, Short: f.Inline})
	}
	return &slack.WebhookMessage{Text: msg.Title, Attachments: []slack.Attachment{att}}
}

func (w *Webhook) Post(ctx context.Context, msg notify.Message) error {
	err := slack.PostWebhookCustomHTTPContext(ctx, w.url, w.http, Render(msg))
	if err == nil {
		return nil
	}
	var sce slack.StatusCodeError
	if errors.As(err, &sce) {
		return notify.StatusError(w.name, sce.Code)
	}
	var rle *slack.RateLimitedError
	if errors.As(err, &rle) {
		return notify.StatusError(w.name, http.StatusTooManyRequests)
	}
	return err
}
