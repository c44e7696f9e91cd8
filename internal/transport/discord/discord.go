// Package discord posts notifications to Discord webhooks as a single embed.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"rrtracker/internal/notify"
)

type Webhook struct {
	name string
	url  string
	http *http.Client
}

// New returns a webhook destination. A nil client uses http.DefaultClient;
// per-attempt timeouts come from the caller's context.
func New(name, url string, client *http.Client) (*Webhook, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("discord: webhook url is empty")
	}
	if client == nil {
		client = http.DefaultClient
	}
	if name == "" {
		name = "discord"
	}
	return &Webhook{name: name, url: url, http: client}, nil
}

func (w *Webhook) Name() string { return w.name }

type payload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title     string       `json:"title"`
	Fields    []embedField `json:"fields"`
	Color     int          `json:"color"`
	Thumbnail *embedURL    `json:"thumbnail,omitempty"`
	Footer    *embedFooter `json:"footer,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedURL struct {
	URL string `json:"url"`
}

type embedFooter struct {
	Text string `json:"text"`
}

// Render converts a message into the webhook body.
func Render(msg notify.Message) ([]byte, error) {
	e := embed{
		Title:  msg.Title,
		Fields: make([]embedField, 0, len(msg.Fields)),
		Color:  msg.Color,
	}
	for _, f := range msg.Fields {
		e.Fields = append(e.Fields, embedField{Name: f.Label, Value: fieldValue(f), Inline: f.Inline})
	}
	if msg.ThumbnailURL != "" {
		e.Thumbnail = &embedURL{URL: msg.ThumbnailURL}
	}
	if msg.Footer != "" {
		e.Footer = &embedFooter{Text: msg.Footer}
	}
	return json.Marshal(payload{Embeds: []embed{e}})
}

func fieldValue(f notify.Field) string {
	var b strings.Builder
	b.WriteString(f.Previous)
	if f.Delta != "" {
		b.WriteString(" (")
		b.WriteString(f.Delta)
		b.WriteString(")")
	}
	b.WriteString("\n**Total:** `")
	b.WriteString(f.Current)
	b.WriteString("`")
	return b.String()
}

func (w *Webhook) Post(ctx context.Context, msg notify.Message) error {
	body, err := Render(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return notify.StatusError(w.name, resp.StatusCode)
	}
	return nil
}
