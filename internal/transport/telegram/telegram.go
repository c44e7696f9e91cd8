// Package telegram sends notifications to a Telegram chat (optionally a forum
// topic) through the Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"rrtracker/internal/notify"
)

type Config struct {
	Name     string
	Token    string
	ChatID   int64
	ThreadID int
	// APIURL overrides the Bot API endpoint. Empty uses telebot's default.
	APIURL string
}

type Chat struct {
	name   string
	bot    *tele.Bot
	chat   *tele.Chat
	thread int
}

func New(cfg Config, client *http.Client) (*Chat, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram: chat_id is required")
	}
	client = boundedClient(client)
	// Offline skips the getMe round-trip at construction.
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Client:  client,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("telegram:%d", cfg.ChatID)
	}
	return &Chat{name: name, bot: b, chat: &tele.Chat{ID: cfg.ChatID}, thread: cfg.ThreadID}, nil
}

func (c *Chat) Name() string { return c.name }

// DefaultSendTimeout caps one Bot API call when the given client has no timeout.
const DefaultSendTimeout = 10 * time.Second

// boundedClient returns client, or a copy of it with DefaultSendTimeout when it
// has none. Send is not context-aware, so this is what ends a hung call.
func boundedClient(client *http.Client) *http.Client {
	if client == nil {
		return &http.Client{Timeout: DefaultSendTimeout}
	}
	if client.Timeout > 0 {
		return client
	}
	cp := *client
	cp.Timeout = DefaultSendTimeout
	return &cp
}

// Render returns the HTML text for a message.
func Render(msg notify.Message) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(msg.Title))
	b.WriteString("</b>")
	for _, f := range msg.Fields {
		b.WriteString("\n\n<b>")
		b.WriteString(html.EscapeString(f.Label))
		b.WriteString("</b>\n")
		b.WriteString(html.EscapeString(f.Previous))
		if f.Delta != "" {
			b.WriteString(" (")
			b.WriteString(html.EscapeString(f.Delta))
			b.WriteString(")")
		}
		b.WriteString("\nTotal: <code>")
		b.WriteString(html.EscapeString(f.Current))
		b.WriteString("</code>")
	}
	if msg.Footer != "" {
		b.WriteString("\n\n<i>")
		b.WriteString(html.EscapeString(msg.Footer))
		b.WriteString("</i>")
	}
	return b.String()
}

// Post sends the rendered message. telebot calls are not context-aware, so
// the send runs on its own goroutine and ctx only bounds how long we wait.
func (c *Chat) Post(ctx context.Context, msg notify.Message) error {
	text := Render(msg)
	opts := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              c.thread,
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.bot.Send(c.chat, text, opts)
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		var te *tele.Error
		if errors.As(err, &te) && te.Code != 0 {
			return &notify.DeliveryError{Destination: c.name, Status: te.Code, Err: err}
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
