package notify

import (
	"context"
	"fmt"
)

// Message is the notification sent verbatim to every destination.
type Message struct {
	Title        string
	Fields       []Field
	Color        int
	ThumbnailURL string
	Footer       string
}

// Field is one counter line: previous value, delta annotation and new total.
type Field struct {
	Label    string
	Previous string
	Current  string
	// Delta is the signed change ("+5", "-1,200"), empty when unchanged.
	Delta  string
	Inline bool
}

// Destination is one notification endpoint.
type Destination interface {
	// Name identifies the destination in logs and results. Never a secret.
	Name() string
	Post(ctx context.Context, msg Message) error
}

// DeliveryError describes one failed send to one destination.
type DeliveryError struct {
	Destination string
	// Status is the HTTP status of a non-success response, 0 otherwise.
	Status  int
	Timeout bool
	Err     error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("deliver to %s: timeout", e.Destination)
	case e.Status != 0:
		return fmt.Sprintf("deliver to %s: http status %d", e.Destination, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("deliver to %s: %v", e.Destination, e.Err)
	default:
		return fmt.Sprintf("deliver to %s: failed", e.Destination)
	}
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// StatusError reports a non-success HTTP response.
func StatusError(dest string, status int) *DeliveryError {
	return &DeliveryError{Destination: dest, Status: status}
}
