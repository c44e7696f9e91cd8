// Package audit writes delivery and tracker lifecycle events from the bus
// into the storage journal.
package audit

import (
	"context"
	"time"

	"rrtracker/internal/eventbus"
	"rrtracker/internal/notify"
	"rrtracker/internal/storage"
	"rrtracker/internal/tracker"
	logx "rrtracker/pkg/logx"
)

const (
	defaultBuffer = 256
	appendTimeout = 2 * time.Second
)

type Recorder struct {
	store storage.Store
	log   logx.Logger

	events      <-chan eventbus.Event
	unsubscribe func()
}

// New subscribes to bus immediately so no event published after New is
// missed, even before Run starts.
func New(store storage.Store, bus eventbus.Bus, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	ch, unsub := bus.Subscribe(defaultBuffer)
	return &Recorder{
		store:       store,
		log:         log.With(logx.String("comp", "audit")),
		events:      ch,
		unsubscribe: unsub,
	}
}

// Run records events until ctx is done, then drains what is buffered.
func (r *Recorder) Run(ctx context.Context) error {
	defer r.unsubscribe()
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return nil
		case ev, ok := <-r.events:
			if !ok {
				return nil
			}
			r.record(ctx, ev)
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case ev, ok := <-r.events:
			if !ok {
				return
			}
			r.record(context.Background(), ev)
		default:
			return
		}
	}
}

func (r *Recorder) record(ctx context.Context, ev eventbus.Event) {
	e, ok := EntryFor(ev)
	if !ok {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appendTimeout)
	defer cancel()
	if err := r.store.Append(actx, e); err != nil {
		r.log.Warn("journal append failed", logx.String("type", ev.Type), logx.Err(err))
	}
}

// EntryFor maps a bus event to a journal entry. Unknown payloads are skipped.
func EntryFor(ev eventbus.Event) (storage.Entry, bool) {
	e := storage.Entry{At: ev.Time, Type: ev.Type}
	switch d := ev.Data.(type) {
	case notify.DeliveryEvent:
		e.Tracker = d.Source
		e.Destination = d.Destination
		e.Title = d.Title
		e.Status = d.Status
		e.Error = d.Error
		e.TookMS = d.TookMS
		e.OK = ev.Type == eventbus.DeliverySent
	case tracker.Event:
		e.Tracker = d.Tracker
		e.Title = d.Title
		e.Error = d.Error
		if d.Reason != "" && e.Error == "" {
			e.Error = d.Reason
		}
		e.OK = ev.Type != eventbus.TrackerTerminated && d.Failed == 0
	default:
		return storage.Entry{}, false
	}
	return e, true
}
