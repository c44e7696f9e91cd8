package tracker

import (
	"context"
	"sync"

	"rrtracker/internal/runtime/supervisor"
	logx "rrtracker/pkg/logx"
)

// Info is a point-in-time view of one tracker.
type Info struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Supervisor runs each tracker on its own goroutine. A terminated tracker is
// logged and left alone; it does not affect the others.
type Supervisor struct {
	log logx.Logger
	run *supervisor.Supervisor

	mu       sync.Mutex
	trackers []*Tracker
}

func NewSupervisor(ctx context.Context, log logx.Logger) *Supervisor {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "trackers"))
	return &Supervisor{log: log, run: supervisor.New(ctx, log)}
}

// Add starts t. It fails once Wait or StopAll has begun.
func (s *Supervisor) Add(t *Tracker) error {
	if t == nil {
		return nil
	}
	ok := s.run.Go("tracker:"+t.Name(), func(ctx context.Context) error {
		err := t.Run(ctx)
		if err != nil {
			s.log.Warn("tracker exited", logx.String("tracker", t.Name()), logx.String("reason", string(t.Reason())), logx.Err(err))
		}
		return err
	})
	if !ok {
		return ErrSupervisorClosed
	}
	s.mu.Lock()
	s.trackers = append(s.trackers, t)
	s.mu.Unlock()
	return nil
}

// StopAll requests every tracker to stop and waits for them, bounded by ctx.
func (s *Supervisor) StopAll(ctx context.Context) error {
	for _, t := range s.list() {
		t.Stop()
	}
	return s.run.Stop(ctx)
}

// Wait blocks until every tracker has exited or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error { return s.run.Wait(ctx) }

func (s *Supervisor) Trackers() []Info {
	ts := s.list()
	out := make([]Info, 0, len(ts))
	for _, t := range ts {
		out = append(out, Info{
			Name:   t.Name(),
			Kind:   t.Kind().Name,
			Status: t.Status().String(),
			Reason: string(t.Reason()),
		})
	}
	return out
}

// Running counts trackers still in Running state.
func (s *Supervisor) Running() int {
	n := 0
	for _, t := range s.list() {
		if t.Status() == StatusRunning {
			n++
		}
	}
	return n
}

func (s *Supervisor) Snapshot() supervisor.Snapshot { return s.run.Snapshot() }

func (s *Supervisor) list() []*Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Tracker(nil), s.trackers...)
}
