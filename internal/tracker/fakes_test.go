package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"rrtracker/internal/entity"
	"rrtracker/internal/notify"
)

type fetchCall struct {
	cred entity.Credential
}

// fakeFetcher answers call n (0 = construction) with script(n, cred).
type fakeFetcher struct {
	meta        entity.Meta
	describeErr error
	script      func(n int, cred entity.Credential) (entity.Snapshot, error)

	mu    sync.Mutex
	calls []fetchCall
}

func (f *fakeFetcher) Describe(ctx context.Context, k entity.Kind, id int64) (entity.Meta, error) {
	if f.describeErr != nil {
		return entity.Meta{}, f.describeErr
	}
	return f.meta, nil
}

func (f *fakeFetcher) Fetch(ctx context.Context, k entity.Kind, id int64, cred entity.Credential) (entity.Snapshot, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, fetchCall{cred: cred})
	f.mu.Unlock()
	return f.script(n, cred)
}

func (f *fakeFetcher) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

type fakeRenewer struct {
	cred  entity.Credential
	err   error
	calls int
}

func (r *fakeRenewer) Renew(ctx context.Context) (entity.Credential, error) {
	r.calls++
	return r.cred, r.err
}

type fakeDispatcher struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, msg notify.Message, dests []notify.Destination) []notify.Result {
	d.mu.Lock()
	d.msgs = append(d.msgs, msg)
	d.mu.Unlock()
	out := make([]notify.Result, len(dests))
	for i, dst := range dests {
		out[i] = notify.Result{Destination: dst.Name()}
	}
	return out
}

func (d *fakeDispatcher) Messages() []notify.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notify.Message(nil), d.msgs...)
}

type nopDest struct{}

func (nopDest) Name() string { return "nop" }

func (nopDest) Post(context.Context, notify.Message) error { return nil }

// sleeper records requested waits. After limit waits it stops the tracker
// and returns a channel that never fires, so only the stop path is ready.
type sleeper struct {
	mu     sync.Mutex
	waits  []time.Duration
	limit  int
	target func() *Tracker
}

func (s *sleeper) after(d time.Duration) <-chan time.Time {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	n := len(s.waits)
	s.mu.Unlock()
	if n >= s.limit {
		s.target().Stop()
		return nil
	}
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func (s *sleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func subs(n int64) entity.Snapshot {
	return entity.MustSnapshot(entity.Account, map[entity.Field]int64{entity.Subscribers: n})
}

func room(k entity.Kind, visits, visitors, cheers, favorites int64) entity.Snapshot {
	return entity.MustSnapshot(k, map[entity.Field]int64{
		entity.Visits:    visits,
		entity.Visitors:  visitors,
		entity.Cheers:    cheers,
		entity.Favorites: favorites,
	})
}

var errBoom = errors.New("boom")

// harness builds a tracker whose sleeps are recorded and whose run ends
// after stopAfter sleeps.
type harness struct {
	t          *Tracker
	fetcher    *fakeFetcher
	renewer    *fakeRenewer
	dispatcher *fakeDispatcher
	sleeper    *sleeper
}

func newHarness(k entity.Kind, f *fakeFetcher, r *fakeRenewer, stopAfter int) (*harness, error) {
	h := &harness{fetcher: f, renewer: r, dispatcher: &fakeDispatcher{}}
	h.sleeper = &sleeper{limit: stopAfter, target: func() *Tracker { return h.t }}
	cfg := Config{
		Kind:         k,
		ID:           42,
		Interval:     time.Minute,
		Destinations: []notify.Destination{nopDest{}},
		Fetcher:      f,
		Dispatcher:   h.dispatcher,
		after:        h.sleeper.after,
	}
	if k.NeedsCredential {
		cfg.Credential = "old"
		cfg.Renewer = r
	}
	t, err := New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	h.t = t
	return h, nil
}
