// Package tracker polls one remote entity on a schedule, diffs each snapshot
// against the previous one and dispatches a notification per notable group.
//
// Lifecycle: Initializing -> Running -> Stopped | Terminated(reason).
// A terminated tracker is never restarted.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"rrtracker/internal/delta"
	"rrtracker/internal/entity"
	"rrtracker/internal/eventbus"
	"rrtracker/internal/notify"
	logx "rrtracker/pkg/logx"
)

const DefaultFetchTimeout = 3 * time.Second

type Status int32

const (
	StatusInitializing Status = iota
	StatusRunning
	StatusStopped
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	case StatusTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Reason explains a Terminated status.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonAuthFailed    Reason = "auth_failed"
	ReasonEntityInvalid Reason = "entity_invalid"
	// ReasonPanicked marks a run loop that panicked. The panic is re-raised.
	ReasonPanicked Reason = "panicked"
)

// Fetcher is the upstream collaborator (recnet.Client).
type Fetcher interface {
	Describe(ctx context.Context, k entity.Kind, id int64) (entity.Meta, error)
	Fetch(ctx context.Context, k entity.Kind, id int64, cred entity.Credential) (entity.Snapshot, error)
}

// Renewer obtains a fresh credential.
type Renewer interface {
	Renew(ctx context.Context) (entity.Credential, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg notify.Message, dests []notify.Destination) []notify.Result
}

type Config struct {
	Kind entity.Kind
	ID   int64

	// Interval is the pause between cycles. Schedule, when set, replaces it:
	// the tracker waits until the schedule's next activation.
	Interval time.Duration
	Schedule cron.Schedule

	Destinations []notify.Destination

	Credential entity.Credential
	Renewer    Renewer

	Fetcher    Fetcher
	Dispatcher Dispatcher

	// FetchTimeout bounds describe, fetch and renew calls. Defaults to 3s.
	FetchTimeout time.Duration

	Log logx.Logger
	Bus eventbus.Bus

	// after replaces time.NewTimer in tests.
	after func(time.Duration) <-chan time.Time
}

// Event is the payload of tracker.* bus events.
type Event struct {
	Tracker   string `json:"tracker"`
	Kind      string `json:"kind"`
	Title     string `json:"title,omitempty"`
	Delivered int    `json:"delivered,omitempty"`
	Failed    int    `json:"failed,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Tracker struct {
	kind         entity.Kind
	id           int64
	interval     time.Duration
	schedule     cron.Schedule
	dests        []notify.Destination
	fetcher      Fetcher
	renewer      Renewer
	dispatcher   Dispatcher
	fetchTimeout time.Duration
	after        func(time.Duration) <-chan time.Time

	log logx.Logger
	bus eventbus.Bus

	meta entity.Meta
	name string

	// Owned by the run loop.
	cred entity.Credential

	status atomic.Int32

	mu       sync.Mutex
	baseline entity.Snapshot
	reason   Reason

	stopOnce sync.Once
	stopCh   chan struct{}
}

func validate(cfg Config) error {
	switch {
	case cfg.Kind.Name == "":
		return fmt.Errorf("%w: kind required", ErrInvalidConfig)
	case cfg.ID <= 0:
		return fmt.Errorf("%w: entity id must be > 0", ErrInvalidConfig)
	case cfg.Interval <= 0 && cfg.Schedule == nil:
		return fmt.Errorf("%w: interval must be > 0", ErrInvalidConfig)
	case len(cfg.Destinations) == 0:
		return fmt.Errorf("%w: at least one destination required", ErrInvalidConfig)
	case cfg.Fetcher == nil:
		return fmt.Errorf("%w: fetcher required", ErrInvalidConfig)
	case cfg.Dispatcher == nil:
		return fmt.Errorf("%w: dispatcher required", ErrInvalidConfig)
	}
	for i, d := range cfg.Destinations {
		if d == nil {
			return fmt.Errorf("%w: destination %d is nil", ErrInvalidConfig, i)
		}
	}
	if cfg.Kind.NeedsCredential {
		if cfg.Credential.Empty() {
			return fmt.Errorf("%w: %s trackers need a credential", ErrInvalidConfig, cfg.Kind.Name)
		}
		if cfg.Renewer == nil {
			return fmt.Errorf("%w: %s trackers need a renewer", ErrInvalidConfig, cfg.Kind.Name)
		}
	}
	return nil
}

// New validates cfg, captures the entity's metadata and the baseline snapshot.
// Any failure is a *ConstructionError.
func New(ctx context.Context, cfg Config) (*Tracker, error) {
	if err := validate(cfg); err != nil {
		return nil, &ConstructionError{Kind: cfg.Kind.Name, ID: cfg.ID, Err: err}
	}

	t := &Tracker{
		kind:         cfg.Kind,
		id:           cfg.ID,
		interval:     cfg.Interval,
		schedule:     cfg.Schedule,
		dests:        append([]notify.Destination(nil), cfg.Destinations...),
		fetcher:      cfg.Fetcher,
		renewer:      cfg.Renewer,
		dispatcher:   cfg.Dispatcher,
		fetchTimeout: cfg.FetchTimeout,
		after:        cfg.after,
		log:          cfg.Log,
		bus:          cfg.Bus,
		cred:         cfg.Credential,
		stopCh:       make(chan struct{}),
	}
	if t.fetchTimeout <= 0 {
		t.fetchTimeout = DefaultFetchTimeout
	}
	if t.log.IsZero() {
		t.log = logx.Nop()
	}
	if t.bus == nil {
		t.bus = eventbus.Nop()
	}

	mctx, cancel := context.WithTimeout(ctx, t.fetchTimeout)
	meta, err := t.fetcher.Describe(mctx, t.kind, t.id)
	cancel()
	if err != nil {
		return nil, &ConstructionError{Kind: cfg.Kind.Name, ID: cfg.ID, Err: fmt.Errorf("describe: %w", err)}
	}
	t.meta = meta
	t.name = t.kind.DecoratedName(meta.Name)
	t.log = t.log.With(logx.String("tracker", t.name), logx.String("kind", t.kind.Name))

	fctx, cancel := context.WithTimeout(ctx, t.fetchTimeout)
	snap, err := t.fetcher.Fetch(fctx, t.kind, t.id, t.cred)
	cancel()
	if err != nil {
		return nil, &ConstructionError{Kind: cfg.Kind.Name, ID: cfg.ID, Err: fmt.Errorf("initial fetch: %w", err)}
	}
	if err := checkSnapshot(t.kind, snap); err != nil {
		return nil, &ConstructionError{Kind: cfg.Kind.Name, ID: cfg.ID, Err: err}
	}
	t.baseline = snap

	t.log.Info("tracker ready", logx.Int64("id", t.id), logx.Int("destinations", len(t.dests)))
	return t, nil
}

func checkSnapshot(k entity.Kind, s entity.Snapshot) error {
	if s.Kind() != k.Name {
		return fmt.Errorf("snapshot kind %q, want %q", s.Kind(), k.Name)
	}
	return nil
}

// Name is the decorated entity name ("@user", "^Room").
func (t *Tracker) Name() string { return t.name }

func (t *Tracker) Kind() entity.Kind { return t.kind }

func (t *Tracker) Meta() entity.Meta { return t.meta }

func (t *Tracker) Status() Status { return Status(t.status.Load()) }

func (t *Tracker) Reason() Reason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Baseline returns the last retained snapshot.
func (t *Tracker) Baseline() entity.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baseline
}

// Stop asks the run loop to halt at its next check. Idempotent.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

func (t *Tracker) stopRequested(ctx context.Context) bool {
	select {
	case <-t.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Run executes cycles until stopped (nil) or terminated (*AuthRenewalError,
// *FetchError). It may be called once. A panic terminates the tracker before
// it propagates.
func (t *Tracker) Run(ctx context.Context) error {
	if !t.status.CompareAndSwap(int32(StatusInitializing), int32(StatusRunning)) {
		return ErrAlreadyStarted
	}
	defer func() {
		if r := recover(); r != nil {
			t.finish(StatusTerminated, ReasonPanicked, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()
	t.log.Info("tracker started", logx.Duration("interval", t.interval))
	t.publish(eventbus.TrackerStarted, Event{})

	for {
		if t.stopRequested(ctx) {
			t.finish(StatusStopped, ReasonNone, nil)
			return nil
		}

		cur, err := t.observe(ctx)
		if err != nil {
			return err
		}

		prev := t.Baseline()
		changes := delta.Diff(t.kind, prev, cur)
		for _, g := range t.groups() {
			if !changes.Only(g.Fields).Notable() {
				continue
			}
			t.notify(ctx, notify.Format(t.kind, t.meta, changes, g))
		}

		t.mu.Lock()
		t.baseline = cur
		t.mu.Unlock()

		if !t.sleep(ctx) {
			t.finish(StatusStopped, ReasonNone, nil)
			return nil
		}
	}
}

func (t *Tracker) groups() []entity.Group {
	if len(t.kind.Groups) == 0 {
		return []entity.Group{{}}
	}
	return t.kind.Groups
}

// observe fetches the current snapshot, renewing the credential at most once.
func (t *Tracker) observe(ctx context.Context) (entity.Snapshot, error) {
	snap, err := t.fetch(ctx)
	if err == nil {
		return snap, nil
	}

	if !t.kind.NeedsCredential {
		return entity.Snapshot{}, t.terminateFetch(ReasonEntityInvalid, err)
	}

	t.log.Warn("fetch failed, renewing credential", logx.String("reason", string(entity.Classify(err))), logx.Err(err))
	cred, rerr := t.renew(ctx)
	if rerr != nil {
		t.finish(StatusTerminated, ReasonAuthFailed, rerr)
		return entity.Snapshot{}, &AuthRenewalError{Tracker: t.name, Err: rerr}
	}
	t.cred = cred
	t.log.Info("credential renewed")
	t.publish(eventbus.TrackerRenewed, Event{})

	snap, err = t.fetch(ctx)
	if err == nil {
		return snap, nil
	}
	reason := ReasonEntityInvalid
	if errors.Is(err, entity.ErrUnauthorized) {
		reason = ReasonAuthFailed
	}
	return entity.Snapshot{}, t.terminateFetch(reason, err)
}

func (t *Tracker) terminateFetch(reason Reason, err error) error {
	t.finish(StatusTerminated, reason, err)
	return &FetchError{Tracker: t.name, Reason: entity.Classify(err), Err: err}
}

// fetch is detached from ctx cancellation: a stop request does not abort
// an in-flight call.
func (t *Tracker) fetch(ctx context.Context) (entity.Snapshot, error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.fetchTimeout)
	defer cancel()
	snap, err := t.fetcher.Fetch(fctx, t.kind, t.id, t.cred)
	if err != nil {
		return entity.Snapshot{}, err
	}
	if err := checkSnapshot(t.kind, snap); err != nil {
		return entity.Snapshot{}, err
	}
	return snap, nil
}

func (t *Tracker) renew(ctx context.Context) (entity.Credential, error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.fetchTimeout)
	defer cancel()
	cred, err := t.renewer.Renew(rctx)
	if err != nil {
		return "", err
	}
	if cred.Empty() {
		return "", errors.New("renewer returned an empty credential")
	}
	return cred, nil
}

func (t *Tracker) notify(ctx context.Context, msg notify.Message) {
	results := t.dispatcher.Dispatch(context.WithoutCancel(ctx), msg, t.dests)
	var delivered, failed int
	for _, r := range results {
		if r.OK() {
			delivered++
		} else {
			failed++
		}
	}
	t.log.Info("notification dispatched",
		logx.String("title", msg.Title),
		logx.Int("delivered", delivered),
		logx.Int("failed", failed),
	)
	t.publish(eventbus.TrackerNotified, Event{Title: msg.Title, Delivered: delivered, Failed: failed})
}

// sleep waits for the next cycle. It returns false when stop was requested.
func (t *Tracker) sleep(ctx context.Context) bool {
	d := t.wait(time.Now())

	var tick <-chan time.Time
	if t.after != nil {
		tick = t.after(d)
	} else {
		timer := time.NewTimer(d)
		defer timer.Stop()
		tick = timer.C
	}

	select {
	case <-tick:
		return true
	case <-t.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (t *Tracker) wait(now time.Time) time.Duration {
	if t.schedule != nil {
		next := t.schedule.Next(now)
		if !next.IsZero() {
			return max(next.Sub(now), 0)
		}
		// Schedule that never fires again.
		if t.interval <= 0 {
			return time.Hour
		}
	}
	return t.interval
}

func (t *Tracker) finish(st Status, reason Reason, err error) {
	t.mu.Lock()
	t.reason = reason
	t.mu.Unlock()
	t.status.Store(int32(st))

	ev := Event{Reason: string(reason)}
	if err != nil {
		ev.Error = err.Error()
	}
	if st == StatusTerminated {
		t.log.Error("tracker terminated", logx.String("reason", string(reason)), logx.Err(err))
		t.publish(eventbus.TrackerTerminated, ev)
		return
	}
	t.log.Info("tracker stopped")
	t.publish(eventbus.TrackerStopped, ev)
}

func (t *Tracker) publish(typ string, ev Event) {
	ev.Tracker = t.name
	ev.Kind = t.kind.Name
	t.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}
