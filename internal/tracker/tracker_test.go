package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"rrtracker/internal/entity"
	"rrtracker/internal/eventbus"
	"rrtracker/internal/notify"
)

func TestGainedOnceThenQuiet(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{
		meta: entity.Meta{Name: "bob"},
		script: func(n int, _ entity.Credential) (entity.Snapshot, error) {
			if n == 0 {
				return subs(100), nil
			}
			return subs(105), nil
		},
	}
	h, err := newHarness(entity.Account, f, &fakeRenewer{}, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := h.t.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	msgs := h.dispatcher.Messages()
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if msgs[0].Title != "Gained subscribers!" {
		t.Fatalf("title = %q", msgs[0].Title)
	}
	if got := msgs[0].Fields[0].Delta; got != "+5" {
		t.Fatalf("delta = %q, want +5", got)
	}
	if msgs[0].Footer != "Account: @bob" {
		t.Fatalf("footer = %q", msgs[0].Footer)
	}
	if n, _ := h.t.Baseline().Get(entity.Subscribers); n != 105 {
		t.Fatalf("baseline = %d, want 105", n)
	}
	if h.t.Status() != StatusStopped || h.t.Reason() != ReasonNone {
		t.Fatalf("status = %s reason = %q", h.t.Status(), h.t.Reason())
	}
	waits := h.sleeper.Waits()
	if len(waits) != 2 || waits[0] != time.Minute || waits[1] != time.Minute {
		t.Fatalf("waits = %v", waits)
	}
	if got := len(f.Calls()); got != 3 {
		t.Fatalf("fetch calls = %d, want 3", got)
	}
}

func TestRenewalRefetchesWithoutSleep(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{
		meta: entity.Meta{Name: "bob"},
		script: func(n int, cred entity.Credential) (entity.Snapshot, error) {
			if n == 0 {
				return subs(100), nil
			}
			if cred != "new" {
				return entity.Snapshot{}, entity.ErrUnauthorized
			}
			return subs(101), nil
		},
	}
	r := &fakeRenewer{cred: "new"}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	h, err := newHarness(entity.Account, f, r, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.t.bus = bus
	if err := h.t.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls := f.Calls()
	want := []entity.Credential{"old", "old", "new"}
	if len(calls) != len(want) {
		t.Fatalf("fetch calls = %d, want %d", len(calls), len(want))
	}
	for i, c := range calls {
		if c.cred != want[i] {
			t.Fatalf("call %d cred = %q, want %q", i, c.cred, want[i])
		}
	}
	if r.calls != 1 {
		t.Fatalf("renew calls = %d, want 1", r.calls)
	}
	if got := len(h.sleeper.Waits()); got != 1 {
		t.Fatalf("waits = %d, want 1 (renewal must not add or skip a sleep)", got)
	}
	if got := len(h.dispatcher.Messages()); got != 1 {
		t.Fatalf("messages = %d, want 1", got)
	}

	var renewed bool
	for len(events) > 0 {
		if ev := <-events; ev.Type == eventbus.TrackerRenewed {
			renewed = true
		}
	}
	if !renewed {
		t.Fatal("expected a tracker.renewed event")
	}
}

func TestAuthFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		renewer *fakeRenewer
		check   func(t *testing.T, err error)
	}{
		{
			name:    "renewal fails",
			renewer: &fakeRenewer{err: errBoom},
			check: func(t *testing.T, err error) {
				var ae *AuthRenewalError
				if !errors.As(err, &ae) || !errors.Is(err, errBoom) {
					t.Fatalf("err = %v, want AuthRenewalError", err)
				}
			},
		},
		{
			name:    "still unauthorized after renewal",
			renewer: &fakeRenewer{cred: "also-stale"},
			check: func(t *testing.T, err error) {
				var fe *FetchError
				if !errors.As(err, &fe) || fe.Reason != entity.ReasonUnauthorized {
					t.Fatalf("err = %v, want unauthorized FetchError", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := &fakeFetcher{
				meta: entity.Meta{Name: "bob"},
				script: func(n int, _ entity.Credential) (entity.Snapshot, error) {
					if n == 0 {
						return subs(100), nil
					}
					return entity.Snapshot{}, entity.ErrUnauthorized
				},
			}
			h, err := newHarness(entity.Account, f, tt.renewer, 5)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			tt.check(t, h.t.Run(context.Background()))
			if h.t.Status() != StatusTerminated || h.t.Reason() != ReasonAuthFailed {
				t.Fatalf("status = %s reason = %q", h.t.Status(), h.t.Reason())
			}
			if tt.renewer.calls != 1 {
				t.Fatalf("renew calls = %d, want 1", tt.renewer.calls)
			}
			if got := len(h.sleeper.Waits()); got != 0 {
				t.Fatalf("waits = %d, want 0", got)
			}
			if got := len(h.dispatcher.Messages()); got != 0 {
				t.Fatalf("messages = %d, want 0", got)
			}
		})
	}
}

func TestNotFoundTerminatesRoom(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{
		meta: entity.Meta{Name: "Lobby"},
		script: func(n int, _ entity.Credential) (entity.Snapshot, error) {
			switch n {
			case 0:
				return room(entity.Room, 10, 5, 1, 1), nil
			case 1:
				return room(entity.Room, 11, 5, 1, 1), nil
			default:
				return entity.Snapshot{}, entity.ErrNotFound
			}
		},
	}
	h, err := newHarness(entity.Room, f, nil, 10)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = h.t.Run(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Reason != entity.ReasonNotFound || !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("err = %v, want not_found FetchError", err)
	}
	if h.t.Status() != StatusTerminated || h.t.Reason() != ReasonEntityInvalid {
		t.Fatalf("status = %s reason = %q", h.t.Status(), h.t.Reason())
	}
	if got := len(f.Calls()); got != 3 {
		t.Fatalf("fetch calls = %d, want 3 (no fetch after termination)", got)
	}
	if got := len(h.dispatcher.Messages()); got != 1 {
		t.Fatalf("messages = %d, want 1", got)
	}
}

func TestRoomGroupsDispatchInOrder(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind   entity.Kind
		titles []string
	}{
		{entity.Room, []string{"Gained visits!", "Lost room stats!"}},
		{entity.RoomStats, []string{"Room stats updated!"}},
	}
	for _, tt := range tests {
		t.Run(tt.kind.Name, func(t *testing.T) {
			t.Parallel()
			k := tt.kind
			f := &fakeFetcher{
				meta: entity.Meta{Name: "Lobby", ImageURL: "https://img.rec.net/x.png"},
				script: func(n int, _ entity.Credential) (entity.Snapshot, error) {
					if n == 0 {
						return room(k, 10, 5, 3, 2), nil
					}
					return room(k, 12, 5, 2, 2), nil
				},
			}
			h, err := newHarness(k, f, nil, 2)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if err := h.t.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			msgs := h.dispatcher.Messages()
			if len(msgs) != len(tt.titles) {
				t.Fatalf("messages = %d, want %d", len(msgs), len(tt.titles))
			}
			for i, want := range tt.titles {
				if msgs[i].Title != want {
					t.Fatalf("message %d title = %q, want %q", i, msgs[i].Title, want)
				}
				if msgs[i].Footer != "Room: ^Lobby" || msgs[i].ThumbnailURL == "" {
					t.Fatalf("message %d = %+v", i, msgs[i])
				}
			}
		})
	}
}

func TestStopBeforeRun(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{
		meta:   entity.Meta{Name: "Lobby"},
		script: func(int, entity.Credential) (entity.Snapshot, error) { return room(entity.Room, 1, 1, 1, 1), nil },
	}
	h, err := newHarness(entity.Room, f, nil, 10)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.t.Stop()
	h.t.Stop()
	if err := h.t.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := len(f.Calls()); got != 1 {
		t.Fatalf("fetch calls = %d, want 1", got)
	}
	if h.t.Status() != StatusStopped {
		t.Fatalf("status = %s", h.t.Status())
	}
	if err := h.t.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Run = %v, want ErrAlreadyStarted", err)
	}
}

func TestStopInterruptsSleep(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{
		meta:   entity.Meta{Name: "Lobby"},
		script: func(int, entity.Credential) (entity.Snapshot, error) { return room(entity.Room, 1, 1, 1, 1), nil },
	}
	tr, err := New(context.Background(), Config{
		Kind:         entity.Room,
		ID:           1,
		Interval:     time.Hour,
		Destinations: []notify.Destination{nopDest{}},
		Fetcher:      f,
		Dispatcher:   &fakeDispatcher{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- tr.Run(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(f.Calls()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	tr.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if tr.Status() != StatusStopped {
		t.Fatalf("status = %s", tr.Status())
	}
}

func TestConstructionErrors(t *testing.T) {
	t.Parallel()
	ok := func(int, entity.Credential) (entity.Snapshot, error) { return subs(1), nil }
	base := func() Config {
		return Config{
			Kind:         entity.Account,
			ID:           7,
			Interval:     time.Minute,
			Destinations: []notify.Destination{nopDest{}},
			Credential:   "tok",
			Renewer:      &fakeRenewer{},
			Fetcher:      &fakeFetcher{script: ok},
			Dispatcher:   &fakeDispatcher{},
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		invalid bool
	}{
		{"zero interval", func(c *Config) { c.Interval = 0 }, true},
		{"no destinations", func(c *Config) { c.Destinations = nil }, true},
		{"zero id", func(c *Config) { c.ID = 0 }, true},
		{"missing credential", func(c *Config) { c.Credential = "" }, true},
		{"missing renewer", func(c *Config) { c.Renewer = nil }, true},
		{"describe fails", func(c *Config) { c.Fetcher = &fakeFetcher{describeErr: entity.ErrNotFound, script: ok} }, false},
		{"initial fetch fails", func(c *Config) {
			c.Fetcher = &fakeFetcher{script: func(int, entity.Credential) (entity.Snapshot, error) {
				return entity.Snapshot{}, entity.ErrTimeout
			}}
		}, false},
		{"wrong snapshot kind", func(c *Config) {
			c.Fetcher = &fakeFetcher{script: func(int, entity.Credential) (entity.Snapshot, error) {
				return room(entity.Room, 1, 1, 1, 1), nil
			}}
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(&cfg)
			_, err := New(context.Background(), cfg)
			var ce *ConstructionError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want ConstructionError", err)
			}
			if got := errors.Is(err, ErrInvalidConfig); got != tt.invalid {
				t.Fatalf("errors.Is(ErrInvalidConfig) = %v, want %v (%v)", got, tt.invalid, err)
			}
		})
	}
}

func TestScheduleWait(t *testing.T) {
	t.Parallel()
	sched, err := cron.ParseStandard("*/5 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	tr := &Tracker{schedule: sched, interval: time.Minute}
	now := time.Date(2024, 1, 1, 10, 2, 0, 0, time.UTC)
	if got := tr.wait(now); got != 3*time.Minute {
		t.Fatalf("wait = %v, want 3m", got)
	}
	tr = &Tracker{interval: 90 * time.Second}
	if got := tr.wait(now); got != 90*time.Second {
		t.Fatalf("wait = %v, want 90s", got)
	}
}

func TestStatusString(t *testing.T) {
	for st, want := range map[Status]string{
		StatusInitializing: "initializing",
		StatusRunning:      "running",
		StatusStopped:      "stopped",
		StatusTerminated:   "terminated",
	} {
		if st.String() != want {
			t.Errorf("%d.String() = %q, want %q", st, st.String(), want)
		}
	}
}
