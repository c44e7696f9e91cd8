package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rrtracker/internal/eventbus"
)

type fakeDest struct {
	name  string
	err   error
	block bool
	calls atomic.Int32

	mu   sync.Mutex
	msgs []Message
}

func (f *fakeDest) Name() string { return f.name }

func (f *fakeDest) Post(ctx context.Context, msg Message) error {
	f.calls.Add(1)
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func TestDispatchIsolatesFailures(t *testing.T) {
	t.Parallel()
	d1 := &fakeDest{name: "one"}
	d2 := &fakeDest{name: "two", err: StatusError("", 500)}
	d3 := &fakeDest{name: "three"}

	d := NewDispatcher(DispatcherConfig{}, logxNop(), nil)
	msg := Message{Title: "Gained subscribers!"}
	res := d.Dispatch(context.Background(), msg, []Destination{d1, d2, d3})

	if len(res) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(res))
	}
	for i, want := range []string{"one", "two", "three"} {
		if res[i].Destination != want {
			t.Fatalf("results[%d].Destination = %q, want %q", i, res[i].Destination, want)
		}
	}
	if !res[0].OK() || res[1].OK() || !res[2].OK() {
		t.Fatalf("unexpected results: %+v", res)
	}
	var de *DeliveryError
	if !errors.As(res[1].Err, &de) || de.Status != 500 || de.Destination != "two" {
		t.Fatalf("results[1].Err = %v", res[1].Err)
	}
	for _, f := range []*fakeDest{d1, d2, d3} {
		if f.calls.Load() != 1 {
			t.Fatalf("%s called %d times, want exactly 1", f.name, f.calls.Load())
		}
		if f.msgs[0].Title != msg.Title {
			t.Fatalf("%s got a different message", f.name)
		}
	}
}

func TestDispatchTimeout(t *testing.T) {
	t.Parallel()
	slow := &fakeDest{name: "slow", block: true}
	fast := &fakeDest{name: "fast"}
	d := NewDispatcher(DispatcherConfig{Timeout: 30 * time.Millisecond}, logxNop(), nil)

	start := time.Now()
	res := d.Dispatch(context.Background(), Message{Title: "t"}, []Destination{slow, fast})
	if time.Since(start) > 2*time.Second {
		t.Fatal("dispatch did not honor timeout")
	}
	var de *DeliveryError
	if !errors.As(res[0].Err, &de) || !de.Timeout {
		t.Fatalf("slow result = %v, want timeout", res[0].Err)
	}
	if !res[1].OK() {
		t.Fatalf("fast result = %v", res[1].Err)
	}
}

func TestDispatchRecoversPanicAndNil(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(DispatcherConfig{}, logxNop(), nil)
	res := d.Dispatch(context.Background(), Message{}, []Destination{panicDest{}, nil, &fakeDest{name: "ok"}})
	if res[0].OK() || res[1].OK() || !res[2].OK() {
		t.Fatalf("unexpected results: %+v", res)
	}
}

func TestDispatchPublishesEvents(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	d := NewDispatcher(DispatcherConfig{}, logxNop(), bus)
	d.Dispatch(context.Background(), Message{Title: "x", Footer: "Room: ^Lobby"}, []Destination{
		&fakeDest{name: "good"}, &fakeDest{name: "bad", err: errors.New("boom")},
	})

	got := map[string]DeliveryEvent{}
	for i := 0; i < 2; i++ {
		e := <-ch
		ev := e.Data.(DeliveryEvent)
		got[e.Type+"/"+ev.Destination] = ev
	}
	if _, ok := got[eventbus.DeliverySent+"/good"]; !ok {
		t.Fatalf("missing sent event: %v", got)
	}
	bad, ok := got[eventbus.DeliveryFailed+"/bad"]
	if !ok || bad.Error == "" || bad.Source != "Room: ^Lobby" {
		t.Fatalf("missing failed event: %v", got)
	}
}

func TestDispatchRateLimitDropsWithinTimeout(t *testing.T) {
	t.Parallel()
	dst := &fakeDest{name: "limited"}
	d := NewDispatcher(DispatcherConfig{Timeout: 20 * time.Millisecond, RatePerSec: 0.01, Burst: 1}, logxNop(), nil)

	first := d.Dispatch(context.Background(), Message{}, []Destination{dst})
	second := d.Dispatch(context.Background(), Message{}, []Destination{dst})
	if !first[0].OK() {
		t.Fatalf("first send failed: %v", first[0].Err)
	}
	if second[0].OK() {
		t.Fatal("second send should be dropped by the limiter")
	}
	if dst.calls.Load() != 1 {
		t.Fatalf("destination called %d times, want 1", dst.calls.Load())
	}
}

type panicDest struct{}

func (panicDest) Name() string { return "panic" }
func (panicDest) Post(context.Context, Message) error {
	panic("boom")
}

func TestDispatchLimiterPerDestinationNotPerName(t *testing.T) {
	t.Parallel()
	a := &fakeDest{name: "discord"}
	b := &fakeDest{name: "discord"}
	d := NewDispatcher(DispatcherConfig{Timeout: 200 * time.Millisecond, RatePerSec: 1, Burst: 1}, logxNop(), nil)

	res := d.Dispatch(context.Background(), Message{Title: "t"}, []Destination{a, b})
	for i, r := range res {
		if !r.OK() {
			t.Fatalf("destination %d: %v", i, r.Err)
		}
	}
	if a.calls.Load() != 1 || b.calls.Load() != 1 {
		t.Fatalf("calls a=%d b=%d, want 1 each", a.calls.Load(), b.calls.Load())
	}

	// Another dispatcher user with its own same-named destination keeps its own budget.
	c := &fakeDest{name: "discord"}
	if r := d.Dispatch(context.Background(), Message{Title: "t"}, []Destination{c}); !r[0].OK() {
		t.Fatalf("third destination throttled by the others: %v", r[0].Err)
	}
}
