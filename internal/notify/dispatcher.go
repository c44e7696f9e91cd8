package notify

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"rrtracker/internal/eventbus"
	logx "rrtracker/pkg/logx"
)

const DefaultTimeout = 3 * time.Second

// DispatcherConfig controls delivery. Zero values fall back to defaults.
type DispatcherConfig struct {
	// Timeout bounds one attempt to one destination (including limiter wait).
	Timeout time.Duration
	// RatePerSec caps sends per destination. 0 disables limiting.
	// The limiter is per destination instance, never shared by name.
	RatePerSec float64
	Burst      int
}

// Result is the outcome of one destination for one message.
type Result struct {
	Destination string
	Err         error
	Took        time.Duration
}

func (r Result) OK() bool { return r.Err == nil }

// DeliveryEvent is published on the bus for every attempt.
type DeliveryEvent struct {
	Destination string `json:"destination"`
	Source      string `json:"source"`
	Title       string `json:"title"`
	Status      int    `json:"status,omitempty"`
	Error       string `json:"error,omitempty"`
	TookMS      int64  `json:"took_ms"`
}

// Dispatcher is safe for concurrent use by many trackers.
type Dispatcher struct {
	cfg DispatcherConfig
	log logx.Logger
	bus eventbus.Bus

	mu       sync.Mutex
	limiters map[any]*rate.Limiter
}

func NewDispatcher(cfg DispatcherConfig, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RatePerSec > 0 && cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Dispatcher{cfg: cfg, log: log, bus: bus, limiters: map[any]*rate.Limiter{}}
}

// Timeout returns the per-attempt timeout in effect.
func (d *Dispatcher) Timeout() time.Duration { return d.cfg.Timeout }

// Dispatch sends msg to every destination and returns one Result per
// destination, in order. It never fails as a whole.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message, dests []Destination) []Result {
	results := make([]Result, len(dests))
	var wg sync.WaitGroup
	for i, dst := range dests {
		if dst == nil {
			results[i] = Result{Err: &DeliveryError{Destination: "<nil>", Err: errors.New("nil destination")}}
			continue
		}
		wg.Add(1)
		go func(i int, dst Destination) {
			defer wg.Done()
			results[i] = d.deliver(ctx, msg, dst)
		}(i, dst)
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message, dst Destination) (res Result) {
	name := dst.Name()
	res.Destination = name
	start := time.Now()

	actx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			res.Err = &DeliveryError{Destination: name, Err: fmt.Errorf("panic: %v", r)}
		}
		res.Took = time.Since(start)
		d.report(msg, res)
	}()

	if lim := d.limiter(dst); lim != nil {
		if err := lim.Wait(actx); err != nil {
			res.Err = &DeliveryError{Destination: name, Timeout: true, Err: err}
			return res
		}
	}

	res.Err = normalize(name, dst.Post(actx, msg), actx)
	return res
}

func (d *Dispatcher) limiter(dst Destination) *rate.Limiter {
	if d.cfg.RatePerSec <= 0 {
		return nil
	}
	key := limiterKey(dst)
	d.mu.Lock()
	defer d.mu.Unlock()
	lim := d.limiters[key]
	if lim == nil {
		lim = rate.NewLimiter(rate.Limit(d.cfg.RatePerSec), d.cfg.Burst)
		d.limiters[key] = lim
	}
	return lim
}

// limiterKey is the destination itself. A non-comparable value can't be a
// map key, so it falls back to its type and name.
func limiterKey(dst Destination) any {
	if reflect.TypeOf(dst).Comparable() {
		return dst
	}
	return fmt.Sprintf("%T/%s", dst, dst.Name())
}

func normalize(name string, err error, actx context.Context) error {
	if err == nil {
		return nil
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		if de.Destination == "" {
			de.Destination = name
		}
		if !de.Timeout && errors.Is(err, context.DeadlineExceeded) {
			de.Timeout = true
		}
		return de
	}
	timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(actx.Err(), context.DeadlineExceeded)
	return &DeliveryError{Destination: name, Timeout: timeout, Err: err}
}

func (d *Dispatcher) report(msg Message, res Result) {
	ev := DeliveryEvent{
		Destination: res.Destination,
		Source:      msg.Footer,
		Title:       msg.Title,
		TookMS:      res.Took.Milliseconds(),
	}
	if res.Err == nil {
		d.log.Debug("notification delivered",
			logx.String("destination", res.Destination),
			logx.String("title", msg.Title),
			logx.Duration("took", res.Took),
		)
		d.bus.Publish(eventbus.Event{Type: eventbus.DeliverySent, Data: ev})
		return
	}

	ev.Error = res.Err.Error()
	var de *DeliveryError
	if errors.As(res.Err, &de) {
		ev.Status = de.Status
	}
	d.log.Warn("notification delivery failed",
		logx.String("destination", res.Destination),
		logx.String("title", msg.Title),
		logx.Int("status", ev.Status),
		logx.Err(res.Err),
	)
	d.bus.Publish(eventbus.Event{Type: eventbus.DeliveryFailed, Data: ev})
}
