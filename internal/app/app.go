// Package app wires configuration, logging, the upstream client,
// destinations and trackers into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"rrtracker/internal/audit"
	"rrtracker/internal/config"
	"rrtracker/internal/entity"
	"rrtracker/internal/eventbus"
	"rrtracker/internal/notify"
	"rrtracker/internal/observability/debug"
	"rrtracker/internal/recnet"
	"rrtracker/internal/runtime/supervisor"
	"rrtracker/internal/storage"
	"rrtracker/internal/tracker"
	"rrtracker/internal/transport"
	logx "rrtracker/pkg/logx"
)

// ErrNoTrackers is returned when no configured tracker could be constructed.
var ErrNoTrackers = errors.New("no tracker could be started")

// debugApplyTimeout bounds the shutdown of a running debug listener on reload.
const debugApplyTimeout = 2 * time.Second

// ErrAllTrackersExited is returned by Run when every tracker has terminated.
var ErrAllTrackersExited = errors.New("all trackers exited")

type Options struct {
	ConfigPath string
	Env        config.Env
	// HTTPClient is shared by the upstream client and webhook destinations.
	HTTPClient *http.Client
}

type App struct {
	opts Options

	cfgm *config.ConfigManager
	plan *config.Plan

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	sd    notifier

	client     *recnet.Client
	dispatcher *notify.Dispatcher

	sup      *supervisor.Supervisor
	trackers *tracker.Supervisor
	debug    *debug.Server
}

// New loads and validates the configuration and builds the process-wide
// services. No network call is made.
func New(opts Options) (*App, error) {
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "app"))

	cfgm := config.NewConfigManager(opts.ConfigPath)
	cfg, found, err := cfgm.LoadOrDefault()
	if err != nil {
		return nil, err
	}
	if !found {
		bootLog.Info("config file not found; using defaults", logx.String("path", opts.ConfigPath))
	}
	plan, err := config.Build(cfg, opts.Env)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(plan.Logging)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(plan.Storage); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log)
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: clientTimeout(plan)}
	}

	return &App{
		opts:       Options{ConfigPath: opts.ConfigPath, Env: opts.Env, HTTPClient: client},
		cfgm:       cfgm,
		plan:       plan,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		store:      store,
		sd:         notifier{log: log.With(logx.String("comp", "systemd"))},
		client:     recnet.New(plan.RecNet, client),
		dispatcher: notify.NewDispatcher(plan.Delivery, log.With(logx.String("comp", "dispatch")), bus),
	}, nil
}

// clientTimeout bounds every call on the shared HTTP client, including sends
// that are not context-aware.
func clientTimeout(plan *config.Plan) time.Duration {
	return max(plan.Delivery.Timeout, plan.RecNet.Timeout)
}

// Start logs in if needed, constructs every tracker and starts them.
// Trackers that fail construction are logged and skipped.
//
// Background goroutines (journal, reload, watchdog) outlive ctx and end in Stop,
// after the trackers, so the last cycle's events still reach the journal.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(context.WithoutCancel(ctx), a.log)
	a.trackers = tracker.NewSupervisor(ctx, a.log)

	if a.store != nil {
		rec := audit.New(a.store, a.bus, a.log)
		a.sup.Go("audit", rec.Run)
	}
	a.startEventLog()

	var cred entity.Credential
	if a.plan.Login {
		c, err := a.client.Authenticate(ctx, a.plan.Username, a.plan.Password)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		cred = c
		a.log.Info("logged in", logx.String("username", a.plan.Username))
	}

	started := 0
	for i, tp := range a.plan.Trackers {
		t, err := a.buildTracker(ctx, tp, cred)
		if err != nil {
			a.log.Error("tracker not started",
				logx.Int("index", i),
				logx.String("kind", tp.Kind.Name),
				logx.String("ref", tp.Ref),
				logx.Err(err),
			)
			continue
		}
		if err := a.trackers.Add(t); err != nil {
			return err
		}
		started++
	}
	if started == 0 {
		return ErrNoTrackers
	}

	a.debug = debug.New(a, a.log)
	if err := a.debug.Apply(ctx, a.plan.Debug); err != nil {
		a.log.Warn("debug listener not started", logx.Err(err))
	}

	a.startConfigReload()
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		a.sd.watchdog(c, a.Alive)
	})
	a.sd.ready(started)
	a.log.Info("app started", logx.Int("trackers", started), logx.Int("configured", len(a.plan.Trackers)))
	return nil
}

func (a *App) buildTracker(ctx context.Context, tp config.TrackerPlan, cred entity.Credential) (*tracker.Tracker, error) {
	id, err := a.client.Resolve(ctx, tp.Kind, tp.ID, tp.Ref, cred)
	if err != nil {
		return nil, &tracker.ConstructionError{Kind: tp.Kind.Name, ID: tp.ID, Err: err}
	}

	dests, err := transport.OpenAll(tp.Destinations, a.opts.HTTPClient)
	if err != nil {
		return nil, &tracker.ConstructionError{Kind: tp.Kind.Name, ID: id, Err: err}
	}

	cfg := tracker.Config{
		Kind:         tp.Kind,
		ID:           id,
		Interval:     tp.Interval,
		Schedule:     tp.Schedule,
		Destinations: dests,
		Fetcher:      a.client,
		Dispatcher:   a.dispatcher,
		FetchTimeout: a.client.Timeout(),
		Log:          a.log.With(logx.String("comp", "tracker")),
		Bus:          a.bus,
	}
	if tp.Kind.NeedsCredential {
		cfg.Credential = cred
		cfg.Renewer = recnet.Renewer{Client: a.client, Username: a.plan.Username, Password: a.plan.Password}
	}
	return tracker.New(ctx, cfg)
}

// Run starts the app and blocks until ctx is done or every tracker has
// exited, then stops.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(stopCtx)
		return err
	}

	exited := make(chan struct{})
	go func() {
		_ = a.trackers.Wait(context.Background())
		close(exited)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case <-exited:
		a.log.Warn("all trackers exited")
		runErr = ErrAllTrackersExited
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Alive reports whether any tracker is running.
func (a *App) Alive() bool { return a.trackers != nil && a.trackers.Running() > 0 }

// Status is served on the debug listener's /trackers.
func (a *App) Status() any {
	st := struct {
		Trackers   []tracker.Info      `json:"trackers"`
		Goroutines supervisor.Snapshot `json:"goroutines"`
	}{Trackers: a.Trackers()}
	if a.trackers != nil {
		st.Goroutines = a.trackers.Snapshot()
	}
	return st
}

// Trackers lists tracker states.
func (a *App) Trackers() []tracker.Info {
	if a.trackers == nil {
		return nil
	}
	return a.trackers.Trackers()
}

// Stop halts trackers, background goroutines and closes storage.
// Each step is bounded so one component can't stall the whole stop.
func (a *App) Stop(ctx context.Context) error {
	a.sd.stopping()
	a.log.Info("stopping")

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(sctx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	if a.debug != nil {
		step("debug", time.Second, a.debug.Stop)
	}
	if a.trackers != nil {
		step("trackers", 5*time.Second, a.trackers.StopAll)
	}
	if a.sup != nil {
		step("supervisor", 2*time.Second, a.sup.Stop)
	}
	if a.store != nil {
		step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	}

	a.log.Info("stopped")
	return a.logs.Close()
}

// startEventLog mirrors bus events to debug logs.
func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})
}

// startConfigReload watches the config file and applies logging and debug
// changes live.
func (a *App) startConfigReload() {
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg, a.opts.Env)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
}

func (a *App) applyConfig(last, next *config.Config) {
	changed, fields := config.SummarizeChange(last, next)
	if len(changed) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.logs.Apply(logx.Config{
		Level:   next.Logging.Level,
		Console: next.Logging.Console,
		File:    logx.FileConfig{Enabled: next.Logging.File.Enabled, Path: next.Logging.File.Path},
	})
	if dc, err := config.DebugPlan(next.Debug); err == nil {
		actx, cancel := context.WithTimeout(context.Background(), debugApplyTimeout)
		err := a.debug.Apply(actx, dc)
		cancel()
		if err != nil {
			a.log.Warn("debug listener reconfigure failed", logx.Err(err))
		}
	}
	fields = append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, fields...)
	a.log.Info("config reloaded", fields...)
	if config.RestartRequired(changed) {
		a.log.Warn("restart required for changes other than logging and debug")
		a.sd.status("config changed; restart required")
	}
}
