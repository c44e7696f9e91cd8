package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"rrtracker/internal/entity"
	"rrtracker/internal/notify"
	"rrtracker/internal/observability/debug"
	"rrtracker/internal/recnet"
	"rrtracker/internal/transport"
	logx "rrtracker/pkg/logx"
)

// Default polling intervals when neither the tracker nor update_frequency sets one.
const (
	DefaultAccountInterval = 3 * time.Second
	DefaultRoomInterval    = 10 * time.Second
)

// Plan is the validated, typed form of a Config plus the environment.
type Plan struct {
	Logging  logx.Config
	RecNet   recnet.Config
	Delivery notify.DispatcherConfig
	Storage  *StorageConfig
	Debug    debug.Config
	Trackers []TrackerPlan

	// Login is set when any tracker needs an upstream credential.
	Login    bool
	Username string
	Password string
}

type TrackerPlan struct {
	Kind         entity.Kind
	ID           int64
	Ref          string
	Interval     time.Duration
	Schedule     cron.Schedule
	ScheduleText string
	Destinations []transport.Config
}

// Build validates cfg against env. Every problem found is reported.
func Build(cfg *Config, env Env) (*Plan, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	var errs []error
	addErr := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	p := &Plan{
		Logging: logx.Config{
			Level:   cfg.Logging.Level,
			Console: cfg.Logging.Console,
			File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
		},
		RecNet: recnet.Config{
			AuthURL:     cfg.RecNet.AuthURL,
			AccountsURL: cfg.RecNet.AccountsURL,
			ClubsURL:    cfg.RecNet.ClubsURL,
			RoomsURL:    cfg.RecNet.RoomsURL,
			ImageURL:    cfg.RecNet.ImageURL,
		},
		Delivery: notify.DispatcherConfig{
			RatePerSec: cfg.Delivery.RatePerSec,
			Burst:      cfg.Delivery.Burst,
		},
	}

	var err error
	p.RecNet.Timeout, err = ParseDuration("recnet.timeout", cfg.RecNet.Timeout, recnet.DefaultTimeout)
	addErr(err)
	p.Delivery.Timeout, err = ParseDuration("delivery.timeout", cfg.Delivery.Timeout, notify.DefaultTimeout)
	addErr(err)
	if cfg.Delivery.RatePerSec < 0 || cfg.Delivery.Burst < 0 {
		addErr(errors.New("delivery: rate_per_sec and burst must be >= 0"))
	}
	if cfg.UpdateFrequency < 0 {
		addErr(errors.New("update_frequency must be >= 0"))
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			addErr(fmt.Errorf("storage.driver: unknown driver %q", st.Driver))
		}
		if _, err := ParseDuration("storage.busy_timeout", st.BusyTimeout, 0); err != nil {
			addErr(err)
		}
		p.Storage = st
	}

	p.Debug, err = DebugPlan(cfg.Debug)
	addErr(err)

	defaults, derr := destinations("destinations", cfg.Destinations)
	addErr(derr)

	if len(cfg.Trackers) == 0 {
		addErr(errors.New("trackers: at least one tracker required"))
	}
	needWebhook := false
	for i, tc := range cfg.Trackers {
		path := fmt.Sprintf("trackers[%d]", i)
		tp, err := trackerPlan(path, tc, legacySeconds(cfg.UpdateFrequency))
		if err != nil {
			addErr(err)
			continue
		}
		own, err := destinations(path+".destinations", tc.Destinations)
		if err != nil {
			addErr(err)
			continue
		}
		switch {
		case len(own) > 0:
			tp.Destinations = own
		case len(defaults) > 0:
			tp.Destinations = defaults
		default:
			needWebhook = true
			tp.Destinations = []transport.Config{{Type: transport.TypeDiscord, Name: "discord", URL: env.Webhook}}
		}
		if tp.Kind.NeedsCredential {
			p.Login = true
		}
		p.Trackers = append(p.Trackers, tp)
	}

	var required []string
	if p.Login {
		required = append(required, EnvUsername, EnvPassword)
	}
	if needWebhook {
		required = append(required, EnvWebhook)
	}
	addErr(env.Require(required...))
	p.Username, p.Password = env.Username, env.Password

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return p, nil
}

// DebugPlan validates the debug section. It never starts a listener.
func DebugPlan(dc DebugConfig) (debug.Config, error) {
	out := debug.Config{
		Enabled:       dc.Enabled,
		Addr:          strings.TrimSpace(dc.Addr),
		Token:         strings.TrimSpace(dc.Token),
		AllowInsecure: dc.AllowInsecure,
	}
	if out.Addr == "" {
		out.Addr = debug.DefaultAddr
	}
	if !out.Enabled {
		return out, nil
	}
	if _, _, err := net.SplitHostPort(out.Addr); err != nil {
		return out, fmt.Errorf("debug.addr: invalid %q (expected host:port): %w", out.Addr, err)
	}
	if !out.AllowInsecure && out.Token == "" && !debug.IsLoopback(out.Addr) {
		return out, errors.New("debug: binding to non-loopback addr requires token or allow_insecure")
	}
	return out, nil
}

// Validate is the reload hook: the same checks as Build, result discarded.
func Validate(cfg *Config, env Env) error {
	_, err := Build(cfg, env)
	return err
}

func trackerPlan(path string, tc TrackerConfig, legacy time.Duration) (TrackerPlan, error) {
	k, ok := entity.Lookup(tc.Kind)
	if !ok {
		return TrackerPlan{}, fmt.Errorf("%s.kind: unknown kind %q (want one of %s)", path, tc.Kind, strings.Join(entity.KindNames(), ", "))
	}
	tp := TrackerPlan{Kind: k, ID: tc.ID, Ref: tc.Ref()}

	if tc.ID < 0 {
		return tp, fmt.Errorf("%s.id: must be > 0", path)
	}
	if strings.TrimSpace(tc.Username) != "" && strings.TrimSpace(tc.Name) != "" {
		return tp, fmt.Errorf("%s: set username or name, not both", path)
	}
	switch k.Resource {
	case entity.ResourceAccount:
		if strings.TrimSpace(tc.Name) != "" {
			return tp, fmt.Errorf("%s.name: accounts are selected by id or username", path)
		}
	case entity.ResourceRoom:
		if strings.TrimSpace(tc.Username) != "" {
			return tp, fmt.Errorf("%s.username: rooms are selected by id or name", path)
		}
		if tc.ID == 0 && tp.Ref == "" {
			return tp, fmt.Errorf("%s: room id or name required", path)
		}
	}

	switch {
	case strings.TrimSpace(tc.Interval) != "":
		d, err := ParseInterval(tc.Interval)
		if err != nil {
			return tp, fmt.Errorf("%s.interval: %w", path, err)
		}
		tp.Interval = d
	case legacy > 0:
		tp.Interval = legacy
	case k.Resource == entity.ResourceAccount:
		tp.Interval = DefaultAccountInterval
	default:
		tp.Interval = DefaultRoomInterval
	}

	if strings.TrimSpace(tc.Schedule) != "" {
		sched, err := ParseSchedule(tc.Schedule)
		if err != nil {
			return tp, fmt.Errorf("%s.schedule: %w", path, err)
		}
		tp.Schedule = sched
		tp.ScheduleText = strings.TrimSpace(tc.Schedule)
	}
	return tp, nil
}

func destinations(path string, in []DestinationConfig) ([]transport.Config, error) {
	out := make([]transport.Config, 0, len(in))
	for i, d := range in {
		dp := fmt.Sprintf("%s[%d]", path, i)
		tc := transport.Config{
			Type:     strings.ToLower(strings.TrimSpace(d.Type)),
			Name:     strings.TrimSpace(d.Name),
			URL:      strings.TrimSpace(d.URL),
			Token:    strings.TrimSpace(d.Token),
			ChatID:   d.ChatID,
			ThreadID: d.ThreadID,
			APIURL:   strings.TrimSpace(d.APIURL),
		}
		switch tc.Type {
		case "", transport.TypeDiscord, transport.TypeSlack:
			if tc.URL == "" {
				return nil, fmt.Errorf("%s.url: webhook url required", dp)
			}
		case transport.TypeTelegram:
			if tc.Token == "" || tc.ChatID == 0 {
				return nil, fmt.Errorf("%s: telegram needs token and chat_id", dp)
			}
		default:
			return nil, fmt.Errorf("%s.type: unknown destination type %q", dp, d.Type)
		}
		out = append(out, tc)
	}
	return out, nil
}
