package config

import (
	"reflect"

	logx "rrtracker/pkg/logx"
)

// SummarizeChange lists the top-level sections that differ and returns safe
// log fields for them (never tokens or webhook URLs). "logging" and "debug" are
// applied live; the rest is reported so the operator knows a restart is needed.
func SummarizeChange(oldCfg, newCfg *Config) (changed []string, fields []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		fields = append(fields, logx.Bool("debug.enabled", newCfg.Debug.Enabled))
	}
	if oldCfg.RecNet != newCfg.RecNet {
		changed = append(changed, "recnet")
	}
	if oldCfg.Delivery != newCfg.Delivery {
		changed = append(changed, "delivery")
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	if !reflect.DeepEqual(oldCfg.Destinations, newCfg.Destinations) {
		changed = append(changed, "destinations")
		fields = append(fields, logx.Int("destinations", len(newCfg.Destinations)))
	}
	if !reflect.DeepEqual(oldCfg.Trackers, newCfg.Trackers) || oldCfg.UpdateFrequency != newCfg.UpdateFrequency {
		changed = append(changed, "trackers")
		fields = append(fields, logx.Int("trackers", len(newCfg.Trackers)))
	}
	return changed, fields
}

// RestartRequired reports whether any changed section is not applied live.
func RestartRequired(changed []string) bool {
	for _, s := range changed {
		if s != "logging" && s != "debug" {
			return true
		}
	}
	return false
}
