package config

import (
	"reflect"
	"sort"
	"strings"

	logx "greetbot/pkg/logx"
)

// SummarizeConfigChange returns the changed section names and log fields
// describing the new values. Tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		strings.TrimSpace(ot.DefaultTimezone) != strings.TrimSpace(nt.DefaultTimezone) ||
		!reflect.DeepEqual(ot.Timezones, nt.Timezones) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
			logx.String("telegram.default_timezone", strings.TrimSpace(nt.DefaultTimezone)),
			logx.Int("telegram.timezones", len(nt.Timezones)),
		)
	}

	if oldCfg.Logging != newCfg.Logging || oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("debug", newCfg.Debug),
		)
	}

	if strings.TrimSpace(oldCfg.FakeTime) != strings.TrimSpace(newCfg.FakeTime) {
		changed = append(changed, "fake_time")
		attrs = append(attrs, logx.String("fake_time", strings.TrimSpace(newCfg.FakeTime)))
	}

	if oldCfg.Catalog != newCfg.Catalog {
		changed = append(changed, "catalog")
		attrs = append(attrs,
			logx.String("catalog.sweet", newCfg.Catalog.Sweet),
			logx.String("catalog.insult", newCfg.Catalog.Insult),
		)
	}

	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) {
		changed = append(changed, "schedule")
		attrs = append(attrs, logx.Int("schedule.firings", len(newCfg.Schedule.Firings)))
	}

	if !reflect.DeepEqual(oldCfg.Overrides, newCfg.Overrides) {
		changed = append(changed, "overrides")
		attrs = append(attrs, logx.Int("overrides", len(newCfg.Overrides)))
	}

	if !reflect.DeepEqual(derefOutbox(oldCfg.Outbox), derefOutbox(newCfg.Outbox)) {
		changed = append(changed, "outbox")
		n := derefOutbox(newCfg.Outbox)
		attrs = append(attrs,
			logx.Int("outbox.workers", n.Workers),
			logx.Int("outbox.queue_size", n.QueueSize),
			logx.Any("outbox.rate_per_sec", n.RatePerSec),
			logx.String("outbox.send_timeout", strings.TrimSpace(n.SendTimeout)),
		)
	}

	// Nil means memory.
	var oDriver, nDriver, oBusy, nBusy, oPath, nPath string
	if s := oldCfg.Storage; s != nil {
		oDriver, oBusy, oPath = strings.TrimSpace(s.Driver), strings.TrimSpace(s.BusyTimeout), strings.TrimSpace(s.Path)
	}
	if s := newCfg.Storage; s != nil {
		nDriver, nBusy, nPath = strings.TrimSpace(s.Driver), strings.TrimSpace(s.BusyTimeout), strings.TrimSpace(s.Path)
	}
	if oDriver != nDriver || oBusy != nBusy || oPath != nPath {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPath != ""),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefOutbox(o *OutboxConfig) OutboxConfig {
	if o == nil {
		return OutboxConfig{}
	}
	return *o
}

// LiveSections can be applied without a restart.
var LiveSections = map[string]bool{
	"logging": true,
	"outbox":  true,
}

// RestartRequired returns the changed sections that only take effect after
// a restart.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		if !LiveSections[s] {
			out = append(out, s)
		}
	}
	return out
}
