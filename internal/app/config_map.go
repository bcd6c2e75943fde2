package app

import (
	"fmt"
	"strings"
	"time"

	"greetbot/internal/config"
	"greetbot/internal/models"
	"greetbot/internal/outbox"
	"greetbot/internal/storage"
	telegram "greetbot/internal/transport/telegram/adapter"
	"greetbot/internal/trigger"
	logx "greetbot/pkg/logx"
)

// homeTimezone is where fake_time values without an offset are read.
const homeTimezone = "Europe/Berlin"

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Debug: cfg.Debug,
	}
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	tz := strings.TrimSpace(cfg.Telegram.DefaultTimezone)
	if tz == "" {
		tz = homeTimezone
	}
	return telegram.Config{
		Token:           cfg.Telegram.Token,
		PollTimeout:     poll,
		DefaultTimezone: tz,
		Timezones:       cfg.Telegram.Timezones,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{Driver: "memory"}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none", "memory":
		return storage.Config{Driver: "memory"}, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapOutboxConfig(cfg *config.Config) (outbox.Config, error) {
	if cfg.Outbox == nil {
		return outbox.Config{}, nil
	}
	o := cfg.Outbox
	timeout, err := config.ParseDurationField("outbox.send_timeout", o.SendTimeout)
	if err != nil {
		return outbox.Config{}, err
	}
	return outbox.Config{
		Workers:     o.Workers,
		QueueSize:   o.QueueSize,
		RatePerSec:  o.RatePerSec,
		Burst:       o.Burst,
		SendTimeout: timeout,
	}, nil
}

func mapCatalogFiles(cfg *config.Config) map[models.Mode]string {
	return map[models.Mode]string{
		models.ModeSweet:  cfg.Catalog.Sweet,
		models.ModeInsult: cfg.Catalog.Insult,
	}
}

// mapTrigger builds the trigger from the schedule and overrides sections.
// An omitted schedule or overrides section keeps the built-in defaults.
func mapTrigger(cfg *config.Config) (*trigger.Trigger, error) {
	var firings []trigger.FiringSpec
	for i, f := range cfg.Schedule.Firings {
		jitter, err := config.ParseDurationField(fmt.Sprintf("schedule.firings[%d].jitter", i), f.Jitter)
		if err != nil {
			return nil, err
		}
		firings = append(firings, trigger.FiringSpec{
			Name:   f.Name,
			Cron:   f.Cron,
			Zone:   f.Zone,
			Jitter: jitter,
			Action: trigger.Action(strings.ToLower(strings.TrimSpace(f.Action))),
			Text:   f.Text,
		})
	}
	// nil keeps the built-in overrides; an explicit empty list disables them.
	var rules []trigger.RuleSpec
	if cfg.Overrides != nil {
		rules = make([]trigger.RuleSpec, 0, len(cfg.Overrides))
	}
	for _, o := range cfg.Overrides {
		rules = append(rules, trigger.RuleSpec{Name: o.Name, Recipient: o.Recipient, Date: o.Date, Text: o.Text})
	}
	return trigger.New(firings, rules)
}
