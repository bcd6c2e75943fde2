package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks field-level constraints. Cron specs and override dates
// are checked by the components that parse them.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	_, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout)
	add(err)
	if tz := strings.TrimSpace(c.Telegram.DefaultTimezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("telegram.default_timezone: invalid %q: %w", tz, err))
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		add(fmt.Errorf("logging.format: unknown %q (console|json)", c.Logging.Format))
	}

	if strings.TrimSpace(c.Catalog.Sweet) == "" {
		add(errors.New("catalog.sweet is required"))
	}
	if strings.TrimSpace(c.Catalog.Insult) == "" {
		add(errors.New("catalog.insult is required"))
	}

	for i, f := range c.Schedule.Firings {
		path := fmt.Sprintf("schedule.firings[%d]", i)
		if strings.TrimSpace(f.Name) == "" {
			add(fmt.Errorf("%s.name is required", path))
		}
		_, err := ParseDurationField(path+".jitter", f.Jitter)
		add(err)
	}
	for i, o := range c.Overrides {
		if strings.TrimSpace(o.Name) == "" || strings.TrimSpace(o.Date) == "" {
			add(fmt.Errorf("overrides[%d]: name and date are required", i))
		}
	}

	if o := c.Outbox; o != nil {
		if o.Workers < 0 || o.QueueSize < 0 || o.Burst < 0 || o.RatePerSec < 0 {
			add(errors.New("outbox: workers, queue_size, burst and rate_per_sec must be >= 0"))
		}
		_, err := ParseDurationField("outbox.send_timeout", o.SendTimeout)
		add(err)
	}

	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "memory":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				add(fmt.Errorf("storage.path is required when storage.driver=%s", s.Driver))
			}
		default:
			add(fmt.Errorf("unknown storage.driver: %s", s.Driver))
		}
		_, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout)
		add(err)
	}

	return errors.Join(errs...)
}
