package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Debug forces debug logging regardless of logging.level.
	Debug bool `json:"debug,omitempty"`

	// FakeTime starts the engine clock at this instant (RFC3339 or
	// "2006-01-02 15:04:05" in Europe/Berlin). Empty means the real clock.
	FakeTime string `json:"fake_time,omitempty"`

	Catalog  CatalogConfig  `json:"catalog"`
	Schedule ScheduleConfig `json:"schedule,omitempty"`

	// Overrides replace the built-in morning overrides when present. An
	// explicit empty list turns overrides off.
	Overrides []OverrideConfig `json:"overrides"`

	Outbox  *OutboxConfig  `json:"outbox,omitempty"`
	Storage *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`

	// DefaultTimezone is reported for chats missing from Timezones.
	// Default: Europe/Berlin.
	DefaultTimezone string `json:"default_timezone,omitempty"`
	// Timezones maps chat ids to IANA zone names.
	Timezones map[string]string `json:"timezones,omitempty"`
}

type LoggingConfig struct {
	Level string `json:"level"`
	// Format is "console" (default) or "json" for stdout.
	Format  string      `json:"format,omitempty"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// CatalogConfig points at one text file per mode.
//
// Example:
//
//	catalog: { sweet: ./texts/sweet.yaml, insult: ./texts/insult.yaml }
type CatalogConfig struct {
	Sweet  string `json:"sweet"`
	Insult string `json:"insult"`
}

// ScheduleConfig replaces the default firings when Firings is non-empty.
type ScheduleConfig struct {
	Firings []FiringConfig `json:"firings,omitempty"`
}

type FiringConfig struct {
	Name string `json:"name"`
	// Cron is a five-field spec, usually prefixed with CRON_TZ=<zone>.
	Cron string `json:"cron"`
	// Zone is "de", "la" or "all".
	Zone string `json:"zone"`
	// Jitter is a Go duration string.
	Jitter string `json:"jitter,omitempty"`
	// Action is "morning", "evening" or "fixed".
	Action string `json:"action"`
	Text   string `json:"text,omitempty"`
}

// OverrideConfig is a dated morning text. Date is MM-DD (every year) or
// YYYY-MM-DD (that year only).
type OverrideConfig struct {
	Name      string `json:"name"`
	Recipient string `json:"recipient,omitempty"`
	Date      string `json:"date"`
	Text      string `json:"text"`
}

// OutboxConfig controls outbound delivery.
//
// Defaults (when fields are omitted/zero):
//   - workers: 1
//   - queue_size: 256
//   - rate_per_sec: 20
//   - send_timeout: "15s"
type OutboxConfig struct {
	Workers     int     `json:"workers,omitempty"`
	QueueSize   int     `json:"queue_size,omitempty"`
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
	Burst       int     `json:"burst,omitempty"`
	SendTimeout string  `json:"send_timeout,omitempty"`
}

// StorageConfig selects where the roster lives.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/greetbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
