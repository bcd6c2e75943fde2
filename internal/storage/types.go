package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Store persists the recipient roster and an append-only audit log.
//
// Save replaces the whole persisted state; callers pass a full snapshot.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, st State) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "memory": in-process only (default when Driver is empty)
//   - "file": JSON state file + JSONL audit log
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// State is the persisted roster. Pending zones are not stored.
type State struct {
	Recipients     []string            `json:"recipients"`
	Modes          map[string]string   `json:"modes"`
	Zones          map[string]string   `json:"zones"`
	MorningWindows map[string][]string `json:"morning_windows"`
	NightWindows   map[string][]string `json:"night_windows"`
}

// NewState returns an empty state with all maps allocated.
func NewState() State {
	return State{
		Recipients:     []string{},
		Modes:          map[string]string{},
		Zones:          map[string]string{},
		MorningWindows: map[string][]string{},
		NightWindows:   map[string][]string{},
	}
}

// normalize fills nil maps so decoded states are safe to index.
func (s State) normalize() State {
	if s.Recipients == nil {
		s.Recipients = []string{}
	}
	if s.Modes == nil {
		s.Modes = map[string]string{}
	}
	if s.Zones == nil {
		s.Zones = map[string]string{}
	}
	if s.MorningWindows == nil {
		s.MorningWindows = map[string][]string{}
	}
	if s.NightWindows == nil {
		s.NightWindows = map[string][]string{}
	}
	return s
}

// Clone returns a deep copy.
func (s State) Clone() State {
	s = s.normalize()
	out := NewState()
	out.Recipients = append(out.Recipients, s.Recipients...)
	for k, v := range s.Modes {
		out.Modes[k] = v
	}
	for k, v := range s.Zones {
		out.Zones[k] = v
	}
	for k, v := range s.MorningWindows {
		out.MorningWindows[k] = append([]string{}, v...)
	}
	for k, v := range s.NightWindows {
		out.NightWindows[k] = append([]string{}, v...)
	}
	return out
}

// AuditEntry records a command executed on behalf of a recipient.
type AuditEntry struct {
	At        time.Time `json:"at"`
	Recipient string    `json:"recipient"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
}
