// Package clock abstracts wall time so the engine can run on a shifted or
// manually driven clock.
package clock

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Real returns the system clock.
func Real() Clock { return realClock{} }

// Offset runs at real speed but starts at a chosen instant.
type Offset struct {
	delta time.Duration
	base  func() time.Time
}

func NewOffset(start time.Time) *Offset {
	return &Offset{delta: time.Until(start), base: time.Now}
}

func (o *Offset) Now() time.Time { return o.base().Add(o.delta) }

// Manual only moves when told to.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual { return &Manual{now: start} }

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

var fakeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseFakeTime parses a fake start instant. Values without an offset are
// read in loc.
func ParseFakeTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("fake time is empty")
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range fakeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("fake time %q: unsupported format", s)
}

// FromFakeTime returns the real clock when s is empty, otherwise an Offset
// clock starting at the parsed instant.
func FromFakeTime(s string, loc *time.Location) (Clock, error) {
	if strings.TrimSpace(s) == "" {
		return Real(), nil
	}
	start, err := ParseFakeTime(s, loc)
	if err != nil {
		return nil, err
	}
	return NewOffset(start), nil
}
