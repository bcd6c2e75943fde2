// Package models holds the domain types shared by the greeting engine.
package models

import (
	"fmt"
	"strings"
)

// Mode selects the content set a recipient receives.
type Mode string

const (
	ModeSweet  Mode = "sweet"
	ModeInsult Mode = "insult"
)

// Modes lists every supported mode.
var Modes = []Mode{ModeSweet, ModeInsult}

func (m Mode) Valid() bool { return m == ModeSweet || m == ModeInsult }

// ParseMode accepts "sweet" or "insult" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("invalid mode %q", s)
	}
	return m, nil
}

// Zone is a coarse timezone bucket.
type Zone string

const (
	// ZonePending marks a recipient whose profile lookup has not resolved yet.
	ZonePending Zone = ""
	ZoneDE      Zone = "de"
	ZoneLA      Zone = "la"
)

// DefaultZone is used wherever a zone is still pending.
const DefaultZone = ZoneDE

func (z Zone) Valid() bool { return z == ZoneDE || z == ZoneLA }

func ParseZone(s string) (Zone, error) {
	z := Zone(strings.ToLower(strings.TrimSpace(s)))
	if !z.Valid() {
		return "", fmt.Errorf("invalid zone %q", s)
	}
	return z, nil
}

// ZoneForTimezone maps an IANA timezone name to a bucket: anything in
// America/ goes to la, everything else to de.
func ZoneForTimezone(tz string) Zone {
	if strings.HasPrefix(strings.TrimSpace(tz), "America/") {
		return ZoneLA
	}
	return ZoneDE
}

// Slot is the message category.
type Slot string

const (
	SlotMorning Slot = "morning"
	SlotNight   Slot = "night"
)

func (s Slot) Valid() bool { return s == SlotMorning || s == SlotNight }

// Recipient is the per-recipient state owned by the registry.
type Recipient struct {
	ID            string
	Mode          Mode
	Zone          Zone
	MorningWindow []string
	NightWindow   []string
}

// NewRecipient returns a fully initialized record with defaults.
func NewRecipient(id string) Recipient {
	return Recipient{
		ID:            id,
		Mode:          ModeSweet,
		Zone:          ZonePending,
		MorningWindow: []string{},
		NightWindow:   []string{},
	}
}

// EffectiveZone returns the stored zone, or DefaultZone while pending.
func (r Recipient) EffectiveZone() Zone {
	if r.Zone.Valid() {
		return r.Zone
	}
	return DefaultZone
}

// Window returns the recent-use window for slot.
func (r Recipient) Window(slot Slot) []string {
	if slot == SlotNight {
		return r.NightWindow
	}
	return r.MorningWindow
}

// Clone returns a deep copy.
func (r Recipient) Clone() Recipient {
	cp := r
	cp.MorningWindow = append([]string{}, r.MorningWindow...)
	cp.NightWindow = append([]string{}, r.NightWindow...)
	return cp
}
