// Package trigger defines when greetings fire and which calendar overrides
// replace the normal morning pick.
//
// Firings are cron expressions (robfig/cron syntax, CRON_TZ= prefix for the
// zone). The trigger only computes fire times; the engine owns the timers.
package trigger

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"greetbot/internal/models"
)

// Action is what a firing produces for each recipient in scope.
type Action string

const (
	ActionMorning Action = "morning"
	ActionEvening Action = "evening"
	ActionFixed   Action = "fixed"
)

func (a Action) Valid() bool {
	return a == ActionMorning || a == ActionEvening || a == ActionFixed
}

// FiringSpec is the configured form of a firing.
type FiringSpec struct {
	Name   string
	Cron   string
	Zone   string // "de", "la", or "" / "all" for every recipient
	Jitter time.Duration
	Action Action
	Text   string // ActionFixed only
}

// Firing is a parsed FiringSpec.
type Firing struct {
	Name     string
	Cron     string
	Zone     models.Zone // ZonePending means every recipient
	AllZones bool
	Jitter   time.Duration
	Action   Action
	Text     string
	Location *time.Location

	schedule cron.Schedule
}

// Next returns the first fire time strictly after t.
func (f Firing) Next(t time.Time) time.Time { return f.schedule.Next(t) }

// Matches reports whether a recipient in zone z is in scope.
func (f Firing) Matches(z models.Zone) bool { return f.AllZones || f.Zone == z }

const (
	ChristmasText = "Merry Christmas, Beautiful!"
	NewYearText   = "Happy New Year, My Angel <3"
)

// DefaultFirings returns the built-in schedule.
func DefaultFirings() []FiringSpec {
	return []FiringSpec{
		{Name: "morning.de", Cron: "CRON_TZ=Europe/Berlin 0 7 * * *", Zone: "de", Jitter: time.Hour, Action: ActionMorning},
		{Name: "morning.la", Cron: "CRON_TZ=America/Los_Angeles 0 7 * * *", Zone: "la", Jitter: time.Hour, Action: ActionMorning},
		{Name: "evening.de", Cron: "CRON_TZ=Europe/Berlin 0 20 * * *", Zone: "de", Jitter: 2 * time.Hour, Action: ActionEvening},
		{Name: "evening.la", Cron: "CRON_TZ=America/Los_Angeles 0 20 * * *", Zone: "la", Jitter: 2 * time.Hour, Action: ActionEvening},
		{Name: "christmas", Cron: "CRON_TZ=Europe/Berlin 0 18 24 12 *", Zone: "all", Jitter: 30 * time.Minute, Action: ActionFixed, Text: ChristmasText},
		{Name: "newyear", Cron: "CRON_TZ=Europe/Berlin 5 0 1 1 *", Zone: "all", Jitter: 5 * time.Minute, Action: ActionFixed, Text: NewYearText},
	}
}

// Trigger holds the parsed firings and override rules.
type Trigger struct {
	firings []Firing
	rules   []Rule
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New parses firings and rules. No firings falls back to DefaultFirings. A
// nil rules slice falls back to DefaultRules; an empty one means no overrides.
func New(firings []FiringSpec, rules []RuleSpec) (*Trigger, error) {
	if len(firings) == 0 {
		firings = DefaultFirings()
	}
	if rules == nil {
		rules = DefaultRules()
	}
	t := &Trigger{}
	seen := map[string]struct{}{}
	for i, fs := range firings {
		f, err := parseFiring(fs)
		if err != nil {
			return nil, fmt.Errorf("firing[%d]: %w", i, err)
		}
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("firing[%d]: duplicate name %q", i, f.Name)
		}
		seen[f.Name] = struct{}{}
		t.firings = append(t.firings, f)
	}
	for i, rs := range rules {
		r, err := parseRule(rs)
		if err != nil {
			return nil, fmt.Errorf("override[%d]: %w", i, err)
		}
		t.rules = append(t.rules, r)
	}
	return t, nil
}

func parseFiring(fs FiringSpec) (Firing, error) {
	name := strings.TrimSpace(fs.Name)
	if name == "" {
		return Firing{}, fmt.Errorf("name required")
	}
	expr := strings.TrimSpace(fs.Cron)
	if expr == "" {
		return Firing{}, fmt.Errorf("%s: cron required", name)
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return Firing{}, fmt.Errorf("%s: %w", name, err)
	}
	loc := time.Local
	if ss, ok := sched.(*cron.SpecSchedule); ok && ss.Location != nil {
		loc = ss.Location
	}

	f := Firing{
		Name:     name,
		Cron:     expr,
		Jitter:   fs.Jitter,
		Action:   fs.Action,
		Text:     fs.Text,
		Location: loc,
		schedule: sched,
	}
	switch z := strings.ToLower(strings.TrimSpace(fs.Zone)); z {
	case "", "all", "*":
		f.AllZones = true
	default:
		zone, err := models.ParseZone(z)
		if err != nil {
			return Firing{}, fmt.Errorf("%s: %w", name, err)
		}
		f.Zone = zone
	}
	if f.Jitter < 0 {
		return Firing{}, fmt.Errorf("%s: jitter must be >= 0", name)
	}
	if !f.Action.Valid() {
		return Firing{}, fmt.Errorf("%s: invalid action %q", name, fs.Action)
	}
	if f.Action == ActionFixed && strings.TrimSpace(f.Text) == "" {
		return Firing{}, fmt.Errorf("%s: fixed firing needs text", name)
	}
	return f, nil
}

// Firings returns the parsed firings in configured order.
func (t *Trigger) Firings() []Firing { return append([]Firing(nil), t.firings...) }

// Rules returns the override rules in evaluation order.
func (t *Trigger) Rules() []Rule { return append([]Rule(nil), t.rules...) }

// ResolveMorning returns the first override matching recipient id at local,
// which must already be in the firing zone's location.
func (t *Trigger) ResolveMorning(id string, local time.Time) (Rule, bool) {
	for _, r := range t.rules {
		if r.Matches(id, local) {
			return r, true
		}
	}
	return Rule{}, false
}
