package trigger

import (
	"strings"
	"testing"
	"time"

	"greetbot/internal/models"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func defaultTrigger(t *testing.T) *Trigger {
	t.Helper()
	tr, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func firingByName(t *testing.T, tr *Trigger, name string) Firing {
	t.Helper()
	for _, f := range tr.Firings() {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("firing %q not found", name)
	return Firing{}
}

func TestDefaultFiringsNext(t *testing.T) {
	t.Parallel()
	berlin := mustLoc(t, "Europe/Berlin")
	la := mustLoc(t, "America/Los_Angeles")
	tr := defaultTrigger(t)

	from := time.Date(2017, 8, 9, 6, 59, 59, 0, berlin)
	tests := []struct {
		name string
		want time.Time
	}{
		{"morning.de", time.Date(2017, 8, 9, 7, 0, 0, 0, berlin)},
		{"morning.la", time.Date(2017, 8, 9, 7, 0, 0, 0, la)},
		{"evening.de", time.Date(2017, 8, 9, 20, 0, 0, 0, berlin)},
		{"evening.la", time.Date(2017, 8, 9, 20, 0, 0, 0, la)},
		{"christmas", time.Date(2017, 12, 24, 18, 0, 0, 0, berlin)},
		{"newyear", time.Date(2018, 1, 1, 0, 5, 0, 0, berlin)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := firingByName(t, tr, tt.name)
			if got := f.Next(from); !got.Equal(tt.want) {
				t.Fatalf("Next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFiringScope(t *testing.T) {
	t.Parallel()
	tr := defaultTrigger(t)
	de := firingByName(t, tr, "morning.de")
	if !de.Matches(models.ZoneDE) || de.Matches(models.ZoneLA) {
		t.Fatalf("morning.de scope wrong")
	}
	xmas := firingByName(t, tr, "christmas")
	if !xmas.Matches(models.ZoneDE) || !xmas.Matches(models.ZoneLA) {
		t.Fatalf("christmas must apply to every zone")
	}
	if xmas.Jitter != 30*time.Minute || xmas.Text != ChristmasText {
		t.Fatalf("christmas = %+v", xmas)
	}
	if firingByName(t, tr, "evening.la").Jitter != 2*time.Hour {
		t.Fatalf("evening jitter should be 2h")
	}
}

func TestResolveMorningPrecedence(t *testing.T) {
	t.Parallel()
	tr := defaultTrigger(t)
	berlin := mustLoc(t, "Europe/Berlin")

	tests := []struct {
		name     string
		id       string
		at       time.Time
		wantRule string
	}{
		{"birthday", BirthdayRecipient, time.Date(2019, 12, 10, 7, 0, 0, 0, berlin), "birthday"},
		{"birthday other recipient", "someone", time.Date(2019, 12, 10, 7, 0, 0, 0, berlin), ""},
		{"valentine", "someone", time.Date(2021, 2, 14, 7, 30, 0, 0, berlin), "valentine"},
		{"valentine birthday recipient", BirthdayRecipient, time.Date(2021, 2, 14, 7, 30, 0, 0, berlin), "valentine"},
		{"ordinary day", "someone", time.Date(2021, 2, 15, 7, 0, 0, 0, berlin), ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			r, ok := tr.ResolveMorning(tt.id, tt.at)
			if tt.wantRule == "" {
				if ok {
					t.Fatalf("unexpected override %q", r.Name)
				}
				return
			}
			if !ok || r.Name != tt.wantRule {
				t.Fatalf("override = %q (%v), want %q", r.Name, ok, tt.wantRule)
			}
		})
	}
}

func TestBirthdayWinsOverLaterRule(t *testing.T) {
	t.Parallel()
	tr, err := New(nil, []RuleSpec{
		{Name: "birthday", Recipient: "u1", Date: "02-14", Text: BirthdayText},
		{Name: "valentine", Date: "02-14", Text: ValentineText},
	})
	if err != nil {
		t.Fatal(err)
	}
	at := time.Date(2022, 2, 14, 7, 0, 0, 0, time.UTC)
	if r, _ := tr.ResolveMorning("u1", at); r.Name != "birthday" {
		t.Fatalf("u1 got %q, want birthday", r.Name)
	}
	if r, _ := tr.ResolveMorning("u2", at); r.Name != "valentine" {
		t.Fatalf("u2 got %q, want valentine", r.Name)
	}
}

func TestValentineTextMentionsDate(t *testing.T) {
	t.Parallel()
	if !strings.Contains(strings.ToLower(ValentineText), "date") {
		t.Fatal("valentine text must contain \"date\"")
	}
}

func TestYearBoundRules(t *testing.T) {
	t.Parallel()
	tr, err := New(nil, []RuleSpec{
		{Name: "once", Date: "2024-12-10", Text: "only in 2024"},
		{Name: "yearly", Date: "12-10", Text: "every year"},
	})
	if err != nil {
		t.Fatal(err)
	}
	r, ok := tr.ResolveMorning("u1", time.Date(2024, 12, 10, 7, 0, 0, 0, time.UTC))
	if !ok || r.Name != "once" || !r.YearBound() {
		t.Fatalf("2024 = %+v, %v", r, ok)
	}
	r, ok = tr.ResolveMorning("u1", time.Date(2025, 12, 10, 7, 0, 0, 0, time.UTC))
	if !ok || r.Name != "yearly" || r.YearBound() {
		t.Fatalf("2025 = %+v, %v", r, ok)
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()
	good := []string{"02-14", "12-10", "02-29", "2024-02-29", " 01-01 "}
	for _, s := range good {
		if _, _, _, err := ParseDate(s); err != nil {
			t.Fatalf("ParseDate(%q): %v", s, err)
		}
	}
	bad := []string{"", "2-14", "13-01", "02-30", "2023-02-29", "christmas"}
	for _, s := range bad {
		if _, _, _, err := ParseDate(s); err == nil {
			t.Fatalf("ParseDate(%q) should fail", s)
		}
	}
}

func TestNewRejectsInvalidFirings(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		spec FiringSpec
	}{
		{"bad cron", FiringSpec{Name: "x", Cron: "not cron", Action: ActionMorning}},
		{"bad zone", FiringSpec{Name: "x", Cron: "0 7 * * *", Zone: "tokyo", Action: ActionMorning}},
		{"bad action", FiringSpec{Name: "x", Cron: "0 7 * * *", Action: "lunch"}},
		{"fixed without text", FiringSpec{Name: "x", Cron: "0 7 * * *", Action: ActionFixed}},
		{"missing name", FiringSpec{Cron: "0 7 * * *", Action: ActionMorning}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New([]FiringSpec{tt.spec}, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEmptyRulesDisableOverrides(t *testing.T) {
	t.Parallel()
	tr, err := New(nil, []RuleSpec{})
	if err != nil {
		t.Fatal(err)
	}
	if n := len(tr.Rules()); n != 0 {
		t.Fatalf("rules = %d, want 0", n)
	}
	if r, ok := tr.ResolveMorning("u1", time.Date(2025, 2, 14, 7, 0, 0, 0, time.UTC)); ok {
		t.Fatalf("override %q fired with overrides disabled", r.Name)
	}
}
