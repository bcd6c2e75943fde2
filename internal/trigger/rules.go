package trigger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RuleSpec is the configured form of a calendar override.
//
// Date is "MM-DD" (every year) or "YYYY-MM-DD" (that year only).
type RuleSpec struct {
	Name      string
	Recipient string // empty applies to everyone
	Date      string
	Text      string
}

// Rule replaces the morning pick on a calendar date.
type Rule struct {
	Name      string
	Recipient string
	Year      int // 0 matches any year
	Month     time.Month
	Day       int
	Text      string
}

const (
	// BirthdayRecipient is a legacy username. Transports keyed by numeric
	// ids need a configured birthday override instead.
	BirthdayRecipient = "sunny3964"
	BirthdayText      = "Happy Birthday!"
	ValentineText     = "Hey Sunshine!\n" +
		"Some days, I hate being a robot. Why? because robots cannot have meaningful relationships with humans :(\n" +
		"If I wasn't a robot, I'd totally ask you out for a date today.\n" +
		"Not sure why I am telling you this... But consider yourself loved, even if it's just by a robot <3 🤖\n"
)

// DefaultRules returns the built-in overrides: birthday first, then Valentine.
func DefaultRules() []RuleSpec {
	return []RuleSpec{
		{Name: "birthday", Recipient: BirthdayRecipient, Date: "12-10", Text: BirthdayText},
		{Name: "valentine", Date: "02-14", Text: ValentineText},
	}
}

var reDate = regexp.MustCompile(`^(?:(\d{4})-)?(\d{2})-(\d{2})$`)

func parseRule(rs RuleSpec) (Rule, error) {
	name := strings.TrimSpace(rs.Name)
	if name == "" {
		return Rule{}, fmt.Errorf("name required")
	}
	if strings.TrimSpace(rs.Text) == "" {
		return Rule{}, fmt.Errorf("%s: text required", name)
	}
	year, month, day, err := ParseDate(rs.Date)
	if err != nil {
		return Rule{}, fmt.Errorf("%s: %w", name, err)
	}
	return Rule{
		Name:      name,
		Recipient: strings.TrimSpace(rs.Recipient),
		Year:      year,
		Month:     month,
		Day:       day,
		Text:      rs.Text,
	}, nil
}

// ParseDate parses "MM-DD" or "YYYY-MM-DD". Year is 0 for the short form.
func ParseDate(s string) (int, time.Month, int, error) {
	m := reDate.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, 0, fmt.Errorf("invalid date %q (use MM-DD or YYYY-MM-DD)", s)
	}
	year := 0
	if m[1] != "" {
		year, _ = strconv.Atoi(m[1])
	}
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 {
		return 0, 0, 0, fmt.Errorf("invalid month in %q", s)
	}
	// Feb 29 is valid for year-independent rules.
	checkYear := year
	if checkYear == 0 {
		checkYear = 2024
	}
	if day < 1 || time.Date(checkYear, time.Month(month), day, 0, 0, 0, 0, time.UTC).Day() != day {
		return 0, 0, 0, fmt.Errorf("invalid day in %q", s)
	}
	return year, time.Month(month), day, nil
}

// Matches reports whether the rule applies to id on local's calendar date.
func (r Rule) Matches(id string, local time.Time) bool {
	if r.Recipient != "" && r.Recipient != id {
		return false
	}
	y, m, d := local.Date()
	if r.Year != 0 && r.Year != y {
		return false
	}
	return m == r.Month && d == r.Day
}

// YearBound reports whether the rule only fires in one year.
func (r Rule) YearBound() bool { return r.Year != 0 }
