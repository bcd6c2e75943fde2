package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitTextShortPassesThrough(t *testing.T) {
	t.Parallel()
	got := splitText("hello", 10)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitText(s, 10)
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextHardCutOnRunes(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("🤖", 25)
	got := splitText(s, 10)
	if len(got) != 3 {
		t.Fatalf("chunks = %d, want 3", len(got))
	}
	for _, c := range got {
		if n := utf8.RuneCountInString(c); n > 10 {
			t.Fatalf("chunk has %d runes", n)
		}
	}
	if strings.Join(got, "") != s {
		t.Fatal("chunks do not reassemble the input")
	}
}

func TestParseChatID(t *testing.T) {
	t.Parallel()
	if id, err := parseChatID(" -100123 "); err != nil || id != -100123 {
		t.Fatalf("parseChatID = %d, %v", id, err)
	}
	if _, err := parseChatID("sunny3964"); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

func TestTimezoneFor(t *testing.T) {
	t.Parallel()
	a := &Adapter{cfg: Config{
		DefaultTimezone: "Europe/Vienna",
		Timezones:       map[string]string{"42": "America/Los_Angeles"},
	}}
	if got := a.timezoneFor("42"); got != "America/Los_Angeles" {
		t.Fatalf("timezoneFor(42) = %q", got)
	}
	if got := a.timezoneFor("7"); got != "Europe/Vienna" {
		t.Fatalf("timezoneFor(7) = %q", got)
	}
	if got := (&Adapter{}).timezoneFor("7"); got != "Europe/Berlin" {
		t.Fatalf("fallback = %q", got)
	}
}
