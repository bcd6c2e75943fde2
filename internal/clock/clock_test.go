package clock

import (
	"testing"
	"time"
)

func TestParseFakeTime(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-12-24T18:00:00+01:00", time.Date(2024, 12, 24, 17, 0, 0, 0, time.UTC)},
		{"2024-12-24 18:00:00", time.Date(2024, 12, 24, 18, 0, 0, 0, berlin)},
		{"2024-02-14 06:59", time.Date(2024, 2, 14, 6, 59, 0, 0, berlin)},
		{"2024-02-14", time.Date(2024, 2, 14, 0, 0, 0, 0, berlin)},
	}
	for _, tt := range tests {
		got, err := ParseFakeTime(tt.in, berlin)
		if err != nil {
			t.Fatalf("ParseFakeTime(%q): %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Fatalf("ParseFakeTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseFakeTime("yesterday", berlin); err == nil {
		t.Fatal("expected error")
	}
}

func TestOffsetStartsAtFakeTime(t *testing.T) {
	start := time.Date(2030, 1, 1, 0, 4, 0, 0, time.UTC)
	c, err := FromFakeTime("2030-01-01T00:04:00Z", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	got := c.Now()
	if d := got.Sub(start); d < 0 || d > time.Minute {
		t.Fatalf("Now = %v, want about %v", got, start)
	}

	c, err = FromFakeTime("", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(realClock); !ok {
		t.Fatalf("empty fake time should give the real clock, got %T", c)
	}
}

func TestManual(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManual(start)
	if got := m.Advance(90 * time.Minute); !got.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("Advance = %v", got)
	}
	m.Set(start)
	if !m.Now().Equal(start) {
		t.Fatalf("Set did not stick: %v", m.Now())
	}
}
