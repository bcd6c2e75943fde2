package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, b []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(b), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err != nil {
			t.Fatalf("bad json line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLoggerFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "engine"))
	log.Debug("greeting scheduled", String("recipient", "u1"), Int("n", 2), Err(errors.New("boom")), Err(nil))
	log.Info("override", String("comp", "trigger"))

	lines := decodeLines(t, buf.Bytes())
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	first := lines[0]
	if first["message"] != "greeting scheduled" || first["comp"] != "engine" || first["recipient"] != "u1" || first["err"] != "boom" {
		t.Fatalf("first = %v", first)
	}
	if caller, _ := first["caller"].(string); !strings.HasPrefix(caller, "logging_test.go:") {
		t.Fatalf("caller = %q", first["caller"])
	}
	if lines[1]["comp"] != "trigger" {
		t.Fatalf("call fields should follow With fields: %v", lines[1])
	}
}

func TestZeroAndNopDiscard(t *testing.T) {
	t.Parallel()

	var zero Logger
	if !zero.IsZero() || Nop().IsZero() {
		t.Fatal("IsZero mismatch")
	}
	zero.Error("dropped")
	zero.With(String("k", "v")).Warn("dropped")
	Nop().Info("dropped")
}

func TestServiceApply(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "greetbot.log")
	svc, log := New(Config{Level: "warn", File: FileConfig{Enabled: true, Path: path}})

	log.Info("hidden")
	log.Warn("shown")

	svc.Apply(Config{Level: "warn", Debug: true, File: FileConfig{Enabled: true, Path: path}})
	log.Debug("debug flag wins")

	svc.Apply(Config{Level: "error", File: FileConfig{Enabled: true, Path: path}})
	log.Warn("hidden again")
	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var msgs []string
	for _, m := range decodeLines(t, b) {
		msgs = append(msgs, m["message"].(string))
	}
	if strings.Join(msgs, "|") != "shown|debug flag wins" {
		t.Fatalf("messages = %v", msgs)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"":        "info",
		"DEBUG":   "debug",
		" warn ":  "warn",
		"warning": "warn",
		"bogus":   "info",
		"trace":   "trace",
	} {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
