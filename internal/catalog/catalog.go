// Package catalog holds the static greeting texts, keyed by mode and slot.
//
// A catalog is loaded once at startup and never mutated afterwards. Each mode
// file is a YAML (or JSON) document:
//
//	morning:
//	  - "Good morning sunshine"
//	night:
//	  - "Sleep tight"
//
// A missing night list falls back to the morning list.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	"greetbot/internal/models"
)

var ErrEmpty = errors.New("catalog slot is empty")

type Catalog struct {
	texts map[models.Mode]map[models.Slot][]string
}

type modeFile struct {
	Morning []string `yaml:"morning"`
	Night   []string `yaml:"night"`
}

// LoadFiles reads one file per mode. Every mode in models.Modes is required.
func LoadFiles(files map[models.Mode]string) (*Catalog, error) {
	raw := make(map[models.Mode]map[models.Slot][]string, len(files))
	for _, mode := range models.Modes {
		path := strings.TrimSpace(files[mode])
		if path == "" {
			return nil, fmt.Errorf("catalog: no file configured for mode %q", mode)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", path, err)
		}
		mf, err := decodeModeFile(b)
		if err != nil {
			return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
		}
		raw[mode] = map[models.Slot][]string{
			models.SlotMorning: mf.Morning,
			models.SlotNight:   mf.Night,
		}
	}
	return New(raw)
}

// decodeModeFile rejects unknown keys so a misspelled slot is not silently
// replaced by the morning fallback.
func decodeModeFile(b []byte) (modeFile, error) {
	var mf modeFile
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&mf); err != nil && !errors.Is(err, io.EOF) {
		return modeFile{}, err
	}
	return mf, nil
}

// New validates and copies texts. The night slot of a mode falls back to its
// morning slot when absent.
func New(texts map[models.Mode]map[models.Slot][]string) (*Catalog, error) {
	c := &Catalog{texts: make(map[models.Mode]map[models.Slot][]string, len(texts))}
	for _, mode := range models.Modes {
		slots, ok := texts[mode]
		if !ok {
			return nil, fmt.Errorf("catalog: mode %q missing", mode)
		}
		morning := slots[models.SlotMorning]
		night := slots[models.SlotNight]
		if len(night) == 0 {
			night = morning
		}
		if err := validate(mode, models.SlotMorning, morning); err != nil {
			return nil, err
		}
		if err := validate(mode, models.SlotNight, night); err != nil {
			return nil, err
		}
		c.texts[mode] = map[models.Slot][]string{
			models.SlotMorning: append([]string(nil), morning...),
			models.SlotNight:   append([]string(nil), night...),
		}
	}
	return c, nil
}

func validate(mode models.Mode, slot models.Slot, texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("catalog: %s/%s: %w", mode, slot, ErrEmpty)
	}
	seen := make(map[string]struct{}, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("catalog: %s/%s[%d] is blank", mode, slot, i)
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("catalog: %s/%s has duplicate text %q", mode, slot, t)
		}
		seen[t] = struct{}{}
	}
	return nil
}

// Texts returns the ordered candidates for mode and slot. The returned slice
// must not be modified.
func (c *Catalog) Texts(mode models.Mode, slot models.Slot) []string {
	if c == nil {
		return nil
	}
	return c.texts[mode][slot]
}

// Contains reports whether text appears in any slot of any mode.
func (c *Catalog) Contains(text string) bool {
	if c == nil {
		return false
	}
	for _, slots := range c.texts {
		for _, texts := range slots {
			for _, t := range texts {
				if t == text {
					return true
				}
			}
		}
	}
	return false
}

// Size returns the number of candidates for mode and slot.
func (c *Catalog) Size(mode models.Mode, slot models.Slot) int { return len(c.Texts(mode, slot)) }
