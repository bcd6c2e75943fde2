package selector

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"greetbot/internal/catalog"
	"greetbot/internal/models"
	"greetbot/internal/registry"
	"greetbot/internal/storage"
	logx "greetbot/pkg/logx"
)

func newCatalog(t *testing.T, morning []string) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(map[models.Mode]map[models.Slot][]string{
		models.ModeSweet:  {models.SlotMorning: morning},
		models.ModeInsult: {models.SlotMorning: {"ugh", "meh"}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

func newSelector(t *testing.T, cat *catalog.Catalog, seed uint64) (*Selector, *registry.Registry) {
	t.Helper()
	reg := registry.New(storage.NewMemory(), logx.Nop())
	if _, err := reg.Add(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	return New(cat, reg, rand.New(rand.NewPCG(seed, seed+1)), logx.Nop()), reg
}

func TestWindowBound(t *testing.T) {
	ctx := context.Background()
	for _, n := range []int{1, 2, 3, 4, 7, 10} {
		texts := make([]string, n)
		for i := range texts {
			texts[i] = string(rune('a' + i))
		}
		sel, reg := newSelector(t, newCatalog(t, texts), uint64(n))
		for i := 0; i < 50; i++ {
			if _, err := sel.Select(ctx, "u1", models.SlotMorning); err != nil {
				t.Fatalf("n=%d Select: %v", n, err)
			}
			w, _ := reg.Window("u1", models.SlotMorning)
			if len(w) > n/2 {
				t.Fatalf("n=%d window len %d exceeds %d", n, len(w), n/2)
			}
		}
	}
}

func TestNoImmediateRepeat(t *testing.T) {
	ctx := context.Background()
	for seed := uint64(0); seed < 20; seed++ {
		sel, _ := newSelector(t, newCatalog(t, []string{"a", "b", "c"}), seed)
		prev := ""
		for i := 0; i < 4; i++ {
			got, err := sel.Select(ctx, "u1", models.SlotMorning)
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			if got == prev {
				t.Fatalf("seed %d: %q repeated on call %d", seed, got, i)
			}
			prev = got
		}
	}
}

func TestNoRepeatWithinCapacityPlusOne(t *testing.T) {
	ctx := context.Background()
	texts := []string{"a", "b", "c", "d", "e", "f", "g"}
	capacity := len(texts) / 2
	sel, _ := newSelector(t, newCatalog(t, texts), 42)

	var history []string
	for i := 0; i < 60; i++ {
		got, err := sel.Select(ctx, "u1", models.SlotMorning)
		if err != nil {
			t.Fatal(err)
		}
		start := max(0, len(history)-capacity)
		if slices.Contains(history[start:], got) {
			t.Fatalf("%q repeated within %d picks: %v", got, capacity+1, history[start:])
		}
		history = append(history, got)
	}
}

func TestNightFallsBackToMorningTexts(t *testing.T) {
	sel, _ := newSelector(t, newCatalog(t, []string{"a", "b"}), 1)
	got, err := sel.Select(context.Background(), "u1", models.SlotNight)
	if err != nil {
		t.Fatal(err)
	}
	if got != "a" && got != "b" {
		t.Fatalf("night pick %q not from morning texts", got)
	}
}

func TestSelectUsesCurrentMode(t *testing.T) {
	ctx := context.Background()
	sel, reg := newSelector(t, newCatalog(t, []string{"a", "b"}), 3)
	if err := reg.SetMode(ctx, "u1", models.ModeInsult); err != nil {
		t.Fatal(err)
	}
	got, err := sel.Select(ctx, "u1", models.SlotMorning)
	if err != nil {
		t.Fatal(err)
	}
	if got != "ugh" && got != "meh" {
		t.Fatalf("insult pick %q not from insult texts", got)
	}
}

func TestSelectUnknownRecipient(t *testing.T) {
	sel, _ := newSelector(t, newCatalog(t, []string{"a"}), 1)
	if _, err := sel.Select(context.Background(), "ghost", models.SlotMorning); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestOversizedStoredWindowIsTrimmed(t *testing.T) {
	ctx := context.Background()
	sel, reg := newSelector(t, newCatalog(t, []string{"a", "b", "c"}), 9)
	// Window restored from a bigger catalog covers every current text.
	if err := reg.SetWindow(ctx, "u1", models.SlotMorning, []string{"x", "a", "b", "c"}); err != nil {
		t.Fatal(err)
	}
	got, err := sel.Select(ctx, "u1", models.SlotMorning)
	if err != nil {
		t.Fatal(err)
	}
	if got != "a" && got != "b" {
		t.Fatalf("got %q; only a and b survive trimming the window to [c]", got)
	}
	w, _ := reg.Window("u1", models.SlotMorning)
	if len(w) != 1 || w[0] != got {
		t.Fatalf("window = %v, want [%s]", w, got)
	}
}

func TestExhaustionResetsWindow(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	texts := []string{"a", "b", "c"}
	for i := 0; i < 20; i++ {
		got, w, exhausted := choose(texts, []string{"c", "b", "a"}, rng)
		if !exhausted {
			t.Fatal("expected exhaustion")
		}
		if len(w) != 0 {
			t.Fatalf("window not reset: %v", w)
		}
		if !slices.Contains(texts, got) {
			t.Fatalf("pick %q not in slot", got)
		}
	}

	got, w, exhausted := choose(texts, []string{"a", "b"}, rng)
	if exhausted || got != "c" || len(w) != 2 {
		t.Fatalf("choose = %q, %v, %v; want c, [a b], false", got, w, exhausted)
	}
}

func TestPickNeverExhaustsAfterTrim(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	for n := 1; n <= 8; n++ {
		texts := make([]string, n)
		for i := range texts {
			texts[i] = string(rune('a' + i))
		}
		// A stored window that covers the whole slot twice over.
		stored := append(slices.Clone(texts), texts...)
		for i := 0; i < 10; i++ {
			got, w, exhausted := pick(texts, stored, rng)
			if exhausted {
				t.Fatalf("n=%d: pick reported exhaustion for window %v", n, stored)
			}
			if !slices.Contains(texts, got) || len(w) > n/2 {
				t.Fatalf("n=%d: pick = %q, window %v", n, got, w)
			}
		}
	}
}
