// Package selector picks catalog texts while avoiding recent repeats.
//
// Each recipient keeps one window per slot holding the most recent picks.
// The window never grows beyond floor(len(slot)/2) entries, so with a slot of
// n texts no text is returned twice within floor(n/2)+1 consecutive picks.
//
// Windows are trimmed to the current capacity before filtering, so a catalog
// that shrank between runs cannot starve the candidate set: a trimmed window
// holds at most floor(n/2) of n distinct texts, leaving at least one
// candidate. choose still clears the window and picks from the whole slot if
// filtering ever leaves nothing; through Select that cannot happen.
package selector

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"greetbot/internal/catalog"
	"greetbot/internal/models"
	"greetbot/internal/registry"
	logx "greetbot/pkg/logx"
)

type Selector struct {
	log     logx.Logger
	catalog *catalog.Catalog
	reg     *registry.Registry
	rng     *rand.Rand
}

// New returns a selector. A nil rng uses a randomly seeded source.
func New(cat *catalog.Catalog, reg *registry.Registry, rng *rand.Rand, log logx.Logger) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{log: log, catalog: cat, reg: reg, rng: rng}
}

// Select returns the next text for id and slot and records it in the window.
func (s *Selector) Select(ctx context.Context, id string, slot models.Slot) (string, error) {
	rec, ok := s.reg.Get(id)
	if !ok {
		return "", fmt.Errorf("select %s: %w", id, registry.ErrNotFound)
	}
	texts := s.catalog.Texts(rec.Mode, slot)
	if len(texts) == 0 {
		return "", fmt.Errorf("select %s/%s: %w", rec.Mode, slot, catalog.ErrEmpty)
	}

	text, window, exhausted := pick(texts, rec.Window(slot), s.rng)
	if exhausted {
		s.log.Warn("candidate set exhausted; window reset",
			logx.String("recipient", id),
			logx.String("mode", string(rec.Mode)),
			logx.String("slot", string(slot)),
		)
	}
	if err := s.reg.SetWindow(ctx, id, slot, window); err != nil {
		return "", err
	}
	s.log.Debug("text selected",
		logx.String("recipient", id),
		logx.String("slot", string(slot)),
		logx.Int("window", len(window)),
	)
	return text, nil
}

// pick returns the chosen text and the window to store afterwards.
func pick(texts, window []string, rng *rand.Rand) (string, []string, bool) {
	capacity := len(texts) / 2
	w := trim(slices.Clone(window), capacity)
	text, w, exhausted := choose(texts, w, rng)
	return text, trim(append(w, text), capacity), exhausted
}

// choose picks uniformly from texts not in w. When nothing is left it clears
// w and picks from all of texts. pick trims w first, so only direct callers
// with an untrimmed window reach that branch.
func choose(texts, w []string, rng *rand.Rand) (string, []string, bool) {
	candidates := make([]string, 0, len(texts))
	for _, t := range texts {
		if !slices.Contains(w, t) {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return texts[rng.IntN(len(texts))], w[:0], true
	}
	return candidates[rng.IntN(len(candidates))], w, false
}

// trim drops entries from the front until len(w) <= n.
func trim(w []string, n int) []string {
	if n < 0 {
		n = 0
	}
	if len(w) > n {
		w = w[len(w)-n:]
	}
	return w
}
