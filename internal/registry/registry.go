// Package registry owns the recipient roster.
//
// Every mutation is flushed to the configured storage.Store before the
// mutating call returns. A failed flush is returned to the caller unchanged
// (wrapped); the engine treats it as fatal.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"greetbot/internal/models"
	"greetbot/internal/storage"
	logx "greetbot/pkg/logx"
)

var ErrNotFound = errors.New("recipient not found")

type Registry struct {
	log   logx.Logger
	store storage.Store

	mu    sync.RWMutex
	order []string
	byID  map[string]*models.Recipient
}

func New(store storage.Store, log logx.Logger) *Registry {
	if store == nil {
		store = storage.NewMemory()
	}
	return &Registry{
		log:   log,
		store: store,
		byID:  map[string]*models.Recipient{},
	}
}

// Load replaces the in-memory roster with what the store holds.
func (r *Registry) Load(ctx context.Context) error {
	st, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("registry load: %w", err)
	}
	r.Restore(st)
	r.log.Info("roster loaded", logx.Int("recipients", len(st.Recipients)))
	return nil
}

// Add registers id with default settings. It reports false, without touching
// state, when id is already known.
func (r *Registry) Add(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	if _, ok := r.byID[id]; ok {
		r.mu.Unlock()
		return false, nil
	}
	rec := models.NewRecipient(id)
	r.byID[id] = &rec
	r.order = append(r.order, id)
	st := r.snapshotLocked()
	r.mu.Unlock()

	return true, r.persist(ctx, "add", st)
}

// Remove drops id. It reports false when id was not registered.
func (r *Registry) Remove(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	if _, ok := r.byID[id]; !ok {
		r.mu.Unlock()
		return false, nil
	}
	delete(r.byID, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	st := r.snapshotLocked()
	r.mu.Unlock()

	return true, r.persist(ctx, "remove", st)
}

// SetMode overwrites the mode of a known recipient.
func (r *Registry) SetMode(ctx context.Context, id string, mode models.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("set mode: invalid mode %q", mode)
	}
	return r.update(ctx, "set mode", id, func(rec *models.Recipient) { rec.Mode = mode })
}

// SetZone stores the resolved zone bucket of a known recipient.
func (r *Registry) SetZone(ctx context.Context, id string, zone models.Zone) error {
	if !zone.Valid() {
		return fmt.Errorf("set zone: invalid zone %q", zone)
	}
	return r.update(ctx, "set zone", id, func(rec *models.Recipient) { rec.Zone = zone })
}

// SetWindow replaces the recent-use window of slot.
func (r *Registry) SetWindow(ctx context.Context, id string, slot models.Slot, window []string) error {
	w := append([]string{}, window...)
	return r.update(ctx, "set window", id, func(rec *models.Recipient) {
		if slot == models.SlotNight {
			rec.NightWindow = w
		} else {
			rec.MorningWindow = w
		}
	})
}

func (r *Registry) update(ctx context.Context, op, id string, fn func(*models.Recipient)) error {
	r.mu.Lock()
	rec, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	fn(rec)
	st := r.snapshotLocked()
	r.mu.Unlock()

	return r.persist(ctx, op, st)
}

func (r *Registry) persist(ctx context.Context, op string, st storage.State) error {
	if err := r.store.Save(ctx, st); err != nil {
		return fmt.Errorf("registry %s: persist: %w", op, err)
	}
	return nil
}

// Get returns a copy of the recipient record.
func (r *Registry) Get(id string) (models.Recipient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok {
		return models.Recipient{}, false
	}
	return rec.Clone(), true
}

func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	_, ok := r.byID[id]
	r.mu.RUnlock()
	return ok
}

// Mode returns the recipient's mode, or ModeSweet for unknown ids.
func (r *Registry) Mode(id string) models.Mode {
	if rec, ok := r.Get(id); ok {
		return rec.Mode
	}
	return models.ModeSweet
}

// Zone returns the stored zone, or models.DefaultZone when unknown or pending.
func (r *Registry) Zone(id string) models.Zone {
	if rec, ok := r.Get(id); ok {
		return rec.EffectiveZone()
	}
	return models.DefaultZone
}

// Window returns a copy of the recent-use window of slot.
func (r *Registry) Window(id string, slot models.Slot) ([]string, error) {
	rec, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("window %s: %w", id, ErrNotFound)
	}
	return rec.Window(slot), nil
}

// IDs returns every registered id in lexical order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	out := append([]string(nil), r.order...)
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// InZone returns the ids whose effective zone is z, in lexical order.
func (r *Registry) InZone(z models.Zone) []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if r.byID[id].EffectiveZone() == z {
			out = append(out, id)
		}
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Snapshot returns the persisted form of the roster.
func (r *Registry) Snapshot() storage.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() storage.State {
	st := storage.NewState()
	for _, id := range r.order {
		rec := r.byID[id]
		st.Recipients = append(st.Recipients, id)
		st.Modes[id] = string(rec.Mode)
		if rec.Zone.Valid() {
			st.Zones[id] = string(rec.Zone)
		}
		if len(rec.MorningWindow) > 0 {
			st.MorningWindows[id] = append([]string{}, rec.MorningWindow...)
		}
		if len(rec.NightWindow) > 0 {
			st.NightWindows[id] = append([]string{}, rec.NightWindow...)
		}
	}
	return st
}

// Restore replaces the roster without persisting. Unknown modes and zones
// fall back to the record defaults; duplicate ids keep their first entry.
func (r *Registry) Restore(st storage.State) {
	st = st.Clone()
	order := make([]string, 0, len(st.Recipients))
	byID := make(map[string]*models.Recipient, len(st.Recipients))
	for _, id := range st.Recipients {
		if _, dup := byID[id]; dup {
			continue
		}
		rec := models.NewRecipient(id)
		if m, err := models.ParseMode(st.Modes[id]); err == nil {
			rec.Mode = m
		} else if st.Modes[id] != "" {
			r.log.Warn("unknown mode in stored state; using default",
				logx.String("recipient", id), logx.String("mode", st.Modes[id]))
		}
		if z, err := models.ParseZone(st.Zones[id]); err == nil {
			rec.Zone = z
		}
		if w := st.MorningWindows[id]; w != nil {
			rec.MorningWindow = w
		}
		if w := st.NightWindows[id]; w != nil {
			rec.NightWindow = w
		}
		byID[id] = &rec
		order = append(order, id)
	}

	r.mu.Lock()
	r.order = order
	r.byID = byID
	r.mu.Unlock()
}
