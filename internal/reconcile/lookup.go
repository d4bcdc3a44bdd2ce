package reconcile

import (
	"context"
	"fmt"
	"sync"

	"battlecalc/internal/battle"
	"battlecalc/internal/dex"
)

// presetRequest is one record's pending lookup. Base is the base species,
// tried when the forme itself has no presets.
type presetRequest struct {
	matchID   string
	pokemonID string
	format    string
	species   string
	base      string
}

type presetResult struct {
	pokemonID string
	presets   []battle.Preset
}

// lookups tracks preset fetches running outside the reconcile lock.
type lookups struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	active  map[string]bool
	results map[string][]presetResult
}

func newLookups() *lookups {
	return &lookups{
		active:  make(map[string]bool),
		results: make(map[string][]presetResult),
	}
}

func (l *lookups) open(matchID string) {
	l.mu.Lock()
	l.active[matchID] = true
	l.mu.Unlock()
}

func (l *lookups) close(matchID string) {
	l.mu.Lock()
	delete(l.active, matchID)
	delete(l.results, matchID)
	l.mu.Unlock()
}

func (l *lookups) store(matchID string, res presetResult) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active[matchID] {
		return false
	}
	l.results[matchID] = append(l.results[matchID], res)
	return true
}

func (l *lookups) take(matchID string) []presetResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	res := l.results[matchID]
	delete(l.results, matchID)
	return res
}

// pendingPresets marks records that have not been looked up yet and returns
// their requests. It does no I/O.
func (r *Reconciler) pendingPresets(m *battle.Match, d *dex.Dex) []presetRequest {
	if r.presets == nil {
		return nil
	}
	var reqs []presetRequest
	for _, key := range m.SideKeys {
		for _, p := range m.Roster(key) {
			if p.PresetsLoaded || p.SpeciesForme == "" {
				continue
			}
			p.PresetsLoaded = true
			req := presetRequest{
				matchID:   m.ID,
				pokemonID: p.ID,
				format:    m.Format,
				species:   p.SpeciesForme,
			}
			if s, ok := d.Species(p.SpeciesForme); ok && s.Base() != s.Name {
				req.base = s.Base()
			}
			reqs = append(reqs, req)
		}
	}
	return reqs
}

// fetchPresets runs the requests in the background. Each finished lookup is
// queued for the match and reported through the notify hook.
func (r *Reconciler) fetchPresets(ctx context.Context, reqs []presetRequest) {
	ctx = context.WithoutCancel(ctx)
	for _, req := range reqs {
		r.lookups.wg.Add(1)
		go func(req presetRequest) {
			defer r.lookups.wg.Done()

			found, err := r.presetsFor(ctx, req)
			if err != nil {
				r.log.Warn().Err(err).Str("match_id", req.matchID).Str("species", req.species).Msg("preset lookup failed")
				return
			}
			if len(found) == 0 {
				return
			}
			if !r.lookups.store(req.matchID, presetResult{pokemonID: req.pokemonID, presets: found}) {
				return
			}
			if r.notify != nil {
				r.notify(req.matchID)
			}
		}(req)
	}
}

func (r *Reconciler) presetsFor(ctx context.Context, req presetRequest) ([]battle.Preset, error) {
	found, err := r.presets.PresetsFor(ctx, req.format, req.species)
	if err != nil || len(found) > 0 || req.base == "" {
		return found, err
	}
	return r.presets.PresetsFor(ctx, req.format, req.base)
}

// WaitPresets blocks until every preset lookup started so far has finished.
func (r *Reconciler) WaitPresets() {
	r.lookups.wg.Wait()
}

// MergePresets folds finished preset lookups into the match and republishes
// it. It reports whether anything was merged.
func (r *Reconciler) MergePresets(id string) (*battle.Match, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.matches[id]
	if !ok {
		return nil, false, fmt.Errorf("%s: %w", id, ErrMatchNotInitialized)
	}
	if !r.mergePresets(st.match) {
		return st.published.Clone(), false, nil
	}
	st.published = st.match.Clone()
	return st.published.Clone(), true, nil
}

// mergePresets adds queued results to their records. Opponents without a
// chosen preset get the first one applied.
func (r *Reconciler) mergePresets(m *battle.Match) bool {
	results := r.lookups.take(m.ID)
	if len(results) == 0 {
		return false
	}
	d := r.Dex(m)
	merged := false
	for _, res := range results {
		p, ok := m.Pokemon[res.pokemonID]
		if !ok {
			continue
		}
		for _, pr := range res.presets {
			p.AddPreset(pr, false)
		}
		if p.Side != m.MySide && p.PresetID == "" {
			p.ApplyPreset(res.presets[0])
			refreshSpread(d, p)
		}
		merged = true
	}
	if merged {
		r.log.Debug().Str("match_id", m.ID).Int("records", len(results)).Msg("presets merged")
	}
	return merged
}
