package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"battlecalc/internal/battle"
	"battlecalc/internal/dex"
	"battlecalc/internal/host"
	"battlecalc/internal/logging"
	"battlecalc/internal/presets"
)

var (
	ErrMatchNotInitialized = errors.New("reconcile: match not initialized")
	ErrUnknownSide         = errors.New("reconcile: unknown side")
	ErrUnknownPokemon      = errors.New("reconcile: unknown pokemon")
	ErrUnknownPreset       = errors.New("reconcile: unknown preset")
)

// defaultTeamSize applies when neither the step log nor the host reports
// a team size.
const defaultTeamSize = 6

// Reconciler merges host captures into per-match snapshots. Passes for all
// matches are serialized; readers only ever see completed snapshots.
type Reconciler struct {
	mu      sync.Mutex
	dex     *dex.Registry
	presets presets.Source
	newID   func() string
	log     zerolog.Logger
	matches map[string]*matchState
	lookups *lookups
	notify  func(matchID string)
}

type matchState struct {
	match     *battle.Match
	published *battle.Match
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithPresets sets the source consulted for known builds.
func WithPresets(src presets.Source) Option {
	return func(r *Reconciler) { r.presets = src }
}

// WithPresetNotify sets a hook called, outside the reconcile lock, when a
// preset lookup for a match finishes. The hook usually calls MergePresets.
func WithPresetNotify(fn func(matchID string)) Option {
	return func(r *Reconciler) { r.notify = fn }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Reconciler) { r.log = log }
}

// WithIDGenerator replaces the record id generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *Reconciler) { r.newID = fn }
}

// New creates a reconciler backed by the given dex registry.
func New(registry *dex.Registry, opts ...Option) *Reconciler {
	r := &Reconciler{
		dex:     registry,
		newID:   uuid.NewString,
		log:     zerolog.Nop(),
		matches: make(map[string]*matchState),
		lookups: newLookups(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logging.Component(r.log, "reconcile")
	return r
}

// Init creates the snapshot for a match. Calling it again for a known match
// returns the current snapshot unchanged.
func (r *Reconciler) Init(id string) *battle.Match {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.matches[id]; ok {
		return st.published.Clone()
	}
	m := battle.NewMatch(id)
	r.matches[id] = &matchState{match: m, published: m.Clone()}
	r.lookups.open(id)
	r.log.Info().Str("match_id", id).Msg("match initialized")
	return m.Clone()
}

// Sync runs one reconciliation pass for the capture. It reports whether the
// snapshot changed; a capture identical to the last one is skipped. Finished
// preset lookups are merged first. New lookups are started in the
// background and never block the pass.
func (r *Reconciler) Sync(ctx context.Context, b *host.Battle) (*battle.Match, bool, error) {
	if b == nil {
		return nil, false, fmt.Errorf("nil capture: %w", ErrMatchNotInitialized)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.matches[b.ID]
	if !ok {
		return nil, false, fmt.Errorf("%s: %w", b.ID, ErrMatchNotInitialized)
	}
	if b.MySide != "" && b.FindSide(b.MySide) == nil {
		return nil, false, fmt.Errorf("my side %q: %w", b.MySide, ErrUnknownSide)
	}

	nonce, err := Nonce(b)
	if err != nil {
		return nil, false, err
	}
	merged := r.mergePresets(st.match)
	if nonce == st.match.Nonce {
		r.log.Debug().Str("match_id", b.ID).Str("nonce", nonce).Bool("skipped", true).Msg("pass")
		if merged {
			st.published = st.match.Clone()
		}
		return st.published.Clone(), merged, nil
	}

	reqs := r.pass(st.match, b)
	st.match.Nonce = nonce
	st.published = st.match.Clone()
	r.fetchPresets(ctx, reqs)

	r.log.Debug().Str("match_id", b.ID).Str("nonce", nonce).Bool("skipped", false).
		Int("turn", st.match.Turn).Msg("pass")
	return st.published.Clone(), true, nil
}

// Snapshot returns a copy of the last published snapshot.
func (r *Reconciler) Snapshot(id string) (*battle.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.matches[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrMatchNotInitialized)
	}
	return st.published.Clone(), nil
}

// End marks the match inactive and forgets it. The final snapshot is
// returned.
func (r *Reconciler) End(id string) (*battle.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.matches[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrMatchNotInitialized)
	}
	st.match.Active = false
	delete(r.matches, id)
	r.lookups.close(id)
	r.log.Info().Str("match_id", id).Int("turn", st.match.Turn).Msg("match ended")
	return st.match.Clone(), nil
}

// Dex returns the lookup view for a match's generation.
func (r *Reconciler) Dex(m *battle.Match) *dex.Dex {
	d, _ := r.dex.ForGen(m.Gen)
	return d
}

// Nonce fingerprints a capture. Equal captures give equal nonces.
func Nonce(b *host.Battle) (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint capture: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16]), nil
}

// pass merges b into m. It never fails: inconsistent data is resolved with
// best-effort rules and logged. The returned preset requests are for records
// seen for the first time.
func (r *Reconciler) pass(m *battle.Match, b *host.Battle) []presetRequest {
	if b.Gen > 0 {
		m.Gen = b.Gen
	}
	if b.Format != "" {
		m.Format = b.Format
	}
	m.Turn = b.Turn
	m.Active = !b.Ended
	m.MySide = b.MySide

	for _, hs := range b.Sides {
		r.ensureSide(m, hs)
	}

	applySteps(m, b.StepQueue)
	reconcileField(&m.Field, b)

	d := r.Dex(m)
	ids := r.assignIdentities(m, b)
	before := spreadKeys(m)

	tc := newTransformContext()
	for i := range b.Sides {
		hs := &b.Sides[i]
		r.reconcileSide(m, d, b, hs, ids, tc)
	}
	tc.resolve(m)
	refreshChangedSpreads(d, m, before)

	return r.pendingPresets(m, d)
}

func (r *Reconciler) ensureSide(m *battle.Match, hs host.Side) *battle.Side {
	if s, ok := m.Sides[hs.ID]; ok {
		return s
	}
	s := &battle.Side{Key: hs.ID, AutoSelect: true}
	m.Sides[hs.ID] = s
	m.SideKeys = append(m.SideKeys, hs.ID)
	return s
}

func (r *Reconciler) reconcileSide(m *battle.Match, d *dex.Dex, b *host.Battle, hs *host.Side, ids *identities, tc *transformContext) {
	side := m.Sides[hs.ID]
	side.Name = hs.Name
	side.Rating = hs.Rating
	side.Conditions = parseConditions(hs.SideConditions)
	if side.TeamSize == 0 && hs.TotalPokemon > 0 {
		side.TeamSize = hs.TotalPokemon
	}

	local := hs.ID == b.MySide && b.Server() != nil
	servers := newServerRoster(b, local)

	pc := &pokemonContext{
		dex:       d,
		gen:       m.Gen,
		local:     local,
		transform: tc,
		lookup:    ids.lookup,
		log:       r.log,
	}

	for i := range hs.Pokemon {
		hp := &hs.Pokemon[i]
		id, ok := ids.winner[entryKey{side: hs.ID, index: i}]
		if !ok {
			continue
		}
		rec := m.Pokemon[id]
		srv, req := servers.find(hp)
		reconcilePokemon(pc, rec, hp, srv, req)
	}

	side.Active = activeIndices(side, hs, ids)
	r.trim(m, side, ids)
	side.Active = activeIndices(side, hs, ids)

	faints := 0
	for _, p := range m.Roster(side.Key) {
		p.Active = false
		if p.Fainted {
			faints++
		}
	}
	for _, p := range m.ActivePokemon(side.Key) {
		p.Active = true
	}
	side.FaintCount = faints
}

// trim drops records beyond the side's team size. Records not observed in
// this capture go first, newest first.
func (r *Reconciler) trim(m *battle.Match, side *battle.Side, ids *identities) {
	limit := side.TeamSize
	if limit <= 0 {
		limit = defaultTeamSize
	}
	if len(side.PokemonIDs) <= limit {
		return
	}

	viewed := ""
	if side.Viewing >= 0 && side.Viewing < len(side.PokemonIDs) {
		viewed = side.PokemonIDs[side.Viewing]
	}
	defer func() {
		side.Viewing = max(side.IndexOf(viewed), 0)
	}()

	drop := func(id string) {
		side.PokemonIDs = removeID(side.PokemonIDs, id)
		delete(m.Pokemon, id)
		r.log.Warn().Str("match_id", m.ID).Str("side", side.Key).Str("pokemon_id", id).
			Int("team_size", limit).Msg("roster trimmed")
	}

	for i := len(side.PokemonIDs) - 1; i >= 0 && len(side.PokemonIDs) > limit; i-- {
		id := side.PokemonIDs[i]
		if !ids.seen[id] {
			drop(id)
		}
	}
	for len(side.PokemonIDs) > limit {
		drop(side.PokemonIDs[len(side.PokemonIDs)-1])
	}
}
