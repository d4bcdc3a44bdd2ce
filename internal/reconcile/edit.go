package reconcile

import (
	"fmt"
	"slices"

	"battlecalc/internal/battle"
	"battlecalc/internal/dex"
	"battlecalc/internal/stats"
)

// Edit is a user change to a match. Nil fields are left untouched; the
// Clear flags drop an override instead of setting one. Pokemon fields need
// PokemonID, side fields need Side.
type Edit struct {
	PokemonID string

	Ability      *string
	ClearAbility bool
	// Item may point at "" to mark the specimen as holding nothing.
	Item           *string
	ClearItem      bool
	Nature         *string
	IVs            *stats.Table
	EVs            *stats.Table
	Boosts         map[stats.ID]int
	ClearBoosts    bool
	Moves          []string
	ClearMoves     bool
	AbilityToggled *bool
	PresetID       *string
	BaseOverride   *stats.Table

	Side       string
	Viewing    *int
	AutoSelect *bool

	Weather      *string
	ClearWeather bool
	Terrain      *string
	ClearTerrain bool
}

func (e Edit) touchesPokemon() bool {
	return e.Ability != nil || e.ClearAbility || e.Item != nil || e.ClearItem ||
		e.Nature != nil || e.IVs != nil || e.EVs != nil || e.Boosts != nil || e.ClearBoosts ||
		e.Moves != nil || e.ClearMoves || e.AbilityToggled != nil || e.PresetID != nil ||
		e.BaseOverride != nil
}

func (e Edit) touchesSide() bool {
	return e.Viewing != nil || e.AutoSelect != nil
}

// Edit applies a user change to the stored match and republishes its
// snapshot. The change is validated as a whole before anything is written.
func (r *Reconciler) Edit(matchID string, e Edit) (*battle.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", matchID, ErrMatchNotInitialized)
	}
	m := st.match

	var p *battle.Pokemon
	if e.touchesPokemon() || e.PokemonID != "" {
		if p, ok = m.Pokemon[e.PokemonID]; !ok {
			return nil, fmt.Errorf("%q: %w", e.PokemonID, ErrUnknownPokemon)
		}
	}
	var side *battle.Side
	if e.touchesSide() || e.Side != "" {
		if side, ok = m.Side(e.Side); !ok {
			return nil, fmt.Errorf("%q: %w", e.Side, ErrUnknownSide)
		}
	}
	var preset battle.Preset
	if e.PresetID != nil && *e.PresetID != "" {
		found := false
		for _, pr := range p.Presets {
			if pr.ID == *e.PresetID {
				preset, found = pr, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%q: %w", *e.PresetID, ErrUnknownPreset)
		}
	}

	if p != nil {
		editPokemon(r.Dex(m), p, e, preset)
	}
	if side != nil {
		if e.Viewing != nil {
			side.Viewing = *e.Viewing
			side.AutoSelect = false
		}
		if e.AutoSelect != nil {
			side.AutoSelect = *e.AutoSelect
		}
	}
	editField(&m.Field, e)

	st.published = m.Clone()
	r.log.Debug().Str("match_id", matchID).Str("pokemon_id", e.PokemonID).Str("side", e.Side).Msg("edit applied")
	return st.published.Clone(), nil
}

func editPokemon(d *dex.Dex, p *battle.Pokemon, e Edit, preset battle.Preset) {
	if e.PresetID != nil {
		if *e.PresetID == "" {
			p.PresetID = ""
		} else {
			p.ApplyPreset(preset)
		}
	}

	switch {
	case e.ClearAbility:
		p.Ability.Clear()
	case e.Ability != nil:
		p.Ability.Set(*e.Ability)
	}
	switch {
	case e.ClearItem:
		p.Item.Clear()
	case e.Item != nil:
		p.Item.Set(*e.Item)
	}

	if e.Nature != nil {
		p.Nature = *e.Nature
	}
	if e.IVs != nil {
		p.IVs = *e.IVs
	}
	if e.EVs != nil {
		p.EVs = *e.EVs
	}
	if e.BaseOverride != nil {
		p.BaseOverride = *e.BaseOverride
	}

	if e.ClearBoosts {
		p.BoostOverrides = nil
	}
	if len(e.Boosts) > 0 {
		if p.BoostOverrides == nil {
			p.BoostOverrides = make(map[stats.ID]int, len(e.Boosts))
		}
		for id, stage := range e.Boosts {
			p.BoostOverrides[id] = stats.ClampStage(stage)
		}
	}

	switch {
	case e.ClearMoves:
		p.Moves = nil
		p.MovesOverridden = false
	case e.Moves != nil:
		p.Moves = slices.Clone(e.Moves)
		p.MovesOverridden = true
	}

	if e.AbilityToggled != nil {
		p.AbilityToggled = *e.AbilityToggled
	}

	if e.PresetID != nil || e.Nature != nil || e.IVs != nil || e.EVs != nil || e.BaseOverride != nil {
		refreshSpread(d, p)
	}
}

func editField(f *battle.Field, e Edit) {
	switch {
	case e.ClearWeather:
		f.Weather.Clear()
	case e.Weather != nil:
		f.Weather.Set(*e.Weather)
	}
	switch {
	case e.ClearTerrain:
		f.Terrain.Clear()
	case e.Terrain != nil:
		f.Terrain.Set(*e.Terrain)
	}
}
