package battle

import (
	"strings"

	"battlecalc/internal/dex"
	"battlecalc/internal/stats"
)

// UnknownHP marks a health value the host reported as a placeholder.
const UnknownHP = -1

// Pokemon is the reconciled record of one specimen. ID is assigned on first
// observation and never reused, independent of forme or host indexing.
type Pokemon struct {
	ID       string `json:"id"`
	Side     string `json:"side"`
	Ident    string `json:"ident"`
	SearchID string `json:"searchId"`
	Details  string `json:"details"`

	SpeciesForme string   `json:"speciesForme"`
	AltFormes    []string `json:"altFormes,omitempty"`
	Level        int      `json:"level"`
	Types        []string `json:"types"`
	// TypesOverride is set while a type-changing volatile is active.
	TypesOverride []string `json:"typesOverride,omitempty"`
	TypeAdd       string   `json:"typeAdd,omitempty"`
	TeraType      string   `json:"teraType,omitempty"`
	Terastallized bool     `json:"terastallized,omitempty"`

	HP      int    `json:"hp"`
	MaxHP   int    `json:"maxhp"`
	Fainted bool   `json:"fainted,omitempty"`
	Status  string `json:"status,omitempty"`

	SleepCounter int `json:"sleepCounter,omitempty"`
	ToxicCounter int `json:"toxicCounter,omitempty"`
	// HitCounter is the number of times this specimen was hit.
	HitCounter int `json:"hitCounter,omitempty"`
	// FaintCounter, when positive, is the host's count of fainted allies and
	// takes precedence over the side's own tally.
	FaintCounter int `json:"faintCounter,omitempty"`

	Ability        Overridable[string] `json:"ability"`
	BaseAbility    string              `json:"baseAbility,omitempty"`
	AbilityPool    []string            `json:"abilityPool,omitempty"`
	AbilityToggled bool                `json:"abilityToggled,omitempty"`

	Item           Overridable[string] `json:"item"`
	PrevItem       string              `json:"prevItem,omitempty"`
	PrevItemEffect string              `json:"prevItemEffect,omitempty"`

	Nature         string           `json:"nature,omitempty"`
	IVs            stats.Table      `json:"ivs"`
	EVs            stats.Table      `json:"evs"`
	Boosts         stats.Boosts     `json:"boosts"`
	BoostOverrides map[stats.ID]int `json:"boostOverrides,omitempty"`
	BaseOverride   stats.Table      `json:"baseOverride"`

	Moves            []string `json:"moves,omitempty"`
	MovesOverridden  bool     `json:"movesOverridden,omitempty"`
	RevealedMoves    []string `json:"revealedMoves,omitempty"`
	ServerMoves      []string `json:"serverMoves,omitempty"`
	TransformedMoves []string `json:"transformedMoves,omitempty"`

	ServerStats stats.Table `json:"serverStats"`
	SpreadStats stats.Table `json:"spreadStats"`

	Transformed      bool   `json:"transformed,omitempty"`
	TransformedForme string `json:"transformedForme,omitempty"`
	// TransformedInto is the record id of the specimen that was copied.
	TransformedInto string `json:"transformedInto,omitempty"`

	Dynamaxed       bool   `json:"dynamaxed,omitempty"`
	CanDynamax      bool   `json:"canDynamax,omitempty"`
	CanGigantamax   bool   `json:"canGigantamax,omitempty"`
	CanTerastallize bool   `json:"canTerastallize,omitempty"`
	BoostedStat     string `json:"boostedStat,omitempty"`

	Volatiles []string `json:"volatiles,omitempty"`

	Presets  []Preset `json:"presets,omitempty"`
	PresetID string   `json:"presetId,omitempty"`
	// PresetsLoaded is set once external preset sources were consulted.
	PresetsLoaded bool `json:"presetsLoaded,omitempty"`

	Active bool `json:"active,omitempty"`
}

// Forme returns the species forme whose base stats apply, honouring an
// active transformation.
func (p *Pokemon) Forme() string {
	if p.Transformed && p.TransformedForme != "" {
		return p.TransformedForme
	}
	return p.SpeciesForme
}

// CurrentTypes returns the effective types, including a type override and
// an added type.
func (p *Pokemon) CurrentTypes() []string {
	types := p.Types
	if len(p.TypesOverride) > 0 {
		types = p.TypesOverride
	}
	if p.Terastallized && p.TeraType != "" {
		return []string{p.TeraType}
	}
	if p.TypeAdd == "" {
		return types
	}
	out := append([]string(nil), types...)
	return append(out, p.TypeAdd)
}

// HasType reports whether typ is among the effective types.
func (p *Pokemon) HasType(typ string) bool {
	for _, t := range p.CurrentTypes() {
		if strings.EqualFold(t, typ) {
			return true
		}
	}
	return false
}

// EffectiveBoosts merges user boost overrides over the revealed stages.
func (p *Pokemon) EffectiveBoosts() stats.Boosts {
	b := p.Boosts
	for id, v := range p.BoostOverrides {
		b.Set(id, v)
	}
	return b
}

// HasAbility compares the effective ability by id.
func (p *Pokemon) HasAbility(names ...string) bool {
	return matchAny(p.Ability.Value(), names)
}

// HasItem compares the effective item by id.
func (p *Pokemon) HasItem(names ...string) bool {
	return matchAny(p.Item.Value(), names)
}

// IsStatused reports a non-volatile status condition.
func (p *Pokemon) IsStatused() bool {
	return p.Status != "" && p.Status != "fnt"
}

// HasVolatile reports whether the named volatile condition is active.
func (p *Pokemon) HasVolatile(name string) bool {
	return matchAny(name, p.Volatiles)
}

// HPKnown reports whether HP carries real data.
func (p *Pokemon) HPKnown() bool {
	return p.MaxHP > 0 && p.HP != UnknownHP
}

// MoveList returns the moves in use: user or preset moves when present,
// otherwise everything revealed or confirmed.
func (p *Pokemon) MoveList() []string {
	if len(p.Moves) > 0 {
		return p.Moves
	}
	if p.Transformed && len(p.TransformedMoves) > 0 {
		return p.TransformedMoves
	}
	out := append([]string(nil), p.ServerMoves...)
	for _, m := range p.RevealedMoves {
		if !matchAny(m, out) {
			out = append(out, m)
		}
	}
	return out
}

// AppliedPreset returns the preset currently applied, if any.
func (p *Pokemon) AppliedPreset() (Preset, bool) {
	if p.PresetID == "" {
		return Preset{}, false
	}
	for _, pr := range p.Presets {
		if pr.ID == p.PresetID {
			return pr, true
		}
	}
	return Preset{}, false
}

// AddPreset appends a preset unless one with the same id exists. When
// first is set the preset is placed ahead of the others.
func (p *Pokemon) AddPreset(pr Preset, first bool) bool {
	for _, have := range p.Presets {
		if have.ID == pr.ID {
			return false
		}
	}
	if first {
		p.Presets = append([]Preset{pr}, p.Presets...)
	} else {
		p.Presets = append(p.Presets, pr)
	}
	return true
}

// ApplyPreset copies a preset's genetics onto the specimen, adding the
// preset to the candidate list if it is not there yet. Ability, item and
// moves are only filled in as overrides when nothing was revealed.
func (p *Pokemon) ApplyPreset(pr Preset) {
	p.AddPreset(pr, false)
	p.PresetID = pr.ID
	if pr.Nature != "" {
		p.Nature = pr.Nature
	}
	p.IVs = pr.IVs
	p.EVs = pr.EVs
	if pr.Ability != "" && p.Ability.Revealed == "" && !p.Ability.Overridden {
		p.Ability.Set(pr.Ability)
	}
	if pr.Item != "" && p.Item.Revealed == "" && p.PrevItem == "" && !p.Item.Overridden {
		p.Item.Set(pr.Item)
	}
	if len(pr.Moves) > 0 && !p.MovesOverridden {
		p.Moves = append([]string(nil), pr.Moves...)
	}
	if pr.TeraType != "" && p.TeraType == "" {
		p.TeraType = pr.TeraType
	}
}

func matchAny(value string, names []string) bool {
	if value == "" {
		return false
	}
	v := dex.ID(value)
	for _, n := range names {
		if dex.ID(n) == v {
			return true
		}
	}
	return false
}
