package battle

import (
	"maps"
	"slices"
)

// Rules are the clauses and parameters derived from the step log.
type Rules struct {
	SpeciesClause  bool   `json:"speciesClause,omitempty"`
	SleepClause    bool   `json:"sleepClause,omitempty"`
	EvasionClause  bool   `json:"evasionClause,omitempty"`
	OHKOClause     bool   `json:"ohkoClause,omitempty"`
	DynamaxClause  bool   `json:"dynamaxClause,omitempty"`
	TerastalClause bool   `json:"terastalClause,omitempty"`
	Tier           string `json:"tier,omitempty"`
}

// SideConditions are the side-wide effects the resolvers read.
type SideConditions struct {
	Reflect     bool `json:"reflect,omitempty"`
	LightScreen bool `json:"lightScreen,omitempty"`
	AuroraVeil  bool `json:"auroraVeil,omitempty"`
	Tailwind    bool `json:"tailwind,omitempty"`
	// Swamp is the speed-quartering pledge combination.
	Swamp       bool `json:"swamp,omitempty"`
	Rainbow     bool `json:"rainbow,omitempty"`
	StealthRock bool `json:"stealthRock,omitempty"`
	StickyWeb   bool `json:"stickyWeb,omitempty"`
	Spikes      int  `json:"spikes,omitempty"`
	ToxicSpikes int  `json:"toxicSpikes,omitempty"`
	Safeguard   bool `json:"safeguard,omitempty"`
	Mist        bool `json:"mist,omitempty"`
}

// Side is one player's half of a match.
type Side struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Rating int    `json:"rating,omitempty"`

	// PokemonIDs is in reveal order, not the host's display order.
	PokemonIDs []string `json:"pokemonIds"`

	// Active holds indices into PokemonIDs; -1 marks an empty slot.
	Active     []int `json:"active"`
	Viewing    int   `json:"viewing"`
	AutoSelect bool  `json:"autoSelect"`
	TeamSize   int   `json:"teamSize,omitempty"`

	Conditions SideConditions `json:"conditions"`
	FaintCount int            `json:"faintCount,omitempty"`

	UsedMega     bool `json:"usedMega,omitempty"`
	UsedZMove    bool `json:"usedZMove,omitempty"`
	UsedDynamax  bool `json:"usedDynamax,omitempty"`
	UsedTerastal bool `json:"usedTerastal,omitempty"`
}

// IndexOf returns the position of a record id in the side's order.
func (s *Side) IndexOf(id string) int {
	return slices.Index(s.PokemonIDs, id)
}

// Field holds battle-wide conditions. Weather and terrain can be overridden
// by the user.
type Field struct {
	GameType      string              `json:"gameType"`
	Weather       Overridable[string] `json:"weather"`
	Terrain       Overridable[string] `json:"terrain"`
	PseudoWeather []string            `json:"pseudoWeather,omitempty"`
	WonderRoom    bool                `json:"wonderRoom,omitempty"`
	MagicRoom     bool                `json:"magicRoom,omitempty"`
	TrickRoom     bool                `json:"trickRoom,omitempty"`
	Gravity       bool                `json:"gravity,omitempty"`
}

// Match is the reconciled snapshot of one battle.
type Match struct {
	ID     string `json:"id"`
	Gen    int    `json:"gen"`
	Format string `json:"format"`
	Rules  Rules  `json:"rules"`
	Turn   int    `json:"turn"`
	Active bool   `json:"active"`
	Nonce  string `json:"nonce"`
	MySide string `json:"mySide,omitempty"`
	Field  Field  `json:"field"`
	// StepCursor is the number of step log lines already consumed.
	StepCursor int `json:"stepCursor"`

	SideKeys []string            `json:"sideKeys"`
	Sides    map[string]*Side    `json:"sides"`
	Pokemon  map[string]*Pokemon `json:"pokemon"`
}

// NewMatch creates an empty, active match.
func NewMatch(id string) *Match {
	return &Match{
		ID:      id,
		Active:  true,
		Sides:   make(map[string]*Side),
		Pokemon: make(map[string]*Pokemon),
	}
}

// Side returns a side by key.
func (m *Match) Side(key string) (*Side, bool) {
	s, ok := m.Sides[key]
	return s, ok
}

// Roster returns a side's specimens in reveal order.
func (m *Match) Roster(key string) []*Pokemon {
	s, ok := m.Sides[key]
	if !ok {
		return nil
	}
	out := make([]*Pokemon, 0, len(s.PokemonIDs))
	for _, id := range s.PokemonIDs {
		if p, ok := m.Pokemon[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// ActivePokemon returns the specimens in a side's active slots.
func (m *Match) ActivePokemon(key string) []*Pokemon {
	s, ok := m.Sides[key]
	if !ok {
		return nil
	}
	var out []*Pokemon
	for _, idx := range s.Active {
		if idx < 0 || idx >= len(s.PokemonIDs) {
			continue
		}
		if p, ok := m.Pokemon[s.PokemonIDs[idx]]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Viewed returns the specimen selected for display on a side: the viewing
// index, or the first active specimen when auto-select is on.
func (m *Match) Viewed(key string) (*Pokemon, bool) {
	s, ok := m.Sides[key]
	if !ok || len(s.PokemonIDs) == 0 {
		return nil, false
	}
	idx := s.Viewing
	if s.AutoSelect {
		for _, a := range s.Active {
			if a >= 0 && a < len(s.PokemonIDs) {
				idx = a
				break
			}
		}
	}
	if idx < 0 || idx >= len(s.PokemonIDs) {
		return nil, false
	}
	p, ok := m.Pokemon[s.PokemonIDs[idx]]
	return p, ok
}

// Opponent returns the key of the first side other than key.
func (m *Match) Opponent(key string) string {
	for _, k := range m.SideKeys {
		if k != key {
			return k
		}
	}
	return ""
}

// Clone returns a deep copy that shares no memory with m.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	out := *m
	out.Field = m.Field.clone()
	out.SideKeys = slices.Clone(m.SideKeys)
	out.Sides = make(map[string]*Side, len(m.Sides))
	for k, s := range m.Sides {
		out.Sides[k] = s.Clone()
	}
	out.Pokemon = make(map[string]*Pokemon, len(m.Pokemon))
	for k, p := range m.Pokemon {
		out.Pokemon[k] = p.Clone()
	}
	return &out
}

// Clone returns a deep copy of the side.
func (s *Side) Clone() *Side {
	out := *s
	out.PokemonIDs = slices.Clone(s.PokemonIDs)
	out.Active = slices.Clone(s.Active)
	return &out
}

func (f Field) clone() Field {
	f.PseudoWeather = slices.Clone(f.PseudoWeather)
	return f
}

// Clone returns a deep copy of the record.
func (p *Pokemon) Clone() *Pokemon {
	out := *p
	out.AltFormes = slices.Clone(p.AltFormes)
	out.Types = slices.Clone(p.Types)
	out.TypesOverride = slices.Clone(p.TypesOverride)
	out.AbilityPool = slices.Clone(p.AbilityPool)
	out.BoostOverrides = maps.Clone(p.BoostOverrides)
	out.Moves = slices.Clone(p.Moves)
	out.RevealedMoves = slices.Clone(p.RevealedMoves)
	out.ServerMoves = slices.Clone(p.ServerMoves)
	out.TransformedMoves = slices.Clone(p.TransformedMoves)
	out.Volatiles = slices.Clone(p.Volatiles)
	out.Presets = make([]Preset, len(p.Presets))
	for i, pr := range p.Presets {
		pr.Moves = slices.Clone(pr.Moves)
		out.Presets[i] = pr
	}
	if p.Presets == nil {
		out.Presets = nil
	}
	return &out
}
