package finalstats

import (
	"battlecalc/internal/battle"
	"battlecalc/internal/dex"
	"battlecalc/internal/ledger"
)

// ForMatch resolves the final stats of one specimen in a match. When
// opponentID is empty the opposing side's viewed specimen is used. It
// reports false when the specimen is not part of the match.
func ForMatch(d *dex.Dex, m *battle.Match, pokemonID, opponentID string) (ledger.Export, bool) {
	if m == nil {
		return ledger.Export{}, false
	}
	p, ok := m.Pokemon[pokemonID]
	if !ok {
		return ledger.Export{}, false
	}
	side, _ := m.Side(p.Side)
	oppKey := m.Opponent(p.Side)
	oppSide, _ := m.Side(oppKey)

	var opp *battle.Pokemon
	if opponentID != "" {
		opp = m.Pokemon[opponentID]
	} else if v, ok := m.Viewed(oppKey); ok {
		opp = v
	}

	var combatants []*battle.Pokemon
	for _, key := range m.SideKeys {
		combatants = append(combatants, m.ActivePokemon(key)...)
	}

	return Resolve(Input{
		Dex:          d,
		Pokemon:      p,
		Opponent:     opp,
		Side:         side,
		OpponentSide: oppSide,
		Field:        m.Field,
		Combatants:   combatants,
	}), true
}
