package reconcile

import (
	"strings"

	"github.com/samber/lo"

	"battlecalc/internal/battle"
	"battlecalc/internal/host"
)

type entryKey struct {
	side  string
	index int
}

// identities maps host roster entries onto record ids for one pass.
type identities struct {
	winner   map[entryKey]string
	seen     map[string]bool
	byIdent  map[string]string
	bySearch map[string]string
}

// lookup resolves an ident or searchid to a record id.
func (ids *identities) lookup(ref string) string {
	if strings.Contains(ref, "|") {
		if id, ok := ids.bySearch[ref]; ok {
			return id
		}
		ref, _, _ = strings.Cut(ref, "|")
	}
	return ids.byIdent[identKey(ref)]
}

type candidate struct {
	key     entryKey
	hp      *host.Pokemon
	claim   string
	fresh   int
	active  bool
	fainted bool
}

// better orders colliding entries: the freshest searchid wins, then an
// active entry, then a non-fainted one, then host order.
func (c candidate) better(o candidate) bool {
	if c.fresh != o.fresh {
		return c.fresh > o.fresh
	}
	if c.active != o.active {
		return c.active
	}
	if c.fainted != o.fainted {
		return !c.fainted
	}
	return c.key.index < o.key.index
}

// assignIdentities claims a record for every host entry. Entries that claim
// the same record (or that would create the same new record) collide and
// only the best one survives the pass.
func (r *Reconciler) assignIdentities(m *battle.Match, b *host.Battle) *identities {
	ids := &identities{
		winner:   make(map[entryKey]string),
		seen:     make(map[string]bool),
		byIdent:  make(map[string]string),
		bySearch: make(map[string]string),
	}
	fresh := freshness(b.StepQueue)

	for si := range b.Sides {
		hs := &b.Sides[si]
		side := m.Sides[hs.ID]
		records := m.Roster(hs.ID)

		groups := make(map[string][]candidate)
		var order []string
		for i := range hs.Pokemon {
			hp := &hs.Pokemon[i]
			c := candidate{
				key:     entryKey{side: hs.ID, index: i},
				hp:      hp,
				claim:   matchRecord(records, hp),
				fresh:   fresh[hp.SearchID],
				active:  slotIndex(hs.Active, hp) >= 0,
				fainted: hp.Fainted,
			}
			group := c.claim
			if group == "" {
				group = "new:" + identKey(hp.Ident)
				if hp.Ident == "" {
					group = "new:" + hp.SearchID
				}
			}
			if _, ok := groups[group]; !ok {
				order = append(order, group)
			}
			groups[group] = append(groups[group], c)
		}

		for _, group := range order {
			cands := groups[group]
			best := cands[0]
			for _, c := range cands[1:] {
				if c.better(best) {
					best = c
				}
			}
			if len(cands) > 1 {
				r.log.Warn().Str("match_id", m.ID).Str("side", hs.ID).Str("ident", best.hp.Ident).
					Int("entries", len(cands)).Str("kept", best.hp.SearchID).Msg("identity conflict resolved")
			}

			id := best.claim
			if id == "" {
				id = r.newID()
				m.Pokemon[id] = &battle.Pokemon{ID: id, Side: hs.ID}
				side.PokemonIDs = append(side.PokemonIDs, id)
			}
			ids.winner[best.key] = id
			ids.seen[id] = true
			if best.hp.Ident != "" {
				ids.byIdent[identKey(best.hp.Ident)] = id
			}
			if best.hp.SearchID != "" {
				ids.bySearch[best.hp.SearchID] = id
			}
		}
	}
	return ids
}

// matchRecord finds the record an entry belongs to: same searchid first,
// then same ident, since a forme change keeps the ident but not the
// searchid.
func matchRecord(records []*battle.Pokemon, hp *host.Pokemon) string {
	if hp.SearchID != "" {
		for _, rec := range records {
			if rec.SearchID == hp.SearchID {
				return rec.ID
			}
		}
	}
	if hp.Ident == "" {
		return ""
	}
	key := identKey(hp.Ident)
	for _, rec := range records {
		if rec.Ident != "" && identKey(rec.Ident) == key {
			return rec.ID
		}
	}
	return ""
}

// freshness ranks searchids by the last step log line that switched them
// in. Higher is fresher; zero means never seen.
func freshness(lines []string) map[string]int {
	out := make(map[string]int)
	for i, line := range lines {
		parts := strings.Split(line, "|")
		if len(parts) < 4 {
			continue
		}
		switch parts[1] {
		case "switch", "drag", "replace", "detailschange":
			out[identKey(parts[2])+"|"+parts[3]] = i + 1
		}
	}
	return out
}

// slotIndex returns the active slot holding hp, or -1.
func slotIndex(active []string, hp *host.Pokemon) int {
	for i, a := range active {
		if a == "" {
			continue
		}
		if strings.Contains(a, "|") {
			if a == hp.SearchID {
				return i
			}
			continue
		}
		if hp.Ident != "" && identKey(a) == identKey(hp.Ident) {
			return i
		}
	}
	return -1
}

func activeIndices(side *battle.Side, hs *host.Side, ids *identities) []int {
	out := make([]int, len(hs.Active))
	for slot := range hs.Active {
		out[slot] = -1
	}
	for i := range hs.Pokemon {
		id, ok := ids.winner[entryKey{side: hs.ID, index: i}]
		if !ok {
			continue
		}
		slot := slotIndex(hs.Active, &hs.Pokemon[i])
		if slot >= 0 && out[slot] < 0 {
			out[slot] = side.IndexOf(id)
		}
	}
	return out
}

// identKey normalizes "p1a: Garchomp" and "p1: Garchomp" to the latter.
func identKey(ident string) string {
	side := host.IdentSide(ident)
	name := host.IdentName(ident)
	if side == "" {
		return name
	}
	return side + ": " + name
}

func removeID(ids []string, id string) []string {
	return lo.Without(ids, id)
}
