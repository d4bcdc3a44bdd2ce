package spread

import (
	"battlecalc/internal/stats"
)

// legacyEVs are the only stat experience values the legacy search tries.
var legacyEVs = [2]int{stats.MaxEV, 0}

// guessLegacy searches DVs 15..1 with either full or no stat experience.
// HP has no DV of its own; it is derived from the parities of the others.
// In gen 2 both special stats share one DV.
func guessLegacy(in Input) Result {
	res := Result{Found: true}
	dvs := make(map[stats.ID]int, len(nonHP))

	for _, id := range nonHP {
		target := in.Stats.Get(id)
		if target <= 0 {
			dvs[id] = stats.MaxDV
			res.EVs.Set(id, stats.MaxEV)
			continue
		}

		var dv, ev int
		var ok bool
		if id == stats.SpD {
			if spc, seen := dvs[stats.SpA]; seen {
				dv, ev, ok = searchLegacy(in, id, target, spc, spc)
			}
		}
		if !ok {
			dv, ev, ok = searchLegacy(in, id, target, stats.MaxDV, 1)
		}
		if !ok {
			return Result{}
		}
		dvs[id] = dv
		res.EVs.Set(id, ev)
	}

	hpDV := stats.HPDV(dvs[stats.Atk], dvs[stats.Def], dvs[stats.Spe], dvs[stats.SpA])
	res.EVs.HP = stats.MaxEV
	if in.Stats.HP > 0 {
		if _, ev, ok := searchLegacy(in, stats.HP, in.Stats.HP, hpDV, hpDV); ok {
			res.EVs.HP = ev
		}
	}

	res.IVs.HP = stats.DVToIV(hpDV)
	for _, id := range nonHP {
		res.IVs.Set(id, stats.DVToIV(dvs[id]))
	}
	return res
}

func searchLegacy(in Input, id stats.ID, target, hi, lo int) (int, int, bool) {
	base := in.Base.Get(id)
	for dv := hi; dv >= lo; dv-- {
		for _, ev := range legacyEVs {
			if stats.Calc(in.Gen, id, base, stats.DVToIV(dv), ev, in.Level, stats.NeutralNature) == target {
				return dv, ev, true
			}
		}
	}
	return 0, 0, false
}
