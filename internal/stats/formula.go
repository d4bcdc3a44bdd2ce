package stats

const (
	MaxLevel = 100
	MaxIV    = 31
	MaxDV    = 15
	MaxEV    = 252
	EVStep   = 4

	// MaxTotalEVs is the legal EV budget for gen 3+ formats.
	MaxTotalEVs = 508
)

// Legacy reports whether gen predates natures and EV budgets.
func Legacy(gen int) bool { return gen > 0 && gen <= 2 }

// TotalEVCap returns the summed EV limit for gen. Legacy gens have no budget;
// every stat may carry the maximum.
func TotalEVCap(gen int) int {
	if Legacy(gen) {
		return MaxEV * len(IDs)
	}
	return MaxTotalEVs
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Calc computes one final stat. The base/IV/EV/level combination is
// truncated first; non-HP stats then get the nature percentage and are
// truncated again. Legacy gens ignore nature and round IVs down to an even
// value (DV * 2).
func Calc(gen int, id ID, base, iv, ev, level int, nature Nature) int {
	if base <= 0 {
		return 0
	}
	level = clamp(level, 0, MaxLevel)
	ev = clamp(ev, 0, MaxEV)
	if Legacy(gen) {
		iv = DVToIV(IVToDV(iv))
	} else {
		iv = clamp(iv, 0, MaxIV)
	}

	core := (2*base + iv + ev/4) * level / 100
	if id == HP {
		// Shedinja
		if base == 1 && !Legacy(gen) {
			return 1
		}
		return core + level + 10
	}

	stat := core + 5
	if !Legacy(gen) {
		stat = stat * nature.Percent(id) / 100
	}
	return stat
}

// CalcTable computes a full stat table from a spread.
func CalcTable(gen int, base, ivs, evs Table, level int, nature Nature) Table {
	var out Table
	for _, id := range IDs {
		out.Set(id, Calc(gen, id, base.Get(id), ivs.Get(id), evs.Get(id), level, nature))
	}
	return out
}

// DVToIV doubles a legacy determinant value into the IV scale.
func DVToIV(dv int) int { return clamp(dv, 0, MaxDV) * 2 }

// IVToDV halves an IV back to a legacy determinant value.
func IVToDV(iv int) int { return clamp(iv, 0, 30) / 2 }

// HPDV derives the legacy HP determinant from the parities of the other four.
func HPDV(atk, def, spe, spc int) int {
	return (atk&1)<<3 | (def&1)<<2 | (spe&1)<<1 | spc&1
}
