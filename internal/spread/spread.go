package spread

import (
	"battlecalc/internal/stats"
)

// Input is everything the guesser needs for one specimen.
type Input struct {
	Gen   int
	Level int
	Base  stats.Table
	// Stats are the authoritative final stats. A zero HP means the value
	// was not observable (e.g. the specimen had fainted).
	Stats stats.Table
	// NatureHint, when it names a real nature, is tried first.
	NatureHint string
	// EVCap overrides the summed EV limit; zero uses the gen default.
	EVCap int
}

// Result is a guessed genetic spread. Found is false when no legal
// combination reproduces the input stats; the other fields are then empty.
type Result struct {
	Found  bool
	Nature string
	IVs    stats.Table
	EVs    stats.Table
}

// naturePriority is the order natures are tried after the hint. The order
// only decides which of several equivalent spreads is reported.
var naturePriority = []string{
	"Adamant", "Jolly", "Modest", "Timid",
	"Bold", "Impish", "Calm", "Careful",
	"Brave", "Quiet", "Relaxed", "Sassy",
	"Lonely", "Naughty", "Hasty", "Naive",
	"Mild", "Rash", "Lax", "Gentle",
	"Hardy", "Docile", "Serious", "Bashful", "Quirky",
}

var nonHP = []stats.ID{stats.Atk, stats.Def, stats.SpA, stats.SpD, stats.Spe}

// Guess searches for a nature/IV/EV combination reproducing in.Stats.
func Guess(in Input) Result {
	if in.Base.IsZero() || in.Level <= 0 {
		return Result{}
	}
	if !hasNonHP(in.Stats) {
		return Result{}
	}
	if stats.Legacy(in.Gen) {
		return guessLegacy(in)
	}

	evCap := in.EVCap
	if evCap <= 0 {
		evCap = stats.TotalEVCap(in.Gen)
	}

	for _, nature := range natureOrder(in.NatureHint) {
		res, ok := tryNature(in, nature, evCap)
		if ok {
			return res
		}
	}
	return Result{}
}

func tryNature(in Input, nature stats.Nature, evCap int) (Result, bool) {
	res := Result{Found: true, Nature: nature.Name}

	for _, id := range nonHP {
		target := in.Stats.Get(id)
		if target <= 0 {
			res.IVs.Set(id, stats.MaxIV)
			continue
		}
		iv, ev, ok := searchStat(in, id, target, nature)
		if !ok {
			return Result{}, false
		}
		res.IVs.Set(id, iv)
		res.EVs.Set(id, ev)
	}

	hpKnown := in.Stats.HP > 0
	if hpKnown {
		iv, ev, ok := searchStat(in, stats.HP, in.Stats.HP, nature)
		if !ok {
			return Result{}, false
		}
		res.IVs.HP = iv
		res.EVs.HP = ev
	} else {
		res.IVs.HP = stats.MaxIV
	}

	total := res.EVs.Sum()
	if total > evCap {
		return Result{}, false
	}
	if !hpKnown {
		res.EVs.HP = backfill(evCap - total)
	}
	return res, true
}

// searchStat walks IVs from 31 down and EVs from 0 up in steps of 4, and
// returns the first pair that reproduces target.
func searchStat(in Input, id stats.ID, target int, nature stats.Nature) (int, int, bool) {
	base := in.Base.Get(id)
	for iv := stats.MaxIV; iv >= 0; iv-- {
		for ev := 0; ev <= stats.MaxEV; ev += stats.EVStep {
			v := stats.Calc(in.Gen, id, base, iv, ev, in.Level, nature)
			if v == target {
				return iv, ev, true
			}
			if v > target {
				break
			}
		}
	}
	return 0, 0, false
}

func backfill(remaining int) int {
	if remaining <= 0 {
		return 0
	}
	if remaining > stats.MaxEV {
		remaining = stats.MaxEV
	}
	return remaining - remaining%stats.EVStep
}

func natureOrder(hint string) []stats.Nature {
	out := make([]stats.Nature, 0, len(naturePriority)+1)
	hinted, hasHint := stats.LookupNature(hint)
	if hasHint {
		out = append(out, hinted)
	}
	for _, name := range naturePriority {
		if hasHint && name == hinted.Name {
			continue
		}
		n, _ := stats.LookupNature(name)
		out = append(out, n)
	}
	return out
}

func hasNonHP(t stats.Table) bool {
	for _, id := range nonHP {
		if t.Get(id) > 0 {
			return true
		}
	}
	return false
}

// OK reports whether the search produced a usable spread.
func (r Result) OK() bool { return r.Found }
