package finalstats

import (
	"battlecalc/internal/battle"
	"battlecalc/internal/dex"
	"battlecalc/internal/stats"
)

// BaseStats returns the base stats that apply to p: its own forme's, or
// the transformation target's with p's own HP, with any user base-stat
// override laid over them.
func BaseStats(d *dex.Dex, p *battle.Pokemon) (stats.Table, bool) {
	base, ok := d.BaseStats(p.SpeciesForme)
	if p.Transformed && p.TransformedForme != "" {
		if target, tok := d.BaseStats(p.TransformedForme); tok {
			hp := base.HP
			base = target
			base.HP = hp
			ok = true
		}
	}
	if !p.BaseOverride.IsZero() {
		base = base.Overlay(p.BaseOverride)
		ok = true
	}
	return base, ok && !base.IsZero()
}

// Genetics computes the stats implied by p's nature, IVs, EVs and level
// alone. Unknown genetics default to maximum IVs and no EVs; legacy gens
// default to maximum stat experience.
func Genetics(d *dex.Dex, p *battle.Pokemon) stats.Table {
	if d == nil || p == nil {
		return stats.Table{}
	}
	base, ok := BaseStats(d, p)
	if !ok {
		return stats.Table{}
	}
	gen := d.Gen()

	ivs, evs := p.IVs, p.EVs
	if ivs.IsZero() && evs.IsZero() {
		ivs = stats.Uniform(stats.MaxIV)
		if stats.Legacy(gen) {
			evs = stats.Uniform(stats.MaxEV)
		}
	}
	nature, ok := stats.LookupNature(p.Nature)
	if !ok {
		nature = stats.NeutralNature
	}
	level := p.Level
	if level <= 0 {
		level = stats.MaxLevel
	}
	return stats.CalcTable(gen, base, ivs, evs, level, nature)
}
