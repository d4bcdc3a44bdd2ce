package stats

import "strings"

// ID identifies one of the six battle stats.
type ID int

const (
	HP ID = iota
	Atk
	Def
	SpA
	SpD
	Spe
)

// IDs lists every stat in table order.
var IDs = []ID{HP, Atk, Def, SpA, SpD, Spe}

// BoostIDs lists the stats that can carry a stage boost.
var BoostIDs = []ID{Atk, Def, SpA, SpD, Spe}

var idNames = [...]string{"hp", "atk", "def", "spa", "spd", "spe"}

// String returns the short lower-case name ("hp", "atk", ...)
func (id ID) String() string {
	if id < HP || id > Spe {
		return "unknown"
	}
	return idNames[id]
}

// Parse converts a short stat name into an ID. "spc" maps to SpA for legacy
// rule sets that only know a single special stat.
func Parse(s string) (ID, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hp":
		return HP, true
	case "atk":
		return Atk, true
	case "def":
		return Def, true
	case "spa", "spc":
		return SpA, true
	case "spd":
		return SpD, true
	case "spe":
		return Spe, true
	}
	return HP, false
}

// Table holds one value per stat.
type Table struct {
	HP  int `json:"hp" yaml:"hp"`
	Atk int `json:"atk" yaml:"atk"`
	Def int `json:"def" yaml:"def"`
	SpA int `json:"spa" yaml:"spa"`
	SpD int `json:"spd" yaml:"spd"`
	Spe int `json:"spe" yaml:"spe"`
}

// Uniform returns a table with every stat set to v.
func Uniform(v int) Table {
	return Table{HP: v, Atk: v, Def: v, SpA: v, SpD: v, Spe: v}
}

// Get returns the value stored for id.
func (t Table) Get(id ID) int {
	switch id {
	case HP:
		return t.HP
	case Atk:
		return t.Atk
	case Def:
		return t.Def
	case SpA:
		return t.SpA
	case SpD:
		return t.SpD
	case Spe:
		return t.Spe
	}
	return 0
}

// Set stores v for id.
func (t *Table) Set(id ID, v int) {
	switch id {
	case HP:
		t.HP = v
	case Atk:
		t.Atk = v
	case Def:
		t.Def = v
	case SpA:
		t.SpA = v
	case SpD:
		t.SpD = v
	case Spe:
		t.Spe = v
	}
}

// IsZero reports whether every stat is zero.
func (t Table) IsZero() bool {
	return t == Table{}
}

// Sum adds up every stat.
func (t Table) Sum() int {
	return t.HP + t.Atk + t.Def + t.SpA + t.SpD + t.Spe
}

// Overlay returns t with every nonzero stat of o copied over it.
func (t Table) Overlay(o Table) Table {
	for _, id := range IDs {
		if v := o.Get(id); v != 0 {
			t.Set(id, v)
		}
	}
	return t
}

// Boosts holds stage boosts (-6..+6) for the non-HP stats.
type Boosts struct {
	Atk int `json:"atk,omitempty" yaml:"atk"`
	Def int `json:"def,omitempty" yaml:"def"`
	SpA int `json:"spa,omitempty" yaml:"spa"`
	SpD int `json:"spd,omitempty" yaml:"spd"`
	Spe int `json:"spe,omitempty" yaml:"spe"`
}

// Get returns the stage for id; HP is always 0.
func (b Boosts) Get(id ID) int {
	switch id {
	case Atk:
		return b.Atk
	case Def:
		return b.Def
	case SpA:
		return b.SpA
	case SpD:
		return b.SpD
	case Spe:
		return b.Spe
	}
	return 0
}

// Set stores a clamped stage for id.
func (b *Boosts) Set(id ID, stage int) {
	stage = ClampStage(stage)
	switch id {
	case Atk:
		b.Atk = stage
	case Def:
		b.Def = stage
	case SpA:
		b.SpA = stage
	case SpD:
		b.SpD = stage
	case Spe:
		b.Spe = stage
	}
}

// PositiveSum counts the positive stages, as used by Stored Power.
func (b Boosts) PositiveSum() int {
	n := 0
	for _, id := range BoostIDs {
		if v := b.Get(id); v > 0 {
			n += v
		}
	}
	return n
}

// ClampStage limits a stage to -6..+6.
func ClampStage(stage int) int {
	if stage > 6 {
		return 6
	}
	if stage < -6 {
		return -6
	}
	return stage
}

// legacyStagePercent is the gen 1-2 stage table, indexed by stage+6.
var legacyStagePercent = [13]int{25, 28, 33, 40, 50, 66, 100, 150, 200, 250, 300, 350, 400}

// StageMultiplier returns the multiplier for a stage boost. Gens 1 and 2 use
// a percentage table; later gens use (2+n)/2 and 2/(2-n).
func StageMultiplier(gen, stage int) float64 {
	stage = ClampStage(stage)
	if gen > 0 && gen <= 2 {
		return float64(legacyStagePercent[stage+6]) / 100
	}
	if stage >= 0 {
		return float64(2+stage) / 2
	}
	return 2 / float64(2-stage)
}
