package stats

import "strings"

// Nature raises one stat by 10% and lowers another by 10%. Neutral natures
// have Plus == Minus.
type Nature struct {
	Name  string
	Plus  ID
	Minus ID
}

// Neutral reports whether the nature leaves every stat untouched.
func (n Nature) Neutral() bool { return n.Plus == n.Minus }

// Percent returns the nature modifier for id as a percentage (90, 100, 110).
func (n Nature) Percent(id ID) int {
	if n.Neutral() || id == HP {
		return 100
	}
	switch id {
	case n.Plus:
		return 110
	case n.Minus:
		return 90
	}
	return 100
}

var natures = []Nature{
	{"Hardy", Atk, Atk},
	{"Lonely", Atk, Def},
	{"Brave", Atk, Spe},
	{"Adamant", Atk, SpA},
	{"Naughty", Atk, SpD},
	{"Bold", Def, Atk},
	{"Docile", Def, Def},
	{"Relaxed", Def, Spe},
	{"Impish", Def, SpA},
	{"Lax", Def, SpD},
	{"Timid", Spe, Atk},
	{"Hasty", Spe, Def},
	{"Serious", Spe, Spe},
	{"Jolly", Spe, SpA},
	{"Naive", Spe, SpD},
	{"Modest", SpA, Atk},
	{"Mild", SpA, Def},
	{"Quiet", SpA, Spe},
	{"Bashful", SpA, SpA},
	{"Rash", SpA, SpD},
	{"Calm", SpD, Atk},
	{"Gentle", SpD, Def},
	{"Sassy", SpD, Spe},
	{"Careful", SpD, SpA},
	{"Quirky", SpD, SpD},
}

// Natures returns every nature in index order.
func Natures() []Nature {
	out := make([]Nature, len(natures))
	copy(out, natures)
	return out
}

// LookupNature finds a nature by case-insensitive name.
func LookupNature(name string) (Nature, bool) {
	name = strings.TrimSpace(name)
	for _, n := range natures {
		if strings.EqualFold(n.Name, name) {
			return n, true
		}
	}
	return Nature{}, false
}

// NeutralNature is used wherever a nature is required but none is known.
var NeutralNature = Nature{"Hardy", Atk, Atk}
