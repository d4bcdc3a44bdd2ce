package movepower

import (
	"battlecalc/internal/battle"
	"battlecalc/internal/dex"
	"battlecalc/internal/finalstats"
	"battlecalc/internal/stats"
)

// Striker is one contributor to a multi-strike move.
type Striker struct {
	PokemonID string `json:"pokemonId,omitempty"`
	Species   string `json:"species,omitempty"`
	BasePower int    `json:"basePower"`
	// Hits is the number of strikes the entry stands for.
	Hits int `json:"hits"`
}

// Result is a move's effective base power and type.
type Result struct {
	Move      string    `json:"move"`
	Type      string    `json:"type"`
	Category  string    `json:"category"`
	BasePower int       `json:"basePower"`
	Strikers  []Striker `json:"strikers,omitempty"`
}

// Input is a move in its matchup context.
type Input struct {
	Dex      *dex.Dex
	Move     string
	Attacker *battle.Pokemon
	Defender *battle.Pokemon
	Side     *battle.Side
	// Roster is the attacker's side in reveal order.
	Roster []*battle.Pokemon
	Field  battle.Field
	// AttackerSpeed and DefenderSpeed are final speeds; zero when unknown.
	AttackerSpeed int
	DefenderSpeed int
}

// Resolve computes the effective base power. An unknown move yields an
// empty result.
func Resolve(in Input) Result {
	m, ok := in.Dex.Move(in.Move)
	if !ok {
		return Result{}
	}
	res := Result{Move: m.Name, Type: m.Type, Category: m.Category, BasePower: m.BasePower}
	a, d := in.Attacker, in.Defender
	if a == nil {
		return res
	}
	gen := in.Dex.Gen()

	switch dex.ID(m.Name) {
	case "ragefist":
		res.BasePower = min(350, 50+50*a.HitCounter)
	case "lastrespects":
		faints := a.FaintCounter
		if faints <= 0 && in.Side != nil {
			faints = in.Side.FaintCount
		}
		res.BasePower = min(5000, 50+50*faints)
	case "beatup":
		beatUp(in, &res)
	case "weatherball":
		weatherBall(in, &res)
	case "terrainpulse":
		terrainPulse(in, &res)
	case "hiddenpower":
		res.Type, res.BasePower = HiddenPower(gen, a.IVs)
	case "storedpower", "powertrip":
		res.BasePower = 20 + 20*a.EffectiveBoosts().PositiveSum()
	case "acrobatics":
		if a.Item.Value() == "" {
			res.BasePower = m.BasePower * 2
		}
	case "facade":
		if gen >= 3 && a.IsStatused() && a.Status != "slp" && a.Status != "frz" {
			res.BasePower = m.BasePower * 2
		}
	case "hex":
		if d != nil && d.IsStatused() {
			res.BasePower = m.BasePower * 2
		}
	case "eruption", "waterspout", "dragonenergy":
		if a.HPKnown() {
			res.BasePower = max(1, 150*a.HP/a.MaxHP)
		}
	case "flail", "reversal":
		if a.HPKnown() {
			res.BasePower = flail(a.HP, a.MaxHP)
		}
	case "gyroball":
		if in.AttackerSpeed > 0 && in.DefenderSpeed > 0 {
			res.BasePower = min(150, 25*in.DefenderSpeed/in.AttackerSpeed+1)
		}
	case "electroball":
		if in.AttackerSpeed > 0 && in.DefenderSpeed > 0 {
			res.BasePower = electroBall(in.AttackerSpeed / in.DefenderSpeed)
		}
	}
	return res
}

func flail(hp, maxHP int) int {
	p := 48 * hp / maxHP
	switch {
	case p <= 1:
		return 200
	case p <= 4:
		return 150
	case p <= 9:
		return 100
	case p <= 16:
		return 80
	case p <= 32:
		return 40
	}
	return 20
}

func electroBall(ratio int) int {
	switch {
	case ratio >= 4:
		return 150
	case ratio >= 3:
		return 120
	case ratio >= 2:
		return 80
	case ratio >= 1:
		return 60
	}
	return 40
}

// beatUp lists one striker per eligible party member, the user included.
// Legacy rules fold every strike into a single typeless entry.
func beatUp(in Input, res *Result) {
	var eligible []*battle.Pokemon
	for _, p := range in.Roster {
		if p == nil || p.Fainted || p.IsStatused() {
			continue
		}
		eligible = append(eligible, p)
	}
	if len(eligible) == 0 {
		res.BasePower = 0
		return
	}

	if in.Dex.Gen() <= 4 {
		res.Type = "???"
		res.BasePower = 10
		res.Strikers = []Striker{{BasePower: 10, Hits: len(eligible)}}
		return
	}

	for _, p := range eligible {
		base, _ := finalstats.BaseStats(in.Dex, p)
		res.Strikers = append(res.Strikers, Striker{
			PokemonID: p.ID,
			Species:   p.SpeciesForme,
			BasePower: base.Atk/10 + 5,
			Hits:      1,
		})
	}
	res.BasePower = res.Strikers[0].BasePower
}

func weatherSuppressed(in Input) bool {
	for _, p := range []*battle.Pokemon{in.Attacker, in.Defender} {
		if p != nil && p.HasAbility("Cloud Nine", "Air Lock") {
			return true
		}
	}
	return false
}

func weatherBall(in Input, res *Result) {
	if weatherSuppressed(in) {
		return
	}
	umbrella := in.Attacker.HasItem("Utility Umbrella")
	typ := ""
	switch dex.ID(in.Field.Weather.Value()) {
	case "sun", "sunnyday", "harshsunshine", "desolateland":
		if !umbrella {
			typ = "Fire"
		}
	case "rain", "raindance", "heavyrain", "primordialsea":
		if !umbrella {
			typ = "Water"
		}
	case "sand", "sandstorm":
		typ = "Rock"
	case "hail", "snow", "snowscape":
		typ = "Ice"
	}
	if typ == "" {
		return
	}
	res.Type = typ
	res.BasePower *= 2
}

func grounded(in Input) bool {
	a := in.Attacker
	if in.Field.Gravity || a.HasItem("Iron Ball") {
		return true
	}
	if a.HasType("Flying") || a.HasAbility("Levitate") || a.HasItem("Air Balloon") {
		return false
	}
	if len(a.CurrentTypes()) == 0 {
		if s, ok := in.Dex.Species(a.Forme()); ok && s.HasType("Flying") {
			return false
		}
	}
	return true
}

func terrainPulse(in Input, res *Result) {
	if !grounded(in) {
		return
	}
	typ := ""
	switch dex.ID(in.Field.Terrain.Value()) {
	case "electric", "electricterrain":
		typ = "Electric"
	case "grassy", "grassyterrain":
		typ = "Grass"
	case "psychic", "psychicterrain":
		typ = "Psychic"
	case "misty", "mistyterrain":
		typ = "Fairy"
	}
	if typ == "" {
		return
	}
	res.Type = typ
	res.BasePower *= 2
}

var hiddenPowerTypes = [16]string{
	"Fighting", "Flying", "Poison", "Ground", "Rock", "Bug", "Ghost", "Steel",
	"Fire", "Water", "Grass", "Electric", "Psychic", "Ice", "Dragon", "Dark",
}

// HiddenPower derives Hidden Power's type and power from IVs. Legacy gens
// read DVs; gen 6 onwards fixes the power at 60.
func HiddenPower(gen int, ivs stats.Table) (string, int) {
	if stats.Legacy(gen) {
		atk, def := stats.IVToDV(ivs.Atk), stats.IVToDV(ivs.Def)
		spe, spc := stats.IVToDV(ivs.Spe), stats.IVToDV(ivs.SpA)
		typ := hiddenPowerTypes[4*(atk&3)+(def&3)]
		msb := func(dv int) int { return dv >> 3 & 1 }
		power := (5*(msb(spc)+2*msb(spe)+4*msb(def)+8*msb(atk))+spc&3)/2 + 31
		return typ, power
	}

	order := []stats.ID{stats.HP, stats.Atk, stats.Def, stats.Spe, stats.SpA, stats.SpD}
	typeBits, powerBits := 0, 0
	for i, id := range order {
		iv := ivs.Get(id)
		typeBits |= (iv & 1) << i
		powerBits |= (iv >> 1 & 1) << i
	}
	typ := hiddenPowerTypes[typeBits*15/63]
	power := 60
	if gen <= 5 {
		power = powerBits*40/63 + 30
	}
	return typ, power
}

// ForMatch resolves a move used by attackerID against defenderID, with final
// speeds taken from the match.
func ForMatch(d *dex.Dex, m *battle.Match, move, attackerID, defenderID string) (Result, bool) {
	if m == nil {
		return Result{}, false
	}
	a, ok := m.Pokemon[attackerID]
	if !ok {
		return Result{}, false
	}
	def := m.Pokemon[defenderID]
	side, _ := m.Side(a.Side)

	in := Input{
		Dex:      d,
		Move:     move,
		Attacker: a,
		Defender: def,
		Side:     side,
		Roster:   m.Roster(a.Side),
		Field:    m.Field,
	}
	if out, ok := finalstats.ForMatch(d, m, attackerID, defenderID); ok {
		in.AttackerSpeed = out.Stats.Spe
	}
	if def != nil {
		if out, ok := finalstats.ForMatch(d, m, defenderID, attackerID); ok {
			in.DefenderSpeed = out.Stats.Spe
		}
	}
	return Resolve(in), true
}
