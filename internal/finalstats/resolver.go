package finalstats

import (
	"fmt"
	"strings"

	"battlecalc/internal/battle"
	"battlecalc/internal/dex"
	"battlecalc/internal/ledger"
	"battlecalc/internal/stats"
)

// Input is one specimen in its matchup context.
type Input struct {
	Dex          *dex.Dex
	Pokemon      *battle.Pokemon
	Opponent     *battle.Pokemon
	Side         *battle.Side
	OpponentSide *battle.Side
	Field        battle.Field
	// Combatants is every active specimen on every side, the specimen
	// itself included.
	Combatants []*battle.Pokemon
}

type ruin struct {
	ability string
	stat    stats.ID
}

var ruinAbilities = []ruin{
	{"Tablets of Ruin", stats.Atk},
	{"Sword of Ruin", stats.Def},
	{"Vessel of Ruin", stats.SpA},
	{"Beads of Ruin", stats.SpD},
}

// Seed builds the ledger from base stats, the user's base override, the
// server's stats and the genetics-only stats, in that order.
func Seed(d *dex.Dex, p *battle.Pokemon) *ledger.Ledger {
	if p == nil {
		return ledger.New()
	}
	var base stats.Table
	if d != nil {
		base, _ = BaseStats(d, p)
	}
	server := p.ServerStats
	if p.Transformed {
		server = stats.Table{HP: server.HP}
	}
	spread := p.SpreadStats
	if spread.IsZero() {
		spread = Genetics(d, p)
	}
	return ledger.New(base, p.BaseOverride, server, spread)
}

// Resolve applies every known stat interaction to the seeded stats, in the
// order the game applies them.
func Resolve(in Input) ledger.Export {
	d, p, opp := in.Dex, in.Pokemon, in.Opponent
	l := Seed(d, p)

	if !resolvable(d, p) || !resolvable(d, opp) {
		return l.Export()
	}
	gen := d.Gen()
	r := resolver{in: in, gen: gen, l: l}

	if gen >= 8 && p.Dynamaxed {
		l.Apply(stats.HP, 2, ledger.CategoryMechanic, "Dynamax")
	}

	r.swaps()
	r.boosts()
	r.status()
	if gen >= 2 {
		r.items()
	}
	if gen >= 3 {
		r.abilities()
	}
	if gen >= 9 {
		r.ruin()
	}
	if gen >= 2 {
		r.weather()
	}
	if gen >= 5 {
		r.nfe()
	}
	if gen >= 6 {
		r.terrain()
	}
	if gen >= 4 {
		r.sideEffects()
	}
	if gen >= 3 {
		r.toggled()
	}
	if gen == 1 {
		l.Cap(999, "stat ceiling")
	}
	return l.Export()
}

func resolvable(d *dex.Dex, p *battle.Pokemon) bool {
	if d == nil || p == nil || p.SpeciesForme == "" {
		return false
	}
	_, ok := d.Species(p.SpeciesForme)
	return ok
}

type resolver struct {
	in  Input
	gen int
	l   *ledger.Ledger
}

func (r *resolver) p() *battle.Pokemon { return r.in.Pokemon }

func (r *resolver) ability(names ...string) bool {
	if r.gen < 3 {
		return false
	}
	return r.p().HasAbility(names...)
}

func (r *resolver) itemActive() bool {
	if r.gen < 2 || r.in.Field.MagicRoom {
		return false
	}
	return !r.ability("Klutz")
}

func (r *resolver) item(names ...string) bool {
	return r.itemActive() && r.p().HasItem(names...)
}

func (r *resolver) species(names ...string) bool {
	forme := r.p().SpeciesForme
	if s, ok := r.in.Dex.Species(forme); ok {
		forme = s.Base()
	}
	id := dex.ID(forme)
	for _, n := range names {
		if dex.ID(n) == id {
			return true
		}
	}
	return false
}

// hasType falls back to the dex types while the record has none.
func (r *resolver) hasType(typ string) bool {
	p := r.p()
	if len(p.CurrentTypes()) > 0 {
		return p.HasType(typ)
	}
	s, ok := r.in.Dex.Species(p.Forme())
	return ok && s.HasType(typ)
}

func (r *resolver) swaps() {
	if r.gen >= 5 && r.in.Field.WonderRoom {
		r.l.Swap(stats.Def, stats.SpD, ledger.CategoryVolatile, "Wonder Room")
	}
	if r.gen >= 4 && r.p().HasVolatile("Power Trick") {
		r.l.Swap(stats.Atk, stats.Def, ledger.CategoryVolatile, "Power Trick")
	}
}

func (r *resolver) boosts() {
	b := r.p().EffectiveBoosts()
	simple := r.gen >= 4 && r.ability("Simple")
	for _, id := range stats.BoostIDs {
		stage := b.Get(id)
		if simple {
			stage = stats.ClampStage(stage * 2)
		}
		if stage == 0 {
			continue
		}
		r.l.Apply(id, stats.StageMultiplier(r.gen, stage), ledger.CategoryBoost, fmt.Sprintf("%+d", stage))
	}
}

func (r *resolver) status() {
	p := r.p()
	switch p.Status {
	case "par":
		if r.ability("Quick Feet") {
			return
		}
		mult := 0.25
		if r.gen >= 7 {
			mult = 0.5
		}
		r.l.Apply(stats.Spe, mult, ledger.CategoryStatus, "Paralysis")
	case "brn":
		if r.gen <= 2 {
			r.l.Apply(stats.Atk, 0.5, ledger.CategoryStatus, "Burn")
		}
	}
}

func (r *resolver) items() {
	p := r.p()
	if !r.itemActive() {
		return
	}
	item := p.Item.Value()
	cat := ledger.CategoryItem

	if !p.Dynamaxed {
		switch {
		case r.gen >= 3 && p.HasItem("Choice Band"):
			r.l.Apply(stats.Atk, 1.5, cat, item)
		case r.gen >= 4 && p.HasItem("Choice Specs"):
			r.l.Apply(stats.SpA, 1.5, cat, item)
		case r.gen >= 4 && p.HasItem("Choice Scarf"):
			r.l.Apply(stats.Spe, 1.5, cat, item)
		}
	}

	switch {
	case r.gen >= 6 && p.HasItem("Assault Vest"):
		r.l.Apply(stats.SpD, 1.5, cat, item)
	case p.HasItem("Light Ball") && r.species("Pikachu"):
		if r.gen >= 4 {
			r.l.Apply(stats.Atk, 2, cat, item)
		}
		r.l.Apply(stats.SpA, 2, cat, item)
	case p.HasItem("Thick Club") && r.species("Cubone", "Marowak"):
		r.l.Apply(stats.Atk, 2, cat, item)
	case r.gen >= 3 && p.HasItem("Deep Sea Tooth") && r.species("Clamperl"):
		r.l.Apply(stats.SpA, 2, cat, item)
	case r.gen >= 3 && p.HasItem("Deep Sea Scale") && r.species("Clamperl"):
		r.l.Apply(stats.SpD, 2, cat, item)
	case p.HasItem("Metal Powder") && r.species("Ditto") && !p.Transformed:
		r.l.Apply(stats.Def, 2, cat, item)
	case r.gen >= 4 && p.HasItem("Quick Powder") && r.species("Ditto") && !p.Transformed:
		r.l.Apply(stats.Spe, 2, cat, item)
	case r.gen >= 3 && r.gen <= 6 && p.HasItem("Soul Dew") && r.species("Latios", "Latias"):
		r.l.Apply(stats.SpA, 1.5, cat, item)
		r.l.Apply(stats.SpD, 1.5, cat, item)
	case r.gen >= 4 && p.HasItem("Iron Ball", "Macho Brace", "Power Weight", "Power Bracer",
		"Power Belt", "Power Lens", "Power Band", "Power Anklet"):
		r.l.Apply(stats.Spe, 0.5, cat, item)
	}
}

func (r *resolver) abilities() {
	p := r.p()
	ability := p.Ability.Value()
	cat := ledger.CategoryAbility
	statused := p.IsStatused()

	switch {
	case r.ability("Huge Power", "Pure Power"):
		r.l.Apply(stats.Atk, 2, cat, ability)
	case r.ability("Hustle"):
		r.l.Apply(stats.Atk, 1.5, cat, ability)
	case r.ability("Guts") && statused:
		r.l.Apply(stats.Atk, 1.5, cat, ability)
	case r.ability("Marvel Scale") && statused:
		r.l.Apply(stats.Def, 1.5, cat, ability)
	case r.gen >= 4 && r.ability("Quick Feet") && statused:
		r.l.Apply(stats.Spe, 1.5, cat, ability)
	case r.gen >= 8 && r.ability("Gorilla Tactics") && !p.Dynamaxed:
		r.l.Apply(stats.Atk, 1.5, cat, ability)
	case r.gen >= 6 && r.ability("Fur Coat"):
		r.l.Apply(stats.Def, 2, cat, ability)
	case r.gen >= 5 && r.ability("Defeatist") && p.HPKnown() && p.HP*2 <= p.MaxHP:
		r.l.Apply(stats.Atk, 0.5, cat, ability)
		r.l.Apply(stats.SpA, 0.5, cat, ability)
	case r.ability("Plus", "Minus") && r.allyHas("Plus", "Minus"):
		r.l.Apply(stats.SpA, 1.5, cat, ability)
	}
}

func (r *resolver) allyHas(names ...string) bool {
	p := r.p()
	for _, c := range r.in.Combatants {
		if c == nil || c.ID == p.ID || c.Side != p.Side {
			continue
		}
		if c.HasAbility(names...) {
			return true
		}
	}
	return false
}

// ruin applies each ruin ability held by any other active combatant once.
func (r *resolver) ruin() {
	p := r.p()
	for _, ru := range ruinAbilities {
		if p.HasAbility(ru.ability) {
			continue
		}
		count := 0
		for _, c := range r.in.Combatants {
			if c == nil || c.ID == p.ID || c.Fainted {
				continue
			}
			if c.HasAbility(ru.ability) {
				count++
			}
		}
		if count == 0 {
			continue
		}
		label := ru.ability
		if count > 1 {
			label = fmt.Sprintf("%s (x%d)", ru.ability, count)
		}
		r.l.Apply(ru.stat, 0.75, ledger.CategoryRuin, label)
	}
}

func (r *resolver) weatherSuppressed() bool {
	if r.gen < 3 {
		return false
	}
	for _, c := range []*battle.Pokemon{r.in.Pokemon, r.in.Opponent} {
		if c != nil && c.HasAbility("Cloud Nine", "Air Lock") {
			return true
		}
	}
	return false
}

func (r *resolver) weather() {
	weather := normalizeWeather(r.in.Field.Weather.Value())
	if weather == "" || r.weatherSuppressed() {
		return
	}
	cat := ledger.CategoryWeather
	umbrella := r.gen >= 8 && r.item("Utility Umbrella")

	switch weather {
	case "sun":
		if umbrella {
			return
		}
		switch {
		case r.ability("Chlorophyll"):
			r.l.Apply(stats.Spe, 2, cat, "Chlorophyll")
		case r.ability("Solar Power"):
			r.l.Apply(stats.SpA, 1.5, cat, "Solar Power")
		case r.gen >= 4 && r.ability("Flower Gift"):
			r.l.Apply(stats.Atk, 1.5, cat, "Flower Gift")
			r.l.Apply(stats.SpD, 1.5, cat, "Flower Gift")
		case r.gen >= 9 && r.ability("Orichalcum Pulse"):
			r.l.Apply(stats.Atk, 5461.0/4096, cat, "Orichalcum Pulse")
		}
	case "rain":
		if !umbrella && r.ability("Swift Swim") {
			r.l.Apply(stats.Spe, 2, cat, "Swift Swim")
		}
	case "sand":
		if r.gen >= 4 && r.hasType("Rock") {
			r.l.Apply(stats.SpD, 1.5, cat, "Sandstorm")
		}
		if r.gen >= 5 && r.ability("Sand Rush") {
			r.l.Apply(stats.Spe, 2, cat, "Sand Rush")
		}
	case "hail", "snow":
		if r.gen >= 9 && weather == "snow" && r.hasType("Ice") {
			r.l.Apply(stats.Def, 1.5, cat, "Snow")
		}
		if r.gen >= 7 && r.ability("Slush Rush") {
			r.l.Apply(stats.Spe, 2, cat, "Slush Rush")
		}
	}
}

func normalizeWeather(w string) string {
	switch dex.ID(w) {
	case "sun", "sunnyday", "harshsunshine", "desolateland":
		return "sun"
	case "rain", "raindance", "heavyrain", "primordialsea":
		return "rain"
	case "sand", "sandstorm":
		return "sand"
	case "hail":
		return "hail"
	case "snow", "snowscape":
		return "snow"
	}
	return ""
}

func normalizeTerrain(t string) string {
	id := dex.ID(t)
	return strings.TrimSuffix(id, "terrain")
}

func (r *resolver) nfe() {
	if !r.item("Eviolite") {
		return
	}
	s, ok := r.in.Dex.Species(r.p().SpeciesForme)
	if !ok || !s.NFE {
		return
	}
	r.l.Apply(stats.Def, 1.5, ledger.CategoryItem, "Eviolite")
	r.l.Apply(stats.SpD, 1.5, ledger.CategoryItem, "Eviolite")
}

func (r *resolver) terrain() {
	cat := ledger.CategoryTerrain
	switch normalizeTerrain(r.in.Field.Terrain.Value()) {
	case "electric":
		if r.gen >= 7 && r.ability("Surge Surfer") {
			r.l.Apply(stats.Spe, 2, cat, "Surge Surfer")
		}
		if r.gen >= 9 && r.ability("Hadron Engine") {
			r.l.Apply(stats.SpA, 5461.0/4096, cat, "Hadron Engine")
		}
	case "grassy":
		if r.ability("Grass Pelt") {
			r.l.Apply(stats.Def, 1.5, cat, "Grass Pelt")
		}
	}
}

func (r *resolver) sideEffects() {
	s := r.in.Side
	if s == nil {
		return
	}
	if s.Conditions.Tailwind {
		r.l.Apply(stats.Spe, 2, ledger.CategorySide, "Tailwind")
	}
	if s.Conditions.Swamp {
		r.l.Apply(stats.Spe, 0.25, ledger.CategorySide, "Swamp")
	}
}

// toggled applies abilities whose activation is tracked on the specimen.
func (r *resolver) toggled() {
	p := r.p()
	cat := ledger.CategoryAbility

	if p.AbilityToggled {
		switch {
		case r.gen >= 4 && r.ability("Unburden"):
			r.l.Apply(stats.Spe, 2, cat, "Unburden")
		case r.gen >= 4 && r.ability("Slow Start"):
			r.l.Apply(stats.Atk, 0.5, cat, "Slow Start")
			r.l.Apply(stats.Spe, 0.5, cat, "Slow Start")
		}
	}

	if r.gen >= 9 && p.BoostedStat != "" && r.ability("Protosynthesis", "Quark Drive") {
		id, ok := stats.Parse(p.BoostedStat)
		if !ok || id == stats.HP {
			return
		}
		mult := 1.3
		if id == stats.Spe {
			mult = 1.5
		}
		r.l.Apply(id, mult, cat, p.Ability.Value())
	}
}
