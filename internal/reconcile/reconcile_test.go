package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	json "github.com/goccy/go-json"

	"battlecalc/internal/battle"
	"battlecalc/internal/dex"
	"battlecalc/internal/finalstats"
	"battlecalc/internal/host"
	"battlecalc/internal/presets"
	"battlecalc/internal/stats"
)

func newTestReconciler(opts ...Option) *Reconciler {
	n := 0
	next := func() string {
		n++
		return fmt.Sprintf("mon-%d", n)
	}
	return New(dex.Seed(), append([]Option{WithIDGenerator(next)}, opts...)...)
}

// jollyGarchomp is 31 IVs, 4 HP / 252 Atk / 252 Spe at level 100.
var jollyGarchomp = map[string]int{"atk": 359, "def": 226, "spa": 176, "spd": 206, "spe": 333}

func localBattle() *host.Battle {
	b := &host.Battle{
		ID:       "battle-gen9ou-1",
		Gen:      9,
		Format:   "gen9ou",
		GameType: "singles",
		Turn:     1,
		MySide:   "p1",
		Sides: []host.Side{
			{
				ID:           "p1",
				Name:         "ash",
				TotalPokemon: 6,
				Active:       []string{"p1a: Garchomp"},
				Pokemon: []host.Pokemon{
					{Ident: "p1: Garchomp", SearchID: "p1: Garchomp|Garchomp", Details: "Garchomp", HP: 358, MaxHP: 358},
				},
			},
			{
				ID:           "p2",
				Name:         "gary",
				TotalPokemon: 6,
				Active:       []string{"p2a: Mew"},
				Pokemon: []host.Pokemon{
					{Ident: "p2: Mew", SearchID: "p2: Mew|Mew", Details: "Mew", HP: 100, MaxHP: 100},
				},
			},
		},
		StepQueue: []string{
			"|gametype|singles",
			"|gen|9",
			"|tier|[Gen 9] OU",
			"|rule|Species Clause: Limit one of each Pokémon",
			"|rule|Sleep Clause Mod: Limit one foe put to sleep",
			"|switch|p1a: Garchomp|Garchomp|358/358",
			"|switch|p2a: Mew|Mew|100/100",
			"|turn|1",
		},
	}
	b.Request = &host.Request{Active: []host.ActiveRequest{{CanTerastallize: "Fire"}}}
	b.Request.Side.ID = "p1"
	b.Request.Side.Pokemon = []host.ServerPokemon{{
		Ident:     "p1: Garchomp",
		Details:   "Garchomp",
		Condition: "358/358",
		Active:    true,
		Stats:     jollyGarchomp,
		Moves:     []string{"earthquake", "swordsdance"},
		Ability:   "roughskin",
		Item:      "choicescarf",
	}}
	return b
}

func mustSync(t *testing.T, r *Reconciler, b *host.Battle) *battle.Match {
	t.Helper()
	m, _, err := r.Sync(context.Background(), b)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	return m
}

func findBySpecies(t *testing.T, m *battle.Match, side, species string) *battle.Pokemon {
	t.Helper()
	for _, p := range m.Roster(side) {
		if p.SpeciesForme == species {
			return p
		}
	}
	t.Fatalf("no %s on %s", species, side)
	return nil
}

func TestSyncRequiresInit(t *testing.T) {
	r := newTestReconciler()
	if _, _, err := r.Sync(context.Background(), localBattle()); !errors.Is(err, ErrMatchNotInitialized) {
		t.Fatalf("expected ErrMatchNotInitialized, got %v", err)
	}
	if _, err := r.Snapshot("nope"); !errors.Is(err, ErrMatchNotInitialized) {
		t.Fatalf("expected ErrMatchNotInitialized, got %v", err)
	}
	if _, err := r.End("nope"); !errors.Is(err, ErrMatchNotInitialized) {
		t.Fatalf("expected ErrMatchNotInitialized, got %v", err)
	}
}

func TestSyncUnknownMySide(t *testing.T) {
	r := newTestReconciler()
	b := localBattle()
	r.Init(b.ID)
	b.MySide = "p3"
	if _, _, err := r.Sync(context.Background(), b); !errors.Is(err, ErrUnknownSide) {
		t.Fatalf("expected ErrUnknownSide, got %v", err)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	r := newTestReconciler()
	b := localBattle()
	r.Init(b.ID)

	first, changed, err := r.Sync(context.Background(), b)
	if err != nil || !changed {
		t.Fatalf("expected first pass to change the snapshot (%v)", err)
	}
	second, changed, err := r.Sync(context.Background(), localBattle())
	if err != nil || changed {
		t.Fatalf("expected identical capture to be skipped (%v)", err)
	}

	a, _ := json.Marshal(first)
	c, _ := json.Marshal(second)
	if !bytes.Equal(a, c) {
		t.Fatal("expected skipped pass to publish the same snapshot")
	}

	// Force a full pass over the same capture.
	r.matches[b.ID].match.Nonce = ""
	third, changed, err := r.Sync(context.Background(), localBattle())
	if err != nil || !changed {
		t.Fatalf("expected forced pass to run (%v)", err)
	}
	d, _ := json.Marshal(third)
	if !bytes.Equal(a, d) {
		t.Fatalf("expected a repeated pass to be byte-identical:\n%s\n%s", a, d)
	}
}

func TestLocalSpecimenGetsObservedPreset(t *testing.T) {
	r := newTestReconciler()
	b := localBattle()
	r.Init(b.ID)
	m := mustSync(t, r, b)

	chomp := findBySpecies(t, m, "p1", "Garchomp")
	if len(chomp.Presets) != 1 || chomp.Presets[0].Source != battle.SourceObserved {
		t.Fatalf("expected one observed preset, got %+v", chomp.Presets)
	}
	pr := chomp.Presets[0]
	if pr.Nature != "Jolly" || pr.EVs != (stats.Table{HP: 4, Atk: 252, Spe: 252}) {
		t.Fatalf("unexpected observed spread %+v", pr)
	}
	if chomp.PresetID != pr.ID {
		t.Fatal("expected the observed preset to be applied")
	}
	want := stats.Table{HP: 358, Atk: 359, Def: 226, SpA: 176, SpD: 206, Spe: 333}
	if chomp.SpreadStats != want || chomp.ServerStats != want {
		t.Fatalf("expected spread stats %+v, got %+v (server %+v)", want, chomp.SpreadStats, chomp.ServerStats)
	}
	if chomp.Ability.Value() != "Rough Skin" || chomp.Item.Value() != "Choice Scarf" {
		t.Fatalf("expected server ability and item, got %q %q", chomp.Ability.Value(), chomp.Item.Value())
	}
	if len(chomp.ServerMoves) != 2 || chomp.ServerMoves[1] != "Swords Dance" {
		t.Fatalf("expected normalized server moves, got %v", chomp.ServerMoves)
	}
	if !chomp.CanTerastallize || chomp.TeraType != "Fire" {
		t.Fatalf("expected tera option from the request, got %+v", chomp)
	}
	if !chomp.Active || len(chomp.Types) != 2 {
		t.Fatalf("expected active Garchomp with dex types, got %+v", chomp)
	}
}

func TestFreshRevealHasNoPresets(t *testing.T) {
	r := newTestReconciler()
	b := localBattle()
	r.Init(b.ID)
	m := mustSync(t, r, b)

	mew := findBySpecies(t, m, "p2", "Mew")
	if len(mew.Presets) != 0 || !mew.SpreadStats.IsZero() {
		t.Fatalf("expected no presets and no spread stats, got %+v", mew)
	}
	if mew.Ability.Value() != "Synchronize" {
		t.Fatalf("expected single-ability pool to fill the ability, got %q", mew.Ability.Value())
	}
}

func TestUnreachableServerStatsMakeNoPreset(t *testing.T) {
	r := newTestReconciler()
	b := localBattle()
	b.Sides[0].Pokemon[0] = host.Pokemon{Ident: "p1: Mew", SearchID: "p1: Mew|Mew", Details: "Mew"}
	b.Sides[0].Active = []string{"p1a: Mew"}
	b.Request.Side.Pokemon = []host.ServerPokemon{{
		Ident:     "p1: Mew",
		Details:   "Mew",
		Condition: "283/283",
		Active:    true,
		Stats:     map[string]int{"atk": 198, "def": 167, "spa": 115, "spd": 120, "spe": 210},
	}}
	r.Init(b.ID)
	m := mustSync(t, r, b)

	mew := findBySpecies(t, m, "p1", "Mew")
	if len(mew.Presets) != 0 || mew.PresetID != "" {
		t.Fatalf("expected no fabricated preset, got %+v", mew.Presets)
	}
	if mew.ServerStats.HP != 283 || mew.ServerStats.Spe != 210 {
		t.Fatalf("expected server stats to be kept, got %+v", mew.ServerStats)
	}
}

func TestOverridePrecedence(t *testing.T) {
	r := newTestReconciler()
	b := localBattle()
	b.Sides[1].Pokemon[0].Item = "(exists)"
	r.Init(b.ID)
	m := mustSync(t, r, b)
	mew := findBySpecies(t, m, "p2", "Mew")

	scarf, ability := "Choice Scarf", "Synchronize"
	if _, err := r.Edit(b.ID, Edit{
		PokemonID: mew.ID,
		Item:      &scarf,
		Ability:   &ability,
		Boosts:    map[stats.ID]int{stats.Spe: 2},
	}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}

	b = localBattle()
	b.Turn = 2
	b.Sides[1].Pokemon[0].Item = "(exists)"
	b.Sides[1].Pokemon[0].Boosts = map[string]int{"spe": -1}
	m = mustSync(t, r, b)
	mew = m.Pokemon[mew.ID]
	if mew.Item.Value() != "Choice Scarf" {
		t.Fatalf("expected item override to survive a placeholder, got %q", mew.Item.Value())
	}
	if mew.EffectiveBoosts().Spe != 2 || mew.Boosts.Spe != -1 {
		t.Fatalf("expected boost override over revealed stage, got %+v / %+v", mew.EffectiveBoosts(), mew.Boosts)
	}

	b.Turn = 3
	b.Sides[1].Pokemon[0].Item = "Leftovers"
	m = mustSync(t, r, b)
	mew = m.Pokemon[mew.ID]
	if mew.Item.Value() != "Leftovers" || mew.Item.Overridden {
		t.Fatalf("expected a new reveal to clear the override, got %+v", mew.Item)
	}
}

func TestPrevItemClearsMatchingOverride(t *testing.T) {
	r := newTestReconciler()
	b := localBattle()
	r.Init(b.ID)
	m := mustSync(t, r, b)
	mew := findBySpecies(t, m, "p2", "Mew")

	band := "Choice Band"
	if _, err := r.Edit(b.ID, Edit{PokemonID: mew.ID, Item: &band}); err != nil {
		t.Fatal(err)
	}

	b.Turn = 2
	b.Sides[1].Pokemon[0].PrevItem = "Choice Band"
	b.Sides[1].Pokemon[0].PrevItemEffect = "knockoff"
	m = mustSync(t, r, b)
	mew = m.Pokemon[mew.ID]
	if mew.Item.Overridden || mew.Item.Value() != "" || mew.PrevItem != "Choice Band" {
		t.Fatalf("expected knocked-off item to drop the override, got %+v prev %q", mew.Item, mew.PrevItem)
	}
}

func TestTransformPropagatesToTarget(t *testing.T) {
	r := newTestReconciler()
	b := localBattle()
	b.MySide = ""
	b.Request = nil
	b.Sides[1].Pokemon[0] = host.Pokemon{
		Ident:     "p2: Ditto",
		SearchID:  "p2: Ditto|Ditto",
		Details:   "Ditto",
		HP:        100,
		MaxHP:     100,
		Ability:   "Rough Skin",
		Volatiles: []host.Volatile{{ID: "transform", Args: []string{"p1a: Garchomp"}}},
		MoveTrack: []host.MoveUse{{Name: "Transform"}, {Name: "*Earthquake"}},
	}
	b.Sides[1].Active = []string{"p2a: Ditto"}
	r.Init(b.ID)
	m := mustSync(t, r, b)

	chomp := findBySpecies(t, m, "p1", "Garchomp")
	ditto := findBySpecies(t, m, "p2", "Ditto")

	if !ditto.Transformed || ditto.TransformedInto != chomp.ID || ditto.TransformedForme != "Garchomp" {
		t.Fatalf("expected Ditto to point at Garchomp, got %+v", ditto)
	}
	if chomp.Ability.Value() != "Rough Skin" {
		t.Fatalf("expected ability to propagate, got %q", chomp.Ability.Value())
	}
	if len(chomp.RevealedMoves) != 1 || chomp.RevealedMoves[0] != "Earthquake" {
		t.Fatalf("expected transformed move to propagate, got %v", chomp.RevealedMoves)
	}
	if len(ditto.RevealedMoves) != 1 || ditto.RevealedMoves[0] != "Transform" {
		t.Fatalf("expected Ditto's own moves to exclude copied ones, got %v", ditto.RevealedMoves)
	}

	gen9, _ := dex.Seed().ForGen(9)
	base, ok := finalstats.BaseStats(gen9, ditto)
	if !ok || base.HP != 48 || base.Atk != 130 {
		t.Fatalf("expected Garchomp base with Ditto HP, got %+v", base)
	}

	// Once the transformation ends, what was learned stays on the target.
	b.Turn = 2
	b.Sides[1].Pokemon[0].Volatiles = nil
	m = mustSync(t, r, b)
	if m.Pokemon[ditto.ID].Transformed || len(m.Pokemon[chomp.ID].RevealedMoves) != 1 {
		t.Fatal("expected transform to end and propagated facts to stay")
	}
}

func illusionBattle() *host.Battle {
	b := localBattle()
	b.MySide = ""
	b.Request = nil
	b.Sides[1].Pokemon = []host.Pokemon{
		{Ident: "p2: Garchomp", SearchID: "p2: Garchomp|Garchomp", Details: "Garchomp", HP: 100, MaxHP: 100},
		{Ident: "p2: Garchomp", SearchID: "p2: Garchomp|Zoroark", Details: "Zoroark", HP: 100, MaxHP: 100},
	}
	b.Sides[1].Active = []string{""}
	return b
}

func TestDuplicateIdentityPrefersFreshest(t *testing.T) {
	r := newTestReconciler()
	b := illusionBattle()
	b.StepQueue = append(b.StepQueue,
		"|switch|p2a: Garchomp|Garchomp|100/100",
		"|switch|p2a: Garchomp|Zoroark|100/100",
	)
	r.Init(b.ID)
	m := mustSync(t, r, b)

	roster := m.Roster("p2")
	if len(roster) != 1 || roster[0].SpeciesForme != "Zoroark" {
		t.Fatalf("expected the freshest identity to win, got %d records", len(roster))
	}
}

func TestDuplicateIdentityTieBreaks(t *testing.T) {
	r := newTestReconciler()
	b := illusionBattle()
	b.Sides[1].Active = []string{"p2: Garchomp|Garchomp"}
	r.Init(b.ID)
	m := mustSync(t, r, b)
	if roster := m.Roster("p2"); len(roster) != 1 || roster[0].SpeciesForme != "Garchomp" {
		t.Fatal("expected the active identity to win")
	}
	if m.Sides["p2"].Active[0] != 0 {
		t.Fatalf("expected active slot to point at the survivor, got %v", m.Sides["p2"].Active)
	}

	r = newTestReconciler()
	b = illusionBattle()
	b.Sides[1].Pokemon[0].Fainted = true
	r.Init(b.ID)
	m = mustSync(t, r, b)
	if roster := m.Roster("p2"); len(roster) != 1 || roster[0].SpeciesForme != "Zoroark" {
		t.Fatal("expected the non-fainted identity to win")
	}
}

func TestRosterTrimmedToTeamSize(t *testing.T) {
	r := newTestReconciler()
	b := localBattle()
	b.MySide = ""
	b.Request = nil
	b.StepQueue = append(b.StepQueue, "|teamsize|p2|2")
	mon := func(name string) host.Pokemon {
		return host.Pokemon{Ident: "p2: " + name, SearchID: "p2: " + name + "|" + name, Details: name, HP: 100, MaxHP: 100}
	}
	b.Sides[1].Pokemon = []host.Pokemon{mon("Mew"), mon("Snorlax")}
	r.Init(b.ID)
	m := mustSync(t, r, b)
	if len(m.Sides["p2"].PokemonIDs) != 2 || m.Sides["p2"].TeamSize != 2 {
		t.Fatalf("expected two records, got %+v", m.Sides["p2"])
	}

	b.Turn = 2
	b.Sides[1].Pokemon = []host.Pokemon{mon("Snorlax"), mon("Gengar")}
	b.Sides[1].Active = []string{"p2a: Gengar"}
	m = mustSync(t, r, b)

	roster := m.Roster("p2")
	if len(roster) != 2 || roster[0].SpeciesForme != "Snorlax" || roster[1].SpeciesForme != "Gengar" {
		t.Fatalf("expected the unseen record to be trimmed, got %v", roster)
	}
	if m.Sides["p2"].Active[0] != 1 {
		t.Fatalf("expected active index to follow the trim, got %v", m.Sides["p2"].Active)
	}
}

func TestTrimKeepsViewedSpecimen(t *testing.T) {
	r := newTestReconciler()
	b := localBattle()
	b.MySide = ""
	b.Request = nil
	b.StepQueue = append(b.StepQueue, "|teamsize|p2|2")
	mon := func(name string) host.Pokemon {
		return host.Pokemon{Ident: "p2: " + name, SearchID: "p2: " + name + "|" + name, Details: name, HP: 100, MaxHP: 100}
	}
	b.Sides[1].Pokemon = []host.Pokemon{mon("Mew"), mon("Snorlax")}
	r.Init(b.ID)
	mustSync(t, r, b)

	view := 1
	if _, err := r.Edit(b.ID, Edit{Side: "p2", Viewing: &view}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}

	b.Turn = 2
	b.Sides[1].Pokemon = []host.Pokemon{mon("Snorlax"), mon("Gengar")}
	m := mustSync(t, r, b)
	if got := m.Sides["p2"].Viewing; got != 0 {
		t.Fatalf("expected viewing to follow Snorlax to index 0, got %d", got)
	}
	if p, ok := m.Viewed("p2"); !ok || p.SpeciesForme != "Snorlax" {
		t.Fatal("expected Snorlax to stay viewed")
	}

	// A trimmed viewed record falls back to the first slot.
	view = 1
	if _, err := r.Edit(b.ID, Edit{Side: "p2", Viewing: &view}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	b.Turn = 3
	b.Sides[1].Pokemon = []host.Pokemon{mon("Snorlax"), mon("Mew")}
	m = mustSync(t, r, b)
	if got := m.Sides["p2"].Viewing; got != 0 {
		t.Fatalf("expected viewing to reset after its record was trimmed, got %d", got)
	}
}

func TestStepsFieldAndSides(t *testing.T) {
	r := newTestReconciler()
	b := localBattle()
	b.Weather = "SandStorm"
	b.Terrain = "Electric Terrain"
	b.PseudoWeather = []string{"Trick Room"}
	b.Sides[0].SideConditions = map[string]int{"tailwind": 1, "spikes": 2, "grasspledge": 1}
	b.Sides[1].Pokemon = append(b.Sides[1].Pokemon,
		host.Pokemon{Ident: "p2: Snorlax", SearchID: "p2: Snorlax|Snorlax", Details: "Snorlax, L50", Fainted: true})
	b.StepQueue = append(b.StepQueue,
		"|-terastallize|p1a: Garchomp|Fire",
		"|-mega|p2a: Mew|Mew|Mewnite",
		"|-start|p2a: Mew|Dynamax",
	)
	r.Init(b.ID)
	m := mustSync(t, r, b)

	if !m.Rules.SpeciesClause || !m.Rules.SleepClause || m.Rules.OHKOClause || m.Rules.Tier != "[Gen 9] OU" {
		t.Fatalf("unexpected rules %+v", m.Rules)
	}
	if m.Field.GameType != "singles" || m.Field.Weather.Value() != "SandStorm" || !m.Field.TrickRoom {
		t.Fatalf("unexpected field %+v", m.Field)
	}
	p1, p2 := m.Sides["p1"], m.Sides["p2"]
	if !p1.UsedTerastal || p1.UsedMega || !p2.UsedMega || !p2.UsedDynamax {
		t.Fatalf("unexpected mechanic flags p1 %+v p2 %+v", p1, p2)
	}
	if !p1.Conditions.Tailwind || p1.Conditions.Spikes != 2 || !p1.Conditions.Swamp {
		t.Fatalf("unexpected side conditions %+v", p1.Conditions)
	}
	if p2.FaintCount != 1 {
		t.Fatalf("expected one faint on p2, got %d", p2.FaintCount)
	}
	lax := findBySpecies(t, m, "p2", "Snorlax")
	if lax.Level != 50 || lax.HP != 0 {
		t.Fatalf("expected fainted level 50 Snorlax, got %+v", lax)
	}
	if m.StepCursor != len(b.StepQueue) {
		t.Fatalf("expected cursor at %d, got %d", len(b.StepQueue), m.StepCursor)
	}
}

func TestHealthPlaceholder(t *testing.T) {
	r := newTestReconciler()
	b := localBattle()
	b.Sides[1].Pokemon[0].HP = 0
	r.Init(b.ID)
	m := mustSync(t, r, b)

	mew := findBySpecies(t, m, "p2", "Mew")
	if mew.HP != battle.UnknownHP || mew.HPKnown() {
		t.Fatalf("expected placeholder HP, got %d", mew.HP)
	}
}

func TestVolatileFlags(t *testing.T) {
	r := newTestReconciler()
	b := localBattle()
	b.Sides[1].Pokemon[0].Volatiles = []host.Volatile{
		{ID: "typechange", Args: []string{"Fire/Water"}},
		{ID: "protosynthesisspe"},
		{ID: "fallen3"},
		{ID: "dynamax"},
	}
	r.Init(b.ID)
	m := mustSync(t, r, b)

	mew := findBySpecies(t, m, "p2", "Mew")
	if !mew.HasType("Water") || mew.HasType("Psychic") {
		t.Fatalf("expected type override, got %v", mew.CurrentTypes())
	}
	if mew.BoostedStat != "spe" || mew.FaintCounter != 3 || !mew.Dynamaxed {
		t.Fatalf("unexpected volatile flags %+v", mew)
	}

	b.Turn = 2
	b.Sides[1].Pokemon[0].Volatiles = nil
	m = mustSync(t, r, b)
	mew = m.Pokemon[mew.ID]
	if len(mew.TypesOverride) != 0 || mew.BoostedStat != "" || mew.FaintCounter != 0 || mew.Dynamaxed {
		t.Fatalf("expected flags to reset, got %+v", mew)
	}
}

func TestPresetSourceAppliesToOpponents(t *testing.T) {
	var calls atomic.Int32
	src := presets.SourceFunc(func(ctx context.Context, format, species string) ([]battle.Preset, error) {
		calls.Add(1)
		if dex.ID(species) != "mew" {
			return nil, nil
		}
		return []battle.Preset{battle.NewPreset(battle.Preset{
			Species: "Mew",
			Item:    "Leftovers",
			Nature:  "Bold",
			IVs:     stats.Uniform(31),
			EVs:     stats.Table{HP: 252, Def: 252, SpD: 4},
			Moves:   []string{"Psychic"},
			Source:  battle.SourceUsage,
		})}, nil
	})

	r := newTestReconciler(WithPresets(src))
	b := localBattle()
	r.Init(b.ID)
	mustSync(t, r, b)
	r.WaitPresets()

	m, changed, err := r.MergePresets(b.ID)
	if err != nil || !changed {
		t.Fatalf("expected finished lookups to merge, got %v %v", changed, err)
	}

	mew := findBySpecies(t, m, "p2", "Mew")
	if mew.PresetID == "" || mew.Nature != "Bold" || mew.Item.Value() != "Leftovers" || !mew.Item.Overridden {
		t.Fatalf("expected usage preset applied to opponent, got %+v", mew)
	}
	if mew.SpreadStats.HP != 404 {
		t.Fatalf("expected spread stats from the preset, got %+v", mew.SpreadStats)
	}

	chomp := findBySpecies(t, m, "p1", "Garchomp")
	if chomp.Presets[0].Source != battle.SourceObserved || chomp.Nature != "Jolly" {
		t.Fatal("expected the local specimen to keep its observed build")
	}

	if _, changed, _ := r.MergePresets(b.ID); changed {
		t.Fatal("expected nothing left to merge")
	}

	b.Turn = 2
	mustSync(t, r, b)
	r.WaitPresets()
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected one lookup per specimen, got %d", n)
	}
}

func TestSyncDoesNotWaitForPresetLookups(t *testing.T) {
	release := make(chan struct{})
	src := presets.SourceFunc(func(ctx context.Context, format, species string) ([]battle.Preset, error) {
		<-release
		if dex.ID(species) != "mew" {
			return nil, nil
		}
		return []battle.Preset{battle.NewPreset(battle.Preset{Species: "Mew", Nature: "Timid", Source: battle.SourceUsage})}, nil
	})
	notified := make(chan string, 4)
	r := newTestReconciler(WithPresets(src), WithPresetNotify(func(id string) { notified <- id }))
	b := localBattle()
	r.Init(b.ID)

	m := mustSync(t, r, b)
	if mew := findBySpecies(t, m, "p2", "Mew"); len(mew.Presets) != 0 {
		t.Fatalf("expected no presets before the lookup finishes, got %d", len(mew.Presets))
	}
	if _, err := r.Snapshot(b.ID); err != nil {
		t.Fatalf("expected snapshots to stay readable during lookups, got %v", err)
	}

	close(release)
	r.WaitPresets()
	if id := <-notified; id != b.ID {
		t.Fatalf("expected notification for %s, got %s", b.ID, id)
	}

	// An unchanged capture still picks up finished lookups.
	m, changed, err := r.Sync(context.Background(), b)
	if err != nil || !changed {
		t.Fatalf("expected merged lookups to count as a change, got %v %v", changed, err)
	}
	if mew := findBySpecies(t, m, "p2", "Mew"); mew.Nature != "Timid" {
		t.Fatalf("expected the preset to be applied, got %q", mew.Nature)
	}
}

func TestEndedMatchDropsLateLookups(t *testing.T) {
	release := make(chan struct{})
	src := presets.SourceFunc(func(ctx context.Context, format, species string) ([]battle.Preset, error) {
		<-release
		return []battle.Preset{battle.NewPreset(battle.Preset{Species: species, Source: battle.SourceUsage})}, nil
	})
	r := newTestReconciler(WithPresets(src))
	b := localBattle()
	r.Init(b.ID)
	mustSync(t, r, b)
	if _, err := r.End(b.ID); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	close(release)
	r.WaitPresets()

	if len(r.lookups.take(b.ID)) != 0 {
		t.Fatal("expected results for an ended match to be dropped")
	}
	if _, _, err := r.MergePresets(b.ID); !errors.Is(err, ErrMatchNotInitialized) {
		t.Fatalf("expected ErrMatchNotInitialized, got %v", err)
	}
}

func TestTransformRefreshesPresetSpread(t *testing.T) {
	src := presets.SourceFunc(func(ctx context.Context, format, species string) ([]battle.Preset, error) {
		if dex.ID(species) != "ditto" {
			return nil, nil
		}
		return []battle.Preset{battle.NewPreset(battle.Preset{
			Species: "Ditto",
			Nature:  "Adamant",
			IVs:     stats.Uniform(31),
			EVs:     stats.Table{HP: 252, Atk: 252},
			Source:  battle.SourceUsage,
		})}, nil
	})
	r := newTestReconciler(WithPresets(src))
	b := localBattle()
	b.MySide = ""
	b.Request = nil
	b.Sides[1].Pokemon[0] = host.Pokemon{Ident: "p2: Ditto", SearchID: "p2: Ditto|Ditto", Details: "Ditto", HP: 100, MaxHP: 100}
	b.Sides[1].Active = []string{"p2a: Ditto"}
	r.Init(b.ID)
	mustSync(t, r, b)
	r.WaitPresets()
	m, _, err := r.MergePresets(b.ID)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	ditto := findBySpecies(t, m, "p2", "Ditto")
	if ditto.SpreadStats.HP != 300 || ditto.SpreadStats.Atk != 214 {
		t.Fatalf("expected Ditto's own spread, got %+v", ditto.SpreadStats)
	}

	b.Turn = 2
	b.Sides[1].Pokemon[0].Volatiles = []host.Volatile{{ID: "transform", Args: []string{"p1a: Garchomp"}}}
	m = mustSync(t, r, b)
	ditto = m.Pokemon[ditto.ID]
	if ditto.SpreadStats.HP != 300 || ditto.SpreadStats.Atk != 394 {
		t.Fatalf("expected Garchomp stats with Ditto HP, got %+v", ditto.SpreadStats)
	}
	gen9, _ := dex.Seed().ForGen(9)
	out, ok := finalstats.ForMatch(gen9, m, ditto.ID, "")
	if !ok || out.Stats.Atk != 394 || out.Stats.HP != 300 {
		t.Fatalf("expected final stats from the transformed forme, got %+v", out.Stats)
	}

	b.Turn = 3
	b.Sides[1].Pokemon[0].Volatiles = nil
	m = mustSync(t, r, b)
	if got := m.Pokemon[ditto.ID].SpreadStats.Atk; got != 214 {
		t.Fatalf("expected the spread to revert after transform ends, got %d", got)
	}
}

func TestFormeChangeRefreshesSpread(t *testing.T) {
	r := newTestReconciler()
	b := localBattle()
	b.MySide = ""
	b.Request = nil
	b.Sides[1].Pokemon[0] = host.Pokemon{Ident: "p2: Aegislash", SearchID: "p2: Aegislash|Aegislash", Details: "Aegislash", HP: 100, MaxHP: 100}
	b.Sides[1].Active = []string{"p2a: Aegislash"}
	r.Init(b.ID)
	m := mustSync(t, r, b)

	aegi := findBySpecies(t, m, "p2", "Aegislash")
	nature := "Adamant"
	evs := stats.Table{Atk: 252}
	ivs := stats.Uniform(31)
	m, err := r.Edit(b.ID, Edit{PokemonID: aegi.ID, Nature: &nature, EVs: &evs, IVs: &ivs})
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if got := m.Pokemon[aegi.ID].SpreadStats.Atk; got != 218 {
		t.Fatalf("expected shield forme attack, got %d", got)
	}

	b.Turn = 2
	b.Sides[1].Pokemon[0].SearchID = "p2: Aegislash|Aegislash-Blade"
	b.Sides[1].Pokemon[0].Details = "Aegislash-Blade"
	m = mustSync(t, r, b)
	p := m.Pokemon[aegi.ID]
	if p.SpeciesForme != "Aegislash-Blade" || p.SpreadStats.Atk != 416 {
		t.Fatalf("expected blade forme attack, got %s %d", p.SpeciesForme, p.SpreadStats.Atk)
	}
}

func TestEdit(t *testing.T) {
	r := newTestReconciler()
	b := localBattle()
	r.Init(b.ID)
	m := mustSync(t, r, b)
	mew := findBySpecies(t, m, "p2", "Mew")

	bogus := "nope"
	if _, err := r.Edit(b.ID, Edit{PokemonID: "missing", Item: &bogus}); !errors.Is(err, ErrUnknownPokemon) {
		t.Fatalf("expected ErrUnknownPokemon, got %v", err)
	}
	view := 0
	if _, err := r.Edit(b.ID, Edit{Side: "p9", Viewing: &view}); !errors.Is(err, ErrUnknownSide) {
		t.Fatalf("expected ErrUnknownSide, got %v", err)
	}
	if _, err := r.Edit(b.ID, Edit{PokemonID: mew.ID, PresetID: &bogus}); !errors.Is(err, ErrUnknownPreset) {
		t.Fatalf("expected ErrUnknownPreset, got %v", err)
	}
	if _, err := r.Edit("missing", Edit{}); !errors.Is(err, ErrMatchNotInitialized) {
		t.Fatalf("expected ErrMatchNotInitialized, got %v", err)
	}

	nature := "Timid"
	ivs := stats.Uniform(31)
	evs := stats.Table{HP: 4, SpA: 252, Spe: 252}
	empty := ""
	rain := "RainDance"
	m, err := r.Edit(b.ID, Edit{
		PokemonID: mew.ID,
		Nature:    &nature,
		IVs:       &ivs,
		EVs:       &evs,
		Item:      &empty,
		Moves:     []string{"Psychic"},
		Side:      "p2",
		Viewing:   &view,
		Weather:   &rain,
	})
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	mew = m.Pokemon[mew.ID]
	if mew.SpreadStats.Spe != 328 {
		t.Fatalf("expected spread stats to follow the edit, got %+v", mew.SpreadStats)
	}
	if !mew.Item.Overridden || mew.Item.Value() != "" {
		t.Fatal("expected an intentionally empty item")
	}
	if !mew.MovesOverridden || m.Sides["p2"].AutoSelect {
		t.Fatal("expected moves override and manual viewing")
	}
	if m.Field.Weather.Value() != "RainDance" {
		t.Fatalf("expected weather override, got %q", m.Field.Weather.Value())
	}

	// The edit survives a pass over an unchanged capture.
	b.Turn = 2
	m = mustSync(t, r, b)
	if m.Pokemon[mew.ID].Nature != "Timid" || m.Field.Weather.Value() != "RainDance" {
		t.Fatal("expected edits to survive the next pass")
	}

	b.Turn = 3
	b.Weather = "Sunny Day"
	m = mustSync(t, r, b)
	if m.Field.Weather.Value() != "Sunny Day" || m.Field.Weather.Overridden {
		t.Fatal("expected a new weather reveal to clear the override")
	}

	m, err = r.Edit(b.ID, Edit{PokemonID: mew.ID, ClearItem: true, ClearMoves: true})
	if err != nil {
		t.Fatal(err)
	}
	if m.Pokemon[mew.ID].Item.Overridden || m.Pokemon[mew.ID].MovesOverridden {
		t.Fatal("expected overrides to be cleared")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	r := newTestReconciler()
	b := localBattle()
	r.Init(b.ID)
	m := mustSync(t, r, b)
	for _, p := range m.Pokemon {
		p.Nature = "Quirky"
	}

	again, err := r.Snapshot(b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if findBySpecies(t, again, "p1", "Garchomp").Nature != "Jolly" {
		t.Fatal("expected published snapshot to be unaffected by caller mutation")
	}
}

func TestEndForgetsMatch(t *testing.T) {
	r := newTestReconciler()
	b := localBattle()
	r.Init(b.ID)
	mustSync(t, r, b)

	final, err := r.End(b.ID)
	if err != nil || final.Active {
		t.Fatalf("expected inactive final snapshot (%v)", err)
	}
	if _, err := r.Snapshot(b.ID); !errors.Is(err, ErrMatchNotInitialized) {
		t.Fatal("expected the match to be forgotten")
	}
}

func TestParseCondition(t *testing.T) {
	cases := []struct {
		in     string
		hp     int
		total  int
		status string
	}{
		{"183/341 par", 183, 341, "par"},
		{"0 fnt", 0, 0, "fnt"},
		{"100/100", 100, 100, ""},
		{"", 0, 0, ""},
	}
	for _, tc := range cases {
		hp, total, status := parseCondition(tc.in)
		if hp != tc.hp || total != tc.total || status != tc.status {
			t.Errorf("parseCondition(%q): got %d %d %q", tc.in, hp, total, status)
		}
	}
}
