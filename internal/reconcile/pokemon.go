package reconcile

import (
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"battlecalc/internal/battle"
	"battlecalc/internal/dex"
	"battlecalc/internal/finalstats"
	"battlecalc/internal/host"
	"battlecalc/internal/spread"
	"battlecalc/internal/stats"
)

type pokemonContext struct {
	dex       *dex.Dex
	gen       int
	local     bool
	transform *transformContext
	lookup    func(ref string) string
	log       zerolog.Logger
}

// reconcilePokemon merges one host entry (and, for the local side, its
// authoritative counterpart) into rec. Fields whose observed value has not
// changed are left alone, so user overrides survive repeated passes.
func reconcilePokemon(pc *pokemonContext, rec *battle.Pokemon, hp *host.Pokemon, srv *host.ServerPokemon, req *host.ActiveRequest) {
	d := pc.dex

	setIfPresent(&rec.Ident, hp.Ident)
	setIfPresent(&rec.SearchID, hp.SearchID)
	setIfPresent(&rec.Details, hp.Details)

	reconcileForme(d, rec, hp, srv)
	reconcileHealth(rec, hp, srv)
	reconcileAbility(d, rec, hp, srv)
	reconcileItem(d, rec, hp, srv)
	reconcileMoves(d, rec, hp, srv)

	tera := hp.TeraType
	if srv != nil && srv.TeraType != "" {
		tera = srv.TeraType
	}
	if hp.Terastallized != "" {
		tera = hp.Terastallized
	}
	setIfPresent(&rec.TeraType, tera)
	rec.Terastallized = hp.Terastallized != ""

	var boosts stats.Boosts
	for name, stage := range hp.Boosts {
		if id, ok := stats.Parse(name); ok && id != stats.HP {
			boosts.Set(id, stage)
		}
	}
	rec.Boosts = boosts

	vols := lo.Map(hp.Volatiles, func(v host.Volatile, _ int) string { return dex.ID(v.ID) })
	if !slices.Equal(vols, rec.Volatiles) {
		rec.Volatiles = vols
		applyVolatiles(rec, hp)
	}
	reconcileTransform(pc, rec, hp)

	if req != nil {
		rec.CanGigantamax = req.CanGigantamax != ""
		rec.CanDynamax = req.CanDynamax || rec.CanGigantamax
		rec.CanTerastallize = req.CanTerastallize != ""
		if rec.CanTerastallize && rec.TeraType == "" {
			rec.TeraType = req.CanTerastallize
		}
	}

	if srv != nil {
		t := parseTable(srv.Stats)
		if rec.MaxHP > 0 && !rec.Fainted {
			t.HP = rec.MaxHP
		}
		if t != rec.ServerStats {
			rec.ServerStats = t
			guessSpread(pc, rec, srv.Nature)
		}
	}
}

func reconcileForme(d *dex.Dex, rec *battle.Pokemon, hp *host.Pokemon, srv *host.ServerPokemon) {
	details := hp.Details
	if srv != nil && srv.Details != "" {
		details = srv.Details
	}
	forme, level := host.ParseDetails(details)
	if details == "" {
		level = 0
	}
	if hp.SpeciesForme != "" {
		forme = hp.SpeciesForme
	}
	if hp.Level > 0 {
		level = hp.Level
	}
	if srv != nil {
		if srv.SpeciesForme != "" {
			forme = srv.SpeciesForme
		}
		if srv.Level > 0 {
			level = srv.Level
		}
	}

	if level > 0 {
		rec.Level = level
	}
	if forme != "" && forme != rec.SpeciesForme {
		rec.SpeciesForme = forme
		refreshForme(d, rec)
	} else if len(rec.Types) == 0 && rec.SpeciesForme != "" {
		refreshForme(d, rec)
	}
}

// refreshForme reloads types and the ability pool for the current forme.
func refreshForme(d *dex.Dex, rec *battle.Pokemon) {
	s, ok := d.Species(rec.SpeciesForme)
	if !ok {
		return
	}
	rec.Types = slices.Clone(s.Types)
	rec.AbilityPool = slices.Clone(s.Abilities)
	rec.AltFormes = slices.Clone(s.OtherFormes)
	if len(rec.AbilityPool) == 1 && rec.Ability.Revealed == "" {
		rec.Ability.Revealed = rec.AbilityPool[0]
	}
}

// reconcileHealth prefers authoritative health. A zero reading with a known
// maximum on a specimen that has not fainted is a host placeholder.
func reconcileHealth(rec *battle.Pokemon, hp *host.Pokemon, srv *host.ServerPokemon) {
	cur, total := hp.HP, hp.MaxHP
	fainted := hp.Fainted
	status := hp.Status

	if srv != nil {
		var st string
		cur, total, st = parseCondition(srv.Condition)
		if srv.MaxHP > 0 {
			cur, total = srv.HP, srv.MaxHP
		}
		if st == "fnt" {
			fainted = true
			st = ""
		}
		status = st
	}
	if total == 0 {
		total = rec.MaxHP
	}
	if cur == 0 && total > 0 && !fainted {
		cur = battle.UnknownHP
	}
	if fainted {
		cur = 0
		status = ""
	}

	rec.HP = cur
	rec.MaxHP = total
	rec.Fainted = fainted
	rec.Status = status
	rec.SleepCounter = hp.StatusState.SleepTurns
	rec.ToxicCounter = hp.StatusState.ToxicTurns
	rec.HitCounter = hp.TimesAttacked
}

func reconcileAbility(d *dex.Dex, rec *battle.Pokemon, hp *host.Pokemon, srv *host.ServerPokemon) {
	base, ability := hp.BaseAbility, hp.Ability
	if srv != nil {
		if srv.BaseAbility != "" {
			base = srv.BaseAbility
		}
		switch {
		case srv.Ability != "":
			ability = srv.Ability
		case srv.BaseAbility != "":
			ability = srv.BaseAbility
		}
	}
	if !placeholder(base) {
		rec.BaseAbility = abilityName(d, base)
	}
	if !placeholder(ability) {
		rec.Ability.Reveal(abilityName(d, ability))
	}
}

// reconcileItem tracks the held item. Once the host reports a previous item
// (knocked off, consumed) an override naming that item is dropped too.
func reconcileItem(d *dex.Dex, rec *battle.Pokemon, hp *host.Pokemon, srv *host.ServerPokemon) {
	if hp.PrevItem != rec.PrevItem || hp.PrevItemEffect != rec.PrevItemEffect {
		rec.PrevItem = hp.PrevItem
		rec.PrevItemEffect = hp.PrevItemEffect
		if rec.PrevItem != "" {
			prev := dex.ID(rec.PrevItem)
			if rec.Item.Overridden && dex.ID(rec.Item.Override) == prev {
				rec.Item.Clear()
			}
			if dex.ID(rec.Item.Revealed) == prev {
				rec.Item.Revealed = ""
			}
		}
	}

	item := hp.Item
	if srv != nil {
		item = srv.Item
		if item == "" {
			rec.Item.Revealed = ""
		}
	}
	if !placeholder(item) {
		rec.Item.Reveal(itemName(d, item))
	}
}

// reconcileMoves accumulates revealed moves; a move once seen stays known.
func reconcileMoves(d *dex.Dex, rec *battle.Pokemon, hp *host.Pokemon, srv *host.ServerPokemon) {
	for _, use := range hp.MoveTrack {
		name, transformed := use.Transformed()
		name = moveName(d, name)
		if name == "" {
			continue
		}
		if transformed {
			rec.TransformedMoves = appendUnique(rec.TransformedMoves, name)
		} else {
			rec.RevealedMoves = appendUnique(rec.RevealedMoves, name)
		}
	}
	if srv == nil {
		return
	}
	moves := lo.Map(srv.Moves, func(m string, _ int) string { return moveName(d, m) })
	if !slices.Equal(moves, rec.ServerMoves) {
		rec.ServerMoves = moves
	}
}

// applyVolatiles derives flags from the volatile list. It only runs when
// the list changed, so a user toggle holds until the host reports news.
func applyVolatiles(rec *battle.Pokemon, hp *host.Pokemon) {
	rec.Dynamaxed = hp.HasVolatile("dynamax")

	rec.TypesOverride = nil
	if v := hp.Volatile("typechange"); v != nil && len(v.Args) > 0 && v.Args[0] != "" {
		rec.TypesOverride = strings.Split(v.Args[0], "/")
	}
	rec.TypeAdd = ""
	if v := hp.Volatile("typeadd"); v != nil && len(v.Args) > 0 {
		rec.TypeAdd = v.Args[0]
	}

	rec.BoostedStat = ""
	rec.FaintCounter = 0
	for _, id := range rec.Volatiles {
		for _, prefix := range []string{"protosynthesis", "quarkdrive"} {
			if stat, ok := strings.CutPrefix(id, prefix); ok && stat != "" {
				rec.BoostedStat = stat
			}
		}
		if n, ok := strings.CutPrefix(id, "fallen"); ok {
			if v, err := strconv.Atoi(n); err == nil {
				rec.FaintCounter = v
			}
		}
	}

	rec.AbilityToggled = hp.HasVolatile("slowstart") || hp.HasVolatile("unburden")
}

func reconcileTransform(pc *pokemonContext, rec *battle.Pokemon, hp *host.Pokemon) {
	v := hp.Volatile("transform")
	if v == nil || len(v.Args) == 0 {
		if rec.Transformed {
			rec.Transformed = false
			rec.TransformedInto = ""
			rec.TransformedForme = ""
			rec.TransformedMoves = nil
		}
		return
	}

	rec.Transformed = true
	if id := pc.lookup(v.Args[0]); id != "" && id != rec.ID {
		rec.TransformedInto = id
	}
	hint := ""
	if len(v.Args) > 1 {
		hint = v.Args[1]
	}
	pc.transform.add(rec.ID, hint)
}

// guessSpread derives an observed build from authoritative stats, once per
// new stat table, for specimens without an applied preset.
func guessSpread(pc *pokemonContext, rec *battle.Pokemon, natureHint string) {
	if rec.PresetID != "" || rec.Transformed {
		return
	}
	base, ok := pc.dex.BaseStats(rec.SpeciesForme)
	if !ok {
		return
	}
	level := rec.Level
	if level <= 0 {
		level = stats.MaxLevel
	}

	res := spread.Guess(spread.Input{
		Gen:        pc.gen,
		Level:      level,
		Base:       base,
		Stats:      rec.ServerStats,
		NatureHint: natureHint,
	})
	if !res.OK() {
		pc.log.Debug().Str("species", rec.SpeciesForme).Msg("no spread reproduces server stats")
		return
	}

	pr := battle.NewPreset(battle.Preset{
		Name:     "Observed",
		Source:   battle.SourceObserved,
		Species:  rec.SpeciesForme,
		Ability:  rec.Ability.Revealed,
		Item:     rec.Item.Revealed,
		Nature:   res.Nature,
		IVs:      res.IVs,
		EVs:      res.EVs,
		Moves:    rec.ServerMoves,
		TeraType: rec.TeraType,
	})
	rec.AddPreset(pr, true)
	if stats.Legacy(pc.gen) || pr.HasSpread() {
		rec.ApplyPreset(pr)
		refreshSpread(pc.dex, rec)
	}
}

// refreshSpread recomputes the genetics-only stats after the spread
// changed.
func refreshSpread(d *dex.Dex, p *battle.Pokemon) {
	if p.Nature == "" && p.IVs.IsZero() && p.EVs.IsZero() {
		p.SpreadStats = stats.Table{}
		return
	}
	p.SpreadStats = finalstats.Genetics(d, p)
}

// spreadKey is what the genetics-only stats depend on besides the spread
// itself.
type spreadKey struct {
	forme string
	level int
}

func spreadKeys(m *battle.Match) map[string]spreadKey {
	out := make(map[string]spreadKey, len(m.Pokemon))
	for id, p := range m.Pokemon {
		out[id] = spreadKey{forme: p.Forme(), level: p.Level}
	}
	return out
}

// refreshChangedSpreads recomputes spread stats for records whose forme
// (own or transformed) or level changed during the pass.
func refreshChangedSpreads(d *dex.Dex, m *battle.Match, before map[string]spreadKey) {
	for id, p := range m.Pokemon {
		prev, ok := before[id]
		if ok && prev == (spreadKey{forme: p.Forme(), level: p.Level}) {
			continue
		}
		refreshSpread(d, p)
	}
}

// transformContext collects transformed specimens during a pass so their
// targets can be resolved once every record is reconciled.
type transformContext struct {
	order []string
	hints map[string]string
}

func newTransformContext() *transformContext {
	return &transformContext{hints: make(map[string]string)}
}

func (tc *transformContext) add(id, formeHint string) {
	if _, ok := tc.hints[id]; !ok {
		tc.order = append(tc.order, id)
	}
	tc.hints[id] = formeHint
}

// resolve sets each transformed specimen's forme from its target and
// copies what the transformed specimen revealed back onto the target.
func (tc *transformContext) resolve(m *battle.Match) {
	for _, id := range tc.order {
		rec, ok := m.Pokemon[id]
		if !ok {
			continue
		}
		target := m.Pokemon[rec.TransformedInto]

		forme := tc.hints[id]
		if target != nil && target.SpeciesForme != "" {
			forme = target.SpeciesForme
		}
		rec.TransformedForme = forme

		if target == nil {
			continue
		}
		if rec.Ability.Revealed != "" && target.Ability.Revealed == "" {
			target.Ability.Reveal(rec.Ability.Revealed)
		}
		for _, move := range rec.TransformedMoves {
			target.RevealedMoves = appendUnique(target.RevealedMoves, move)
		}
	}
}

type serverRoster struct {
	roster []host.ServerPokemon
	active map[int]*host.ActiveRequest
}

// newServerRoster pairs the local roster with the request's active slots.
// Only the local side gets one.
func newServerRoster(b *host.Battle, local bool) *serverRoster {
	s := &serverRoster{active: make(map[int]*host.ActiveRequest)}
	if !local {
		return s
	}
	s.roster = b.Server()
	slot := 0
	for i := range s.roster {
		if !s.roster[i].Active {
			continue
		}
		if b.Request != nil && slot < len(b.Request.Active) {
			s.active[i] = &b.Request.Active[slot]
		}
		slot++
	}
	return s
}

func (s *serverRoster) find(hp *host.Pokemon) (*host.ServerPokemon, *host.ActiveRequest) {
	if len(s.roster) == 0 || hp.Ident == "" {
		return nil, nil
	}
	key := identKey(hp.Ident)
	forme, _ := host.ParseDetails(hp.Details)
	fallback := -1
	for i := range s.roster {
		srv := &s.roster[i]
		if identKey(srv.Ident) != key {
			continue
		}
		sf, _ := host.ParseDetails(srv.Details)
		if forme == "" || dex.ID(sf) == dex.ID(forme) {
			return srv, s.active[i]
		}
		if fallback < 0 {
			fallback = i
		}
	}
	if fallback >= 0 {
		return &s.roster[fallback], s.active[fallback]
	}
	return nil, nil
}

// parseCondition splits "183/341 par" or "0 fnt".
func parseCondition(cond string) (hp, maxHP int, status string) {
	health, status, _ := strings.Cut(strings.TrimSpace(cond), " ")
	cur, total, found := strings.Cut(health, "/")
	hp, _ = strconv.Atoi(cur)
	if found {
		maxHP, _ = strconv.Atoi(total)
	}
	return hp, maxHP, strings.TrimSpace(status)
}

func parseTable(m map[string]int) stats.Table {
	var t stats.Table
	for name, v := range m {
		if id, ok := stats.Parse(name); ok {
			t.Set(id, v)
		}
	}
	return t
}

// placeholder reports values the host uses for "unknown", such as
// "(exists)" for an unrevealed item.
func placeholder(v string) bool {
	return v == "" || strings.HasPrefix(v, "(")
}

func abilityName(d *dex.Dex, v string) string {
	if e, ok := d.Ability(v); ok {
		return e.Name
	}
	return v
}

func itemName(d *dex.Dex, v string) string {
	if e, ok := d.Item(v); ok {
		return e.Name
	}
	return v
}

func moveName(d *dex.Dex, v string) string {
	if m, ok := d.Move(v); ok {
		return m.Name
	}
	return v
}

func setIfPresent(dst *string, v string) {
	if v != "" && *dst != v {
		*dst = v
	}
}

func appendUnique(list []string, v string) []string {
	if slices.ContainsFunc(list, func(s string) bool { return dex.ID(s) == dex.ID(v) }) {
		return list
	}
	return append(list, v)
}
