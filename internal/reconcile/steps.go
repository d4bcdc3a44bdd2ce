package reconcile

import (
	"strconv"
	"strings"

	"battlecalc/internal/battle"
	"battlecalc/internal/host"
)

// applySteps consumes step log lines past the match's cursor. Flags only
// ever turn on, so rescanning after the host resets its log is harmless.
func applySteps(m *battle.Match, lines []string) {
	if m.StepCursor > len(lines) {
		m.StepCursor = 0
	}
	for _, line := range lines[m.StepCursor:] {
		applyStep(m, line)
	}
	m.StepCursor = len(lines)
}

func applyStep(m *battle.Match, line string) {
	parts := strings.Split(line, "|")
	if len(parts) < 3 {
		return
	}
	arg := parts[2]

	switch parts[1] {
	case "gen":
		if n, err := strconv.Atoi(arg); err == nil && m.Gen == 0 {
			m.Gen = n
		}
	case "tier":
		m.Rules.Tier = arg
	case "gametype":
		m.Field.GameType = arg
	case "teamsize":
		if len(parts) < 4 {
			return
		}
		if s, ok := m.Sides[arg]; ok {
			if n, err := strconv.Atoi(parts[3]); err == nil {
				s.TeamSize = n
			}
		}
	case "rule":
		applyRule(&m.Rules, arg)
	case "-mega":
		if s := stepSide(m, arg); s != nil {
			s.UsedMega = true
		}
	case "-zpower":
		if s := stepSide(m, arg); s != nil {
			s.UsedZMove = true
		}
	case "-start":
		if len(parts) > 3 && strings.EqualFold(parts[3], "Dynamax") {
			if s := stepSide(m, arg); s != nil {
				s.UsedDynamax = true
			}
		}
	case "-terastallize":
		if s := stepSide(m, arg); s != nil {
			s.UsedTerastal = true
		}
	}
}

// applyRule reads "|rule|Species Clause: Limit one of each Pokémon".
func applyRule(r *battle.Rules, rule string) {
	name, _, _ := strings.Cut(rule, ":")
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "species clause":
		r.SpeciesClause = true
	case "sleep clause mod", "sleep clause":
		r.SleepClause = true
	case "evasion clause", "evasion moves clause":
		r.EvasionClause = true
	case "ohko clause":
		r.OHKOClause = true
	case "dynamax clause":
		r.DynamaxClause = true
	case "terastal clause":
		r.TerastalClause = true
	}
}

func stepSide(m *battle.Match, ident string) *battle.Side {
	s, ok := m.Sides[host.IdentSide(ident)]
	if !ok {
		return nil
	}
	return s
}
