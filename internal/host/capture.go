package host

import (
	"strconv"
	"strings"
)

// Battle is a one-shot, read-only capture of the host's battle object.
type Battle struct {
	ID            string   `json:"id"`
	Gen           int      `json:"gen"`
	Format        string   `json:"format"`
	GameType      string   `json:"gameType"`
	Turn          int      `json:"turn"`
	Ended         bool     `json:"ended"`
	Sides         []Side   `json:"sides"`
	Weather       string   `json:"weather"`
	Terrain       string   `json:"terrain"`
	PseudoWeather []string `json:"pseudoWeather"`
	StepQueue     []string `json:"stepQueue"`
	// MySide is the local player's side id; empty when spectating.
	MySide  string   `json:"mySide"`
	Request *Request `json:"request,omitempty"`
}

// Side is one player's side as the host presents it.
type Side struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Rating         int            `json:"rating"`
	TotalPokemon   int            `json:"totalPokemon"`
	Pokemon        []Pokemon      `json:"pokemon"`
	// Active names the specimen in each active slot by searchid or ident;
	// an empty string marks an empty slot.
	Active         []string       `json:"active"`
	SideConditions map[string]int `json:"sideConditions"`
}

// Volatile is an active volatile condition and its arguments.
type Volatile struct {
	ID   string   `json:"id"`
	Args []string `json:"args,omitempty"`
}

// Pokemon is a specimen as the host presents it. Fields are whatever has
// been revealed so far.
type Pokemon struct {
	Ident          string         `json:"ident"`
	SearchID       string         `json:"searchid"`
	Details        string         `json:"details"`
	SpeciesForme   string         `json:"speciesForme"`
	Level          int            `json:"level"`
	HP             int            `json:"hp"`
	MaxHP          int            `json:"maxhp"`
	Fainted        bool           `json:"fainted"`
	Status         string         `json:"status"`
	StatusState    StatusState    `json:"statusState"`
	Ability        string         `json:"ability"`
	BaseAbility    string         `json:"baseAbility"`
	Item           string         `json:"item"`
	PrevItem       string         `json:"prevItem"`
	PrevItemEffect string         `json:"prevItemEffect"`
	MoveTrack      []MoveUse      `json:"moveTrack"`
	Volatiles      []Volatile     `json:"volatiles"`
	Boosts         map[string]int `json:"boosts"`
	TimesAttacked  int            `json:"timesAttacked"`
	TeraType       string         `json:"teraType"`
	Terastallized  string         `json:"terastallized"`
}

// StatusState carries the status counters the host tracks.
type StatusState struct {
	SleepTurns int `json:"sleepTurns"`
	ToxicTurns int `json:"toxicTurns"`
}

// MoveUse is one entry of a specimen's move history. A leading '*' on the
// name marks a move used while transformed.
type MoveUse struct {
	Name string `json:"name"`
	PP   int    `json:"pp"`
}

// Transformed reports whether the move was used while transformed, and
// returns the plain move name.
func (m MoveUse) Transformed() (string, bool) {
	if strings.HasPrefix(m.Name, "*") {
		return m.Name[1:], true
	}
	return m.Name, false
}

// HasVolatile reports whether a volatile with the given id is active.
func (p *Pokemon) HasVolatile(id string) bool {
	return p.Volatile(id) != nil
}

// Volatile returns the named volatile, or nil.
func (p *Pokemon) Volatile(id string) *Volatile {
	for i := range p.Volatiles {
		if strings.EqualFold(p.Volatiles[i].ID, id) {
			return &p.Volatiles[i]
		}
	}
	return nil
}

// Request is the pending-choice request for the local player.
type Request struct {
	Side struct {
		ID      string          `json:"id"`
		Pokemon []ServerPokemon `json:"pokemon"`
	} `json:"side"`
	Active []ActiveRequest `json:"active"`
}

// ActiveRequest lists the options offered for one active slot.
type ActiveRequest struct {
	CanDynamax      bool   `json:"canDynamax"`
	CanGigantamax   string `json:"canGigantamax"`
	CanTerastallize string `json:"canTerastallize"`
	CanMegaEvo      bool   `json:"canMegaEvo"`
}

// ServerPokemon is the authoritative view of one of the local player's
// specimens.
type ServerPokemon struct {
	Ident        string         `json:"ident"`
	Details      string         `json:"details"`
	SpeciesForme string         `json:"speciesForme"`
	Condition    string         `json:"condition"`
	HP           int            `json:"hp"`
	MaxHP        int            `json:"maxhp"`
	Active       bool           `json:"active"`
	Stats        map[string]int `json:"stats"`
	BaseStats    map[string]int `json:"baseStats,omitempty"`
	Moves        []string       `json:"moves"`
	BaseAbility  string         `json:"baseAbility"`
	Ability      string         `json:"ability"`
	Item         string         `json:"item"`
	TeraType     string         `json:"teraType"`
	Level        int            `json:"level"`
	Nature       string         `json:"nature,omitempty"`
}

// Server returns the local player's authoritative roster, or nil when the
// capture is from a spectator.
func (b *Battle) Server() []ServerPokemon {
	if b.Request == nil || b.MySide == "" {
		return nil
	}
	return b.Request.Side.Pokemon
}

// FindSide returns the side with the given id.
func (b *Battle) FindSide(id string) *Side {
	for i := range b.Sides {
		if b.Sides[i].ID == id {
			return &b.Sides[i]
		}
	}
	return nil
}

// ParseDetails splits a details string ("Garchomp, L50, F, tera:Fire") into
// its forme and level. A missing level means 100.
func ParseDetails(details string) (forme string, level int) {
	parts := strings.Split(details, ",")
	forme = strings.TrimSpace(parts[0])
	level = 100
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if len(part) > 1 && part[0] == 'L' {
			if n, err := strconv.Atoi(part[1:]); err == nil && n > 0 {
				level = n
			}
		}
	}
	return forme, level
}

// IdentSide returns the side id prefix of an ident ("p1: Garchomp" or
// "p1a: Garchomp").
func IdentSide(ident string) string {
	head, _, ok := strings.Cut(ident, ":")
	if !ok || len(head) < 2 {
		return ""
	}
	return head[:2]
}

// IdentName returns the nickname part of an ident.
func IdentName(ident string) string {
	_, name, ok := strings.Cut(ident, ":")
	if !ok {
		return strings.TrimSpace(ident)
	}
	return strings.TrimSpace(name)
}
