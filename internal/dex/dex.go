package dex

import (
	"strings"
	"sync"

	"battlecalc/internal/stats"
)

// Species holds the lookup data for one species forme.
type Species struct {
	Name        string      `json:"name" yaml:"name"`
	BaseSpecies string      `json:"baseSpecies,omitempty" yaml:"baseSpecies"`
	Forme       string      `json:"forme,omitempty" yaml:"forme"`
	Types       []string    `json:"types" yaml:"types"`
	BaseStats   stats.Table `json:"baseStats" yaml:"baseStats"`
	Abilities   []string    `json:"abilities" yaml:"abilities"`
	OtherFormes []string    `json:"otherFormes,omitempty" yaml:"otherFormes"`
	NFE         bool        `json:"nfe,omitempty" yaml:"nfe"`
	Gen         int         `json:"gen,omitempty" yaml:"gen"`
}

// Base returns the base species name, falling back to the forme name.
func (s *Species) Base() string {
	if s.BaseSpecies != "" {
		return s.BaseSpecies
	}
	return s.Name
}

// HasType reports whether the species carries typ.
func (s *Species) HasType(typ string) bool {
	for _, t := range s.Types {
		if strings.EqualFold(t, typ) {
			return true
		}
	}
	return false
}

// Move is the subset of move data the resolvers consume.
type Move struct {
	Name      string `json:"name" yaml:"name"`
	Type      string `json:"type" yaml:"type"`
	Category  string `json:"category" yaml:"category"`
	BasePower int    `json:"basePower" yaml:"basePower"`
	Gen       int    `json:"gen,omitempty" yaml:"gen"`
}

// Entry is a named ability or item with the gen it was introduced in.
type Entry struct {
	Name string `json:"name" yaml:"name"`
	Gen  int    `json:"gen,omitempty" yaml:"gen"`
}

// Data is the serialized form of a dex file.
type Data struct {
	Species   []Species `json:"species" yaml:"species"`
	Moves     []Move    `json:"moves" yaml:"moves"`
	Abilities []Entry   `json:"abilities" yaml:"abilities"`
	Items     []Entry   `json:"items" yaml:"items"`
}

// Dex is a read-only view of the lookup data for one generation.
type Dex struct {
	gen       int
	species   map[string]*Species
	moves     map[string]*Move
	abilities map[string]Entry
	items     map[string]Entry
}

// Gen returns the generation this view was built for.
func (d *Dex) Gen() int { return d.gen }

// Species looks up a species forme by name or id.
func (d *Dex) Species(name string) (*Species, bool) {
	if d == nil {
		return nil, false
	}
	s, ok := d.species[ID(name)]
	return s, ok
}

// Move looks up a move by name or id.
func (d *Dex) Move(name string) (*Move, bool) {
	if d == nil {
		return nil, false
	}
	m, ok := d.moves[ID(name)]
	return m, ok
}

// Ability reports whether the ability exists in this gen.
func (d *Dex) Ability(name string) (Entry, bool) {
	if d == nil {
		return Entry{}, false
	}
	a, ok := d.abilities[ID(name)]
	return a, ok
}

// Item reports whether the item exists in this gen.
func (d *Dex) Item(name string) (Entry, bool) {
	if d == nil {
		return Entry{}, false
	}
	i, ok := d.items[ID(name)]
	return i, ok
}

// BaseStats returns the base stats of a species, or false when unknown.
func (d *Dex) BaseStats(name string) (stats.Table, bool) {
	s, ok := d.Species(name)
	if !ok || s.BaseStats.IsZero() {
		return stats.Table{}, false
	}
	return s.BaseStats, true
}

// ID lower-cases a name and strips everything that is not a letter or digit,
// so "Mr. Mime" and "mrmime" resolve to the same key.
func ID(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Registry holds merged dex data and builds per-gen views on demand.
type Registry struct {
	mu     sync.RWMutex
	data   Data
	views  map[int]*Dex
	loaded bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{views: make(map[int]*Dex)}
}

// Add merges data into the registry. Later entries replace earlier ones with
// the same id.
func (r *Registry) Add(d Data) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data.Species = append(r.data.Species, d.Species...)
	r.data.Moves = append(r.data.Moves, d.Moves...)
	r.data.Abilities = append(r.data.Abilities, d.Abilities...)
	r.data.Items = append(r.data.Items, d.Items...)
	r.views = make(map[int]*Dex)
	r.loaded = true
}

// IsLoaded returns whether any data has been added.
func (r *Registry) IsLoaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// ForGen returns the view for gen, or false when nothing is loaded or gen is
// not a valid generation.
func (r *Registry) ForGen(gen int) (*Dex, bool) {
	if r == nil || gen <= 0 {
		return nil, false
	}

	r.mu.RLock()
	if d, ok := r.views[gen]; ok {
		r.mu.RUnlock()
		return d, true
	}
	loaded := r.loaded
	r.mu.RUnlock()
	if !loaded {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.views[gen]; ok {
		return d, true
	}
	d := buildView(r.data, gen)
	r.views[gen] = d
	return d, true
}

func buildView(data Data, gen int) *Dex {
	d := &Dex{
		gen:       gen,
		species:   make(map[string]*Species, len(data.Species)),
		moves:     make(map[string]*Move, len(data.Moves)),
		abilities: make(map[string]Entry, len(data.Abilities)),
		items:     make(map[string]Entry, len(data.Items)),
	}
	for i := range data.Species {
		s := data.Species[i]
		if s.Gen > gen {
			continue
		}
		d.species[ID(s.Name)] = &s
	}
	for i := range data.Moves {
		m := data.Moves[i]
		if m.Gen > gen {
			continue
		}
		d.moves[ID(m.Name)] = &m
	}
	for _, a := range data.Abilities {
		if a.Gen > gen {
			continue
		}
		d.abilities[ID(a.Name)] = a
	}
	for _, it := range data.Items {
		if it.Gen > gen {
			continue
		}
		d.items[ID(it.Name)] = it
	}
	return d
}
