package ledger

import (
	"math"

	"battlecalc/internal/stats"
)

// Category identifies where a modifier came from.
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryBoost
	CategoryStatus
	CategoryItem
	CategoryAbility
	CategoryRuin
	CategoryWeather
	CategoryTerrain
	CategorySide
	CategoryVolatile
	CategoryMechanic
	CategoryCap
)

var categoryNames = [...]string{
	"unknown", "boost", "status", "item", "ability", "ruin",
	"weather", "terrain", "side", "volatile", "mechanic", "cap",
}

func (c Category) String() string {
	if int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

// MarshalText lets categories serialize by name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Kind describes the operation an entry records.
type Kind uint8

const (
	KindMultiply Kind = iota
	KindAdd
	KindSwap
	KindCap
)

// Entry is one recorded modification of a stat.
type Entry struct {
	Stat       stats.ID `json:"stat"`
	Kind       Kind     `json:"kind"`
	Category   Category `json:"category"`
	Label      string   `json:"label"`
	Multiplier float64  `json:"multiplier,omitempty"`
	Delta      float64  `json:"delta,omitempty"`
	// SwappedWith is set for KindSwap entries.
	SwappedWith stats.ID `json:"swappedWith,omitempty"`
	Prev        float64  `json:"prev"`
	Result      float64  `json:"result"`
}

// Export is the final stat table plus the entries that produced each stat.
type Export struct {
	Stats   stats.Table           `json:"stats"`
	Entries map[stats.ID][]Entry `json:"entries"`
}

// Ledger tracks running stat values through an ordered list of modifiers.
// Every stat except speed is floored after each step; speed keeps its
// fractional part until Export.
type Ledger struct {
	values  [numStats]float64
	entries [numStats][]Entry
}

const numStats = int(stats.Spe) + 1

// epsilon absorbs float error so 100*1.1 floors to 110, not 109.
const epsilon = 1e-9

func floor(v float64) float64 {
	return math.Floor(v + epsilon)
}

// New creates a ledger seeded from the given tables. Later tables win for
// every stat they carry a nonzero value for.
func New(seeds ...stats.Table) *Ledger {
	var merged stats.Table
	for _, s := range seeds {
		merged = merged.Overlay(s)
	}
	l := &Ledger{}
	for _, id := range stats.IDs {
		l.values[id] = float64(merged.Get(id))
	}
	return l
}

// Value returns the running value of a stat, including speed's fraction.
func (l *Ledger) Value(id stats.ID) float64 {
	if !valid(id) {
		return 0
	}
	return l.values[id]
}

// Stat returns the running value of a stat as an integer.
func (l *Ledger) Stat(id stats.ID) int {
	return int(floor(l.Value(id)))
}

// Apply multiplies a stat's running value and records the step. A
// multiplier of exactly 1 is skipped.
func (l *Ledger) Apply(id stats.ID, mult float64, cat Category, label string) {
	if !valid(id) || mult == 1 {
		return
	}
	prev := l.values[id]
	next := prev * mult
	if id != stats.Spe {
		next = floor(next)
	}
	l.values[id] = next
	l.record(Entry{Stat: id, Kind: KindMultiply, Category: cat, Label: label, Multiplier: mult, Prev: prev, Result: next})
}

// Add offsets a stat's running value and records the step.
func (l *Ledger) Add(id stats.ID, delta float64, cat Category, label string) {
	if !valid(id) || delta == 0 {
		return
	}
	prev := l.values[id]
	next := prev + delta
	if id != stats.Spe {
		next = floor(next)
	}
	if next < 0 {
		next = 0
	}
	l.values[id] = next
	l.record(Entry{Stat: id, Kind: KindAdd, Category: cat, Label: label, Delta: delta, Prev: prev, Result: next})
}

// Swap exchanges two running values and records an entry on each stat.
func (l *Ledger) Swap(a, b stats.ID, cat Category, label string) {
	if !valid(a) || !valid(b) || a == b {
		return
	}
	va, vb := l.values[a], l.values[b]
	l.values[a], l.values[b] = vb, va
	l.record(Entry{Stat: a, Kind: KindSwap, Category: cat, Label: label, SwappedWith: b, Prev: va, Result: vb})
	l.record(Entry{Stat: b, Kind: KindSwap, Category: cat, Label: label, SwappedWith: a, Prev: vb, Result: va})
}

// Cap clamps every running value to at most max.
func (l *Ledger) Cap(max int, label string) {
	limit := float64(max)
	for _, id := range stats.IDs {
		prev := l.values[id]
		if prev <= limit {
			continue
		}
		l.values[id] = limit
		l.record(Entry{Stat: id, Kind: KindCap, Category: CategoryCap, Label: label, Prev: prev, Result: limit})
	}
}

// Entries returns the entries recorded for one stat.
func (l *Ledger) Entries(id stats.ID) []Entry {
	if !valid(id) {
		return nil
	}
	return l.entries[id]
}

// Export returns the final stats and a copy of every stat's entries. Speed
// is floored here, once.
func (l *Ledger) Export() Export {
	out := Export{Entries: make(map[stats.ID][]Entry, len(stats.IDs))}
	for _, id := range stats.IDs {
		out.Stats.Set(id, int(floor(l.values[id])))
		if len(l.entries[id]) > 0 {
			out.Entries[id] = append([]Entry(nil), l.entries[id]...)
		}
	}
	return out
}

func (l *Ledger) record(e Entry) {
	l.entries[e.Stat] = append(l.entries[e.Stat], e)
}

func valid(id stats.ID) bool {
	return id >= stats.HP && id <= stats.Spe
}
