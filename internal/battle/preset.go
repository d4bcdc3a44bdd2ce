package battle

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	json "github.com/goccy/go-json"

	"battlecalc/internal/stats"
)

// Preset sources.
const (
	SourceObserved = "observed"
	SourceUsage    = "usage"
	SourceImport   = "import"
	SourceUser     = "user"
)

// Preset is an immutable build for one species forme.
type Preset struct {
	ID       string      `json:"id"`
	Name     string      `json:"name,omitempty"`
	Source   string      `json:"source,omitempty"`
	Format   string      `json:"format,omitempty"`
	Species  string      `json:"species"`
	Ability  string      `json:"ability,omitempty"`
	Item     string      `json:"item,omitempty"`
	Nature   string      `json:"nature,omitempty"`
	IVs      stats.Table `json:"ivs"`
	EVs      stats.Table `json:"evs"`
	Moves    []string    `json:"moves,omitempty"`
	TeraType string      `json:"teraType,omitempty"`
	// Usage is a 0..1 weighting; zero when unknown.
	Usage float64 `json:"usage,omitempty"`
}

type fingerprintFields struct {
	Species  string      `json:"s"`
	Ability  string      `json:"a"`
	Item     string      `json:"i"`
	Nature   string      `json:"n"`
	IVs      stats.Table `json:"iv"`
	EVs      stats.Table `json:"ev"`
	Moves    []string    `json:"m"`
	TeraType string      `json:"t"`
}

// Fingerprint derives an id from the build's content. Name, source, format
// and usage do not contribute, so equal builds share an id.
func (p Preset) Fingerprint() string {
	moves := make([]string, len(p.Moves))
	for i, m := range p.Moves {
		moves[i] = strings.ToLower(m)
	}
	b, err := json.Marshal(fingerprintFields{
		Species:  strings.ToLower(p.Species),
		Ability:  strings.ToLower(p.Ability),
		Item:     strings.ToLower(p.Item),
		Nature:   strings.ToLower(p.Nature),
		IVs:      p.IVs,
		EVs:      p.EVs,
		Moves:    moves,
		TeraType: strings.ToLower(p.TeraType),
	})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// NewPreset returns p with its ID set from its content.
func NewPreset(p Preset) Preset {
	p.Moves = append([]string(nil), p.Moves...)
	p.ID = p.Fingerprint()
	return p
}

// HasSpread reports whether the preset carries a usable genetic spread.
func (p Preset) HasSpread() bool {
	return p.Nature != "" && (!p.IVs.IsZero() || !p.EVs.IsZero())
}
