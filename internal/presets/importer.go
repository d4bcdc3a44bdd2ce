package presets

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"battlecalc/internal/battle"
	"battlecalc/internal/dex"
	"battlecalc/internal/logging"
)

// Importer loads preset exports into a Store, skipping builds it has already
// seen for a format. The filter may report rare false positives, which only
// ever drop a duplicate-looking row.
type Importer struct {
	store *Store
	seen  *bloom.BloomFilter
	log   zerolog.Logger
}

// ImportStats summarizes one import.
type ImportStats struct {
	Read     int
	Imported int
	Skipped  int
}

// NewImporter creates an importer sized for expected rows.
func NewImporter(store *Store, expected uint, log zerolog.Logger) *Importer {
	if expected == 0 {
		expected = 100000
	}
	return &Importer{
		store: store,
		seen:  bloom.NewWithEstimates(expected, 0.001),
		log:   logging.Component(log, "importer"),
	}
}

// Import reads a DataExport from r and stores every new preset.
func (im *Importer) Import(ctx context.Context, r io.Reader) (ImportStats, error) {
	var data DataExport
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return ImportStats{}, fmt.Errorf("failed to parse export: %w", err)
	}
	return im.ImportExport(ctx, &data)
}

// ImportFile imports a DataExport from a file on disk.
func (im *Importer) ImportFile(ctx context.Context, path string) (ImportStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportStats{}, fmt.Errorf("failed to open export %s: %w", path, err)
	}
	defer f.Close()
	return im.Import(ctx, f)
}

// ImportExport stores every preset of data that was not seen before.
func (im *Importer) ImportExport(ctx context.Context, data *DataExport) (ImportStats, error) {
	stats := ImportStats{Read: len(data.Presets)}
	fresh := &DataExport{Version: data.Version, GeneratedAt: data.GeneratedAt}
	batch := make(map[string]bool)
	var keys []string

	for _, row := range data.Presets {
		p := battle.NewPreset(row.Preset)
		if p.Species == "" {
			stats.Skipped++
			continue
		}
		key := dex.ID(row.Format) + "|" + p.ID
		if batch[key] || im.seen.TestString(key) {
			stats.Skipped++
			continue
		}
		batch[key] = true
		keys = append(keys, key)
		fresh.Presets = append(fresh.Presets, PresetRow{Format: row.Format, Preset: p})
	}

	if err := im.store.ImportData(ctx, fresh, data.Version); err != nil {
		return stats, err
	}
	// Keys are only remembered once the rows are stored, so a failed import
	// can be retried.
	for _, key := range keys {
		im.seen.AddString(key)
	}
	stats.Imported = len(fresh.Presets)
	im.log.Info().Int("read", stats.Read).Int("imported", stats.Imported).Int("skipped", stats.Skipped).Msg("import done")
	return stats, nil
}

func sortByUsage(ps []battle.Preset) {
	slices.SortStableFunc(ps, func(a, b battle.Preset) int {
		if c := cmp.Compare(b.Usage, a.Usage); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
