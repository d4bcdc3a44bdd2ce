package presets

import (
	"context"
	"database/sql"
	"fmt"

	json "github.com/goccy/go-json"

	"battlecalc/internal/battle"
	"battlecalc/internal/dex"
)

// DefaultLimit caps how many presets a lookup returns.
const DefaultLimit = 8

const schema = `
	CREATE TABLE IF NOT EXISTS data_version (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS presets (
		id TEXT NOT NULL,
		format TEXT NOT NULL,
		species TEXT NOT NULL,
		payload TEXT NOT NULL,
		usage REAL NOT NULL DEFAULT 0,
		source TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (format, id)
	);

	CREATE INDEX IF NOT EXISTS presets_lookup ON presets (format, species, usage DESC);
`

// queryPresets reads presets for a species from any database/sql backend
// that speaks SQLite. When the format has nothing, it falls back to every
// format.
func queryPresets(ctx context.Context, db *sql.DB, format, species string, limit int) ([]battle.Preset, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	species = dex.ID(species)

	out, err := scanPresets(db.QueryContext(ctx, `
		SELECT payload, usage, source FROM presets
		WHERE format = ? AND species = ?
		ORDER BY usage DESC, id
		LIMIT ?
	`, dex.ID(format), species, limit))
	if err != nil || len(out) > 0 {
		return out, err
	}

	return scanPresets(db.QueryContext(ctx, `
		SELECT payload, MAX(usage), MIN(source) FROM presets
		WHERE species = ?
		GROUP BY id
		ORDER BY MAX(usage) DESC, id
		LIMIT ?
	`, species, limit))
}

func scanPresets(rows *sql.Rows, err error) ([]battle.Preset, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query presets: %w", err)
	}
	defer rows.Close()

	var out []battle.Preset
	for rows.Next() {
		var payload, source string
		var usage float64
		if err := rows.Scan(&payload, &usage, &source); err != nil {
			return nil, fmt.Errorf("failed to scan preset: %w", err)
		}
		p, err := decodePreset([]byte(payload))
		if err != nil {
			continue
		}
		p.Usage = usage
		if p.Source == "" {
			p.Source = source
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func decodePreset(payload []byte) (battle.Preset, error) {
	var p battle.Preset
	if err := json.Unmarshal(payload, &p); err != nil {
		return battle.Preset{}, fmt.Errorf("failed to decode preset: %w", err)
	}
	return battle.NewPreset(p), nil
}

func encodePreset(p battle.Preset) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode preset: %w", err)
	}
	return string(b), nil
}
