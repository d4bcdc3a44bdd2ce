package presets

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"battlecalc/internal/battle"
	"battlecalc/internal/dex"
	"battlecalc/internal/logging"
)

// PGProvider serves usage-ranked presets from a PostgreSQL database with
// the same presets table as the local store.
type PGProvider struct {
	pool    *pgxpool.Pool
	version string
	log     zerolog.Logger
}

// NewPGProvider connects to databaseURL.
func NewPGProvider(ctx context.Context, databaseURL string, log zerolog.Logger) (*PGProvider, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database url: %w", ErrNotConfigured)
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PGProvider{pool: pool, log: logging.Component(log, "pg")}, nil
}

// Close closes the pool.
func (p *PGProvider) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// FetchVersion loads the data version recorded in the database.
func (p *PGProvider) FetchVersion(ctx context.Context) error {
	var version string
	err := p.pool.QueryRow(ctx, `SELECT version FROM data_version WHERE id = 1`).Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	p.version = version
	p.log.Info().Str("version", version).Msg("using data version")
	return nil
}

// Version returns the version loaded by FetchVersion.
func (p *PGProvider) Version() string {
	return p.version
}

// PresetsFor implements Source. It falls back to every format when the
// requested one has no rows.
func (p *PGProvider) PresetsFor(ctx context.Context, format, species string) ([]battle.Preset, error) {
	species = dex.ID(species)

	rows, err := p.pool.Query(ctx, `
		SELECT payload, usage, source FROM presets
		WHERE format = $1 AND species = $2
		ORDER BY usage DESC, id
		LIMIT $3
	`, dex.ID(format), species, DefaultLimit)
	out, err := collectPG(rows, err)
	if err != nil || len(out) > 0 {
		return out, err
	}

	rows, err = p.pool.Query(ctx, `
		SELECT DISTINCT ON (id) payload, usage, source FROM presets
		WHERE species = $1
		ORDER BY id, usage DESC
	`, species)
	out, err = collectPG(rows, err)
	if err != nil {
		return nil, err
	}
	sortByUsage(out)
	if len(out) > DefaultLimit {
		out = out[:DefaultLimit]
	}
	return out, nil
}

func collectPG(rows pgx.Rows, err error) ([]battle.Preset, error) {
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
		pr, err := decodePreset([]byte(payload))
		if err != nil {
			continue
		}
		pr.Usage = usage
		if pr.Source == "" {
			pr.Source = source
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}
