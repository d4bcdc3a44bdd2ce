package presets

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	"battlecalc/internal/battle"
	"battlecalc/internal/logging"
)

// Remote is a read-only preset database hosted on Turso, with an in-memory
// cache in front of it.
type Remote struct {
	db    *sql.DB
	cache *QueryCache
	log   zerolog.Logger
}

// OpenTurso connects to a Turso database. The token may be empty for local
// libsql servers.
func OpenTurso(ctx context.Context, url, token string, log zerolog.Logger) (*Remote, error) {
	if url == "" {
		return nil, fmt.Errorf("turso url: %w", ErrNotConfigured)
	}

	connStr := url
	if token != "" {
		connStr = fmt.Sprintf("%s?authToken=%s", url, token)
	}

	db, err := sql.Open("libsql", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Turso: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping Turso: %w", err)
	}

	log = logging.Component(log, "turso")
	log.Info().Msg("connected")

	return newRemote(db, log), nil
}

func newRemote(db *sql.DB, log zerolog.Logger) *Remote {
	return &Remote{db: db, cache: NewQueryCache(), log: log}
}

// PresetsFor implements Source.
func (r *Remote) PresetsFor(ctx context.Context, format, species string) ([]battle.Preset, error) {
	key := cacheKey(format, species)
	if out, ok := r.cache.Get(key); ok {
		return clonePresets(out), nil
	}
	out, err := queryPresets(ctx, r.db, format, species, DefaultLimit)
	if err != nil {
		return nil, err
	}
	r.cache.Set(key, out)
	return clonePresets(out), nil
}

// ClearCache clears all cached query results.
func (r *Remote) ClearCache() {
	r.cache.Clear()
	r.log.Debug().Msg("cache cleared")
}

// Close closes the connection.
func (r *Remote) Close() error {
	return r.db.Close()
}
