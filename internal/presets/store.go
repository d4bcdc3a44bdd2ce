package presets

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"battlecalc/internal/battle"
	"battlecalc/internal/dex"
	"battlecalc/internal/logging"
)

var ErrChecksumMismatch = errors.New("presets: checksum mismatch")

// Manifest is the remote manifest.json structure.
type Manifest struct {
	Version    string `json:"version"`
	DataURL    string `json:"data_url"`
	DataSha256 string `json:"data_sha256"`
	UpdatedAt  string `json:"updated_at"`
	ForceReset bool   `json:"force_reset"`
}

// DataExport is a bulk preset export.
type DataExport struct {
	Version     string      `json:"version"`
	GeneratedAt string      `json:"generatedAt"`
	Presets     []PresetRow `json:"presets"`
}

// PresetRow is one preset as stored for a format.
type PresetRow struct {
	Format string        `json:"format"`
	Preset battle.Preset `json:"preset"`
}

// Store is a local SQLite preset database with remote update capability.
type Store struct {
	db      *sql.DB
	version string
	log     zerolog.Logger
}

// DefaultPath returns the preset database path under the user config dir.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = "."
	}
	dir := filepath.Join(configDir, "battlecalc")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create db directory: %w", err)
	}
	return filepath.Join(dir, "presets.db"), nil
}

// Open opens or creates the store at path.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, log: logging.Component(log, "presets")}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	s.loadVersion()
	return s, nil
}

func (s *Store) init() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *Store) loadVersion() {
	var version string
	if err := s.db.QueryRow("SELECT version FROM data_version WHERE id = 1").Scan(&version); err == nil {
		s.version = version
	}
}

// Version returns the locally stored data version.
func (s *Store) Version() string {
	return s.version
}

// PresetsFor implements Source.
func (s *Store) PresetsFor(ctx context.Context, format, species string) ([]battle.Preset, error) {
	return queryPresets(ctx, s.db, format, species, DefaultLimit)
}

// HasData reports whether any preset is stored.
func (s *Store) HasData() bool {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM presets").Scan(&count)
	return err == nil && count > 0
}

// ImportData upserts presets in a single transaction and records version.
func (s *Store) ImportData(ctx context.Context, data *DataExport, version string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO presets (id, format, species, payload, usage, source)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(format, id) DO UPDATE SET
			payload = excluded.payload,
			usage = excluded.usage,
			source = excluded.source
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare presets statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range data.Presets {
		p := battle.NewPreset(row.Preset)
		if p.Species == "" {
			continue
		}
		payload, err := encodePreset(p)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, p.ID, dex.ID(row.Format), dex.ID(p.Species), payload, p.Usage, p.Source); err != nil {
			return fmt.Errorf("failed to insert preset: %w", err)
		}
	}

	if version != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO data_version (id, version, updated_at)
			VALUES (1, ?, datetime('now'))
		`, version); err != nil {
			return fmt.Errorf("failed to update version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	if version != "" {
		s.version = version
	}

	s.log.Info().Int("presets", len(data.Presets)).Str("version", version).Msg("imported")
	return nil
}

// CheckForUpdates fetches the manifest and imports newer data.
func (s *Store) CheckForUpdates(ctx context.Context, manifestURL string) error {
	if manifestURL == "" {
		return fmt.Errorf("manifest URL: %w", ErrNotConfigured)
	}

	s.log.Info().Str("url", manifestURL).Msg("checking for updates")

	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("manifest fetch returned status %d", resp.StatusCode)
	}

	var manifest Manifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}

	if manifest.ForceReset {
		s.log.Info().Msg("force reset requested")
		s.clearVersion()
	}

	if manifest.Version != "" && manifest.Version <= s.version {
		s.log.Debug().Str("version", s.version).Msg("up to date")
		return nil
	}

	if err := s.downloadAndImport(ctx, manifest.DataURL, manifest.DataSha256, manifest.Version); err != nil {
		return fmt.Errorf("failed to download and import data: %w", err)
	}
	return nil
}

func (s *Store) downloadAndImport(ctx context.Context, dataURL, expectedSha256, version string) error {
	client := &http.Client{Timeout: 60 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dataURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("data fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read data: %w", err)
	}

	if expectedSha256 != "" {
		sum := sha256.Sum256(body)
		if actual := hex.EncodeToString(sum[:]); actual != expectedSha256 {
			return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expectedSha256, actual)
		}
	}

	var data DataExport
	if err := json.Unmarshal(body, &data); err != nil {
		return fmt.Errorf("failed to parse data: %w", err)
	}
	return s.ImportData(ctx, &data, version)
}

func (s *Store) clearVersion() {
	s.db.Exec("DELETE FROM data_version")
	s.version = ""
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
