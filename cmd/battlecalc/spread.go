package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"battlecalc/internal/config"
	"battlecalc/internal/dex"
	"battlecalc/internal/spread"
	"battlecalc/internal/stats"
)

func runSpread(ctx context.Context, cfg config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("spread", flag.ContinueOnError)
	species := fs.String("species", "", "Species or forme name (e.g., 'Garchomp')")
	level := fs.Int("level", stats.MaxLevel, "Level")
	gen := fs.Int("gen", 9, "Generation")
	table := fs.String("stats", "", "Final stats as hp/atk/def/spa/spd/spe")
	nature := fs.String("nature", "", "Nature to try first")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *species == "" || *table == "" {
		return fmt.Errorf("-species and -stats are required")
	}

	registry, err := loadDex(cfg.Dex, log)
	if err != nil {
		return err
	}
	d, ok := registry.ForGen(*gen)
	if !ok {
		return fmt.Errorf("no dex data for gen %d", *gen)
	}
	base, ok := d.BaseStats(*species)
	if !ok {
		return fmt.Errorf("unknown species %q", *species)
	}
	final, err := parseStatLine(*table)
	if err != nil {
		return err
	}

	res := spread.Guess(spread.Input{
		Gen:        *gen,
		Level:      *level,
		Base:       base,
		Stats:      final,
		NatureHint: *nature,
	})
	return printSpread(os.Stdout, *species, res)
}

// parseStatLine reads "358/359/226/176/206/333".
func parseStatLine(s string) (stats.Table, error) {
	parts := strings.Split(s, "/")
	if len(parts) != len(stats.IDs) {
		return stats.Table{}, fmt.Errorf("expected %d stats, got %d", len(stats.IDs), len(parts))
	}
	var t stats.Table
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || v < 0 {
			return stats.Table{}, fmt.Errorf("invalid %s value %q", stats.IDs[i], part)
		}
		t.Set(stats.IDs[i], v)
	}
	return t, nil
}

func printSpread(w io.Writer, species string, res spread.Result) error {
	if !res.OK() {
		_, err := fmt.Fprintf(w, "%s: no spread reproduces these stats\n", species)
		return err
	}
	_, err := fmt.Fprintf(w, "%s @ %s\nIVs: %s\nEVs: %s\n", species, res.Nature, formatTable(res.IVs), formatTable(res.EVs))
	return err
}

func formatTable(t stats.Table) string {
	parts := make([]string, 0, len(stats.IDs))
	for _, id := range stats.IDs {
		parts = append(parts, fmt.Sprintf("%d %s", t.Get(id), id))
	}
	return strings.Join(parts, " / ")
}

// loadDex starts from the built-in seed and merges any configured data.
func loadDex(cfg config.DexConfig, log zerolog.Logger) (*dex.Registry, error) {
	registry := dex.Seed()
	if cfg.Path != "" {
		if err := registry.LoadFile(cfg.Path); err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.Path).Msg("dex loaded")
	}
	if cfg.URL != "" {
		if err := registry.LoadURL(cfg.URL); err != nil {
			return nil, err
		}
		log.Info().Str("url", cfg.URL).Msg("dex loaded")
	}
	return registry, nil
}
