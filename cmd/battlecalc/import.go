package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/rs/zerolog"

	"battlecalc/internal/config"
	"battlecalc/internal/presets"
)

func runImport(ctx context.Context, cfg config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.Presets.DB, "Preset database path")
	file := fs.String("file", "", "Data export to import (JSON)")
	manifest := fs.String("manifest", cfg.Presets.ManifestURL, "Manifest URL to update from instead of a file")
	expected := fs.Uint("expected", 100000, "Expected number of presets, sizes the dedupe filter")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" && *manifest == "" {
		return fmt.Errorf("-file or -manifest is required")
	}

	path := *dbPath
	if path == "" {
		var err error
		if path, err = presets.DefaultPath(); err != nil {
			return err
		}
	}
	store, err := presets.Open(path, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if *file == "" {
		if err := store.CheckForUpdates(ctx, *manifest); err != nil {
			return err
		}
		fmt.Printf("Preset data version: %s\n", store.Version())
		return nil
	}

	stats, err := presets.NewImporter(store, *expected, log).ImportFile(ctx, *file)
	if err != nil {
		return err
	}
	fmt.Printf("Read %d presets, imported %d, skipped %d duplicates into %s\n", stats.Read, stats.Imported, stats.Skipped, path)
	return nil
}
