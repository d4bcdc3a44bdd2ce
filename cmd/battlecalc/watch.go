package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"battlecalc/internal/battle"
	"battlecalc/internal/config"
	"battlecalc/internal/dex"
	"battlecalc/internal/finalstats"
	"battlecalc/internal/host"
	"battlecalc/internal/logging"
	"battlecalc/internal/movepower"
	"battlecalc/internal/presets"
	"battlecalc/internal/reconcile"
)

func runWatch(ctx context.Context, cfg config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	url := fs.String("url", cfg.Feed.URL, "Host feed websocket URL")
	pollURL := fs.String("poll", cfg.Feed.PollURL, "Host HTTP base URL to poll instead of the websocket")
	if err := fs.Parse(args); err != nil {
		return err
	}
	interval, err := cfg.Feed.Interval()
	if err != nil {
		return err
	}

	// Dex data and preset sources load in parallel.
	var (
		registry *dex.Registry
		sources  *presetSources
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		registry, err = loadDex(cfg.Dex, log)
		return err
	})
	g.Go(func() error {
		sources = openPresets(gctx, cfg.Presets, log)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	defer sources.Close()
	log.Info().Stringer("presets", sources).Msg("preset sources ready")

	w := &watcher{ctx: ctx, log: logging.Component(log, "watch")}
	opts := []reconcile.Option{reconcile.WithLogger(log), reconcile.WithPresetNotify(w.presetsLoaded)}
	if src := sources.Source(); src != nil {
		opts = append(opts, reconcile.WithPresets(src))
	}
	w.rec = reconcile.New(registry, opts...)

	if *pollURL != "" {
		log.Info().Str("url", *pollURL).Dur("interval", interval).Msg("polling host")
		return host.NewClient(*pollURL).Poll(ctx, interval, w.handle)
	}

	feed := host.NewFeed(log)
	feed.SetBattleHandler(w.handle)
	if err := feed.Connect(ctx, *url); err != nil {
		return err
	}
	err = feed.Wait(ctx)
	if errors.Is(err, host.ErrFeedClosed) {
		log.Warn().Msg("host closed the feed")
		return nil
	}
	return err
}

type watcher struct {
	ctx context.Context
	rec *reconcile.Reconciler
	log zerolog.Logger
}

func (w *watcher) handle(b *host.Battle, ended bool) {
	if ended {
		if m, err := w.rec.End(b.ID); err == nil {
			w.log.Info().Str("match_id", m.ID).Int("turn", m.Turn).Msg("battle over")
		}
		return
	}

	w.rec.Init(b.ID)
	m, changed, err := w.rec.Sync(w.ctx, b)
	if err != nil {
		w.log.Error().Err(err).Str("match_id", b.ID).Msg("sync failed")
		return
	}
	if changed {
		w.summarize(m)
	}
}

// presetsLoaded merges finished preset lookups and reports the new numbers.
func (w *watcher) presetsLoaded(matchID string) {
	m, changed, err := w.rec.MergePresets(matchID)
	if err != nil {
		w.log.Debug().Err(err).Str("match_id", matchID).Msg("presets arrived for a finished match")
		return
	}
	if changed {
		w.summarize(m)
	}
}

// summarize logs the final stats and move powers of every active specimen
// against the opposing side's viewed specimen.
func (w *watcher) summarize(m *battle.Match) {
	d := w.rec.Dex(m)
	for _, key := range m.SideKeys {
		oppID := ""
		if opp, ok := m.Viewed(m.Opponent(key)); ok {
			oppID = opp.ID
		}
		for _, p := range m.ActivePokemon(key) {
			out, ok := finalstats.ForMatch(d, m, p.ID, oppID)
			if !ok {
				continue
			}
			w.log.Info().
				Str("match_id", m.ID).
				Int("turn", m.Turn).
				Str("side", key).
				Str("species", p.Forme()).
				Str("stats", formatTable(out.Stats)).
				Strs("moves", w.movePowers(d, m, p, oppID)).
				Msg("final stats")
		}
	}
}

func (w *watcher) movePowers(d *dex.Dex, m *battle.Match, p *battle.Pokemon, oppID string) []string {
	var out []string
	for _, move := range p.MoveList() {
		res, ok := movepower.ForMatch(d, m, move, p.ID, oppID)
		if !ok || res.Move == "" {
			continue
		}
		out = append(out, fmt.Sprintf("%s %s %d", res.Move, res.Type, res.BasePower))
	}
	return out
}

// presetSources are the preset backends that could be opened. Each one is
// optional; failures are logged and skipped.
type presetSources struct {
	store  *presets.Store
	remote *presets.Remote
	pg     *presets.PGProvider
}

func openPresets(ctx context.Context, cfg config.PresetsConfig, log zerolog.Logger) *presetSources {
	s := &presetSources{}

	if cfg.DB != "" {
		store, err := presets.Open(cfg.DB, log)
		if err != nil {
			log.Warn().Err(err).Msg("preset store unavailable")
		} else {
			s.store = store
			if cfg.ManifestURL != "" {
				if err := store.CheckForUpdates(ctx, cfg.ManifestURL); err != nil {
					log.Warn().Err(err).Msg("preset update failed")
				}
			}
		}
	}

	if remote, err := presets.OpenTurso(ctx, cfg.TursoURL, cfg.TursoToken, log); err == nil {
		s.remote = remote
	} else if !errors.Is(err, presets.ErrNotConfigured) {
		log.Warn().Err(err).Msg("turso unavailable")
	}

	if pg, err := presets.NewPGProvider(ctx, cfg.DatabaseURL, log); err == nil {
		if err := pg.FetchVersion(ctx); err != nil {
			log.Warn().Err(err).Msg("usage version unknown")
		}
		s.pg = pg
	} else if !errors.Is(err, presets.ErrNotConfigured) {
		log.Warn().Err(err).Msg("usage database unavailable")
	}

	return s
}

// Source chains the open backends, local first, behind a shared cache.
func (s *presetSources) Source() presets.Source {
	var chain presets.Chain
	if s.store != nil && s.store.HasData() {
		chain = append(chain, s.store)
	}
	if s.remote != nil {
		chain = append(chain, s.remote)
	}
	if s.pg != nil {
		chain = append(chain, s.pg)
	}
	if len(chain) == 0 {
		return nil
	}
	return presets.NewCached(chain)
}

func (s *presetSources) Close() {
	if s.store != nil {
		s.store.Close()
	}
	if s.remote != nil {
		s.remote.Close()
	}
	if s.pg != nil {
		s.pg.Close()
	}
}

func (s *presetSources) String() string {
	return fmt.Sprintf("store=%t turso=%t pg=%t", s.store != nil, s.remote != nil, s.pg != nil)
}
