package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"battlecalc/internal/config"
	"battlecalc/internal/logging"
)

const usage = `usage: battlecalc <command> [flags]

commands:
  watch    follow the host feed and log final stats after every change
  spread   guess a nature/IV/EV spread from final stats
  import   load a preset data export into the local store
`

type command func(ctx context.Context, cfg config.Config, log zerolog.Logger, args []string) error

var commands = map[string]command{
	"watch":  runWatch,
	"spread": runSpread,
	"import": runImport,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	cfgPath := os.Getenv("BATTLECALC_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd(ctx, cfg, log, os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("shutting down")
			return
		}
		log.Error().Err(err).Str("command", os.Args[1]).Msg("command failed")
		stop()
		os.Exit(1)
	}
}
