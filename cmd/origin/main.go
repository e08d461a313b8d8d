package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/indigo-web/origin"
	"github.com/indigo-web/origin/config"
	"github.com/rs/zerolog"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "address to listen on")
		configPath  = flag.String("config", "", "path to the JSON config, overriding defaults")
		root        = flag.String("root", "", "document root (overrides the config)")
		interpreter = flag.String("interpreter", "", "script interpreter (overrides the config)")
		level       = flag.String("log-level", "info", "log level")
		pretty      = flag.Bool("pretty", false, "human-readable logs instead of JSON")
	)
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if *pretty {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	lvl, err := zerolog.ParseLevel(*level)
	if err != nil {
		log.Fatal().Err(err).Msg("bad log level")
	}
	log = log.Level(lvl)

	cfg := config.Default()
	if len(*configPath) > 0 {
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatal().Err(err).Msg("can't load config")
		}
	}

	if len(*root) > 0 {
		cfg.Static.Root = *root
	}

	if len(*interpreter) > 0 {
		cfg.Script.Interpreter = *interpreter
	}

	app := origin.New(*addr).
		Tune(cfg).
		Logger(log).
		NotifyOnStart(func(addr net.Addr) {
			log.Info().Msgf("running on %s", addr)
		}).
		NotifyOnStop(func() {
			log.Info().Msg("stopped")
		})

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signals
		log.Info().Stringer("signal", sig).Msg("shutting down")
		app.Stop()
	}()

	if err = app.Serve(); err != nil {
		log.Fatal().Err(err).Msg("serve")
	}
}
