// Command authd serves the authgate HTTP API.
//
//	authd [-config file.yaml] [-env .env] [serve|migrate|prune]
//
// serve (default) runs the HTTP server, migrate applies the database
// migrations and exits, prune deletes expired sessions once and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/Brandon689/authgate/auth"
	"github.com/Brandon689/authgate/config"
	"github.com/Brandon689/authgate/logging"
	"github.com/Brandon689/authgate/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "authd:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("authd", flag.ContinueOnError)
	configFile := fs.String("config", "", "YAML config file")
	envFile := fs.String("env", "", ".env file (default ./.env if present)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var opts []config.LoaderOption
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}
	if *envFile != "" {
		opts = append(opts, config.WithEnvFile(*envFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogConfig(), nil)

	authCfg, err := cfg.AuthConfig()
	if err != nil {
		return err
	}
	authCfg.Logger = &logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch parseCommand(fs.Args()) {
	case commandMigrate:
		// New runs the migrations while opening the SQL store.
		authCfg.PruneInterval = -1
		api, err := auth.New(authCfg)
		if err != nil {
			return err
		}
		logger.Info().Msg("migrations applied")
		return api.Close()

	case commandPrune:
		authCfg.PruneInterval = -1
		api, err := auth.New(authCfg)
		if err != nil {
			return err
		}
		defer api.Close()
		n, err := api.PruneExpiredSessions(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int64("removed", n).Msg("expired sessions pruned")
		return nil
	}

	return serve(ctx, cfg, authCfg, logger)
}

func serve(ctx context.Context, cfg config.Config, authCfg auth.Config, logger zerolog.Logger) error {
	var gatherer prometheus.Gatherer
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		authCfg.Metrics = reg
		gatherer = reg
	}

	api, err := auth.New(authCfg)
	if err != nil {
		return err
	}
	defer api.Close()

	logger.Info().
		Str("strategy", string(authCfg.Strategy)).
		Str("session_store", cfg.SessionStore).
		Msg("auth ready")

	srv := server.New(api, server.Options{
		Logger:   &logger,
		Gatherer: gatherer,
		CSRF:     cfg.CSRFProtection,
	})
	if err := srv.Run(ctx, cfg.Addr()); err != nil {
		return err
	}
	logger.Info().Msg("shut down")
	return nil
}

type command string

const (
	commandServe   command = "serve"
	commandMigrate command = "migrate"
	commandPrune   command = "prune"
)

// parseCommand falls back to serve for an empty or unknown subcommand.
func parseCommand(args []string) command {
	if len(args) == 0 {
		return commandServe
	}
	switch command(args[0]) {
	case commandMigrate:
		return commandMigrate
	case commandPrune:
		return commandPrune
	default:
		return commandServe
	}
}
