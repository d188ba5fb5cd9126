package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/rhuss/trianswer/pkg/config"
	"github.com/rhuss/trianswer/pkg/debug"
	"github.com/rhuss/trianswer/pkg/engine"
	"github.com/rhuss/trianswer/pkg/mcpserver"
	transporthttp "github.com/rhuss/trianswer/pkg/transport/http"
)

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP server",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "check",
				Usage: "Validate the configuration and exit",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	debug.Setup(debug.Options{
		Categories: cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
	})

	if cmd.Bool("check") {
		fmt.Fprintln(cmd.Root().Writer, "configuration ok")
		return nil
	}

	return serve(ctx, cfg)
}

// serve runs the server until ctx is done.
func serve(ctx context.Context, cfg *config.Config) error {
	prov, err := buildProvider(ctx, cfg.Engine)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	defer prov.Close()

	store, err := buildStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	defer store.Close()

	engCfg, err := engineConfig(cfg.Engine)
	if err != nil {
		return err
	}
	eng, err := engine.New(prov, store, engCfg)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer eng.Close()

	authMW, closeAuth, err := buildAuth(ctx, cfg.Auth)
	if err != nil {
		return fmt.Errorf("creating authenticator: %w", err)
	}
	defer closeAuth()

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(":" + strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithWaitTimeout(cfg.Server.WaitTimeout),
		transporthttp.WithLogger(slog.Default()),
		transporthttp.WithHealthCheck(store.HealthCheck),
		transporthttp.WithMetrics(cfg.Observability.Metrics.Enabled),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		opts = append(opts, transporthttp.WithCORS(cfg.Server.CORSOrigins...))
	}
	if authMW != nil {
		opts = append(opts, transporthttp.WithHTTPMiddleware(authMW))
	}
	if cfg.MCP.Enabled {
		tools := mcpserver.New(eng, eng, mcpserver.Options{
			WaitTimeout: cfg.Server.WaitTimeout,
			Stateless:   cfg.MCP.Stateless,
		})
		opts = append(opts, transporthttp.WithHandler(cfg.MCP.Path, tools.Handler()))
		slog.Info("mcp enabled", "path", cfg.MCP.Path)
	}

	srv := transporthttp.NewServer(eng, eng, opts...)

	slog.Info("trianswer starting",
		"port", cfg.Server.Port,
		"provider", cfg.Engine.Provider,
		"model", engCfg.Model,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
	)
	return srv.ListenAndServeContext(ctx)
}
