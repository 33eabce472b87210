// agentd provisions AI agent workflows on a remote workflow engine and keeps
// a local mirror of their state for the API surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devjn1998/projetoEvolutionApiChatWoot/capability"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/config"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/engineclient"
	httpgateway "github.com/devjn1998/projetoEvolutionApiChatWoot/gateway/http"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/metric"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/mirror"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/provisioner"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	cliCfg := parseFlags()

	if cliCfg.ShowVersion {
		fmt.Printf("agentd %s\n", Version)
		os.Exit(0)
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		os.Exit(0)
	}
	if err := validateFlags(cliCfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid flags: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		logger.Error("failed to load configuration", "path", cliCfg.ConfigPath, "err", err)
		os.Exit(1)
	}
	if cliCfg.Validate {
		logger.Info("configuration is valid", "path", cliCfg.ConfigPath)
		os.Exit(0)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("agentd exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metric.NewRegistry()

	store, err := mirror.Open(cfg.Database.Path, logger, mirror.WithMetrics(registry.Metrics))
	if err != nil {
		return err
	}
	defer store.Close()

	guard := config.NewGuard(config.Endpoint{
		BaseURL: cfg.Engine.BaseURL,
		APIKey:  cfg.Engine.APIKey,
	})
	engine := engineclient.New(guard, cfg.Engine.RequestTimeout, logger,
		engineclient.WithMetrics(registry.Metrics),
		engineclient.WithRateLimit(cfg.Engine.RatePerSecond))
	detector := capability.NewDetector(engine, 5*time.Minute, logger)
	svc := provisioner.New(engine, detector, store, guard, registry.Metrics, logger)

	// Engine connectivity is verified but not required at startup; the
	// endpoint can be configured later through the API.
	startupCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	if err := engine.Ping(startupCtx); err != nil {
		logger.Warn("engine not reachable at startup", "err", err)
	} else if n, err := svc.SyncFromEngine(startupCtx, nil); err != nil {
		logger.Warn("initial mirror sync failed", "err", err)
	} else {
		logger.Info("initial mirror sync complete", "workflows", n)
	}
	cancel()

	api := httpgateway.NewServer(svc, cfg.Server, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api server listening", "addr", cfg.Server.Addr)
		return api.Run(gctx)
	})
	g.Go(func() error {
		return runMetricsServer(gctx, cfg.Server.MetricsAddr, registry, logger)
	})

	err = g.Wait()
	logger.Info("agentd stopped")
	return err
}

func runMetricsServer(ctx context.Context, addr string, registry *metric.Registry, logger *slog.Logger) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}

	mux := stdhttp.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	srv := &stdhttp.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	logger.Info("metrics server listening", "addr", addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
