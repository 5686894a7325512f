// Binary mirage serves a dynamic REST API: requests to arbitrary resource
// paths are planned by a language model and executed in a sandboxed
// interpreter against per-tenant collections.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/mirageapi/mirage"
	"github.com/mirageapi/mirage/internal/config"
	"github.com/mirageapi/mirage/internal/server"
	"github.com/mirageapi/mirage/observer"
	"github.com/mirageapi/mirage/provider/resolve"
	"github.com/mirageapi/mirage/store/file"
	"github.com/mirageapi/mirage/store/memory"
	"github.com/mirageapi/mirage/store/postgres"
	"github.com/mirageapi/mirage/store/sqlite"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "mirage",
	Short: "LLM-planned dynamic REST service",
	Long: "mirage serves any REST-shaped request against resources that do not\n" +
		"exist until they are used: a model plans each request and a sandboxed\n" +
		"program executes it against a per-tenant store.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Config file path (default: mirage.toml, then MIRAGE_* env vars)")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	cfg := config.Load(configPath)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := newLogger(cfg.Log.Level)

	store, cleanup, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer cleanup()

	llm, err := resolve.Provider(resolve.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	llm = mirage.WithRetry(llm,
		mirage.RetryMaxAttempts(cfg.LLM.Retries),
		mirage.RetryLogger(logger))
	if cfg.LLM.RPM > 0 {
		llm = mirage.WithRateLimit(llm, mirage.RPM(cfg.LLM.RPM))
	}

	var tracer mirage.Tracer
	if cfg.Observer.Enabled {
		shutdown, err := observer.Init(ctx, cfg.Observer.Service, cfg.Observer.Endpoint)
		if err != nil {
			return fmt.Errorf("observer: %w", err)
		}
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutCtx)
		}()
		tracer = observer.NewTracer()
	}

	plannerOpts := []mirage.PlannerOption{mirage.WithPlannerLogger(logger)}
	hostOpts := []mirage.HostOption{
		mirage.WithHostLogger(logger),
		mirage.WithExecTimeout(time.Duration(cfg.Exec.TimeoutMS) * time.Millisecond),
		mirage.WithMaxResultBytes(cfg.Exec.MaxResultBytes),
	}
	driverOpts := []mirage.DriverOption{mirage.WithDriverLogger(logger)}
	if tracer != nil {
		plannerOpts = append(plannerOpts, mirage.WithPlannerTracer(tracer))
		hostOpts = append(hostOpts, mirage.WithHostTracer(tracer))
		driverOpts = append(driverOpts, mirage.WithDriverTracer(tracer))
	}

	driver := mirage.NewDriver(
		store,
		mirage.NewPlanner(llm, plannerOpts...),
		mirage.NewHost(hostOpts...),
		driverOpts...,
	)

	var serverOpts []server.Option
	serverOpts = append(serverOpts, server.WithLogger(logger))
	if cfg.Server.AuthToken != "" {
		serverOpts = append(serverOpts, server.WithAuthToken(cfg.Server.AuthToken))
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(driver, serverOpts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			"addr", cfg.Server.Addr,
			"backend", cfg.Store.Backend,
			"provider", llm.Name())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}

// buildStore creates the configured persistence backend. The cleanup
// function closes whatever the backend holds open.
func buildStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (mirage.Store, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		return memory.New(memory.WithLogger(logger)), func() {}, nil
	case "file":
		s, err := file.New(cfg.Store.DataDir, file.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case "sqlite":
		s := sqlite.New(cfg.Store.SQLitePath, sqlite.WithLogger(logger))
		if err := s.Init(ctx); err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		s := postgres.New(pool, postgres.WithLogger(logger))
		if err := s.Init(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Store.Backend)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
