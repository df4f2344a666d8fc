package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/skytap/internal/config"
	"github.com/ppiankov/skytap/internal/observability"
	"github.com/ppiankov/skytap/internal/periodic"
	"github.com/ppiankov/skytap/internal/sink"
	"github.com/ppiankov/skytap/internal/task"
)

const pruneEvery = 6 * time.Hour

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll Bluesky search and emit new posts until interrupted",
	RunE:  runAction,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runConnector(ctx, cfg, os.Stdout)
}

// runConnector runs the task until ctx is done or a poll fails.
func runConnector(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	logger := slog.Default()

	db, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	factory, err := recordFactory(cfg)
	if err != nil {
		return err
	}

	var out sink.Sink = db
	if cfg.Output.Sink == "stdout" {
		out = sink.NewWriter(stdout, sink.NewJSONLines())
	}

	if addr := cfg.MetricsAddr(); addr != "" {
		srv := startMetricsServer(addr, db, logger)
		defer shutdownServer(srv, logger)
	}

	pruner := periodic.Start(ctx, 0, pruneEvery, func(ctx context.Context) {
		n, err := db.PruneOld(ctx, *cfg.Storage.RetainDays)
		if err != nil {
			logger.Warn("prune failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("pruned old records", "count", n, "retain_days", *cfg.Storage.RetainDays)
		}
	})
	defer pruner.Stop()

	t := task.New(task.Options{
		Cursors: db,
		Sink:    out,
		Factory: factory,
		Fetcher: fetcherOptions(cfg, logger),
		Logger:  logger,
	})
	if err := t.Start(ctx); err != nil {
		return err
	}

	logger.Info("skytap running",
		"search_term", cfg.Bluesky.SearchTerm,
		"topic", factory.Topic(),
		"sink", cfg.Output.Sink,
		"storage", storageLabel(cfg),
	)
	if err := t.Run(ctx, cfg.Output.PollEvery.Duration); err != nil {
		return err
	}
	logger.Info("skytap stopped")
	return nil
}

func startMetricsServer(addr string, db backend, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

func shutdownServer(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown", "error", err)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
