package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/propindex/internal/logging"
	"github.com/Aman-CERP/propindex/internal/output"
	"github.com/Aman-CERP/propindex/internal/watcher"
)

type watchOptions struct {
	metricsAddr string
	poll        bool
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Reindex a workspace and keep it up to date",
		Long: `Reindex the workspace once, then watch it for file changes and apply
them to the index until interrupted.

The index write lock is held while watching, so other commands on the
same workspace wait for it and fail after index.lock_timeout.`,
		Example: `  # Watch the current directory
  propindex watch

  # Expose Prometheus metrics while watching
  propindex watch ./translations --metrics-addr 127.0.0.1:9464

  # Use polling on network file systems
  propindex watch --poll`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			root, err := resolveRoot(args)
			if err != nil {
				return err
			}
			return runWatch(ctx, cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (default from server.metrics_addr)")
	cmd.Flags().BoolVar(&opts.poll, "poll", false, "Poll for changes instead of using file system notifications")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, root string, opts watchOptions) error {
	out := output.New(cmd.OutOrStdout())

	ws, err := openWorkspace(ctx, root, workspaceOptions{Preflight: true})
	if err != nil {
		return err
	}
	defer closeWorkspace(ws, out)

	if !debugMode {
		useConfiguredLogLevel(ws.cfg.Server.LogLevel)
	}

	addr := opts.metricsAddr
	if addr == "" {
		addr = ws.cfg.Server.MetricsAddr
	}
	if addr != "" {
		stopMetrics, err := serveMetrics(addr)
		if err != nil {
			return err
		}
		defer stopMetrics()
		out.Statusf("📈", "Metrics on http://%s/metrics", addr)
	}

	out.Statusf("📂", "Indexing %s", root)
	result, err := ws.reindexer.Run(ctx)
	if err != nil {
		return err
	}
	out.Successf("Queued %d files, removed %d", result.Files, result.Removed)

	w, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow:  ws.cfg.DebounceDuration(),
		PollInterval:    ws.cfg.PollIntervalDuration(),
		ExcludePatterns: ws.excludes,
		ForcePolling:    opts.poll,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx, root) }()

	out.Statusf("👀", "Watching %s (%s), press Ctrl+C to stop", root, w.WatcherType())
	return watchLoop(ctx, ws, w, errCh)
}

// watchLoop hands event batches to the coordinator until ctx is done or the
// watcher fails.
func watchLoop(ctx context.Context, ws *workspace, w *watcher.HybridWatcher, errCh <-chan error) error {
	events := w.Events()
	errs := w.Errors()

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			<-errCh
			slog.Info("watch_stopped", slog.String("root", ws.root))
			return nil
		case err := <-errCh:
			_ = w.Stop()
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case batch, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := ws.coord.HandleEvents(ctx, batch); err != nil {
				if ctx.Err() != nil {
					continue
				}
				slog.Warn("event_batch_failed",
					slog.Int("events", len(batch)),
					slog.String("error", err.Error()))
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

// useConfiguredLogLevel replaces the stderr logger with one at level.
func useConfiguredLogLevel(level string) {
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		slog.Warn("log_level_not_applied", slog.String("error", err.Error()))
		return
	}
	if loggingCleanup != nil {
		loggingCleanup()
	}
	loggingCleanup = cleanup
}

// serveMetrics exposes the default Prometheus registry on addr and returns a
// function that shuts the server down.
func serveMetrics(addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics_server_failed", slog.String("error", err.Error()))
		}
	}()
	slog.Info("metrics_server_started", slog.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
