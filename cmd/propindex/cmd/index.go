package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	perrors "github.com/Aman-CERP/propindex/internal/errors"
	"github.com/Aman-CERP/propindex/internal/index"
	"github.com/Aman-CERP/propindex/internal/output"
)

// batchIdleTimeout lets a one-shot reindex commit soon after the queue drains
// instead of waiting out the idle timeout meant for watching.
const batchIdleTimeout = 250 * time.Millisecond

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Reindex every translation file of a workspace",
		Long: `Walk the workspace, replace the documents of every translation file and
remove the documents of files that no longer exist.

The command returns once the index worker has committed all changes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			root, err := resolveRoot(args)
			if err != nil {
				return err
			}
			return runIndex(ctx, cmd, root)
		},
	}
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, root string) error {
	out := output.New(cmd.OutOrStdout())

	ws, err := openWorkspace(ctx, root, workspaceOptions{IdleTimeout: batchIdleTimeout, Preflight: true})
	if err != nil {
		return err
	}
	defer closeWorkspace(ws, out)

	out.Statusf("📂", "Indexing %s", root)
	result, err := ws.reindexer.Run(ctx)
	if err != nil {
		return err
	}

	total := result.Files + result.Removed + result.Orphans
	if err := waitWithProgress(ctx, ws, out, total); err != nil {
		return perrors.Interrupted("indexing interrupted", err)
	}

	status := ws.scheduler.Status(index.IndexWriterFamily)
	if err := unappliedError(ws.index.Worker().Carried(), ws.index.Queue().Len(), status.LastError); err != nil {
		return err
	}

	docs, err := ws.manager.Index().DocCount()
	if err != nil {
		return err
	}
	out.Successf("Indexed %d files, %d documents in %s", result.Files, docs, result.Duration.Round(time.Millisecond))
	if result.Removed > 0 {
		out.Statusf("", "Removed %d files that no longer exist", result.Removed)
	}
	if result.Orphans > 0 {
		out.Statusf("", "Removed documents of %d unknown files", result.Orphans)
	}
	if result.Skipped > 0 {
		out.Warningf("Skipped %d files outside the <project>/<version>/ layout", result.Skipped)
	}
	return nil
}

// unappliedError reports changes left behind once the worker went idle:
// carried mutations of a failed run, or queued ones a run never reached
// because it could not obtain the writer.
func unappliedError(carried, queued int, lastError string) error {
	if carried+queued == 0 {
		return nil
	}
	if lastError == "" {
		lastError = "worker stopped"
	}
	return perrors.New(perrors.ErrCodeIndexFailed,
		fmt.Sprintf("%d changes could not be applied: %s", carried+queued, lastError), nil).
		WithSuggestion("run 'propindex index --debug' and check the log for details")
}

// waitWithProgress waits for the worker to go idle, drawing the share of
// total mutations that left the queue.
func waitWithProgress(ctx context.Context, ws *workspace, out *output.Writer, total int) error {
	done := make(chan error, 1)
	go func() { done <- ws.waitIdle(ctx) }()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if err == nil {
				out.Progress(total, total, "changes applied")
			}
			return err
		case <-ticker.C:
			out.Progress(total-ws.index.Queue().Len(), total, "changes applied")
		}
	}
}
