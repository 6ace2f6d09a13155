// Package cmd provides the CLI commands for propindex.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	perrors "github.com/Aman-CERP/propindex/internal/errors"
	"github.com/Aman-CERP/propindex/internal/logging"
	"github.com/Aman-CERP/propindex/internal/profiling"
	"github.com/Aman-CERP/propindex/pkg/version"
)

// Debug logging flag
var (
	debugMode      bool
	loggingCleanup func()
)

// Profiling flags
var (
	profilePaths profiling.Paths
	profile      *profiling.Session
)

// NewRootCmd creates the root command for the propindex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "propindex",
		Short: "Keep a search index of .properties translation files up to date",
		Long: `propindex indexes a workspace of Java .properties translation files
laid out as <project>/<version>/.../<name>[_<locale>].properties.

File changes become index mutations that a single background worker
applies to a local full-text index under .propindex/.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("propindex version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.propindex/logs/")

	cmd.PersistentFlags().StringVar(&profilePaths.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profilePaths.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profilePaths.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts the requested profiles and installs the logger.
func startProfilingAndLogging(cmd *cobra.Command, args []string) error {
	if err := startLogging(cmd, args); err != nil {
		return err
	}
	if profilePaths == (profiling.Paths{}) {
		return nil
	}

	s, err := profiling.Start(profilePaths)
	if err != nil {
		return err
	}
	profile = s
	return nil
}

// stopProfilingAndLogging writes the profiles and closes the log file.
func stopProfilingAndLogging(cmd *cobra.Command, args []string) error {
	stopProfiling()
	return stopLogging(cmd, args)
}

func stopProfiling() {
	if profile == nil {
		return
	}
	if err := profile.Stop(); err != nil {
		slog.Warn("profile_write_failed", slog.String("error", err.Error()))
	}
	profile = nil
}

// startLogging installs the default logger: warnings to stderr, or with
// --debug everything to the rotating log file as well.
func startLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	cfg.Level = "warn"
	if debugMode {
		cfg = logging.DebugConfig()
	}

	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup

	if debugMode {
		slog.Info("debug_logging_enabled",
			slog.String("log_file", cfg.FilePath),
			slog.String("version", version.Short()))
	}
	return nil
}

// stopLogging flushes and closes the log file, if any.
func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command and prints a failure for the user.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		msg := strings.TrimRight(perrors.FormatForUser(err, debugMode), "\n")
		_, _ = fmt.Fprintln(os.Stderr, msg)
		stopProfiling()
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}
	return err
}
