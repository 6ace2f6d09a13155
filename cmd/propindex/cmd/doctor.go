package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/propindex/internal/config"
	perrors "github.com/Aman-CERP/propindex/internal/errors"
	"github.com/Aman-CERP/propindex/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor [path]",
		Short: "Check that a workspace can be indexed",
		Long: `Run the checks that index and watch run before first opening a
workspace's data directory.

Checks:
  - Configuration validity
  - Disk space (100MB minimum)
  - Write permissions in the data directory
  - File descriptor limits (1024 recommended)`,
		Example: `  propindex doctor
  propindex doctor ./translations --verbose
  propindex doctor --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args)
			if err != nil {
				return err
			}
			return runDoctor(cmd, root, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDoctor(cmd *cobra.Command, root string, verbose, jsonOutput bool) error {
	cfg, err := config.Load(root)
	if err != nil {
		// The config check reports the problem; fall back to the default data directory.
		cfg = config.NewConfig()
	}
	dataDir := cfg.DataDir(root)

	checker := preflight.New(preflight.WithOutput(cmd.OutOrStdout()), preflight.WithVerbose(verbose))
	results := checker.RunAll(cmd.Context(), root, dataDir)

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Status string                  `json:"status"`
			Checks []preflight.CheckResult `json:"checks"`
		}{Status: checker.SummaryStatus(results), Checks: results}); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		return perrors.New(perrors.ErrCodeIndexWrite, "workspace cannot be indexed", nil).
			WithSuggestion("fix the failed checks above")
	}
	return preflight.MarkPassed(dataDir)
}
