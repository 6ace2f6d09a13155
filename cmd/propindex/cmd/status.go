package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/propindex/internal/output"
)

// statusReport is the JSON form of the status command.
type statusReport struct {
	Root            string              `json:"root"`
	DataDir         string              `json:"data_dir"`
	Files           int                 `json:"files"`
	Documents       uint64              `json:"documents"`
	IndexedFiles    int                 `json:"indexed_files"`
	Inconsistencies []inconsistencyJSON `json:"inconsistencies"`
}

type inconsistencyJSON struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show index status and consistency",
		Long: `Show how many files are registered and documents committed, and list
files on which the registry and the index disagree.

Orphans are removed by the next 'propindex index'. Unindexed files are
normal for translation files without keys.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args)
			if err != nil {
				return err
			}
			return runStatus(cmd.Context(), cmd, root, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, root string, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())

	ws, err := openWorkspace(ctx, root, workspaceOptions{})
	if err != nil {
		return err
	}
	defer closeWorkspace(ws, out)

	docs, err := ws.manager.Index().DocCount()
	if err != nil {
		return err
	}
	check, err := ws.checker.Check(ctx)
	if err != nil {
		return err
	}

	report := statusReport{
		Root:            root,
		DataDir:         ws.dataDir,
		Files:           check.Registered,
		Documents:       docs,
		IndexedFiles:    check.Indexed,
		Inconsistencies: make([]inconsistencyJSON, 0, len(check.Inconsistencies)),
	}
	for _, i := range check.Inconsistencies {
		report.Inconsistencies = append(report.Inconsistencies, inconsistencyJSON{Type: i.Type.String(), Path: i.Path})
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	out.Header("Index status")
	out.KeyValue("Workspace", report.Root)
	out.KeyValue("Data", report.DataDir)
	out.KeyValue("Files", report.Files)
	out.KeyValue("Indexed files", report.IndexedFiles)
	out.KeyValue("Documents", report.Documents)
	out.Newline()

	if len(report.Inconsistencies) == 0 {
		out.Success("Registry and index agree")
		return nil
	}
	out.Warningf("%d inconsistencies", len(report.Inconsistencies))
	for _, i := range report.Inconsistencies {
		out.Statusf("", "%-9s %s", i.Type, i.Path)
	}
	return nil
}
