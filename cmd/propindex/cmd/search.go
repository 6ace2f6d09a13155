package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/propindex/internal/output"
	"github.com/Aman-CERP/propindex/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	path       string
	project    string
	locale     string
	limit      int
	jsonOutput bool
}

// searchHit is the JSON form of one result.
type searchHit struct {
	Path    string  `json:"path"`
	Project string  `json:"project"`
	Version string  `json:"version"`
	Locale  string  `json:"locale"`
	Key     string  `json:"key"`
	Value   string  `json:"value"`
	Comment string  `json:"comment,omitempty"`
	Score   float64 `json:"score"`
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search indexed translation entries",
		Long: `Search committed translation entries by value, comment and key words.

Project and locale narrow the results to exact matches. Changes still
waiting in the queue of a running watcher are not visible.`,
		Example: `  propindex search "cart is empty"
  propindex search checkout --project shop --locale de
  propindex search --locale fr --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot([]string{opts.path})
			if err != nil {
				return err
			}
			return runSearch(cmd.Context(), cmd, root, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.path, "path", "C", ".", "Workspace root")
	cmd.Flags().StringVarP(&opts.project, "project", "p", "", "Only entries of this project")
	cmd.Flags().StringVarP(&opts.locale, "locale", "l", "", "Only entries of this locale, for example de_CH")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from search.max_results)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, root, text string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	ws, err := openWorkspace(ctx, root, workspaceOptions{})
	if err != nil {
		return err
	}
	defer closeWorkspace(ws, out)

	limit := opts.limit
	if limit <= 0 {
		limit = ws.cfg.Search.MaxResults
	}

	searcher := store.NewSearcher(ws.manager.Index(), ws.cfg.Search.CacheSize)
	res, err := searcher.Search(ctx, store.Query{
		Text:    text,
		Project: opts.project,
		Locale:  opts.locale,
		Limit:   limit,
	})
	if err != nil {
		return err
	}
	slog.Debug("search_complete",
		slog.String("text", text),
		slog.Uint64("total", res.Total),
		slog.Int("returned", len(res.Hits)))

	hits := make([]searchHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, searchHit{
			Path:    h.Fields[store.FieldFullPath],
			Project: h.Fields[store.FieldProject],
			Version: h.Fields[store.FieldVersion],
			Locale:  h.Fields[store.FieldLocale],
			Key:     h.Fields[store.FieldKey],
			Value:   h.Fields[store.FieldValue],
			Comment: h.Fields[store.FieldComment],
			Score:   h.Score,
		})
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Total uint64      `json:"total"`
			Hits  []searchHit `json:"hits"`
		}{Total: res.Total, Hits: hits})
	}

	if len(hits) == 0 {
		out.Status("🔍", "No matches")
		return nil
	}
	out.Header(fmt.Sprintf("%d of %d matches", len(hits), res.Total))
	for _, h := range hits {
		locale := h.Locale
		if locale == "" {
			locale = "master"
		}
		out.Statusf("", "%s [%s] %s = %s", h.Path, locale, h.Key, h.Value)
	}
	return nil
}
