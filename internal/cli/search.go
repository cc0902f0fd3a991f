package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/hybrid-memory/internal/model"
	"github.com/rcliao/hybrid-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories by meaning and attributes",
		Long: "Rank memories by similarity to the query, filtered by category, thresholds and tags.\n" +
			"Without a query the filters alone apply, newest first. Returned memories are marked as accessed.",
		Run: runSearch,
	}

	cmd.Flags().StringP("category", "c", "", "Filter by category")
	cmd.Flags().Float64("min-confidence", 0, "Minimum confidence")
	cmd.Flags().Float64("min-importance", 0, "Minimum importance")
	cmd.Flags().StringP("tags", "t", "", "Require all tags (comma-separated)")
	cmd.Flags().IntP("limit", "l", store.DefaultSearchLimit, "Max results")
	cmd.Flags().Bool("include-decayed", false, "Include expired memories")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	tagsStr, _ := cmd.Flags().GetString("tags")
	limit, _ := cmd.Flags().GetInt("limit")
	includeDecayed, _ := cmd.Flags().GetBool("include-decayed")

	p := store.SearchParams{
		Query:          strings.Join(args, " "),
		Category:       model.Category(category),
		Tags:           splitTags(tagsStr),
		Limit:          limit,
		IncludeDecayed: includeDecayed,
	}
	if cmd.Flags().Changed("min-confidence") {
		v, _ := cmd.Flags().GetFloat64("min-confidence")
		p.MinConfidence = &v
	}
	if cmd.Flags().Changed("min-importance") {
		v, _ := cmd.Flags().GetFloat64("min-importance")
		p.MinImportance = &v
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	results, err := s.Search(cmd.Context(), p)
	if err != nil {
		exitErr("search", err)
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	if err := s.TouchMany(cmd.Context(), ids); err != nil {
		s.log.Warn().Err(err).Msg("touch search results")
	}

	render(cmd, results)
}
