package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/hybrid-memory/internal/model"
	"github.com/rcliao/hybrid-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [description]",
		Short: "Assemble relevant memories for a task",
		Long:  "Search and score memories, then greedily pack them into a token budget.",
		Run:   runContext,
	}

	cmd.Flags().StringP("category", "c", "", "Filter by category")
	cmd.Flags().StringSliceP("tags", "t", nil, "Filter by tags")
	cmd.Flags().IntP("budget", "b", store.DefaultContextBudget, "Max tokens in output")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	tags, _ := cmd.Flags().GetStringSlice("tags")
	budget, _ := cmd.Flags().GetInt("budget")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	result, err := s.Context(cmd.Context(), store.ContextParams{
		Query:    strings.Join(args, " "),
		Category: model.Category(category),
		Tags:     tags,
		Budget:   budget,
	})
	if err != nil {
		exitErr("context", err)
	}
	render(cmd, result)
}
