package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/hybrid-memory/internal/model"
	"github.com/rcliao/hybrid-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories",
		Run:   runList,
	}

	cmd.Flags().StringP("category", "c", "", "Filter by category")
	cmd.Flags().StringP("sort", "s", "created_at", "Sort by attribute, e.g. importance, confidence, updated_at")
	cmd.Flags().StringP("order", "o", string(store.Desc), "Sort order: asc or desc")
	cmd.Flags().IntP("limit", "l", store.DefaultListLimit, "Max results")
	cmd.Flags().Int("offset", 0, "Skip this many results")
	cmd.Flags().Bool("ids-only", false, "Only output short ids")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	sortBy, _ := cmd.Flags().GetString("sort")
	order, _ := cmd.Flags().GetString("order")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	res, err := s.List(cmd.Context(), store.ListParams{
		Category: model.Category(category),
		SortBy:   sortBy,
		Order:    store.SortOrder(order),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		exitErr("list", err)
	}

	if idsOnly {
		for _, m := range res.Memories {
			fmt.Fprintln(cmd.OutOrStdout(), shortID(m.ID))
		}
		return
	}
	render(cmd, res)
}
