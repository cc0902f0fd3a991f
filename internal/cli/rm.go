package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/hybrid-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm [id]",
		Short: "Delete a memory",
		Long: "Soft-delete a memory by id, or by --query. A query deletes only when exactly one " +
			"memory matches confidently; otherwise the candidates are printed and nothing is deleted.",
		Args: cobra.MaximumNArgs(1),
		Run:  runRm,
	}

	cmd.Flags().StringP("query", "q", "", "Find the memory to delete by meaning")
	cmd.Flags().StringP("reason", "r", "", "Why the memory is being deleted")

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	query, _ := cmd.Flags().GetString("query")
	reason, _ := cmd.Flags().GetString("reason")

	var id string
	if len(args) > 0 {
		id = args[0]
	}
	if id == "" && query == "" {
		exitErr("rm", fmt.Errorf("an id or --query is required"))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	res, err := s.Forget(cmd.Context(), store.ForgetParams{
		ID:            id,
		Query:         query,
		Reason:        reason,
		Threshold:     s.cfg.ForgetThreshold,
		MaxCandidates: s.cfg.ForgetCandidates,
	})
	if err != nil {
		exitErr("rm", err)
	}
	render(cmd, res)
}
