package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/hybrid-memory/internal/model"
	"github.com/rcliao/hybrid-memory/internal/store"
)

func init() {
	instructions := &cobra.Command{
		Use:   "instructions",
		Short: "List standing instructions",
		Long:  "List live, unexpired instruction memories, most important first.",
		Run:   runInstructions,
	}
	instructions.Flags().IntP("limit", "l", store.DefaultSearchLimit, "Max results")

	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair drift between metadata and vectors",
		Long:  "Re-embed live memories whose vector is missing or stale and drop vectors with no live memory.",
		Run:   runReconcile,
	}

	RootCmd.AddCommand(instructions, reconcile)
}

func runInstructions(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	memories, err := s.GetByCategory(cmd.Context(), model.CategoryInstruction, limit)
	if err != nil {
		exitErr("instructions", err)
	}
	if memories == nil {
		memories = []model.Memory{}
	}
	render(cmd, memories)
}

func runReconcile(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	res, err := s.Reconcile(cmd.Context())
	if err != nil {
		exitErr("reconcile", err)
	}
	render(cmd, res)
}
