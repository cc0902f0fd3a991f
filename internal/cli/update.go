package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/hybrid-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "update <id> [content]",
		Short: "Change a memory",
		Long:  "Change a live memory. New content is re-embedded; other flags only touch metadata.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runUpdate,
	}

	cmd.Flags().Float64("confidence", 0, "New confidence")
	cmd.Flags().Float64P("importance", "i", 0, "New importance")
	cmd.Flags().Int("decay-days", 0, "New decay window in days")
	cmd.Flags().Bool("permanent", false, "Remove the decay window")
	cmd.Flags().StringP("tags", "t", "", "Replace tags (comma-separated; empty clears)")

	RootCmd.AddCommand(cmd)
}

func runUpdate(cmd *cobra.Command, args []string) {
	var p store.UpdateParams
	if len(args) > 1 {
		content := contentArg(args[1:])
		p.Content = &content
	}
	if cmd.Flags().Changed("confidence") {
		v, _ := cmd.Flags().GetFloat64("confidence")
		p.Confidence = &v
	}
	if cmd.Flags().Changed("importance") {
		v, _ := cmd.Flags().GetFloat64("importance")
		p.Importance = &v
	}
	if cmd.Flags().Changed("decay-days") {
		v, _ := cmd.Flags().GetInt("decay-days")
		p.DecayDays = &v
	}
	p.ClearDecay, _ = cmd.Flags().GetBool("permanent")
	if cmd.Flags().Changed("tags") {
		v, _ := cmd.Flags().GetString("tags")
		p.Tags = splitTags(v)
		if p.Tags == nil {
			p.Tags = []string{}
		}
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	mem, err := s.Update(cmd.Context(), args[0], p)
	if err != nil {
		exitErr("update", err)
	}
	render(cmd, mem)
}
