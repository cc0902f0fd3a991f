package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/hybrid-memory/internal/model"
	"github.com/rcliao/hybrid-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [content]",
		Short: "Store a memory",
		Long: "Store a memory. Content can be a positional arg or piped via stdin.\n" +
			"Near-identical content already stored is reported instead of stored again; use --force to store anyway.",
		Run: runPut,
	}

	cmd.Flags().StringP("category", "c", string(model.CategoryFact), "Category: fact, preference, event, relationship, context, instruction, decision, entity")
	cmd.Flags().Float64("confidence", model.DefaultConfidence, "Confidence in [0,1]")
	cmd.Flags().Float64P("importance", "i", model.DefaultImportance, "Importance in [0,1]")
	cmd.Flags().Int("decay-days", 0, "Expire after this many days (0 = permanent)")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().String("source-channel", "", "Provenance: channel the memory came from")
	cmd.Flags().String("source-message-id", "", "Provenance: message id the memory came from")
	cmd.Flags().String("supersedes", "", "Id of the memory this one replaces")
	cmd.Flags().Bool("force", false, "Skip the duplicate check")

	RootCmd.AddCommand(cmd)
}

// putResult is printed when the duplicate gate stops a put.
type putResult struct {
	Stored    bool                `json:"stored"`
	Memory    *model.Memory       `json:"memory,omitempty"`
	Duplicate *model.SearchResult `json:"duplicate,omitempty"`
}

func runPut(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	importance, _ := cmd.Flags().GetFloat64("importance")
	decayDays, _ := cmd.Flags().GetInt("decay-days")
	tagsStr, _ := cmd.Flags().GetString("tags")
	sourceChannel, _ := cmd.Flags().GetString("source-channel")
	sourceMessage, _ := cmd.Flags().GetString("source-message-id")
	supersedes, _ := cmd.Flags().GetString("supersedes")
	force, _ := cmd.Flags().GetBool("force")

	content := contentArg(args)
	if content == "" {
		exitErr("put", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if !force {
		dups, err := s.FindDuplicates(cmd.Context(), content, s.cfg.DuplicateThreshold)
		if err != nil {
			exitErr("duplicate check", err)
		}
		if len(dups) > 0 {
			render(cmd, putResult{Duplicate: &dups[0]})
			return
		}
	}

	p := store.CreateParams{
		Content:         content,
		Category:        model.Category(category),
		Confidence:      &confidence,
		Importance:      &importance,
		Tags:            splitTags(tagsStr),
		SourceChannel:   sourceChannel,
		SourceMessageID: sourceMessage,
		Supersedes:      supersedes,
	}
	if decayDays > 0 {
		p.DecayDays = &decayDays
	}

	mem, err := s.Create(cmd.Context(), p)
	if err != nil {
		exitErr("put", err)
	}
	render(cmd, putResult{Stored: true, Memory: mem})
}
