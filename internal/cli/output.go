package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/hybrid-memory/internal/model"
	"github.com/rcliao/hybrid-memory/internal/store"
)

// render writes v as indented JSON, or as one line per memory with --format text.
func render(cmd *cobra.Command, v interface{}) {
	w := cmd.OutOrStdout()
	if formatFlag == "text" && renderText(w, v) {
		return
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		exitErr("encode output", err)
	}
	fmt.Fprintln(w, string(b))
}

func renderText(w io.Writer, v interface{}) bool {
	switch x := v.(type) {
	case *model.Memory:
		fmt.Fprintln(w, memoryLine(*x, -1))
	case []model.Memory:
		for _, m := range x {
			fmt.Fprintln(w, memoryLine(m, -1))
		}
	case []model.SearchResult:
		for _, r := range x {
			fmt.Fprintln(w, memoryLine(r.Memory, r.Score))
		}
	case *store.ListResult:
		for _, m := range x.Memories {
			fmt.Fprintln(w, memoryLine(m, -1))
		}
		fmt.Fprintf(w, "(%d of %d)\n", len(x.Memories), x.Total)
	case *store.ContextResult:
		for _, m := range x.Memories {
			fmt.Fprintf(w, "- [%s] %s\n", m.Category, m.Content)
		}
	default:
		return false
	}
	return true
}

func memoryLine(m model.Memory, score float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", shortID(m.ID), m.Category, m.Content)
	fmt.Fprintf(&b, " (confidence %.2f, importance %.2f", m.Confidence, m.Importance)
	if score >= 0 {
		fmt.Fprintf(&b, ", score %.3f", score)
	}
	b.WriteString(")")
	if len(m.Tags) > 0 {
		fmt.Fprintf(&b, " #%s", strings.Join(m.Tags, " #"))
	}
	if m.Deleted() {
		b.WriteString(" DELETED")
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > store.ShortIDLength {
		return id[:store.ShortIDLength]
	}
	return id
}

// contentArg takes content from positional args, falling back to piped stdin.
func contentArg(args []string) string {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " "))
	}
	stat, err := os.Stdin.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
		return ""
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		exitErr("read stdin", err)
	}
	return strings.TrimSpace(string(b))
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
