package sink

import (
	"fmt"
	"io"
	"strings"
)

// Markdown formats records as a Markdown document.
type Markdown struct{}

// NewMarkdown creates a Markdown formatter.
func NewMarkdown() *Markdown {
	return &Markdown{}
}

// Format writes the batch as a heading followed by one section per post.
func (f *Markdown) Format(w io.Writer, batch Batch) error {
	title := "# skytap"
	if batch.Term != "" {
		title += fmt.Sprintf(": %s", batch.Term)
	}
	fmt.Fprintf(w, "%s\n\n", title)
	fmt.Fprintf(w, "%d posts\n\n", len(batch.Records))

	if len(batch.Records) == 0 {
		fmt.Fprintln(w, "No posts found.")
		return nil
	}

	for _, r := range batch.Records {
		v := r.Value
		name := v.Author.Handle
		if v.Author.DisplayName != "" {
			name = fmt.Sprintf("%s (@%s)", v.Author.DisplayName, v.Author.Handle)
		}
		fmt.Fprintf(w, "## %s\n\n", name)
		fmt.Fprintf(w, "*%s*\n\n", v.CreatedAt.UTC().Format(timeLayout))
		for _, line := range strings.Split(strings.TrimSpace(v.Text), "\n") {
			fmt.Fprintf(w, "> %s\n", line)
		}
		fmt.Fprintf(w, "\n`%s`\n\n", v.ID.URI)
	}
	return nil
}
