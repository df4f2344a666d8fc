package sink

import (
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/skytap/internal/record"
)

const timeLayout = "2006-01-02 15:04:05"

// Terminal formats records for terminal output.
type Terminal struct {
	color bool
}

// NewTerminal creates a terminal formatter. Set color=true for ANSI colors.
func NewTerminal(color bool) *Terminal {
	return &Terminal{color: color}
}

// Format writes one block per post, oldest first.
func (f *Terminal) Format(w io.Writer, batch Batch) error {
	header := fmt.Sprintf("skytap: %d posts", len(batch.Records))
	if batch.Term != "" {
		header += fmt.Sprintf(" for %q", batch.Term)
	}
	fmt.Fprintln(w, f.bold(header))
	fmt.Fprintln(w)

	if len(batch.Records) == 0 {
		fmt.Fprintln(w, "No posts found.")
		return nil
	}

	for _, r := range batch.Records {
		f.writePost(w, r)
	}

	if batch.Watermark != "" {
		fmt.Fprintln(w, f.dim("cursor: "+batch.Watermark))
	}
	return nil
}

func (f *Terminal) writePost(w io.Writer, r record.Record) {
	v := r.Value
	author := "@" + v.Author.Handle
	if v.Author.DisplayName != "" {
		author = v.Author.DisplayName + " " + f.dim(author)
	}

	fmt.Fprintf(w, "  %s %s\n", f.cyan(v.CreatedAt.UTC().Format(timeLayout)), f.bold(author))
	for _, line := range strings.Split(strings.TrimSpace(v.Text), "\n") {
		fmt.Fprintf(w, "      %s\n", line)
	}
	meta := v.ID.URI
	if len(v.Langs) > 0 {
		meta += " [" + strings.Join(v.Langs, ", ") + "]"
	}
	fmt.Fprintf(w, "      %s\n", f.dim(meta))
	fmt.Fprintln(w)
}

// ANSI helpers, no-op when color=false.

func (f *Terminal) bold(s string) string {
	if !f.color {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

func (f *Terminal) cyan(s string) string {
	if !f.color {
		return s
	}
	return "\033[36m" + s + "\033[0m"
}

func (f *Terminal) dim(s string) string {
	if !f.color {
		return s
	}
	return "\033[2m" + s + "\033[0m"
}
