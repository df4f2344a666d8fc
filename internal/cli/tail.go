package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/skytap/internal/config"
)

var (
	tailLimit int
	tailTopic string
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the most recent stored records",
	Args:  cobra.NoArgs,
	RunE:  tailAction,
}

func init() {
	tailCmd.Flags().IntVarP(&tailLimit, "lines", "n", 20, "number of records to show")
	tailCmd.Flags().StringVar(&tailTopic, "topic", "", "topic to read (default: output.topic)")
	rootCmd.AddCommand(tailCmd)
}

func tailAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadStorage(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	topic := tailTopic
	if topic == "" {
		topic = cfg.Output.Topic
	}

	ctx := commandContext(cmd)
	db, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return printTail(ctx, db, topic, tailLimit, os.Stdout)
}

func printTail(ctx context.Context, db backend, topic string, limit int, w io.Writer) error {
	stats, err := db.Stats(ctx, topic)
	if err != nil {
		return err
	}
	if stats.Count == 0 {
		_, err := fmt.Fprintf(w, "No records stored for topic %q. Run 'skytap run' first.\n", topic)
		return err
	}

	fmt.Fprintf(w, "%s: %s records, %s .. %s (newest %s)\n\n", topic, humanize.Comma(stats.Count),
		stats.Oldest.Format(time.RFC3339), stats.Newest.Format(time.RFC3339), humanize.Time(stats.Newest))

	recent, err := db.Recent(ctx, topic, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tAUTHOR\tTEXT")
	// Recent is newest first; print oldest first like a log.
	for i := len(recent) - 1; i >= 0; i-- {
		r := recent[i]
		fmt.Fprintf(tw, "%s\t@%s\t%s\n", r.Cursor, r.AuthorHandle, truncate(oneLine(r.Value.Text), 80))
	}
	return tw.Flush()
}

func oneLine(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' {
			r = ' '
		}
		out = append(out, r)
	}
	return string(out)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
