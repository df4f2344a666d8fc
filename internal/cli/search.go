package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ppiankov/skytap/internal/config"
	"github.com/ppiankov/skytap/internal/record"
	"github.com/ppiankov/skytap/internal/sink"
	"github.com/ppiankov/skytap/internal/source"
)

var (
	searchSince  string
	searchFormat string
	noColor      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [term]",
	Short: "Run one search and print the posts, oldest first",
	Long: "search logs in, pages through results newer than --since, prints them and logs out. " +
		"It does not touch the stored cursor.",
	Args: cobra.MaximumNArgs(1),
	RunE: searchAction,
}

func init() {
	searchCmd.Flags().StringVar(&searchSince, "since", "24h", "lower bound: a createdAt timestamp or a window (e.g. 48h, 7d)")
	searchCmd.Flags().StringVar(&searchFormat, "format", "terminal", "output format: terminal, json, markdown")
	searchCmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors (off anyway when stdout is not a terminal)")
	rootCmd.AddCommand(searchCmd)
}

func searchAction(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	term := cfg.Bluesky.SearchTerm
	if len(args) == 1 {
		term = args[0]
	}
	color := !noColor && isatty.IsTerminal(os.Stdout.Fd())
	return searchOnce(commandContext(cmd), cfg, term, searchSince, searchFormat, color, os.Stdout)
}

func searchOnce(ctx context.Context, cfg *config.Config, term, since, format string, color bool, w io.Writer) error {
	if strings.TrimSpace(term) == "" {
		return fmt.Errorf("search term is required")
	}
	formatter, err := sink.New(format, color)
	if err != nil {
		return err
	}
	seed, err := resolveSince(since, time.Now())
	if err != nil {
		return fmt.Errorf("parse --since: %w", err)
	}
	wm, err := source.NewWatermark(seed)
	if err != nil {
		return err
	}
	factory, err := recordFactory(cfg)
	if err != nil {
		return err
	}

	logger := slog.Default()
	b := cfg.Bluesky
	common := []source.Option{
		source.WithBaseURL(b.APIURL),
		source.WithTimeout(b.RequestTimeout.Duration),
		source.WithLogger(logger),
	}
	// One-shot: the refresh interval is left at its default, the run
	// finishes well before it fires.
	session := source.NewSession(source.Credential{Identifier: b.Identity, Password: b.Password}, common...)
	if err := session.Login(ctx); err != nil {
		return err
	}
	defer session.Logout()

	searcher := source.NewSearcher(session, append(common,
		source.WithPageSize(b.PageSize),
		source.WithMaxPages(*b.MaxPages),
		source.WithRateLimit(*b.RateLimit),
	)...)
	posts := searcher.FetchNewPosts(ctx, term, wm)

	records := make([]record.Record, 0, len(posts))
	for _, p := range posts {
		rec, err := factory.Create(p)
		if err != nil {
			logger.Warn("skipping post", "uri", p.URI, "error", err)
			continue
		}
		records = append(records, rec)
	}

	return formatter.Format(w, sink.Batch{Records: records, Term: term, Watermark: wm.Value()})
}

// resolveSince accepts either a createdAt timestamp or a look-back window
// relative to now. "" means no lower bound.
func resolveSince(value string, now time.Time) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	if _, err := source.ParseTimestamp(value); err == nil {
		return value, nil
	}
	d, err := parseDuration(value)
	if err != nil {
		return "", fmt.Errorf("%q is neither a timestamp nor a duration", value)
	}
	if d <= 0 {
		return "", fmt.Errorf("window must be positive, got %s", value)
	}
	return source.FormatTimestamp(now.Add(-d)), nil
}

// parseDuration extends time.ParseDuration with a "d" suffix for days.
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}
