// Package fetcher polls Bluesky search in the background and buffers new
// posts until the host drains them.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/skytap/internal/observability"
	"github.com/ppiankov/skytap/internal/periodic"
	"github.com/ppiankov/skytap/internal/source"
)

const (
	DefaultPollInterval = time.Minute
	DefaultInitialDelay = 5 * time.Second
	DefaultSearchTerm   = "bluesky"

	// Unlimited disables the page cap or the rate limit.
	Unlimited = -1
	// NoInitialDelay makes the first poll run right after login.
	NoInitialDelay time.Duration = -1
)

// Options configures a Fetcher.
type Options struct {
	Credential      source.Credential
	SearchTerm      string
	Cursor          string // createdAt of the last emitted post, "" for none
	PollInterval    time.Duration
	InitialDelay    time.Duration // 0 = DefaultInitialDelay, NoInitialDelay = none
	RefreshInterval time.Duration
	RequestTimeout  time.Duration
	APIURL          string
	PageSize        int
	MaxPages        int     // 0 = source.DefaultMaxPages, Unlimited = no cap
	RateLimit       float64 // requests/s; 0 = source.DefaultRateLimit, Unlimited = no pacing
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// Fetcher owns the session, the poll task and the buffer between them and
// the consumer.
type Fetcher struct {
	term         string
	pollInterval time.Duration
	initialDelay time.Duration
	maxPages     int     // 0 = no cap
	rateLimit    float64 // 0 = no pacing
	logger       *slog.Logger

	session   *source.Session
	searcher  *source.Searcher
	watermark *source.Watermark
	buffer    Buffer
	errs      ErrorSlot

	mu     sync.Mutex
	poller *periodic.Task
}

// New validates opts and builds a stopped Fetcher.
func New(opts Options) (*Fetcher, error) {
	if strings.TrimSpace(opts.Credential.Identifier) == "" {
		return nil, errors.New("fetcher: identifier is required")
	}
	if opts.Credential.Password == "" {
		return nil, errors.New("fetcher: password is required")
	}
	if opts.PollInterval < 0 {
		return nil, errors.New("fetcher: poll interval must not be negative")
	}
	if opts.InitialDelay < 0 && opts.InitialDelay != NoInitialDelay {
		return nil, errors.New("fetcher: initial delay must not be negative")
	}

	wm, err := source.NewWatermark(opts.Cursor)
	if err != nil {
		return nil, fmt.Errorf("fetcher: %w", err)
	}

	if opts.SearchTerm == "" {
		opts.SearchTerm = DefaultSearchTerm
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = DefaultPollInterval
	}
	switch opts.InitialDelay {
	case 0:
		opts.InitialDelay = DefaultInitialDelay
	case NoInitialDelay:
		opts.InitialDelay = 0
	}
	switch {
	case opts.MaxPages == 0:
		opts.MaxPages = source.DefaultMaxPages
	case opts.MaxPages < 0:
		opts.MaxPages = 0
	}
	switch {
	case opts.RateLimit == 0:
		opts.RateLimit = source.DefaultRateLimit
	case opts.RateLimit < 0:
		opts.RateLimit = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	f := &Fetcher{
		term:         opts.SearchTerm,
		pollInterval: opts.PollInterval,
		initialDelay: opts.InitialDelay,
		maxPages:     opts.MaxPages,
		rateLimit:    opts.RateLimit,
		logger:       opts.Logger,
		watermark:    wm,
	}

	common := []source.Option{
		source.WithBaseURL(opts.APIURL),
		source.WithHTTPClient(opts.HTTPClient),
		source.WithTimeout(opts.RequestTimeout),
		source.WithLogger(opts.Logger),
	}
	f.session = source.NewSession(opts.Credential, append(common,
		source.WithRefreshInterval(opts.RefreshInterval),
		source.WithRefreshErrorHandler(f.errs.Record),
	)...)
	f.searcher = source.NewSearcher(f.session, append(common,
		source.WithPageSize(opts.PageSize),
		source.WithMaxPages(opts.MaxPages),
		source.WithRateLimit(opts.RateLimit),
	)...)
	return f, nil
}

// Start logs in and begins polling. Calling it again stops the running poll
// task before logging in anew. A login failure is returned and nothing is
// left polling. Cancelling ctx ends polling.
func (f *Fetcher) Start(ctx context.Context) error {
	f.stopPoller()
	if err := f.session.Login(ctx); err != nil {
		return err
	}

	f.mu.Lock()
	f.poller = periodic.Start(ctx, f.initialDelay, f.pollInterval, f.poll)
	f.mu.Unlock()

	f.logger.Info("fetcher started",
		"search_term", f.term,
		"poll_interval", f.pollInterval,
		"initial_delay", f.initialDelay,
		"max_pages", f.maxPages,
		"rate_limit", f.rateLimit,
		"watermark", f.watermark.Value(),
	)
	return nil
}

func (f *Fetcher) poll(ctx context.Context) {
	if err := f.errs.Err(); err != nil {
		f.logger.Debug("poll skipped, background error pending", "error", err)
		return
	}

	start := time.Now()
	posts := f.searcher.FetchNewPosts(ctx, f.term, f.watermark)
	observability.RecordPollDuration(time.Since(start))

	f.buffer.Append(posts...)
	observability.RecordPostsFetched(len(posts))
	observability.UpdateBufferSize(f.buffer.Len())
	if at, ok := f.watermark.Time(); ok {
		observability.UpdateWatermark(at)
	}

	if len(posts) > 0 {
		f.logger.Info("fetched posts", "count", len(posts), "watermark", f.watermark.Value())
	} else {
		f.logger.Debug("no new posts", "watermark", f.watermark.Value())
	}
}

// Posts drains the buffer. While a background error is latched it is
// returned on every call, even when posts are buffered.
func (f *Fetcher) Posts() ([]source.Post, error) {
	if err := f.errs.Err(); err != nil {
		return nil, err
	}
	posts := f.buffer.Drain()
	observability.UpdateBufferSize(f.buffer.Len())
	return posts, nil
}

// Watermark returns the createdAt of the newest fetched post.
func (f *Fetcher) Watermark() string {
	return f.watermark.Value()
}

// Stop halts polling and the session refresh, discards the session and
// clears any latched error. Buffered posts are kept.
func (f *Fetcher) Stop() {
	f.stopPoller()
	f.session.Logout()
	f.errs.Reset()
	f.logger.Info("fetcher stopped", "watermark", f.watermark.Value())
}

func (f *Fetcher) stopPoller() {
	f.mu.Lock()
	poller := f.poller
	f.poller = nil
	f.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
}
