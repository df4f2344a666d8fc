// Package source talks to the Bluesky XRPC API: it keeps an authenticated
// session alive and pages through search results in chronological order.
package source

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	DefaultAPIURL          = "https://bsky.social/xrpc"
	DefaultRefreshInterval = 2 * time.Minute
	DefaultTimeout         = 30 * time.Second
	DefaultPageSize        = 100 // maximum the searchPosts endpoint allows
	DefaultMaxPages        = 50
	DefaultRateLimit       = 2.0

	createSessionPath  = "/com.atproto.server.createSession"
	refreshSessionPath = "/com.atproto.server.refreshSession"
	searchPostsPath    = "/app.bsky.feed.searchPosts"
)

// Post is a single search result.
type Post struct {
	AuthorHandle      string
	AuthorDisplayName string // empty when the author has none
	AuthorAvatar      string // empty when the author has none
	URI               string
	CID               string
	CreatedAt         string // timestamp exactly as returned by the API
	Text              string
	Langs             []string
}

// Credential identifies the account the connector logs in as.
type Credential struct {
	Identifier string
	Password   string
}

// Option configures a Session or a Searcher.
type Option func(*options)

type options struct {
	baseURL         string
	httpClient      *http.Client
	logger          *slog.Logger
	refreshInterval time.Duration
	onRefreshError  func(error)
	pageSize        int
	maxPages        int
	rateLimit       float64
}

func newOptions(opts []Option) options {
	o := options{
		baseURL:         DefaultAPIURL,
		httpClient:      &http.Client{Timeout: DefaultTimeout},
		logger:          slog.Default(),
		refreshInterval: DefaultRefreshInterval,
		pageSize:        DefaultPageSize,
		maxPages:        DefaultMaxPages,
		rateLimit:       DefaultRateLimit,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithBaseURL sets the XRPC base URL (no trailing slash).
func WithBaseURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.baseURL = u
		}
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.httpClient = &http.Client{Timeout: d, Transport: o.httpClient.Transport}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRefreshInterval sets how often the access token is refreshed.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.refreshInterval = d
		}
	}
}

// WithRefreshErrorHandler sets the function that receives background refresh
// failures.
func WithRefreshErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.onRefreshError = fn
	}
}

// WithPageSize sets the number of posts requested per page.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithMaxPages caps the pages fetched per poll. Zero disables the cap.
func WithMaxPages(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxPages = n
		}
	}
}

// WithRateLimit sets the search request rate in requests per second. Zero
// disables pacing.
func WithRateLimit(perSecond float64) Option {
	return func(o *options) {
		if perSecond >= 0 {
			o.rateLimit = perSecond
		}
	}
}
