package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/ppiankov/skytap/internal/observability"
)

// Searcher pages through searchPosts results newer than a watermark.
type Searcher struct {
	baseURL  string
	client   *http.Client
	logger   *slog.Logger
	limiter  *rate.Limiter
	pageSize int
	maxPages int
}

// NewSearcher creates a searcher that authenticates every request with a
// bearer token taken from tokens.
func NewSearcher(tokens oauth2.TokenSource, opts ...Option) *Searcher {
	o := newOptions(opts)

	base := o.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	limit := rate.Inf
	if o.rateLimit > 0 {
		limit = rate.Limit(o.rateLimit)
	}

	return &Searcher{
		baseURL: o.baseURL,
		client: &http.Client{
			Timeout:   o.httpClient.Timeout,
			Transport: &oauth2.Transport{Source: tokens, Base: base},
		},
		logger:   o.logger,
		limiter:  rate.NewLimiter(limit, 1),
		pageSize: o.pageSize,
		maxPages: o.maxPages,
	}
}

// FetchNewPosts returns every post matching term that is newer than wm, in
// chronological order, and advances wm past them. Pages are requested until
// one adds nothing new, the page cap is hit, or a request fails. A failed page
// ends the walk but keeps what earlier pages returned.
func (s *Searcher) FetchNewPosts(ctx context.Context, term string, wm *Watermark) []Post {
	var posts []Post
	for page := 1; ; page++ {
		if s.maxPages > 0 && page > s.maxPages {
			s.logger.Warn("search page cap reached", "term", term, "pages", s.maxPages, "posts", len(posts))
			break
		}

		before := len(posts)
		batch, err := s.fetchPage(ctx, term, wm)
		if err != nil {
			observability.RecordPage("error")
			s.logger.Warn("search page failed", "term", term, "page", page, "error", err)
			break
		}
		observability.RecordPage("ok")

		posts = append(posts, batch...)
		if len(posts) == before {
			break
		}
	}
	return posts
}

func (s *Searcher) fetchPage(ctx context.Context, term string, wm *Watermark) ([]Post, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Op: "search", Err: err}
	}

	q := url.Values{}
	q.Set("q", term)
	q.Set("limit", strconv.Itoa(s.pageSize))
	if since, ok := wm.Since(); ok {
		q.Set("since", since)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+searchPostsPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &TransportError{Op: "search", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "search", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Op: "search", StatusCode: resp.StatusCode}
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &TransportError{Op: "search", StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	return s.acceptPage(result.Posts, wm), nil
}

// acceptPage walks a newest-first page oldest-first. A post is kept when it
// is newer than the watermark at the start of the page and not older than the
// previously kept post.
func (s *Searcher) acceptPage(raw []json.RawMessage, wm *Watermark) []Post {
	floor, hasFloor := wm.Time()
	var last time.Time

	var accepted []Post
	for i := len(raw) - 1; i >= 0; i-- {
		post, err := ParsePost(raw[i])
		if err != nil {
			observability.RecordParseError()
			s.logger.Warn("skipping unparseable post", "error", err)
			continue
		}

		// ParsePost validated createdAt.
		at, _ := ParseTimestamp(post.CreatedAt)
		if hasFloor && !at.After(floor) {
			continue
		}
		if len(accepted) > 0 && at.Before(last) {
			s.logger.Debug("skipping out-of-order post", "uri", post.URI, "created_at", post.CreatedAt)
			continue
		}
		accepted = append(accepted, post)
		last = at
	}

	if len(accepted) > 0 {
		wm.AdvanceTo(accepted[len(accepted)-1].CreatedAt)
	}
	return accepted
}
