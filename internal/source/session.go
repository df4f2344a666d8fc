package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/ppiankov/skytap/internal/observability"
	"github.com/ppiankov/skytap/internal/periodic"
)

// Session logs in to Bluesky and keeps the access token fresh in the
// background.
type Session struct {
	cred            Credential
	baseURL         string
	client          *http.Client
	logger          *slog.Logger
	refreshInterval time.Duration
	onRefreshError  func(error)

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	refresher    *periodic.Task
}

type sessionResponse struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
}

// NewSession creates a logged-out session for cred.
func NewSession(cred Credential, opts ...Option) *Session {
	o := newOptions(opts)
	return &Session{
		cred:            cred,
		baseURL:         o.baseURL,
		client:          o.httpClient,
		logger:          o.logger,
		refreshInterval: o.refreshInterval,
		onRefreshError:  o.onRefreshError,
	}
}

// Login authenticates with the identifier and app password and starts the
// background refresh. On failure no refresh is started.
func (s *Session) Login(ctx context.Context) error {
	s.stopRefresher()

	body, err := json.Marshal(map[string]string{
		"identifier": s.cred.Identifier,
		"password":   s.cred.Password,
	})
	if err != nil {
		return &AuthError{Op: "login", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+createSessionPath, bytes.NewReader(body))
	if err != nil {
		observability.RecordLogin("error")
		return &AuthError{Op: "login", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	tokens, err := s.do(req, "login")
	if err != nil {
		observability.RecordLogin("error")
		return err
	}
	if tokens.AccessJwt == "" || tokens.RefreshJwt == "" {
		observability.RecordLogin("error")
		return &AuthError{Op: "login", StatusCode: http.StatusOK, Err: errors.New("response missing tokens")}
	}

	s.mu.Lock()
	s.accessToken = tokens.AccessJwt
	s.refreshToken = tokens.RefreshJwt
	// The refresher outlives the login request.
	s.refresher = periodic.Start(context.WithoutCancel(ctx), s.refreshInterval, s.refreshInterval, s.refresh)
	s.mu.Unlock()

	observability.RecordLogin("ok")
	s.logger.Info("bluesky session established", "identity", s.cred.Identifier)
	return nil
}

func (s *Session) refresh(ctx context.Context) {
	s.mu.RLock()
	refreshToken := s.refreshToken
	s.mu.RUnlock()
	if refreshToken == "" {
		return
	}

	err := s.refreshOnce(ctx, refreshToken)
	if err != nil {
		observability.RecordSessionRefresh("error")
		s.logger.Warn("bluesky session refresh failed", "error", err)
		if s.onRefreshError != nil {
			s.onRefreshError(err)
		}
		return
	}
	observability.RecordSessionRefresh("ok")
	s.logger.Debug("bluesky access token refreshed")
}

func (s *Session) refreshOnce(ctx context.Context, refreshToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+refreshSessionPath, nil)
	if err != nil {
		return &AuthError{Op: "refresh", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+refreshToken)
	req.Header.Set("Accept", "application/json")

	tokens, err := s.do(req, "refresh")
	if err != nil {
		return err
	}
	if tokens.AccessJwt == "" {
		return &AuthError{Op: "refresh", StatusCode: http.StatusOK, Err: errors.New("response missing accessJwt")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Logged out while the request was in flight.
	if s.refreshToken != refreshToken {
		return nil
	}
	s.accessToken = tokens.AccessJwt
	return nil
}

func (s *Session) do(req *http.Request, op string) (*sessionResponse, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &AuthError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{Op: op, StatusCode: resp.StatusCode}
	}

	var tokens sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, &AuthError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &tokens, nil
}

// AccessToken returns the current access token, or "" when logged out.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// Token implements oauth2.TokenSource.
func (s *Session) Token() (*oauth2.Token, error) {
	tok := s.AccessToken()
	if tok == "" {
		return nil, ErrNoSession
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer"}, nil
}

// Logout stops the background refresh and discards both tokens.
func (s *Session) Logout() {
	s.stopRefresher()

	s.mu.Lock()
	s.accessToken = ""
	s.refreshToken = ""
	s.mu.Unlock()
}

func (s *Session) stopRefresher() {
	s.mu.Lock()
	task := s.refresher
	s.refresher = nil
	s.mu.Unlock()

	if task != nil {
		task.Stop()
	}
}
