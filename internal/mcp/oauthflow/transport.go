// Package oauthflow provides an OAuth2-aware http.RoundTripper for MCP
// HTTP transports. It refreshes an expired access token and retries the
// request exactly once, following the token-exchange mechanics in
// internal/auth/oauth.go.
package oauthflow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// TokenStore persists and retrieves the OAuth2 token for an MCP server so a
// refreshed token survives process restarts.
type TokenStore interface {
	Load(ctx context.Context, serverID string) (*oauth2.Token, error)
	Save(ctx context.Context, serverID string, token *oauth2.Token) error
}

// MemoryTokenStore is an in-process TokenStore, sufficient for a single CLI
// run; a durable store can be layered in by implementing TokenStore.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*oauth2.Token
}

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: map[string]*oauth2.Token{}}
}

func (s *MemoryTokenStore) Load(_ context.Context, serverID string) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[serverID]
	if !ok {
		return nil, fmt.Errorf("no token stored for server %q", serverID)
	}
	return tok, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, serverID string, token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[serverID] = token
	return nil
}

// RoundTripper wraps an underlying http.RoundTripper, attaching a bearer
// token to every request and retrying exactly once on a 401 after forcing
// a token refresh through the oauth2.Config's TokenSource.
type RoundTripper struct {
	ServerID string
	Config   *oauth2.Config
	Store    TokenStore
	Base     http.RoundTripper
	Logger   *slog.Logger
}

// NewRoundTripper builds a RoundTripper for the given MCP server.
func NewRoundTripper(serverID string, cfg *oauth2.Config, store TokenStore, base http.RoundTripper, logger *slog.Logger) *RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RoundTripper{
		ServerID: serverID,
		Config:   cfg,
		Store:    store,
		Base:     base,
		Logger:   logger.With("component", "mcp-oauth", "server", serverID),
	}
}

// RoundTrip implements http.RoundTripper.
func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	tok, err := rt.Store.Load(ctx, rt.ServerID)
	if err != nil {
		return nil, fmt.Errorf("load oauth token: %w", err)
	}

	var bodyBytes []byte
	if req.Body != nil {
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("buffer request body for retry: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	resp, err := rt.doWithToken(req, tok, bodyBytes)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	_ = resp.Body.Close()

	rt.Logger.Debug("mcp server returned 401, refreshing token and retrying once")
	refreshed, err := rt.refresh(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("refresh oauth token after 401: %w", err)
	}
	if err := rt.Store.Save(ctx, rt.ServerID, refreshed); err != nil {
		rt.Logger.Warn("failed to persist refreshed token", "error", err)
	}

	return rt.doWithToken(req, refreshed, bodyBytes)
}

func (rt *RoundTripper) doWithToken(req *http.Request, tok *oauth2.Token, bodyBytes []byte) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if bodyBytes != nil {
		clone.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}
	tok.SetAuthHeader(clone)
	return rt.Base.RoundTrip(clone)
}

func (rt *RoundTripper) refresh(ctx context.Context, stale *oauth2.Token) (*oauth2.Token, error) {
	src := rt.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: stale.RefreshToken})
	return src.Token()
}
