// Package api is the typed HTTP client for the records API. Every request
// carries a bearer token sourced from the live identity adapter, falling
// back to the persisted grant; a 401 triggers one serialized token refresh
// (or a re-login signal) for the benefit of future requests, while the
// failing call itself is always surfaced to its caller.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/emr/console/internal/platform/tokenstore"
)

// reactive 401 recovery targets a short remaining validity; the session
// applies its own threshold, this is just the read deadline for the call.
const recoveryTimeout = 5 * time.Second

// TokenSource is the live identity adapter state the outbound interceptor
// reads. identity.Provider satisfies it.
type TokenSource interface {
	CurrentToken() string
	Authenticated() bool
}

// Refresher is the serialized refresh path used for 401 recovery.
// *session.Session satisfies it.
type Refresher interface {
	RefreshNow(ctx context.Context) (bool, error)
}

// Config configures a Client.
type Config struct {
	// BaseURL is the API endpoint, e.g. http://localhost:8080.
	BaseURL string
	// Tokens is the live token source. Optional; the persisted store
	// covers the window before the session finishes initializing.
	Tokens TokenSource
	// Store is the persisted-grant fallback. Optional.
	Store tokenstore.Store
	// Refresher performs the 401-triggered refresh. Optional.
	Refresher Refresher
	// OnReauthenticate is invoked when a 401 cannot be recovered by a
	// refresh and an interactive login is required. Optional.
	OnReauthenticate func()
	// HTTPClient defaults to a client with a 15 second timeout.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client is the request pipeline around the records API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	store      tokenstore.Store
	refresher  Refresher
	onReauth   func()
	logger     zerolog.Logger
}

// New creates a Client.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	onReauth := cfg.OnReauthenticate
	if onReauth == nil {
		onReauth = func() {}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		tokens:     cfg.Tokens,
		store:      cfg.Store,
		refresher:  cfg.Refresher,
		onReauth:   onReauth,
		logger:     cfg.Logger,
	}
}

// envelope is the uniform response wrapper every endpoint returns.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// bearerToken sources the outbound token: live adapter first, persisted
// grant second. Empty means "send without Authorization" and let the server
// reject the request.
func (c *Client) bearerToken() string {
	if c.tokens != nil {
		if tok := c.tokens.CurrentToken(); tok != "" {
			return tok
		}
	}
	if c.store != nil {
		if grant, err := c.store.Load(); err == nil {
			return grant.AccessToken
		}
	}
	return ""
}

// do runs one request through the pipeline and returns the envelope's data.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) (json.RawMessage, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if tok := c.bearerToken(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.recoverAuth(ctx)
		return nil, &Error{StatusCode: resp.StatusCode, Message: serverMessage(raw, "authorization required")}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{StatusCode: resp.StatusCode, Message: serverMessage(raw, "request failed")}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding response envelope: %w", err)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "request failed"
		}
		return nil, &Error{StatusCode: resp.StatusCode, Message: msg}
	}
	return env.Data, nil
}

// recoverAuth reacts to an authorization failure on behalf of future
// requests. The failed request itself is never retried.
func (c *Client) recoverAuth(ctx context.Context) {
	if c.tokens != nil && c.tokens.Authenticated() {
		if c.refresher != nil {
			refreshCtx, cancel := context.WithTimeout(ctx, recoveryTimeout)
			defer cancel()
			if _, err := c.refresher.RefreshNow(refreshCtx); err == nil {
				return
			}
			c.logger.Warn().Msg("token refresh after 401 failed, re-login required")
		}
		c.onReauth()
		return
	}
	c.onReauth()
}

// serverMessage extracts the envelope message from an error body, falling
// back to the given default.
func serverMessage(raw []byte, fallback string) string {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Message != "" {
		return env.Message
	}
	return fallback
}

// decodeInto unmarshals envelope data into out. A nil out discards the data.
func decodeInto(data json.RawMessage, out interface{}) error {
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response data: %w", err)
	}
	return nil
}

// page is the shape list endpoints use when they paginate instead of
// returning a flat array.
type page struct {
	Content json.RawMessage `json:"content"`
	Data    json.RawMessage `json:"data"`
}

// decodeList unmarshals envelope data that is either a flat array or a page
// object into out, unwrapping the page when needed.
func decodeList(data json.RawMessage, out interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return decodeInto(data, out)
	}

	var p page
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decoding paginated response: %w", err)
	}
	if len(p.Content) > 0 {
		return decodeInto(p.Content, out)
	}
	if len(p.Data) > 0 {
		return decodeInto(p.Data, out)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// Error is a non-2xx or unsuccessful envelope response, carrying the
// server-provided message when one was present.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.StatusCode)
}

// IsUnauthorized reports whether err is a 401 API error.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404 API error.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
