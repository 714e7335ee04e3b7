package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/emr/console/internal/platform/tokenstore"
)

// loginScopes are requested on every interactive login.
const loginScopes = "openid profile email"

// KeycloakConfig configures the Keycloak adapter.
type KeycloakConfig struct {
	// BaseURL is the Keycloak server base, e.g. http://localhost:8081.
	BaseURL string
	// Realm is the realm name, e.g. emr-realm.
	Realm string
	// ClientID is the public OIDC client, e.g. emr-console.
	ClientID string
	// RedirectURI is the loopback URI interactive logins return to, e.g.
	// http://127.0.0.1:8931/callback.
	RedirectURI string
	// HTTPClient is used for all provider calls. Defaults to a client
	// with a 10 second timeout.
	HTTPClient *http.Client
	// Store persists grants across restarts.
	Store tokenstore.Store
	// OpenBrowser launches the hosted login page. Defaults to an opener
	// for the local system browser.
	OpenBrowser func(url string) error
	Logger      zerolog.Logger
}

// Keycloak implements Provider against a Keycloak realm using the
// authorization-code + PKCE flow for interactive login and the refresh-token
// grant for silent renewal.
type Keycloak struct {
	cfg         KeycloakConfig
	client      *http.Client
	store       tokenstore.Store
	openBrowser func(url string) error
	logger      zerolog.Logger

	// mu guards everything below, including for the duration of a grant
	// exchange so token state never changes under a caller's feet.
	mu            sync.Mutex
	endpoints     *Endpoints
	accessToken   string
	refreshToken  string
	idToken       string
	authenticated bool
}

// NewKeycloak creates a Keycloak adapter. It performs no network I/O;
// discovery happens lazily on first use.
func NewKeycloak(cfg KeycloakConfig) *Keycloak {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	opener := cfg.OpenBrowser
	if opener == nil {
		opener = openBrowser
	}
	return &Keycloak{
		cfg:         cfg,
		client:      client,
		store:       cfg.Store,
		openBrowser: opener,
		logger:      cfg.Logger,
	}
}

// ensureEndpoints runs OIDC discovery once. Callers must hold k.mu.
func (k *Keycloak) ensureEndpoints(ctx context.Context) error {
	if k.endpoints != nil {
		return nil
	}
	endpoints, err := DiscoverRealm(ctx, k.client, k.cfg.BaseURL, k.cfg.Realm)
	if err != nil {
		return err
	}
	k.endpoints = endpoints
	return nil
}

// Initialize performs the console analogue of a silent SSO check: it loads
// the persisted grant and exchanges the refresh token for fresh tokens. It
// reports authenticated only when the provider accepts that exchange. A
// rejected grant is "simply not logged in" (false, nil); an unreachable or
// misconfigured provider is an adapter-level failure (false, err).
func (k *Keycloak) Initialize(ctx context.Context) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.ensureEndpoints(ctx); err != nil {
		return false, err
	}

	grant, err := k.store.Load()
	if err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("loading persisted grant: %w", err)
	}
	if grant.RefreshToken == "" {
		return false, nil
	}

	tok, err := k.requestToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {grant.RefreshToken},
		"client_id":     {k.cfg.ClientID},
	})
	if err != nil {
		var grantErr *grantError
		if errors.As(err, &grantErr) {
			// The provider answered and said no: stale grant, not an
			// adapter failure.
			_ = k.store.Clear()
			k.logger.Debug().Str("error", grantErr.Code).Msg("persisted grant rejected")
			return false, nil
		}
		return false, err
	}

	k.setTokensLocked(tok)
	k.authenticated = true
	return true, nil
}

// Refresh renews the token when its remaining lifetime is below minValidity
// and reports whether a renewal occurred.
func (k *Keycloak) Refresh(ctx context.Context, minValidity time.Duration) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.authenticated {
		return false, ErrNotAuthenticated
	}

	if expiry, err := tokenExpiry(k.accessToken); err == nil {
		if time.Until(expiry) > minValidity {
			return false, nil
		}
	}

	if err := k.ensureEndpoints(ctx); err != nil {
		return false, err
	}

	tok, err := k.requestToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {k.refreshToken},
		"client_id":     {k.cfg.ClientID},
	})
	if err != nil {
		var grantErr *grantError
		if errors.As(err, &grantErr) {
			k.clearTokensLocked()
			return false, fmt.Errorf("refresh rejected (%s): %w", grantErr.Code, ErrSessionExpired)
		}
		return false, err
	}

	k.setTokensLocked(tok)
	return true, nil
}

// Login runs the authorization-code + PKCE flow: it binds a loopback
// listener for the redirect URI, hands the hosted login URL to the browser,
// and exchanges the returned code at the token endpoint. It blocks until the
// flow completes or ctx ends.
func (k *Keycloak) Login(ctx context.Context) error {
	k.mu.Lock()
	err := k.ensureEndpoints(ctx)
	endpoints := k.endpoints
	k.mu.Unlock()
	if err != nil {
		return err
	}

	verifier, err := newCodeVerifier()
	if err != nil {
		return err
	}
	state := uuid.NewString()

	redirect, err := url.Parse(k.cfg.RedirectURI)
	if err != nil {
		return fmt.Errorf("invalid redirect URI %q: %w", k.cfg.RedirectURI, err)
	}

	type callbackResult struct {
		code string
		err  error
	}
	results := make(chan callbackResult, 1)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET(redirect.Path, func(c echo.Context) error {
		if errCode := c.QueryParam("error"); errCode != "" {
			results <- callbackResult{err: fmt.Errorf("%w: provider returned %s", ErrLoginAborted, errCode)}
			return c.String(http.StatusBadRequest, "Login failed. You may close this window.")
		}
		if c.QueryParam("state") != state {
			results <- callbackResult{err: fmt.Errorf("%w: state mismatch", ErrLoginAborted)}
			return c.String(http.StatusBadRequest, "Login failed. You may close this window.")
		}
		results <- callbackResult{code: c.QueryParam("code")}
		return c.HTML(http.StatusOK, "<html><body>Login complete. You may close this window and return to the console.</body></html>")
	})

	// Bind before the browser opens so the redirect cannot race the
	// listener.
	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("binding login callback listener: %w", err)
	}
	e.Listener = listener
	go func() { _ = e.Start("") }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	authURL := buildAuthURL(endpoints.AuthorizationEndpoint, k.cfg.ClientID, k.cfg.RedirectURI, state, challengeS256(verifier))
	k.logger.Info().Str("url", authURL).Msg("opening hosted login page")
	if err := k.openBrowser(authURL); err != nil {
		k.logger.Warn().Err(err).Msg("could not open browser; open the login URL manually")
	}

	var code string
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrLoginAborted, ctx.Err())
	case res := <-results:
		if res.err != nil {
			return res.err
		}
		code = res.code
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	tok, err := k.requestToken(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {k.cfg.RedirectURI},
		"client_id":     {k.cfg.ClientID},
		"code_verifier": {verifier},
	})
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}

	k.setTokensLocked(tok)
	k.authenticated = true
	return nil
}

// Logout ends the provider session, best effort. In-memory tokens are
// cleared regardless of whether the provider could be reached.
func (k *Keycloak) Logout(ctx context.Context) error {
	k.mu.Lock()
	refreshToken := k.refreshToken
	endpoints := k.endpoints
	k.clearTokensLocked()
	k.mu.Unlock()

	if endpoints == nil || endpoints.EndSessionEndpoint == "" || refreshToken == "" {
		return nil
	}

	form := url.Values{
		"client_id":     {k.cfg.ClientID},
		"refresh_token": {refreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoints.EndSessionEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("ending provider session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("logout endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (k *Keycloak) Authenticated() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.authenticated
}

func (k *Keycloak) CurrentToken() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.accessToken
}

// Profile returns the logged-in user's profile. Identity fields come from
// the userinfo endpoint when reachable, falling back to token claims; realm
// roles always come from the access token, which is where Keycloak puts
// them.
func (k *Keycloak) Profile(ctx context.Context) (*UserProfile, error) {
	k.mu.Lock()
	accessToken := k.accessToken
	endpoints := k.endpoints
	authenticated := k.authenticated
	k.mu.Unlock()

	if !authenticated {
		return nil, ErrNotAuthenticated
	}

	claims, err := parseClaims(accessToken)
	if err != nil {
		return nil, fmt.Errorf("decoding access token claims: %w", err)
	}

	profile := &UserProfile{
		ID:         claims.Subject,
		Username:   claims.PreferredUsername,
		Email:      claims.Email,
		Roles:      claims.RealmAccess.Roles,
		FacilityID: claims.FacilityID,
	}

	if endpoints != nil && endpoints.UserinfoEndpoint != "" {
		if info, err := k.fetchUserinfo(ctx, endpoints.UserinfoEndpoint, accessToken); err != nil {
			k.logger.Debug().Err(err).Msg("userinfo unavailable, using token claims")
		} else {
			if info.Sub != "" {
				profile.ID = info.Sub
			}
			if info.PreferredUsername != "" {
				profile.Username = info.PreferredUsername
			}
			if info.Email != "" {
				profile.Email = info.Email
			}
			if info.FacilityID != "" {
				profile.FacilityID = info.FacilityID
			}
		}
	}

	return profile, nil
}

// ---------------------------------------------------------------------------
// Token plumbing
// ---------------------------------------------------------------------------

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// grantError is a definitive answer from the token endpoint: the provider
// was reachable and rejected the grant.
type grantError struct {
	Status      int
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *grantError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("token endpoint returned %d: %s (%s)", e.Status, e.Code, e.Description)
	}
	return fmt.Sprintf("token endpoint returned %d: %s", e.Status, e.Code)
}

// requestToken POSTs a grant to the token endpoint. Callers must hold k.mu.
func (k *Keycloak) requestToken(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.endpoints.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", k.endpoints.TokenEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		grantErr := &grantError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(grantErr); err != nil || grantErr.Code == "" {
			grantErr.Code = "unknown_error"
		}
		return nil, grantErr
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &tok, nil
}

// setTokensLocked installs a token response and persists the grant. Callers
// must hold k.mu.
func (k *Keycloak) setTokensLocked(tok *tokenResponse) {
	k.accessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		k.refreshToken = tok.RefreshToken
	}
	if tok.IDToken != "" {
		k.idToken = tok.IDToken
	}

	if k.store != nil {
		err := k.store.Save(&tokenstore.Grant{
			AccessToken:  k.accessToken,
			RefreshToken: k.refreshToken,
			IDToken:      k.idToken,
			SavedAt:      time.Now().UTC(),
		})
		if err != nil {
			k.logger.Warn().Err(err).Msg("could not persist grant")
		}
	}
}

func (k *Keycloak) clearTokensLocked() {
	k.accessToken = ""
	k.refreshToken = ""
	k.idToken = ""
	k.authenticated = false
}

func buildAuthURL(endpoint, clientID, redirectURI, state, challenge string) string {
	q := url.Values{
		"client_id":             {clientID},
		"redirect_uri":          {redirectURI},
		"response_type":         {"code"},
		"scope":                 {loginScopes},
		"state":                 {state},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
	return endpoint + "?" + q.Encode()
}

type userinfoResponse struct {
	Sub               string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	FacilityID        string `json:"facility_id"`
}

func (k *Keycloak) fetchUserinfo(ctx context.Context, endpoint, accessToken string) (*userinfoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo endpoint returned status %d", resp.StatusCode)
	}

	var info userinfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding userinfo response: %w", err)
	}
	return &info, nil
}

// ---------------------------------------------------------------------------
// Token claims
// ---------------------------------------------------------------------------

type tokenClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	FacilityID        string `json:"facility_id"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// parseClaims decodes token claims without verifying the signature.
// Verification is the API server's job; the client only reads claims to
// schedule renewal and display the profile.
func parseClaims(raw string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// tokenExpiry returns the exp claim of a token.
func tokenExpiry(raw string) (time.Time, error) {
	claims, err := parseClaims(raw)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}
