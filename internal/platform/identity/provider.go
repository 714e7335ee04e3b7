// Package identity wraps the external identity provider and owns the token
// lifecycle: silent session detection at startup, interactive login through
// the system browser, periodic refresh, and logout.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotAuthenticated is returned by operations that require a live
	// provider session when there is none.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrSessionExpired is returned when the provider rejects the refresh
	// grant, meaning the underlying session is no longer valid and the
	// local session must be torn down.
	ErrSessionExpired = errors.New("identity session expired")

	// ErrLoginAborted is returned when an interactive login ends without a
	// code, for example because the context was cancelled or the provider
	// redirected back with an error.
	ErrLoginAborted = errors.New("interactive login aborted")
)

// UserProfile is the provider's view of the logged-in operator.
type UserProfile struct {
	ID         string
	Username   string
	Email      string
	Roles      []string
	FacilityID string
}

// Provider is the narrow capability surface the rest of the application
// depends on, so the real Keycloak client can be swapped for a test double
// that deterministically simulates success, expiry, and failure.
type Provider interface {
	// Initialize attempts silent authentication detection: it reports
	// whether an existing provider session could be resumed without any
	// interaction. A non-nil error indicates an adapter-level failure
	// (provider unreachable, misconfiguration); the caller should surface
	// it once and proceed as unauthenticated.
	Initialize(ctx context.Context) (bool, error)

	// Login runs the provider's interactive login. It is a terminal
	// action: it blocks until the browser flow completes or ctx ends, and
	// never partially succeeds.
	Login(ctx context.Context) error

	// Logout invalidates the provider session, best effort. Local token
	// state is cleared even when the provider cannot be reached.
	Logout(ctx context.Context) error

	// Refresh renews the token when its remaining lifetime is below
	// minValidity. It reports whether a renewal actually occurred. An
	// error means the session is no longer valid and must be torn down.
	Refresh(ctx context.Context, minValidity time.Duration) (bool, error)

	// Authenticated reports whether the adapter currently holds a live
	// session.
	Authenticated() bool

	// CurrentToken returns the current bearer token, or "" when there is
	// none.
	CurrentToken() string

	// Profile fetches the logged-in user's profile.
	Profile(ctx context.Context) (*UserProfile, error)
}
