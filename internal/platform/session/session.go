// Package session holds the process-wide authentication state: the current
// user, the session state machine, and the periodic token refresh loop. A
// Session is explicitly constructed and torn down; nothing in this package
// is a singleton.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/emr/console/internal/platform/identity"
	"github.com/emr/console/internal/platform/tokenstore"
)

// State is the session lifecycle state.
type State int

const (
	StateInitializing State = iota
	StateUnauthenticated
	StateAuthenticated
	StateRefreshing
	StateLoggingOut
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateLoggingOut:
		return "logging-out"
	default:
		return "unknown"
	}
}

// Staff role tags. The provider may report more roles; the session keeps the
// first one it recognizes.
const (
	RoleAdmin           = "ADMIN"
	RoleFacilityManager = "FACILITY_MANAGER"
	RoleStaff           = "STAFF"
)

var knownRoles = []string{RoleAdmin, RoleFacilityManager, RoleStaff}

// User is the logged-in operator. It is immutable for the lifetime of a
// session and replaced wholesale on re-login.
type User struct {
	ID         string
	Username   string
	Email      string
	Role       string
	FacilityID string
}

// Notifier receives user-visible, non-fatal notices (the toast analogue).
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Options tune the refresh loop.
type Options struct {
	// RefreshInterval is how often the periodic refresh runs. Default 30s.
	RefreshInterval time.Duration
	// RefreshMinValidity is the remaining-lifetime threshold below which
	// the periodic refresh renews the token. Default 30s.
	RefreshMinValidity time.Duration
	// ReactiveMinValidity is the threshold used for 401-triggered
	// refreshes. Default 5s.
	ReactiveMinValidity time.Duration
}

func (o *Options) withDefaults() Options {
	out := Options{
		RefreshInterval:     30 * time.Second,
		RefreshMinValidity:  30 * time.Second,
		ReactiveMinValidity: 5 * time.Second,
	}
	if o == nil {
		return out
	}
	if o.RefreshInterval > 0 {
		out.RefreshInterval = o.RefreshInterval
	}
	if o.RefreshMinValidity > 0 {
		out.RefreshMinValidity = o.RefreshMinValidity
	}
	if o.ReactiveMinValidity > 0 {
		out.ReactiveMinValidity = o.ReactiveMinValidity
	}
	return out
}

// Session owns the authentication state. All mutation goes through it; the
// rest of the application reads User/State and calls Login/Logout.
type Session struct {
	provider identity.Provider
	store    tokenstore.Store
	notifier Notifier
	logger   zerolog.Logger
	opts     Options

	mu         sync.Mutex
	state      State
	user       *User
	loggingIn  bool
	refreshing bool
	stopTicker func()
}

// New creates a Session. Call Start to run the silent authentication check
// and begin the refresh loop, and Close to tear the loop down.
func New(provider identity.Provider, store tokenstore.Store, notifier Notifier, logger zerolog.Logger, opts *Options) *Session {
	return &Session{
		provider: provider,
		store:    store,
		notifier: notifier,
		logger:   logger,
		opts:     opts.withDefaults(),
		state:    StateInitializing,
	}
}

// Start runs silent authentication detection and, when a session is live,
// loads the user and starts the periodic refresh loop.
func (s *Session) Start(ctx context.Context) error {
	authenticated, initErr := s.provider.Initialize(ctx)
	if initErr != nil {
		// Adapter-level failure: non-fatal, surfaced once, and distinct
		// from "simply not logged in".
		s.logger.Warn().Err(initErr).Msg("identity provider initialization failed")
		s.notifier.Error("Authentication service unavailable")
	}

	if !authenticated {
		s.mu.Lock()
		s.state = StateUnauthenticated
		s.mu.Unlock()
		return nil
	}

	profile, err := s.provider.Profile(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("could not load user profile")
		// The adapter holds a live session but no user can be built from
		// it. Drop the adapter session and the persisted grant so the
		// two halves never disagree about being logged in.
		s.abandonProviderSession(ctx)
		s.mu.Lock()
		s.state = StateUnauthenticated
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	s.user = userFromProfile(profile)
	s.state = StateAuthenticated
	s.startRefreshLoopLocked()
	s.mu.Unlock()

	s.logger.Info().Str("user", profile.Username).Msg("session resumed")
	return nil
}

// Login runs the provider's interactive login. It is a terminal action: on
// success the session is rebuilt from the new provider state.
func (s *Session) Login(ctx context.Context) error {
	s.mu.Lock()
	s.loggingIn = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loggingIn = false
		s.mu.Unlock()
	}()

	if err := s.provider.Login(ctx); err != nil {
		s.notifier.Error("Login failed")
		return err
	}

	profile, err := s.provider.Profile(ctx)
	if err != nil {
		s.abandonProviderSession(ctx)
		s.notifier.Error("Login failed")
		return err
	}

	s.mu.Lock()
	s.user = userFromProfile(profile)
	s.state = StateAuthenticated
	s.startRefreshLoopLocked()
	s.mu.Unlock()

	s.logger.Info().Str("user", profile.Username).Msg("logged in")
	return nil
}

// Logout clears the persisted token and the in-memory user, then ends the
// provider session.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateLoggingOut
	s.user = nil
	s.stopRefreshLoopLocked()
	s.mu.Unlock()

	if err := s.store.Clear(); err != nil {
		s.logger.Warn().Err(err).Msg("could not clear persisted token")
	}

	err := s.provider.Logout(ctx)

	s.mu.Lock()
	s.state = StateUnauthenticated
	s.mu.Unlock()

	if err != nil {
		// Local teardown already completed; the provider call is best
		// effort.
		s.logger.Warn().Err(err).Msg("provider logout failed")
	}
	s.notifier.Success("Logged out successfully")
	return nil
}

// RefreshNow runs one reactive refresh with the short 401-recovery
// threshold, serialized against the periodic loop. When a refresh is already
// in flight the call is redundant and reports (false, nil); when there is no
// authenticated session to refresh it reports identity.ErrNotAuthenticated
// so callers can fall through to an interactive login.
func (s *Session) RefreshNow(ctx context.Context) (bool, error) {
	return s.refresh(ctx, s.opts.ReactiveMinValidity)
}

// refresh is the single entry point for both periodic and reactive
// refreshes. At most one refresh is in flight at any instant.
func (s *Session) refresh(ctx context.Context, minValidity time.Duration) (bool, error) {
	s.mu.Lock()
	if s.state != StateAuthenticated && s.state != StateRefreshing {
		s.mu.Unlock()
		return false, identity.ErrNotAuthenticated
	}
	if s.refreshing {
		// A refresh is already outstanding; both operate on the same
		// token, so this one is redundant.
		s.mu.Unlock()
		return false, nil
	}
	s.refreshing = true
	s.state = StateRefreshing
	s.mu.Unlock()

	renewed, err := s.provider.Refresh(ctx, minValidity)

	s.mu.Lock()
	s.refreshing = false
	if s.state != StateRefreshing {
		// A logout or teardown won the race while the provider call was
		// in flight; its outcome no longer applies and the state it left
		// behind must stand.
		s.mu.Unlock()
		return false, nil
	}
	if err != nil {
		s.teardownLocked()
		s.mu.Unlock()
		s.logger.Warn().Err(err).Msg("token refresh failed, session ended")
		return false, err
	}
	s.state = StateAuthenticated
	s.mu.Unlock()

	if renewed {
		s.logger.Debug().Msg("token renewed")
	}
	return renewed, nil
}

// teardownLocked moves the session to fully logged-out state. No partial
// state survives: the user is cleared, the persisted token is cleared, and
// the refresh loop stops. Callers must hold s.mu.
func (s *Session) teardownLocked() {
	s.user = nil
	s.state = StateUnauthenticated
	s.stopRefreshLoopLocked()
	if err := s.store.Clear(); err != nil {
		s.logger.Warn().Err(err).Msg("could not clear persisted token")
	}
}

// abandonProviderSession drops the adapter-side session and the persisted
// grant. Used when the adapter authenticated but the session could not be
// fully built.
func (s *Session) abandonProviderSession(ctx context.Context) {
	if err := s.store.Clear(); err != nil {
		s.logger.Warn().Err(err).Msg("could not clear persisted token")
	}
	if err := s.provider.Logout(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("provider logout failed")
	}
}

// startRefreshLoopLocked starts the periodic refresh ticker. Callers must
// hold s.mu.
func (s *Session) startRefreshLoopLocked() {
	if s.stopTicker != nil {
		return
	}
	ticker := time.NewTicker(s.opts.RefreshInterval)
	done := make(chan struct{})
	s.stopTicker = func() {
		ticker.Stop()
		close(done)
	}

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), s.opts.RefreshInterval)
				_, _ = s.refresh(ctx, s.opts.RefreshMinValidity)
				cancel()
			}
		}
	}()
}

// stopRefreshLoopLocked stops the ticker. Callers must hold s.mu.
func (s *Session) stopRefreshLoopLocked() {
	if s.stopTicker != nil {
		s.stopTicker()
		s.stopTicker = nil
	}
}

// Close tears down the refresh loop. It does not log the user out.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopRefreshLoopLocked()
}

// User returns the current user, or nil when unauthenticated. Callers treat
// a nil user with IsLoading() false as "must show the login prompt".
func (s *Session) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	copied := *s.user
	return &copied
}

// IsLoading reports whether the session is still initializing or an
// interactive login is in flight.
func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateInitializing || s.loggingIn
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func userFromProfile(p *identity.UserProfile) *User {
	role := RoleStaff
outer:
	for _, known := range knownRoles {
		for _, r := range p.Roles {
			if r == known {
				role = known
				break outer
			}
		}
	}
	return &User{
		ID:         p.ID,
		Username:   p.Username,
		Email:      p.Email,
		Role:       role,
		FacilityID: p.FacilityID,
	}
}
