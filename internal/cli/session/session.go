// Package session owns the authentication lifecycle for the Subgate CLI:
// credential submission, the optional 2FA step-up, token persistence,
// identity refresh, and logout. Every other part of the client trusts its
// IsAuthenticated/IsAdmin predicates without re-validating the token, so
// all transitions here are fail-closed: an error on the way into the
// authenticated state tears the whole session down rather than leaving a
// token without an identity or vice versa.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	cliauth "github.com/subgate-dev/subgate/internal/cli/auth"
	"github.com/subgate-dev/subgate/internal/cli/client"
	"github.com/subgate-dev/subgate/internal/cli/userconfig"
)

// ErrNotAuthenticated is returned when an operation requiring a token is
// invoked without one. Local check, no network involved.
var ErrNotAuthenticated = errors.New("not authenticated")

// State is the session lifecycle phase
type State int

const (
	// StateAnonymous is the initial state and the result of every logout
	StateAnonymous State = iota
	// StateRestoring holds a persisted token not yet confirmed by an
	// identity refresh ("probably logged in")
	StateRestoring
	// StateAuthenticated holds a token confirmed by the server
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateRestoring:
		return "restoring"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// AuthAPI is the slice of the API client the session manager drives
type AuthAPI interface {
	Login(ctx context.Context, creds client.Credentials) (*client.LoginOutcome, error)
	Verify2FA(ctx context.Context, tempToken, code string) (*client.AuthPayload, error)
	Register(ctx context.Context, data client.RegisterData) (*client.AuthPayload, error)
	CurrentUser(ctx context.Context) (*client.User, error)
}

// LoginResult is the outcome of a password login: either a completed
// session or a 2FA step-up demand the UI must resolve via Login2FA
type LoginResult struct {
	StepUpRequired bool
	TempToken      string
	User           *client.User
}

// Manager mediates all transitions between anonymous and authenticated
// states. One Manager per CLI invocation; it is safe for concurrent use,
// with last-write-wins semantics when refreshes race.
type Manager struct {
	api       AuthAPI
	serverURL string
	tokens    cliauth.TokenStore
	blobs     userconfig.SessionStore
	log       zerolog.Logger

	mu      sync.Mutex
	state   State
	user    *client.User
	token   string
	runMode string
}

// NewManager creates a session manager in the anonymous state
func NewManager(api AuthAPI, serverURL string, tokens cliauth.TokenStore, blobs userconfig.SessionStore, log zerolog.Logger) *Manager {
	return &Manager{
		api:       api,
		serverURL: serverURL,
		tokens:    tokens,
		blobs:     blobs,
		log:       log,
		state:     StateAnonymous,
		runMode:   "standard",
	}
}

// Token returns the current bearer token, empty when anonymous.
// Implements client.TokenSource.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// State returns the current lifecycle phase
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsAuthenticated reports whether a session exists. True in both the
// restoring (optimistic) and confirmed phases; never true without a token.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != StateAnonymous && m.token != ""
}

// IsAdmin reports whether the session identity holds the admin role
func (m *Manager) IsAdmin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user != nil && m.user.Role == "admin"
}

// User returns the session identity, nil when anonymous or unconfirmed
func (m *Manager) User() *client.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// RunMode returns the identity's run mode, defaulting to "standard"
func (m *Manager) RunMode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runMode
}

// Login authenticates with email and password. For 2FA-enabled accounts
// the result demands a step-up and no session state is touched: a 2FA
// account never gets a session from the password alone.
func (m *Manager) Login(ctx context.Context, creds client.Credentials) (*LoginResult, error) {
	outcome, err := m.api.Login(ctx, creds)
	if err != nil {
		m.Logout()
		return nil, err
	}

	if outcome.TOTPRequired {
		return &LoginResult{StepUpRequired: true, TempToken: outcome.TempToken}, nil
	}

	if err := m.establish(outcome.AccessToken, outcome.User); err != nil {
		return nil, err
	}
	return &LoginResult{User: outcome.User}, nil
}

// Login2FA completes a step-up login with the temp token and 6-digit code
func (m *Manager) Login2FA(ctx context.Context, tempToken, code string) (*client.User, error) {
	payload, err := m.api.Verify2FA(ctx, tempToken, code)
	if err != nil {
		m.Logout()
		return nil, err
	}

	if err := m.establish(payload.AccessToken, payload.User); err != nil {
		return nil, err
	}
	return payload.User, nil
}

// Register creates an account and starts a session from the result
func (m *Manager) Register(ctx context.Context, data client.RegisterData) (*client.User, error) {
	payload, err := m.api.Register(ctx, data)
	if err != nil {
		m.Logout()
		return nil, err
	}

	if err := m.establish(payload.AccessToken, payload.User); err != nil {
		return nil, err
	}
	return payload.User, nil
}

// SetToken injects a token obtained out of band (e.g. an external
// redirect flow), persists it, and confirms it with an identity refresh
func (m *Manager) SetToken(ctx context.Context, token string) (*client.User, error) {
	if err := m.tokens.SaveToken(m.serverURL, token); err != nil {
		m.Logout()
		return nil, err
	}

	m.mu.Lock()
	m.token = token
	m.state = StateRestoring
	m.mu.Unlock()

	user, err := m.RefreshUser(ctx)
	if err != nil {
		m.Logout()
		return nil, err
	}
	return user, nil
}

// RefreshUser replaces the session identity from the server. A 401 means
// the token is dead and forces a full logout; any other failure leaves
// the session untouched so a flaky connection cannot evict a valid one.
func (m *Manager) RefreshUser(ctx context.Context) (*client.User, error) {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	if token == "" {
		return nil, ErrNotAuthenticated
	}

	user, err := m.api.CurrentUser(ctx)
	if err != nil {
		if client.IsUnauthorized(err) {
			m.log.Debug().Msg("Token rejected by server, clearing session")
			m.Logout()
		}
		return nil, err
	}

	m.mu.Lock()
	m.user = user
	m.runMode = runModeOf(user)
	m.state = StateAuthenticated
	m.mu.Unlock()

	m.persistBlob()
	return user, nil
}

// Logout resets the session to anonymous and removes persisted state.
// Idempotent; never fails the caller. Any server-side logout call is the
// command layer's business and strictly best-effort.
func (m *Manager) Logout() {
	if err := m.tokens.DeleteToken(m.serverURL); err != nil {
		m.log.Warn().Err(err).Msg("Failed to delete stored token")
	}
	if err := m.blobs.ClearSession(); err != nil {
		m.log.Warn().Err(err).Msg("Failed to clear persisted session")
	}

	m.mu.Lock()
	m.user = nil
	m.token = ""
	m.runMode = "standard"
	m.state = StateAnonymous
	m.mu.Unlock()
}

// CheckAuth restores a persisted session at startup. The restored token
// counts as a session immediately (optimistic), then an identity refresh
// confirms or — on a 401 — destroys it. Refresh failures are swallowed:
// no network at startup must not sign the user out.
func (m *Manager) CheckAuth(ctx context.Context) {
	token, err := m.tokens.LoadToken(m.serverURL)
	if err != nil {
		if !errors.Is(err, cliauth.ErrNoToken) {
			m.log.Warn().Err(err).Msg("Failed to load stored token")
		}
		return
	}

	m.mu.Lock()
	m.token = token
	m.state = StateRestoring

	// Warm-start the identity from the persisted blob so predicates are
	// meaningful before the refresh resolves
	if blob, err := m.blobs.LoadSession(); err == nil && blob != nil && blob.Token == token {
		m.user = blob.User
		if blob.RunMode != "" {
			m.runMode = blob.RunMode
		}
	}
	m.mu.Unlock()

	if _, err := m.RefreshUser(ctx); err != nil {
		// 401 already triggered its own logout inside RefreshUser
		m.log.Debug().Err(err).Msg("Startup identity refresh failed")
	}
}

// establish commits an authenticated transition: user and token are set
// together, never independently, then mirrored to durable storage. Any
// persistence failure rolls the whole session back.
func (m *Manager) establish(token string, user *client.User) error {
	m.mu.Lock()
	m.token = token
	m.user = user
	m.runMode = runModeOf(user)
	m.state = StateAuthenticated
	m.mu.Unlock()

	if err := m.tokens.SaveToken(m.serverURL, token); err != nil {
		m.Logout()
		return err
	}
	m.persistBlob()

	return nil
}

// persistBlob mirrors the current session into the durable blob. Failure
// here never tears down a live session; the keyring token alone is enough
// to restore it next start.
func (m *Manager) persistBlob() {
	m.mu.Lock()
	blob := &userconfig.SessionBlob{
		Token:           m.token,
		User:            m.user,
		RunMode:         m.runMode,
		IsAuthenticated: m.state != StateAnonymous && m.token != "",
		IsAdmin:         m.user != nil && m.user.Role == "admin",
	}
	m.mu.Unlock()

	if err := m.blobs.SaveSession(blob); err != nil {
		m.log.Warn().Err(err).Msg("Failed to persist session")
	}
}

func runModeOf(user *client.User) string {
	if user == nil || user.RunMode == "" {
		return "standard"
	}
	return user.RunMode
}
