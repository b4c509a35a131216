package session_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subgate-dev/subgate/internal/cli/client"
	"github.com/subgate-dev/subgate/internal/cli/session"
	"github.com/subgate-dev/subgate/internal/cli/userconfig"
)

// memTokenStore is an in-memory token store for testing. The CLI holds
// one session per configured server, so a single slot suffices.
type memTokenStore struct {
	token  string
	stored bool
}

func (m *memTokenStore) SaveToken(serverURL, token string) error {
	m.token = token
	m.stored = true
	return nil
}

func (m *memTokenStore) LoadToken(serverURL string) (string, error) {
	if !m.stored {
		return "", fmt.Errorf("no stored token")
	}
	return m.token, nil
}

func (m *memTokenStore) DeleteToken(serverURL string) error {
	m.token = ""
	m.stored = false
	return nil
}

// memBlobStore is an in-memory session blob store for testing
type memBlobStore struct {
	blob *userconfig.SessionBlob
}

func (m *memBlobStore) LoadSession() (*userconfig.SessionBlob, error) {
	return m.blob, nil
}

func (m *memBlobStore) SaveSession(blob *userconfig.SessionBlob) error {
	m.blob = blob
	return nil
}

func (m *memBlobStore) ClearSession() error {
	m.blob = nil
	return nil
}

// fakeAuthService is a minimal Auth Service standing in for the backend
type fakeAuthService struct {
	email       string
	password    string
	totpEnabled bool
	tempToken   string
	totpCode    string
	accessToken string
	user        client.User

	// meStatus forces a status on /users/me; 0 means 200 with the user
	meStatus int
}

func (f *fakeAuthService) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Email != f.email || req.Password != f.password {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "Invalid email or password"})
			return
		}
		if f.totpEnabled {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"totp_required": true,
				"temp_token":    f.tempToken,
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": f.accessToken,
			"user":         f.user,
			"expires_in":   86400,
		})
	})

	mux.HandleFunc("POST /api/v1/auth/2fa/verify", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TempToken string `json:"temp_token"`
			TOTPCode  string `json:"totp_code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.TempToken != f.tempToken || req.TOTPCode != f.totpCode {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "Invalid verification code"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": f.accessToken,
			"user":         f.user,
			"expires_in":   86400,
		})
	})

	mux.HandleFunc("POST /api/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": f.accessToken,
			"user":         f.user,
			"expires_in":   86400,
		})
	})

	mux.HandleFunc("GET /api/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
		if f.meStatus != 0 {
			w.WriteHeader(f.meStatus)
			json.NewEncoder(w).Encode(map[string]string{"error": "nope"})
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+f.accessToken {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "Invalid or expired token"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": f.user})
	})

	return mux
}

func newTestSetup(t *testing.T, svc *fakeAuthService) (*session.Manager, *memTokenStore, *memBlobStore, func()) {
	t.Helper()

	srv := httptest.NewServer(svc.handler())

	api := client.New(srv.URL)
	tokens := &memTokenStore{}
	blobs := &memBlobStore{}
	mgr := session.NewManager(api, srv.URL, tokens, blobs, zerolog.Nop())
	api.SetTokenSource(mgr)

	return mgr, tokens, blobs, srv.Close
}

// requireInvariants asserts the properties every other component trusts
func requireInvariants(t *testing.T, mgr *session.Manager) {
	t.Helper()
	if mgr.IsAuthenticated() {
		require.NotEmpty(t, mgr.Token(), "authenticated session must hold a token")
	}
	if mgr.IsAdmin() {
		require.NotNil(t, mgr.User())
		require.Equal(t, "admin", mgr.User().Role)
	}
}

func standardService() *fakeAuthService {
	return &fakeAuthService{
		email:       "a@b.com",
		password:    "good",
		accessToken: "T1",
		user: client.User{
			ID:       "01J0000000000000000000USER",
			Email:    "a@b.com",
			Username: "alice",
			Role:     "user",
			RunMode:  "standard",
		},
	}
}

func TestLogin_DirectSuccess(t *testing.T) {
	svc := standardService()
	mgr, tokens, _, cleanup := newTestSetup(t, svc)
	defer cleanup()

	result, err := mgr.Login(context.Background(), client.Credentials{Email: "a@b.com", Password: "good"})
	require.NoError(t, err)
	require.False(t, result.StepUpRequired)
	require.NotNil(t, result.User)

	assert.True(t, mgr.IsAuthenticated())
	assert.Equal(t, "T1", mgr.Token())
	assert.Equal(t, "alice", mgr.User().Username)
	assert.False(t, mgr.IsAdmin())
	assert.Equal(t, session.StateAuthenticated, mgr.State())

	// Token is mirrored into durable storage
	stored, err := tokens.LoadToken("")
	require.NoError(t, err)
	assert.Equal(t, "T1", stored)
	requireInvariants(t, mgr)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := standardService()
	mgr, tokens, _, cleanup := newTestSetup(t, svc)
	defer cleanup()

	_, err := mgr.Login(context.Background(), client.Credentials{Email: "a@b.com", Password: "wrong"})
	require.Error(t, err)

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	assert.False(t, mgr.IsAuthenticated())
	assert.Empty(t, mgr.Token())
	assert.False(t, tokens.stored)
	requireInvariants(t, mgr)
}

func TestLogin_StepUpRequired(t *testing.T) {
	svc := standardService()
	svc.totpEnabled = true
	svc.tempToken = "TMP1"
	svc.totpCode = "123456"
	mgr, tokens, blobs, cleanup := newTestSetup(t, svc)
	defer cleanup()

	result, err := mgr.Login(context.Background(), client.Credentials{Email: "a@b.com", Password: "good"})
	require.NoError(t, err)
	require.True(t, result.StepUpRequired)
	assert.Equal(t, "TMP1", result.TempToken)

	// No session from password alone: nothing in memory, nothing persisted
	assert.False(t, mgr.IsAuthenticated())
	assert.Empty(t, mgr.Token())
	assert.False(t, tokens.stored)
	assert.Nil(t, blobs.blob)
	requireInvariants(t, mgr)
}

func TestLogin2FA_CorrectCode(t *testing.T) {
	svc := standardService()
	svc.totpEnabled = true
	svc.tempToken = "TMP1"
	svc.totpCode = "123456"
	mgr, _, _, cleanup := newTestSetup(t, svc)
	defer cleanup()

	result, err := mgr.Login(context.Background(), client.Credentials{Email: "a@b.com", Password: "good"})
	require.NoError(t, err)
	require.True(t, result.StepUpRequired)

	user, err := mgr.Login2FA(context.Background(), result.TempToken, "123456")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.True(t, mgr.IsAuthenticated())
	assert.Equal(t, "T1", mgr.Token())
	requireInvariants(t, mgr)
}

func TestLogin2FA_WrongCode(t *testing.T) {
	svc := standardService()
	svc.totpEnabled = true
	svc.tempToken = "TMP1"
	svc.totpCode = "123456"
	mgr, tokens, _, cleanup := newTestSetup(t, svc)
	defer cleanup()

	// Simulate a stale persisted token from an earlier session
	require.NoError(t, tokens.SaveToken("", "stale"))

	_, err := mgr.Login2FA(context.Background(), "TMP1", "000000")
	require.Error(t, err)

	// Failure clears any previously persisted token
	assert.False(t, mgr.IsAuthenticated())
	assert.False(t, tokens.stored)
	requireInvariants(t, mgr)
}

func TestRegister_Success(t *testing.T) {
	svc := standardService()
	mgr, _, _, cleanup := newTestSetup(t, svc)
	defer cleanup()

	user, err := mgr.Register(context.Background(), client.RegisterData{
		Username: "alice",
		Email:    "a@b.com",
		Password: "longenough",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.True(t, mgr.IsAuthenticated())
	requireInvariants(t, mgr)
}

func TestRefreshUser_WithoutToken(t *testing.T) {
	svc := standardService()
	mgr, _, _, cleanup := newTestSetup(t, svc)
	defer cleanup()

	_, err := mgr.RefreshUser(context.Background())
	require.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestRefreshUser_401ClearsSession(t *testing.T) {
	svc := standardService()
	mgr, tokens, blobs, cleanup := newTestSetup(t, svc)
	defer cleanup()

	_, err := mgr.Login(context.Background(), client.Credentials{Email: "a@b.com", Password: "good"})
	require.NoError(t, err)
	require.True(t, mgr.IsAuthenticated())

	// The server now rejects the token
	svc.meStatus = http.StatusUnauthorized

	_, err = mgr.RefreshUser(context.Background())
	require.Error(t, err)

	assert.False(t, mgr.IsAuthenticated())
	assert.False(t, mgr.IsAdmin())
	assert.Nil(t, mgr.User())
	assert.Empty(t, mgr.Token())
	assert.False(t, tokens.stored)
	assert.Nil(t, blobs.blob)
	requireInvariants(t, mgr)
}

func TestRefreshUser_TransientFailureKeepsSession(t *testing.T) {
	svc := standardService()
	mgr, _, _, cleanup := newTestSetup(t, svc)
	defer cleanup()

	_, err := mgr.Login(context.Background(), client.Credentials{Email: "a@b.com", Password: "good"})
	require.NoError(t, err)
	userBefore := mgr.User()

	// A 500 must not evict a valid session
	svc.meStatus = http.StatusInternalServerError

	_, err = mgr.RefreshUser(context.Background())
	require.Error(t, err)

	assert.True(t, mgr.IsAuthenticated())
	assert.Equal(t, "T1", mgr.Token())
	assert.Equal(t, userBefore, mgr.User())
	requireInvariants(t, mgr)
}

func TestLogout_Idempotent(t *testing.T) {
	svc := standardService()
	mgr, _, _, cleanup := newTestSetup(t, svc)
	defer cleanup()

	_, err := mgr.Login(context.Background(), client.Credentials{Email: "a@b.com", Password: "good"})
	require.NoError(t, err)

	mgr.Logout()
	assert.False(t, mgr.IsAuthenticated())
	assert.Equal(t, session.StateAnonymous, mgr.State())

	// Second logout is a no-op, not an error
	mgr.Logout()
	assert.False(t, mgr.IsAuthenticated())
	assert.Nil(t, mgr.User())
	assert.Empty(t, mgr.Token())
}

func TestIsAdmin_DerivedStrictlyFromRole(t *testing.T) {
	tests := []struct {
		role    string
		isAdmin bool
	}{
		{"admin", true},
		{"user", false},
		{"moderator", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run("role_"+tt.role, func(t *testing.T) {
			svc := standardService()
			svc.user.Role = tt.role
			mgr, _, _, cleanup := newTestSetup(t, svc)
			defer cleanup()

			_, err := mgr.Login(context.Background(), client.Credentials{Email: "a@b.com", Password: "good"})
			require.NoError(t, err)
			assert.Equal(t, tt.isAdmin, mgr.IsAdmin())
			requireInvariants(t, mgr)
		})
	}
}

func TestRunMode_DefaultsToStandard(t *testing.T) {
	svc := standardService()
	svc.user.RunMode = ""
	mgr, _, _, cleanup := newTestSetup(t, svc)
	defer cleanup()

	_, err := mgr.Login(context.Background(), client.Credentials{Email: "a@b.com", Password: "good"})
	require.NoError(t, err)
	assert.Equal(t, "standard", mgr.RunMode())
}

func TestSetToken_Success(t *testing.T) {
	svc := standardService()
	mgr, tokens, _, cleanup := newTestSetup(t, svc)
	defer cleanup()

	user, err := mgr.SetToken(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.True(t, mgr.IsAuthenticated())
	assert.True(t, tokens.stored)
	requireInvariants(t, mgr)
}

func TestSetToken_RefreshFailureRollsBack(t *testing.T) {
	svc := standardService()
	mgr, tokens, _, cleanup := newTestSetup(t, svc)
	defer cleanup()

	// An injected token the server does not recognize
	_, err := mgr.SetToken(context.Background(), "bogus")
	require.Error(t, err)

	assert.False(t, mgr.IsAuthenticated())
	assert.Empty(t, mgr.Token())
	assert.False(t, tokens.stored)
	requireInvariants(t, mgr)
}

func TestCheckAuth_RestoresPersistedSession(t *testing.T) {
	svc := standardService()
	mgr, tokens, blobs, cleanup := newTestSetup(t, svc)
	defer cleanup()

	// First process: login persists token and blob
	_, err := mgr.Login(context.Background(), client.Credentials{Email: "a@b.com", Password: "good"})
	require.NoError(t, err)
	require.NotNil(t, blobs.blob)
	require.True(t, tokens.stored)

	// Fresh process: new manager over the same stores
	fresh := freshManager(t, svc, tokens, blobs)

	fresh.CheckAuth(context.Background())
	assert.True(t, fresh.IsAuthenticated())
	assert.Equal(t, "T1", fresh.Token())
	assert.Equal(t, session.StateAuthenticated, fresh.State())
	assert.Equal(t, "alice", fresh.User().Username)
	requireInvariants(t, fresh)
}

func TestCheckAuth_OptimisticOnTransientFailure(t *testing.T) {
	svc := standardService()
	mgr, tokens, blobs, cleanup := newTestSetup(t, svc)
	defer cleanup()

	_, err := mgr.Login(context.Background(), client.Credentials{Email: "a@b.com", Password: "good"})
	require.NoError(t, err)

	// Fresh process with the identity endpoint down: the restored
	// session stays optimistically valid
	svc.meStatus = http.StatusInternalServerError
	fresh := freshManager(t, svc, tokens, blobs)

	fresh.CheckAuth(context.Background())
	assert.True(t, fresh.IsAuthenticated())
	assert.Equal(t, session.StateRestoring, fresh.State())
	// Warm-started identity from the blob is available pre-confirmation
	require.NotNil(t, fresh.User())
	assert.Equal(t, "alice", fresh.User().Username)
	requireInvariants(t, fresh)
}

func TestCheckAuth_401EvictsRestoredSession(t *testing.T) {
	svc := standardService()
	mgr, tokens, blobs, cleanup := newTestSetup(t, svc)
	defer cleanup()

	_, err := mgr.Login(context.Background(), client.Credentials{Email: "a@b.com", Password: "good"})
	require.NoError(t, err)

	svc.meStatus = http.StatusUnauthorized
	fresh := freshManager(t, svc, tokens, blobs)

	fresh.CheckAuth(context.Background())
	assert.False(t, fresh.IsAuthenticated())
	assert.Empty(t, fresh.Token())
	assert.False(t, tokens.stored)
	requireInvariants(t, fresh)
}

func TestCheckAuth_NoPersistedToken(t *testing.T) {
	svc := standardService()
	mgr, _, _, cleanup := newTestSetup(t, svc)
	defer cleanup()

	mgr.CheckAuth(context.Background())
	assert.False(t, mgr.IsAuthenticated())
	assert.Equal(t, session.StateAnonymous, mgr.State())
}

// freshManager builds a second manager over the same persisted stores,
// simulating a process restart against the same fake service
func freshManager(t *testing.T, svc *fakeAuthService, tokens *memTokenStore, blobs *memBlobStore) *session.Manager {
	t.Helper()

	srv := httptest.NewServer(svc.handler())
	t.Cleanup(srv.Close)

	api := client.New(srv.URL)
	mgr := session.NewManager(api, srv.URL, tokens, blobs, zerolog.Nop())
	api.SetTokenSource(mgr)
	return mgr
}
