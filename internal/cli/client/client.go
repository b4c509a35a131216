// Package client is the typed HTTP client for the Subgate API. It owns
// the wire contract: bearer attachment, error decoding, and boundary
// validation of the login response union.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrMalformedResponse is returned when the server's payload matches
// neither a success shape nor the step-up shape
var ErrMalformedResponse = errors.New("malformed response from server")

// APIError is a non-2xx response from the Subgate API
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error (status %d)", e.Status)
	}
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is an APIError with status 401
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// TokenSource supplies the bearer token for authenticated calls. An empty
// string means no token is attached.
type TokenSource interface {
	Token() string
}

// Client represents an HTTP client for the Subgate API
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// New creates a new API client
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SetHTTPClient sets a custom HTTP client
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// SetTokenSource sets the bearer token source for authenticated calls
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// User is the authenticated identity record returned by the API
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	RunMode     string    `json:"run_mode"`
	Balance     float64   `json:"balance"`
	Concurrency int       `json:"concurrency"`
	TOTPEnabled bool      `json:"totp_enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// Credentials is the password-login request body
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterData is the registration request body
type RegisterData struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	InviteCode string `json:"invite_code,omitempty"`
}

// AuthPayload is the success shape shared by login, 2FA verify and register
type AuthPayload struct {
	AccessToken string `json:"access_token"`
	User        *User  `json:"user"`
	ExpiresIn   int    `json:"expires_in"`
}

// LoginOutcome is the validated union of the two login results: either a
// full auth payload or a 2FA step-up demand. Exactly one side is set.
type LoginOutcome struct {
	// Step-up branch
	TOTPRequired bool   `json:"totp_required"`
	TempToken    string `json:"temp_token"`

	// Direct-success branch
	AccessToken string `json:"access_token"`
	User        *User  `json:"user"`
	ExpiresIn   int    `json:"expires_in"`
}

// Validate rejects payloads that fit neither branch of the union
func (o *LoginOutcome) Validate() error {
	if o.TOTPRequired {
		if o.TempToken == "" {
			return fmt.Errorf("%w: step-up response missing temp_token", ErrMalformedResponse)
		}
		return nil
	}
	if o.AccessToken == "" || o.User == nil {
		return fmt.Errorf("%w: login response missing access_token or user", ErrMalformedResponse)
	}
	return nil
}

// PublicSettings is the site branding / feature-flag payload
type PublicSettings struct {
	SiteName                 string `json:"site_name"`
	SiteLogo                 string `json:"site_logo"`
	SiteSubtitle             string `json:"site_subtitle"`
	DocURL                   string `json:"doc_url"`
	HomeContent              string `json:"home_content"`
	EmailVerificationEnabled bool   `json:"email_verification_enabled"`
	RegistrationOpen         bool   `json:"registration_open"`
}

// TwoFASetup is the provisioning material returned by 2FA setup
type TwoFASetup struct {
	Secret string `json:"secret"`
	QRCode string `json:"qr_code"`
}

// doRequest issues a JSON request and decodes the response into out (when
// non-nil). Non-2xx responses become *APIError.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return apiErr
	}

	var detail struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &detail) == nil && detail.Error != "" {
		apiErr.Message = detail.Error
	} else {
		apiErr.Message = string(bytes.TrimSpace(body))
	}

	return apiErr
}

// Login authenticates with email and password. The outcome is either a
// direct success or a 2FA step-up demand; callers must check TOTPRequired.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginOutcome, error) {
	var outcome LoginOutcome
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", creds, &outcome); err != nil {
		return nil, err
	}
	if err := outcome.Validate(); err != nil {
		return nil, err
	}
	return &outcome, nil
}

// Verify2FA completes a step-up login with the temp token and TOTP code
func (c *Client) Verify2FA(ctx context.Context, tempToken, code string) (*AuthPayload, error) {
	req := map[string]string{
		"temp_token": tempToken,
		"totp_code":  code,
	}
	var payload AuthPayload
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/2fa/verify", req, &payload); err != nil {
		return nil, err
	}
	if payload.AccessToken == "" || payload.User == nil {
		return nil, fmt.Errorf("%w: verify response missing access_token or user", ErrMalformedResponse)
	}
	return &payload, nil
}

// Register creates an account and returns the resulting session payload
func (c *Client) Register(ctx context.Context, data RegisterData) (*AuthPayload, error) {
	var payload AuthPayload
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/register", data, &payload); err != nil {
		return nil, err
	}
	if payload.AccessToken == "" || payload.User == nil {
		return nil, fmt.Errorf("%w: register response missing access_token or user", ErrMalformedResponse)
	}
	return &payload, nil
}

// CurrentUser fetches the authenticated identity
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var envelope struct {
		Data *User `json:"data"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/users/me", nil, &envelope); err != nil {
		return nil, err
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("%w: identity response missing data", ErrMalformedResponse)
	}
	return envelope.Data, nil
}

// Logout tells the server the session is over. Best-effort: the client
// state reset never depends on this call succeeding.
func (c *Client) Logout(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil)
}

// PublicSettings fetches site branding and feature flags
func (c *Client) PublicSettings(ctx context.Context) (*PublicSettings, error) {
	var pub PublicSettings
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/settings/public", nil, &pub); err != nil {
		return nil, err
	}
	return &pub, nil
}

// TwoFAStatus reports whether the signed-in user has 2FA enabled
func (c *Client) TwoFAStatus(ctx context.Context) (bool, error) {
	var status struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/auth/2fa/status", nil, &status); err != nil {
		return false, err
	}
	return status.Enabled, nil
}

// Setup2FA begins 2FA enrollment for the signed-in user
func (c *Client) Setup2FA(ctx context.Context) (*TwoFASetup, error) {
	var setup TwoFASetup
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/2fa/setup", nil, &setup); err != nil {
		return nil, err
	}
	return &setup, nil
}

// Confirm2FA enables 2FA with the first valid code and returns recovery codes
func (c *Client) Confirm2FA(ctx context.Context, code string) ([]string, error) {
	req := map[string]string{"code": code}
	var resp struct {
		RecoveryCodes []string `json:"recovery_codes"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/2fa/confirm", req, &resp); err != nil {
		return nil, err
	}
	return resp.RecoveryCodes, nil
}

// Disable2FA turns off 2FA after verifying a current code
func (c *Client) Disable2FA(ctx context.Context, code string) error {
	req := map[string]string{"code": code}
	return c.doRequest(ctx, http.MethodPost, "/api/v1/auth/2fa/disable", req, nil)
}
