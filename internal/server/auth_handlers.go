package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/subgate-dev/subgate/internal/auth"
	"github.com/subgate-dev/subgate/internal/models"
)

// challengeTTL bounds how long a password-verified login may wait for its
// TOTP code before the temp token dies
const challengeTTL = 5 * time.Minute

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest represents a self-service registration request
type RegisterRequest struct {
	Username   string `json:"username" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8"`
	InviteCode string `json:"invite_code"`
}

// Verify2FARequest carries the temp token from the step-up response plus
// the 6-digit code
type Verify2FARequest struct {
	TempToken string `json:"temp_token" binding:"required"`
	TOTPCode  string `json:"totp_code" binding:"required"`
}

// AuthResponse is the payload for every successful authentication
type AuthResponse struct {
	AccessToken string      `json:"access_token"`
	User        *UserDetail `json:"user"`
	ExpiresIn   int         `json:"expires_in"` // seconds
}

// StepUpResponse signals that a TOTP code is required to finish login
type StepUpResponse struct {
	TOTPRequired bool   `json:"totp_required"`
	TempToken    string `json:"temp_token"`
}

// UserDetail represents user information returned in responses
type UserDetail struct {
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

func userDetail(user *models.User) *UserDetail {
	return &UserDetail{
		ID:          user.ID,
		Email:       user.Email,
		Username:    user.Username,
		Role:        user.Role,
		RunMode:     user.RunMode,
		Balance:     user.Balance,
		Concurrency: user.Concurrency,
		TOTPEnabled: user.TOTPEnabled,
		CreatedAt:   user.CreatedAt,
	}
}

// issueToken builds the AuthResponse for a user, using the configured TTL
func (s *Server) issueToken(user *models.User) (*AuthResponse, error) {
	var cfg models.Config
	if err := s.db.First(&cfg).Error; err != nil {
		return nil, err
	}

	ttl := time.Duration(cfg.TokenTTLMinutes) * time.Minute
	token, err := auth.GenerateToken(user.ID, user.Email, user.Role, ttl)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		AccessToken: token,
		User:        userDetail(user),
		ExpiresIn:   int(ttl.Seconds()),
	}, nil
}

// @Summary Login
// @Description Authenticate with email and password. Accounts with 2FA
// @Description enabled receive a step-up response instead of a token.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/v1/auth/login [post]
func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Find user by email
	var user models.User
	if err := s.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	// Verify password
	if err := auth.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	if user.Status != "active" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Account disabled"})
		return
	}

	// 2FA-enabled accounts never get a session from password alone:
	// hand back a temp token and wait for the code
	if user.TOTPEnabled {
		tempToken, err := auth.GenerateTempToken()
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to generate temp token")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		challenge := &models.TwoFactorChallenge{
			TempToken: tempToken,
			UserID:    user.ID,
			ExpiresAt: time.Now().Add(challengeTTL),
		}
		if err := s.db.Create(challenge).Error; err != nil {
			s.logger.Error().Err(err).Msg("Failed to create two-factor challenge")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		s.logger.Info().Str("user_id", user.ID).Msg("Login requires 2FA step-up")
		c.JSON(http.StatusOK, StepUpResponse{TOTPRequired: true, TempToken: tempToken})
		return
	}

	resp, err := s.issueToken(&user)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User logged in")
	c.JSON(http.StatusOK, resp)
}

// @Summary Verify 2FA login
// @Description Complete a step-up login with the temp token and TOTP code
// @Tags auth
// @Accept json
// @Produce json
// @Param request body Verify2FARequest true "Verification request"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/v1/auth/2fa/verify [post]
func (s *Server) verify2FALogin(c *gin.Context) {
	var req Verify2FARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var challenge models.TwoFactorChallenge
	if err := s.db.Where("temp_token = ?", req.TempToken).First(&challenge).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired login attempt"})
		return
	}

	// Challenges are single-use regardless of outcome
	if err := s.db.Delete(&challenge).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to consume two-factor challenge")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if challenge.Expired() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired login attempt"})
		return
	}

	var user models.User
	if err := s.db.Where("id = ?", challenge.UserID).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired login attempt"})
		return
	}

	if !s.checkSecondFactor(&user, req.TOTPCode) {
		s.logger.Warn().Str("user_id", user.ID).Msg("Rejected 2FA code")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid verification code"})
		return
	}

	resp, err := s.issueToken(&user)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("User logged in via 2FA")
	c.JSON(http.StatusOK, resp)
}

// checkSecondFactor accepts either a live TOTP code or one of the user's
// unused recovery codes, burning the recovery code on use
func (s *Server) checkSecondFactor(user *models.User, code string) bool {
	if auth.ValidateTOTPCode(code, user.TOTPSecret) {
		return true
	}

	if user.RecoveryCodes == "" {
		return false
	}

	var codes []string
	if err := json.Unmarshal([]byte(user.RecoveryCodes), &codes); err != nil {
		return false
	}

	for i, rc := range codes {
		if rc == code {
			remaining := append(codes[:i], codes[i+1:]...)
			data, err := json.Marshal(remaining)
			if err != nil {
				return false
			}
			if err := s.db.Model(user).Update("recovery_codes", string(data)).Error; err != nil {
				s.logger.Error().Err(err).Msg("Failed to burn recovery code")
				return false
			}
			s.logger.Info().Str("user_id", user.ID).Msg("Recovery code used for login")
			return true
		}
	}

	return false
}

// @Summary Register
// @Description Create an account. The first registered user becomes admin.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/auth/register [post]
func (s *Server) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.validator.Var(req.Username, "username"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username must be at least 3 characters of letters, digits, - or _"})
		return
	}

	var cfg models.Config
	if err := s.db.First(&cfg).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to load config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if !cfg.RegistrationOpen {
		c.JSON(http.StatusForbidden, gin.H{"error": "Registration is closed"})
		return
	}

	if cfg.InviteRequired && req.InviteCode != cfg.InviteCode {
		c.JSON(http.StatusForbidden, gin.H{"error": "A valid invite code is required"})
		return
	}

	var count int64
	if err := s.db.Model(&models.User{}).Count(&count).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to count users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	var existing models.User
	err := s.db.Where("email = ? OR username = ?", req.Email, req.Username).First(&existing).Error
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Email or username already taken"})
		return
	}
	if err != gorm.ErrRecordNotFound {
		s.logger.Error().Err(err).Msg("Failed to check existing user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	role := models.RoleUser
	if count == 0 {
		role = models.RoleAdmin
	}

	user := &models.User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: passwordHash,
		Role:         role,
		RunMode:      models.RunModeStandard,
		Status:       "active",
	}

	if err := s.db.Create(user).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	resp, err := s.issueToken(user)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Str("role", role).Msg("User registered")
	c.JSON(http.StatusOK, resp)
}

// @Summary Get current user
// @Description Get information about the currently authenticated user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/v1/users/me [get]
func (s *Server) getCurrentUser(c *gin.Context) {
	sessionData, exists := GetSessionData(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var user models.User
	if err := s.db.Where("id = ?", sessionData.UserID).First(&user).Error; err != nil {
		s.logger.Error().Err(err).Str("user_id", sessionData.UserID).Msg("Failed to find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	// The console expects the identity wrapped in a data envelope
	c.JSON(http.StatusOK, gin.H{"data": userDetail(&user)})
}

// @Summary Logout
// @Description Best-effort server-side logout. Tokens are stateless, so
// @Description this only exists for the client's fire-and-forget call.
// @Tags auth
// @Security BearerAuth
// @Success 204
// @Router /api/v1/auth/logout [post]
func (s *Server) logoutUser(c *gin.Context) {
	if sessionData, exists := GetSessionData(c); exists {
		s.logger.Info().Str("user_id", sessionData.UserID).Msg("User logged out")
	}
	c.Status(http.StatusNoContent)
}
