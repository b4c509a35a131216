package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/subgate-dev/subgate/internal/auth"
	"github.com/subgate-dev/subgate/internal/models"
)

const recoveryCodeCount = 8

// Confirm2FARequest carries the first TOTP code proving the authenticator
// was provisioned
type Confirm2FARequest struct {
	Code string `json:"code" binding:"required"`
}

// Disable2FARequest requires a current code to turn 2FA off
type Disable2FARequest struct {
	Code string `json:"code" binding:"required"`
}

// Setup2FAResponse returns the provisioning material for the authenticator app
type Setup2FAResponse struct {
	Secret string `json:"secret"`
	QRCode string `json:"qr_code"` // otpauth:// URL, rendered by the console
}

// Confirm2FAResponse returns the one-time recovery codes
type Confirm2FAResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

func (s *Server) sessionUser(c *gin.Context) (*models.User, bool) {
	sessionData, exists := GetSessionData(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, false
	}

	var user models.User
	if err := s.db.Where("id = ?", sessionData.UserID).First(&user).Error; err != nil {
		s.logger.Error().Err(err).Str("user_id", sessionData.UserID).Msg("Failed to find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return nil, false
	}
	return &user, true
}

// @Summary 2FA status
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/auth/2fa/status [get]
func (s *Server) get2FAStatus(c *gin.Context) {
	user, ok := s.sessionUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": user.TOTPEnabled})
}

// @Summary Begin 2FA setup
// @Description Generate a TOTP secret for the signed-in user. 2FA stays
// @Description off until the secret is confirmed with a valid code.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Setup2FAResponse
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/auth/2fa/setup [post]
func (s *Server) setup2FA(c *gin.Context) {
	user, ok := s.sessionUser(c)
	if !ok {
		return
	}

	if user.TOTPEnabled {
		c.JSON(http.StatusConflict, gin.H{"error": "2FA is already enabled"})
		return
	}

	key, err := auth.GenerateTOTPSecret(user.Email)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate TOTP secret")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	// Store the pending secret; it only becomes active on confirm
	if err := s.db.Model(user).Update("totp_secret", key.Secret()).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to store TOTP secret")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, Setup2FAResponse{
		Secret: key.Secret(),
		QRCode: key.URL(),
	})
}

// @Summary Confirm 2FA setup
// @Description Enable 2FA after verifying the first code, returning
// @Description single-use recovery codes.
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body Confirm2FARequest true "Confirmation request"
// @Success 200 {object} Confirm2FAResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/v1/auth/2fa/confirm [post]
func (s *Server) confirm2FA(c *gin.Context) {
	user, ok := s.sessionUser(c)
	if !ok {
		return
	}

	var req Confirm2FARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if user.TOTPSecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "2FA setup has not been started"})
		return
	}

	if !auth.ValidateTOTPCode(req.Code, user.TOTPSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid verification code"})
		return
	}

	codes, err := auth.GenerateRecoveryCodes(recoveryCodeCount)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate recovery codes")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	codesJSON, err := json.Marshal(codes)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to marshal recovery codes")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	updates := map[string]interface{}{
		"totp_enabled":   true,
		"recovery_codes": string(codesJSON),
	}
	if err := s.db.Model(user).Updates(updates).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to enable 2FA")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("2FA enabled")
	c.JSON(http.StatusOK, Confirm2FAResponse{RecoveryCodes: codes})
}

// @Summary Disable 2FA
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body Disable2FARequest true "Disable request"
// @Success 204
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/v1/auth/2fa/disable [post]
func (s *Server) disable2FA(c *gin.Context) {
	user, ok := s.sessionUser(c)
	if !ok {
		return
	}

	var req Disable2FARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !user.TOTPEnabled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "2FA is not enabled"})
		return
	}

	if !s.checkSecondFactor(user, req.Code) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid verification code"})
		return
	}

	updates := map[string]interface{}{
		"totp_enabled":   false,
		"totp_secret":    "",
		"recovery_codes": "",
	}
	if err := s.db.Model(user).Updates(updates).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to disable 2FA")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("2FA disabled")
	c.Status(http.StatusNoContent)
}
