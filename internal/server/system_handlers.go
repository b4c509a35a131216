package server

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/subgate-dev/subgate/internal/models"
	"github.com/subgate-dev/subgate/internal/sysinfo"
)

// SystemInfoResponse contains host metrics and account counts
type SystemInfoResponse struct {
	Version string          `json:"version"`
	Host    sysinfo.Metrics `json:"host"`
	Users   UserCounts      `json:"users"`
}

// UserCounts summarizes the account population
type UserCounts struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

// @Summary Get system information
// @Description Returns host metrics and user counts (admin only)
// @Tags system
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SystemInfoResponse
// @Failure 401 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Router /api/v1/admin/system [get]
func (s *Server) getSystemInfo(c *gin.Context) {
	// Disk figures describe the filesystem holding the database
	metrics, err := sysinfo.GetMetrics(filepath.Dir(s.config.Database.URL))
	if err != nil {
		// Partial metrics are still useful on exotic hosts
		s.logger.Warn().Err(err).Msg("Failed to collect some host metrics")
	}

	var counts UserCounts
	if err := s.db.Model(&models.User{}).Count(&counts.Total).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to count users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if err := s.db.Model(&models.User{}).Where("status = ?", "active").Count(&counts.Active).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to count active users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, SystemInfoResponse{
		Version: s.version,
		Host:    metrics,
		Users:   counts,
	})
}
