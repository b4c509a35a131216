package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary Public settings
// @Description Site branding and feature flags, readable without auth
// @Tags settings
// @Produce json
// @Success 200 {object} settings.Public
// @Router /api/v1/settings/public [get]
func (s *Server) getPublicSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.public)
}
