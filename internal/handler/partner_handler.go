package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/paris-agenda/service-promotion/internal/application"
)

// PartnerHandler serves the token-gated, read-only partner stats endpoint.
// There is no admin check here; the capability token is the credential.
type PartnerHandler struct {
	stats *application.StatsService
}

// NewPartnerHandler creates a new PartnerHandler.
func NewPartnerHandler(stats *application.StatsService) *PartnerHandler {
	return &PartnerHandler{stats: stats}
}

// RegisterRoutes registers the partner routes.
func (h *PartnerHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/partner/stats", h.Snapshot)
}

// Snapshot handles GET /api/v1/partner/stats?activation=<id>&token=<t>.
// Failures come back as 200 with a code so the partner page can render
// specific, safe messaging; an unparsable id is indistinguishable from an
// unknown one.
func (h *PartnerHandler) Snapshot(c *gin.Context) {
	token := c.Query("token")

	activationID, err := uuid.Parse(c.Query("activation"))
	if err != nil {
		c.JSON(http.StatusOK, &application.StatsResult{Code: application.StatsCodeNotFound})
		return
	}

	result := h.stats.Snapshot(c.Request.Context(), activationID, token)
	c.JSON(http.StatusOK, result)
}
