package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/paris-agenda/service-promotion/internal/adapter"
	"github.com/paris-agenda/service-promotion/internal/application"
	"github.com/paris-agenda/service-promotion/internal/domain"
	"github.com/paris-agenda/service-promotion/internal/middleware"
	"github.com/paris-agenda/service-promotion/internal/response"
)

// AdminHandler exposes the fulfillment and scheduler operations behind the
// external admin-authorization check.
type AdminHandler struct {
	fulfillment *application.FulfillmentService
	schedulers  map[string]*application.SchedulerService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(fulfillment *application.FulfillmentService, schedulers map[string]*application.SchedulerService) *AdminHandler {
	return &AdminHandler{fulfillment: fulfillment, schedulers: schedulers}
}

// RegisterRoutes registers all admin routes.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup, authorizer adapter.AdminAuthorizer) {
	admin := r.Group("/admin")
	admin.Use(middleware.AdminAuthMiddleware(authorizer))
	{
		admin.GET("/dashboard", h.Dashboard)
		admin.POST("/activations/:id/fulfill", h.Fulfill)
		admin.PATCH("/activations/:id/status", h.UpdateStatus)
		admin.POST("/test-stats-link", h.TestStatsLink)

		admin.GET("/tiers/:tier/queue", h.Queue)
		admin.POST("/tiers/:tier/schedule", h.Schedule)
		admin.PUT("/tiers/:tier/entries/:id", h.Reschedule)
		admin.DELETE("/tiers/:tier/entries/:id", h.Cancel)
		admin.POST("/tiers/:tier/queue/clear", h.ClearQueue)
		admin.POST("/tiers/:tier/history/clear", h.ClearHistory)
	}
}

// Dashboard handles GET /api/v1/admin/dashboard.
func (h *AdminHandler) Dashboard(c *gin.Context) {
	dashboard, err := h.fulfillment.Dashboard(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dashboard)
}

// Fulfill handles POST /api/v1/admin/activations/:id/fulfill.
func (h *AdminHandler) Fulfill(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	var req application.FulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.fulfillment.Fulfill(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// updateStatusRequest is the body for the plain status transition.
type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

// UpdateStatus handles PATCH /api/v1/admin/activations/:id/status.
func (h *AdminHandler) UpdateStatus(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.fulfillment.UpdateStatus(c.Request.Context(), id, req.Status, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// TestStatsLink handles POST /api/v1/admin/test-stats-link. It seeds and
// fulfills a synthetic activation for manual QA.
func (h *AdminHandler) TestStatsLink(c *gin.Context) {
	var req application.FulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.fulfillment.GenerateTestStatsLink(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// scheduleRequest is the body for direct scheduler operations.
type scheduleRequest struct {
	EventKey         string `json:"event_key"`
	RequestedStartAt string `json:"requested_start_at"`
	DurationHours    int    `json:"duration_hours"`
}

// Queue handles GET /api/v1/admin/tiers/:tier/queue.
func (h *AdminHandler) Queue(c *gin.Context) {
	scheduler, ok := h.tierScheduler(c)
	if !ok {
		return
	}
	queue, err := scheduler.ListQueue(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, queue)
}

// Schedule handles POST /api/v1/admin/tiers/:tier/schedule.
func (h *AdminHandler) Schedule(c *gin.Context) {
	scheduler, ok := h.tierScheduler(c)
	if !ok {
		return
	}

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	entry, err := scheduler.Schedule(c.Request.Context(), req.EventKey, req.RequestedStartAt, req.DurationHours)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Reschedule handles PUT /api/v1/admin/tiers/:tier/entries/:id.
func (h *AdminHandler) Reschedule(c *gin.Context) {
	scheduler, ok := h.tierScheduler(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	entry, err := scheduler.Reschedule(c.Request.Context(), id, req.RequestedStartAt, req.DurationHours)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, entry)
}

// Cancel handles DELETE /api/v1/admin/tiers/:tier/entries/:id.
func (h *AdminHandler) Cancel(c *gin.Context) {
	scheduler, ok := h.tierScheduler(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	if err := scheduler.Cancel(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"cancelled": id})
}

// ClearQueue handles POST /api/v1/admin/tiers/:tier/queue/clear.
func (h *AdminHandler) ClearQueue(c *gin.Context) {
	scheduler, ok := h.tierScheduler(c)
	if !ok {
		return
	}
	count, err := scheduler.ClearQueue(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"cancelled": count})
}

// ClearHistory handles POST /api/v1/admin/tiers/:tier/history/clear.
func (h *AdminHandler) ClearHistory(c *gin.Context) {
	scheduler, ok := h.tierScheduler(c)
	if !ok {
		return
	}
	count, err := scheduler.ClearHistory(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"purged": count})
}

func (h *AdminHandler) tierScheduler(c *gin.Context) (*application.SchedulerService, bool) {
	tier := c.Param("tier")
	scheduler, ok := h.schedulers[tier]
	if !ok {
		response.Error(c, domain.NewValidationError("unknown tier %q", tier))
		return nil, false
	}
	return scheduler, true
}

func (h *AdminHandler) pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
