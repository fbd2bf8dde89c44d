package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/paris-agenda/service-promotion/internal/adapter"
	"github.com/paris-agenda/service-promotion/internal/application"
	"github.com/paris-agenda/service-promotion/internal/response"
)

// signatureHeader carries the payment processor's timestamped HMAC.
const signatureHeader = "Stripe-Signature"

// maxWebhookBody bounds the raw payload read into memory.
const maxWebhookBody = 64 * 1024

// WebhookHandler receives paid-placement purchase events from the payment
// processor. Verification happens on the raw body, before any parsing.
type WebhookHandler struct {
	service *application.IngestionService
	secret  string
	logger  *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(service *application.IngestionService, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, secret: secret, logger: logger}
}

// RegisterRoutes registers the webhook endpoint.
func (h *WebhookHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/webhooks/payment", h.Receive)
}

// Receive handles POST /webhooks/payment. The processor retries on any
// non-2xx, so every path must stay safe to replay.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}

	if !adapter.VerifyWebhookSignature(body, c.GetHeader(signatureHeader), h.secret, time.Now()) {
		h.logger.Warn("webhook signature rejected")
		response.BadRequest(c, "invalid signature")
		return
	}

	var envelope application.WebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		response.BadRequest(c, "malformed envelope")
		return
	}

	result, err := h.service.Ingest(c.Request.Context(), envelope)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "inserted": result.Inserted})
}
