package reminder

import (
	"log/slog"
	"net/http"
	"strconv"

	"horamed/internal/common"

	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for the reminder domain.
type Handler struct {
	service *Service
}

// NewHandler creates a new reminder handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Send handles POST /api/v1/reminders
// Enqueues a reminder for async delivery and returns 202 Accepted.
func (h *Handler) Send(c *gin.Context) {
	var req ReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.service.Enqueue(c.Request.Context(), &req)
	if err != nil {
		slog.Error("enqueue reminder failed",
			"error", err,
			"dose_id", req.DoseID,
			"user_id", req.UserID,
		)
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusAccepted, resp)
}

// GetEntry handles GET /api/v1/fallbacks/:id
func (h *Handler) GetEntry(c *gin.Context) {
	id := c.Param("id")

	entry, err := h.service.GetEntry(c.Request.Context(), id)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, entry)
}

// ListEntries handles GET /api/v1/fallbacks
func (h *Handler) ListEntries(c *gin.Context) {
	var filter ListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid query parameters: "+err.Error())
		return
	}

	resp, err := h.service.ListEntries(c.Request.Context(), filter)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, resp)
}

// GetStats handles GET /api/v1/stats
func (h *Handler) GetStats(c *gin.Context) {
	userID := c.Query("user_id")

	windowDays := 7
	if raw := c.Query("window_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			common.Error(c, http.StatusBadRequest, "window_days must be a positive integer")
			return
		}
		windowDays = parsed
	}

	stats, err := h.service.GetStats(c.Request.Context(), userID, windowDays)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, stats)
}

// WhatsAppWebhook handles POST /api/v1/webhooks/whatsapp
// Receives delivery receipts from the WhatsApp provider.
func (h *Handler) WhatsAppWebhook(c *gin.Context) {
	var event struct {
		Type string `json:"type"`
		Data struct {
			UserID string `json:"user_id"`
			DoseID string `json:"dose_id"`
		} `json:"data"`
	}

	if err := c.ShouldBindJSON(&event); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid webhook payload: "+err.Error())
		return
	}

	if event.Type != "message.delivered" {
		// Acknowledge but ignore unhandled event types
		slog.Info("ignoring webhook event", "type", event.Type)
		common.Success(c, http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err := h.service.HandleDeliveryReceipt(c.Request.Context(), event.Data.UserID, event.Data.DoseID); err != nil {
		slog.Error("webhook processing failed",
			"event_type", event.Type,
			"dose_id", event.Data.DoseID,
			"error", err,
		)
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, gin.H{"status": "processed"})
}

// RegisterRoutes registers reminder routes to the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/reminders", h.Send)
	rg.GET("/fallbacks", h.ListEntries)
	rg.GET("/fallbacks/:id", h.GetEntry)
	rg.GET("/stats", h.GetStats)
	rg.POST("/webhooks/whatsapp", h.WhatsAppWebhook)
}
