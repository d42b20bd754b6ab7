package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alertwise/go-emergency-alerts/internal/alert"
	"github.com/alertwise/go-emergency-alerts/internal/approval"
	"github.com/alertwise/go-emergency-alerts/internal/dashboard"
	"github.com/alertwise/go-emergency-alerts/internal/delivery"
	"github.com/alertwise/go-emergency-alerts/internal/models"
	"github.com/alertwise/go-emergency-alerts/internal/reaction"
	"github.com/alertwise/go-emergency-alerts/internal/repository"
)

type Handler struct {
	db        *repository.SQLiteDB
	coord     *approval.Coordinator
	dispatch  *reaction.Dispatcher
	reports   *delivery.Service
	hub       *dashboard.Hub
	authToken string
}

func NewHandler(db *repository.SQLiteDB, coord *approval.Coordinator, dispatcher *reaction.Dispatcher, reports *delivery.Service, hub *dashboard.Hub, authToken string) *Handler {
	return &Handler{
		db:        db,
		coord:     coord,
		dispatch:  dispatcher,
		reports:   reports,
		hub:       hub,
		authToken: authToken,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/ws/dashboard", h.dashboardSocket)

	authed := r.Group("/api", BearerAuth(h.authToken))

	authed.POST("/alerts", h.createAlert)
	authed.GET("/alerts", h.listAlerts)
	authed.GET("/alerts/:id", h.getAlert)
	authed.POST("/alerts/:id/submit", h.submitAlert)
	authed.POST("/alerts/:id/approve", h.approveAlert)
	authed.POST("/alerts/:id/reject", h.rejectAlert)
	authed.POST("/alerts/:id/cancel", h.cancelAlert)
	authed.POST("/alerts/:id/delivered", h.markDelivered)
	authed.GET("/alerts/:id/attempts", h.listAttempts)
	authed.GET("/alerts/:id/consecutive-failures", h.consecutiveFailures)

	authed.POST("/delivery/reports", h.recordReport)
	authed.POST("/delivery/reports/async", h.enqueueReport)
	authed.GET("/delivery/stats", h.deliveryStats)

	authed.GET("/events", h.listEvents)

	h.registerWebhooks(authed)
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{
			Error: "storage unreachable",
			Code:  "upstream_unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"dashboardClients": h.hub.ConnectionCount(),
	})
}

type createAlertRequest struct {
	Headline    string        `json:"headline"`
	Description string        `json:"description"`
	Severity    string        `json:"severity"`
	Channel     string        `json:"channel"`
	Areas       []models.Area `json:"areas"`
	ExpiresAt   time.Time     `json:"expiresAt"`
	Draft       bool          `json:"draft"`
	CreatedBy   string        `json:"createdBy"`
}

func (h *Handler) createAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, &alert.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}

	created, err := h.coord.Create(c.Request.Context(), alert.CreateInput{
		Headline:    req.Headline,
		Description: req.Description,
		Severity:    models.Severity(strings.ToUpper(req.Severity)),
		Channel:     models.ChannelType(strings.ToUpper(req.Channel)),
		Areas:       req.Areas,
		ExpiresAt:   req.ExpiresAt,
		Draft:       req.Draft,
	}, req.CreatedBy)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAlertResponse(created))
}

func (h *Handler) listAlerts(c *gin.Context) {
	filter := repository.AlertFilter{
		Limit:  20, // default page size when limit param not supplied
		Search: c.Query("search"),
	}

	if s := c.Query("status"); s != "" {
		status := models.AlertStatus(strings.ToUpper(s))
		if status.Valid() {
			filter.Status = &status
		}
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}
	if o := c.Query("offset"); o != "" {
		if off, err := strconv.Atoi(o); err == nil && off >= 0 {
			filter.Offset = off
		}
	}

	alerts, err := h.db.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"alerts": toAlertList(alerts),
		"count":  len(alerts),
	})
}

func (h *Handler) getAlert(c *gin.Context) {
	a, err := h.db.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAlertResponse(a))
}

type submitRequest struct {
	ActorID         string `json:"actorId"`
	ExpectedVersion string `json:"expectedVersion"`
}

func (h *Handler) submitAlert(c *gin.Context) {
	var req submitRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	a, err := h.coord.Submit(c.Request.Context(), c.Param("id"), req.ActorID, req.ExpectedVersion)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAlertResponse(a))
}

type approveRequest struct {
	ApproverID      string `json:"approverId"`
	ExpectedVersion string `json:"expectedVersion"`
}

func (h *Handler) approveAlert(c *gin.Context) {
	var req approveRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	a, err := h.coord.Approve(c.Request.Context(), c.Param("id"), req.ApproverID, req.ExpectedVersion)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAlertResponse(a))
}

type rejectRequest struct {
	ApproverID      string `json:"approverId"`
	Reason          string `json:"reason"`
	ExpectedVersion string `json:"expectedVersion"`
}

func (h *Handler) rejectAlert(c *gin.Context) {
	var req rejectRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	a, err := h.coord.Reject(c.Request.Context(), c.Param("id"), req.ApproverID, req.Reason, req.ExpectedVersion)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAlertResponse(a))
}

type cancelRequest struct {
	ActorID         string `json:"actorId"`
	ExpectedVersion string `json:"expectedVersion"`
}

func (h *Handler) cancelAlert(c *gin.Context) {
	var req cancelRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	a, err := h.coord.Cancel(c.Request.Context(), c.Param("id"), req.ActorID, req.ExpectedVersion)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAlertResponse(a))
}

type deliveredRequest struct {
	ExpectedVersion string `json:"expectedVersion"`
}

func (h *Handler) markDelivered(c *gin.Context) {
	var req deliveredRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	a, err := h.coord.MarkDelivered(c.Request.Context(), c.Param("id"), req.ExpectedVersion)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAlertResponse(a))
}

func (h *Handler) listAttempts(c *gin.Context) {
	attempts, err := h.reports.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"attempts": toAttemptList(attempts),
		"count":    len(attempts),
	})
}

func (h *Handler) consecutiveFailures(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.db.GetAlert(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	n, err := h.reports.ConsecutiveFailures(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"alertId":             id,
		"consecutiveFailures": n,
	})
}

type deliveryReportRequest struct {
	AlertID             string `json:"alertId"`
	Recipient           string `json:"recipient"`
	AttemptNumber       int    `json:"attemptNumber"`
	Outcome             string `json:"outcome"`
	FailureReason       string `json:"failureReason"`
	ProviderOperationID string `json:"providerOperationId"`
}

func (r deliveryReportRequest) toReport() delivery.Report {
	return delivery.Report{
		AlertID:             r.AlertID,
		Recipient:           r.Recipient,
		AttemptNumber:       r.AttemptNumber,
		Outcome:             models.DeliveryOutcome(strings.ToUpper(r.Outcome)),
		FailureReason:       r.FailureReason,
		ProviderOperationID: r.ProviderOperationID,
	}
}

func (h *Handler) recordReport(c *gin.Context) {
	var req deliveryReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, &alert.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	attempt, err := h.reports.Record(c.Request.Context(), req.toReport())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAttemptResponse(attempt))
}

func (h *Handler) enqueueReport(c *gin.Context) {
	var req deliveryReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, &alert.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	if err := h.reports.Enqueue(req.toReport()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *Handler) deliveryStats(c *gin.Context) {
	windowMinutes := 60
	if wm := c.Query("windowMinutes"); wm != "" {
		if n, err := strconv.Atoi(wm); err == nil && n > 0 && n <= 7*24*60 {
			windowMinutes = n
		}
	}

	stats, err := h.reports.Stats(c.Request.Context(), time.Duration(windowMinutes)*time.Minute)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, statsResponse{WindowMinutes: windowMinutes, DeliveryStats: stats})
}

type statsResponse struct {
	WindowMinutes int `json:"windowMinutes"`
	models.DeliveryStats
}

func (h *Handler) listEvents(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events, err := h.db.ListRecentEvents(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events": toEventList(events),
		"count":  len(events),
	})
}

// bindOptionalJSON decodes the body when one is present. Lifecycle verbs
// accept an empty body; required fields are enforced by the domain layer.
func bindOptionalJSON(c *gin.Context, out any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(out); err != nil {
		writeError(c, &alert.ValidationError{Field: "body", Reason: "malformed JSON"})
		return false
	}
	return true
}
