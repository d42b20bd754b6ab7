package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/alertwise/go-emergency-alerts/internal/alert"
	"github.com/alertwise/go-emergency-alerts/internal/models"
	"github.com/alertwise/go-emergency-alerts/internal/reaction"
)

// detectionRequest is the shared body shape for all pattern webhooks;
// each pattern reads the fields that apply to it and the dispatcher
// rejects what is missing. Success returns 200 with no body, including
// for re-deliveries the dispatcher deduplicates.
type detectionRequest struct {
	AlertIDs      []string `json:"alertIds"`
	RegionCode    string   `json:"regionCode"`
	RegionCodes   []string `json:"regionCodes"`
	Severity      string   `json:"severity"`
	Headline      string   `json:"headline"`
	WindowSeconds int      `json:"windowSeconds"`
	Metadata      string   `json:"metadata"`
}

var webhookRoutes = []struct {
	path    string
	pattern models.PatternType
}{
	{"geographic-cluster", models.PatternGeographicCluster},
	{"regional-hotspot", models.PatternRegionalHotspot},
	{"severity-escalation", models.PatternSeverityEscalation},
	{"duplicate-suppression", models.PatternDuplicateSuppression},
	{"area-expansion", models.PatternAreaExpansion},
	{"sla-breach", models.PatternSLABreach},
	{"approval-timeout", models.PatternApprovalTimeout},
	{"expiry-warning", models.PatternExpiryWarning},
	{"retry-storm", models.PatternRetryStorm},
	{"sla-countdown", models.PatternSLACountdown},
	{"all-clear", models.PatternAllClear},
	{"rate-spike", models.PatternRateSpike},
	{"approver-workload", models.PatternApproverWorkload},
	{"delivery-success-rate", models.PatternDeliverySuccessRate},
}

func (h *Handler) registerWebhooks(g *gin.RouterGroup) {
	hooks := g.Group("/webhooks")
	for _, route := range webhookRoutes {
		hooks.POST("/"+route.path, h.webhook(route.pattern))
	}
}

func (h *Handler) webhook(pattern models.PatternType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req detectionRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				writeError(c, &alert.ValidationError{Field: "body", Reason: "malformed JSON"})
				return
			}
		}

		_, err := h.dispatch.Dispatch(c.Request.Context(), reaction.Detection{
			Pattern:       pattern,
			AlertIDs:      req.AlertIDs,
			RegionCode:    req.RegionCode,
			RegionCodes:   req.RegionCodes,
			Severity:      models.Severity(strings.ToUpper(req.Severity)),
			Headline:      req.Headline,
			WindowSeconds: req.WindowSeconds,
			Metadata:      req.Metadata,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusOK)
	}
}
