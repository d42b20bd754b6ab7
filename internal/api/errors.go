package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alertwise/go-emergency-alerts/internal/alert"
	"github.com/alertwise/go-emergency-alerts/internal/delivery"
	"github.com/alertwise/go-emergency-alerts/internal/repository"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError maps domain failures onto HTTP statuses and stable machine
// codes. Anything unrecognized is reported as internal without leaking
// detail.
func writeError(c *gin.Context, err error) {
	var (
		verr *alert.ValidationError
		perr *alert.PolygonError
		terr *alert.TransitionError
	)

	switch {
	case errors.As(err, &perr):
		c.JSON(http.StatusBadRequest, errorResponse{Error: perr.Error(), Code: "invalid_polygon"})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, errorResponse{Error: verr.Error(), Code: "validation_error"})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_found"})
	case errors.As(err, &terr):
		c.JSON(http.StatusConflict, errorResponse{Error: terr.Error(), Code: "invalid_state_transition"})
	case errors.Is(err, repository.ErrVersionMismatch):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error(), Code: "concurrent_modification"})
	case errors.Is(err, delivery.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Code: "upstream_unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
	}
}
