// Refresh HTTP handlers.
//
// This file exposes the on-demand entry points into the price refresh
// pipeline:
//   - POST /refresh              (refresh every refreshable deal)
//   - POST /deals/{id}/refresh   (refresh a single deal)
//
// The scheduler runs the same pipeline periodically; these endpoints exist so
// curators can force a check without waiting for the next tick.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-deal-backend/internal/services"
)

// RefreshOneResponse reports the outcome of a single-deal refresh.
type RefreshOneResponse struct {
	DealID  string                  `json:"deal_id"`
	Outcome services.RefreshOutcome `json:"outcome"`
}

// RunRefresh handles POST /refresh. It blocks until the run completes and
// returns the per-deal outcome report. Individual deal failures are part of
// the report, not an error: only a failure to enumerate the refresh set
// yields a 5xx.
func (h *Handlers) RunRefresh(c *gin.Context) {
	report, err := h.refreshSvc.Run(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeRefreshFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, report)
}

// RefreshDeal handles POST /deals/{id}/refresh.
func (h *Handlers) RefreshDeal(c *gin.Context) {
	dealID := c.Param("id")
	if _, err := uuid.Parse(dealID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "deal id must be a UUID")
		return
	}

	outcome, err := h.refreshSvc.RefreshOne(c.Request.Context(), dealID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDealNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "deal not found")
		case errors.Is(err, services.ErrNotRefreshable):
			fail(c, http.StatusConflict, ErrCodeNotRefreshable, "deal is not in a refreshable state")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeRefreshFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, RefreshOneResponse{DealID: dealID, Outcome: outcome})
}
