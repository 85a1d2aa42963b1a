// Analytics HTTP handlers.
//
//   - GET /analytics/summary   (aggregate stats over the curated list)
//   - GET /deals/stale         (deals the scheduler has not reached recently)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-deal-backend/internal/domain"
)

// StaleDealsResponse wraps the stale subset of the curated list.
type StaleDealsResponse struct {
	Deals []domain.Deal `json:"deals"`
	Count int           `json:"count"`
}

// AnalyticsSummary handles GET /analytics/summary.
func (h *Handlers) AnalyticsSummary(c *gin.Context) {
	sum, err := h.analyticsSvc.Summary(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, sum)
}

// StaleDeals handles GET /deals/stale. Stalest deals come first so the
// dashboard can surface the ones most in need of a check.
func (h *Handlers) StaleDeals(c *gin.Context) {
	deals, err := h.analyticsSvc.StaleDeals(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, StaleDealsResponse{Deals: deals, Count: len(deals)})
}
