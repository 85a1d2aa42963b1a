// Deal HTTP handlers.
//
// This file exposes REST endpoints for curated deal resources:
//   - POST   /deals              (create)
//   - GET    /deals              (list, paginated, filtered, ETag support)
//   - GET    /deals/{id}         (detail, including price history)
//   - PATCH  /deals/{id}         (edit curation fields)
//   - DELETE /deals/{id}         (deactivate)
//   - POST   /deals/{id}/reactivate
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-deal-backend/internal/domain"
	"github.com/tbourn/go-deal-backend/internal/http/middleware"
	"github.com/tbourn/go-deal-backend/internal/repo"
	"github.com/tbourn/go-deal-backend/internal/services"
	"github.com/tbourn/go-deal-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// DealService defines deal curation operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type DealService interface {
	// Create validates and persists a manually curated deal.
	Create(ctx context.Context, in services.CreateDealInput) (*domain.Deal, error)
	// Get fetches a deal by id.
	Get(ctx context.Context, id string) (*domain.Deal, error)
	// History returns the full price history of a deal, oldest first.
	History(ctx context.Context, id string) ([]domain.PricePoint, error)
	// ListPage returns a page of deals matching the filter and the total count.
	ListPage(ctx context.Context, f repo.DealFilter, page, pageSize int) ([]domain.Deal, int64, error)
	// Update edits curation fields of an existing deal.
	Update(ctx context.Context, id string, in services.UpdateDealInput) (*domain.Deal, error)
	// Deactivate retires a deal from the dashboard and the refresh set.
	Deactivate(ctx context.Context, id string) error
	// Reactivate returns a deal to the active set and clears its failure count.
	Reactivate(ctx context.Context, id string) error
}

// RefreshService defines the price refresh operations exposed over HTTP.
type RefreshService interface {
	// Run refreshes every refreshable deal and reports per-deal outcomes.
	Run(ctx context.Context) (*services.RefreshReport, error)
	// RefreshOne refreshes a single deal on demand.
	RefreshOne(ctx context.Context, dealID string) (services.RefreshOutcome, error)
}

// AnalyticsService defines the read-only aggregates exposed over HTTP.
type AnalyticsService interface {
	// Summary aggregates the state of the curated list.
	Summary(ctx context.Context) (*services.Summary, error)
	// HistoricalLow returns the minimum price ever observed for a deal.
	HistoricalLow(ctx context.Context, dealID string) (decimal.Decimal, error)
	// StaleDeals returns deals whose last check is older than the configured cutoff.
	StaleDeals(ctx context.Context) ([]domain.Deal, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for deals, refresh, and analytics.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	dealSvc      DealService
	refreshSvc   RefreshService
	analyticsSvc AnalyticsService

	// IdempotencyTTL bounds how long a stored Idempotency-Key can be
	// replayed. Values <= 0 default to 24h.
	IdempotencyTTL time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(dealSvc DealService, refreshSvc RefreshService, analyticsSvc AnalyticsService) *Handlers {
	return &Handlers{dealSvc: dealSvc, refreshSvc: refreshSvc, analyticsSvc: analyticsSvc}
}

// userID extracts the authenticated curator id from Gin context (set by
// upstream middleware). If absent, it falls back to "X-User-ID" header (tests
// use it), and finally to "demo-curator". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-curator"
}

func (h *Handlers) idemTTL() time.Duration {
	if h.IdempotencyTTL <= 0 {
		return 24 * time.Hour
	}
	return h.IdempotencyTTL
}

//
// DTOs
//

// CreateDealRequest is the JSON payload for curating a new deal.
type CreateDealRequest struct {
	Retailer      string          `json:"retailer" binding:"required" example:"zalando"`
	ProductURL    string          `json:"product_url" binding:"required" example:"https://www.zalando.nl/p/wool-coat"`
	Title         string          `json:"title" binding:"required" example:"Wool coat"`
	Brand         string          `json:"brand" example:"Hugo Boss"`
	Category      string          `json:"category" example:"Jackets"`
	Gender        string          `json:"gender" example:"Men"`
	ImageURL      string          `json:"image_url"`
	AffiliateLink string          `json:"affiliate_link"`
	Notes         string          `json:"notes"`
	CurrentPrice  decimal.Decimal `json:"current_price" binding:"required"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	Currency      string          `json:"currency" example:"EUR"`
}

// UpdateDealRequest is the JSON payload for editing curation fields.
// Absent fields are left untouched.
type UpdateDealRequest struct {
	Title         *string          `json:"title"`
	Brand         *string          `json:"brand"`
	Category      *string          `json:"category"`
	Gender        *string          `json:"gender"`
	ImageURL      *string          `json:"image_url"`
	AffiliateLink *string          `json:"affiliate_link"`
	Notes         *string          `json:"notes"`
	OriginalPrice *decimal.Decimal `json:"original_price"`
}

// DealDetailResponse is the full deal view, including price history.
type DealDetailResponse struct {
	Deal            domain.Deal         `json:"deal"`
	DiscountPercent float64             `json:"discount_percent"`
	History         []domain.PricePoint `json:"history"`
	HistoricalLow   decimal.Decimal     `json:"historical_low"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListDealsResponse wraps a page of deals and pagination information.
type ListDealsResponse struct {
	Deals      []domain.Deal `json:"deals"`
	Pagination Pagination    `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// listFilter parses the list query params into a repo filter.
func listFilter(c *gin.Context) (repo.DealFilter, error) {
	f := repo.DealFilter{
		Retailer: strings.TrimSpace(c.Query("retailer")),
		SortBy:   strings.TrimSpace(c.Query("sort")),
	}
	if s := strings.TrimSpace(c.Query("status")); s != "" {
		switch st := domain.DealStatus(s); st {
		case domain.StatusActive, domain.StatusInactive, domain.StatusOutOfStock, domain.StatusBrokenLink:
			f.Status = st
		default:
			return f, fmt.Errorf("unknown status %q", s)
		}
	}
	if md := strings.TrimSpace(c.Query("min_discount")); md != "" {
		v, err := strconv.ParseFloat(md, 64)
		if err != nil || v < 0 || v > 100 {
			return f, fmt.Errorf("min_discount must be a number in [0,100]")
		}
		f.MinDiscount = v
	}
	switch f.SortBy {
	case "", "discount", "price", "created":
	default:
		return f, fmt.Errorf("sort must be one of: discount, price, created")
	}
	return f, nil
}

//
// Handlers
//

// CreateDeal handles POST /deals. On success the created deal is returned
// with 201. When the client supplies an Idempotency-Key header and a previous
// successful submission exists for (user, key), the handler replays the
// originally created deal and sets `Idempotency-Replayed: true`.
func (h *Handlers) CreateDeal(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	currentUser := userID(c)

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey == "" {
		idemKey = strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
	}
	if idemKey != "" {
		if svc, okSvc := h.dealSvc.(*services.DealService); okSvc && svc.DB != nil {
			if rec, err := repo.GetIdempotency(ctx, svc.DB, currentUser, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := h.dealSvc.Get(ctx, rec.DealID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusOK, prev)
					return
				}
			}
		}
	}

	d, err := h.dealSvc.Create(ctx, services.CreateDealInput{
		Retailer:      req.Retailer,
		ProductURL:    req.ProductURL,
		Title:         req.Title,
		Brand:         req.Brand,
		Category:      req.Category,
		Gender:        req.Gender,
		ImageURL:      req.ImageURL,
		AffiliateLink: req.AffiliateLink,
		Notes:         req.Notes,
		CurrentPrice:  req.CurrentPrice,
		OriginalPrice: req.OriginalPrice,
		Currency:      req.Currency,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDuplicateDeal):
			fail(c, http.StatusConflict, ErrCodeConflict, "a deal for this product URL already exists")
		case errors.Is(err, services.ErrUnknownRetailer),
			errors.Is(err, services.ErrInvalidURL),
			errors.Is(err, services.ErrInvalidPrice),
			errors.Is(err, services.ErrMissingTitle):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if svc, okSvc := h.dealSvc.(*services.DealService); okSvc && svc.DB != nil {
			_, _ = repo.CreateIdempotency(ctx, svc.DB, currentUser, idemKey, d.ID, http.StatusCreated, h.idemTTL())
		}
	}

	ok(c, http.StatusCreated, d)
}

// ListDeals handles GET /deals. It supports retailer/status/min_discount
// filters, discount/price/created sorting, pagination, and a weak ETag so
// dashboard polling can short-circuit with 304.
func (h *Handlers) ListDeals(c *gin.Context) {
	ctx := c.Request.Context()

	f, err := listFilter(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.dealSvc.(*services.DealService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.DealsStats(ctx, db, f)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"deals:%s:%s:%v:%d:%d"`, f.Retailer, f.Status, f.MinDiscount, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	// Fetch page.
	items, total, err := h.dealSvc.ListPage(ctx, f, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	resp := ListDealsResponse{
		Deals: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
	ok(c, http.StatusOK, resp)
}

// GetDeal handles GET /deals/{id}. The detail view bundles the deal, its
// derived discount, the full price history, and the historical low.
func (h *Handlers) GetDeal(c *gin.Context) {
	dealID := c.Param("id")
	if _, err := uuid.Parse(dealID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "deal id must be a UUID")
		return
	}
	ctx := c.Request.Context()

	d, err := h.dealSvc.Get(ctx, dealID)
	if err != nil {
		if errors.Is(err, services.ErrDealNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "deal not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	history, err := h.dealSvc.History(ctx, dealID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	low, err := h.analyticsSvc.HistoricalLow(ctx, dealID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	ok(c, http.StatusOK, DealDetailResponse{
		Deal:            *d,
		DiscountPercent: d.DiscountPercent(),
		History:         history,
		HistoricalLow:   low,
	})
}

// UpdateDeal handles PATCH /deals/{id}. Only curation fields may be edited;
// price fields belong to the refresh pipeline.
func (h *Handlers) UpdateDeal(c *gin.Context) {
	dealID := c.Param("id")
	if _, err := uuid.Parse(dealID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "deal id must be a UUID")
		return
	}

	var req UpdateDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	d, err := h.dealSvc.Update(c.Request.Context(), dealID, services.UpdateDealInput{
		Title:         req.Title,
		Brand:         req.Brand,
		Category:      req.Category,
		Gender:        req.Gender,
		ImageURL:      req.ImageURL,
		AffiliateLink: req.AffiliateLink,
		Notes:         req.Notes,
		OriginalPrice: req.OriginalPrice,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDealNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "deal not found")
		case errors.Is(err, services.ErrMissingTitle), errors.Is(err, services.ErrInvalidPrice):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, d)
}

// DeactivateDeal handles DELETE /deals/{id}. Deals are soft-retired, never
// physically removed, so history stays available for analytics.
func (h *Handlers) DeactivateDeal(c *gin.Context) {
	dealID := c.Param("id")
	if _, err := uuid.Parse(dealID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "deal id must be a UUID")
		return
	}

	if err := h.dealSvc.Deactivate(c.Request.Context(), dealID); err != nil {
		if errors.Is(err, services.ErrDealNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "deal not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, err.Error())
		return
	}
	noContent(c)
}

// ReactivateDeal handles POST /deals/{id}/reactivate. It is the manual
// recovery path for broken links: the failure counter is reset and the deal
// re-enters the refresh set.
func (h *Handlers) ReactivateDeal(c *gin.Context) {
	dealID := c.Param("id")
	if _, err := uuid.Parse(dealID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "deal id must be a UUID")
		return
	}

	if err := h.dealSvc.Reactivate(c.Request.Context(), dealID); err != nil {
		if errors.Is(err, services.ErrDealNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "deal not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, err.Error())
		return
	}
	noContent(c)
}
