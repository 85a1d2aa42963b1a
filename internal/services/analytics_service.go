// Package services – AnalyticsService
//
// This file implements the read-only analytics view over the deal store.
// Every method is a pure derivation from the current record set: no caching,
// no mutation, recomputed on each read. The expected data volume (a manually
// curated list) makes that trade-off a non-issue.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-deal-backend/internal/domain"
	"github.com/tbourn/go-deal-backend/internal/repo"
)

// AnalyticsService derives aggregates from the deal store.
type AnalyticsService struct {
	// DB is the GORM handle used for reads.
	DB *gorm.DB

	// StaleAfter is how old a deal's last_checked may be before it counts
	// as stale. Values <= 0 default to 24h.
	StaleAfter time.Duration

	// Now supplies the current time; defaults to time.Now when nil.
	Now func() time.Time
}

// NewAnalyticsService constructs an AnalyticsService.
func NewAnalyticsService(db *gorm.DB, staleAfter time.Duration) *AnalyticsService {
	return &AnalyticsService{
		DB:         db,
		StaleAfter: staleAfter,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// Summary aggregates the state of the curated list.
type Summary struct {
	ActiveDeals     int64 `json:"active_deals"`
	InactiveDeals   int64 `json:"inactive_deals"`
	OutOfStockDeals int64 `json:"out_of_stock_deals"`
	BrokenDeals     int64 `json:"broken_deals"`

	// AverageDiscountPercent averages DiscountPercent over active deals
	// (deals without a known original price contribute zero).
	AverageDiscountPercent float64 `json:"average_discount_percent"`

	// TotalSavings sums (original - current) over active discounted deals.
	TotalSavings decimal.Decimal `json:"total_savings"`
}

// Summary computes the aggregate statistics over the current record set.
func (s *AnalyticsService) Summary(ctx context.Context) (*Summary, error) {
	counts, err := repo.StatusCounts(ctx, s.DB)
	if err != nil {
		return nil, err
	}

	out := &Summary{
		ActiveDeals:     counts[domain.StatusActive],
		InactiveDeals:   counts[domain.StatusInactive],
		OutOfStockDeals: counts[domain.StatusOutOfStock],
		BrokenDeals:     counts[domain.StatusBrokenLink],
		TotalSavings:    decimal.Zero,
	}

	active, err := repo.ListDealsPage(ctx, s.DB, repo.DealFilter{Status: domain.StatusActive}, 0, int(out.ActiveDeals))
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return out, nil
	}

	var discountSum float64
	for _, d := range active {
		discountSum += d.DiscountPercent()
		if !d.OriginalPrice.IsZero() && d.OriginalPrice.GreaterThan(d.CurrentPrice) {
			out.TotalSavings = out.TotalSavings.Add(d.OriginalPrice.Sub(d.CurrentPrice))
		}
	}
	out.AverageDiscountPercent = discountSum / float64(len(active))
	return out, nil
}

// HistoricalLow returns the minimum price ever observed for a deal. Deals
// always carry at least one history row (seeded at curation), so a missing
// low means the deal itself is unknown.
func (s *AnalyticsService) HistoricalLow(ctx context.Context, dealID string) (decimal.Decimal, error) {
	low, err := repo.HistoricalLow(ctx, s.DB, dealID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return decimal.Zero, ErrDealNotFound
		}
		return decimal.Zero, err
	}
	return low, nil
}

// StaleDeals returns deals whose last check is older than StaleAfter,
// stalest first. The dashboard uses this to surface deals that the
// scheduler has not reached (e.g., after downtime).
func (s *AnalyticsService) StaleDeals(ctx context.Context) ([]domain.Deal, error) {
	cutoff := s.now().Add(-s.staleAfter())
	return repo.ListStaleDeals(ctx, s.DB, cutoff)
}

func (s *AnalyticsService) staleAfter() time.Duration {
	if s.StaleAfter <= 0 {
		return 24 * time.Hour
	}
	return s.StaleAfter
}

func (s *AnalyticsService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
