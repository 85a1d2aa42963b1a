// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Deal model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a deal is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// This repository is designed to be wrapped by higher-level services
// (see services.DealService and services.RefreshService) which enforce
// business rules such as the single-updater discipline per deal.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-deal-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// DealFilter narrows deal listings. Zero values mean "no constraint".
type DealFilter struct {
	// Retailer restricts results to a single retailer key.
	Retailer string
	// Status restricts results to a single lifecycle state.
	Status domain.DealStatus
	// MinDiscount keeps only deals whose stored prices imply at least this
	// discount percentage (0-100).
	MinDiscount float64
	// SortBy orders results: "discount", "price", or "" / "created" for
	// newest first.
	SortBy string
}

// CreateDeal inserts a fully populated Deal row. The caller (service layer)
// is responsible for assigning the ID and timestamps. On failure, it returns
// the raw DB error, including UNIQUE violations for duplicate product URLs.
func CreateDeal(ctx context.Context, db *gorm.DB, d *domain.Deal) error {
	return db.WithContext(ctx).Create(d).Error
}

// GetDeal fetches a single deal by its ID, or ErrNotFound if missing.
func GetDeal(ctx context.Context, db *gorm.DB, id string) (*domain.Deal, error) {
	var d domain.Deal
	if err := db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// ListRefreshableDeals returns every deal eligible for an automatic refresh
// run, ordered by last_checked ascending so the stalest deals go first.
func ListRefreshableDeals(ctx context.Context, db *gorm.DB) ([]domain.Deal, error) {
	var out []domain.Deal
	err := db.WithContext(ctx).
		Where("status IN ?", domain.RefreshedStatuses).
		Order("last_checked asc").
		Find(&out).Error
	return out, err
}

// CountDeals returns the number of deals matching the filter.
func CountDeals(ctx context.Context, db *gorm.DB, f DealFilter) (int64, error) {
	var total int64
	err := dealQuery(db.WithContext(ctx), f).Model(&domain.Deal{}).Count(&total).Error
	return total, err
}

// ListDealsPage returns a paginated slice of deals matching the filter,
// ordered according to f.SortBy. Use CountDeals to obtain the total for
// pagination metadata.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListDealsPage(ctx context.Context, db *gorm.DB, f DealFilter, offset, limit int) ([]domain.Deal, error) {
	var out []domain.Deal
	q := dealQuery(db.WithContext(ctx), f)
	switch f.SortBy {
	case "discount":
		// Discount ratio derived in SQL so ordering happens in the store.
		q = q.Order("CASE WHEN original_price > current_price THEN (original_price - current_price) / original_price ELSE 0 END DESC")
	case "price":
		q = q.Order("current_price asc")
	default:
		q = q.Order("created_at desc")
	}
	err := q.Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// UpdateDealFields applies a partial update to a deal identified by id.
// If no rows are affected (deal missing), it returns ErrNotFound.
//
// This is the single serialized write path used by both curation and refresh;
// each call maps to one UPDATE statement, so a deal can never be observed in
// a half-updated state.
func UpdateDealFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Deal{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListStaleDeals returns deals whose last_checked is before the cutoff,
// regardless of status. Deals that were never checked sort first.
func ListStaleDeals(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]domain.Deal, error) {
	var out []domain.Deal
	err := db.WithContext(ctx).
		Where("last_checked < ?", cutoff).
		Order("last_checked asc").
		Find(&out).Error
	return out, err
}

// dealQuery composes the WHERE clauses shared by CountDeals and ListDealsPage.
func dealQuery(q *gorm.DB, f DealFilter) *gorm.DB {
	if f.Retailer != "" {
		q = q.Where("retailer = ?", f.Retailer)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.MinDiscount > 0 {
		q = q.Where("original_price > current_price AND (original_price - current_price) / original_price >= ?", f.MinDiscount/100)
	}
	return q
}
