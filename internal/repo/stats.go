// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer and for the analytics view. Each function is context-aware and safe
// to call from services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-deal-backend/internal/domain"
)

// DealsStats returns aggregate metadata for the deal table scoped by the
// filter: the total number of rows and the maximum UpdatedAt timestamp among
// those rows. When no deals match, the returned count is 0 and maxUpdatedAt
// is nil.
//
// Return values:
//   - count:        total deals matching the filter
//   - maxUpdatedAt: pointer to the greatest UpdatedAt, or nil if no rows
//   - err:          database error, if any
func DealsStats(ctx context.Context, db *gorm.DB, f DealFilter) (count int64, maxUpdatedAt *time.Time, err error) {
	q := dealQuery(db.WithContext(ctx).Model(&domain.Deal{}), f)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// StatusCounts returns the number of deals per lifecycle state. States with
// no deals are present in the map with a zero value.
func StatusCounts(ctx context.Context, db *gorm.DB) (map[domain.DealStatus]int64, error) {
	out := map[domain.DealStatus]int64{
		domain.StatusActive:     0,
		domain.StatusInactive:   0,
		domain.StatusOutOfStock: 0,
		domain.StatusBrokenLink: 0,
	}

	var rows []struct {
		Status domain.DealStatus
		N      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Deal{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
