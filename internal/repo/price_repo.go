// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the append-only
// PricePoint history of a deal.
package repo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-deal-backend/internal/domain"
)

// AppendPricePoint inserts a new history row for dealID. History is strictly
// append-only; rows are never updated or deleted.
func AppendPricePoint(ctx context.Context, db *gorm.DB, dealID string, price decimal.Decimal, at time.Time) (*domain.PricePoint, error) {
	p := &domain.PricePoint{
		DealID:    dealID,
		Price:     price,
		CheckedAt: at,
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// ListPriceHistory returns the full history for a deal ordered by CheckedAt
// ascending (oldest first). It returns an empty slice for unknown deals.
func ListPriceHistory(ctx context.Context, db *gorm.DB, dealID string) ([]domain.PricePoint, error) {
	var out []domain.PricePoint
	err := db.WithContext(ctx).
		Where("deal_id = ?", dealID).
		Order("checked_at asc").
		Find(&out).Error
	return out, err
}

// LatestPricePoint returns the most recent history row for a deal, or
// ErrNotFound when the deal has no history.
func LatestPricePoint(ctx context.Context, db *gorm.DB, dealID string) (*domain.PricePoint, error) {
	var p domain.PricePoint
	err := db.WithContext(ctx).
		Where("deal_id = ?", dealID).
		Order("checked_at desc").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// HistoricalLow returns the minimum observed price for a deal, or ErrNotFound
// when the deal has no history.
func HistoricalLow(ctx context.Context, db *gorm.DB, dealID string) (decimal.Decimal, error) {
	var p domain.PricePoint
	err := db.WithContext(ctx).
		Where("deal_id = ?", dealID).
		Order("price asc").
		First(&p).Error
	if err != nil {
		return decimal.Zero, err
	}
	return p.Price, nil
}
