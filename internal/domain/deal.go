// Package domain defines the persistence models for curated deals and their
// price history. These types are mapped with GORM and form the core data
// layer of the deal dashboard backend.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DealStatus enumerates the lifecycle states of a curated deal.
type DealStatus string

const (
	// StatusActive marks a deal that is live on the dashboard and included
	// in automatic price refresh runs.
	StatusActive DealStatus = "active"

	// StatusInactive marks a deal that a curator retired manually. Inactive
	// deals are kept for historical analytics and skipped by refresh runs.
	StatusInactive DealStatus = "inactive"

	// StatusOutOfStock marks a deal whose product page reports the item as
	// sold out. The deal stays in the refresh set so it can recover.
	StatusOutOfStock DealStatus = "out_of_stock"

	// StatusBrokenLink marks a deal whose page failed to yield a price for
	// a configured number of consecutive runs. Broken deals are excluded
	// from automatic refresh until a curator re-activates them.
	StatusBrokenLink DealStatus = "broken_link"
)

// RefreshedStatuses lists the states eligible for automatic price refresh.
var RefreshedStatuses = []DealStatus{StatusActive, StatusOutOfStock}

// Deal represents a manually curated product/price pairing tracked for
// discount monitoring. Curators create deals through the dashboard; the
// refresh pipeline is the only automated mutator of its price fields.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Retailer: normalized key of the Dutch retailer (e.g. "zalando").
//   - ProductURL: source of truth for re-fetching; unique per deal.
//   - CurrentPrice: always equals the most recent PricePoint of the deal.
//   - OriginalPrice: the pre-discount price, zero when unknown.
//   - FailureCount: consecutive failed fetch attempts since the last success.
//   - LastChecked: time of the most recent fetch attempt, successful or not.
//   - DeletedAt: soft deletion marker; deals are never physically removed.
type Deal struct {
	ID            string          `json:"id"             gorm:"type:char(36);primaryKey"`
	Retailer      string          `json:"retailer"       gorm:"type:varchar(64);not null;index:idx_deal_retailer"`
	ProductURL    string          `json:"product_url"    gorm:"type:varchar(2048);not null;uniqueIndex:ux_deal_url"`
	Title         string          `json:"title"          gorm:"type:varchar(255);not null"`
	Brand         string          `json:"brand"          gorm:"type:varchar(128)"`
	Category      string          `json:"category"       gorm:"type:varchar(64);default:'Fashion'"`
	Gender        string          `json:"gender"         gorm:"type:varchar(16);default:'Unisex'"`
	ImageURL      string          `json:"image_url,omitempty"      gorm:"type:varchar(2048)"`
	AffiliateLink string          `json:"affiliate_link,omitempty" gorm:"type:varchar(2048)"`
	Notes         string          `json:"notes,omitempty"          gorm:"type:text"`
	CurrentPrice  decimal.Decimal `json:"current_price"  gorm:"type:NUMERIC;not null"`
	OriginalPrice decimal.Decimal `json:"original_price" gorm:"type:NUMERIC;not null;default:0"`
	Currency      string          `json:"currency"       gorm:"type:char(3);not null;default:'EUR'"`
	FailureCount  int             `json:"failure_count"  gorm:"type:INTEGER;not null;default:0"`
	LastChecked   time.Time       `json:"last_checked"   gorm:"type:DATETIME"`
	Status        DealStatus      `json:"status"         gorm:"type:varchar(16);not null;default:'active';index:idx_deal_status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `json:"-"              gorm:"index"`
}

// TableName returns the database table name for Deal.
func (Deal) TableName() string { return "deals" }

// DiscountPercent computes the relative discount of the deal as a percentage
// in [0,100], derived from OriginalPrice and CurrentPrice. It returns zero
// when no original price is known or when the deal is not discounted.
func (d Deal) DiscountPercent() float64 {
	if d.OriginalPrice.IsZero() || d.OriginalPrice.LessThanOrEqual(d.CurrentPrice) {
		return 0
	}
	diff := d.OriginalPrice.Sub(d.CurrentPrice)
	pct, _ := diff.Div(d.OriginalPrice).Mul(decimal.NewFromInt(100)).Round(1).Float64()
	return pct
}

// Refreshable reports whether the deal participates in automatic refresh runs.
func (d Deal) Refreshable() bool {
	for _, s := range RefreshedStatuses {
		if d.Status == s {
			return true
		}
	}
	return false
}

// PricePoint is a single observation in a deal's append-only price history.
// History rows are only ever inserted: one at curation time and one per
// refresh run that detected a changed price. CheckedAt values are strictly
// increasing per deal.
type PricePoint struct {
	ID        uint            `json:"-"          gorm:"primaryKey;autoIncrement"`
	DealID    string          `json:"-"          gorm:"type:char(36);not null;index:idx_price_deal_time,priority:1"`
	Price     decimal.Decimal `json:"price"      gorm:"type:NUMERIC;not null"`
	CheckedAt time.Time       `json:"checked_at" gorm:"type:DATETIME;not null;index:idx_price_deal_time,priority:2"`
}

// TableName returns the database table name for PricePoint.
func (PricePoint) TableName() string { return "price_points" }
