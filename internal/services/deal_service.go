// Package services – DealService
//
// This file implements the DealService, which owns the manual-curation side
// of the deal store: creating deals, editing descriptive metadata, and the
// activate/deactivate lifecycle. Price fields are deliberately out of its
// reach; only the RefreshService mutates those, which keeps the two update
// paths serialized per record.
//
// Service-level errors (e.g., ErrDealNotFound, ErrDuplicateDeal) are returned
// for predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-deal-backend/internal/domain"
	"github.com/tbourn/go-deal-backend/internal/fetch"
	"github.com/tbourn/go-deal-backend/internal/repo"
)

// DealService provides curation operations over the deal store.
type DealService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// Now supplies the current time; defaults to time.Now when nil.
	// Injected for deterministic tests.
	Now func() time.Time
}

// NewDealService constructs a DealService.
func NewDealService(db *gorm.DB) *DealService {
	return &DealService{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

// CreateDealInput carries the fields of a manual curation form.
type CreateDealInput struct {
	Retailer      string
	ProductURL    string
	Title         string
	Brand         string
	Category      string
	Gender        string
	ImageURL      string
	AffiliateLink string
	Notes         string
	CurrentPrice  decimal.Decimal
	OriginalPrice decimal.Decimal // zero when unknown
	Currency      string
}

// UpdateDealInput carries optional curation edits. Nil fields are untouched.
type UpdateDealInput struct {
	Title         *string
	Brand         *string
	Category      *string
	Gender        *string
	ImageURL      *string
	AffiliateLink *string
	Notes         *string
	OriginalPrice *decimal.Decimal
}

// Create validates and persists a manually curated deal, seeding its price
// history with the curated price so the history invariant (current price ==
// last history entry) holds from the first row on.
//
// Validation:
//   - retailer must be one of the supported set (fetch.NormalizeRetailer)
//   - product URL must be absolute http(s) and not curated before
//   - current price must be positive; original price, when given, must not
//     be below the current price
//   - title is required
func (s *DealService) Create(ctx context.Context, in CreateDealInput) (*domain.Deal, error) {
	retailer, ok := fetch.NormalizeRetailer(in.Retailer)
	if !ok {
		return nil, ErrUnknownRetailer
	}
	if err := validateProductURL(in.ProductURL); err != nil {
		return nil, err
	}
	title := normalizeText(in.Title)
	if title == "" {
		return nil, ErrMissingTitle
	}
	if in.CurrentPrice.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidPrice
	}
	if !in.OriginalPrice.IsZero() && in.OriginalPrice.LessThan(in.CurrentPrice) {
		return nil, ErrInvalidPrice
	}

	now := s.now()
	d := &domain.Deal{
		ID:            uuid.NewString(),
		Retailer:      retailer,
		ProductURL:    strings.TrimSpace(in.ProductURL),
		Title:         title,
		Brand:         normalizeText(in.Brand),
		Category:      defaultText(in.Category, "Fashion"),
		Gender:        defaultText(in.Gender, "Unisex"),
		ImageURL:      strings.TrimSpace(in.ImageURL),
		AffiliateLink: strings.TrimSpace(in.AffiliateLink),
		Notes:         strings.TrimSpace(in.Notes),
		CurrentPrice:  in.CurrentPrice,
		OriginalPrice: in.OriginalPrice,
		Currency:      fetch.NormalizeCurrency(in.Currency),
		Status:        domain.StatusActive,
		LastChecked:   now,
		CreatedAt:     now,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateDeal(ctx, tx, d); err != nil {
			if isDuplicate(err) {
				return ErrDuplicateDeal
			}
			return err
		}
		_, err := repo.AppendPricePoint(ctx, tx, d.ID, d.CurrentPrice, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Get fetches a deal by id, or ErrDealNotFound.
func (s *DealService) Get(ctx context.Context, id string) (*domain.Deal, error) {
	d, err := repo.GetDeal(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, err
	}
	return d, nil
}

// History returns the full price history for a deal, oldest first.
func (s *DealService) History(ctx context.Context, id string) ([]domain.PricePoint, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return repo.ListPriceHistory(ctx, s.DB, id)
}

// ListPage returns a page of deals matching the filter and the total count.
// It applies defaults for invalid page/pageSize.
func (s *DealService) ListPage(ctx context.Context, f repo.DealFilter, page, pageSize int) ([]domain.Deal, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountDeals(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Deal{}, 0, nil
	}

	items, err := repo.ListDealsPage(ctx, s.DB, f, offset, pageSize)
	return items, total, err
}

// Update applies curation edits to descriptive fields. Price fields other
// than the original (reference) price are owned by the refresh pipeline and
// cannot be edited here.
func (s *DealService) Update(ctx context.Context, id string, in UpdateDealInput) (*domain.Deal, error) {
	fields := map[string]any{}
	if in.Title != nil {
		t := normalizeText(*in.Title)
		if t == "" {
			return nil, ErrMissingTitle
		}
		fields["title"] = t
	}
	if in.Brand != nil {
		fields["brand"] = normalizeText(*in.Brand)
	}
	if in.Category != nil {
		fields["category"] = defaultText(*in.Category, "Fashion")
	}
	if in.Gender != nil {
		fields["gender"] = defaultText(*in.Gender, "Unisex")
	}
	if in.ImageURL != nil {
		fields["image_url"] = strings.TrimSpace(*in.ImageURL)
	}
	if in.AffiliateLink != nil {
		fields["affiliate_link"] = strings.TrimSpace(*in.AffiliateLink)
	}
	if in.Notes != nil {
		fields["notes"] = strings.TrimSpace(*in.Notes)
	}
	if in.OriginalPrice != nil {
		if in.OriginalPrice.IsNegative() {
			return nil, ErrInvalidPrice
		}
		fields["original_price"] = *in.OriginalPrice
	}
	if len(fields) == 0 {
		return s.Get(ctx, id)
	}

	if err := repo.UpdateDealFields(ctx, s.DB, id, fields); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// Deactivate retires a deal from the dashboard and from refresh runs. The
// record and its history are retained for analytics.
func (s *DealService) Deactivate(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, domain.StatusInactive, false)
}

// Reactivate puts a deal back into the active set. This is also the manual
// recovery path for broken-link deals: the failure counter is reset so the
// deal gets a clean run of attempts.
func (s *DealService) Reactivate(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, domain.StatusActive, true)
}

func (s *DealService) setStatus(ctx context.Context, id string, status domain.DealStatus, resetFailures bool) error {
	fields := map[string]any{"status": status}
	if resetFailures {
		fields["failure_count"] = 0
	}
	if err := repo.UpdateDealFields(ctx, s.DB, id, fields); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrDealNotFound
		}
		return err
	}
	return nil
}

func (s *DealService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// validateProductURL accepts absolute http(s) URLs only.
func validateProductURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// normalizeText trims whitespace and collapses runs of it to one space.
func normalizeText(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// defaultText normalizes s, substituting def when the result is empty.
func defaultText(s, def string) string {
	if t := normalizeText(s); t != "" {
		return t
	}
	return def
}

// isDuplicate attempts to detect unique-constraint violations across drivers
// that may not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite typically: "UNIQUE constraint failed"
	// Postgres typically: "duplicate key value violates unique constraint"
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
