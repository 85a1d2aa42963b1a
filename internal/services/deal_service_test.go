package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-deal-backend/internal/domain"
	"github.com/tbourn/go-deal-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func validInput() CreateDealInput {
	return CreateDealInput{
		Retailer:      "Zalando",
		ProductURL:    "https://www.zalando.nl/p/" + uuid.NewString(),
		Title:         "  Wool   coat ",
		Brand:         "Hugo Boss",
		CurrentPrice:  decimal.RequireFromString("99.95"),
		OriginalPrice: decimal.RequireFromString("199.95"),
	}
}

func TestDealService_Create_SeedsHistory(t *testing.T) {
	db := newTestDB(t)
	svc := NewDealService(db)
	ctx := context.Background()

	d, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.Retailer != "zalando" {
		t.Fatalf("retailer normalized to %q, want zalando", d.Retailer)
	}
	if d.Title != "Wool coat" {
		t.Fatalf("title normalized to %q", d.Title)
	}
	if d.Category != "Fashion" || d.Gender != "Unisex" || d.Currency != "EUR" {
		t.Fatalf("defaults not applied: %+v", d)
	}
	if d.Status != domain.StatusActive {
		t.Fatalf("status = %q, want active", d.Status)
	}

	hist, err := svc.History(ctx, d.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || !hist[0].Price.Equal(d.CurrentPrice) {
		t.Fatalf("expected one seeded history row at the curated price, got %+v", hist)
	}
}

func TestDealService_Create_Validation(t *testing.T) {
	db := newTestDB(t)
	svc := NewDealService(db)
	ctx := context.Background()

	cases := []struct {
		name    string
		mutate  func(*CreateDealInput)
		wantErr error
	}{
		{"unknown retailer", func(in *CreateDealInput) { in.Retailer = "amazon" }, ErrUnknownRetailer},
		{"relative url", func(in *CreateDealInput) { in.ProductURL = "/p/123" }, ErrInvalidURL},
		{"ftp url", func(in *CreateDealInput) { in.ProductURL = "ftp://x/y" }, ErrInvalidURL},
		{"empty title", func(in *CreateDealInput) { in.Title = "   " }, ErrMissingTitle},
		{"zero price", func(in *CreateDealInput) { in.CurrentPrice = decimal.Zero }, ErrInvalidPrice},
		{"original below current", func(in *CreateDealInput) {
			in.OriginalPrice = decimal.RequireFromString("50")
		}, ErrInvalidPrice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			if _, err := svc.Create(ctx, in); !errors.Is(err, tc.wantErr) {
				t.Fatalf("Create = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestDealService_Create_DuplicateURL(t *testing.T) {
	db := newTestDB(t)
	svc := NewDealService(db)
	ctx := context.Background()

	in := validInput()
	if _, err := svc.Create(ctx, in); err != nil {
		t.Fatalf("first create: %v", err)
	}
	in.Title = "Same product, different title"
	if _, err := svc.Create(ctx, in); !errors.Is(err, ErrDuplicateDeal) {
		t.Fatalf("expected ErrDuplicateDeal, got %v", err)
	}
}

func TestDealService_Update_CurationFieldsOnly(t *testing.T) {
	db := newTestDB(t)
	svc := NewDealService(db)
	ctx := context.Background()

	d, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	title := "Renamed coat"
	notes := "price matched in store"
	got, err := svc.Update(ctx, d.ID, UpdateDealInput{Title: &title, Notes: &notes})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != title || got.Notes != notes {
		t.Fatalf("update not applied: %+v", got)
	}
	if !got.CurrentPrice.Equal(d.CurrentPrice) {
		t.Fatalf("curation update must not move prices")
	}

	if _, err := svc.Update(ctx, "missing", UpdateDealInput{Title: &title}); !errors.Is(err, ErrDealNotFound) {
		t.Fatalf("expected ErrDealNotFound, got %v", err)
	}
}

func TestDealService_DeactivateReactivate(t *testing.T) {
	db := newTestDB(t)
	svc := NewDealService(db)
	ctx := context.Background()

	d, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Deactivate(ctx, d.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	got, _ := svc.Get(ctx, d.ID)
	if got.Status != domain.StatusInactive {
		t.Fatalf("status = %q, want inactive", got.Status)
	}

	// Simulate a broken-link deal so reactivation must clear the counter.
	if err := repo.UpdateDealFields(ctx, db, d.ID, map[string]any{
		"status":        domain.StatusBrokenLink,
		"failure_count": 3,
	}); err != nil {
		t.Fatalf("force broken: %v", err)
	}

	if err := svc.Reactivate(ctx, d.ID); err != nil {
		t.Fatalf("Reactivate: %v", err)
	}
	got, _ = svc.Get(ctx, d.ID)
	if got.Status != domain.StatusActive || got.FailureCount != 0 {
		t.Fatalf("reactivate must reset status and failures, got %+v", got)
	}
}

func TestDealService_ListPage(t *testing.T) {
	db := newTestDB(t)
	svc := NewDealService(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		in := validInput()
		if _, err := svc.Create(ctx, in); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	items, total, err := svc.ListPage(ctx, repo.DealFilter{}, 1, 2)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 5 || len(items) != 2 {
		t.Fatalf("page 1: total=%d len=%d, want 5/2", total, len(items))
	}

	// Invalid paging falls back to defaults.
	items, total, err = svc.ListPage(ctx, repo.DealFilter{}, -1, 0)
	if err != nil || total != 5 || len(items) != 5 {
		t.Fatalf("default paging: total=%d len=%d err=%v", total, len(items), err)
	}
}
