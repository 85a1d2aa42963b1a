package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIdempotency_CreateGetRoundtrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec, err := CreateIdempotency(ctx, db, "u1", "k1", "deal-1", 201, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.DealID != "deal-1" || rec.Status != 201 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "u1", "k1", now)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DealID != "deal-1" {
		t.Fatalf("got deal id %q, want deal-1", got.DealID)
	}
}

func TestIdempotency_DuplicateKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "u1", "k1", "deal-1", 201, time.Hour); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u1", "k1", "deal-2", 201, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// Same key for another user is a distinct tuple.
	if _, err := CreateIdempotency(ctx, db, "u2", "k1", "deal-3", 201, time.Hour); err != nil {
		t.Fatalf("other user create: %v", err)
	}
}

func TestIdempotency_ExpiredAndBlankKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "u1", "k1", "deal-1", 201, time.Millisecond); err != nil {
		t.Fatalf("create: %v", err)
	}
	later := time.Now().UTC().Add(time.Minute)
	if _, err := GetIdempotency(ctx, db, "u1", "k1", later); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired record to be invisible, got %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "u1", "  ", later); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected blank key to miss, got %v", err)
	}
}
