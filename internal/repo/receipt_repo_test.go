package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSponsorReceipt_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec, err := CreateSponsorReceipt(ctx, db, "agent", "key-1", "purchase-1", 201, time.Hour)
	if err != nil {
		t.Fatalf("CreateSponsorReceipt: %v", err)
	}
	if rec.Caller != "agent" || rec.Key != "key-1" || rec.PurchaseID != "purchase-1" {
		t.Fatalf("unexpected receipt: %+v", rec)
	}

	got, err := GetSponsorReceipt(ctx, db, "agent", "key-1", time.Now().UTC())
	if err != nil {
		t.Fatalf("GetSponsorReceipt: %v", err)
	}
	if got.ID != rec.ID {
		t.Fatalf("got %q, want %q", got.ID, rec.ID)
	}
}

func TestSponsorReceipt_DuplicateKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := CreateSponsorReceipt(ctx, db, "agent", "key-1", "p1", 201, time.Hour); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := CreateSponsorReceipt(ctx, db, "agent", "key-1", "p2", 201, time.Hour)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}

	// Same key from a different caller is a distinct tuple.
	if _, err := CreateSponsorReceipt(ctx, db, "admin", "key-1", "p3", 201, time.Hour); err != nil {
		t.Fatalf("different caller should insert: %v", err)
	}
}

func TestSponsorReceipt_Expiry(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := CreateSponsorReceipt(ctx, db, "agent", "key-1", "p1", 201, time.Minute); err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err := GetSponsorReceipt(ctx, db, "agent", "key-1", time.Now().UTC().Add(2*time.Minute))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired receipt should be ErrNotFound, got %v", err)
	}
}

func TestGetSponsorReceipt_EmptyKey(t *testing.T) {
	db := newTestDB(t)
	_, err := GetSponsorReceipt(context.Background(), db, "agent", "  ", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank key should be ErrNotFound, got %v", err)
	}
}
