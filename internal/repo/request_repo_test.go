package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/1lyagent/agent-backend/internal/domain"
)

func TestCreateRequest_NewStatus(t *testing.T) {
	db := newTestDB(t)

	r, err := CreateRequest(context.Background(), db, "write me a poem")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if r.ID == "" || r.Status != domain.RequestStatusNew || r.Prompt != "write me a poem" {
		t.Fatalf("unexpected request: %+v", r)
	}
}

func TestGetRequest_NotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := GetRequest(context.Background(), db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestApplyClassification_WritesVerdict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	r, err := CreateRequest(ctx, db, "prompt")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = ApplyClassification(ctx, db, r.ID, ClassificationUpdate{
		Classification: domain.ClassificationPaidMedium,
		PriceUSDC:      decimal.NewFromFloat(0.50),
		PaymentLink:    "https://pay.example/abc",
		Status:         domain.RequestStatusLinkCreated,
	})
	if err != nil {
		t.Fatalf("ApplyClassification: %v", err)
	}

	got, err := GetRequest(ctx, db, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Classification != domain.ClassificationPaidMedium ||
		got.Status != domain.RequestStatusLinkCreated ||
		got.PaymentLink != "https://pay.example/abc" {
		t.Fatalf("verdict not applied: %+v", got)
	}
	if !got.PriceUSDC.Equal(decimal.NewFromFloat(0.50)) {
		t.Fatalf("price = %s, want 0.50", got.PriceUSDC)
	}
}

func TestApplyClassification_MissingRow(t *testing.T) {
	db := newTestDB(t)
	err := ApplyClassification(context.Background(), db, "missing", ClassificationUpdate{
		Classification: domain.ClassificationFree,
		Status:         domain.RequestStatusFulfilled,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestStoreJSONAnswer_RoundTripsBytes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	r, err := CreateRequest(ctx, db, "prompt")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	payload := datatypes.JSON(`{"answer":"42","tokens_used":17}`)
	if err := StoreJSONAnswer(ctx, db, r.ID, payload); err != nil {
		t.Fatalf("StoreJSONAnswer: %v", err)
	}

	got, err := GetRequest(ctx, db, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.RequestStatusFulfilled {
		t.Fatalf("status = %q, want FULFILLED", got.Status)
	}
	if string(got.JSONAnswer) != string(payload) {
		t.Fatalf("payload changed: %s", got.JSONAnswer)
	}

	// A second read returns identical bytes.
	again, err := GetRequest(ctx, db, r.ID)
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if string(again.JSONAnswer) != string(got.JSONAnswer) {
		t.Fatal("stored payload is not byte-stable across reads")
	}
}

func TestMarkRequestFailed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	r, err := CreateRequest(ctx, db, "prompt")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := MarkRequestFailed(ctx, db, r.ID); err != nil {
		t.Fatalf("MarkRequestFailed: %v", err)
	}
	got, _ := GetRequest(ctx, db, r.ID)
	if got.Status != domain.RequestStatusFailed {
		t.Fatalf("status = %q, want FAILED", got.Status)
	}
}
