// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the append-only
// credit-purchase log and for confirmed payment rows.
//
// Purchase rows are created once and transition status exactly once
// (QUEUED/AUTO_BUYING -> PURCHASED or FAILED); there is no delete path.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/1lyagent/agent-backend/internal/domain"
)

// CreatePurchase inserts a new purchase row with the given initial status.
func CreatePurchase(ctx context.Context, db *gorm.DB, sponsorMessage string, amount decimal.Decimal, sponsorType, status string) (*domain.CreditPurchase, error) {
	p := &domain.CreditPurchase{
		ID:             uuid.NewString(),
		SponsorMessage: sponsorMessage,
		AmountUSDC:     amount,
		PaidUSDC:       amount,
		SponsorType:    sponsorType,
		Status:         status,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// MarkPurchaseFailed moves a purchase row to FAILED, retaining the provider's
// error text for diagnosis. Returns ErrNotFound when the row is missing.
func MarkPurchaseFailed(ctx context.Context, db *gorm.DB, id, providerStatus string) error {
	res := db.WithContext(ctx).
		Model(&domain.CreditPurchase{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          domain.PurchaseStatusFailed,
			"provider_status": providerStatus,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPurchasePurchased moves a purchase row to PURCHASED with the provider
// transaction id and the purchase day (YYYY-MM-DD, UTC).
func MarkPurchasePurchased(ctx context.Context, db *gorm.DB, id, txID string, day time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.CreditPurchase{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         domain.PurchaseStatusPurchased,
			"provider_tx_id": txID,
			"purchase_day":   day.UTC().Format("2006-01-02"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetPurchase fetches a purchase row by id, or ErrNotFound.
func GetPurchase(ctx context.Context, db *gorm.DB, id string) (*domain.CreditPurchase, error) {
	var p domain.CreditPurchase
	if err := db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreatePayment inserts a confirmed payment row for a paid service dispatch.
func CreatePayment(ctx context.Context, db *gorm.DB, purpose string, amount decimal.Decimal, status, providerRef, source string) (*domain.Payment, error) {
	p := &domain.Payment{
		ID:          uuid.NewString(),
		Purpose:     purpose,
		AmountUSDC:  amount,
		Status:      status,
		ProviderRef: providerRef,
		Source:      source,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}
