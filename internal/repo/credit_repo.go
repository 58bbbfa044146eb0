// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the singleton
// credit-state row.
//
// Concurrency model:
//   - Token counters are incremented with a single atomic UPDATE expression,
//     never read-modify-write, so concurrent trackers cannot lose updates.
//   - Balance mutations go through an optimistic-concurrency update keyed on
//     the Version column; callers observe ErrVersionConflict when another
//     writer got there first and decide whether to retry.
//
// Error semantics:
//   - ErrNotFound when no credit-state row exists.
//   - ErrVersionConflict when a guarded update matched zero rows.
//   - Raw gorm errors otherwise.
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

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrVersionConflict is returned when an optimistic-concurrency update lost
// the race: the row's version changed between read and write.
var ErrVersionConflict = errors.New("credit state version conflict")

// GetCreditState returns the singleton credit-state row, or ErrNotFound when
// it has not been initialized yet.
func GetCreditState(ctx context.Context, db *gorm.DB) (*domain.CreditState, error) {
	var st domain.CreditState
	err := db.WithContext(ctx).Order("created_at asc").First(&st).Error
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// InitCreditState inserts the singleton row seeded with the given token
// count on both counters and a zero balance. Callers race benignly: when a
// concurrent insert wins, the caller should fall back to AddTokens.
func InitCreditState(ctx context.Context, db *gorm.DB, tokens int64) (*domain.CreditState, error) {
	st := &domain.CreditState{
		ID:                      uuid.NewString(),
		BalanceUSDC:             decimal.Zero,
		TokensUsedTotal:         tokens,
		TokensSinceLastPurchase: tokens,
		CreatedAt:               time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(st).Error; err != nil {
		return nil, err
	}
	return st, nil
}

// AddTokens atomically increments both token counters on the singleton row.
// Returns ErrNotFound when no row exists yet. The increment is a single SQL
// expression so concurrent calls cannot lose updates.
func AddTokens(ctx context.Context, db *gorm.DB, tokens int64) error {
	res := db.WithContext(ctx).
		Model(&domain.CreditState{}).
		Where("1 = 1"). // singleton table: every row (there is one)
		Updates(map[string]any{
			"tokens_used_total":          gorm.Expr("tokens_used_total + ?", tokens),
			"tokens_since_last_purchase": gorm.Expr("tokens_since_last_purchase + ?", tokens),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreditBalance adds amount to the balance, guarded by the row version read
// in st. Returns ErrVersionConflict when another writer updated the row
// since st was loaded.
func CreditBalance(ctx context.Context, db *gorm.DB, st *domain.CreditState, amount decimal.Decimal) error {
	res := db.WithContext(ctx).
		Model(&domain.CreditState{}).
		Where("id = ? AND version = ?", st.ID, st.Version).
		Updates(map[string]any{
			"balance_usdc": st.BalanceUSDC.Add(amount),
			"version":      st.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// ApplyAutoPurchase applies the state transition of a successful auto-buy in
// one guarded update: deduct amount from the balance, reset the
// since-last-purchase counter, bump the purchase count and stamp the purchase
// time. Returns ErrVersionConflict when the state moved under us; the caller
// must not blindly retry, since that could double-spend.
func ApplyAutoPurchase(ctx context.Context, db *gorm.DB, st *domain.CreditState, amount decimal.Decimal, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.CreditState{}).
		Where("id = ? AND version = ?", st.ID, st.Version).
		Updates(map[string]any{
			"balance_usdc":               st.BalanceUSDC.Sub(amount),
			"tokens_since_last_purchase": 0,
			"daily_purchase_count":       st.DailyPurchaseCount + 1,
			"last_auto_purchase_at":      now,
			"version":                    st.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}
