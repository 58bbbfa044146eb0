// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the
// SponsorReceipt model used to implement safe-retry semantics for the
// sponsorship-queue endpoint.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/1lyagent/agent-backend/internal/domain"
)

// ErrDuplicate indicates that a receipt already exists for the given
// (caller, key) tuple.
var ErrDuplicate = errors.New("duplicate")

// GetSponsorReceipt returns a non-expired receipt or ErrNotFound.
func GetSponsorReceipt(ctx context.Context, db *gorm.DB, caller, key string, now time.Time) (*domain.SponsorReceipt, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.SponsorReceipt
	err := db.WithContext(ctx).
		Where("caller = ? AND key = ? AND expires_at > ?", caller, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &rec, err
}

// CreateSponsorReceipt inserts a receipt and returns ErrDuplicate on unique violation.
func CreateSponsorReceipt(ctx context.Context, db *gorm.DB, caller, key, purchaseID string, status int, ttl time.Duration) (*domain.SponsorReceipt, error) {
	now := time.Now().UTC()
	rec := &domain.SponsorReceipt{
		ID:         uuid.NewString(),
		Caller:     caller,
		Key:        key,
		PurchaseID: purchaseID,
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}
