// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Request
// model.
//
// Write paths are deliberately narrow: submission creates the row, the agent
// callback is the only writer of classification fields, and the JSON-answer
// endpoint is the only writer of json_answer. Status moves NEW ->
// LINK_CREATED -> FULFILLED (or straight to FULFILLED for free requests);
// FAILED is reachable from any non-terminal state.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/1lyagent/agent-backend/internal/domain"
)

// CreateRequest inserts a new Request row in NEW status.
func CreateRequest(ctx context.Context, db *gorm.DB, prompt string) (*domain.Request, error) {
	r := &domain.Request{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		PriceUSDC: decimal.Zero,
		Status:    domain.RequestStatusNew,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// GetRequest fetches a request by id, or ErrNotFound.
func GetRequest(ctx context.Context, db *gorm.DB, id string) (*domain.Request, error) {
	var r domain.Request
	if err := db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ClassificationUpdate carries the fields supplied by the agent callback.
type ClassificationUpdate struct {
	Classification string
	PriceUSDC      decimal.Decimal
	PaymentLink    string
	Deliverable    string
	DeliveryURL    string
	Status         string
}

// ApplyClassification writes the classification outcome onto a request.
// Returns ErrNotFound when no row matches.
func ApplyClassification(ctx context.Context, db *gorm.DB, id string, u ClassificationUpdate) error {
	res := db.WithContext(ctx).
		Model(&domain.Request{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"classification": u.Classification,
			"price_usdc":     u.PriceUSDC,
			"payment_link":   u.PaymentLink,
			"deliverable":    u.Deliverable,
			"delivery_url":   u.DeliveryURL,
			"status":         u.Status,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// StoreJSONAnswer stores the JSON deliverable for a request and marks it
// FULFILLED. Returns ErrNotFound when no row matches.
func StoreJSONAnswer(ctx context.Context, db *gorm.DB, id string, answer datatypes.JSON) error {
	res := db.WithContext(ctx).
		Model(&domain.Request{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"json_answer": answer,
			"status":      domain.RequestStatusFulfilled,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRequestFailed moves a request to the terminal FAILED status.
func MarkRequestFailed(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Request{}).
		Where("id = ?", id).
		Update("status", domain.RequestStatusFailed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
