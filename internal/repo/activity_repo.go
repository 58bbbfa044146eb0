// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the append-only
// activity feed and the token-usage log, plus small aggregate queries used
// for conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/1lyagent/agent-backend/internal/domain"
)

// InsertActivity appends one activity-log row.
func InsertActivity(ctx context.Context, db *gorm.DB, event domain.ActivityEvent, data string, requestID *string) error {
	e := &domain.ActivityLogEntry{
		ID:        uuid.NewString(),
		Event:     event,
		Data:      data,
		RequestID: requestID,
		CreatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(e).Error
}

// ListActivityPage returns a page of activity entries, newest first.
// The caller is responsible for clamping limit and offset.
func ListActivityPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.ActivityLogEntry, error) {
	var out []domain.ActivityLogEntry
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ActivityStats returns aggregate metadata for the activity feed: the total
// number of rows and the greatest CreatedAt among them. Used to build a weak
// ETag for the public feed endpoint. When the feed is empty, count is 0 and
// maxCreatedAt is nil.
func ActivityStats(ctx context.Context, db *gorm.DB) (count int64, maxCreatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.ActivityLogEntry{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}

// InsertTokenUsage appends one token-usage row.
func InsertTokenUsage(ctx context.Context, db *gorm.DB, tokens int64, requestID *string, model string) error {
	e := &domain.TokenUsageLogEntry{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		TokensUsed: tokens,
		Model:      model,
		CreatedAt:  time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(e).Error
}
