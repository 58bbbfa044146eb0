// Package services – TokenTrackerService
//
// Records token consumption reported by the agent: one usage-log row per
// report plus atomic increments on the shared credit state counters. The
// credit state row is lazily created on first report so a fresh database
// needs no seeding step.
package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/1lyagent/agent-backend/internal/repo"
)

// TokenTrackerService persists token usage reports.
type TokenTrackerService struct {
	DB *gorm.DB
}

// NewTokenTrackerService constructs a TokenTrackerService.
func NewTokenTrackerService(db *gorm.DB) *TokenTrackerService {
	return &TokenTrackerService{DB: db}
}

// Track records tokens consumed for an optional request. Non-positive
// counts are ignored. The usage log and the counter increments are not
// transactional with each other; the counters are the source of truth for
// auto-purchase decisions.
func (s *TokenTrackerService) Track(ctx context.Context, tokens int64, requestID *string, model string) error {
	tr := otel.Tracer("services/TokenTrackerService")
	ctx, span := tr.Start(ctx, "Track",
		trace.WithAttributes(attribute.Int64("tokens", tokens)),
	)
	defer span.End()

	if tokens <= 0 {
		return nil
	}

	if err := repo.InsertTokenUsage(ctx, s.DB, tokens, requestID, model); err != nil {
		return fmt.Errorf("insert token usage: %w", err)
	}

	if err := repo.AddTokens(ctx, s.DB, tokens); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("add tokens: %w", err)
		}
		// First report on an empty database: seed the state row with this
		// usage. A concurrent seeder winning the race is fine, fall back to
		// the plain increment.
		if _, err := repo.InitCreditState(ctx, s.DB, tokens); err != nil {
			if addErr := repo.AddTokens(ctx, s.DB, tokens); addErr != nil {
				return fmt.Errorf("seed credit state: %w", err)
			}
		}
	}
	return nil
}
