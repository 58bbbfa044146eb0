// Package services – InfluenceService
//
// Paid engagement actions on the hackathon platform: votes, comments, hype
// posts, and the full campaign bundle. Each dispatch executes the platform
// calls, records a confirmed payment row, and returns the actions taken.
package services

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/1lyagent/agent-backend/internal/clients/colosseum"
	"github.com/1lyagent/agent-backend/internal/domain"
	"github.com/1lyagent/agent-backend/internal/repo"
)

// Influence service names and prices.
const (
	ServiceVote           = "vote"
	ServiceComment        = "comment"
	ServiceVoteAndComment = "vote_and_comment"
	ServiceHypePost       = "hype_post"
	ServiceCampaign       = "campaign"
)

// servicePrices is the fixed USD price list.
var servicePrices = map[string]decimal.Decimal{
	ServiceVote:           decimal.NewFromFloat(0.10),
	ServiceComment:        decimal.NewFromFloat(0.25),
	ServiceVoteAndComment: decimal.NewFromFloat(0.50),
	ServiceHypePost:       decimal.NewFromFloat(1.00),
	ServiceCampaign:       decimal.NewFromFloat(5.00),
}

// Platform is the engagement platform contract implemented by the colosseum
// client. Tests substitute a fake.
type Platform interface {
	GetProject(ctx context.Context, slug string) (*colosseum.Project, error)
	VoteOnProject(ctx context.Context, projectID int) (*colosseum.VoteResult, error)
	CreatePost(ctx context.Context, title, body string, tags []string) (*colosseum.PostResult, error)
	CommentOnPost(ctx context.Context, postID int, body string) (*colosseum.CommentResult, error)
}

// InfluenceOrder is one paid engagement dispatch.
type InfluenceOrder struct {
	Service     string `json:"service"`
	ProjectSlug string `json:"project_slug"`
	PostID      int    `json:"post_id,omitempty"`
	PaymentRef  string `json:"payment_ref,omitempty"`
}

// InfluenceResult reports the executed actions and the recorded price.
type InfluenceResult struct {
	Service   string          `json:"service"`
	PriceUSDC decimal.Decimal `json:"price_usdc"`
	Actions   []string        `json:"actions"`
	PaymentID string          `json:"payment_id"`
}

// InfluenceService executes paid engagement orders.
type InfluenceService struct {
	DB       *gorm.DB
	Sink     *Sink
	Platform Platform

	titler cases.Caser
}

// NewInfluenceService constructs an InfluenceService.
func NewInfluenceService(db *gorm.DB, sink *Sink, platform Platform) *InfluenceService {
	return &InfluenceService{
		DB:       db,
		Sink:     sink,
		Platform: platform,
		titler:   cases.Title(language.AmericanEnglish),
	}
}

// Pricing returns the service price list.
func (s *InfluenceService) Pricing() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(servicePrices))
	for k, v := range servicePrices {
		out[k] = v
	}
	return out
}

// Execute runs the ordered service against the platform and records a
// confirmed payment row. Unknown services return ErrInvalidService.
func (s *InfluenceService) Execute(ctx context.Context, order InfluenceOrder) (*InfluenceResult, error) {
	tr := otel.Tracer("services/InfluenceService")
	ctx, span := tr.Start(ctx, "Execute",
		trace.WithAttributes(attribute.String("service", order.Service)),
	)
	defer span.End()

	price, ok := servicePrices[order.Service]
	if !ok {
		return nil, ErrInvalidService
	}
	if order.ProjectSlug == "" {
		return nil, ErrInvalidService
	}

	project, err := s.Platform.GetProject(ctx, order.ProjectSlug)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	var actions []string
	switch order.Service {
	case ServiceVote:
		actions, err = s.vote(ctx, project)
	case ServiceComment:
		actions, err = s.comment(ctx, project, order.PostID)
	case ServiceVoteAndComment:
		actions, err = s.vote(ctx, project)
		if err == nil {
			var more []string
			more, err = s.comment(ctx, project, order.PostID)
			actions = append(actions, more...)
		}
	case ServiceHypePost:
		actions, err = s.hypePost(ctx, project)
	case ServiceCampaign:
		actions, err = s.vote(ctx, project)
		if err == nil {
			var more []string
			more, err = s.hypePost(ctx, project)
			actions = append(actions, more...)
		}
		if err == nil && order.PostID > 0 {
			var more []string
			more, err = s.comment(ctx, project, order.PostID)
			actions = append(actions, more...)
		}
	}
	if err != nil {
		s.Sink.Log(domain.EventError, "influence dispatch failed: "+err.Error(), nil)
		return nil, err
	}

	pay, err := repo.CreatePayment(ctx, s.DB, "influence:"+order.Service, price,
		"CONFIRMED", order.PaymentRef, domain.SponsorTypeAgent)
	if err != nil {
		return nil, err
	}

	return &InfluenceResult{
		Service:   order.Service,
		PriceUSDC: price,
		Actions:   actions,
		PaymentID: pay.ID,
	}, nil
}

func (s *InfluenceService) vote(ctx context.Context, p *colosseum.Project) ([]string, error) {
	if _, err := s.Platform.VoteOnProject(ctx, p.ID); err != nil {
		return nil, fmt.Errorf("vote: %w", err)
	}
	return []string{fmt.Sprintf("voted on %q", p.Name)}, nil
}

func (s *InfluenceService) comment(ctx context.Context, p *colosseum.Project, postID int) ([]string, error) {
	if postID <= 0 {
		return nil, ErrInvalidService
	}
	res, err := s.Platform.CommentOnPost(ctx, postID, s.commentCopy(p))
	if err != nil {
		return nil, fmt.Errorf("comment: %w", err)
	}
	return []string{fmt.Sprintf("commented on post %d", res.PostID)}, nil
}

func (s *InfluenceService) hypePost(ctx context.Context, p *colosseum.Project) ([]string, error) {
	title, body := s.hypeCopy(p)
	res, err := s.Platform.CreatePost(ctx, title, body, []string{"progress", p.Slug})
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return []string{fmt.Sprintf("published post %d: %s", res.PostID, res.Title)}, nil
}

var commentTemplates = []string{
	"Really impressed by the direction %s is taking. The execution so far speaks for itself.",
	"%s keeps shipping. One of the projects I check on every day.",
	"The approach %s takes here is refreshingly pragmatic. Watching closely.",
	"Solid progress from %s again. The momentum is hard to ignore.",
}

// commentCopy generates a short endorsement mentioning the project.
func (s *InfluenceService) commentCopy(p *colosseum.Project) string {
	name := s.titler.String(strings.ToLower(p.Name))
	return fmt.Sprintf(commentTemplates[rand.Intn(len(commentTemplates))], name)
}

// hypeCopy generates a title and body for a promotional post.
func (s *InfluenceService) hypeCopy(p *colosseum.Project) (title, body string) {
	name := s.titler.String(strings.ToLower(p.Name))
	title = fmt.Sprintf("Why %s Deserves Your Attention", name)
	body = fmt.Sprintf(
		"%s has been quietly building one of the more interesting entries this round.\n\n%s\n\nUpvotes so far: %d from agents, %d from humans. Worth a look: %s",
		name, p.Description, p.AgentUpvotes, p.HumanUpvotes, p.RepoLink,
	)
	return title, body
}
