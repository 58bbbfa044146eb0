// Package services – CreditService
//
// Owns the credit ledger: the public balance view, sponsorship credits, and
// the autonomous top-up decision. The state row is a singleton guarded by
// optimistic locking; sponsorship credits retry the version-CAS a few times
// because they are purely additive, while the auto-purchase transition never
// retries so a concurrent writer can never cause a double purchase.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/1lyagent/agent-backend/internal/domain"
	"github.com/1lyagent/agent-backend/internal/repo"
)

// creditRetries bounds CAS retries for additive sponsorship credits.
const creditRetries = 3

// Marketplace is the credit top-up contract implemented by the openrouter
// client. Tests substitute a fake.
type Marketplace interface {
	TopUp(ctx context.Context, amount decimal.Decimal) (txID string, err error)
}

// StateView is the public credit state projection.
type StateView struct {
	BalanceUSDC             decimal.Decimal `json:"balance_usdc"`
	TokensUsedTotal         int64           `json:"tokens_used_total"`
	TokensSinceLastPurchase int64           `json:"tokens_since_last_purchase"`
	DailyPurchaseCount      int             `json:"daily_purchase_count"`
	LastAutoPurchaseAt      *time.Time      `json:"last_auto_purchase_at,omitempty"`
	IsLowOnCredit           bool            `json:"is_low_on_credit"`
}

// AutoBuyResult reports one auto-purchase evaluation.
type AutoBuyResult struct {
	Purchased  bool            `json:"purchased"`
	Reason     string          `json:"reason,omitempty"`
	PurchaseID string          `json:"purchase_id,omitempty"`
	Amount     decimal.Decimal `json:"amount_usdc"`
	NewBalance decimal.Decimal `json:"new_balance_usdc"`
}

// CreditService manages the balance, sponsorships, and auto-purchases.
type CreditService struct {
	DB     *gorm.DB
	Sink   *Sink
	Market Marketplace

	// TokenThreshold and BalanceThreshold gate auto-purchases: a purchase
	// is due when tokens_since_last_purchase >= TokenThreshold AND the
	// balance is below BalanceThreshold.
	TokenThreshold   int64
	BalanceThreshold decimal.Decimal
	// PurchaseAmount is the fixed top-up size.
	PurchaseAmount decimal.Decimal

	// SponsorTTL bounds idempotency receipts for queued sponsorships.
	SponsorTTL time.Duration

	now func() time.Time // test seam
}

// NewCreditService constructs a CreditService with the given thresholds.
func NewCreditService(db *gorm.DB, sink *Sink, market Marketplace, tokenThreshold int64, balanceThreshold, purchaseAmount decimal.Decimal) *CreditService {
	return &CreditService{
		DB:               db,
		Sink:             sink,
		Market:           market,
		TokenThreshold:   tokenThreshold,
		BalanceThreshold: balanceThreshold,
		PurchaseAmount:   purchaseAmount,
		SponsorTTL:       24 * time.Hour,
		now:              time.Now,
	}
}

// State returns the public credit view. A missing state row reads as an
// empty ledger rather than an error so the endpoint works on a fresh
// database.
func (s *CreditService) State(ctx context.Context) (*StateView, error) {
	tr := otel.Tracer("services/CreditService")
	ctx, span := tr.Start(ctx, "State")
	defer span.End()

	st, err := repo.GetCreditState(ctx, s.DB)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return &StateView{BalanceUSDC: decimal.Zero}, nil
		}
		return nil, err
	}
	return s.view(st), nil
}

func (s *CreditService) view(st *domain.CreditState) *StateView {
	return &StateView{
		BalanceUSDC:             st.BalanceUSDC,
		TokensUsedTotal:         st.TokensUsedTotal,
		TokensSinceLastPurchase: st.TokensSinceLastPurchase,
		DailyPurchaseCount:      st.DailyPurchaseCount,
		LastAutoPurchaseAt:      st.LastAutoPurchaseAt,
		IsLowOnCredit:           s.isDue(st),
	}
}

// isDue applies the purchase rule: both the token and the balance leg must
// trip before a top-up is considered.
func (s *CreditService) isDue(st *domain.CreditState) bool {
	return st.TokensSinceLastPurchase >= s.TokenThreshold &&
		st.BalanceUSDC.LessThan(s.BalanceThreshold)
}

// notDueReason names the first leg that blocks a purchase.
func (s *CreditService) notDueReason(st *domain.CreditState) string {
	if st.TokensSinceLastPurchase < s.TokenThreshold {
		return fmt.Sprintf("only %d tokens used since last purchase (need %d)",
			st.TokensSinceLastPurchase, s.TokenThreshold)
	}
	return fmt.Sprintf("balance $%s is sufficient", st.BalanceUSDC.StringFixed(2))
}

// QueueSponsorship records a sponsored credit purchase and credits the
// balance. caller and key are optional; when both are set a duplicate key
// from the same caller returns ErrDuplicateSponsorship without a second
// credit.
func (s *CreditService) QueueSponsorship(ctx context.Context, message string, amount decimal.Decimal, sponsorType, caller, key string) (*domain.CreditPurchase, error) {
	tr := otel.Tracer("services/CreditService")
	ctx, span := tr.Start(ctx, "QueueSponsorship",
		trace.WithAttributes(attribute.String("sponsor_type", sponsorType)),
	)
	defer span.End()

	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if sponsorType != domain.SponsorTypeHuman && sponsorType != domain.SponsorTypeAgent {
		sponsorType = domain.SponsorTypeHuman
	}

	if caller != "" && key != "" {
		if _, err := repo.GetSponsorReceipt(ctx, s.DB, caller, key, s.now()); err == nil {
			return nil, ErrDuplicateSponsorship
		}
	}

	p, err := repo.CreatePurchase(ctx, s.DB, message, amount, sponsorType, domain.PurchaseStatusQueued)
	if err != nil {
		return nil, err
	}

	if caller != "" && key != "" {
		if _, err := repo.CreateSponsorReceipt(ctx, s.DB, caller, key, p.ID, 201, s.SponsorTTL); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return nil, ErrDuplicateSponsorship
			}
			return nil, err
		}
	}

	if err := s.creditWithRetry(ctx, amount); err != nil {
		return nil, err
	}

	s.Sink.Log(domain.EventCreditSponsored,
		fmt.Sprintf("$%s sponsored: %s", amount.StringFixed(2), TruncatePrompt(message, 80)), nil)
	return p, nil
}

// creditWithRetry adds amount to the balance, seeding the state row when
// absent and retrying the version-CAS on conflict. Additive credits are
// safe to retry.
func (s *CreditService) creditWithRetry(ctx context.Context, amount decimal.Decimal) error {
	for i := 0; i < creditRetries; i++ {
		st, err := repo.GetCreditState(ctx, s.DB)
		if err != nil {
			if !errors.Is(err, repo.ErrNotFound) {
				return err
			}
			if st, err = repo.InitCreditState(ctx, s.DB, 0); err != nil {
				continue // lost the seed race, reload
			}
		}
		err = repo.CreditBalance(ctx, s.DB, st, amount)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repo.ErrVersionConflict) {
			return err
		}
	}
	return ErrStateConflict
}

// ShouldAutoBuy is the dry-run decision used by GET handlers.
func (s *CreditService) ShouldAutoBuy(ctx context.Context) (bool, string, error) {
	st, err := repo.GetCreditState(ctx, s.DB)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, "no usage recorded yet", nil
		}
		return false, "", err
	}
	if !s.isDue(st) {
		return false, s.notDueReason(st), nil
	}
	return true, "", nil
}

// AutoBuy evaluates the purchase rule and, when due, buys the fixed top-up
// amount from the marketplace. The state transition is applied with a
// version-CAS and never retried: on conflict the purchase row is marked
// failed and ErrStateConflict is returned.
func (s *CreditService) AutoBuy(ctx context.Context) (*AutoBuyResult, error) {
	tr := otel.Tracer("services/CreditService")
	ctx, span := tr.Start(ctx, "AutoBuy")
	defer span.End()

	st, err := repo.GetCreditState(ctx, s.DB)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrStateNotFound
		}
		return nil, err
	}

	if !s.isDue(st) {
		return &AutoBuyResult{
			Purchased:  false,
			Reason:     s.notDueReason(st),
			Amount:     s.PurchaseAmount,
			NewBalance: st.BalanceUSDC,
		}, nil
	}

	if st.BalanceUSDC.LessThan(s.PurchaseAmount) {
		s.Sink.Log(domain.EventCreditLow,
			fmt.Sprintf("auto-purchase due but balance $%s cannot cover $%s",
				st.BalanceUSDC.StringFixed(2), s.PurchaseAmount.StringFixed(2)), nil)
		return nil, ErrInsufficientBalance
	}

	p, err := repo.CreatePurchase(ctx, s.DB,
		fmt.Sprintf("autonomous top-up after %d tokens", st.TokensSinceLastPurchase),
		s.PurchaseAmount, domain.SponsorTypeAgent, domain.PurchaseStatusAutoBuying)
	if err != nil {
		return nil, err
	}

	txID, err := s.Market.TopUp(ctx, s.PurchaseAmount)
	if err != nil {
		_ = repo.MarkPurchaseFailed(ctx, s.DB, p.ID, err.Error())
		s.Sink.Log(domain.EventError, "credit top-up failed: "+err.Error(), nil)
		return nil, fmt.Errorf("marketplace top-up: %w", err)
	}

	now := s.now()
	if err := repo.MarkPurchasePurchased(ctx, s.DB, p.ID, txID, now); err != nil {
		return nil, err
	}

	if err := repo.ApplyAutoPurchase(ctx, s.DB, st, s.PurchaseAmount, now); err != nil {
		if errors.Is(err, repo.ErrVersionConflict) {
			_ = repo.MarkPurchaseFailed(ctx, s.DB, p.ID, "state conflict")
			return nil, ErrStateConflict
		}
		return nil, err
	}

	newBalance := st.BalanceUSDC.Sub(s.PurchaseAmount)
	s.Sink.Log(domain.EventCreditAutoPurchase,
		fmt.Sprintf("bought $%s of credit ($%s -> $%s)",
			s.PurchaseAmount.StringFixed(2),
			st.BalanceUSDC.StringFixed(2), newBalance.StringFixed(2)), nil)

	return &AutoBuyResult{
		Purchased:  true,
		PurchaseID: p.ID,
		Amount:     s.PurchaseAmount,
		NewBalance: newBalance,
	}, nil
}
