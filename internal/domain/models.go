// Package domain defines the persistence models for the agent backend:
// credit state, credit purchases, classified requests, and payments.
// These types are mapped with GORM and form the core data layer of the
// application.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Request classification tiers assigned by the external agent.
const (
	ClassificationFree          = "FREE"
	ClassificationPaidMedium    = "PAID_MEDIUM"
	ClassificationPaidHeavy     = "PAID_HEAVY"
	ClassificationCreditSponsor = "CREDIT_SPONSOR"
	ClassificationCoffeeOrder   = "COFFEE_ORDER"
)

// Request lifecycle states. FULFILLED and FAILED are terminal.
const (
	RequestStatusNew         = "NEW"
	RequestStatusLinkCreated = "LINK_CREATED"
	RequestStatusPaid        = "PAID"
	RequestStatusFulfilled   = "FULFILLED"
	RequestStatusFailed      = "FAILED"
)

// Credit purchase states. QUEUED and AUTO_BUYING transition to one of the
// terminal states PURCHASED or FAILED.
const (
	PurchaseStatusQueued     = "QUEUED"
	PurchaseStatusAutoBuying = "AUTO_BUYING"
	PurchaseStatusPurchased  = "PURCHASED"
	PurchaseStatusFailed     = "FAILED"
)

// Sponsor types for credit purchases.
const (
	SponsorTypeHuman = "human"
	SponsorTypeAgent = "agent"
)

// CreditState is the singleton row tracking the agent's spendable balance and
// token consumption. All balance mutations go through an optimistic-lock
// update keyed on Version; token counters are incremented atomically in SQL.
//
// Fields:
//   - BalanceUSDC: spendable balance, never negative.
//   - TokensUsedTotal: lifetime token count, monotonic.
//   - TokensSinceLastPurchase: tokens since the last successful auto-buy,
//     reset to 0 on purchase.
//   - DailyPurchaseCount: number of auto-purchases performed.
//   - LastAutoPurchaseAt: timestamp of the last successful auto-buy.
//   - Version: optimistic concurrency token, bumped on every balance write.
type CreditState struct {
	ID                      string          `json:"id"                         gorm:"type:char(36);primaryKey"`
	BalanceUSDC             decimal.Decimal `json:"balance_usdc"               gorm:"type:decimal(12,2);not null"`
	TokensUsedTotal         int64           `json:"tokens_used_total"          gorm:"not null;default:0"`
	TokensSinceLastPurchase int64           `json:"tokens_since_last_purchase" gorm:"not null;default:0"`
	DailyPurchaseCount      int             `json:"daily_purchase_count"       gorm:"not null;default:0"`
	LastAutoPurchaseAt      *time.Time      `json:"last_auto_purchase_at"`
	Version                 int64           `json:"-"                          gorm:"not null;default:0"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// TableName returns the database table name for CreditState.
func (CreditState) TableName() string { return "credit_state" }

// CreditPurchase is an append-only record of a sponsorship or auto-buy
// attempt. Rows are created in QUEUED (sponsorship) or AUTO_BUYING (auto-buy)
// status and move to PURCHASED or FAILED exactly once; they are never deleted.
type CreditPurchase struct {
	ID             string          `json:"id"              gorm:"type:char(36);primaryKey"`
	SponsorMessage string          `json:"sponsor_message" gorm:"type:text;not null"`
	AmountUSDC     decimal.Decimal `json:"amount_usdc"     gorm:"type:decimal(12,2);not null"`
	PaidUSDC       decimal.Decimal `json:"paid_usdc"       gorm:"type:decimal(12,2);not null"`
	SponsorType    string          `json:"sponsor_type"    gorm:"type:varchar(16);not null;check:sponsor_type IN ('human','agent')"`
	Status         string          `json:"status"          gorm:"type:varchar(16);not null;index"`
	ProviderStatus string          `json:"provider_status,omitempty" gorm:"type:text"`
	ProviderTxID   string          `json:"provider_tx_id,omitempty"  gorm:"type:varchar(128)"`
	PurchaseDay    string          `json:"purchase_day,omitempty"    gorm:"type:varchar(10)"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName returns the database table name for CreditPurchase.
func (CreditPurchase) TableName() string { return "credit_purchases" }

// Request represents a user-submitted prompt and its classification outcome.
// The row is created in NEW status on submission; classification, price,
// payment link and deliverable are written exclusively by the agent callback,
// and the JSON answer by the answer-storage endpoint.
type Request struct {
	ID             string          `json:"id"             gorm:"type:char(36);primaryKey"`
	Prompt         string          `json:"prompt"         gorm:"type:text;not null"`
	Classification string          `json:"classification,omitempty" gorm:"type:varchar(32);index"`
	PriceUSDC      decimal.Decimal `json:"price_usdc"     gorm:"type:decimal(12,2);not null"`
	PaymentLink    string          `json:"payment_link,omitempty" gorm:"type:text"`
	Status         string          `json:"status"         gorm:"type:varchar(16);not null;index"`
	Deliverable    string          `json:"deliverable,omitempty" gorm:"type:text"`
	DeliveryURL    string          `json:"delivery_url,omitempty" gorm:"type:text"`
	JSONAnswer     datatypes.JSON  `json:"json_answer,omitempty" gorm:"type:json"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Request.
func (Request) TableName() string { return "requests" }

// Payment records a confirmed payment for a paid service dispatch (e.g. the
// influence endpoint). Append-only.
type Payment struct {
	ID          string          `json:"id"           gorm:"type:char(36);primaryKey"`
	Purpose     string          `json:"purpose"      gorm:"type:varchar(32);not null"`
	AmountUSDC  decimal.Decimal `json:"amount_usdc"  gorm:"type:decimal(12,2);not null"`
	Status      string          `json:"status"       gorm:"type:varchar(16);not null"`
	ProviderRef string          `json:"provider_ref,omitempty" gorm:"type:varchar(128)"`
	Source      string          `json:"source,omitempty"       gorm:"type:varchar(32)"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TableName returns the database table name for Payment.
func (Payment) TableName() string { return "payments" }
