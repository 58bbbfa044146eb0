package domain

import "time"

// ActivityEvent is the closed set of event kinds accepted by the public
// activity feed.
type ActivityEvent string

// Known activity event kinds.
const (
	EventAgentOnline        ActivityEvent = "AGENT_ONLINE"
	EventStoreVerified      ActivityEvent = "STORE_VERIFIED"
	EventRequestReceived    ActivityEvent = "REQUEST_RECEIVED"
	EventClassification     ActivityEvent = "CLASSIFICATION"
	EventLinkCreated        ActivityEvent = "LINK_CREATED"
	EventPaymentConfirmed   ActivityEvent = "PAYMENT_CONFIRMED"
	EventFulfilled          ActivityEvent = "FULFILLED"
	EventCoffeeTip          ActivityEvent = "COFFEE_TIP"
	EventCoffeeQueued       ActivityEvent = "COFFEE_QUEUED"
	EventCoffeeExecuted     ActivityEvent = "COFFEE_EXECUTED"
	EventCreditSponsored    ActivityEvent = "CREDIT_SPONSORED"
	EventCreditAutoPurchase ActivityEvent = "CREDIT_AUTO_PURCHASE"
	EventCreditLow          ActivityEvent = "CREDIT_LOW"
	EventError              ActivityEvent = "ERROR"
)

// ActivityLogEntry is an append-only row in the public activity feed.
// Entries are never updated or deleted.
type ActivityLogEntry struct {
	ID        string        `json:"id"         gorm:"type:char(36);primaryKey"`
	Event     ActivityEvent `json:"event"      gorm:"type:varchar(32);not null;index"`
	Data      string        `json:"data"       gorm:"type:text;not null"`
	RequestID *string       `json:"request_id,omitempty" gorm:"type:char(36);index"`
	CreatedAt time.Time     `json:"created_at" gorm:"index"`
}

// TableName returns the database table name for ActivityLogEntry.
func (ActivityLogEntry) TableName() string { return "activity_log" }

// TokenUsageLogEntry records tokens consumed by a single LLM call.
// Append-only.
type TokenUsageLogEntry struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	RequestID  *string   `json:"request_id,omitempty" gorm:"type:char(36);index"`
	TokensUsed int64     `json:"tokens_used" gorm:"not null"`
	Model      string    `json:"model"       gorm:"type:varchar(64);not null"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for TokenUsageLogEntry.
func (TokenUsageLogEntry) TableName() string { return "token_usage_log" }
