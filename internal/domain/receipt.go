package domain

import "time"

// SponsorReceipt records a processed sponsorship confirmation, keyed by
// (caller, key). Payment providers retry webhooks; a replayed Idempotency-Key
// must resolve to the original purchase instead of crediting the balance a
// second time.
type SponsorReceipt struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Caller     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_sponsor_caller_key,priority:1"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_sponsor_caller_key,priority:2"`
	PurchaseID string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (SponsorReceipt) TableName() string { return "sponsor_receipts" }
