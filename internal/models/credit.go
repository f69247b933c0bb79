package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction kinds. The kind names the business event; the sign of
// Amount carries the direction.
const (
	TransactionUsage        = "usage"
	TransactionPurchase     = "purchase"
	TransactionRefund       = "refund"
	TransactionSubscription = "subscription"
	TransactionAnalysis     = "analysis"
	TransactionChat         = "chat"
)

// CreditTransaction is an append-only audit row. It is never updated or
// deleted; history views read this table directly.
//
// The partial unique index on refund rows makes refund idempotence a
// database guarantee: at most one refund row can ever exist per
// reference, whichever path (hot-path compensation or stale sweep) tries
// to write it.
type CreditTransaction struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Amount      float64   `gorm:"not null" json:"amount"`
	Kind        string    `gorm:"index;not null" json:"kind"`
	Description string    `json:"description"`
	ReferenceID string    `gorm:"index;uniqueIndex:uniq_refund_reference,where:kind = 'refund'" json:"reference_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
