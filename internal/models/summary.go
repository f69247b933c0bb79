package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Summary is the durable record of one charged AI request. The row is
// created with an empty Result the instant credits are debited, so a
// crash mid-pipeline leaves a traceable in-progress row. Empty string,
// not NULL, is the "result not yet available" sentinel.
type Summary struct {
	gorm.Model
	UserID uuid.UUID `gorm:"type:uuid;index"`
	// RequestID ties the row to its ledger transactions, including the
	// rows written before this record existed.
	RequestID string `gorm:"index;unique"`
	SourceURL string
	Title     string
	Thumbnail string
	Result    string `gorm:"type:text;not null;default:''"`
}
