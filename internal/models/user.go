package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Auth0ID  string    `gorm:"unique;not null"`
	Email    string    `gorm:"unique;not null"`
	Name     string
	Nickname string
	// Mutated only through the ledger's atomic delta statements.
	CreditBalance float64 `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}
