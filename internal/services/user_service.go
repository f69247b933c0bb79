package services

import (
	"context"
	"errors"

	"vidscribe_go_backend/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type UserService struct {
	db     *gorm.DB
	ledger Ledger
	log    zerolog.Logger
}

func NewUserService(db *gorm.DB, ledger Ledger, log zerolog.Logger) *UserService {
	return &UserService{db: db, ledger: ledger, log: log}
}

// CreateOrUpdateUser resolves the JWT identity to a local user row. New
// users get the welcome grant through the ledger so the audit trail is
// complete from the first transaction.
func (s *UserService) CreateOrUpdateUser(ctx context.Context, auth0ID, email, name, nickname string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("auth0_id = ?", auth0ID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{
		Auth0ID:  auth0ID,
		Email:    email,
		Name:     name,
		Nickname: nickname,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}

	if err := s.ledger.Credit(ctx, user.ID, WelcomeCredits, models.TransactionPurchase, "welcome grant", ""); err != nil {
		s.log.Error().Err(err).Str("userID", user.ID.String()).Msg("Failed to apply welcome grant")
	} else {
		user.CreditBalance = WelcomeCredits
	}

	return &user, nil
}

func (s *UserService) GetUserByAuth0ID(ctx context.Context, auth0ID string) (*models.User, error) {
	var user models.User
	result := s.db.WithContext(ctx).Where("auth0_id = ?", auth0ID).First(&user)
	if result.Error != nil {
		return nil, result.Error
	}
	return &user, nil
}
