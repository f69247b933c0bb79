package services

import (
	"context"
	"errors"
	"fmt"

	"vidscribe_go_backend/internal/broker"
	"vidscribe_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrAlreadyRefunded     = errors.New("charge already refunded")
	ErrAlreadyCredited     = errors.New("reference already credited")
	ErrNothingToRefund     = errors.New("no charge recorded for reference")
)

// LedgerService owns the per-user credit balance, the only cross-request
// shared mutable state in the system. Every mutation is a single signed
// delta applied in one SQL statement plus exactly one appended
// CreditTransaction row, inside one database transaction.
type LedgerService struct {
	db     *gorm.DB
	events *broker.Broker
	log    zerolog.Logger
}

func NewLedgerService(db *gorm.DB, events *broker.Broker, log zerolog.Logger) *LedgerService {
	return &LedgerService{db: db, events: events, log: log}
}

// Debit charges amount against the user's balance. The balance check and
// the subtraction are one UPDATE, so concurrent requests from the same
// user cannot interleave a stale read; zero affected rows means the
// balance was short and nothing was written.
func (s *LedgerService) Debit(ctx context.Context, userID uuid.UUID, amount float64, kind, description, reference string) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %v", amount)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND credit_balance >= ?", userID, amount).
			UpdateColumn("credit_balance", gorm.Expr("credit_balance - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientCredits
		}
		return tx.Create(&models.CreditTransaction{
			UserID:      userID,
			Amount:      -amount,
			Kind:        kind,
			Description: description,
			ReferenceID: reference,
		}).Error
	})
	if err != nil {
		return err
	}

	s.publishBalance(ctx, userID)
	return nil
}

// Credit adds amount to the user's balance. Always succeeds for a valid
// user; used for purchases, grants and downward pricing adjustments.
func (s *LedgerService) Credit(ctx context.Context, userID uuid.UUID, amount float64, kind, description, reference string) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %v", amount)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ?", userID).
			UpdateColumn("credit_balance", gorm.Expr("credit_balance + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Create(&models.CreditTransaction{
			UserID:      userID,
			Amount:      amount,
			Kind:        kind,
			Description: description,
			ReferenceID: reference,
		}).Error
	})
	if err != nil {
		return err
	}

	s.publishBalance(ctx, userID)
	return nil
}

// CreditOnce applies Credit at most once per (kind, reference) pair.
// Payment webhooks are redelivered on timeouts and retries; a replayed
// completion event must not stack credits.
func (s *LedgerService) CreditOnce(ctx context.Context, userID uuid.UUID, amount float64, kind, description, reference string) error {
	if reference == "" {
		return fmt.Errorf("credit-once requires a reference")
	}
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %v", amount)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.CreditTransaction{}).
			Where("reference_id = ? AND kind = ?", reference, kind).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyCredited
		}

		res := tx.Model(&models.User{}).
			Where("id = ?", userID).
			UpdateColumn("credit_balance", gorm.Expr("credit_balance + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Create(&models.CreditTransaction{
			UserID:      userID,
			Amount:      amount,
			Kind:        kind,
			Description: description,
			ReferenceID: reference,
		}).Error
	})
	if err != nil {
		return err
	}

	s.publishBalance(ctx, userID)
	return nil
}

// RefundOnce reverses the net amount charged under a reference, at most
// once. Both the hot-path compensation and the stale sweep funnel
// through here, so a crash between the two cannot double-refund.
func (s *LedgerService) RefundOnce(ctx context.Context, userID uuid.UUID, reference, description string) (float64, error) {
	if reference == "" {
		return 0, fmt.Errorf("refund requires a reference")
	}

	var refunded float64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.CreditTransaction{}).
			Where("reference_id = ? AND kind = ?", reference, models.TransactionRefund).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyRefunded
		}

		// Net charge includes the base debit and any tier adjustment rows
		// written under the same reference.
		var netCharged float64
		if err := tx.Model(&models.CreditTransaction{}).
			Where("reference_id = ? AND user_id = ?", reference, userID).
			Select("COALESCE(SUM(amount), 0)").
			Scan(&netCharged).Error; err != nil {
			return err
		}
		if netCharged >= 0 {
			return ErrNothingToRefund
		}
		refunded = -netCharged

		res := tx.Model(&models.User{}).
			Where("id = ?", userID).
			UpdateColumn("credit_balance", gorm.Expr("credit_balance + ?", refunded))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		// The count check above is not serialized under READ COMMITTED;
		// the partial unique index on refund rows is what makes two
		// truly concurrent refunds impossible. The loser's insert fails
		// and its balance update rolls back with it.
		if err := tx.Create(&models.CreditTransaction{
			UserID:      userID,
			Amount:      refunded,
			Kind:        models.TransactionRefund,
			Description: description,
			ReferenceID: reference,
		}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyRefunded
			}
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info().
		Str("userID", userID.String()).
		Str("reference", reference).
		Float64("amount", refunded).
		Msg("Refunded charge")
	s.publishBalance(ctx, userID)
	return refunded, nil
}

func (s *LedgerService) Balance(ctx context.Context, userID uuid.UUID) (float64, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Select("credit_balance").First(&user, "id = ?", userID).Error; err != nil {
		return 0, err
	}
	return user.CreditBalance, nil
}

func (s *LedgerService) Transactions(ctx context.Context, userID uuid.UUID) ([]models.CreditTransaction, error) {
	var txs []models.CreditTransaction
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&txs)
	if result.Error != nil {
		return nil, result.Error
	}
	return txs, nil
}

func (s *LedgerService) publishBalance(ctx context.Context, userID uuid.UUID) {
	if s.events == nil {
		return
	}
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Str("userID", userID.String()).Msg("Failed to read balance for push")
		return
	}
	s.events.Publish("credit_update_"+userID.String(), fmt.Sprintf("%.2f", balance))
}
