package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"vidscribe_go_backend/internal/models"
	"vidscribe_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

func staleRow(id uint, userID uuid.UUID, requestID string) models.Summary {
	row := models.Summary{UserID: userID, RequestID: requestID}
	row.ID = id
	return row
}

func TestSweepOnceRefundsAndDeletesAbandonedRows(t *testing.T) {
	mockLedger := new(MockLedger)
	mockStore := new(MockSummaryStore)
	sweeper := services.NewStaleSweeper(mockStore, mockLedger, 10*time.Minute, time.Minute, zerolog.Nop())

	userID := uuid.New()
	rows := []models.Summary{
		staleRow(1, userID, "req-1"),
		staleRow(2, userID, "req-2"),
	}

	mockStore.On("StaleSummaries", mock.Anything, mock.AnythingOfType("time.Time")).Return(rows, nil).Once()
	mockLedger.On("RefundOnce", mock.Anything, userID, "req-1", "abandoned request").Return(1.0, nil).Once()
	mockLedger.On("RefundOnce", mock.Anything, userID, "req-2", "abandoned request").Return(1.0, nil).Once()
	mockStore.On("DeleteSummary", mock.Anything, uint(1)).Return(nil).Once()
	mockStore.On("DeleteSummary", mock.Anything, uint(2)).Return(nil).Once()

	sweeper.SweepOnce(context.Background())

	mockLedger.AssertExpectations(t)
	mockStore.AssertExpectations(t)
}

func TestSweepOnceDeletesRowsAlreadyRefunded(t *testing.T) {
	mockLedger := new(MockLedger)
	mockStore := new(MockSummaryStore)
	sweeper := services.NewStaleSweeper(mockStore, mockLedger, 10*time.Minute, time.Minute, zerolog.Nop())

	userID := uuid.New()
	rows := []models.Summary{staleRow(3, userID, "req-3")}

	// The hot path refunded this request before the process died; the
	// sweep still removes the leftover row.
	mockStore.On("StaleSummaries", mock.Anything, mock.AnythingOfType("time.Time")).Return(rows, nil).Once()
	mockLedger.On("RefundOnce", mock.Anything, userID, "req-3", "abandoned request").Return(0.0, services.ErrAlreadyRefunded).Once()
	mockStore.On("DeleteSummary", mock.Anything, uint(3)).Return(nil).Once()

	sweeper.SweepOnce(context.Background())

	mockLedger.AssertExpectations(t)
	mockStore.AssertExpectations(t)
}

func TestSweepOnceKeepsRowWhenRefundFails(t *testing.T) {
	mockLedger := new(MockLedger)
	mockStore := new(MockSummaryStore)
	sweeper := services.NewStaleSweeper(mockStore, mockLedger, 10*time.Minute, time.Minute, zerolog.Nop())

	userID := uuid.New()
	rows := []models.Summary{staleRow(4, userID, "req-4")}

	mockStore.On("StaleSummaries", mock.Anything, mock.AnythingOfType("time.Time")).Return(rows, nil).Once()
	mockLedger.On("RefundOnce", mock.Anything, userID, "req-4", "abandoned request").Return(0.0, errors.New("db down")).Once()

	sweeper.SweepOnce(context.Background())

	// The row survives so the next sweep can retry the refund.
	mockStore.AssertNotCalled(t, "DeleteSummary", mock.Anything, mock.Anything)
	mockLedger.AssertExpectations(t)
}
