package services_test

import (
	"context"
	"time"

	"vidscribe_go_backend/internal/models"
	"vidscribe_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Debit(ctx context.Context, userID uuid.UUID, amount float64, kind, description, reference string) error {
	args := m.Called(ctx, userID, amount, kind, description, reference)
	return args.Error(0)
}

func (m *MockLedger) Credit(ctx context.Context, userID uuid.UUID, amount float64, kind, description, reference string) error {
	args := m.Called(ctx, userID, amount, kind, description, reference)
	return args.Error(0)
}

func (m *MockLedger) CreditOnce(ctx context.Context, userID uuid.UUID, amount float64, kind, description, reference string) error {
	args := m.Called(ctx, userID, amount, kind, description, reference)
	return args.Error(0)
}

func (m *MockLedger) RefundOnce(ctx context.Context, userID uuid.UUID, reference, description string) (float64, error) {
	args := m.Called(ctx, userID, reference, description)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockLedger) Balance(ctx context.Context, userID uuid.UUID) (float64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockLedger) Transactions(ctx context.Context, userID uuid.UUID) ([]models.CreditTransaction, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CreditTransaction), args.Error(1)
}

type MockTranscriptFetcher struct {
	mock.Mock
}

func (m *MockTranscriptFetcher) FetchTranscript(ctx context.Context, url string) (*services.TranscriptBundle, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TranscriptBundle), args.Error(1)
}

type MockStageRunner struct {
	mock.Mock
}

func (m *MockStageRunner) RunStage(ctx context.Context, stage services.StageSpec, onToken func(string)) (string, error) {
	args := m.Called(ctx, stage, onToken)
	return args.String(0), args.Error(1)
}

type MockSummaryStore struct {
	mock.Mock
}

func (m *MockSummaryStore) CreateSummary(ctx context.Context, userID uuid.UUID, requestID, sourceURL string) (*models.Summary, error) {
	args := m.Called(ctx, userID, requestID, sourceURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Summary), args.Error(1)
}

func (m *MockSummaryStore) SetSummaryMetadata(ctx context.Context, id uint, title, thumbnail string) error {
	args := m.Called(ctx, id, title, thumbnail)
	return args.Error(0)
}

func (m *MockSummaryStore) FinalizeSummary(ctx context.Context, id uint, result string) error {
	args := m.Called(ctx, id, result)
	return args.Error(0)
}

func (m *MockSummaryStore) DeleteSummary(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSummaryStore) GetSummaryByID(ctx context.Context, id uint) (*models.Summary, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Summary), args.Error(1)
}

func (m *MockSummaryStore) ListSummariesByUser(ctx context.Context, userID uuid.UUID) ([]models.Summary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Summary), args.Error(1)
}

func (m *MockSummaryStore) StaleSummaries(ctx context.Context, olderThan time.Time) ([]models.Summary, error) {
	args := m.Called(ctx, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Summary), args.Error(1)
}
