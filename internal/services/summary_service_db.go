package services

import (
	"context"
	"time"

	"vidscribe_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultSummaryStore implements SummaryStore over the relational store.
type DefaultSummaryStore struct {
	db *gorm.DB
}

func NewSummaryStore(db *gorm.DB) SummaryStore {
	return &DefaultSummaryStore{db: db}
}

// CreateSummary writes the in-progress row the instant credits are
// debited, so a mid-pipeline crash leaves an auditable trace.
func (s *DefaultSummaryStore) CreateSummary(ctx context.Context, userID uuid.UUID, requestID, sourceURL string) (*models.Summary, error) {
	summary := &models.Summary{
		UserID:    userID,
		RequestID: requestID,
		SourceURL: sourceURL,
		Result:    "",
	}
	if err := s.db.WithContext(ctx).Create(summary).Error; err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *DefaultSummaryStore) SetSummaryMetadata(ctx context.Context, id uint, title, thumbnail string) error {
	return s.db.WithContext(ctx).Model(&models.Summary{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"title":     title,
			"thumbnail": thumbnail,
		}).Error
}

// FinalizeSummary writes the accumulated result exactly once, after the
// last stage completes.
func (s *DefaultSummaryStore) FinalizeSummary(ctx context.Context, id uint, result string) error {
	return s.db.WithContext(ctx).Model(&models.Summary{}).
		Where("id = ?", id).
		UpdateColumn("result", result).Error
}

// DeleteSummary removes the row of a failed run so it never surfaces in
// history as a phantom entry.
func (s *DefaultSummaryStore) DeleteSummary(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&models.Summary{}, id).Error
}

func (s *DefaultSummaryStore) GetSummaryByID(ctx context.Context, id uint) (*models.Summary, error) {
	var summary models.Summary
	if err := s.db.WithContext(ctx).First(&summary, id).Error; err != nil {
		return nil, err
	}
	return &summary, nil
}

// ListSummariesByUser returns the user's history: completed rows only,
// newest first. In-progress rows (empty result) stay hidden.
func (s *DefaultSummaryStore) ListSummariesByUser(ctx context.Context, userID uuid.UUID) ([]models.Summary, error) {
	var summaries []models.Summary
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND result <> ''", userID).
		Order("created_at desc").
		Find(&summaries)
	if result.Error != nil {
		return nil, result.Error
	}
	return summaries, nil
}

// StaleSummaries returns in-progress rows abandoned past the staleness
// window, for the sweeper to refund and remove.
func (s *DefaultSummaryStore) StaleSummaries(ctx context.Context, olderThan time.Time) ([]models.Summary, error) {
	var summaries []models.Summary
	result := s.db.WithContext(ctx).
		Where("result = '' AND created_at < ?", olderThan).
		Find(&summaries)
	if result.Error != nil {
		return nil, result.Error
	}
	return summaries, nil
}
