package services

import (
	"context"
	"time"

	"vidscribe_go_backend/internal/models"

	"github.com/google/uuid"
)

// TranscriptSegment is one timestamped piece of a transcript.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	Text  string  `json:"text"`
}

// TranscriptBundle is the canonical acquisition result. It is ephemeral:
// consumed by the pipeline and echoed back to the client for follow-up
// chat turns, never persisted as its own entity.
type TranscriptBundle struct {
	Title     string
	Thumbnail string
	Text      string
	Segments  []TranscriptSegment
}

// ChatTurn is one conversation message. Turns are immutable once appended
// and the full history is replayed to the provider on every call; no
// server-side conversation state exists between turns.
type ChatTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// StageSpec describes one LLM request/response cycle. Stages are
// independent: a later stage sees an earlier stage's output only if the
// caller embeds it in the prompt.
type StageSpec struct {
	Model   string
	System  string
	History []ChatTurn
	Prompt  string
	Images  [][]byte // JPEG payloads for multimodal stages
}

type Ledger interface {
	Debit(ctx context.Context, userID uuid.UUID, amount float64, kind, description, reference string) error
	Credit(ctx context.Context, userID uuid.UUID, amount float64, kind, description, reference string) error
	CreditOnce(ctx context.Context, userID uuid.UUID, amount float64, kind, description, reference string) error
	RefundOnce(ctx context.Context, userID uuid.UUID, reference, description string) (float64, error)
	Balance(ctx context.Context, userID uuid.UUID) (float64, error)
	Transactions(ctx context.Context, userID uuid.UUID) ([]models.CreditTransaction, error)
}

type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, url string) (*TranscriptBundle, error)
}

type StageRunner interface {
	RunStage(ctx context.Context, stage StageSpec, onToken func(string)) (string, error)
}

type SummaryStore interface {
	CreateSummary(ctx context.Context, userID uuid.UUID, requestID, sourceURL string) (*models.Summary, error)
	SetSummaryMetadata(ctx context.Context, id uint, title, thumbnail string) error
	FinalizeSummary(ctx context.Context, id uint, result string) error
	DeleteSummary(ctx context.Context, id uint) error
	GetSummaryByID(ctx context.Context, id uint) (*models.Summary, error)
	ListSummariesByUser(ctx context.Context, userID uuid.UUID) ([]models.Summary, error)
	StaleSummaries(ctx context.Context, olderThan time.Time) ([]models.Summary, error)
}
