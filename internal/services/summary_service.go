package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vidscribe_go_backend/internal/models"
	"vidscribe_go_backend/internal/stream"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SummaryService orchestrates one summarization request end to end:
// admission debit, durable row, transcript acquisition, tier
// reconciliation, streamed generation, persistence. Any failure between
// the debit and persistence is compensated with exactly one refund and
// the row is removed, so failed attempts never appear in history.
type SummaryService struct {
	ledger      Ledger
	transcripts TranscriptFetcher
	pipeline    StageRunner
	store       SummaryStore
	model       string
	log         zerolog.Logger
}

func NewSummaryService(ledger Ledger, transcripts TranscriptFetcher, pipeline StageRunner, store SummaryStore, model string, log zerolog.Logger) *SummaryService {
	return &SummaryService{
		ledger:      ledger,
		transcripts: transcripts,
		pipeline:    pipeline,
		store:       store,
		model:       model,
		log:         log,
	}
}

type SummaryRequest struct {
	SourceURL   string `json:"source_url" binding:"required"`
	UserRequest string `json:"user_request"`
}

// SummaryResponse is the non-streaming variant's payload.
type SummaryResponse struct {
	Title          string `json:"title"`
	Thumbnail      string `json:"thumbnail"`
	Summary        string `json:"summary"`
	FullTranscript string `json:"full_transcript,omitempty"`
}

// Run executes the streaming variant, emitting events on out. All
// outcomes, including failures, end in exactly one terminal event.
func (s *SummaryService) Run(ctx context.Context, user *models.User, req SummaryRequest, out *stream.Writer) {
	requestID := uuid.New().String()

	if err := s.ledger.Debit(ctx, user.ID, FeeSummaryBase, models.TransactionUsage, "video summary", requestID); err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			out.Emit(stream.Event{Type: stream.EventError, Message: "Insufficient credits for this operation"})
			return
		}
		s.log.Error().Err(err).Str("userID", user.ID.String()).Msg("Admission debit failed")
		out.Emit(stream.Event{Type: stream.EventError, Message: "Failed to start the request"})
		return
	}

	summary, err := s.store.CreateSummary(ctx, user.ID, requestID, req.SourceURL)
	if err != nil {
		s.refund(ctx, user.ID, requestID)
		s.log.Error().Err(err).Msg("Failed to create summary row")
		out.Emit(stream.Event{Type: stream.EventError, Message: "Failed to start the request"})
		return
	}

	out.Emit(stream.Event{Type: stream.EventStatus, Message: "Fetching transcript"})

	bundle, err := s.transcripts.FetchTranscript(ctx, req.SourceURL)
	if err != nil {
		s.fail(ctx, user.ID, requestID, summary.ID, out, userFacingAcquisitionError(err))
		return
	}

	if err := s.adjustToTier(ctx, user.ID, requestID, len(bundle.Segments)); err != nil {
		s.fail(ctx, user.ID, requestID, summary.ID, out, "Insufficient credits for a transcript of this length")
		return
	}

	if err := s.store.SetSummaryMetadata(ctx, summary.ID, bundle.Title, bundle.Thumbnail); err != nil {
		s.log.Error().Err(err).Uint("summaryID", summary.ID).Msg("Failed to store metadata")
	}
	out.Emit(stream.Event{Type: stream.EventMetadata, Title: bundle.Title, Thumbnail: bundle.Thumbnail})

	text, err := s.pipeline.RunStage(ctx, StageSpec{
		Model:  s.model,
		Prompt: buildSummaryPrompt(bundle, req.UserRequest),
	}, func(token string) {
		out.Emit(stream.Event{Type: stream.EventSummaryChunk, Content: token})
	})
	if err != nil {
		s.log.Error().Err(err).Uint("summaryID", summary.ID).Msg("Generation failed")
		s.fail(ctx, user.ID, requestID, summary.ID, out, "Generation failed, your credits have been refunded")
		return
	}

	// The user already received the content; persistence errors are
	// logged, never refunded.
	if err := s.store.FinalizeSummary(ctx, summary.ID, text); err != nil {
		s.log.Error().Err(err).Uint("summaryID", summary.ID).Msg("Failed to persist result")
	}

	out.Emit(stream.Event{Type: stream.EventReadyForChat, Transcript: bundle.Text})
	out.Emit(stream.Event{Type: stream.EventComplete, SummaryID: summary.ID})
}

// RunSync is the non-streaming variant: same state machine, one JSON
// payload at the end instead of an event stream.
func (s *SummaryService) RunSync(ctx context.Context, user *models.User, req SummaryRequest) (*SummaryResponse, error) {
	requestID := uuid.New().String()

	if err := s.ledger.Debit(ctx, user.ID, FeeSummaryBase, models.TransactionUsage, "video summary", requestID); err != nil {
		return nil, err
	}

	summary, err := s.store.CreateSummary(ctx, user.ID, requestID, req.SourceURL)
	if err != nil {
		s.refund(ctx, user.ID, requestID)
		return nil, err
	}

	bundle, err := s.transcripts.FetchTranscript(ctx, req.SourceURL)
	if err != nil {
		s.compensate(ctx, user.ID, requestID, summary.ID)
		return nil, err
	}

	if err := s.adjustToTier(ctx, user.ID, requestID, len(bundle.Segments)); err != nil {
		s.compensate(ctx, user.ID, requestID, summary.ID)
		return nil, ErrInsufficientCredits
	}

	if err := s.store.SetSummaryMetadata(ctx, summary.ID, bundle.Title, bundle.Thumbnail); err != nil {
		s.log.Error().Err(err).Uint("summaryID", summary.ID).Msg("Failed to store metadata")
	}

	text, err := s.pipeline.RunStage(ctx, StageSpec{
		Model:  s.model,
		Prompt: buildSummaryPrompt(bundle, req.UserRequest),
	}, nil)
	if err != nil {
		s.compensate(ctx, user.ID, requestID, summary.ID)
		return nil, err
	}

	if err := s.store.FinalizeSummary(ctx, summary.ID, text); err != nil {
		s.log.Error().Err(err).Uint("summaryID", summary.ID).Msg("Failed to persist result")
	}

	return &SummaryResponse{
		Title:          bundle.Title,
		Thumbnail:      bundle.Thumbnail,
		Summary:        text,
		FullTranscript: bundle.Text,
	}, nil
}

// adjustToTier reconciles the flat admission fee against the
// length-based tier once the transcript size is known. The delta is
// applied once, in either direction, under the same reference.
func (s *SummaryService) adjustToTier(ctx context.Context, userID uuid.UUID, requestID string, segmentCount int) error {
	required := TierCredits(segmentCount)
	delta := required - FeeSummaryBase
	switch {
	case delta > 0:
		return s.ledger.Debit(ctx, userID, delta, models.TransactionUsage, "length tier adjustment", requestID)
	case delta < 0:
		return s.ledger.Credit(ctx, userID, -delta, models.TransactionUsage, "length tier adjustment", requestID)
	default:
		return nil
	}
}

// fail compensates a charged run and emits the terminal error event.
func (s *SummaryService) fail(ctx context.Context, userID uuid.UUID, requestID string, summaryID uint, out *stream.Writer, message string) {
	s.compensate(ctx, userID, requestID, summaryID)
	out.Emit(stream.Event{Type: stream.EventError, Message: message})
}

func (s *SummaryService) compensate(ctx context.Context, userID uuid.UUID, requestID string, summaryID uint) {
	s.refund(ctx, userID, requestID)
	if err := s.store.DeleteSummary(ctx, summaryID); err != nil {
		s.log.Error().Err(err).Uint("summaryID", summaryID).Msg("Failed to delete summary row after failure")
	}
}

func (s *SummaryService) refund(ctx context.Context, userID uuid.UUID, requestID string) {
	if _, err := s.ledger.RefundOnce(ctx, userID, requestID, "pipeline failure"); err != nil && !errors.Is(err, ErrAlreadyRefunded) {
		s.log.Error().Err(err).Str("requestID", requestID).Msg("Refund failed")
	}
}

func userFacingAcquisitionError(err error) string {
	if errors.Is(err, ErrNoTranscript) {
		return ErrNoTranscript.Error()
	}
	return "Failed to fetch the transcript, your credits have been refunded"
}

const defaultSummaryInstruction = "Summarize the video transcript below. Use markdown with headings, " +
	"bold key points, and bullet lists. Open with a one-paragraph overview, then the main points in order."

func buildSummaryPrompt(bundle *TranscriptBundle, userRequest string) string {
	instruction := defaultSummaryInstruction
	if strings.TrimSpace(userRequest) != "" {
		instruction = userRequest
	}
	return fmt.Sprintf("%s\n\nTitle: %s\n\nTranscript:\n%s", instruction, bundle.Title, bundle.Text)
}
