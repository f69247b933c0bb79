package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vidscribe_go_backend/internal/models"
	"vidscribe_go_backend/internal/stream"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
)

// ChatService serves plain chat and podcast chat. Both are stateless per
// turn: the system prompt, full transcript and all prior turns are
// resent to the provider on every call.
type ChatService struct {
	ledger   Ledger
	pipeline StageRunner
	model    string
	log      zerolog.Logger
}

func NewChatService(ledger Ledger, pipeline StageRunner, model string, log zerolog.Logger) *ChatService {
	return &ChatService{ledger: ledger, pipeline: pipeline, model: model, log: log}
}

type ChatRequest struct {
	Messages   []ChatTurn `json:"messages" binding:"required"`
	Transcript string     `json:"transcript"`
}

// StreamChat charges one turn, replays the conversation and streams the
// reply. Failed turns are refunded; no durable row is written.
func (s *ChatService) StreamChat(ctx context.Context, user *models.User, req ChatRequest, out *stream.Writer) {
	last, history, err := splitHistory(req.Messages)
	if err != nil {
		out.Emit(stream.Event{Type: stream.EventError, Message: err.Error()})
		return
	}

	requestID := uuid.New().String()
	if err := s.ledger.Debit(ctx, user.ID, FeeChatTurn, models.TransactionChat, "chat turn", requestID); err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			out.Emit(stream.Event{Type: stream.EventError, Message: "Insufficient credits for this operation"})
			return
		}
		out.Emit(stream.Event{Type: stream.EventError, Message: "Failed to start the request"})
		return
	}

	_, err = s.pipeline.RunStage(ctx, StageSpec{
		Model:   s.model,
		System:  chatSystemPrompt(req.Transcript),
		History: history,
		Prompt:  last,
	}, func(token string) {
		out.Emit(stream.Event{Type: stream.EventChatChunk, Content: token})
	})
	if err != nil {
		s.log.Error().Err(err).Str("userID", user.ID.String()).Msg("Chat turn failed")
		if _, rerr := s.ledger.RefundOnce(ctx, user.ID, requestID, "chat turn failure"); rerr != nil && !errors.Is(rerr, ErrAlreadyRefunded) {
			s.log.Error().Err(rerr).Str("requestID", requestID).Msg("Refund failed")
		}
		out.Emit(stream.Event{Type: stream.EventError, Message: "Generation failed, your credits have been refunded"})
		return
	}

	out.Emit(stream.Event{Type: stream.EventComplete})
}

// ExtractTranscriptFromPDF pulls plain text out of an uploaded podcast
// transcript PDF.
func ExtractTranscriptFromPDF(pdfPath string) (string, error) {
	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %v", err)
	}
	defer f.Close()

	var content strings.Builder
	totalPage := r.NumPage()

	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}

		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		content.WriteString(text)
		content.WriteString("\n\n")
	}

	if content.Len() == 0 {
		return "", fmt.Errorf("no text content extracted from PDF")
	}

	return content.String(), nil
}
