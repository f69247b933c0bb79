package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vidscribe_go_backend/internal/models"
	"vidscribe_go_backend/internal/stream"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AnalysisService runs the multi-stage "vision + mapping + chat"
// pipeline. Stages execute strictly sequentially; each stage's full
// output is passed forward explicitly in the next stage's prompt, never
// through implicit shared memory.
type AnalysisService struct {
	ledger       Ledger
	transcripts  TranscriptFetcher
	pipeline     StageRunner
	store        SummaryStore
	visionModel  string
	mappingModel string
	chatModel    string
	httpClient   *http.Client
	log          zerolog.Logger
}

func NewAnalysisService(ledger Ledger, transcripts TranscriptFetcher, pipeline StageRunner, store SummaryStore, visionModel, mappingModel, chatModel string, log zerolog.Logger) *AnalysisService {
	return &AnalysisService{
		ledger:       ledger,
		transcripts:  transcripts,
		pipeline:     pipeline,
		store:        store,
		visionModel:  visionModel,
		mappingModel: mappingModel,
		chatModel:    chatModel,
		httpClient:   &http.Client{Timeout: 20 * time.Second},
		log:          log,
	}
}

type AnalysisRequest struct {
	SourceURL   string     `json:"source_url"`
	Mode        string     `json:"mode"` // "start" (default) or "chat"
	UserRequest string     `json:"user_request"`
	Messages    []ChatTurn `json:"messages"`
	Transcript  string     `json:"transcript"`
}

// Run dispatches on mode: a fresh analysis acquires the transcript and
// runs all three stages; a chat turn replays the transcript and history
// the client sent back from a previous ready_for_chat handoff.
func (s *AnalysisService) Run(ctx context.Context, user *models.User, req AnalysisRequest, out *stream.Writer) {
	if req.Mode == "chat" {
		s.runChatTurn(ctx, user, req, out)
		return
	}
	s.runAnalysis(ctx, user, req, out)
}

func (s *AnalysisService) runAnalysis(ctx context.Context, user *models.User, req AnalysisRequest, out *stream.Writer) {
	requestID := uuid.New().String()

	if err := s.ledger.Debit(ctx, user.ID, FeeAnalysis, models.TransactionAnalysis, "video analysis", requestID); err != nil {
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
		s.log.Error().Err(err).Msg("Failed to create analysis row")
		out.Emit(stream.Event{Type: stream.EventError, Message: "Failed to start the request"})
		return
	}

	out.Emit(stream.Event{Type: stream.EventStatus, Message: "Fetching transcript"})

	bundle, err := s.transcripts.FetchTranscript(ctx, req.SourceURL)
	if err != nil {
		s.fail(ctx, user.ID, requestID, summary.ID, out, userFacingAcquisitionError(err))
		return
	}

	if err := s.store.SetSummaryMetadata(ctx, summary.ID, bundle.Title, bundle.Thumbnail); err != nil {
		s.log.Error().Err(err).Uint("summaryID", summary.ID).Msg("Failed to store metadata")
	}
	out.Emit(stream.Event{Type: stream.EventMetadata, Title: bundle.Title, Thumbnail: bundle.Thumbnail})

	// Stage 1: vision. Analyzes the thumbnail alongside the title. The
	// image is best-effort; the stage degrades to text-only if the
	// thumbnail cannot be fetched.
	var images [][]byte
	if bundle.Thumbnail != "" {
		if img, err := s.fetchImage(ctx, bundle.Thumbnail); err != nil {
			s.log.Warn().Err(err).Str("thumbnail", bundle.Thumbnail).Msg("Thumbnail fetch failed, vision stage runs text-only")
		} else {
			images = append(images, img)
		}
	}

	visionText, err := s.pipeline.RunStage(ctx, StageSpec{
		Model:  s.visionModel,
		Prompt: buildVisionPrompt(bundle.Title),
		Images: images,
	}, func(token string) {
		out.Emit(stream.Event{Type: stream.EventVisionChunk, Content: token})
	})
	if err != nil {
		s.log.Error().Err(err).Uint("summaryID", summary.ID).Msg("Vision stage failed")
		s.fail(ctx, user.ID, requestID, summary.ID, out, "Analysis failed, your credits have been refunded")
		return
	}

	// Stage 2: mapping. Correlates the vision findings against the
	// timestamped transcript; the vision output is passed in explicitly.
	mappingText, err := s.pipeline.RunStage(ctx, StageSpec{
		Model:  s.mappingModel,
		Prompt: buildMappingPrompt(visionText, bundle),
	}, func(token string) {
		out.Emit(stream.Event{Type: stream.EventMappingChunk, Content: token})
	})
	if err != nil {
		s.log.Error().Err(err).Uint("summaryID", summary.ID).Msg("Mapping stage failed")
		s.fail(ctx, user.ID, requestID, summary.ID, out, "Analysis failed, your credits have been refunded")
		return
	}

	// Stage 3: open-ended chat over the combined findings.
	chatText, err := s.pipeline.RunStage(ctx, StageSpec{
		Model:  s.chatModel,
		System: chatSystemPrompt(bundle.Text),
		Prompt: firstNonEmpty(req.UserRequest, "Give me the key takeaways from this video."),
	}, func(token string) {
		out.Emit(stream.Event{Type: stream.EventChatChunk, Content: token})
	})
	if err != nil {
		s.log.Error().Err(err).Uint("summaryID", summary.ID).Msg("Chat stage failed")
		s.fail(ctx, user.ID, requestID, summary.ID, out, "Analysis failed, your credits have been refunded")
		return
	}

	combined := fmt.Sprintf("## Visual analysis\n\n%s\n\n## Timestamp mapping\n\n%s\n\n## Discussion\n\n%s", visionText, mappingText, chatText)
	if err := s.store.FinalizeSummary(ctx, summary.ID, combined); err != nil {
		s.log.Error().Err(err).Uint("summaryID", summary.ID).Msg("Failed to persist result")
	}

	out.Emit(stream.Event{Type: stream.EventReadyForChat, Transcript: bundle.Text})
	out.Emit(stream.Event{Type: stream.EventComplete, SummaryID: summary.ID})
}

// runChatTurn handles a follow-up turn. The client resends the
// transcript and full history every call; nothing is kept server-side,
// and no durable row is written for individual turns.
func (s *AnalysisService) runChatTurn(ctx context.Context, user *models.User, req AnalysisRequest, out *stream.Writer) {
	last, history, err := splitHistory(req.Messages)
	if err != nil {
		out.Emit(stream.Event{Type: stream.EventError, Message: err.Error()})
		return
	}

	requestID := uuid.New().String()
	if err := s.ledger.Debit(ctx, user.ID, FeeChatTurn, models.TransactionChat, "analysis chat turn", requestID); err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			out.Emit(stream.Event{Type: stream.EventError, Message: "Insufficient credits for this operation"})
			return
		}
		out.Emit(stream.Event{Type: stream.EventError, Message: "Failed to start the request"})
		return
	}

	_, err = s.pipeline.RunStage(ctx, StageSpec{
		Model:   s.chatModel,
		System:  chatSystemPrompt(req.Transcript),
		History: history,
		Prompt:  last,
	}, func(token string) {
		out.Emit(stream.Event{Type: stream.EventChatChunk, Content: token})
	})
	if err != nil {
		s.log.Error().Err(err).Str("userID", user.ID.String()).Msg("Chat turn failed")
		s.refund(ctx, user.ID, requestID)
		out.Emit(stream.Event{Type: stream.EventError, Message: "Generation failed, your credits have been refunded"})
		return
	}

	out.Emit(stream.Event{Type: stream.EventComplete})
}

func (s *AnalysisService) fail(ctx context.Context, userID uuid.UUID, requestID string, summaryID uint, out *stream.Writer, message string) {
	s.refund(ctx, userID, requestID)
	if err := s.store.DeleteSummary(ctx, summaryID); err != nil {
		s.log.Error().Err(err).Uint("summaryID", summaryID).Msg("Failed to delete analysis row after failure")
	}
	out.Emit(stream.Event{Type: stream.EventError, Message: message})
}

func (s *AnalysisService) refund(ctx context.Context, userID uuid.UUID, requestID string) {
	if _, err := s.ledger.RefundOnce(ctx, userID, requestID, "pipeline failure"); err != nil && !errors.Is(err, ErrAlreadyRefunded) {
		s.log.Error().Err(err).Str("requestID", requestID).Msg("Refund failed")
	}
}

func (s *AnalysisService) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("thumbnail fetch returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// splitHistory validates the replayed conversation and separates the new
// user turn from the prior turns.
func splitHistory(messages []ChatTurn) (string, []ChatTurn, error) {
	if len(messages) == 0 {
		return "", nil, errors.New("chat mode requires at least one message")
	}
	last := messages[len(messages)-1]
	if last.Role != "user" || strings.TrimSpace(last.Content) == "" {
		return "", nil, errors.New("the last message must be a non-empty user turn")
	}
	return last.Content, messages[:len(messages)-1], nil
}

func buildVisionPrompt(title string) string {
	return fmt.Sprintf("You are analyzing a video titled %q using its thumbnail image. "+
		"Describe what the thumbnail promises or claims, the tone it sets, and any text or objects it shows. "+
		"Use markdown.", title)
}

func buildMappingPrompt(visionFindings string, bundle *TranscriptBundle) string {
	var sb strings.Builder
	sb.WriteString("Below are visual findings about a video, followed by its timestamped transcript. ")
	sb.WriteString("Map each finding to the transcript moments that confirm or contradict it, citing timestamps. Use markdown.\n\n")
	sb.WriteString("Findings:\n")
	sb.WriteString(visionFindings)
	sb.WriteString("\n\nTranscript:\n")
	if len(bundle.Segments) == 0 {
		sb.WriteString(bundle.Text)
	} else {
		for _, seg := range bundle.Segments {
			sb.WriteString("[")
			sb.WriteString(FormatTimestamp(seg.Start))
			sb.WriteString("] ")
			sb.WriteString(seg.Text)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func chatSystemPrompt(transcript string) string {
	if strings.TrimSpace(transcript) == "" {
		return "You are a helpful assistant. Answer in markdown with easily readable paragraphs."
	}
	return "You are a helpful assistant answering questions about the following video transcript. " +
		"Ground every answer in the transcript. Answer in markdown with easily readable paragraphs.\n\nTranscript:\n" + transcript
}
