package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

var ErrEmptyGeneration = errors.New("provider returned an empty response")

// LLMService runs single stages of a pipeline against the generative
// provider with true incremental streaming: every non-empty delta is
// handed to onToken in arrival order before the next frame is pulled, so
// the caller never waits for the full response.
type LLMService struct {
	client *genai.Client
	log    zerolog.Logger
}

func NewLLMService(client *genai.Client, log zerolog.Logger) *LLMService {
	return &LLMService{client: client, log: log}
}

func (s *LLMService) RunStage(ctx context.Context, stage StageSpec, onToken func(string)) (string, error) {
	model := s.client.GenerativeModel(stage.Model)
	if stage.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(stage.System))
	}

	var parts []genai.Part
	for _, img := range stage.Images {
		parts = append(parts, genai.ImageData("jpeg", img))
	}
	parts = append(parts, genai.Text(stage.Prompt))

	var responseIterator *genai.GenerateContentResponseIterator
	if len(stage.History) > 0 {
		session := model.StartChat()
		session.History = historyToContents(stage.History)
		responseIterator = session.SendMessageStream(ctx, parts...)
	} else {
		responseIterator = model.GenerateContentStream(ctx, parts...)
	}

	var full strings.Builder
	for {
		response, err := responseIterator.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", fmt.Errorf("generation failed: %w", err)
		}
		for _, candidate := range response.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				text, ok := part.(genai.Text)
				if !ok || len(text) == 0 {
					continue
				}
				full.WriteString(string(text))
				if onToken != nil {
					onToken(string(text))
				}
			}
		}
	}

	if full.Len() == 0 {
		return "", ErrEmptyGeneration
	}
	return full.String(), nil
}

// historyToContents replays prior turns in provider form. The provider
// calls the assistant role "model".
func historyToContents(turns []ChatTurn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := "user"
		if turn.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(turn.Content)},
		})
	}
	return contents
}
