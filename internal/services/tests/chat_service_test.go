package services_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"vidscribe_go_backend/internal/models"
	"vidscribe_go_backend/internal/services"
	"vidscribe_go_backend/internal/stream"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestStreamChatChargesAndStreamsReply(t *testing.T) {
	mockLedger := new(MockLedger)
	mockRunner := new(MockStageRunner)
	service := services.NewChatService(mockLedger, mockRunner, "chat-model", zerolog.Nop())
	user := &models.User{ID: uuid.New()}

	mockLedger.On("Debit", mock.Anything, user.ID, services.FeeChatTurn, models.TransactionChat, "chat turn", mock.AnythingOfType("string")).Return(nil).Once()
	mockRunner.On("RunStage", mock.Anything, mock.MatchedBy(func(stage services.StageSpec) bool {
		return stage.Model == "chat-model" &&
			stage.Prompt == "Who is the guest?" &&
			strings.Contains(stage.System, "episode transcript here")
	}), mock.Anything).Run(func(args mock.Arguments) {
		onToken := args.Get(2).(func(string))
		onToken("The guest is ")
		onToken("a database researcher.")
	}).Return("The guest is a database researcher.", nil).Once()

	var buf bytes.Buffer
	service.StreamChat(context.Background(), user, services.ChatRequest{
		Messages:   []services.ChatTurn{{Role: "user", Content: "Who is the guest?"}},
		Transcript: "episode transcript here",
	}, stream.NewWriter(&buf))

	events := drainEvents(t, &buf)
	require.Len(t, events, 3)
	assert.Equal(t, stream.EventChatChunk, events[0].Type)
	assert.Equal(t, "The guest is ", events[0].Content)
	assert.Equal(t, stream.EventChatChunk, events[1].Type)
	assert.Equal(t, stream.EventComplete, events[2].Type)

	mockLedger.AssertExpectations(t)
	mockRunner.AssertExpectations(t)
}

func TestStreamChatInsufficientCredits(t *testing.T) {
	mockLedger := new(MockLedger)
	mockRunner := new(MockStageRunner)
	service := services.NewChatService(mockLedger, mockRunner, "chat-model", zerolog.Nop())
	user := &models.User{ID: uuid.New()}

	mockLedger.On("Debit", mock.Anything, user.ID, services.FeeChatTurn, models.TransactionChat, "chat turn", mock.AnythingOfType("string")).
		Return(services.ErrInsufficientCredits).Once()

	var buf bytes.Buffer
	service.StreamChat(context.Background(), user, services.ChatRequest{
		Messages: []services.ChatTurn{{Role: "user", Content: "hello"}},
	}, stream.NewWriter(&buf))

	events := drainEvents(t, &buf)
	require.Len(t, events, 1)
	assert.Equal(t, stream.EventError, events[0].Type)
	mockRunner.AssertNotCalled(t, "RunStage", mock.Anything, mock.Anything, mock.Anything)
}
