package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/invoiceflow/invoice-verifier/internal/config"
	"github.com/invoiceflow/invoice-verifier/internal/models"
)

// scriptedClient records the last request and returns a scripted reply.
type scriptedClient struct {
	lastReq openai.ChatCompletionRequest
	reply   string
	err     error
}

func (c *scriptedClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.lastReq = req
	if c.err != nil {
		return openai.ChatCompletionResponse{}, c.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: c.reply}},
		},
	}, nil
}

type memoryStore struct {
	messages []*models.ChatMessage
	saveErr  error
	listErr  error
}

func (s *memoryStore) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *memoryStore) ListBySession(ctx context.Context, sessionID string) ([]*models.ChatMessage, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*models.ChatMessage
	for _, msg := range s.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func testService(client chatCompleter, store MessageStore) *Service {
	svc := NewService(config.ExtractionConfig{
		Model:     "gpt-4o",
		MaxTokens: 4096,
		Timeout:   time.Second,
	}, store, zap.NewNop())
	svc.client = client
	return svc
}

func acceptedResult() *models.ProcessingResult {
	return &models.ProcessingResult{
		ID:     "res-1",
		Status: models.StatusAccepted,
		InvoiceFields: &models.DocumentFields{
			InvoiceNumber: "INV-42",
			TotalAmount:   590,
			Currency:      "INR",
		},
		Summary: "Invoice INV-42 accepted.",
	}
}

func TestService_Answer_PersistsBothTurns(t *testing.T) {
	store := &memoryStore{}
	client := &scriptedClient{reply: "The total is ₹590."}
	svc := testService(client, store)

	answer, err := svc.Answer(context.Background(), "sess-1", acceptedResult(), "What is the total?")

	require.NoError(t, err)
	assert.Equal(t, "The total is ₹590.", answer)
	require.Len(t, store.messages, 2)
	assert.Equal(t, models.ChatRoleUser, store.messages[0].Role)
	assert.Equal(t, "What is the total?", store.messages[0].Content)
	assert.Equal(t, models.ChatRoleAssistant, store.messages[1].Role)
	assert.Equal(t, "res-1", store.messages[1].ResultID)
	assert.Equal(t, "sess-1", store.messages[1].SessionID)
}

func TestService_Answer_GroundsRequestInResult(t *testing.T) {
	client := &scriptedClient{reply: "ok"}
	svc := testService(client, &memoryStore{})

	_, err := svc.Answer(context.Background(), "sess-1", acceptedResult(), "Was it accepted?")

	require.NoError(t, err)
	require.NotEmpty(t, client.lastReq.Messages)
	system := client.lastReq.Messages[0]
	assert.Equal(t, openai.ChatMessageRoleSystem, system.Role)
	assert.Contains(t, system.Content, "INV-42", "system context must carry the result envelope")
	assert.Contains(t, system.Content, "accepted")
}

func TestService_Answer_ReplaysSessionHistory(t *testing.T) {
	store := &memoryStore{messages: []*models.ChatMessage{
		{SessionID: "sess-1", Role: models.ChatRoleUser, Content: "Was it accepted?"},
		{SessionID: "sess-1", Role: models.ChatRoleAssistant, Content: "Yes."},
		{SessionID: "other", Role: models.ChatRoleUser, Content: "unrelated"},
	}}
	client := &scriptedClient{reply: "₹590."}
	svc := testService(client, store)

	_, err := svc.Answer(context.Background(), "sess-1", acceptedResult(), "And the total?")

	require.NoError(t, err)
	// system + two replayed turns + new question
	require.Len(t, client.lastReq.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleAssistant, client.lastReq.Messages[2].Role)
	assert.Equal(t, "Yes.", client.lastReq.Messages[2].Content)
	assert.Equal(t, "And the total?", client.lastReq.Messages[3].Content)
}

func TestService_Answer_NoClient(t *testing.T) {
	svc := NewService(config.ExtractionConfig{Timeout: time.Second}, &memoryStore{}, zap.NewNop())

	_, err := svc.Answer(context.Background(), "sess-1", acceptedResult(), "anything")

	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestService_Answer_EmptyQuestion(t *testing.T) {
	svc := testService(&scriptedClient{reply: "ok"}, &memoryStore{})

	_, err := svc.Answer(context.Background(), "sess-1", acceptedResult(), "   ")

	assert.Error(t, err)
}

func TestService_Answer_ProviderError(t *testing.T) {
	store := &memoryStore{}
	svc := testService(&scriptedClient{err: fmt.Errorf("connection refused")}, store)

	_, err := svc.Answer(context.Background(), "sess-1", acceptedResult(), "What happened?")

	require.Error(t, err)
	assert.Empty(t, store.messages, "failed queries must not leave partial turns")
}

func TestService_Answer_StoreFailureKeepsAnswer(t *testing.T) {
	store := &memoryStore{saveErr: fmt.Errorf("disk full")}
	svc := testService(&scriptedClient{reply: "Still answered."}, store)

	answer, err := svc.Answer(context.Background(), "sess-1", acceptedResult(), "What is the verdict?")

	require.NoError(t, err)
	assert.Equal(t, "Still answered.", answer)
}

func TestService_Answer_HistoryLoadFailureIsTolerated(t *testing.T) {
	store := &memoryStore{listErr: fmt.Errorf("table locked")}
	svc := testService(&scriptedClient{reply: "Answered anyway."}, store)

	answer, err := svc.Answer(context.Background(), "sess-1", acceptedResult(), "What is the verdict?")

	require.NoError(t, err)
	assert.Equal(t, "Answered anyway.", answer)
}
