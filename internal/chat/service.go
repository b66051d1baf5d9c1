// Package chat answers follow-up questions about processed invoices. A
// conversation is a session of persisted messages pinned to one result;
// every answer is grounded in that result's stored envelope.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/invoiceflow/invoice-verifier/internal/config"
	"github.com/invoiceflow/invoice-verifier/internal/models"
)

// ErrUnavailable is returned when follow-up queries cannot be served
// because no language-model client is configured.
var ErrUnavailable = errors.New("follow-up queries require an extraction API key")

// chatCompleter is the slice of the OpenAI client the service uses.
// *openai.Client satisfies it; tests substitute a scripted fake.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// MessageStore persists and replays conversation turns.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *models.ChatMessage) error
	ListBySession(ctx context.Context, sessionID string) ([]*models.ChatMessage, error)
}

// Service answers follow-up questions about a processed result.
type Service struct {
	client chatCompleter
	store  MessageStore
	cfg    config.ExtractionConfig
	logger *zap.Logger
}

// NewService creates a follow-up query service. A missing API key is not
// an error here; Answer reports ErrUnavailable per query instead.
func NewService(cfg config.ExtractionConfig, store MessageStore, logger *zap.Logger) *Service {
	var client chatCompleter
	if cfg.APIKey != "" {
		client = openai.NewClient(cfg.APIKey)
	}

	return &Service{
		client: client,
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// Answer answers one follow-up question about a result. Earlier turns of
// the session are replayed as conversation context, and both the question
// and the answer are persisted as new turns. Persistence is best-effort:
// a storage failure is logged but never loses the answer.
func (s *Service) Answer(ctx context.Context, sessionID string, result *models.ProcessingResult, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("question must not be empty")
	}
	if s.client == nil {
		return "", ErrUnavailable
	}

	history, err := s.store.ListBySession(ctx, sessionID)
	if err != nil {
		s.logger.Warn("Failed to load chat history, answering without it",
			zap.String("session", sessionID),
			zap.Error(err))
		history = nil
	}

	req, err := s.buildRequest(result, history, question)
	if err != nil {
		return "", err
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(queryCtx, req)
	if err != nil {
		return "", fmt.Errorf("follow-up query failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from follow-up query provider")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", fmt.Errorf("empty answer from follow-up query provider")
	}

	s.persistTurn(ctx, sessionID, result.ID, models.ChatRoleUser, question)
	s.persistTurn(ctx, sessionID, result.ID, models.ChatRoleAssistant, answer)

	s.logger.Info("Follow-up query answered",
		zap.String("session", sessionID),
		zap.String("result_id", result.ID))
	return answer, nil
}

func (s *Service) buildRequest(result *models.ProcessingResult, history []*models.ChatMessage, question string) (openai.ChatCompletionRequest, error) {
	envelope, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return openai.ChatCompletionRequest{}, fmt.Errorf("failed to encode result for query context: %w", err)
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: fmt.Sprintf(followUpInstruction, string(envelope)),
		},
	}
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Role == models.ChatRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: question,
	})

	return openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
		Messages:    messages,
	}, nil
}

func (s *Service) persistTurn(ctx context.Context, sessionID, resultID, role, content string) {
	err := s.store.SaveMessage(ctx, &models.ChatMessage{
		SessionID: sessionID,
		ResultID:  resultID,
		Role:      role,
		Content:   content,
	})
	if err != nil {
		s.logger.Warn("Failed to persist chat turn",
			zap.String("session", sessionID),
			zap.String("role", role),
			zap.Error(err))
	}
}

// followUpInstruction frames the model as an assistant for one verified
// invoice. The persisted result envelope is the only source of truth.
const followUpInstruction = `You are an assistant answering follow-up questions about a single processed invoice verification.

The complete verification record is below as JSON. Answer only from this record: the extracted fields, the validation issues, the purchase-order comparison and the final verdict. If the record does not contain the answer, say so plainly instead of guessing.

Verification record:
%s`
