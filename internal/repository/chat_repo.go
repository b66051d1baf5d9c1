package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoiceflow/invoice-verifier/internal/models"
	"github.com/invoiceflow/invoice-verifier/pkg/database"
)

// ChatRepository persists follow-up conversation turns.
type ChatRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewChatRepository creates a new chat repository.
func NewChatRepository(db *database.DB, logger *zap.Logger) *ChatRepository {
	return &ChatRepository{
		db:     db,
		logger: logger,
	}
}

// SaveMessage assigns the message a fresh ID and creation time, then
// writes it.
func (r *ChatRepository) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.SessionID == "" {
		return fmt.Errorf("chat message requires a session id")
	}
	if msg.Role != models.ChatRoleUser && msg.Role != models.ChatRoleAssistant {
		return fmt.Errorf("refusing to persist unknown chat role %q", msg.Role)
	}

	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO chat_messages (id, session_id, result_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		msg.ID,
		msg.SessionID,
		msg.ResultID,
		msg.Role,
		msg.Content,
		msg.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save chat message",
			zap.String("session", msg.SessionID),
			zap.Error(err))
		return fmt.Errorf("failed to save chat message: %w", err)
	}
	return nil
}

// ListBySession returns a session's messages in conversation order.
func (r *ChatRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.ChatMessage, error) {
	query := `
		SELECT id, session_id, result_id, role, content, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		err := rows.Scan(
			&msg.ID,
			&msg.SessionID,
			&msg.ResultID,
			&msg.Role,
			&msg.Content,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat message row: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}
