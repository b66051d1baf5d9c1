package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/invoiceflow/invoice-verifier/internal/models"
	"github.com/invoiceflow/invoice-verifier/pkg/database"
)

const chatSchema = `
	CREATE TABLE chat_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		result_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX idx_chat_messages_session ON chat_messages(session_id, created_at);`

func testChatRepo(t *testing.T) *ChatRepository {
	t.Helper()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(chatSchema)
	require.NoError(t, err)

	return NewChatRepository(db, zap.NewNop())
}

func TestChatSaveAndListBySession(t *testing.T) {
	repo := testChatRepo(t)
	ctx := context.Background()

	first := &models.ChatMessage{
		SessionID: "sess-1",
		ResultID:  "res-1",
		Role:      models.ChatRoleUser,
		Content:   "Was the invoice accepted?",
	}
	require.NoError(t, repo.SaveMessage(ctx, first))
	assert.NotEmpty(t, first.ID, "SaveMessage must assign an ID")
	assert.False(t, first.CreatedAt.IsZero())

	time.Sleep(5 * time.Millisecond)

	second := &models.ChatMessage{
		SessionID: "sess-1",
		ResultID:  "res-1",
		Role:      models.ChatRoleAssistant,
		Content:   "Yes, it passed every check.",
	}
	require.NoError(t, repo.SaveMessage(ctx, second))

	other := &models.ChatMessage{
		SessionID: "sess-2",
		ResultID:  "res-9",
		Role:      models.ChatRoleUser,
		Content:   "unrelated",
	}
	require.NoError(t, repo.SaveMessage(ctx, other))

	messages, err := repo.ListBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, first.ID, messages[0].ID, "messages must come back in conversation order")
	assert.Equal(t, models.ChatRoleAssistant, messages[1].Role)
	assert.Equal(t, "Yes, it passed every check.", messages[1].Content)
}

func TestChatListBySession_Empty(t *testing.T) {
	repo := testChatRepo(t)

	messages, err := repo.ListBySession(context.Background(), "no-such-session")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestChatSave_RejectsUnknownRole(t *testing.T) {
	repo := testChatRepo(t)

	err := repo.SaveMessage(context.Background(), &models.ChatMessage{
		SessionID: "sess-1",
		Role:      "system",
		Content:   "not a conversation turn",
	})
	assert.Error(t, err)
}

func TestChatSave_RequiresSession(t *testing.T) {
	repo := testChatRepo(t)

	err := repo.SaveMessage(context.Background(), &models.ChatMessage{
		Role:    models.ChatRoleUser,
		Content: "orphan turn",
	})
	assert.Error(t, err)
}
