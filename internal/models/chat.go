package models

import "time"

// Chat roles follow the chat-completion convention.
const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one turn of a follow-up conversation about a processed
// invoice. Messages are grouped by session; a session is pinned to the
// result it discusses.
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	ResultID  string    `json:"result_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
