package models

import "time"

// Role identifies who authored a message or turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ConversationMessage is one stored message of a conversation.
type ConversationMessage struct {
	ID              string    `json:"id"`
	ConversationID  string    `json:"conversation_id"`
	Role            Role      `json:"role"`
	Content         string    `json:"content"`
	AudioURL        *string   `json:"audio_url"`
	ConfidenceScore float64   `json:"confidence_score"`
	CreatedAt       time.Time `json:"created_at"`
}
