package models

import (
	"encoding/json"
	"time"
)

type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "active"
	ConversationCompleted ConversationStatus = "completed"
	ConversationFailed    ConversationStatus = "failed"
)

type ConversationType string

const (
	ConversationAppointment ConversationType = "appointment"
	ConversationInquiry     ConversationType = "inquiry"
	ConversationSupport     ConversationType = "support"
)

// Conversation groups the stored messages of one assistant session.
type Conversation struct {
	ID         string                 `json:"id"`
	CustomerID *string                `json:"customer_id"`
	SessionID  string                 `json:"session_id"`
	Status     ConversationStatus     `json:"status"`
	Type       ConversationType       `json:"conversation_type"`
	StartedAt  time.Time              `json:"started_at"`
	EndedAt    *time.Time             `json:"ended_at"`
	Metadata   json.RawMessage        `json:"metadata"`
	Customer   *Customer              `json:"customers,omitempty"`
	Messages   []*ConversationMessage `json:"conversation_messages"`
}

// VisibleMessages drops system prompts, which are never shown to operators.
func (c *Conversation) VisibleMessages() []*ConversationMessage {
	visible := make([]*ConversationMessage, 0, len(c.Messages))
	for _, msg := range c.Messages {
		if msg.Role == RoleSystem {
			continue
		}
		visible = append(visible, msg)
	}
	return visible
}
