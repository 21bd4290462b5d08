package dashboard

import (
	"context"
	"database/sql"
	"fmt"

	"voiceassist/internal/models"
	"voiceassist/internal/storage"
)

const conversationSelect = `SELECT c.id, c.customer_id, c.session_id, c.status, c.conversation_type,
       c.started_at, c.ended_at, c.metadata, cu.id, cu.name, cu.email, cu.phone
FROM conversations c LEFT JOIN customers cu ON cu.id = c.customer_id`

type scanner interface {
	Scan(dest ...any) error
}

// customerColumns receives the left-joined customer columns.
type customerColumns struct {
	id    sql.NullString
	name  sql.NullString
	email sql.NullString
	phone sql.NullString
}

func (c customerColumns) customer() *models.Customer {
	if !c.id.Valid {
		return nil
	}
	out := &models.Customer{ID: c.id.String, Name: c.name.String}
	if c.email.Valid {
		out.Email = &c.email.String
	}
	if c.phone.Valid {
		out.Phone = &c.phone.String
	}
	return out
}

func scanConversation(row scanner) (*models.Conversation, error) {
	var (
		conv       models.Conversation
		customerID sql.NullString
		endedAt    sql.NullTime
		metadata   []byte
		cust       customerColumns
	)
	err := row.Scan(&conv.ID, &customerID, &conv.SessionID, &conv.Status, &conv.Type,
		&conv.StartedAt, &endedAt, &metadata, &cust.id, &cust.name, &cust.email, &cust.phone)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	if customerID.Valid {
		conv.CustomerID = &customerID.String
	}
	if endedAt.Valid {
		conv.EndedAt = &endedAt.Time
	}
	if len(metadata) > 0 {
		conv.Metadata = metadata
	}
	conv.Customer = cust.customer()
	conv.Messages = []*models.ConversationMessage{}
	return &conv, nil
}

// attachMessages loads the messages of every conversation in one query,
// oldest first.
func (s *Service) attachMessages(ctx context.Context, conversations []*models.Conversation) error {
	if len(conversations) == 0 {
		return nil
	}
	byID := make(map[string]*models.Conversation, len(conversations))
	args := make([]any, 0, len(conversations))
	for _, c := range conversations {
		byID[c.ID] = c
		args = append(args, c.ID)
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(
		`SELECT id, conversation_id, role, content, audio_url, confidence_score, created_at
		 FROM conversation_messages WHERE conversation_id IN (`+storage.Placeholders(len(args))+`)
		 ORDER BY created_at ASC`), args...)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m        models.ConversationMessage
			audioURL sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &audioURL, &m.ConfidenceScore, &m.CreatedAt); err != nil {
			return fmt.Errorf("scan message: %w", err)
		}
		if audioURL.Valid {
			m.AudioURL = &audioURL.String
		}
		if conv, ok := byID[m.ConversationID]; ok {
			conv.Messages = append(conv.Messages, &m)
		}
	}
	return rows.Err()
}
