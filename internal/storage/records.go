package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"voiceassist/internal/models"
)

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func rawOr(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	return string(raw)
}

// InsertCustomer stores c, filling in a generated id and creation time.
func (d *DB) InsertCustomer(ctx context.Context, c *models.Customer) error {
	c.ID = newID(c.ID)
	c.CreatedAt = stamp(c.CreatedAt)
	_, err := d.ExecContext(ctx, d.Rebind(
		`INSERT INTO customers (id, name, email, phone, preferences, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		c.ID, c.Name, c.Email, c.Phone, rawOr(c.Preferences, "{}"), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

func (d *DB) InsertAppointment(ctx context.Context, a *models.Appointment) error {
	a.ID = newID(a.ID)
	a.CreatedAt = stamp(a.CreatedAt)
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	if a.Status == "" {
		a.Status = models.AppointmentPending
	}
	_, err := d.ExecContext(ctx, d.Rebind(
		`INSERT INTO appointments (id, customer_id, appointment_date, service_type, status, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.CustomerID, a.AppointmentDate.UTC(), a.ServiceType, string(a.Status), a.Notes, a.CreatedAt, a.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

// InsertConversation stores the conversation row only; messages are added
// with InsertMessage.
func (d *DB) InsertConversation(ctx context.Context, c *models.Conversation) error {
	c.ID = newID(c.ID)
	c.StartedAt = stamp(c.StartedAt)
	if c.Status == "" {
		c.Status = models.ConversationActive
	}
	if c.Type == "" {
		c.Type = models.ConversationAppointment
	}
	var ended *time.Time
	if c.EndedAt != nil {
		t := c.EndedAt.UTC()
		ended = &t
	}
	_, err := d.ExecContext(ctx, d.Rebind(
		`INSERT INTO conversations (id, customer_id, session_id, status, conversation_type, started_at, ended_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.CustomerID, c.SessionID, string(c.Status), string(c.Type), c.StartedAt, ended, rawOr(c.Metadata, "{}"),
	)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (d *DB) InsertMessage(ctx context.Context, m *models.ConversationMessage) error {
	m.ID = newID(m.ID)
	m.CreatedAt = stamp(m.CreatedAt)
	_, err := d.ExecContext(ctx, d.Rebind(
		`INSERT INTO conversation_messages (id, conversation_id, role, content, audio_url, confidence_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		m.ID, m.ConversationID, string(m.Role), m.Content, m.AudioURL, m.ConfidenceScore, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ConversationExists reports whether a conversation row with id is stored.
func (d *DB) ConversationExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := d.QueryRowContext(ctx, d.Rebind(`SELECT COUNT(*) FROM conversations WHERE id = ?`), id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("look up conversation: %w", err)
	}
	return n > 0, nil
}

// FinishConversation sets the final status and end time of a conversation.
func (d *DB) FinishConversation(ctx context.Context, id string, status models.ConversationStatus, at time.Time) error {
	res, err := d.ExecContext(ctx, d.Rebind(
		`UPDATE conversations SET status = ?, ended_at = ? WHERE id = ?`),
		string(status), at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("finish conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish conversation %s: not found", id)
	}
	return nil
}

func (d *DB) InsertEdgeCase(ctx context.Context, e *models.EdgeCase) error {
	e.ID = newID(e.ID)
	e.CreatedAt = stamp(e.CreatedAt)
	lines := e.ExampleConversation
	if lines == nil {
		lines = []models.ExampleLine{}
	}
	example, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode example conversation: %w", err)
	}
	_, err = d.ExecContext(ctx, d.Rebind(
		`INSERT INTO edge_cases (id, case_name, scenario, handling_strategy, example_conversation, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		e.ID, e.CaseName, e.Scenario, e.HandlingStrategy, string(example), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert edge case: %w", err)
	}
	return nil
}
