package dashboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/echocat/slf4g"
	"golang.org/x/sync/errgroup"

	"voiceassist/internal/models"
	"voiceassist/internal/redis"
	"voiceassist/internal/storage"
)

// DefaultLimit is how many rows each dashboard list shows.
const DefaultLimit = 20

const cachePrefix = "dashboard:"

// Cache is the subset of the redis client used for read-through caching.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	DelPrefix(ctx context.Context, prefix string) error
}

// Summary holds the counters shown above the dashboard lists. They are
// computed over the loaded rows only.
type Summary struct {
	TotalConversations    int `json:"total_conversations"`
	ActiveConversations   int `json:"active_conversations"`
	TotalAppointments     int `json:"total_appointments"`
	ConfirmedAppointments int `json:"confirmed_appointments"`
}

type Overview struct {
	Summary       Summary                `json:"summary"`
	Conversations []*models.Conversation `json:"conversations"`
	Appointments  []*models.Appointment  `json:"appointments"`
}

// Service answers the read-only dashboard queries.
type Service struct {
	db    *storage.DB
	cache Cache
	ttl   time.Duration
}

// NewService builds the dashboard service. cache may be nil.
func NewService(db *storage.DB, cache Cache, ttl time.Duration) *Service {
	return &Service{db: db, cache: cache, ttl: ttl}
}

// ListConversations returns the newest conversations with their customer and
// messages.
func (s *Service) ListConversations(ctx context.Context, limit int) ([]*models.Conversation, error) {
	limit = normalizeLimit(limit)
	key := fmt.Sprintf("%sconversations:%d", cachePrefix, limit)
	var cached []*models.Conversation
	if s.load(ctx, key, &cached) {
		return cached, nil
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(conversationSelect+
		` ORDER BY c.started_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]*models.Conversation, 0, limit)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if err := s.attachMessages(ctx, conversations); err != nil {
		return nil, err
	}
	s.store(ctx, key, conversations)
	return conversations, nil
}

// GetConversation returns one conversation; sql.ErrNoRows when it does not exist.
func (s *Service) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(conversationSelect+` WHERE c.id = ?`), id)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	if err := s.attachMessages(ctx, []*models.Conversation{conv}); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListAppointments returns the most recently created appointments with their customer.
func (s *Service) ListAppointments(ctx context.Context, limit int) ([]*models.Appointment, error) {
	limit = normalizeLimit(limit)
	key := fmt.Sprintf("%sappointments:%d", cachePrefix, limit)
	var cached []*models.Appointment
	if s.load(ctx, key, &cached) {
		return cached, nil
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(
		`SELECT a.id, a.customer_id, a.appointment_date, a.service_type, a.status, a.notes, a.created_at, a.updated_at,
		        cu.id, cu.name, cu.email, cu.phone
		 FROM appointments a LEFT JOIN customers cu ON cu.id = a.customer_id
		 ORDER BY a.created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	appointments := make([]*models.Appointment, 0, limit)
	for rows.Next() {
		var (
			a    models.Appointment
			cust customerColumns
		)
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.AppointmentDate, &a.ServiceType, &a.Status, &a.Notes,
			&a.CreatedAt, &a.UpdatedAt, &cust.id, &cust.name, &cust.email, &cust.phone); err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		a.Customer = cust.customer()
		appointments = append(appointments, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	s.store(ctx, key, appointments)
	return appointments, nil
}

// Overview loads both lists concurrently and summarizes them.
func (s *Service) Overview(ctx context.Context, limit int) (*Overview, error) {
	var out Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		conversations, err := s.ListConversations(gctx, limit)
		out.Conversations = conversations
		return err
	})
	g.Go(func() error {
		appointments, err := s.ListAppointments(gctx, limit)
		out.Appointments = appointments
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out.Summary = Summarize(out.Conversations, out.Appointments)
	return &out, nil
}

func Summarize(conversations []*models.Conversation, appointments []*models.Appointment) Summary {
	sum := Summary{
		TotalConversations: len(conversations),
		TotalAppointments:  len(appointments),
	}
	for _, c := range conversations {
		if c.Status == models.ConversationActive {
			sum.ActiveConversations++
		}
	}
	for _, a := range appointments {
		if a.Status == models.AppointmentConfirmed {
			sum.ConfirmedAppointments++
		}
	}
	return sum
}

// Invalidate drops every cached dashboard list.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DelPrefix(ctx, cachePrefix); err != nil {
		log.WithError(err).Warn("Cannot invalidate dashboard cache.")
	}
}

func (s *Service) load(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	err := s.cache.GetJSON(ctx, key, dst)
	switch {
	case err == nil:
		return true
	case errors.Is(err, redis.ErrCacheMiss):
	default:
		log.With("key", key).WithError(err).Warn("Dashboard cache read failed. Falling back to database.")
	}
	return false
}

func (s *Service) store(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJSON(ctx, key, v, s.ttl); err != nil {
		log.With("key", key).WithError(err).Warn("Dashboard cache write failed.")
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
