package edgecase

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/echocat/slf4g"

	"voiceassist/internal/models"
	"voiceassist/internal/redis"
	"voiceassist/internal/storage"
)

const cacheKey = "edgecases:list"

// Cache is the subset of the redis client used for read-through caching.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Service serves the documented edge cases.
type Service struct {
	db    *storage.DB
	cache Cache
	ttl   time.Duration
}

// NewService builds the edge case service. cache may be nil.
func NewService(db *storage.DB, cache Cache, ttl time.Duration) *Service {
	return &Service{db: db, cache: cache, ttl: ttl}
}

// List returns every edge case, newest first.
func (s *Service) List(ctx context.Context) ([]*models.EdgeCase, error) {
	if s.cache != nil {
		var cached []*models.EdgeCase
		err := s.cache.GetJSON(ctx, cacheKey, &cached)
		switch {
		case err == nil:
			return cached, nil
		case errors.Is(err, redis.ErrCacheMiss):
		default:
			log.WithError(err).Warn("Edge case cache read failed. Falling back to database.")
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, case_name, scenario, handling_strategy, example_conversation, created_at
		 FROM edge_cases ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list edge cases: %w", err)
	}
	defer rows.Close()

	cases := []*models.EdgeCase{}
	for rows.Next() {
		ec, err := scanEdgeCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, ec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list edge cases: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey, cases, s.ttl); err != nil {
			log.WithError(err).Warn("Edge case cache write failed.")
		}
	}
	return cases, nil
}

// Get returns one edge case; sql.ErrNoRows when it does not exist.
func (s *Service) Get(ctx context.Context, id string) (*models.EdgeCase, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(
		`SELECT id, case_name, scenario, handling_strategy, example_conversation, created_at
		 FROM edge_cases WHERE id = ?`), id)
	return scanEdgeCase(row)
}

// SeedDefaults inserts Defaults when the table is empty and reports how many
// rows were written.
func (s *Service) SeedDefaults(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edge_cases`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count edge cases: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	defaults := Defaults()
	for i, ec := range defaults {
		// later entries are older so the list keeps the declared order
		ec.CreatedAt = now.Add(-time.Duration(i) * time.Second)
		if err := s.db.InsertEdgeCase(ctx, ec); err != nil {
			return i, err
		}
	}
	log.With("count", len(defaults)).Info("Seeded default edge cases.")
	return len(defaults), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEdgeCase(row scanner) (*models.EdgeCase, error) {
	var (
		ec      models.EdgeCase
		example []byte
	)
	err := row.Scan(&ec.ID, &ec.CaseName, &ec.Scenario, &ec.HandlingStrategy, &example, &ec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan edge case: %w", err)
	}
	ec.ExampleConversation = []models.ExampleLine{}
	if len(example) > 0 {
		if err := json.Unmarshal(example, &ec.ExampleConversation); err != nil {
			return nil, fmt.Errorf("decode example conversation of %s: %w", ec.ID, err)
		}
	}
	return &ec, nil
}
