package ai

import (
	"context"
	"sync"
	"time"
)

const (
	ToolRateLimit  = 10
	ToolRateWindow = time.Minute
)

type toolConversationContextKey struct{}

type toolRateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time
	mu     sync.Mutex
	hits   map[string][]time.Time
}

func newToolRateLimiter(limit int, window time.Duration) *toolRateLimiter {
	return &toolRateLimiter{limit: limit, window: window, now: time.Now, hits: make(map[string][]time.Time)}
}

// Allow records a hit for key and reports whether it stays within the window
// limit. Keys without recent hits are dropped.
func (l *toolRateLimiter) Allow(key string) bool {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	hits := l.hits[key]
	for len(hits) > 0 && !hits[0].After(cutoff) {
		hits = hits[1:]
	}
	allowed := len(hits) < l.limit
	if allowed {
		hits = append(hits, now)
	}
	if len(hits) == 0 {
		delete(l.hits, key)
	} else {
		l.hits[key] = hits
	}
	return allowed
}

// WithToolConversation tags ctx with the conversation the tools act for.
func WithToolConversation(ctx context.Context, conversationID string) context.Context {
	if conversationID == "" {
		return ctx
	}
	return context.WithValue(ctx, toolConversationContextKey{}, conversationID)
}

func ToolConversationFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(toolConversationContextKey{}).(string)
	return id, ok && id != ""
}
