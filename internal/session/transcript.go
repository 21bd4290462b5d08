package session

import (
	"sync"

	"voiceassist/internal/models"
)

// Transcript is the append-only, ordered list of turns of one session.
type Transcript struct {
	mu    sync.RWMutex
	turns []models.Turn
}

func (t *Transcript) append(turns ...models.Turn) {
	t.mu.Lock()
	t.turns = append(t.turns, turns...)
	t.mu.Unlock()
}

// Turns returns a copy of every turn in append order.
func (t *Transcript) Turns() []models.Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Last returns the most recent turn with the given role.
func (t *Transcript) Last(role models.Role) (models.Turn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.turns) - 1; i >= 0; i-- {
		if t.turns[i].Role == role {
			return t.turns[i], true
		}
	}
	return models.Turn{}, false
}
