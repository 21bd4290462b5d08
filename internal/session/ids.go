package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewSessionID returns session_<unix millis>_<9 base36 characters>.
func NewSessionID(now time.Time) string {
	u := uuid.New()
	// bytes 6 and 8 carry the uuid version and variant bits
	random := append(u[:6:6], u[9:]...)
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = idAlphabet[int(random[i])%len(idAlphabet)]
	}
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), suffix)
}
