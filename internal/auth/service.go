package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	ErrTokenRequired = errors.New("token required")
	ErrInvalidToken  = errors.New("invalid token")
)

// Service checks the static admin bearer token guarding the HTTP API.
type Service struct {
	digest     [sha256.Size]byte
	enabled    bool
	headerName string
}

// NewService guards the API with adminToken. An empty token disables the check.
func NewService(adminToken string) *Service {
	return &Service{
		digest:     sha256.Sum256([]byte(adminToken)),
		enabled:    adminToken != "",
		headerName: "Authorization",
	}
}

// Enabled reports whether requests must carry a token.
func (s *Service) Enabled() bool {
	return s.enabled
}

// ValidateToken compares the presented token with the admin token in constant time.
func (s *Service) ValidateToken(token string) error {
	if !s.enabled {
		return nil
	}
	if token == "" {
		return ErrTokenRequired
	}
	got := sha256.Sum256([]byte(token))
	if subtle.ConstantTimeCompare(got[:], s.digest[:]) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// GenerateToken returns a random admin token suitable for basic_config.admin_token.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
