package models

import (
	"encoding/json"
	"time"
)

type Customer struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	Email       *string         `json:"email"`
	Phone       *string         `json:"phone"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
	CreatedAt   time.Time       `json:"created_at,omitempty"`
}
