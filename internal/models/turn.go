package models

import "time"

// VoicePlaceholder stands in for the user's words on voice turns; the
// transcription happens on the backend and is never echoed back.
const VoicePlaceholder = "[Voice input]"

// Turn is one message of the live transcript.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
