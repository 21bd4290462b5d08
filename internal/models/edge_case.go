package models

import "time"

// ExampleLine is one scripted line of an edge-case walkthrough.
type ExampleLine struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// EdgeCase documents a tricky scheduling scenario and how the assistant copes.
type EdgeCase struct {
	ID                  string        `json:"id"`
	CaseName            string        `json:"case_name"`
	Scenario            string        `json:"scenario"`
	HandlingStrategy    string        `json:"handling_strategy"`
	ExampleConversation []ExampleLine `json:"example_conversation"`
	CreatedAt           time.Time     `json:"created_at"`
}
