package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceassist/internal/models"
	"voiceassist/internal/service/dashboard"
)

func TestPrintOverview(t *testing.T) {
	when := time.Date(2026, 3, 6, 15, 0, 0, 0, time.Local)
	ov := &dashboard.Overview{
		Conversations: []*models.Conversation{{
			ID:        "c1",
			Status:    models.ConversationActive,
			StartedAt: when,
			Messages: []*models.ConversationMessage{
				{Role: models.RoleSystem, Content: "prompt"},
				{Role: models.RoleUser, Content: "hi"},
			},
		}},
		Appointments: []*models.Appointment{{
			ID:              "a1",
			ServiceType:     "haircut",
			AppointmentDate: when,
			Status:          models.AppointmentConfirmed,
			Customer:        &models.Customer{Name: "Ana"},
		}},
	}
	ov.Summary = dashboard.Summarize(ov.Conversations, ov.Appointments)

	var out bytes.Buffer
	require.NoError(t, printOverview(&out, ov))
	text := out.String()
	assert.Contains(t, text, "Conversations: 1 (1 active)")
	assert.Contains(t, text, "Appointments:  1 (1 confirmed)")
	assert.Regexp(t, `c1\s+Unknown\s+active\s+Mar 6, 2026 15:00\s+1`, text)
	assert.Regexp(t, `a1\s+Ana\s+haircut`, text)
}

func TestPrintEdgeCases(t *testing.T) {
	var out bytes.Buffer
	printEdgeCases(&out, []*models.EdgeCase{{
		CaseName:         "Ambiguous date",
		Scenario:         "Customer says next Friday.",
		HandlingStrategy: "Ask for the exact date.",
		ExampleConversation: []models.ExampleLine{
			{Role: models.RoleUser, Content: "Next Friday please."},
		},
	}})
	assert.Equal(t, "# Ambiguous date\nCustomer says next Friday.\n\nHandling: Ask for the exact date.\n  user: Next Friday please.\n", out.String())
}
