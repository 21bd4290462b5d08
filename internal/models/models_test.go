package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToneOf(t *testing.T) {
	cases := map[string]StatusTone{
		"completed": ToneOK,
		"confirmed": ToneOK,
		"failed":    ToneBad,
		"cancelled": ToneBad,
		"active":    ToneWaiting,
		"pending":   ToneWaiting,
		"archived":  ToneUnknown,
	}
	for status, want := range cases {
		assert.Equal(t, want, ToneOf(status), status)
	}
}

func TestVisibleMessagesHidesSystemRole(t *testing.T) {
	conv := &Conversation{Messages: []*ConversationMessage{
		{ID: "1", Role: RoleSystem, Content: "prompt"},
		{ID: "2", Role: RoleUser, Content: "hi"},
		{ID: "3", Role: RoleAssistant, Content: "hello"},
	}}
	visible := conv.VisibleMessages()
	if assert.Len(t, visible, 2) {
		assert.Equal(t, "2", visible[0].ID)
		assert.Equal(t, "3", visible[1].ID)
	}
}
