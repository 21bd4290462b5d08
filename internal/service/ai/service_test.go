package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceassist/internal/capture"
	"voiceassist/internal/config"
	"voiceassist/internal/gateway"
	"voiceassist/internal/models"
	"voiceassist/internal/storage"
)

type scriptedModel struct {
	mu      sync.Mutex
	prompts [][]*schema.Message
	replies []string
	err     error
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, input)
	if m.err != nil {
		return nil, m.err
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return &schema.Message{Role: schema.Assistant, Content: reply}, nil
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *scriptedModel) WithTools([]*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

var fixedNow = func() time.Time { return time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC) }

func TestSubmitTurnAssignsConversationAndKeepsHistory(t *testing.T) {
	m := &scriptedModel{replies: []string{"What time tomorrow?", "Booked for 3pm."}}
	g, err := NewGateway(context.Background(), m, Options{Now: fixedNow})
	require.NoError(t, err)

	first, err := g.SubmitTurn(context.Background(), gateway.TurnRequest{Text: "Book a haircut tomorrow", SessionID: "s1"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ConversationID)
	assert.Equal(t, "What time tomorrow?", first.Response)

	second, err := g.SubmitTurn(context.Background(), gateway.TurnRequest{Text: "3pm", SessionID: "s1", ConversationID: first.ConversationID})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	require.Len(t, m.prompts, 2)
	prompt := m.prompts[1]
	require.Len(t, prompt, 4)
	assert.Equal(t, schema.System, prompt[0].Role)
	assert.Contains(t, prompt[0].Content, "Thursday, March 5, 2026")
	assert.Equal(t, "Book a haircut tomorrow", prompt[1].Content)
	assert.Equal(t, schema.Assistant, prompt[2].Role)
	assert.Equal(t, "3pm", prompt[3].Content)
}

func TestSubmitTurnRejectsAudio(t *testing.T) {
	g, err := NewGateway(context.Background(), &scriptedModel{}, Options{})
	require.NoError(t, err)
	_, err = g.SubmitTurn(context.Background(), gateway.TurnRequest{Audio: &capture.Payload{Data: []byte{1}}})
	assert.ErrorIs(t, err, ErrAudioUnsupported)
}

func TestFailedTurnIsNotKeptInHistory(t *testing.T) {
	m := &scriptedModel{err: errors.New("rate limited")}
	g, err := NewGateway(context.Background(), m, Options{Now: fixedNow})
	require.NoError(t, err)

	_, err = g.SubmitTurn(context.Background(), gateway.TurnRequest{Text: "hello", ConversationID: "c1"})
	require.Error(t, err)

	m.err = nil
	m.replies = []string{"hi"}
	_, err = g.SubmitTurn(context.Background(), gateway.TurnRequest{Text: "hello again", ConversationID: "c1"})
	require.NoError(t, err)
	last := m.prompts[len(m.prompts)-1]
	require.Len(t, last, 2)
	assert.Equal(t, "hello again", last[1].Content)
}

func TestTurnsAreRecorded(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := storage.Open("sqlite3", cfg)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, storage.Migrate(db))

	m := &scriptedModel{replies: []string{"Sure."}}
	var recorded int
	g := &Gateway{chatModel: m, opts: Options{Store: db, Now: fixedNow, AfterRecord: func(context.Context) { recorded++ }}, histories: map[string]*conversation{}, maxConversations: MaxConversations}

	reply, err := g.SubmitTurn(context.Background(), gateway.TurnRequest{Text: "hi", SessionID: "session_1_abc"})
	require.NoError(t, err)
	assert.Equal(t, 1, recorded)

	var sessionID, status string
	require.NoError(t, db.QueryRow(`SELECT session_id, status FROM conversations WHERE id = ?`, reply.ConversationID).Scan(&sessionID, &status))
	assert.Equal(t, "session_1_abc", sessionID)
	assert.Equal(t, "active", status)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM conversation_messages WHERE conversation_id = ?`, reply.ConversationID).Scan(&n))
	assert.Equal(t, 2, n)

	require.NoError(t, g.End(context.Background(), reply.ConversationID))
	require.NoError(t, db.QueryRow(`SELECT status FROM conversations WHERE id = ?`, reply.ConversationID).Scan(&status))
	assert.Equal(t, "completed", status)
}

func TestRateLimiter(t *testing.T) {
	now := fixedNow()
	l := newToolRateLimiter(2, time.Minute)
	l.now = func() time.Time { return now }
	assert.True(t, l.Allow("c1"))
	assert.True(t, l.Allow("c1"))
	assert.False(t, l.Allow("c1"))
	assert.True(t, l.Allow("c2"))

	now = now.Add(2 * time.Minute)
	assert.True(t, l.Allow("c1"))
}

func TestToolConversationContext(t *testing.T) {
	_, ok := ToolConversationFromContext(context.Background())
	assert.False(t, ok)
	id, ok := ToolConversationFromContext(WithToolConversation(context.Background(), "c1"))
	assert.True(t, ok)
	assert.Equal(t, "c1", id)
	assert.True(t, strings.HasPrefix(systemPrompt, "You are"))
}

func TestTurnsOfOneConversationDoNotInterleave(t *testing.T) {
	m := &gatedModel{entered: make(chan string), release: make(chan struct{})}
	g, err := NewGateway(context.Background(), m, Options{Now: fixedNow})
	require.NoError(t, err)

	first := make(chan error)
	go func() {
		_, err := g.SubmitTurn(context.Background(), gateway.TurnRequest{Text: "Book a haircut", ConversationID: "c1"})
		first <- err
	}()
	assert.Equal(t, "Book a haircut", <-m.entered)

	second := make(chan error)
	go func() {
		_, err := g.SubmitTurn(context.Background(), gateway.TurnRequest{Text: "At 3pm", ConversationID: "c1"})
		second <- err
	}()
	select {
	case text := <-m.entered:
		t.Fatalf("second turn reached the model while the first was pending: %q", text)
	case <-time.After(50 * time.Millisecond):
	}

	m.release <- struct{}{}
	require.NoError(t, <-first)
	assert.Equal(t, "At 3pm", <-m.entered)
	m.release <- struct{}{}
	require.NoError(t, <-second)

	m.mu.Lock()
	defer m.mu.Unlock()
	prompt := m.prompts[1]
	require.Len(t, prompt, 4)
	assert.Equal(t, "Book a haircut", prompt[1].Content)
	assert.Equal(t, "re: Book a haircut", prompt[2].Content)
	assert.Equal(t, "At 3pm", prompt[3].Content)
}

func TestLeastRecentlyUsedHistoryIsDropped(t *testing.T) {
	m := &scriptedModel{replies: []string{"a", "b", "c", "d"}}
	g, err := NewGateway(context.Background(), m, Options{Now: fixedNow})
	require.NoError(t, err)
	g.maxConversations = 2

	for _, id := range []string{"c1", "c2", "c1", "c3"} {
		_, err := g.SubmitTurn(context.Background(), gateway.TurnRequest{Text: "hi", ConversationID: id})
		require.NoError(t, err)
	}
	require.Len(t, g.histories, 2)
	assert.Contains(t, g.histories, "c1")
	assert.Contains(t, g.histories, "c3")
	assert.NotContains(t, g.histories, "c2")
}

func TestUnknownConversationIsRecorded(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := storage.Open("sqlite3", cfg)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, storage.Migrate(db))
	ctx := context.Background()
	require.NoError(t, db.InsertConversation(ctx, &models.Conversation{ID: "stored", SessionID: "s0"}))

	m := &scriptedModel{err: errors.New("unavailable")}
	g := &Gateway{chatModel: m, opts: Options{Store: db, Now: fixedNow}, histories: map[string]*conversation{}, maxConversations: MaxConversations}
	_, err = g.SubmitTurn(ctx, gateway.TurnRequest{Text: "hi", SessionID: "s1", ConversationID: "restored"})
	require.Error(t, err)
	assert.Empty(t, g.histories)

	m.err = nil
	m.replies = []string{"one", "two", "three"}

	for _, id := range []string{"restored", "restored", "stored"} {
		_, err := g.SubmitTurn(ctx, gateway.TurnRequest{Text: "hi", SessionID: "s1", ConversationID: id})
		require.NoError(t, err)
	}

	var conversations, orphans int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&conversations))
	assert.Equal(t, 2, conversations)
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM conversation_messages WHERE conversation_id NOT IN (SELECT id FROM conversations)`).Scan(&orphans))
	assert.Zero(t, orphans)

	var sessionID string
	require.NoError(t, db.QueryRow(`SELECT session_id FROM conversations WHERE id = ?`, "restored").Scan(&sessionID))
	assert.Equal(t, "s1", sessionID)
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM conversation_messages WHERE conversation_id = ?`, "restored").Scan(&n))
	assert.Equal(t, 4, n)
}

// gatedModel reports each user message on entered and answers once release
// receives.
type gatedModel struct {
	mu      sync.Mutex
	prompts [][]*schema.Message
	entered chan string
	release chan struct{}
}

func (m *gatedModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, input)
	m.mu.Unlock()
	last := input[len(input)-1].Content
	m.entered <- last
	<-m.release
	return &schema.Message{Role: schema.Assistant, Content: "re: " + last}, nil
}

func (m *gatedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *gatedModel) WithTools([]*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}
