package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/echocat/slf4g"
	"github.com/google/uuid"

	"voiceassist/internal/config"
	"voiceassist/internal/gateway"
	"voiceassist/internal/models"
	"voiceassist/internal/storage"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// ErrAudioUnsupported is returned for voice turns; providers here only take text.
var ErrAudioUnsupported = errors.New("audio turns are not supported by the provider gateway")

const systemPrompt = `You are a friendly voice receptionist that books, reschedules and cancels appointments.
Keep answers short enough to be read aloud. Confirm the service, date and time before booking.
When a date is ambiguous, ask which one the customer means. Today is %s.`

// Options configures the provider gateway.
type Options struct {
	// Store enables the scheduling tools and records every turn. Optional.
	Store *storage.DB
	// AfterRecord runs after a turn has been written to Store.
	AfterRecord func(ctx context.Context)
	// Now defaults to time.Now.
	Now func() time.Time
}

// Gateway answers text turns in-process through an LLM provider.
type Gateway struct {
	chatModel model.ToolCallingChatModel
	agent     *react.Agent
	opts      Options

	mu               sync.Mutex
	histories        map[string]*conversation
	maxConversations int
	uses             uint64
}

// MaxConversations bounds the histories held in memory. The least recently
// used one is dropped first.
const MaxConversations = 1000

// conversation is the in-memory history of one conversation. mu is held for
// the whole of a turn, so turns of one conversation never interleave.
type conversation struct {
	mu       sync.Mutex
	messages []*schema.Message
	lastUse  uint64
}

// NewChatModel builds the eino chat model for provider. An empty modelName
// falls back to the configured one.
func NewChatModel(ctx context.Context, provider, modelName, token string, provCfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	if modelName == "" {
		modelName = provCfg.Model
	}
	if token == "" {
		token = provCfg.APIKey
	}
	if token == "" {
		return nil, fmt.Errorf("provider %s: api key is required", provider)
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  token,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: token,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    token,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 1024,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return chatModel, nil
}

// NewGateway wraps chatModel. With a Store the model is driven as a ReAct
// agent over the scheduling tools.
func NewGateway(ctx context.Context, chatModel model.ToolCallingChatModel, opts Options) (*Gateway, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	g := &Gateway{
		chatModel: chatModel,
		opts:      opts,
		histories:        make(map[string]*conversation),
		maxConversations: MaxConversations,
	}
	if opts.Store != nil {
		tools := SchedulingTools(opts.Store, opts.Now)
		agent, err := react.NewAgent(ctx, &react.AgentConfig{
			ToolCallingModel: chatModel,
			ToolsConfig: compose.ToolsNodeConfig{
				Tools: tools,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("init react agent: %w", err)
		}
		g.agent = agent
	}
	return g, nil
}

// SubmitTurn answers one text turn. The first turn of a conversation gets a
// fresh conversation id.
func (g *Gateway) SubmitTurn(ctx context.Context, req gateway.TurnRequest) (*gateway.TurnReply, error) {
	if req.Audio != nil {
		return nil, ErrAudioUnsupported
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errors.New("text is required")
	}

	conversationID := req.ConversationID
	isNew := conversationID == ""
	if isNew {
		conversationID = uuid.NewString()
	}
	userAt := g.opts.Now()

	conv, known := g.acquire(conversationID)
	defer conv.mu.Unlock()

	userMsg := &schema.Message{Role: schema.User, Content: req.Text}
	prompt := g.prompt(conv.messages, userMsg)
	ctx = WithToolConversation(ctx, conversationID)

	var (
		reply *schema.Message
		err   error
	)
	if g.agent != nil {
		reply, err = g.agent.Generate(ctx, prompt)
	} else {
		reply, err = g.chatModel.Generate(ctx, prompt)
	}
	if err == nil && (reply == nil || strings.TrimSpace(reply.Content) == "") {
		err = errors.New("provider returned an empty reply")
	}
	if err != nil {
		if !known {
			g.forget(conversationID, conv)
		}
		return nil, fmt.Errorf("generate reply: %w", err)
	}
	content := strings.TrimSpace(reply.Content)
	conv.messages = append(conv.messages, userMsg, &schema.Message{Role: schema.Assistant, Content: content})

	g.record(ctx, req.SessionID, conversationID, isNew, known, turnRecord{user: req.Text, userAt: userAt, assistant: content, assistantAt: g.opts.Now()})
	return &gateway.TurnReply{ConversationID: conversationID, Response: content}, nil
}

// End marks a recorded conversation as completed.
func (g *Gateway) End(ctx context.Context, conversationID string) error {
	g.mu.Lock()
	delete(g.histories, conversationID)
	g.mu.Unlock()
	if g.opts.Store == nil || conversationID == "" {
		return nil
	}
	if err := g.opts.Store.FinishConversation(ctx, conversationID, models.ConversationCompleted, g.opts.Now()); err != nil {
		return err
	}
	if g.opts.AfterRecord != nil {
		g.opts.AfterRecord(ctx)
	}
	return nil
}

// acquire returns the locked history of conversationID and whether it was
// already held in memory.
func (g *Gateway) acquire(conversationID string) (*conversation, bool) {
	g.mu.Lock()
	conv, known := g.histories[conversationID]
	if !known {
		conv = &conversation{}
		g.histories[conversationID] = conv
		g.evictLocked(conversationID)
	}
	g.uses++
	conv.lastUse = g.uses
	g.mu.Unlock()

	conv.mu.Lock()
	return conv, known
}

func (g *Gateway) evictLocked(keep string) {
	for len(g.histories) > g.maxConversations {
		var (
			oldest string
			use    uint64
		)
		for id, conv := range g.histories {
			if id == keep {
				continue
			}
			if oldest == "" || conv.lastUse < use {
				oldest, use = id, conv.lastUse
			}
		}
		if oldest == "" {
			return
		}
		delete(g.histories, oldest)
	}
}

// forget drops conv unless the entry has been replaced since.
func (g *Gateway) forget(conversationID string, conv *conversation) {
	g.mu.Lock()
	if g.histories[conversationID] == conv {
		delete(g.histories, conversationID)
	}
	g.mu.Unlock()
}

// prompt is the system message, the history and msg.
func (g *Gateway) prompt(history []*schema.Message, msg *schema.Message) []*schema.Message {
	prompt := make([]*schema.Message, 0, len(history)+2)
	prompt = append(prompt, &schema.Message{
		Role:    schema.System,
		Content: fmt.Sprintf(systemPrompt, g.opts.Now().Format("Monday, January 2, 2006")),
	})
	prompt = append(prompt, history...)
	return append(prompt, msg)
}

type turnRecord struct {
	user        string
	userAt      time.Time
	assistant   string
	assistantAt time.Time
}

// record writes the turn to the store. A conversation id this gateway has not
// seen, for example after a restart, gets its row unless the store has it.
func (g *Gateway) record(ctx context.Context, sessionID, conversationID string, isNew, known bool, turn turnRecord) {
	store := g.opts.Store
	if store == nil {
		return
	}
	logger := log.With("conversationId", conversationID)
	if !isNew && !known {
		exists, err := store.ConversationExists(ctx, conversationID)
		if err != nil {
			logger.WithError(err).Warn("Cannot look up conversation.")
			return
		}
		isNew = !exists
	}
	if isNew {
		conv := &models.Conversation{ID: conversationID, SessionID: sessionID, StartedAt: turn.userAt}
		if err := store.InsertConversation(ctx, conv); err != nil {
			logger.WithError(err).Warn("Cannot record conversation.")
			return
		}
	}
	for _, m := range []*models.ConversationMessage{
		{ConversationID: conversationID, Role: models.RoleUser, Content: turn.user, ConfidenceScore: 1, CreatedAt: turn.userAt},
		{ConversationID: conversationID, Role: models.RoleAssistant, Content: turn.assistant, ConfidenceScore: 1, CreatedAt: turn.assistantAt},
	} {
		if err := store.InsertMessage(ctx, m); err != nil {
			logger.WithError(err).Warn("Cannot record message.")
			return
		}
	}
	if g.opts.AfterRecord != nil {
		g.opts.AfterRecord(ctx)
	}
}
