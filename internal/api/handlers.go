package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	log "github.com/echocat/slf4g"
	"github.com/gin-gonic/gin"

	"voiceassist/internal/auth"
	"voiceassist/internal/gateway"
	"voiceassist/internal/models"
	"voiceassist/internal/service/ai"
	"voiceassist/internal/service/dashboard"
)

const maxLimit = 100

type DashboardService interface {
	Overview(ctx context.Context, limit int) (*dashboard.Overview, error)
	ListConversations(ctx context.Context, limit int) ([]*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListAppointments(ctx context.Context, limit int) ([]*models.Appointment, error)
}

type EdgeCaseService interface {
	List(ctx context.Context) ([]*models.EdgeCase, error)
	Get(ctx context.Context, id string) (*models.EdgeCase, error)
}

// TurnService answers one conversational turn.
type TurnService interface {
	SubmitTurn(ctx context.Context, req gateway.TurnRequest) (*gateway.TurnReply, error)
}

// Handler wires HTTP routes to the dashboard and documentation services.
type Handler struct {
	dashboard    DashboardService
	edgeCases    EdgeCaseService
	auth         *auth.Service
	defaultLimit int

	turns        TurnService
	turnAuth     *auth.Service
	functionPath string
}

// NewHandler constructs a Handler instance.
func NewHandler(dash DashboardService, edgeCases EdgeCaseService, authService *auth.Service, defaultLimit int) *Handler {
	if defaultLimit <= 0 {
		defaultLimit = dashboard.DefaultLimit
	}
	return &Handler{
		dashboard:    dash,
		edgeCases:    edgeCases,
		auth:         authService,
		defaultLimit: defaultLimit,
	}
}

// WithTurns also serves the turn endpoint at functionPath, guarded by turnAuth.
func (h *Handler) WithTurns(turns TurnService, functionPath string, turnAuth *auth.Service) *Handler {
	h.turns = turns
	h.functionPath = functionPath
	h.turnAuth = turnAuth
	return h
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.healthz)

	api := router.Group("/api")
	api.Use(h.auth.Middleware())
	api.GET("/dashboard", h.getOverview)
	api.GET("/dashboard/conversations", h.listConversations)
	api.GET("/dashboard/conversations/:id", h.getConversation)
	api.GET("/dashboard/appointments", h.listAppointments)
	api.GET("/edge-cases", h.listEdgeCases)
	api.GET("/edge-cases/:id", h.getEdgeCase)

	if h.turns != nil && h.functionPath != "" {
		router.POST(h.functionPath, h.turnAuth.Middleware(), h.processTurn)
	}
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type conversationView struct {
	*models.Conversation
	StatusTone models.StatusTone `json:"status_tone"`
}

type appointmentView struct {
	*models.Appointment
	StatusTone models.StatusTone `json:"status_tone"`
}

func conversationViews(in []*models.Conversation) []conversationView {
	out := make([]conversationView, 0, len(in))
	for _, c := range in {
		out = append(out, conversationView{Conversation: c, StatusTone: models.ToneOf(string(c.Status))})
	}
	return out
}

func appointmentViews(in []*models.Appointment) []appointmentView {
	out := make([]appointmentView, 0, len(in))
	for _, a := range in {
		out = append(out, appointmentView{Appointment: a, StatusTone: models.ToneOf(string(a.Status))})
	}
	return out
}

func (h *Handler) getOverview(c *gin.Context) {
	limit, ok := h.limit(c)
	if !ok {
		return
	}
	ov, err := h.dashboard.Overview(c.Request.Context(), limit)
	if err != nil {
		internalError(c, "load dashboard", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary":       ov.Summary,
		"conversations": conversationViews(ov.Conversations),
		"appointments":  appointmentViews(ov.Appointments),
	})
}

func (h *Handler) listConversations(c *gin.Context) {
	limit, ok := h.limit(c)
	if !ok {
		return
	}
	conversations, err := h.dashboard.ListConversations(c.Request.Context(), limit)
	if err != nil {
		internalError(c, "list conversations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversationViews(conversations)})
}

func (h *Handler) getConversation(c *gin.Context) {
	conv, err := h.dashboard.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		internalError(c, "get conversation", err)
		return
	}
	detail := *conv
	detail.Messages = conv.VisibleMessages()
	c.JSON(http.StatusOK, conversationView{Conversation: &detail, StatusTone: models.ToneOf(string(conv.Status))})
}

func (h *Handler) listAppointments(c *gin.Context) {
	limit, ok := h.limit(c)
	if !ok {
		return
	}
	appointments, err := h.dashboard.ListAppointments(c.Request.Context(), limit)
	if err != nil {
		internalError(c, "list appointments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointments": appointmentViews(appointments)})
}

func (h *Handler) listEdgeCases(c *gin.Context) {
	cases, err := h.edgeCases.List(c.Request.Context())
	if err != nil {
		internalError(c, "list edge cases", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"edge_cases": cases})
}

func (h *Handler) getEdgeCase(c *gin.Context) {
	ec, err := h.edgeCases.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "edge case not found"})
			return
		}
		internalError(c, "get edge case", err)
		return
	}
	c.JSON(http.StatusOK, ec)
}

// processTurn serves the same wire protocol the gateway client speaks.
func (h *Handler) processTurn(c *gin.Context) {
	var req gateway.WireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
		return
	}
	turn := gateway.TurnRequest{
		Text:           req.Text,
		SessionID:      req.SessionID,
		ConversationID: req.ConversationID,
	}
	switch {
	case req.AudioData != "" && req.Text != "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "send either audioData or text"})
		return
	case req.AudioData != "":
		payload, err := gateway.ParseDataURL(req.AudioData)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		turn.Audio = &payload
	case strings.TrimSpace(req.Text) == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	reply, err := h.turns.SubmitTurn(c.Request.Context(), turn)
	if err != nil {
		if errors.Is(err, ai.ErrAudioUnsupported) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		internalError(c, "process turn", err)
		return
	}
	response := reply.Response
	c.JSON(http.StatusOK, gateway.WireReply{ConversationID: reply.ConversationID, Response: &response})
}

func (h *Handler) limit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return h.defaultLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, true
}

func internalError(c *gin.Context, what string, err error) {
	log.With("path", c.FullPath()).
		WithError(err).
		Error("Cannot " + what + ".")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
