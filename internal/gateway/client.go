package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/echocat/slf4g"

	"voiceassist/internal/capture"
	"voiceassist/internal/config"
)

// ErrMalformedReply is returned when a success response cannot be used.
var ErrMalformedReply = errors.New("malformed gateway reply")

const maxReplyBytes = 1 << 20

// TurnRequest is one user turn; exactly one of Audio and Text is set.
type TurnRequest struct {
	Audio          *capture.Payload
	Text           string
	SessionID      string
	ConversationID string
}

// TurnReply is the backend's answer to a turn.
type TurnReply struct {
	ConversationID string
	Response       string
}

// WireRequest is the JSON body of one turn.
type WireRequest struct {
	AudioData      string `json:"audioData,omitempty"`
	Text           string `json:"text,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	SessionID      string `json:"sessionId"`
}

// WireReply is the JSON body answering a turn.
type WireReply struct {
	ConversationID string  `json:"conversationId"`
	Response       *string `json:"response"`
}

// StatusError carries a non-success HTTP status from the gateway.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway status %d: %s", e.Code, e.Status)
}

// Client talks to the remote conversational backend.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewClient builds a client from the process-wide configuration.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		endpoint: cfg.GatewayEndpoint(),
		apiKey:   cfg.Gateway.APIKey,
		http:     &http.Client{Timeout: cfg.GatewayTimeout()},
	}
}

// NewClientWithHTTP is NewClient with a caller-provided transport.
func NewClientWithHTTP(endpoint, apiKey string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: time.Minute}
	}
	return &Client{endpoint: endpoint, apiKey: apiKey, http: hc}
}

// SubmitTurn sends one turn and waits for the reply.
func (c *Client) SubmitTurn(ctx context.Context, req TurnRequest) (*TurnReply, error) {
	body, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	rsp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call gateway: %w", err)
	}
	defer func() {
		_ = rsp.Body.Close()
	}()
	log.With("status", rsp.StatusCode).
		With("elapsed", time.Since(started)).
		With("sessionId", req.SessionID).
		Debug("Gateway responded.")

	if rsp.StatusCode < 200 || rsp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(rsp.Body, maxReplyBytes))
		return nil, &StatusError{Code: rsp.StatusCode, Status: http.StatusText(rsp.StatusCode)}
	}

	var reply WireReply
	if err := json.NewDecoder(io.LimitReader(rsp.Body, maxReplyBytes)).Decode(&reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if reply.Response == nil {
		return nil, fmt.Errorf("%w: missing response", ErrMalformedReply)
	}
	return &TurnReply{ConversationID: reply.ConversationID, Response: *reply.Response}, nil
}

func encodeRequest(req TurnRequest) ([]byte, error) {
	hasAudio := req.Audio != nil
	hasText := req.Text != ""
	if hasAudio == hasText {
		return nil, errors.New("exactly one of audio and text is required")
	}
	if req.SessionID == "" {
		return nil, errors.New("session id is required")
	}
	wire := WireRequest{
		Text:           req.Text,
		ConversationID: req.ConversationID,
		SessionID:      req.SessionID,
	}
	if hasAudio {
		wire.AudioData = DataURL(*req.Audio)
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode gateway request: %w", err)
	}
	return body, nil
}

// DataURL renders a payload the way browsers serialize recorded blobs.
func DataURL(p capture.Payload) string {
	mime := p.MimeType
	if mime == "" {
		mime = capture.DefaultMimeType
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

// ParseDataURL decodes a base64 data URL back into a payload.
func ParseDataURL(s string) (capture.Payload, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return capture.Payload{}, errors.New("not a data url")
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return capture.Payload{}, errors.New("data url has no payload")
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return capture.Payload{}, errors.New("data url is not base64 encoded")
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return capture.Payload{}, fmt.Errorf("decode data url: %w", err)
	}
	return capture.Payload{Data: raw, MimeType: mime}, nil
}
