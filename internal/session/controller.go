package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/echocat/slf4g"

	"voiceassist/internal/capture"
	"voiceassist/internal/gateway"
	"voiceassist/internal/models"
	"voiceassist/internal/speech"
)

// ApologyText replaces the assistant reply whenever a turn fails.
const ApologyText = "I apologize, but I encountered an error processing your request. Please try again."

const speakTimeout = 2 * time.Minute

type CaptureState int

const (
	Idle CaptureState = iota
	Recording
)

func (s CaptureState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	default:
		return fmt.Sprintf("CaptureState(%d)", int(s))
	}
}

// Gateway turns one user input into an assistant reply.
type Gateway interface {
	SubmitTurn(ctx context.Context, req gateway.TurnRequest) (*gateway.TurnReply, error)
}

type Options struct {
	Device  capture.Device
	Gateway Gateway
	Speaker speech.Speaker
	// Now stamps turns; defaults to time.Now.
	Now func() time.Time
	// AutoSpeak reads every successful reply aloud.
	AutoSpeak bool
	// OnConversation fires once, when the backend first assigns a conversation id.
	OnConversation func(conversationID string)
	// OnChange receives a snapshot after every state transition.
	OnChange func(State)
}

// State is a point-in-time copy of everything the controller owns.
type State struct {
	SessionID      string
	ConversationID string
	Capture        CaptureState
	TurnInFlight   bool
	PendingText    string
	Turns          []models.Turn
}

// Exchange is the pair of turns one submission appended. Failure is set when
// the backend could not answer and Assistant carries the apology instead.
type Exchange struct {
	User      models.Turn
	Assistant models.Turn
	Failure   error
}

func (e *Exchange) Failed() bool {
	return e != nil && e.Failure != nil
}

// Controller owns the turn-taking state of one chat session. At most one turn
// is in flight, and no input is accepted while recording or while a turn is
// awaited.
type Controller struct {
	device         capture.Device
	gateway        Gateway
	speaker        speech.Speaker
	now            func() time.Time
	autoSpeak      bool
	onConversation func(string)
	onChange       func(State)

	sessionID  string
	transcript Transcript

	mu             sync.Mutex
	capture        CaptureState
	opening        bool
	closes         int
	inFlight       bool
	pending        string
	conversationID string
	stream         capture.Stream
	recording      capture.Recording
}

// New starts a session. Gateway is required; without a Device every capture
// attempt reports capture.ErrNoDevice.
func New(opts Options) (*Controller, error) {
	if opts.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	speaker := opts.Speaker
	if speaker == nil {
		speaker = speech.Nop{}
	}
	c := &Controller{
		device:         opts.Device,
		gateway:        opts.Gateway,
		speaker:        speaker,
		now:            now,
		autoSpeak:      opts.AutoSpeak,
		onConversation: opts.OnConversation,
		onChange:       opts.OnChange,
		sessionID:      NewSessionID(now()),
	}
	return c, nil
}

func (c *Controller) SessionID() string {
	return c.sessionID
}

func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

func (c *Controller) Transcript() []models.Turn {
	return c.transcript.Turns()
}

// LastReply returns the most recent assistant turn.
func (c *Controller) LastReply() (models.Turn, bool) {
	return c.transcript.Last(models.RoleAssistant)
}

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	st := State{
		SessionID:      c.sessionID,
		ConversationID: c.conversationID,
		Capture:        c.capture,
		TurnInFlight:   c.inFlight,
		PendingText:    c.pending,
	}
	c.mu.Unlock()
	st.Turns = c.transcript.Turns()
	return st
}

func (c *Controller) CanBeginCapture() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputEnabledLocked()
}

func (c *Controller) CanEndCapture() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture == Recording
}

func (c *Controller) CanSubmitText() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputEnabledLocked() && strings.TrimSpace(c.pending) != ""
}

// SetPendingText replaces the unsent text.
func (c *Controller) SetPendingText(text string) error {
	c.mu.Lock()
	if err := c.inputErrLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.pending = text
	c.mu.Unlock()
	c.notify()
	return nil
}

// BeginCapture acquires the capture device and starts buffering audio.
func (c *Controller) BeginCapture(ctx context.Context) error {
	c.mu.Lock()
	if err := c.inputErrLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.opening = true
	gen := c.closes
	c.mu.Unlock()

	stream, rec, err := c.openDevice(ctx)
	c.mu.Lock()
	c.opening = false
	cancelled := err == nil && gen != c.closes
	if err == nil && !cancelled {
		c.capture = Recording
		c.stream = stream
		c.recording = rec
	}
	c.mu.Unlock()

	switch {
	case cancelled:
		// Close ran while the device was opening.
		if _, sErr := c.stopDevice(stream, rec); sErr != nil {
			log.WithError(sErr).Warn("Cannot stop capture device.")
		}
		c.notify()
		return ErrCaptureCancelled
	case err != nil:
		log.With("sessionId", c.sessionID).
			WithError(err).
			Warn("Cannot access capture device.")
		return &CaptureError{Err: err}
	}
	c.notify()
	return nil
}

func (c *Controller) openDevice(ctx context.Context) (capture.Stream, capture.Recording, error) {
	if c.device == nil {
		return nil, nil, capture.ErrNoDevice
	}
	stream, err := c.device.Open(ctx)
	if err != nil {
		return nil, nil, err
	}
	rec, err := c.device.Record(stream)
	if err != nil {
		if rErr := c.device.Release(stream); rErr != nil {
			log.WithError(rErr).Warn("Cannot release capture device.")
		}
		return nil, nil, err
	}
	return stream, rec, nil
}

// EndCapture finalizes the recording, releases the device and submits the
// audio as a voice turn. An empty recording is dropped with ErrEmptyRecording.
func (c *Controller) EndCapture(ctx context.Context) (*Exchange, error) {
	c.mu.Lock()
	if c.capture != Recording {
		c.mu.Unlock()
		return nil, ErrNotRecording
	}
	stream, rec := c.stream, c.recording
	c.stream, c.recording = nil, nil
	c.capture = Idle
	// reserved before the device is touched so nothing can slip in between
	// capture ending and the submission starting
	c.inFlight = true
	c.mu.Unlock()

	payload, err := c.stopDevice(stream, rec)
	switch {
	case err != nil:
		c.release()
		return nil, &CaptureError{Err: err}
	case payload.Empty():
		c.release()
		log.With("sessionId", c.sessionID).Info("Recording was empty. Nothing submitted.")
		return nil, ErrEmptyRecording
	}
	return c.submitTurn(ctx, turnInput{audio: &payload}), nil
}

func (c *Controller) stopDevice(stream capture.Stream, rec capture.Recording) (capture.Payload, error) {
	payload, err := c.device.Stop(rec)
	if rErr := c.device.Release(stream); rErr != nil {
		log.WithError(rErr).Warn("Cannot release capture device.")
	}
	return payload, err
}

// SubmitText sends the pending text as a turn and clears the text box before
// the reply arrives.
func (c *Controller) SubmitText(ctx context.Context) (*Exchange, error) {
	c.mu.Lock()
	text := c.pending
	if strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		return nil, ErrEmptyInput
	}
	if err := c.inputErrLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.inFlight = true
	c.pending = ""
	c.mu.Unlock()
	c.notify()

	return c.submitTurn(ctx, turnInput{text: text}), nil
}

type turnInput struct {
	audio *capture.Payload
	text  string
}

func (in turnInput) content() string {
	if in.audio != nil {
		return models.VoicePlaceholder
	}
	return in.text
}

// submitTurn is the single funnel for outbound turns. The caller has already
// set inFlight; it is cleared here on every exit path.
func (c *Controller) submitTurn(ctx context.Context, in turnInput) *Exchange {
	defer c.release()

	req := gateway.TurnRequest{
		Audio:          in.audio,
		Text:           in.text,
		SessionID:      c.sessionID,
		ConversationID: c.ConversationID(),
	}
	reply, err := c.callGateway(ctx, req)
	if err != nil {
		failure := &submissionError{err: err}
		log.With("sessionId", c.sessionID).
			WithError(err).
			Error("Turn submission failed.")
		return c.appendExchange(in.content(), ApologyText, failure)
	}

	c.assignConversation(reply.ConversationID)
	ex := c.appendExchange(in.content(), reply.Response, nil)
	if c.autoSpeak {
		c.Speak(reply.Response)
	}
	return ex
}

func (c *Controller) callGateway(ctx context.Context, req gateway.TurnRequest) (reply *gateway.TurnReply, err error) {
	defer func() {
		if r := recover(); r != nil {
			reply, err = nil, fmt.Errorf("gateway panicked: %v", r)
		}
	}()
	reply, err = c.gateway.SubmitTurn(ctx, req)
	if err == nil && reply == nil {
		err = errors.New("gateway returned no reply")
	}
	return reply, err
}

func (c *Controller) appendExchange(userContent, assistantContent string, failure error) *Exchange {
	ex := &Exchange{
		User:    models.Turn{Role: models.RoleUser, Content: userContent, Timestamp: c.now()},
		Failure: failure,
	}
	ex.Assistant = models.Turn{Role: models.RoleAssistant, Content: assistantContent, Timestamp: c.now()}
	c.transcript.append(ex.User, ex.Assistant)
	return ex
}

func (c *Controller) assignConversation(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	if c.conversationID != "" {
		c.mu.Unlock()
		return
	}
	c.conversationID = id
	c.mu.Unlock()

	log.With("sessionId", c.sessionID).
		With("conversationId", id).
		Info("Conversation assigned.")
	if c.onConversation != nil {
		c.onConversation(id)
	}
}

func (c *Controller) release() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
	c.notify()
}

// Speak reads text aloud in the background. Missing or failing speech output
// is ignored.
func (c *Controller) Speak(text string) {
	speaker := c.speaker
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), speakTimeout)
		defer cancel()
		if err := speaker.Speak(ctx, text); err != nil && !errors.Is(err, speech.ErrUnavailable) {
			log.WithError(err).Debug("Speech output failed.")
		}
	}()
}

// Close stops an active recording without submitting it and releases the
// capture device. A device still being opened is released as soon as the
// open completes.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closes++
	if c.capture != Recording {
		c.mu.Unlock()
		return nil
	}
	stream, rec := c.stream, c.recording
	c.stream, c.recording = nil, nil
	c.capture = Idle
	c.mu.Unlock()

	_, err := c.stopDevice(stream, rec)
	c.notify()
	return err
}

func (c *Controller) inputEnabledLocked() bool {
	return c.inputErrLocked() == nil
}

func (c *Controller) inputErrLocked() error {
	switch {
	case c.inFlight:
		return ErrTurnInFlight
	case c.capture == Recording:
		return ErrRecording
	case c.opening:
		return ErrCaptureBusy
	}
	return nil
}

func (c *Controller) notify() {
	if c.onChange != nil {
		c.onChange(c.Snapshot())
	}
}
