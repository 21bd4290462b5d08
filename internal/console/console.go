package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	log "github.com/echocat/slf4g"

	"voiceassist/internal/models"
	"voiceassist/internal/session"
)

const (
	promptIdle      = "> "
	promptRecording = "(rec) > "
	timeLayout      = "15:04"
)

const helpText = `Type a message and press enter to send it.
  /rec    start recording a voice turn
  /stop   stop recording and send the audio
  /say    read the last reply aloud
  /state  show the session state
  /history  print the whole transcript
  /quit   leave the chat`

// Console is the interactive terminal view of one chat session.
type Console struct {
	ctrl *session.Controller
	out  io.Writer
}

func New(ctrl *session.Controller, out io.Writer) *Console {
	return &Console{ctrl: ctrl, out: out}
}

// Run reads lines until /quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, rl *readline.Instance) error {
	fmt.Fprintf(c.out, "Session %s. Type /help for commands.\n", c.ctrl.SessionID())
	for {
		if ctx.Err() != nil {
			return nil
		}
		rl.SetPrompt(c.prompt())
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if c.ctrl.CanEndCapture() {
				c.Execute(ctx, "/stop")
				continue
			}
			if line == "" {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("read input: %w", err)
		}
		if quit := c.Execute(ctx, line); quit {
			return nil
		}
	}
}

// Execute runs one input line and reports whether the user asked to quit.
func (c *Console) Execute(ctx context.Context, line string) (quit bool) {
	cmd := strings.TrimSpace(line)
	switch strings.ToLower(cmd) {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(c.out, helpText)
	case "/rec":
		if err := c.ctrl.BeginCapture(ctx); err != nil {
			c.fail(err)
			return false
		}
		fmt.Fprintln(c.out, "Recording... type /stop (or press Ctrl+C) to send.")
	case "/stop":
		fmt.Fprintln(c.out, "Processing...")
		ex, err := c.ctrl.EndCapture(ctx)
		if err != nil {
			c.fail(err)
			return false
		}
		c.renderExchange(ex)
	case "/say":
		turn, ok := c.ctrl.LastReply()
		if !ok {
			fmt.Fprintln(c.out, "Nothing to read yet.")
			return false
		}
		c.ctrl.Speak(turn.Content)
	case "/state":
		c.renderState(c.ctrl.Snapshot())
	case "/history":
		for _, turn := range c.ctrl.Transcript() {
			c.renderTurn(turn)
		}
	default:
		if strings.HasPrefix(cmd, "/") {
			fmt.Fprintf(c.out, "Unknown command %s. Type /help for commands.\n", cmd)
			return false
		}
		c.sendText(ctx, line)
	}
	return false
}

func (c *Console) sendText(ctx context.Context, text string) {
	if err := c.ctrl.SetPendingText(text); err != nil {
		c.fail(err)
		return
	}
	ex, err := c.ctrl.SubmitText(ctx)
	if err != nil {
		c.fail(err)
		return
	}
	c.renderExchange(ex)
}

func (c *Console) renderExchange(ex *session.Exchange) {
	c.renderTurn(ex.Assistant)
	if ex.Failed() {
		log.WithError(ex.Failure).Debug("Turn failed.")
	}
}

func (c *Console) renderTurn(turn models.Turn) {
	who := "you"
	if turn.Role == models.RoleAssistant {
		who = "assistant"
	}
	fmt.Fprintf(c.out, "[%s] %s: %s\n", turn.Timestamp.Format(timeLayout), who, turn.Content)
}

func (c *Console) renderState(st session.State) {
	conversation := st.ConversationID
	if conversation == "" {
		conversation = "(none yet)"
	}
	fmt.Fprintf(c.out, "session:      %s\nconversation: %s\ncapture:      %s\nturns:        %d\n",
		st.SessionID, conversation, st.Capture, len(st.Turns))
}

func (c *Console) fail(err error) {
	var ce *session.CaptureError
	switch {
	case errors.As(err, &ce):
		fmt.Fprintf(c.out, "Could not access the microphone: %v\n", ce.Err)
	case errors.Is(err, session.ErrEmptyRecording):
		fmt.Fprintln(c.out, "Nothing was recorded.")
	default:
		fmt.Fprintf(c.out, "%v\n", err)
	}
}

func (c *Console) prompt() string {
	if c.ctrl.CanEndCapture() {
		return promptRecording
	}
	return promptIdle
}
