package console

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceassist/internal/capture"
	"voiceassist/internal/gateway"
	"voiceassist/internal/session"
)

type echoGateway struct {
	requests []gateway.TurnRequest
}

func (g *echoGateway) SubmitTurn(_ context.Context, req gateway.TurnRequest) (*gateway.TurnReply, error) {
	g.requests = append(g.requests, req)
	if req.Audio != nil {
		return &gateway.TurnReply{ConversationID: "c1", Response: "heard you"}, nil
	}
	return &gateway.TurnReply{ConversationID: "c1", Response: "echo: " + req.Text}, nil
}

func newTestConsole(t *testing.T, device capture.Device) (*Console, *echoGateway, *bytes.Buffer) {
	t.Helper()
	gw := &echoGateway{}
	ctrl, err := session.New(session.Options{Device: device, Gateway: gw})
	require.NoError(t, err)
	var out bytes.Buffer
	return New(ctrl, &out), gw, &out
}

func TestExecuteSendsPlainText(t *testing.T) {
	c, gw, out := newTestConsole(t, nil)

	assert.False(t, c.Execute(context.Background(), "Book a haircut tomorrow at 3pm"))
	require.Len(t, gw.requests, 1)
	assert.Equal(t, "Book a haircut tomorrow at 3pm", gw.requests[0].Text)
	assert.Contains(t, out.String(), "assistant: echo: Book a haircut tomorrow at 3pm")

	out.Reset()
	c.Execute(context.Background(), "/state")
	assert.Contains(t, out.String(), "conversation: c1")
	assert.Contains(t, out.String(), "turns:        2")
}

func TestExecuteBlankLineIsIgnored(t *testing.T) {
	c, gw, out := newTestConsole(t, nil)
	assert.False(t, c.Execute(context.Background(), "   "))
	assert.Empty(t, gw.requests)
	assert.Empty(t, out.String())
}

func TestExecuteVoiceTurn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turn.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFFdata"), 0o600))
	c, gw, out := newTestConsole(t, &capture.FileDevice{Path: path})

	c.Execute(context.Background(), "/rec")
	assert.Equal(t, promptRecording, c.prompt())

	// typing while recording is refused
	c.Execute(context.Background(), "hello")
	assert.Empty(t, gw.requests)
	assert.Contains(t, out.String(), session.ErrRecording.Error())

	c.Execute(context.Background(), "/stop")
	require.Len(t, gw.requests, 1)
	require.NotNil(t, gw.requests[0].Audio)
	assert.Equal(t, "audio/wav", gw.requests[0].Audio.MimeType)
	assert.Contains(t, out.String(), "assistant: heard you")
	assert.Equal(t, promptIdle, c.prompt())

	out.Reset()
	c.Execute(context.Background(), "/history")
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "you: [Voice input]")
}

func TestExecuteCaptureFailureIsReported(t *testing.T) {
	c, _, out := newTestConsole(t, &capture.FileDevice{Path: filepath.Join(t.TempDir(), "missing.wav")})
	c.Execute(context.Background(), "/rec")
	assert.Contains(t, out.String(), "Could not access the microphone")
	assert.Equal(t, promptIdle, c.prompt())
}

func TestExecuteCommands(t *testing.T) {
	c, _, out := newTestConsole(t, nil)
	assert.True(t, c.Execute(context.Background(), "/quit"))
	assert.True(t, c.Execute(context.Background(), "/EXIT"))

	c.Execute(context.Background(), "/stop")
	assert.Contains(t, out.String(), session.ErrNotRecording.Error())

	out.Reset()
	c.Execute(context.Background(), "/say")
	assert.Contains(t, out.String(), "Nothing to read yet.")

	out.Reset()
	c.Execute(context.Background(), "/bogus")
	assert.Contains(t, out.String(), "Unknown command /bogus")

	out.Reset()
	c.Execute(context.Background(), "/help")
	assert.Contains(t, out.String(), "/rec")
}

func TestWriterFacade(t *testing.T) {
	var a, b bytes.Buffer
	w := NewWriterFacade(&a)
	_, err := w.Write([]byte("one\n"))
	require.NoError(t, err)

	prev := w.Set(&a, &b)
	assert.Len(t, prev, 1)
	_, err = w.Write([]byte("two\n"))
	require.NoError(t, err)

	assert.Equal(t, "one\ntwo\n", a.String())
	assert.Equal(t, "two\n", b.String())
}
