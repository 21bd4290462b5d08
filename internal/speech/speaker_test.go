package speech

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceassist/internal/config"
)

func TestNopIsUnavailable(t *testing.T) {
	assert.ErrorIs(t, Nop{}.Speak(context.Background(), "hello"), ErrUnavailable)
}

func TestCommandSpeakerMissingProgram(t *testing.T) {
	s := NewCommandSpeaker(config.SpeechConfig{Command: "no-such-tts-program"})
	assert.ErrorIs(t, s.Speak(context.Background(), "hello"), ErrUnavailable)
}

func TestCommandSpeakerDefaultsScaleRate(t *testing.T) {
	s := NewCommandSpeaker(config.SpeechConfig{Rate: 0.9})
	require.Len(t, s.Args, 2)
	assert.Equal(t, "157", s.Args[1])
}

func TestCommandSpeakerPassesTextLast(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	out := filepath.Join(t.TempDir(), "spoken.txt")
	s := &CommandSpeaker{Command: "sh", Args: []string{"-c", `printf '%s' "$1" > "$0"`, out}}

	require.NoError(t, s.Speak(context.Background(), "  Your appointment is confirmed.  "))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "Your appointment is confirmed.", string(got))
}

func TestCommandSpeakerSkipsBlankText(t *testing.T) {
	s := &CommandSpeaker{Command: "no-such-tts-program"}
	assert.NoError(t, s.Speak(context.Background(), "   "))
}
