package speech

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"voiceassist/internal/config"
)

// ErrUnavailable means the host has no usable text-to-speech program.
var ErrUnavailable = errors.New("speech output unavailable")

const baseWordsPerMinute = 175

// Speaker turns text into audible speech.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Nop is a Speaker for hosts without speech output.
type Nop struct{}

func (Nop) Speak(context.Context, string) error {
	return ErrUnavailable
}

// CommandSpeaker speaks by running an external program with the text as its
// last argument.
type CommandSpeaker struct {
	Command string
	Args    []string
}

// NewCommandSpeaker picks the platform's speech program unless configured.
func NewCommandSpeaker(cfg config.SpeechConfig) *CommandSpeaker {
	s := &CommandSpeaker{Command: cfg.Command, Args: cfg.Args}
	if s.Command != "" {
		return s
	}
	rate := cfg.Rate
	if rate <= 0 {
		rate = 1
	}
	wpm := strconv.Itoa(int(baseWordsPerMinute * rate))
	switch runtime.GOOS {
	case "darwin":
		s.Command = "say"
		s.Args = []string{"-r", wpm}
	default:
		s.Command = "espeak"
		s.Args = []string{"-s", wpm}
	}
	return s
}

func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	path, err := exec.LookPath(s.Command)
	if err != nil {
		return ErrUnavailable
	}
	args := append(append([]string{}, s.Args...), text)
	if out, err := exec.CommandContext(ctx, path, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("speak: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
