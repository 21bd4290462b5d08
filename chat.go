package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"github.com/chzyer/readline"
	log "github.com/echocat/slf4g"

	"voiceassist/internal/capture"
	"voiceassist/internal/console"
	"voiceassist/internal/gateway"
	"voiceassist/internal/service/dashboard"
	"voiceassist/internal/session"
	"voiceassist/internal/speech"
)

type chatCmd struct {
	*app
	provider  string
	model     string
	audioFile string
	speak     bool
	mute      bool
}

func (a *app) setupChat(cmd *kingpin.Application) {
	c := &chatCmd{app: a}
	cc := cmd.Command("chat", "Talk to the assistant in the terminal.").
		Default().
		Action(c.run)
	cc.Flag("provider", "Answer in-process with this provider (openai, gemini or claude) instead of the remote gateway.").
		StringVar(&c.provider)
	cc.Flag("model", "Model name passed to the provider.").
		StringVar(&c.model)
	cc.Flag("audio-file", "Replay this file on /rec instead of recording from the microphone.").
		ExistingFileVar(&c.audioFile)
	cc.Flag("speak", "Read every reply aloud.").
		BoolVar(&c.speak)
	cc.Flag("mute", "Never read replies aloud.").
		BoolVar(&c.mute)
}

func (c *chatCmd) run(*kingpin.ParseContext) error {
	ctx, cancel := signalContext()
	defer cancel()

	turns, end, err := c.turnService(ctx)
	if err != nil {
		return err
	}

	var speaker speech.Speaker = speech.NewCommandSpeaker(c.cfg.Speech)
	if c.mute {
		speaker = speech.Nop{}
	}
	ctrl, err := session.New(session.Options{
		Device:    c.device(),
		Gateway:   turns,
		Speaker:   speaker,
		AutoSpeak: !c.mute && (c.speak || c.cfg.Speech.AutoSpeak),
		OnConversation: func(id string) {
			log.With("conversation", id).Debug("Conversation started.")
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			log.WithError(err).Warn("Cannot release capture device.")
		}
	}()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	previous := c.logs.Set(rl.Stderr())
	defer c.logs.Set(previous...)

	runErr := console.New(ctrl, rl.Stdout()).Run(ctx, rl)
	if err := end(context.Background(), ctrl.ConversationID()); err != nil {
		log.With("conversation", ctrl.ConversationID()).WithError(err).Warn("Cannot close conversation.")
	}
	return runErr
}

// turnService picks the remote gateway unless a provider was requested. The
// returned end func closes the conversation, if any, and releases the store.
func (c *chatCmd) turnService(ctx context.Context) (session.Gateway, func(context.Context, string) error, error) {
	if c.provider == "" {
		if c.cfg.Gateway.BaseURL == "" {
			return nil, nil, errors.New("no gateway configured: set gateway.base_url or pass --provider")
		}
		noop := func(context.Context, string) error { return nil }
		return gateway.NewClient(c.cfg), noop, nil
	}

	db, err := c.openStore()
	if err != nil {
		return nil, nil, err
	}
	cache, closeCache := c.openCache()
	dash := dashboard.NewService(db, cache, c.cfg.CacheTTL())
	gw, err := newProviderGateway(ctx, c.app, c.provider, c.model, db, dash)
	if err != nil {
		closeCache()
		_ = db.Close()
		return nil, nil, err
	}
	end := func(ctx context.Context, id string) error {
		defer func() {
			closeCache()
			_ = db.Close()
		}()
		return gw.End(ctx, id)
	}
	return gw, end, nil
}

func (c *chatCmd) device() capture.Device {
	if c.audioFile != "" {
		return &capture.FileDevice{Path: c.audioFile, MimeType: c.cfg.Capture.MimeType}
	}
	return capture.NewCommandDevice(c.cfg.Capture)
}

func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, "voiceassist")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return ""
	}
	return filepath.Join(dir, "history")
}
