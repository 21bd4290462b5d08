package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"
	log "github.com/echocat/slf4g"
	"github.com/gin-gonic/gin"

	"voiceassist/internal/api"
	"voiceassist/internal/auth"
	"voiceassist/internal/service/ai"
	"voiceassist/internal/service/dashboard"
	"voiceassist/internal/service/edgecase"
	"voiceassist/internal/storage"
)

const shutdownTimeout = 10 * time.Second

type serveCmd struct {
	*app
	address  string
	provider string
	model    string
}

func (a *app) setupServe(cmd *kingpin.Application) {
	s := &serveCmd{app: a}
	c := cmd.Command("serve", "Serve the dashboard API and, with --provider, the turn endpoint.").
		Action(s.run)
	c.Flag("address", "Listen address. Defaults to the configured server_address.").
		StringVar(&s.address)
	c.Flag("provider", "Answer turns in-process with this provider: openai, gemini or claude.").
		StringVar(&s.provider)
	c.Flag("model", "Model name passed to the provider.").
		StringVar(&s.model)
}

func (s *serveCmd) run(*kingpin.ParseContext) error {
	ctx, cancel := signalContext()
	defer cancel()

	db, err := s.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	cache, closeCache := s.openCache()
	defer closeCache()

	ttl := s.cfg.CacheTTL()
	dash := dashboard.NewService(db, cache, ttl)
	edgeCases := edgecase.NewService(db, cache, ttl)
	seeded, err := edgeCases.SeedDefaults(ctx)
	if err != nil {
		return fmt.Errorf("seed edge cases: %w", err)
	}
	if seeded > 0 {
		log.With("count", seeded).Info("Seeded default edge cases.")
	}

	authService := auth.NewService(s.cfg.BasicConfig.AdminToken)
	if !authService.Enabled() {
		log.Warn("No admin token configured. The dashboard API is open.")
	}
	handlers := api.NewHandler(dash, edgeCases, authService, s.cfg.BasicConfig.DashboardLimit)

	if s.provider != "" {
		turns, err := newProviderGateway(ctx, s.app, s.provider, s.model, db, dash)
		if err != nil {
			return err
		}
		handlers.WithTurns(turns, s.cfg.Gateway.FunctionPath, auth.NewService(s.cfg.Gateway.APIKey))
		log.With("provider", s.provider).
			With("path", s.cfg.Gateway.FunctionPath).
			Info("Serving turns in-process.")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	handlers.RegisterRoutes(router)

	addr := s.address
	if addr == "" {
		addr = s.cfg.BasicConfig.ServerAddress
	}
	srv := &http.Server{Addr: addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		log.With("address", addr).Info("Listening...")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Terminated. Going down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

// newProviderGateway answers turns through provider and records them in db.
// Every recorded turn drops the cached dashboard lists.
func newProviderGateway(ctx context.Context, a *app, provider, modelName string, db *storage.DB, dash *dashboard.Service) (*ai.Gateway, error) {
	chatModel, err := ai.NewChatModel(ctx, provider, modelName, "", a.cfg.Providers[provider])
	if err != nil {
		return nil, err
	}
	return ai.NewGateway(ctx, chatModel, ai.Options{
		Store:       db,
		AfterRecord: dash.Invalidate,
	})
}
