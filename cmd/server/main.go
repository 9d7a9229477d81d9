package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/adapters/audio"
	router "github.com/dkeye/VoiceAgent/internal/adapters/http"
	"github.com/dkeye/VoiceAgent/internal/adapters/rtc"
	"github.com/dkeye/VoiceAgent/internal/adapters/token"
	"github.com/dkeye/VoiceAgent/internal/app"
	"github.com/dkeye/VoiceAgent/internal/app/orch"
	"github.com/dkeye/VoiceAgent/internal/app/session"
	"github.com/dkeye/VoiceAgent/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	connector, err := rtc.NewConnector(cfg.Media.Config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up media connector")
	}

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Policy:   app.SimplePolicy{},
		Limiter:  app.NewActionLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Interval, cfg.RateLimit.Burst),
		Tokens:   token.New(cfg.Token.URL, cfg.Token.Timeout),
		Media:    connector,
		Input:    audio.NewInput(cfg.Audio),
		Session: session.Options{
			MediaURL:      cfg.Media.URL,
			AutoSubscribe: cfg.Media.AutoSubscribe,
			ContextFlow:   cfg.Media.ContextFlow,
		},
		Labels: session.DefaultLabels(),
		Visual: cfg.Visual,
	}

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Str("media", cfg.Media.URL).Msg("Voice agent console started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := o.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("sessions did not stop cleanly")
	}
	log.Info().Msg("Server exited gracefully")
}
