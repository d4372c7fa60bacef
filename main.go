package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"whatsapp-api-gateway/config"
	"whatsapp-api-gateway/media"
	"whatsapp-api-gateway/metrics"
	"whatsapp-api-gateway/server"
	"whatsapp-api-gateway/webhook"
	"whatsapp-api-gateway/whatsapp"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stats := metrics.New()
	stats.StartSweeper(ctx)

	store, err := media.NewStore(cfg.MediaDir, stats.Registry(), log.Logger)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.MediaDir).Msg("failed to prepare media directory")
	}

	transport, err := whatsapp.NewMeowTransport(ctx, cfg.SessionDSN(), cfg.SessionDBPath, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session store")
	}

	hooks := webhook.NewDeliverer(cfg.Webhook, log.Logger)
	hooks.AttachMedia(store, transport)

	conn := whatsapp.NewConnectionManager(transport, hooks, log.Logger)
	dispatcher := whatsapp.NewDispatcher(transport, conn, hooks, stats, cfg.Send, log.Logger)
	bulk := whatsapp.NewBulkCoordinator(dispatcher, stats, cfg.Send, log.Logger)

	limiter := whatsapp.NewRateLimiter()
	limiter.StartCleanup(ctx)

	srv := server.New(cfg, conn, dispatcher, bulk, hooks, limiter, stats, log.Logger)

	go conn.Run(ctx)

	if err := transport.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("initial connection failed, will retry on events")
	}

	go func() {
		if err := srv.Start(cfg.Port); err != nil {
			log.Warn().Err(err).Msg("http server stopped")
		}
	}()
	log.Info().Str("port", cfg.Port).Msg("whatsapp gateway listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown error")
	}
	hooks.Drain()
	if err := transport.Close(); err != nil {
		log.Warn().Err(err).Msg("transport close error")
	}
	log.Info().Msg("goodbye")
}
