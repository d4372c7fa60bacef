package server

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"whatsapp-api-gateway/config"
	"whatsapp-api-gateway/metrics"
	"whatsapp-api-gateway/types"
	"whatsapp-api-gateway/webhook"
	"whatsapp-api-gateway/whatsapp"
)

// Narrow consumer-side interfaces so handlers can be tested with fakes.
type sender interface {
	Send(ctx context.Context, msg types.OutboundMessage) (string, error)
}

type bulkSender interface {
	SendBulk(ctx context.Context, items []types.BulkItem) (types.BulkSummary, error)
}

type session interface {
	Status() whatsapp.Status
	Logout(ctx context.Context) error
}

type hookService interface {
	Enabled() bool
	URL() string
	Deliver(ctx context.Context, event string, data any) webhook.Result
}

type admitter interface {
	Admit(cat whatsapp.Category, identity string) error
}

// Server is the thin HTTP glue over the dispatch core.
type Server struct {
	echo      *echo.Echo
	log       zerolog.Logger
	apiKey    string
	conn      session
	send      sender
	bulk      bulkSender
	hooks     hookService
	limiter   admitter
	stats     *metrics.Aggregator
	validate  *validator.Validate
	startTime time.Time
}

func New(cfg *config.Config, conn session, send sender, bulk bulkSender, hooks hookService, limiter admitter, stats *metrics.Aggregator, log zerolog.Logger) *Server {
	s := &Server{
		echo:      echo.New(),
		log:       log.With().Str("component", "server").Logger(),
		apiKey:    cfg.APIKey,
		conn:      conn,
		send:      send,
		bulk:      bulk,
		hooks:     hooks,
		limiter:   limiter,
		stats:     stats,
		validate:  validator.New(),
		startTime: time.Now(),
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("10M"))
	e.Use(s.requestLogger())

	e.GET("/api/health", s.handleHealth)
	e.Static("/media", cfg.MediaDir)
	e.GET("/metrics/prometheus", echo.WrapHandler(promhttp.HandlerFor(stats.Registry(), promhttp.HandlerOpts{})))

	m := e.Group("/api/metrics")
	m.GET("", s.handleMetrics)
	m.POST("/reset", s.handleMetricsReset)

	wa := e.Group("/api/whatsapp", s.apiKeyAuth, s.trackAPI)
	wa.GET("/status", s.handleStatus)
	wa.GET("/qr", s.handleQR, s.rateLimit(whatsapp.CategoryGeneral), s.rateLimit(whatsapp.CategoryQR))
	wa.POST("/send-message", s.handleSendMessage, s.rateLimit(whatsapp.CategoryGeneral), s.rateLimit(whatsapp.CategorySend))
	wa.POST("/send-media", s.handleSendMedia, s.rateLimit(whatsapp.CategoryGeneral), s.rateLimit(whatsapp.CategorySend))
	wa.POST("/send-bulk", s.handleSendBulk, s.rateLimit(whatsapp.CategoryGeneral), s.rateLimit(whatsapp.CategoryBulkSend))
	wa.POST("/logout", s.handleLogout)

	wh := e.Group("/api/webhook", s.apiKeyAuth)
	wh.GET("/status", s.handleWebhookStatus)
	wh.POST("/test", s.handleWebhookTest)
	wh.POST("/send", s.handleWebhookSend)

	return s
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start(port string) error {
	s.log.Info().Str("port", port).Msg("http server listening")
	return s.echo.Start(":" + port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
