package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"gastos/internal/amqp"
	"gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/middleware/ratelimit"
	"gastos/internal/middleware/security"
	"gastos/internal/middleware/trace"
	"gastos/internal/telegram"
)

// CommandHandler executes a bot command. Implemented by services.BotService.
type CommandHandler interface {
	Handle(ctx context.Context, cmd telegram.Command) error
}

// ReportPublisher queues an on-demand report run.
type ReportPublisher interface {
	PublishReportRequest(ctx context.Context, req *amqp.ReportRequest) error
}

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server's collaborators. Bot is required; the rest
// are optional.
type Options struct {
	Addr          string
	WebhookSecret string
	ReportsToken  string
	RateLimit     ratelimit.Config

	Bot       CommandHandler
	Publisher ReportPublisher
	Store     Pinger
	Metrics   *metrics.Metrics
	Logger    *log.Logger
}

type Server struct {
	http.Server
	bot       CommandHandler
	publisher ReportPublisher
	store     Pinger
	metrics   *metrics.Metrics
	logger    *log.Logger
	started   time.Time
	now       func() time.Time

	detector        *security.Detector
	rateLimiter     *ratelimit.Limiter
	traceMiddleware *trace.Middleware

	shutdownOnce sync.Once
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	s := &Server{
		bot:       opts.Bot,
		publisher: opts.Publisher,
		store:     opts.Store,
		metrics:   opts.Metrics,
		logger:    logger.WithComponent(log.ComponentHTTP),
		now:       time.Now,
	}
	s.started = s.now()

	s.detector = security.NewDetector(logger)
	s.rateLimiter = ratelimit.NewLimiter(opts.RateLimit, logger)
	s.traceMiddleware = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	limited := s.rateLimiter.Middleware(s.detector.ExtractClientIP, nil)
	webhookAuth := security.WebhookSecret(opts.WebhookSecret, logger)
	reportsAuth := security.BearerToken(opts.ReportsToken, logger)

	mux := http.NewServeMux()
	mux.Handle("POST /telegram/webhook", webhookAuth(limited(http.HandlerFunc(s.handleWebhook))))
	mux.Handle("POST /reports/run", reportsAuth(limited(http.HandlerFunc(s.handleRunReport))))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	var handler http.Handler = mux
	handler = security.Headers(handler)
	handler = s.detector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Bot commands run synchronously and may wait on the delivery timeout.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start runs background cleanup and serves until Shutdown. It returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	s.rateLimiter.Start()
	s.logger.Info("HTTP server listening", "addr", s.Addr)
	return s.ListenAndServe()
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
