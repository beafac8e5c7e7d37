package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/psyprofile/psyprofile-backend/internal/auth/jwt"
	"github.com/psyprofile/psyprofile-backend/internal/profile/audit"
	"github.com/psyprofile/psyprofile-backend/internal/profile/exporter"
	"github.com/psyprofile/psyprofile-backend/internal/profile/extractor"
	"github.com/psyprofile/psyprofile-backend/internal/profile/generator"
	"github.com/psyprofile/psyprofile-backend/internal/profile/handler"
	"github.com/psyprofile/psyprofile-backend/internal/profile/prompt"
	"github.com/psyprofile/psyprofile-backend/internal/profile/service"
	"github.com/psyprofile/psyprofile-backend/internal/profile/storage"
	"github.com/psyprofile/psyprofile-backend/pkg/config"
	"github.com/psyprofile/psyprofile-backend/pkg/database"
	"github.com/psyprofile/psyprofile-backend/pkg/httputil"
	"github.com/psyprofile/psyprofile-backend/pkg/i18n"
	"github.com/psyprofile/psyprofile-backend/pkg/logger"
	"github.com/psyprofile/psyprofile-backend/pkg/messaging"
	"github.com/psyprofile/psyprofile-backend/pkg/metrics"
	"github.com/psyprofile/psyprofile-backend/pkg/resilience"
)

const serviceName = "profile-service"

func main() {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().
		Str("provider", cfg.LLM.Provider).
		Str("audit_sink", cfg.Audit.Sink).
		Msg("starting Profile Service")

	m := metrics.New(serviceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Completion provider behind the circuit breaker
	completer, err := generator.NewCompleter(ctx, cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create completion provider")
	}
	exec := resilience.NewExecutor(resilience.FromConfig(cfg.Resilience), log)
	gen := generator.New(completer, exec, log,
		generator.WithTimeout(cfg.LLM.Timeout),
		generator.WithUsageRecorder(m),
	)

	store := storage.NewStore(cfg.Session, log, storage.WithEndHook(m.SessionEnded))

	// Audit sink
	health := map[string]func(context.Context) map[string]string{}
	var closers []io.Closer
	recorder, err := newAuditRecorder(cfg, log, health, &closers)
	if err != nil {
		log.Fatal().Err(err).Str("sink", cfg.Audit.Sink).Msg("failed to set up audit sink")
	}

	svc := service.NewService(
		store,
		extractor.NewIngestor(extractor.DefaultRegistry(), log),
		prompt.NewBuilder(prompt.Options{
			Temperature:      cfg.LLM.Temperature,
			ProfileMaxTokens: cfg.LLM.ProfileMaxTokens,
			AnswerMaxTokens:  cfg.LLM.AnswerMaxTokens,
		}),
		gen,
		exporter.DefaultRegistry(),
		log,
		service.WithMetrics(m),
		service.WithAuditRecorder(recorder),
	)

	tokens := jwt.NewManager(&cfg.JWT, cfg.Session.TTL)
	limiter := httputil.NewKeyedLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, cfg.Session.TTL)
	startLimiter := httputil.NewKeyedLimiter(cfg.RateLimit.SessionsPerMinute, cfg.RateLimit.SessionsBurst, time.Hour)
	profileHandler := handler.NewHandler(svc, tokens, limiter, cfg.Server.MaxUploadBytes, log,
		handler.WithStartLimiter(startLimiter))

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Accept-Language"},
		ExposedHeaders:   []string{"X-Request-ID", handler.RefreshHeader, "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(i18n.Middleware)
	r.Use(m.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":   "healthy",
			"service":  serviceName,
			"model":    gen.Model(),
			"sessions": store.Len(),
		}
		for name, check := range health {
			body[name] = check(r.Context())
		}
		httputil.JSON(w, http.StatusOK, body)
	})
	r.Handle("/metrics", m.Handler())

	r.Route("/api/v1", profileHandler.Routes)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Flush pending audit writes, then wipe every live session
	svc.Wait()
	store.Close()

	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close audit sink")
		}
	}

	log.Info().Msg("server stopped")
}

func newAuditRecorder(
	cfg *config.Config,
	log *logger.Logger,
	health map[string]func(context.Context) map[string]string,
	closers *[]io.Closer,
) (audit.Recorder, error) {
	switch cfg.Audit.Sink {
	case config.AuditSinkPostgres:
		db, err := database.New(&cfg.Database, log)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, db)
		health["database"] = db.Health
		return audit.NewPostgresRecorder(db), nil

	case config.AuditSinkRabbitMQ:
		rmq, err := messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, rmq)
		health["rabbitmq"] = func(context.Context) map[string]string { return rmq.Health() }

		publisher, err := messaging.NewPublisher(rmq, cfg.Audit.Exchange, serviceName, log)
		if err != nil {
			return nil, err
		}
		return audit.NewEventRecorder(publisher), nil

	default:
		return audit.NewLogRecorder(log), nil
	}
}
