package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/clinicaonline/turnos-api/config"
	"github.com/clinicaonline/turnos-api/internal/email"
	"github.com/clinicaonline/turnos-api/internal/handler/health"
	promHandler "github.com/clinicaonline/turnos-api/internal/handler/prometheus"
	"github.com/clinicaonline/turnos-api/internal/middleware"
	"github.com/clinicaonline/turnos-api/internal/repository/postgres"
	"github.com/clinicaonline/turnos-api/internal/service/notification"
	cleanup "github.com/clinicaonline/turnos-api/internal/worker"
	"github.com/clinicaonline/turnos-api/pkg/logger"
	"github.com/clinicaonline/turnos-api/pkg/messaging"
	redisbroker "github.com/clinicaonline/turnos-api/pkg/messaging/redis"
	"github.com/clinicaonline/turnos-api/pkg/metrics"
	"github.com/clinicaonline/turnos-api/pkg/worker"
)

// The worker drains the outbox into redis, turns the published events into
// emails and prunes processed rows.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	base := logger.Setup(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	zerolog.DefaultContextLogger = &base

	if err := run(cfg, base); err != nil {
		log.Fatal().Err(err).Msg("worker stopped")
	}
}

func run(cfg *config.Config, base zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database.ToPostgresConfig())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	rdb, err := redisbroker.NewClient(ctx, cfg.Redis.ToBrokerConfig())
	if err != nil {
		return err
	}

	registry := promHandler.NewRegistry()
	m := metrics.NewMetrics("clinica_worker", registry)

	broker := redisbroker.NewRedisBroker(rdb, base, m, redisbroker.WithConsumer(cfg.Redis.ToConsumerConfig()))
	defer broker.Close()

	baseRepo := postgres.NewBaseRepository(db)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)
	userRepo := postgres.NewUserRepository(baseRepo)

	processor, err := worker.NewOutboxProcessor(outboxRepo, broker, cfg.Outbox.ToWorkerConfig(), base, m)
	if err != nil {
		return err
	}
	janitor := cleanup.NewOutboxCleanupWorker(outboxRepo, cfg.Outbox.RetentionDays, cfg.Outbox.CleanupInterval)

	dispatcher := messaging.NewDispatcher()
	notification.NewService(userRepo, email.NewSMTPService(cfg.ToMailerConfig(), m)).Register(dispatcher)

	srv := healthServer(cfg.Worker.HealthPort, base, health.NewHandler(db, rdb), promHandler.New(registry))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
			stop()
		}
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		janitor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := dispatcher.Run(ctx, broker, messaging.Channel); err != nil {
			log.Error().Err(err).Msg("notification consumer stopped")
			stop()
		}
	}()

	log.Info().Int("health_port", cfg.Worker.HealthPort).Msg("worker started")
	<-ctx.Done()
	log.Info().Msg("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("health server shutdown")
	}
	wg.Wait()
	return nil
}

func healthServer(port int, base zerolog.Logger, h *health.Handler, prom *promHandler.Handler) *http.Server {
	engine := gin.New()
	engine.Use(middleware.Logger(base), middleware.Recovery())
	prom.RegisterRoutes(engine)
	h.RegisterRoutes(engine.Group(""))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
