package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/clinicaonline/turnos-api/config"
	appointmentHandler "github.com/clinicaonline/turnos-api/internal/handler/appointment"
	authHandler "github.com/clinicaonline/turnos-api/internal/handler/auth"
	"github.com/clinicaonline/turnos-api/internal/handler/health"
	medicalHandler "github.com/clinicaonline/turnos-api/internal/handler/medical"
	promHandler "github.com/clinicaonline/turnos-api/internal/handler/prometheus"
	reportHandler "github.com/clinicaonline/turnos-api/internal/handler/report"
	scheduleHandler "github.com/clinicaonline/turnos-api/internal/handler/schedule"
	specialtyHandler "github.com/clinicaonline/turnos-api/internal/handler/specialty"
	surveyHandler "github.com/clinicaonline/turnos-api/internal/handler/survey"
	userHandler "github.com/clinicaonline/turnos-api/internal/handler/user"
	"github.com/clinicaonline/turnos-api/internal/middleware"
	"github.com/clinicaonline/turnos-api/internal/repository/postgres"
	tokenstore "github.com/clinicaonline/turnos-api/internal/repository/redis"
	"github.com/clinicaonline/turnos-api/internal/router"
	appointmentService "github.com/clinicaonline/turnos-api/internal/service/appointment"
	authService "github.com/clinicaonline/turnos-api/internal/service/auth"
	medicalService "github.com/clinicaonline/turnos-api/internal/service/medical"
	reportService "github.com/clinicaonline/turnos-api/internal/service/report"
	scheduleService "github.com/clinicaonline/turnos-api/internal/service/schedule"
	specialtyService "github.com/clinicaonline/turnos-api/internal/service/specialty"
	surveyService "github.com/clinicaonline/turnos-api/internal/service/survey"
	userService "github.com/clinicaonline/turnos-api/internal/service/user"
	"github.com/clinicaonline/turnos-api/pkg/auth"
	"github.com/clinicaonline/turnos-api/pkg/logger"
	redisbroker "github.com/clinicaonline/turnos-api/pkg/messaging/redis"
	"github.com/clinicaonline/turnos-api/pkg/metrics"
	"github.com/clinicaonline/turnos-api/pkg/security"
	"github.com/clinicaonline/turnos-api/pkg/validator"
	"github.com/clinicaonline/turnos-api/pkg/worker"
)

func main() {
	// a missing .env is fine outside development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	base := logger.Setup(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	zerolog.DefaultContextLogger = &base

	if err := validator.RegisterGinValidations(); err != nil {
		log.Fatal().Err(err).Msg("failed to register validations")
	}

	if err := run(cfg, base); err != nil {
		log.Fatal().Err(err).Msg("api stopped")
	}
}

func run(cfg *config.Config, base zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduleCfg, err := cfg.Booking.ToScheduleConfig()
	if err != nil {
		return err
	}

	db, err := postgres.NewDB(ctx, cfg.Database.ToPostgresConfig())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	rdb, err := redisbroker.NewClient(ctx, cfg.Redis.ToBrokerConfig())
	if err != nil {
		return err
	}
	defer rdb.Close()

	registry := promHandler.NewRegistry()
	m := metrics.NewMetrics("clinica", registry)

	// Repositories
	baseRepo := postgres.NewBaseRepository(db)
	userRepo := postgres.NewUserRepository(baseRepo)
	loginRepo := postgres.NewLoginLogRepository(baseRepo)
	specialtyRepo := postgres.NewSpecialtyRepository(baseRepo)
	scheduleRepo := postgres.NewScheduleRepository(baseRepo)
	turnoRepo := postgres.NewAppointmentRepository(baseRepo)
	recordRepo := postgres.NewMedicalRecordRepository(baseRepo)
	surveyRepo := postgres.NewSurveyRepository(baseRepo)
	reportRepo := postgres.NewReportRepository(baseRepo)
	tokenRepo := tokenstore.NewTokenRepository(rdb, m)

	// Services
	hasher := security.NewBcryptHasher(cfg.Auth.BcryptCost)
	specialtySvc := specialtyService.NewService(specialtyRepo, cfg.Server.CatalogTTL)
	userSvc := userService.NewService(userRepo, tokenRepo, specialtySvc, hasher, cfg.Auth.VerificationTTL)
	authSvc := authService.NewService(userRepo, loginRepo, tokenRepo, auth.NewJWTService(cfg.JWT.ToAuthConfig()), hasher, cfg.Auth.RequireEmailVerification)
	scheduleSvc := scheduleService.NewService(scheduleRepo, userRepo, turnoRepo, scheduleCfg)
	appointmentSvc := appointmentService.NewService(turnoRepo, userRepo, recordRepo, scheduleSvc, m)
	medicalSvc := medicalService.NewService(recordRepo, userRepo)
	surveySvc := surveyService.NewService(surveyRepo, turnoRepo)
	reportSvc := reportService.NewService(reportRepo, loginRepo)

	if cfg.Outbox.Embedded {
		processor, err := worker.NewOutboxProcessor(
			postgres.NewOutboxRepository(baseRepo),
			redisbroker.NewRedisBroker(rdb, base, m, redisbroker.WithConsumer(cfg.Redis.ToConsumerConfig())),
			cfg.Outbox.ToWorkerConfig(),
			base,
			m,
		)
		if err != nil {
			return err
		}
		go processor.Start(ctx)
	}

	loc := scheduleCfg.Location
	engine := router.New(base, m, authSvc, router.Handlers{
		Health:      health.NewHandler(db, rdb),
		Metrics:     promHandler.New(registry),
		Auth:        authHandler.NewHandler(authSvc, userSvc),
		User:        userHandler.NewHandler(userSvc),
		Specialty:   specialtyHandler.NewHandler(specialtySvc),
		Appointment: appointmentHandler.NewHandler(appointmentSvc, loc),
		Schedule:    scheduleHandler.NewHandler(scheduleSvc, loc),
		Medical:     medicalHandler.NewHandler(medicalSvc),
		Survey:      surveyHandler.NewHandler(surveySvc, loc),
		Report:      reportHandler.NewHandler(reportSvc, loc),
	}, routerConfig(cfg))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("server exited")
	return nil
}

func routerConfig(cfg *config.Config) router.Config {
	cors := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowedOrigins) > 0 {
		cors.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	return router.Config{
		RequestTimeout:   cfg.Server.RequestTimeout,
		MaxBodyBytes:     cfg.Server.MaxBodyBytes,
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit: middleware.RateLimiterConfig{
			Rate:    rate.Limit(cfg.RateLimit.RequestsPerSecond),
			Burst:   cfg.RateLimit.Burst,
			IdleTTL: 10 * time.Minute,
		},
		CORS:          cors,
		HSTS:          cfg.Server.HSTS,
		CatalogMaxAge: int(cfg.Server.CatalogTTL / time.Second),
	}
}
