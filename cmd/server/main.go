package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"kinship/internal/config"
	"kinship/internal/database"
	"kinship/internal/dedupe"
	"kinship/internal/handlers"
	"kinship/internal/logging"
	"kinship/internal/metrics"
	"kinship/internal/repository"
	"kinship/internal/security"
	"kinship/internal/service"
)

const (
	sessionCleanupInterval = time.Hour
	authAttemptsPerWindow  = 10
	authAttemptWindow      = time.Minute
	shutdownTimeout        = 15 * time.Second
)

// app is everything the server needs once initialization has finished
type app struct {
	db      *database.DB
	auth    *service.AuthService
	limiter *security.RateLimiter
	handler http.Handler
}

func main() {
	cfg := config.Load()

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, "kinship")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Listen right away; the startup page answers until MarkReady
	startup := handlers.NewStartupStatus()
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handlers.Logging(logger, m, startup),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := initialize(ctx, cfg, startup, reg, m, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.db.Close()

	go a.auth.RunCleanup(ctx, sessionCleanupInterval)
	go a.limiter.Run(ctx)

	startup.MarkReady(a.handler)
	logger.Info("server ready", zap.String("url", fmt.Sprintf("http://localhost:%s", cfg.ServerPort)))

	<-ctx.Done()
	logger.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// initialize opens the database, loads templates and wires every service
// and handler, reporting each step to startup
func initialize(ctx context.Context, cfg *config.Config, startup *handlers.StartupStatus, reg *prometheus.Registry, m *metrics.Metrics, logger *zap.Logger) (*app, error) {
	startup.SetCurrentStep(handlers.StepDatabase)
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	startup.CompleteStep(handlers.StepDatabase)
	logger.Info("database connection established", zap.String("type", cfg.DatabaseType))

	startup.SetCurrentStep(handlers.StepMigrations)
	applied, err := db.RunMigrations(cfg.MigrationsPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	startup.CompleteStep(handlers.StepMigrations)
	logger.Info("migrations completed", zap.Strings("applied", applied))

	startup.SetCurrentStep(handlers.StepTemplates)
	templates, err := handlers.LoadTemplates(cfg.TemplatesPath)
	if err != nil {
		db.Close()
		return nil, err
	}
	startup.CompleteStep(handlers.StepTemplates)
	logger.Info("templates loaded", zap.String("path", cfg.TemplatesPath))

	startup.SetCurrentStep(handlers.StepServices)

	userRepo := repository.NewUserRepository(db)
	personRepo := repository.NewPersonRepository(db)
	relationshipRepo := repository.NewRelationshipRepository(db)
	temperatureRepo := repository.NewTemperatureRepository(db)

	detector := dedupe.NewDetector(personRepo, relationshipRepo, temperatureRepo,
		dedupe.WithThreshold(cfg.DuplicateNameThreshold),
		dedupe.WithSymmetricRelationships(cfg.SymmetricRelationships))

	emailService, err := service.NewEmailService(ctx, cfg.SESRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.AppBaseURL, logger)
	if err != nil {
		// Password reset mails are logged instead of sent
		logger.Warn("email service unavailable", zap.Error(err))
		emailService = nil
	}

	authService := service.NewAuthService(db, userRepo, emailService, cfg.SessionDuration, logger)
	personService := service.NewPersonService(personRepo, relationshipRepo, temperatureRepo, detector, cfg.AgeBrackets, m, logger)
	relationshipService := service.NewRelationshipService(relationshipRepo, personRepo, detector, m, logger)
	temperatureService := service.NewTemperatureService(temperatureRepo, personRepo, detector,
		cfg.MinBodyTemperature, cfg.MaxBodyTemperature, m, logger)
	backupService := service.NewBackupService(db, logger)
	authService.OnUserCreated(personService.CreateProfile)

	limiter := security.NewRateLimiter(authAttemptsPerWindow, authAttemptWindow)
	mw := handlers.NewMiddleware(authService, security.NewCSRFGenerator(cfg.CSRFSecret), limiter, logger)

	providers := map[string]handlers.OAuthProvider{}
	if google := handlers.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret); google.Enabled() {
		providers[google.Name] = google
		logger.Info("oauth provider enabled", zap.String("provider", google.Name))
	}

	h := handlerSet{
		auth: handlers.NewAuthHandler(authService, mw, templates, providers,
			security.NewOAuthStateSigner(cfg.OAuthStateSecret, handlers.OAuthStateTTL),
			cfg.OAuthRedirectBaseURL, logger),
		people:        handlers.NewPeopleHandler(personService, mw, templates, cfg.PageSize, logger),
		relationships: handlers.NewRelationshipHandler(relationshipService, personService, mw, templates, cfg.PageSize, logger),
		temperatures:  handlers.NewTemperatureHandler(temperatureService, personService, mw, templates, cfg.PageSize, logger),
		admin:         handlers.NewAdminHandler(templates, authService, relationshipService, backupService, mw, cfg.PageSize, logger),
	}
	startup.CompleteStep(handlers.StepServices)

	return &app{
		db:      db,
		auth:    authService,
		limiter: limiter,
		handler: routes(cfg, mw, h, reg, db),
	}, nil
}
