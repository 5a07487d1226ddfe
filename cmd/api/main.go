package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/chatforge/authkit/internal/auth"
	"github.com/chatforge/authkit/internal/background"
	"github.com/chatforge/authkit/internal/config"
	"github.com/chatforge/authkit/internal/database"
	"github.com/chatforge/authkit/internal/repositories"
	"github.com/chatforge/authkit/internal/services"
	pkglogger "github.com/chatforge/authkit/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Apply schema migrations before opening the pool
	if err := database.Migrate(&cfg.Database); err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	mfaConfigRepo := repositories.NewMFAConfigRepository(db)
	emailOTPRepo := repositories.NewEmailOTPRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)
	lockoutRepo := repositories.NewLockoutRepository(db)
	securityEventRepo := repositories.NewSecurityEventRepository(db)

	// Token manager and timing delay
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.MFAChallengeExpiry,
	)

	totpManager, err := auth.NewTOTPManager(cfg.MFA.EncryptionKey, cfg.MFA.Issuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:    cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs:  cfg.Auth.TimingDelayRandomMs,
		DelayOnSuccess: cfg.Auth.TimingDelayOnSuccess,
	})

	// AWS SES email delivery for the email MFA method
	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
	emailService, err := services.NewAWSSESEmailService(initCtx, cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	initCancel()
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	auditLogger := pkglogger.NewAuditLogger(logger)
	eventService := services.NewSecurityEventService(securityEventRepo, auditLogger, logger)

	sessionService := services.NewSessionService(sessionRepo, eventService,
		services.SessionConfig{TTL: cfg.Session.TTL}, logger)

	mfaService := services.NewMFAService(mfaConfigRepo, emailOTPRepo, userRepo, eventService,
		totpManager, emailService,
		services.MFAServiceConfig{
			BackupCodeCount: cfg.MFA.BackupCodeCount,
			TOTPSkew:        cfg.MFA.TOTPSkew,
			EmailCodeExpiry: cfg.MFA.EmailCodeExpiry,
		}, logger)

	lockoutService := services.NewLockoutService(loginAttemptRepo, lockoutRepo, eventService,
		services.LockoutPolicyConfig{
			FailureThreshold: cfg.Lockout.FailureThreshold,
			Window:           cfg.Lockout.Window,
			Duration:         cfg.Lockout.Duration,
			AttemptRetention: cfg.Lockout.AttemptRetention,
			MFAForceScore:    cfg.Lockout.MFAForceScore,
		}, logger)

	// The embedding application mounts its own transport over AuthService;
	// this binary only verifies the full dependency graph constructs and
	// serves the operational endpoints.
	_ = services.NewAuthService(userRepo, sessionService, mfaService,
		lockoutService, eventService, tokenManager, timingDelay, logger)

	// Background sweeper
	sweeper := background.NewSweeper(sessionService, lockoutService, mfaService, logger, cfg.Session.SweepInterval)

	// Operational router: health and readiness only. Business routing lives
	// in the embedding application.
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(httprate.LimitByIP(60, time.Minute))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start sweeper
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	go sweeper.Start(sweepCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	sweepCancel()
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
