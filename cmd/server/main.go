package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/carecrypt/carecrypt-server/internal/audit"
	"github.com/carecrypt/carecrypt-server/internal/codec"
	"github.com/carecrypt/carecrypt-server/internal/config"
	"github.com/carecrypt/carecrypt-server/internal/credentials"
	"github.com/carecrypt/carecrypt-server/internal/database"
	"github.com/carecrypt/carecrypt-server/internal/handler"
	"github.com/carecrypt/carecrypt-server/internal/httputil"
	"github.com/carecrypt/carecrypt-server/internal/jobs"
	"github.com/carecrypt/carecrypt-server/internal/mail"
	"github.com/carecrypt/carecrypt-server/internal/middleware"
	"github.com/carecrypt/carecrypt-server/internal/ratelimit"
	"github.com/carecrypt/carecrypt-server/internal/repository"
	"github.com/carecrypt/carecrypt-server/internal/service"
	"github.com/carecrypt/carecrypt-server/internal/storage"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	recordCodec, err := codec.New(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize codec")
	}

	creds, err := credentials.New(cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize credential store")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	if err := db.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	store, err := newStore(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize file storage")
	}

	mailer, err := newMailer(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize mailer")
	}

	limiter, closeLimiter := newLimiter(cfg)
	defer closeLimiter()

	userRepo := repository.NewUserRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)
	resetRepo := repository.NewPasswordResetRepository(db.DB)
	prescriptionRepo := repository.NewPrescriptionRepository(db.DB)
	imageRepo := repository.NewPrescriptionImageRepository(db.DB)
	auditRepo := repository.NewAuditLogRepository(db.DB)

	auditLog := audit.NewLogger(auditRepo)

	authService := service.NewAuthService(
		db, userRepo, sessionRepo, resetRepo, creds, mailer, auditLog,
		service.AuthConfig{
			SessionSecret: cfg.SessionSecret,
			IdleTimeout:   cfg.IdleTimeout(),
			ResetTokenTTL: cfg.ResetTokenTTL(),
			AppBaseURL:    cfg.AppBaseURL,
		},
	)
	prescriptionService := service.NewPrescriptionService(
		db, prescriptionRepo, imageRepo, store, recordCodec, auditLog,
	)

	proxies, err := httputil.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid trusted proxies")
	}

	isProduction := cfg.IsProduction()
	clientIPMiddleware := middleware.NewClientIPMiddleware(proxies)
	sessionMiddleware := middleware.NewSessionMiddleware(authService, isProduction)
	loginLimit := middleware.NewIPRateLimitMiddleware(
		limiter, auditLog, config.LoginRateLimit, config.RateLimitWindow, "login",
	)
	forgotLimit := middleware.NewIPRateLimitMiddleware(
		limiter, auditLog, config.ForgotPasswordRateLimit, config.RateLimitWindow, "forgot",
	)
	csrfMiddleware := middleware.NewCSRFMiddleware(isProduction)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(cfg.MaxUploadBytes)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	authHandler := handler.NewAuthHandler(authService, isProduction)
	prescriptionHandler := handler.NewPrescriptionHandler(prescriptionService)
	healthHandler := handler.NewHealthHandler(db, config.DBPingTimeout)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(clientIPMiddleware.Handler)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(csrfMiddleware.Handler)

	r.Get("/health", healthHandler.ServeHTTP)

	r.Post("/register", authHandler.Register)
	r.With(loginLimit.Handler).Post("/login", authHandler.Login)
	r.With(forgotLimit.Handler).Post("/forgot-password", authHandler.ForgotPassword)
	r.Get("/reset-password/{token}", authHandler.CheckResetToken)
	r.Post("/reset-password/{token}", authHandler.ResetPassword)

	r.Group(func(r chi.Router) {
		r.Use(sessionMiddleware.Handler)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
		r.Mount("/api", prescriptionHandler.Routes())
	})

	if cfg.StaticDir != "" {
		r.NotFound(handler.NewClientHandler(cfg.StaticDir).ServeHTTP)
	}

	cleanupJob := jobs.NewCleanupJob(
		sessionRepo, resetRepo, imageRepo, store,
		cfg.IdleTimeout(), cfg.OrphanGrace(), config.CleanupJobInterval,
	)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("env", cfg.AppEnv).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.StorageBackend == "s3" {
		log.Info().Str("bucket", cfg.S3Bucket).Msg("using s3 file storage")
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	}
	log.Info().Str("dir", cfg.UploadDir).Msg("using local file storage")
	return storage.NewLocalStore(cfg.UploadDir)
}

func newMailer(ctx context.Context, cfg *config.Config) (mail.Sender, error) {
	from := mail.From{Name: cfg.MailFromName, Email: cfg.MailFrom}
	switch cfg.MailBackend {
	case "smtp":
		return mail.NewSMTPSender(mail.SMTPSettings{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			TLSMode:  cfg.SMTPTLSMode,
		}, from), nil
	case "ses":
		return mail.NewSESSender(ctx, cfg.AWSRegion, from)
	default:
		return mail.LogSender{}, nil
	}
}

// newLimiter falls back to process memory when Redis is not configured
// or unreachable at startup.
func newLimiter(cfg *config.Config) (ratelimit.Limiter, func()) {
	if cfg.RedisURL == "" {
		return ratelimit.NewMemoryLimiter(), func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	defer cancel()

	client, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Error().Err(err).Msg("redis unavailable, using in-memory rate limits")
		return ratelimit.NewMemoryLimiter(), func() {}
	}
	log.Info().Msg("redis connected")
	return ratelimit.NewRedisLimiter(client), func() { client.Close() }
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
