package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/wardwatch/wardwatch/internal/config"
	"github.com/wardwatch/wardwatch/internal/domain/account"
	"github.com/wardwatch/wardwatch/internal/domain/alerting"
	"github.com/wardwatch/wardwatch/internal/domain/contact"
	"github.com/wardwatch/wardwatch/internal/domain/patient"
	"github.com/wardwatch/wardwatch/internal/domain/vitals"
	"github.com/wardwatch/wardwatch/internal/platform/auth"
	"github.com/wardwatch/wardwatch/internal/platform/blobstore"
	"github.com/wardwatch/wardwatch/internal/platform/db"
	"github.com/wardwatch/wardwatch/internal/platform/jobs"
	"github.com/wardwatch/wardwatch/internal/platform/middleware"
	"github.com/wardwatch/wardwatch/internal/platform/notification"
	"github.com/wardwatch/wardwatch/internal/platform/otp"
	"github.com/wardwatch/wardwatch/internal/platform/validate"
	"github.com/wardwatch/wardwatch/internal/platform/websocket"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wardwatch-server",
		Short: "WardWatch patient monitoring API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the WardWatch API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
		dir, _ := cmd.Flags().GetString("dir")
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx := context.Background()
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, dbOptions(cfg))
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, db.NewMigrator(pool, dir))
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(os.Stdout, statuses)
				return nil
			})
		},
	}

	// migrate down
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Revert the most recently applied migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				mig, err := m.Down(ctx)
				if err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				if mig == nil {
					fmt.Println("Nothing to roll back.")
					return nil
				}
				fmt.Printf("Rolled back %d_%s.\n", mig.Version, mig.Name)
				return nil
			})
		},
	}

	for _, c := range []*cobra.Command{upCmd, statusCmd, downCmd} {
		c.Flags().String("dir", "./migrations", "Path to migrations directory")
		cmd.AddCommand(c)
	}
	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if err := checkAdminInput(name, email, password); err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, dbOptions(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := newLogger(cfg.Env)
			svc := account.NewService(account.NewUserRepoPG(pool), nil, nil, nil, nil, logger)
			u, err := svc.CreateAdmin(ctx, name, email, password)
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			fmt.Printf("Created admin %s (%s).\n", u.Email, u.ID)
			if !isAllowListed(cfg.AdminEmails, u.Email) {
				fmt.Println("WARNING: this email is not in ADMIN_EMAILS; the account will not get admin access until it is added.")
			}
			return nil
		},
	}
	createAdmin.Flags().String("name", "", "Display name")
	createAdmin.Flags().String("email", "", "Login email")
	createAdmin.Flags().String("password", "", "Initial password (min 6 characters)")
	cmd.AddCommand(createAdmin)

	return cmd
}

func checkAdminInput(name, email, password string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("--name is required")
	case !strings.Contains(email, "@"):
		return fmt.Errorf("--email must be an email address")
	case len(password) < 6:
		return fmt.Errorf("--password must be at least 6 characters")
	}
	return nil
}

func isAllowListed(allow []string, email string) bool {
	return lo.Contains(allow, strings.ToLower(strings.TrimSpace(email)))
}

func runServer() error {
	// Logger
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	signingKey, generated, err := resolveSigningKey(cfg.JWTSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve JWT signing key")
	}
	if generated {
		logger.Warn().Msg("JWT_SECRET is not set; using a random key, sessions will not survive a restart")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, dbOptions(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	checks := map[string]db.Check{}

	// OTP store
	var (
		otpStore  otp.Store
		otpMemory *otp.MemoryStore
	)
	switch cfg.OTPStore {
	case "redis":
		client, err := otp.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		otpStore = otp.NewRedisStore(client)
		checks["redis"] = redisCheck(client)
	default:
		otpMemory = otp.NewMemoryStore()
		otpStore = otpMemory
	}

	// Blob storage
	var (
		blobs     blobstore.Store
		blobLocal *blobstore.MemoryStore
	)
	switch cfg.BlobBackend {
	case "minio":
		blobs, err = blobstore.NewMinioStore(ctx, blobstore.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Bucket:    cfg.BlobBucket,
		})
	case "s3":
		blobs, err = blobstore.NewS3Store(ctx, cfg.AWSRegion, cfg.BlobBucket)
	default:
		blobLocal = blobstore.NewMemoryStore(cfg.PublicURL)
		blobs = blobLocal
	}
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.BlobBackend).Msg("failed to initialise blob storage")
	}

	// Outbound notifications
	var (
		emailSender notification.EmailSender
		smsSender   notification.SMSSender
	)
	if cfg.SMTPConfigured() {
		emailSender = notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		logger.Warn().Msg("SMTP is not configured; email delivery will fail")
	}
	if cfg.TwilioConfigured() {
		smsSender = notification.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
	} else {
		logger.Warn().Msg("Twilio is not configured; SMS delivery will fail")
	}
	dispatcher := notification.NewDispatcher(emailSender, smsSender, notification.NewTemplateEngine(), cfg.SMSDefaultCountryCode, logger)

	// Identity
	tokens := auth.NewTokenIssuer(signingKey, cfg.JWTIssuer, cfg.JWTTTL)
	revocations := auth.NewTokenRevocationStore()
	authn := auth.Authenticators{tokens}
	if cfg.FirebaseCredentialsFile != "" {
		fb, err := auth.NewFirebaseVerifier(ctx, cfg.FirebaseCredentialsFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialise firebase")
		}
		authn = append(authn, fb)
		logger.Info().Msg("firebase ID tokens accepted")
	}

	userRepo := account.NewUserRepoPG(pool)
	sessions := auth.NewSessions(account.NewProfiles(userRepo), revocations, cfg.AdminEmails, cfg.JWTTTL, logger)

	// Domain services
	patientRepo := patient.NewPatientRepoPG(pool)
	refs := patient.NewRefs(patientRepo)
	hub := websocket.NewHub(refs, logger)
	stopFollowing := hub.FollowSessions(sessions)
	defer stopFollowing()

	readingSvc := vitals.NewService(vitals.NewReadingRepoPG(pool), refs, logger)
	patientSvc := patient.NewService(patientRepo, readingSvc, db.NewTxRunner(pool), hub, logger)

	board := alerting.NewStatusBoard(hub, logger)
	readingSvc.OnChange(vitals.PublishChanges(hub, logger))
	readingSvc.OnChange(board.Observe)
	alertSvc := alerting.NewService(patientSvc, readingSvc, dispatcher, alerting.NewLogRepoPG(pool), board, logger)

	otpSvc := otp.NewService(otpStore, dispatcher, cfg.OTPTTL, logger)
	accountSvc := account.NewService(userRepo, otpSvc, tokens, sessions, revocations, logger).
		WithPasswordReset(dispatcher, strings.TrimRight(cfg.AppURL, "/")+"/reset-password").
		WithProfileImages(account.NewImageRepoPG(pool), blobs, cfg.BlobURLTTL)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	// Global middleware
	limiter := middleware.NewRateLimiter(rateLimitConfig(cfg))
	strict := middleware.NewRateLimiter(middleware.StrictRateLimitConfig())

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(middleware.Sanitize(logger))
	e.Use(middleware.BodyLimit("1M", "6M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderXRequestID},
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	e.Use(limiter.Middleware())
	e.Use(middleware.Audit(logger))

	// Health
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, checks))

	if blobLocal != nil {
		blobLocal.RegisterRoutes(e.Group(""))
	}

	// Unauthenticated helpers
	public := e.Group("/api")
	otp.NewHandler(otpSvc, cfg.OTPExposeCode).RegisterRoutes(public, strict.Middleware())
	contact.NewHandler(dispatcher, cfg.SupportEmail, logger).RegisterRoutes(public, strict.Middleware())

	alertHandler := alerting.NewHandler(alertSvc, dispatcher)
	alertHandler.RegisterRelay(public, strict.Middleware())

	// Versioned API
	v1 := e.Group("/api/v1")
	jwt := auth.JWTMiddleware(authn, revocations)
	tokenOnly := v1.Group("", jwt)
	api := v1.Group("", jwt, sessions.RequireSession())
	admin := v1.Group("/admin", jwt, sessions.RequireSession(), sessions.RequireAdmin())

	accountHandler := account.NewHandler(accountSvc)
	accountHandler.RegisterPublicRoutes(v1, strict.Middleware())
	accountHandler.RegisterRoutes(tokenOnly, api, admin)
	sessions.RegisterRevocationRoutes(admin)

	patient.NewHandler(patientSvc).RegisterRoutes(api, admin)
	vitals.NewHandler(readingSvc).RegisterRoutes(api)
	alertHandler.RegisterRoutes(api)

	websocket.NewHandler(hub, authn, revocations, sessions, cfg.CORSOrigins).RegisterRoutes(e)

	// Background sweeps
	scheduler := jobs.NewScheduler(logger)
	sweeps := map[string]jobs.Sweeper{
		"token_revocations": revocations,
		"rate_limiter":      limiter,
		"strict_limiter":    strict,
	}
	if otpMemory != nil {
		sweeps["otp_codes"] = otpMemory
	}
	for name, sw := range sweeps {
		if err := scheduler.AddSweep(name, time.Minute, sw); err != nil {
			logger.Fatal().Err(err).Str("job", name).Msg("failed to schedule sweep")
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func dbOptions(cfg *config.Config) db.PoolOptions {
	return db.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

func redisCheck(client *redis.Client) db.Check {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// resolveSigningKey returns the HMAC key for session tokens. An empty secret
// yields a random 32-byte key and generated=true; Config.Validate only allows
// that in development.
func resolveSigningKey(secret string) ([]byte, bool, error) {
	if secret != "" {
		return []byte(secret), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random signing key: %w", err)
	}
	return key, true, nil
}
