package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rydeworks/farepass/internal/config"
	"github.com/rydeworks/farepass/internal/database"
	"github.com/rydeworks/farepass/internal/handlers"
	"github.com/rydeworks/farepass/internal/logging"
	"github.com/rydeworks/farepass/internal/middleware"
	"github.com/rydeworks/farepass/internal/services"
)

func main() {
	if err := run(); err != nil {
		logging.Error("Application error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	// Initialize logger
	logger := logging.New()

	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Server.Debug {
		logger.SetLevel(logging.LevelDebug)
		logging.SetDefaultLevel(logging.LevelDebug)
		logger.Debug("Debug logging enabled", map[string]interface{}{
			"env": cfg.Server.Environment,
		})
	}

	logger.Info("Starting farepass server...")

	// Connect to PostgreSQL
	logger.Info("Connecting to PostgreSQL", map[string]interface{}{
		"host": cfg.Database.Host,
		"port": cfg.Database.Port,
	})
	db, err := database.NewPostgresDB(cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// Run migrations
	logger.Info("Running database migrations...")
	migrator, err := database.NewMigrator(cfg.Database.DSN(), "migrations")
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	_ = migrator.Close()
	logger.Info("Migrations completed")

	// Connect to Redis
	logger.Info("Connecting to Redis", map[string]interface{}{
		"addr": cfg.Redis.Addr(),
	})
	redisDB, err := database.NewRedisDB(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() { _ = redisDB.Close() }()
	logger.Info("Connected to Redis")

	// Initialize services
	dbAdapter := services.NewPoolAdapter(db.Pool)
	redisAdapter := services.NewRedisAdapter(redisDB.Client)

	memberService := services.NewMemberService(dbAdapter)
	authService := services.NewAuthService(redisAdapter)
	cardService := services.NewCardService(dbAdapter)
	cardGroupService := services.NewCardGroupService(dbAdapter)
	emailService := services.NewEmailService(&cfg.Email)

	var platformProvider services.PlatformAuthProvider
	if cfg.Platform.LoginEnabled {
		provider, err := services.NewPlatformOIDC(context.Background(), services.PlatformOIDCConfig{
			ChannelID:     cfg.Platform.ChannelID,
			ChannelSecret: cfg.Platform.ChannelSecret,
			RedirectURL:   cfg.Platform.RedirectURL,
			IssuerURL:     cfg.Platform.IssuerURL,
			Scopes:        cfg.Platform.Scopes,
		})
		if err != nil {
			return fmt.Errorf("initializing platform login: %w", err)
		}
		platformProvider = provider
	}

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redisDB)
	authHandler := handlers.NewAuthHandler(platformProvider, memberService, authService, cfg.Server.Secure)
	cardHandler := handlers.NewCardHandler(cardService, cardGroupService, memberService, emailService)
	cardHandler.SetRedemptionObserver(middleware.ObserveRedemption)
	cardGroupHandler := handlers.NewCardGroupHandler(cardGroupService)
	passHandler := handlers.NewPassHandler(cardService)

	// Initialize middleware
	middleware.InitPrometheus()
	authMiddleware := middleware.NewAuthMiddleware(authService, memberService)
	requestLogger := middleware.NewRequestLogger(logger)
	metrics := middleware.NewMetrics()

	useRateLimit := resolveUseRateLimit(cfg, logger, os.LookupEnv)
	useRateLimiter := middleware.NewRateLimiter(redisDB.Client, useRateLimit, time.Minute, "ratelimit:use:", func(r *http.Request) string {
		if member := handlers.GetMemberFromContext(r.Context()); member != nil {
			return member.ID.String()
		}
		return ""
	}, false)

	requireMember := authMiddleware.RequireMember

	// Set up router
	mux := http.NewServeMux()

	// Health endpoints (no auth, no rate limit)
	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.HandleFunc("GET /ready", healthHandler.Ready)
	mux.HandleFunc("GET /live", healthHandler.Live)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Auth endpoints
	mux.Handle("POST /api/auth/login", http.HandlerFunc(authHandler.Login))
	mux.Handle("POST /api/auth/logout", http.HandlerFunc(authHandler.Logout))
	mux.Handle("GET /api/auth/me", requireMember(http.HandlerFunc(authHandler.Me)))

	// Card endpoints
	mux.Handle("GET /card/check-card/{uuid}", http.HandlerFunc(cardHandler.CheckCard))
	mux.Handle("PUT /card/lock/{id}", requireMember(http.HandlerFunc(cardHandler.Lock)))
	mux.Handle("PUT /card/main/{id}", requireMember(http.HandlerFunc(cardHandler.SetMain)))
	mux.Handle("POST /card/use", useRateLimiter.Middleware(http.HandlerFunc(cardHandler.Use)))
	mux.Handle("GET /card/hash/{hash}", http.HandlerFunc(cardHandler.CheckHash))
	mux.Handle("POST /card/verify-qrcode", http.HandlerFunc(cardHandler.VerifyQRCode))
	mux.Handle("POST /card/topup/{id}", requireMember(http.HandlerFunc(cardHandler.TopUp)))
	mux.Handle("POST /card/createByLine", http.HandlerFunc(cardHandler.CreateByLine))
	mux.Handle("GET /card/{id}/qr.png", http.HandlerFunc(passHandler.QRImage))

	// Card group endpoints
	mux.Handle("GET /cardGroup/virtual/{companyId}", http.HandlerFunc(cardGroupHandler.ListVirtual))

	// Build middleware chain (order matters: outermost first)
	var handler http.Handler = mux
	handler = authMiddleware.Authenticate(handler)
	handler = metrics.Apply(handler)
	handler = requestLogger.Apply(handler)

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Could not gracefully shutdown the server", map[string]interface{}{
				"error": err.Error(),
			})
		}
		close(done)
	}()

	logger.Info("Server listening", map[string]interface{}{
		"addr": addr,
	})
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logger.Info("Server stopped")
	return nil
}

// resolveUseRateLimit picks the per-minute redemption limit. Development
// gets a generous allowance for local validator testing.
func resolveUseRateLimit(cfg *config.Config, logger *logging.Logger, lookupEnv func(string) (string, bool)) int64 {
	limit := int64(30)
	if cfg.Server.Environment == "development" {
		limit = 300
		logger.Info("Using development redemption rate limit", map[string]interface{}{"limit": limit})
	}
	if v, ok := lookupEnv("USE_RATE_LIMIT"); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			limit = parsed
			logger.Info("Using redemption rate limit from env", map[string]interface{}{"limit": limit})
		} else {
			logger.Warn("Invalid USE_RATE_LIMIT; using default", map[string]interface{}{
				"value": v,
				"limit": limit,
			})
		}
	}
	return limit
}
