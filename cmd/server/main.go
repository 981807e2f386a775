package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/HammerMeetNail/petpals/internal/config"
	"github.com/HammerMeetNail/petpals/internal/database"
	"github.com/HammerMeetNail/petpals/internal/handlers"
	"github.com/HammerMeetNail/petpals/internal/logging"
	"github.com/HammerMeetNail/petpals/internal/middleware"
	"github.com/HammerMeetNail/petpals/internal/services"
)

func main() {
	if err := run(); err != nil {
		logging.Error("Application error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	logger := logging.New()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := resolveLogLevel(cfg)
	logger.SetLevel(level)
	logging.SetDefaultLevel(level)

	logger.Info("Starting PetPals server...", map[string]interface{}{
		"env":      cfg.Server.Environment,
		"realtime": cfg.Realtime.Backend,
	})

	// Connect to PostgreSQL
	logger.Info("Connecting to PostgreSQL", map[string]interface{}{
		"host": cfg.Database.Host,
		"port": cfg.Database.Port,
	})
	db, err := database.NewPostgresDB(cfg.Database.DSN(), database.DefaultPoolOptions())
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// Run migrations
	logger.Info("Running database migrations...")
	migrator, err := database.NewMigrator(cfg.Database.DSN(), logger)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	_ = migrator.Close()
	logger.Info("Migrations completed")

	var redisDB *database.RedisDB
	var redisClient *redis.Client
	if cfg.Realtime.Backend == config.RealtimeRedis {
		logger.Info("Connecting to Redis", map[string]interface{}{
			"addr": cfg.Redis.Addr(),
		})
		redisDB, err = database.NewRedisDB(database.RedisOptions{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() { _ = redisDB.Close() }()
		redisClient = redisDB.Client
		logger.Info("Connected to Redis")
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Initialize services
	store := services.NewTimeoutDB(services.NewPoolAdapter(db.Pool), cfg.Gateway.Timeout)
	feed := selectFeed(cfg, redisClient, logger)

	profileService := services.NewProfileService(store)
	petService := services.NewPetService(store, feed)
	matchService := services.NewMatchService(store, feed)
	messageService := services.NewMessageService(store, feed)
	discoveryService := services.NewDiscoveryService(store, matchService)

	var verifier services.TokenVerifier
	if cfg.Auth.IssuerURL != "" {
		oidcVerifier, err := services.NewOIDCVerifier(appCtx, services.OIDCVerifierConfig{
			IssuerURL: cfg.Auth.IssuerURL,
			ClientID:  cfg.Auth.ClientID,
		})
		if err != nil {
			return fmt.Errorf("initializing oidc verifier: %w", err)
		}
		verifier = oidcVerifier
	}
	devHeader := cfg.Auth.DevHeader && cfg.Server.IsDevelopment()
	if devHeader {
		logger.Warn("Trusting development user header", map[string]interface{}{
			"header": middleware.DevUserHeader,
		})
	}

	// Health checks take a nil interface, not a typed nil pointer.
	var redisHealth handlers.HealthChecker
	if redisDB != nil {
		redisHealth = redisDB
	}

	routes := routeHandlers{
		health:    handlers.NewHealthHandler(db, redisHealth),
		profile:   handlers.NewProfileHandler(profileService),
		pet:       handlers.NewPetHandler(petService),
		discovery: handlers.NewDiscoveryHandler(discoveryService),
		match:     handlers.NewMatchHandler(matchService, petService),
		message:   handlers.NewMessageHandler(messageService, matchService),
		auth:      middleware.NewAuthMiddleware(verifier, profileService, devHeader),
		messageLimiter: middleware.NewRateLimiter(redisClient, int64(cfg.Chat.MessageRateLimit), time.Minute,
			"ratelimit:messages:", middleware.UserKey, true),
		requestLogger: middleware.NewRequestLogger(logger),
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     newRouter(routes),
		ReadTimeout: 15 * time.Second,
		// Websocket streams hijack the connection, so WriteTimeout only bounds
		// plain responses.
		WriteTimeout: 30 * time.Second,
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
	_ = logger.Sync()
	return nil
}

type routeHandlers struct {
	health         *handlers.HealthHandler
	profile        *handlers.ProfileHandler
	pet            *handlers.PetHandler
	discovery      *handlers.DiscoveryHandler
	match          *handlers.MatchHandler
	message        *handlers.MessageHandler
	auth           *middleware.AuthMiddleware
	messageLimiter *middleware.RateLimiter
	requestLogger  *middleware.RequestLogger
}

func newRouter(h routeHandlers) http.Handler {
	mux := http.NewServeMux()

	// Health endpoints (no auth, no rate limit)
	mux.HandleFunc("GET /health", h.health.Health)
	mux.HandleFunc("GET /ready", h.health.Ready)
	mux.HandleFunc("GET /live", h.health.Live)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Profile endpoints
	mux.HandleFunc("GET /api/profile", h.profile.Get)
	mux.HandleFunc("PUT /api/profile", h.profile.Update)

	// Pet endpoints
	mux.HandleFunc("POST /api/pets", h.pet.Create)
	mux.HandleFunc("GET /api/pets", h.pet.List)
	mux.HandleFunc("GET /api/pets/stream", h.pet.Stream)
	mux.HandleFunc("GET /api/pets/{id}", h.pet.Get)
	mux.HandleFunc("PUT /api/pets/{id}", h.pet.Update)
	mux.HandleFunc("DELETE /api/pets/{id}", h.pet.Delete)

	// Discovery
	mux.HandleFunc("GET /api/discover", h.discovery.Discover)

	// Match endpoints
	mux.HandleFunc("POST /api/matches", h.match.Create)
	mux.HandleFunc("POST /api/matches/decline", h.match.Decline)
	mux.HandleFunc("GET /api/matches", h.match.List)
	mux.HandleFunc("GET /api/matches/find", h.match.Find)
	mux.HandleFunc("GET /api/matches/stream", h.match.Stream)

	// Message endpoints
	mux.HandleFunc("GET /api/matches/{id}/messages", h.message.List)
	mux.Handle("POST /api/matches/{id}/messages", h.messageLimiter.Middleware(http.HandlerFunc(h.message.Send)))
	mux.HandleFunc("GET /api/matches/{id}/messages/stream", h.message.Stream)

	// Build middleware chain (order matters: outermost last)
	var handler http.Handler = mux
	handler = h.auth.Authenticate(handler)
	handler = h.requestLogger.Apply(handler)
	return handler
}

func resolveLogLevel(cfg *config.Config) logging.Level {
	if cfg.Server.Debug {
		return logging.LevelDebug
	}
	return logging.ParseLevel(cfg.Server.LogLevel)
}

// selectFeed picks the change feed for the configured realtime backend.
// Without a Redis client the in-process feed is used, which only reaches
// subscribers on this instance.
func selectFeed(cfg *config.Config, client *redis.Client, logger *logging.Logger) services.ChangeFeed {
	if cfg.Realtime.Backend == config.RealtimeRedis && client != nil {
		return services.NewRedisFeed(services.NewRedisAdapter(client))
	}
	if cfg.Realtime.Backend == config.RealtimeRedis {
		logger.Warn("Redis unavailable; falling back to in-process change feed")
	}
	return services.NewMemoryFeed()
}
