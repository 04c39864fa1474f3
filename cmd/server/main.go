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
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/AnshRaj112/palchat-backend/internal/config"
	"github.com/AnshRaj112/palchat-backend/internal/database"
	"github.com/AnshRaj112/palchat-backend/internal/handlers"
	"github.com/AnshRaj112/palchat-backend/internal/middleware"
	"github.com/AnshRaj112/palchat-backend/internal/routes"
	"github.com/AnshRaj112/palchat-backend/internal/services"
	"github.com/AnshRaj112/palchat-backend/internal/store"
	"github.com/AnshRaj112/palchat-backend/internal/store/memstore"
	"github.com/AnshRaj112/palchat-backend/internal/store/mongostore"
	"github.com/AnshRaj112/palchat-backend/internal/store/redisbus"
	"github.com/AnshRaj112/palchat-backend/pkg/clientip"
	"github.com/AnshRaj112/palchat-backend/pkg/utils"
)

const shutdownTimeout = 15 * time.Second

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func main() {
	// Load env
	envErr := godotenv.Load()
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Debug("no .env file found")
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis is optional; without it the device keys live in a file and the
	// recent-message cache is off.
	var rdb *redis.Client
	if cfg.RedisURI != "" {
		client, err := database.ConnectRedis(ctx, cfg.RedisURI, logger)
		if err != nil {
			return err
		}
		rdb = client
		defer rdb.Close()
	}

	var principals services.PrincipalProvider = services.NewMemoryPrincipals()
	if cfg.PostgresURI != "" {
		pg, err := database.ConnectPostgres(ctx, cfg.PostgresURI, logger)
		if err != nil {
			return err
		}
		defer pg.Close()
		principals = services.NewPostgresPrincipals(pg)
	} else {
		logger.Warn("POSTGRES_URI not set, principals are kept in memory")
	}

	st, err := openStore(ctx, cfg, rdb, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()

	if err := services.EnsureIndexes(ctx, st); err != nil {
		return err
	}

	var local services.LocalState
	var recent services.RecentCache
	if rdb != nil {
		local = services.NewRedisLocalState(rdb)
		recent = services.NewRedisRecentCache(rdb, logger)
	} else {
		local = services.NewFileLocalState(cfg.DeviceStatePath)
	}

	avatars, err := services.NewAvatars(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.AvatarFolder)
	if err != nil {
		logger.Warn("avatar URLs disabled", "error", err)
		avatars = nil
	}

	directory := services.NewDirectory(st, utils.NewArgon2Hasher(), logger)
	identity := services.NewIdentity(st, local, directory, logger)
	friendships := services.NewFriendships(st, logger)
	requests := services.NewFriendRequests(st, directory, logger)
	channel := services.NewChannel(st, friendships, recent, logger)
	sessions := services.NewSessionManager(identity, logger)
	defer sessions.CloseAll()

	h := &handlers.Handler{
		Principals:     principals,
		Tokens:         services.NewPrincipalTokens(cfg.JWTSecret, cfg.JWTExpiry),
		Sessions:       sessions,
		Directory:      directory,
		FriendRequests: requests,
		Friendships:    friendships,
		Channel:        channel,
		Assist: services.NewAssist(
			services.NewHTTPCompleter(cfg.AIAPIURL, cfg.AIAPIKey, cfg.AIModel, cfg.AITimeout),
			logger,
		),
		Live: &services.Live{
			Directory:      directory,
			FriendRequests: requests,
			Friendships:    friendships,
			Channel:        channel,
			Avatars:        avatars,
		},
		Avatars:        avatars,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
	}

	if cfg.TrustProxy {
		middleware.ClientIP = clientip.Resolver{TrustProxy: true}.IP
	}

	// Setup router
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Production: security headers, host check and a per-IP budget.
	// Redis, when present, adds a window shared by every instance.
	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity(cfg.AllowedHost, middleware.PerMinute(cfg.RateLimitPerMinute)) {
			r.Use(mw)
		}
		logger.Info("production security enabled", "allowed_host", cfg.AllowedHost)
	}
	if rdb != nil {
		limiter := &middleware.RedisLimiter{
			Client:   rdb,
			Limit:    cfg.RateLimitWindowMax,
			Window:   cfg.RateLimitWindow,
			BlockFor: cfg.RateLimitBlockFor,
			Logger:   logger,
		}
		r.Use(limiter.Middleware)
	}

	routes.SetupRoutes(r, h, routes.Limits{
		Login:  middleware.PerMinute(cfg.RateLimitLoginPerMinute),
		Send:   middleware.PerMinute(cfg.RateLimitSendPerMinute),
		Assist: middleware.PerMinute(cfg.RateLimitAssistPerMinute),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	friendships.StartReconcileLoop(gctx, cfg.ReconcileInterval)

	g.Go(func() error {
		logger.Info("palchat backend listening",
			"port", cfg.Port,
			"env", cfg.Environment,
			"store", cfg.StoreDriver,
			"notifier", cfg.Notifier,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		// Live sockets are hijacked and not tracked by Shutdown.
		sessions.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStore builds the document store and its change notifier.
func openStore(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger *slog.Logger) (store.Store, error) {
	if cfg.StoreDriver == config.StoreMemory {
		logger.Warn("using the in-memory store, data is lost on restart")
		return memstore.New(), nil
	}

	_, db, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		return nil, err
	}

	var notifier store.Notifier
	switch cfg.Notifier {
	case config.NotifierRedis:
		bus := redisbus.New(rdb, logger)
		bus.Start(ctx)
		notifier = bus
	case config.NotifierChangeStream:
		notifier = mongostore.NewChangeStreamNotifier(ctx, db, logger)
	}
	return mongostore.New(db, notifier, logger), nil
}
