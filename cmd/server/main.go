package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vedran77/duet/internal/blob"
	"github.com/vedran77/duet/internal/config"
	"github.com/vedran77/duet/internal/database"
	"github.com/vedran77/duet/internal/repository"
	"github.com/vedran77/duet/internal/repository/badgerdb"
	postgresrepo "github.com/vedran77/duet/internal/repository/postgres"
	redisrepo "github.com/vedran77/duet/internal/repository/redis"
	"github.com/vedran77/duet/internal/service"
	"github.com/vedran77/duet/internal/transport/http/handlers"
	"github.com/vedran77/duet/internal/transport/ws"
)

type stores struct {
	users    repository.UserRepository
	messages repository.MessageRepository
	ping     func(ctx context.Context) error
	close    func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	// Stores
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("opening stores failed")
	}
	defer st.close()

	files, err := blob.NewDiskStore(cfg.BlobDir, cfg.FileBaseURL())
	if err != nil {
		logger.Fatal().Err(err).Msg("blob store failed")
	}

	// Services
	authService := service.NewAuthService(st.users, cfg.JWTSecret, cfg.TokenTTL, cfg.AdminEmails)
	attachmentService := service.NewAttachmentService(files, cfg.UploadMaxBytes, cfg.UploadAllowedTypes)
	messageService := service.NewMessageService(st.messages, st.users, authService, attachmentService, cfg.StoreTimeout, logger)

	if cfg.RateLimitEnabled() {
		client, err := redisrepo.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer func(c *goredis.Client) { _ = c.Close() }(client)
		messageService.SetRateLimiter(redisrepo.NewRateLimitRepo(client), cfg.SendRateLimit, cfg.SendRateWindow)
		logger.Info().Int64("limit", cfg.SendRateLimit).Dur("window", cfg.SendRateWindow).Msg("send rate limiting enabled")
	}

	// Real-time
	registry := ws.NewRegistry()
	messageService.SetNotifier(ws.NewDispatcher(registry, logger))
	hub := ws.NewHub(registry, messageService, ws.HubConfig{
		Workers:    cfg.WSWorkers,
		QueueSize:  cfg.WSQueueSize,
		SendBuffer: cfg.WSSendBuffer,
	}, logger)
	hub.Run()

	router := handlers.NewRouter(handlers.RouterDeps{
		Log:            logger,
		Auth:           authService,
		Messages:       messageService,
		Hub:            hub,
		Files:          files.Handler(cfg.BlobMountPath),
		FilesPrefix:    cfg.BlobMountPath,
		Ping:           st.ping,
		MaxUploadBytes: cfg.UploadMaxBytes,
		CORSOrigins:    cfg.CORSOrigins,
	})

	// No WriteTimeout: it would cut long-lived websocket connections.
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.ServerPort).
			Str("env", cfg.Env).
			Str("store", cfg.StoreDriver).
			Msg("starting server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server forced to shutdown")
	}
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("ws hub forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverBadger:
		db, err := badgerdb.Open(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.BadgerPath).Msg("opened badger store")
		return &stores{
			users:    badgerdb.NewUserRepo(db),
			messages: badgerdb.NewMessageRepo(db),
			ping: func(context.Context) error {
				if db.IsClosed() {
					return badger.ErrDBClosed
				}
				return nil
			},
			close: func() { _ = db.Close() },
		}, nil

	default:
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info().Str("host", cfg.DBHost).Str("db", cfg.DBName).Msg("connected to database")
		return &stores{
			users:    postgresrepo.NewUserRepo(pool),
			messages: postgresrepo.NewMessageRepo(pool),
			ping:     pool.Ping,
			close:    pool.Close,
		}, nil
	}
}
