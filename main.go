package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"warelay/cache"
	"warelay/config"
	"warelay/database"
	"warelay/handlers"
	"warelay/metrics"
	"warelay/relay"
	"warelay/routes"
	"warelay/webhook"
	"warelay/websocket"
	"warelay/whatsapp"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before reading the environment")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", "whatsapp-relay").Logger()

	settings, err := config.Load(*envFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger = logger.With().Str("service", settings.ServiceName).Logger()
	if level, err := zerolog.ParseLevel(settings.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		logger.Warn().Str("level", settings.LogLevel).Msg("Unknown log level, using info")
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, settings, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server stopped with error")
	}
	logger.Info().Msg("Server stopped gracefully")
}

func run(ctx context.Context, settings *config.Settings, logger zerolog.Logger) error {
	client, err := database.Connect(ctx, settings.MongoURI, logger)
	if err != nil {
		return fmt.Errorf("connect to mongodb: %w", err)
	}
	defer func() {
		if err := database.Disconnect(client); err != nil {
			logger.Warn().Err(err).Msg("Error disconnecting from MongoDB")
		}
	}()

	coll := client.Database(settings.MongoDatabase).Collection(database.MessagesCollection)
	indexCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = database.EnsureIndexes(indexCtx, coll)
	cancel()
	if err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	store := database.NewMessageStore(coll, settings.WhatsApp.PhoneNumberID)

	var mediaCache cache.MediaCache = cache.Noop{}
	if settings.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     settings.Redis.Addr,
			Password: settings.Redis.Password,
			DB:       settings.Redis.DB,
		})
		defer rdb.Close() // nolint:errcheck
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", settings.Redis.Addr).Msg("Redis unreachable, media cache disabled")
		} else {
			mediaCache = cache.NewRedisCache(rdb, settings.Redis.MediaTTL)
			logger.Info().Str("addr", settings.Redis.Addr).Msg("Media cache enabled")
		}
	}

	if settings.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	m := metrics.New()
	hub := websocket.NewManager(logger, settings.AllowedOrigins)
	graph := whatsapp.NewClient(settings.WhatsApp, nil)

	mode := webhook.FirstOnly
	if settings.WebhookProcessBatch {
		mode = webhook.Batch
	}

	h := handlers.New(
		relay.NewReceiver(store, hub, m, mode, settings.WebhookVerifyToken, logger),
		relay.NewSender(graph, store, hub, m, settings.WhatsApp.TemplateLanguage, logger),
		relay.NewMediaService(graph, mediaCache, logger),
		relay.NewInbox(store, hub, logger),
		handlers.Options{
			AppSecret:      settings.WhatsApp.AppSecret,
			UploadDir:      settings.UploadDir,
			MaxUploadBytes: settings.MaxUploadMB << 20,
		},
	)

	router := routes.SetupRouter(routes.Deps{
		Settings: settings,
		Handler:  h,
		Hub:      hub,
		Metrics:  m,
		Logger:   logger,
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		},
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", settings.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Start(gctx)
	})

	g.Go(func() error {
		logger.Info().Int("port", settings.Port).Str("prefix", settings.RoutePrefix).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
