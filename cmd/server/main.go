package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/alchemy-app/backend/config"
	"github.com/alchemy-app/backend/internal/api"
	"github.com/alchemy-app/backend/internal/auth"
	"github.com/alchemy-app/backend/internal/backend"
	"github.com/alchemy-app/backend/internal/db"
	"github.com/alchemy-app/backend/internal/history"
	"github.com/alchemy-app/backend/internal/settings"
	"github.com/alchemy-app/backend/internal/speech"
	"github.com/alchemy-app/backend/internal/store"
	"github.com/alchemy-app/backend/internal/utils"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fallback := utils.MustNewLogger(utils.LoggingConfig{Level: "info", Encoding: "console"})
		fallback.Sugar().Fatalw("configuration invalid", "error", err)
	}

	logger := utils.MustNewLogger(cfg.Logging)
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	historyRepo, closeHistory, err := buildHistory(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalw("history backend unavailable", "backend", cfg.HistoryBackend, "error", err)
	}
	defer closeHistory()

	settingsStore, closeSettings, err := buildSettings(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalw("settings backend unavailable", "backend", cfg.SettingsBackend, "error", err)
	}
	defer closeSettings()

	users, closeUsers, err := buildUsers(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalw("user repository unavailable", "error", err)
	}
	defer closeUsers()

	loaded, err := settingsStore.Load(ctx)
	if err != nil {
		sugar.Warnw("settings failed to load, using defaults", "error", err)
		loaded = settings.Default()
	}
	if loaded.APIKey == "" {
		loaded.APIKey = cfg.OpenAI.APIKey
	}
	if loaded.LocalModel == "" {
		loaded.LocalModel = cfg.LocalModelPath
	}

	backendCfg := backend.Config{
		Endpoint:       cfg.OpenAI.Endpoint,
		APIKey:         loaded.APIKey,
		Model:          loaded.RemoteModel,
		Temperature:    loaded.Temperature,
		MaxTokens:      loaded.MaxTokens,
		LocalModelPath: loaded.LocalModel,
		Logger:         sugar,
	}

	kind, err := backend.ParseKind(loaded.BackendKind)
	if err != nil {
		sugar.Warnw("stored backend kind invalid, using mock", "kind", loaded.BackendKind, "error", err)
		kind = backend.KindMock
	}
	strategy, err := backend.New(kind, backendCfg)
	if err != nil {
		sugar.Warnw("configured backend unavailable, using mock", "kind", kind, "error", err)
		strategy, _ = backend.New(backend.KindMock, backendCfg)
		loaded.BackendKind = string(backend.KindMock)
	}

	synthesizer := speech.NewSynthesizer(speech.SynthesizerConfig{
		Endpoint: cfg.Speech.TTSEndpoint,
		APIKey:   cfg.Speech.APIKey,
		Voice:    loaded.VoiceID,
		Rate:     loaded.SpeechRate,
		Logger:   sugar,
	})

	recognizer := speech.NewRecognizer(speech.RecognizerConfig{
		Endpoint:       cfg.Speech.RecognizerEndpoint,
		APIKey:         cfg.Speech.APIKey,
		SampleRate:     cfg.Speech.SampleRate,
		SilenceTimeout: cfg.Speech.SilenceTimeout,
		Logger:         sugar,
	})

	conversationStore := store.New(ctx, store.Options{
		Settings:      loaded,
		Backend:       strategy,
		BackendConfig: backendCfg,
		History:       historyRepo,
		SettingsStore: settingsStore,
		Speaker:       synthesizer,
		Logger:        sugar,
	})

	authService, err := auth.NewService(cfg.JWTSecret, cfg.TokenTTL, users)
	if err != nil {
		sugar.Fatalw("auth service init failed", "error", err)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handler := api.NewHandler(api.HandlerOptions{
		Auth:        authService,
		Store:       conversationStore,
		Synthesizer: synthesizer,
		Recognizer:  recognizer,
		Logger:      sugar,
	})
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infow("server listening", "addr", server.Addr, "backend", string(kind))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")

	synthesizer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("shutdown incomplete", "error", err)
	}
}

func buildHistory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (history.Repository, func(), error) {
	switch cfg.HistoryBackend {
	case "mongo":
		repo, err := history.NewMongoRepository(ctx, history.MongoConfig{
			URI:            cfg.Mongo.URI,
			Database:       cfg.Mongo.Database,
			ConnectTimeout: cfg.Mongo.ConnectTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Warnw("mongo index creation failed", "error", err)
		}
		return repo, func() {
			if err := repo.Close(context.Background()); err != nil {
				logger.Warnw("mongo disconnect failed", "error", err)
			}
		}, nil
	default:
		path := cfg.DataDir + "/history.json"
		return history.NewFileRepository(path, logger), func() {}, nil
	}
}

func buildSettings(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (settings.Store, func(), error) {
	switch cfg.SettingsBackend {
	case "redis":
		client, err := settings.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return settings.NewRedisStore(client, "", logger), func() {
			if err := client.Close(); err != nil {
				logger.Warnw("redis close failed", "error", err)
			}
		}, nil
	default:
		path := cfg.DataDir + "/settings.json"
		return settings.NewFileStore(path, logger), func() {}, nil
	}
}

func buildUsers(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (auth.UserRepository, func(), error) {
	if cfg.PostgresDSN == "" {
		logger.Info("no postgres dsn configured, user accounts are in-memory")
		return auth.NewMemoryRepository(), func() {}, nil
	}

	pg, err := db.NewPostgres(ctx, db.PostgresConfig{
		DSN:               cfg.PostgresDSN,
		MaxConns:          cfg.Postgres.MaxConns,
		MinConns:          cfg.Postgres.MinConns,
		MaxConnLifetime:   cfg.Postgres.MaxConnLifetime,
		MaxConnIdleTime:   cfg.Postgres.MaxConnIdleTime,
		HealthCheckPeriod: cfg.Postgres.HealthCheckPeriod,
		ConnectTimeout:    cfg.Postgres.ConnectTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Ping(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}

	return pg, pg.Close, nil
}
