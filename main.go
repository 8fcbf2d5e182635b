package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/allergymenu/allergy-menu-assistant/internal/api"
	"github.com/allergymenu/allergy-menu-assistant/internal/bot"
	"github.com/allergymenu/allergy-menu-assistant/internal/bot/conversation"
	"github.com/allergymenu/allergy-menu-assistant/internal/bot/handlers"
	"github.com/allergymenu/allergy-menu-assistant/internal/bot/line"
	"github.com/allergymenu/allergy-menu-assistant/internal/bot/state"
	"github.com/allergymenu/allergy-menu-assistant/internal/config"
	"github.com/allergymenu/allergy-menu-assistant/internal/database"
	"github.com/allergymenu/allergy-menu-assistant/internal/llm"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
	"github.com/allergymenu/allergy-menu-assistant/internal/ocr"
	"github.com/allergymenu/allergy-menu-assistant/internal/pipeline"
	"github.com/allergymenu/allergy-menu-assistant/internal/repository"
	"github.com/allergymenu/allergy-menu-assistant/internal/secrets"
	"github.com/allergymenu/allergy-menu-assistant/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Warn(".env file not found, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", "error", err)
	}
	if err := logger.InitWithConfig(cfg.Logger.ToLoggerConfig()); err != nil {
		logger.Fatal("Failed to initialize logger", "error", err)
	}
	logger.Info("Starting Allergy Menu Assistant...",
		"telegram", cfg.TelegramEnabled(),
		"line", cfg.LineEnabled(),
		"llm_provider", cfg.LLM.Provider,
		"ocr_engine", cfg.OCR.Engine,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close(db)

	cipher, err := secrets.NewCipher(cfg.EncryptionKey)
	if err != nil {
		logger.Fatal("Failed to initialize API key cipher", "error", err)
	}
	creds := services.NewCredentialService(repository.New(db), cipher)

	llmClient, err := llm.NewFromConfig(cfg.LLM)
	if err != nil {
		logger.Fatal("Failed to create LLM client", "error", err)
	}
	if closer, ok := llmClient.(io.Closer); ok {
		defer closer.Close()
	}
	extractor, err := ocr.NewFromConfig(cfg.OCR, llmClient)
	if err != nil {
		logger.Fatal("Failed to create OCR engine", "error", err)
	}

	analyzer := pipeline.New(
		creds,
		extractor,
		pipeline.NewLLMNormalizer(llmClient, cfg.LLM.Temperature),
		pipeline.NewLLMProfiler(llmClient, cfg.LLM.Temperature, cfg.Pipeline.ProfileBatchSize, cfg.Pipeline.ProfileConcurrency),
		pipeline.NewVerdictComposer(llmClient, cfg.LLM.Temperature),
	)
	logger.Info("Services initialized successfully")

	var (
		states     state.StateManager = state.NewManager()
		redisCheck api.HealthChecker
	)
	if cfg.RedisEnabled() {
		redisStates, err := state.NewRedisManager(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", "error", err)
		}
		defer redisStates.Close()
		states, redisCheck = redisStates, redisStates
		logger.Info("Conversation state stored in Redis", "addr", cfg.Redis.Addr)
	}

	runs := semaphore.NewWeighted(int64(cfg.Pipeline.MaxConcurrentRuns))
	conv := conversation.New(creds, analyzer, states)

	var wg sync.WaitGroup
	if cfg.TelegramEnabled() {
		telegramBot, err := bot.NewBot(cfg.Telegram.Token, handlers.Dependencies{
			Conversation: conv,
			States:       states,
			BotUsername:  cfg.Telegram.BotUsername,
			Runs:         runs,
		})
		if err != nil {
			logger.Fatal("Failed to create Telegram bot", "error", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := telegramBot.Start(ctx); err != nil {
				logger.Error("Telegram bot stopped with error", "error", err)
				stop()
			}
		}()
	}

	var lineHandler *line.Handler
	if cfg.LineEnabled() {
		lineHandler, err = line.NewHandler(cfg.Line, conv, runs)
		if err != nil {
			logger.Fatal("Failed to create LINE handler", "error", err)
		}
	}

	routerDeps := api.Dependencies{
		Logger:         logger.GetLogger(),
		Credentials:    creds,
		Analyzer:       analyzer,
		AnalyzeToken:   cfg.HTTP.AnalyzeAPIToken,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		DB:             dbPinger(db),
		Redis:          redisCheck,
	}
	if lineHandler != nil {
		routerDeps.LineWebhook = lineHandler
	}
	if cfg.HTTP.AnalyzeAPIToken == "" {
		logger.Warn("ANALYZE_API_TOKEN is not set, /analyze is disabled")
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(routerDeps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	logger.Info("Allergy Menu Assistant is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	if lineHandler != nil {
		lineHandler.Wait()
	}
	wg.Wait()
	logger.Info("Shutdown complete")
}

func dbPinger(db *gorm.DB) api.PingFunc {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
