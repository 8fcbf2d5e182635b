package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/allergymenu/allergy-menu-assistant/internal/config"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
)

func main() {
	fmt.Println("🔍 Checking configuration...")

	if err := godotenv.Load(); err != nil {
		fmt.Printf("⚠️  .env file not found: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Configuration is invalid:\n%v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ Configuration is valid!")
	fmt.Printf("📋 Configuration details:\n")
	fmt.Printf("  - Telegram Token: %s\n", logger.Mask(cfg.Telegram.Token))
	fmt.Printf("  - LINE Channel Secret: %s\n", logger.Mask(cfg.Line.ChannelSecret))
	fmt.Printf("  - LINE Access Token: %s\n", logger.Mask(cfg.Line.ChannelAccessToken))
	fmt.Printf("  - API Key Encryption Key: %s\n", logger.Mask(cfg.EncryptionKey))
	fmt.Printf("  - LLM Provider: %s\n", cfg.LLM.Provider)
	fmt.Printf("  - Gemini Model: %s (shared key %s)\n", cfg.LLM.GeminiModel, logger.Mask(cfg.LLM.GeminiAPIKey))
	fmt.Printf("  - OpenAI Model: %s (shared key %s)\n", cfg.LLM.OpenAIModel, logger.Mask(cfg.LLM.OpenAIAPIKey))
	fmt.Printf("  - OCR Engine: %s (%s)\n", cfg.OCR.Engine, cfg.OCR.Languages)
	fmt.Printf("  - Profile Batch Size: %d, Concurrency: %d\n", cfg.Pipeline.ProfileBatchSize, cfg.Pipeline.ProfileConcurrency)
	fmt.Printf("  - Max Concurrent Runs: %d\n", cfg.Pipeline.MaxConcurrentRuns)
	fmt.Printf("  - HTTP Addr: %s\n", cfg.HTTP.Addr)
	fmt.Printf("  - Redis: %s\n", redisSummary(cfg))
	fmt.Printf("  - DB Host: %s\n", cfg.DB.Host)
	fmt.Printf("  - DB Port: %s\n", cfg.DB.Port)
	fmt.Printf("  - DB User: %s\n", cfg.DB.User)
	fmt.Printf("  - DB Name: %s\n", cfg.DB.DBName)
	fmt.Printf("  - Log Level: %v\n", cfg.Logger.Level)
	fmt.Printf("  - Log Output: %s\n", cfg.Logger.OutputPath)
	fmt.Printf("  - Log Format: %s\n", cfg.Logger.Format)
}

func redisSummary(cfg *config.Config) string {
	if !cfg.RedisEnabled() {
		return "disabled (in-memory conversation state)"
	}
	return fmt.Sprintf("%s db=%d ttl=%s", cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.StateTTL)
}
