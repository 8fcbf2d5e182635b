package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
)

type Config struct {
	Telegram      TelegramConfig
	Line          LineConfig
	HTTP          HTTPConfig
	EncryptionKey string `env:"USER_GEMINI_API_ENCRYPTION_KEY,required,notEmpty"`
	LLM           LLMConfig
	OCR           OCRConfig
	Pipeline      PipelineConfig
	Redis         RedisConfig
	DB            DBConfig
	Logger        LoggerConfig
}

type TelegramConfig struct {
	Token       string `env:"TELEGRAM_BOT_TOKEN"`
	BotUsername string `env:"TELEGRAM_BOT_USERNAME"`
}

type LineConfig struct {
	ChannelSecret      string `env:"LINE_CHANNEL_SECRET"`
	ChannelAccessToken string `env:"LINE_CHANNEL_ACCESS_TOKEN"`
}

type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8000"`
	AnalyzeAPIToken string        `env:"ANALYZE_API_TOKEN"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

type LLMConfig struct {
	Provider     string        `env:"LLM_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey string        `env:"GEMINI_API_KEY"`
	GeminiModel  string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	OpenAIAPIKey string        `env:"OPENAI_API_KEY"`
	OpenAIModel  string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	Temperature  float32       `env:"LLM_TEMPERATURE" envDefault:"0.3"`
	Timeout      time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
}

type OCRConfig struct {
	Engine        string        `env:"OCR_ENGINE" envDefault:"tesseract"`
	TesseractPath string        `env:"TESSERACT_PATH" envDefault:"tesseract"`
	Languages     string        `env:"OCR_LANGUAGES" envDefault:"chi_tra+eng"`
	Timeout       time.Duration `env:"OCR_TIMEOUT" envDefault:"45s"`
}

type PipelineConfig struct {
	ProfileBatchSize   int `env:"PROFILE_BATCH_SIZE" envDefault:"8"`
	ProfileConcurrency int `env:"PROFILE_CONCURRENCY" envDefault:"4"`
	MaxConcurrentRuns  int `env:"MAX_CONCURRENT_RUNS" envDefault:"4"`
}

// RedisConfig is optional; conversation state stays in memory when Addr is empty.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	StateTTL time.Duration `env:"STATE_TTL" envDefault:"24h"`
}

type DBConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName   string `env:"DB_NAME" envDefault:"allergy_menu_assistant"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

// DSN renders the key/value connection string used by the postgres driver.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type LoggerConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	OutputPath string `env:"LOG_OUTPUT" envDefault:"stdout"`
	Format     string `env:"LOG_FORMAT" envDefault:"json"`
}

func (c LoggerConfig) ToLoggerConfig() logger.Config {
	return logger.Config{
		Level:      logger.ParseLevel(c.Level),
		OutputPath: c.OutputPath,
		Format:     c.Format,
	}
}

func (c *Config) TelegramEnabled() bool {
	return c.Telegram.Token != ""
}

func (c *Config) LineEnabled() bool {
	return c.Line.ChannelSecret != "" && c.Line.ChannelAccessToken != ""
}

func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

// Validate checks cross-field rules env tags cannot express.
func (c *Config) Validate() error {
	var problems []string

	if !c.TelegramEnabled() && !c.LineEnabled() {
		problems = append(problems, "no bot platform configured: set TELEGRAM_BOT_TOKEN or LINE_CHANNEL_SECRET and LINE_CHANNEL_ACCESS_TOKEN")
	}
	if (c.Line.ChannelSecret == "") != (c.Line.ChannelAccessToken == "") {
		problems = append(problems, "LINE_CHANNEL_SECRET and LINE_CHANNEL_ACCESS_TOKEN must be set together")
	}
	switch c.LLM.Provider {
	case "gemini":
	case "openai":
		// Users store Gemini keys, so OpenAI always runs on the operator's key.
		if c.LLM.OpenAIAPIKey == "" {
			problems = append(problems, "OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown LLM_PROVIDER %q (want gemini or openai)", c.LLM.Provider))
	}
	switch c.OCR.Engine {
	case "tesseract", "gemini":
	default:
		problems = append(problems, fmt.Sprintf("unknown OCR_ENGINE %q (want tesseract or gemini)", c.OCR.Engine))
	}
	if c.Pipeline.ProfileBatchSize <= 0 {
		problems = append(problems, "PROFILE_BATCH_SIZE must be positive")
	}
	if c.Pipeline.ProfileConcurrency <= 0 {
		problems = append(problems, "PROFILE_CONCURRENCY must be positive")
	}
	if c.Pipeline.MaxConcurrentRuns <= 0 {
		problems = append(problems, "MAX_CONCURRENT_RUNS must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// Load parses environment variables into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
