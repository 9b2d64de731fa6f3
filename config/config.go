package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	TelegramConfig  TelegramConfig  `json:"telegram"`
	LLMConfig       LLMConfig       `json:"llm"`
	ExchangeConfig  ExchangeConfig  `json:"exchange"`
	CacheConfig     CacheConfig     `json:"cache"`
	SchedulerConfig SchedulerConfig `json:"scheduler"`
	ScreenerConfig  ScreenerConfig  `json:"screener"`
	DatabaseConfig  DatabaseConfig  `json:"database"`
	RedisConfig     RedisConfig     `json:"redis"`
	ServerConfig    ServerConfig    `json:"server"`
	AuthConfig      AuthConfig      `json:"auth"`
	VaultConfig     VaultConfig     `json:"vault"`
	LoggingConfig   LoggingConfig   `json:"logging"`
}

type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	BaseURL  string `json:"base_url"` // Overridable for tests
}

type LLMConfig struct {
	Provider    string        `json:"provider"` // "deepseek" or "openai"
	APIKey      string        `json:"api_key"`
	BaseURL     string        `json:"base_url"`
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
	MinInterval time.Duration `json:"min_interval"` // Process-wide spacing between LLM calls
}

type ExchangeConfig struct {
	BinanceAPIKey    string        `json:"binance_api_key"`
	BinanceSecretKey string        `json:"binance_secret_key"`
	BybitAPIKey      string        `json:"bybit_api_key"`
	BybitSecretKey   string        `json:"bybit_secret_key"`
	BinanceSpotURL   string        `json:"binance_spot_url"`
	BinanceFutURL    string        `json:"binance_fut_url"`
	BybitURL         string        `json:"bybit_url"`
	RequestTimeout   time.Duration `json:"request_timeout"`
	BinanceMinGap    time.Duration `json:"binance_min_gap"`
	BybitMinGap      time.Duration `json:"bybit_min_gap"`
}

type CacheConfig struct {
	Root    string `json:"root"`
	Enabled bool   `json:"enabled"`
}

type SchedulerConfig struct {
	SignalCheckInterval time.Duration `json:"signal_check_interval"`
	TickInterval        time.Duration `json:"tick_interval"`
	WorkerCount         int           `json:"worker_count"`
	QueueCapacity       int           `json:"queue_capacity"`
	ActiveHoursStart    int           `json:"active_hours_start"` // UTC hour, inclusive
	ActiveHoursEnd      int           `json:"active_hours_end"`   // UTC hour, exclusive
}

type ScreenerConfig struct {
	Universe       []string `json:"universe"`
	StageAGate     float64  `json:"stage_a_gate"`
	BatchSize      int      `json:"batch_size"`
	MaxResults     int      `json:"max_results"`
	ScheduledTopK  int      `json:"scheduled_top_k"`
	OnDemandTopK   int      `json:"on_demand_top_k"`
	QuickScoreLLM  bool     `json:"quick_score_llm"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Host    string `json:"host"`
}

type AuthConfig struct {
	JWTSecret         string        `json:"jwt_secret"`
	AdminPasswordHash string        `json:"admin_password_hash"` // bcrypt
	TokenDuration     time.Duration `json:"token_duration"`
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// DefaultUniverse is the static top-N USDT screening universe used when no
// override is configured.
var DefaultUniverse = []string{
	"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT",
	"ADAUSDT", "DOGEUSDT", "AVAXUSDT", "DOTUSDT", "LINKUSDT",
	"MATICUSDT", "LTCUSDT", "ATOMUSDT", "UNIUSDT", "NEARUSDT",
	"APTUSDT", "ARBUSDT", "OPUSDT", "FILUSDT", "INJUSDT",
	"SUIUSDT", "TIAUSDT", "SEIUSDT", "RNDRUSDT", "AAVEUSDT",
	"TONUSDT", "TRXUSDT", "ICPUSDT", "FTMUSDT", "HBARUSDT",
}

// Load reads configuration from an optional JSON file and environment
// variables. Environment variables always win. The caller validates after
// any secret overlays have been applied.
func Load() (*Config, error) {
	// .env is optional; real deployments use actual environment variables
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		fileCfg, err := loadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		TelegramConfig: TelegramConfig{
			BaseURL: "https://api.telegram.org",
		},
		LLMConfig: LLMConfig{
			Provider:    "deepseek",
			BaseURL:     "https://api.deepseek.com/v1",
			Model:       "deepseek-chat",
			MaxTokens:   2048,
			Temperature: 0.3,
			Timeout:     45 * time.Second,
			MinInterval: time.Second,
		},
		ExchangeConfig: ExchangeConfig{
			BinanceSpotURL: "https://api.binance.com",
			BinanceFutURL:  "https://fapi.binance.com",
			BybitURL:       "https://api.bybit.com",
			RequestTimeout: 15 * time.Second,
			BinanceMinGap:  100 * time.Millisecond,
			BybitMinGap:    200 * time.Millisecond,
		},
		CacheConfig: CacheConfig{
			Root:    "data/candles",
			Enabled: true,
		},
		SchedulerConfig: SchedulerConfig{
			SignalCheckInterval: 30 * time.Minute,
			TickInterval:        time.Minute,
			WorkerCount:         8,
			QueueCapacity:       256,
			ActiveHoursStart:    8,
			ActiveHoursEnd:      16,
		},
		ScreenerConfig: ScreenerConfig{
			Universe:      DefaultUniverse,
			StageAGate:    60,
			BatchSize:     10,
			MaxResults:    20,
			ScheduledTopK: 5,
			OnDemandTopK:  10,
			QuickScoreLLM: true,
		},
		DatabaseConfig: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			SSLMode: "disable",
		},
		RedisConfig: RedisConfig{
			Address: "localhost:6379",
		},
		ServerConfig: ServerConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
		},
		AuthConfig: AuthConfig{
			TokenDuration: 24 * time.Hour,
		},
		VaultConfig: VaultConfig{
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "trading-advisor/api-keys",
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	// Telegram
	cfg.TelegramConfig.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.TelegramConfig.BotToken)
	cfg.TelegramConfig.BaseURL = getEnvOrDefault("TELEGRAM_API_URL", cfg.TelegramConfig.BaseURL)

	// LLM
	cfg.LLMConfig.Provider = getEnvOrDefault("LLM_PROVIDER", cfg.LLMConfig.Provider)
	cfg.LLMConfig.APIKey = getEnvOrDefault("DEEPSEEK_API_KEY", cfg.LLMConfig.APIKey)
	cfg.LLMConfig.BaseURL = getEnvOrDefault("LLM_BASE_URL", cfg.LLMConfig.BaseURL)
	cfg.LLMConfig.Model = getEnvOrDefault("LLM_MODEL", cfg.LLMConfig.Model)
	cfg.LLMConfig.MaxTokens = getEnvIntOrDefault("LLM_MAX_TOKENS", cfg.LLMConfig.MaxTokens)
	cfg.LLMConfig.Temperature = getEnvFloatOrDefault("LLM_TEMPERATURE", cfg.LLMConfig.Temperature)
	cfg.LLMConfig.Timeout = getEnvDurationOrDefault("LLM_TIMEOUT", cfg.LLMConfig.Timeout)
	cfg.LLMConfig.MinInterval = getEnvDurationOrDefault("LLM_MIN_INTERVAL", cfg.LLMConfig.MinInterval)

	// Exchanges (keys optional, public endpoints need none)
	cfg.ExchangeConfig.BinanceAPIKey = getEnvOrDefault("BINANCE_SPOT_API_KEY", cfg.ExchangeConfig.BinanceAPIKey)
	cfg.ExchangeConfig.BinanceSecretKey = getEnvOrDefault("BINANCE_SPOT_SECRET_KEY", cfg.ExchangeConfig.BinanceSecretKey)
	cfg.ExchangeConfig.BybitAPIKey = getEnvOrDefault("BYBIT_API_KEY", cfg.ExchangeConfig.BybitAPIKey)
	cfg.ExchangeConfig.BybitSecretKey = getEnvOrDefault("BYBIT_SECRET_KEY", cfg.ExchangeConfig.BybitSecretKey)
	cfg.ExchangeConfig.BinanceSpotURL = getEnvOrDefault("BINANCE_SPOT_URL", cfg.ExchangeConfig.BinanceSpotURL)
	cfg.ExchangeConfig.BinanceFutURL = getEnvOrDefault("BINANCE_FUTURES_URL", cfg.ExchangeConfig.BinanceFutURL)
	cfg.ExchangeConfig.BybitURL = getEnvOrDefault("BYBIT_URL", cfg.ExchangeConfig.BybitURL)
	cfg.ExchangeConfig.RequestTimeout = getEnvDurationOrDefault("EXCHANGE_REQUEST_TIMEOUT", cfg.ExchangeConfig.RequestTimeout)

	// Candle cache
	cfg.CacheConfig.Root = getEnvOrDefault("CANDLE_CACHE_ROOT", cfg.CacheConfig.Root)
	cfg.CacheConfig.Enabled = getEnvOrDefault("CANDLE_CACHE_ENABLED", "true") == "true"

	// Scheduler
	if minutes := getEnvIntOrDefault("TELEGRAM_SIGNAL_CHECK_INTERVAL", 0); minutes > 0 {
		cfg.SchedulerConfig.SignalCheckInterval = time.Duration(minutes) * time.Minute
	}
	cfg.SchedulerConfig.WorkerCount = getEnvIntOrDefault("SCHEDULER_WORKER_COUNT", cfg.SchedulerConfig.WorkerCount)
	cfg.SchedulerConfig.QueueCapacity = getEnvIntOrDefault("SCHEDULER_QUEUE_CAPACITY", cfg.SchedulerConfig.QueueCapacity)

	// Screener
	cfg.ScreenerConfig.StageAGate = getEnvFloatOrDefault("SCREENER_STAGE_A_GATE", cfg.ScreenerConfig.StageAGate)
	cfg.ScreenerConfig.BatchSize = getEnvIntOrDefault("SCREENER_BATCH_SIZE", cfg.ScreenerConfig.BatchSize)
	cfg.ScreenerConfig.MaxResults = getEnvIntOrDefault("SCREENER_MAX_RESULTS", cfg.ScreenerConfig.MaxResults)
	cfg.ScreenerConfig.QuickScoreLLM = getEnvOrDefault("SCREENER_QUICK_SCORE_LLM", "true") == "true"

	// Database
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	// Redis
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// HTTP server
	cfg.ServerConfig.Enabled = getEnvOrDefault("SERVER_ENABLED", "true") == "true"
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)

	// Auth
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AdminPasswordHash = getEnvOrDefault("AUTH_ADMIN_PASSWORD_HASH", cfg.AuthConfig.AdminPasswordHash)
	cfg.AuthConfig.TokenDuration = getEnvDurationOrDefault("AUTH_TOKEN_DURATION", cfg.AuthConfig.TokenDuration)

	// Vault
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"
}

// Validate checks invariants that must hold before the process starts.
func (c *Config) Validate() error {
	if c.TelegramConfig.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.DatabaseConfig.Database == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.SchedulerConfig.WorkerCount <= 0 {
		return fmt.Errorf("scheduler worker count must be positive, got %d", c.SchedulerConfig.WorkerCount)
	}
	if c.SchedulerConfig.QueueCapacity <= 0 {
		return fmt.Errorf("scheduler queue capacity must be positive, got %d", c.SchedulerConfig.QueueCapacity)
	}
	return nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := defaultConfig()
	if err := json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
