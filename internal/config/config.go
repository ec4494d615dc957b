package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"marketplace/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Auth       AuthConfig       `yaml:"auth"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Worker     WorkerConfig     `yaml:"worker"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig         `yaml:"cors"`
}

type APIHTTPConfig struct {
	Port            int    `yaml:"port"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	TokenTTL  string `yaml:"token_ttl"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type RealtimeConfig struct {
	CoalesceWindow string `yaml:"coalesce_window"`
}

type WorkerConfig struct {
	MaxRetries    int     `yaml:"max_retries"`
	InitialDelay  string  `yaml:"initial_delay"`
	MaxDelay      string  `yaml:"max_delay"`
	BackoffFactor float64 `yaml:"backoff_factor"`
	PollInterval  string  `yaml:"poll_interval"`
	ReminderTime  string  `yaml:"reminder_time"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML config at configPath. A .env file next to the process
// is loaded first when present, so ${VARS} in the YAML can come from it.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth.jwt_secret must be at least 16 characters")
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE") {
		return errors.New("telegram bot token is required when telegram is enabled")
	}

	durations := map[string]string{
		"api.http.read_timeout":     c.API.HTTP.ReadTimeout,
		"api.http.write_timeout":    c.API.HTTP.WriteTimeout,
		"api.http.shutdown_timeout": c.API.HTTP.ShutdownTimeout,
		"auth.token_ttl":            c.Auth.TokenTTL,
		"realtime.coalesce_window":  c.Realtime.CoalesceWindow,
		"worker.initial_delay":      c.Worker.InitialDelay,
		"worker.max_delay":          c.Worker.MaxDelay,
		"worker.poll_interval":      c.Worker.PollInterval,
	}
	for key, raw := range durations {
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if _, err := time.Parse(models.TimeLayout, c.Worker.ReminderTime); err != nil {
		return fmt.Errorf("worker.reminder_time must be HH:MM: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "marketplace"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.ReadTimeout == "" {
		c.API.HTTP.ReadTimeout = "5s"
	}
	if c.API.HTTP.WriteTimeout == "" {
		c.API.HTTP.WriteTimeout = "15s"
	}
	if c.API.HTTP.ShutdownTimeout == "" {
		c.API.HTTP.ShutdownTimeout = "10s"
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 10
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = c.App.Name
	}
	if c.Auth.TokenTTL == "" {
		c.Auth.TokenTTL = (time.Duration(models.DefaultSessionTTL) * time.Second).String()
	}
	if c.Realtime.CoalesceWindow == "" {
		c.Realtime.CoalesceWindow = "250ms"
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 5
	}
	if c.Worker.InitialDelay == "" {
		c.Worker.InitialDelay = "2s"
	}
	if c.Worker.MaxDelay == "" {
		c.Worker.MaxDelay = "1m"
	}
	if c.Worker.BackoffFactor == 0 {
		c.Worker.BackoffFactor = 2
	}
	if c.Worker.PollInterval == "" {
		c.Worker.PollInterval = "2s"
	}
	if c.Worker.ReminderTime == "" {
		c.Worker.ReminderTime = "09:00"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}

// Duration parses a duration field already checked by Validate.
func Duration(raw string) time.Duration {
	d, _ := time.ParseDuration(raw)
	return d
}
