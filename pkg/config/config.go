package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Redis        RedisConfig        `yaml:"redis"`
	Pool         PoolConfig         `yaml:"pool"`
	Playback     PlaybackConfig     `yaml:"playback"`
	Engines      EnginesConfig      `yaml:"engines"`
	Logger       LoggerConfig       `yaml:"logger"`
	Notification NotificationConfig `yaml:"notification"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Port         int     `yaml:"port"`
	Mode         string  `yaml:"mode"`       // debug, release
	APIKey       string  `yaml:"api_key"`    // API key for result ingestion (optional, if empty, auth is disabled)
	PublicURL    string  `yaml:"public_url"` // Base URL the AI engine should post results back to
	WebhookRPS   float64 `yaml:"webhook_rps"`
	WebhookBurst int     `yaml:"webhook_burst"`
}

// RedisConfig Redis configuration. An empty Addr disables the status mirror.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PoolConfig worker pool and session configuration
type PoolConfig struct {
	Size             int           `yaml:"size"`
	ReconnectWindow  time.Duration `yaml:"reconnect_window"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// PlaybackConfig shared transcription engine control
type PlaybackConfig struct {
	SeekCooldown time.Duration `yaml:"seek_cooldown"`
}

// EnginesConfig external engines reached over HTTP
type EnginesConfig struct {
	TranscriptionURL string        `yaml:"transcription_url"`
	AIURL            string        `yaml:"ai_url"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// NotificationConfig operator alerts
type NotificationConfig struct {
	FeishuWebhookURL string `yaml:"feishu_webhook_url"` // Feishu bot webhook for worker-offline alerts (optional)
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

const (
	DefaultPort             = 3000
	DefaultPoolSize         = 5
	DefaultReconnectWindow  = 5 * time.Minute
	DefaultSweepInterval    = time.Minute
	DefaultSnapshotInterval = 30 * time.Second
	DefaultSeekCooldown     = 2000 * time.Millisecond
	DefaultCallTimeout      = 3000 * time.Millisecond
	MinCallTimeout          = 3000 * time.Millisecond
	MaxCallTimeout          = 5000 * time.Millisecond
	DefaultTranscriptionURL = "http://localhost:8001"
	DefaultAIURL            = "http://localhost:8000"
	DefaultWebhookRPS       = 50
	DefaultWebhookBurst     = 100
)

// Default returns a configuration with every field at its default.
func Default() *Config {
	cfg := &Config{}
	validateAndApplyDefaults(cfg)
	return cfg
}

// Init initializes configuration
func Init() error {
	cfg, err := Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return err
	}
	GlobalConfig = cfg
	return nil
}

// Load reads the yaml file at path (config/config.yaml when empty), applies
// environment overrides and repairs invalid values. A missing file is not an
// error: the service can be configured from the environment alone.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config/config.yaml"
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	applyEnv(&cfg)
	validateAndApplyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := envInt("PORT"); ok {
		cfg.Server.Port = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		cfg.Server.PublicURL = v
	}
	if v, ok := envInt("POOL_SIZE"); ok {
		cfg.Pool.Size = v
	}
	if v, ok := envMillis("RECONNECT_WINDOW_MS"); ok {
		cfg.Pool.ReconnectWindow = v
	}
	if v, ok := envMillis("SWEEP_INTERVAL_MS"); ok {
		cfg.Pool.SweepInterval = v
	}
	if v, ok := envMillis("SEEK_COOLDOWN_MS"); ok {
		cfg.Playback.SeekCooldown = v
	}
	if v := os.Getenv("ASR_API_URL"); v != "" {
		cfg.Engines.TranscriptionURL = v
	}
	if v := os.Getenv("AI_API_URL"); v != "" {
		cfg.Engines.AIURL = v
	}
	if v, ok := envMillis("EXTERNAL_CALL_TIMEOUT_MS"); ok {
		cfg.Engines.CallTimeout = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("FEISHU_WEBHOOK_URL"); v != "" {
		cfg.Notification.FeishuWebhookURL = v
	}
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envMillis(key string) (time.Duration, bool) {
	v, ok := envInt(key)
	if !ok {
		return 0, false
	}
	return time.Duration(v) * time.Millisecond, true
}

// validateAndApplyDefaults replaces missing or invalid values with defaults
func validateAndApplyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Server.WebhookRPS <= 0 {
		cfg.Server.WebhookRPS = DefaultWebhookRPS
	}
	if cfg.Server.WebhookBurst <= 0 {
		cfg.Server.WebhookBurst = DefaultWebhookBurst
	}
	if cfg.Pool.Size <= 0 {
		cfg.Pool.Size = DefaultPoolSize
	}
	if cfg.Pool.ReconnectWindow <= 0 {
		cfg.Pool.ReconnectWindow = DefaultReconnectWindow
	}
	if cfg.Pool.SweepInterval <= 0 {
		cfg.Pool.SweepInterval = DefaultSweepInterval
	}
	if cfg.Pool.SnapshotInterval <= 0 {
		cfg.Pool.SnapshotInterval = DefaultSnapshotInterval
	}
	if cfg.Playback.SeekCooldown <= 0 {
		cfg.Playback.SeekCooldown = DefaultSeekCooldown
	}
	if cfg.Engines.TranscriptionURL == "" {
		cfg.Engines.TranscriptionURL = DefaultTranscriptionURL
	}
	if cfg.Engines.AIURL == "" {
		cfg.Engines.AIURL = DefaultAIURL
	}
	switch {
	case cfg.Engines.CallTimeout <= 0:
		cfg.Engines.CallTimeout = DefaultCallTimeout
	case cfg.Engines.CallTimeout < MinCallTimeout:
		cfg.Engines.CallTimeout = MinCallTimeout
	case cfg.Engines.CallTimeout > MaxCallTimeout:
		cfg.Engines.CallTimeout = MaxCallTimeout
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Output == "" {
		cfg.Logger.Output = "console"
	}
}
