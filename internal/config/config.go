package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Auth          AuthConfig          `mapstructure:"auth"`
	CORS          CORSConfig          `mapstructure:"cors"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Supabase      SupabaseConfig      `mapstructure:"supabase"`
	Queue         QueueConfig         `mapstructure:"queue"`
	UserRateLimit UserRateLimitConfig `mapstructure:"user_rate_limit"`
	Delivery      DeliveryConfig      `mapstructure:"delivery"`
	Channels      ChannelsConfig      `mapstructure:"channels"`
	Sweeper       SweeperConfig       `mapstructure:"sweeper"`
	Scanner       ScannerConfig       `mapstructure:"scanner"`
	Sync          SyncConfig          `mapstructure:"sync"`
	Mirror        MirrorConfig        `mapstructure:"mirror"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// AuthConfig holds API key authentication settings.
type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// CORSConfig holds CORS policy settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// RateLimitConfig holds HTTP rate limiting settings.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SupabaseConfig holds Supabase project settings.
type SupabaseConfig struct {
	URL        string `mapstructure:"url"`
	ServiceKey string `mapstructure:"service_key"`
}

// QueueConfig holds async queue settings.
type QueueConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MaxRetry    int `mapstructure:"max_retry"`
}

// UserRateLimitConfig holds per-user reminder dispatch settings.
type UserRateLimitConfig struct {
	MaxPerHour int `mapstructure:"max_per_hour"`
}

// DeliveryConfig holds delivery chain settings.
type DeliveryConfig struct {
	ChannelTimeoutSec int `mapstructure:"channel_timeout_sec"`
	MetricsBuffer     int `mapstructure:"metrics_buffer"`
}

// ChannelsConfig holds per-channel provider settings.
type ChannelsConfig struct {
	Push     PushChannelConfig     `mapstructure:"push"`
	WebPush  WebPushChannelConfig  `mapstructure:"webpush"`
	WhatsApp WhatsAppChannelConfig `mapstructure:"whatsapp"`
}

// PushChannelConfig holds native push gateway settings.
type PushChannelConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// WebPushChannelConfig holds Web Push VAPID settings.
type WebPushChannelConfig struct {
	Subscriber      string `mapstructure:"subscriber"`
	VAPIDPublicKey  string `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string `mapstructure:"vapid_private_key"`
	TTLSec          int    `mapstructure:"ttl_sec"`
}

// WhatsAppChannelConfig holds WhatsApp API settings.
type WhatsAppChannelConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	MessageTemplate string `mapstructure:"message_template"`
}

// SweeperConfig holds retry sweeper settings (durations as seconds for YAML/env compat).
type SweeperConfig struct {
	IntervalSec int `mapstructure:"interval_sec"`
	MaxRetries  int `mapstructure:"max_retries"`
	BatchSize   int `mapstructure:"batch_size"`
}

// ScannerConfig holds dose scanner settings.
type ScannerConfig struct {
	IntervalSec  int `mapstructure:"interval_sec"`
	LookaheadSec int `mapstructure:"lookahead_sec"`
	BatchSize    int `mapstructure:"batch_size"`
	MarkerTTLSec int `mapstructure:"marker_ttl_sec"`
}

// SyncConfig holds startup sync settings.
type SyncConfig struct {
	RetentionDays     int `mapstructure:"retention_days"`
	ResubmitWindowSec int `mapstructure:"resubmit_window_sec"`
	BatchSize         int `mapstructure:"batch_size"`
}

// MirrorConfig holds local mirror settings.
type MirrorConfig struct {
	Path           string `mapstructure:"path"`
	PruneThreshold int    `mapstructure:"prune_threshold"`
	Keep           int    `mapstructure:"keep"`
}

// Load reads configuration from config.yaml and environment variables.
// Environment variables use the HORAMED_ prefix and underscore separators.
// Example: HORAMED_SERVER_PORT overrides server.port in config.yaml.
func Load() (*Config, error) {
	v := viper.New()

	// Config file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Load .env file if it exists
	_ = godotenv.Load()

	// Environment variable settings
	v.SetEnvPrefix("HORAMED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.max_retry", 5)
	v.SetDefault("user_rate_limit.max_per_hour", 6)
	v.SetDefault("delivery.channel_timeout_sec", 5)
	v.SetDefault("delivery.metrics_buffer", 256)
	v.SetDefault("channels.webpush.ttl_sec", 60)
	v.SetDefault("sweeper.interval_sec", 300) // 5 minutes
	v.SetDefault("sweeper.max_retries", 3)
	v.SetDefault("sweeper.batch_size", 50)
	v.SetDefault("scanner.interval_sec", 60)
	v.SetDefault("scanner.lookahead_sec", 900) // 15 minutes
	v.SetDefault("scanner.batch_size", 200)
	v.SetDefault("scanner.marker_ttl_sec", 86400)
	v.SetDefault("sync.retention_days", 7)
	v.SetDefault("sync.resubmit_window_sec", 86400) // 24 hours
	v.SetDefault("sync.batch_size", 100)
	v.SetDefault("mirror.path", "horamed-mirror.db")
	v.SetDefault("mirror.prune_threshold", 100)
	v.SetDefault("mirror.keep", 50)

	// Read config file (optional — env vars can provide everything)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Handle comma-separated API keys from env var
	if apiKeysStr := v.GetString("auth.api_keys"); apiKeysStr != "" && len(cfg.Auth.APIKeys) == 0 {
		keys := strings.Split(apiKeysStr, ",")
		for i := range keys {
			keys[i] = strings.TrimSpace(keys[i])
		}
		cfg.Auth.APIKeys = keys
	}

	return &cfg, nil
}
