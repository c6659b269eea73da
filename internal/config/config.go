// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds every tunable of the server and the archiver.
type Config struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	// PlayerTokenTTL of zero issues player tokens without an expiry.
	PlayerTokenTTL     time.Duration `mapstructure:"-"`
	RoomTokenTTL       time.Duration `mapstructure:"room_token_expire_time"`
	AuthPrivateKeyPath string        `mapstructure:"auth_private_key_path"`

	RoomGracePeriod     time.Duration `mapstructure:"room_grace_period"`
	RoomDefaultCapacity int           `mapstructure:"room_default_capacity"`
	RoomDefaultRounds   int           `mapstructure:"room_default_rounds"`

	DatabaseURL    string        `mapstructure:"database_url"`
	RedisAddr      string        `mapstructure:"redis_addr"`
	RedisDB        int           `mapstructure:"redis_db"`
	NameCacheTTL   time.Duration `mapstructure:"name_cache_ttl"`
	RoomEventQueue string        `mapstructure:"room_event_queue"`

	AllowedOrigins     []string `mapstructure:"-"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`

	ArchiverBatchSize     int           `mapstructure:"archiver_batch_size"`
	ArchiverFlushInterval time.Duration `mapstructure:"archiver_flush_interval"`
}

// Load reads the configuration from the environment (and a .env file, if any).
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("token_expire_time", "720h")
	v.SetDefault("room_token_expire_time", "1h")
	v.SetDefault("auth_private_key_path", "")
	v.SetDefault("room_grace_period", "10s")
	v.SetDefault("room_default_capacity", 5)
	v.SetDefault("room_default_rounds", 5)
	v.SetDefault("database_url", "")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("name_cache_ttl", "10m")
	v.SetDefault("room_event_queue", "scribble_room_events")
	v.SetDefault("allowed_origins", "*")
	v.SetDefault("rate_limit_per_minute", 60)
	v.SetDefault("archiver_batch_size", 50)
	v.SetDefault("archiver_flush_interval", "1s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ttl, err := parseExpiry(v.GetString("token_expire_time"))
	if err != nil {
		return nil, fmt.Errorf("TOKEN_EXPIRE_TIME: %w", err)
	}
	cfg.PlayerTokenTTL = ttl
	cfg.AllowedOrigins = splitList(v.GetString("allowed_origins"))

	if cfg.RoomGracePeriod <= 0 {
		return nil, fmt.Errorf("ROOM_GRACE_PERIOD must be positive, got %s", cfg.RoomGracePeriod)
	}
	if cfg.ArchiverBatchSize <= 0 {
		cfg.ArchiverBatchSize = 50
	}
	return &cfg, nil
}

// Logger builds the process logger at the configured level.
func (c *Config) Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logger.WithField("log_level", c.LogLevel).Warn("unknown log level, falling back to info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// parseExpiry accepts a Go duration, "never" or "0" (no expiry).
func parseExpiry(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "never" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", d)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
