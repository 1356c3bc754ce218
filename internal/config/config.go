package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDriver      string
	DBUser        string
	DBPassword    string
	DBName        string
	DBHost        string
	DBPort        string
	SQLitePath    string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	BotToken      string

	VaultChannelID int64
	LogChannelID   int64
	AdminUserID    int64

	CooldownWindow   time.Duration
	ExposureWindow   time.Duration
	MaxRelayAttempts int
	RetryDelay       time.Duration
	SweepEvery       time.Duration
	RelayRPS         float64

	ThrottleBackend string // "memory" or "redis"
	StatsBackend    string // "memory", "redis" or "none"
	StatsBucket     string // "minute" or "none"
	StatsBucketTTL  time.Duration

	ForceJoinChannel string
	TermsChat        string
	TermsMessageID   int

	OpsAddr       string
	OpsAllowedIPs []string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		DBDriver:         getEnv("DB_DRIVER", "postgres"),
		DBUser:           getEnv("DB_USER", "postgres"),
		DBPassword:       getEnv("DB_PASSWORD", "postgres"),
		DBName:           getEnv("DB_NAME", "refgate_bot"),
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnv("DB_PORT", "5432"),
		SQLitePath:       getEnv("SQLITE_PATH", "refgate.db"),
		RedisHost:        getEnv("REDIS_HOST", "localhost"),
		RedisPort:        getEnv("REDIS_PORT", "6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		BotToken:         getEnv("TELEGRAM_BOT_TOKEN", ""),
		VaultChannelID:   getEnvInt64("VAULT_CHANNEL_ID", 0),
		LogChannelID:     getEnvInt64("LOG_CHANNEL_ID", 0),
		AdminUserID:      getEnvInt64("ADMIN_USER_ID", 0),
		CooldownWindow:   getEnvDuration("COOLDOWN_WINDOW", 5*time.Second),
		ExposureWindow:   getEnvDuration("EXPOSURE_WINDOW", 3*time.Hour),
		MaxRelayAttempts: int(getEnvInt64("MAX_RELAY_ATTEMPTS", 3)),
		RetryDelay:       getEnvDuration("RELAY_RETRY_DELAY", time.Second),
		SweepEvery:       getEnvDuration("RETRACTION_SWEEP_EVERY", time.Minute),
		RelayRPS:         getEnvFloat("RELAY_RPS", 25),
		ThrottleBackend:  strings.ToLower(getEnv("THROTTLE_BACKEND", "memory")),
		StatsBackend:     strings.ToLower(getEnv("STATS_BACKEND", "memory")),
		StatsBucket:      strings.ToLower(getEnv("STATS_BUCKET", "minute")),
		StatsBucketTTL:   getEnvDuration("STATS_BUCKET_TTL", 24*time.Hour),
		ForceJoinChannel: strings.TrimPrefix(strings.TrimSpace(getEnv("FORCE_JOIN_CHANNEL", "")), "@"),
		TermsChat:        strings.TrimPrefix(strings.TrimSpace(getEnv("TERMS_CHAT", "")), "@"),
		TermsMessageID:   int(getEnvInt64("TERMS_MESSAGE_ID", 0)),
		OpsAddr:          getEnv("OPS_ADDR", ":8080"),
		OpsAllowedIPs:    getEnvList("OPS_ALLOWED_IPS", []string{"127.0.0.1/32", "::1/128"}),
	}
}

// Validate reports settings the bot cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	if c.VaultChannelID == 0 {
		errs = append(errs, errors.New("VAULT_CHANNEL_ID is required"))
	}
	if c.DBDriver != "postgres" && c.DBDriver != "sqlite" {
		errs = append(errs, errors.New("DB_DRIVER must be postgres or sqlite"))
	}
	if c.ThrottleBackend != "memory" && c.ThrottleBackend != "redis" {
		errs = append(errs, errors.New("THROTTLE_BACKEND must be memory or redis"))
	}
	if c.StatsBackend != "memory" && c.StatsBackend != "redis" && c.StatsBackend != "none" {
		errs = append(errs, errors.New("STATS_BACKEND must be memory, redis or none"))
	}
	if c.StatsBucket != "" && c.StatsBucket != "minute" && c.StatsBucket != "none" {
		errs = append(errs, errors.New("STATS_BUCKET must be minute or none"))
	}
	if c.MaxRelayAttempts < 1 {
		errs = append(errs, errors.New("MAX_RELAY_ATTEMPTS must be at least 1"))
	}
	if c.CooldownWindow < 0 || c.ExposureWindow <= 0 {
		errs = append(errs, errors.New("COOLDOWN_WINDOW must be >= 0 and EXPOSURE_WINDOW > 0"))
	}
	return errors.Join(errs...)
}

// NeedsRedis is true when any backend is configured to use redis.
func (c *Config) NeedsRedis() bool {
	return c.ThrottleBackend == "redis" || c.StatsBackend == "redis"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("Invalid %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("Invalid %s=%q, using %v", key, raw, fallback)
		return fallback
	}
	return v
}

// getEnvDuration accepts Go durations ("90s", "3h") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Invalid %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
