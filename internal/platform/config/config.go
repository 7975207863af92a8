package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
//
// Sources, lowest precedence first: compiled defaults, the YAML file named by
// --config or CONFIG_FILE, the environment (after .env is loaded), flags.
type Config struct {
	ServiceName string `yaml:"service_name"`
	HTTPPort    string `yaml:"http_port"`

	PostgresDSN string `yaml:"postgres_dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`

	RedisURL       string `yaml:"redis_url"`
	RedisKeyPrefix string `yaml:"redis_key_prefix"`

	TokenPublicKey string `yaml:"token_public_key"`

	RateLimitMax     int           `yaml:"rate_limit_max"`
	RateLimitWindow  time.Duration `yaml:"rate_limit_window"`
	TallyCacheTTL    time.Duration `yaml:"tally_cache_ttl"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	SSEHeartbeat     time.Duration `yaml:"sse_heartbeat"`
	DuplicatePolicy  string        `yaml:"duplicate_policy"`

	TrustForwardedHeaders bool     `yaml:"trust_forwarded_headers"`
	CORSAllowedOrigins    []string `yaml:"cors_allowed_origins"`

	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func Defaults() Config {
	return Config{
		ServiceName:           "battlevoter",
		HTTPPort:              "8080",
		RedisKeyPrefix:        "battlevoter",
		RateLimitMax:          5,
		RateLimitWindow:       5 * time.Minute,
		TallyCacheTTL:         time.Hour,
		SubscriberBuffer:      16,
		SSEHeartbeat:          15 * time.Second,
		DuplicatePolicy:       "revote",
		TrustForwardedHeaders: true,
		CORSAllowedOrigins:    []string{"http://localhost:3000"},
		LogLevel:              "info",
		LogFormat:             "json",
		ShutdownTimeout:       10 * time.Second,
	}
}

func Load(args []string) (Config, error) {
	cfg := Defaults()

	flags := pflag.NewFlagSet("battlevoter", pflag.ContinueOnError)
	configFile := flags.String("config", "", "path to a YAML config file")
	port := flags.String("port", "", "HTTP listen port")
	dsn := flags.String("postgres-dsn", "", "Postgres connection string")
	autoMigrate := flags.Bool("auto-migrate", false, "create the votes table on startup")
	redisURL := flags.String("redis-url", "", "Redis URL; empty keeps cache, limiter and fan-out in process")
	logLevel := flags.String("log-level", "", "debug, info, warn or error")
	policy := flags.String("duplicate-policy", "", "revote or reject")
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	envFile := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	path := *configFile
	if path == "" {
		path = strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	var errs []error
	applyEnv(&cfg, &errs)

	if flags.Changed("port") {
		cfg.HTTPPort = *port
	}
	if flags.Changed("postgres-dsn") {
		cfg.PostgresDSN = *dsn
	}
	if flags.Changed("auto-migrate") {
		cfg.AutoMigrate = *autoMigrate
	}
	if flags.Changed("redis-url") {
		cfg.RedisURL = *redisURL
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if flags.Changed("duplicate-policy") {
		cfg.DuplicatePolicy = *policy
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, errs *[]error) {
	envString("SERVICE_NAME", &cfg.ServiceName)
	envString("HTTP_PORT", &cfg.HTTPPort)
	envString("POSTGRES_DSN", &cfg.PostgresDSN)
	cfg.AutoMigrate = envBool("AUTO_MIGRATE", cfg.AutoMigrate)
	envString("REDIS_URL", &cfg.RedisURL)
	envString("REDIS_KEY_PREFIX", &cfg.RedisKeyPrefix)
	envString("TOKEN_PUBLIC_KEY", &cfg.TokenPublicKey)
	envInt("RATE_LIMIT_MAX", &cfg.RateLimitMax, errs)
	envDuration("RATE_LIMIT_WINDOW", &cfg.RateLimitWindow, errs)
	envDuration("TALLY_CACHE_TTL", &cfg.TallyCacheTTL, errs)
	envInt("SUBSCRIBER_BUFFER", &cfg.SubscriberBuffer, errs)
	envDuration("SSE_HEARTBEAT", &cfg.SSEHeartbeat, errs)
	envString("DUPLICATE_POLICY", &cfg.DuplicatePolicy)
	cfg.TrustForwardedHeaders = envBool("TRUST_FORWARDED_HEADERS", cfg.TrustForwardedHeaders)
	if raw, ok := os.LookupEnv("CORS_ALLOWED_ORIGINS"); ok {
		cfg.CORSAllowedOrigins = splitList(raw)
	}
	envString("LOG_LEVEL", &cfg.LogLevel)
	envString("LOG_FORMAT", &cfg.LogFormat)
	envDuration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout, errs)
}

func (c Config) validate() []error {
	var errs []error
	if c.RateLimitMax <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX must be positive"))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}
	if c.TallyCacheTTL <= 0 {
		errs = append(errs, errors.New("TALLY_CACHE_TTL must be positive"))
	}
	if c.SubscriberBuffer <= 0 {
		errs = append(errs, errors.New("SUBSCRIBER_BUFFER must be positive"))
	}
	switch strings.ToLower(c.DuplicatePolicy) {
	case "revote", "reject":
	default:
		errs = append(errs, fmt.Errorf("DUPLICATE_POLICY must be revote or reject, got %q", c.DuplicatePolicy))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}
	return errs
}

func envString(name string, target *string) {
	if raw, ok := os.LookupEnv(name); ok {
		*target = strings.TrimSpace(raw)
	}
}

func envInt(name string, target *int, errs *[]error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return
	}
	*target = value
}

func envDuration(name string, target *time.Duration, errs *[]error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return
	}
	*target = value
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func splitList(raw string) []string {
	var items []string
	for _, value := range strings.Split(raw, ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}
