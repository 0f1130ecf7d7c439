package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string
	LogLevel   string

	BackendURL      string
	UpstreamTimeout time.Duration
	RoutesFile      string

	NextAuthSecret []byte
	CookieSecure   bool
	AllowedOrigins []string
	LoginPath      string
	SessionTTL     time.Duration

	SessionStore string
	DBDriver     string
	DatabaseURL  string
	RedisAddr    string

	KafkaBrokers []string
	KafkaTopic   string

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string
}

var ErrMissingEnv = errors.New("missing required env")

// backendEnv lists the variables that may carry the Django origin, in priority order.
var backendEnv = []string{"DJANGO_API_URL", "NEXT_PUBLIC_BACKEND_URL", "NEXT_PUBLIC_API_URL"}

func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:      getenv("GATEWAY_ADDR", ":8080"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		BackendURL:      firstEnv(backendEnv...),
		UpstreamTimeout: durationDefault("UPSTREAM_TIMEOUT", 30*time.Second),
		RoutesFile:      os.Getenv("ROUTES_FILE"),
		NextAuthSecret:  []byte(os.Getenv("NEXTAUTH_SECRET")),
		CookieSecure:    boolDefault("COOKIE_SECURE", true),
		AllowedOrigins:  CSV(os.Getenv("ALLOWED_ORIGINS")),
		LoginPath:       getenv("LOGIN_PATH", "/login"),
		SessionTTL:      durationDefault("SESSION_TTL", 7*24*time.Hour),
		SessionStore:    getenv("SESSION_STORE", "memory"),
		DBDriver:        getenv("DB_DRIVER", "pgx"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:    CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:      getenv("KAFKA_TOPIC", "session_events"),
		ESURL:           os.Getenv("ES_URL"),
		ESUser:          os.Getenv("ES_USER"),
		ESPassword:      os.Getenv("ES_PASSWORD"),
		ESIndex:         getenv("ES_INDEX", "gateway-audit"),
	}

	var errs []error
	if err := must(cfg.BackendURL, strings.Join(backendEnv, "|")); err != nil {
		errs = append(errs, err)
	}
	if err := must(string(cfg.NextAuthSecret), "NEXTAUTH_SECRET"); err != nil {
		errs = append(errs, err)
	}
	switch cfg.SessionStore {
	case "memory", "redis":
	case "db":
		if err := must(cfg.DatabaseURL, "DATABASE_URL"); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE: unknown store %q", cfg.SessionStore))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func must(v string, name string) error {
	if v == "" {
		return fmt.Errorf("%w %s", ErrMissingEnv, name)
	}
	return nil
}

func boolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func durationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
