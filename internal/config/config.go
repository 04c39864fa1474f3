package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"

	NotifierLocal        = "local"
	NotifierRedis        = "redis"
	NotifierChangeStream = "changestream"

	defaultJWTSecret = "dev-secret-change-me"
)

type Config struct {
	Port           string
	Environment    string   // ENV: production, development, etc.
	Host           string   // Raw HOST env (e.g. https://api.palchat.app)
	AllowedHost    string   // Hostname only for strict host check (production only)
	AllowedOrigins []string // CORS and WebSocket origins
	LogLevel       string
	TrustProxy     bool // take the client IP from X-Forwarded-For

	StoreDriver   string
	Notifier      string
	MongoURI      string
	MongoDatabase string
	RedisURI      string // empty runs without Redis
	PostgresURI   string // empty keeps principals in memory

	JWTSecret string
	JWTExpiry time.Duration

	AIAPIURL  string
	AIAPIKey  string
	AIModel   string
	AITimeout time.Duration

	DeviceStatePath   string
	ReconcileInterval time.Duration

	CloudinaryName      string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	AvatarFolder        string

	RateLimitPerMinute       int
	RateLimitLoginPerMinute  int
	RateLimitSendPerMinute   int
	RateLimitAssistPerMinute int
	RateLimitWindow          time.Duration
	RateLimitWindowMax       int
	RateLimitBlockFor        time.Duration
}

func Load() *Config {
	env := strings.ToLower(strings.TrimSpace(getEnv("ENV", "development")))
	host := getEnv("HOST", "http://localhost:8080")

	// AllowedHost is only set in production; host check is skipped in development
	var allowedHost string
	if env == "production" {
		allowedHost = hostname(host)
	}

	allowedOrigins := parseList(getEnv("ALLOWED_ORIGINS", ""))
	if len(allowedOrigins) == 0 {
		for _, u := range []string{getEnv("FRONTEND_URL", "http://localhost:3000"), getEnv("FRONTEND_URL_2", "")} {
			u = strings.TrimSpace(u)
			if u != "" {
				allowedOrigins = append(allowedOrigins, u)
			}
		}
	}

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    env,
		Host:           host,
		AllowedHost:    allowedHost,
		AllowedOrigins: allowedOrigins,
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		TrustProxy:     getEnv("TRUST_PROXY", "false") == "true",

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		Notifier:      strings.ToLower(getEnv("NOTIFIER", NotifierLocal)),
		MongoURI:      getEnv("MONGODB_URI", getEnv("MONGO_URI", "mongodb://localhost:27017/palchat")),
		MongoDatabase: getEnv("MONGODB_DATABASE", ""),
		RedisURI:      getEnv("REDIS_URI", ""),
		PostgresURI:   getEnv("POSTGRES_URI", ""),

		JWTSecret: getEnv("JWT_SECRET", defaultJWTSecret),
		JWTExpiry: getEnvDuration("JWT_EXPIRY", 30*24*time.Hour),

		AIAPIURL:  getEnv("AI_API_URL", "https://api.openai.com/v1"),
		AIAPIKey:  getEnv("AI_API_KEY", ""),
		AIModel:   getEnv("AI_MODEL", "gpt-4o-mini"),
		AITimeout: getEnvDuration("AI_TIMEOUT", 20*time.Second),

		DeviceStatePath:   getEnv("DEVICE_STATE_PATH", "data/device_state.json"),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", time.Minute),

		CloudinaryName:      getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),
		AvatarFolder:        getEnv("CLOUDINARY_AVATAR_FOLDER", "palchat/avatars"),

		RateLimitPerMinute:       getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		RateLimitLoginPerMinute:  getEnvInt("RATE_LIMIT_LOGIN_PER_MINUTE", 10),
		RateLimitSendPerMinute:   getEnvInt("RATE_LIMIT_SEND_PER_MINUTE", 60),
		RateLimitAssistPerMinute: getEnvInt("RATE_LIMIT_ASSIST_PER_MINUTE", 10),
		RateLimitWindow:          getEnvDuration("RATE_LIMIT_WINDOW", 2*time.Minute),
		RateLimitWindowMax:       getEnvInt("RATE_LIMIT_WINDOW_MAX", 300),
		RateLimitBlockFor:        getEnvDuration("RATE_LIMIT_BLOCK_FOR", 0),
	}
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory, StoreMongo:
	default:
		return errors.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreMemory, StoreMongo, c.StoreDriver)
	}
	switch c.Notifier {
	case NotifierLocal:
	case NotifierRedis:
		if c.RedisURI == "" {
			return errors.New("NOTIFIER=redis needs REDIS_URI")
		}
	case NotifierChangeStream:
		if c.StoreDriver != StoreMongo {
			return errors.New("NOTIFIER=changestream needs STORE_DRIVER=mongo")
		}
	default:
		return errors.Errorf("unknown NOTIFIER %q", c.Notifier)
	}
	if c.StoreDriver == StoreMemory && c.Notifier != NotifierLocal {
		return errors.New("the memory store only supports NOTIFIER=local")
	}
	if c.IsProduction() && c.JWTSecret == defaultJWTSecret {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.JWTExpiry <= 0 {
		return errors.New("JWT_EXPIRY must be positive")
	}
	return nil
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return strings.ToLower(strings.TrimSpace(c.Environment)) == "production"
}

// hostname strips scheme, path and port from a URL-ish HOST value.
func hostname(raw string) string {
	h := strings.TrimSpace(raw)
	for _, prefix := range []string{"https://", "http://"} {
		h = strings.TrimPrefix(h, prefix)
	}
	if idx := strings.Index(h, "/"); idx != -1 {
		h = h[:idx]
	}
	if idx := strings.Index(h, ":"); idx != -1 {
		h = h[:idx]
	}
	return strings.TrimSpace(h)
}

func parseList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}
