package config // package config loads application configuration from the environment and an optional file

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable (or the same key, lower-cased, in the optional
// YAML config file).  Environment variables always win over the file.
type Config struct {
	Env      string // application environment (e.g. "dev", "prod")
	Port     string // HTTP port to listen on
	LogLevel string // zap level name
	AppURL   string // front-end URL used for OAuth redirects

	DBDriver string // "mysql" or "sqlite"
	DBDSN    string // full DSN; built from the DB_* tuple for mysql when empty
	DBUser   string
	DBPass   string
	DBHost   string
	DBPort   string
	DBName   string

	JWTSecret string // secret used to verify caller bearer tokens and sign OAuth state

	RabbitMQURL      string // empty means realtime events stay in-process
	RealtimeExchange string // topic exchange carrying realtime events

	ConnectionsSecret  string        // hex encoded 32 byte key for provider tokens at rest
	ClerkWebhookSecret string        // whsec_ prefixed signing secret
	ClerkSecretKey     string        // backend API key used to push role metadata
	ClerkAPIURL        string        // auth provider API base
	UploadPublicKey    string        // file-upload widget public key exposed to the UI
	ToastWindow        time.Duration // realtime toast debounce window

	Cache     CacheConfig
	RateLimit RateLimitConfig
	OAuth     OAuthConfig
	Redis     RedisConfig
}

// Load reads configuration.  A .env file in the working directory is
// loaded first when present, then the optional YAML file at path, then the
// process environment.  Missing required keys are reported together.
func Load(path string) (Config, error) {
	_ = godotenv.Load() // a missing .env file is not an error

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	v.AutomaticEnv()
	return fromReader(reader{v: v})
}

func fromReader(r reader) (Config, error) {
	var missing []string
	must := func(key string) string {
		s := r.str(key, "")
		if s == "" {
			missing = append(missing, key)
		}
		return s
	}

	cfg := Config{
		Env:      must("APP_ENV"),
		Port:     must("APP_PORT"),
		LogLevel: r.str("LOG_LEVEL", "info"),
		AppURL:   strings.TrimRight(r.str("APP_URL", "http://localhost:3000"), "/"),

		DBDriver: strings.ToLower(r.str("DB_DRIVER", "mysql")),
		DBDSN:    r.str("DB_DSN", ""),
		DBUser:   r.str("DB_USER", ""),
		DBPass:   r.str("DB_PASS", ""),
		DBHost:   r.str("DB_HOST", ""),
		DBPort:   r.str("DB_PORT", "3306"),
		DBName:   r.str("DB_NAME", ""),

		JWTSecret: must("JWT_SECRET"),

		RabbitMQURL:      r.str("RABBITMQ_URL", r.str("AMQP_URL", "")),
		RealtimeExchange: r.str("REALTIME_EXCHANGE", "taskflow.realtime"),

		ConnectionsSecret:  r.str("CONNECTIONS_SECRET", ""),
		ClerkWebhookSecret: r.str("CLERK_WEBHOOK_SECRET", ""),
		ClerkSecretKey:     r.str("CLERK_SECRET_KEY", ""),
		ClerkAPIURL:        strings.TrimRight(r.str("CLERK_API_URL", "https://api.clerk.com/v1"), "/"),
		UploadPublicKey:    r.str("UPLOAD_PUBLIC_KEY", ""),
		ToastWindow:        r.dur("TOAST_WINDOW", 2*time.Second),

		Cache:     loadCacheConfig(r),
		RateLimit: loadRateLimitConfig(r),
		OAuth:     loadOAuthConfig(r),
		Redis:     loadRedisConfig(r),
	}

	switch cfg.DBDriver {
	case "sqlite":
		if cfg.DBDSN == "" {
			missing = append(missing, "DB_DSN")
		}
	case "mysql":
		if cfg.DBDSN == "" {
			for key, val := range map[string]string{"DB_USER": cfg.DBUser, "DB_HOST": cfg.DBHost, "DB_NAME": cfg.DBName} {
				if val == "" {
					missing = append(missing, key)
				}
			}
		}
	default:
		return Config{}, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	if len(missing) > 0 {
		return Config{}, errors.New("missing required env vars: " + strings.Join(missing, ", "))
	}
	return cfg, nil
}

// DSN returns the data source name for the configured driver.
func (c Config) DSN() string {
	if c.DBDSN != "" || c.DBDriver != "mysql" {
		return c.DBDSN
	}
	auth := c.DBUser
	if c.DBPass != "" {
		auth = fmt.Sprintf("%s:%s", c.DBUser, c.DBPass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, c.DBHost, c.DBPort, c.DBName)
}

// IsProduction reports whether the service runs with production defaults.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "prod") || strings.EqualFold(c.Env, "production")
}
