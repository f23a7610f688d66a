package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultSessionTTL      = 7 * 24 * time.Hour
	defaultStateTTL        = 10 * time.Minute
	defaultOAuthTimeout    = 5 * time.Second
	defaultOAuthRedirect   = "/dashboard"
	defaultGoogleRedirect  = "http://localhost:5173/api/auth/google/callback"
	defaultAuthEventsTopic = "auth-events"
)

type Config struct {
	ServerPort int
	LogLevel   string
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
	Database          DatabaseConfig
	Session           SessionConfig
	OAuth             OAuthConfig
	Redis             RedisConfig
	MQ                MQConfig
	Storage           StorageConfig
	CORS              CORSConfig
	RateLimit         RateLimitConfig
}

type DatabaseConfig struct {
	// URL takes precedence over the individual fields when set.
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool

	// MemoryFallback serves users from process memory when Postgres is unreachable.
	MemoryFallback bool
}

// DSN returns the Postgres connection URL, preferring URL when set.
func (c DatabaseConfig) DSN() string {
	if strings.TrimSpace(c.URL) != "" {
		return c.URL
	}

	sslmode := "disable"
	if c.UseSSL {
		sslmode = "require"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		User:   url.UserPassword(c.User, c.Password),
		Path:   c.DBName,
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}

type SessionConfig struct {
	Secret       string
	Backend      string
	TTL          time.Duration
	CookieSecure bool
	CookieDomain string
}

type OAuthConfig struct {
	ClientID        string
	ClientSecret    string
	RedirectURL     string
	DefaultRedirect string
	StateTTL        time.Duration
	HTTPTimeout     time.Duration
}

// Enabled reports whether Google sign-in has credentials to run with.
func (c OAuthConfig) Enabled() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type MQConfig struct {
	Backend  string
	Channel  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
	// OrderingAttribute names the message attribute used as the ordering key.
	// Empty disables ordered delivery.
	OrderingAttribute string
	MinRetryBackoff   time.Duration
	MaxRetryBackoff   time.Duration
}

type StorageConfig struct {
	Backend string
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	// PerMinute is the sustained number of signup/login attempts per client IP.
	// Zero disables the limiter.
	PerMinute int
	Burst     int
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		URL:            getEnv("DATABASE_URL", ""),
		Host:           getEnv("DB_HOST", "localhost"),
		Port:           getEnvInt("DB_PORT", 5432),
		User:           getEnv("DB_USER", "postgres"),
		Password:       getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "pilotodevendas"),
		UseSSL:         getEnvBool("DB_USE_SSL", false),
		MemoryFallback: getEnvBool("DB_MEMORY_FALLBACK", false),
	}

	sessionConfig := SessionConfig{
		Secret:       getEnv("SESSION_SECRET", ""),
		Backend:      strings.ToLower(getEnv("SESSION_BACKEND", "memory")),
		TTL:          getEnvDuration("SESSION_TTL", defaultSessionTTL),
		CookieSecure: getEnvBool("COOKIE_SECURE", false),
		CookieDomain: getEnv("COOKIE_DOMAIN", ""),
	}

	oauthConfig := OAuthConfig{
		ClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		ClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		RedirectURL:     getEnv("GOOGLE_REDIRECT_URI", defaultGoogleRedirect),
		DefaultRedirect: getEnv("OAUTH_DEFAULT_REDIRECT", defaultOAuthRedirect),
		StateTTL:        getEnvDuration("OAUTH_STATE_TTL", defaultStateTTL),
		HTTPTimeout:     getEnvDuration("OAUTH_HTTP_TIMEOUT", defaultOAuthTimeout),
	}

	mqConfig := MQConfig{
		Backend: strings.ToLower(getEnv("MQ_BACKEND", "none")),
		Channel: getEnv("MQ_AUTH_EVENTS_CHANNEL", defaultAuthEventsTopic),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
			OrderingAttribute:  getEnv("PUBSUB_ORDERING_ATTRIBUTE", "user-id"),
			MinRetryBackoff:    getEnvDuration("PUBSUB_MIN_RETRY_BACKOFF", 10*time.Second),
			MaxRetryBackoff:    getEnvDuration("PUBSUB_MAX_RETRY_BACKOFF", 10*time.Minute),
		},
	}

	storageConfig := StorageConfig{
		Backend: strings.ToLower(getEnv("STORAGE_BACKEND", "none")),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "avatars"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}

	return Config{
		ServerPort:        getEnvInt("SERVER_PORT", 8080),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),
		Database:          dbConfig,
		Session:           sessionConfig,
		OAuth:             oauthConfig,
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		MQ:      mqConfig,
		Storage: storageConfig,
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getEnvInt("AUTH_RATE_LIMIT_PER_MINUTE", 30),
			Burst:     getEnvInt("AUTH_RATE_LIMIT_BURST", 10),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil || value <= 0 {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
