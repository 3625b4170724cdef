package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Placeholder values used when the remote endpoint is not configured.
// The portal still starts; every remote call fails and is reported as such.
const (
	PlaceholderRemoteURL = "https://placeholder.invalid"
	PlaceholderAnonKey   = "public-anon-key"
)

// Remote drivers
const (
	DriverREST     = "rest"
	DriverPostgres = "postgres"
)

// RemoteConfig describes how to reach the hosted database + auth service
type RemoteConfig struct {
	URL        string
	AnonKey    string
	ServiceKey string
	JWTSecret  string
	Driver     string
	Timeout    time.Duration
}

// Placeholder reports whether the remote endpoint fell back to the placeholder
func (c RemoteConfig) Placeholder() bool {
	return c.URL == PlaceholderRemoteURL
}

// RedisConfig holds Redis connection settings; an empty host disables Redis.
// LocalCacheMB sizes the in-process cache used instead.
type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	LocalCacheMB int
}

// Enabled reports whether a Redis host was configured
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// AppConfig is the configuration shared by the portal services
type AppConfig struct {
	AppURL          string
	Remote          RemoteConfig
	Redis           RedisConfig
	KafkaBroker     string
	S3Bucket        string
	AWSRegion       string
	InviteSecret    string
	InviteTTL       time.Duration
	DevtoolsEnabled bool
}

// Load reads .env (if present) and the environment into an AppConfig
func Load() *AppConfig {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}
	return FromEnv()
}

// FromEnv builds an AppConfig from the current environment
func FromEnv() *AppConfig {
	cfg := &AppConfig{
		AppURL: strings.TrimRight(getEnv("APP_URL", "http://localhost:3000"), "/"),
		Remote: RemoteConfig{
			URL:        strings.TrimRight(getEnv("REMOTE_URL", ""), "/"),
			AnonKey:    getEnv("REMOTE_ANON_KEY", ""),
			ServiceKey: getEnv("REMOTE_SERVICE_KEY", ""),
			JWTSecret:  getEnv("REMOTE_JWT_SECRET", ""),
			Driver:     getEnv("REMOTE_DRIVER", DriverREST),
			Timeout:    time.Duration(getEnvInt("REMOTE_TIMEOUT_SEC", 15)) * time.Second,
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", ""),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			LocalCacheMB: getEnvInt("LOCAL_CACHE_MB", 256),
		},
		KafkaBroker:     getEnv("KAFKA_BROKER", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		AWSRegion:       getEnv("AWS_REGION", "ap-southeast-2"),
		InviteSecret:    getEnv("INVITE_SECRET", ""),
		InviteTTL:       time.Duration(getEnvInt("INVITE_TTL_HOURS", 168)) * time.Hour,
		DevtoolsEnabled: getEnvBool("DEVTOOLS_ENABLED", false),
	}

	if cfg.Remote.URL == "" || cfg.Remote.AnonKey == "" {
		logrus.WithField("placeholder", PlaceholderRemoteURL).
			Warn("REMOTE_URL or REMOTE_ANON_KEY not set, remote calls will fail")
		if cfg.Remote.URL == "" {
			cfg.Remote.URL = PlaceholderRemoteURL
		}
		if cfg.Remote.AnonKey == "" {
			cfg.Remote.AnonKey = PlaceholderAnonKey
		}
	}

	if cfg.Remote.Driver != DriverREST && cfg.Remote.Driver != DriverPostgres {
		logrus.WithField("driver", cfg.Remote.Driver).Warn("Unknown REMOTE_DRIVER, using rest")
		cfg.Remote.Driver = DriverREST
	}

	if cfg.InviteSecret == "" {
		logrus.Warn("INVITE_SECRET not set, invitation links will not survive a restart")
		cfg.InviteSecret = randomSecret()
	}

	return cfg
}

// ServicePort returns the port for a service from key, or def
func ServicePort(key, def string) string {
	return getEnv(key, def)
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("config: failed to generate invite secret: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		logrus.WithField("key", key).Warn("Invalid integer in environment, using default")
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
