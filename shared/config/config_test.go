package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_PlaceholderWhenRemoteMissing(t *testing.T) {
	t.Setenv("REMOTE_URL", "")
	t.Setenv("REMOTE_ANON_KEY", "")
	t.Setenv("INVITE_SECRET", "")

	cfg := FromEnv()

	assert.Equal(t, PlaceholderRemoteURL, cfg.Remote.URL)
	assert.Equal(t, PlaceholderAnonKey, cfg.Remote.AnonKey)
	assert.True(t, cfg.Remote.Placeholder())
	assert.Len(t, cfg.InviteSecret, 64, "random secret is 32 hex-encoded bytes")
}

func TestFromEnv_ReadsRemote(t *testing.T) {
	t.Setenv("REMOTE_URL", "https://abc.example.co/")
	t.Setenv("REMOTE_ANON_KEY", "anon")
	t.Setenv("REMOTE_DRIVER", "postgres")
	t.Setenv("INVITE_SECRET", "s3cret")
	t.Setenv("INVITE_TTL_HOURS", "24")
	t.Setenv("DEVTOOLS_ENABLED", "true")

	cfg := FromEnv()

	require.False(t, cfg.Remote.Placeholder())
	assert.Equal(t, "https://abc.example.co", cfg.Remote.URL)
	assert.Equal(t, DriverPostgres, cfg.Remote.Driver)
	assert.Equal(t, "s3cret", cfg.InviteSecret)
	assert.Equal(t, 24*time.Hour, cfg.InviteTTL)
	assert.True(t, cfg.DevtoolsEnabled)
}

func TestFromEnv_UnknownDriverFallsBackToREST(t *testing.T) {
	t.Setenv("REMOTE_DRIVER", "mongo")

	cfg := FromEnv()

	assert.Equal(t, DriverREST, cfg.Remote.Driver)
}

func TestRedisEnabled(t *testing.T) {
	assert.False(t, RedisConfig{}.Enabled())
	assert.True(t, RedisConfig{Host: "redis"}.Enabled())
}

func TestDatabaseDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("DB_NAME", "")
	t.Setenv("DB_SSL_MODE", "disable")
	assert.Equal(t, "host=db.internal port=5432 user=postgres password=password dbname=postgres sslmode=disable",
		GetDatabaseConfig().GetDSN())

	t.Setenv("DATABASE_URL", "postgres://u:p@pooler:6543/postgres")
	assert.Equal(t, "postgres://u:p@pooler:6543/postgres", GetDatabaseConfig().GetDSN())
}
