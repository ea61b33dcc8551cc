package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Remote.Backend)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 10*time.Second, cfg.Engine.RequestTimeout)
	assert.False(t, cfg.Engine.SeedDemoData)
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
owner: alice
remote:
  backend: redis
  redis:
    addr: cache:6379
engine:
  request_timeout: 3s
  seed_demo_data: true
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Owner)
	assert.Equal(t, "redis", cfg.Remote.Backend)
	assert.Equal(t, "cache:6379", cfg.Remote.Redis.Addr)
	assert.Equal(t, "backend", cfg.Remote.Feed, "unset fields keep defaults")
	assert.Equal(t, 3*time.Second, cfg.Engine.RequestTimeout)
	assert.Equal(t, 2*time.Second, cfg.Engine.ResubscribeInterval)
	assert.True(t, cfg.Engine.SeedDemoData)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default().Remote, cfg.Remote)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "lifesignal init")
}

func TestLoad_UnknownField(t *testing.T) {
	_, err := Load(writeFile(t, "owner: alice\nowner_name: Alice\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner_name")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LIFESIGNAL_OWNER", "bob")
	t.Setenv("LIFESIGNAL_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("LIFESIGNAL_POSTGRES_DSN", "postgres://u@db/lifesignal")
	t.Setenv("LIFESIGNAL_NATS_URL", "nats://bus:4222")
	t.Setenv("LIFESIGNAL_LOG_LEVEL", "warn")

	cfg, err := Load(writeFile(t, "owner: alice\n"))
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.Owner)
	assert.Equal(t, "redis.internal:6380", cfg.Remote.Redis.Addr)
	assert.Equal(t, "postgres://u@db/lifesignal", cfg.Remote.Postgres.DSN)
	assert.Equal(t, "nats://bus:4222", cfg.Remote.NATS.URL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"owner with spaces", func(c *Config) { c.Owner = "bad owner" }, "owner"},
		{"unknown backend", func(c *Config) { c.Remote.Backend = "dynamo" }, "backend"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "bolt" }, "driver"},
		{"sqlite without path", func(c *Config) { c.Store.Path = "" }, "path"},
		{"postgres without dsn", func(c *Config) { c.Remote.Backend = "postgres" }, "dsn"},
		{"nats without url", func(c *Config) { c.Remote.Feed = "nats"; c.Remote.NATS.URL = "" }, "url"},
		{"zero timeout", func(c *Config) { c.Engine.RequestTimeout = 0 }, "request_timeout"},
		{"bad level", func(c *Config) { c.Log.Level = "trace" }, "level"},
		{"demo data in production", func(c *Config) {
			c.Engine.SeedDemoData = true
			c.Engine.Production = true
		}, "production"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_MemoryStoreNeedsNoPath(t *testing.T) {
	cfg := Default()
	cfg.Store = StoreConfig{Driver: "memory"}
	assert.NoError(t, cfg.Validate())
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigDir, DefaultConfigFile)

	cfg, err := WriteDefault(path, "alice")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), DefaultStoreFile), cfg.Store.Path)
	assert.True(t, Exists(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	_, err = WriteDefault(path, "bob")
	assert.Error(t, err, "existing config is not overwritten")
}

func TestWriteDefault_InvalidEditWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)

	_, err := WriteDefault(path, "alice", func(c *Config) { c.Remote.Backend = "dynamo" })
	require.Error(t, err)
	assert.False(t, Exists(path))

	cfg, err := WriteDefault(path, "alice", func(c *Config) { c.Store.Driver = "badger" })
	require.NoError(t, err)
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "badger", loaded.Store.Driver)
	assert.Equal(t, cfg, loaded)
}
