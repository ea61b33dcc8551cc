// Package config provides configuration loading and validation.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigDir is the directory name for lifesignal configuration.
	DefaultConfigDir = ".lifesignal"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.yaml"
	// DefaultStoreFile is the default sqlite database name.
	DefaultStoreFile = "lifesignal.db"
)

// ErrNotFound is returned by Load when the config file does not exist.
var ErrNotFound = errors.New("config file not found")

//go:embed schema.cue
var schemaSource string

// Config holds static configuration (read-only after Load).
type Config struct {
	// Owner is the signed-in user id. Empty means signed out.
	Owner  string       `yaml:"owner" json:"owner"`
	Remote RemoteConfig `yaml:"remote" json:"remote"`
	Store  StoreConfig  `yaml:"store" json:"store"`
	Engine EngineConfig `yaml:"engine" json:"engine"`
	Log    LogConfig    `yaml:"log" json:"log"`
}

// RemoteConfig selects the remote contact service backend.
type RemoteConfig struct {
	// Backend is memory, redis or postgres.
	Backend string `yaml:"backend" json:"backend"`
	// Feed is "backend" (use the backend's own push channel) or nats.
	Feed     string         `yaml:"feed" json:"feed"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
	NATS     NATSConfig     `yaml:"nats" json:"nats"`
}

// RedisConfig holds connection settings for the Redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password,omitempty" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix,omitempty" json:"prefix"`
}

// PostgresConfig holds connection settings for the Postgres backend.
type PostgresConfig struct {
	DSN string `yaml:"dsn" json:"dsn"`
}

// NATSConfig holds connection settings for the NATS change feed.
type NATSConfig struct {
	URL    string `yaml:"url" json:"url"`
	Prefix string `yaml:"prefix,omitempty" json:"prefix"`
}

// StoreConfig selects the local snapshot store.
type StoreConfig struct {
	// Driver is sqlite, badger or memory.
	Driver string `yaml:"driver" json:"driver"`
	// Path is the sqlite file or badger directory.
	Path string `yaml:"path" json:"path"`
}

// EngineConfig tunes the sync engine.
type EngineConfig struct {
	RequestTimeout      time.Duration `yaml:"request_timeout" json:"request_timeout"`
	ResubscribeInterval time.Duration `yaml:"resubscribe_interval" json:"resubscribe_interval"`
	SeedDemoData        bool          `yaml:"seed_demo_data" json:"seed_demo_data"`
	DemoCount           int           `yaml:"demo_count" json:"demo_count"`
	Production          bool          `yaml:"production" json:"production"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Remote: RemoteConfig{
			Backend: "memory",
			Feed:    "backend",
			Redis:   RedisConfig{Addr: "localhost:6379"},
			NATS:    NATSConfig{URL: "nats://localhost:4222"},
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   DefaultStorePath(),
		},
		Engine: EngineConfig{
			RequestTimeout:      10 * time.Second,
			ResubscribeInterval: 2 * time.Second,
			DemoCount:           4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the config file at path over the defaults, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s (run 'lifesignal init' first)", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LIFESIGNAL_OWNER"); v != "" {
		c.Owner = v
	}
	if v := os.Getenv("LIFESIGNAL_REDIS_ADDR"); v != "" {
		c.Remote.Redis.Addr = v
	}
	if v := os.Getenv("LIFESIGNAL_POSTGRES_DSN"); v != "" {
		c.Remote.Postgres.DSN = v
	}
	if v := os.Getenv("LIFESIGNAL_NATS_URL"); v != "" {
		c.Remote.NATS.URL = v
	}
	if v := os.Getenv("LIFESIGNAL_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks c against the configuration schema.
func (c *Config) Validate() error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	value := ctx.CompileBytes(data, cue.Filename("config.json"))
	if err := value.Err(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// fileHeader is written above the YAML body. Environment variables listed
// here override the file on every load.
const fileHeader = `# LifeSignal configuration.
#
# remote.backend: memory | redis | postgres
# remote.feed:    backend | nats
# store.driver:   sqlite | badger | memory
#
# Overrides: LIFESIGNAL_OWNER, LIFESIGNAL_REDIS_ADDR, LIFESIGNAL_POSTGRES_DSN,
# LIFESIGNAL_NATS_URL, LIFESIGNAL_LOG_LEVEL.
`

// Write marshals c to path, creating parent directories.
func (c *Config) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	data = append([]byte(fileHeader), data...)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// WriteDefault writes the default configuration to path, with owner
// filled in and edits applied in order. It refuses to overwrite an
// existing file and writes nothing if the edited config is invalid.
func WriteDefault(path, owner string, edits ...func(*Config)) (*Config, error) {
	if Exists(path) {
		return nil, fmt.Errorf("config file already exists: %s", path)
	}
	cfg := Default()
	cfg.Owner = owner
	cfg.Store.Path = filepath.Join(filepath.Dir(path), DefaultStoreFile)
	for _, edit := range edits {
		edit(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Write(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Exists reports whether a config file exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DefaultPath returns the config file path under the user's home
// directory, or under the working directory if home is unknown.
func DefaultPath() string {
	return filepath.Join(baseDir(), DefaultConfigDir, DefaultConfigFile)
}

// DefaultStorePath returns the default sqlite database path.
func DefaultStorePath() string {
	return filepath.Join(baseDir(), DefaultConfigDir, DefaultStoreFile)
}

func baseDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}
