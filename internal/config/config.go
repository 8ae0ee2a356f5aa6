// Package config loads giftmatch configuration. Values come from built-in
// defaults, then an optional YAML file, then GIFTMATCH_* environment
// variables, each layer overriding the previous one.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"giftmatch/internal/blob"
	"giftmatch/internal/core"
	"giftmatch/internal/match"
	"giftmatch/pkg/domain"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file read when no path is given and it exists.
const DefaultFile = "giftmatch.yaml"

// Config is the full runtime configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Blob      BlobConfig      `yaml:"blob"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Generator GeneratorConfig `yaml:"generator"`
	Settings  SettingsConfig  `yaml:"settings"`
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Driver      string `yaml:"driver" env:"GIFTMATCH_STORAGE_DRIVER"`
	SQLitePath  string `yaml:"sqlite_path,omitempty" env:"GIFTMATCH_SQLITE_PATH"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty" env:"GIFTMATCH_POSTGRES_DSN"`
}

// BlobConfig selects where exports are written.
type BlobConfig struct {
	Driver string   `yaml:"driver" env:"GIFTMATCH_BLOB_DRIVER"`
	FSRoot string   `yaml:"fs_root,omitempty" env:"GIFTMATCH_BLOB_FS_ROOT"`
	S3     S3Config `yaml:"s3,omitempty"`
}

// S3Config configures the S3 blob driver. Without an access key the default
// AWS credential chain applies.
type S3Config struct {
	Bucket          string `yaml:"bucket,omitempty" env:"GIFTMATCH_BLOB_S3_BUCKET"`
	Region          string `yaml:"region,omitempty" env:"GIFTMATCH_BLOB_S3_REGION"`
	Endpoint        string `yaml:"endpoint,omitempty" env:"GIFTMATCH_BLOB_S3_ENDPOINT"`
	PathStyle       bool   `yaml:"path_style,omitempty" env:"GIFTMATCH_BLOB_S3_PATH_STYLE"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" env:"GIFTMATCH_BLOB_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" env:"GIFTMATCH_BLOB_S3_SECRET_ACCESS_KEY"`
	SessionToken    string `yaml:"session_token,omitempty" env:"GIFTMATCH_BLOB_S3_SESSION_TOKEN"`
}

// LogConfig controls the CLI logger.
type LogConfig struct {
	Level string `yaml:"level" env:"GIFTMATCH_LOG_LEVEL"`
}

// MetricsConfig controls metric and trace output. Empty paths disable them.
type MetricsConfig struct {
	// Textfile receives Prometheus metrics in the text exposition format.
	Textfile string `yaml:"textfile,omitempty" env:"GIFTMATCH_METRICS_TEXTFILE"`
	// TraceFile receives one JSON line per finished operation span.
	TraceFile string `yaml:"trace_file,omitempty" env:"GIFTMATCH_TRACE_FILE"`
}

// GeneratorConfig tunes the matching generator.
type GeneratorConfig struct {
	Attempts int    `yaml:"attempts" env:"GIFTMATCH_GENERATOR_ATTEMPTS"`
	Strategy string `yaml:"strategy" env:"GIFTMATCH_GENERATOR_STRATEGY"`
}

// SettingsConfig names the table, view and fields the engine works on.
type SettingsConfig struct {
	Table           string `yaml:"table" env:"GIFTMATCH_TABLE"`
	View            string `yaml:"view" env:"GIFTMATCH_VIEW"`
	AssignmentField string `yaml:"assignment_field" env:"GIFTMATCH_ASSIGNMENT_FIELD"`
	GroupField      string `yaml:"group_field,omitempty" env:"GIFTMATCH_GROUP_FIELD"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Driver:     string(core.StorageSQLite),
			SQLitePath: "giftmatch.db",
		},
		Blob: BlobConfig{
			Driver: string(blob.DriverFilesystem),
			FSRoot: "exports",
		},
		Log: LogConfig{Level: "info"},
		Generator: GeneratorConfig{
			Attempts: match.DefaultAttempts,
			Strategy: match.RandomWalk{}.Name(),
		},
	}
}

// Load reads configuration from path and the process environment. An empty
// path reads DefaultFile when it exists.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, nil)
}

// LoadWithEnv is Load with an explicit environment. A nil environ reads the
// process environment.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return Config{}, err
	}
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate reports every invalid value at once.
func (c Config) Validate() error {
	var errs []error
	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket: required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.driver: unknown driver %q", c.Blob.Driver))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Generator.Attempts < 1 {
		errs = append(errs, fmt.Errorf("generator.attempts: must be at least 1, got %d", c.Generator.Attempts))
	}
	if _, err := match.ParseStrategy(c.Generator.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("generator.strategy: %w", err))
	}
	return errors.Join(errs...)
}

// LogLevel parses Log.Level.
func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Log.Level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// StorageOptions converts the storage section for core.OpenPersistentStore.
func (c Config) StorageOptions() core.StorageOptions {
	return core.StorageOptions{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobOptions converts the blob section for blob.Open.
func (c Config) BlobOptions() blob.Options {
	s3 := c.Blob.S3
	return blob.Options{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:          s3.Bucket,
			Region:          s3.Region,
			Endpoint:        s3.Endpoint,
			PathStyle:       s3.PathStyle,
			AccessKeyID:     s3.AccessKeyID,
			SecretAccessKey: s3.SecretAccessKey,
			SessionToken:    s3.SessionToken,
		},
	}
}

// MatchSettings returns the engine settings.
func (c Config) MatchSettings() domain.Settings {
	return domain.Settings{
		TableID:           c.Settings.Table,
		ViewID:            c.Settings.View,
		AssignmentFieldID: c.Settings.AssignmentField,
		GroupFieldID:      c.Settings.GroupField,
	}
}

// SetMatchSettings stores s in the settings section.
func (c *Config) SetMatchSettings(s domain.Settings) {
	c.Settings = SettingsConfig{
		Table:           s.TableID,
		View:            s.ViewID,
		AssignmentField: s.AssignmentFieldID,
		GroupField:      s.GroupFieldID,
	}
}
