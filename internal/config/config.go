// Package config loads application settings from defaults, an optional
// YAML file, the environment and command-line flags, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable. Sections and keys are
// separated by a double underscore: COURSEDECK_SERVER__ADDR.
const EnvPrefix = "COURSEDECK_"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Progress ProgressConfig `koanf:"progress"`
	Library  LibraryConfig  `koanf:"library"`
	Sync     SyncConfig     `koanf:"sync"`
	Study    StudyConfig    `koanf:"study"`
}

type ServerConfig struct {
	Addr         string        `koanf:"addr" validate:"required,hostname_port"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `koanf:"dsn" validate:"required"`
}

// ProgressConfig selects where mastery scores live: the database, or a
// single JSON file rewritten on every vote.
type ProgressConfig struct {
	Backend string `koanf:"backend" validate:"oneof=database file"`
	Path    string `koanf:"path" validate:"required_if=Backend file"`
}

type LibraryConfig struct {
	OriginalsDir string `koanf:"originals_dir" validate:"required"`
	UploadsDir   string `koanf:"uploads_dir" validate:"required"`
	MaxUploadMB  int64  `koanf:"max_upload_mb" validate:"gte=0"`
}

type SyncConfig struct {
	// Interval between background syncs; zero disables them.
	Interval time.Duration `koanf:"interval" validate:"gte=0"`
	ReposDir string        `koanf:"repos_dir" validate:"required"`
}

type StudyConfig struct {
	// DefaultUser pins every request to one user. When empty each browser
	// gets its own anonymous identity.
	DefaultUser string `koanf:"default_user"`
	// Seed makes card draws reproducible when non-zero.
	Seed uint64 `koanf:"seed"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "coursedeck.db",
		},
		Progress: ProgressConfig{Backend: "database", Path: "data/progress.json"},
		Library: LibraryConfig{
			OriginalsDir: "static/pdfs/originals",
			UploadsDir:   "static/pdfs/uploads",
			MaxUploadMB:  32,
		},
		Sync: SyncConfig{Interval: 15 * time.Minute, ReposDir: "repos"},
	}
}

// Flags returns the command-line flags understood by Load. Callers may add
// their own flags before parsing.
func Flags(name string) *pflag.FlagSet {
	d := Default()
	f := pflag.NewFlagSet(name, pflag.ContinueOnError)
	f.String("config", "", "Path to a YAML configuration file")
	f.String("env-file", ".env", "Path to a dotenv file, ignored when missing")
	f.String("server.addr", d.Server.Addr, "HTTP listen address")
	f.String("log.level", d.Log.Level, "Log level: debug, info, warn or error")
	f.String("log.format", d.Log.Format, "Log format: text or json")
	f.String("database.driver", d.Database.Driver, "Database driver: sqlite or postgres")
	f.String("database.dsn", d.Database.DSN, "Database connection string")
	f.String("progress.backend", d.Progress.Backend, "Progress store: database or file")
	f.String("progress.path", d.Progress.Path, "Progress file for the file backend")
	f.Duration("sync.interval", d.Sync.Interval, "Interval between background syncs, 0 to disable")
	f.String("study.default_user", "", "Use a single fixed user for every request")
	return f
}

// Load builds the configuration. f must already be parsed; nil means no flags.
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if f != nil {
		if envFile, _ := f.GetString("env-file"); envFile != "" {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
		if path, _ := f.GetString("config"); path != "" {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// MaxUploadBytes converts the upload limit to bytes.
func (c LibraryConfig) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}
