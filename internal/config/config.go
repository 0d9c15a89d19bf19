package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/plugin-packager/internal/logger"
	"github.com/oshokin/plugin-packager/internal/repository/archive"
	"github.com/oshokin/plugin-packager/internal/rules"
)

// Config holds packaging defaults shared by all plugin-packager commands.
type Config struct {
	// Exclude lists glob patterns of paths left out of the archive.
	Exclude []string `yaml:"exclude"`
	// Require lists relative paths that must end up in the archive.
	Require []string `yaml:"require,omitempty"`
	// Prefix is the directory members are stored under inside the archive.
	Prefix string `yaml:"prefix,omitempty"`
	// Overwrite allows replacing an existing archive.
	Overwrite bool `yaml:"overwrite"`
	// Reproducible stores members with a fixed timestamp.
	Reproducible bool `yaml:"reproducible"`
	// Manifest enables the checksum sidecar next to the archive.
	Manifest bool `yaml:"manifest"`
	// LogLevel is the minimum level of emitted log messages.
	LogLevel string `yaml:"log_level"`
	// LockTimeout is the age after which a destination lock is considered stale.
	LockTimeout time.Duration `yaml:"lock_timeout"`
	// Debounce is the quiet period the watcher waits before repackaging.
	Debounce time.Duration `yaml:"debounce"`
}

const (
	// DefaultConfigFilename is the default filename for packaging settings.
	DefaultConfigFilename = "plugin-packager.yaml"

	// DefaultLogLevel is used when no level is configured.
	DefaultLogLevel = "info"

	// DefaultLockTimeout is the default stale lock lifetime.
	DefaultLockTimeout = 30 * time.Second

	// DefaultDebounce is the default watcher quiet period.
	DefaultDebounce = 500 * time.Millisecond

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownLogLevel is returned when log_level cannot be parsed.
	errUnknownLogLevel = errors.New("unknown log level")
)

// Default returns a configuration populated with the documented plugin exclusions.
func Default() *Config {
	return &Config{
		Exclude:     rules.Defaults(),
		LogLevel:    DefaultLogLevel,
		LockTimeout: DefaultLockTimeout,
		Debounce:    DefaultDebounce,
	}
}

// Load reads configuration from the provided path and validates it.
// An empty path means DefaultConfigFilename; a missing file at the default
// location yields an empty, validated configuration instead of an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			cfg := new(Config)

			return cfg, Validate(cfg)
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks patterns, prefix and level, and fills in defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if _, err := rules.Compile(cfg.Exclude); err != nil {
		return err
	}

	prefix, err := archive.CleanPrefix(cfg.Prefix)
	if err != nil {
		return err
	}

	cfg.Prefix = prefix

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("%w: %q", errUnknownLogLevel, cfg.LogLevel)
	}

	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	return nil
}
