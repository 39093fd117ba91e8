package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/repeat/internal/fsrs"
)

// EnvPrefix is the prefix of environment variables read as configuration,
// e.g. REPEAT_DRILL_CARD_LIMIT=50.
const EnvPrefix = "REPEAT_"

// ConfigFlag names the flag that points at a YAML configuration file.
const ConfigFlag = "config"

var ErrInvalid = errors.New("invalid configuration")

// Config is the full runtime configuration.
type Config struct {
	DB        string          `koanf:"db" validate:"required"`
	Log       LogConfig       `koanf:"log"`
	Git       GitConfig       `koanf:"git"`
	Drill     DrillConfig     `koanf:"drill"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
	// File receives log output instead of stderr when set. Terminal
	// sessions only log when it is set.
	File string `koanf:"file"`
}

type GitConfig struct {
	// CacheDir holds checkouts of git-hosted decks.
	CacheDir string `koanf:"cache_dir" validate:"required"`
}

// DrillConfig caps drill sessions. Unset means no cap.
type DrillConfig struct {
	CardLimit    *int `koanf:"card_limit" validate:"omitempty,gte=0"`
	NewCardLimit *int `koanf:"new_card_limit" validate:"omitempty,gte=0"`
}

type SchedulerConfig struct {
	DesiredRetention float64   `koanf:"desired_retention" validate:"gt=0,lt=1"`
	MaxInterval      int       `koanf:"max_interval" validate:"gte=1"`
	Weights          []float64 `koanf:"weights" validate:"omitempty,len=21"`
}

// Params builds scheduler parameters, falling back to the default weights
// when none are configured.
func (c SchedulerConfig) Params() (fsrs.Params, error) {
	p := fsrs.DefaultParams()
	p.DesiredRetention = c.DesiredRetention
	p.MaxInterval = c.MaxInterval
	if len(c.Weights) > 0 {
		copy(p.Weights[:], c.Weights)
	}
	if err := p.Validate(); err != nil {
		return fsrs.Params{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return p, nil
}

// Default returns the built-in configuration. Data lives under the user's
// data directory ($XDG_DATA_HOME/repeat or ~/.local/share/repeat).
func Default() Config {
	dir := dataDir()
	p := fsrs.DefaultParams()
	return Config{
		DB:  filepath.Join(dir, "repeat.db"),
		Log: LogConfig{Level: "info", Format: "text"},
		Git: GitConfig{CacheDir: filepath.Join(dir, "repos")},
		Scheduler: SchedulerConfig{
			DesiredRetention: p.DesiredRetention,
			MaxInterval:      p.MaxInterval,
		},
	}
}

func dataDir() string {
	if d := os.Getenv("XDG_DATA_HOME"); d != "" {
		return filepath.Join(d, "repeat")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "repeat")
	}
	return ".repeat"
}

// DefaultFile is the configuration file read when none is named.
func DefaultFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "repeat", "config.yaml")
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"db":                "db",
	"log-level":         "log.level",
	"log-format":        "log.format",
	"log-file":          "log.file",
	"git-cache-dir":     "git.cache_dir",
	"card-limit":        "drill.card_limit",
	"new-card-limit":    "drill.new_card_limit",
	"desired-retention": "scheduler.desired_retention",
	"max-interval":      "scheduler.max_interval",
}

// Load layers the configuration: built-in defaults, then the YAML file,
// then REPEAT_* environment variables, then flags set on the command line.
// The file is the one named by the --config flag or REPEAT_CONFIG, or the
// default file if it exists.
func Load(fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	def := Default()
	for key, val := range map[string]any{
		"db":                          def.DB,
		"log.level":                   def.Log.Level,
		"log.format":                  def.Log.Format,
		"git.cache_dir":               def.Git.CacheDir,
		"scheduler.desired_retention": def.Scheduler.DesiredRetention,
		"scheduler.max_interval":      def.Scheduler.MaxInterval,
	} {
		if err := k.Set(key, val); err != nil {
			return Config{}, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	path, explicit := configFile(fs)
	if path != "" {
		if _, err := os.Stat(path); err == nil || explicit {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if fs != nil {
		if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		}), nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func configFile(fs *pflag.FlagSet) (string, bool) {
	if fs != nil {
		if f := fs.Lookup(ConfigFlag); f != nil && f.Changed {
			return f.Value.String(), true
		}
	}
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return p, true
	}
	return DefaultFile(), false
}

// envKey turns REPEAT_GIT_CACHE_DIR into git.cache_dir: the first
// underscore after the prefix separates the section from the key.
// Weights are given as a comma-separated list.
func envKey(name, value string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	if key == "config" {
		return "", nil
	}
	key = strings.Replace(key, "_", ".", 1)
	if key == "scheduler.weights" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return key, parts
	}
	return key, value
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and that the scheduler settings form valid
// parameters.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := c.Scheduler.Params(); err != nil {
		return err
	}
	return nil
}
