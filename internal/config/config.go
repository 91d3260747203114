// Package config loads knolsched settings. Later sources win: built-in
// defaults, then a YAML file, then KNOLSCHED_ environment variables, then
// command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/queue"
	"github.com/conorfennell/knolsched/internal/scheduler"
	"github.com/conorfennell/knolsched/internal/srs"
)

// EnvPrefix prefixes every environment override. Nested keys are joined
// with a double underscore: KNOLSCHED_SCHEDULER__ROLLOVER_HOUR.
const EnvPrefix = "KNOLSCHED_"

type Config struct {
	Database     DatabaseConfig    `koanf:"database"`
	Log          LogConfig         `koanf:"log"`
	Scheduler    SchedulerConfig   `koanf:"scheduler"`
	Server       ServerConfig      `koanf:"server"`
	ReposDir     string            `koanf:"repos_dir" validate:"required"`
	DeckDefaults domain.DeckConfig `koanf:"deck_defaults"`
}

type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	// File, when set, receives a rotated copy of the log.
	File  string `koanf:"file"`
	Debug bool   `koanf:"debug"`
}

type SchedulerConfig struct {
	RolloverHour  int            `koanf:"rollover_hour" validate:"gte=0,lte=23"`
	Timezone      string         `koanf:"timezone"`
	CollapseTime  time.Duration  `koanf:"collapse_time" validate:"gte=0"`
	QueueLimit    int            `koanf:"queue_limit" validate:"gte=1"`
	ReportLimit   int            `koanf:"report_limit" validate:"gte=1"`
	NewSpread     string         `koanf:"new_spread" validate:"oneof=distribute last first"`
	DayLearnFirst bool           `koanf:"day_learn_first"`
	// Seed fixes the random source. Zero seeds from the clock.
	Seed      uint64         `koanf:"seed"`
	FuzzBands []srs.FuzzBand `koanf:"fuzz_bands" validate:"dive"`
}

type ServerConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

// Defaults returns the settings used when nothing overrides them.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{Path: "knolsched.db"},
		Log:      LogConfig{Level: "info"},
		Scheduler: SchedulerConfig{
			RolloverHour: 4,
			CollapseTime: 20 * time.Minute,
			QueueLimit:   50,
			ReportLimit:  1000,
			NewSpread:    string(queue.SpreadDistribute),
			FuzzBands:    srs.DefaultFuzzBands(),
		},
		Server:       ServerConfig{Addr: "localhost:8080"},
		ReposDir:     "repos",
		DeckDefaults: domain.DefaultDeckConfig(),
	}
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"db":              "database.path",
	"log-level":       "log.level",
	"log-file":        "log.file",
	"debug":           "log.debug",
	"rollover-hour":   "scheduler.rollover_hour",
	"timezone":        "scheduler.timezone",
	"new-spread":      "scheduler.new_spread",
	"day-learn-first": "scheduler.day_learn_first",
	"seed":            "scheduler.seed",
	"addr":            "server.addr",
	"repos-dir":       "repos_dir",
}

// RegisterFlags adds the overridable settings to fs. Only flags set on the
// command line take effect.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("db", d.Database.Path, "Path to the SQLite database file")
	fs.String("log-level", d.Log.Level, "Log level: debug, info, warn or error")
	fs.String("log-file", d.Log.File, "Also write logs to this rotated file")
	fs.Bool("debug", d.Log.Debug, "Enable debug logging with caller information")
	fs.Int("rollover-hour", d.Scheduler.RolloverHour, "Local hour at which a new study day starts")
	fs.String("timezone", d.Scheduler.Timezone, "IANA time zone for the day cutoff (default local)")
	fs.String("new-spread", d.Scheduler.NewSpread, "How new cards mix with reviews: distribute, last or first")
	fs.Bool("day-learn-first", d.Scheduler.DayLearnFirst, "Show day learning cards before reviews")
	fs.Uint64("seed", d.Scheduler.Seed, "Seed for the random source (0 uses the clock)")
	fs.String("addr", d.Server.Addr, "Address for the HTTP server")
	fs.String("repos-dir", d.ReposDir, "Directory for cloned git sources")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the config file at path, when it exists, then the environment
// and the flags in fs. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to stat config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if fs != nil {
		err := k.Load(posflag.ProviderWithFlag(fs, ".", nil, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		}), nil)
		if err != nil {
			return Config{}, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section, including the default deck config.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Scheduler.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location resolves the configured time zone; empty means local time.
func (s SchedulerConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// Options converts the section into scheduler options.
func (s SchedulerConfig) Options() scheduler.Options {
	return scheduler.Options{
		NewSpread:     queue.NewSpread(s.NewSpread),
		DayLearnFirst: s.DayLearnFirst,
		CollapseTime:  s.CollapseTime,
		QueueLimit:    s.QueueLimit,
		ReportLimit:   s.ReportLimit,
		FuzzBands:     s.FuzzBands,
	}
}
