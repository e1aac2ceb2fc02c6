// Package config provides configuration types and defaults for the ledger
// commands.
//
// Values come from, in increasing priority: Defaults, the ledger.yaml
// config file, LEDGER_* environment variables (LEDGER_LOG_LEVEL for
// log.level) and command-line flags bound by the cli package.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/ledger/internal/ident"
)

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "LEDGER"

// Config holds all configuration options.
type Config struct {
	// Authority signs batches submitted from the command line.
	Authority string `mapstructure:"authority"`
	// Database is the SQLite block store path.
	Database string `mapstructure:"database"`
	// Genesis is a genesis file. Empty means the built-in default genesis.
	Genesis string `mapstructure:"genesis"`
	// Listen is the address `ledger serve` binds for /metrics and /status.
	Listen string `mapstructure:"listen"`

	Log      LogConfig      `mapstructure:"log"`
	Trigger  TriggerConfig  `mapstructure:"trigger"`
	Executor ExecutorConfig `mapstructure:"executor"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn or error
	Format string `mapstructure:"format"` // text or json
}

// TriggerConfig bounds trigger cascades per batch.
type TriggerConfig struct {
	MaxSteps int `mapstructure:"max_steps"`
	MaxDepth int `mapstructure:"max_depth"`
}

type ExecutorConfig struct {
	ImplicitAssetOnMint bool `mapstructure:"implicit_asset_on_mint"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Authority: "alice@wonderland",
		Database:  "ledger.db",
		Listen:    "127.0.0.1:9464",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Trigger: TriggerConfig{
			MaxSteps: 256,
			MaxDepth: 16,
		},
	}
}

// SetDefaults registers every key of Defaults on v. Environment variables
// are only seen for keys viper knows about, so this runs before Load.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("authority", d.Authority)
	v.SetDefault("database", d.Database)
	v.SetDefault("genesis", d.Genesis)
	v.SetDefault("listen", d.Listen)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("trigger.max_steps", d.Trigger.MaxSteps)
	v.SetDefault("trigger.max_depth", d.Trigger.MaxDepth)
	v.SetDefault("executor.implicit_asset_on_mint", d.Executor.ImplicitAssetOnMint)
}

// New returns a viper instance with defaults and environment binding set
// up. cfgFile, when not empty, is the only config file read. Otherwise
// ledger.yaml is looked up in the working directory and then in
// ~/.config/ledger. A missing config file is not an error.
func New(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("ledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "ledger"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

// Load unmarshals v and validates the result.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail far from their source.
func (c Config) Validate() error {
	if _, err := ident.ParseAccountID(c.Authority); err != nil {
		return fmt.Errorf("invalid config: authority: %w", err)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid config: log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Trigger.MaxSteps <= 0 {
		return fmt.Errorf("invalid config: trigger.max_steps must be positive, got %d", c.Trigger.MaxSteps)
	}
	if c.Trigger.MaxDepth <= 0 {
		return fmt.Errorf("invalid config: trigger.max_depth must be positive, got %d", c.Trigger.MaxDepth)
	}
	return nil
}

// AuthorityID returns the parsed authority. Call it on a validated Config.
func (c Config) AuthorityID() ident.AccountID {
	id, err := ident.ParseAccountID(c.Authority)
	if err != nil {
		return ident.AccountID{}
	}
	return id
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}
