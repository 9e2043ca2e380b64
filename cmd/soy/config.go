package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	soy "github.com/archimag/soy-go"
	"github.com/archimag/soy-go/loader"
)

// Config holds the settings shared by all commands.
type Config struct {
	Templates      string `mapstructure:"templates"`
	Data           string `mapstructure:"data"`
	Debug          bool   `mapstructure:"debug"`
	Verbose        bool   `mapstructure:"verbose"`
	Fuel           uint64 `mapstructure:"fuel"`
	RecursionLimit int    `mapstructure:"recursion_limit"`
}

var boundFlags = []string{"templates", "data", "debug", "verbose", "fuel", "recursion-limit"}

// loadConfig merges defaults, the config file, SOY_* variables and the
// flags that were set on the command line.
func loadConfig(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("templates", "templates")
	v.SetDefault("data", "")
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)
	v.SetDefault("fuel", 0)
	v.SetDefault("recursion_limit", soy.DefaultRecursionLimit)

	if file, _ := flags.GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("soy")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SOY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, name := range boundFlags {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(strings.ReplaceAll(name, "-", "_"), f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Templates == "" {
		return nil, errors.New("no templates directory configured")
	}
	if cfg.RecursionLimit <= 0 {
		return nil, fmt.Errorf("recursion limit must be positive, got %d", cfg.RecursionLimit)
	}
	return &cfg, nil
}

func newLogger(cfg *Config) (*zap.Logger, error) {
	if cfg.Verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newEnvironment builds an environment with every template below
// cfg.Templates registered.
func newEnvironment(cfg *Config, logger *zap.Logger) (*soy.Environment, error) {
	env := soy.NewEnvironment()
	env.SetLogger(logger)
	env.SetRecursionLimit(cfg.RecursionLimit)
	env.SetFuel(cfg.Fuel)
	env.SetDebug(cfg.Debug)

	names, err := loader.LoadDir(env, cfg.Templates)
	if err != nil {
		return nil, err
	}
	logger.Debug("templates loaded", zap.String("dir", cfg.Templates), zap.Int("count", len(names)))
	return env, nil
}
