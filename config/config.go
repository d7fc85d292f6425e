package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

// EnvPrefix is the prefix of environment overrides, e.g. SAMSON_PORT
const EnvPrefix = "SAMSON"

// ErrInvalidConfig is returned when a loaded value is out of range
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	Port         int           `config:"port"`
	Workers      int           `config:"workers"`
	ReadTimeout  time.Duration `config:"read.timeout"`
	WriteTimeout time.Duration `config:"write.timeout"`
	NotFoundPage string        `config:"not.found.page"`
	MaxConns     int           `config:"max.conns"`
	Env          string        `config:"env"`
	ConfigFile   string        `config:"-"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Port:         8080,
		Workers:      10,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 10 * time.Second,
		NotFoundPage: "404.html",
		Env:          "development",
	}
}

// Load builds the configuration from args (without the program name).
// Later sources win: defaults, the -config JSON file, flags given on the
// command line, then SAMSON_* environment variables.
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("samson", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "TCP port to listen on")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of worker goroutines")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "Time allowed to receive a request (0 disables)")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Time allowed to send a response (0 disables)")
	fs.StringVar(&cfg.NotFoundPage, "not-found-page", cfg.NotFoundPage, "File served with 404 responses")
	fs.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "Maximum open connections (0 means unlimited)")
	fs.StringVar(&cfg.Env, "env", cfg.Env, "Environment (development/production)")
	fs.StringVar(&cfg.ConfigFile, "config", "", "Optional JSON configuration file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.ConfigFile != "" {
		file := NewManager()
		if err := file.LoadFromJSON(cfg.ConfigFile); err != nil {
			return nil, err
		}
		// Flags given explicitly beat the file
		fs.Visit(func(f *flag.Flag) {
			file.Delete(strings.ReplaceAll(f.Name, "-", "."))
		})
		if err := file.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("config file %s: %w", cfg.ConfigFile, err)
		}
	}

	env := NewManager()
	env.LoadFromEnv(EnvPrefix)
	if err := env.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges. The worker count is left to the server, which
// rejects it when listening.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("%w: max-conns %d is negative", ErrInvalidConfig, c.MaxConns)
	}
	return nil
}

// IsProduction reports whether Env is production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
