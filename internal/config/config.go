package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"busybee/internal/database"
	"busybee/internal/logger"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"

	defaultFilePath = "./database.sqlite"
)

type Config struct {
	App      AppConfig       `mapstructure:"app" yaml:"app"`
	Server   ServerConfig    `mapstructure:"server" yaml:"server"`
	Database database.Config `mapstructure:"database" yaml:"database"`
	Log      LogConfig       `mapstructure:"log" yaml:"log"`
}

type AppConfig struct {
	Env string `mapstructure:"env" yaml:"env"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"app.env":                 "APP_ENV",
	"server.port":             "PORT",
	"server.shutdown_timeout": "SHUTDOWN_TIMEOUT",
	"database.driver":         "DATABASE_DRIVER",
	"database.path":           "DATABASE_PATH",
	"database.busy_timeout":   "DATABASE_BUSY_TIMEOUT",
	"log.level":               "LOG_LEVEL",
}

// Load reads defaults, then the optional YAML file at path, then the
// environment. The database path defaults to an in-memory store when the
// app runs in test mode.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("app.env", EnvDevelopment)
	v.SetDefault("server.port", 4001)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("database.driver", database.DriverCGO)
	v.SetDefault("database.busy_timeout", 5*time.Second)
	v.SetDefault("log.level", "info")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	cfg.App.Env = strings.ToLower(strings.TrimSpace(cfg.App.Env))
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDatabasePath(cfg.App.Env)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func DefaultDatabasePath(env string) string {
	if env == EnvTest {
		return database.MemoryLocation
	}
	return defaultFilePath
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case database.DriverCGO, database.DriverPure:
	default:
		errs = append(errs, fmt.Errorf("config: unknown database driver %q", c.Database.Driver))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: server port %d out of range", c.Server.Port))
	}
	if c.Database.BusyTimeout <= 0 {
		errs = append(errs, errors.New("config: database busy timeout must be positive"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("config: server shutdown timeout must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func (c *Config) Logger() logger.Config {
	return logger.Config{
		Level:        logger.ParseLevel(c.Log.Level),
		IsProduction: c.IsProduction(),
	}
}
