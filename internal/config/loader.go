// Package config loads the server configuration from config.yaml and
// RESTFILTER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rpattn/restfilter/internal/db"
	"github.com/rpattn/restfilter/internal/domain"
	"github.com/rpattn/restfilter/internal/logger"
	"github.com/rpattn/restfilter/internal/schema/validator"
)

// EnvPrefix namespaces environment overrides, e.g. RESTFILTER_DATABASE_HOST.
const EnvPrefix = "RESTFILTER"

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config is the full process configuration
type Config struct {
	Driver         string           `mapstructure:"driver" validate:"required,oneof=memory postgres"`
	MigrationsPath string           `mapstructure:"migrations_path"`
	Introspect     bool             `mapstructure:"introspect"`
	Server         ServerConfig     `mapstructure:"server"`
	Database       db.Config        `mapstructure:"database"`
	Log            logger.Config    `mapstructure:"log"`
	Encryption     EncryptionConfig `mapstructure:"encryption"`
	// Entities are validated when registered, after optional introspection.
	Entities []domain.EntitySchema `mapstructure:"entities" validate:"-"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr" validate:"required"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// EncryptionConfig holds the symmetric key for encrypted columns. An empty
// key stores encrypted columns in clear text.
type EncryptionConfig struct {
	Key string `mapstructure:"key"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Driver:         DriverMemory,
		MigrationsPath: "./migrations",
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Database: db.DefaultConfig(),
		Log:      logger.DefaultConfig(),
	}
}

// Load reads config.yaml from configPath, applies environment overrides
// and validates the result. A missing file is not an error.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		logger.Infof("no config.yaml found in %s, using defaults and env vars", configPath)
	} else {
		logger.Infof("loaded %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct tags and the rules spanning several sections.
func Validate(cfg Config) error {
	if err := validator.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Introspect && cfg.Driver != DriverPostgres {
		return errors.New("invalid configuration: introspect requires the postgres driver")
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("driver", cfg.Driver)
	v.SetDefault("migrations_path", cfg.MigrationsPath)
	v.SetDefault("introspect", cfg.Introspect)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", cfg.Server.IdleTimeout)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)

	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.dbname", cfg.Database.DBName)
	v.SetDefault("database.sslmode", cfg.Database.SSLMode)
	v.SetDefault("database.max_conns", cfg.Database.MaxConns)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age_days", cfg.Log.MaxAgeDays)

	v.SetDefault("encryption.key", cfg.Encryption.Key)
}
