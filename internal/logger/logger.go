// Package logger configures the process-wide zerolog logger and exposes
// printf-style helpers on top of it.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls log level, format and the optional rotating file sink.
type Config struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=console json"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
}

// DefaultConfig logs info and above to the console.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 30,
	}
}

// Init replaces the global logger. It is called once at startup.
func Init(cfg Config) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}
	}
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, file)
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// SetOutput redirects the global logger, mostly for tests.
func SetOutput(w io.Writer) {
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// Logger returns the global logger for callers that want structured fields.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// FromContext returns the logger attached to ctx, or the global logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return Logger()
}

func Debug(v ...any) {
	log.Debug().Msg(fmt.Sprint(v...))
}

func Debugf(format string, v ...any) {
	log.Debug().Msgf(format, v...)
}

func Info(v ...any) {
	log.Info().Msg(fmt.Sprint(v...))
}

func Infof(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func Warn(v ...any) {
	log.Warn().Msg(fmt.Sprint(v...))
}

func Warnf(format string, v ...any) {
	log.Warn().Msgf(format, v...)
}

func Error(v ...any) {
	log.Error().Msg(fmt.Sprint(v...))
}

func Errorf(format string, v ...any) {
	log.Error().Msgf(format, v...)
}

// Fatal logs and exits the process.
func Fatal(v ...any) {
	log.Fatal().Msg(fmt.Sprint(v...))
}

func Fatalf(format string, v ...any) {
	log.Fatal().Msgf(format, v...)
}
