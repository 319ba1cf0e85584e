// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	EnvLevel  = "GNSSD_LOG_LEVEL"
	EnvFormat = "GNSSD_LOG_FORMAT"
)

type Config struct {
	Level  string
	Format string // console | json

	// Out defaults to stderr.
	Out io.Writer
	// Tee, when set, also receives every line in plain console form
	// (e.g. the web log buffer).
	Tee io.Writer

	File FileConfig
}

// FileConfig adds a size-rotated JSON log file when Path is set.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func (f FileConfig) writer() io.Writer {
	size := f.MaxSizeMB
	if size <= 0 {
		size = 20
	}
	return &lumberjack.Logger{
		Filename:   f.Path,
		MaxSize:    size,
		MaxBackups: f.MaxBackups,
		MaxAge:     f.MaxAgeDays,
		Compress:   f.Compress,
	}
}

// Configure builds the logger, installs it as the global zerolog logger and
// routes the standard library logger through it. Environment variables
// override cfg.
func Configure(cfg Config) (zerolog.Logger, error) {
	if v := strings.TrimSpace(os.Getenv(EnvLevel)); v != "" {
		cfg.Level = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvFormat)); v != "" {
		cfg.Format = v
	}

	level := zerolog.InfoLevel
	if s := strings.ToLower(strings.TrimSpace(cfg.Level)); s != "" {
		l, err := zerolog.ParseLevel(s)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("log level: %w", err)
		}
		level = l
	}

	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}

	var primary io.Writer
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "console":
		primary = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case "json":
		primary = out
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", cfg.Format)
	}

	writers := []io.Writer{primary}
	if cfg.Tee != nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: cfg.Tee, NoColor: true, TimeFormat: time.RFC3339})
	}
	if strings.TrimSpace(cfg.File.Path) != "" {
		writers = append(writers, cfg.File.writer())
	}
	w := primary
	if len(writers) > 1 {
		w = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	zerolog.SetGlobalLevel(level)

	stdlog.SetFlags(0)
	stdlog.SetOutput(logger.With().Str("component", "stdlog").Logger())
	return logger, nil
}
