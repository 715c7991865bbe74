// Package logging configures the global zerolog logger for the Quorum CLI
// and daemon: human-readable console output on stderr, with an optional
// JSON file sink for persistent troubleshooting.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls logger setup.
type Config struct {
	// Level is the minimum level: "debug", "info", "warn", "error".
	Level string

	// FilePath, when non-empty, additionally writes JSON log lines to this
	// file (created along with its directory).
	FilePath string

	// Console disables the pretty stderr writer when false, emitting JSON
	// to stderr instead. Daemon mode wants machine-readable output.
	Console bool
}

// DefaultConfig returns interactive-use defaults.
func DefaultConfig() *Config {
	return &Config{Level: "info", Console: true}
}

// Setup configures the global zerolog logger. Returns a close function for
// the file sink; it is a no-op when no file is configured.
func Setup(cfg *Config) (func() error, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		writers = append(writers, os.Stderr)
	}

	closeFn := func() error { return nil }
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		writers = append(writers, f)
		closeFn = f.Close
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()

	return closeFn, nil
}
