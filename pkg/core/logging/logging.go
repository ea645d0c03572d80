// Package logging builds the structured logger shared by the pipeline packages.
package logging

import (
	"io"
	"os"

	"github.com/phuslu/log"
)

// Config selects level and output format.
type Config struct {
	Level  string `yaml:"level" envconfig:"LEVEL" validate:"omitempty,oneof=trace debug info warn error fatal panic"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"omitempty,oneof=console json"`
}

// New returns a logger writing to stderr.
func New(cfg Config) *log.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter returns a logger writing to w.
// "console" renders human-readable lines; anything else emits JSON.
func NewWithWriter(cfg Config, w io.Writer) *log.Logger {
	level := cfg.Level
	if level == "" {
		level = "info"
	}

	logger := &log.Logger{
		Level:      log.ParseLevel(level),
		TimeFormat: "15:04:05",
	}
	if cfg.Format == "console" {
		logger.Writer = &log.ConsoleWriter{Writer: w, ColorOutput: false, QuoteString: true, EndWithMessage: true}
	} else {
		logger.TimeFormat = ""
		logger.Writer = &log.IOWriter{Writer: w}
	}
	return logger
}

// Nop returns a logger that discards everything. Used as the default when
// callers do not inject one.
func Nop() *log.Logger {
	return &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l *log.Logger) *log.Logger {
	if l == nil {
		return Nop()
	}
	return l
}
