// Package logging wraps zerolog with subsystem-scoped child loggers.
//
// Subsystems nest: log.Sub("gateway").Sub("ws") tags lines with
// subsystem=gateway.ws.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a zerolog logger bound to a subsystem path.
type Logger struct {
	base      zerolog.Logger // fields added by With, without the subsystem
	subsystem string
	zl        zerolog.Logger
}

// Options selects where and how log lines are written.
type Options struct {
	Level string // "trace" | "debug" | "info" | "warn" | "error" | "fatal" | "silent"
	Style string // "pretty" | "json"
	File  string // optional path; lines are written as JSON in addition to the console
}

// New creates a root logger writing to w at level. A nil w means pretty
// console output on stderr.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = consoleWriter(os.Stderr)
	}
	base := zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
	return &Logger{base: base, zl: base}
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	return New(io.Discard, "silent")
}

// Open builds a root logger from Options. The returned closer releases the
// log file, if any, and is never nil.
func Open(opts Options) (*Logger, func() error, error) {
	var console io.Writer = os.Stderr
	if opts.Style != "json" {
		console = consoleWriter(os.Stderr)
	}

	if opts.File == "" {
		return New(console, opts.Level), func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	return New(zerolog.MultiLevelWriter(console, f), opts.Level), f.Close, nil
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
}

// Sub returns a child logger for a nested subsystem.
func (l *Logger) Sub(subsystem string) *Logger {
	path := subsystem
	if l.subsystem != "" {
		path = l.subsystem + "." + subsystem
	}
	return l.derive(l.base, path)
}

// With returns a child logger carrying an extra string field.
func (l *Logger) With(key, value string) *Logger {
	return l.derive(l.base.With().Str(key, value).Logger(), l.subsystem)
}

func (l *Logger) derive(base zerolog.Logger, subsystem string) *Logger {
	zl := base
	if subsystem != "" {
		zl = base.With().Str("subsystem", subsystem).Logger()
	}
	return &Logger{base: base, subsystem: subsystem, zl: zl}
}

// Subsystem returns the dotted subsystem path, empty for a root logger.
func (l *Logger) Subsystem() string { return l.subsystem }

func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// parseLevel maps a config level to zerolog. Unknown values mean info.
func parseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "silent" {
		return zerolog.Disabled
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
