// Package logging provides the structured logger used throughout the
// scheduler core: a small Logger/Backend split with one named logger per
// package and package-level convenience functions bound to a default
// source, in the style used across the rest of this module's ambient
// stack.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Level is the log message severity level below which messages are
// suppressed.
type Level int32

const (
	// LevelDebug corresponds to debug messages.
	LevelDebug Level = iota
	// LevelInfo corresponds to informational messages.
	LevelInfo
	// LevelWarn corresponds to warning messages.
	LevelWarn
	// LevelError corresponds to error messages.
	LevelError
)

// LevelNames maps severity levels to names.
var LevelNames = map[Level]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
}

// Logger is the interface for producing log messages from a named source.
type Logger interface {
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	Fatal(format string, args ...interface{})
	Panic(format string, args ...interface{})

	DebugEnabled() bool
	Debug(format string, args ...interface{})

	// Stop detaches this logger from the registry, so a later Get for
	// the same source creates a fresh logger.
	Stop()
}

// Backend is an entity that can emit already-formatted log messages.
type Backend interface {
	Name() string
	Enabled(Level) bool
	Info(message string)
	Warn(message string)
	Error(message string)
	Debug(message string)
}

type logger struct {
	source string
	debug  bool
	prefix string
}

var (
	loggers  = map[string]*logger{}
	active   Backend
	level    = LevelInfo
	srcalign int
	debugAll bool
)

// Get returns the named logger, creating it if this is the first request
// for that source.
func Get(source string) Logger {
	source = strings.Trim(source, "[] ")
	if l, ok := loggers[source]; ok {
		return l
	}
	l := &logger{source: source, debug: debugAll}
	loggers[source] = l
	if active == nil {
		active = &fmtBackend{}
	}
	return l
}

// NewLogger is an alias for Get, kept for call sites that read better
// naming a fresh logger rather than looking one up.
func NewLogger(source string) Logger { return Get(source) }

// SetLevel changes the global suppression threshold for non-debug
// messages.
func SetLevel(l Level) { level = l }

// SetDebug toggles debug-level messages for every existing and future
// logger. The scheduler core has no per-source debug filtering need
// beyond "on during tests, off in the harness by default".
func SetDebug(enabled bool) {
	debugAll = enabled
	for _, l := range loggers {
		l.debug = enabled
	}
}

// SetBackend installs the backend used by every logger.
func SetBackend(b Backend) { active = b }

func (l *logger) Stop() { delete(loggers, l.source) }

func (l *logger) DebugEnabled() bool { return l.debug }

func (l *logger) formatMessage(format string, args ...interface{}) string {
	if len(l.source) > srcalign {
		srcalign = len(l.source)
		for _, o := range loggers {
			o.prefix = ""
		}
	}
	if l.prefix == "" {
		pad := srcalign - len(l.source)
		l.prefix = "[" + l.source + strings.Repeat(" ", pad) + "] "
	}
	return l.prefix + fmt.Sprintf(format, args...)
}

func (l *logger) Info(format string, args ...interface{}) {
	if level > LevelInfo {
		return
	}
	active.Info(l.formatMessage(format, args...))
}

func (l *logger) Warn(format string, args ...interface{}) {
	if level > LevelWarn {
		return
	}
	active.Warn(l.formatMessage(format, args...))
}

func (l *logger) Error(format string, args ...interface{}) {
	active.Error(l.formatMessage(format, args...))
}

func (l *logger) Fatal(format string, args ...interface{}) {
	active.Error(l.formatMessage(format, args...))
	os.Exit(1)
}

func (l *logger) Panic(format string, args ...interface{}) {
	msg := l.formatMessage(format, args...)
	active.Error(msg)
	panic(msg)
}

func (l *logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	active.Debug(l.formatMessage(format, args...))
}

// defLogger is bound lazily to the running binary's basename, matching
// the teacher's convention of naming the default logger after argv[0].
var defLogger Logger

func defaultLogger() Logger {
	if defLogger == nil {
		defLogger = Get(filepath.Base(os.Args[0]))
	}
	return defLogger
}

// Info emits an info message with the default source.
func Info(format string, args ...interface{}) { defaultLogger().Info(format, args...) }

// Warn emits a warning message with the default source.
func Warn(format string, args ...interface{}) { defaultLogger().Warn(format, args...) }

// Error emits an error message with the default source.
func Error(format string, args ...interface{}) { defaultLogger().Error(format, args...) }

// Fatal emits a fatal error message with the default source and exits.
func Fatal(format string, args ...interface{}) { defaultLogger().Fatal(format, args...) }

// Debug emits a debug message with the default source.
func Debug(format string, args ...interface{}) { defaultLogger().Debug(format, args...) }

// fmtBackend is the fallback backend, printing through fmt.Println.
type fmtBackend struct{}

var _ Backend = &fmtBackend{}

func (f *fmtBackend) Name() string { return "fmt" }

func (f *fmtBackend) Info(message string) { fmt.Println("I: " + message) }

func (f *fmtBackend) Warn(message string) { fmt.Println("W: " + message) }

func (f *fmtBackend) Error(message string) { fmt.Println("E: " + message) }

func (f *fmtBackend) Debug(message string) { fmt.Println("D: " + message) }

func (f *fmtBackend) Enabled(l Level) bool { return l >= level }

func init() {
	active = &fmtBackend{}
}
