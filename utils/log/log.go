// Package log is a thin leveled-logger facade over zerolog, matching the
// call shape `log.T/D/I/W/E/F.F(...)`/`.Ln(...)` used throughout this
// codebase's call sites.
package log

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level is a logging severity, ordered trace..fatal.
type Level int

const (
	Trace Level = iota
	Debug
	Info
	Warn
	Error
	Fatal
)

var names = map[string]Level{
	"trace": Trace,
	"debug": Debug,
	"info":  Info,
	"warn":  Warn,
	"error": Error,
	"fatal": Fatal,
}

// GetLevel parses a level name, defaulting to Info on an unrecognized value.
func GetLevel(s string) Level {
	if l, ok := names[s]; ok {
		return l
	}
	return Info
}

var base = zerolog.New(
	zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339},
).With().Timestamp().Logger()

// Logger wraps a zerolog.Logger at a fixed level.
type Logger struct {
	level zerolog.Level
}

func (l Logger) event() *zerolog.Event {
	switch l.level {
	case zerolog.TraceLevel:
		return base.Trace()
	case zerolog.DebugLevel:
		return base.Debug()
	case zerolog.WarnLevel:
		return base.Warn()
	case zerolog.ErrorLevel:
		return base.Error()
	case zerolog.FatalLevel:
		return base.Error() // never actually exits the process from a library call
	default:
		return base.Info()
	}
}

// F logs a printf-style message at this logger's level.
func (l Logger) F(format string, a ...any) { l.event().Msgf(format, a...) }

// Ln logs a space-joined message at this logger's level.
func (l Logger) Ln(a ...any) { l.event().Msg(fmt.Sprintln(a...)) }

// S logs a structured dump of its arguments at this logger's level, used for
// ad-hoc inspection of values during development.
func (l Logger) S(a ...any) { l.event().Interface("values", a).Send() }

// C logs the result of a closure, so the caller can avoid formatting a
// message unless this level is actually enabled.
func (l Logger) C(f func() string) {
	if e := l.event(); e.Enabled() {
		e.Msg(f())
	}
}

// T, D, I, W, E are the package-level leveled loggers used at call sites as
// log.T.F(...), log.I.Ln(...), etc. F is reserved for fatal-shaped messages
// that do not themselves terminate the process (callers decide that).
var (
	T = Logger{level: zerolog.TraceLevel}
	D = Logger{level: zerolog.DebugLevel}
	I = Logger{level: zerolog.InfoLevel}
	W = Logger{level: zerolog.WarnLevel}
	E = Logger{level: zerolog.ErrorLevel}
	F = Logger{level: zerolog.FatalLevel}
)

// SetLevel adjusts the global minimum level emitted by the base logger.
func SetLevel(l Level) {
	switch l {
	case Trace:
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case Debug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case Info:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case Warn:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case Error:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case Fatal:
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	}
}
