package core

import "github.com/rs/zerolog"

type Log interface {
	Info() *zerolog.Event
	Debug() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
}

type logger struct {
	zl zerolog.Logger
}

func NewLogger(zl zerolog.Logger) Log {
	return &logger{zl: zl}
}

// NopLogger discards everything; handy for tests.
func NopLogger() Log {
	return &logger{zl: zerolog.Nop()}
}

func (l *logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *logger) Error() *zerolog.Event { return l.zl.Error() }
