// Package logging provides the thin stdlib-log wrapper used across relayhub.
package logging

import (
	"log"
	"os"
)

// Logger tags every line with a component prefix. No rotation: the relay
// runs under a process supervisor that owns its own stdout.
type Logger struct {
	l *log.Logger
}

// New returns a Logger that writes to stderr, tagged with prefix.
func New(prefix string) *Logger {
	return &Logger{l: log.New(os.Stderr, "["+prefix+"] ", log.LstdFlags)}
}

func (lg *Logger) Info(format string, args ...any) {
	lg.l.Printf("INFO "+format, args...)
}

func (lg *Logger) Warn(format string, args ...any) {
	lg.l.Printf("WARN "+format, args...)
}

func (lg *Logger) Error(format string, args ...any) {
	lg.l.Printf("ERROR "+format, args...)
}
