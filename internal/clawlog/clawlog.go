// Package clawlog wraps the standard library logger with named, prefixed
// sub-loggers, matching the bracket-prefixed log.Logger idiom used
// throughout the gateway's observability tooling (e.g.
// "[TracingService] ..."). It intentionally does not reach for a
// structured logging library — see DESIGN.md for why stdlib log is kept
// here rather than swapped for one.
package clawlog

import (
	"io"
	"log"
	"os"
	"sync"
)

var (
	mu     sync.Mutex
	output io.Writer = os.Stderr
)

// SetOutput redirects every future Named logger to w. Intended for
// process entry-point configuration and tests; not for per-request use.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// Logger is a thin leveled wrapper around *log.Logger.
type Logger struct {
	*log.Logger
	name string
}

// Named returns a logger prefixed with "[name] ", in the bracket-prefixed
// log.New(w, "[Name] ", log.LstdFlags|log.Lmsgprefix) idiom used
// throughout the gateway.
func Named(name string) *Logger {
	mu.Lock()
	w := output
	mu.Unlock()
	return &Logger{
		Logger: log.New(w, "["+name+"] ", log.LstdFlags|log.Lmsgprefix),
		name:   name,
	}
}

// Debugf, Infof, Warnf, Errorf all delegate to the underlying *log.Logger
// with a level tag; the gateway does not filter by level at the logger
// layer (verbosity is controlled by what call sites choose to log).
func (l *Logger) Debugf(format string, args ...any) { l.Printf("DEBUG "+format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.Printf("INFO "+format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.Printf("WARN "+format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.Printf("ERROR "+format, args...) }
