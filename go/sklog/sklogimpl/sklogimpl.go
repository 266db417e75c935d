// Package sklogimpl holds the process-wide logger used by package sklog.
// Packages other than sklog and the Logger implementations should not
// import it.
package sklogimpl

import (
	"fmt"
	"sync"
)

// Severity is the level of a log line.
type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
	Fatal
)

// String returns the name of the severity, e.g. "WARNING".
func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// Logger is the interface a logging backend must implement.
type Logger interface {
	// Log writes one line. depth is the number of stack frames between the
	// original caller and Log. If format is empty, args are formatted with
	// fmt.Sprint, otherwise with fmt.Sprintf.
	Log(depth int, severity Severity, format string, args ...interface{})

	// Flush writes out any buffered lines.
	Flush()
}

var (
	mtx    sync.RWMutex
	logger Logger
)

// SetLogger replaces the process-wide Logger.
func SetLogger(l Logger) {
	mtx.Lock()
	defer mtx.Unlock()
	logger = l
}

// Log sends a line to the current Logger.
func Log(depth int, severity Severity, format string, args ...interface{}) {
	mtx.RLock()
	l := logger
	mtx.RUnlock()
	if l == nil {
		return
	}
	l.Log(depth+1, severity, format, args...)
}

// Flush flushes the current Logger.
func Flush() {
	mtx.RLock()
	l := logger
	mtx.RUnlock()
	if l != nil {
		l.Flush()
	}
}
