// Package sklog defines the logging functions (e.g. Info, Errorf, etc.).
package sklog

import (
	"os"

	"go.skia.org/revgraph/go/sklog/sklogimpl"
	"go.skia.org/revgraph/go/sklog/stdlogging"
)

// SetLogger must run before anything logs; otherwise lines go nowhere.
func init() {
	sklogimpl.SetLogger(stdlogging.New(os.Stderr, false))
}

// SetDebug turns debug lines on or off for the stderr logger.
func SetDebug(includeDebug bool) {
	sklogimpl.SetLogger(stdlogging.New(os.Stderr, includeDebug))
}

// Debug, Info, Warning, Error, and Fatal use fmt.Sprint to format the
// arguments. Functions ending in f use fmt.Sprintf. Functions ending in
// WithDepth move the reported call site up the stack by depth frames.
func Debug(msg ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Debug, "", msg...)
}

func Debugf(format string, v ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Debug, format, v...)
}

func Info(msg ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Info, "", msg...)
}

func Infof(format string, v ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Info, format, v...)
}

func Warning(msg ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Warning, "", msg...)
}

func Warningf(format string, v ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Warning, format, v...)
}

func Error(msg ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Error, "", msg...)
}

func Errorf(format string, v ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Error, format, v...)
}

func ErrorfWithDepth(depth int, format string, v ...interface{}) {
	sklogimpl.Log(1+depth, sklogimpl.Error, format, v...)
}

// Fatal* exits the program after logging.
func Fatal(msg ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Fatal, "", msg...)
}

func Fatalf(format string, v ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Fatal, format, v...)
}

func Flush() {
	sklogimpl.Flush()
}
