// Package stdlogging implements sklogimpl.Logger on top of
// github.com/jcgregorio/logger, writing to stderr or stdout.
package stdlogging

import (
	logger "github.com/jcgregorio/logger"

	"go.skia.org/revgraph/go/sklog/sklogimpl"
)

type stdlog struct {
	logger *logger.Logger
}

// New returns a sklogimpl.Logger that writes to a SyncWriter, such as
// os.Stdout or os.Stderr. Debug lines are dropped unless includeDebug is set.
func New(dst logger.SyncWriter, includeDebug bool) sklogimpl.Logger {
	l := logger.NewFromOptions(&logger.Options{
		SyncWriter:   dst,
		DepthDelta:   3,
		IncludeDebug: includeDebug,
	})
	return &stdlog{
		logger: l,
	}
}

// Log implements sklogimpl.Logger.
func (s stdlog) Log(_ int, severity sklogimpl.Severity, format string, args ...interface{}) {
	plain := format == ""
	switch severity {
	case sklogimpl.Debug:
		if plain {
			s.logger.Debug(args...)
		} else {
			s.logger.Debugf(format, args...)
		}
	case sklogimpl.Info:
		if plain {
			s.logger.Info(args...)
		} else {
			s.logger.Infof(format, args...)
		}
	case sklogimpl.Warning:
		if plain {
			s.logger.Warning(args...)
		} else {
			s.logger.Warningf(format, args...)
		}
	case sklogimpl.Fatal:
		if plain {
			s.logger.Fatal(args...)
		} else {
			s.logger.Fatalf(format, args...)
		}
	default:
		if plain {
			s.logger.Error(args...)
		} else {
			s.logger.Errorf(format, args...)
		}
	}
}

// Flush implements sklogimpl.Logger. The underlying writer is synced on
// every line.
func (s stdlog) Flush() {}
