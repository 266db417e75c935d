// Package skerr adds call-site context to errors. It is a thin layer over
// github.com/pkg/errors so that errors.Is and errors.As keep working through
// every wrap.
package skerr

import (
	"fmt"

	"github.com/pkg/errors"
)

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Wrap records the caller's stack on err if err does not carry one already.
// Returns nil if err is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var st stackTracer
	if errors.As(err, &st) {
		return err
	}
	return errors.WithStack(err)
}

// Wrapf prefixes err with the formatted message and records the caller's
// stack. Returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}

// Fmt is like fmt.Errorf but records the caller's stack.
func Fmt(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

// Unwrap returns the innermost error that was wrapped by this package or by
// github.com/pkg/errors.
func Unwrap(err error) error {
	return errors.Cause(err)
}

// StackTrace returns the "file:line" frames recorded on err, innermost
// first, or nil if no stack was recorded.
func StackTrace(err error) []string {
	var st stackTracer
	if !errors.As(err, &st) {
		return nil
	}
	frames := st.StackTrace()
	ret := make([]string, 0, len(frames))
	for _, f := range frames {
		ret = append(ret, fmt.Sprintf("%s:%d", f, f))
	}
	return ret
}
