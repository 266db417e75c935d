// Package config loads JSON5 configuration files into structs.
package config

import (
	"io"
	"reflect"
	"time"

	"github.com/flynn/json5"

	"go.skia.org/revgraph/go/skerr"
	"go.skia.org/revgraph/go/util"
)

// Duration allows us to supply a duration as a human readable string, e.g.
// "5s" or "1m30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return skerr.Wrapf(err, "parsing duration %q", string(text))
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadFromJSON5 reads the contents of each path, in order, and decodes the
// JSON5 there into dst, so later files override earlier ones. dst is
// expected to be a pointer to a struct with "json" struct tags for all
// fields. An error will be returned if any non-struct, non-bool field is its
// zero value *unless* it is tagged with `optional:"true"`.
func LoadFromJSON5(dst interface{}, paths ...string) error {
	rType := reflect.TypeOf(dst)
	if rType.Kind() != reflect.Ptr || rType.Elem().Kind() != reflect.Struct {
		return skerr.Fmt("Input must be a pointer to a struct, got %T", dst)
	}
	if len(paths) == 0 {
		return skerr.Fmt("at least one config path is required")
	}
	for _, path := range paths {
		err := util.WithReadFile(path, func(r io.Reader) error {
			return json5.NewDecoder(r).Decode(dst)
		})
		if err != nil {
			return skerr.Wrapf(err, "reading config at %s", path)
		}
	}
	return checkRequired(reflect.Indirect(reflect.ValueOf(dst)))
}

// checkRequired returns an error if any non-struct, non-bool fields of the given value have a zero
// value *unless* they have an optional tag with value true.
func checkRequired(rValue reflect.Value) error {
	rType := rValue.Type()
	for i := 0; i < rValue.NumField(); i++ {
		field := rType.Field(i)
		if field.Type.Kind() == reflect.Struct {
			if field.Tag.Get("optional") == "true" {
				continue
			}
			if err := checkRequired(rValue.Field(i)); err != nil {
				return err
			}
			continue
		}
		if field.Type.Kind() == reflect.Bool {
			// For ease of use, booleans aren't compared against their zero value, since that would
			// effectively make them required to be true always.
			continue
		}
		if field.Tag.Get("json") == "" {
			// don't validate struct values w/o json tags (e.g. Duration.Duration).
			continue
		}
		if field.Tag.Get("optional") == "true" {
			continue
		}
		if rValue.Field(i).IsZero() {
			return skerr.Fmt("Required %s to be non-zero", field.Name)
		}
	}
	return nil
}
