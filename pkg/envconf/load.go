// Package envconf fills tagged struct fields from environment variables.
//
// A field tagged `env:"NAME"` is read from $NAME. Load treats every tagged
// variable as required unless the field also carries a `default:"..."` tag.
// Overlay only touches variables that are actually set, which makes it
// suitable for layering env overrides on top of a config file.
package envconf

import (
	"encoding"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"
)

var (
	ErrMissingRequired = errors.New("missing required environment variable")
	ErrUnsupportedType = errors.New("unsupported field type")
	ErrBadDestination  = errors.New("destination must be a non-nil pointer to a struct")
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load populates dst and fails on any tagged variable that is neither set nor
// defaulted.
func Load(dst any) error {
	return loader{strict: true}.fill(dst)
}

// Overlay populates dst from the variables that are set and leaves every other
// field untouched. Defaults are not applied.
func Overlay(dst any) error {
	return loader{}.fill(dst)
}

type loader struct {
	strict bool
}

func (l loader) fill(dst any) error {
	v := reflect.ValueOf(dst)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return ErrBadDestination
	}

	return l.fillStruct(v.Elem())
}

func (l loader) fillStruct(v reflect.Value) error {
	t := v.Type()

	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		err := l.field(sf, v.Field(i))
		if err != nil {
			return err
		}
	}

	return nil
}

func (l loader) field(sf reflect.StructField, fv reflect.Value) error {
	name := sf.Tag.Get("env")

	if name == "" || name == "-" {
		return l.nested(sf, fv)
	}

	raw, ok := os.LookupEnv(name)
	if !ok {
		if !l.strict {
			return nil
		}

		raw, ok = sf.Tag.Lookup("default")
		if !ok {
			return fmt.Errorf("%w: %s (field %q)", ErrMissingRequired, name, sf.Name)
		}
	}

	err := setValue(fv, raw)
	if err != nil {
		return fmt.Errorf("parse %q for field %q: %w", name, sf.Name, err)
	}

	return nil
}

// nested descends into untagged struct and pointer-to-struct fields. Nil
// pointers are only allocated by Load, so Overlay never invents sections.
func (l loader) nested(sf reflect.StructField, fv reflect.Value) error {
	switch {
	case fv.Kind() == reflect.Struct && fv.Type() != durationType:
	case fv.Kind() == reflect.Pointer && fv.Type().Elem().Kind() == reflect.Struct:
		if fv.IsNil() {
			if !l.strict {
				return nil
			}

			fv.Set(reflect.New(fv.Type().Elem()))
		}

		fv = fv.Elem()
	default:
		return nil
	}

	err := l.fillStruct(fv)
	if err != nil {
		return fmt.Errorf("load %q: %w", sf.Name, err)
	}

	return nil
}

func setValue(fv reflect.Value, raw string) error {
	if !fv.CanSet() {
		return fmt.Errorf("field not settable: %w", ErrUnsupportedType)
	}

	if fv.CanAddr() {
		u, ok := fv.Addr().Interface().(encoding.TextUnmarshaler)
		if ok {
			return u.UnmarshalText([]byte(raw))
		}
	}

	if fv.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parse duration: %w", err)
		}

		fv.SetInt(int64(d))

		return nil
	}

	var err error

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Bool:
		var b bool

		b, err = strconv.ParseBool(raw)
		fv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var n int64

		n, err = strconv.ParseInt(raw, 10, fv.Type().Bits())
		fv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var n uint64

		n, err = strconv.ParseUint(raw, 10, fv.Type().Bits())
		fv.SetUint(n)
	case reflect.Float32, reflect.Float64:
		var f float64

		f, err = strconv.ParseFloat(raw, fv.Type().Bits())
		fv.SetFloat(f)
	case reflect.Pointer:
		elem := reflect.New(fv.Type().Elem())

		err = setValue(elem.Elem(), raw)
		if err == nil {
			fv.Set(elem)
		}
	default:
		return fmt.Errorf("%s: %w", fv.Kind(), ErrUnsupportedType)
	}

	if err != nil {
		return fmt.Errorf("parse %s: %w", fv.Kind(), err)
	}

	return nil
}
