package telemetry

import (
	"time"

	"github.com/rs/zerolog"
)

type fieldKind uint8

const (
	kindString fieldKind = iota
	kindInt
	kindBool
	kindFloat
	kindDuration
	kindError
	kindAny
)

// Field is a typed key/value pair attached to a log entry
type Field struct {
	Key  string
	kind fieldKind
	str  string
	num  int64
	flt  float64
	err  error
	val  any
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, kind: kindString, str: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, kind: kindInt, num: int64(value)}
}

// Int64 creates a 64-bit integer field
func Int64(key string, value int64) Field {
	return Field{Key: key, kind: kindInt, num: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	f := Field{Key: key, kind: kindBool}
	if value {
		f.num = 1
	}
	return f
}

// Float64 creates a float field
func Float64(key string, value float64) Field {
	return Field{Key: key, kind: kindFloat, flt: value}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, kind: kindDuration, num: int64(value)}
}

// Err creates an "error" field
func Err(err error) Field {
	return Field{Key: zerolog.ErrorFieldName, kind: kindError, err: err}
}

// Any creates a field serialized by reflection
func Any(key string, value any) Field {
	return Field{Key: key, kind: kindAny, val: value}
}

func (f Field) apply(e *zerolog.Event) {
	switch f.kind {
	case kindString:
		e.Str(f.Key, f.str)
	case kindInt:
		e.Int64(f.Key, f.num)
	case kindBool:
		e.Bool(f.Key, f.num == 1)
	case kindFloat:
		e.Float64(f.Key, f.flt)
	case kindDuration:
		e.Dur(f.Key, time.Duration(f.num))
	case kindError:
		e.AnErr(f.Key, f.err)
	default:
		e.Interface(f.Key, f.val)
	}
}

func (f Field) context(c zerolog.Context) zerolog.Context {
	switch f.kind {
	case kindString:
		return c.Str(f.Key, f.str)
	case kindInt:
		return c.Int64(f.Key, f.num)
	case kindBool:
		return c.Bool(f.Key, f.num == 1)
	case kindFloat:
		return c.Float64(f.Key, f.flt)
	case kindDuration:
		return c.Dur(f.Key, time.Duration(f.num))
	case kindError:
		return c.AnErr(f.Key, f.err)
	default:
		return c.Interface(f.Key, f.val)
	}
}
