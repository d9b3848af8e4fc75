// Package value provides NormalizedValue, the immutable wrapper around a raw
// field value read from either side of a sync. Two values are compared by
// their normalized form only, so "Bob@Example.com " and "bob@example.com"
// are the same email.
package value

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/agentstation/syncbridge/pkg/errors"
)

// Type names the normalization applied to a raw value.
type Type string

// String returns the string representation of a value type.
func (t Type) String() string {
	return string(t)
}

// Supported value types.
const (
	TypeString    Type = "string"
	TypeText      Type = "text"
	TypeInt       Type = "int"
	TypeFloat     Type = "float"
	TypeBoolean   Type = "boolean"
	TypeDateTime  Type = "datetime"
	TypeDate      Type = "date"
	TypeEmail     Type = "email"
	TypeURL       Type = "url"
	TypePhone     Type = "phone"
	TypeReference Type = "reference"
)

// Types lists every supported value type.
func Types() []Type {
	return []Type{
		TypeString, TypeText, TypeInt, TypeFloat, TypeBoolean, TypeDateTime,
		TypeDate, TypeEmail, TypeURL, TypePhone, TypeReference,
	}
}

// IsValid reports whether the type is supported.
func (t Type) IsValid() bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}
	return false
}

// NormalizedValue pairs a raw value with its type-normalized form.
type NormalizedValue struct {
	typ        Type
	original   any
	normalized any
}

// New normalizes original according to typ.
func New(typ Type, original any) (NormalizedValue, error) {
	normalized, err := normalize(typ, original)
	if err != nil {
		return NormalizedValue{}, err
	}
	return NormalizedValue{typ: typ, original: original, normalized: normalized}, nil
}

// Must is like New but panics on error. Intended for fixtures and constants.
func Must(typ Type, original any) NormalizedValue {
	v, err := New(typ, original)
	if err != nil {
		panic(err)
	}
	return v
}

// String is shorthand for a string-typed value.
func String(s string) NormalizedValue {
	return Must(TypeString, s)
}

// Type returns the value type.
func (v NormalizedValue) Type() Type {
	return v.typ
}

// Original returns the raw value as read from its system.
func (v NormalizedValue) Original() any {
	return v.original
}

// Normalized returns the comparable form.
func (v NormalizedValue) Normalized() any {
	return v.normalized
}

// IsNil reports whether the value carries no data.
func (v NormalizedValue) IsNil() bool {
	return v.normalized == nil
}

// Equal compares two values by type and normalized form.
func (v NormalizedValue) Equal(other NormalizedValue) bool {
	if v.typ != other.typ {
		return false
	}
	if a, ok := v.normalized.(time.Time); ok {
		b, ok := other.normalized.(time.Time)
		return ok && a.Equal(b)
	}
	return reflect.DeepEqual(v.normalized, other.normalized)
}

// String renders the normalized form for logs and notifications.
func (v NormalizedValue) String() string {
	switch n := v.normalized.(type) {
	case nil:
		return "<nil>"
	case time.Time:
		if v.typ == TypeDate {
			return n.Format(time.DateOnly)
		}
		return n.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", n)
	}
}

func normalize(typ Type, original any) (any, error) {
	if original == nil {
		if !typ.IsValid() {
			return nil, errors.NewValidationError("type", typ, "unsupported value type")
		}
		return nil, nil
	}

	switch typ {
	case TypeString, TypeText, TypeURL, TypeReference:
		s, err := cast.ToStringE(original)
		if err != nil {
			return nil, errors.WrapValidation(typ.String(), err)
		}
		return strings.TrimSpace(s), nil
	case TypeEmail:
		s, err := cast.ToStringE(original)
		if err != nil {
			return nil, errors.WrapValidation(typ.String(), err)
		}
		return strings.ToLower(strings.TrimSpace(s)), nil
	case TypePhone:
		s, err := cast.ToStringE(original)
		if err != nil {
			return nil, errors.WrapValidation(typ.String(), err)
		}
		return normalizePhone(s), nil
	case TypeInt:
		i, err := cast.ToInt64E(original)
		if err != nil {
			return nil, errors.WrapValidation(typ.String(), err)
		}
		return i, nil
	case TypeFloat:
		f, err := cast.ToFloat64E(original)
		if err != nil {
			return nil, errors.WrapValidation(typ.String(), err)
		}
		return f, nil
	case TypeBoolean:
		b, err := cast.ToBoolE(original)
		if err != nil {
			return nil, errors.WrapValidation(typ.String(), err)
		}
		return b, nil
	case TypeDateTime:
		t, err := cast.ToTimeE(original)
		if err != nil {
			return nil, errors.WrapValidation(typ.String(), err)
		}
		return t.UTC(), nil
	case TypeDate:
		t, err := cast.ToTimeE(original)
		if err != nil {
			return nil, errors.WrapValidation(typ.String(), err)
		}
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	default:
		return nil, errors.NewValidationError("type", typ, "unsupported value type")
	}
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		if r >= '0' && r <= '9' || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
