package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
)

// Optional records whether a JSON field was present in the input, so that a
// legitimately empty value can be told apart from an omitted one.
type Optional[T any] struct {
	val  T
	set  bool
	null bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{val: v, set: true}
}

// Get returns the value and whether it was present with a non-null value.
func (o Optional[T]) Get() (T, bool) {
	if !o.set || o.null {
		var zero T
		return zero, false
	}
	return o.val, true
}

// OrElse returns the value, or def when absent.
func (o Optional[T]) OrElse(def T) T {
	if v, ok := o.Get(); ok {
		return v
	}
	return def
}

// IsSet reports whether the field appeared in the input, including as null.
func (o Optional[T]) IsSet() bool { return o.set }

// IsNull reports whether the field appeared as an explicit JSON null.
func (o Optional[T]) IsNull() bool { return o.null }

// IsZero lets `omitzero` drop absent fields when marshalling.
func (o Optional[T]) IsZero() bool { return !o.set }

// Value implements driver.Valuer so validation rules see the wrapped value
// (or nil when absent).
func (o Optional[T]) Value() (driver.Value, error) {
	v, ok := o.Get()
	if !ok {
		return nil, nil
	}
	return any(v), nil
}

// MarshalJSON implements json.Marshaler.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.set || o.null {
		return []byte("null"), nil
	}
	return json.Marshal(o.val)
}

// UnmarshalJSON implements json.Unmarshaler. It is only invoked for keys that
// are present in the document.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.val, o.null = zero, true
		return nil
	}
	o.null = false
	return json.Unmarshal(data, &o.val)
}
