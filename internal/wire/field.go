package wire

import (
	"bytes"
	"encoding/json"
)

var jsonNull = []byte("null")

// Field is an optional value in a partial payload. It distinguishes a key
// that is absent (Set false), present as JSON null (Null true), and present
// with a value.
//
// Use it with the omitzero tag option so absent fields are not encoded.
type Field[T any] struct {
	Value T
	Set   bool
	Null  bool
}

// Some returns a Field holding v.
func Some[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

// Null returns a Field encoded as JSON null.
func Null[T any]() Field[T] {
	return Field[T]{Set: true, Null: true}
}

// FromPtr returns Some(*p), or an unset Field when p is nil.
func FromPtr[T any](p *T) Field[T] {
	if p == nil {
		return Field[T]{}
	}
	return Some(*p)
}

// Get returns the value and whether the field carries a non-null value.
func (f Field[T]) Get() (T, bool) {
	return f.Value, f.Set && !f.Null
}

// Ptr returns a pointer to a copy of the value, or nil when the field is
// absent or null.
func (f Field[T]) Ptr() *T {
	if !f.Set || f.Null {
		return nil
	}
	v := f.Value
	return &v
}

// IsZero reports whether the field is absent. Used by omitzero.
func (f Field[T]) IsZero() bool {
	return !f.Set
}

// MarshalJSON implements json.Marshaler.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.Null {
		return jsonNull, nil
	}
	return json.Marshal(f.Value)
}

// UnmarshalJSON implements json.Unmarshaler. It is only invoked for keys
// present in the input, so reaching it marks the field as set.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	var zero T
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		f.Null = true
		f.Value = zero
		return nil
	}
	f.Null = false
	f.Value = zero
	return json.Unmarshal(data, &f.Value)
}
