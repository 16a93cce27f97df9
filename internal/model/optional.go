package model

import (
	"bytes"
	"encoding/json"
)

type optState uint8

const (
	optAbsent optState = iota
	optSet
	optCleared
)

// Optional carries a value that may be absent, set, or explicitly cleared.
// Absent means "leave unchanged" and is the zero value, so a struct field
// missing from a JSON body decodes as absent.  A JSON null decodes as
// cleared, which writers translate into removing the stored field.
type Optional[T any] struct {
	state optState
	value T
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] { return Optional[T]{state: optSet, value: v} }

// Cleared returns an Optional that requests removal of the stored value.
func Cleared[T any]() Optional[T] { return Optional[T]{state: optCleared} }

// Get returns the value and whether one is set.
func (o Optional[T]) Get() (T, bool) { return o.value, o.state == optSet }

func (o Optional[T]) IsSet() bool     { return o.state == optSet }
func (o Optional[T]) IsCleared() bool { return o.state == optCleared }
func (o Optional[T]) IsAbsent() bool  { return o.state == optAbsent }

// ValueOr returns the held value or def when none is set.
func (o Optional[T]) ValueOr(def T) T {
	if o.state == optSet {
		return o.value
	}
	return def
}

// Ptr returns a pointer to a copy of the value, or nil when none is set.
func (o Optional[T]) Ptr() *T {
	if o.state != optSet {
		return nil
	}
	v := o.value
	return &v
}

// FromPtr maps nil to absent and anything else to a set Optional.
func FromPtr[T any](p *T) Optional[T] {
	if p == nil {
		return Optional[T]{}
	}
	return Some(*p)
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*o = Cleared[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if o.state != optSet {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}
