package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Ref is a field that arrives either as a bare identifier or as the
// embedded object it points to. ID is the only way callers read it.
type Ref[T any] struct {
	id       string
	embedded *T
}

func Reference[T any](id string) Ref[T] { return Ref[T]{id: id} }

func Embedded[T any](id string, v T) Ref[T] { return Ref[T]{id: id, embedded: &v} }

// ID normalizes both shapes to the identifier.
func (r Ref[T]) ID() string { return r.id }

// Object returns the embedded value when the field carried one.
func (r Ref[T]) Object() (T, bool) {
	if r.embedded == nil {
		var zero T
		return zero, false
	}
	return *r.embedded, true
}

func (r Ref[T]) IsZero() bool { return r.id == "" }

func (r Ref[T]) String() string { return r.id }

// MarshalJSON always writes the bare identifier.
func (r Ref[T]) MarshalJSON() ([]byte, error) {
	if r.id == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.id)
}

func (r *Ref[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*r = Ref[T]{}
		return nil
	case b[0] == '"':
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return err
		}
		*r = Ref[T]{id: id}
		return nil
	case b[0] == '{':
		var peek struct {
			ID      string `json:"id"`
			MongoID string `json:"_id"`
		}
		if err := json.Unmarshal(b, &peek); err != nil {
			return err
		}
		id := peek.ID
		if id == "" {
			id = peek.MongoID
		}
		if id == "" {
			return errors.New("embedded reference has no id")
		}
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return fmt.Errorf("embedded reference %s: %w", id, err)
		}
		*r = Ref[T]{id: id, embedded: &v}
		return nil
	default:
		return fmt.Errorf("reference must be a string or an object, got %s", b)
	}
}
