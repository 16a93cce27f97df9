// Package docstore defines the document store capability the application
// persists to: named collections of JSON-shaped documents addressed by id,
// with field-equality queries.  Backends live alongside (mongo, mysql,
// postgres, memory) and are interchangeable behind Store.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Collection names used by the application.
const (
	Users        = "users"
	Credentials  = "credentials"
	Sessions     = "sessions"
	UserProfiles = "userProfiles"
	Analyses     = "analyses"
)

// IDField is the key under which a document's id is returned.  It is never
// part of the stored body.
const IDField = "id"

var (
	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned by Create when the id is taken.
	ErrAlreadyExists = errors.New("document already exists")
)

// Document is a decoded document body.
type Document map[string]any

// ID returns the document's id, or "" when it carries none.
func (d Document) ID() string {
	s, _ := d[IDField].(string)
	return s
}

// Filter selects documents whose Field equals Value.  An empty Field
// matches every document of the collection.  Values are compared by their
// string form, which is exact for the string fields the application
// queries on.
type Filter struct {
	Field string
	Value any
}

// Where builds a field-equality filter.
func Where(field string, value any) Filter { return Filter{Field: field, Value: value} }

// Patch is a partial update: Set fields are written, Unset fields removed.
type Patch struct {
	Set   Document
	Unset []string
}

// Store is the document store capability.
type Store interface {
	// Get returns the document or ErrNotFound.
	Get(ctx context.Context, coll, id string) (Document, error)
	// Query returns every document matching f, in no particular order.
	Query(ctx context.Context, coll string, f Filter) ([]Document, error)
	// Set writes doc under id, replacing any existing body (upsert).
	Set(ctx context.Context, coll, id string, doc Document) error
	// Create writes doc under id only if the id is free; otherwise it
	// returns ErrAlreadyExists.
	Create(ctx context.Context, coll, id string, doc Document) error
	// Add writes doc under a freshly generated id and returns it.
	Add(ctx context.Context, coll string, doc Document) (string, error)
	// Update applies p to an existing document or returns ErrNotFound.
	Update(ctx context.Context, coll, id string, p Patch) error
	// Delete removes the document or returns ErrNotFound.
	Delete(ctx context.Context, coll, id string) error
	// Close releases the backend's connections.
	Close(ctx context.Context) error
}

// Encode turns a json-tagged value into a Document.  The id key is dropped
// since ids are addressed separately.
func Encode(v any) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var d Document
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	delete(d, IDField)
	return d, nil
}

// Decode fills out from a Document.
func Decode(d Document, out any) error {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// EncodeValue converts a single field value the way Encode would store it.
func EncodeValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(b, &out)
	return out, err
}

var fieldRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// checkField rejects field names that could not be embedded in a query path.
func checkField(f string) error {
	if !fieldRe.MatchString(f) {
		return fmt.Errorf("invalid field name %q", f)
	}
	return nil
}

// matches reports whether d satisfies f.
func matches(d Document, f Filter) bool {
	if f.Field == "" {
		return true
	}
	v, ok := d[f.Field]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == fmt.Sprint(f.Value)
}

// apply returns a copy of d with p applied.
func apply(d Document, p Patch) Document {
	out := make(Document, len(d)+len(p.Set))
	for k, v := range d {
		out[k] = v
	}
	for k, v := range p.Set {
		out[k] = v
	}
	for _, k := range p.Unset {
		delete(out, k)
	}
	delete(out, IDField)
	return out
}

// body strips the id key before a document is written.
func body(d Document) Document {
	if _, ok := d[IDField]; !ok {
		return d
	}
	out := make(Document, len(d))
	for k, v := range d {
		if k != IDField {
			out[k] = v
		}
	}
	return out
}
