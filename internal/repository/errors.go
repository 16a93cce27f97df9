// Package repository maps the application's records onto docstore
// collections.  The sentinel values below let higher layers such as
// services and handlers tell failure scenarios apart: ErrNotFound for a
// missing record, ErrForbidden when the caller does not own the record it
// addresses, ErrEmailExists on a duplicate registration.  Any other store
// failure is returned as a *PersistenceError.
package repository

import (
	"errors"
	"fmt"

	"github.com/iliyamo/egfr-calculator/internal/docstore"
)

// ErrNotFound is returned when the addressed record does not exist.
// Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// record owned by someone else.  Handlers should translate this into an
// HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrEmailExists is returned when an account is registered twice.
var ErrEmailExists = errors.New("email already exists")

// PersistenceError wraps a store failure with the operation and collection
// it happened on.
type PersistenceError struct {
	Op         string
	Collection string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// wrap converts a docstore error into the repository vocabulary.
func wrap(op, coll string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return ErrNotFound
	default:
		return &PersistenceError{Op: op, Collection: coll, Err: err}
	}
}
