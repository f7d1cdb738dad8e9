package errs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/deppfellow/abaita/internal/sqlerr"
)

var (
	// ErrDuplicateConnection is returned when registering a connection name twice.
	ErrDuplicateConnection = errors.New("activerecord: connection already registered")

	// ErrUnknownConnection is returned when operating on an unregistered connection.
	ErrUnknownConnection = errors.New("activerecord: connection not registered")

	// ErrNoDefaultConnection is returned when no connection name is given and
	// no default connection is designated.
	ErrNoDefaultConnection = errors.New("activerecord: no default connection available")

	// ErrUnsupportedItemType is returned by SaveAll/MergeAll for items that are
	// neither attribute mappings nor instances of the target type.
	ErrUnsupportedItemType = errors.New("activerecord: unsupported item type")

	// ErrUnknownTable is returned when reflection is asked for a table the
	// backend does not expose.
	ErrUnknownTable = errors.New("activerecord: table not available")

	// ErrUnknownAttribute is returned when an attribute is not a column of the
	// mapped type.
	ErrUnknownAttribute = errors.New("activerecord: unknown attribute")

	// ErrUnknownRelationship is returned when navigating a relationship the
	// mapped type does not have.
	ErrUnknownRelationship = errors.New("activerecord: unknown relationship")

	// ErrIncompleteKey is returned when a primary key has the wrong number of
	// components or an instance lacks a primary-key value where one is needed.
	ErrIncompleteKey = errors.New("activerecord: incomplete primary key")

	// ErrDetached is returned when an instance is used with a session that
	// does not own it.
	ErrDetached = errors.New("activerecord: instance belongs to another session")

	// ErrInvalidScope is returned for a session scope key that cannot be
	// compared, such as a slice or a map.
	ErrInvalidScope = errors.New("activerecord: scope key is not comparable")

	// ErrPersistence matches every *PersistenceError through errors.Is.
	ErrPersistence = errors.New("activerecord: persistence error")
)

// FieldError represents a validation error on one attribute.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// FieldErrors collects validation failures of a single record.
type FieldErrors []FieldError

func (f FieldErrors) Error() string {
	parts := make([]string, 0, len(f))
	for _, fe := range f {
		parts = append(parts, fe.Field+" "+fe.Error)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// PersistenceError wraps a backend failure raised while writing staged
// changes (flush, commit, rollback, savepoint insert).
type PersistenceError struct {
	// Op is the unit-of-work step that failed, e.g. "flush" or "commit".
	Op string

	// Table is the mapped table being written, when known.
	Table string

	// Code is the backend-independent error category.
	Code sqlerr.Code

	// Err is the original backend error.
	Err error
}

// NewPersistenceError wraps err, classifying it with sqlerr.
func NewPersistenceError(op, table string, err error) *PersistenceError {
	return &PersistenceError{
		Op:    op,
		Table: table,
		Code:  sqlerr.ErrCode(err),
		Err:   err,
	}
}

func (e *PersistenceError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("activerecord: %s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("activerecord: %s: %v", e.Op, e.Err)
}

// Unwrap returns the original backend error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is reports true for ErrPersistence so callers can match the category
// without knowing the concrete type.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// IsDuplicate reports whether err is a persistence failure caused by a
// unique or primary-key violation.
func IsDuplicate(err error) bool {
	var perr *PersistenceError
	if errors.As(err, &perr) {
		return perr.Code == sqlerr.UniqueViolation
	}
	return sqlerr.IsUniqueViolation(err)
}
