package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/deppfellow/abaita/internal/errs"
	"github.com/deppfellow/abaita/internal/sqlerr"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestPersistenceError_WrapsBackendError(t *testing.T) {
	backend := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	err := error(errs.NewPersistenceError("commit", "abaita", backend))

	assert.ErrorIs(t, err, errs.ErrPersistence)
	assert.ErrorIs(t, err, backend)

	var pgErr *pgconn.PgError
	assert.True(t, errors.As(err, &pgErr))
	assert.Equal(t, "23505", pgErr.Code)

	var perr *errs.PersistenceError
	assert.True(t, errors.As(fmt.Errorf("scrape: %w", err), &perr))
	assert.Equal(t, sqlerr.UniqueViolation, perr.Code)
	assert.Equal(t, "commit", perr.Op)
	assert.Contains(t, err.Error(), "commit abaita")
	assert.True(t, errs.IsDuplicate(err))
}

func TestPersistenceError_NotDuplicate(t *testing.T) {
	err := errs.NewPersistenceError("flush", "", errors.New("connection reset"))

	assert.Equal(t, sqlerr.Other, err.Code)
	assert.False(t, errs.IsDuplicate(err))
	assert.Equal(t, "activerecord: flush: connection reset", err.Error())
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		errs.ErrDuplicateConnection,
		errs.ErrUnknownConnection,
		errs.ErrNoDefaultConnection,
		errs.ErrUnsupportedItemType,
		errs.ErrUnknownTable,
		errs.ErrPersistence,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("%v unexpectedly matches %v", a, b)
			}
		}
	}
}

func TestFieldErrors(t *testing.T) {
	fe := errs.FieldErrors{
		{Field: "badge", Error: "is required"},
		{Field: "time", Error: "is invalid"},
	}
	assert.Equal(t, "validation failed: badge is required; time is invalid", fe.Error())
}
