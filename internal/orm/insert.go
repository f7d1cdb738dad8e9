package orm

import (
	"context"
	"fmt"

	"github.com/deppfellow/abaita/internal/errs"
)

// InsertStatus is the outcome of one insert attempt.
type InsertStatus int

const (
	Inserted InsertStatus = iota
	AlreadyExists
	Failed
)

func (s InsertStatus) String() string {
	switch s {
	case Inserted:
		return "inserted"
	case AlreadyExists:
		return "already_exists"
	default:
		return "failed"
	}
}

// InsertResult reports one insert attempt. Err is set unless Status is
// Inserted.
type InsertResult struct {
	Status   InsertStatus
	Instance *Instance
	Err      error
}

// Insert writes inst immediately inside a savepoint of the session's
// transaction. A failing row is rolled back to the savepoint, so the rest
// of the unit of work stays usable; the failure is reported in the result,
// AlreadyExists for key collisions. Staged operations are flushed first.
//
// The returned error is reserved for failures that are not about the row
// itself, e.g. a failing savepoint or an earlier staged operation.
func (s *Session) Insert(ctx context.Context, inst *Instance) (InsertResult, error) {
	if inst.session != nil || inst.state != Transient {
		return InsertResult{}, fmt.Errorf("%w: insert expects a transient instance", errs.ErrDetached)
	}
	if err := s.flush(ctx, "insert"); err != nil {
		return InsertResult{}, err
	}
	if err := s.begin(ctx); err != nil {
		return InsertResult{}, errs.NewPersistenceError("insert", inst.Table(), err)
	}

	s.savepoints++
	name := fmt.Sprintf("abaita_sp_%d", s.savepoints)
	if _, err := s.conn.Exec(ctx, s.tx, "SAVEPOINT "+name); err != nil {
		return InsertResult{}, errs.NewPersistenceError("insert", inst.Table(), err)
	}

	inst.session = s
	if err := s.execInsert(ctx, inst); err != nil {
		inst.session = nil
		inst.state = Transient

		if _, rbErr := s.conn.Exec(ctx, s.tx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return InsertResult{}, errs.NewPersistenceError("insert", inst.Table(), rbErr)
		}
		if _, relErr := s.conn.Exec(ctx, s.tx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return InsertResult{}, errs.NewPersistenceError("insert", inst.Table(), relErr)
		}

		status := Failed
		if errs.IsDuplicate(err) {
			status = AlreadyExists
		}
		return InsertResult{
			Status:   status,
			Instance: inst,
			Err:      errs.NewPersistenceError("insert", inst.Table(), err),
		}, nil
	}

	if _, err := s.conn.Exec(ctx, s.tx, "RELEASE SAVEPOINT "+name); err != nil {
		return InsertResult{}, errs.NewPersistenceError("insert", inst.Table(), err)
	}
	return InsertResult{Status: Inserted, Instance: inst}, nil
}
