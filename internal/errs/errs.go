// Package errs defines the error taxonomy of the active-record layer.
//
// Registry misuse is reported through sentinel errors, to be checked with
// errors.Is. Backend failures surfaced by flush or commit are wrapped in a
// *PersistenceError, which keeps the original driver error reachable
// through errors.As / errors.Unwrap.
package errs
