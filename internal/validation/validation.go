// Package validation checks records before they are written.
//
// It uses the `validator` library to enforce rules (like required fields
// or lengths) defined in struct tags and turns validation errors into
// errs.FieldErrors naming every offending field.
package validation
