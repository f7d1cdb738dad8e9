package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/deppfellow/abaita/internal/errs"
	"github.com/go-playground/validator/v10"
)

// Validatable is implemented by types that carry rules struct tags cannot
// express.
type Validatable interface {
	Validate() error
}

// CustomValidationError represents a single validation issue for a
// specific field.
type CustomValidationError struct {
	Field   string
	Message string
}

// CustomValidationErrors is a slice of custom validation errors that
// satisfies error.
type CustomValidationErrors []CustomValidationError

func (c CustomValidationErrors) Error() string {
	return "validation failed"
}

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Struct validates the tags of v and, when v implements Validatable, its
// own rules. Failures are returned as errs.FieldErrors.
func Struct(v any) error {
	if err := instance().Struct(v); err != nil {
		return extractValidationError(err)
	}
	if c, ok := v.(Validatable); ok {
		if err := c.Validate(); err != nil {
			return extractValidationError(err)
		}
	}
	return nil
}

func extractValidationError(err error) error {
	var fieldErrors errs.FieldErrors

	var custom CustomValidationErrors
	if errors.As(err, &custom) {
		for _, e := range custom {
			fieldErrors = append(fieldErrors, errs.FieldError{Field: e.Field, Error: e.Message})
		}
		return fieldErrors
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	for _, e := range validationErrors {
		field := strings.ToLower(e.Field())
		var msg string

		switch e.Tag() {
		case "required":
			msg = "is required"

		case "len":
			if e.Kind() == reflect.String {
				msg = fmt.Sprintf("must be exactly %s characters", e.Param())
			} else {
				msg = fmt.Sprintf("must have length %s", e.Param())
			}

		case "min":
			if e.Kind() == reflect.String {
				msg = fmt.Sprintf("must be at least %s characters", e.Param())
			} else {
				msg = fmt.Sprintf("must be at least %s", e.Param())
			}

		case "max":
			if e.Kind() == reflect.String {
				msg = fmt.Sprintf("must not exceed %s characters", e.Param())
			} else {
				msg = fmt.Sprintf("must not exceed %s", e.Param())
			}

		case "alphanum":
			msg = "must contain only letters and digits"

		case "oneof":
			msg = fmt.Sprintf("must be one of: %s", e.Param())

		default:
			if e.Param() != "" {
				msg = fmt.Sprintf("%s: %s:%s", field, e.Tag(), e.Param())
			} else {
				msg = fmt.Sprintf("%s: %s", field, e.Tag())
			}
		}

		fieldErrors = append(fieldErrors, errs.FieldError{Field: field, Error: msg})
	}
	return fieldErrors
}
