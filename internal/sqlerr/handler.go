package sqlerr

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var uniqueKeyPattern = regexp.MustCompile(`_([^_]+)_(?:key|ukey)$`)

// ErrCode reports the Code of the first driver error found in err's chain,
// or Other.
func ErrCode(err error) Code {
	if e := Convert(err); e != nil {
		return e.Code
	}
	return Other
}

// IsUniqueViolation reports whether err is a unique or primary-key
// violation raised by the backend.
func IsUniqueViolation(err error) bool {
	return ErrCode(err) == UniqueViolation
}

// Convert normalizes the driver error carried by err.
//
// It returns nil when err carries neither a *pgconn.PgError nor a
// sqlite3.Error (or an already converted *Error).
func Convert(err error) *Error {
	if err == nil {
		return nil
	}

	var converted *Error
	if errors.As(err, &converted) {
		return converted
	}

	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) {
		return ConvertPgError(pgerr)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return ConvertSqliteError(liteErr)
	}

	return nil
}

// ConvertPgError converts a raw PostgreSQL error into an *Error.
func ConvertPgError(src *pgconn.PgError) *Error {
	return &Error{
		Code:           MapCode(src.Code),
		Severity:       MapSeverity(src.Severity),
		DatabaseCode:   src.Code,
		Message:        src.Message,
		SchemaName:     src.SchemaName,
		TableName:      src.TableName,
		ColumnName:     src.ColumnName,
		DataTypeName:   src.DataTypeName,
		ConstraintName: src.ConstraintName,
		driverErr:      src,
	}
}

// ConvertSqliteError converts a go-sqlite3 error into an *Error.
//
// SQLite reports the offending columns only in the message text, e.g.
// "UNIQUE constraint failed: abaita.date, abaita.time"; the first
// table.column pair is extracted from it.
func ConvertSqliteError(src sqlite3.Error) *Error {
	out := &Error{
		Code:         Other,
		Severity:     SeverityError,
		DatabaseCode: strconv.Itoa(int(src.ExtendedCode)),
		Message:      src.Error(),
		driverErr:    src,
	}

	switch src.ExtendedCode {
	case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
		out.Code = UniqueViolation
	case sqlite3.ErrConstraintForeignKey:
		out.Code = ForeignKeyViolation
	case sqlite3.ErrConstraintNotNull:
		out.Code = NotNullViolation
	case sqlite3.ErrConstraintCheck:
		out.Code = CheckViolation
	default:
		if src.Code == sqlite3.ErrBusy || src.Code == sqlite3.ErrLocked {
			out.Code = Busy
		}
	}

	if _, detail, ok := strings.Cut(src.Error(), "constraint failed: "); ok {
		first, _, _ := strings.Cut(detail, ",")
		if table, column, ok := strings.Cut(strings.TrimSpace(first), "."); ok {
			out.TableName = table
			out.ColumnName = column
		} else {
			out.ConstraintName = strings.TrimSpace(first)
		}
	}

	return out
}

// ErrorCode builds a machine-friendly code such as ABAITA_ALREADY_EXISTS
// for a driver error.
func ErrorCode(err error) string {
	e := Convert(err)
	if e == nil {
		return "RECORD_ERROR"
	}
	return generateErrorCode(e.TableName, e.Code)
}

// UserMessage renders a human-readable message for a driver error.
func UserMessage(err error) string {
	e := Convert(err)
	if e == nil {
		return "An error occurred while processing your request"
	}

	msg := formatUserFriendlyMessage(e)
	if e.Code == UniqueViolation {
		if column := extractColumnForUniqueViolation(e.ConstraintName); column != "" {
			msg = strings.ReplaceAll(msg, "identifier", humanizeText(column))
		}
	}
	return msg
}

// generateErrorCode creates <DOMAIN>_<ACTION> codes from the table name
// and the error category.
func generateErrorCode(tableName string, errType Code) string {
	if tableName == "" {
		tableName = "RECORD"
	}

	domain := strings.ToUpper(tableName)
	if strings.HasSuffix(domain, "S") && len(domain) > 1 {
		domain = domain[:len(domain)-1]
	}

	action := "ERROR"
	switch errType {
	case ForeignKeyViolation:
		action = "NOT_FOUND"
	case UniqueViolation:
		action = "ALREADY_EXISTS"
	case NotNullViolation:
		action = "REQUIRED"
	case CheckViolation:
		action = "INVALID"
	}

	return fmt.Sprintf("%s_%s", domain, action)
}

func formatUserFriendlyMessage(sqlErr *Error) string {
	entityName := getEntityName(sqlErr.TableName, sqlErr.ColumnName)

	switch sqlErr.Code {
	case ForeignKeyViolation:
		return fmt.Sprintf("The referenced %s does not exist", entityName)

	case UniqueViolation:
		return fmt.Sprintf("A %s with this identifier already exists", entityName)

	case NotNullViolation:
		fieldName := humanizeText(sqlErr.ColumnName)
		if fieldName == "" {
			fieldName = "field"
		}
		return fmt.Sprintf("The %s is required", fieldName)

	case CheckViolation:
		fieldName := humanizeText(sqlErr.ColumnName)
		if fieldName != "" {
			return fmt.Sprintf("The %s value does not meet required conditions", fieldName)
		}
		return "One or more values do not meet required conditions"

	default:
		return "An error occurred while processing your request"
	}
}

// getEntityName prefers a "<x>_id" column, then the (crudely singularized)
// table name, then "record".
func getEntityName(tableName, columnName string) string {
	if columnName != "" && strings.HasSuffix(strings.ToLower(columnName), "_id") {
		entity := strings.TrimSuffix(strings.ToLower(columnName), "_id")
		return humanizeText(entity)
	}

	if tableName != "" {
		entity := tableName
		if strings.HasSuffix(entity, "s") && len(entity) > 1 {
			entity = entity[:len(entity)-1]
		}
		return humanizeText(entity)
	}

	return "record"
}

// humanizeText converts snake_case into Title Case.
func humanizeText(text string) string {
	if text == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(text, "_", " "))
}

// extractColumnForUniqueViolation infers the column from constraint names
// shaped like unique_<table>_<column> or <table>_<column>_key.
func extractColumnForUniqueViolation(constraintName string) string {
	if constraintName == "" {
		return ""
	}

	if strings.HasPrefix(constraintName, "unique_") {
		parts := strings.Split(constraintName, "_")
		if len(parts) >= 3 {
			return parts[len(parts)-1]
		}
	}

	matches := uniqueKeyPattern.FindStringSubmatch(constraintName)
	if len(matches) > 1 {
		return matches[1]
	}

	return ""
}
