package sqlerr

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSqlite(t *testing.T) *sql.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "sqlerr.db") + "?_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE owners (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
		CREATE TABLE pets (
			id INTEGER PRIMARY KEY,
			owner_id INTEGER NOT NULL REFERENCES owners(id),
			age INTEGER CHECK (age >= 0)
		);
		INSERT INTO owners (id, name) VALUES (1, 'ada');
	`)
	require.NoError(t, err)
	return db
}

func TestConvertSqliteError(t *testing.T) {
	db := openSqlite(t)

	tests := []struct {
		name  string
		stmt  string
		code  Code
		table string
	}{
		{"primary key", `INSERT INTO owners (id, name) VALUES (1, 'bob')`, UniqueViolation, "owners"},
		{"not null", `INSERT INTO owners (id) VALUES (2)`, NotNullViolation, "owners"},
		{"foreign key", `INSERT INTO pets (id, owner_id) VALUES (1, 99)`, ForeignKeyViolation, ""},
		{"check", `INSERT INTO pets (id, owner_id, age) VALUES (2, 1, -1)`, CheckViolation, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Exec(tt.stmt)
			require.Error(t, err)

			wrapped := fmt.Errorf("flush: %w", err)
			converted := Convert(wrapped)
			require.NotNil(t, converted)
			assert.Equal(t, tt.code, converted.Code)
			assert.Equal(t, tt.code, ErrCode(wrapped))
			if tt.table != "" {
				assert.Equal(t, tt.table, converted.TableName)
			}

			var liteErr sqlite3.Error
			assert.True(t, errors.As(converted, &liteErr), "converted error keeps the driver error")
		})
	}
}

func TestConvert_NonDriverError(t *testing.T) {
	assert.Nil(t, Convert(nil))
	assert.Nil(t, Convert(errors.New("boom")))
	assert.Equal(t, Other, ErrCode(errors.New("boom")))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestConvertPgError(t *testing.T) {
	src := &pgconn.PgError{
		Severity:       "ERROR",
		Code:           "23505",
		Message:        `duplicate key value violates unique constraint "users_email_key"`,
		TableName:      "users",
		ConstraintName: "users_email_key",
	}

	err := fmt.Errorf("commit: %w", src)
	assert.True(t, IsUniqueViolation(err))
	assert.Equal(t, "USER_ALREADY_EXISTS", ErrorCode(err))
	assert.Equal(t, "A User with this Email already exists", UserMessage(err))

	converted := Convert(err)
	require.NotNil(t, converted)
	assert.Equal(t, SeverityError, converted.Severity)
	assert.ErrorIs(t, converted, src)
}

func TestMapCode(t *testing.T) {
	tests := map[string]Code{
		"23505": UniqueViolation,
		"23503": ForeignKeyViolation,
		"23502": NotNullViolation,
		"23514": CheckViolation,
		"40001": SerializationFailure,
		"40P01": DeadlockDetected,
		"42P01": Other,
	}
	for sqlstate, want := range tests {
		assert.Equal(t, want, MapCode(sqlstate), sqlstate)
	}
}

func TestUserMessages(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"fk column", &Error{Code: ForeignKeyViolation, ColumnName: "owner_id"}, "The referenced Owner does not exist"},
		{"not null", &Error{Code: NotNullViolation, ColumnName: "first_name"}, "The First Name is required"},
		{"not null unknown", &Error{Code: NotNullViolation}, "The field is required"},
		{"check", &Error{Code: CheckViolation}, "One or more values do not meet required conditions"},
		{"other", &Error{Code: Other}, "An error occurred while processing your request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestExtractColumnForUniqueViolation(t *testing.T) {
	assert.Equal(t, "email", extractColumnForUniqueViolation("unique_users_email"))
	assert.Equal(t, "email", extractColumnForUniqueViolation("users_email_key"))
	assert.Equal(t, "", extractColumnForUniqueViolation("users_pkey"))
	assert.Equal(t, "", extractColumnForUniqueViolation(""))
}
