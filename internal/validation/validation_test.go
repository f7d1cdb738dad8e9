package validation_test

import (
	"testing"
	"time"

	"github.com/deppfellow/abaita/internal/attendance"
	"github.com/deppfellow/abaita/internal/errs"
	"github.com/deppfellow/abaita/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStruct_Punch(t *testing.T) {
	valid := attendance.Punch{At: time.Now(), Badge: "ABC123", Raw: "line"}
	assert.NoError(t, validation.Struct(valid))

	tests := []struct {
		name  string
		punch attendance.Punch
		want  errs.FieldErrors
	}{
		{
			name:  "empty",
			punch: attendance.Punch{},
			want: errs.FieldErrors{
				{Field: "at", Error: "is required"},
				{Field: "badge", Error: "is required"},
				{Field: "raw", Error: "is required"},
			},
		},
		{
			name:  "short badge",
			punch: attendance.Punch{At: time.Now(), Badge: "AB12", Raw: "line"},
			want:  errs.FieldErrors{{Field: "badge", Error: "must be exactly 6 characters"}},
		},
		{
			name:  "badge with symbols",
			punch: attendance.Punch{At: time.Now(), Badge: "AB-123", Raw: "line"},
			want:  errs.FieldErrors{{Field: "badge", Error: "must contain only letters and digits"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validation.Struct(tt.punch)
			require.Error(t, err)

			var fieldErrors errs.FieldErrors
			require.ErrorAs(t, err, &fieldErrors)
			assert.Equal(t, tt.want, fieldErrors)
		})
	}
}

type window struct {
	From int `validate:"min=0"`
	To   int
}

func (w window) Validate() error {
	if w.To < w.From {
		return validation.CustomValidationErrors{{Field: "to", Message: "must not be before from"}}
	}
	return nil
}

func TestStruct_CustomRules(t *testing.T) {
	assert.NoError(t, validation.Struct(window{From: 1, To: 2}))

	err := validation.Struct(window{From: 3, To: 2})
	var fieldErrors errs.FieldErrors
	require.ErrorAs(t, err, &fieldErrors)
	assert.Equal(t, errs.FieldErrors{{Field: "to", Error: "must not be before from"}}, fieldErrors)

	err = validation.Struct(window{From: -1, To: 2})
	require.ErrorAs(t, err, &fieldErrors)
	assert.Equal(t, errs.FieldErrors{{Field: "from", Error: "must be at least 0"}}, fieldErrors)
}
