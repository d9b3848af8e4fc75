package value_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/value"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		typ        value.Type
		original   any
		normalized any
	}{
		{"string trimmed", value.TypeString, "  Bob ", "Bob"},
		{"email lowered", value.TypeEmail, " Bob@Example.COM", "bob@example.com"},
		{"int from string", value.TypeInt, "42", int64(42)},
		{"float from int", value.TypeFloat, 3, float64(3)},
		{"boolean from string", value.TypeBoolean, "true", true},
		{"phone digits", value.TypePhone, "+1 (555) 010-2000", "+15550102000"},
		{"datetime to utc", value.TypeDateTime, "2024-03-01T10:00:00+02:00", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)},
		{"date truncated", value.TypeDate, "2024-03-01T23:10:00Z", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"nil stays nil", value.TypeInt, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := value.New(tt.typ, tt.original)
			require.NoError(t, err)
			assert.Equal(t, tt.typ, v.Type())
			assert.Equal(t, tt.original, v.Original())
			assert.Equal(t, tt.normalized, v.Normalized())
		})
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := value.New(value.TypeInt, "not a number")
	assert.True(t, errors.IsValidationError(err))

	_, err = value.New(value.Type("currency"), "10")
	assert.True(t, errors.IsValidationError(err))

	_, err = value.New(value.Type("currency"), nil)
	assert.True(t, errors.IsValidationError(err))
}

func TestEqualUsesNormalizedForm(t *testing.T) {
	a := value.Must(value.TypeEmail, "Bob@Example.com ")
	b := value.Must(value.TypeEmail, "bob@example.com")
	assert.True(t, a.Equal(b))
	assert.NotEqual(t, a.Original(), b.Original())

	// same text under another type is a different value
	assert.False(t, a.Equal(value.String("bob@example.com")))

	t1 := value.Must(value.TypeDateTime, "2024-03-01T10:00:00+02:00")
	t2 := value.Must(value.TypeDateTime, "2024-03-01T08:00:00Z")
	assert.True(t, t1.Equal(t2))
}

func TestString(t *testing.T) {
	assert.Equal(t, "<nil>", value.Must(value.TypeString, nil).String())
	assert.Equal(t, "2024-03-01", value.Must(value.TypeDate, "2024-03-01").String())
	assert.Equal(t, "7", value.Must(value.TypeInt, 7).String())
	assert.True(t, value.Must(value.TypeText, nil).IsNil())
}
