package manual_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/manual"
)

const manualYAML = `
integration: hubspot
objects:
  - internal: Contact
    integration: lead
    fields:
      - internal: email
        integration: email
        direction: bidirectional
        required: true
      - internal: firstname
        integration: first_name
        direction: to_internal
      - internal: notes
        integration: description
  - internal: Company
    integration: account
    fields:
      - internal: name
        integration: company_name
        direction: to_integration
`

func TestParse(t *testing.T) {
	m, err := manual.Parse([]byte(manualYAML))
	require.NoError(t, err)
	assert.Equal(t, "hubspot", m.Integration)
	require.Len(t, m.Objects, 2)

	contact := m.Objects[0]
	require.Len(t, contact.FieldMappings, 3)
	assert.Equal(t, "Contact", contact.FieldMappings[0].InternalObject)
	assert.Equal(t, "lead", contact.FieldMappings[0].IntegrationObject)
	assert.True(t, contact.FieldMappings[0].Required)
	assert.Equal(t, manual.ToInternal, contact.FieldMappings[1].Direction)
	assert.Equal(t, manual.Bidirectional, contact.FieldMappings[2].Direction)
}

func TestLookups(t *testing.T) {
	m, err := manual.Parse([]byte(manualYAML))
	require.NoError(t, err)

	field, err := m.IntegrationMappedField("lead", "Contact", "firstname")
	require.NoError(t, err)
	assert.Equal(t, "first_name", field)

	field, err = m.InternalMappedField("Company", "account", "company_name")
	require.NoError(t, err)
	assert.Equal(t, "name", field)

	_, err = m.IntegrationMappedField("lead", "Contact", "phone")
	assert.True(t, errors.IsFieldNotFound(err))

	_, err = m.IntegrationMappedField("deal", "Contact", "email")
	assert.True(t, errors.IsFieldNotFound(err))

	assert.Equal(t, []string{"lead"}, m.IntegrationObjectNames("Contact"))
	assert.Equal(t, []string{"Company"}, m.InternalObjectNames("account"))
	assert.Empty(t, m.ObjectMappings("Deal"))

	_, err = m.ObjectMapping("Contact", "account")
	assert.True(t, errors.IsObjectNotFound(err))
}

func TestBuilder(t *testing.T) {
	m := manual.New("hubspot")
	m.AddObjectMapping("Contact", "lead").
		AddFieldMapping("email", "email", manual.Bidirectional, true).
		AddFieldMapping("city", "town", manual.ToIntegration, false)

	require.NoError(t, m.Validate())
	fm := m.Objects[0].FieldMappings[1]
	assert.Equal(t, "Contact", fm.InternalObject)
	assert.Equal(t, "lead", fm.IntegrationObject)

	data, err := m.Marshal()
	require.NoError(t, err)
	back, err := manual.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "town", back.Objects[0].FieldMappings[1].IntegrationField)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		build func() *manual.Manual
	}{
		{"missing integration", func() *manual.Manual { return manual.New("") }},
		{"bad direction", func() *manual.Manual {
			m := manual.New("x")
			m.AddObjectMapping("Contact", "lead").AddFieldMapping("a", "b", manual.Direction("sideways"), false)
			return m
		}},
		{"duplicate field", func() *manual.Manual {
			m := manual.New("x")
			m.AddObjectMapping("Contact", "lead").
				AddFieldMapping("a", "b", manual.Bidirectional, false).
				AddFieldMapping("a", "c", manual.Bidirectional, false)
			return m
		}},
		{"missing object name", func() *manual.Manual {
			m := manual.New("x")
			m.AddObjectMapping("", "lead")
			return m
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.IsValidationError(tt.build().Validate()))
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manual.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manualYAML), 0o644))

	m, err := manual.Load(path)
	require.NoError(t, err)
	assert.Len(t, m.Objects, 2)

	_, err = manual.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
