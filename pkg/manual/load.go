package manual

import (
	"os"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/syncbridge/pkg/errors"
)

// Load reads a manual from a YAML file.
func Load(path string) (*Manual, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapResource("read", "manual", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		if errors.IsValidationError(err) {
			return nil, err
		}
		return nil, errors.WrapParse("yaml", path, err)
	}
	return m, nil
}

// Parse decodes and validates a manual. Field mappings without a direction
// default to bidirectional.
func Parse(data []byte) (*Manual, error) {
	var m Manual
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	for _, om := range m.Objects {
		for _, fm := range om.FieldMappings {
			fm.InternalObject = om.InternalObject
			fm.IntegrationObject = om.IntegrationObject
			if fm.Direction == "" {
				fm.Direction = Bidirectional
			}
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Marshal encodes a manual as YAML.
func (m *Manual) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}
