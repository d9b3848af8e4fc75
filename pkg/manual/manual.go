// Package manual holds the static field mapping configuration for an
// integration: which integration objects map to which internal objects,
// which fields map to which, and in what direction values flow.
package manual

import (
	"fmt"

	"github.com/agentstation/syncbridge/pkg/errors"
)

// Direction controls which side's value wins for a mapped field.
type Direction string

// Sync directions.
const (
	ToInternal    Direction = "to_internal"
	ToIntegration Direction = "to_integration"
	Bidirectional Direction = "bidirectional"
)

// String returns the string representation of a direction.
func (d Direction) String() string {
	return string(d)
}

// IsValid reports whether the direction is known.
func (d Direction) IsValid() bool {
	switch d {
	case ToInternal, ToIntegration, Bidirectional:
		return true
	}
	return false
}

// FieldMapping links an internal field to an integration field.
type FieldMapping struct {
	InternalObject    string    `yaml:"-"`
	InternalField     string    `yaml:"internal"`
	IntegrationObject string    `yaml:"-"`
	IntegrationField  string    `yaml:"integration"`
	Direction         Direction `yaml:"direction"`
	// Required fields must be present when creating an internal object.
	Required bool `yaml:"required,omitempty"`
}

// ObjectMapping links an internal object to an integration object.
type ObjectMapping struct {
	InternalObject    string          `yaml:"internal"`
	IntegrationObject string          `yaml:"integration"`
	FieldMappings     []*FieldMapping `yaml:"fields"`
}

// AddFieldMapping appends a field mapping, filling in the object names.
func (m *ObjectMapping) AddFieldMapping(internalField, integrationField string, direction Direction, required bool) *ObjectMapping {
	m.FieldMappings = append(m.FieldMappings, &FieldMapping{
		InternalObject:    m.InternalObject,
		InternalField:     internalField,
		IntegrationObject: m.IntegrationObject,
		IntegrationField:  integrationField,
		Direction:         direction,
		Required:          required,
	})
	return m
}

// Manual is the full mapping configuration for one integration.
type Manual struct {
	Integration string           `yaml:"integration"`
	Objects     []*ObjectMapping `yaml:"objects"`
}

// New creates an empty manual.
func New(integration string) *Manual {
	return &Manual{Integration: integration}
}

// AddObjectMapping registers an object pair and returns it for field setup.
func (m *Manual) AddObjectMapping(internalObject, integrationObject string) *ObjectMapping {
	om := &ObjectMapping{InternalObject: internalObject, IntegrationObject: integrationObject}
	m.Objects = append(m.Objects, om)
	return om
}

// ObjectMapping returns the mapping for an object pair.
func (m *Manual) ObjectMapping(internalObject, integrationObject string) (*ObjectMapping, error) {
	for _, om := range m.Objects {
		if om.InternalObject == internalObject && om.IntegrationObject == integrationObject {
			return om, nil
		}
	}
	return nil, errors.NewObjectNotFoundError(fmt.Sprintf("%s<->%s", internalObject, integrationObject), "")
}

// ObjectMappings returns every mapping that targets an internal object.
func (m *Manual) ObjectMappings(internalObject string) []*ObjectMapping {
	var out []*ObjectMapping
	for _, om := range m.Objects {
		if om.InternalObject == internalObject {
			out = append(out, om)
		}
	}
	return out
}

// IntegrationObjectNames returns the integration objects mapped to an internal object.
func (m *Manual) IntegrationObjectNames(internalObject string) []string {
	var out []string
	for _, om := range m.ObjectMappings(internalObject) {
		out = append(out, om.IntegrationObject)
	}
	return out
}

// InternalObjectNames returns the internal objects mapped to an integration object.
func (m *Manual) InternalObjectNames(integrationObject string) []string {
	var out []string
	for _, om := range m.Objects {
		if om.IntegrationObject == integrationObject {
			out = append(out, om.InternalObject)
		}
	}
	return out
}

// IntegrationMappedField returns the integration field mapped to an internal field.
func (m *Manual) IntegrationMappedField(integrationObject, internalObject, internalField string) (string, error) {
	om, err := m.ObjectMapping(internalObject, integrationObject)
	if err != nil {
		return "", errors.NewFieldNotFoundError(internalObject, internalField)
	}
	for _, fm := range om.FieldMappings {
		if fm.InternalField == internalField {
			return fm.IntegrationField, nil
		}
	}
	return "", errors.NewFieldNotFoundError(internalObject, internalField)
}

// InternalMappedField returns the internal field mapped to an integration field.
func (m *Manual) InternalMappedField(internalObject, integrationObject, integrationField string) (string, error) {
	om, err := m.ObjectMapping(internalObject, integrationObject)
	if err != nil {
		return "", errors.NewFieldNotFoundError(integrationObject, integrationField)
	}
	for _, fm := range om.FieldMappings {
		if fm.IntegrationField == integrationField {
			return fm.InternalField, nil
		}
	}
	return "", errors.NewFieldNotFoundError(integrationObject, integrationField)
}

// Validate checks the manual for missing names and unknown directions.
func (m *Manual) Validate() error {
	if m.Integration == "" {
		return errors.NewValidationError("integration", m.Integration, "cannot be empty")
	}
	for _, om := range m.Objects {
		if om.InternalObject == "" || om.IntegrationObject == "" {
			return errors.NewValidationError("objects", om, "internal and integration names are required")
		}
		seen := map[string]bool{}
		for _, fm := range om.FieldMappings {
			if !fm.Direction.IsValid() {
				return errors.NewValidationError(fm.InternalField, fm.Direction, "unknown sync direction")
			}
			if seen[fm.InternalField] {
				return errors.NewValidationError(fm.InternalField, om.InternalObject, "mapped more than once")
			}
			seen[fm.InternalField] = true
		}
	}
	return nil
}
