package report

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/value"
)

// File is the serialized form of a report. Both YAML and JSON documents
// decode into it.
type File struct {
	Integration string       `yaml:"integration"`
	Objects     []ObjectFile `yaml:"objects"`
}

// ObjectFile is a serialized report object.
type ObjectFile struct {
	Name           string      `yaml:"name"`
	ID             string      `yaml:"id"`
	ChangeDateTime string      `yaml:"change_date_time,omitempty"`
	Fields         []FieldFile `yaml:"fields"`
}

// FieldFile is a serialized report field.
type FieldFile struct {
	Name           string `yaml:"name"`
	Type           string `yaml:"type,omitempty"`
	Value          any    `yaml:"value"`
	State          string `yaml:"state,omitempty"`
	ChangeDateTime string `yaml:"change_date_time,omitempty"`
}

// Load reads a report from a YAML or JSON file.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapResource("read", "report", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	return r, nil
}

// Parse decodes a report document.
func Parse(data []byte) (*Report, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f.Build()
}

// Build converts the serialized form into a Report.
func (f File) Build() (*Report, error) {
	if f.Integration == "" {
		return nil, errors.NewValidationError("integration", f.Integration, "cannot be empty")
	}
	r := New(f.Integration)
	for _, of := range f.Objects {
		changed, err := parseTime(of.ChangeDateTime)
		if err != nil {
			return nil, errors.WrapValidation(fmt.Sprintf("%s:%s change_date_time", of.Name, of.ID), err)
		}
		obj := NewObject(of.Name, of.ID, changed)
		for _, ff := range of.Fields {
			typ := value.Type(ff.Type)
			if typ == "" {
				typ = value.TypeString
			}
			v, err := value.New(typ, ff.Value)
			if err != nil {
				return nil, err
			}
			fieldChanged, err := parseTime(ff.ChangeDateTime)
			if err != nil {
				return nil, errors.WrapValidation(ff.Name, err)
			}
			state := FieldState(ff.State)
			switch state {
			case "", FieldStateChanged, FieldStateRequired, FieldStateUnchanged:
			default:
				return nil, errors.NewValidationError(ff.Name, ff.State, "unknown field state")
			}
			obj.AddField(Field{Name: ff.Name, Value: v, State: state, ChangeDateTime: fieldChanged})
		}
		r.AddObject(obj)
	}
	return r, nil
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
