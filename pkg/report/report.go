// Package report models one side's view of a sync cycle: the objects that
// changed, the state of each of their fields, and the change requests derived
// from them.
package report

import (
	"time"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/value"
)

// FieldState marks how a field participates in an outbound write.
type FieldState string

// Field states.
const (
	// FieldStateRequired fields must be sent with every create or update.
	FieldStateRequired FieldState = "required"
	// FieldStateChanged fields changed since the last sync.
	FieldStateChanged FieldState = "changed"
	// FieldStateUnchanged fields are informational only.
	FieldStateUnchanged FieldState = "unchanged"
)

// String returns the string representation of a field state.
func (s FieldState) String() string {
	return string(s)
}

// Field is a reported field value.
type Field struct {
	Name  string
	Value value.NormalizedValue
	State FieldState
	// ChangeDateTime is the precise time this field changed, when known.
	ChangeDateTime *time.Time
}

// Object is a reported object instance. An empty ID is an object that has
// not been matched on this side yet.
type Object struct {
	Name           string
	ID             string
	ChangeDateTime *time.Time

	fields []Field
	index  map[string]int
}

// NewObject creates an object reference with no fields.
func NewObject(name, id string, changed *time.Time) *Object {
	return &Object{Name: name, ID: id, ChangeDateTime: changed, index: map[string]int{}}
}

// AddField adds or replaces a field, keeping first-insertion order.
func (o *Object) AddField(f Field) *Object {
	if o.index == nil {
		o.index = map[string]int{}
	}
	if f.State == "" {
		f.State = FieldStateChanged
	}
	if i, ok := o.index[f.Name]; ok {
		o.fields[i] = f
		return o
	}
	o.index[f.Name] = len(o.fields)
	o.fields = append(o.fields, f)
	return o
}

// Field returns a reported field or a FieldNotFound error.
func (o *Object) Field(name string) (Field, error) {
	if i, ok := o.index[name]; ok {
		return o.fields[i], nil
	}
	return Field{}, errors.NewFieldNotFoundError(o.Name, name)
}

// Fields returns the reported fields in insertion order.
func (o *Object) Fields() []Field {
	out := make([]Field, len(o.fields))
	copy(out, o.fields)
	return out
}

// IsResolved reports whether the object has an ID on this side.
func (o *Object) IsResolved() bool {
	return o.ID != ""
}

// InformationChangeRequest is a candidate write for a single field.
// Possible is the earliest time the value might have changed; Certain is a
// precise per-field timestamp. Either may be nil.
type InformationChangeRequest struct {
	Integration            string
	ObjectName             string
	ObjectID               string
	Field                  string
	NewValue               value.NormalizedValue
	PossibleChangeDateTime *time.Time
	CertainChangeDateTime  *time.Time
}

// Report is one integration's set of changed objects for a sync cycle.
type Report struct {
	integration string
	order       []string
	objects     map[string][]*Object
	byID        map[string]map[string]*Object
}

// New creates an empty report for an integration.
func New(integration string) *Report {
	return &Report{
		integration: integration,
		objects:     map[string][]*Object{},
		byID:        map[string]map[string]*Object{},
	}
}

// Integration returns the integration this report describes.
func (r *Report) Integration() string {
	return r.integration
}

// AddObject adds an object to the report. Objects with the same name and ID
// replace the earlier entry.
func (r *Report) AddObject(o *Object) *Report {
	if _, ok := r.objects[o.Name]; !ok {
		r.order = append(r.order, o.Name)
		r.byID[o.Name] = map[string]*Object{}
	}
	if existing, ok := r.byID[o.Name][o.ID]; ok && o.ID != "" {
		for i, obj := range r.objects[o.Name] {
			if obj == existing {
				r.objects[o.Name][i] = o
			}
		}
	} else {
		r.objects[o.Name] = append(r.objects[o.Name], o)
	}
	if o.ID != "" {
		r.byID[o.Name][o.ID] = o
	}
	return r
}

// ObjectNames returns reported object names in insertion order.
func (r *Report) ObjectNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Objects returns the reported objects of one type.
func (r *Report) Objects(name string) []*Object {
	return r.objects[name]
}

// Object returns a reported object by name and ID.
func (r *Report) Object(name, id string) (*Object, error) {
	if o, ok := r.byID[name][id]; ok {
		return o, nil
	}
	return nil, errors.NewObjectNotFoundError(name, id)
}

// InformationChangeRequest derives the change request for one reported field.
func (r *Report) InformationChangeRequest(objectName, objectID, field string) (InformationChangeRequest, error) {
	o, ok := r.byID[objectName][objectID]
	if !ok {
		return InformationChangeRequest{}, errors.NewFieldNotFoundError(objectName, field)
	}
	f, err := o.Field(field)
	if err != nil {
		return InformationChangeRequest{}, err
	}
	return InformationChangeRequest{
		Integration:            r.integration,
		ObjectName:             objectName,
		ObjectID:               objectID,
		Field:                  field,
		NewValue:               f.Value,
		PossibleChangeDateTime: o.ChangeDateTime,
		CertainChangeDateTime:  f.ChangeDateTime,
	}, nil
}
