// Package order holds the units of work a sync cycle produces: the per-pair
// ObjectChange, the Order batching them, and the side records (deletions,
// remaps, notifications) that travel with an order.
package order

import (
	"fmt"
	"time"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/report"
	"github.com/agentstation/syncbridge/pkg/value"
)

// Status tracks an ObjectChange through execution.
type Status string

// Change statuses.
const (
	StatusPending    Status = "pending"
	StatusDispatched Status = "dispatched"
	StatusCreated    Status = "created"
	StatusMapped     Status = "mapped"
)

// String returns the string representation of a status.
func (s Status) String() string {
	return string(s)
}

// transitions lists the legal next statuses from each status.
var transitions = map[Status][]Status{
	StatusPending:    {StatusDispatched},
	StatusDispatched: {StatusCreated, StatusMapped},
	StatusCreated:    {StatusMapped},
}

// FieldValue is one field of an outbound write.
type FieldValue struct {
	Name  string
	Value value.NormalizedValue
	State report.FieldState
}

// ObjectChange is the outbound write for one matched object pair. Object
// and ObjectID name the side being written; MappedObject and MappedObjectID
// name its counterpart. An empty ObjectID means the object must be created.
type ObjectChange struct {
	Integration    string
	Object         string
	ObjectID       string
	MappedObject   string
	MappedObjectID string
	ChangeDateTime *time.Time

	fields []FieldValue
	index  map[string]int
	status Status
}

// NewObjectChange creates a pending change for an object pair.
func NewObjectChange(integration, object, objectID, mappedObject, mappedObjectID string) *ObjectChange {
	return &ObjectChange{
		Integration:    integration,
		Object:         object,
		ObjectID:       objectID,
		MappedObject:   mappedObject,
		MappedObjectID: mappedObjectID,
		index:          map[string]int{},
		status:         StatusPending,
	}
}

// IsCreate reports whether the change creates a new object.
func (c *ObjectChange) IsCreate() bool {
	return c.ObjectID == ""
}

// AddField adds or replaces a field, keeping first-insertion order.
func (c *ObjectChange) AddField(f FieldValue) *ObjectChange {
	if c.index == nil {
		c.index = map[string]int{}
	}
	if i, ok := c.index[f.Name]; ok {
		c.fields[i] = f
		return c
	}
	c.index[f.Name] = len(c.fields)
	c.fields = append(c.fields, f)
	return c
}

// Field returns a field by name.
func (c *ObjectChange) Field(name string) (FieldValue, error) {
	if i, ok := c.index[name]; ok {
		return c.fields[i], nil
	}
	return FieldValue{}, errors.NewFieldNotFoundError(c.Object, name)
}

// Fields returns every field in insertion order.
func (c *ObjectChange) Fields() []FieldValue {
	out := make([]FieldValue, len(c.fields))
	copy(out, c.fields)
	return out
}

// ChangedFields returns fields in the changed state.
func (c *ObjectChange) ChangedFields() []FieldValue {
	return c.fieldsIn(report.FieldStateChanged)
}

// RequiredFields returns fields in the required state.
func (c *ObjectChange) RequiredFields() []FieldValue {
	return c.fieldsIn(report.FieldStateRequired)
}

func (c *ObjectChange) fieldsIn(state report.FieldState) []FieldValue {
	var out []FieldValue
	for _, f := range c.fields {
		if f.State == state {
			out = append(out, f)
		}
	}
	return out
}

// Payload returns field values keyed by field name.
func (c *ObjectChange) Payload() map[string]value.NormalizedValue {
	out := make(map[string]value.NormalizedValue, len(c.fields))
	for _, f := range c.fields {
		out[f.Name] = f.Value
	}
	return out
}

// Status returns the execution status.
func (c *ObjectChange) Status() Status {
	if c.status == "" {
		return StatusPending
	}
	return c.status
}

// Advance moves the change to the next status. Updates go
// pending, dispatched, mapped; creates pass through created before mapped.
func (c *ObjectChange) Advance(to Status) error {
	from := c.Status()
	for _, next := range transitions[from] {
		if next != to {
			continue
		}
		if to == StatusMapped && from == StatusDispatched && c.IsCreate() {
			break
		}
		c.status = to
		return nil
	}
	return errors.NewValidationError("status", to, fmt.Sprintf("cannot move %s change from %s to %s", c.Object, from, to))
}

// Created records the ID assigned to a newly created object and moves the
// change to the created status.
func (c *ObjectChange) Created(id string) error {
	if !c.IsCreate() {
		return errors.NewValidationError("status", StatusCreated, fmt.Sprintf("%s:%s already exists", c.Object, c.ObjectID))
	}
	if err := c.Advance(StatusCreated); err != nil {
		return err
	}
	c.ObjectID = id
	return nil
}

// String identifies the pair for logs.
func (c *ObjectChange) String() string {
	id := c.ObjectID
	if id == "" {
		id = "new"
	}
	return fmt.Sprintf("%s:%s<-%s:%s", c.Object, id, c.MappedObject, c.MappedObjectID)
}
