package executioner

import (
	"context"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/objects"
	"github.com/agentstation/syncbridge/pkg/order"
	"github.com/agentstation/syncbridge/pkg/value"
)

// Dispatcher applies batches of writes for one internal object type.
//
// Handlers record per-object outcomes on the event. A returned error means
// the whole batch failed.
type Dispatcher interface {
	UpdateObjects(ctx context.Context, event *UpdateEvent) error
	CreateObjects(ctx context.Context, event *CreateEvent) error
}

// Failure is a change a dispatcher could not apply.
type Failure struct {
	Change *order.ObjectChange
	Err    error
}

type failures struct {
	list   []Failure
	failed map[*order.ObjectChange]error
}

// Fail records that a change could not be applied.
func (f *failures) Fail(c *order.ObjectChange, err error) {
	if err == nil {
		err = errors.NewResourceError("dispatch", c.Object, c.ObjectID, errors.New("unknown failure"))
	}
	if f.failed == nil {
		f.failed = map[*order.ObjectChange]error{}
	}
	if _, ok := f.failed[c]; ok {
		return
	}
	f.failed[c] = err
	f.list = append(f.list, Failure{Change: c, Err: err})
}

// Failures returns the recorded failures in the order they were reported.
func (f *failures) Failures() []Failure {
	return f.list
}

func (f *failures) errFor(c *order.ObjectChange) error {
	return f.failed[c]
}

// UpdateEvent carries the updates of one object type to a Dispatcher.
type UpdateEvent struct {
	Integration string
	Object      objects.Object
	Changes     []*order.ObjectChange

	failures
}

// IdentifiedObjectIDs returns the IDs of the objects to update.
func (e *UpdateEvent) IdentifiedObjectIDs() []string {
	ids := make([]string, 0, len(e.Changes))
	for _, c := range e.Changes {
		ids = append(ids, c.ObjectID)
	}
	return ids
}

// Payloads returns field values keyed by object ID.
func (e *UpdateEvent) Payloads() map[string]map[string]value.NormalizedValue {
	out := make(map[string]map[string]value.NormalizedValue, len(e.Changes))
	for _, c := range e.Changes {
		out[c.ObjectID] = c.Payload()
	}
	return out
}

// CreateEvent carries the creates of one object type to a Dispatcher.
type CreateEvent struct {
	Integration string
	Object      objects.Object
	Changes     []*order.ObjectChange

	failures
	created map[*order.ObjectChange]string
}

// Created records the ID assigned to a new object.
func (e *CreateEvent) Created(c *order.ObjectChange, id string) {
	if e.created == nil {
		e.created = map[*order.ObjectChange]string{}
	}
	e.created[c] = id
}

// CreatedID returns the ID recorded for a change.
func (e *CreateEvent) CreatedID(c *order.ObjectChange) (string, bool) {
	id, ok := e.created[c]
	return id, ok && id != ""
}
