package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/agentstation/syncbridge/pkg/mapping"
)

// DeletedObject is an object confirmed deleted on one side.
type DeletedObject struct {
	Side     mapping.Side
	Object   string
	ObjectID string
}

// RemappedObject is an integration object that the remote system renumbered
// or moved to another object type.
type RemappedObject struct {
	OldObject   string
	OldObjectID string
	NewObject   string
	NewObjectID string
}

// UpdatedObjectMapping asks the resolver to advance the last sync date of
// the link between an integration object and an internal object type.
type UpdatedObjectMapping struct {
	Integration         string
	InternalObject      string
	IntegrationObject   string
	IntegrationObjectID string
	ObjectModified      time.Time
}

// Notification reports a change that could not be applied.
type Notification struct {
	Change  *ObjectChange
	Message string
}

// Integration returns the integration of the failed change.
func (n Notification) Integration() string { return n.Change.Integration }

// Object returns the internal object type of the failed change.
func (n Notification) Object() string { return n.Change.Object }

// ObjectID returns the internal object ID, empty for creates.
func (n Notification) ObjectID() string { return n.Change.ObjectID }

// IntegrationObject returns the integration object type.
func (n Notification) IntegrationObject() string { return n.Change.MappedObject }

// IntegrationObjectID returns the integration object ID.
func (n Notification) IntegrationObjectID() string { return n.Change.MappedObjectID }

// Order batches the object changes of one sync cycle.
type Order struct {
	ID          string
	Created     time.Time
	FirstSync   bool
	Integration string

	types         []string
	changes       map[string][]*ObjectChange
	deleted       []DeletedObject
	remapped      []RemappedObject
	notifications []Notification
}

// New creates an empty order.
func New(integration string, firstSync bool, created time.Time) *Order {
	return &Order{
		ID:          uuid.NewString(),
		Created:     created,
		FirstSync:   firstSync,
		Integration: integration,
		changes:     map[string][]*ObjectChange{},
	}
}

// AddObjectChange adds a change, grouped by its object type.
func (o *Order) AddObjectChange(c *ObjectChange) {
	if _, ok := o.changes[c.Object]; !ok {
		o.types = append(o.types, c.Object)
	}
	o.changes[c.Object] = append(o.changes[c.Object], c)
}

// ObjectTypes returns object types in the order they were first added.
func (o *Order) ObjectTypes() []string {
	out := make([]string, len(o.types))
	copy(out, o.types)
	return out
}

// ObjectChanges returns every change of one object type.
func (o *Order) ObjectChanges(objectType string) []*ObjectChange {
	return o.changes[objectType]
}

// Updates returns the changes of one type that target an existing object.
func (o *Order) Updates(objectType string) []*ObjectChange {
	var out []*ObjectChange
	for _, c := range o.changes[objectType] {
		if !c.IsCreate() {
			out = append(out, c)
		}
	}
	return out
}

// Creates returns the changes of one type that create a new object.
func (o *Order) Creates(objectType string) []*ObjectChange {
	var out []*ObjectChange
	for _, c := range o.changes[objectType] {
		if c.IsCreate() {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of object changes.
func (o *Order) Len() int {
	n := 0
	for _, cs := range o.changes {
		n += len(cs)
	}
	return n
}

// IsEmpty reports whether the order has nothing to apply.
func (o *Order) IsEmpty() bool {
	return o.Len() == 0 && len(o.deleted) == 0 && len(o.remapped) == 0
}

// AddDeletedObject schedules a soft delete of the links for an object.
func (o *Order) AddDeletedObject(d DeletedObject) {
	o.deleted = append(o.deleted, d)
}

// DeletedObjects returns the scheduled deletions.
func (o *Order) DeletedObjects() []DeletedObject {
	return o.deleted
}

// AddRemappedObject schedules an integration identity rewrite.
func (o *Order) AddRemappedObject(r RemappedObject) {
	o.remapped = append(o.remapped, r)
}

// RemappedObjects returns the scheduled remaps.
func (o *Order) RemappedObjects() []RemappedObject {
	return o.remapped
}

// AddNotification records a change that could not be applied.
func (o *Order) AddNotification(n Notification) {
	o.notifications = append(o.notifications, n)
}

// Notifications returns the recorded notifications.
func (o *Order) Notifications() []Notification {
	return o.notifications
}
