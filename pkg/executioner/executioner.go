// Package executioner applies an order: it dispatches updates and creates
// per internal object type and commits the resulting identity links.
//
// Updates for every type run before any creates. Objects that fail are
// recorded on the order as notifications; they do not stop other objects
// or types. Mapping store failures abort the order.
package executioner

import (
	"context"
	"fmt"
	"time"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/logging"
	"github.com/agentstation/syncbridge/pkg/mapping"
	"github.com/agentstation/syncbridge/pkg/metrics"
	"github.com/agentstation/syncbridge/pkg/objects"
	"github.com/agentstation/syncbridge/pkg/order"
)

// MappingWriter persists identity links. *resolver.Resolver implements it.
type MappingWriter interface {
	SaveObjectMappings(ctx context.Context, links []*mapping.ObjectMapping) error
	UpdateObjectMappings(ctx context.Context, updates []order.UpdatedObjectMapping) ([]*mapping.ObjectMapping, error)
	RemapIntegrationObjects(ctx context.Context, integration string, remaps []order.RemappedObject) error
	MarkAsDeleted(ctx context.Context, integration string, deleted []order.DeletedObject) error
}

// ObjectLookup resolves internal object types. *objects.Registry implements it.
type ObjectLookup interface {
	ByName(name string) (objects.Object, error)
}

// Summary counts the outcome of an executed order.
type Summary struct {
	Updated int
	Created int
	Failed  int
}

// Executioner applies orders.
type Executioner struct {
	mappings   MappingWriter
	objects    ObjectLookup
	dispatcher Dispatcher
}

// New creates an executioner.
func New(mappings MappingWriter, lookup ObjectLookup, dispatcher Dispatcher) (*Executioner, error) {
	switch {
	case mappings == nil:
		return nil, &errors.ValidationError{Field: "mappings", Message: "cannot be nil"}
	case lookup == nil:
		return nil, &errors.ValidationError{Field: "objects", Message: "cannot be nil"}
	case dispatcher == nil:
		return nil, &errors.ValidationError{Field: "dispatcher", Message: "cannot be nil"}
	}
	return &Executioner{mappings: mappings, objects: lookup, dispatcher: dispatcher}, nil
}

// Execute applies an order. Failed objects are added to the order's
// notifications.
func (e *Executioner) Execute(ctx context.Context, o *order.Order) (Summary, error) {
	ctx = logging.WithOrder(ctx, o.ID)
	var summary Summary

	for _, objectType := range o.ObjectTypes() {
		if err := e.updateObjects(ctx, o, objectType, &summary); err != nil {
			return summary, err
		}
	}
	for _, objectType := range o.ObjectTypes() {
		if err := e.createObjects(ctx, o, objectType, &summary); err != nil {
			return summary, err
		}
	}

	if remaps := o.RemappedObjects(); len(remaps) > 0 {
		if err := e.mappings.RemapIntegrationObjects(ctx, o.Integration, remaps); err != nil {
			return summary, err
		}
	}
	if deleted := o.DeletedObjects(); len(deleted) > 0 {
		if err := e.mappings.MarkAsDeleted(ctx, o.Integration, deleted); err != nil {
			return summary, err
		}
	}

	logging.FromContext(ctx).Info().
		Int("updated", summary.Updated).
		Int("created", summary.Created).
		Int("failed", summary.Failed).
		Msg("order executed")
	return summary, nil
}

func (e *Executioner) updateObjects(ctx context.Context, o *order.Order, objectType string, summary *Summary) error {
	changes := o.Updates(objectType)
	if len(changes) == 0 {
		return nil
	}
	obj, err := e.objects.ByName(objectType)
	if err != nil {
		return err
	}

	logger := logging.FromContext(ctx).With().Str("object", objectType).Logger()
	event := &UpdateEvent{Integration: o.Integration, Object: obj, Changes: changes}
	if err := dispatched(changes); err != nil {
		return err
	}

	if err := e.dispatcher.UpdateObjects(ctx, event); err != nil {
		logger.Error().Err(err).Int("objects", len(changes)).Msg("update dispatch failed")
		metrics.Dispatches.WithLabelValues(o.Integration, objectType, "update", "error").Inc()
		summary.Failed += notifyAll(o, changes, err)
		return nil
	}

	var updates []order.UpdatedObjectMapping
	for _, c := range changes {
		if err := event.errFor(c); err != nil {
			o.AddNotification(order.Notification{Change: c, Message: err.Error()})
			summary.Failed++
			continue
		}
		updates = append(updates, order.UpdatedObjectMapping{
			Integration:         c.Integration,
			InternalObject:      c.Object,
			IntegrationObject:   c.MappedObject,
			IntegrationObjectID: c.MappedObjectID,
			ObjectModified:      changeTime(c, o.Created),
		})
	}
	metrics.Dispatches.WithLabelValues(o.Integration, objectType, "update", outcome(len(event.Failures()))).Inc()

	if len(updates) == 0 {
		return nil
	}
	updated, err := e.mappings.UpdateObjectMappings(ctx, updates)
	if err != nil {
		return err
	}

	linked := make(map[string]bool, len(updated))
	for _, m := range updated {
		linked[m.InternalObjectName+"\x00"+m.IntegrationObjectName+"\x00"+m.IntegrationObjectID] = true
	}
	for _, c := range changes {
		if !linked[c.Object+"\x00"+c.MappedObject+"\x00"+c.MappedObjectID] {
			continue
		}
		if event.errFor(c) != nil {
			continue
		}
		if err := c.Advance(order.StatusMapped); err != nil {
			return err
		}
		summary.Updated++
	}

	logger.Debug().
		Strs("ids", event.IdentifiedObjectIDs()).
		Int("mapped", len(updated)).
		Msg("updated objects")
	return nil
}

func (e *Executioner) createObjects(ctx context.Context, o *order.Order, objectType string, summary *Summary) error {
	changes := o.Creates(objectType)
	if len(changes) == 0 {
		return nil
	}
	obj, err := e.objects.ByName(objectType)
	if err != nil {
		return err
	}

	logger := logging.FromContext(ctx).With().Str("object", objectType).Logger()
	event := &CreateEvent{Integration: o.Integration, Object: obj, Changes: changes}
	if err := dispatched(changes); err != nil {
		return err
	}

	if err := e.dispatcher.CreateObjects(ctx, event); err != nil {
		logger.Error().Err(err).Int("objects", len(changes)).Msg("create dispatch failed")
		metrics.Dispatches.WithLabelValues(o.Integration, objectType, "create", "error").Inc()
		summary.Failed += notifyAll(o, changes, err)
		return nil
	}

	var (
		links   []*mapping.ObjectMapping
		created []*order.ObjectChange
		failed  int
	)
	for _, c := range changes {
		if err := event.errFor(c); err != nil {
			o.AddNotification(order.Notification{Change: c, Message: err.Error()})
			failed++
			continue
		}
		id, ok := event.CreatedID(c)
		if !ok {
			o.AddNotification(order.Notification{Change: c, Message: fmt.Sprintf("no %s ID was reported for the created object", objectType)})
			failed++
			continue
		}
		if err := c.Created(id); err != nil {
			return err
		}
		links = append(links, &mapping.ObjectMapping{
			Integration:           c.Integration,
			InternalObjectName:    c.Object,
			InternalObjectID:      id,
			IntegrationObjectName: c.MappedObject,
			IntegrationObjectID:   c.MappedObjectID,
			LastSyncDate:          changeTime(c, o.Created),
		})
		created = append(created, c)
	}
	summary.Failed += failed
	metrics.Dispatches.WithLabelValues(o.Integration, objectType, "create", outcome(failed)).Inc()

	if len(links) == 0 {
		return nil
	}
	if err := e.mappings.SaveObjectMappings(ctx, links); err != nil {
		return err
	}
	for _, c := range created {
		if err := c.Advance(order.StatusMapped); err != nil {
			return err
		}
		summary.Created++
	}

	logger.Debug().Int("created", len(created)).Msg("created objects")
	return nil
}

func dispatched(changes []*order.ObjectChange) error {
	for _, c := range changes {
		if err := c.Advance(order.StatusDispatched); err != nil {
			return err
		}
	}
	return nil
}

func notifyAll(o *order.Order, changes []*order.ObjectChange, err error) int {
	for _, c := range changes {
		o.AddNotification(order.Notification{Change: c, Message: err.Error()})
	}
	return len(changes)
}

func changeTime(c *order.ObjectChange, fallback time.Time) time.Time {
	if c.ChangeDateTime != nil {
		return *c.ChangeDateTime
	}
	return fallback
}

func outcome(failed int) string {
	if failed > 0 {
		return "partial"
	}
	return "success"
}
