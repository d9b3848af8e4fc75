// Package resolver finds or creates the identity links between internal and
// integration objects, and applies link maintenance (sync date advances,
// remaps, soft deletes) requested by an executed order.
//
// A link is persisted the moment a match is confirmed, so resolving the same
// integration object twice within a batch returns the same internal object.
package resolver

import (
	"context"
	"time"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/logging"
	"github.com/agentstation/syncbridge/pkg/manual"
	"github.com/agentstation/syncbridge/pkg/mapping"
	"github.com/agentstation/syncbridge/pkg/metrics"
	"github.com/agentstation/syncbridge/pkg/objects"
	"github.com/agentstation/syncbridge/pkg/order"
	"github.com/agentstation/syncbridge/pkg/report"
	"github.com/agentstation/syncbridge/pkg/value"
)

// Resolver is the only writer of the mapping store.
type Resolver struct {
	store    mapping.Store
	registry *objects.Registry
	now      func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver) error

// WithClock overrides the clock used when an object reports no change time.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) error {
		if now == nil {
			return &errors.ValidationError{Field: "clock", Message: "cannot be nil"}
		}
		r.now = now
		return nil
	}
}

// New creates a resolver over a mapping store and internal object registry.
func New(store mapping.Store, registry *objects.Registry, opts ...Option) (*Resolver, error) {
	if store == nil {
		return nil, &errors.ValidationError{Field: "store", Message: "cannot be nil"}
	}
	if registry == nil {
		return nil, &errors.ValidationError{Field: "registry", Message: "cannot be nil"}
	}
	r := &Resolver{
		store:    store,
		registry: registry,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// FindInternalObject returns the internal object linked to an integration
// object. An unresolved result (empty ID) means the object must be created.
//
// It fails with ObjectDeleted when the link was soft-deleted and with
// ObjectNotSupported when internalObjectName is not registered.
func (r *Resolver) FindInternalObject(ctx context.Context, m *manual.Manual, internalObjectName string, integrationObject *report.Object) (*report.Object, error) {
	logger := logging.FromContext(ctx).With().
		Str("integration", m.Integration).
		Str("integration_object", integrationObject.Name).
		Str("integration_object_id", integrationObject.ID).
		Str("internal_object", internalObjectName).
		Logger()

	link, err := r.store.InternalObject(ctx, m.Integration, integrationObject.Name, integrationObject.ID, internalObjectName)
	switch {
	case err == nil && link.IsDeleted:
		return nil, errors.NewObjectDeletedError(m.Integration, integrationObject.Name, integrationObject.ID)
	case err == nil:
		lastSync := link.LastSyncDate
		logger.Debug().Str("internal_object_id", link.InternalObjectID).Msg("found existing mapping")
		return report.NewObject(internalObjectName, link.InternalObjectID, &lastSync), nil
	case !errors.IsObjectNotFound(err):
		return nil, errors.WrapResource("find", "mapping", integrationObject.ID, err)
	}

	obj, err := r.registry.ByName(internalObjectName)
	if err != nil {
		return nil, errors.NewObjectNotSupportedError(m.Integration, internalObjectName)
	}

	identifiers := r.identifiers(m, obj, integrationObject)
	if len(identifiers) == 0 {
		logger.Debug().Msg("no identifier fields have a value; object will be created")
		return report.NewObject(internalObjectName, "", nil), nil
	}

	candidates, err := obj.FindByIdentifiers(ctx, identifiers)
	if err != nil {
		return nil, errors.WrapResource("find", internalObjectName, "", err)
	}

	for _, id := range candidates {
		taken, err := r.linkedElsewhere(ctx, m.Integration, internalObjectName, id, integrationObject)
		if err != nil {
			return nil, err
		}
		if taken {
			logger.Debug().Str("internal_object_id", id).Msg("candidate already linked to another object")
			continue
		}

		changed := r.changeTime(integrationObject)
		link := &mapping.ObjectMapping{
			Integration:           m.Integration,
			InternalObjectName:    internalObjectName,
			InternalObjectID:      id,
			IntegrationObjectName: integrationObject.Name,
			IntegrationObjectID:   integrationObject.ID,
			LastSyncDate:          changed,
		}
		if err := r.save(ctx, link); err != nil {
			return nil, err
		}
		logger.Debug().Str("internal_object_id", id).Msg("matched by identifiers; mapping saved")
		return report.NewObject(internalObjectName, id, &changed), nil
	}

	logger.Debug().Int("candidates", len(candidates)).Msg("no match found; object will be created")
	return report.NewObject(internalObjectName, "", nil), nil
}

// identifiers collects the normalized values of the unique identifier fields
// the integration object reports. Fields with no mapping are not usable.
func (r *Resolver) identifiers(m *manual.Manual, obj objects.Object, integrationObject *report.Object) map[string]value.NormalizedValue {
	identifiers := map[string]value.NormalizedValue{}
	for _, field := range obj.UniqueIdentifierFields() {
		integrationField, err := m.IntegrationMappedField(integrationObject.Name, obj.Name(), field)
		if err != nil {
			continue
		}
		f, err := integrationObject.Field(integrationField)
		if err != nil || f.Value.IsNil() {
			continue
		}
		identifiers[field] = f.Value
	}
	return identifiers
}

// linkedElsewhere reports whether an internal object already has a live link
// to a different object of the same integration type.
func (r *Resolver) linkedElsewhere(ctx context.Context, integration, internalObjectName, internalObjectID string, integrationObject *report.Object) (bool, error) {
	link, err := r.store.IntegrationObject(ctx, integration, internalObjectName, internalObjectID, integrationObject.Name)
	if errors.IsObjectNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.WrapResource("find", "mapping", internalObjectID, err)
	}
	return !link.IsDeleted && link.IntegrationObjectID != integrationObject.ID, nil
}

func (r *Resolver) changeTime(o *report.Object) time.Time {
	if o.ChangeDateTime != nil {
		return o.ChangeDateTime.UTC()
	}
	return r.now()
}

// FindIntegrationObject returns the integration object linked to an internal
// object using the mapping store only. An unresolved result (empty ID)
// means no link exists yet.
func (r *Resolver) FindIntegrationObject(ctx context.Context, integration, integrationObjectName string, internalObject *report.Object) (*report.Object, error) {
	link, err := r.store.IntegrationObject(ctx, integration, internalObject.Name, internalObject.ID, integrationObjectName)
	switch {
	case errors.IsObjectNotFound(err):
		return report.NewObject(integrationObjectName, "", nil), nil
	case err != nil:
		return nil, errors.WrapResource("find", "mapping", internalObject.ID, err)
	case link.IsDeleted:
		return nil, errors.NewObjectDeletedError(integration, internalObject.Name, internalObject.ID)
	}
	lastSync := link.LastSyncDate
	return report.NewObject(integrationObjectName, link.IntegrationObjectID, &lastSync), nil
}

// InternalEntityName returns the storage entity of an internal object type.
func (r *Resolver) InternalEntityName(name string) (string, error) {
	obj, err := r.registry.ByName(name)
	if err != nil {
		return "", errors.NewObjectNotSupportedError("", name)
	}
	return obj.EntityName(), nil
}

// SaveObjectMappings persists new links.
func (r *Resolver) SaveObjectMappings(ctx context.Context, links []*mapping.ObjectMapping) error {
	for _, link := range links {
		if err := r.save(ctx, link); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) save(ctx context.Context, link *mapping.ObjectMapping) error {
	defer r.store.Clear()
	if err := r.store.Save(ctx, link); err != nil {
		return errors.WrapResource("save", "mapping", link.IntegrationObjectID, err)
	}
	return nil
}

// UpdateObjectMappings advances the last sync date of existing links and
// returns the links it updated. Updates whose link no longer exists are
// skipped and counted as misses.
func (r *Resolver) UpdateObjectMappings(ctx context.Context, updates []order.UpdatedObjectMapping) ([]*mapping.ObjectMapping, error) {
	logger := logging.FromContext(ctx)

	var updated []*mapping.ObjectMapping
	for _, u := range updates {
		link, err := r.store.InternalObject(ctx, u.Integration, u.IntegrationObject, u.IntegrationObjectID, u.InternalObject)
		if err == nil && link.IsDeleted {
			err = errors.NewObjectNotFoundError(u.IntegrationObject, u.IntegrationObjectID)
		}
		if errors.IsObjectNotFound(err) {
			metrics.MappingMisses.WithLabelValues(u.Integration).Inc()
			logger.Debug().
				Str("integration", u.Integration).
				Str("internal_object", u.InternalObject).
				Str("integration_object", u.IntegrationObject).
				Str("integration_object_id", u.IntegrationObjectID).
				Msg("no mapping to update; skipping")
			continue
		}
		if err != nil {
			return updated, errors.WrapResource("find", "mapping", u.IntegrationObjectID, err)
		}

		link.LastSyncDate = u.ObjectModified.UTC()
		if err := r.save(ctx, link); err != nil {
			return updated, err
		}
		updated = append(updated, link)
	}
	return updated, nil
}

// RemapIntegrationObjects rewrites the integration identity of existing links.
func (r *Resolver) RemapIntegrationObjects(ctx context.Context, integration string, remaps []order.RemappedObject) error {
	for _, rm := range remaps {
		n, err := r.store.UpdateIntegrationObject(ctx, integration, rm.OldObject, rm.OldObjectID, rm.NewObject, rm.NewObjectID)
		r.store.Clear()
		if err != nil {
			return errors.WrapResource("remap", "mapping", rm.OldObjectID, err)
		}
		logging.FromContext(ctx).Debug().
			Str("integration", integration).
			Str("from", rm.OldObject+":"+rm.OldObjectID).
			Str("to", rm.NewObject+":"+rm.NewObjectID).
			Int("mappings", n).
			Msg("remapped integration object")
	}
	return nil
}

// MarkAsDeleted soft-deletes the links of objects deleted on either side.
func (r *Resolver) MarkAsDeleted(ctx context.Context, integration string, deleted []order.DeletedObject) error {
	for _, d := range deleted {
		n, err := r.store.MarkAsDeleted(ctx, integration, d.Side, d.Object, d.ObjectID)
		r.store.Clear()
		if err != nil {
			return errors.WrapResource("delete", "mapping", d.ObjectID, err)
		}
		logging.FromContext(ctx).Debug().
			Str("integration", integration).
			Str("side", string(d.Side)).
			Str("object", d.Object+":"+d.ObjectID).
			Int("mappings", n).
			Msg("marked mappings deleted")
	}
	return nil
}
