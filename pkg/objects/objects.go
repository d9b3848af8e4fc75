// Package objects is the registry of internal object types that can take
// part in a sync. Each type is registered once at startup with the fields
// that identify it uniquely and a finder that searches by those fields.
package objects

import (
	"context"
	"sort"
	"sync"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/value"
)

// Object is an internal object type.
type Object interface {
	// Name is the logical name used in manuals and mappings.
	Name() string

	// EntityName is the underlying storage entity, such as a table.
	EntityName() string

	// UniqueIdentifierFields lists the fields that identify one instance.
	UniqueIdentifierFields() []string

	// FindByIdentifiers returns the IDs of instances matching every
	// identifier value, most relevant first.
	FindByIdentifiers(ctx context.Context, identifiers map[string]value.NormalizedValue) ([]string, error)
}

// FinderFunc adapts a function to the identifier search of an Object.
type FinderFunc func(ctx context.Context, identifiers map[string]value.NormalizedValue) ([]string, error)

// Definition is a ready-made Object built from its parts.
type Definition struct {
	ObjectName  string
	Entity      string
	Identifiers []string
	Finder      FinderFunc
}

// Name implements Object.
func (d *Definition) Name() string { return d.ObjectName }

// EntityName implements Object. It defaults to the object name.
func (d *Definition) EntityName() string {
	if d.Entity == "" {
		return d.ObjectName
	}
	return d.Entity
}

// UniqueIdentifierFields implements Object.
func (d *Definition) UniqueIdentifierFields() []string { return d.Identifiers }

// FindByIdentifiers implements Object.
func (d *Definition) FindByIdentifiers(ctx context.Context, identifiers map[string]value.NormalizedValue) ([]string, error) {
	if d.Finder == nil {
		return nil, nil
	}
	return d.Finder(ctx, identifiers)
}

// Registry resolves internal object types by name or entity name.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]Object
	byEntity map[string]Object
}

// NewRegistry creates a registry holding the given objects.
func NewRegistry(objs ...Object) (*Registry, error) {
	r := &Registry{
		byName:   map[string]Object{},
		byEntity: map[string]Object{},
	}
	for _, o := range objs {
		if err := r.Register(o); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an object type. Names and entity names must be unique.
func (r *Registry) Register(o Object) error {
	if o == nil || o.Name() == "" {
		return errors.NewValidationError("name", nil, "object name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[o.Name()]; ok {
		return errors.NewValidationError("name", o.Name(), "object already registered")
	}
	if _, ok := r.byEntity[o.EntityName()]; ok {
		return errors.NewValidationError("entity", o.EntityName(), "entity already registered")
	}
	r.byName[o.Name()] = o
	r.byEntity[o.EntityName()] = o
	return nil
}

// ByName returns the object registered under a logical name.
func (r *Registry) ByName(name string) (Object, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if o, ok := r.byName[name]; ok {
		return o, nil
	}
	return nil, errors.NewObjectNotFoundError(name, "")
}

// ByEntityName returns the object stored in the given entity.
func (r *Registry) ByEntityName(entity string) (Object, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if o, ok := r.byEntity[entity]; ok {
		return o, nil
	}
	return nil, errors.NewObjectNotFoundError(entity, "")
}

// Names returns the registered object names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
