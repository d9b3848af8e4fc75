// Package mapping defines the persistent identity link between an internal
// object and an integration object, and the store that keeps those links.
//
// Links are never hard-removed. A link for an object that disappeared on
// either side is marked deleted and stays listable as history.
package mapping

import (
	"context"
	"time"
)

// Side names one end of an identity link.
type Side string

// Link sides.
const (
	SideInternal    Side = "internal"
	SideIntegration Side = "integration"
)

// ObjectMapping is an identity link between two object instances.
type ObjectMapping struct {
	ID                    int64
	DateCreated           time.Time
	Integration           string
	InternalObjectName    string
	InternalObjectID      string
	IntegrationObjectName string
	IntegrationObjectID   string
	LastSyncDate          time.Time
	IsDeleted             bool
}

// Key identifies the tuple that may have at most one live mapping.
type Key struct {
	Integration           string
	InternalObjectName    string
	InternalObjectID      string
	IntegrationObjectName string
}

// Key returns the uniqueness key of the mapping.
func (m *ObjectMapping) Key() Key {
	return Key{
		Integration:           m.Integration,
		InternalObjectName:    m.InternalObjectName,
		InternalObjectID:      m.InternalObjectID,
		IntegrationObjectName: m.IntegrationObjectName,
	}
}

// Filter narrows List results.
type Filter struct {
	Integration           string
	InternalObjectName    string
	IntegrationObjectName string
	IncludeDeleted        bool
}

// Matches reports whether m passes the filter.
func (f Filter) Matches(m *ObjectMapping) bool {
	if f.Integration != "" && m.Integration != f.Integration {
		return false
	}
	if f.InternalObjectName != "" && m.InternalObjectName != f.InternalObjectName {
		return false
	}
	if f.IntegrationObjectName != "" && m.IntegrationObjectName != f.IntegrationObjectName {
		return false
	}
	return f.IncludeDeleted || !m.IsDeleted
}

// Store persists identity links.
//
// Lookups return an ObjectNotFound error when nothing matches. When both a
// live and a deleted link match, the live one is returned; otherwise the most
// recently created link is returned so a deleted identity stays visible.
type Store interface {
	// InternalObject finds the link for an integration object, looking for
	// its counterpart of type internalObjectName.
	InternalObject(ctx context.Context, integration, integrationObjectName, integrationObjectID, internalObjectName string) (*ObjectMapping, error)

	// IntegrationObject finds the link for an internal object, looking for
	// its counterpart of type integrationObjectName.
	IntegrationObject(ctx context.Context, integration, internalObjectName, internalObjectID, integrationObjectName string) (*ObjectMapping, error)

	// FindByIntegrationObject finds the link for an integration object
	// regardless of the internal object type.
	FindByIntegrationObject(ctx context.Context, integration, integrationObjectName, integrationObjectID string) (*ObjectMapping, error)

	// Save inserts a link with a zero ID, or updates an existing one.
	// Inserting a second live link for the same Key fails.
	Save(ctx context.Context, m *ObjectMapping) error

	// UpdateIntegrationObject rewrites the integration side of every live
	// link pointing at the old identity. It returns the number rewritten.
	UpdateIntegrationObject(ctx context.Context, integration, oldObjectName, oldObjectID, newObjectName, newObjectID string) (int, error)

	// MarkAsDeleted soft-deletes every live link whose given side matches.
	// It returns the number marked.
	MarkAsDeleted(ctx context.Context, integration string, side Side, objectName, objectID string) (int, error)

	// List returns links passing the filter ordered by ID.
	List(ctx context.Context, filter Filter) ([]*ObjectMapping, error)

	// Clear drops any identity cache held by the store.
	Clear()

	// Lock serializes sync cycles for one integration. The returned
	// function releases the lock.
	Lock(ctx context.Context, integration string) (func(), error)
}

// Closer is implemented by stores holding connections.
type Closer interface {
	Close() error
}

// Pick chooses the link a lookup should return from its candidates: the
// first live one, else the most recently created deleted one.
func Pick(candidates []*ObjectMapping) *ObjectMapping {
	var latest *ObjectMapping
	for _, m := range candidates {
		if !m.IsDeleted {
			return m
		}
		if latest == nil || m.ID > latest.ID {
			latest = m
		}
	}
	return latest
}
