// Package mappingtest is a behavioral test suite every mapping.Store
// implementation runs against.
package mappingtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/mapping"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) mapping.Store

func link(internalName, internalID, integrationName, integrationID string) *mapping.ObjectMapping {
	return &mapping.ObjectMapping{
		Integration:           "hubspot",
		InternalObjectName:    internalName,
		InternalObjectID:      internalID,
		IntegrationObjectName: integrationName,
		IntegrationObjectID:   integrationID,
		LastSyncDate:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("save assigns id and finds both ways", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		m := link("Contact", "1", "lead", "100")
		require.NoError(t, s.Save(ctx, m))
		assert.NotZero(t, m.ID)

		got, err := s.InternalObject(ctx, "hubspot", "lead", "100", "Contact")
		require.NoError(t, err)
		assert.Equal(t, "1", got.InternalObjectID)
		assert.False(t, got.DateCreated.IsZero())

		got, err = s.IntegrationObject(ctx, "hubspot", "Contact", "1", "lead")
		require.NoError(t, err)
		assert.Equal(t, "100", got.IntegrationObjectID)

		got, err = s.FindByIntegrationObject(ctx, "hubspot", "lead", "100")
		require.NoError(t, err)
		assert.Equal(t, m.ID, got.ID)
	})

	t.Run("missing lookups fail with object not found", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		_, err := s.InternalObject(ctx, "hubspot", "lead", "1", "Contact")
		assert.True(t, errors.IsObjectNotFound(err))
		_, err = s.IntegrationObject(ctx, "hubspot", "Contact", "1", "lead")
		assert.True(t, errors.IsObjectNotFound(err))
		_, err = s.FindByIntegrationObject(ctx, "other", "lead", "1")
		assert.True(t, errors.IsObjectNotFound(err))
	})

	t.Run("update advances last sync date", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		m := link("Contact", "1", "lead", "100")
		require.NoError(t, s.Save(ctx, m))

		later := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		m.LastSyncDate = later
		require.NoError(t, s.Save(ctx, m))

		got, err := s.FindByIntegrationObject(ctx, "hubspot", "lead", "100")
		require.NoError(t, err)
		assert.True(t, later.Equal(got.LastSyncDate))

		all, err := s.List(ctx, mapping.Filter{IncludeDeleted: true})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("second live mapping for a key is rejected", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Save(ctx, link("Contact", "1", "lead", "100")))
		assert.Error(t, s.Save(ctx, link("Contact", "1", "lead", "200")))
	})

	t.Run("soft delete keeps history", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Save(ctx, link("Contact", "1", "lead", "100")))
		require.NoError(t, s.Save(ctx, link("Contact", "2", "lead", "200")))

		n, err := s.MarkAsDeleted(ctx, "hubspot", mapping.SideIntegration, "lead", "100")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := s.InternalObject(ctx, "hubspot", "lead", "100", "Contact")
		require.NoError(t, err)
		assert.True(t, got.IsDeleted)

		live, err := s.List(ctx, mapping.Filter{Integration: "hubspot"})
		require.NoError(t, err)
		assert.Len(t, live, 1)

		all, err := s.List(ctx, mapping.Filter{Integration: "hubspot", IncludeDeleted: true})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		// deleting again is a no-op
		n, err = s.MarkAsDeleted(ctx, "hubspot", mapping.SideIntegration, "lead", "100")
		require.NoError(t, err)
		assert.Zero(t, n)

		// a new live link for the same key is allowed after deletion
		require.NoError(t, s.Save(ctx, link("Contact", "1", "lead", "300")))
		got, err = s.IntegrationObject(ctx, "hubspot", "Contact", "1", "lead")
		require.NoError(t, err)
		assert.False(t, got.IsDeleted)
		assert.Equal(t, "300", got.IntegrationObjectID)
	})

	t.Run("mark internal side deleted", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Save(ctx, link("Contact", "1", "lead", "100")))
		require.NoError(t, s.Save(ctx, link("Contact", "1", "person", "500")))

		n, err := s.MarkAsDeleted(ctx, "hubspot", mapping.SideInternal, "Contact", "1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("remap rewrites integration identity", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Save(ctx, link("Contact", "1", "lead", "100")))

		n, err := s.UpdateIntegrationObject(ctx, "hubspot", "lead", "100", "contact", "900")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = s.FindByIntegrationObject(ctx, "hubspot", "lead", "100")
		assert.True(t, errors.IsObjectNotFound(err))

		got, err := s.FindByIntegrationObject(ctx, "hubspot", "contact", "900")
		require.NoError(t, err)
		assert.Equal(t, "1", got.InternalObjectID)
	})

	t.Run("list filters", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Save(ctx, link("Contact", "1", "lead", "100")))
		require.NoError(t, s.Save(ctx, link("Company", "1", "account", "7")))
		other := link("Contact", "1", "lead", "100")
		other.Integration = "salesforce"
		require.NoError(t, s.Save(ctx, other))

		got, err := s.List(ctx, mapping.Filter{Integration: "hubspot", InternalObjectName: "Company"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "account", got[0].IntegrationObjectName)

		got, err = s.List(ctx, mapping.Filter{IntegrationObjectName: "lead"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Less(t, got[0].ID, got[1].ID)
	})

	t.Run("lock serializes one integration", func(t *testing.T) {
		s := newStore(t)

		release, err := s.Lock(context.Background(), "hubspot")
		require.NoError(t, err)

		other, err := s.Lock(context.Background(), "salesforce")
		require.NoError(t, err)
		other()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = s.Lock(ctx, "hubspot")
		assert.Error(t, err)

		release()
		again, err := s.Lock(context.Background(), "hubspot")
		require.NoError(t, err)
		again()
	})
}
