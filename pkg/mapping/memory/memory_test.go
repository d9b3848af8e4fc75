package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/mapping"
	"github.com/agentstation/syncbridge/pkg/mapping/mappingtest"
	"github.com/agentstation/syncbridge/pkg/mapping/memory"
)

func TestStore(t *testing.T) {
	mappingtest.Run(t, func(t *testing.T) mapping.Store {
		return memory.New()
	})
}

func TestClock(t *testing.T) {
	fixed := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	s := memory.New(memory.WithClock(func() time.Time { return fixed }))

	m := &mapping.ObjectMapping{Integration: "hubspot", InternalObjectName: "Contact", InternalObjectID: "1", IntegrationObjectName: "lead", IntegrationObjectID: "1"}
	require.NoError(t, s.Save(context.Background(), m))
	assert.Equal(t, fixed, m.DateCreated)
}

func TestSaveUnknownID(t *testing.T) {
	s := memory.New()
	err := s.Save(context.Background(), &mapping.ObjectMapping{ID: 42, Integration: "hubspot"})
	assert.True(t, errors.IsObjectNotFound(err))
}

func TestReturnedMappingsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	m := &mapping.ObjectMapping{Integration: "hubspot", InternalObjectName: "Contact", InternalObjectID: "1", IntegrationObjectName: "lead", IntegrationObjectID: "1"}
	require.NoError(t, s.Save(ctx, m))

	got, err := s.FindByIntegrationObject(ctx, "hubspot", "lead", "1")
	require.NoError(t, err)
	got.IsDeleted = true

	again, err := s.FindByIntegrationObject(ctx, "hubspot", "lead", "1")
	require.NoError(t, err)
	assert.False(t, again.IsDeleted)
}
