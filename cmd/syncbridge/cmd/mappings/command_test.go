package mappings_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncbridge/cmd/application"
	"github.com/agentstation/syncbridge/cmd/syncbridge/cmd/mappings"
	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/mapping"
	"github.com/agentstation/syncbridge/pkg/mapping/memory"
)

func seeded(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	synced := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, m := range []*mapping.ObjectMapping{
		{Integration: "hubspot", InternalObjectName: "Contact", InternalObjectID: "1", IntegrationObjectName: "lead", IntegrationObjectID: "L1", LastSyncDate: synced},
		{Integration: "hubspot", InternalObjectName: "Contact", InternalObjectID: "2", IntegrationObjectName: "lead", IntegrationObjectID: "L2", LastSyncDate: synced},
		{Integration: "salesforce", InternalObjectName: "Company", InternalObjectID: "9", IntegrationObjectName: "account", IntegrationObjectID: "A9", LastSyncDate: synced},
	} {
		require.NoError(t, s.Save(context.Background(), m))
	}
	return s
}

func run(t *testing.T, store mapping.Store, args ...string) (string, error) {
	t.Helper()
	app := &application.Mock{
		StoreFunc: func(context.Context) (mapping.Store, error) { return store, nil },
	}
	root := &cobra.Command{Use: "syncbridge"}
	root.AddGroup(&cobra.Group{ID: "management", Title: "Management Commands:"})
	root.AddCommand(mappings.NewCommand(app))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestList(t *testing.T) {
	store := seeded(t)

	out, err := run(t, store, "mappings", "list", "--integration", "hubspot")
	require.NoError(t, err)

	var rows mappings.Rows
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "L1", rows[0].IntegrationObjectID)
	assert.Equal(t, "Contact", rows[1].InternalObject)
}

func TestDeleteAndListAll(t *testing.T) {
	store := seeded(t)

	out, err := run(t, store, "mappings", "delete", "--integration", "hubspot", "--side", "internal", "Contact", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "1 mapping(s) marked deleted")
	assert.Equal(t, 1, store.Clears())

	out, err = run(t, store, "mappings", "list", "--integration", "hubspot")
	require.NoError(t, err)
	var rows mappings.Rows
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Len(t, rows, 1)

	out, err = run(t, store, "mappings", "list", "--integration", "hubspot", "--all")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Deleted)
}

func TestDeleteValidation(t *testing.T) {
	store := seeded(t)

	_, err := run(t, store, "mappings", "delete", "lead", "L1")
	assert.True(t, errors.IsValidationError(err))

	_, err = run(t, store, "mappings", "delete", "--integration", "hubspot", "--side", "both", "lead", "L1")
	assert.True(t, errors.IsValidationError(err))
}

func TestRemap(t *testing.T) {
	ctx := context.Background()
	store := seeded(t)

	out, err := run(t, store, "mappings", "remap", "--integration", "hubspot", "lead", "L2", "contact", "C2")
	require.NoError(t, err)
	assert.Contains(t, out, "1 mapping(s) remapped")

	got, err := store.FindByIntegrationObject(ctx, "hubspot", "contact", "C2")
	require.NoError(t, err)
	assert.Equal(t, "2", got.InternalObjectID)

	_, err = run(t, store, "mappings", "remap", "--integration", "hubspot", "lead", "nope", "contact", "C3")
	assert.True(t, errors.IsObjectNotFound(err))
}

func TestRowsTable(t *testing.T) {
	data := mappings.Rows{{ID: 7, Integration: "hubspot", InternalObject: "Contact", InternalObjectID: "1", IntegrationObject: "lead", IntegrationObjectID: "L1"}}.Table()
	require.Len(t, data.Rows, 1)
	assert.Equal(t, []string{"7", "hubspot", "Contact/1", "lead/L1"}, data.Rows[0][:4])
}
