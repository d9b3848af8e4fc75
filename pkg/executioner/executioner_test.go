package executioner_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/executioner"
	"github.com/agentstation/syncbridge/pkg/mapping"
	"github.com/agentstation/syncbridge/pkg/mapping/memory"
	"github.com/agentstation/syncbridge/pkg/objects"
	"github.com/agentstation/syncbridge/pkg/order"
	"github.com/agentstation/syncbridge/pkg/resolver"
	"github.com/agentstation/syncbridge/pkg/value"
)

const integration = "Test"

var (
	lastSync = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	modified = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
)

// dispatch is one recorded Dispatcher call.
type dispatch struct {
	kind    string
	object  string
	ids     []string
	payload int
}

// mockDispatcher records calls and lets tests shape the outcome.
type mockDispatcher struct {
	calls []dispatch

	UpdateFunc func(ctx context.Context, event *executioner.UpdateEvent) error
	CreateFunc func(ctx context.Context, event *executioner.CreateEvent) error
}

func (d *mockDispatcher) UpdateObjects(ctx context.Context, event *executioner.UpdateEvent) error {
	d.calls = append(d.calls, dispatch{kind: "update", object: event.Object.Name(), ids: event.IdentifiedObjectIDs(), payload: len(event.Payloads())})
	if d.UpdateFunc != nil {
		return d.UpdateFunc(ctx, event)
	}
	return nil
}

func (d *mockDispatcher) CreateObjects(ctx context.Context, event *executioner.CreateEvent) error {
	d.calls = append(d.calls, dispatch{kind: "create", object: event.Object.Name(), payload: len(event.Changes)})
	if d.CreateFunc != nil {
		return d.CreateFunc(ctx, event)
	}
	for i, c := range event.Changes {
		event.Created(c, "new-"+c.MappedObjectID+"-"+string(rune('a'+i)))
	}
	return nil
}

type fixture struct {
	store      *memory.Store
	dispatcher *mockDispatcher
	exec       *executioner.Executioner
}

func setup(t *testing.T) *fixture {
	t.Helper()
	registry, err := objects.NewRegistry(
		&objects.Definition{ObjectName: "Contact", Identifiers: []string{"email"}},
		&objects.Definition{ObjectName: "Company", Identifiers: []string{"name"}},
	)
	require.NoError(t, err)

	store := memory.New()
	r, err := resolver.New(store, registry)
	require.NoError(t, err)

	d := &mockDispatcher{}
	exec, err := executioner.New(r, registry, d)
	require.NoError(t, err)
	return &fixture{store: store, dispatcher: d, exec: exec}
}

// link seeds an existing identity link.
func (f *fixture) link(t *testing.T, internalObject, internalID, integrationObject, integrationID string) {
	t.Helper()
	require.NoError(t, f.store.Save(context.Background(), &mapping.ObjectMapping{
		Integration:           integration,
		InternalObjectName:    internalObject,
		InternalObjectID:      internalID,
		IntegrationObjectName: integrationObject,
		IntegrationObjectID:   integrationID,
		LastSyncDate:          lastSync,
	}))
}

// addChanges adds two updates (IDs 1 and 2) and one create for a type.
func addChanges(o *order.Order, internalObject, integrationObject string) {
	for _, pair := range [][2]string{{"1", "1"}, {"2", "2"}, {"", "3"}} {
		c := order.NewObjectChange(integration, internalObject, pair[0], integrationObject, pair[1])
		c.AddField(order.FieldValue{Name: "name", Value: value.String("x")})
		c.ChangeDateTime = &modified
		o.AddObjectChange(c)
	}
}

func TestContactsAreUpdatedAndCreated(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.link(t, "Contact", "1", "lead", "1")
	f.link(t, "Contact", "2", "lead", "2")

	o := order.New(integration, false, modified)
	addChanges(o, "Contact", "lead")

	summary, err := f.exec.Execute(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, executioner.Summary{Updated: 2, Created: 1}, summary)

	require.Len(t, f.dispatcher.calls, 2)
	assert.Equal(t, dispatch{kind: "update", object: "Contact", ids: []string{"1", "2"}, payload: 2}, f.dispatcher.calls[0])
	assert.Equal(t, dispatch{kind: "create", object: "Contact", payload: 1}, f.dispatcher.calls[1])

	all, err := f.store.List(ctx, mapping.Filter{Integration: integration})
	require.NoError(t, err)
	require.Len(t, all, 3)

	advanced := 0
	for _, m := range all[:2] {
		if m.LastSyncDate.Equal(modified) {
			advanced++
		}
	}
	assert.Equal(t, 2, advanced)
	assert.Equal(t, "lead", all[2].IntegrationObjectName)
	assert.Equal(t, "3", all[2].IntegrationObjectID)
	assert.NotEmpty(t, all[2].InternalObjectID)

	for _, c := range o.ObjectChanges("Contact") {
		assert.Equal(t, order.StatusMapped, c.Status(), c.String())
	}
	assert.Empty(t, o.Notifications())
}

func TestMixedObjectsAreUpdatedAndCreated(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.link(t, "Contact", "1", "lead", "1")
	f.link(t, "Contact", "2", "lead", "2")
	f.link(t, "Company", "1", "account", "1")
	f.link(t, "Company", "2", "account", "2")

	o := order.New(integration, false, modified)
	addChanges(o, "Contact", "lead")
	addChanges(o, "Company", "account")

	_, err := f.exec.Execute(ctx, o)
	require.NoError(t, err)

	var got []string
	for _, c := range f.dispatcher.calls {
		got = append(got, c.kind+":"+c.object)
	}
	assert.Equal(t, []string{"update:Contact", "update:Company", "create:Contact", "create:Company"}, got)

	for _, name := range []string{"lead", "account"} {
		m, err := f.store.FindByIntegrationObject(ctx, integration, name, "3")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"lead": "Contact", "account": "Company"}[name], m.InternalObjectName)
	}
}

func TestSharedIntegrationObjectAdvancesEachTypesLink(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.link(t, "Contact", "1", "lead", "L1")
	f.link(t, "Company", "4", "lead", "L1")
	f.link(t, "Contact", "2", "lead", "L2")

	o := order.New(integration, false, modified)
	for _, pair := range [][3]string{{"Contact", "1", "L1"}, {"Company", "4", "L1"}, {"Contact", "2", "L2"}, {"Company", "5", "L2"}} {
		c := order.NewObjectChange(integration, pair[0], pair[1], "lead", pair[2])
		c.AddField(order.FieldValue{Name: "name", Value: value.String("x")})
		c.ChangeDateTime = &modified
		o.AddObjectChange(c)
	}

	summary, err := f.exec.Execute(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Updated)

	for _, internalObject := range []string{"Contact", "Company"} {
		m, err := f.store.InternalObject(ctx, integration, "lead", "L1", internalObject)
		require.NoError(t, err)
		assert.Equal(t, modified, m.LastSyncDate, internalObject)
	}

	// Company 5 has no link to lead L2; the Contact link must not count for it.
	companies := o.ObjectChanges("Company")
	require.Len(t, companies, 2)
	assert.Equal(t, order.StatusMapped, companies[0].Status())
	assert.Equal(t, order.StatusDispatched, companies[1].Status())
}

func TestPerObjectFailuresBecomeNotifications(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.link(t, "Contact", "1", "lead", "1")
	f.link(t, "Contact", "2", "lead", "2")

	f.dispatcher.UpdateFunc = func(_ context.Context, e *executioner.UpdateEvent) error {
		e.Fail(e.Changes[1], errors.New("record locked"))
		return nil
	}
	f.dispatcher.CreateFunc = func(_ context.Context, e *executioner.CreateEvent) error {
		e.Fail(e.Changes[0], errors.New("duplicate email"))
		return nil
	}

	o := order.New(integration, false, modified)
	addChanges(o, "Contact", "lead")

	summary, err := f.exec.Execute(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, executioner.Summary{Updated: 1, Failed: 2}, summary)

	notes := o.Notifications()
	require.Len(t, notes, 2)
	assert.Equal(t, "2", notes[0].ObjectID())
	assert.Equal(t, "record locked", notes[0].Message)
	assert.Equal(t, "3", notes[1].IntegrationObjectID())
	assert.Equal(t, "duplicate email", notes[1].Message)

	changes := o.ObjectChanges("Contact")
	assert.Equal(t, order.StatusMapped, changes[0].Status())
	assert.Equal(t, order.StatusDispatched, changes[1].Status())
	assert.Equal(t, order.StatusDispatched, changes[2].Status())

	m, err := f.store.FindByIntegrationObject(ctx, integration, "lead", "2")
	require.NoError(t, err)
	assert.Equal(t, lastSync, m.LastSyncDate)
}

func TestDispatchErrorDoesNotStopOtherTypes(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.link(t, "Company", "1", "account", "1")
	f.link(t, "Company", "2", "account", "2")

	f.dispatcher.UpdateFunc = func(_ context.Context, e *executioner.UpdateEvent) error {
		if e.Object.Name() == "Contact" {
			return errors.New("contacts unavailable")
		}
		return nil
	}

	o := order.New(integration, false, modified)
	addChanges(o, "Contact", "lead")
	addChanges(o, "Company", "account")

	summary, err := f.exec.Execute(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 2, summary.Updated)
	assert.Equal(t, 2, summary.Created)
	assert.Len(t, o.Notifications(), 2)
}

func TestMissingMappingIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.link(t, "Contact", "1", "lead", "1")

	o := order.New(integration, false, modified)
	addChanges(o, "Contact", "lead")

	summary, err := f.exec.Execute(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)

	changes := o.ObjectChanges("Contact")
	assert.Equal(t, order.StatusMapped, changes[0].Status())
	assert.Equal(t, order.StatusDispatched, changes[1].Status())
}

func TestCreateWithoutReportedID(t *testing.T) {
	f := setup(t)
	f.dispatcher.CreateFunc = func(context.Context, *executioner.CreateEvent) error { return nil }

	o := order.New(integration, true, modified)
	o.AddObjectChange(order.NewObjectChange(integration, "Contact", "", "lead", "9"))

	summary, err := f.exec.Execute(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, o.Notifications(), 1)
	assert.Contains(t, o.Notifications()[0].Message, "no Contact ID")
}

func TestRemapsAndDeletionsRunAfterChanges(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.link(t, "Contact", "1", "lead", "1")
	f.link(t, "Contact", "5", "lead", "5")

	o := order.New(integration, false, modified)
	addChanges(o, "Contact", "lead")
	o.AddRemappedObject(order.RemappedObject{OldObject: "lead", OldObjectID: "1", NewObject: "contact", NewObjectID: "C1"})
	o.AddDeletedObject(order.DeletedObject{Side: mapping.SideIntegration, Object: "lead", ObjectID: "5"})

	_, err := f.exec.Execute(ctx, o)
	require.NoError(t, err)

	m, err := f.store.FindByIntegrationObject(ctx, integration, "contact", "C1")
	require.NoError(t, err)
	assert.Equal(t, modified, m.LastSyncDate)

	deleted, err := f.store.FindByIntegrationObject(ctx, integration, "lead", "5")
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
}

func TestUnknownObjectTypeIsFatal(t *testing.T) {
	f := setup(t)
	o := order.New(integration, false, modified)
	o.AddObjectChange(order.NewObjectChange(integration, "Invoice", "1", "bill", "1"))

	_, err := f.exec.Execute(context.Background(), o)
	assert.True(t, errors.IsObjectNotFound(err))
	assert.Empty(t, f.dispatcher.calls)
}

func TestNewValidation(t *testing.T) {
	registry, err := objects.NewRegistry()
	require.NoError(t, err)
	r, err := resolver.New(memory.New(), registry)
	require.NoError(t, err)

	_, err = executioner.New(nil, registry, &mockDispatcher{})
	assert.True(t, errors.IsValidationError(err))
	_, err = executioner.New(r, nil, &mockDispatcher{})
	assert.True(t, errors.IsValidationError(err))
	_, err = executioner.New(r, registry, nil)
	assert.True(t, errors.IsValidationError(err))
}
