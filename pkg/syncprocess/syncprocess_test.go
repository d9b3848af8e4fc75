package syncprocess_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/executioner"
	"github.com/agentstation/syncbridge/pkg/generator"
	"github.com/agentstation/syncbridge/pkg/judge"
	"github.com/agentstation/syncbridge/pkg/logging"
	"github.com/agentstation/syncbridge/pkg/manual"
	"github.com/agentstation/syncbridge/pkg/mapping"
	"github.com/agentstation/syncbridge/pkg/mapping/memory"
	"github.com/agentstation/syncbridge/pkg/notifier"
	"github.com/agentstation/syncbridge/pkg/objects"
	"github.com/agentstation/syncbridge/pkg/report"
	"github.com/agentstation/syncbridge/pkg/resolver"
	"github.com/agentstation/syncbridge/pkg/syncprocess"
	"github.com/agentstation/syncbridge/pkg/value"
)

var (
	synced  = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	changed = time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
)

func at(t time.Time) *time.Time { return &t }

// contactTable is an in-memory internal Contact table.
type contactTable struct {
	rows    map[string]map[string]value.NormalizedValue
	nextID  int
	updates [][]string
}

func (c *contactTable) find(_ context.Context, identifiers map[string]value.NormalizedValue) ([]string, error) {
	var ids []string
	for id, row := range c.rows {
		if row["email"].Equal(identifiers["email"]) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *contactTable) UpdateObjects(_ context.Context, e *executioner.UpdateEvent) error {
	c.updates = append(c.updates, e.IdentifiedObjectIDs())
	for id, payload := range e.Payloads() {
		for field, v := range payload {
			c.rows[id][field] = v
		}
	}
	return nil
}

func (c *contactTable) CreateObjects(_ context.Context, e *executioner.CreateEvent) error {
	for _, change := range e.Changes {
		c.nextID++
		id := string(rune('0' + c.nextID))
		c.rows[id] = change.Payload()
		e.Created(change, id)
	}
	return nil
}

func (c *contactTable) Read(_ context.Context, objectName, id string) (*report.Object, error) {
	row, ok := c.rows[id]
	if !ok {
		return nil, errors.NewObjectNotFoundError(objectName, id)
	}
	o := report.NewObject(objectName, id, at(synced))
	for field, v := range row {
		o.AddField(report.Field{Name: field, Value: v})
	}
	return o, nil
}

type recordingInbox struct {
	messages []notifier.Message
}

func (r *recordingInbox) Send(_ context.Context, msg notifier.Message) error {
	r.messages = append(r.messages, msg)
	return nil
}

type fixture struct {
	process *syncprocess.Process
	store   *memory.Store
	table   *contactTable
	inbox   *recordingInbox
	manual  *manual.Manual
}

func setup(t *testing.T) *fixture {
	t.Helper()
	table := &contactTable{rows: map[string]map[string]value.NormalizedValue{
		"1": {"email": value.Must(value.TypeEmail, "ann@example.com"), "firstname": value.String("Ann")},
	}, nextID: 1}

	registry, err := objects.NewRegistry(&objects.Definition{
		ObjectName:  "Contact",
		Entity:      "contacts",
		Identifiers: []string{"email"},
		Finder:      table.find,
	})
	require.NoError(t, err)

	store := memory.New()
	r, err := resolver.New(store, registry)
	require.NoError(t, err)
	j, err := judge.New()
	require.NoError(t, err)
	g, err := generator.New(j)
	require.NoError(t, err)
	exec, err := executioner.New(r, registry, table)
	require.NoError(t, err)

	inbox := &recordingInbox{}
	handlers := notifier.NewRegistry()
	require.NoError(t, handlers.Register("internal", "Contact", notifier.NewInboxHandler(inbox)))
	n, err := notifier.New(handlers, notifier.StaticDirectory{"hubspot": {DisplayName: "HubSpot"}})
	require.NoError(t, err)

	p, err := syncprocess.New(syncprocess.Components{
		Store:       store,
		Resolver:    r,
		Generator:   g,
		Executioner: exec,
		Notifier:    n,
		Reader:      table,
	})
	require.NoError(t, err)

	m := manual.New("hubspot")
	m.AddObjectMapping("Contact", "lead").
		AddFieldMapping("email", "email_address", manual.Bidirectional, false).
		AddFieldMapping("firstname", "first_name", manual.Bidirectional, true)

	return &fixture{process: p, store: store, table: table, inbox: inbox, manual: m}
}

func lead(id, email, name string) *report.Object {
	o := report.NewObject("lead", id, at(changed))
	o.AddField(report.Field{Name: "email_address", Value: value.Must(value.TypeEmail, email)})
	if name != "" {
		o.AddField(report.Field{Name: "first_name", Value: value.String(name)})
	}
	return o
}

func TestRunMatchesUpdatesAndCreates(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	r := report.New("hubspot")
	r.AddObject(lead("L1", "ann@example.com", "Annie"))
	r.AddObject(lead("L2", "bob@example.com", "Bob"))

	tl := logging.NewTestLogger(t)
	result, err := f.process.Run(ctx, f.manual, r, syncprocess.WithLogger(tl.Logger))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Created)
	assert.Zero(t, result.Skipped)
	assert.NotEmpty(t, result.OrderID)

	// The integration reported a later change, so its value wins.
	assert.Equal(t, "Annie", f.table.rows["1"]["firstname"].String())
	assert.Equal(t, "Bob", f.table.rows["2"]["firstname"].String())
	assert.Equal(t, [][]string{{"1"}}, f.table.updates)

	links, err := f.store.List(ctx, mapping.Filter{Integration: "hubspot"})
	require.NoError(t, err)
	require.Len(t, links, 2)
	for _, l := range links {
		assert.Equal(t, changed, l.LastSyncDate)
	}
	assert.NotEmpty(t, tl.EntriesWith("cycle_id", result.CycleID))

	// A second run reuses the links and creates nothing.
	result, err = f.process.Run(ctx, f.manual, r)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Updated)
	assert.Zero(t, result.Created)
	links, err = f.store.List(ctx, mapping.Filter{Integration: "hubspot"})
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestRunNotifiesMissingRequiredFields(t *testing.T) {
	f := setup(t)

	r := report.New("hubspot")
	r.AddObject(lead("L9", "new@example.com", ""))

	result, err := f.process.Run(context.Background(), f.manual, r)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Notified)

	require.Len(t, f.inbox.messages, 1)
	assert.Equal(t, "HubSpot", f.inbox.messages[0].Integration)
	assert.Equal(t, "L9", f.inbox.messages[0].Entries[0].IntegrationObjectID)
}

func TestRunSkipsDeletedMappings(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	require.NoError(t, f.store.Save(ctx, &mapping.ObjectMapping{
		Integration: "hubspot", InternalObjectName: "Contact", InternalObjectID: "1",
		IntegrationObjectName: "lead", IntegrationObjectID: "L1", LastSyncDate: synced, IsDeleted: true,
	}))

	r := report.New("hubspot")
	r.AddObject(lead("L1", "ann@example.com", "Annie"))

	result, err := f.process.Run(ctx, f.manual, r)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "Ann", f.table.rows["1"]["firstname"].String())
}

func TestRunSchedulesDeleteForVanishedInternalObject(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	require.NoError(t, f.store.Save(ctx, &mapping.ObjectMapping{
		Integration: "hubspot", InternalObjectName: "Contact", InternalObjectID: "7",
		IntegrationObjectName: "lead", IntegrationObjectID: "L7", LastSyncDate: synced,
	}))

	r := report.New("hubspot")
	r.AddObject(lead("L7", "gone@example.com", "Gone"))

	result, err := f.process.Run(ctx, f.manual, r)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)

	m, err := f.store.FindByIntegrationObject(ctx, "hubspot", "lead", "L7")
	require.NoError(t, err)
	assert.True(t, m.IsDeleted)
}

func TestRunHonorsLock(t *testing.T) {
	f := setup(t)
	release, err := f.store.Lock(context.Background(), "hubspot")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = f.process.Run(ctx, f.manual, report.New("hubspot"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFromReport(t *testing.T) {
	internal := report.New("internal")
	internal.AddObject(report.NewObject("Contact", "1", at(changed)).
		AddField(report.Field{Name: "email", Value: value.String("a@b.c")}))

	reader := syncprocess.FromReport(internal)
	o, err := reader.Read(context.Background(), "Contact", "1")
	require.NoError(t, err)
	assert.Len(t, o.Fields(), 1)

	o, err = reader.Read(context.Background(), "Contact", "2")
	require.NoError(t, err)
	assert.Empty(t, o.Fields())
	assert.Nil(t, o.ChangeDateTime)

	o, err = syncprocess.FromReport(nil).Read(context.Background(), "Contact", "3")
	require.NoError(t, err)
	assert.Equal(t, "3", o.ID)
}

func TestNewValidation(t *testing.T) {
	_, err := syncprocess.New(syncprocess.Components{})
	assert.True(t, errors.IsValidationError(err))
}
