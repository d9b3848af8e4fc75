package sqlobjects_test

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncbridge/internal/sqlobjects"
	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/executioner"
	"github.com/agentstation/syncbridge/pkg/objects"
	"github.com/agentstation/syncbridge/pkg/order"
	"github.com/agentstation/syncbridge/pkg/value"
)

func contactsTable() *sqlobjects.Table {
	return &sqlobjects.Table{
		Object:      "Contact",
		Name:        "contacts",
		IDColumn:    "id",
		Identifiers: []string{"email"},
		Columns: map[string]sqlobjects.Column{
			"email":     {Name: "email", Type: value.TypeEmail},
			"firstname": {Name: "first_name", Type: value.TypeString},
		},
		ChangedColumn: "updated_at",
	}
}

func setup(t *testing.T, opts ...sqlobjects.Option) (*sqlobjects.Database, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE contacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT,
		first_name TEXT,
		updated_at TIMESTAMP
	)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO contacts (email, first_name, updated_at) VALUES
		('Ann@Example.com', 'Ann', '2024-01-02 03:04:05'),
		('bob@example.com', 'Bob', NULL)`)
	require.NoError(t, err)

	d, err := sqlobjects.New(db, []*sqlobjects.Table{contactsTable()}, opts...)
	require.NoError(t, err)
	return d, db
}

func contactObject(t *testing.T, d *sqlobjects.Database) objects.Object {
	t.Helper()
	registry, err := objects.NewRegistry(d.Objects()...)
	require.NoError(t, err)
	o, err := registry.ByName("Contact")
	require.NoError(t, err)
	return o
}

func TestFindByIdentifiers(t *testing.T) {
	ctx := context.Background()
	d, _ := setup(t)
	contact := contactObject(t, d)
	assert.Equal(t, "contacts", contact.EntityName())

	ids, err := contact.FindByIdentifiers(ctx, map[string]value.NormalizedValue{
		"email": value.Must(value.TypeEmail, " ANN@example.com"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids)

	ids, err = contact.FindByIdentifiers(ctx, map[string]value.NormalizedValue{
		"email": value.Must(value.TypeEmail, "nobody@example.com"),
	})
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = contact.FindByIdentifiers(ctx, map[string]value.NormalizedValue{})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRead(t *testing.T) {
	ctx := context.Background()
	d, _ := setup(t)

	o, err := d.Read(ctx, "Contact", "1")
	require.NoError(t, err)
	require.NotNil(t, o.ChangeDateTime)
	assert.Equal(t, 2024, o.ChangeDateTime.Year())

	email, err := o.Field("email")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", email.Value.String())

	o, err = d.Read(ctx, "Contact", "2")
	require.NoError(t, err)
	assert.Nil(t, o.ChangeDateTime)

	_, err = d.Read(ctx, "Contact", "99")
	assert.True(t, errors.IsObjectNotFound(err))

	_, err = d.Read(ctx, "Invoice", "1")
	assert.True(t, errors.IsObjectNotSupported(err))
}

func TestReadDecodesLegacyText(t *testing.T) {
	ctx := context.Background()
	d, db := setup(t, sqlobjects.WithCharset(sqlobjects.Windows1252))

	_, err := db.Exec(`INSERT INTO contacts (email, first_name) VALUES (?, ?)`, "jose@example.com", []byte{'J', 'o', 's', 0xE9, ' '})
	require.NoError(t, err)

	o, err := d.Read(ctx, "Contact", "3")
	require.NoError(t, err)
	name, err := o.Field("firstname")
	require.NoError(t, err)
	assert.Equal(t, "José", name.Value.String())
}

func TestUpdateObjects(t *testing.T) {
	ctx := context.Background()
	d, db := setup(t)
	contact := contactObject(t, d)

	ok := order.NewObjectChange("hubspot", "Contact", "2", "lead", "L2").
		AddField(order.FieldValue{Name: "firstname", Value: value.String("Robert")})
	missing := order.NewObjectChange("hubspot", "Contact", "42", "lead", "L42").
		AddField(order.FieldValue{Name: "firstname", Value: value.String("Nobody")})
	unknownField := order.NewObjectChange("hubspot", "Contact", "1", "lead", "L1").
		AddField(order.FieldValue{Name: "shoe_size", Value: value.String("9")})

	event := &executioner.UpdateEvent{Integration: "hubspot", Object: contact, Changes: []*order.ObjectChange{ok, missing, unknownField}}
	require.NoError(t, d.UpdateObjects(ctx, event))

	failures := event.Failures()
	require.Len(t, failures, 2)
	assert.True(t, errors.IsObjectNotFound(failures[0].Err))
	assert.True(t, errors.IsFieldNotFound(failures[1].Err))

	var name string
	require.NoError(t, db.QueryRow(`SELECT first_name FROM contacts WHERE id = 2`).Scan(&name))
	assert.Equal(t, "Robert", name)

	o, err := d.Read(ctx, "Contact", "2")
	require.NoError(t, err)
	assert.NotNil(t, o.ChangeDateTime)
}

func TestCreateObjects(t *testing.T) {
	ctx := context.Background()
	d, _ := setup(t)
	contact := contactObject(t, d)

	c := order.NewObjectChange("hubspot", "Contact", "", "lead", "L3").
		AddField(order.FieldValue{Name: "email", Value: value.Must(value.TypeEmail, "Cy@example.com")}).
		AddField(order.FieldValue{Name: "firstname", Value: value.String("Cy")})

	event := &executioner.CreateEvent{Integration: "hubspot", Object: contact, Changes: []*order.ObjectChange{c}}
	require.NoError(t, d.CreateObjects(ctx, event))
	assert.Empty(t, event.Failures())

	id, ok := event.CreatedID(c)
	require.True(t, ok)
	assert.Equal(t, "3", id)

	o, err := d.Read(ctx, "Contact", id)
	require.NoError(t, err)
	email, err := o.Field("email")
	require.NoError(t, err)
	assert.Equal(t, "cy@example.com", email.Value.String())
}

func TestTableValidation(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	tests := []struct {
		name   string
		mutate func(*sqlobjects.Table)
	}{
		{name: "injected table name", mutate: func(tb *sqlobjects.Table) { tb.Name = "contacts; DROP TABLE x" }},
		{name: "unmapped identifier", mutate: func(tb *sqlobjects.Table) { tb.Identifiers = []string{"phone"} }},
		{name: "bad type", mutate: func(tb *sqlobjects.Table) { tb.Columns["email"] = sqlobjects.Column{Name: "email", Type: "blob"} }},
		{name: "no object", mutate: func(tb *sqlobjects.Table) { tb.Object = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := contactsTable()
			tt.mutate(tb)
			_, err := sqlobjects.New(db, []*sqlobjects.Table{tb})
			assert.True(t, errors.IsValidationError(err))
		})
	}

	_, err = sqlobjects.New(db, []*sqlobjects.Table{contactsTable(), contactsTable()})
	assert.True(t, errors.IsValidationError(err))

	_, err = sqlobjects.Open(context.Background(), "mysql", "", nil)
	assert.True(t, errors.IsValidationError(err))
}
