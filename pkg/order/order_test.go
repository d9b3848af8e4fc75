package order_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/mapping"
	"github.com/agentstation/syncbridge/pkg/order"
	"github.com/agentstation/syncbridge/pkg/report"
	"github.com/agentstation/syncbridge/pkg/value"
)

func TestOrderGrouping(t *testing.T) {
	o := order.New("hubspot", true, time.Now())
	_, err := uuid.Parse(o.ID)
	require.NoError(t, err)

	o.AddObjectChange(order.NewObjectChange("hubspot", "Contact", "1", "lead", "100"))
	o.AddObjectChange(order.NewObjectChange("hubspot", "Company", "", "account", "7"))
	o.AddObjectChange(order.NewObjectChange("hubspot", "Contact", "", "lead", "300"))
	o.AddObjectChange(order.NewObjectChange("hubspot", "Contact", "2", "lead", "200"))

	assert.Equal(t, []string{"Contact", "Company"}, o.ObjectTypes())
	assert.Equal(t, 4, o.Len())
	assert.Len(t, o.Updates("Contact"), 2)
	assert.Len(t, o.Creates("Contact"), 1)
	assert.Empty(t, o.Updates("Company"))
	assert.Len(t, o.Creates("Company"), 1)
	assert.False(t, o.IsEmpty())
}

func TestOrderSideRecords(t *testing.T) {
	o := order.New("hubspot", false, time.Now())
	assert.True(t, o.IsEmpty())

	o.AddDeletedObject(order.DeletedObject{Side: mapping.SideIntegration, Object: "lead", ObjectID: "1"})
	o.AddRemappedObject(order.RemappedObject{OldObject: "lead", OldObjectID: "2", NewObject: "contact", NewObjectID: "3"})
	change := order.NewObjectChange("hubspot", "Contact", "5", "lead", "9")
	o.AddNotification(order.Notification{Change: change, Message: "rejected"})

	assert.False(t, o.IsEmpty())
	assert.Len(t, o.DeletedObjects(), 1)
	assert.Len(t, o.RemappedObjects(), 1)
	require.Len(t, o.Notifications(), 1)

	n := o.Notifications()[0]
	assert.Equal(t, "hubspot", n.Integration())
	assert.Equal(t, "Contact", n.Object())
	assert.Equal(t, "5", n.ObjectID())
	assert.Equal(t, "lead", n.IntegrationObject())
	assert.Equal(t, "9", n.IntegrationObjectID())
}

func TestObjectChangeFields(t *testing.T) {
	c := order.NewObjectChange("hubspot", "Contact", "1", "lead", "100")
	c.AddField(order.FieldValue{Name: "email", Value: value.String("a"), State: report.FieldStateRequired})
	c.AddField(order.FieldValue{Name: "city", Value: value.String("b"), State: report.FieldStateChanged})
	c.AddField(order.FieldValue{Name: "email", Value: value.String("c"), State: report.FieldStateRequired})

	fields := c.Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, "email", fields[0].Name)
	assert.Equal(t, "c", fields[0].Value.Normalized())
	assert.Len(t, c.RequiredFields(), 1)
	assert.Len(t, c.ChangedFields(), 1)
	assert.Equal(t, "b", c.Payload()["city"].Normalized())

	_, err := c.Field("phone")
	assert.True(t, errors.IsFieldNotFound(err))
	assert.Equal(t, "Contact:1<-lead:100", c.String())
}

func TestStatusTransitions(t *testing.T) {
	t.Run("update path", func(t *testing.T) {
		c := order.NewObjectChange("hubspot", "Contact", "1", "lead", "100")
		assert.Equal(t, order.StatusPending, c.Status())
		require.NoError(t, c.Advance(order.StatusDispatched))
		assert.Error(t, c.Created("9"))
		require.NoError(t, c.Advance(order.StatusMapped))
		assert.Equal(t, order.StatusMapped, c.Status())
	})

	t.Run("create path", func(t *testing.T) {
		c := order.NewObjectChange("hubspot", "Contact", "", "lead", "100")
		assert.True(t, c.IsCreate())
		assert.Error(t, c.Advance(order.StatusMapped))
		require.NoError(t, c.Advance(order.StatusDispatched))
		assert.Error(t, c.Advance(order.StatusMapped))
		require.NoError(t, c.Created("42"))
		assert.Equal(t, "42", c.ObjectID)
		assert.Equal(t, order.StatusCreated, c.Status())
		require.NoError(t, c.Advance(order.StatusMapped))
	})

	t.Run("no skipping", func(t *testing.T) {
		c := order.NewObjectChange("hubspot", "Contact", "", "lead", "100")
		err := c.Created("1")
		assert.True(t, errors.IsValidationError(err))
		assert.Equal(t, order.StatusPending, c.Status())
		assert.Empty(t, c.ObjectID)
	})
}
