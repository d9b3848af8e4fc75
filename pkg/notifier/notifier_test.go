package notifier_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/logging"
	"github.com/agentstation/syncbridge/pkg/notifier"
	"github.com/agentstation/syncbridge/pkg/order"
)

// recordingInbox keeps every message it receives.
type recordingInbox struct {
	messages []notifier.Message
	SendFunc func(ctx context.Context, msg notifier.Message) error
}

func (r *recordingInbox) Send(ctx context.Context, msg notifier.Message) error {
	if r.SendFunc != nil {
		return r.SendFunc(ctx, msg)
	}
	r.messages = append(r.messages, msg)
	return nil
}

func note(object, id, integrationObject, integrationID, message string) order.Notification {
	return order.Notification{
		Change:  order.NewObjectChange("hubspot", object, id, integrationObject, integrationID),
		Message: message,
	}
}

func setup(t *testing.T, directory notifier.IntegrationDirectory) (*notifier.Notifier, *recordingInbox, *notifier.InboxHandler) {
	t.Helper()
	inbox := &recordingInbox{}
	handler := notifier.NewInboxHandler(inbox)

	registry := notifier.NewRegistry()
	require.NoError(t, registry.Register("internal", "Contact", handler))
	require.NoError(t, registry.Register("internal", "Company", handler))

	n, err := notifier.New(registry, directory)
	require.NoError(t, err)
	return n, inbox, handler
}

func TestNoteIssueAndFinalize(t *testing.T) {
	ctx := context.Background()
	directory := notifier.StaticDirectory{
		"hubspot": {DisplayName: "HubSpot", Objects: map[string]string{"lead": "Leads"}},
	}
	n, inbox, handler := setup(t, directory)

	err := n.NoteIssue(ctx, []order.Notification{
		note("Contact", "1", "lead", "L1", "record locked"),
		note("Contact", "", "lead", "L2", "duplicate email"),
		note("Company", "4", "account", "A4", "missing name"),
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 3, handler.Pending())
	assert.Empty(t, inbox.messages)

	require.NoError(t, n.Finalize(ctx))
	require.Len(t, inbox.messages, 2)

	leads := inbox.messages[0]
	assert.Equal(t, "HubSpot", leads.Integration)
	assert.Equal(t, "Leads", leads.Object)
	require.Len(t, leads.Entries, 2)
	assert.Equal(t, "L2", leads.Entries[1].IntegrationObjectID)
	assert.Contains(t, leads.Header, "2 Leads")

	accounts := inbox.messages[1]
	assert.Equal(t, "Account", accounts.Object)

	// Buffers are dropped after flushing.
	assert.Zero(t, handler.Pending())
	require.NoError(t, n.Finalize(ctx))
	assert.Len(t, inbox.messages, 2)
}

func TestNoteIssueErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("handler not supported", func(t *testing.T) {
		n, _, _ := setup(t, notifier.StaticDirectory{"hubspot": {}})
		err := n.NoteIssue(ctx, []order.Notification{note("Invoice", "1", "bill", "B1", "x")}, "")
		assert.True(t, errors.IsHandlerNotSupported(err))

		err = n.NoteIssue(ctx, []order.Notification{note("Contact", "1", "lead", "L1", "x")}, "salesforce")
		assert.True(t, errors.IsHandlerNotSupported(err))
	})

	t.Run("integration not found", func(t *testing.T) {
		n, _, _ := setup(t, notifier.StaticDirectory{})
		err := n.NoteIssue(ctx, []order.Notification{note("Contact", "1", "lead", "L1", "x")}, "")
		assert.True(t, errors.IsIntegrationNotFound(err))
	})
}

func TestFinalizeReturnsSendError(t *testing.T) {
	ctx := context.Background()
	n, inbox, handler := setup(t, notifier.StaticDirectory{"hubspot": {}})
	inbox.SendFunc = func(context.Context, notifier.Message) error { return errors.New("inbox full") }

	require.NoError(t, n.NoteIssue(ctx, []order.Notification{note("Contact", "1", "lead", "L1", "x")}, "internal"))
	assert.Error(t, n.Finalize(ctx))
	assert.Zero(t, handler.Pending())
}

func TestRegistry(t *testing.T) {
	registry := notifier.NewRegistry()
	h := notifier.NewInboxHandler(&recordingInbox{})

	require.NoError(t, registry.Register("internal", "Contact", h))
	require.NoError(t, registry.Register("internal", "Company", h))
	assert.True(t, errors.IsValidationError(registry.Register("internal", "Contact", h)))
	assert.True(t, errors.IsValidationError(registry.Register("internal", "Lead", nil)))
	assert.Len(t, registry.Handlers(), 1)

	got, err := registry.Handler("internal", "Company")
	require.NoError(t, err)
	assert.Same(t, h, got)
}

func TestStaticDirectoryDefaults(t *testing.T) {
	d := notifier.StaticDirectory{"hubspot": {}}
	i, err := d.Integration("hubspot")
	require.NoError(t, err)
	assert.Equal(t, "hubspot", i.Name)
	assert.Equal(t, "Hubspot", i.DisplayName)
	assert.Equal(t, "Lead_status", i.ObjectDisplayName("lead_status"))
	assert.Equal(t, "", i.ObjectDisplayName(""))
}

func TestLogInbox(t *testing.T) {
	tl := logging.NewTestLogger(t)
	inbox := notifier.NewLogInbox(tl.Logger)

	err := inbox.Send(context.Background(), notifier.Message{
		Integration: "HubSpot",
		Object:      "Leads",
		Header:      "1 Leads record(s) failed to sync from HubSpot",
		Entries:     []notifier.Entry{{Object: "Contact", ObjectID: "1", IntegrationObjectID: "L1", Message: "record locked"}},
	})
	require.NoError(t, err)
	tl.AssertCount(t, 2)
	assert.True(t, tl.ContainsAll("record locked", "failed to sync from HubSpot"))
	assert.Len(t, tl.EntriesWith("integration_object_id", "L1"), 1)
}
