package notifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/syncbridge/pkg/order"
)

// Entry is one failed object in a summary message.
type Entry struct {
	Object              string `json:"object"`
	ObjectID            string `json:"object_id,omitempty"`
	IntegrationObject   string `json:"integration_object"`
	IntegrationObjectID string `json:"integration_object_id"`
	Message             string `json:"message"`
}

// Message summarizes the failed objects of one integration object type.
type Message struct {
	Integration string  `json:"integration"`
	Object      string  `json:"object"`
	Header      string  `json:"header"`
	Entries     []Entry `json:"entries"`
}

// Inbox receives summary messages.
type Inbox interface {
	Send(ctx context.Context, msg Message) error
}

// InboxHandler buffers entries and sends one Message per integration and
// object display name on Finalize.
type InboxHandler struct {
	inbox Inbox

	mu       sync.Mutex
	groups   []string
	messages map[string]*Message
}

// NewInboxHandler creates a handler that sends summaries to inbox.
func NewInboxHandler(inbox Inbox) *InboxHandler {
	return &InboxHandler{inbox: inbox, messages: map[string]*Message{}}
}

// WriteEntry implements Handler.
func (h *InboxHandler) WriteEntry(_ context.Context, n order.Notification, integrationDisplayName, objectDisplayName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := integrationDisplayName + "\x00" + objectDisplayName
	msg, ok := h.messages[key]
	if !ok {
		msg = &Message{Integration: integrationDisplayName, Object: objectDisplayName}
		h.messages[key] = msg
		h.groups = append(h.groups, key)
	}
	msg.Entries = append(msg.Entries, Entry{
		Object:              n.Object(),
		ObjectID:            n.ObjectID(),
		IntegrationObject:   n.IntegrationObject(),
		IntegrationObjectID: n.IntegrationObjectID(),
		Message:             n.Message,
	})
	return nil
}

// Finalize implements Handler. The buffer is dropped even if a send fails.
func (h *InboxHandler) Finalize(ctx context.Context) error {
	h.mu.Lock()
	groups, messages := h.groups, h.messages
	h.groups, h.messages = nil, map[string]*Message{}
	h.mu.Unlock()

	for _, key := range groups {
		msg := messages[key]
		msg.Header = fmt.Sprintf("%d %s record(s) failed to sync from %s", len(msg.Entries), msg.Object, msg.Integration)
		if err := h.inbox.Send(ctx, *msg); err != nil {
			return err
		}
	}
	return nil
}

// Pending returns the number of buffered entries.
func (h *InboxHandler) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, msg := range h.messages {
		n += len(msg.Entries)
	}
	return n
}

// LogInbox writes summaries to a logger.
type LogInbox struct {
	logger *zerolog.Logger
}

// NewLogInbox creates an inbox that logs at warn level.
func NewLogInbox(logger *zerolog.Logger) *LogInbox {
	return &LogInbox{logger: logger}
}

// Send implements Inbox.
func (l *LogInbox) Send(_ context.Context, msg Message) error {
	for _, e := range msg.Entries {
		l.logger.Warn().
			Str("integration", msg.Integration).
			Str("object", e.Object).
			Str("object_id", e.ObjectID).
			Str("integration_object", msg.Object).
			Str("integration_object_id", e.IntegrationObjectID).
			Msg(e.Message)
	}
	l.logger.Warn().
		Str("integration", msg.Integration).
		Str("integration_object", msg.Object).
		Int("count", len(msg.Entries)).
		Msg(msg.Header)
	return nil
}
