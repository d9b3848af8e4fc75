// Package notifier reports object changes that could not be applied.
//
// Notifications are routed to a Handler chosen by handler key and internal
// object type. Handlers buffer entries and flush once per batch on Finalize.
package notifier

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agentstation/syncbridge/pkg/constants"
	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/logging"
	"github.com/agentstation/syncbridge/pkg/metrics"
	"github.com/agentstation/syncbridge/pkg/order"
)

// Handler writes notifications for one or more object types.
type Handler interface {
	// WriteEntry buffers one notification.
	WriteEntry(ctx context.Context, n order.Notification, integrationDisplayName, objectDisplayName string) error

	// Finalize flushes buffered entries and resets the buffer.
	Finalize(ctx context.Context) error
}

type handlerKey struct {
	key    string
	object string
}

// Registry maps a handler key and internal object type to a Handler.
// It is built once at startup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[handlerKey]Handler
	ordered  []Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[handlerKey]Handler{}}
}

// Register adds a handler for a key and object type.
func (r *Registry) Register(key, objectType string, h Handler) error {
	if h == nil {
		return errors.NewValidationError("handler", nil, "cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	k := handlerKey{key: key, object: objectType}
	if _, ok := r.handlers[k]; ok {
		return errors.NewValidationError("handler", fmt.Sprintf("%s/%s", key, objectType), "handler already registered")
	}
	r.handlers[k] = h

	for _, existing := range r.ordered {
		if existing == h {
			return nil
		}
	}
	r.ordered = append(r.ordered, h)
	return nil
}

// Handler returns the handler for a key and object type, or a
// HandlerNotSupported error.
func (r *Registry) Handler(key, objectType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[handlerKey{key: key, object: objectType}]; ok {
		return h, nil
	}
	return nil, errors.NewHandlerNotSupportedError(key, objectType)
}

// Handlers returns every distinct handler in registration order.
func (r *Registry) Handlers() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handler, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Notifier routes notifications to handlers.
type Notifier struct {
	registry  *Registry
	directory IntegrationDirectory
}

// New creates a notifier.
func New(registry *Registry, directory IntegrationDirectory) (*Notifier, error) {
	if registry == nil {
		return nil, &errors.ValidationError{Field: "registry", Message: "cannot be nil"}
	}
	if directory == nil {
		return nil, &errors.ValidationError{Field: "directory", Message: "cannot be nil"}
	}
	return &Notifier{registry: registry, directory: directory}, nil
}

// NoteIssue writes each notification to its handler. An empty handler key
// selects the internal side. Missing handlers and unknown integrations are
// returned as errors.
func (n *Notifier) NoteIssue(ctx context.Context, notifications []order.Notification, key string) error {
	if key == "" {
		key = constants.InternalIntegration
	}
	for _, note := range notifications {
		h, err := n.registry.Handler(key, note.Object())
		if err != nil {
			return err
		}
		integration, err := n.directory.Integration(note.Integration())
		if err != nil {
			return err
		}
		objectName := integration.ObjectDisplayName(note.IntegrationObject())

		if err := h.WriteEntry(ctx, note, integration.DisplayName, objectName); err != nil {
			return errors.WrapResource("write", "notification", note.IntegrationObjectID(), err)
		}
		metrics.Notifications.WithLabelValues(note.Integration(), note.Object()).Inc()
	}
	logging.FromContext(ctx).Debug().Int("notifications", len(notifications)).Str("handler", key).Msg("noted sync issues")
	return nil
}

// Finalize flushes every registered handler once.
func (n *Notifier) Finalize(ctx context.Context) error {
	for _, h := range n.registry.Handlers() {
		if err := h.Finalize(ctx); err != nil {
			return errors.WrapResource("finalize", "handler", "", err)
		}
	}
	return nil
}

// Integration describes a configured integration for display.
type Integration struct {
	Name        string
	DisplayName string
	// Objects maps integration object names to display names.
	Objects map[string]string
}

// ObjectDisplayName returns the configured display name of an object, or
// the object name with its first letter upper-cased.
func (i Integration) ObjectDisplayName(object string) string {
	if name, ok := i.Objects[object]; ok && name != "" {
		return name
	}
	return capitalize(object)
}

func capitalize(s string) string {
	upper := cases.Upper(language.Und)
	for i := range s {
		if i > 0 {
			return upper.String(s[:i]) + s[i:]
		}
	}
	return upper.String(s)
}

// IntegrationDirectory looks up configured integrations.
type IntegrationDirectory interface {
	Integration(name string) (Integration, error)
}

// StaticDirectory is an IntegrationDirectory built from configuration.
type StaticDirectory map[string]Integration

// Integration implements IntegrationDirectory.
func (d StaticDirectory) Integration(name string) (Integration, error) {
	i, ok := d[name]
	if !ok {
		return Integration{}, errors.NewIntegrationNotFoundError(name)
	}
	if i.Name == "" {
		i.Name = name
	}
	if i.DisplayName == "" {
		i.DisplayName = capitalize(name)
	}
	return i, nil
}
