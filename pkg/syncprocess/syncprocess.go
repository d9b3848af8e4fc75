// Package syncprocess runs one sync cycle for an integration: it resolves
// every reported integration object, builds the order, executes it and
// reports what could not be applied.
package syncprocess

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/executioner"
	"github.com/agentstation/syncbridge/pkg/generator"
	"github.com/agentstation/syncbridge/pkg/logging"
	"github.com/agentstation/syncbridge/pkg/manual"
	"github.com/agentstation/syncbridge/pkg/mapping"
	"github.com/agentstation/syncbridge/pkg/metrics"
	"github.com/agentstation/syncbridge/pkg/notifier"
	"github.com/agentstation/syncbridge/pkg/order"
	"github.com/agentstation/syncbridge/pkg/report"
	"github.com/agentstation/syncbridge/pkg/resolver"
)

// Components are the collaborators of a sync cycle.
type Components struct {
	Store       mapping.Store
	Resolver    *resolver.Resolver
	Generator   *generator.Generator
	Executioner *executioner.Executioner
	Notifier    *notifier.Notifier
	// Reader defaults to FromReport(nil).
	Reader InternalReader
}

// Process runs sync cycles.
type Process struct {
	Components
}

// New creates a process.
func New(c Components) (*Process, error) {
	switch {
	case c.Store == nil:
		return nil, &errors.ValidationError{Field: "store", Message: "cannot be nil"}
	case c.Resolver == nil:
		return nil, &errors.ValidationError{Field: "resolver", Message: "cannot be nil"}
	case c.Generator == nil:
		return nil, &errors.ValidationError{Field: "generator", Message: "cannot be nil"}
	case c.Executioner == nil:
		return nil, &errors.ValidationError{Field: "executioner", Message: "cannot be nil"}
	case c.Notifier == nil:
		return nil, &errors.ValidationError{Field: "notifier", Message: "cannot be nil"}
	}
	if c.Reader == nil {
		c.Reader = FromReport(nil)
	}
	return &Process{Components: c}, nil
}

// Result summarizes a sync cycle.
type Result struct {
	CycleID   string
	OrderID   string
	Processed int
	Skipped   int
	Updated   int
	Created   int
	Notified  int
	Duration  time.Duration
}

type options struct {
	now        func() time.Time
	firstSync  bool
	handlerKey string
	logger     *zerolog.Logger
}

// Option configures a single Run.
type Option func(*options)

// WithClock overrides the clock used for the order creation time.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithFirstSync marks the order as the first sync of the integration.
func WithFirstSync(first bool) Option {
	return func(o *options) {
		o.firstSync = first
	}
}

// WithHandlerKey selects the notification handler key.
func WithHandlerKey(key string) Option {
	return func(o *options) {
		o.handlerKey = key
	}
}

// WithLogger sets the logger for the cycle.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Run syncs the objects of integrationReport into the internal side.
//
// Objects whose link was deleted or whose type is not supported are
// skipped. Objects missing a required field are reported through the
// notifier. Any other error aborts the cycle.
func (p *Process) Run(ctx context.Context, m *manual.Manual, integrationReport *report.Report, opts ...Option) (result *Result, err error) {
	o := &options{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger != nil {
		ctx = logging.WithLogger(ctx, o.logger)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	result = &Result{CycleID: uuid.NewString()}
	ctx = logging.WithCycleID(ctx, result.CycleID)
	ctx = logging.WithIntegration(ctx, m.Integration)
	logger := logging.FromContext(ctx)

	defer func() {
		result.Duration = time.Since(start)
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.CycleDuration.WithLabelValues(m.Integration, status).Observe(result.Duration.Seconds())
	}()

	release, err := p.Store.Lock(ctx, m.Integration)
	if err != nil {
		return result, errors.WrapResource("lock", "mapping", m.Integration, err)
	}
	defer release()

	syncOrder := order.New(m.Integration, o.firstSync, o.now())
	result.OrderID = syncOrder.ID

	for _, objectMapping := range m.Objects {
		for _, integrationObject := range integrationReport.Objects(objectMapping.IntegrationObject) {
			result.Processed++
			skipped, err := p.addObject(ctx, syncOrder, integrationReport, m, objectMapping, integrationObject)
			if err != nil {
				return result, err
			}
			if skipped {
				result.Skipped++
			}
		}
	}
	metrics.OrderSize.Observe(float64(syncOrder.Len()))

	summary, err := p.Executioner.Execute(ctx, syncOrder)
	result.Updated, result.Created = summary.Updated, summary.Created
	if err != nil {
		return result, err
	}

	if notes := syncOrder.Notifications(); len(notes) > 0 {
		if err := p.Notifier.NoteIssue(ctx, notes, o.handlerKey); err != nil {
			return result, err
		}
		result.Notified = len(notes)
	}
	if err := p.Notifier.Finalize(ctx); err != nil {
		return result, err
	}

	logger.Info().
		Str("order_id", result.OrderID).
		Int("processed", result.Processed).
		Int("skipped", result.Skipped).
		Int("updated", result.Updated).
		Int("created", result.Created).
		Int("notified", result.Notified).
		Msg("sync cycle complete")
	return result, nil
}

// addObject resolves one integration object and adds its change to the
// order. It reports whether the object was skipped.
func (p *Process) addObject(
	ctx context.Context,
	syncOrder *order.Order,
	integrationReport *report.Report,
	m *manual.Manual,
	objectMapping *manual.ObjectMapping,
	integrationObject *report.Object,
) (bool, error) {
	logger := logging.FromContext(ctx).With().
		Str("integration_object", integrationObject.Name).
		Str("integration_object_id", integrationObject.ID).
		Str("internal_object", objectMapping.InternalObject).
		Logger()

	internalObject, err := p.Resolver.FindInternalObject(ctx, m, objectMapping.InternalObject, integrationObject)
	switch {
	case errors.IsObjectDeleted(err):
		logger.Debug().Msg("mapping deleted; skipping")
		metrics.SkippedObjects.WithLabelValues(m.Integration, "deleted").Inc()
		return true, nil
	case errors.IsObjectNotSupported(err):
		logger.Debug().Msg("internal object not supported; skipping")
		metrics.SkippedObjects.WithLabelValues(m.Integration, "not_supported").Inc()
		return true, nil
	case err != nil:
		return false, err
	}

	if internalObject.IsResolved() {
		current, err := p.Reader.Read(ctx, internalObject.Name, internalObject.ID)
		if errors.IsObjectNotFound(err) {
			logger.Info().Str("internal_object_id", internalObject.ID).Msg("internal object no longer exists; mapping will be deleted")
			syncOrder.AddDeletedObject(order.DeletedObject{Side: mapping.SideInternal, Object: internalObject.Name, ObjectID: internalObject.ID})
			metrics.SkippedObjects.WithLabelValues(m.Integration, "not_found").Inc()
			return true, nil
		}
		if err != nil {
			return false, err
		}
		internalObject = current
	}

	change, err := p.Generator.ObjectChange(ctx, integrationReport, m, objectMapping, internalObject, integrationObject)
	if errors.IsObjectNotFound(err) {
		logger.Warn().Err(err).Msg("object change could not be generated")
		syncOrder.AddNotification(order.Notification{
			Change:  order.NewObjectChange(m.Integration, internalObject.Name, internalObject.ID, integrationObject.Name, integrationObject.ID),
			Message: err.Error(),
		})
		metrics.SkippedObjects.WithLabelValues(m.Integration, "not_found").Inc()
		return true, nil
	}
	if err != nil {
		return false, err
	}

	syncOrder.AddObjectChange(change)
	return false, nil
}
