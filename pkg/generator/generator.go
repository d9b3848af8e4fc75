// Package generator builds the outbound write for one matched object pair.
//
// The change always targets the internal side: field names are internal
// field names, and values come from the integration report unless the
// judge decides a bidirectional conflict in favor of the internal value.
package generator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/agentstation/syncbridge/pkg/constants"
	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/judge"
	"github.com/agentstation/syncbridge/pkg/logging"
	"github.com/agentstation/syncbridge/pkg/manual"
	"github.com/agentstation/syncbridge/pkg/metrics"
	"github.com/agentstation/syncbridge/pkg/order"
	"github.com/agentstation/syncbridge/pkg/report"
)

// Generator turns reported field changes into object changes.
type Generator struct {
	judge *judge.Judge
}

// New creates a generator that settles conflicts with j.
func New(j *judge.Judge) (*Generator, error) {
	if j == nil {
		return nil, &errors.ValidationError{Field: "judge", Message: "cannot be nil"}
	}
	return &Generator{judge: j}, nil
}

// ObjectChange builds the change for one internal/integration pair.
//
// Field mappings are walked in configured order. Fields the integration did
// not report are skipped, except a required field on a create, which fails
// with ObjectNotFound.
func (g *Generator) ObjectChange(
	ctx context.Context,
	integrationReport *report.Report,
	m *manual.Manual,
	objectMapping *manual.ObjectMapping,
	internalObject *report.Object,
	integrationObject *report.Object,
) (*order.ObjectChange, error) {
	change := order.NewObjectChange(m.Integration, internalObject.Name, internalObject.ID, integrationObject.Name, integrationObject.ID)

	logger := logging.FromContext(ctx).With().
		Str("integration", m.Integration).
		Str("pair", change.String()).
		Logger()

	if change.IsCreate() {
		logger.Debug().Msg("integration to internal; no match found, object will be created")
	} else {
		logger.Debug().Msg("integration to internal; found a match")
	}

	for _, fm := range objectMapping.FieldMappings {
		if err := g.addField(&logger, change, integrationReport, fm, internalObject, integrationObject); err != nil {
			return nil, err
		}
	}

	change.ChangeDateTime = integrationObject.ChangeDateTime

	kind := "update"
	if change.IsCreate() {
		kind = "create"
	}
	metrics.ObjectChanges.WithLabelValues(m.Integration, change.Object, kind).Inc()
	return change, nil
}

func (g *Generator) addField(
	logger *zerolog.Logger,
	change *order.ObjectChange,
	integrationReport *report.Report,
	fm *manual.FieldMapping,
	internalObject *report.Object,
	integrationObject *report.Object,
) error {
	field, err := integrationObject.Field(fm.IntegrationField)
	if err != nil {
		return missingField(logger, change, fm, err)
	}
	integrationRequest, err := integrationReport.InformationChangeRequest(integrationObject.Name, integrationObject.ID, fm.IntegrationField)
	if err != nil {
		return missingField(logger, change, fm, err)
	}

	if fm.Direction == manual.Bidirectional {
		return g.judgeField(logger, change, fm, field.State, integrationRequest, internalObject)
	}

	change.AddField(order.FieldValue{Name: fm.InternalField, Value: integrationRequest.NewValue, State: field.State})

	event := logger.Debug().
		Str("field", fm.InternalField).
		Str("state", field.State.String()).
		Str("direction", fm.Direction.String())
	if fm.Direction == manual.ToIntegration {
		event.Msg("integration to internal; field added as it is configured to sync to the integration")
		return nil
	}
	event.Str("value", integrationRequest.NewValue.String()).Msg("integration to internal; syncing field")
	return nil
}

func missingField(logger *zerolog.Logger, change *order.ObjectChange, fm *manual.FieldMapping, err error) error {
	if !errors.IsFieldNotFound(err) {
		return err
	}
	if fm.Required && change.IsCreate() {
		return fmt.Errorf("required field %s not reported: %w",
			fm.IntegrationField, errors.NewObjectNotFoundError(change.MappedObject, change.MappedObjectID))
	}
	logger.Trace().Str("field", fm.IntegrationField).Msg("field not reported; skipping")
	return nil
}

func (g *Generator) judgeField(
	logger *zerolog.Logger,
	change *order.ObjectChange,
	fm *manual.FieldMapping,
	state report.FieldState,
	integrationRequest report.InformationChangeRequest,
	internalObject *report.Object,
) error {
	// A cleared internal value still competes; only an absent field does not.
	internalField, err := internalObject.Field(fm.InternalField)
	if err != nil {
		change.AddField(order.FieldValue{Name: fm.InternalField, Value: integrationRequest.NewValue, State: state})
		logger.Debug().
			Str("field", fm.InternalField).
			Str("state", state.String()).
			Str("value", integrationRequest.NewValue.String()).
			Msg("integration to internal; bidirectional field has no conflict")
		return nil
	}

	internalRequest := report.InformationChangeRequest{
		Integration:            constants.InternalIntegration,
		ObjectName:             internalObject.Name,
		ObjectID:               internalObject.ID,
		Field:                  internalField.Name,
		NewValue:               internalField.Value,
		PossibleChangeDateTime: internalObject.ChangeDateTime,
		CertainChangeDateTime:  internalField.ChangeDateTime,
	}

	verdict, attempts, err := g.judge.Decide(internalRequest, integrationRequest)
	for _, a := range attempts {
		logger.Debug().
			Str("field", fm.InternalField).
			Str("mode", a.Mode.String()).
			Str("reason", a.Reason).
			Msg("integration to internal; no winner determined")
	}
	if err != nil {
		return err
	}

	change.AddField(order.FieldValue{Name: fm.InternalField, Value: verdict.Winner.NewValue, State: state})
	metrics.JudgeDecisions.WithLabelValues(change.Integration, verdict.Mode.String()).Inc()
	logger.Debug().
		Str("field", fm.InternalField).
		Str("state", state.String()).
		Str("winner", verdict.Winner.Integration).
		Str("value", verdict.Winner.NewValue.String()).
		Str("mode", verdict.Mode.String()).
		Str("reason", verdict.Reason).
		Msg("integration to internal; sync judge determined the value")
	return nil
}
