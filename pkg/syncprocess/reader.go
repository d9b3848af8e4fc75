package syncprocess

import (
	"context"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/report"
)

// InternalReader loads the current state of a resolved internal object:
// its fields and the change times used as evidence by the judge.
//
// Read returns ObjectNotFound when the object no longer exists.
type InternalReader interface {
	Read(ctx context.Context, objectName, objectID string) (*report.Object, error)
}

// ReaderFunc adapts a function to an InternalReader.
type ReaderFunc func(ctx context.Context, objectName, objectID string) (*report.Object, error)

// Read implements InternalReader.
func (f ReaderFunc) Read(ctx context.Context, objectName, objectID string) (*report.Object, error) {
	return f(ctx, objectName, objectID)
}

// FromReport reads internal objects from a report of internal changes.
// Objects missing from the report did not change and are returned without
// fields. A nil report reads every object as unchanged.
func FromReport(internal *report.Report) InternalReader {
	return ReaderFunc(func(_ context.Context, objectName, objectID string) (*report.Object, error) {
		if internal == nil {
			return report.NewObject(objectName, objectID, nil), nil
		}
		o, err := internal.Object(objectName, objectID)
		if errors.IsObjectNotFound(err) {
			return report.NewObject(objectName, objectID, nil), nil
		}
		return o, err
	})
}
