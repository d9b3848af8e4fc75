package application

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentstation/syncbridge/pkg/mapping"
	"github.com/agentstation/syncbridge/pkg/syncprocess"
)

// Mock implements Application with overridable function fields. A nil field
// returns a zero value.
type Mock struct {
	LoggerFunc       func() *zerolog.Logger
	OutputFormatFunc func() string
	StoreFunc        func(ctx context.Context) (mapping.Store, error)
	ProcessFunc      func(ctx context.Context) (*syncprocess.Process, error)
	HealthFunc       func() error
	VersionFunc      func() string
}

var _ Application = (*Mock)(nil)

// Logger returns the mock logger or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns the mock format or "json".
func (m *Mock) OutputFormat() string {
	if m.OutputFormatFunc != nil {
		return m.OutputFormatFunc()
	}
	return "json"
}

// Store returns the mock store.
func (m *Mock) Store(ctx context.Context) (mapping.Store, error) {
	if m.StoreFunc != nil {
		return m.StoreFunc(ctx)
	}
	return nil, nil
}

// Process returns the mock process.
func (m *Mock) Process(ctx context.Context) (*syncprocess.Process, error) {
	if m.ProcessFunc != nil {
		return m.ProcessFunc(ctx)
	}
	return nil, nil
}

// Health returns the mock health.
func (m *Mock) Health() error {
	if m.HealthFunc != nil {
		return m.HealthFunc()
	}
	return nil
}

// Version returns the mock version or "dev".
func (m *Mock) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "dev"
}
