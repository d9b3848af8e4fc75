// Package application provides the interface between the syncbridge
// application and its commands.
//
// Commands accept an Application rather than the concrete App so they can
// be tested with a Mock:
//
//	mock := &application.Mock{
//	    StoreFunc: func(context.Context) (mapping.Store, error) {
//	        return memory.New(), nil
//	    },
//	}
//	cmd := mappings.NewCommand(mock)
package application

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentstation/syncbridge/pkg/mapping"
	"github.com/agentstation/syncbridge/pkg/syncprocess"
)

// Application provides what commands need. All methods are safe for
// concurrent use.
type Application interface {
	// Logger returns the configured logger.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (table, json, yaml).
	OutputFormat() string

	// Store returns the mapping store, opening it on first use.
	Store(ctx context.Context) (mapping.Store, error)

	// Process returns the sync process wired from configuration.
	Process(ctx context.Context) (*syncprocess.Process, error)

	// Health returns an error when a dependency is down.
	Health() error

	// Version returns the build version.
	Version() string
}
