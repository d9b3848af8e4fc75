// Package app provides the application context and dependency management
// for the syncbridge CLI. It centralizes configuration, lazily opens the
// mapping store and the internal object database, and wires the sync
// process from them.
package app

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/syncbridge/cmd/application"
	"github.com/agentstation/syncbridge/internal/broker"
	"github.com/agentstation/syncbridge/internal/sqlobjects"
	"github.com/agentstation/syncbridge/internal/store/postgres"
	"github.com/agentstation/syncbridge/internal/store/sqlite"
	"github.com/agentstation/syncbridge/pkg/constants"
	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/executioner"
	"github.com/agentstation/syncbridge/pkg/generator"
	"github.com/agentstation/syncbridge/pkg/judge"
	"github.com/agentstation/syncbridge/pkg/mapping"
	"github.com/agentstation/syncbridge/pkg/mapping/memory"
	"github.com/agentstation/syncbridge/pkg/notifier"
	"github.com/agentstation/syncbridge/pkg/objects"
	"github.com/agentstation/syncbridge/pkg/resolver"
	"github.com/agentstation/syncbridge/pkg/syncprocess"
)

// App represents the syncbridge application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger

	// Lazily opened dependencies
	mu        sync.Mutex
	rawStore  mapping.Store
	store     mapping.Store
	database  *sqlobjects.Database
	publisher *broker.Publisher
	process   *syncprocess.Process
}

var _ application.Application = (*App)(nil)

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if app.config == nil {
		config, err := LoadConfig("")
		if err != nil {
			return nil, errors.WrapResource("load", "config", "", err)
		}
		app.config = config
	}
	if app.logger == nil {
		logger := NewLogger(app.config)
		app.logger = &logger
	}
	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the configured output format.
func (a *App) OutputFormat() string {
	return a.config.Format
}

// Store returns the mapping store, opening it on first use. The store is
// wrapped with an identity cache.
func (a *App) Store(ctx context.Context) (mapping.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.openStore(ctx)
}

func (a *App) openStore(ctx context.Context) (mapping.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultTimeout)
	defer cancel()

	var (
		s   mapping.Store
		err error
	)
	switch a.config.Store.Driver {
	case StoreMemory:
		s = memory.New()
	case StoreSQLite:
		s, err = sqlite.Open(ctx, a.config.Store.DSN)
	case StorePostgres:
		s, err = postgres.New(ctx, a.config.Store.DSN,
			postgres.WithRetry(constants.MaxRetries, constants.RetryBackoff, constants.MaxRetryBackoff))
	default:
		err = errors.NewConfigError("store", "unknown driver "+a.config.Store.Driver, nil)
	}
	if err != nil {
		return nil, errors.WrapResource("open", "mapping store", a.config.Store.Driver, err)
	}

	a.rawStore = s
	a.store = mapping.NewCachedStore(s)
	a.logger.Debug().Str("driver", a.config.Store.Driver).Msg("mapping store opened")
	return a.store, nil
}

// Process returns the sync process, wiring it on first use.
func (a *App) Process(ctx context.Context) (*syncprocess.Process, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.process != nil {
		return a.process, nil
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	db, err := a.openDatabase(ctx)
	if err != nil {
		return nil, err
	}

	registry, err := objects.NewRegistry(db.Objects()...)
	if err != nil {
		return nil, err
	}
	r, err := resolver.New(store, registry)
	if err != nil {
		return nil, err
	}
	policy, err := judge.PolicyByName(a.config.FuzzyPolicy)
	if err != nil {
		return nil, err
	}
	j, err := judge.New(judge.WithPolicy(policy))
	if err != nil {
		return nil, err
	}
	g, err := generator.New(j)
	if err != nil {
		return nil, err
	}
	exec, err := executioner.New(r, registry, db)
	if err != nil {
		return nil, err
	}
	n, err := a.newNotifier(registry)
	if err != nil {
		return nil, err
	}

	p, err := syncprocess.New(syncprocess.Components{
		Store:       store,
		Resolver:    r,
		Generator:   g,
		Executioner: exec,
		Notifier:    n,
		Reader:      db,
	})
	if err != nil {
		return nil, err
	}
	a.process = p
	return p, nil
}

func (a *App) openDatabase(ctx context.Context) (*sqlobjects.Database, error) {
	if a.database != nil {
		return a.database, nil
	}
	cfg := a.config.Objects
	if cfg.Driver == "" || cfg.DSN == "" {
		return nil, errors.NewConfigError("objects", "driver and dsn are required", nil)
	}

	var opts []sqlobjects.Option
	switch strings.ToUpper(cfg.Charset) {
	case "":
	case "WIN1252", "WINDOWS-1252", "CP1252":
		opts = append(opts, sqlobjects.WithCharset(sqlobjects.Windows1252))
	default:
		return nil, errors.NewConfigError("objects", "unsupported charset "+cfg.Charset, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.DefaultTimeout)
	defer cancel()
	db, err := sqlobjects.Open(ctx, cfg.Driver, cfg.DSN, cfg.Tables, opts...)
	if err != nil {
		return nil, errors.WrapResource("open", "object database", cfg.Driver, err)
	}
	a.database = db
	return db, nil
}

// newNotifier registers one inbox handler under the internal handler key
// for every internal object type.
func (a *App) newNotifier(registry *objects.Registry) (*notifier.Notifier, error) {
	var inbox notifier.Inbox = notifier.NewLogInbox(a.logger)
	if url := a.config.Notify.RabbitMQURL; url != "" {
		publisher, err := broker.Dial(url, a.config.Notify.Exchange, a.logger)
		if err != nil {
			return nil, err
		}
		a.publisher = publisher
		inbox = publisher
	}

	handler := notifier.NewInboxHandler(inbox)
	handlers := notifier.NewRegistry()
	for _, name := range registry.Names() {
		if err := handlers.Register(constants.InternalIntegration, name, handler); err != nil {
			return nil, err
		}
	}

	directory := notifier.StaticDirectory{}
	for _, i := range a.config.Integrations {
		directory[i.Name] = notifier.Integration{Name: i.Name, DisplayName: i.DisplayName, Objects: i.Objects}
	}
	return notifier.New(handlers, directory)
}

// Health reports whether the notification broker is reachable.
func (a *App) Health() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.publisher != nil && !a.publisher.IsHealthy() {
		return errors.NewResourceError("publish", "broker", a.config.Notify.Exchange, errors.New("connection closed"))
	}
	return nil
}

// Shutdown closes every opened dependency.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var first error
	closeOne := func(name string, fn func() error) {
		if err := fn(); err != nil {
			a.logger.Error().Err(err).Str("component", name).Msg("close failed during shutdown")
			if first == nil {
				first = err
			}
		}
	}
	if a.publisher != nil {
		closeOne("broker", a.publisher.Close)
		a.publisher = nil
	}
	if a.database != nil {
		closeOne("objects", a.database.Close)
		a.database = nil
	}
	if c, ok := a.rawStore.(mapping.Closer); ok {
		closeOne("store", c.Close)
	}
	a.rawStore, a.store, a.process = nil, nil, nil
	return first
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		if config == nil {
			return &errors.ValidationError{Field: "config", Message: "cannot be nil"}
		}
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithStore sets the mapping store (useful for testing).
func WithStore(s mapping.Store) Option {
	return func(a *App) error {
		a.rawStore = s
		a.store = mapping.NewCachedStore(s)
		return nil
	}
}
