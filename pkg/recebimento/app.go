package recebimento

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/warehouse/recebimento/pkg/auth"
	"github.com/warehouse/recebimento/pkg/datastore"
	"github.com/warehouse/recebimento/pkg/datastore/badger"
	"github.com/warehouse/recebimento/pkg/datastore/memory"
	"github.com/warehouse/recebimento/pkg/datastore/postgres"
	"github.com/warehouse/recebimento/pkg/datastore/surrealdb"
	"github.com/warehouse/recebimento/pkg/facade"
	"github.com/warehouse/recebimento/pkg/legacy"
	"github.com/warehouse/recebimento/pkg/logger"
	"github.com/warehouse/recebimento/pkg/migration"
	"github.com/warehouse/recebimento/pkg/store"
)

// Datastore backends.
const (
	BackendSurrealDB = "surrealdb"
	BackendPostgres  = "postgres"
	BackendBadger    = "badger"
	BackendMemory    = "memory"
)

// Config holds the configuration shared by every command.
type Config struct {
	Backend string
	Timeout time.Duration

	// Datastore connections; only the selected backend's settings are used.
	PostgresDSN   string
	SurrealDBURL  string
	SurrealDBNS   string
	SurrealDBDB   string
	SurrealDBUser string
	SurrealDBPass string
	BadgerPath    string

	// LegacyFile is a JSON snapshot of the browser local storage. Empty disables
	// migration on first use and the legacy fallback.
	LegacyFile string

	LogFile  string
	LogLevel string

	ReadOnly bool

	ServerPort  string
	CORSOrigins []string
}

// App holds the application state.
type App struct {
	config  *Config
	log     zerolog.Logger
	logData *logger.LogData
	out     io.Writer

	ds       datastore.Datastore
	store    store.Store
	states   migration.StateStore
	shadow   *legacy.FileSource
	migrator *migration.Coordinator
	features *facade.Facades
	verifier auth.Verifier

	readOnly atomic.Bool
}

// New opens the logger and the configured datastore.
func New(ctx context.Context, config *Config) (*App, error) {
	logData, err := logger.New().FromPath(config.LogFile).Level(config.LogLevel).Make()
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	log := logData.Logger.With().Str("backend", config.Backend).Logger()

	ds, err := openDatastore(ctx, config, log)
	if err != nil {
		logData.Close()
		return nil, err
	}
	log.Info().Msg("connected to datastore")

	app := newApp(config, ds, log)
	app.logData = logData
	return app, nil
}

func openDatastore(ctx context.Context, config *Config, log zerolog.Logger) (datastore.Datastore, error) {
	switch config.Backend {
	case BackendSurrealDB:
		ds, err := surrealdb.Open(ctx, surrealdb.Config{
			URL:       config.SurrealDBURL,
			Namespace: config.SurrealDBNS,
			Database:  config.SurrealDBDB,
			Username:  config.SurrealDBUser,
			Password:  config.SurrealDBPass,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
		}
		return ds, nil
	case BackendPostgres:
		ds, err := postgres.Open(config.PostgresDSN, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		return ds, nil
	case BackendBadger:
		ds, err := badger.Open(config.BadgerPath, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open Badger: %w", err)
		}
		return ds, nil
	case BackendMemory:
		log.Warn().Msg("memory backend: data is lost on exit")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", config.Backend)
	}
}

// newApp wires the store, migration and facades over an open datastore.
func newApp(config *Config, ds datastore.Datastore, log zerolog.Logger) *App {
	app := &App{
		config:   config,
		log:      log,
		out:      os.Stdout,
		ds:       ds,
		states:   migration.NewDatastoreStateStore(ds, config.Timeout),
		verifier: auth.Bcrypt{},
	}
	app.readOnly.Store(config.ReadOnly)

	entities := store.New(ds,
		store.WithTimeout(config.Timeout),
		store.WithLogger(log.With().Str("component", "store").Logger()),
	)
	app.store = store.NewReadOnlyStore(entities, app.IsReadOnly)

	var source legacy.Source = legacy.NewMapSource(nil)
	if config.LegacyFile != "" {
		app.shadow = legacy.NewFileSource(config.LegacyFile)
		source = app.shadow
	}
	app.migrator = migration.New(app.store, source, app.states,
		migration.WithLogger(log.With().Str("component", "migration").Logger()),
	)

	opts := []facade.Option{facade.WithLogger(log.With().Str("component", "facade").Logger())}
	if app.shadow != nil && !config.ReadOnly {
		opts = append(opts, facade.WithMigration(app.migrator), facade.WithLegacyFallback(app.shadow))
	}
	app.features = facade.New(app.store, opts...)
	return app
}

// Close closes the datastore and the log file.
func (a *App) Close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	if a.logData != nil {
		a.logData.Close()
	}
	return err
}

// Store returns the entity store behind the HTTP API.
func (a *App) Store() store.Store {
	return a.store
}

// SetReadOnly switches read-only mode at runtime. Writes fail with store.ErrReadOnly
// while it is on.
func (a *App) SetReadOnly(readOnly bool) {
	a.readOnly.Store(readOnly)
	a.log.Info().Bool("read_only", readOnly).Msg("read-only mode changed")
}

func (a *App) IsReadOnly() bool {
	return a.readOnly.Load()
}

// getEnv returns the environment variable key, or defaultValue when it is unset or
// empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
