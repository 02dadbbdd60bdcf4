package recebimento

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
)

// Main parses args, builds the [App] and executes the command. It can be called from
// tests without building the binary; cancel ctx to stop a running server.
//
// A .env file in the working directory, when present, is loaded into the environment
// before flags are parsed. Variables already set win.
//
// # Environment Variables
//
//	RECEBIMENTO_BACKEND    - surrealdb, postgres, badger or memory (default: surrealdb)
//	RECEBIMENTO_TIMEOUT    - timeout of each datastore call (default: 10s)
//	RECEBIMENTO_READ_ONLY  - "true" rejects every write
//	PORT                   - HTTP port (default: 8080)
//	LEGACY_SNAPSHOT        - legacy local storage snapshot file
//	LOG_FILE, LOG_LEVEL    - log destination and level (default: stdout, info)
//	CORS_ORIGINS           - comma separated allowed origins (default: *)
//	POSTGRES_DSN           - PostgreSQL connection string
//	SURREALDB_URL          - SurrealDB WebSocket URL (default: ws://localhost:8000/rpc)
//	SURREALDB_NS, SURREALDB_DB, SURREALDB_USER, SURREALDB_PASS
//	BADGER_PATH            - Badger directory (default: ./data/badger)
func Main(ctx context.Context, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cmd, config, err := Parse(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	app, err := New(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer app.Close()

	return app.Execute(ctx, cmd)
}

// Execute dispatches cmd to its handler.
func (a *App) Execute(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case *RunCommand:
		if err := a.Run(ctx, c); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case *MigrateCommand:
		if err := a.Migrate(ctx, c); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case *ClearLegacyCommand:
		return a.ClearLegacy(ctx, c)
	case *StatusCommand:
		return a.Status(ctx, c)
	case *AddUserCommand:
		return a.AddUser(ctx, c)
	case *SchemaCommand:
		if err := a.Schema(ctx, c); err != nil {
			return fmt.Errorf("schema failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown command type: %T", cmd)
	}
	return nil
}
