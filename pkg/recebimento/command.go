package recebimento

import "github.com/warehouse/recebimento/pkg/models"

// Command represents one CLI operation with its specific options.
//
// Commands are produced by [Parse] and dispatched by [Main] to the matching method on
// [App]. Options shared by every command live in [Config].
type Command interface {
	// Name returns the CLI sub-command name.
	Name() string
}

// RunCommand starts the HTTP API.
//
// When a legacy snapshot file is configured, the first request through any feature
// migrates it, and saves that cannot reach the datastore are kept in it.
type RunCommand struct{}

func (c *RunCommand) Name() string {
	return "run"
}

// MigrateCommand migrates the legacy snapshot file into the datastore.
//
// It is safe to repeat: keys written by an earlier pass are skipped, and a completed
// migration performs no writes. The snapshot is left untouched; see
// [ClearLegacyCommand].
//
//	recebimento --legacy-file snapshot.json migrate
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string {
	return "migrate"
}

// ClearLegacyCommand deletes from the snapshot file the keys the migration recorded
// as written. Keys that failed to migrate stay.
type ClearLegacyCommand struct{}

func (c *ClearLegacyCommand) Name() string {
	return "clear-legacy"
}

// StatusCommand prints the persisted migration state. The datastore is opened
// read-only.
type StatusCommand struct{}

func (c *StatusCommand) Name() string {
	return "status"
}

// AddUserCommand creates or replaces a login with a bcrypt hash of Senha.
type AddUserCommand struct {
	Usuario string
	Senha   string
	Role    models.Role
}

func (c *AddUserCommand) Name() string {
	return "add-user"
}

// SchemaCommand prepares the datastore schema. Only PostgreSQL needs one; the other
// backends report there is nothing to do.
type SchemaCommand struct{}

func (c *SchemaCommand) Name() string {
	return "schema"
}
