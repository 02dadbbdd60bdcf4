package recebimento

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/warehouse/recebimento/pkg/auth"
	"github.com/warehouse/recebimento/pkg/datastore"
	"github.com/warehouse/recebimento/pkg/models"
)

// Migrate runs one migration pass over the legacy snapshot file and prints the result.
// A pass that leaves keys unmigrated is an error so scripts can retry it.
func (a *App) Migrate(ctx context.Context, cmd *MigrateCommand) error {
	a.log.Info().Str("file", a.config.LegacyFile).Msg("migrating legacy snapshot")
	result, err := a.migrator.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migration: %w", err)
	}
	if err := a.printJSON(result); err != nil {
		return err
	}
	if !result.Done() {
		return fmt.Errorf("migration incomplete: %d legacy keys failed", len(result.Failed))
	}
	return nil
}

// ClearLegacy deletes the migrated keys from the snapshot file.
func (a *App) ClearLegacy(ctx context.Context, cmd *ClearLegacyCommand) error {
	deleted, err := a.migrator.ClearLegacy(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear legacy snapshot: %w", err)
	}
	return a.printJSON(map[string]any{"deleted": deleted})
}

// Status prints the persisted migration state without writing anything.
func (a *App) Status(ctx context.Context, cmd *StatusCommand) error {
	a.SetReadOnly(true)
	state, err := a.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read migration state: %w", err)
	}
	return a.printJSON(state)
}

func (a *App) AddUser(ctx context.Context, cmd *AddUserCommand) error {
	hash, err := auth.HashPassword(cmd.Senha)
	if err != nil {
		return err
	}
	usuario := &models.Usuario{Usuario: cmd.Usuario, SenhaHash: hash, Role: cmd.Role}
	if err := a.store.SaveUsuario(ctx, usuario); err != nil {
		return fmt.Errorf("failed to save usuario: %w", err)
	}
	a.log.Info().Str("usuario", cmd.Usuario).Str("role", string(cmd.Role)).Msg("usuario saved")
	return nil
}

// Schema prepares the datastore schema when the backend needs one.
func (a *App) Schema(ctx context.Context, cmd *SchemaCommand) error {
	schema, ok := a.ds.(datastore.Schema)
	if !ok {
		a.log.Info().Msg("backend needs no schema")
		return nil
	}
	a.log.Info().Msg("running schema migrations")
	if err := schema.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run schema migrations: %w", err)
	}
	a.log.Info().Msg("schema migrations completed")
	return nil
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to print result: %w", err)
	}
	return nil
}
