package recebimento

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warehouse/recebimento/pkg/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantCmd Command
		wantErr string
		check   func(t *testing.T, c *Config)
	}{
		{
			name:    "no subcommand",
			args:    []string{},
			wantErr: "subcommand required",
		},
		{
			name:    "unknown subcommand",
			args:    []string{"sync"},
			wantErr: "unknown command: sync",
		},
		{
			name:    "invalid backend",
			args:    []string{"--backend", "mongo", "run"},
			wantErr: "invalid backend",
		},
		{
			name:    "invalid timeout",
			args:    []string{"--timeout", "soon", "run"},
			wantErr: "invalid timeout",
		},
		{
			name:    "migrate needs a snapshot",
			args:    []string{"migrate"},
			wantErr: "migrate needs --legacy-file",
		},
		{
			name:    "add-user needs a password",
			args:    []string{"add-user", "maria"},
			wantErr: "usage: recebimento add-user",
		},
		{
			name:    "add-user with unknown role",
			args:    []string{"add-user", "maria", "s3nha", "gerente"},
			wantErr: "invalid role: gerente",
		},
		{
			name:    "run with defaults",
			args:    []string{"run"},
			wantCmd: &RunCommand{},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, BackendSurrealDB, c.Backend)
				assert.Equal(t, "8080", c.ServerPort)
				assert.Equal(t, 10*time.Second, c.Timeout)
				assert.Equal(t, []string{"*"}, c.CORSOrigins)
				assert.Equal(t, "ws://localhost:8000/rpc", c.SurrealDBURL)
				assert.False(t, c.ReadOnly)
			},
		},
		{
			name:    "flags",
			args:    []string{"--backend=badger", "--port", "9090", "--timeout", "2s", "--read-only", "--cors-origins", "https://a.example, https://b.example", "status"},
			wantCmd: &StatusCommand{},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, BackendBadger, c.Backend)
				assert.Equal(t, "9090", c.ServerPort)
				assert.Equal(t, 2*time.Second, c.Timeout)
				assert.True(t, c.ReadOnly)
				assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSOrigins)
			},
		},
		{
			name:    "migrate",
			args:    []string{"--legacy-file", "snapshot.json", "migrate"},
			wantCmd: &MigrateCommand{},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "snapshot.json", c.LegacyFile)
			},
		},
		{
			name:    "clear-legacy",
			args:    []string{"--legacy-file", "snapshot.json", "clear-legacy"},
			wantCmd: &ClearLegacyCommand{},
		},
		{
			name:    "schema",
			args:    []string{"--backend", "postgres", "schema"},
			wantCmd: &SchemaCommand{},
		},
		{
			name:    "add-user with default role",
			args:    []string{"add-user", "maria", "s3nha"},
			wantCmd: &AddUserCommand{Usuario: "maria", Senha: "s3nha", Role: models.RoleOperador},
		},
		{
			name:    "add-user with role",
			args:    []string{"add-user", "ana", "s3nha", "Supervisor"},
			wantCmd: &AddUserCommand{Usuario: "ana", Senha: "s3nha", Role: models.RoleSupervisor},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, config, err := Parse(tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCmd, cmd)
			if tt.check != nil {
				tt.check(t, config)
			}
		})
	}
}

func TestParse_environment(t *testing.T) {
	t.Setenv("RECEBIMENTO_BACKEND", "memory")
	t.Setenv("PORT", "7070")
	t.Setenv("LEGACY_SNAPSHOT", "/tmp/snapshot.json")
	t.Setenv("SURREALDB_NS", "armazem")
	t.Setenv("BADGER_PATH", "/var/lib/recebimento")

	cmd, config, err := Parse([]string{"migrate"})
	require.NoError(t, err)
	assert.Equal(t, "migrate", cmd.Name())
	assert.Equal(t, BackendMemory, config.Backend)
	assert.Equal(t, "7070", config.ServerPort)
	assert.Equal(t, "/tmp/snapshot.json", config.LegacyFile)
	assert.Equal(t, "armazem", config.SurrealDBNS)
	assert.Equal(t, "/var/lib/recebimento", config.BadgerPath)

	_, config, err = Parse([]string{"--backend", "badger", "run"})
	require.NoError(t, err)
	assert.Equal(t, BackendBadger, config.Backend, "flags win over the environment")
}
