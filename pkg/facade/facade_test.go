package facade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warehouse/recebimento/pkg/codec"
	"github.com/warehouse/recebimento/pkg/datastore/datastoretest"
	"github.com/warehouse/recebimento/pkg/datastore/memory"
	"github.com/warehouse/recebimento/pkg/legacy"
	"github.com/warehouse/recebimento/pkg/migration"
	"github.com/warehouse/recebimento/pkg/models"
	"github.com/warehouse/recebimento/pkg/store"
)

const sessionA = models.SessionID("session_A_01-01-2024_A")

var errOffline = errors.New("network is unreachable")

func newStore(t *testing.T) (*store.EntityStore, *datastoretest.Wrapped) {
	t.Helper()
	ds := datastoretest.Wrap(memory.New())
	st := store.New(ds, store.WithClock(func() time.Time {
		return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	}))
	t.Cleanup(func() { st.Close() })
	return st, ds
}

func offline(op, _, _ string) error {
	if op == datastoretest.OpPut || op == datastoretest.OpApply {
		return errOffline
	}
	return nil
}

func TestFacades_forwardToStore(t *testing.T) {
	ctx := context.Background()
	st, _ := newStore(t)
	f := New(st)

	require.NoError(t, f.Sessions.Save(ctx, &models.SessionData{SessionID: sessionA, Operator: "joao"}))
	session, err := f.Sessions.Get(ctx, sessionA)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "joao", session.Operator)

	require.NoError(t, f.Notas.Save(ctx, sessionA, []models.NotaFiscal{{Numero: "1001", Volumes: 2}}))
	notas, err := f.Notas.Get(ctx, sessionA)
	require.NoError(t, err)
	assert.Len(t, notas, 1)

	require.NoError(t, f.Carros.Save(ctx, sessionA, []models.Carro{{Identificador: "C-01"}, {Identificador: "C-02"}}))
	carros, err := f.Carros.Get(ctx, sessionA)
	require.NoError(t, err)
	require.Len(t, carros, 2)

	moved, err := f.Carros.Finalize(ctx, sessionA, carros[0].ID)
	require.NoError(t, err)
	assert.True(t, moved.Finalized())

	active, err := f.Carros.Get(ctx, sessionA)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	finalizados, err := f.Carros.GetFinalizados(ctx)
	require.NoError(t, err)
	assert.Len(t, finalizados, 1)

	require.NoError(t, f.Relatorios.Save(ctx, &models.Relatorio{Author: "ana"}))
	relatorios, err := f.Relatorios.List(ctx)
	require.NoError(t, err)
	assert.Len(t, relatorios, 1)

	require.NoError(t, f.Chat.Send(ctx, &models.ChatMessage{ConversaID: "conv-1", Sender: models.RoleOperador, Text: "oi"}))
	unread, err := f.Chat.CountUnread(ctx, "conv-1", models.RoleSupervisor)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
	n, err := f.Chat.MarkAsRead(ctx, "conv-1", models.RoleSupervisor)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	messages, err := f.Chat.Messages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.False(t, messages[0].UnreadFor(models.RoleSupervisor))

	require.NoError(t, f.Sessions.Delete(ctx, sessionA))
	session, err = f.Sessions.Get(ctx, sessionA)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestWithMigration_runsOnFirstCall(t *testing.T) {
	ctx := context.Background()
	st, _ := newStore(t)
	source := legacy.NewMapSource(map[string]string{
		"sistema_session": `{"sessionId":"session_A_01-01-2024_A","operador":"joao"}`,
		"sistema_notas":   `[{"numero":"1001","volumes":3}]`,
	})
	states := migration.NewMemoryStateStore()
	f := New(st, WithMigration(migration.New(st, source, states)))

	notas, err := f.Notas.Get(ctx, sessionA)
	require.NoError(t, err)
	assert.Len(t, notas, 1)

	saves := states.Saves()
	_, err = f.Sessions.Get(ctx, sessionA)
	require.NoError(t, err)
	assert.Equal(t, saves, states.Saves(), "a finished migration is not attempted again")
}

func TestWithMigration_retriesUntilDone(t *testing.T) {
	ctx := context.Background()
	st, _ := newStore(t)
	source := legacy.NewMapSource(map[string]string{
		"sistema_session": `{"sessionId":"session_A_01-01-2024_A"}`,
		"sistema_notas":   `[{"numero":`,
	})
	states := migration.NewMemoryStateStore()
	f := New(st, WithMigration(migration.New(st, source, states)))

	session, err := f.Sessions.Get(ctx, sessionA)
	require.NoError(t, err, "a partial migration does not fail the call")
	require.NotNil(t, session)

	require.NoError(t, source.Set(ctx, "sistema_notas", `[{"numero":"1001"}]`))
	notas, err := f.Notas.Get(ctx, sessionA)
	require.NoError(t, err)
	assert.Len(t, notas, 1)

	state, err := states.Load(ctx)
	require.NoError(t, err)
	assert.True(t, state.Completed)
}

type failingStates struct{}

func (failingStates) Load(context.Context) (*migration.State, error) {
	return nil, errors.New("state unavailable")
}

func (failingStates) Save(context.Context, *migration.State) error {
	return errors.New("state unavailable")
}

func TestWithMigration_failureDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	st, _ := newStore(t)
	source := legacy.NewMapSource(map[string]string{"sistema_session": `{"sessionId":"session_A_01-01-2024_A"}`})
	f := New(st, WithMigration(migration.New(st, source, failingStates{})))

	require.NoError(t, f.Notas.Save(ctx, sessionA, []models.NotaFiscal{{Numero: "1"}}))
	notas, err := f.Notas.Get(ctx, sessionA)
	require.NoError(t, err)
	assert.Len(t, notas, 1)
}

func TestWithMigration_concurrentCalls(t *testing.T) {
	ctx := context.Background()
	st, _ := newStore(t)
	source := legacy.NewMapSource(map[string]string{
		"sistema_session": `{"sessionId":"session_A_01-01-2024_A"}`,
		"sistema_chat":    `[{"conversaId":"conv-1","sender":"admin","text":"bom dia"}]`,
	})
	states := migration.NewMemoryStateStore()
	f := New(st, WithMigration(migration.New(st, source, states)))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Chat.Messages(ctx, "conv-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	messages, err := f.Chat.Messages(ctx, "conv-1")
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestWithLegacyFallback_keepsFailedSaves(t *testing.T) {
	ctx := context.Background()
	st, ds := newStore(t)
	shadow := legacy.NewMapSource(nil)
	f := New(st, WithLegacyFallback(shadow))
	ds.SetBeforeOp(offline)

	err := f.Notas.Save(ctx, sessionA, []models.NotaFiscal{{Numero: "1001", Volumes: 2}})
	require.Error(t, err)
	assert.True(t, store.IsTransport(err))
	assert.ErrorIs(t, err, errOffline)

	raw, ok, err := shadow.Get(ctx, "sistema_notas")
	require.NoError(t, err)
	require.True(t, ok)
	e, err := codec.DecodeLegacy(codec.KindNotas, []byte(raw))
	require.NoError(t, err)
	require.Len(t, e.Notas, 1)
	assert.Equal(t, sessionA, e.Notas[0].SessionID)

	err = f.Sessions.Save(ctx, &models.SessionData{SessionID: sessionA})
	require.Error(t, err)
	raw, ok, err = shadow.Get(ctx, "sistema_session")
	require.NoError(t, err)
	require.True(t, ok)
	session, err := codec.DecodeSession([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, sessionA, session.SessionID)
}

func TestWithLegacyFallback_accumulatesMessages(t *testing.T) {
	ctx := context.Background()
	st, ds := newStore(t)
	shadow := legacy.NewMapSource(nil)
	f := New(st, WithLegacyFallback(shadow))
	ds.SetBeforeOp(offline)

	first := &models.ChatMessage{ConversaID: "conv-1", Sender: models.RoleOperador, Text: "um"}
	require.Error(t, f.Chat.Send(ctx, first))
	require.Error(t, f.Chat.Send(ctx, &models.ChatMessage{ConversaID: "conv-1", Sender: models.RoleAdmin, Text: "dois"}))
	require.Error(t, f.Chat.Send(ctx, first), "resending replaces the kept copy")

	raw, ok, err := shadow.Get(ctx, "sistema_chat")
	require.NoError(t, err)
	require.True(t, ok)
	e, err := codec.DecodeLegacy(codec.KindMensagens, []byte(raw))
	require.NoError(t, err)
	require.Len(t, e.Messages, 2)
	assert.Equal(t, "um", e.Messages[0].Text)
	assert.Equal(t, "dois", e.Messages[1].Text)
}

func TestWithLegacyFallback_ignoresValidationErrors(t *testing.T) {
	ctx := context.Background()
	st, _ := newStore(t)
	shadow := legacy.NewMapSource(nil)
	f := New(st, WithLegacyFallback(shadow))

	err := f.Notas.Save(ctx, sessionA, []models.NotaFiscal{{Numero: "1"}, {Numero: "1"}})
	require.Error(t, err)
	assert.True(t, store.IsValidation(err, store.DuplicateInvoice))
	assert.Empty(t, shadow.Snapshot())
}

func TestWithLegacyFallback_migratesBack(t *testing.T) {
	ctx := context.Background()
	st, ds := newStore(t)
	shadow := legacy.NewMapSource(nil)
	f := New(st, WithLegacyFallback(shadow))

	ds.SetBeforeOp(offline)
	require.Error(t, f.Sessions.Save(ctx, &models.SessionData{SessionID: sessionA, Operator: "joao"}))
	require.Error(t, f.Relatorios.Save(ctx, &models.Relatorio{Author: "ana", SessionIDs: []models.SessionID{sessionA}}))
	ds.SetBeforeOp(nil)

	result, err := migration.New(st, shadow, migration.NewMemoryStateStore()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, migration.Completed, result.Status)

	session, err := st.GetSession(ctx, sessionA)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "joao", session.Operator)

	relatorios, err := st.GetRelatorios(ctx)
	require.NoError(t, err)
	require.Len(t, relatorios, 1)
	assert.Equal(t, "ana", relatorios[0].Author)
}

func TestWithLegacyFallback_keptSaveReachesStoreAfterMigration(t *testing.T) {
	ctx := context.Background()
	st, ds := newStore(t)
	shadow := legacy.NewMapSource(map[string]string{
		"sistema_session": `{"sessionId":"session_A_01-01-2024_A"}`,
		"sistema_notas":   `[{"numero":"1001","volumes":3}]`,
	})
	migrator := migration.New(st, shadow, migration.NewDatastoreStateStore(ds, 0))
	f := New(st, WithMigration(migrator), WithLegacyFallback(shadow))

	notas, err := f.Notas.Get(ctx, sessionA)
	require.NoError(t, err)
	require.Len(t, notas, 1)

	ds.SetBeforeOp(offline)
	err = f.Notas.Save(ctx, sessionA, []models.NotaFiscal{{Numero: "1001", Volumes: 3}, {Numero: "2002", Volumes: 1}})
	require.True(t, store.IsTransport(err), "got %v", err)
	ds.SetBeforeOp(nil)

	deleted, err := migrator.ClearLegacy(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sistema_session"}, deleted)
	_, ok, err := shadow.Get(ctx, "sistema_notas")
	require.NoError(t, err)
	require.True(t, ok, "an unsynced save is never cleared")

	notas, err = f.Notas.Get(ctx, sessionA)
	require.NoError(t, err)
	require.Len(t, notas, 2)
	numeros := []string{notas[0].Numero, notas[1].Numero}
	assert.ElementsMatch(t, []string{"1001", "2002"}, numeros)

	deleted, err = migrator.ClearLegacy(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sistema_notas"}, deleted)
	assert.Empty(t, shadow.Snapshot())
}
