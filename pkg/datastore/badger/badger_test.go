package badger

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/warehouse/recebimento/pkg/datastore"
	"github.com/warehouse/recebimento/pkg/datastore/datastoretest"
)

func TestStore(t *testing.T) {
	suite.Run(t, &datastoretest.Suite{
		New: func(t *testing.T) datastore.Datastore {
			s, err := Open("", zerolog.Nop())
			require.NoError(t, err)
			return s
		},
	})
}

func TestStore_persistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "notas", "session_A_01-01-2024_A", datastore.Document{
		"sessionId": "session_A_01-01-2024_A",
		"notas":     []any{map[string]any{"numero": "1001", "volumes": float64(3)}},
	}))
	require.NoError(t, s.Close())

	s, err = Open(dir, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	doc, err := s.Get(ctx, "notas", "session_A_01-01-2024_A")
	require.NoError(t, err)
	require.NotNil(t, doc)
	notas := doc["notas"].([]any)
	require.Len(t, notas, 1)
	assert.Equal(t, float64(3), notas[0].(map[string]any)["volumes"])
}

func TestStore_prefixDoesNotLeakAcrossTables(t *testing.T) {
	s, err := Open("", zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "carros", "1", datastore.Document{"id": "1"}))
	require.NoError(t, s.Put(ctx, "carros_finalizados", "2", datastore.Document{"id": "2"}))

	docs, err := s.Scan(ctx, "carros", nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "1", docs[0]["id"])
}
