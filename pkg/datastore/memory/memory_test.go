package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/warehouse/recebimento/pkg/datastore"
	"github.com/warehouse/recebimento/pkg/datastore/datastoretest"
)

func TestStore(t *testing.T) {
	suite.Run(t, &datastoretest.Suite{
		New: func(*testing.T) datastore.Datastore { return New() },
	})
}

func TestStore_Len(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "t", "a", datastore.Document{}))
	require.NoError(t, s.Put(ctx, "t", "b", datastore.Document{}))
	require.NoError(t, s.Delete(ctx, "t", "a"))
	assert.Equal(t, 1, s.Len("t"))
	assert.Equal(t, 0, s.Len("other"))
}

func TestStore_PutRejectsNilDocument(t *testing.T) {
	s := New()
	require.Error(t, s.Put(context.Background(), "t", "a", nil))
	assert.Equal(t, 0, s.Len("t"))
}
