package datastoretest

import (
	"context"

	"github.com/warehouse/recebimento/pkg/datastore"
)

// Blocking never answers a Get or Put until the caller gives up. Other calls go to
// the embedded datastore.
type Blocking struct {
	datastore.Datastore
}

func (Blocking) Get(ctx context.Context, _, _ string) (datastore.Document, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (Blocking) Put(ctx context.Context, _, _ string, _ datastore.Document) error {
	<-ctx.Done()
	return ctx.Err()
}
