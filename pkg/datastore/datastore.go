// Package datastore defines the remote datastore boundary the entity store is built on:
// a keyed document interface with point lookup, upsert, delete and equality scans.
//
// Backends live in sub-packages:
//   - [github.com/warehouse/recebimento/pkg/datastore/surrealdb]: SurrealDB over WebSocket
//   - [github.com/warehouse/recebimento/pkg/datastore/postgres]: PostgreSQL through GORM
//   - [github.com/warehouse/recebimento/pkg/datastore/badger]: embedded Badger database
//   - [github.com/warehouse/recebimento/pkg/datastore/memory]: process memory, for tests and demos
//
// Only single-key atomicity is required of a backend. Backends that can apply several
// writes atomically also implement [Batcher]; callers must work correctly without it.
package datastore

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed datastore.
var ErrClosed = errors.New("datastore is closed")

// Document is one stored record. Values are JSON-compatible: string, float64, bool,
// nil, []any and map[string]any.
type Document map[string]any

// Filter selects documents whose top-level fields equal the given values.
// An empty filter matches every document of the table.
type Filter map[string]any

// Datastore is a keyed document store.
type Datastore interface {
	// Get returns the document stored under key, or nil, nil when there is none.
	Get(ctx context.Context, table, key string) (Document, error)

	// Put creates or replaces the document stored under key.
	Put(ctx context.Context, table, key string, doc Document) error

	// Delete removes the document stored under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, table, key string) error

	// Scan returns every document of table matching filter, in no particular order.
	// The result is empty, never nil, when nothing matches.
	Scan(ctx context.Context, table string, filter Filter) ([]Document, error)

	// Close releases the underlying connection or files.
	Close() error
}

// OpKind is the kind of write inside a batch.
type OpKind string

const (
	OpPut    OpKind = "put"
	OpDelete OpKind = "delete"
)

// Op is one write of a batch.
type Op struct {
	Kind  OpKind
	Table string
	Key   string
	Doc   Document
}

// PutOp returns a put operation.
func PutOp(table, key string, doc Document) Op {
	return Op{Kind: OpPut, Table: table, Key: key, Doc: doc}
}

// DeleteOp returns a delete operation.
func DeleteOp(table, key string) Op {
	return Op{Kind: OpDelete, Table: table, Key: key}
}

// Batcher is implemented by backends that can apply several writes atomically:
// after Apply returns, either every op is visible or none is.
type Batcher interface {
	Apply(ctx context.Context, ops []Op) error
}

// Schema is implemented by backends that need schema setup before first use.
type Schema interface {
	Migrate(ctx context.Context) error
}
