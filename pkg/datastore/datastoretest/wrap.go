package datastoretest

import (
	"context"
	"sync"

	"github.com/warehouse/recebimento/pkg/datastore"
)

// Op names used by [Wrapped.BeforeOp].
const (
	OpGet    = "get"
	OpPut    = "put"
	OpDelete = "delete"
	OpScan   = "scan"
	OpApply  = "apply"
)

// Wrapped counts calls to an inner datastore and lets tests inject failures.
// It never implements [datastore.Batcher]; use [Wrapped.Batching] for that.
type Wrapped struct {
	Inner datastore.Datastore

	// BeforeOp runs before each call. A non-nil error is returned instead of
	// calling Inner. key is empty for scans and applies.
	BeforeOp func(op, table, key string) error

	mu     sync.Mutex
	reads  int
	writes int
}

var _ datastore.Datastore = (*Wrapped)(nil)

func Wrap(inner datastore.Datastore) *Wrapped {
	return &Wrapped{Inner: inner}
}

func (w *Wrapped) before(op, table, key string) error {
	w.mu.Lock()
	hook := w.BeforeOp
	w.mu.Unlock()
	if hook == nil {
		return nil
	}
	return hook(op, table, key)
}

// SetBeforeOp replaces the hook; safe to call while the datastore is in use.
func (w *Wrapped) SetBeforeOp(fn func(op, table, key string) error) {
	w.mu.Lock()
	w.BeforeOp = fn
	w.mu.Unlock()
}

func (w *Wrapped) count(reads, writes int) {
	w.mu.Lock()
	w.reads += reads
	w.writes += writes
	w.mu.Unlock()
}

// Reads returns the number of successful Get and Scan calls.
func (w *Wrapped) Reads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reads
}

// Writes returns the number of successful Put and Delete calls plus applied batch ops.
func (w *Wrapped) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}

// Reset zeroes the counters.
func (w *Wrapped) Reset() {
	w.mu.Lock()
	w.reads, w.writes = 0, 0
	w.mu.Unlock()
}

func (w *Wrapped) Get(ctx context.Context, table, key string) (datastore.Document, error) {
	if err := w.before(OpGet, table, key); err != nil {
		return nil, err
	}
	doc, err := w.Inner.Get(ctx, table, key)
	if err == nil {
		w.count(1, 0)
	}
	return doc, err
}

func (w *Wrapped) Put(ctx context.Context, table, key string, doc datastore.Document) error {
	if err := w.before(OpPut, table, key); err != nil {
		return err
	}
	err := w.Inner.Put(ctx, table, key, doc)
	if err == nil {
		w.count(0, 1)
	}
	return err
}

func (w *Wrapped) Delete(ctx context.Context, table, key string) error {
	if err := w.before(OpDelete, table, key); err != nil {
		return err
	}
	err := w.Inner.Delete(ctx, table, key)
	if err == nil {
		w.count(0, 1)
	}
	return err
}

func (w *Wrapped) Scan(ctx context.Context, table string, filter datastore.Filter) ([]datastore.Document, error) {
	if err := w.before(OpScan, table, ""); err != nil {
		return nil, err
	}
	docs, err := w.Inner.Scan(ctx, table, filter)
	if err == nil {
		w.count(1, 0)
	}
	return docs, err
}

func (w *Wrapped) Close() error {
	return w.Inner.Close()
}

// Batching returns a view of w that also implements [datastore.Batcher].
// Inner must implement it.
func (w *Wrapped) Batching() datastore.Datastore {
	return batching{w}
}

type batching struct {
	*Wrapped
}

func (b batching) Apply(ctx context.Context, ops []datastore.Op) error {
	if err := b.before(OpApply, "", ""); err != nil {
		return err
	}
	err := b.Inner.(datastore.Batcher).Apply(ctx, ops)
	if err == nil {
		b.count(0, len(ops))
	}
	return err
}
