// Package memory is a process-local datastore for tests, demos and the legacy
// fallback mode. Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/warehouse/recebimento/pkg/datastore"
)

// Store keeps documents in nested maps guarded by one RWMutex. Documents are
// cloned on the way in and out.
type Store struct {
	mu     sync.RWMutex
	tables map[string]map[string]datastore.Document
	closed bool
}

var (
	_ datastore.Datastore = (*Store)(nil)
	_ datastore.Batcher   = (*Store)(nil)
)

func New() *Store {
	return &Store{tables: map[string]map[string]datastore.Document{}}
}

func (s *Store) Get(ctx context.Context, table, key string) (datastore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, datastore.ErrClosed
	}
	doc, ok := s.tables[table][key]
	if !ok {
		return nil, nil
	}
	return datastore.Clone(doc)
}

func (s *Store) Put(ctx context.Context, table, key string, doc datastore.Document) error {
	return s.Apply(ctx, []datastore.Op{datastore.PutOp(table, key, doc)})
}

func (s *Store) Delete(ctx context.Context, table, key string) error {
	return s.Apply(ctx, []datastore.Op{datastore.DeleteOp(table, key)})
}

func (s *Store) Scan(ctx context.Context, table string, filter datastore.Filter) ([]datastore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, datastore.ErrClosed
	}
	out := []datastore.Document{}
	for _, doc := range s.tables[table] {
		if !datastore.Matches(doc, filter) {
			continue
		}
		clone, err := datastore.Clone(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, clone)
	}
	return out, nil
}

// Apply validates and clones every op before taking the write lock, so a bad
// batch changes nothing.
func (s *Store) Apply(ctx context.Context, ops []datastore.Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepared := make([]datastore.Op, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case datastore.OpPut:
			if op.Doc == nil {
				return fmt.Errorf("memory: put %s/%s: nil document", op.Table, op.Key)
			}
			clone, err := datastore.Clone(op.Doc)
			if err != nil {
				return fmt.Errorf("memory: put %s/%s: %w", op.Table, op.Key, err)
			}
			op.Doc = clone
		case datastore.OpDelete:
		default:
			return fmt.Errorf("memory: unknown op kind %q", op.Kind)
		}
		prepared[i] = op
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return datastore.ErrClosed
	}
	for _, op := range prepared {
		switch op.Kind {
		case datastore.OpPut:
			t, ok := s.tables[op.Table]
			if !ok {
				t = map[string]datastore.Document{}
				s.tables[op.Table] = t
			}
			t[op.Key] = op.Doc
		case datastore.OpDelete:
			delete(s.tables[op.Table], op.Key)
		}
	}
	return nil
}

// Len returns the number of documents in table.
func (s *Store) Len(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
