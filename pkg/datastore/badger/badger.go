// Package badger stores documents in an embedded Badger database, one key per
// document under "<table>/<key>", with CBOR values.
package badger

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"github.com/warehouse/recebimento/pkg/datastore"
)

type Store struct {
	db  *badger.DB
	dec cbor.DecMode

	mu     sync.RWMutex
	closed bool
}

var (
	_ datastore.Datastore = (*Store)(nil)
	_ datastore.Batcher   = (*Store)(nil)
)

// Open opens (or creates) the database in dir. An empty dir opens an in-memory
// database.
func Open(dir string, logger zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(zerologAdapter{logger.With().Str("component", "badger").Logger()})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	dec, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, dec: dec}, nil
}

func recordKey(table, key string) []byte {
	return []byte(table + "/" + key)
}

func tablePrefix(table string) []byte {
	return []byte(table + "/")
}

func (s *Store) acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, datastore.ErrClosed
	}
	return s.mu.RUnlock, nil
}

func (s *Store) decode(val []byte) (datastore.Document, error) {
	var doc map[string]any
	if err := s.dec.Unmarshal(val, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode stored document: %w", err)
	}
	return datastore.Clone(doc)
}

func (s *Store) Get(ctx context.Context, table, key string) (datastore.Document, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var doc datastore.Document
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(table, key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			doc, err = s.decode(val)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("badger: get %s/%s: %w", table, key, err)
	}
	return doc, nil
}

func (s *Store) Put(ctx context.Context, table, key string, doc datastore.Document) error {
	return s.Apply(ctx, []datastore.Op{datastore.PutOp(table, key, doc)})
}

func (s *Store) Delete(ctx context.Context, table, key string) error {
	return s.Apply(ctx, []datastore.Op{datastore.DeleteOp(table, key)})
}

func (s *Store) Scan(ctx context.Context, table string, filter datastore.Filter) ([]datastore.Document, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	out := []datastore.Document{}
	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := tablePrefix(table)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				doc, err := s.decode(val)
				if err != nil {
					return err
				}
				if datastore.Matches(doc, filter) {
					out = append(out, doc)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: scan %s: %w", table, err)
	}
	return out, nil
}

// Apply writes every op in one read-write transaction.
func (s *Store) Apply(ctx context.Context, ops []datastore.Op) error {
	type write struct {
		key []byte
		val []byte
	}
	writes := make([]write, 0, len(ops))
	for _, op := range ops {
		switch op.Kind {
		case datastore.OpPut:
			if op.Doc == nil {
				return fmt.Errorf("badger: put %s/%s: nil document", op.Table, op.Key)
			}
			val, err := cbor.Marshal(map[string]any(op.Doc))
			if err != nil {
				return fmt.Errorf("badger: put %s/%s: %w", op.Table, op.Key, err)
			}
			writes = append(writes, write{key: recordKey(op.Table, op.Key), val: val})
		case datastore.OpDelete:
			writes = append(writes, write{key: recordKey(op.Table, op.Key)})
		default:
			return fmt.Errorf("badger: unknown op kind %q", op.Kind)
		}
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, w := range writes {
			var err error
			if w.val == nil {
				err = txn.Delete(w.key)
			} else {
				err = txn.Set(w.key, w.val)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger: apply: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// zerologAdapter routes badger's internal logging through zerolog.
type zerologAdapter struct {
	log zerolog.Logger
}

func (a zerologAdapter) Errorf(format string, args ...any) {
	a.log.Error().Msgf(format, args...)
}

func (a zerologAdapter) Warningf(format string, args ...any) {
	a.log.Warn().Msgf(format, args...)
}

func (a zerologAdapter) Infof(format string, args ...any) {
	a.log.Debug().Msgf(format, args...)
}

func (a zerologAdapter) Debugf(format string, args ...any) {
	a.log.Trace().Msgf(format, args...)
}
