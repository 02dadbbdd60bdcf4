// Package postgres implements [datastore.Datastore] on PostgreSQL through GORM.
//
// All tables share one relation, documents, keyed by (collection, key) with a jsonb
// body. Equality scans use jsonb containment (body @> filter), and [Store.Apply]
// runs inside a database transaction.
//
// Call [Store.Migrate] once before first use to create the relation.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/warehouse/recebimento/pkg/datastore"
)

// document is one row of the documents relation.
type document struct {
	Collection string    `gorm:"primaryKey;size:64"`
	Key        string    `gorm:"primaryKey;size:255"`
	Body       string    `gorm:"type:jsonb;not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (document) TableName() string {
	return "documents"
}

type Store struct {
	db *gorm.DB
}

var (
	_ datastore.Datastore = (*Store)(nil)
	_ datastore.Batcher   = (*Store)(nil)
	_ datastore.Schema    = (*Store)(nil)
)

// Open connects to the database at dsn. GORM warnings and slow queries go to logger.
func Open(dsn string, logger zerolog.Logger) (*Store, error) {
	l := logger.With().Str("component", "gorm").Logger()
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(&l, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate creates the documents relation and its containment index.
// It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&document{}); err != nil {
		return fmt.Errorf("failed to migrate documents: %w", err)
	}
	err := s.db.WithContext(ctx).
		Exec("CREATE INDEX IF NOT EXISTS idx_documents_body ON documents USING GIN (body jsonb_path_ops)").Error
	if err != nil {
		return fmt.Errorf("failed to index documents: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Get(ctx context.Context, table, key string) (datastore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var row document
	err := s.db.WithContext(ctx).First(&row, "collection = ? AND key = ?", table, key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", table, key, err)
	}
	return decodeBody(row.Body)
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
	q := s.db.WithContext(ctx).Where("collection = ?", table)
	if len(filter) > 0 {
		raw, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		q = q.Where("body @> ?::jsonb", string(raw))
	}

	var rows []document
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}

	out := make([]datastore.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := decodeBody(row.Body)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Apply runs every op in one transaction.
func (s *Store) Apply(ctx context.Context, ops []datastore.Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows := make([]*document, len(ops))
	now := time.Now().UTC()
	for i, op := range ops {
		switch op.Kind {
		case datastore.OpPut:
			if op.Doc == nil {
				return fmt.Errorf("failed to put %s/%s: nil document", op.Table, op.Key)
			}
			body, err := json.Marshal(op.Doc)
			if err != nil {
				return fmt.Errorf("failed to put %s/%s: %w", op.Table, op.Key, err)
			}
			rows[i] = &document{Collection: op.Table, Key: op.Key, Body: string(body), UpdatedAt: now}
		case datastore.OpDelete:
		default:
			return fmt.Errorf("unknown op kind %q", op.Kind)
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, op := range ops {
			var err error
			if op.Kind == datastore.OpPut {
				err = tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "collection"}, {Name: "key"}},
					DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
				}).Create(rows[i]).Error
			} else {
				err = tx.Where("collection = ? AND key = ?", op.Table, op.Key).Delete(&document{}).Error
			}
			if err != nil {
				return fmt.Errorf("failed to %s %s/%s: %w", op.Kind, op.Table, op.Key, err)
			}
		}
		return nil
	})
}

func decodeBody(body string) (datastore.Document, error) {
	var doc datastore.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode stored document: %w", err)
	}
	return doc, nil
}
