// Package surrealdb implements [datastore.Datastore] on SurrealDB over WebSocket.
//
// Every document is stored as the record <table>:⟨key⟩ with content
//
//	{ key: <key>, doc: <document> }
//
// so document fields never collide with the record id. Equality scans filter on
// doc.<field>, and [Store.Apply] runs its writes inside one SurrealQL transaction.
//
// Values are exchanged with the surrealcbor codec:
//
//	ds, err := surrealdb.Open(ctx, surrealdb.Config{
//		URL:       "ws://localhost:8000/rpc",
//		Namespace: "recebimento",
//		Database:  "recebimento",
//		Username:  "root",
//		Password:  "root",
//	})
package surrealdb

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/surrealql"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/warehouse/recebimento/pkg/datastore"
)

// Config holds the connection settings.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

type Store struct {
	db *surrealdb.DB
}

var (
	_ datastore.Datastore = (*Store)(nil)
	_ datastore.Batcher   = (*Store)(nil)
)

// record is the stored shape of one document.
type record struct {
	Key string         `json:"key"`
	Doc map[string]any `json:"doc"`
}

// Open connects, signs in when credentials are set and selects the namespace and database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	conf := connection.NewConfig(u)
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec

	db, err := surrealdb.FromConnection(ctx, gorillaws.New(conf))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if cfg.Username != "" && cfg.Password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": cfg.Username,
			"pass": cfg.Password,
		}); err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close(context.Background())
}

// handleNotFound reports a select of a missing record as no error.
func handleNotFound(err error) error {
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "Expected a single or multiple results but got 0") ||
			strings.Contains(errStr, "cannot unmarshal array into Go value") {
			return nil
		}
	}
	return err
}

func (s *Store) Get(ctx context.Context, table, key string) (datastore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := surrealdb.Select[record](ctx, s.db, models.NewRecordID(table, key))
	if err != nil {
		if handleNotFound(err) == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s:%s: %w", table, key, err)
	}
	if rec == nil || rec.Doc == nil {
		return nil, nil
	}
	return datastore.Clone(rec.Doc)
}

func (s *Store) Put(ctx context.Context, table, key string, doc datastore.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("failed to put %s:%s: nil document", table, key)
	}
	content := record{Key: key, Doc: doc}
	if _, err := surrealdb.Upsert[record](ctx, s.db, models.NewRecordID(table, key), content); err != nil {
		return fmt.Errorf("failed to put %s:%s: %w", table, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := surrealdb.Delete[record](ctx, s.db, models.NewRecordID(table, key)); err != nil {
		if handleNotFound(err) == nil {
			return nil
		}
		return fmt.Errorf("failed to delete %s:%s: %w", table, key, err)
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, table string, filter datastore.Filter) ([]datastore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query, vars := scanQuery(table, filter)
	results, err := surrealdb.Query[[]record](ctx, s.db, query, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}

	out := []datastore.Document{}
	if results == nil {
		return out, nil
	}
	for _, res := range *results {
		if res.Status != "OK" {
			return nil, fmt.Errorf("failed to scan %s: status %s", table, res.Status)
		}
		for _, rec := range res.Result {
			if rec.Doc == nil {
				continue
			}
			doc, err := datastore.Clone(rec.Doc)
			if err != nil {
				return nil, err
			}
			out = append(out, doc)
		}
	}
	return out, nil
}

// Apply runs every op inside one transaction.
func (s *Store) Apply(ctx context.Context, ops []datastore.Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	query, vars, err := applyQuery(ops)
	if err != nil {
		return err
	}
	results, err := surrealdb.Query[any](ctx, s.db, query, vars)
	if err != nil {
		return fmt.Errorf("failed to apply batch: %w", err)
	}
	if results != nil {
		for i, res := range *results {
			if res.Status != "OK" {
				return fmt.Errorf("failed to apply batch: statement %d: status %s", i, res.Status)
			}
		}
	}
	return nil
}

// scanQuery selects the table's records whose doc fields equal the filter values.
// Fields are added in sorted order so the query text is stable.
func scanQuery(table string, filter datastore.Filter) (string, map[string]any) {
	q := surrealql.Select("*").FromTable(table)
	fields := make([]string, 0, len(filter))
	for field := range filter {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		q = q.Where("doc."+field+" = ?", filter[field])
	}
	query, vars := q.Build()
	if vars == nil {
		vars = map[string]any{}
	}
	return query, vars
}

func applyQuery(ops []datastore.Op) (string, map[string]any, error) {
	var b strings.Builder
	vars := make(map[string]any, len(ops)*2)

	b.WriteString("BEGIN TRANSACTION;\n")
	for i, op := range ops {
		rid := fmt.Sprintf("r%d", i)
		vars[rid] = models.NewRecordID(op.Table, op.Key)
		switch op.Kind {
		case datastore.OpPut:
			if op.Doc == nil {
				return "", nil, fmt.Errorf("failed to apply batch: put %s:%s: nil document", op.Table, op.Key)
			}
			content := fmt.Sprintf("c%d", i)
			vars[content] = record{Key: op.Key, Doc: op.Doc}
			fmt.Fprintf(&b, "UPSERT $%s CONTENT $%s;\n", rid, content)
		case datastore.OpDelete:
			fmt.Fprintf(&b, "DELETE $%s;\n", rid)
		default:
			return "", nil, fmt.Errorf("failed to apply batch: unknown op kind %q", op.Kind)
		}
	}
	b.WriteString("COMMIT TRANSACTION;")
	return b.String(), vars, nil
}
