// Package facade groups the entity store operations by feature, the way the screens
// of the receiving application use them.
//
// Every facade forwards to the store. Two optional behaviours sit in front of it:
// a pending legacy migration is attempted on the first call (see [WithMigration]),
// and saves that fail to reach the datastore can be kept in the legacy shadow (see
// [WithLegacyFallback]).
package facade

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/warehouse/recebimento/pkg/codec"
	"github.com/warehouse/recebimento/pkg/legacy"
	"github.com/warehouse/recebimento/pkg/migration"
	"github.com/warehouse/recebimento/pkg/models"
	"github.com/warehouse/recebimento/pkg/store"
)

type Facades struct {
	Sessions   *Sessions
	Notas      *Notas
	Carros     *Carros
	Relatorios *Relatorios
	Chat       *Chat
}

type Option func(*core)

// WithMigration runs m before the first call through any facade. A pass that does not
// finish is attempted again on later calls until it reports Completed or NoOp.
// Migration errors are logged and never fail the call itself.
func WithMigration(m *migration.Coordinator) Option {
	return func(c *core) {
		c.migrator = m
	}
}

// WithLegacyFallback keeps the payload of saves that fail with a transport error in
// w, under the legacy key of its kind, and marks that key pending so the migration
// writes it again and ClearLegacy leaves it alone. The save still returns its error.
func WithLegacyFallback(w legacy.Writer) Option {
	return func(c *core) {
		c.shadow = w
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *core) {
		c.log = l
	}
}

func New(st store.Store, opts ...Option) *Facades {
	c := &core{store: st, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return &Facades{
		Sessions:   &Sessions{c},
		Notas:      &Notas{c},
		Carros:     &Carros{c},
		Relatorios: &Relatorios{c},
		Chat:       &Chat{c},
	}
}

// core is shared by every facade of one New call.
type core struct {
	store    store.Store
	migrator *migration.Coordinator
	shadow   legacy.Writer
	log      zerolog.Logger

	mu       sync.Mutex
	migrated bool
}

// ensureMigrated runs the migration until one pass reports it done. Concurrent
// callers wait for the pass in progress.
func (c *core) ensureMigrated(ctx context.Context) {
	if c.migrator == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.migrated {
		return
	}

	result, err := c.migrator.Run(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("legacy migration failed")
		return
	}
	if len(result.Failed) > 0 {
		c.log.Warn().Int("failed", len(result.Failed)).Str("status", string(result.Status)).Msg("legacy migration incomplete")
	}
	c.migrated = result.Done()
}

// fallback writes e to the legacy shadow when err is a transport error, and returns err.
func (c *core) fallback(ctx context.Context, e *codec.Entities, err error) error {
	if err == nil || c.shadow == nil || !store.IsTransport(err) {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	name, ok := legacy.NameFor(e.Kind)
	if !ok {
		return err
	}
	if accumulates(e.Kind) {
		e = c.withShadowed(ctx, name, e)
	}

	raw, encErr := codec.EncodeForLegacyFallback(e)
	if encErr != nil {
		c.log.Error().Err(encErr).Str("key", name).Msg("failed to encode legacy fallback")
		return err
	}
	if setErr := legacy.SetPending(ctx, c.shadow, name, string(raw)); setErr != nil {
		c.log.Error().Err(setErr).Str("key", name).Msg("failed to write legacy fallback")
		return err
	}

	// the next call migrates the kept save once the datastore is back
	c.mu.Lock()
	c.migrated = false
	c.mu.Unlock()
	c.log.Warn().Err(err).Str("key", name).Int("records", e.Len()).Msg("datastore unavailable, kept in legacy shadow")
	return err
}

// accumulates reports whether saves of kind add records instead of replacing the
// whole collection.
func accumulates(kind codec.Kind) bool {
	switch kind {
	case codec.KindCarrosFinalizados, codec.KindRelatorios, codec.KindMensagens:
		return true
	}
	return false
}

// withShadowed merges e into the records already kept under name, when the shadow
// can be read back. Records with the same id are replaced.
func (c *core) withShadowed(ctx context.Context, name string, e *codec.Entities) *codec.Entities {
	src, ok := c.shadow.(legacy.Source)
	if !ok {
		return e
	}
	raw, found, err := src.Get(ctx, name)
	if err != nil || !found {
		return e
	}
	prev, err := codec.DecodeLegacy(e.Kind, []byte(raw))
	if err != nil {
		c.log.Warn().Err(err).Str("key", name).Msg("replacing unreadable legacy fallback")
		return e
	}
	prev.Carros = mergeByID(prev.Carros, e.Carros, func(v models.Carro) string { return v.ID })
	prev.Relatorios = mergeByID(prev.Relatorios, e.Relatorios, func(v models.Relatorio) string { return v.ID })
	prev.Messages = mergeByID(prev.Messages, e.Messages, func(v models.ChatMessage) string { return v.ID })
	return prev
}

func mergeByID[T any](prev, next []T, id func(T) string) []T {
	index := make(map[string]int, len(prev))
	out := append([]T{}, prev...)
	for i, v := range out {
		index[id(v)] = i
	}
	for _, v := range next {
		if i, ok := index[id(v)]; ok {
			out[i] = v
			continue
		}
		index[id(v)] = len(out)
		out = append(out, v)
	}
	return out
}
