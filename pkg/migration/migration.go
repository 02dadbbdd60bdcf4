// Package migration moves the legacy local storage shadow into the entity store.
//
// A [Coordinator] pass probes the well-known legacy keys, decodes each blob with the
// record codec and writes the entities through the store. Progress is persisted as a
// [State]: keys already written are skipped on later passes, and once every key
// present has been written the state is Completed and later passes perform no writes
// at all. Entity ids are deterministic, so rewriting a key after an interrupted pass
// replaces records instead of duplicating them.
//
// Several passes may run at once (browser tabs, retried requests). There is no lock:
// each pass merges its outcome with the state persisted at the end, taking the union
// of written keys and never turning a Completed state back.
//
// Saves kept in the shadow while the datastore was unreachable are marked pending
// (see [legacy.PendingKey]). A pending key is migrated again even when it was written
// before, and is never cleared until it has been.
//
// The legacy shadow is never modified by a pass. [Coordinator.ClearLegacy] deletes
// the keys recorded as written, and only when asked to.
package migration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/warehouse/recebimento/pkg/codec"
	"github.com/warehouse/recebimento/pkg/legacy"
	"github.com/warehouse/recebimento/pkg/models"
	"github.com/warehouse/recebimento/pkg/store"
)

// ErrNotWritable is returned by ClearLegacy when the source cannot delete keys.
var ErrNotWritable = errors.New("legacy source is read-only")

// Result summarizes one pass.
type Result struct {
	Status Status `json:"status"`

	// NoOp is set when no legacy key was present.
	NoOp bool `json:"noOp"`

	// AlreadyMigrated is set when the persisted state was Completed before the pass.
	AlreadyMigrated bool `json:"alreadyMigrated"`

	// Present lists the legacy keys found, in migration order.
	Present []string `json:"present"`

	// Skipped lists keys written by an earlier pass.
	Skipped []string `json:"skipped"`

	// Succeeded lists keys written by this pass.
	Succeeded []string `json:"succeeded"`

	Failed []Failure `json:"failed"`
}

// Done reports whether later passes have nothing left to do.
func (r *Result) Done() bool {
	return r.NoOp || (r.Status == Completed && len(r.Failed) == 0)
}

type Coordinator struct {
	store  store.Store
	source legacy.Source
	states StateStore
	log    zerolog.Logger
	now    func() time.Time
}

type Option func(*Coordinator)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.log = l
	}
}

// WithClock replaces time.Now for state timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

func New(st store.Store, source legacy.Source, states StateStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  st,
		source: source,
		states: states,
		log:    zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithSource returns a coordinator sharing c's store and state but reading source.
func (c *Coordinator) WithSource(source legacy.Source) *Coordinator {
	cc := *c
	cc.source = source
	return &cc
}

type blob struct {
	key  legacy.Key
	data string
	err  error
}

// probe reads every known key. Keys that failed to read count as present.
func (c *Coordinator) probe(ctx context.Context) []blob {
	var found []blob
	for _, k := range legacy.Keys {
		data, ok, err := c.source.Get(ctx, k.Name)
		if err != nil {
			found = append(found, blob{key: k, err: err})
			continue
		}
		if ok {
			found = append(found, blob{key: k, data: data})
		}
	}
	return found
}

// Run performs one migration pass. Per-key failures are reported in the result;
// the error is reserved for failures to read or persist the state itself.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	blobs := c.probe(ctx)
	result := &Result{
		Present:   make([]string, 0, len(blobs)),
		Skipped:   []string{},
		Succeeded: []string{},
		Failed:    []Failure{},
	}
	for _, b := range blobs {
		result.Present = append(result.Present, b.key.Name)
	}

	state, err := c.states.Load(ctx)
	if err != nil {
		return nil, err
	}

	if len(blobs) == 0 {
		result.NoOp = true
		result.Status = state.Status
		result.AlreadyMigrated = state.Completed
		c.log.Debug().Msg("no legacy data found")
		return result, nil
	}

	pending := c.pending(ctx, blobs)
	if state.Completed && len(pending) == 0 {
		c.log.Debug().Msg("legacy data already migrated")
		return alreadyMigrated(result), nil
	}

	state, err = c.markRunning(ctx, len(pending) > 0)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return alreadyMigrated(result), nil
	}
	c.log.Info().Strs("keys", result.Present).Strs("pending", keysOf(pending)).Msg("migrating legacy data")

	sessionID := state.SessionID
	for _, b := range blobs {
		if state.HasSucceeded(b.key.Name) && !pending[b.key.Name] {
			result.Skipped = append(result.Skipped, b.key.Name)
			continue
		}
		if ctx.Err() != nil {
			result.Failed = append(result.Failed, Failure{Key: b.key.Name, Stage: StageWrite, Message: ctx.Err().Error()})
			continue
		}

		written, failure := c.migrateKey(ctx, b, sessionID)
		if failure != nil {
			c.log.Warn().
				Str("key", failure.Key).
				Str("stage", string(failure.Stage)).
				Msg(failure.Message)
			result.Failed = append(result.Failed, *failure)
			continue
		}
		if !written.IsZero() {
			sessionID = written
		}
		result.Succeeded = append(result.Succeeded, b.key.Name)
		if pending[b.key.Name] {
			c.resolve(ctx, b)
		}
		c.log.Info().Str("key", b.key.Name).Str("session_id", sessionID.String()).Msg("legacy key migrated")
	}

	final, err := c.finish(ctx, result, sessionID, pending)
	if err != nil {
		return nil, err
	}
	result.Status = final.Status
	c.log.Info().Str("status", string(final.Status)).Int("failed", len(result.Failed)).Msg("legacy migration pass finished")
	return result, nil
}

func alreadyMigrated(result *Result) *Result {
	result.Status = Completed
	result.AlreadyMigrated = true
	result.Skipped = result.Present
	return result
}

// markRunning reloads the persisted state and records the pass as Running on top of
// it. A state another pass completed in the meantime is returned untouched when
// force is set, and as nil otherwise.
func (c *Coordinator) markRunning(ctx context.Context, force bool) (*State, error) {
	latest, err := c.states.Load(ctx)
	if err != nil {
		return nil, err
	}
	if latest.Completed {
		if !force {
			c.log.Debug().Msg("legacy data migrated by a concurrent pass")
			return nil, nil
		}
		return latest, nil
	}

	now := c.now().UTC()
	if latest.StartedAt.IsZero() {
		latest.StartedAt = now
	}
	latest.Status = Running
	latest.UpdatedAt = now
	if err := c.states.Save(ctx, latest); err != nil {
		return nil, err
	}
	return latest, nil
}

// pending returns the present keys the shadow marks as holding writes the store
// never received. An unreadable mark counts as none.
func (c *Coordinator) pending(ctx context.Context, blobs []blob) map[string]bool {
	names, err := legacy.Pending(ctx, c.source)
	if err != nil {
		c.log.Warn().Err(err).Msg("ignoring unreadable pending legacy keys")
		return nil
	}
	present := map[string]bool{}
	for _, b := range blobs {
		present[b.key.Name] = true
	}
	out := map[string]bool{}
	for _, name := range names {
		if present[name] {
			out[name] = true
		}
	}
	return out
}

func (c *Coordinator) resolve(ctx context.Context, b blob) {
	w, ok := c.source.(legacy.Writer)
	if !ok {
		return
	}
	if err := legacy.ResolvePending(ctx, w, b.key.Name, b.data); err != nil {
		c.log.Warn().Err(err).Str("key", b.key.Name).Msg("failed to clear pending mark")
	}
}

func keysOf(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for _, k := range legacy.Keys {
		if set[k.Name] {
			out = append(out, k.Name)
		}
	}
	return out
}

// finish merges the pass outcome with the currently persisted state and saves it.
func (c *Coordinator) finish(ctx context.Context, result *Result, sessionID models.SessionID, pending map[string]bool) (*State, error) {
	latest, err := c.states.Load(ctx)
	if err != nil {
		return nil, err
	}

	merged := latest.clone()
	for _, key := range append(append([]string{}, result.Skipped...), result.Succeeded...) {
		if !merged.HasSucceeded(key) {
			merged.Succeeded = append(merged.Succeeded, key)
		}
	}
	if !sessionID.IsZero() {
		merged.SessionID = sessionID
	}

	merged.Failures = []Failure{}
	for _, f := range result.Failed {
		if !merged.HasSucceeded(f.Key) || pending[f.Key] {
			merged.Failures = append(merged.Failures, f)
		}
	}

	complete := true
	for _, key := range result.Present {
		if !merged.HasSucceeded(key) {
			complete = false
			break
		}
	}
	if complete || latest.Completed {
		merged.Status = Completed
		merged.Completed = true
	} else {
		merged.Status = PartiallyCompleted
	}
	merged.UpdatedAt = c.now().UTC()

	if err := c.states.Save(ctx, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// migrateKey writes one legacy blob. It returns the session id the blob established,
// if it was the session.
func (c *Coordinator) migrateKey(ctx context.Context, b blob, sessionID models.SessionID) (models.SessionID, *Failure) {
	fail := func(stage Stage, err error) *Failure {
		return &Failure{Key: b.key.Name, Stage: stage, Message: err.Error()}
	}
	if b.err != nil {
		return "", fail(StageRead, b.err)
	}

	e, err := codec.DecodeLegacy(b.key.Kind, []byte(b.data), codec.WithDefaultSession(sessionID))
	if err != nil {
		return "", fail(StageDecode, err)
	}

	switch b.key.Kind {
	case codec.KindSession:
		if err := c.store.SaveSession(ctx, e.Session); err != nil {
			return "", fail(StageWrite, err)
		}
		return e.Session.SessionID, nil

	case codec.KindNotas:
		groups, err := groupBySession(e.Notas, func(n models.NotaFiscal) models.SessionID { return n.SessionID })
		if err != nil {
			return "", fail(StageSession, err)
		}
		for _, g := range groups {
			if err := c.store.SaveNotas(ctx, g.id, g.items); err != nil {
				return "", fail(StageWrite, err)
			}
		}

	case codec.KindCarros:
		groups, err := groupBySession(e.Carros, func(carro models.Carro) models.SessionID { return carro.SessionID })
		if err != nil {
			return "", fail(StageSession, err)
		}
		for _, g := range groups {
			if err := c.store.SaveCarros(ctx, g.id, g.items); err != nil {
				return "", fail(StageWrite, err)
			}
		}

	case codec.KindCarrosFinalizados:
		if _, err := groupBySession(e.Carros, func(carro models.Carro) models.SessionID { return carro.SessionID }); err != nil {
			return "", fail(StageSession, err)
		}
		if len(e.Carros) > 0 {
			if err := c.store.SaveCarrosFinalizados(ctx, e.Carros); err != nil {
				return "", fail(StageWrite, err)
			}
		}

	case codec.KindRelatorios:
		for i := range e.Relatorios {
			if err := c.store.SaveRelatorio(ctx, &e.Relatorios[i]); err != nil {
				return "", fail(StageWrite, err)
			}
		}

	case codec.KindMensagens:
		for i := range e.Messages {
			if err := c.store.SaveMessage(ctx, &e.Messages[i]); err != nil {
				return "", fail(StageWrite, err)
			}
		}
	}
	return "", nil
}

type sessionGroup[T any] struct {
	id    models.SessionID
	items []T
}

// groupBySession splits records by session, keeping first-seen order. Records
// without a session fail the whole key.
func groupBySession[T any](items []T, sessionOf func(T) models.SessionID) ([]sessionGroup[T], error) {
	var groups []sessionGroup[T]
	index := map[models.SessionID]int{}
	for _, item := range items {
		id := sessionOf(item)
		if id.IsZero() {
			return nil, errors.New("no session id available: migrate sistema_session first or embed sessionId")
		}
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, sessionGroup[T]{id: id})
		}
		groups[i].items = append(groups[i].items, item)
	}
	return groups, nil
}

// Status returns the persisted state.
func (c *Coordinator) Status(ctx context.Context) (*State, error) {
	return c.states.Load(ctx)
}

// ClearLegacy deletes from the legacy source the keys recorded as written. Keys that
// were never written, and keys marked pending since, stay in place. It returns the
// deleted keys.
func (c *Coordinator) ClearLegacy(ctx context.Context) ([]string, error) {
	w, ok := c.source.(legacy.Writer)
	if !ok {
		return nil, ErrNotWritable
	}
	state, err := c.states.Load(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := legacy.Pending(ctx, c.source)
	if err != nil {
		return nil, err
	}

	deleted := []string{}
	for _, k := range legacy.Keys {
		if !state.HasSucceeded(k.Name) || slices.Contains(pending, k.Name) {
			continue
		}
		if err := w.Delete(ctx, k.Name); err != nil {
			return deleted, fmt.Errorf("failed to clear legacy key %s: %w", k.Name, err)
		}
		deleted = append(deleted, k.Name)
	}
	c.log.Info().Strs("keys", deleted).Strs("kept", pending).Msg("legacy data cleared")
	return deleted, nil
}
