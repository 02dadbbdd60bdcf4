package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warehouse/recebimento/pkg/datastore"
	"github.com/warehouse/recebimento/pkg/models"
	"github.com/warehouse/recebimento/pkg/store"
)

// Status of the legacy migration.
type Status string

const (
	NotStarted         Status = "NotStarted"
	Running            Status = "Running"
	Completed          Status = "Completed"
	PartiallyCompleted Status = "PartiallyCompleted"
)

// Stage names where a key failed.
type Stage string

const (
	StageRead    Stage = "read"
	StageDecode  Stage = "decode"
	StageSession Stage = "session"
	StageWrite   Stage = "write"
)

// Failure records why one legacy key was not migrated.
type Failure struct {
	Key     string `json:"key"`
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// State is the persisted progress of the legacy migration.
type State struct {
	Status    Status           `json:"status"`
	Completed bool             `json:"completed"`
	SessionID models.SessionID `json:"sessionId,omitempty"`
	Succeeded []string         `json:"succeeded"`
	Failures  []Failure        `json:"failures"`
	StartedAt time.Time        `json:"startedAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func newState() *State {
	return &State{Status: NotStarted, Succeeded: []string{}, Failures: []Failure{}}
}

// HasSucceeded reports whether key was durably written by an earlier pass.
func (s *State) HasSucceeded(key string) bool {
	for _, k := range s.Succeeded {
		if k == key {
			return true
		}
	}
	return false
}

func (s *State) clone() *State {
	out := *s
	out.Succeeded = append([]string{}, s.Succeeded...)
	out.Failures = append([]Failure{}, s.Failures...)
	return &out
}

// StateStore persists the migration State.
type StateStore interface {
	// Load returns the stored state, or a NotStarted state when none exists.
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
}

const (
	// StateTable holds the migration state document.
	StateTable = "migracao"
	stateKey   = "legacy"
)

// DatastoreStateStore keeps the state as one document of the datastore the entities
// are migrated into. Each call is bounded by the store timeout and fails with a
// [store.TransportError] when the datastore cannot be reached.
type DatastoreStateStore struct {
	ds      datastore.Datastore
	timeout time.Duration
}

var _ StateStore = (*DatastoreStateStore)(nil)

// NewDatastoreStateStore returns a state store on ds. A timeout of zero or less uses
// [store.DefaultTimeout].
func NewDatastoreStateStore(ds datastore.Datastore, timeout time.Duration) *DatastoreStateStore {
	if timeout <= 0 {
		timeout = store.DefaultTimeout
	}
	return &DatastoreStateStore{ds: ds, timeout: timeout}
}

func (s *DatastoreStateStore) Load(ctx context.Context) (*State, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc, err := s.ds.Get(ctx, StateTable, stateKey)
	if err != nil {
		return nil, &store.TransportError{Op: "load migration state", Err: err}
	}
	state := newState()
	if doc == nil {
		return state, nil
	}
	if err := datastore.Decode(doc, state); err != nil {
		return nil, fmt.Errorf("failed to load migration state: %w", err)
	}
	if state.Succeeded == nil {
		state.Succeeded = []string{}
	}
	if state.Failures == nil {
		state.Failures = []Failure{}
	}
	return state, nil
}

func (s *DatastoreStateStore) Save(ctx context.Context, state *State) error {
	doc, err := datastore.Encode(state)
	if err != nil {
		return fmt.Errorf("failed to save migration state: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.ds.Put(ctx, StateTable, stateKey, doc); err != nil {
		return &store.TransportError{Op: "save migration state", Err: err}
	}
	return nil
}

// MemoryStateStore is a process-local StateStore for tests.
type MemoryStateStore struct {
	mu    sync.RWMutex
	state *State
	saves int
}

var _ StateStore = (*MemoryStateStore)(nil)

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

func (m *MemoryStateStore) Load(_ context.Context) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return newState(), nil
	}
	return m.state.clone(), nil
}

func (m *MemoryStateStore) Save(_ context.Context, state *State) error {
	m.mu.Lock()
	m.state = state.clone()
	m.saves++
	m.mu.Unlock()
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryStateStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
