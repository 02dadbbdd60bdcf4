package store

import (
	"context"
	"errors"

	"github.com/warehouse/recebimento/pkg/models"
)

// ErrReadOnly is returned by writes through a read-only store.
var ErrReadOnly = errors.New("operation denied: store is in read-only mode")

// ReadOnlyStore wraps a Store and rejects writes while isReadOnly reports true.
//
// The status command opens the datastore through it so inspecting a deployment can
// never modify it.
type ReadOnlyStore struct {
	Store
	isReadOnly func() bool
}

// NewReadOnlyStore wraps store. A nil isReadOnly means always read-only.
func NewReadOnlyStore(store Store, isReadOnly func() bool) *ReadOnlyStore {
	if isReadOnly == nil {
		isReadOnly = func() bool { return true }
	}
	return &ReadOnlyStore{
		Store:      store,
		isReadOnly: isReadOnly,
	}
}

// Unwrap returns the underlying store.
func (r *ReadOnlyStore) Unwrap() Store {
	return r.Store
}

func (r *ReadOnlyStore) checkReadOnly() error {
	if r.isReadOnly() {
		return ErrReadOnly
	}
	return nil
}

func (r *ReadOnlyStore) SaveSession(ctx context.Context, session *models.SessionData) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.SaveSession(ctx, session)
}

func (r *ReadOnlyStore) DeleteSession(ctx context.Context, id models.SessionID) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.DeleteSession(ctx, id)
}

func (r *ReadOnlyStore) SaveNotas(ctx context.Context, sessionID models.SessionID, notas []models.NotaFiscal) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.SaveNotas(ctx, sessionID, notas)
}

func (r *ReadOnlyStore) SaveCarros(ctx context.Context, sessionID models.SessionID, carros []models.Carro) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.SaveCarros(ctx, sessionID, carros)
}

func (r *ReadOnlyStore) SaveCarrosFinalizados(ctx context.Context, carros []models.Carro) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.SaveCarrosFinalizados(ctx, carros)
}

func (r *ReadOnlyStore) FinalizeCarro(ctx context.Context, sessionID models.SessionID, carroID string) (*models.Carro, error) {
	if err := r.checkReadOnly(); err != nil {
		return nil, err
	}
	return r.Store.FinalizeCarro(ctx, sessionID, carroID)
}

func (r *ReadOnlyStore) SaveRelatorio(ctx context.Context, relatorio *models.Relatorio) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.SaveRelatorio(ctx, relatorio)
}

func (r *ReadOnlyStore) SaveMessage(ctx context.Context, message *models.ChatMessage) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.SaveMessage(ctx, message)
}

func (r *ReadOnlyStore) MarkAsRead(ctx context.Context, conversaID string, role models.Role) (int, error) {
	if err := r.checkReadOnly(); err != nil {
		return 0, err
	}
	return r.Store.MarkAsRead(ctx, conversaID, role)
}

func (r *ReadOnlyStore) SaveUsuario(ctx context.Context, usuario *models.Usuario) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.SaveUsuario(ctx, usuario)
}
