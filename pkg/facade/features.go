package facade

import (
	"context"

	"github.com/warehouse/recebimento/pkg/codec"
	"github.com/warehouse/recebimento/pkg/models"
)

// Sessions manages the working shift.
type Sessions struct{ *core }

func (f *Sessions) Save(ctx context.Context, session *models.SessionData) error {
	f.ensureMigrated(ctx)
	err := f.store.SaveSession(ctx, session)
	return f.fallback(ctx, &codec.Entities{Kind: codec.KindSession, Session: session}, err)
}

// Get returns nil when the session does not exist.
func (f *Sessions) Get(ctx context.Context, id models.SessionID) (*models.SessionData, error) {
	f.ensureMigrated(ctx)
	return f.store.GetSession(ctx, id)
}

func (f *Sessions) Delete(ctx context.Context, id models.SessionID) error {
	f.ensureMigrated(ctx)
	return f.store.DeleteSession(ctx, id)
}

// Notas manages the invoices received in a session.
type Notas struct{ *core }

// Save replaces the session's invoices with notas.
func (f *Notas) Save(ctx context.Context, sessionID models.SessionID, notas []models.NotaFiscal) error {
	f.ensureMigrated(ctx)
	err := f.store.SaveNotas(ctx, sessionID, notas)
	if err == nil {
		return nil
	}
	shadowed := make([]models.NotaFiscal, len(notas))
	for i, n := range notas {
		n.SessionID = sessionID
		shadowed[i] = n
	}
	return f.fallback(ctx, &codec.Entities{Kind: codec.KindNotas, Notas: shadowed}, err)
}

func (f *Notas) Get(ctx context.Context, sessionID models.SessionID) ([]models.NotaFiscal, error) {
	f.ensureMigrated(ctx)
	return f.store.GetNotas(ctx, sessionID)
}

// Carros manages packing carts, active and finalized.
type Carros struct{ *core }

// Save replaces the session's active carts with carros.
func (f *Carros) Save(ctx context.Context, sessionID models.SessionID, carros []models.Carro) error {
	f.ensureMigrated(ctx)
	err := f.store.SaveCarros(ctx, sessionID, carros)
	if err == nil {
		return nil
	}
	shadowed := make([]models.Carro, len(carros))
	for i, c := range carros {
		if c.SessionID.IsZero() {
			c.SessionID = sessionID
		}
		shadowed[i] = c
	}
	return f.fallback(ctx, &codec.Entities{Kind: codec.KindCarros, Carros: shadowed}, err)
}

// Get returns the session's carts that have not been finalized.
func (f *Carros) Get(ctx context.Context, sessionID models.SessionID) ([]models.Carro, error) {
	f.ensureMigrated(ctx)
	return f.store.GetCarros(ctx, sessionID)
}

func (f *Carros) SaveFinalizados(ctx context.Context, carros []models.Carro) error {
	f.ensureMigrated(ctx)
	err := f.store.SaveCarrosFinalizados(ctx, carros)
	return f.fallback(ctx, &codec.Entities{Kind: codec.KindCarrosFinalizados, Carros: carros}, err)
}

func (f *Carros) GetFinalizados(ctx context.Context) ([]models.Carro, error) {
	f.ensureMigrated(ctx)
	return f.store.GetCarrosFinalizados(ctx)
}

// Finalize moves one cart out of the session's working set.
func (f *Carros) Finalize(ctx context.Context, sessionID models.SessionID, carroID string) (*models.Carro, error) {
	f.ensureMigrated(ctx)
	return f.store.FinalizeCarro(ctx, sessionID, carroID)
}

// Relatorios manages generated reports.
type Relatorios struct{ *core }

func (f *Relatorios) Save(ctx context.Context, relatorio *models.Relatorio) error {
	f.ensureMigrated(ctx)
	err := f.store.SaveRelatorio(ctx, relatorio)
	if err == nil {
		return nil
	}
	return f.fallback(ctx, &codec.Entities{Kind: codec.KindRelatorios, Relatorios: []models.Relatorio{*relatorio}}, err)
}

func (f *Relatorios) List(ctx context.Context) ([]models.Relatorio, error) {
	f.ensureMigrated(ctx)
	return f.store.GetRelatorios(ctx)
}

// Chat manages conversation messages and their read state.
type Chat struct{ *core }

func (f *Chat) Send(ctx context.Context, message *models.ChatMessage) error {
	f.ensureMigrated(ctx)
	err := f.store.SaveMessage(ctx, message)
	if err == nil {
		return nil
	}
	return f.fallback(ctx, &codec.Entities{Kind: codec.KindMensagens, Messages: []models.ChatMessage{*message}}, err)
}

func (f *Chat) Messages(ctx context.Context, conversaID string) ([]models.ChatMessage, error) {
	f.ensureMigrated(ctx)
	return f.store.GetMessages(ctx, conversaID)
}

// MarkAsRead clears role's unread flag on every message of the conversation and
// returns how many changed.
func (f *Chat) MarkAsRead(ctx context.Context, conversaID string, role models.Role) (int, error) {
	f.ensureMigrated(ctx)
	return f.store.MarkAsRead(ctx, conversaID, role)
}

func (f *Chat) CountUnread(ctx context.Context, conversaID string, role models.Role) (int, error) {
	f.ensureMigrated(ctx)
	return f.store.CountUnreadMessages(ctx, conversaID, role)
}
