// Package store is the entity layer of recebimento: per-kind operations over a
// [datastore.Datastore], with key derivation, upsert policy, read-shape
// normalization and per-call timeouts.
//
// # Document layout
//
// Each entity kind lives in its own datastore table:
//
//   - sessions: one document per [models.SessionData], keyed by session id
//   - notas: one document per session holding the full invoice set, so replacing
//     the set is a single-key write
//   - carros: one document per session holding the active cart working set
//   - carros_finalizados: one document per finalized [models.Carro], keyed by cart id
//   - relatorios: one document per [models.Relatorio], keyed by report id
//   - mensagens: one document per [models.ChatMessage], scanned by conversaId
//   - usuarios: one document per [models.Usuario], keyed by login
//
// # Consistency
//
// Sessions and reports are last-writer-wins at document granularity. A finalized
// cart is moved with one [datastore.Batcher] call when the backend supports it,
// otherwise by writing it to carros_finalizados first and then rewriting the active
// set; [Store.GetCarros] hides carts already present in carros_finalizados, so an
// interrupted move never shows a cart in both sets and never loses it.
//
// # Errors
//
// Rejected input is a [*ValidationError] and nothing is written. Datastore failures,
// including timeouts, are a [*TransportError]. Missing records are a value: nil for
// single lookups, an empty slice for lists.
package store

import (
	"context"

	"github.com/warehouse/recebimento/pkg/models"
)

// Table names.
const (
	TableSessions          = "sessions"
	TableNotas             = "notas"
	TableCarros            = "carros"
	TableCarrosFinalizados = "carros_finalizados"
	TableRelatorios        = "relatorios"
	TableMensagens         = "mensagens"
	TableUsuarios          = "usuarios"
)

// Store defines every entity operation of the application.
//
// All methods honor ctx and additionally bound each datastore call by the store's
// timeout. List methods return an empty slice, never nil.
type Store interface {
	// SaveSession creates or replaces the session. Status is initialized to an empty
	// map and UpdatedAt is set; both are written back into session.
	SaveSession(ctx context.Context, session *models.SessionData) error

	// GetSession returns nil, nil when the session does not exist.
	GetSession(ctx context.Context, id models.SessionID) (*models.SessionData, error)

	// DeleteSession removes the session record. Deleting a missing session is not an error.
	DeleteSession(ctx context.Context, id models.SessionID) error

	// SaveNotas replaces the full invoice set of a session in one write.
	//
	// The batch is validated first: a repeated Numero, an empty Numero, a negative
	// Volumes or a nota bound to another session reject the whole batch with a
	// *ValidationError and leave the stored set untouched.
	SaveNotas(ctx context.Context, sessionID models.SessionID, notas []models.NotaFiscal) error

	// GetNotas returns the stored invoice set of a session.
	GetNotas(ctx context.Context, sessionID models.SessionID) ([]models.NotaFiscal, error)

	// SaveCarros replaces the active cart working set of a session. Carts without an
	// ID get one derived from the session and Identificador.
	SaveCarros(ctx context.Context, sessionID models.SessionID, carros []models.Carro) error

	// GetCarros returns the active carts of a session, excluding any already finalized.
	GetCarros(ctx context.Context, sessionID models.SessionID) ([]models.Carro, error)

	// SaveCarrosFinalizados moves carts into the finalized collection and out of
	// their session's working set. FinalizadoEm defaults to now. Retrying the same
	// call after a failure is safe.
	SaveCarrosFinalizados(ctx context.Context, carros []models.Carro) error

	// GetCarrosFinalizados returns every finalized cart ordered by FinalizadoEm, then ID.
	GetCarrosFinalizados(ctx context.Context) ([]models.Carro, error)

	// FinalizeCarro moves one active cart. Finalizing a cart that is already finalized
	// returns it unchanged; ErrCarroNotFound when it is in neither set.
	FinalizeCarro(ctx context.Context, sessionID models.SessionID, carroID string) (*models.Carro, error)

	// SaveRelatorio appends a report. An empty ID is assigned and written back into
	// relatorio, so retrying with the same value does not duplicate it.
	SaveRelatorio(ctx context.Context, relatorio *models.Relatorio) error

	// GetRelatorios returns every report ordered by GeneratedAt, then ID.
	GetRelatorios(ctx context.Context) ([]models.Relatorio, error)

	// SaveMessage creates or replaces a chat message. An empty ID, Timestamp or Unread
	// is initialized and written back; new messages are unread by every role but the sender.
	SaveMessage(ctx context.Context, message *models.ChatMessage) error

	// GetMessages returns the messages of a conversation ordered by Timestamp, then ID.
	GetMessages(ctx context.Context, conversaID string) ([]models.ChatMessage, error)

	// MarkAsRead clears the unread flag of role on every message of the conversation
	// present when the call starts and returns how many changed.
	MarkAsRead(ctx context.Context, conversaID string, role models.Role) (int, error)

	// CountUnreadMessages counts messages of the conversation unread by role, from the
	// same scan GetMessages performs.
	CountUnreadMessages(ctx context.Context, conversaID string, role models.Role) (int, error)

	// SaveUsuario creates or replaces a login account.
	SaveUsuario(ctx context.Context, usuario *models.Usuario) error

	// GetUsuario returns nil, nil when the account does not exist.
	GetUsuario(ctx context.Context, usuario string) (*models.Usuario, error)

	// Close releases the underlying datastore.
	Close() error
}
