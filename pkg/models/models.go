package models

import (
	"time"
)

// Role is the closed set of participants that exchange chat messages.
type Role string

const (
	RoleOperador   Role = "operador"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

// Roles lists every valid Role in a stable order.
var Roles = []Role{RoleOperador, RoleSupervisor, RoleAdmin}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// SessionData represents one working shift.
type SessionData struct {
	SessionID SessionID       `json:"sessionId"`
	Area      string          `json:"area,omitempty"`
	Date      string          `json:"date,omitempty"`
	Shift     string          `json:"shift,omitempty"`
	Operator  string          `json:"operator"`
	StartedAt time.Time       `json:"startedAt"`
	Status    map[string]bool `json:"status"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// NotaFiscal is an invoice note received during a session.
type NotaFiscal struct {
	Numero    string    `json:"numero"`
	Volumes   int       `json:"volumes"`
	CreatedAt time.Time `json:"createdAt"`
	SessionID SessionID `json:"sessionId"`
}

// Carro is a packing cart. FinalizadoEm is nil while the cart is in an active
// session's working set.
type Carro struct {
	ID            string     `json:"id"`
	SessionID     SessionID  `json:"sessionId"`
	Identificador string     `json:"identificador"`
	Notas         []string   `json:"notas"`
	Volumes       []string   `json:"volumes"`
	CreatedAt     time.Time  `json:"createdAt"`
	FinalizadoEm  *time.Time `json:"finalizadoEm,omitempty"`
}

// Finalized reports whether the cart has left its session's working set.
func (c *Carro) Finalized() bool {
	return c.FinalizadoEm != nil
}

// Relatorio is a generated report. It may summarize several sessions.
type Relatorio struct {
	ID          string         `json:"id"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Author      string         `json:"author"`
	SessionIDs  []SessionID    `json:"sessionIds"`
	Payload     map[string]any `json:"payload"`
}

// ChatMessage belongs to a conversation. Unread holds one flag per recipient role;
// unread counts are always derived from it, never stored separately.
type ChatMessage struct {
	ID         string        `json:"id"`
	ConversaID string        `json:"conversaId"`
	Sender     Role          `json:"sender"`
	Text       string        `json:"text"`
	Timestamp  time.Time     `json:"timestamp"`
	Unread     map[Role]bool `json:"unread"`
}

// UnreadFor reports whether the message is still unread by role.
func (m *ChatMessage) UnreadFor(role Role) bool {
	return m.Unread[role]
}

// Usuario is a login account. SenhaHash is never returned by the HTTP API.
type Usuario struct {
	Usuario   string    `json:"usuario"`
	SenhaHash string    `json:"senhaHash"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}
