// Package models defines the domain entities of the receiving and packaging tracker.
//
// Every entity serializes with the same camelCase field names the browser client
// historically wrote into local storage, so one shape flows through the legacy codec,
// the datastore documents and the HTTP API.
//
// # Entities
//
//   - [SessionData]: one operator shift, keyed by [SessionID]. Every other
//     session-scoped entity joins on it.
//   - [NotaFiscal]: an invoice/delivery note received during a session. Invoice
//     numbers are unique inside one session.
//   - [Carro]: a packing cart. It lives in the working set of one active session until
//     it is finalized, then it moves to the session-independent finalized collection.
//   - [Relatorio]: an append-only report aggregate, not tied to a single session.
//   - [ChatMessage]: a message in a conversation with per-role unread flags.
//   - [Usuario]: a login account used by the authentication endpoint.
//
// # Session identifiers
//
// A [SessionID] has the form session_<area>_<DD-MM-YYYY>_<shift>, for example
// session_A_01-01-2024_A. The area may itself contain underscores; the date and the
// shift letter are always the last two segments. Use [NewSessionID] to build one and
// [ParseSessionID] to take one apart.
//
// # Deterministic identifiers
//
// Records imported from local storage usually have no identifier. [DeriveID] produces a
// name-based UUID from the record's content so the same legacy blob always maps to the
// same datastore keys, which is what makes repeated imports converge instead of
// duplicating data.
package models
