package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/warehouse/recebimento/pkg/datastore"
	"github.com/warehouse/recebimento/pkg/models"
)

// DefaultTimeout bounds each datastore call when no other timeout is configured.
const DefaultTimeout = 10 * time.Second

// EntityStore implements [Store] on a [datastore.Datastore].
type EntityStore struct {
	ds      datastore.Datastore
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

var _ Store = (*EntityStore)(nil)

// Option configures an EntityStore.
type Option func(*EntityStore)

// WithTimeout bounds each datastore call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(s *EntityStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *EntityStore) {
		s.log = l
	}
}

// WithClock replaces time.Now for default timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *EntityStore) {
		s.now = now
	}
}

func New(ds datastore.Datastore, opts ...Option) *EntityStore {
	s := &EntityStore{
		ds:      ds,
		timeout: DefaultTimeout,
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Datastore returns the underlying datastore.
func (s *EntityStore) Datastore() datastore.Datastore {
	return s.ds
}

func (s *EntityStore) Close() error {
	return s.ds.Close()
}

func (s *EntityStore) clock() time.Time {
	return s.now().UTC()
}

// call runs fn under the store timeout and turns any failure into a *TransportError.
func (s *EntityStore) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.log.Warn().Err(err).Str("op", op).Msg("datastore call failed")
		return &TransportError{Op: op, Err: err}
	}
	return nil
}

func (s *EntityStore) get(ctx context.Context, table, key string, out any) (bool, error) {
	var doc datastore.Document
	err := s.call(ctx, "get "+table, func(ctx context.Context) error {
		var err error
		doc, err = s.ds.Get(ctx, table, key)
		return err
	})
	if err != nil || doc == nil {
		return false, err
	}
	if err := datastore.Decode(doc, out); err != nil {
		return false, fmt.Errorf("failed to read %s/%s: %w", table, key, err)
	}
	return true, nil
}

func (s *EntityStore) put(ctx context.Context, table, key string, v any) error {
	doc, err := datastore.Encode(v)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", table, key, err)
	}
	return s.call(ctx, "put "+table, func(ctx context.Context) error {
		return s.ds.Put(ctx, table, key, doc)
	})
}

func (s *EntityStore) scan(ctx context.Context, table string, filter datastore.Filter) ([]datastore.Document, error) {
	var docs []datastore.Document
	err := s.call(ctx, "scan "+table, func(ctx context.Context) error {
		var err error
		docs, err = s.ds.Scan(ctx, table, filter)
		return err
	})
	return docs, err
}

func scanInto[T any](s *EntityStore, ctx context.Context, table string, filter datastore.Filter) ([]T, error) {
	docs, err := s.scan(ctx, table, filter)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := datastore.Decode(doc, &v); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", table, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func validateSessionID(id models.SessionID) error {
	if err := id.Validate(); err != nil {
		return &ValidationError{Kind: InvalidSessionID, Field: "sessionId", Detail: err.Error()}
	}
	return nil
}

// Sessions

func (s *EntityStore) SaveSession(ctx context.Context, session *models.SessionData) error {
	if err := validateSessionID(session.SessionID); err != nil {
		return err
	}
	if session.Status == nil {
		session.Status = map[string]bool{}
	}
	session.UpdatedAt = s.clock()
	return s.put(ctx, TableSessions, session.SessionID.String(), session)
}

func (s *EntityStore) GetSession(ctx context.Context, id models.SessionID) (*models.SessionData, error) {
	var session models.SessionData
	found, err := s.get(ctx, TableSessions, id.String(), &session)
	if err != nil || !found {
		return nil, err
	}
	if session.Status == nil {
		session.Status = map[string]bool{}
	}
	return &session, nil
}

func (s *EntityStore) DeleteSession(ctx context.Context, id models.SessionID) error {
	return s.call(ctx, "delete "+TableSessions, func(ctx context.Context) error {
		return s.ds.Delete(ctx, TableSessions, id.String())
	})
}

// Notas

type notasDoc struct {
	SessionID models.SessionID    `json:"sessionId"`
	Notas     []models.NotaFiscal `json:"notas"`
}

func validateNotas(sessionID models.SessionID, notas []models.NotaFiscal) error {
	seen := make(map[string]bool, len(notas))
	for i, n := range notas {
		field := fmt.Sprintf("notas[%d]", i)
		switch {
		case n.Numero == "":
			return &ValidationError{Kind: MissingInvoice, Field: field + ".numero", Detail: "invoice number is empty"}
		case n.Volumes < 0:
			return &ValidationError{Kind: NegativeVolume, Field: field + ".volumes", Detail: fmt.Sprintf("invoice %s has %d volumes", n.Numero, n.Volumes)}
		case !n.SessionID.IsZero() && n.SessionID != sessionID:
			return &ValidationError{Kind: InvalidSessionID, Field: field + ".sessionId", Detail: fmt.Sprintf("invoice %s belongs to %s", n.Numero, n.SessionID)}
		case seen[n.Numero]:
			return &ValidationError{Kind: DuplicateInvoice, Field: field + ".numero", Detail: fmt.Sprintf("invoice %s appears more than once", n.Numero)}
		}
		seen[n.Numero] = true
	}
	return nil
}

func (s *EntityStore) SaveNotas(ctx context.Context, sessionID models.SessionID, notas []models.NotaFiscal) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if err := validateNotas(sessionID, notas); err != nil {
		return err
	}
	doc := notasDoc{SessionID: sessionID, Notas: make([]models.NotaFiscal, len(notas))}
	for i, n := range notas {
		n.SessionID = sessionID
		doc.Notas[i] = n
	}
	return s.put(ctx, TableNotas, sessionID.String(), doc)
}

func (s *EntityStore) GetNotas(ctx context.Context, sessionID models.SessionID) ([]models.NotaFiscal, error) {
	var doc notasDoc
	if _, err := s.get(ctx, TableNotas, sessionID.String(), &doc); err != nil {
		return nil, err
	}
	if doc.Notas == nil {
		return []models.NotaFiscal{}, nil
	}
	return doc.Notas, nil
}

// Carros

type carrosDoc struct {
	SessionID models.SessionID `json:"sessionId"`
	Carros    []models.Carro   `json:"carros"`
}

// normalizeCarro fills the session, id and list defaults of a cart.
func normalizeCarro(c *models.Carro, sessionID models.SessionID) {
	if c.SessionID.IsZero() {
		c.SessionID = sessionID
	}
	if c.ID == "" && c.Identificador != "" {
		c.ID = models.DeriveID("carro", c.SessionID.String(), c.Identificador)
	}
	if c.Notas == nil {
		c.Notas = []string{}
	}
	if c.Volumes == nil {
		c.Volumes = []string{}
	}
}

func (s *EntityStore) SaveCarros(ctx context.Context, sessionID models.SessionID, carros []models.Carro) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	doc := carrosDoc{SessionID: sessionID, Carros: make([]models.Carro, len(carros))}
	seen := make(map[string]bool, len(carros))
	for i, c := range carros {
		normalizeCarro(&c, sessionID)
		field := fmt.Sprintf("carros[%d]", i)
		switch {
		case c.ID == "":
			return &ValidationError{Kind: MissingCarro, Field: field + ".id", Detail: "cart has neither id nor identificador"}
		case c.SessionID != sessionID:
			return &ValidationError{Kind: InvalidSessionID, Field: field + ".sessionId", Detail: fmt.Sprintf("cart %s belongs to %s", c.ID, c.SessionID)}
		case seen[c.ID]:
			return &ValidationError{Kind: DuplicateCarro, Field: field + ".id", Detail: fmt.Sprintf("cart %s appears more than once", c.ID)}
		}
		seen[c.ID] = true
		c.FinalizadoEm = nil
		doc.Carros[i] = c
	}
	return s.put(ctx, TableCarros, sessionID.String(), doc)
}

func (s *EntityStore) activeCarros(ctx context.Context, sessionID models.SessionID) (*carrosDoc, error) {
	var doc carrosDoc
	found, err := s.get(ctx, TableCarros, sessionID.String(), &doc)
	if err != nil || !found {
		return nil, err
	}
	return &doc, nil
}

func (s *EntityStore) GetCarros(ctx context.Context, sessionID models.SessionID) ([]models.Carro, error) {
	doc, err := s.activeCarros(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if doc == nil || len(doc.Carros) == 0 {
		return []models.Carro{}, nil
	}

	finalized, err := scanInto[models.Carro](s, ctx, TableCarrosFinalizados, datastore.Filter{"sessionId": sessionID.String()})
	if err != nil {
		return nil, err
	}
	moved := make(map[string]bool, len(finalized))
	for _, c := range finalized {
		moved[c.ID] = true
	}

	out := make([]models.Carro, 0, len(doc.Carros))
	for _, c := range doc.Carros {
		if moved[c.ID] {
			continue
		}
		normalizeCarro(&c, sessionID)
		out = append(out, c)
	}
	return out, nil
}

func (s *EntityStore) SaveCarrosFinalizados(ctx context.Context, carros []models.Carro) error {
	now := s.clock()
	bySession := map[models.SessionID][]models.Carro{}
	var order []models.SessionID
	for i, c := range carros {
		normalizeCarro(&c, "")
		field := fmt.Sprintf("carros[%d]", i)
		if err := c.SessionID.Validate(); err != nil {
			return &ValidationError{Kind: InvalidSessionID, Field: field + ".sessionId", Detail: err.Error()}
		}
		if c.ID == "" {
			return &ValidationError{Kind: MissingCarro, Field: field + ".id", Detail: "cart has neither id nor identificador"}
		}
		if c.FinalizadoEm == nil {
			at, err := s.finalizedBefore(ctx, c.ID)
			if err != nil {
				return err
			}
			if at == nil {
				at = &now
			}
			c.FinalizadoEm = at
		}
		if _, ok := bySession[c.SessionID]; !ok {
			order = append(order, c.SessionID)
		}
		bySession[c.SessionID] = append(bySession[c.SessionID], c)
	}

	for _, sessionID := range order {
		if err := s.moveCarros(ctx, sessionID, bySession[sessionID]); err != nil {
			return err
		}
	}
	return nil
}

// moveCarros writes carts of one session to the finalized collection and drops them
// from the active set. Without a Batcher the finalized writes always land first.
func (s *EntityStore) moveCarros(ctx context.Context, sessionID models.SessionID, carros []models.Carro) error {
	ops := make([]datastore.Op, 0, len(carros)+1)
	moving := make(map[string]bool, len(carros))
	for _, c := range carros {
		doc, err := datastore.Encode(c)
		if err != nil {
			return fmt.Errorf("failed to write %s/%s: %w", TableCarrosFinalizados, c.ID, err)
		}
		ops = append(ops, datastore.PutOp(TableCarrosFinalizados, c.ID, doc))
		moving[c.ID] = true
	}

	active, err := s.activeCarros(ctx, sessionID)
	if err != nil {
		return err
	}
	if active != nil {
		remaining := make([]models.Carro, 0, len(active.Carros))
		for _, c := range active.Carros {
			if !moving[c.ID] {
				remaining = append(remaining, c)
			}
		}
		if len(remaining) != len(active.Carros) {
			doc, err := datastore.Encode(carrosDoc{SessionID: sessionID, Carros: remaining})
			if err != nil {
				return fmt.Errorf("failed to write %s/%s: %w", TableCarros, sessionID, err)
			}
			ops = append(ops, datastore.PutOp(TableCarros, sessionID.String(), doc))
		}
	}

	if b, ok := s.ds.(datastore.Batcher); ok {
		return s.call(ctx, "move carros", func(ctx context.Context) error {
			return b.Apply(ctx, ops)
		})
	}
	for _, op := range ops {
		err := s.call(ctx, "put "+op.Table, func(ctx context.Context) error {
			return s.ds.Put(ctx, op.Table, op.Key, op.Doc)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *EntityStore) GetCarrosFinalizados(ctx context.Context) ([]models.Carro, error) {
	carros, err := scanInto[models.Carro](s, ctx, TableCarrosFinalizados, nil)
	if err != nil {
		return nil, err
	}
	for i := range carros {
		normalizeCarro(&carros[i], "")
	}
	sort.Slice(carros, func(i, j int) bool {
		a, b := carros[i], carros[j]
		ta, tb := finalizedAt(a), finalizedAt(b)
		if !ta.Equal(tb) {
			return ta.Before(tb)
		}
		return a.ID < b.ID
	})
	return carros, nil
}

// finalizedBefore returns when the cart was finalized by an earlier save, so a
// retried save keeps the first timestamp.
func (s *EntityStore) finalizedBefore(ctx context.Context, id string) (*time.Time, error) {
	var prev models.Carro
	found, err := s.get(ctx, TableCarrosFinalizados, id, &prev)
	if err != nil || !found {
		return nil, err
	}
	return prev.FinalizadoEm, nil
}

func finalizedAt(c models.Carro) time.Time {
	if c.FinalizadoEm == nil {
		return time.Time{}
	}
	return *c.FinalizadoEm
}

func (s *EntityStore) FinalizeCarro(ctx context.Context, sessionID models.SessionID, carroID string) (*models.Carro, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	var done models.Carro
	found, err := s.get(ctx, TableCarrosFinalizados, carroID, &done)
	if err != nil {
		return nil, err
	}
	if found {
		normalizeCarro(&done, sessionID)
		// Finish a move interrupted after its first step.
		active, err := s.activeCarros(ctx, done.SessionID)
		if err != nil {
			return nil, err
		}
		if active != nil && indexCarro(active.Carros, carroID) >= 0 {
			if err := s.moveCarros(ctx, done.SessionID, []models.Carro{done}); err != nil {
				return nil, err
			}
		}
		return &done, nil
	}

	active, err := s.activeCarros(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, ErrCarroNotFound
	}
	i := indexCarro(active.Carros, carroID)
	if i < 0 {
		return nil, ErrCarroNotFound
	}
	c := active.Carros[i]
	now := s.clock()
	c.FinalizadoEm = &now
	normalizeCarro(&c, sessionID)
	if err := s.moveCarros(ctx, sessionID, []models.Carro{c}); err != nil {
		return nil, err
	}
	return &c, nil
}

func indexCarro(carros []models.Carro, id string) int {
	for i, c := range carros {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Relatorios

// relatorioID derives the id of a report saved without one from its content, so a
// resubmitted report replaces the first copy. Called before defaults are applied.
// Map keys are encoded sorted.
func relatorioID(r *models.Relatorio) string {
	content, err := json.Marshal(struct {
		SessionIDs []models.SessionID `json:"sessionIds"`
		Payload    map[string]any     `json:"payload"`
	}{append([]models.SessionID{}, r.SessionIDs...), r.Payload})
	if err != nil {
		return models.NewID()
	}
	return models.DeriveID("relatorio", r.Author, stamp(r.GeneratedAt), string(content))
}

func (s *EntityStore) SaveRelatorio(ctx context.Context, relatorio *models.Relatorio) error {
	if relatorio.ID == "" {
		relatorio.ID = relatorioID(relatorio)
	}
	if relatorio.GeneratedAt.IsZero() {
		relatorio.GeneratedAt = s.clock()
	}
	if relatorio.SessionIDs == nil {
		relatorio.SessionIDs = []models.SessionID{}
	}
	if relatorio.Payload == nil {
		relatorio.Payload = map[string]any{}
	}
	return s.put(ctx, TableRelatorios, relatorio.ID, relatorio)
}

func (s *EntityStore) GetRelatorios(ctx context.Context) ([]models.Relatorio, error) {
	relatorios, err := scanInto[models.Relatorio](s, ctx, TableRelatorios, nil)
	if err != nil {
		return nil, err
	}
	for i := range relatorios {
		if relatorios[i].SessionIDs == nil {
			relatorios[i].SessionIDs = []models.SessionID{}
		}
		if relatorios[i].Payload == nil {
			relatorios[i].Payload = map[string]any{}
		}
	}
	sort.Slice(relatorios, func(i, j int) bool {
		a, b := relatorios[i], relatorios[j]
		if !a.GeneratedAt.Equal(b.GeneratedAt) {
			return a.GeneratedAt.Before(b.GeneratedAt)
		}
		return a.ID < b.ID
	})
	return relatorios, nil
}

// Chat

// messageID derives the id of a message saved without one. Without a client
// timestamp two identical texts are distinct messages and get random ids.
func messageID(m *models.ChatMessage) string {
	if m.Timestamp.IsZero() {
		return models.NewID()
	}
	return models.DeriveID("mensagem", m.ConversaID, string(m.Sender), m.Text, stamp(m.Timestamp))
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *EntityStore) SaveMessage(ctx context.Context, message *models.ChatMessage) error {
	if message.ConversaID == "" {
		return &ValidationError{Kind: MissingConversation, Field: "conversaId", Detail: "conversation id is empty"}
	}
	if !message.Sender.Valid() {
		return &ValidationError{Kind: InvalidRole, Field: "sender", Detail: fmt.Sprintf("unknown role %q", message.Sender)}
	}
	if message.ID == "" {
		message.ID = messageID(message)
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = s.clock()
	}
	if message.Unread == nil {
		message.Unread = make(map[models.Role]bool, len(models.Roles)-1)
		for _, role := range models.Roles {
			if role != message.Sender {
				message.Unread[role] = true
			}
		}
	}
	return s.put(ctx, TableMensagens, message.ID, message)
}

func (s *EntityStore) GetMessages(ctx context.Context, conversaID string) ([]models.ChatMessage, error) {
	messages, err := scanInto[models.ChatMessage](s, ctx, TableMensagens, datastore.Filter{"conversaId": conversaID})
	if err != nil {
		return nil, err
	}
	for i := range messages {
		if messages[i].Unread == nil {
			messages[i].Unread = map[models.Role]bool{}
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		a, b := messages[i], messages[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})
	return messages, nil
}

func validateRole(role models.Role) error {
	if !role.Valid() {
		return &ValidationError{Kind: InvalidRole, Field: "role", Detail: fmt.Sprintf("unknown role %q", role)}
	}
	return nil
}

func (s *EntityStore) MarkAsRead(ctx context.Context, conversaID string, role models.Role) (int, error) {
	if err := validateRole(role); err != nil {
		return 0, err
	}
	messages, err := s.GetMessages(ctx, conversaID)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, m := range messages {
		if !m.UnreadFor(role) {
			continue
		}
		m.Unread[role] = false
		if err := s.put(ctx, TableMensagens, m.ID, m); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

func (s *EntityStore) CountUnreadMessages(ctx context.Context, conversaID string, role models.Role) (int, error) {
	if err := validateRole(role); err != nil {
		return 0, err
	}
	messages, err := s.GetMessages(ctx, conversaID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, m := range messages {
		if m.UnreadFor(role) {
			count++
		}
	}
	return count, nil
}

// Usuarios

func (s *EntityStore) SaveUsuario(ctx context.Context, usuario *models.Usuario) error {
	if usuario.Usuario == "" {
		return &ValidationError{Kind: MissingUsuario, Field: "usuario", Detail: "login is empty"}
	}
	if !usuario.Role.Valid() {
		return &ValidationError{Kind: InvalidRole, Field: "role", Detail: fmt.Sprintf("unknown role %q", usuario.Role)}
	}
	if usuario.CreatedAt.IsZero() {
		usuario.CreatedAt = s.clock()
	}
	return s.put(ctx, TableUsuarios, usuario.Usuario, usuario)
}

func (s *EntityStore) GetUsuario(ctx context.Context, usuario string) (*models.Usuario, error) {
	var u models.Usuario
	found, err := s.get(ctx, TableUsuarios, usuario, &u)
	if err != nil || !found {
		return nil, err
	}
	return &u, nil
}
