package codec

import (
	"fmt"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"

	"github.com/warehouse/recebimento/pkg/models"
)

// Kind names one legacy entity collection.
type Kind string

const (
	KindSession           Kind = "session"
	KindNotas             Kind = "notas"
	KindCarros            Kind = "carros"
	KindCarrosFinalizados Kind = "carros_finalizados"
	KindRelatorios        Kind = "relatorios"
	KindMensagens         Kind = "mensagens"
)

// wrapperFields are the object fields that may wrap a list kind's array.
var wrapperFields = map[Kind][]string{
	KindNotas:             {"notas", "notasFiscais", "items"},
	KindCarros:            {"carros", "items"},
	KindCarrosFinalizados: {"carrosFinalizados", "carros_finalizados", "carros", "items"},
	KindRelatorios:        {"relatorios", "items"},
	KindMensagens:         {"mensagens", "messages", "items"},
}

// Entities is the tagged result of decoding one legacy blob. Only the field matching
// Kind is populated; list fields are never nil.
type Entities struct {
	Kind       Kind
	Session    *models.SessionData
	Notas      []models.NotaFiscal
	Carros     []models.Carro
	Relatorios []models.Relatorio
	Messages   []models.ChatMessage
}

// Len returns the number of decoded records.
func (e *Entities) Len() int {
	switch e.Kind {
	case KindSession:
		if e.Session != nil {
			return 1
		}
		return 0
	case KindNotas:
		return len(e.Notas)
	case KindCarros, KindCarrosFinalizados:
		return len(e.Carros)
	case KindRelatorios:
		return len(e.Relatorios)
	case KindMensagens:
		return len(e.Messages)
	}
	return 0
}

// WithSession assigns sessionID to session-scoped records that have none, deriving
// cart ids that depend on it. A cart still without a session keeps an empty id so a
// later session can derive it.
func (e *Entities) WithSession(sessionID models.SessionID) *Entities {
	for i := range e.Notas {
		if e.Notas[i].SessionID.IsZero() {
			e.Notas[i].SessionID = sessionID
		}
	}
	for i := range e.Carros {
		c := &e.Carros[i]
		if c.SessionID.IsZero() {
			c.SessionID = sessionID
		}
		if c.ID == "" && c.Identificador != "" && !c.SessionID.IsZero() {
			c.ID = models.DeriveID("carro", c.SessionID.String(), c.Identificador)
		}
	}
	return e
}

// SessionIDs returns the distinct session ids referenced by session-scoped records.
func (e *Entities) SessionIDs() []models.SessionID {
	seen := map[models.SessionID]bool{}
	var out []models.SessionID
	add := func(id models.SessionID) {
		if !id.IsZero() && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if e.Session != nil {
		add(e.Session.SessionID)
	}
	for _, n := range e.Notas {
		add(n.SessionID)
	}
	for _, c := range e.Carros {
		add(c.SessionID)
	}
	return out
}

// DecodeOption configures DecodeLegacy.
type DecodeOption func(*decodeOptions)

type decodeOptions struct {
	session models.SessionID
}

// WithDefaultSession attaches id to decoded records that carry no session id.
func WithDefaultSession(id models.SessionID) DecodeOption {
	return func(o *decodeOptions) {
		o.session = id
	}
}

// DecodeLegacy decodes one local storage blob of the given kind.
func DecodeLegacy(kind Kind, raw []byte, opts ...DecodeOption) (*Entities, error) {
	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	if _, known := wrapperFields[kind]; !known && kind != KindSession {
		return nil, shapeError(kind, "unknown entity kind")
	}
	if !json.Valid(raw) {
		return nil, &DecodeError{Kind: MalformedJSON, Entity: kind}
	}

	e := &Entities{
		Kind:       kind,
		Notas:      []models.NotaFiscal{},
		Carros:     []models.Carro{},
		Relatorios: []models.Relatorio{},
		Messages:   []models.ChatMessage{},
	}

	if kind == KindSession {
		s, err := decodeSession(raw)
		if err != nil {
			return nil, err
		}
		e.Session = s
		return e, nil
	}

	if kind == KindMensagens {
		if err := decodeMessages(e, raw); err != nil {
			return nil, err
		}
		return e, nil
	}

	array, embedded, err := listPayload(kind, raw)
	if err != nil {
		return nil, err
	}
	session := o.session
	if !embedded.IsZero() {
		session = embedded
	}

	switch kind {
	case KindNotas:
		err = eachObject(kind, array, func(obj object) error {
			n, err := decodeNota(obj)
			if err != nil {
				return err
			}
			e.Notas = append(e.Notas, n)
			return nil
		})
	case KindCarros, KindCarrosFinalizados:
		err = eachObject(kind, array, func(obj object) error {
			c, err := decodeCarro(obj, kind == KindCarrosFinalizados)
			if err != nil {
				return err
			}
			e.Carros = append(e.Carros, c)
			return nil
		})
	case KindRelatorios:
		err = eachObject(kind, array, func(obj object) error {
			r, err := decodeRelatorio(obj)
			if err != nil {
				return err
			}
			e.Relatorios = append(e.Relatorios, r)
			return nil
		})
	}
	if err != nil {
		return nil, err
	}

	return e.WithSession(session), nil
}

// DecodeSession decodes a legacy session blob.
func DecodeSession(raw []byte) (*models.SessionData, error) {
	e, err := DecodeLegacy(KindSession, raw)
	if err != nil {
		return nil, err
	}
	return e.Session, nil
}

// listPayload locates the array of a list kind: either the blob itself or an array
// wrapped in an object, optionally next to a sessionId field.
func listPayload(kind Kind, raw []byte) (array []byte, session models.SessionID, err error) {
	value, typ, _, err := jsonparser.Get(raw)
	if err != nil {
		return nil, "", &DecodeError{Kind: MalformedJSON, Entity: kind, Err: err}
	}
	switch typ {
	case jsonparser.Array:
		return value, "", nil
	case jsonparser.Object:
		obj := object{kind: kind, raw: value}
		for _, field := range wrapperFields[kind] {
			v, t, _, err := jsonparser.Get(value, field)
			if err != nil || t != jsonparser.Array {
				continue
			}
			id, err := obj.text("sessionId", "sessaoId")
			if err != nil {
				return nil, "", err
			}
			return v, models.SessionID(id), nil
		}
		return nil, "", shapeError(kind, "object does not wrap a "+string(kind)+" array")
	default:
		return nil, "", shapeError(kind, "top-level "+typ.String()+", expected an array or object")
	}
}

func decodeSession(raw []byte) (*models.SessionData, error) {
	value, typ, _, err := jsonparser.Get(raw)
	if err != nil {
		return nil, &DecodeError{Kind: MalformedJSON, Entity: KindSession, Err: err}
	}
	if typ != jsonparser.Object {
		return nil, shapeError(KindSession, "top-level "+typ.String()+", expected an object")
	}
	obj := object{kind: KindSession, raw: value}
	if !obj.has("sessionId", "sessaoId") {
		return nil, shapeError(KindSession, "object has no sessionId")
	}

	id, err := obj.text("sessionId", "sessaoId")
	if err != nil {
		return nil, err
	}
	s := &models.SessionData{SessionID: models.SessionID(id)}
	area, date, shift, perr := models.ParseSessionID(id)
	if perr != nil {
		return nil, fieldError(KindSession, "sessionId", "invalid session id", perr)
	}

	if s.Area, err = obj.text("area"); err != nil {
		return nil, err
	}
	if s.Area == "" {
		s.Area = area
	}
	if s.Date, err = obj.text("date", "data"); err != nil {
		return nil, err
	}
	if s.Date == "" {
		s.Date = date.Format(models.SessionDateLayout)
	}
	if s.Shift, err = obj.text("shift", "turno"); err != nil {
		return nil, err
	}
	if s.Shift == "" {
		s.Shift = shift
	}
	if s.Operator, err = obj.text("operator", "operador"); err != nil {
		return nil, err
	}
	if s.StartedAt, err = obj.timestamp("startedAt", "inicio", "timestamp", "createdAt"); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = obj.timestamp("updatedAt"); err != nil {
		return nil, err
	}
	if s.Status, err = obj.flags("status", "flags"); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeNota(obj object) (models.NotaFiscal, error) {
	var n models.NotaFiscal
	var err error
	if n.Numero, err = obj.text("numero", "numeroNota", "nf"); err != nil {
		return n, err
	}
	if n.Numero == "" {
		return n, fieldError(obj.kind, "numero", "invoice number is required", nil)
	}
	if n.Volumes, err = obj.integer("volumes", "qtdVolumes"); err != nil {
		return n, err
	}
	if n.CreatedAt, err = obj.timestamp("createdAt", "timestamp", "data"); err != nil {
		return n, err
	}
	id, err := obj.text("sessionId", "sessaoId")
	if err != nil {
		return n, err
	}
	n.SessionID = models.SessionID(id)
	return n, nil
}

func decodeCarro(obj object, finalizado bool) (models.Carro, error) {
	var c models.Carro
	var err error
	if c.ID, err = obj.text("id"); err != nil {
		return c, err
	}
	if c.Identificador, err = obj.text("identificador", "numero", "nome"); err != nil {
		return c, err
	}
	if c.ID == "" && c.Identificador == "" {
		return c, fieldError(obj.kind, "identificador", "cart needs an id or identificador", nil)
	}
	if c.Identificador == "" {
		c.Identificador = c.ID
	}
	id, err := obj.text("sessionId", "sessaoId")
	if err != nil {
		return c, err
	}
	c.SessionID = models.SessionID(id)
	if c.Notas, err = obj.list("notas", "nfs"); err != nil {
		return c, err
	}
	if c.Volumes, err = obj.list("volumes"); err != nil {
		return c, err
	}
	if c.CreatedAt, err = obj.timestamp("createdAt", "timestamp", "data"); err != nil {
		return c, err
	}
	finalizadoEm, err := obj.timestamp("finalizadoEm", "finishedAt")
	if err != nil {
		return c, err
	}
	switch {
	case !finalizadoEm.IsZero():
		c.FinalizadoEm = &finalizadoEm
	case finalizado:
		ts := c.CreatedAt
		c.FinalizadoEm = &ts
	}
	return c, nil
}

func decodeRelatorio(obj object) (models.Relatorio, error) {
	var r models.Relatorio
	var err error
	if r.ID, err = obj.text("id"); err != nil {
		return r, err
	}
	if r.GeneratedAt, err = obj.timestamp("generatedAt", "geradoEm", "timestamp", "data"); err != nil {
		return r, err
	}
	if r.Author, err = obj.text("author", "autor", "operador"); err != nil {
		return r, err
	}
	ids, err := obj.list("sessionIds", "sessoes")
	if err != nil {
		return r, err
	}
	r.SessionIDs = make([]models.SessionID, 0, len(ids))
	for _, id := range ids {
		r.SessionIDs = append(r.SessionIDs, models.SessionID(id))
	}
	if r.Payload, err = obj.document("payload", "dados", "metricas"); err != nil {
		return r, err
	}
	if r.ID == "" {
		r.ID = models.DeriveID("relatorio", string(obj.raw))
	}
	return r, nil
}

// decodeMessages accepts an array of messages or an object keyed by conversation id.
func decodeMessages(e *Entities, raw []byte) error {
	value, typ, _, err := jsonparser.Get(raw)
	if err != nil {
		return &DecodeError{Kind: MalformedJSON, Entity: KindMensagens, Err: err}
	}

	collect := func(conversa string) func(obj object) error {
		return func(obj object) error {
			m, err := decodeMessage(obj, conversa)
			if err != nil {
				return err
			}
			e.Messages = append(e.Messages, m)
			return nil
		}
	}

	switch typ {
	case jsonparser.Array:
		return eachObject(KindMensagens, value, collect(""))
	case jsonparser.Object:
		for _, field := range wrapperFields[KindMensagens] {
			if v, t, _, err := jsonparser.Get(value, field); err == nil && t == jsonparser.Array {
				return eachObject(KindMensagens, v, collect(""))
			}
		}
		return jsonparser.ObjectEach(value, func(key, v []byte, t jsonparser.ValueType, _ int) error {
			if t != jsonparser.Array {
				return shapeError(KindMensagens, fmt.Sprintf("conversation %q holds %s, expected an array", key, t))
			}
			conversa, err := jsonparser.ParseString(key)
			if err != nil {
				return &DecodeError{Kind: MalformedJSON, Entity: KindMensagens, Err: err}
			}
			return eachObject(KindMensagens, v, collect(conversa))
		})
	default:
		return shapeError(KindMensagens, "top-level "+typ.String()+", expected an array or object")
	}
}

func decodeMessage(obj object, conversa string) (models.ChatMessage, error) {
	var m models.ChatMessage
	var err error
	if m.ID, err = obj.text("id"); err != nil {
		return m, err
	}
	if m.ConversaID, err = obj.text("conversaId", "conversationId", "conversa"); err != nil {
		return m, err
	}
	if m.ConversaID == "" {
		m.ConversaID = conversa
	}
	if m.ConversaID == "" {
		return m, fieldError(obj.kind, "conversaId", "conversation id is required", nil)
	}
	sender, err := obj.text("sender", "senderType", "remetente")
	if err != nil {
		return m, err
	}
	m.Sender = models.Role(strings.ToLower(sender))
	if !m.Sender.Valid() {
		return m, fieldError(obj.kind, "sender", "unknown role "+sender, nil)
	}
	if m.Text, err = obj.text("text", "texto", "mensagem"); err != nil {
		return m, err
	}
	if m.Timestamp, err = obj.timestamp("timestamp", "createdAt", "data"); err != nil {
		return m, err
	}
	if m.Unread, err = decodeUnread(obj, m.Sender); err != nil {
		return m, err
	}
	if m.ID == "" {
		m.ID = models.DeriveID("mensagem", m.ConversaID, string(obj.raw))
	}
	return m, nil
}

// decodeUnread maps the read markers used by client versions onto per-role unread
// flags. A nil result means the blob carried no read information.
func decodeUnread(obj object, sender models.Role) (map[models.Role]bool, error) {
	if obj.has("unread") {
		flags, err := obj.flags("unread")
		if err != nil {
			return nil, err
		}
		out := make(map[models.Role]bool, len(flags))
		for role, unread := range flags {
			if r := models.Role(role); r.Valid() {
				out[r] = unread
			}
		}
		return out, nil
	}

	lida, found, err := obj.boolean("lida", "read")
	if err != nil || !found {
		return nil, err
	}
	recipient, err := obj.text("destinatario", "recipient")
	if err != nil {
		return nil, err
	}
	out := map[models.Role]bool{}
	if r := models.Role(strings.ToLower(recipient)); r.Valid() {
		out[r] = !lida
		return out, nil
	}
	for _, r := range models.Roles {
		if r != sender {
			out[r] = !lida
		}
	}
	return out, nil
}

// EncodeForLegacyFallback writes entities in the canonical legacy shape: an object for
// a session, an array for every list kind.
func EncodeForLegacyFallback(e *Entities) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("nothing to encode")
	}
	var v any
	switch e.Kind {
	case KindSession:
		if e.Session == nil {
			return nil, fmt.Errorf("session entity is empty")
		}
		v = e.Session
	case KindNotas:
		v = nonNil(e.Notas)
	case KindCarros, KindCarrosFinalizados:
		v = nonNil(e.Carros)
	case KindRelatorios:
		v = nonNil(e.Relatorios)
	case KindMensagens:
		v = nonNil(e.Messages)
	default:
		return nil, fmt.Errorf("unknown entity kind %q", e.Kind)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", e.Kind, err)
	}
	return raw, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
