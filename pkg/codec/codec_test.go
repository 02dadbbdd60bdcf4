package codec

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warehouse/recebimento/pkg/models"
)

const sessionA = models.SessionID("session_A_01-01-2024_A")

func requireDecodeError(t *testing.T, err error, kind DecodeErrorKind) *DecodeError {
	t.Helper()
	var de *DecodeError
	require.True(t, errors.As(err, &de), "expected *DecodeError, got %v", err)
	assert.Equal(t, kind, de.Kind)
	return de
}

func TestDecodeLegacy_session(t *testing.T) {
	e, err := DecodeLegacy(KindSession, []byte(`{"sessionId":"session_A_01-01-2024_A","operator":"joao"}`))
	require.NoError(t, err)
	require.NotNil(t, e.Session)

	assert.Equal(t, sessionA, e.Session.SessionID)
	assert.Equal(t, "joao", e.Session.Operator)
	assert.Equal(t, "A", e.Session.Area)
	assert.Equal(t, "01-01-2024", e.Session.Date)
	assert.Equal(t, "A", e.Session.Shift)
	assert.NotNil(t, e.Session.Status)
	assert.Empty(t, e.Session.Status)
	assert.Equal(t, 1, e.Len())
}

func TestDecodeLegacy_sessionAliasesAndFlags(t *testing.T) {
	raw := `{"sessionId":"session_doca_2_05-02-2024_B","operador":"maria","inicio":1704103200000,"status":{"aberta":true,"conferida":false}}`
	e, err := DecodeLegacy(KindSession, []byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "maria", e.Session.Operator)
	assert.Equal(t, "doca_2", e.Session.Area)
	assert.Equal(t, time.UnixMilli(1704103200000).UTC(), e.Session.StartedAt)
	assert.Equal(t, map[string]bool{"aberta": true, "conferida": false}, e.Session.Status)
}

func TestDecodeLegacy_rejectsUnknownShapes(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		raw  string
		want DecodeErrorKind
	}{
		{"session without id", KindSession, `{"operator":"joao"}`, UnrecognizedShape},
		{"session as array", KindSession, `[{"sessionId":"x"}]`, UnrecognizedShape},
		{"notas as string", KindNotas, `"nf-1"`, UnrecognizedShape},
		{"notas object without array", KindNotas, `{"total":3}`, UnrecognizedShape},
		{"notas with scalar element", KindNotas, `[1,2]`, UnrecognizedShape},
		{"mensagens as number", KindMensagens, `42`, UnrecognizedShape},
		{"unknown kind", Kind("paletes"), `[]`, UnrecognizedShape},
		{"truncated json", KindCarros, `[{"id":"c1"`, MalformedJSON},
		{"empty blob", KindRelatorios, ``, MalformedJSON},
		{"invalid session id", KindSession, `{"sessionId":"turno-1"}`, InvalidField},
		{"nota without number", KindNotas, `[{"volumes":2}]`, InvalidField},
		{"nota with text volumes", KindNotas, `[{"numero":"1","volumes":"muitos"}]`, InvalidField},
		{"message with unknown sender", KindMensagens, `[{"conversaId":"c","sender":"robo"}]`, InvalidField},
		{"message without conversation", KindMensagens, `[{"sender":"admin","text":"oi"}]`, InvalidField},
		{"bad timestamp", KindNotas, `[{"numero":"1","createdAt":"ontem"}]`, InvalidField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := DecodeLegacy(tt.kind, []byte(tt.raw))
			assert.Nil(t, e)
			requireDecodeError(t, err, tt.want)
		})
	}
}

func TestDecodeLegacy_notas(t *testing.T) {
	raw := `[
		{"numero":"1001","volumes":3,"createdAt":"2024-01-01T08:00:00Z"},
		{"numeroNota":"1002","qtdVolumes":"2"},
		{"nf":1003}
	]`
	e, err := DecodeLegacy(KindNotas, []byte(raw), WithDefaultSession(sessionA))
	require.NoError(t, err)
	require.Len(t, e.Notas, 3)

	assert.Equal(t, models.NotaFiscal{
		Numero:    "1001",
		Volumes:   3,
		CreatedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		SessionID: sessionA,
	}, e.Notas[0])
	assert.Equal(t, "1002", e.Notas[1].Numero)
	assert.Equal(t, 2, e.Notas[1].Volumes)
	assert.Equal(t, "1003", e.Notas[2].Numero)
	assert.Equal(t, 0, e.Notas[2].Volumes)
	for _, n := range e.Notas {
		assert.Equal(t, sessionA, n.SessionID)
	}
}

func TestDecodeLegacy_wrappedListUsesEmbeddedSession(t *testing.T) {
	raw := `{"sessionId":"session_B_02-01-2024_C","notas":[{"numero":"7"}]}`
	e, err := DecodeLegacy(KindNotas, []byte(raw), WithDefaultSession(sessionA))
	require.NoError(t, err)
	require.Len(t, e.Notas, 1)
	assert.Equal(t, models.SessionID("session_B_02-01-2024_C"), e.Notas[0].SessionID)
}

func TestDecodeLegacy_carrosDefaultsAndDeterministicIDs(t *testing.T) {
	raw := []byte(`[{"identificador":"C-01","notas":["1001",1002]},{"id":"c-2","volumes":["V1","V2"]}]`)

	first, err := DecodeLegacy(KindCarros, raw, WithDefaultSession(sessionA))
	require.NoError(t, err)
	second, err := DecodeLegacy(KindCarros, raw, WithDefaultSession(sessionA))
	require.NoError(t, err)
	require.Len(t, first.Carros, 2)

	c1 := first.Carros[0]
	assert.NotEmpty(t, c1.ID)
	assert.Equal(t, second.Carros[0].ID, c1.ID, "ids derived from the same blob must match")
	assert.Equal(t, []string{"1001", "1002"}, c1.Notas)
	assert.NotNil(t, c1.Volumes)
	assert.Empty(t, c1.Volumes)
	assert.False(t, c1.Finalized())

	c2 := first.Carros[1]
	assert.Equal(t, "c-2", c2.ID)
	assert.Equal(t, "c-2", c2.Identificador)
	assert.Equal(t, []string{"V1", "V2"}, c2.Volumes)
	assert.Equal(t, sessionA, c2.SessionID)
}

func TestDecodeLegacy_carroWithoutSessionGetsIDFromLaterSession(t *testing.T) {
	raw := []byte(`[{"identificador":"C-01"}]`)

	e, err := DecodeLegacy(KindCarros, raw)
	require.NoError(t, err)
	require.Len(t, e.Carros, 1)
	assert.Empty(t, e.Carros[0].ID, "no session, no derived id")

	e.WithSession(sessionA)
	assert.Equal(t, models.DeriveID("carro", sessionA.String(), "C-01"), e.Carros[0].ID)

	withDefault, err := DecodeLegacy(KindCarros, raw, WithDefaultSession(sessionA))
	require.NoError(t, err)
	assert.Equal(t, e.Carros[0].ID, withDefault.Carros[0].ID)
}

func TestDecodeLegacy_carrosFinalizadosAreMarkedFinalized(t *testing.T) {
	raw := `[{"identificador":"C-09","sessionId":"session_A_01-01-2024_A","createdAt":"2024-01-01T10:00:00Z"}]`
	e, err := DecodeLegacy(KindCarrosFinalizados, []byte(raw))
	require.NoError(t, err)
	require.Len(t, e.Carros, 1)
	require.True(t, e.Carros[0].Finalized())
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), *e.Carros[0].FinalizadoEm)
}

func TestDecodeLegacy_relatorios(t *testing.T) {
	raw := []byte(`{"relatorios":[{"geradoEm":"02/01/2024 18:30:00","autor":"ana","dados":{"totalNotas":12}}]}`)
	e, err := DecodeLegacy(KindRelatorios, raw)
	require.NoError(t, err)
	require.Len(t, e.Relatorios, 1)

	r := e.Relatorios[0]
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "ana", r.Author)
	assert.Equal(t, time.Date(2024, 1, 2, 18, 30, 0, 0, time.UTC), r.GeneratedAt)
	assert.Equal(t, float64(12), r.Payload["totalNotas"])
	assert.NotNil(t, r.SessionIDs)

	again, err := DecodeLegacy(KindRelatorios, raw)
	require.NoError(t, err)
	assert.Equal(t, r.ID, again.Relatorios[0].ID)
}

func TestDecodeLegacy_mensagensByConversation(t *testing.T) {
	raw := `{
		"conv-1":[{"sender":"operador","text":"chegou carreta","lida":false}],
		"conv-2":[{"sender":"supervisor","texto":"ok","unread":{"operador":true,"admin":false}}]
	}`
	e, err := DecodeLegacy(KindMensagens, []byte(raw))
	require.NoError(t, err)
	require.Len(t, e.Messages, 2)

	byConversa := map[string]models.ChatMessage{}
	for _, m := range e.Messages {
		byConversa[m.ConversaID] = m
	}

	m1 := byConversa["conv-1"]
	assert.Equal(t, models.RoleOperador, m1.Sender)
	assert.Equal(t, map[models.Role]bool{models.RoleSupervisor: true, models.RoleAdmin: true}, m1.Unread)
	assert.NotEmpty(t, m1.ID)

	m2 := byConversa["conv-2"]
	assert.Equal(t, "ok", m2.Text)
	assert.Equal(t, map[models.Role]bool{models.RoleOperador: true, models.RoleAdmin: false}, m2.Unread)
}

func TestDecodeLegacy_mensagensWithoutReadMarkers(t *testing.T) {
	e, err := DecodeLegacy(KindMensagens, []byte(`[{"conversaId":"c","sender":"ADMIN","text":"x"}]`))
	require.NoError(t, err)
	require.Len(t, e.Messages, 1)
	assert.Equal(t, models.RoleAdmin, e.Messages[0].Sender)
	assert.Nil(t, e.Messages[0].Unread)
}

func TestDecodeLegacy_emptyListsAreNotNil(t *testing.T) {
	for _, kind := range []Kind{KindNotas, KindCarros, KindCarrosFinalizados, KindRelatorios, KindMensagens} {
		e, err := DecodeLegacy(kind, []byte(`[]`))
		require.NoError(t, err, kind)
		assert.Equal(t, 0, e.Len(), kind)
		assert.NotNil(t, e.Notas)
		assert.NotNil(t, e.Carros)
		assert.NotNil(t, e.Relatorios)
		assert.NotNil(t, e.Messages)
	}
}

func TestEncodeForLegacyFallback_isAcceptedByDecode(t *testing.T) {
	finalizado := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	in := &Entities{
		Kind: KindCarrosFinalizados,
		Carros: []models.Carro{{
			ID:            "c-1",
			SessionID:     sessionA,
			Identificador: "C-01",
			Notas:         []string{"1001"},
			Volumes:       []string{"V1"},
			CreatedAt:     time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
			FinalizadoEm:  &finalizado,
		}},
	}

	raw, err := EncodeForLegacyFallback(in)
	require.NoError(t, err)

	out, err := DecodeLegacy(KindCarrosFinalizados, raw)
	require.NoError(t, err)
	assert.Equal(t, in.Carros, out.Carros)
}

func TestEncodeForLegacyFallback_errors(t *testing.T) {
	_, err := EncodeForLegacyFallback(nil)
	require.Error(t, err)

	_, err = EncodeForLegacyFallback(&Entities{Kind: KindSession})
	require.Error(t, err)

	raw, err := EncodeForLegacyFallback(&Entities{Kind: KindNotas})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestEntities_SessionIDs(t *testing.T) {
	e := &Entities{
		Kind: KindCarros,
		Carros: []models.Carro{
			{Identificador: "1", SessionID: sessionA},
			{Identificador: "2", SessionID: sessionA},
			{Identificador: "3"},
		},
	}
	assert.Equal(t, []models.SessionID{sessionA}, e.SessionIDs())

	e.WithSession("session_B_01-01-2024_B")
	assert.Equal(t, []models.SessionID{sessionA, "session_B_01-01-2024_B"}, e.SessionIDs())
	assert.NotEmpty(t, e.Carros[2].ID)
}

func TestDecodeSession(t *testing.T) {
	s, err := DecodeSession([]byte(`{"sessionId":"session_A_01-01-2024_A"}`))
	require.NoError(t, err)
	assert.Equal(t, sessionA, s.SessionID)

	_, err = DecodeSession([]byte(`[]`))
	requireDecodeError(t, err, UnrecognizedShape)
}
