package recebimento

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/warehouse/recebimento/pkg/codec"
	"github.com/warehouse/recebimento/pkg/legacy"
	"github.com/warehouse/recebimento/pkg/models"
	"github.com/warehouse/recebimento/pkg/store"
)

// maxBodyBytes bounds request bodies; migration snapshots are the largest payloads.
const maxBodyBytes = 16 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func sessionParam(r *http.Request) models.SessionID {
	return models.SessionID(mux.Vars(r)["id"])
}

func roleParam(r *http.Request) models.Role {
	return models.Role(r.URL.Query().Get("role"))
}

// Sessions

func (a *App) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	id := sessionParam(r)
	var session models.SessionData
	if err := decodeBody(w, r, &session); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if session.SessionID.IsZero() {
		session.SessionID = id
	}
	if session.SessionID != id {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("body sessionId %s does not match %s", session.SessionID, id))
		return
	}

	if err := a.features.Sessions.Save(r.Context(), &session); err != nil {
		a.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (a *App) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := a.features.Sessions.Get(r.Context(), sessionParam(r))
	if err != nil {
		a.respondStoreError(w, err)
		return
	}
	if session == nil {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (a *App) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := a.features.Sessions.Delete(r.Context(), sessionParam(r)); err != nil {
		a.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// Notas

func (a *App) handleSaveNotas(w http.ResponseWriter, r *http.Request) {
	var notas []models.NotaFiscal
	if err := decodeBody(w, r, &notas); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if notas == nil {
		notas = []models.NotaFiscal{}
	}
	if err := a.features.Notas.Save(r.Context(), sessionParam(r), notas); err != nil {
		a.respondStoreError(w, err)
		return
	}
	a.respondNotas(w, r)
}

func (a *App) handleGetNotas(w http.ResponseWriter, r *http.Request) {
	a.respondNotas(w, r)
}

func (a *App) respondNotas(w http.ResponseWriter, r *http.Request) {
	notas, err := a.features.Notas.Get(r.Context(), sessionParam(r))
	if err != nil {
		a.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, notas)
}

// Carros

func (a *App) handleSaveCarros(w http.ResponseWriter, r *http.Request) {
	var carros []models.Carro
	if err := decodeBody(w, r, &carros); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if carros == nil {
		carros = []models.Carro{}
	}
	if err := a.features.Carros.Save(r.Context(), sessionParam(r), carros); err != nil {
		a.respondStoreError(w, err)
		return
	}
	a.respondCarros(w, r)
}

func (a *App) handleGetCarros(w http.ResponseWriter, r *http.Request) {
	a.respondCarros(w, r)
}

func (a *App) respondCarros(w http.ResponseWriter, r *http.Request) {
	carros, err := a.features.Carros.Get(r.Context(), sessionParam(r))
	if err != nil {
		a.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, carros)
}

func (a *App) handleFinalizeCarro(w http.ResponseWriter, r *http.Request) {
	carro, err := a.features.Carros.Finalize(r.Context(), sessionParam(r), mux.Vars(r)["carroId"])
	if err != nil {
		a.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, carro)
}

func (a *App) handleSaveCarrosFinalizados(w http.ResponseWriter, r *http.Request) {
	var carros []models.Carro
	if err := decodeBody(w, r, &carros); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := a.features.Carros.SaveFinalizados(r.Context(), carros); err != nil {
		a.respondStoreError(w, err)
		return
	}
	a.handleGetCarrosFinalizados(w, r)
}

func (a *App) handleGetCarrosFinalizados(w http.ResponseWriter, r *http.Request) {
	carros, err := a.features.Carros.GetFinalizados(r.Context())
	if err != nil {
		a.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, carros)
}

// idempotencyHeader names a client key that makes a resubmitted create save over
// the first copy.
const idempotencyHeader = "Idempotency-Key"

// Relatorios

func (a *App) handleSaveRelatorio(w http.ResponseWriter, r *http.Request) {
	var relatorio models.Relatorio
	if err := decodeBody(w, r, &relatorio); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if key := r.Header.Get(idempotencyHeader); key != "" && relatorio.ID == "" {
		relatorio.ID = models.DeriveID("relatorio", key)
	}
	if err := a.features.Relatorios.Save(r.Context(), &relatorio); err != nil {
		a.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, relatorio)
}

func (a *App) handleGetRelatorios(w http.ResponseWriter, r *http.Request) {
	relatorios, err := a.features.Relatorios.List(r.Context())
	if err != nil {
		a.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, relatorios)
}

// Chat

func (a *App) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var message models.ChatMessage
	if err := decodeBody(w, r, &message); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	message.ConversaID = mux.Vars(r)["id"]
	if key := r.Header.Get(idempotencyHeader); key != "" && message.ID == "" {
		message.ID = models.DeriveID("mensagem", message.ConversaID, key)
	}
	if err := a.features.Chat.Send(r.Context(), &message); err != nil {
		a.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, message)
}

func (a *App) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := a.features.Chat.Messages(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messages)
}

func (a *App) handleMarkAsRead(w http.ResponseWriter, r *http.Request) {
	updated, err := a.features.Chat.MarkAsRead(r.Context(), mux.Vars(r)["id"], roleParam(r))
	if err != nil {
		a.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (a *App) handleCountUnread(w http.ResponseWriter, r *http.Request) {
	count, err := a.features.Chat.CountUnread(r.Context(), mux.Vars(r)["id"], roleParam(r))
	if err != nil {
		a.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"count": count})
}

// Migration

type migrateRequest struct {
	// Entries maps legacy local storage keys to their raw blobs.
	Entries map[string]string `json:"entries"`
}

// handleMigrate runs a migration pass over a snapshot uploaded by a browser.
func (a *App) handleMigrate(w http.ResponseWriter, r *http.Request) {
	var req migrateRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if a.IsReadOnly() {
		a.respondStoreError(w, store.ErrReadOnly)
		return
	}

	result, err := a.migrator.WithSource(legacy.NewMapSource(req.Entries)).Run(r.Context())
	if err != nil {
		a.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (a *App) handleMigrationStatus(w http.ResponseWriter, r *http.Request) {
	state, err := a.migrator.Status(r.Context())
	if err != nil {
		a.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":    "healthy",
		"backend":   a.config.Backend,
		"read_only": a.IsReadOnly(),
		"time":      time.Now().Unix(),
	}
	respondJSON(w, http.StatusOK, response)
}

// respondStoreError maps store, codec and migration errors to HTTP statuses.
func (a *App) respondStoreError(w http.ResponseWriter, err error) {
	var decodeErr *codec.DecodeError
	switch {
	case store.IsValidation(err):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &decodeErr):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrReadOnly):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrCarroNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case store.IsTransport(err):
		a.log.Warn().Err(err).Msg("datastore unavailable")
		respondError(w, http.StatusServiceUnavailable, "datastore unavailable, try again")
	default:
		a.log.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

// respondError writes {"error": message}.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
