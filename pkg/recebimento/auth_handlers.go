package recebimento

import (
	"errors"
	"net/http"

	"github.com/warehouse/recebimento/pkg/auth"
)

type loginRequest struct {
	Usuario string `json:"usuario"`
	Senha   string `json:"senha"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// handleLogin checks a usuario/senha pair. No token is issued; the client keeps
// its own session.
//
//	POST /api/auth/login
//	{"usuario": "maria", "senha": "..."}
//
// Responds 400 for a malformed body or a missing field, 401 for an unknown user or a
// wrong password (same message for both) and 200 on success.
func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, loginResponse{Message: "Requisição inválida"})
		return
	}
	if req.Usuario == "" || req.Senha == "" {
		respondJSON(w, http.StatusBadRequest, loginResponse{Message: "Usuário e senha são obrigatórios"})
		return
	}

	usuario, err := a.store.GetUsuario(r.Context(), req.Usuario)
	if err != nil {
		a.respondStoreError(w, err)
		return
	}
	unauthorized := loginResponse{Message: auth.ErrInvalidCredentials.Error()}
	if usuario == nil {
		respondJSON(w, http.StatusUnauthorized, unauthorized)
		return
	}

	if err := a.verifier.Verify(usuario.SenhaHash, req.Senha); err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			a.log.Error().Err(err).Str("usuario", req.Usuario).Msg("failed to verify password")
		}
		respondJSON(w, http.StatusUnauthorized, unauthorized)
		return
	}

	a.log.Info().Str("usuario", req.Usuario).Msg("login")
	respondJSON(w, http.StatusOK, loginResponse{Success: true, Message: "Login realizado com sucesso"})
}
