package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/voicepair/voicepair-go/internal/errors"
	"github.com/voicepair/voicepair-go/internal/httputil"
	"github.com/voicepair/voicepair-go/internal/repository"
)

// SessionHandler exposes the session audit trail to operators.
type SessionHandler struct {
	sessionRepo repository.SessionRepository
}

func NewSessionHandler(sessionRepo repository.SessionRepository) *SessionHandler {
	return &SessionHandler{sessionRepo: sessionRepo}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.Get)
	return r
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.WriteError(w, apperrors.ValidationError("session id is required"))
		return
	}

	session, err := h.sessionRepo.FindByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	if session == nil {
		httputil.WriteError(w, apperrors.NotFound("session"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, session)
}
