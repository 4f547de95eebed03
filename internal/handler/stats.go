package handler

import (
	"net/http"

	apperrors "github.com/voicepair/voicepair-go/internal/errors"
	"github.com/voicepair/voicepair-go/internal/httputil"
	"github.com/voicepair/voicepair-go/internal/repository"
)

// StatsHandler serves the operator's view of queue depth and session counts.
type StatsHandler struct {
	queueRepo   repository.QueueRepository
	sessionRepo repository.SessionRepository
}

func NewStatsHandler(queueRepo repository.QueueRepository, sessionRepo repository.SessionRepository) *StatsHandler {
	return &StatsHandler{queueRepo: queueRepo, sessionRepo: sessionRepo}
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	waiting, err := h.queueRepo.CountWaitingByDuration(ctx)
	if err != nil {
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	sessions, err := h.sessionRepo.CountByStatus(ctx)
	if err != nil {
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"waitingByDuration": waiting,
		"sessionsByStatus":  sessions,
	})
}
