package match

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/voicepair/voicepair-go/internal/errors"
	"github.com/voicepair/voicepair-go/internal/model"
	"github.com/voicepair/voicepair-go/internal/notify"
	redisclient "github.com/voicepair/voicepair-go/internal/redis"
	"github.com/voicepair/voicepair-go/internal/repository"
)

// Subscriber is the push half of the delivery path.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) *notify.Subscription
}

// Attempt is one participant's in-flight match request. The poll ticker,
// the push subscription and external retries all funnel into step(), which
// is serialized by a single active-attempt flag so a participant cannot
// race itself. Racing the partner is serialized only through the store.
type Attempt struct {
	userID       string
	entryID      string
	matchmaker   *Matchmaker
	queueRepo    repository.QueueRepository
	sessionRepo  repository.SessionRepository
	subscriber   Subscriber
	pollInterval time.Duration
	ceiling      time.Duration

	inFlight  atomic.Bool
	cancelled atomic.Bool
}

func NewAttempt(
	userID string,
	entryID string,
	matchmaker *Matchmaker,
	queueRepo repository.QueueRepository,
	sessionRepo repository.SessionRepository,
	subscriber Subscriber,
	pollInterval time.Duration,
	ceiling time.Duration,
) *Attempt {
	return &Attempt{
		userID:       userID,
		entryID:      entryID,
		matchmaker:   matchmaker,
		queueRepo:    queueRepo,
		sessionRepo:  sessionRepo,
		subscriber:   subscriber,
		pollInterval: pollInterval,
		ceiling:      ceiling,
	}
}

// Run blocks until the attempt resolves: a session to join, a timeout, or
// cancellation. Push events only wake the loop early; the poll tick alone is
// sufficient for correctness.
func (a *Attempt) Run(ctx context.Context) (*model.Session, error) {
	sub := a.subscriber.Subscribe(ctx, redisclient.QueueChannel(a.userID))
	defer sub.Close()
	pushCh := sub.Events

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(a.ceiling)
	defer deadline.Stop()

	for {
		session, done, err := a.step(ctx)
		if done {
			return session, err
		}

		select {
		case <-ctx.Done():
			a.markCancelled()
			return nil, apperrors.MatchCancelled()

		case <-deadline.C:
			a.markExpired(ctx)
			return nil, apperrors.MatchTimeout()

		case <-ticker.C:

		case _, ok := <-pushCh:
			if !ok {
				// Push path silently died. The poller carries on alone.
				log.Debug().Str("userId", a.userID).Msg("push subscription closed, falling back to polling")
				pushCh = nil
			}
		}
	}
}

// Cancel marks the participant's own queue entry cancelled. It never
// mutates the partner's row.
func (a *Attempt) Cancel(ctx context.Context) error {
	a.cancelled.Store(true)
	rows, err := a.queueRepo.Cancel(ctx, a.entryID, a.userID)
	if err != nil {
		return apperrors.TransientStore("cancel queue entry", err)
	}
	if rows == 0 {
		// Already matched, expired or cancelled; nothing to undo.
		return nil
	}
	log.Info().Str("entryId", a.entryID).Msg("match request cancelled")
	return nil
}

// step runs one matching pass. done=false means keep waiting.
func (a *Attempt) step(ctx context.Context) (*model.Session, bool, error) {
	if !a.inFlight.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	defer a.inFlight.Store(false)

	if a.cancelled.Load() {
		return nil, true, apperrors.MatchCancelled()
	}

	entry, err := a.queueRepo.FindByID(ctx, a.entryID)
	if err != nil {
		// Transient; bounded by the overall ceiling.
		log.Warn().Err(err).Str("entryId", a.entryID).Msg("failed to read own queue entry, retrying")
		return nil, false, nil
	}
	if entry == nil {
		return nil, true, apperrors.MatchCancelled()
	}

	switch entry.Status {
	case model.QueueStatusCancelled:
		return nil, true, apperrors.MatchCancelled()

	case model.QueueStatusExpired:
		return nil, true, apperrors.MatchTimeout()

	case model.QueueStatusMatched:
		// Verify-before-use: only a fully populated own row counts as
		// matched.
		if !entry.Matched() {
			return nil, false, nil
		}
		session, err := a.sessionRepo.FindByID(ctx, *entry.SessionID)
		if err != nil {
			log.Warn().Err(err).Str("sessionId", *entry.SessionID).Msg("failed to load matched session, retrying")
			return nil, false, nil
		}
		if session == nil {
			return nil, false, nil
		}
		return session, true, nil

	case model.QueueStatusWaiting:
		session, err := a.matchmaker.TryMatch(ctx, entry)
		if err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeTransientStore) {
				log.Warn().Err(err).Msg("match pass failed, retrying")
				return nil, false, nil
			}
			return nil, true, err
		}
		if session != nil {
			return session, true, nil
		}
		return nil, false, nil
	}

	return nil, false, nil
}

func (a *Attempt) markCancelled() {
	// The caller's context is gone; use a short detached one so the row
	// does not linger until GC.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := a.queueRepo.Cancel(ctx, a.entryID, a.userID); err != nil {
		log.Warn().Err(err).Str("entryId", a.entryID).Msg("failed to mark entry cancelled")
	}
}

func (a *Attempt) markExpired(ctx context.Context) {
	if err := a.queueRepo.MarkExpired(ctx, a.entryID); err != nil {
		log.Warn().Err(err).Str("entryId", a.entryID).Msg("failed to mark entry expired")
	}
}
