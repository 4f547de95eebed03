package match

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/voicepair/voicepair-go/internal/database"
	apperrors "github.com/voicepair/voicepair-go/internal/errors"
	"github.com/voicepair/voicepair-go/internal/model"
	"github.com/voicepair/voicepair-go/internal/notify"
	redisclient "github.com/voicepair/voicepair-go/internal/redis"
	"github.com/voicepair/voicepair-go/internal/repository"
)

// TxRunner executes a function inside a store transaction. *database.DB
// satisfies it.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

// Liveness is the freshness test applied to candidates before matching.
type Liveness interface {
	Alive(ctx context.Context, userID string) (bool, error)
}

// Publisher is the push half of the change notifier.
type Publisher interface {
	Publish(ctx context.Context, channel string, event notify.Event) error
}

// Matchmaker is the stateless pairing algorithm. Any participant's process
// may invoke it; cross-process coordination happens only through the store's
// conditional row updates, never through in-memory locks.
type Matchmaker struct {
	tx          TxRunner
	queueRepo   repository.QueueRepository
	sessionRepo repository.SessionRepository
	liveness    Liveness
	publisher   Publisher
	queueTTL    time.Duration
	scanLimit   int
}

func NewMatchmaker(
	tx TxRunner,
	queueRepo repository.QueueRepository,
	sessionRepo repository.SessionRepository,
	liveness Liveness,
	publisher Publisher,
	queueTTL time.Duration,
	scanLimit int,
) *Matchmaker {
	return &Matchmaker{
		tx:          tx,
		queueRepo:   queueRepo,
		sessionRepo: sessionRepo,
		liveness:    liveness,
		publisher:   publisher,
		queueTTL:    queueTTL,
		scanLimit:   scanLimit,
	}
}

// Request opens (or returns the existing) queue entry for a user. A user
// with a waiting or matched entry gets that entry back unchanged.
func (m *Matchmaker) Request(ctx context.Context, userID string, durationSecs int) (*model.QueueEntry, error) {
	if userID == "" {
		return nil, apperrors.ValidationError("user id is required")
	}
	if durationSecs <= 0 {
		return nil, apperrors.ValidationError("duration must be positive")
	}

	existing, err := m.queueRepo.FindOpenByUserID(ctx, userID)
	if err != nil {
		return nil, apperrors.TransientStore("find open queue entry", err)
	}
	if existing != nil {
		return existing, nil
	}

	entry, err := m.queueRepo.Create(ctx, model.CreateQueueEntryParams{
		ID:           uuid.NewString(),
		UserID:       userID,
		DurationSecs: durationSecs,
		ExpiresAt:    time.Now().Add(m.queueTTL),
	})
	if err != nil {
		return nil, apperrors.TransientStore("create queue entry", err)
	}

	log.Info().
		Str("entryId", entry.ID).
		Str("userId", userID).
		Int("durationSecs", durationSecs).
		Msg("queue entry created")

	return entry, nil
}

// TryMatch runs one matching pass for a waiting entry. It returns a session
// when this side created one or adopted one after losing the creation race,
// and (nil, nil) when the caller should keep waiting: either no live
// candidate exists, or the tie-break elected the other side as creator.
func (m *Matchmaker) TryMatch(ctx context.Context, entry *model.QueueEntry) (*model.Session, error) {
	candidates, err := m.queueRepo.FindCandidates(ctx, entry.DurationSecs, entry.UserID, m.scanLimit)
	if err != nil {
		return nil, apperrors.TransientStore("scan candidates", err)
	}

	for i := range candidates {
		candidate := &candidates[i]

		alive, err := m.liveness.Alive(ctx, candidate.UserID)
		if err != nil {
			log.Warn().Err(err).Str("userId", candidate.UserID).Msg("liveness check failed, skipping candidate")
			continue
		}
		if !alive {
			// Abandoned tab or crashed client. Purge the entry so later
			// scans do not trip over it again.
			log.Debug().
				Err(apperrors.PartnerUnavailable(candidate.UserID)).
				Str("entryId", candidate.ID).
				Msg("skipping stale candidate")
			if err := m.queueRepo.Delete(ctx, candidate.ID); err != nil {
				log.Warn().Err(err).Str("entryId", candidate.ID).Msg("failed to gc stale entry")
			}
			continue
		}

		// Deterministic tie-break: only the smaller id performs the write.
		// The larger id waits for its own queue row to transition, which the
		// poller observes. This halves simultaneous creation attempts; the
		// conditional updates inside the transaction handle the rest.
		if entry.UserID > candidate.UserID {
			log.Debug().
				Str("userId", entry.UserID).
				Str("candidate", candidate.UserID).
				Msg("tie-break elected partner as creator, waiting")
			return nil, nil
		}

		session, err := m.createSession(ctx, entry, candidate)
		if err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeRaceLoser) {
				// Someone else retired one of the two rows first. Nothing
				// was committed; adopt whatever the winner created for us.
				return m.adoptExisting(ctx, entry.ID)
			}
			return nil, err
		}
		return session, nil
	}

	return nil, nil
}

// createSession inserts the session and retires both queue entries in one
// transaction. Either conditional update touching zero rows aborts the
// transaction, so a redundant session row never survives: the insert rolls
// back together with the failed update.
func (m *Matchmaker) createSession(ctx context.Context, entry, candidate *model.QueueEntry) (*model.Session, error) {
	user1, user2 := entry.UserID, candidate.UserID
	if user1 > user2 {
		user1, user2 = user2, user1
	}

	var created *model.Session
	err := m.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		sessionRepo := m.sessionRepo.WithTx(tx)
		queueRepo := m.queueRepo.WithTx(tx)

		session, err := sessionRepo.Create(ctx, model.CreateSessionParams{
			ID:                  uuid.NewString(),
			User1ID:             user1,
			User2ID:             user2,
			PlannedDurationSecs: entry.DurationSecs,
		})
		if err != nil {
			return apperrors.TransientStore("create session", err)
		}

		rows, err := queueRepo.MarkMatched(ctx, entry.ID, candidate.UserID, session.ID)
		if err != nil {
			return apperrors.TransientStore("mark own entry matched", err)
		}
		if rows == 0 {
			return apperrors.RaceLoser(session.ID)
		}

		rows, err = queueRepo.MarkMatched(ctx, candidate.ID, entry.UserID, session.ID)
		if err != nil {
			return apperrors.TransientStore("mark candidate entry matched", err)
		}
		if rows == 0 {
			return apperrors.RaceLoser(session.ID)
		}

		created = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("sessionId", created.ID).
		Str("user1", created.User1ID).
		Str("user2", created.User2ID).
		Msg("session created")

	m.publishMatched(ctx, entry, created)
	m.publishMatched(ctx, candidate, created)

	return created, nil
}

// adoptExisting re-reads our own queue entry after a lost race. The other
// participant only considers itself matched once its own entry carries a
// partner and session, not by merely finding a session that references it.
func (m *Matchmaker) adoptExisting(ctx context.Context, entryID string) (*model.Session, error) {
	entry, err := m.queueRepo.FindByID(ctx, entryID)
	if err != nil {
		return nil, apperrors.TransientStore("reread own entry", err)
	}
	if entry == nil || !entry.Matched() {
		// The race winner matched our candidate with someone else. Keep
		// waiting; the poller retries.
		return nil, nil
	}

	session, err := m.sessionRepo.FindByID(ctx, *entry.SessionID)
	if err != nil {
		return nil, apperrors.TransientStore("find adopted session", err)
	}
	if session == nil {
		return nil, nil
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("entryId", entry.ID).
		Msg("adopted session created by partner")

	return session, nil
}

func (m *Matchmaker) publishMatched(ctx context.Context, entry *model.QueueEntry, session *model.Session) {
	data, _ := json.Marshal(map[string]string{"sessionId": session.ID})
	event := notify.Event{Table: notify.TableQueue, RowID: entry.ID, Data: data}
	if err := m.publisher.Publish(ctx, redisclient.QueueChannel(entry.UserID), event); err != nil {
		// Push is best-effort; the owner's poller picks the change up.
		log.Warn().Err(err).Str("userId", entry.UserID).Msg("failed to publish match event")
	}
}
