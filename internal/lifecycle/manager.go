package lifecycle

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/voicepair/voicepair-go/internal/errors"
	"github.com/voicepair/voicepair-go/internal/model"
	"github.com/voicepair/voicepair-go/internal/notify"
	redisclient "github.com/voicepair/voicepair-go/internal/redis"
	"github.com/voicepair/voicepair-go/internal/repository"
)

// EndReason explains why a session closed, from one participant's point of
// view. Partner-initiated closes are distinguished from self-initiated ones
// so callers can explain why the call ended.
type EndReason string

const (
	ReasonHangupSelf  EndReason = "hangup_self"
	ReasonPartnerLeft EndReason = "partner_left"
	ReasonTimeout     EndReason = "timeout"
	ReasonFailed      EndReason = "failed"
)

// EndEvent is delivered exactly once per watched session. Err is set for
// closes the participant did not ask for, carrying the failure's error code.
type EndEvent struct {
	SessionID string
	Reason    EndReason
	EndedBy   string
	Err       error
}

// Presence is the slice of the presence tracker the manager needs.
type Presence interface {
	SetInCall(ctx context.Context, userID string, maxCall time.Duration) error
	ClearInCall(ctx context.Context, userID string) error
}

// Publisher is the push half of the change notifier.
type Publisher interface {
	Publish(ctx context.Context, channel string, event notify.Event) error
}

// Subscriber is the push half of the delivery path.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) *notify.Subscription
}

// Manager owns session status transitions and reconciles presence state.
// All transitions are conditional store updates: a transition that lost the
// race to another writer touches zero rows and is simply dropped, keeping
// the status monotonic.
type Manager struct {
	sessionRepo      repository.SessionRepository
	presence         Presence
	publisher        Publisher
	subscriber       Subscriber
	pollInterval     time.Duration
	handshakeTimeout time.Duration
}

func NewManager(
	sessionRepo repository.SessionRepository,
	presence Presence,
	publisher Publisher,
	subscriber Subscriber,
	pollInterval time.Duration,
	handshakeTimeout time.Duration,
) *Manager {
	return &Manager{
		sessionRepo:      sessionRepo,
		presence:         presence,
		publisher:        publisher,
		subscriber:       subscriber,
		pollInterval:     pollInterval,
		handshakeTimeout: handshakeTimeout,
	}
}

// Activate transitions connecting -> active once the media engine reports a
// connected path. Losing the conditional update means the session already
// moved on; that is not an error.
func (m *Manager) Activate(ctx context.Context, sessionID string) error {
	rows, err := m.sessionRepo.MarkActive(ctx, sessionID)
	if err != nil {
		return apperrors.TransientStore("mark session active", err)
	}
	if rows > 0 {
		log.Info().Str("sessionId", sessionID).Msg("session active")
		m.publishChange(ctx, sessionID)
	}
	return nil
}

// Hangup closes the session on behalf of a participant and releases their
// busy flag. The partner's flag is their own process's responsibility; the
// cleanup job backstops crashed partners.
func (m *Manager) Hangup(ctx context.Context, sessionID, byUserID string) error {
	rows, err := m.sessionRepo.MarkEnded(ctx, sessionID, byUserID)
	if err != nil {
		return apperrors.TransientStore("mark session ended", err)
	}
	if rows > 0 {
		log.Info().Str("sessionId", sessionID).Str("endedBy", byUserID).Msg("session ended")
		m.publishChange(ctx, sessionID)
	}
	if err := m.presence.ClearInCall(ctx, byUserID); err != nil {
		log.Warn().Err(err).Str("userId", byUserID).Msg("failed to clear in-call flag")
	}
	return nil
}

// Drop closes a session after an engine-reported connection loss. The close
// is attributed to the system rather than to the observing participant, so
// the partner's watcher reads it as a failure instead of a deliberate hangup.
// Only the observer's own busy flag is cleared.
func (m *Manager) Drop(ctx context.Context, sessionID, selfID string) error {
	rows, err := m.sessionRepo.MarkEnded(ctx, sessionID, model.EndedBySystem)
	if err != nil {
		return apperrors.TransientStore("mark session ended", err)
	}
	if rows > 0 {
		log.Info().Str("sessionId", sessionID).Msg("session dropped")
		m.publishChange(ctx, sessionID)
	}
	if err := m.presence.ClearInCall(ctx, selfID); err != nil {
		log.Warn().Err(err).Str("userId", selfID).Msg("failed to clear in-call flag")
	}
	return nil
}

// Fail marks a connecting session as permanently failed.
func (m *Manager) Fail(ctx context.Context, sessionID string) error {
	rows, err := m.sessionRepo.MarkFailed(ctx, sessionID)
	if err != nil {
		return apperrors.TransientStore("mark session failed", err)
	}
	if rows > 0 {
		log.Info().Str("sessionId", sessionID).Msg("session failed")
		m.publishChange(ctx, sessionID)
	}
	return nil
}

// Watch observes a session until it reaches a terminal state and delivers
// exactly one EndEvent. It drives two timers on top of the store
// observation: the handshake timeout while connecting, and the planned call
// duration once active. Push and poll feed the same re-read, so a silent
// push channel only costs latency.
func (m *Manager) Watch(ctx context.Context, session *model.Session, selfID string) <-chan EndEvent {
	events := make(chan EndEvent, 1)
	go m.watch(ctx, session, selfID, events)
	return events
}

func (m *Manager) watch(ctx context.Context, session *model.Session, selfID string, events chan<- EndEvent) {
	defer close(events)

	sub := m.subscriber.Subscribe(ctx, redisclient.SessionChannel(session.ID))
	defer sub.Close()
	pushCh := sub.Events

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	handshake := time.NewTimer(m.handshakeTimeout)
	defer handshake.Stop()
	handshakeCh := handshake.C

	var plannedCh <-chan time.Time
	active := session.Status == model.SessionStatusActive
	if active {
		handshakeCh = nil
		plannedCh = time.After(m.remainingCallTime(session))
	}

	emit := func(event EndEvent) {
		if err := m.presence.ClearInCall(ctx, selfID); err != nil {
			log.Warn().Err(err).Str("userId", selfID).Msg("failed to clear in-call flag")
		}
		events <- event
	}

	for {
		current, err := m.sessionRepo.FindByID(ctx, session.ID)
		if err != nil {
			log.Warn().Err(err).Str("sessionId", session.ID).Msg("failed to read session, retrying")
		} else if current == nil {
			// Session row purged under us; treat as a system close.
			emit(EndEvent{SessionID: session.ID, Reason: ReasonFailed, EndedBy: model.EndedBySystem})
			return
		} else {
			if current.Status.Terminal() {
				emit(m.endEvent(current, selfID))
				return
			}
			if current.Status == model.SessionStatusActive && !active {
				active = true
				handshakeCh = nil
				remaining := m.remainingCallTime(current)
				plannedCh = time.After(remaining)
				log.Debug().Str("sessionId", session.ID).Dur("remaining", remaining).Msg("call duration timer armed")
			}
		}

		select {
		case <-ctx.Done():
			return

		case <-handshakeCh:
			// Re-read happens at the top of the loop; if the session became
			// active in the meantime, handshakeCh is already nil.
			if err := m.Fail(ctx, session.ID); err != nil {
				log.Warn().Err(err).Str("sessionId", session.ID).Msg("failed to fail stuck session")
			}
			emit(EndEvent{
				SessionID: session.ID,
				Reason:    ReasonFailed,
				EndedBy:   model.EndedBySystem,
				Err:       apperrors.HandshakeTimeout(session.ID),
			})
			return

		case <-plannedCh:
			if err := m.endByTimeout(ctx, session.ID); err != nil {
				log.Warn().Err(err).Str("sessionId", session.ID).Msg("failed to end session by timeout")
			}
			emit(EndEvent{SessionID: session.ID, Reason: ReasonTimeout, EndedBy: model.EndedByTimeout})
			return

		case <-ticker.C:

		case _, ok := <-pushCh:
			if !ok {
				log.Debug().Str("sessionId", session.ID).Msg("push subscription closed, falling back to polling")
				pushCh = nil
			}
		}
	}
}

func (m *Manager) endEvent(session *model.Session, selfID string) EndEvent {
	event := EndEvent{SessionID: session.ID}
	if session.EndedBy != nil {
		event.EndedBy = *session.EndedBy
	}

	switch {
	case session.Status == model.SessionStatusFailed:
		event.Reason = ReasonFailed
	case event.EndedBy == selfID:
		event.Reason = ReasonHangupSelf
	case event.EndedBy == model.EndedByTimeout:
		event.Reason = ReasonTimeout
	case event.EndedBy == "" || event.EndedBy == model.EndedBySystem:
		event.Reason = ReasonFailed
	default:
		event.Reason = ReasonPartnerLeft
		event.Err = apperrors.PartnerDisconnected(session.ID)
	}
	return event
}

func (m *Manager) endByTimeout(ctx context.Context, sessionID string) error {
	rows, err := m.sessionRepo.MarkEnded(ctx, sessionID, model.EndedByTimeout)
	if err != nil {
		return apperrors.TransientStore("mark session ended", err)
	}
	if rows > 0 {
		m.publishChange(ctx, sessionID)
	}
	return nil
}

func (m *Manager) remainingCallTime(session *model.Session) time.Duration {
	planned := time.Duration(session.PlannedDurationSecs) * time.Second
	if session.StartedAt == nil {
		return planned
	}
	remaining := planned - time.Since(*session.StartedAt)
	if remaining < time.Second {
		remaining = time.Second
	}
	return remaining
}

func (m *Manager) publishChange(ctx context.Context, sessionID string) {
	event := notify.Event{Table: notify.TableSessions, RowID: sessionID}
	if err := m.publisher.Publish(ctx, redisclient.SessionChannel(sessionID), event); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("failed to publish session change")
	}
}
