package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/voicepair/voicepair-go/internal/errors"
	"github.com/voicepair/voicepair-go/internal/model"
	"github.com/voicepair/voicepair-go/internal/notify"
)

// State of the per-participant handshake.
type State string

const (
	StateIdle          State = "idle"
	StateOffering      State = "offering"
	StateAwaitingOffer State = "awaiting_offer"
	StateHaveRemote    State = "have_remote"
	StateConnected     State = "connected"
	StateEnded         State = "ended"
	StateFailed        State = "failed"
)

// SendFunc persists and publishes one outgoing signal message. The machine
// never touches the store directly.
type SendFunc func(ctx context.Context, kind model.SignalKind, payload json.RawMessage) error

// Machine drives one side of a session handshake. It has a single entry
// point for incoming events (HandleSignal), so duplicate suppression and
// re-entrancy are explicit guards instead of scattered flags. All incoming
// paths (push and poll) go through the same inbox; replaying a message id is
// a no-op by construction.
type Machine struct {
	mu       sync.Mutex
	handleMu sync.Mutex

	userID  string
	session *model.Session
	engine  MediaEngine
	send    SendFunc
	inbox   *notify.Inbox

	state     State
	remoteSet bool
	pending   []CandidatePayload

	offerDelay  time.Duration
	onConnected func()
	onFailed    func()
	closeOnce   sync.Once
}

type Option func(*Machine)

// WithOfferDelay sets the grace delay before the initiator sends its offer,
// giving the other side time to begin listening.
func WithOfferDelay(d time.Duration) Option {
	return func(m *Machine) { m.offerDelay = d }
}

// WithInboxCapacity bounds the recently-seen message set.
func WithInboxCapacity(n int) Option {
	return func(m *Machine) { m.inbox = notify.NewInbox(n) }
}

func NewMachine(userID string, session *model.Session, engine MediaEngine, send SendFunc, opts ...Option) *Machine {
	m := &Machine{
		userID:     userID,
		session:    session,
		engine:     engine,
		send:       send,
		inbox:      notify.NewInbox(512),
		state:      StateIdle,
		offerDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnConnected registers the callback fired once when the media engine
// reports a connected peer path.
func (m *Machine) OnConnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

// OnFailed registers the callback fired once when the handshake fails or
// the connection drops.
func (m *Machine) OnFailed(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFailed = fn
}

// State returns the current handshake state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Initiator reports whether this side is responsible for the offer. It is
// the side that created the session row.
func (m *Machine) Initiator() bool {
	return m.session.Initiator() == m.userID
}

// Start wires engine callbacks and kicks off the handshake. The initiator
// sends an offer after the grace delay; the other side waits for one.
func (m *Machine) Start(ctx context.Context) error {
	m.engine.OnCandidate(func(candidate CandidatePayload) {
		payload, err := json.Marshal(candidate)
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal local candidate")
			return
		}
		if err := m.send(ctx, model.SignalKindCandidate, payload); err != nil {
			log.Warn().Err(err).Str("sessionId", m.session.ID).Msg("failed to send candidate")
		}
	})

	m.engine.OnConnectionState(func(state ConnectionState) {
		m.handleConnectionState(state)
	})

	if !m.Initiator() {
		m.setState(StateAwaitingOffer)
		return nil
	}

	m.setState(StateOffering)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.offerDelay):
	}

	sdp, err := m.engine.CreateOffer(ctx)
	if err != nil {
		m.fail()
		return apperrors.Wrap(apperrors.ErrCodeInternal, "create offer", err)
	}

	payload, err := json.Marshal(DescriptionPayload{SDP: sdp})
	if err != nil {
		m.fail()
		return err
	}

	if err := m.send(ctx, model.SignalKindOffer, payload); err != nil {
		m.fail()
		return err
	}

	log.Debug().Str("sessionId", m.session.ID).Msg("offer sent")
	return nil
}

// HandleSignal processes one delivered message. Safe to call any number of
// times with the same message; the first delivery wins, later ones are
// no-ops. Concurrent callers are serialized, so the guards below see every
// earlier message's effect before deciding.
func (m *Machine) HandleSignal(ctx context.Context, msg *model.SignalMessage) error {
	if msg.ReceiverID != m.userID || msg.SessionID != m.session.ID || !m.session.Has(msg.SenderID) {
		return nil
	}

	m.handleMu.Lock()
	defer m.handleMu.Unlock()

	if !m.inbox.Observe(msg.ID) {
		return nil
	}

	switch msg.Kind {
	case model.SignalKindOffer:
		return m.handleOffer(ctx, msg)
	case model.SignalKindAnswer:
		return m.handleAnswer(ctx, msg)
	case model.SignalKindCandidate:
		return m.handleCandidate(ctx, msg)
	default:
		log.Warn().Str("kind", string(msg.Kind)).Msg("unknown signal kind ignored")
		return nil
	}
}

func (m *Machine) handleOffer(ctx context.Context, msg *model.SignalMessage) error {
	m.mu.Lock()
	if m.remoteSet || m.state.terminal() {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	var desc DescriptionPayload
	if err := json.Unmarshal(msg.Payload, &desc); err != nil {
		return apperrors.ValidationError("malformed offer payload").WithCause(err)
	}

	if err := m.engine.SetRemoteDescription(ctx, "offer", desc.SDP); err != nil {
		m.fail()
		return apperrors.Wrap(apperrors.ErrCodeInternal, "set remote offer", err)
	}

	m.markRemoteSet()
	m.flushPending(ctx)

	sdp, err := m.engine.CreateAnswer(ctx)
	if err != nil {
		m.fail()
		return apperrors.Wrap(apperrors.ErrCodeInternal, "create answer", err)
	}

	payload, err := json.Marshal(DescriptionPayload{SDP: sdp})
	if err != nil {
		return err
	}

	if err := m.send(ctx, model.SignalKindAnswer, payload); err != nil {
		return err
	}

	log.Debug().Str("sessionId", m.session.ID).Msg("answer sent")
	return nil
}

func (m *Machine) handleAnswer(ctx context.Context, msg *model.SignalMessage) error {
	m.mu.Lock()
	if m.remoteSet || m.state.terminal() {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	var desc DescriptionPayload
	if err := json.Unmarshal(msg.Payload, &desc); err != nil {
		return apperrors.ValidationError("malformed answer payload").WithCause(err)
	}

	if err := m.engine.SetRemoteDescription(ctx, "answer", desc.SDP); err != nil {
		m.fail()
		return apperrors.Wrap(apperrors.ErrCodeInternal, "set remote answer", err)
	}

	m.markRemoteSet()
	m.flushPending(ctx)
	return nil
}

func (m *Machine) handleCandidate(ctx context.Context, msg *model.SignalMessage) error {
	var candidate CandidatePayload
	if err := json.Unmarshal(msg.Payload, &candidate); err != nil {
		return apperrors.ValidationError("malformed candidate payload").WithCause(err)
	}

	m.mu.Lock()
	if !m.remoteSet {
		// Candidates delivered before the remote description cannot be
		// applied yet; buffer them for the flush.
		m.pending = append(m.pending, candidate)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.engine.AddCandidate(ctx, candidate); err != nil {
		log.Warn().Err(err).Str("sessionId", m.session.ID).Msg("failed to add candidate")
	}
	return nil
}

func (m *Machine) markRemoteSet() {
	m.mu.Lock()
	m.remoteSet = true
	if !m.state.terminal() {
		m.state = StateHaveRemote
	}
	m.mu.Unlock()
}

func (m *Machine) flushPending(ctx context.Context) {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, candidate := range pending {
		if err := m.engine.AddCandidate(ctx, candidate); err != nil {
			log.Warn().Err(err).Str("sessionId", m.session.ID).Msg("failed to apply buffered candidate")
		}
	}

	if len(pending) > 0 {
		log.Debug().Int("count", len(pending)).Str("sessionId", m.session.ID).Msg("flushed buffered candidates")
	}
}

func (m *Machine) handleConnectionState(state ConnectionState) {
	switch state {
	case ConnectionStateConnected:
		m.mu.Lock()
		if m.state.terminal() || m.state == StateConnected {
			m.mu.Unlock()
			return
		}
		m.state = StateConnected
		fn := m.onConnected
		m.mu.Unlock()
		if fn != nil {
			fn()
		}
	case ConnectionStateFailed, ConnectionStateDisconnected:
		m.fail()
	}
}

func (m *Machine) fail() {
	m.mu.Lock()
	if m.state.terminal() {
		m.mu.Unlock()
		return
	}
	wasConnected := m.state == StateConnected
	if wasConnected {
		m.state = StateEnded
	} else {
		m.state = StateFailed
	}
	fn := m.onFailed
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Close releases media resources. Unconditional: it runs on every exit path
// and never depends on a remote write succeeding.
func (m *Machine) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		if !m.state.terminal() {
			if m.state == StateConnected {
				m.state = StateEnded
			} else {
				m.state = StateFailed
			}
		}
		m.mu.Unlock()
		if err := m.engine.Close(); err != nil {
			log.Warn().Err(err).Str("sessionId", m.session.ID).Msg("media engine close failed")
		}
	})
}

// PendingCandidates returns the number of buffered candidates awaiting a
// remote description.
func (m *Machine) PendingCandidates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (s State) terminal() bool {
	return s == StateEnded || s == StateFailed
}
