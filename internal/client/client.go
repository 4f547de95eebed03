package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/voicepair/voicepair-go/internal/config"
	"github.com/voicepair/voicepair-go/internal/database"
	apperrors "github.com/voicepair/voicepair-go/internal/errors"
	"github.com/voicepair/voicepair-go/internal/lifecycle"
	"github.com/voicepair/voicepair-go/internal/match"
	"github.com/voicepair/voicepair-go/internal/model"
	"github.com/voicepair/voicepair-go/internal/notify"
	"github.com/voicepair/voicepair-go/internal/presence"
	redisclient "github.com/voicepair/voicepair-go/internal/redis"
	"github.com/voicepair/voicepair-go/internal/repository"
	"github.com/voicepair/voicepair-go/internal/signaling"
)

// EngineFactory builds a fresh media engine for each call.
type EngineFactory func() (signaling.MediaEngine, error)

// Presence is the slice of the presence tracker the client needs.
type Presence interface {
	SetInCall(ctx context.Context, userID string, maxCall time.Duration) error
	ClearInCall(ctx context.Context, userID string) error
}

// Notifier is the push half of the delivery path: publish on write, subscribe
// to wake early. Both directions are best-effort; polling guarantees progress.
type Notifier interface {
	Publish(ctx context.Context, channel string, event notify.Event) error
	Subscribe(ctx context.Context, channel string) *notify.Subscription
}

// MatchHandle identifies one in-flight match request.
type MatchHandle struct {
	EntryID string
	cancel  context.CancelFunc
	attempt *match.Attempt
}

// Client is one participant's process. It owns all of that participant's
// concurrent activities (heartbeat, match attempt, signal loop, session
// watcher) and coordinates with the partner's process only through the
// shared store.
type Client struct {
	userID        string
	cfg           *config.Config
	queueRepo     repository.QueueRepository
	sessionRepo   repository.SessionRepository
	signalRepo    repository.SignalRepository
	presence      Presence
	notifier      Notifier
	matchmaker    *match.Matchmaker
	manager       *lifecycle.Manager
	engineFactory EngineFactory

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu            sync.Mutex
	onMatched     func(*model.Session)
	onMatchFailed func(error)
	onEnded       func(lifecycle.EndEvent)
	active        *call
}

// call is one joined session's local state.
type call struct {
	session *model.Session
	machine *signaling.Machine
	cancel  context.CancelFunc
}

func New(cfg *config.Config, db *database.DB, redisClient *redisclient.Client, userID string, engineFactory EngineFactory) *Client {
	queueRepo := repository.NewQueueRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)
	signalRepo := repository.NewSignalRepository(db.DB)
	tracker := presence.NewTracker(redisClient, cfg.FreshnessWindow())
	notifier := notify.NewNotifier(redisClient)

	matchmaker := match.NewMatchmaker(
		db, queueRepo, sessionRepo, tracker, notifier,
		cfg.QueueTTL(), config.CandidateScanLimit,
	)
	manager := lifecycle.NewManager(
		sessionRepo, tracker, notifier, notifier,
		cfg.PollInterval(), cfg.HandshakeTimeout(),
	)

	rootCtx, rootCancel := context.WithCancel(context.Background())

	c := &Client{
		userID:        userID,
		cfg:           cfg,
		queueRepo:     queueRepo,
		sessionRepo:   sessionRepo,
		signalRepo:    signalRepo,
		presence:      tracker,
		notifier:      notifier,
		matchmaker:    matchmaker,
		manager:       manager,
		engineFactory: engineFactory,
		rootCtx:       rootCtx,
		rootCancel:    rootCancel,
	}

	go tracker.Heartbeat(rootCtx, userID)

	return c
}

// OnMatched registers the callback fired when a session has been adopted
// for this participant. Register before RequestMatch.
func (c *Client) OnMatched(fn func(*model.Session)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMatched = fn
}

// OnMatchFailed registers the callback fired when a match request resolves
// without a session for any reason other than a local cancel. Without it a
// timed-out request would have no outward signal at all.
func (c *Client) OnMatchFailed(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMatchFailed = fn
}

// OnSessionEnded registers the callback fired exactly once per joined
// session when it closes, with the reason attributed.
func (c *Client) OnSessionEnded(fn func(lifecycle.EndEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEnded = fn
}

// RequestMatch enqueues the participant and resolves the attempt in the
// background. The returned handle cancels only this request.
func (c *Client) RequestMatch(ctx context.Context, durationSecs int) (*MatchHandle, error) {
	open, err := c.sessionRepo.FindOpenByUserID(ctx, c.userID)
	if err != nil {
		return nil, apperrors.TransientStore("find open session", err)
	}
	if open != nil {
		return nil, apperrors.ValidationError("already in a session").WithDetails(open.ID)
	}

	entry, err := c.matchmaker.Request(ctx, c.userID, durationSecs)
	if err != nil {
		return nil, err
	}

	attempt := match.NewAttempt(
		c.userID, entry.ID, c.matchmaker, c.queueRepo, c.sessionRepo,
		c.notifier, c.cfg.PollInterval(), c.cfg.MatchCeiling(),
	)

	attemptCtx, cancel := context.WithCancel(c.rootCtx)
	handle := &MatchHandle{EntryID: entry.ID, cancel: cancel, attempt: attempt}

	go func() {
		session, err := attempt.Run(attemptCtx)
		if err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeMatchCancelled) {
				return
			}
			log.Warn().Err(err).Str("userId", c.userID).Msg("match attempt resolved with error")
			c.mu.Lock()
			failed := c.onMatchFailed
			c.mu.Unlock()
			if failed != nil {
				failed(err)
			}
			return
		}
		c.joinSession(session)
	}()

	return handle, nil
}

// CancelMatch withdraws a pending request. It stops this participant's own
// loops and marks their own queue entry; the partner's rows are untouched.
func (c *Client) CancelMatch(handle *MatchHandle) error {
	handle.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return handle.attempt.Cancel(ctx)
}

// SendHangup closes the current session on this participant's behalf.
// Local media resources are released first, unconditionally: the store
// write may fail, the microphone still closes.
func (c *Client) SendHangup(ctx context.Context, sessionID string) error {
	c.closeActiveCall(sessionID)
	return c.manager.Hangup(ctx, sessionID, c.userID)
}

// Close tears the whole participant process down.
func (c *Client) Close() {
	c.mu.Lock()
	active := c.active
	c.active = nil
	c.mu.Unlock()

	if active != nil {
		active.cancel()
		active.machine.Close()
	}
	c.rootCancel()
}

// joinSession is the single entry point from a resolved match attempt.
// It flags presence, starts the signaling machine, the signal delivery
// loop, and the lifecycle watcher.
func (c *Client) joinSession(session *model.Session) {
	callCtx, cancel := context.WithCancel(c.rootCtx)

	maxCall := time.Duration(session.PlannedDurationSecs)*time.Second + c.cfg.HandshakeTimeout()
	if err := c.presence.SetInCall(callCtx, c.userID, maxCall); err != nil {
		log.Warn().Err(err).Str("userId", c.userID).Msg("failed to set in-call flag")
	}

	engine, err := c.engineFactory()
	if err != nil {
		log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to build media engine")
		cancel()
		detached, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if failErr := c.manager.Fail(detached, session.ID); failErr != nil {
			log.Warn().Err(failErr).Str("sessionId", session.ID).Msg("failed to fail session")
		}
		return
	}

	machine := signaling.NewMachine(
		c.userID, session, engine, c.sendFunc(session),
		signaling.WithOfferDelay(c.cfg.OfferDelay()),
		signaling.WithInboxCapacity(config.InboxSeenCap),
	)

	machine.OnConnected(func() {
		if err := c.manager.Activate(callCtx, session.ID); err != nil {
			log.Warn().Err(err).Str("sessionId", session.ID).Msg("failed to activate session")
		}
	})
	machine.OnFailed(func() {
		// An engine-reported drop is nobody's hangup. Fail covers a session
		// still connecting; Drop covers one that already went active and
		// stamps the close as system-attributed so the partner's watcher
		// reads it as a failure, not as this side leaving on purpose.
		detached, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := c.manager.Fail(detached, session.ID); err != nil {
			log.Warn().Err(err).Str("sessionId", session.ID).Msg("failed to fail session")
		}
		if err := c.manager.Drop(detached, session.ID, c.userID); err != nil {
			log.Warn().Err(err).Str("sessionId", session.ID).Msg("failed to close dropped session")
		}
	})

	c.mu.Lock()
	c.active = &call{session: session, machine: machine, cancel: cancel}
	matched := c.onMatched
	c.mu.Unlock()

	if matched != nil {
		matched(session)
	}

	go c.signalLoop(callCtx, session, machine)
	go c.watchSession(callCtx, session, machine, cancel)

	if err := machine.Start(callCtx); err != nil {
		log.Warn().Err(err).Str("sessionId", session.ID).Msg("signaling start failed")
	}
}

// sendFunc persists one outgoing signal and nudges the partner's push
// channel. The insert is the source of truth; the publish is best-effort.
func (c *Client) sendFunc(session *model.Session) signaling.SendFunc {
	partner := session.PartnerOf(c.userID)
	return func(ctx context.Context, kind model.SignalKind, payload json.RawMessage) error {
		msg, err := c.signalRepo.Create(ctx, model.CreateSignalParams{
			ID:         uuid.NewString(),
			SessionID:  session.ID,
			SenderID:   c.userID,
			ReceiverID: partner,
			Kind:       kind,
			Payload:    payload,
		})
		if err != nil {
			return apperrors.TransientStore("create signal", err)
		}

		data, _ := json.Marshal(msg)
		event := notify.Event{Table: notify.TableSignals, RowID: msg.ID, Data: data}
		if err := c.notifier.Publish(ctx, redisclient.SignalChannel(partner), event); err != nil {
			log.Warn().Err(err).Str("sessionId", session.ID).Msg("failed to publish signal event")
		}
		return nil
	}
}

// signalLoop is the delivery path: push events wake it early, the poll tick
// guarantees progress. Both feed the machine's single HandleSignal entry
// point, which dedups by message id.
func (c *Client) signalLoop(ctx context.Context, session *model.Session, machine *signaling.Machine) {
	sub := c.notifier.Subscribe(ctx, redisclient.SignalChannel(c.userID))
	defer sub.Close()
	pushCh := sub.Events

	ticker := time.NewTicker(c.cfg.PollInterval())
	defer ticker.Stop()

	for {
		c.deliverPending(ctx, session, machine)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case _, ok := <-pushCh:
			if !ok {
				log.Debug().Str("sessionId", session.ID).Msg("signal push closed, falling back to polling")
				pushCh = nil
			}
		}
	}
}

func (c *Client) deliverPending(ctx context.Context, session *model.Session, machine *signaling.Machine) {
	msgs, err := c.signalRepo.FindUndelivered(ctx, session.ID, c.userID)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", session.ID).Msg("failed to read signals, retrying")
		return
	}

	for i := range msgs {
		msg := &msgs[i]
		if err := machine.HandleSignal(ctx, msg); err != nil {
			log.Warn().Err(err).Str("signalId", msg.ID).Msg("signal handling failed")
		}
		if err := c.signalRepo.MarkDelivered(ctx, msg.ID); err != nil {
			// The dedup inbox absorbs the redelivery this causes.
			log.Warn().Err(err).Str("signalId", msg.ID).Msg("failed to mark signal delivered")
		}
	}
}

// watchSession waits for the session's terminal state and releases local
// resources, whichever side caused the close.
func (c *Client) watchSession(ctx context.Context, session *model.Session, machine *signaling.Machine, cancel context.CancelFunc) {
	events := c.manager.Watch(ctx, session, c.userID)

	event, ok := <-events
	if !ok {
		return
	}

	machine.Close()
	cancel()

	c.mu.Lock()
	if c.active != nil && c.active.session.ID == session.ID {
		c.active = nil
	}
	ended := c.onEnded
	c.mu.Unlock()

	log.Info().
		Err(event.Err).
		Str("sessionId", event.SessionID).
		Str("reason", string(event.Reason)).
		Msg("session closed")

	if ended != nil {
		ended(event)
	}
}

func (c *Client) closeActiveCall(sessionID string) {
	c.mu.Lock()
	active := c.active
	if active == nil || active.session.ID != sessionID {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.mu.Unlock()

	active.machine.Close()
	active.cancel()
}
