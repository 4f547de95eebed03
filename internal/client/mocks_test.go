package client

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/voicepair/voicepair-go/internal/database"
	"github.com/voicepair/voicepair-go/internal/model"
	"github.com/voicepair/voicepair-go/internal/notify"
	"github.com/voicepair/voicepair-go/internal/repository"
	"github.com/voicepair/voicepair-go/internal/signaling"
)

type mockQueueRepo struct {
	mock.Mock
}

func (m *mockQueueRepo) FindByID(ctx context.Context, id string) (*model.QueueEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueEntry), args.Error(1)
}

func (m *mockQueueRepo) FindOpenByUserID(ctx context.Context, userID string) (*model.QueueEntry, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueEntry), args.Error(1)
}

func (m *mockQueueRepo) Create(ctx context.Context, params model.CreateQueueEntryParams) (*model.QueueEntry, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueEntry), args.Error(1)
}

func (m *mockQueueRepo) FindCandidates(ctx context.Context, durationSecs int, excludeUserID string, limit int) ([]model.QueueEntry, error) {
	args := m.Called(ctx, durationSecs, excludeUserID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.QueueEntry), args.Error(1)
}

func (m *mockQueueRepo) MarkMatched(ctx context.Context, id, partnerID, sessionID string) (int64, error) {
	args := m.Called(ctx, id, partnerID, sessionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockQueueRepo) Cancel(ctx context.Context, id, userID string) (int64, error) {
	args := m.Called(ctx, id, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockQueueRepo) MarkExpired(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockQueueRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockQueueRepo) DeleteStale(ctx context.Context, grace time.Duration) (int64, error) {
	args := m.Called(ctx, grace)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockQueueRepo) CountWaitingByDuration(ctx context.Context) (map[int]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]int), args.Error(1)
}

func (m *mockQueueRepo) WithTx(tx *sqlx.Tx) repository.QueueRepository {
	return m
}

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) FindOpenByUserID(ctx context.Context, userID string) (*model.Session, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) MarkActive(ctx context.Context, id string) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) MarkEnded(ctx context.Context, id, endedBy string) (int64, error) {
	args := m.Called(ctx, id, endedBy)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) MarkFailed(ctx context.Context, id string) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) FailStaleConnecting(ctx context.Context, maxAge time.Duration) (int64, error) {
	args := m.Called(ctx, maxAge)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) PurgeClosed(ctx context.Context, retention time.Duration) (int64, error) {
	args := m.Called(ctx, retention)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) CountByStatus(ctx context.Context) (map[model.SessionStatus]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.SessionStatus]int), args.Error(1)
}

func (m *mockSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return m
}

type mockSignalRepo struct {
	mock.Mock
}

func (m *mockSignalRepo) Create(ctx context.Context, params model.CreateSignalParams) (*model.SignalMessage, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SignalMessage), args.Error(1)
}

func (m *mockSignalRepo) FindUndelivered(ctx context.Context, sessionID, receiverID string) ([]model.SignalMessage, error) {
	args := m.Called(ctx, sessionID, receiverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SignalMessage), args.Error(1)
}

func (m *mockSignalRepo) MarkDelivered(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockSignalRepo) PurgeDelivered(ctx context.Context, retention time.Duration) (int64, error) {
	args := m.Called(ctx, retention)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSignalRepo) WithTx(tx *sqlx.Tx) repository.SignalRepository {
	return m
}

type mockPresence struct {
	mock.Mock
}

func (m *mockPresence) SetInCall(ctx context.Context, userID string, maxCall time.Duration) error {
	args := m.Called(ctx, userID, maxCall)
	return args.Error(0)
}

func (m *mockPresence) ClearInCall(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// fakeNotifier satisfies every publish/subscribe seam in the client's
// dependency graph. Publishes are recorded; subscriptions deliver nothing,
// leaving the poll paths to carry progress, which is what they must do when
// push is silent anyway.
type fakeNotifier struct {
	mu        sync.Mutex
	published []string
}

func (f *fakeNotifier) Publish(ctx context.Context, channel string, event notify.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, channel)
	return nil
}

func (f *fakeNotifier) Subscribe(ctx context.Context, channel string) *notify.Subscription {
	return notify.NewSubscription(make(chan notify.Event), nil)
}

type fakeTxRunner struct{}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

type stubLiveness struct{}

func (stubLiveness) Alive(ctx context.Context, userID string) (bool, error) {
	return true, nil
}

// fakeEngine stands in for the media stack.
type fakeEngine struct {
	mu         sync.Mutex
	remoteKind string
	remoteSets int
	closed     bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{}
}

func (f *fakeEngine) CreateOffer(ctx context.Context) (string, error) {
	return "v=0 offer", nil
}

func (f *fakeEngine) CreateAnswer(ctx context.Context) (string, error) {
	return "v=0 answer", nil
}

func (f *fakeEngine) SetRemoteDescription(ctx context.Context, kind string, sdp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteKind = kind
	f.remoteSets++
	return nil
}

func (f *fakeEngine) AddCandidate(ctx context.Context, candidate signaling.CandidatePayload) error {
	return nil
}

func (f *fakeEngine) OnCandidate(fn func(candidate signaling.CandidatePayload)) {}

func (f *fakeEngine) OnConnectionState(fn func(state signaling.ConnectionState)) {}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeEngine) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeEngine) remote() (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remoteKind, f.remoteSets
}
