package match

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/voicepair/voicepair-go/internal/database"
	"github.com/voicepair/voicepair-go/internal/model"
	"github.com/voicepair/voicepair-go/internal/notify"
	"github.com/voicepair/voicepair-go/internal/repository"
)

// Mock queue repository
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

// Mock session repository
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

// fakeTxRunner runs the function without a real transaction. The mocked
// repositories return themselves from WithTx, so the conditional-update
// semantics are exercised through the mocks' return values.
type fakeTxRunner struct{}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

// Mock liveness check
type mockLiveness struct {
	mock.Mock
}

func (m *mockLiveness) Alive(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

// Mock publisher
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, channel string, event notify.Event) error {
	args := m.Called(ctx, channel, event)
	return args.Error(0)
}

// fakeSubscriber hands out subscriptions backed by a caller-owned channel.
type fakeSubscriber struct {
	events chan notify.Event
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{events: make(chan notify.Event, 8)}
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, channel string) *notify.Subscription {
	return notify.NewSubscription(f.events, nil)
}
