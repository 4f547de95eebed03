package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/voicepair/voicepair-go/internal/redis"
)

// Tracker records participant liveness in Redis. A user is considered live
// while their last-active key exists; the key carries a TTL equal to the
// freshness window, so staleness needs no clock comparison on read.
type Tracker struct {
	redis  *redisclient.Client
	window time.Duration
}

func NewTracker(redisClient *redisclient.Client, window time.Duration) *Tracker {
	return &Tracker{redis: redisClient, window: window}
}

// Touch refreshes the user's last-active mark.
func (t *Tracker) Touch(ctx context.Context, userID string) error {
	return t.redis.Set(ctx, redisclient.LastActiveKey(userID), time.Now().Unix(), t.window).Err()
}

// Alive reports whether the user was active within the freshness window and
// is not already in a call. Matchmaker candidates failing this check are
// skipped and garbage-collected.
func (t *Tracker) Alive(ctx context.Context, userID string) (bool, error) {
	fresh, err := t.redis.Exists(ctx, redisclient.LastActiveKey(userID)).Result()
	if err != nil {
		return false, err
	}
	if fresh == 0 {
		return false, nil
	}
	inCall, err := t.redis.Exists(ctx, redisclient.InCallKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return inCall == 0, nil
}

// SetInCall marks the user busy for at most maxCall; the TTL is a backstop
// against crashed clients that never clear the flag.
func (t *Tracker) SetInCall(ctx context.Context, userID string, maxCall time.Duration) error {
	return t.redis.Set(ctx, redisclient.InCallKey(userID), 1, maxCall).Err()
}

func (t *Tracker) ClearInCall(ctx context.Context, userID string) error {
	return t.redis.Del(ctx, redisclient.InCallKey(userID)).Err()
}

// Heartbeat refreshes the last-active mark until ctx is cancelled.
// Refresh happens at a third of the window so a single missed beat does not
// read as staleness.
func (t *Tracker) Heartbeat(ctx context.Context, userID string) {
	interval := t.window / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := t.Touch(ctx, userID); err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("presence touch failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Touch(ctx, userID); err != nil {
				log.Warn().Err(err).Str("userId", userID).Msg("presence touch failed")
			}
		}
	}
}
