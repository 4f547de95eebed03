package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voicepair/voicepair-go/internal/config"
	"github.com/voicepair/voicepair-go/internal/repository"
)

// CleanupJob is the self-healing backstop: it purges queue entries left
// behind by crashed or abandoned clients, fails sessions stuck in
// connecting, and trims consumed signals. Any number of daemons may run it;
// every operation is idempotent.
type CleanupJob struct {
	queueRepo        repository.QueueRepository
	sessionRepo      repository.SessionRepository
	signalRepo       repository.SignalRepository
	interval         time.Duration
	handshakeTimeout time.Duration
	done             chan struct{}
}

func NewCleanupJob(
	queueRepo repository.QueueRepository,
	sessionRepo repository.SessionRepository,
	signalRepo repository.SignalRepository,
	interval time.Duration,
	handshakeTimeout time.Duration,
) *CleanupJob {
	return &CleanupJob{
		queueRepo:        queueRepo,
		sessionRepo:      sessionRepo,
		signalRepo:       signalRepo,
		interval:         interval,
		handshakeTimeout: handshakeTimeout,
		done:             make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	j.runCleanup(ctx, "stale queue entries", func(ctx context.Context) (int64, error) {
		return j.queueRepo.DeleteStale(ctx, config.MatchedGracePeriod)
	})
	j.runCleanup(ctx, "stuck connecting sessions", func(ctx context.Context) (int64, error) {
		return j.sessionRepo.FailStaleConnecting(ctx, j.handshakeTimeout)
	})
	j.runCleanup(ctx, "closed sessions", func(ctx context.Context) (int64, error) {
		return j.sessionRepo.PurgeClosed(ctx, config.SessionRetention)
	})
	j.runCleanup(ctx, "delivered signals", func(ctx context.Context) (int64, error) {
		return j.signalRepo.PurgeDelivered(ctx, config.SignalRetention)
	})
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
