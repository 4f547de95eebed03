package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/voicepair/voicepair-go/internal/model"
)

type QueueRepository interface {
	FindByID(ctx context.Context, id string) (*model.QueueEntry, error)
	// FindOpenByUserID returns the user's waiting or matched entry, if any.
	// Used for the no-op check before enqueueing.
	FindOpenByUserID(ctx context.Context, userID string) (*model.QueueEntry, error)
	Create(ctx context.Context, params model.CreateQueueEntryParams) (*model.QueueEntry, error)
	// FindCandidates returns the oldest waiting entries with the given
	// duration, excluding the requester, capped at limit. FIFO fairness.
	FindCandidates(ctx context.Context, durationSecs int, excludeUserID string, limit int) ([]model.QueueEntry, error)
	// MarkMatched transitions an entry waiting -> matched. The conditional
	// WHERE clause is the cross-process serialization point: it touches zero
	// rows when another process already retired the entry.
	MarkMatched(ctx context.Context, id, partnerID, sessionID string) (int64, error)
	// Cancel marks the user's own waiting entry cancelled. A user never
	// mutates a partner's row.
	Cancel(ctx context.Context, id, userID string) (int64, error)
	MarkExpired(ctx context.Context, id string) error
	// Delete removes a single entry; used to garbage-collect a stale
	// candidate discovered during a scan.
	Delete(ctx context.Context, id string) error
	// DeleteStale purges entries past their expiry plus terminal entries
	// older than the grace period.
	DeleteStale(ctx context.Context, grace time.Duration) (int64, error)
	CountWaitingByDuration(ctx context.Context) (map[int]int, error)
	WithTx(tx *sqlx.Tx) QueueRepository
}

// queueDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type queueDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type queueRepo struct {
	db queueDB
}

func NewQueueRepository(db *sqlx.DB) QueueRepository {
	return &queueRepo{db: db}
}

func (r *queueRepo) WithTx(tx *sqlx.Tx) QueueRepository {
	return &queueRepo{db: tx}
}

func (r *queueRepo) FindByID(ctx context.Context, id string) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	err := r.db.GetContext(ctx, &entry, `SELECT * FROM queue WHERE id = $1`, id)
	return HandleNotFound(&entry, err)
}

func (r *queueRepo) FindOpenByUserID(ctx context.Context, userID string) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	err := r.db.GetContext(ctx, &entry, `
		SELECT * FROM queue
		WHERE user_id = $1
		AND status IN ('waiting', 'matched')
		AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)
	return HandleNotFound(&entry, err)
}

func (r *queueRepo) Create(ctx context.Context, params model.CreateQueueEntryParams) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	err := r.db.GetContext(ctx, &entry, `
		INSERT INTO queue (id, user_id, duration_secs, status, created_at, expires_at)
		VALUES ($1, $2, $3, 'waiting', NOW(), $4)
		RETURNING *
	`, params.ID, params.UserID, params.DurationSecs, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *queueRepo) FindCandidates(ctx context.Context, durationSecs int, excludeUserID string, limit int) ([]model.QueueEntry, error) {
	var entries []model.QueueEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM queue
		WHERE status = 'waiting'
		AND duration_secs = $1
		AND user_id <> $2
		ORDER BY created_at ASC
		LIMIT $3
	`, durationSecs, excludeUserID, limit)
	return entries, err
}

func (r *queueRepo) MarkMatched(ctx context.Context, id, partnerID, sessionID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE queue SET
			status = 'matched',
			matched_with = $2,
			session_id = $3,
			matched_at = $4
		WHERE id = $1 AND status = 'waiting'
	`, id, partnerID, sessionID, time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *queueRepo) Cancel(ctx context.Context, id, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE queue SET status = 'cancelled'
		WHERE id = $1 AND user_id = $2 AND status = 'waiting'
	`, id, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *queueRepo) MarkExpired(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE queue SET status = 'expired'
		WHERE id = $1 AND status = 'waiting'
	`, id)
	return err
}

func (r *queueRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM queue WHERE id = $1`, id)
	return err
}

func (r *queueRepo) DeleteStale(ctx context.Context, grace time.Duration) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM queue
		WHERE (status = 'waiting' AND expires_at < NOW())
		OR (status IN ('matched', 'cancelled', 'expired') AND created_at < $1)
	`, time.Now().Add(-grace))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *queueRepo) CountWaitingByDuration(ctx context.Context) (map[int]int, error) {
	var rows []struct {
		DurationSecs int `db:"duration_secs"`
		Count        int `db:"count"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT duration_secs, COUNT(*) AS count
		FROM queue
		WHERE status = 'waiting' AND expires_at > NOW()
		GROUP BY duration_secs
	`)
	if err != nil {
		return nil, err
	}
	counts := make(map[int]int, len(rows))
	for _, row := range rows {
		counts[row.DurationSecs] = row.Count
	}
	return counts, nil
}
