package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/voicepair/voicepair-go/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// FindOpenByUserID returns the user's connecting or active session, if any.
	FindOpenByUserID(ctx context.Context, userID string) (*model.Session, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	// MarkActive transitions connecting -> active and stamps started_at.
	// Touches zero rows if the session is no longer connecting.
	MarkActive(ctx context.Context, id string) (int64, error)
	// MarkEnded closes a connecting or active session. endedBy is a user id,
	// "timeout" or "system". Touches zero rows on an already-closed session,
	// keeping transitions monotonic.
	MarkEnded(ctx context.Context, id, endedBy string) (int64, error)
	MarkFailed(ctx context.Context, id string) (int64, error)
	// FailStaleConnecting fails sessions stuck in connecting longer than maxAge.
	FailStaleConnecting(ctx context.Context, maxAge time.Duration) (int64, error)
	// PurgeClosed deletes terminal sessions older than the retention window.
	PurgeClosed(ctx context.Context, retention time.Duration) (int64, error)
	CountByStatus(ctx context.Context) (map[model.SessionStatus]int, error)
	WithTx(tx *sqlx.Tx) SessionRepository
}

// sessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db sessionDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `SELECT * FROM sessions WHERE id = $1`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindOpenByUserID(ctx context.Context, userID string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions
		WHERE (user1_id = $1 OR user2_id = $1)
		AND status IN ('connecting', 'active')
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO sessions (id, user1_id, user2_id, status, planned_duration_secs, created_at)
		VALUES ($1, $2, $3, 'connecting', $4, NOW())
		RETURNING *
	`, params.ID, params.User1ID, params.User2ID, params.PlannedDurationSecs)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) MarkActive(ctx context.Context, id string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'active',
			started_at = $2
		WHERE id = $1 AND status = 'connecting'
	`, id, time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) MarkEnded(ctx context.Context, id, endedBy string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'ended',
			ended_at = $2,
			ended_by = $3
		WHERE id = $1 AND status IN ('connecting', 'active')
	`, id, time.Now(), endedBy)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) MarkFailed(ctx context.Context, id string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'failed',
			ended_at = $2
		WHERE id = $1 AND status = 'connecting'
	`, id, time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) FailStaleConnecting(ctx context.Context, maxAge time.Duration) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'failed',
			ended_at = NOW()
		WHERE status = 'connecting' AND created_at < $1
	`, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) PurgeClosed(ctx context.Context, retention time.Duration) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE status IN ('ended', 'failed') AND ended_at < $1
	`, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) CountByStatus(ctx context.Context) (map[model.SessionStatus]int, error) {
	var rows []struct {
		Status model.SessionStatus `db:"status"`
		Count  int                 `db:"count"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT status, COUNT(*) AS count FROM sessions GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	counts := make(map[model.SessionStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
