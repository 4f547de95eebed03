package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/voicepair/voicepair-go/internal/model"
)

type SignalRepository interface {
	Create(ctx context.Context, params model.CreateSignalParams) (*model.SignalMessage, error)
	// FindUndelivered returns a receiver's unconsumed messages for one
	// session, oldest first. No ordering is guaranteed between insert and
	// read across processes; the state machine tolerates reordering.
	FindUndelivered(ctx context.Context, sessionID, receiverID string) ([]model.SignalMessage, error)
	MarkDelivered(ctx context.Context, id string) error
	// PurgeDelivered removes consumed messages past the retention window.
	PurgeDelivered(ctx context.Context, retention time.Duration) (int64, error)
	WithTx(tx *sqlx.Tx) SignalRepository
}

// signalDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type signalDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type signalRepo struct {
	db signalDB
}

func NewSignalRepository(db *sqlx.DB) SignalRepository {
	return &signalRepo{db: db}
}

func (r *signalRepo) WithTx(tx *sqlx.Tx) SignalRepository {
	return &signalRepo{db: tx}
}

func (r *signalRepo) Create(ctx context.Context, params model.CreateSignalParams) (*model.SignalMessage, error) {
	var msg model.SignalMessage
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO signals (id, session_id, sender_id, receiver_id, kind, payload, created_at, delivered)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), FALSE)
		RETURNING *
	`, params.ID, params.SessionID, params.SenderID, params.ReceiverID, params.Kind, params.Payload)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *signalRepo) FindUndelivered(ctx context.Context, sessionID, receiverID string) ([]model.SignalMessage, error) {
	var msgs []model.SignalMessage
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM signals
		WHERE session_id = $1 AND receiver_id = $2 AND delivered = FALSE
		ORDER BY created_at ASC
	`, sessionID, receiverID)
	return msgs, err
}

func (r *signalRepo) MarkDelivered(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE signals SET delivered = TRUE WHERE id = $1
	`, id)
	return err
}

func (r *signalRepo) PurgeDelivered(ctx context.Context, retention time.Duration) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM signals
		WHERE delivered = TRUE AND created_at < $1
	`, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
