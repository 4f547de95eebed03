package model

import "time"

// QueueEntry is a user's open request to be matched.
// At most one waiting entry exists per user at any time (enforced by a
// partial unique index on the queue table).
type QueueEntry struct {
	ID           string      `db:"id" json:"id"`
	UserID       string      `db:"user_id" json:"userId"`
	DurationSecs int         `db:"duration_secs" json:"durationSecs"`
	Status       QueueStatus `db:"status" json:"status"`
	MatchedWith  *string     `db:"matched_with" json:"matchedWith,omitempty"`
	MatchedAt    *time.Time  `db:"matched_at" json:"matchedAt,omitempty"`
	SessionID    *string     `db:"session_id" json:"sessionId,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"createdAt"`
	ExpiresAt    time.Time   `db:"expires_at" json:"expiresAt"`
}

// Matched reports whether this entry has been paired with a partner.
// A bare session reference is not enough; the matchmaker only considers
// an entry matched once both the partner and session are recorded.
func (e *QueueEntry) Matched() bool {
	return e.Status == QueueStatusMatched && e.MatchedWith != nil && e.SessionID != nil
}

type CreateQueueEntryParams struct {
	ID           string
	UserID       string
	DurationSecs int
	ExpiresAt    time.Time
}
