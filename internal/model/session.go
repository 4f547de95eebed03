package model

import "time"

// Session is an established pairing between two participants for one call.
// Rows are never deleted while a call could still reference them; closed
// sessions remain as an audit trail until the cleanup job purges them.
type Session struct {
	ID                  string        `db:"id" json:"id"`
	User1ID             string        `db:"user1_id" json:"user1Id"`
	User2ID             string        `db:"user2_id" json:"user2Id"`
	Status              SessionStatus `db:"status" json:"status"`
	PlannedDurationSecs int           `db:"planned_duration_secs" json:"plannedDurationSecs"`
	CreatedAt           time.Time     `db:"created_at" json:"createdAt"`
	StartedAt           *time.Time    `db:"started_at" json:"startedAt,omitempty"`
	EndedAt             *time.Time    `db:"ended_at" json:"endedAt,omitempty"`
	EndedBy             *string       `db:"ended_by" json:"endedBy,omitempty"`
}

// PartnerOf returns the other participant's id, or "" if userID is not a
// participant of this session.
func (s *Session) PartnerOf(userID string) string {
	switch userID {
	case s.User1ID:
		return s.User2ID
	case s.User2ID:
		return s.User1ID
	}
	return ""
}

// Initiator returns the participant responsible for creating the offer.
// It is the same side that created the session row: the lexicographically
// smaller user id.
func (s *Session) Initiator() string {
	if s.User1ID < s.User2ID {
		return s.User1ID
	}
	return s.User2ID
}

// Has reports whether userID participates in this session.
func (s *Session) Has(userID string) bool {
	return userID == s.User1ID || userID == s.User2ID
}

type CreateSessionParams struct {
	ID                  string
	User1ID             string
	User2ID             string
	PlannedDurationSecs int
}
