package model

// QueueStatus is the lifecycle state of a match request.
type QueueStatus string

const (
	QueueStatusWaiting   QueueStatus = "waiting"
	QueueStatusMatched   QueueStatus = "matched"
	QueueStatusCancelled QueueStatus = "cancelled"
	QueueStatusExpired   QueueStatus = "expired"
)

// SessionStatus is the lifecycle state of a call session.
// Transitions are monotonic: connecting -> active -> ended,
// connecting -> failed, or active -> ended. Never backward.
type SessionStatus string

const (
	SessionStatusConnecting SessionStatus = "connecting"
	SessionStatusActive     SessionStatus = "active"
	SessionStatusEnded      SessionStatus = "ended"
	SessionStatusFailed     SessionStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusEnded || s == SessionStatusFailed
}

// SignalKind is the type of a handshake message.
type SignalKind string

const (
	SignalKindOffer     SignalKind = "offer"
	SignalKindAnswer    SignalKind = "answer"
	SignalKindCandidate SignalKind = "candidate"
)

// Non-user values for sessions.ended_by.
const (
	EndedBySystem  = "system"
	EndedByTimeout = "timeout"
)
