package model

import (
	"encoding/json"
	"time"
)

// SignalMessage is one handshake message between the two participants of a
// session. Rows are append-only: created by the sender, marked delivered by
// the receiver, never otherwise mutated.
type SignalMessage struct {
	ID         string          `db:"id" json:"id"`
	SessionID  string          `db:"session_id" json:"sessionId"`
	SenderID   string          `db:"sender_id" json:"senderId"`
	ReceiverID string          `db:"receiver_id" json:"receiverId"`
	Kind       SignalKind      `db:"kind" json:"kind"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
	Delivered  bool            `db:"delivered" json:"delivered"`
}

type CreateSignalParams struct {
	ID         string
	SessionID  string
	SenderID   string
	ReceiverID string
	Kind       SignalKind
	Payload    json.RawMessage
}
