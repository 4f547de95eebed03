package signaling

import "context"

// ConnectionState is the media engine's view of the peer connection.
type ConnectionState int

const (
	ConnectionStateNew ConnectionState = iota
	ConnectionStateConnected
	ConnectionStateDisconnected
	ConnectionStateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateConnected:
		return "connected"
	case ConnectionStateDisconnected:
		return "disconnected"
	case ConnectionStateFailed:
		return "failed"
	default:
		return "new"
	}
}

// DescriptionPayload carries an offer or answer SDP.
type DescriptionPayload struct {
	SDP string `json:"sdp"`
}

// CandidatePayload carries one ICE candidate.
type CandidatePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// MediaEngine is the real-time media stack the state machine drives. The
// core negotiates and relays handshake messages; it does not implement
// media transport. Implementations must be safe for use from the machine's
// goroutine plus their own internal callbacks.
type MediaEngine interface {
	// CreateOffer produces the local offer SDP and sets it as the local
	// description.
	CreateOffer(ctx context.Context) (string, error)
	// CreateAnswer produces the local answer SDP and sets it as the local
	// description. Valid only after SetRemoteDescription with an offer.
	CreateAnswer(ctx context.Context) (string, error)
	// SetRemoteDescription applies the peer's offer or answer.
	SetRemoteDescription(ctx context.Context, kind string, sdp string) error
	// AddCandidate applies one remote ICE candidate. Valid only after a
	// remote description is set.
	AddCandidate(ctx context.Context, candidate CandidatePayload) error
	// OnCandidate registers the callback invoked for each locally discovered
	// candidate. Must be registered before CreateOffer/CreateAnswer.
	OnCandidate(fn func(candidate CandidatePayload))
	// OnConnectionState registers the callback for connection outcome events.
	OnConnectionState(fn func(state ConnectionState))
	// Close releases local media resources. Idempotent; called on every exit
	// path, including error paths.
	Close() error
}
