package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/voicepair/voicepair-go/internal/signaling"
)

// Engine is the pion-backed media engine for audio calls. It satisfies
// signaling.MediaEngine; the state machine drives it and never touches pion
// types directly.
type Engine struct {
	pc *webrtc.PeerConnection

	mu          sync.Mutex
	onCandidate func(signaling.CandidatePayload)
	onState     func(signaling.ConnectionState)
	closed      bool
}

var _ signaling.MediaEngine = (*Engine)(nil)

// NewEngine builds an audio-only peer connection. stunURLs may be empty, in
// which case only host candidates are gathered.
func NewEngine(stunURLs []string) (*Engine, error) {
	cfg := webrtc.Configuration{}
	if len(stunURLs) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunURLs}}
	}

	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio); err != nil {
		pc.Close()
		return nil, fmt.Errorf("add audio transceiver: %w", err)
	}

	e := &Engine{pc: pc}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		e.mu.Lock()
		fn := e.onCandidate
		e.mu.Unlock()
		if fn != nil {
			fn(signaling.CandidatePayload{
				Candidate:     init.Candidate,
				SDPMid:        init.SDPMid,
				SDPMLineIndex: init.SDPMLineIndex,
			})
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		e.mu.Lock()
		fn := e.onState
		e.mu.Unlock()
		if fn == nil {
			return
		}
		switch state {
		case webrtc.PeerConnectionStateConnected:
			fn(signaling.ConnectionStateConnected)
		case webrtc.PeerConnectionStateDisconnected:
			fn(signaling.ConnectionStateDisconnected)
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			fn(signaling.ConnectionStateFailed)
		}
	})

	return e, nil
}

func (e *Engine) CreateOffer(ctx context.Context) (string, error) {
	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := e.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local offer: %w", err)
	}
	return offer.SDP, nil
}

func (e *Engine) CreateAnswer(ctx context.Context) (string, error) {
	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := e.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local answer: %w", err)
	}
	return answer.SDP, nil
}

func (e *Engine) SetRemoteDescription(ctx context.Context, kind string, sdp string) error {
	desc := webrtc.SessionDescription{SDP: sdp}
	switch kind {
	case "offer":
		desc.Type = webrtc.SDPTypeOffer
	case "answer":
		desc.Type = webrtc.SDPTypeAnswer
	default:
		return fmt.Errorf("unknown description kind %q", kind)
	}
	return e.pc.SetRemoteDescription(desc)
}

func (e *Engine) AddCandidate(ctx context.Context, candidate signaling.CandidatePayload) error {
	return e.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        candidate.SDPMid,
		SDPMLineIndex: candidate.SDPMLineIndex,
	})
}

func (e *Engine) OnCandidate(fn func(signaling.CandidatePayload)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCandidate = fn
}

func (e *Engine) OnConnectionState(fn func(signaling.ConnectionState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onState = fn
}

func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	return e.pc.Close()
}
