package core

import (
	"context"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// MediaState is the connection-state report from a media session.
type MediaState int

const (
	MediaConnecting MediaState = iota
	MediaConnected
	MediaFailed
	MediaClosed
)

func (s MediaState) String() string {
	switch s {
	case MediaConnecting:
		return "connecting"
	case MediaConnected:
		return "connected"
	case MediaFailed:
		return "failed"
	default:
		return "closed"
	}
}

// MediaEngine builds one media session per call attempt.
type MediaEngine interface {
	NewSession(ctx context.Context, sid uuid.UUID) (MediaSession, error)
}

// MediaSession drives the media negotiation for one call.
// Callback setters must be invoked before the first negotiation call;
// callbacks fire on engine-owned goroutines, so consumers re-dispatch
// before touching shared state.
type MediaSession interface {
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	SetMuted(muted bool) error
	// Close should stop all underlying media resources.
	Close()
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(fn func(webrtc.ICECandidateInit))
	// OnStateChange sets a callback for connection-state transitions.
	OnStateChange(fn func(MediaState))
}
