package rtc

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/akorolev/Dial/internal/core"
)

// Session wraps one PeerConnection. Callbacks fire on pion goroutines;
// consumers re-dispatch before touching their own state.
type Session struct {
	pc     *webrtc.PeerConnection
	sid    uuid.UUID
	track  *webrtc.TrackLocalStaticSample
	sender *webrtc.RTPSender

	mu      sync.Mutex
	onICE   func(webrtc.ICECandidateInit)
	onState func(core.MediaState)
	closed  bool
}

var _ core.MediaSession = (*Session)(nil)

func (s *Session) bind() {
	s.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		s.mu.Lock()
		fn := s.onICE
		s.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	s.pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", s.sid.String()).
			Str("peer_connection_state", st.String()).Msg("peer state")
		var mapped core.MediaState
		switch st {
		case webrtc.PeerConnectionStateConnecting:
			mapped = core.MediaConnecting
		case webrtc.PeerConnectionStateConnected:
			mapped = core.MediaConnected
		case webrtc.PeerConnectionStateFailed:
			mapped = core.MediaFailed
		case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			mapped = core.MediaClosed
		default:
			return
		}
		s.mu.Lock()
		fn := s.onState
		s.mu.Unlock()
		if fn != nil {
			fn(mapped)
		}
	})
}

func (s *Session) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	s.mu.Lock()
	s.onICE = fn
	s.mu.Unlock()
}

func (s *Session) OnStateChange(fn func(core.MediaState)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

func (s *Session) CreateOffer(context.Context) (webrtc.SessionDescription, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (s *Session) CreateAnswer(context.Context) (webrtc.SessionDescription, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (s *Session) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return s.pc.SetRemoteDescription(desc)
}

func (s *Session) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return s.pc.AddICECandidate(ci)
}

// SetMuted stops or resumes the outbound audio by swapping the sender
// track; the negotiated media section stays in place.
func (s *Session) SetMuted(muted bool) error {
	if muted {
		return s.sender.ReplaceTrack(nil)
	}
	return s.sender.ReplaceTrack(s.track)
}

func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	// Drop callbacks so late pion events after teardown go nowhere.
	s.onICE = nil
	s.onState = nil
	s.mu.Unlock()

	if err := s.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("sid", s.sid.String()).Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Str("sid", s.sid.String()).Msg("closed")
	}
}
