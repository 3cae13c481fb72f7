// Package rtc backs core.MediaEngine with pion/webrtc. One audio
// PeerConnection per call attempt, trickle ICE, mute via sender track
// replacement.
package rtc

import (
	"context"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/akorolev/Dial/internal/core"
)

type Engine struct {
	cfg webrtc.Configuration
}

var _ core.MediaEngine = (*Engine)(nil)

// DefaultConfig is host + Google STUN, matching a vanilla 1:1 setup.
func DefaultConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

func NewEngine(stunServers []string) *Engine {
	cfg := DefaultConfig()
	if len(stunServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) NewSession(_ context.Context, sid uuid.UUID) (core.MediaSession, error) {
	pc, err := webrtc.NewPeerConnection(e.cfg)
	if err != nil {
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "dial",
	)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}

	s := &Session{pc: pc, sid: sid, track: track, sender: sender}
	s.bind()
	return s, nil
}
