// Package telephony provides the two implementations of the
// core.Telephony capability set: a host-integrated variant that
// delegates to the operating system's native call service through a
// Bridge, and an in-app fallback that manages the audio session and
// call surface entirely inside the application.
//
// The variant is picked per call by a pure predicate over host
// availability and microphone permission; the coordinator never knows
// which one is live.
package telephony

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/akorolev/Dial/internal/core"
	"github.com/akorolev/Dial/internal/domain"
)

// UseHost is the selection predicate: the native call service is used
// only when it is reachable and the user has granted microphone access.
func UseHost(hostAvailable bool, mic core.Permission) bool {
	return hostAvailable && mic == core.PermissionGranted
}

// Selector routes each call to one variant, chosen when the call first
// touches telephony (request-start or report-incoming) and sticky until
// the call ends.
type Selector struct {
	Host     *Host
	Fallback *InApp
	Perms    core.Permissions

	mu     sync.Mutex
	chosen map[uuid.UUID]core.Telephony
}

var _ core.Telephony = (*Selector)(nil)

func NewSelector(host *Host, fallback *InApp, perms core.Permissions) *Selector {
	return &Selector{
		Host:     host,
		Fallback: fallback,
		Perms:    perms,
		chosen:   make(map[uuid.UUID]core.Telephony),
	}
}

// pick binds sid to a variant. Idempotent for the lifetime of the call.
func (s *Selector) pick(sid uuid.UUID) core.Telephony {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.chosen[sid]; ok {
		return t
	}
	var t core.Telephony = s.Fallback
	if s.Host != nil && UseHost(s.Host.Available(), s.Perms.Microphone()) {
		t = s.Host
	}
	s.chosen[sid] = t
	log.Debug().Str("module", "telephony").Str("sid", sid.String()).
		Bool("host", t == core.Telephony(s.Host)).Msg("variant selected")
	return t
}

func (s *Selector) bound(sid uuid.UUID) core.Telephony {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.chosen[sid]; ok {
		return t
	}
	return s.Fallback
}

func (s *Selector) release(sid uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chosen, sid)
}

func (s *Selector) RequestStart(ctx context.Context, sid uuid.UUID, peer domain.PeerID) error {
	return s.pick(sid).RequestStart(ctx, sid, peer)
}

func (s *Selector) RequestEnd(ctx context.Context, sid uuid.UUID) error {
	return s.bound(sid).RequestEnd(ctx, sid)
}

func (s *Selector) RequestMute(ctx context.Context, sid uuid.UUID, muted bool) error {
	return s.bound(sid).RequestMute(ctx, sid, muted)
}

func (s *Selector) ReportIncoming(ctx context.Context, sid uuid.UUID, peer domain.Peer) error {
	return s.pick(sid).ReportIncoming(ctx, sid, peer)
}

func (s *Selector) ReportConnecting(sid uuid.UUID) { s.bound(sid).ReportConnecting(sid) }

func (s *Selector) ReportConnected(sid uuid.UUID) { s.bound(sid).ReportConnected(sid) }

func (s *Selector) ReportEnded(sid uuid.UUID, reason string) {
	s.bound(sid).ReportEnded(sid, reason)
	s.release(sid)
}
