package core

import (
	"context"

	"github.com/google/uuid"

	"github.com/akorolev/Dial/internal/domain"
)

// Telephony is the capability set the coordinator invokes against the
// host call system. Two variants exist: a host-integrated one that
// delegates to the operating system's native call UI, and an in-app
// fallback that renders everything through Events. The coordinator is
// agnostic to which one is live.
//
// Request* methods return only after the host has confirmed or rejected
// the action; confirmation is bounded in time by the implementation.
// Report* notifications never fail the call.
type Telephony interface {
	RequestStart(ctx context.Context, sid uuid.UUID, peer domain.PeerID) error
	RequestEnd(ctx context.Context, sid uuid.UUID) error
	RequestMute(ctx context.Context, sid uuid.UUID, muted bool) error
	ReportIncoming(ctx context.Context, sid uuid.UUID, peer domain.Peer) error
	ReportConnecting(sid uuid.UUID)
	ReportConnected(sid uuid.UUID)
	ReportEnded(sid uuid.UUID, reason string)
}

// ActionSink receives user actions originating inside the telephony
// surface (the native in-call screen, or in-app call UI). The
// coordinator implements it; telephony variants call it, never the
// other way around.
type ActionSink interface {
	EndRequested(sid uuid.UUID)
	MuteRequested(sid uuid.UUID, muted bool)
}
