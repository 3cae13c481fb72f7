package telephony

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/akorolev/Dial/internal/core"
	"github.com/akorolev/Dial/internal/domain"
)

// AudioSession is the application-owned audio route used when no host
// call service is available. Activation is idempotent per call.
type AudioSession interface {
	Activate(ctx context.Context) error
	Deactivate()
}

// NopAudioSession satisfies AudioSession where no audio arbitration
// exists (headless agents, tests).
type NopAudioSession struct{}

func (NopAudioSession) Activate(context.Context) error { return nil }
func (NopAudioSession) Deactivate()                    {}

// InApp is the fallback telephony variant: the application presents
// its own call surface and owns the audio session directly. Incoming
// reports are gated on microphone permission, which is the one way
// this variant can refuse a call.
type InApp struct {
	audio AudioSession
	perms core.Permissions

	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

var _ core.Telephony = (*InApp)(nil)

func NewInApp(audio AudioSession, perms core.Permissions) *InApp {
	if audio == nil {
		audio = NopAudioSession{}
	}
	return &InApp{
		audio:  audio,
		perms:  perms,
		active: make(map[uuid.UUID]struct{}),
	}
}

func (a *InApp) activate(ctx context.Context, sid uuid.UUID) error {
	a.mu.Lock()
	_, already := a.active[sid]
	a.mu.Unlock()
	if already {
		return nil
	}
	// Latch the sid only once the route is actually live, so a failed
	// activation can be retried and never pairs with a Deactivate.
	if err := a.audio.Activate(ctx); err != nil {
		return err
	}
	a.mu.Lock()
	a.active[sid] = struct{}{}
	a.mu.Unlock()
	return nil
}

func (a *InApp) deactivate(sid uuid.UUID) {
	a.mu.Lock()
	_, was := a.active[sid]
	delete(a.active, sid)
	empty := len(a.active) == 0
	a.mu.Unlock()
	if was && empty {
		a.audio.Deactivate()
	}
}

func (a *InApp) RequestStart(ctx context.Context, sid uuid.UUID, peer domain.PeerID) error {
	log.Info().Str("module", "telephony").Str("sid", sid.String()).
		Str("peer", string(peer)).Msg("in-app call start")
	return a.activate(ctx, sid)
}

func (a *InApp) RequestEnd(_ context.Context, sid uuid.UUID) error {
	a.deactivate(sid)
	return nil
}

// RequestMute always succeeds in-app; the media engine owns the actual
// microphone track.
func (a *InApp) RequestMute(context.Context, uuid.UUID, bool) error { return nil }

func (a *InApp) ReportIncoming(_ context.Context, sid uuid.UUID, peer domain.Peer) error {
	if a.perms.Microphone() == core.PermissionDenied {
		return domain.ErrPermissionDenied
	}
	log.Info().Str("module", "telephony").Str("sid", sid.String()).
		Str("peer", string(peer.ID)).Msg("in-app incoming call")
	return nil
}

func (a *InApp) ReportConnecting(uuid.UUID) {}

func (a *InApp) ReportConnected(sid uuid.UUID) {
	// Connected implies the line is live even if the call was accepted
	// before a start request ever activated audio.
	_ = a.activate(context.Background(), sid)
}

func (a *InApp) ReportEnded(sid uuid.UUID, reason string) {
	log.Info().Str("module", "telephony").Str("sid", sid.String()).
		Str("reason", reason).Msg("in-app call ended")
	a.deactivate(sid)
}
