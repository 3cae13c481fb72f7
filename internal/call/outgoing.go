package call

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/akorolev/Dial/internal/core"
	"github.com/akorolev/Dial/internal/domain"
	"github.com/akorolev/Dial/internal/signal"
)

// Start places an outgoing call. It fails with ErrBusy while the line
// is occupied, ErrNetworkUnavailable while the transport is down, and
// ErrPermissionDenied without microphone access. On success the OFFER
// is on its way and the unanswered-call timer is armed.
func (c *Coordinator) Start(ctx context.Context, peer domain.PeerID) (uuid.UUID, error) {
	var sid uuid.UUID
	err := c.do(ctx, func() error {
		id, err := c.startOutgoing(peer)
		sid = id
		return err
	})
	return sid, err
}

func (c *Coordinator) startOutgoing(peer domain.PeerID) (uuid.UUID, error) {
	if c.line != nil {
		return uuid.Nil, domain.ErrBusy
	}
	if !c.deps.Transport.Connected() {
		return uuid.Nil, domain.ErrNetworkUnavailable
	}
	if c.deps.Perms.Microphone() == core.PermissionDenied {
		return uuid.Nil, domain.ErrPermissionDenied
	}
	if _, ok := c.deps.Directory.Resolve(peer); !ok {
		return uuid.Nil, domain.ErrUnknownPeer
	}

	sid := uuid.New()
	now := c.deps.Clock.Now()
	outgoing := domain.NewCall(sid, c.deps.Self, peer, domain.Outgoing, now)
	log.Info().Str("module", "call").Str("sid", sid.String()).
		Str("peer", string(peer)).Msg("starting outgoing call")

	if err := c.deps.Telephony.RequestStart(c.runCtx, sid, peer); err != nil {
		wrapped := fmt.Errorf("%w: %w", domain.ErrTelephonyReporting, err)
		c.report(sid, wrapped)
		return uuid.Nil, wrapped
	}

	ms, err := c.newSession(sid)
	if err != nil {
		return uuid.Nil, c.abortStart(outgoing, fmt.Errorf("%w: %w", domain.ErrMediaClientFailure, err))
	}
	c.line = &line{call: outgoing, media: ms, state: StateDialing}
	c.armRingTimer(sid)

	offer, err := ms.CreateOffer(c.runCtx)
	if err != nil {
		return uuid.Nil, c.abortStart(outgoing, fmt.Errorf("%w: %w", domain.ErrDescriptionConstruct, err))
	}
	payload, err := signal.EncodeDescription(offer)
	if err != nil {
		return uuid.Nil, c.abortStart(outgoing, fmt.Errorf("%w: %w", domain.ErrDescriptionConstruct, err))
	}

	c.send(signal.Envelope{
		Category:  signal.CategoryOffer,
		SessionID: sid.String(),
		Sender:    c.deps.Self,
		Recipient: peer,
		Payload:   payload,
		CreatedAt: now,
	})
	return sid, nil
}

// abortStart fails an outgoing call before the peer could have learned
// about it: no remote message, local completion only, line back to idle.
func (c *Coordinator) abortStart(outgoing *domain.Call, cause error) error {
	sid := outgoing.ID
	c.disarmRingTimer()
	if c.line != nil && c.line.call.ID == sid {
		c.setState(StateTerminating)
		c.line.media.Close()
		c.clearLine(sid)
	}
	c.recordCompletion(outgoing, signal.CategoryFailed, true)
	c.deps.Telephony.ReportEnded(sid, "failed")
	c.deps.Events.CallEnded(sid, signal.CategoryFailed, cause)
	c.report(sid, cause)
	return cause
}

// onRingTimeout fires when an outgoing call has gone unanswered. A fire
// for anything but the still-unanswered active outgoing call is stale
// and must mutate nothing.
func (c *Coordinator) onRingTimeout(sid uuid.UUID) {
	ln := c.active(sid)
	if ln == nil || ln.call.Direction != domain.Outgoing || ln.call.AnswerReceived {
		log.Debug().Str("module", "call").Str("sid", sid.String()).Msg("stale ring timer fire")
		return
	}
	log.Info().Str("module", "call").Str("sid", sid.String()).Msg("outgoing call unanswered")

	c.send(signal.Envelope{
		Category:      signal.CategoryCancel,
		CorrelationID: sid.String(),
		Sender:        c.deps.Self,
		Recipient:     ln.call.Peer,
		CreatedAt:     c.deps.Clock.Now(),
	})
	// An unanswered timeout stays unread so the missed attempt is
	// surfaced in the conversation, unlike other outgoing completions.
	c.teardownActive(signal.CategoryCancel, false, nil)
}
