package call

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/akorolev/Dial/internal/domain"
	"github.com/akorolev/Dial/internal/signal"
)

// receiveOffer validates an inbound OFFER and parks it as a pending
// offer. Several pending offers may coexist; none of them occupies the
// line until accepted. A busy line is answered with BUSY and creates no
// state; validation failures are answered with FAILED.
func (c *Coordinator) receiveOffer(env signal.Envelope) {
	if c.line != nil {
		log.Info().Str("module", "call").Str("sender", string(env.Sender)).Msg("offer while busy")
		c.reply(env, signal.CategoryBusy)
		return
	}
	sid, err := env.CallID()
	if err != nil {
		c.reply(env, signal.CategoryFailed)
		return
	}
	if _, dup := c.pending[sid]; dup {
		log.Debug().Str("module", "call").Str("sid", sid.String()).Msg("duplicate offer")
		return
	}
	remote, err := signal.DecodeDescription(env.Payload)
	if err != nil {
		log.Warn().Err(err).Str("module", "call").Str("sid", sid.String()).Msg("offer payload invalid")
		c.reply(env, signal.CategoryFailed)
		return
	}
	peer, ok := c.deps.Directory.Resolve(env.Sender)
	if !ok {
		log.Warn().Str("module", "call").Str("sender", string(env.Sender)).Msg("offer from unknown peer")
		c.reply(env, signal.CategoryFailed)
		return
	}

	incoming := domain.NewCall(sid, c.deps.Self, env.Sender, domain.Incoming, c.deps.Clock.Now())
	c.pending[sid] = &pendingOffer{call: incoming, remote: remote}
	log.Info().Str("module", "call").Str("sid", sid.String()).
		Str("peer", string(env.Sender)).Int("pending", len(c.pending)).Msg("incoming offer")

	if err := c.deps.Telephony.ReportIncoming(c.runCtx, sid, *peer); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("sid", sid.String()).Msg("report incoming failed")
		if errors.Is(err, domain.ErrPermissionDenied) {
			c.deps.Events.PromptMicrophoneAccess()
		}
		c.report(sid, fmt.Errorf("%w: %w", domain.ErrTelephonyReporting, err))
		delete(c.pending, sid)
		delete(c.candidates, sid)
		c.reply(env, signal.CategoryDecline)
		return
	}
	c.deps.Events.IncomingCall(sid, *peer)
}

// Accept promotes a pending offer to the active call: the remote
// description is applied, a local answer is constructed and sent, and
// any candidates queued for the session are flushed in arrival order.
func (c *Coordinator) Accept(ctx context.Context, sid uuid.UUID) error {
	return c.do(ctx, func() error { return c.acceptOffer(sid) })
}

func (c *Coordinator) acceptOffer(sid uuid.UUID) error {
	po, ok := c.pending[sid]
	if !ok {
		return domain.ErrInvalidSessionID
	}
	if c.line != nil {
		return domain.ErrBusy
	}
	delete(c.pending, sid)
	log.Info().Str("module", "call").Str("sid", sid.String()).Msg("accepting offer")

	ms, err := c.newSession(sid)
	if err != nil {
		wrapped := fmt.Errorf("%w: %w", domain.ErrMediaClientFailure, err)
		c.failPendingPromotion(po, wrapped)
		return wrapped
	}
	c.line = &line{call: po.call, media: ms, state: StateRinging}

	if err := ms.SetRemoteDescription(po.remote); err != nil {
		wrapped := fmt.Errorf("%w: %w", domain.ErrDescriptionApplication, err)
		c.failActive(wrapped)
		return wrapped
	}
	c.line.remoteApplied = true

	answer, err := ms.CreateAnswer(c.runCtx)
	if err != nil {
		wrapped := fmt.Errorf("%w: %w", domain.ErrDescriptionConstruct, err)
		c.failActive(wrapped)
		return wrapped
	}
	payload, err := signal.EncodeDescription(answer)
	if err != nil {
		wrapped := fmt.Errorf("%w: %w", domain.ErrDescriptionConstruct, err)
		c.failActive(wrapped)
		return wrapped
	}

	c.flushCandidates(sid)
	c.send(signal.Envelope{
		Category:      signal.CategoryAnswer,
		CorrelationID: sid.String(),
		Sender:        c.deps.Self,
		Recipient:     po.call.Peer,
		Payload:       payload,
		CreatedAt:     c.deps.Clock.Now(),
	})
	c.setState(StateConnecting)
	c.deps.Telephony.ReportConnecting(sid)
	return nil
}

// failPendingPromotion handles an accept that failed before a line
// existed: FAILED goes to the peer, a completion is recorded, and no
// state survives.
func (c *Coordinator) failPendingPromotion(po *pendingOffer, cause error) {
	sid := po.call.ID
	delete(c.candidates, sid)
	c.send(signal.Envelope{
		Category:      signal.CategoryFailed,
		CorrelationID: sid.String(),
		Sender:        c.deps.Self,
		Recipient:     po.call.Peer,
		CreatedAt:     c.deps.Clock.Now(),
	})
	c.report(sid, cause)
	read := domain.CompletionRead(po.call.Direction, string(signal.CategoryFailed), false)
	c.recordCompletion(po.call, signal.CategoryFailed, read)
	c.deps.Telephony.ReportEnded(sid, string(signal.CategoryFailed))
	c.deps.Events.CallEnded(sid, signal.CategoryFailed, cause)
}
