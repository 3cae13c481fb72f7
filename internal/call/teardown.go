package call

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/akorolev/Dial/internal/domain"
	"github.com/akorolev/Dial/internal/signal"
)

// End terminates the session named by sid: the active call if it is
// one, otherwise a pending offer. The outbound terminal category is
// classified by media state (END once connected, CANCEL for an
// unconnected outgoing call, DECLINE for an unconnected incoming one).
func (c *Coordinator) End(ctx context.Context, sid uuid.UUID) error {
	return c.do(ctx, func() error { return c.endSession(sid, true) })
}

func (c *Coordinator) endSession(sid uuid.UUID, userInitiated bool) error {
	if ln := c.active(sid); ln != nil {
		c.endActive(userInitiated)
		return nil
	}
	if _, ok := c.pending[sid]; ok {
		c.declinePending(sid, userInitiated)
		return nil
	}
	return domain.ErrInvalidSessionID
}

func (c *Coordinator) endActive(userInitiated bool) {
	ln := c.line
	sid := ln.call.ID

	category := signal.CategoryEnd
	if ln.call.ConnectedAt == nil {
		if ln.call.Direction == domain.Outgoing {
			category = signal.CategoryCancel
		} else {
			category = signal.CategoryDecline
		}
	}
	log.Info().Str("module", "call").Str("sid", sid.String()).
		Str("category", string(category)).Msg("ending active call")

	if err := c.deps.Telephony.RequestEnd(c.runCtx, sid); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("sid", sid.String()).Msg("telephony end request")
		c.report(sid, err)
	}
	c.send(signal.Envelope{
		Category:      category,
		CorrelationID: sid.String(),
		Sender:        c.deps.Self,
		Recipient:     ln.call.Peer,
		CreatedAt:     c.deps.Clock.Now(),
	})
	read := domain.CompletionRead(ln.call.Direction, string(category), userInitiated)
	c.teardownActive(category, read, nil)
}

// failActive tears the active call down after a local failure the peer
// already has session knowledge of: FAILED goes out, a completion is
// recorded, and the error surfaces to the UI and the reporter.
func (c *Coordinator) failActive(cause error) {
	ln := c.line
	sid := ln.call.ID
	log.Error().Err(cause).Str("module", "call").Str("sid", sid.String()).Msg("failing active call")

	c.send(signal.Envelope{
		Category:      signal.CategoryFailed,
		CorrelationID: sid.String(),
		Sender:        c.deps.Self,
		Recipient:     ln.call.Peer,
		CreatedAt:     c.deps.Clock.Now(),
	})
	c.report(sid, cause)
	read := domain.CompletionRead(ln.call.Direction, string(signal.CategoryFailed), false)
	c.teardownActive(signal.CategoryFailed, read, cause)
}

// teardownActive is the single exit path for the active call: timer
// disarmed, media closed, completion recorded, collaborators notified,
// line cleared back to idle. The call is never resurrected afterwards.
func (c *Coordinator) teardownActive(category signal.Category, read bool, cause error) {
	ln := c.line
	sid := ln.call.ID

	c.disarmRingTimer()
	c.setState(StateTerminating)
	ln.media.Close()
	c.recordCompletion(ln.call, category, read)
	c.deps.Telephony.ReportEnded(sid, string(category))
	c.deps.Events.CallEnded(sid, category, cause)
	c.clearLine(sid)
}

func (c *Coordinator) clearLine(sid uuid.UUID) {
	delete(c.candidates, sid)
	c.line = nil
}

// declinePending declines a not-yet-accepted offer without touching the
// active call or any other pending session.
func (c *Coordinator) declinePending(sid uuid.UUID, userInitiated bool) {
	po := c.pending[sid]
	c.send(signal.Envelope{
		Category:      signal.CategoryDecline,
		CorrelationID: sid.String(),
		Sender:        c.deps.Self,
		Recipient:     po.call.Peer,
		CreatedAt:     c.deps.Clock.Now(),
	})
	read := domain.CompletionRead(po.call.Direction, string(signal.CategoryDecline), userInitiated)
	c.resolvePending(sid, signal.CategoryDecline, read, nil)
}

// resolvePending removes a pending offer and records its completion.
// No outbound message is sent here; callers own the reply, if any.
func (c *Coordinator) resolvePending(sid uuid.UUID, category signal.Category, read bool, cause error) {
	po, ok := c.pending[sid]
	if !ok {
		return
	}
	delete(c.pending, sid)
	delete(c.candidates, sid)
	c.recordCompletion(po.call, category, read)
	c.deps.Telephony.ReportEnded(sid, string(category))
	c.deps.Events.CallEnded(sid, category, cause)
}

func (c *Coordinator) recordCompletion(ended *domain.Call, category signal.Category, read bool) {
	now := c.deps.Clock.Now()
	rec := domain.Completion{
		SessionID:    ended.ID,
		Conversation: ended.Conversation,
		Peer:         ended.Peer,
		Direction:    ended.Direction,
		Category:     string(category),
		Duration:     ended.Duration(now),
		Read:         read,
		CreatedAt:    now,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.deps.Store.Append(ctx, rec); err != nil {
		log.Error().Err(err).Str("module", "call").
			Str("sid", ended.ID.String()).Msg("append completion record")
		c.report(ended.ID, err)
	}
}
