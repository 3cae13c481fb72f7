package call

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/akorolev/Dial/internal/core"
	"github.com/akorolev/Dial/internal/domain"
	"github.com/akorolev/Dial/internal/signal"
)

// HandleEnvelope is the transport's entry point. It re-dispatches onto
// the serial queue; the caller never observes call state directly.
func (c *Coordinator) HandleEnvelope(env signal.Envelope) {
	c.post(func() { c.handleEnvelope(env) })
}

func (c *Coordinator) handleEnvelope(env signal.Envelope) {
	if !env.Category.Known() {
		log.Warn().Str("module", "call").Str("category", string(env.Category)).Msg("unknown signal category")
		return
	}
	switch env.Category {
	case signal.CategoryOffer:
		c.receiveOffer(env)
	case signal.CategoryAnswer:
		c.receiveAnswer(env)
	case signal.CategoryCandidate:
		c.receiveCandidates(env)
	default:
		c.receiveTerminal(env)
	}
}

// receiveAnswer applies a remote answer to the current outgoing call.
// Anything that does not correlate, or a second answer for a call that
// already has one, is ignored.
func (c *Coordinator) receiveAnswer(env signal.Envelope) {
	sid, err := env.CallID()
	if err != nil {
		return
	}
	ln := c.active(sid)
	if ln == nil || ln.call.Direction != domain.Outgoing || ln.call.AnswerReceived {
		log.Debug().Str("module", "call").Str("sid", sid.String()).Msg("uncorrelated or duplicate answer")
		return
	}
	remote, err := signal.DecodeDescription(env.Payload)
	if err != nil {
		c.failActive(fmt.Errorf("%w: %w", domain.ErrInvalidDescription, err))
		return
	}

	c.disarmRingTimer()
	ln.call.AnswerReceived = true
	log.Info().Str("module", "call").Str("sid", sid.String()).Msg("remote answer received")

	if err := ln.media.SetRemoteDescription(remote); err != nil {
		c.failActive(fmt.Errorf("%w: %w", domain.ErrDescriptionApplication, err))
		return
	}
	ln.remoteApplied = true
	c.flushCandidates(sid)
	c.setState(StateConnecting)
	c.deps.Telephony.ReportConnecting(sid)
}

const (
	// maxBufferedCandidates bounds the queue for one session.
	maxBufferedCandidates = 64
	// maxCandidateBuffers bounds how many sessions may hold a buffer at
	// once; sids with a live line or pending offer are always admitted.
	maxCandidateBuffers = 16
)

// receiveCandidates applies remote ICE candidates when the correlated
// session can take them, and buffers them otherwise. Buffered
// candidates survive until the session is applied or torn down; they
// are flushed exactly once, in arrival order. Buffers are bounded so a
// peer spraying candidates for made-up sessions cannot grow state
// without limit.
func (c *Coordinator) receiveCandidates(env signal.Envelope) {
	sid, err := env.CallID()
	if err != nil {
		return
	}
	batch, err := signal.DecodeCandidates(env.Payload)
	if err != nil {
		log.Warn().Err(err).Str("module", "call").Str("sid", sid.String()).Msg("candidate payload invalid")
		return
	}

	ln := c.active(sid)
	if ln != nil && ln.remoteApplied {
		for _, ci := range batch {
			c.applyCandidate(ln, ci)
		}
		return
	}

	queued, buffered := c.candidates[sid]
	if !buffered && ln == nil {
		if _, isPending := c.pending[sid]; !isPending && len(c.candidates) >= maxCandidateBuffers {
			log.Warn().Str("module", "call").Str("sid", sid.String()).
				Msg("dropping candidates for unknown session, buffer table full")
			return
		}
	}
	room := maxBufferedCandidates - len(queued)
	if room <= 0 {
		log.Warn().Str("module", "call").Str("sid", sid.String()).Msg("candidate buffer full")
		return
	}
	if len(batch) > room {
		log.Warn().Str("module", "call").Str("sid", sid.String()).
			Int("dropped", len(batch)-room).Msg("candidate buffer trimmed")
		batch = batch[:room]
	}
	c.candidates[sid] = append(queued, batch...)
	log.Debug().Str("module", "call").Str("sid", sid.String()).
		Int("queued", len(c.candidates[sid])).Msg("buffered remote candidates")
}

func (c *Coordinator) flushCandidates(sid uuid.UUID) {
	queued := c.candidates[sid]
	delete(c.candidates, sid)
	if len(queued) == 0 {
		return
	}
	log.Info().Str("module", "call").Str("sid", sid.String()).
		Int("count", len(queued)).Msg("flushing buffered candidates")
	for _, ci := range queued {
		c.applyCandidate(c.line, ci)
	}
}

// applyCandidate hands one candidate to the media engine. A bad
// candidate is reported but does not fail the call; the engine keeps
// whatever connectivity paths it already has.
func (c *Coordinator) applyCandidate(ln *line, ci webrtc.ICECandidateInit) {
	if err := ln.media.AddICECandidate(ci); err != nil {
		log.Warn().Err(err).Str("module", "call").
			Str("sid", ln.call.ID.String()).Msg("add remote candidate")
		c.report(ln.call.ID, err)
	}
}

// receiveTerminal resolves an END/CANCEL/DECLINE/BUSY/FAILED for either
// the active call or a pending offer. Terminals for already-cleared
// sessions are no-ops.
func (c *Coordinator) receiveTerminal(env signal.Envelope) {
	sid, err := env.CallID()
	if err != nil {
		return
	}
	if ln := c.active(sid); ln != nil {
		log.Info().Str("module", "call").Str("sid", sid.String()).
			Str("category", string(env.Category)).Msg("remote ended active call")
		read := domain.CompletionRead(ln.call.Direction, string(env.Category), false)
		c.teardownActive(env.Category, read, nil)
		return
	}
	if _, ok := c.pending[sid]; ok {
		log.Info().Str("module", "call").Str("sid", sid.String()).
			Str("category", string(env.Category)).Msg("remote resolved pending offer")
		read := domain.CompletionRead(domain.Incoming, string(env.Category), false)
		c.resolvePending(sid, env.Category, read, nil)
		return
	}
	// Late or duplicate terminal for a session already cleared. Drop
	// any orphaned candidate buffer along with it.
	delete(c.candidates, sid)
}

// onMediaState consumes connection-state reports from the media
// session. Reports for anything but the active call are stale no-ops.
func (c *Coordinator) onMediaState(sid uuid.UUID, st core.MediaState) {
	ln := c.active(sid)
	if ln == nil {
		log.Debug().Str("module", "call").Str("sid", sid.String()).
			Str("state", st.String()).Msg("stale media state report")
		return
	}
	switch st {
	case core.MediaConnected:
		now := c.deps.Clock.Now()
		ln.call.ConnectedAt = &now
		c.setState(StateConnected)
		c.deps.Telephony.ReportConnected(sid)
		c.deps.Events.CallConnected(sid)
		log.Info().Str("module", "call").Str("sid", sid.String()).Msg("media connected")
	case core.MediaFailed:
		c.failActive(domain.ErrMediaClientFailure)
	case core.MediaConnecting, core.MediaClosed:
		// Connecting is already reflected by the answer exchange; a
		// close report for the active call always follows a failure
		// or teardown we have seen first.
	}
}
