// Package call implements the coordinator that owns the single call
// line: the offer/answer state machine, pending-offer and
// pending-candidate bookkeeping, the unanswered-call timer, and every
// teardown path. All mutable session state lives behind one serial
// event queue; nothing outside this package writes it.
package call

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/akorolev/Dial/internal/core"
	"github.com/akorolev/Dial/internal/domain"
	"github.com/akorolev/Dial/internal/signal"
)

// ErrCoordinatorClosed is returned for operations after shutdown.
var ErrCoordinatorClosed = errors.New("call coordinator closed")

const sendTimeout = 5 * time.Second

// Deps wires the coordinator to its collaborators. Every field except
// Reporter is required; a nil Reporter disables diagnostic forwarding.
type Deps struct {
	Self        domain.PeerID
	Transport   core.Transport
	Media       core.MediaEngine
	Telephony   core.Telephony
	Directory   core.Directory
	Store       core.CompletionStore
	Events      core.Events
	Reporter    core.Reporter
	Perms       core.Permissions
	Clock       clock.Clock
	RingTimeout time.Duration
}

// line is the one-slot resource the coordinator arbitrates: the active
// call, its media session, and negotiation progress.
type line struct {
	call          *domain.Call
	media         core.MediaSession
	state         LineState
	remoteApplied bool
}

// pendingOffer is an incoming offer not yet accepted. It holds the
// constructed call plus the still-unapplied remote description.
type pendingOffer struct {
	call   *domain.Call
	remote webrtc.SessionDescription
}

type Coordinator struct {
	deps Deps

	jobs chan func()
	done chan struct{}

	// Everything below is touched only from the Run goroutine.
	runCtx     context.Context
	line       *line
	pending    map[uuid.UUID]*pendingOffer
	candidates map[uuid.UUID][]webrtc.ICECandidateInit
	ringTimer  *clock.Timer
	ringSID    uuid.UUID
	muted      bool
	speaker    bool
}

func New(deps Deps) *Coordinator {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &Coordinator{
		deps:       deps,
		jobs:       make(chan func(), 64),
		done:       make(chan struct{}),
		pending:    make(map[uuid.UUID]*pendingOffer),
		candidates: make(map[uuid.UUID][]webrtc.ICECandidateInit),
	}
}

// Run drains the event queue until ctx is cancelled. It must be running
// before any operation is invoked; an in-flight call is ended before
// Run returns.
func (c *Coordinator) Run(ctx context.Context) {
	c.runCtx = ctx
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case fn := <-c.jobs:
			fn()
		}
	}
}

func (c *Coordinator) shutdown() {
	if c.line != nil {
		c.endActive(true)
	}
	for sid := range c.pending {
		c.declinePending(sid, true)
	}
	close(c.done)
}

// post enqueues fire-and-forget work onto the serial queue.
func (c *Coordinator) post(fn func()) {
	select {
	case c.jobs <- fn:
	case <-c.done:
	}
}

// do enqueues work and waits for its result.
func (c *Coordinator) do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	job := func() { res <- fn() }
	select {
	case c.jobs <- job:
	case <-c.done:
		return ErrCoordinatorClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-c.done:
		return ErrCoordinatorClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// active returns the line if sid names the active call.
func (c *Coordinator) active(sid uuid.UUID) *line {
	if c.line != nil && c.line.call.ID == sid {
		return c.line
	}
	return nil
}

func (c *Coordinator) setState(next LineState) {
	if c.line == nil {
		return
	}
	if !c.line.state.CanTransitionTo(next) {
		log.Warn().Str("module", "call").
			Str("from", c.line.state.String()).Str("to", next.String()).
			Msg("illegal line transition")
	}
	c.line.state = next
}

// newSession builds a media session for sid and funnels its callbacks
// back onto the serial queue.
func (c *Coordinator) newSession(sid uuid.UUID) (core.MediaSession, error) {
	ms, err := c.deps.Media.NewSession(c.runCtx, sid)
	if err != nil {
		return nil, err
	}
	ms.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		c.post(func() { c.sendLocalCandidate(sid, ci) })
	})
	ms.OnStateChange(func(st core.MediaState) {
		c.post(func() { c.onMediaState(sid, st) })
	})
	if c.muted {
		if err := ms.SetMuted(true); err != nil {
			log.Warn().Err(err).Str("module", "call").Str("sid", sid.String()).Msg("apply stored mute")
		}
	}
	return ms, nil
}

func (c *Coordinator) sendLocalCandidate(sid uuid.UUID, ci webrtc.ICECandidateInit) {
	ln := c.active(sid)
	if ln == nil {
		return
	}
	payload, err := signal.EncodeCandidates([]webrtc.ICECandidateInit{ci})
	if err != nil {
		log.Error().Err(err).Str("module", "call").Str("sid", sid.String()).Msg("encode local candidate")
		return
	}
	c.send(signal.Envelope{
		Category:      signal.CategoryCandidate,
		CorrelationID: sid.String(),
		Sender:        c.deps.Self,
		Recipient:     ln.call.Peer,
		Payload:       payload,
		CreatedAt:     c.deps.Clock.Now(),
	})
}

// send hands an envelope to the transport. Failures are logged and
// reported; the transport owns retry.
func (c *Coordinator) send(env signal.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := c.deps.Transport.Send(ctx, env); err != nil {
		log.Error().Err(err).Str("module", "call").
			Str("category", string(env.Category)).Msg("send signal")
		c.report(uuid.Nil, err)
	}
}

// reply synthesizes a terminal response to an inbound envelope using
// its session id as the quote.
func (c *Coordinator) reply(to signal.Envelope, category signal.Category) {
	correlation := to.SessionID
	if correlation == "" {
		correlation = to.CorrelationID
	}
	c.send(signal.Envelope{
		Category:      category,
		CorrelationID: correlation,
		Sender:        c.deps.Self,
		Recipient:     to.Sender,
		CreatedAt:     c.deps.Clock.Now(),
	})
}

func (c *Coordinator) report(sid uuid.UUID, err error) {
	if c.deps.Reporter != nil {
		c.deps.Reporter.ReportError(sid, err)
	}
}

func (c *Coordinator) armRingTimer(sid uuid.UUID) {
	c.disarmRingTimer()
	c.ringSID = sid
	c.ringTimer = c.deps.Clock.AfterFunc(c.deps.RingTimeout, func() {
		c.post(func() { c.onRingTimeout(sid) })
	})
}

// disarmRingTimer must run on every terminal transition of the call it
// was armed for; a stale fire is still a detected no-op.
func (c *Coordinator) disarmRingTimer() {
	if c.ringTimer != nil {
		c.ringTimer.Stop()
		c.ringTimer = nil
		c.ringSID = uuid.Nil
	}
}
