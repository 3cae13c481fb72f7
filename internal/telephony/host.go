package telephony

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/akorolev/Dial/internal/core"
	"github.com/akorolev/Dial/internal/domain"
)

// Op enumerates the actions the host call service understands.
type Op int

const (
	OpStart Op = iota
	OpEnd
	OpMute
	OpReportIncoming
	OpConnecting
	OpConnected
	OpEnded
)

// Request is one submission to the host call service. Requests with an
// ID expect a matching outcome event; the rest are fire-and-forget.
type Request struct {
	ID    string
	Op    Op
	SID   uuid.UUID
	Peer  domain.PeerID
	Muted bool
	Note  string
}

// EventKind classifies bridge events.
type EventKind int

const (
	// EventOutcome confirms or rejects a submitted request.
	EventOutcome EventKind = iota
	// EventEndedByHost reports an end initiated on the native call
	// surface, including pre-emption by a higher-priority call.
	EventEndedByHost
	// EventMuteByHost reports a mute toggle from the native surface.
	EventMuteByHost
)

// Event is one notification from the host call service.
type Event struct {
	Kind      EventKind
	RequestID string
	SID       uuid.UUID
	Muted     bool
	Err       string
}

// Bridge is the process boundary to the operating system's native call
// service. Submissions are asynchronous; outcomes and host-initiated
// actions come back through the event handler. The handler may be
// invoked from any goroutine.
type Bridge interface {
	Available() bool
	Submit(req Request) error
	SetEventHandler(fn func(Event))
}

// Host is the host-integrated telephony variant. Request* methods block
// until the bridge confirms, bounded by the confirmation timeout, so
// the coordinator observes a synchronous outcome without unbounded
// waiting.
type Host struct {
	bridge  Bridge
	clk     clock.Clock
	timeout time.Duration
	sink    core.ActionSink

	seq     atomic.Uint64
	mu      sync.Mutex
	waiters map[string]chan error
}

var _ core.Telephony = (*Host)(nil)

func NewHost(bridge Bridge, clk clock.Clock, confirmTimeout time.Duration, sink core.ActionSink) *Host {
	h := &Host{
		bridge:  bridge,
		clk:     clk,
		timeout: confirmTimeout,
		sink:    sink,
		waiters: make(map[string]chan error),
	}
	bridge.SetEventHandler(h.onEvent)
	return h
}

func (h *Host) Available() bool { return h.bridge.Available() }

func (h *Host) onEvent(ev Event) {
	switch ev.Kind {
	case EventOutcome:
		h.mu.Lock()
		waiter, ok := h.waiters[ev.RequestID]
		delete(h.waiters, ev.RequestID)
		h.mu.Unlock()
		if !ok {
			return
		}
		if ev.Err != "" {
			waiter <- fmt.Errorf("host call service: %s", ev.Err)
		} else {
			waiter <- nil
		}
	case EventEndedByHost:
		log.Info().Str("module", "telephony").Str("sid", ev.SID.String()).Msg("host ended call")
		h.sink.EndRequested(ev.SID)
	case EventMuteByHost:
		h.sink.MuteRequested(ev.SID, ev.Muted)
	}
}

// submitConfirmed sends a request and waits for its outcome. The wait
// is bounded: a silent host counts as a reporting failure.
func (h *Host) submitConfirmed(ctx context.Context, req Request) error {
	req.ID = strconv.FormatUint(h.seq.Add(1), 10)
	waiter := make(chan error, 1)
	h.mu.Lock()
	h.waiters[req.ID] = waiter
	h.mu.Unlock()

	if err := h.bridge.Submit(req); err != nil {
		h.mu.Lock()
		delete(h.waiters, req.ID)
		h.mu.Unlock()
		return err
	}

	select {
	case err := <-waiter:
		return err
	case <-h.clk.After(h.timeout):
		h.mu.Lock()
		delete(h.waiters, req.ID)
		h.mu.Unlock()
		return fmt.Errorf("%w: host confirmation timed out", domain.ErrTelephonyReporting)
	case <-ctx.Done():
		h.mu.Lock()
		delete(h.waiters, req.ID)
		h.mu.Unlock()
		return ctx.Err()
	}
}

func (h *Host) submit(req Request) {
	if err := h.bridge.Submit(req); err != nil {
		log.Warn().Err(err).Str("module", "telephony").
			Str("sid", req.SID.String()).Msg("host submit")
	}
}

func (h *Host) RequestStart(ctx context.Context, sid uuid.UUID, peer domain.PeerID) error {
	return h.submitConfirmed(ctx, Request{Op: OpStart, SID: sid, Peer: peer})
}

func (h *Host) RequestEnd(ctx context.Context, sid uuid.UUID) error {
	return h.submitConfirmed(ctx, Request{Op: OpEnd, SID: sid})
}

func (h *Host) RequestMute(ctx context.Context, sid uuid.UUID, muted bool) error {
	return h.submitConfirmed(ctx, Request{Op: OpMute, SID: sid, Muted: muted})
}

func (h *Host) ReportIncoming(ctx context.Context, sid uuid.UUID, peer domain.Peer) error {
	return h.submitConfirmed(ctx, Request{Op: OpReportIncoming, SID: sid, Peer: peer.ID, Note: peer.Username})
}

func (h *Host) ReportConnecting(sid uuid.UUID) { h.submit(Request{Op: OpConnecting, SID: sid}) }

func (h *Host) ReportConnected(sid uuid.UUID) { h.submit(Request{Op: OpConnected, SID: sid}) }

func (h *Host) ReportEnded(sid uuid.UUID, reason string) {
	h.submit(Request{Op: OpEnded, SID: sid, Note: reason})
}
