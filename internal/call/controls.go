package call

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/akorolev/Dial/internal/domain"
)

// Snapshot is a read-only view of coordinator state for the control
// surface. It is a copy; nothing in it aliases coordinator-owned state.
type Snapshot struct {
	State       LineState         `json:"state"`
	SessionID   uuid.UUID         `json:"session_id,omitempty"`
	Peer        domain.PeerID     `json:"peer,omitempty"`
	Direction   string            `json:"direction,omitempty"`
	ConnectedAt *time.Time        `json:"connected_at,omitempty"`
	Muted       bool              `json:"muted"`
	Speaker     bool              `json:"speaker"`
	Pending     []PendingSnapshot `json:"pending,omitempty"`
}

type PendingSnapshot struct {
	SessionID  uuid.UUID     `json:"session_id"`
	Peer       domain.PeerID `json:"peer"`
	ReceivedAt time.Time     `json:"received_at"`
}

// Snapshot reports the current line and pending offers.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.do(ctx, func() error {
		snap = Snapshot{State: StateIdle, Muted: c.muted, Speaker: c.speaker}
		if c.line != nil {
			snap.State = c.line.state
			snap.SessionID = c.line.call.ID
			snap.Peer = c.line.call.Peer
			snap.Direction = c.line.call.Direction.String()
			if t := c.line.call.ConnectedAt; t != nil {
				connectedAt := *t
				snap.ConnectedAt = &connectedAt
			}
		}
		for sid, po := range c.pending {
			snap.Pending = append(snap.Pending, PendingSnapshot{
				SessionID:  sid,
				Peer:       po.call.Peer,
				ReceivedAt: po.call.CreatedAt,
			})
		}
		return nil
	})
	return snap, err
}

// SetMuted toggles the microphone. The flag persists across calls; with
// a live line it is pushed to telephony and the media engine first.
func (c *Coordinator) SetMuted(ctx context.Context, muted bool) error {
	return c.do(ctx, func() error {
		if c.line != nil {
			sid := c.line.call.ID
			if err := c.deps.Telephony.RequestMute(c.runCtx, sid, muted); err != nil {
				return fmt.Errorf("%w: %w", domain.ErrTelephonyReporting, err)
			}
			if err := c.line.media.SetMuted(muted); err != nil {
				return err
			}
		}
		c.muted = muted
		return nil
	})
}

// SetSpeaker switches the in-app audio route flag.
func (c *Coordinator) SetSpeaker(ctx context.Context, speaker bool) error {
	return c.do(ctx, func() error {
		c.speaker = speaker
		c.deps.Events.AudioRouteChanged(speaker)
		return nil
	})
}

// EndRequested lets the telephony surface (native in-call screen or
// in-app call UI) hang up. Implements core.ActionSink.
func (c *Coordinator) EndRequested(sid uuid.UUID) {
	c.post(func() {
		if err := c.endSession(sid, true); err != nil {
			log.Debug().Err(err).Str("module", "call").
				Str("sid", sid.String()).Msg("end request for unknown session")
		}
	})
}

// MuteRequested applies a mute toggle originating inside the telephony
// surface. The host already holds the audio session, so only the media
// engine and the stored flag are updated. Implements core.ActionSink.
func (c *Coordinator) MuteRequested(sid uuid.UUID, muted bool) {
	c.post(func() {
		ln := c.active(sid)
		if ln == nil {
			return
		}
		c.muted = muted
		if err := ln.media.SetMuted(muted); err != nil {
			log.Warn().Err(err).Str("module", "call").Str("sid", sid.String()).Msg("apply mute")
			c.report(sid, err)
		}
	})
}
