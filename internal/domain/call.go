package domain

import (
	"time"

	"github.com/google/uuid"
)

// Direction says which side placed the call.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// Call is one negotiated or negotiating voice session. At most one Call
// is active at any instant; the coordinator owns the only mutable copy.
type Call struct {
	ID             uuid.UUID
	Peer           PeerID
	Direction      Direction
	Conversation   ConversationID
	CreatedAt      time.Time
	ConnectedAt    *time.Time // nil until media connects
	AnswerReceived bool
}

// NewCall constructs a call between self and peer. The session id is the
// correlation key shared with the peer across all signaling messages.
func NewCall(id uuid.UUID, self, peer PeerID, dir Direction, now time.Time) *Call {
	return &Call{
		ID:           id,
		Peer:         peer,
		Direction:    dir,
		Conversation: ConversationOf(self, peer),
		CreatedAt:    now,
	}
}

// Duration is derived, not stored: zero if media never connected.
func (c *Call) Duration(now time.Time) time.Duration {
	if c.ConnectedAt == nil {
		return 0
	}
	return now.Sub(*c.ConnectedAt)
}
