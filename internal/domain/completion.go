package domain

import (
	"time"

	"github.com/google/uuid"
)

// Completion is the persisted record of one terminal transition. Records
// are append-only; read-state is decided once, when the record is written.
type Completion struct {
	SessionID    uuid.UUID      `json:"session_id"`
	Conversation ConversationID `json:"conversation"`
	Peer         PeerID         `json:"peer"`
	Direction    Direction      `json:"direction"`
	Category     string         `json:"category"`
	Duration     time.Duration  `json:"duration"`
	Read         bool           `json:"read"`
	CreatedAt    time.Time      `json:"created_at"`
}

// CompletionRead decides the read-state of a completion entry: outgoing
// calls, normal ends, and user-initiated declines are read immediately;
// everything else stays delivered (unread) until the user views it.
func CompletionRead(dir Direction, category string, userInitiated bool) bool {
	if dir == Outgoing {
		return true
	}
	if category == "end" {
		return true
	}
	return userInitiated
}
