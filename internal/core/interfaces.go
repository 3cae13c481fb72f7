// Package core defines the seams between the call coordinator and its
// collaborators. The coordinator only ever talks to these interfaces;
// adapters own the concrete resources behind them.
package core

import (
	"context"

	"github.com/google/uuid"

	"github.com/akorolev/Dial/internal/domain"
	"github.com/akorolev/Dial/internal/signal"
)

// Transport delivers signaling envelopes through the application's
// end-to-end message channel. Delivery guarantees (retry, ordering)
// are the transport's problem, not the coordinator's.
type Transport interface {
	Send(ctx context.Context, env signal.Envelope) error
	Connected() bool
}

// Directory resolves senders to known contacts. An offer from an
// unresolvable sender is a validation failure.
type Directory interface {
	Resolve(id domain.PeerID) (*domain.Peer, bool)
}

// CompletionStore persists one record per terminal transition.
// Append-only; records are never mutated afterward.
type CompletionStore interface {
	Append(ctx context.Context, rec domain.Completion) error
	ListByConversation(ctx context.Context, conv domain.ConversationID, limit int) ([]domain.Completion, error)
}

// Events is the user-facing collaborator. Implementations render call
// UI; the coordinator never blocks on them.
type Events interface {
	IncomingCall(sid uuid.UUID, peer domain.Peer)
	CallConnected(sid uuid.UUID)
	CallEnded(sid uuid.UUID, category signal.Category, cause error)
	AudioRouteChanged(speaker bool)
	PromptMicrophoneAccess()
}

// Reporter receives errors worth a diagnostic trail beyond the local log.
type Reporter interface {
	ReportError(sid uuid.UUID, err error)
}

// Permission is the microphone authorization state.
type Permission int

const (
	PermissionUndetermined Permission = iota
	PermissionGranted
	PermissionDenied
)

// Permissions probes host authorization state.
type Permissions interface {
	Microphone() Permission
}
