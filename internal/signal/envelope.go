// Package signal defines the call-signaling envelope carried over the
// messaging transport. The payload is opaque to the transport: a base64
// blob holding either a session description or a candidate batch.
package signal

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/akorolev/Dial/internal/domain"
)

// Category is the closed set of signaling message kinds.
type Category string

const (
	CategoryOffer     Category = "offer"
	CategoryAnswer    Category = "answer"
	CategoryCandidate Category = "candidate"
	CategoryEnd       Category = "end"
	CategoryCancel    Category = "cancel"
	CategoryDecline   Category = "decline"
	CategoryBusy      Category = "busy"
	CategoryFailed    Category = "failed"
)

var categories = map[Category]struct{}{
	CategoryOffer:     {},
	CategoryAnswer:    {},
	CategoryCandidate: {},
	CategoryEnd:       {},
	CategoryCancel:    {},
	CategoryDecline:   {},
	CategoryBusy:      {},
	CategoryFailed:    {},
}

// Known reports whether the category is one this client understands.
// Unknown categories must be ignored, not rejected.
func (c Category) Known() bool {
	_, ok := categories[c]
	return ok
}

// Terminal reports whether the category ends a session.
func (c Category) Terminal() bool {
	switch c {
	case CategoryEnd, CategoryCancel, CategoryDecline, CategoryBusy, CategoryFailed:
		return true
	}
	return false
}

var (
	ErrBadEnvelope = errors.New("malformed signaling envelope")
	ErrBadPayload  = errors.New("payload does not decode")
)

// Envelope is one signaling message. SessionID is the primary id on an
// offer; every other category quotes the session through CorrelationID.
type Envelope struct {
	Category      Category      `json:"category"`
	SessionID     string        `json:"session_id,omitempty"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	Sender        domain.PeerID `json:"sender"`
	Recipient     domain.PeerID `json:"recipient"`
	Payload       string        `json:"payload,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// CallID returns the session id the envelope refers to: the primary id
// for offers, the quoted id for everything else.
func (e Envelope) CallID() (uuid.UUID, error) {
	raw := e.CorrelationID
	if e.Category == CategoryOffer {
		raw = e.SessionID
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.ErrInvalidSessionID
	}
	return id, nil
}

// Encode marshals the envelope for the messaging transport.
func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an envelope off the wire. Only structural validity is
// checked here; payload decoding is the coordinator's business.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, ErrBadEnvelope
	}
	if e.Category == "" || e.Sender == "" {
		return Envelope{}, ErrBadEnvelope
	}
	return e, nil
}
