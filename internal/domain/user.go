// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxPeerIDLen   = 64
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrPeerIDEmpty     = errors.New("peer id empty")
	ErrPeerIDTooLong   = errors.New("peer id too long")
)

// PeerID identifies a user of the messaging application.
type PeerID string

// Peer is the directory entry for a known contact.
type Peer struct {
	ID       PeerID `json:"id"`
	Username string `json:"username"`
}

// NewPeer is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewPeer(id PeerID, username string) (*Peer, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if len(username) == 0 {
		return nil, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	return &Peer{ID: id, Username: username}, nil
}

func (id PeerID) Validate() error {
	if len(id) == 0 {
		return ErrPeerIDEmpty
	}
	if len(id) > MaxPeerIDLen {
		return ErrPeerIDTooLong
	}
	return nil
}

// ConversationID names the 1:1 conversation between two peers. It is
// derived from the two peer ids joined in lexicographic order, so both
// sides compute the same value without coordination.
type ConversationID string

func ConversationOf(a, b PeerID) ConversationID {
	if strings.Compare(string(a), string(b)) > 0 {
		a, b = b, a
	}
	return ConversationID(string(a) + ":" + string(b))
}
