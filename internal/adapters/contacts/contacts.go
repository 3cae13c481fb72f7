// Package contacts is a config-seeded peer directory.
package contacts

import (
	"github.com/akorolev/Dial/internal/domain"
)

type Book struct {
	peers map[domain.PeerID]domain.Peer
}

func NewBook(peers []domain.Peer) *Book {
	b := &Book{peers: make(map[domain.PeerID]domain.Peer, len(peers))}
	for _, p := range peers {
		b.peers[p.ID] = p
	}
	return b
}

func (b *Book) Resolve(id domain.PeerID) (*domain.Peer, bool) {
	p, ok := b.peers[id]
	if !ok {
		return nil, false
	}
	return &p, true
}
