// Package tracker keeps the set of currently connected peers.
//
// The set is folded from connection lifecycle events: a Connected event adds
// the peer and a Disconnected event removes it. Both are idempotent, so the
// set always holds exactly the peers whose latest event was Connected.
package tracker

import (
	"slices"
	"sync"

	"github.com/FluffyKebab/peerwatch/peer"
)

type Kind uint8

const (
	EventConnected Kind = iota + 1
	EventDisconnected
)

func (k Kind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind Kind
	Peer peer.ID
}

func Connect(id peer.ID) Event {
	return Event{Kind: EventConnected, Peer: id}
}

func Disconnect(id peer.ID) Event {
	return Event{Kind: EventDisconnected, Peer: id}
}

// Tracker is written by a single goroutine. Reads may come from anywhere.
type Tracker struct {
	lock  sync.RWMutex
	peers map[peer.ID]struct{}
}

func New() *Tracker {
	return &Tracker{
		peers: make(map[peer.ID]struct{}),
	}
}

func (t *Tracker) Apply(ev Event) {
	t.lock.Lock()
	defer t.lock.Unlock()

	switch ev.Kind {
	case EventConnected:
		t.peers[ev.Peer] = struct{}{}
	case EventDisconnected:
		delete(t.peers, ev.Peer)
	}
}

// Snapshot returns a copy of the current set, sorted by id.
func (t *Tracker) Snapshot() []peer.ID {
	t.lock.RLock()
	res := make([]peer.ID, 0, len(t.peers))
	for id := range t.peers {
		res = append(res, id)
	}
	t.lock.RUnlock()

	slices.Sort(res)
	return res
}

func (t *Tracker) Len() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return len(t.peers)
}

func (t *Tracker) Contains(id peer.ID) bool {
	t.lock.RLock()
	defer t.lock.RUnlock()
	_, ok := t.peers[id]
	return ok
}
