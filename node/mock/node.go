// Package mock provides a scripted node.Node for tests.
package mock

import (
	"context"
	"sync"

	"github.com/FluffyKebab/peerwatch/node"
	"github.com/FluffyKebab/peerwatch/peer"
)

type Node struct {
	id     peer.ID
	events chan node.Event
	errs   chan error

	lock    sync.Mutex
	runErr  error
	dialErr error
	dialed  []peer.Peer
	closed  bool
}

var _ node.Node = &Node{}

func New(id peer.ID) *Node {
	return &Node{
		id:     id,
		events: make(chan node.Event, 128),
		errs:   make(chan error, 1),
	}
}

// FailRun makes Run return err.
func (n *Node) FailRun(err error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.runErr = err
}

// FailDial makes every Dial return err.
func (n *Node) FailDial(err error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.dialErr = err
}

// Push queues an event as if it came from the network.
func (n *Node) Push(ev node.Event) {
	n.events <- ev
}

// Crash reports an unrecoverable error on the channel returned by Run.
func (n *Node) Crash(err error) {
	n.errs <- err
}

func (n *Node) Dialed() []peer.Peer {
	n.lock.Lock()
	defer n.lock.Unlock()
	return append([]peer.Peer(nil), n.dialed...)
}

func (n *Node) Closed() bool {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.closed
}

func (n *Node) ID() peer.ID {
	return n.id
}

func (n *Node) Run(context.Context) (<-chan error, error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.runErr != nil {
		return nil, n.runErr
	}
	return n.errs, nil
}

func (n *Node) Dial(_ context.Context, p peer.Peer) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.dialed = append(n.dialed, p)
	return n.dialErr
}

func (n *Node) Events() <-chan node.Event {
	return n.events
}

func (n *Node) Close() error {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.closed = true
	return nil
}
