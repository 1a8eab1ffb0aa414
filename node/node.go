package node

import (
	"context"
	"errors"

	"github.com/multiformats/go-multiaddr"

	"github.com/FluffyKebab/peerwatch/peer"
)

var (
	ErrDial   = errors.New("dial failed")
	ErrListen = errors.New("listen failed")
	ErrClosed = errors.New("node closed")
)

type EventKind uint8

const (
	EventListenAddrBound EventKind = iota + 1
	EventConnectionEstablished
	EventConnectionClosed
)

func (k EventKind) String() string {
	switch k {
	case EventListenAddrBound:
		return "listen_addr_bound"
	case EventConnectionEstablished:
		return "connection_established"
	case EventConnectionClosed:
		return "connection_closed"
	default:
		return "unknown"
	}
}

// Event is a notification from the networking layer. Peer is set for
// connection events, Addr for listen events.
type Event struct {
	Kind EventKind
	Peer peer.ID
	Addr multiaddr.Multiaddr
}

type Node interface {
	ID() peer.ID

	// Run starts listening and forwarding events. Errors that happen after
	// startup are sent on the returned channel and are fatal.
	Run(context.Context) (<-chan error, error)
	Dial(ctx context.Context, p peer.Peer) error
	Events() <-chan Event
	Close() error
}
