// Package p2pnode implements node.Node on top of a libp2p host using TCP,
// Noise and Yamux.
package p2pnode

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	corepeer "github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/host/eventbus"
	"github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"github.com/multiformats/go-multiaddr"
	madns "github.com/multiformats/go-multiaddr-dns"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/FluffyKebab/peerwatch/node"
	"github.com/FluffyKebab/peerwatch/peer"
)

type Config struct {
	ListenAddrs     []multiaddr.Multiaddr
	DialTimeout     time.Duration
	ConnLowWater    int
	ConnHighWater   int
	ConnGracePeriod time.Duration
	EventBufferSize int
}

func DefaultConfig() Config {
	return Config{
		ListenAddrs:     []multiaddr.Multiaddr{multiaddr.StringCast("/ip4/0.0.0.0/tcp/0")},
		DialTimeout:     30 * time.Second,
		ConnLowWater:    64,
		ConnHighWater:   128,
		ConnGracePeriod: time.Minute,
		EventBufferSize: 64,
	}
}

type resolver interface {
	Resolve(context.Context, multiaddr.Multiaddr) ([]multiaddr.Multiaddr, error)
}

type Node struct {
	log      zerolog.Logger
	cfg      Config
	host     host.Host
	sub      event.Subscription
	resolver resolver
	events   chan node.Event
	closed   *atomic.Bool
}

var _ node.Node = &Node{}

// GenerateIdentity creates a fresh Ed25519 key and the peer id derived from it.
func GenerateIdentity() (crypto.PrivKey, peer.ID, error) {
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("generating key: %w", err)
	}

	id, err := corepeer.IDFromPrivateKey(priv)
	if err != nil {
		return nil, "", fmt.Errorf("deriving peer id: %w", err)
	}

	return priv, id, nil
}

func New(log zerolog.Logger, priv crypto.PrivKey, cfg Config) (*Node, error) {
	cm, err := connmgr.NewConnManager(
		cfg.ConnLowWater,
		cfg.ConnHighWater,
		connmgr.WithGracePeriod(cfg.ConnGracePeriod),
	)
	if err != nil {
		return nil, fmt.Errorf("creating connection manager: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.NoListenAddrs,
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Muxer(yamux.ID, yamux.DefaultTransport),
		libp2p.ConnectionManager(cm),
		libp2p.Ping(true),
	)
	if err != nil {
		return nil, fmt.Errorf("creating host: %w", err)
	}

	// Subscribe before listening so no connection is missed.
	sub, err := h.EventBus().Subscribe(
		new(event.EvtPeerConnectednessChanged),
		eventbus.BufSize(cfg.EventBufferSize),
	)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("subscribing to connectedness events: %w", err)
	}

	return &Node{
		log:      log.With().Str("component", "p2pnode").Logger(),
		cfg:      cfg,
		host:     h,
		sub:      sub,
		resolver: madns.DefaultResolver,
		events:   make(chan node.Event, cfg.EventBufferSize),
		closed:   atomic.NewBool(false),
	}, nil
}

func (n *Node) ID() peer.ID {
	return n.host.ID()
}

func (n *Node) Host() host.Host {
	return n.host
}

func (n *Node) Events() <-chan node.Event {
	return n.events
}

// ListenAddrs returns the addresses the node is bound to, with ports resolved.
func (n *Node) ListenAddrs() []multiaddr.Multiaddr {
	return n.host.Network().ListenAddresses()
}

func (n *Node) Run(ctx context.Context) (<-chan error, error) {
	if n.closed.Load() {
		return nil, node.ErrClosed
	}

	err := n.host.Network().Listen(n.cfg.ListenAddrs...)
	if err != nil {
		return nil, fmt.Errorf("%w on %v: %w", node.ErrListen, n.cfg.ListenAddrs, err)
	}

	errChan := make(chan error, 1)
	go n.forwardEvents(ctx, errChan)

	return errChan, nil
}

func (n *Node) forwardEvents(ctx context.Context, errChan chan<- error) {
	for _, addr := range n.ListenAddrs() {
		if !n.emit(ctx, node.Event{Kind: node.EventListenAddrBound, Addr: addr}) {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-n.sub.Out():
			if !ok {
				if ctx.Err() == nil && !n.closed.Load() {
					n.log.Error().Msg("connectedness subscription closed unexpectedly")
					errChan <- fmt.Errorf("connectedness subscription: %w", node.ErrClosed)
				}
				return
			}

			evt, ok := e.(event.EvtPeerConnectednessChanged)
			if !ok {
				continue
			}

			kind := node.EventConnectionClosed
			if evt.Connectedness == network.Connected {
				kind = node.EventConnectionEstablished
			}

			if !n.emit(ctx, node.Event{Kind: kind, Peer: evt.Peer}) {
				return
			}
		}
	}
}

func (n *Node) emit(ctx context.Context, ev node.Event) bool {
	select {
	case n.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (n *Node) Dial(ctx context.Context, p peer.Peer) error {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.DialTimeout)
	defer cancel()

	addrs, err := n.resolveAddrs(ctx, p)
	if err != nil {
		return fmt.Errorf("%w %s: resolving: %w", node.ErrDial, p, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w %s: no addresses for peer", node.ErrDial, p)
	}

	n.log.Debug().Str("peer_id", p.ID.String()).Int("addrs", len(addrs)).Msg("dialing")

	info := p.AddrInfo()
	info.Addrs = addrs
	err = n.host.Connect(ctx, info)
	if err != nil {
		return fmt.Errorf("%w %s: %w", node.ErrDial, p, err)
	}

	return nil
}

// resolveAddrs expands dns components. A /dnsaddr record can list several
// peers, so only addresses belonging to p are kept.
func (n *Node) resolveAddrs(ctx context.Context, p peer.Peer) ([]multiaddr.Multiaddr, error) {
	res := make([]multiaddr.Multiaddr, 0, len(p.Addrs))
	for _, addr := range p.Addrs {
		resolved, err := n.resolver.Resolve(ctx, addr)
		if err != nil {
			return nil, err
		}

		for _, r := range resolved {
			transportAddr, id := corepeer.SplitAddr(r)
			if transportAddr == nil || (id != "" && id != p.ID) {
				continue
			}
			res = append(res, transportAddr)
		}
	}

	return res, nil
}

func (n *Node) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}

	var result *multierror.Error
	if err := n.sub.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing subscription: %w", err))
	}
	if err := n.host.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing host: %w", err))
	}

	return result.ErrorOrNil()
}
