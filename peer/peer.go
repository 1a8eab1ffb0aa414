package peer

import (
	"errors"
	"fmt"

	corepeer "github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

var (
	ErrMissingPeerID = errors.New("address has no /p2p peer id component")
	ErrInvalidAddr   = errors.New("invalid multiaddr")
)

// ID identifies a remote node. It is derived from the node's public key.
type ID = corepeer.ID

type Peer struct {
	ID    ID
	Addrs []multiaddr.Multiaddr
}

func New(id ID, addrs ...multiaddr.Multiaddr) Peer {
	return Peer{
		ID:    id,
		Addrs: addrs,
	}
}

// FromAddr parses a full peer address such as
// /ip4/1.2.3.4/tcp/4001/p2p/QmPeer or /dnsaddr/host/p2p/QmPeer.
func FromAddr(addr string) (Peer, error) {
	ma, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return Peer{}, fmt.Errorf("%w %q: %w", ErrInvalidAddr, addr, err)
	}

	if _, err := ma.ValueForProtocol(multiaddr.P_P2P); err != nil {
		return Peer{}, fmt.Errorf("%w: %s", ErrMissingPeerID, addr)
	}

	info, err := corepeer.AddrInfoFromP2pAddr(ma)
	if err != nil {
		return Peer{}, fmt.Errorf("%w %q: %w", ErrInvalidAddr, addr, err)
	}

	return New(info.ID, info.Addrs...), nil
}

func (p Peer) AddrInfo() corepeer.AddrInfo {
	return corepeer.AddrInfo{
		ID:    p.ID,
		Addrs: p.Addrs,
	}
}

func (p Peer) String() string {
	if len(p.Addrs) == 0 {
		return p.ID.String()
	}

	return fmt.Sprintf("%s/p2p/%s", p.Addrs[0], p.ID)
}

// ParseAddrs parses every address, stopping at the first malformed one.
func ParseAddrs(addrs []string) ([]multiaddr.Multiaddr, error) {
	res := make([]multiaddr.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		ma, err := multiaddr.NewMultiaddr(a)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidAddr, a, err)
		}
		res = append(res, ma)
	}

	return res, nil
}
