package peer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const bootstrapID = "QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN"

func TestFromAddr(t *testing.T) {
	p, err := FromAddr("/ip4/127.0.0.1/tcp/4001/p2p/" + bootstrapID)
	require.NoError(t, err)
	require.Equal(t, bootstrapID, p.ID.String())
	require.Len(t, p.Addrs, 1)
	require.Equal(t, "/ip4/127.0.0.1/tcp/4001", p.Addrs[0].String())
	require.Equal(t, "/ip4/127.0.0.1/tcp/4001/p2p/"+bootstrapID, p.String())

	info := p.AddrInfo()
	require.Equal(t, p.ID, info.ID)
	require.Equal(t, p.Addrs, info.Addrs)
}

func TestFromAddrDNSAddr(t *testing.T) {
	p, err := FromAddr("/dnsaddr/bootstrap.libp2p.io/p2p/" + bootstrapID)
	require.NoError(t, err)
	require.Equal(t, "/dnsaddr/bootstrap.libp2p.io", p.Addrs[0].String())
}

func TestFromAddrMissingPeerID(t *testing.T) {
	_, err := FromAddr("/dns4/ipfs.infura.io/tcp/5001")
	require.ErrorIs(t, err, ErrMissingPeerID)
}

func TestFromAddrMalformed(t *testing.T) {
	_, err := FromAddr("ipfs.infura.io:5001")
	require.ErrorIs(t, err, ErrInvalidAddr)
}

func TestParseAddrs(t *testing.T) {
	addrs, err := ParseAddrs([]string{"/ip4/0.0.0.0/tcp/0", "/ip6/::/tcp/0"})
	require.NoError(t, err)
	require.Len(t, addrs, 2)

	_, err = ParseAddrs([]string{"/ip4/0.0.0.0/tcp/0", "/ip4/nope"})
	require.ErrorIs(t, err, ErrInvalidAddr)
}
