package p2pnode

import (
	"context"
	"testing"
	"time"

	"github.com/multiformats/go-multiaddr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/FluffyKebab/peerwatch/node"
	"github.com/FluffyKebab/peerwatch/peer"
	"github.com/FluffyKebab/peerwatch/testutil"
)

func createNode(t *testing.T, ctx context.Context) (*Node, <-chan error) {
	t.Helper()

	port, err := testutil.GetAvailablePort()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.ListenAddrs = []multiaddr.Multiaddr{multiaddr.StringCast("/ip4/127.0.0.1/tcp/" + port)}
	cfg.DialTimeout = 3 * time.Second

	priv, _, err := GenerateIdentity()
	require.NoError(t, err)

	n, err := New(zerolog.Nop(), priv, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })

	errChan, err := n.Run(ctx)
	require.NoError(t, err)

	return n, errChan
}

func nextEvent(t *testing.T, ctx context.Context, n *Node, kind node.EventKind) node.Event {
	t.Helper()

	for {
		select {
		case ev := <-n.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-ctx.Done():
			t.Fatalf("timeout waiting for %s", kind)
		}
	}
}

func TestGenerateIdentity(t *testing.T) {
	priv1, id1, err := GenerateIdentity()
	require.NoError(t, err)
	_, id2, err := GenerateIdentity()
	require.NoError(t, err)

	require.NotEqual(t, id1, id2)
	require.True(t, id1.MatchesPrivateKey(priv1))
}

func TestListenAddrBound(t *testing.T) {
	ctx, cancelCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelCtx()

	n, _ := createNode(t, ctx)
	ev := nextEvent(t, ctx, n, node.EventListenAddrBound)
	require.Equal(t, n.ListenAddrs()[0], ev.Addr)
}

func TestConnectAndDisconnect(t *testing.T) {
	ctx, cancelCtx := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelCtx()

	node1, errChan1 := createNode(t, ctx)
	node2, errChan2 := createNode(t, ctx)

	err := node2.Dial(ctx, peer.New(node1.ID(), node1.ListenAddrs()...))
	require.NoError(t, err)

	ev := nextEvent(t, ctx, node1, node.EventConnectionEstablished)
	require.Equal(t, node2.ID(), ev.Peer)
	ev = nextEvent(t, ctx, node2, node.EventConnectionEstablished)
	require.Equal(t, node1.ID(), ev.Peer)

	require.NoError(t, node2.Close())

	ev = nextEvent(t, ctx, node1, node.EventConnectionClosed)
	require.Equal(t, node2.ID(), ev.Peer)

	select {
	case err := <-testutil.CombineErrChan(errChan1, errChan2):
		require.NoError(t, err)
	default:
	}
}

func TestDialUnreachable(t *testing.T) {
	ctx, cancelCtx := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelCtx()

	n, _ := createNode(t, ctx)

	port, err := testutil.GetAvailablePort()
	require.NoError(t, err)
	_, otherID, err := GenerateIdentity()
	require.NoError(t, err)

	err = n.Dial(ctx, peer.New(otherID, multiaddr.StringCast("/ip4/127.0.0.1/tcp/"+port)))
	require.ErrorIs(t, err, node.ErrDial)
}

func TestListenFailure(t *testing.T) {
	cfg := DefaultConfig()
	// TEST-NET-1, never assigned to a local interface.
	cfg.ListenAddrs = []multiaddr.Multiaddr{multiaddr.StringCast("/ip4/192.0.2.1/tcp/0")}

	priv, _, err := GenerateIdentity()
	require.NoError(t, err)
	n, err := New(zerolog.Nop(), priv, cfg)
	require.NoError(t, err)
	defer n.Close()

	_, err = n.Run(context.Background())
	require.ErrorIs(t, err, node.ErrListen)
}

func TestRunAfterClose(t *testing.T) {
	priv, _, err := GenerateIdentity()
	require.NoError(t, err)
	n, err := New(zerolog.Nop(), priv, DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, n.Close())
	require.NoError(t, n.Close())

	_, err = n.Run(context.Background())
	require.ErrorIs(t, err, node.ErrClosed)
}

type staticResolver map[string][]multiaddr.Multiaddr

func (r staticResolver) Resolve(_ context.Context, ma multiaddr.Multiaddr) ([]multiaddr.Multiaddr, error) {
	if res, ok := r[ma.String()]; ok {
		return res, nil
	}
	return []multiaddr.Multiaddr{ma}, nil
}

func TestResolveAddrsKeepsOnlyTargetPeer(t *testing.T) {
	_, target, err := GenerateIdentity()
	require.NoError(t, err)
	_, other, err := GenerateIdentity()
	require.NoError(t, err)

	n := &Node{resolver: staticResolver{
		"/dnsaddr/bootstrap.example.com": {
			multiaddr.StringCast("/ip4/10.0.0.1/tcp/4001/p2p/" + target.String()),
			multiaddr.StringCast("/ip4/10.0.0.2/tcp/4001/p2p/" + other.String()),
			multiaddr.StringCast("/ip4/10.0.0.3/tcp/4001"),
		},
	}}

	addrs, err := n.resolveAddrs(context.Background(), peer.New(
		target,
		multiaddr.StringCast("/dnsaddr/bootstrap.example.com"),
		multiaddr.StringCast("/ip4/10.0.0.4/tcp/4001"),
	))
	require.NoError(t, err)

	got := make([]string, 0, len(addrs))
	for _, a := range addrs {
		got = append(got, a.String())
	}
	require.Equal(t, []string{
		"/ip4/10.0.0.1/tcp/4001",
		"/ip4/10.0.0.3/tcp/4001",
		"/ip4/10.0.0.4/tcp/4001",
	}, got)
}
