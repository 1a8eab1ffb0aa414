package ping

import (
	"context"
	"testing"
	"time"

	"github.com/multiformats/go-multiaddr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/FluffyKebab/peerwatch/node/p2pnode"
	"github.com/FluffyKebab/peerwatch/peer"
	"github.com/FluffyKebab/peerwatch/testutil"
)

func createNode(t *testing.T, ctx context.Context) *p2pnode.Node {
	t.Helper()

	port, err := testutil.GetAvailablePort()
	require.NoError(t, err)

	cfg := p2pnode.DefaultConfig()
	cfg.ListenAddrs = []multiaddr.Multiaddr{multiaddr.StringCast("/ip4/127.0.0.1/tcp/" + port)}

	priv, _, err := p2pnode.GenerateIdentity()
	require.NoError(t, err)
	n, err := p2pnode.New(zerolog.Nop(), priv, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })

	_, err = n.Run(ctx)
	require.NoError(t, err)

	return n
}

func TestPing(t *testing.T) {
	ctx, cancelFunc := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFunc()

	node1 := createNode(t, ctx)
	node2 := createNode(t, ctx)
	require.NoError(t, node1.Dial(ctx, peer.New(node2.ID(), node2.ListenAddrs()...)))

	rtt, err := Register(node1.Host(), zerolog.Nop()).Do(ctx, node2.ID())
	require.NoError(t, err)
	require.Greater(t, rtt, time.Duration(0))
}

func TestRunPingsPeersEachInterval(t *testing.T) {
	ctx, cancelFunc := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFunc()

	node1 := createNode(t, ctx)
	node2 := createNode(t, ctx)
	require.NoError(t, node1.Dial(ctx, peer.New(node2.ID(), node2.ListenAddrs()...)))

	calls := atomic.NewInt32(0)
	done := make(chan struct{})
	go func() {
		Register(node1.Host(), zerolog.Nop()).Run(ctx, 50*time.Millisecond, func() []peer.ID {
			calls.Inc()
			return []peer.ID{node2.ID()}
		})
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 3*time.Second, 10*time.Millisecond)
	cancelFunc()
	<-done
}

func TestRunDisabled(t *testing.T) {
	called := false
	Register(nil, zerolog.Nop()).Run(context.Background(), 0, func() []peer.ID {
		called = true
		return nil
	})
	require.False(t, called)
}
