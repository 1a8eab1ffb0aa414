// Package ping keeps connections to tracked peers alive by pinging them with
// the libp2p ping protocol.
package ping

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	libp2pping "github.com/libp2p/go-libp2p/p2p/protocol/ping"
	"github.com/rs/zerolog"

	"github.com/FluffyKebab/peerwatch/peer"
)

type Service struct {
	host host.Host
	log  zerolog.Logger
}

func Register(h host.Host, log zerolog.Logger) Service {
	return Service{
		host: h,
		log:  log.With().Str("component", "keepalive").Logger(),
	}
}

// Do sends one ping over the existing connection to id and returns the rtt.
func (s Service) Do(ctx context.Context, id peer.ID) (time.Duration, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	select {
	case res := <-libp2pping.Ping(ctx, s.host, id):
		return res.RTT, res.Error
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Run pings every peer returned by peers once per interval until ctx is
// done. A zero interval disables it.
func (s Service) Run(ctx context.Context, interval time.Duration, peers func() []peer.ID) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pingAll(ctx, interval, peers())
		}
	}
}

func (s Service) pingAll(ctx context.Context, timeout time.Duration, ids []peer.ID) {
	for _, id := range ids {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		rtt, err := s.Do(pingCtx, id)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn().Err(err).Str("peer_id", id.String()).Msg("keepalive ping failed")
			continue
		}

		s.log.Debug().Str("peer_id", id.String()).Dur("rtt", rtt).Msg("keepalive ping")
	}
}
