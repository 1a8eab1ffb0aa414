package report

import (
	"github.com/rs/zerolog"

	"github.com/FluffyKebab/peerwatch/peer"
)

// Sink receives every periodic snapshot of the connected peers.
type Sink interface {
	Report(peers []peer.ID)
}

type LogSink struct {
	log zerolog.Logger
}

var _ Sink = LogSink{}

func NewLogSink(log zerolog.Logger) LogSink {
	return LogSink{log: log}
}

func (s LogSink) Report(peers []peer.ID) {
	ids := make([]string, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, p.String())
	}

	s.log.Info().
		Int("count", len(peers)).
		Strs("peers", ids).
		Msg("connected peers")
}

// Sinks fans a report out to every sink in order.
type Sinks []Sink

var _ Sink = Sinks{}

func (s Sinks) Report(peers []peer.ID) {
	for _, sink := range s {
		sink.Report(peers)
	}
}

// Func adapts a function to a Sink.
type Func func(peers []peer.ID)

func (f Func) Report(peers []peer.ID) {
	f(peers)
}
