// Package runner drives the node: it folds connection lifecycle events from
// the network into the peer tracker and reports the tracked set on a fixed
// interval.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/FluffyKebab/peerwatch/node"
	"github.com/FluffyKebab/peerwatch/peer"
	"github.com/FluffyKebab/peerwatch/report"
	"github.com/FluffyKebab/peerwatch/tracker"
)

const DefaultReportInterval = 5 * time.Second

type Config struct {
	ReportInterval time.Duration

	// Bootstrap is dialed once at startup when set.
	Bootstrap *peer.Peer
	// DialRetries is the number of extra attempts after a failed bootstrap
	// dial. Zero means a single attempt.
	DialRetries uint64
	DialBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		ReportInterval: DefaultReportInterval,
		DialBackoff:    time.Second,
	}
}

type Option func(*Runner)

// WithSink adds a sink that receives every periodic snapshot.
func WithSink(s report.Sink) Option {
	return func(r *Runner) {
		r.sinks = append(r.sinks, s)
	}
}

// WithEventHook registers f to be called after each lifecycle event is applied.
func WithEventHook(f func(tracker.Event)) Option {
	return func(r *Runner) {
		r.onEvent = f
	}
}

// WithDialFailureHook registers f to be called when the bootstrap dial fails.
func WithDialFailureHook(f func(error)) Option {
	return func(r *Runner) {
		r.onDialFailure = f
	}
}

type Runner struct {
	log     zerolog.Logger
	node    node.Node
	tracker *tracker.Tracker
	cfg     Config

	sinks         report.Sinks
	onEvent       func(tracker.Event)
	onDialFailure func(error)
}

func New(log zerolog.Logger, n node.Node, t *tracker.Tracker, cfg Config, opts ...Option) *Runner {
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = DefaultReportInterval
	}

	r := &Runner{
		log:     log.With().Str("component", "runner").Logger(),
		node:    n,
		tracker: t,
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Translate maps a network event to a tracker event. Events that do not
// change peer membership are reported as false.
func Translate(ev node.Event) (tracker.Event, bool) {
	switch ev.Kind {
	case node.EventConnectionEstablished:
		return tracker.Connect(ev.Peer), true
	case node.EventConnectionClosed:
		return tracker.Disconnect(ev.Peer), true
	default:
		return tracker.Event{}, false
	}
}

// Run blocks until ctx is done or the node reports an unrecoverable error.
// Failing to start the node is returned immediately.
func (r *Runner) Run(ctx context.Context) error {
	errChan, err := r.node.Run(ctx)
	if err != nil {
		return fmt.Errorf("starting node: %w", err)
	}
	r.log.Info().Str("peer_id", r.node.ID().String()).Msg("local peer id")

	dialDone := make(chan error, 1)
	if r.cfg.Bootstrap != nil {
		bootstrap := *r.cfg.Bootstrap
		go func() {
			dialDone <- r.dial(ctx, bootstrap)
		}()
	}

	ticker := time.NewTicker(r.cfg.ReportInterval)
	defer ticker.Stop()

	events := r.node.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			return fmt.Errorf("node failed: %w", err)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.handle(ev)
		case err := <-dialDone:
			r.dialFinished(err)
		case <-ticker.C:
			// Apply whatever is already queued so the report is not behind.
			r.drain(events)
			r.sinks.Report(r.tracker.Snapshot())
		}
	}
}

func (r *Runner) drain(events <-chan node.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.handle(ev)
		default:
			return
		}
	}
}

func (r *Runner) handle(ev node.Event) {
	if ev.Kind == node.EventListenAddrBound {
		r.log.Info().Stringer("addr", ev.Addr).Msg("listening")
		return
	}

	tev, ok := Translate(ev)
	if !ok {
		return
	}

	r.tracker.Apply(tev)
	r.log.Info().
		Str("peer_id", tev.Peer.String()).
		Stringer("kind", tev.Kind).
		Msg("peer lifecycle")

	if r.onEvent != nil {
		r.onEvent(tev)
	}
}

func (r *Runner) dial(ctx context.Context, p peer.Peer) error {
	if r.cfg.DialRetries == 0 {
		return r.node.Dial(ctx, p)
	}

	backoff := retry.NewExponential(r.cfg.DialBackoff)
	return retry.Do(ctx, retry.WithMaxRetries(r.cfg.DialRetries, backoff), func(ctx context.Context) error {
		err := r.node.Dial(ctx, p)
		if err != nil {
			r.log.Debug().Err(err).Str("addr", p.String()).Msg("bootstrap dial attempt failed, retrying")
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (r *Runner) dialFinished(err error) {
	bootstrap := r.cfg.Bootstrap
	if err == nil {
		r.log.Info().Str("addr", bootstrap.String()).Msg("connected to bootstrap peer")
		return
	}

	r.log.Warn().
		Err(err).
		Str("addr", bootstrap.String()).
		Str("peer_id", bootstrap.ID.String()).
		Msg("bootstrap dial failed, continuing without it")

	if r.onDialFailure != nil {
		r.onDialFailure(err)
	}
}
