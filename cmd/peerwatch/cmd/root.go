package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/FluffyKebab/peerwatch/config"
	"github.com/FluffyKebab/peerwatch/metrics"
	"github.com/FluffyKebab/peerwatch/node/p2pnode"
	"github.com/FluffyKebab/peerwatch/protocol/ping"
	"github.com/FluffyKebab/peerwatch/report"
	"github.com/FluffyKebab/peerwatch/runner"
	"github.com/FluffyKebab/peerwatch/tracker"
)

var rootCmd = &cobra.Command{
	Use:          "peerwatch",
	Short:        "Run a libp2p node and periodically report its connected peers",
	SilenceUsage: true,
	RunE:         run,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	config.InitializeFlags(rootCmd.Flags(), config.Default())
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(viper.New(), cmd.Flags())
	if err != nil {
		return err
	}

	log, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return err
	}

	lvl, err := logging.LevelFromString(cfg.Libp2pLogLevel)
	if err != nil {
		return err
	}
	logging.SetAllLoggers(lvl)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runNode(ctx, log, cfg)
}

func newLogger(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parsing log level: %w", err)
	}

	out := zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
		cw.Out = w
	})
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

// runNode assembles the node and blocks until ctx is done. Startup failures
// are returned, everything after that is logged.
func runNode(ctx context.Context, log zerolog.Logger, cfg config.Config) error {
	log = log.With().Str("run_id", uuid.NewString()).Logger()

	priv, id, err := p2pnode.GenerateIdentity()
	if err != nil {
		return fmt.Errorf("generating identity: %w", err)
	}
	log.Debug().Str("peer_id", id.String()).Msg("generated identity")

	nodeCfg, err := cfg.NodeConfig()
	if err != nil {
		return err
	}
	runnerCfg, err := cfg.RunnerConfig()
	if err != nil {
		return err
	}

	n, err := p2pnode.New(log, priv, nodeCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			log.Warn().Err(err).Msg("closing node")
		}
	}()

	// Cancelled before the node closes so helpers stop using the host first.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	peers := tracker.New()
	opts := []runner.Option{
		runner.WithSink(report.NewLogSink(log)),
	}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		collector, err := metrics.NewCollector(reg)
		if err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
		if _, err := metrics.NewServer(log, cfg.MetricsAddr, reg).Start(ctx); err != nil {
			return fmt.Errorf("starting metrics server on %s: %w", cfg.MetricsAddr, err)
		}

		opts = append(opts,
			runner.WithSink(collector),
			runner.WithEventHook(func(ev tracker.Event) { collector.LifecycleEvent(ev.Kind.String()) }),
			runner.WithDialFailureHook(func(error) { collector.DialFailure() }),
		)
	}

	go ping.Register(n.Host(), log).Run(ctx, cfg.KeepAliveInterval, peers.Snapshot)

	return runner.New(log, n, peers, runnerCfg, opts...).Run(ctx)
}
