package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/FluffyKebab/peerwatch/node/p2pnode"
	"github.com/FluffyKebab/peerwatch/peer"
	"github.com/FluffyKebab/peerwatch/runner"
)

var ErrInvalid = errors.New("invalid config")

const (
	EnvPrefix = "PEERWATCH"

	// Flag names double as config file keys and, upper-cased with the
	// prefix, as environment variables.
	listenAddr        = "listen-addr"
	bootstrapAddr     = "bootstrap-addr"
	reportInterval    = "report-interval"
	dialTimeout       = "dial-timeout"
	dialRetries       = "dial-retries"
	dialBackoff       = "dial-backoff"
	keepAliveInterval = "keepalive-interval"
	connLowWater      = "conn-low-watermark"
	connHighWater     = "conn-high-watermark"
	connGracePeriod   = "conn-grace-period"
	metricsAddr       = "metrics-addr"
	logLevel          = "log-level"
	libp2pLogLevel    = "libp2p-log-level"
	configFile        = "config"
)

// DefaultBootstrapAddr is one of the public libp2p bootstrap nodes.
const DefaultBootstrapAddr = "/dnsaddr/bootstrap.libp2p.io/p2p/QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN"

type Config struct {
	ListenAddrs       []string      `mapstructure:"listen-addr"`
	BootstrapAddr     string        `mapstructure:"bootstrap-addr"`
	ReportInterval    time.Duration `mapstructure:"report-interval"`
	DialTimeout       time.Duration `mapstructure:"dial-timeout"`
	DialRetries       uint64        `mapstructure:"dial-retries"`
	DialBackoff       time.Duration `mapstructure:"dial-backoff"`
	KeepAliveInterval time.Duration `mapstructure:"keepalive-interval"`
	ConnLowWater      int           `mapstructure:"conn-low-watermark"`
	ConnHighWater     int           `mapstructure:"conn-high-watermark"`
	ConnGracePeriod   time.Duration `mapstructure:"conn-grace-period"`
	MetricsAddr       string        `mapstructure:"metrics-addr"`
	LogLevel          string        `mapstructure:"log-level"`
	Libp2pLogLevel    string        `mapstructure:"libp2p-log-level"`
}

func Default() Config {
	nodeCfg := p2pnode.DefaultConfig()
	return Config{
		ListenAddrs:       []string{"/ip4/0.0.0.0/tcp/0"},
		BootstrapAddr:     DefaultBootstrapAddr,
		ReportInterval:    runner.DefaultReportInterval,
		DialTimeout:       nodeCfg.DialTimeout,
		DialRetries:       0,
		DialBackoff:       time.Second,
		KeepAliveInterval: 15 * time.Second,
		ConnLowWater:      nodeCfg.ConnLowWater,
		ConnHighWater:     nodeCfg.ConnHighWater,
		ConnGracePeriod:   nodeCfg.ConnGracePeriod,
		MetricsAddr:       "",
		LogLevel:          "info",
		Libp2pLogLevel:    "error",
	}
}

// InitializeFlags declares every config flag on flags, using cfg for defaults.
func InitializeFlags(flags *pflag.FlagSet, cfg Config) {
	flags.StringSlice(listenAddr, cfg.ListenAddrs, "multiaddr to listen on, may be repeated")
	flags.String(bootstrapAddr, cfg.BootstrapAddr, "full multiaddr (with /p2p/<id>) of the peer dialed at startup, empty to disable")
	flags.Duration(reportInterval, cfg.ReportInterval, "how often the connected peer set is reported")
	flags.Duration(dialTimeout, cfg.DialTimeout, "timeout for one bootstrap dial attempt")
	flags.Uint64(dialRetries, cfg.DialRetries, "extra bootstrap dial attempts after a failure, 0 dials once")
	flags.Duration(dialBackoff, cfg.DialBackoff, "initial backoff between bootstrap dial attempts")
	flags.Duration(keepAliveInterval, cfg.KeepAliveInterval, "how often connected peers are pinged, 0 to disable")
	flags.Int(connLowWater, cfg.ConnLowWater, "connection manager low watermark")
	flags.Int(connHighWater, cfg.ConnHighWater, "connection manager high watermark")
	flags.Duration(connGracePeriod, cfg.ConnGracePeriod, "connection manager grace period for new connections")
	flags.String(metricsAddr, cfg.MetricsAddr, "address to serve prometheus metrics on, empty to disable")
	flags.String(logLevel, cfg.LogLevel, "log level (trace, debug, info, warn, error)")
	flags.String(libp2pLogLevel, cfg.Libp2pLogLevel, "log level of the libp2p internals")
	flags.String(configFile, "", "optional config file (yaml, toml or json)")
}

// Load reads flags, environment and the optional config file, in viper's
// precedence order, and validates the result.
func Load(v *viper.Viper, flags *pflag.FlagSet) (Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	err := v.BindPFlags(flags)
	if err != nil {
		return Config{}, fmt.Errorf("binding flags: %w", err)
	}

	if file := v.GetString(configFile); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", file, err)
		}
	}

	var cfg Config
	err = v.Unmarshal(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var result *multierror.Error

	if len(c.ListenAddrs) == 0 {
		result = multierror.Append(result, errors.New("at least one listen address is required"))
	}
	if _, err := peer.ParseAddrs(c.ListenAddrs); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: %w", listenAddr, err))
	}
	if c.BootstrapAddr != "" {
		if _, err := peer.FromAddr(c.BootstrapAddr); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", bootstrapAddr, err))
		}
	}
	if c.ReportInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("%s must be positive", reportInterval))
	}
	if c.DialTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("%s must be positive", dialTimeout))
	}
	if c.DialRetries > 0 && c.DialBackoff <= 0 {
		result = multierror.Append(result, fmt.Errorf("%s must be positive when retrying", dialBackoff))
	}
	if c.KeepAliveInterval < 0 {
		result = multierror.Append(result, fmt.Errorf("%s must not be negative", keepAliveInterval))
	}
	if c.ConnLowWater < 0 || c.ConnHighWater < c.ConnLowWater {
		result = multierror.Append(result, fmt.Errorf("need 0 <= %s <= %s", connLowWater, connHighWater))
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: %w", logLevel, err))
	}
	if _, err := logging.LevelFromString(c.Libp2pLogLevel); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: %w", libp2pLogLevel, err))
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func (c Config) NodeConfig() (p2pnode.Config, error) {
	addrs, err := peer.ParseAddrs(c.ListenAddrs)
	if err != nil {
		return p2pnode.Config{}, err
	}

	cfg := p2pnode.DefaultConfig()
	cfg.ListenAddrs = addrs
	cfg.DialTimeout = c.DialTimeout
	cfg.ConnLowWater = c.ConnLowWater
	cfg.ConnHighWater = c.ConnHighWater
	cfg.ConnGracePeriod = c.ConnGracePeriod
	return cfg, nil
}

func (c Config) RunnerConfig() (runner.Config, error) {
	cfg := runner.DefaultConfig()
	cfg.ReportInterval = c.ReportInterval
	cfg.DialRetries = c.DialRetries
	cfg.DialBackoff = c.DialBackoff

	if c.BootstrapAddr != "" {
		p, err := peer.FromAddr(c.BootstrapAddr)
		if err != nil {
			return runner.Config{}, err
		}
		cfg.Bootstrap = &p
	}

	return cfg, nil
}
