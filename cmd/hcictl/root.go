package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/hcilink/internal/config"
	logs "github.com/danmuck/hcilink/internal/logging"
	"github.com/danmuck/hcilink/internal/observability"
	"github.com/danmuck/hcilink/internal/protocol/session"
	"github.com/danmuck/hcilink/internal/serial"
)

type globalFlags struct {
	configPath  string
	port        string
	baud        int
	timeout     time.Duration
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:           "hcictl",
		Short:         "Drive a radio-test controller over an H4 UART link",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to TOML config (default: built-in defaults)")
	pf.StringVar(&flags.port, "port", "", "Serial device (overrides config)")
	pf.IntVar(&flags.baud, "baud", 0, "Baud rate (overrides config)")
	pf.DurationVar(&flags.timeout, "timeout", 0, "Response timeout (overrides config)")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	root.AddCommand(newCatalogueCmd())
	root.AddCommand(newResetCmd(&flags))
	root.AddCommand(newTxTestCmd(&flags))
	root.AddCommand(newRxTestCmd(&flags))
	root.AddCommand(newTestEndCmd(&flags))
	root.AddCommand(newSendCmd(&flags))
	root.AddCommand(newListenCmd(&flags))
	return root
}

// resolveConfig loads the config file, then applies explicitly set flags.
func resolveConfig(cmd *cobra.Command, flags *globalFlags) (config.Config, error) {
	cfg := config.DefaultConfig()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	pf := cmd.Flags()
	if pf.Changed("port") {
		cfg.Port = flags.port
	}
	if pf.Changed("baud") {
		cfg.Baud = flags.baud
	}
	if pf.Changed("timeout") {
		cfg.ResponseTimeout = flags.timeout
	}
	if pf.Changed("metrics-addr") {
		cfg.MetricsAddr = flags.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func configureLogging(cfg config.Config) {
	lc := logs.RuntimeConfig()
	if os.Getenv(logs.EnvLogLevel) == "" {
		if lvl, ok := logs.ParseLevel(cfg.LogLevel); ok {
			lc.Level = lvl
		}
	}
	logs.Apply(lc)
}

// runLink opens the configured port, starts a link and runs fn against it.
// The metrics server, when configured, runs alongside and stops with fn.
func runLink(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, link *session.Link, cfg config.Config) error) error {
	cfg, err := resolveConfig(cmd, flags)
	if err != nil {
		return err
	}
	configureLogging(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port, err := serial.Open(cfg.Serial())
	if err != nil {
		return err
	}
	dumper := cfg.Dumper()
	defer func() {
		if err := dumper.Close(); err != nil {
			logs.Warnf("hcictl dump close err=%v", err)
		}
	}()

	linkLog := observability.ComponentLogger("hcictl")
	linkLog.Info().
		Str("port", cfg.Port).
		Int("baud", cfg.Baud).
		Dur("timeout", cfg.ResponseTimeout).
		Bool("dump", cfg.Dump.Enabled).
		Msg("link_open")
	link := session.NewLink(port, cfg.Session(), session.WithDumper(dumper))
	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()
	link.Start(runCtx)

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return observability.ServeMetrics(runCtx, cfg.MetricsAddr)
		})
	}
	g.Go(func() error {
		defer cancel()
		return fn(runCtx, link, cfg)
	})

	err = g.Wait()
	if cerr := link.Close(); cerr != nil {
		logs.Debugf("hcictl link close err=%v", cerr)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	return nil
}
