package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"tickwatch/internal/config"
)

// flagOverrides are command line values that win over the environment.
type flagOverrides struct {
	tickPeriod time.Duration
	probe      string
	port       int
	logLevel   string
}

func (f *flagOverrides) bind(fs *pflag.FlagSet) {
	fs.DurationVar(&f.tickPeriod, "tick-period", 0, "nominal tick period (e.g. 100ms)")
	fs.StringVar(&f.probe, "probe", "", "resource probe mode: system or fixed")
	fs.IntVar(&f.port, "port", 0, "HTTP port (0 picks 80 as root, 8080 otherwise)")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
}

func newRootCmd() *cobra.Command {
	var flags flagOverrides

	root := &cobra.Command{
		Use:           "tickwatch",
		Short:         "Health and tick-cadence monitor for fixed-tick services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags.bind(root.PersistentFlags())

	serve := newServeCmd(&flags)
	root.AddCommand(serve, newTokenCmd(&flags))
	root.RunE = serve.RunE

	return root
}

// loadConfig reads the environment, applies flags the user set and validates.
func loadConfig(cmd *cobra.Command, flags *flagOverrides) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	pf := cmd.Flags()
	if pf.Changed("tick-period") {
		cfg.TickPeriod = flags.tickPeriod
	}
	if pf.Changed("probe") {
		cfg.ProbeMode = flags.probe
	}
	if pf.Changed("port") {
		cfg.HTTPPort = flags.port
	}
	if pf.Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if cfg.Hostname == "" {
		cfg.Hostname, _ = os.Hostname()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tickwatch:", err)
		os.Exit(1)
	}
}
