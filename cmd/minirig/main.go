package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/edaniels/golog"
	"github.com/jessevdk/go-flags"

	"github.com/gwillem/minirig/pkg/bus/bustest"
	"github.com/gwillem/minirig/pkg/control"
	"github.com/gwillem/minirig/pkg/rig"
)

type Options struct {
	Config string `long:"config" default:"minirig.json" description:"Config file (.json, .yaml or .yml)"`
	Sim    bool   `long:"sim" description:"Run against a simulated rig instead of the serial bus"`
	Debug  bool   `long:"debug" description:"Verbose logging"`

	Scan    ScanCommand    `command:"scan" description:"Find the rig on a serial port and save the config"`
	Monitor MonitorCommand `command:"monitor" description:"Live position chart with health and timing stats"`
	Wave    WaveCommand    `command:"wave" description:"Move every motor along a sine wave"`
	Hold    HoldCommand    `command:"hold" description:"Alternate between two poses until interrupted"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "minirig - control loop for the nine-servo desk rig"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

func newLogger() golog.Logger {
	if opts.Debug {
		return golog.NewDevelopmentLogger("minirig")
	}
	return golog.NewLogger("minirig")
}

// loadConfig reads the config file if present, then applies MINIRIG_*
// environment overrides.
func loadConfig() (*rig.Config, error) {
	cfg := rig.DefaultConfig()
	if _, err := os.Stat(opts.Config); err == nil {
		if cfg, err = rig.LoadConfigFrom(opts.Config); err != nil {
			return nil, err
		}
	} else if !opts.Sim {
		return nil, fmt.Errorf("no configuration at %s, run 'minirig scan' first", opts.Config)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", opts.Config, err)
	}
	return cfg, nil
}

// startLoop opens the rig, or a simulated one with --sim.
func startLoop(ctx context.Context, cfg *rig.Config, logger golog.Logger) (*control.Loop, error) {
	if !opts.Sim {
		if cfg.Port == "" {
			return nil, fmt.Errorf("no serial port configured, run 'minirig scan' first")
		}
		return control.Open(ctx, cfg, logger)
	}

	lc, err := control.ConfigFrom(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Infow("using simulated rig", "variant", lc.Map.Variant())
	return control.New(ctx, bustest.NewSim(lc.Map), lc)
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// closeLoop releases the motors and reports any shutdown error.
func closeLoop(l *control.Loop, logger golog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := l.Close(ctx); err != nil {
		logger.Errorw("shutdown", "error", err)
	}
}
