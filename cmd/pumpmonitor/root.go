// cmd/pumpmonitor/root.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tamzrod/pump-monitor/internal/config"
)

var (
	configPath string
	logLevel   string
	simulate   bool
	listenAddr string
)

var rootCmd = &cobra.Command{
	Use:   "pumpmonitor",
	Short: "S7 pump station monitor",
	Long: `pumpmonitor polls one data block of a Siemens S7 controller, decodes the
state of every pump in it, detects trips and trip recoveries, and publishes the
result to the dashboard, the event store and the optional MQTT and Modbus
outputs.

Without --config the built-in plant table is used; --simulate replaces the
controller with an in-process plant.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "Use the in-process simulated plant")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "", "Override http.listen")
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}

// loadConfig reads the config named by --config (or starts from an empty one),
// applies flag overrides, then validates and normalizes it.
func loadConfig(path string) (*config.Config, error) {
	c := &config.Config{}
	if path != "" {
		var err error
		if c, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	if simulate {
		c.PLC.Simulate = true
	}
	if listenAddr != "" {
		c.HTTP.Listen = listenAddr
	}

	if err := config.Validate(c); err != nil {
		return nil, err
	}
	config.Normalize(c)
	return c, nil
}
