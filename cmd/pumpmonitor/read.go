// cmd/pumpmonitor/read.go
package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/tamzrod/pump-monitor/internal/poller"
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Run one acquisition cycle and print the snapshot as JSON",
	Long: `Connect, read the data block once (with the configured retries), print the
resulting snapshot as JSON on stdout and disconnect.

Exit codes:
  0 - Snapshot acquired
  1 - The cycle produced an error snapshot (it is still printed)`,
	RunE: runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)
}

func runRead(cmd *cobra.Command, _ []string) error {
	log, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	c, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	p, closePoller, err := poller.Build(c, log, nil)
	if err != nil {
		return err
	}
	defer closePoller()

	snap := p.Acquire(cmd.Context())

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return err
	}
	if !snap.OK() {
		return errors.New("read: " + snap.Fault.String() + ": " + snap.Error)
	}
	return nil
}
