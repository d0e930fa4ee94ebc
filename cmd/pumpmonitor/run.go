// cmd/pumpmonitor/run.go
package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/pump-monitor/internal/config"
	"github.com/tamzrod/pump-monitor/internal/dashboard"
	"github.com/tamzrod/pump-monitor/internal/emitter"
	"github.com/tamzrod/pump-monitor/internal/metrics"
	"github.com/tamzrod/pump-monitor/internal/monitor"
	"github.com/tamzrod/pump-monitor/internal/poller"
	"github.com/tamzrod/pump-monitor/internal/publish"
	"github.com/tamzrod/pump-monitor/internal/pump"
	"github.com/tamzrod/pump-monitor/internal/store"
	"github.com/tamzrod/pump-monitor/internal/transition"
	"github.com/tamzrod/pump-monitor/internal/writer"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the controller and serve the dashboard until interrupted",
	Long: `Start the acquisition loop and every configured output:

  - dashboard websocket and JSON queries (http.listen)
  - sqlite event and pressure history store (unless store.disabled)
  - MQTT events and snapshots (when mqtt.broker is set)
  - Modbus TCP mirror (when mirror.endpoint is set)

The process stops on SIGINT or SIGTERM. A controller that is down at startup
is not an error: it shows up as disconnected snapshots until it comes back.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	log, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	c, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	m := metrics.New()

	// --------------------
	// Acquisition
	// --------------------

	p, closePoller, err := poller.Build(c, log, m)
	if err != nil {
		return err
	}
	defer closePoller()

	// --------------------
	// Publisher + sinks
	// --------------------

	feed := publish.NewFeed(m)
	defer feed.Close()

	pub, err := publish.NewPublisher(historyConfig(c), feed, log, m)
	if err != nil {
		return err
	}
	defer pub.Close()

	var queries dashboard.Queries
	if !c.Store.Disabled {
		st, err := store.Open(ctx, c.Store.Path, log)
		if err != nil {
			return err
		}
		defer st.Close()

		pub.AddEventSink(st)
		pub.AddHistorySink(st)
		queries = st
	}

	hub := dashboard.NewHub(log, m)
	pub.AddEventSink(hub)

	g, gctx := errgroup.WithContext(ctx)

	// ---- mqtt (optional) ----
	if c.MQTT.Broker != "" {
		em := emitter.NewMQTTEmitter(emitter.Config{
			Broker:           c.MQTT.Broker,
			ClientID:         c.MQTT.ClientID,
			Username:         c.MQTT.Username,
			Password:         c.MQTT.Password,
			TopicPrefix:      c.MQTT.TopicPrefix,
			QoS:              c.MQTT.QoS,
			PublishSnapshots: c.MQTT.PublishSnapshots,
		}, log, m)
		if err := em.Connect(ctx); err != nil {
			return err
		}
		defer em.Disconnect()
		pub.AddEventSink(em)

		if c.MQTT.PublishSnapshots {
			sub, err := feed.Subscribe(em.SinkName())
			if err != nil {
				return err
			}
			g.Go(func() error {
				em.Run(gctx, sub.C())
				return nil
			})
		}
	}

	// ---- modbus mirror (optional) ----
	if c.Mirror.Endpoint != "" {
		if err := startMirror(gctx, g, c, feed, log, m); err != nil {
			return err
		}
	}

	// ---- dashboard ----
	srv, err := dashboard.NewServer(dashboard.Options{
		Hub:     hub,
		Latest:  pub.Latest,
		Queries: queries,
		Devices: c.PumpBlock().Devices,
		Metrics: m,
		Log:     log,
	})
	if err != nil {
		return err
	}
	dashSub, err := feed.Subscribe(hub.SinkName())
	if err != nil {
		return err
	}

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.Pump(gctx, dashSub.C())
		return nil
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx, c.HTTP.Listen)
	})

	// --------------------
	// Monitor loop
	// --------------------

	mon, err := monitor.New(transition.Detector{
		SuppressOnError: *c.Transitions.SuppressOnError,
	}, pub, log, m)
	if err != nil {
		return err
	}

	snaps := make(chan pump.Snapshot)
	g.Go(func() error {
		p.Run(gctx, snaps)
		return nil
	})
	g.Go(func() error {
		mon.Run(gctx, snaps)
		return nil
	})

	log.Info("pump monitor started",
		"pumps", len(c.PumpBlock().Devices),
		"db", c.Block.DB,
		"interval_ms", c.Acquisition.IntervalMs,
		"simulate", c.PLC.Simulate,
	)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	// drain queued deliveries before the store and broker go away
	pub.Close()
	log.Info("pump monitor stopped")
	return err
}

func historyConfig(c *config.Config) publish.Config {
	pc := publish.Config{
		HistoryEvery:   c.History.Every,
		HistoryOnError: c.History.OnError,
	}
	if c.History.Disabled {
		pc.HistoryEvery = 0
	}
	return pc
}

func startMirror(ctx context.Context, g *errgroup.Group, c *config.Config, feed *publish.Feed, log *slog.Logger, m *metrics.Metrics) error {
	plan, err := writer.BuildPlan(c.Mirror, c.PumpBlock())
	if err != nil {
		return err
	}
	cli, err := writer.BuildEndpointClient(c.Mirror)
	if err != nil {
		return err
	}

	mirror := writer.NewMirror(plan, cli, log, m)
	sub, err := feed.Subscribe(mirror.SinkName())
	if err != nil {
		cli.Close()
		return err
	}

	g.Go(func() error {
		defer cli.Close()
		mirror.Run(ctx, sub.C())
		return nil
	})
	return nil
}
