// Package run implements the run subcommand, which drives the line in real
// time and serves the HTTP API.
package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/qcline/internal/api"
	"github.com/tphakala/qcline/internal/buildinfo"
	"github.com/tphakala/qcline/internal/conf"
	"github.com/tphakala/qcline/internal/events"
	"github.com/tphakala/qcline/internal/history"
	"github.com/tphakala/qcline/internal/line"
	"github.com/tphakala/qcline/internal/logger"
	"github.com/tphakala/qcline/internal/mqtt"
	"github.com/tphakala/qcline/internal/notification"
	"github.com/tphakala/qcline/internal/observability"
	"github.com/tphakala/qcline/internal/simulator"
	"github.com/tphakala/qcline/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// Command creates the run command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		port     string
		seed     int64
		tickRate int
		noHTTP   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the production line in real time",
		Long:  "Run the simulated production line in real time and serve the HTTP control API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("port") {
				settings.WebServer.Port = port
			}
			if flags.Changed("seed") {
				settings.Simulation.Seed = seed
			}
			if flags.Changed("tick-rate") {
				settings.Simulation.TickRate = tickRate
			}
			if noHTTP {
				settings.WebServer.Enabled = false
			}
			if err := conf.ValidateSettings(settings); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return execute(ctx, settings)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "HTTP listen port (overrides webserver.port)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed, 0 picks one from the clock")
	cmd.Flags().IntVar(&tickRate, "tick-rate", 0, "Simulation ticks per second")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "Disable the HTTP API")

	return cmd
}

// execute wires every component and blocks until ctx is cancelled or a
// component fails.
func execute(ctx context.Context, settings *conf.Settings) error {
	log := logger.Global().Module("run")

	runID := uuid.New().String()
	info := buildinfo.Current(runID)

	if err := telemetry.Init(settings, info); err != nil {
		log.Warn("error reporting unavailable", logger.Error(err))
	}
	defer telemetry.Shutdown(shutdownTimeout)

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	store, err := history.Open(settings.History.DSN, settings.History.SlowQueryThreshold)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close history store", logger.Error(err))
		}
	}()

	bus := events.New(&events.Config{
		BufferSize: settings.EventBus.BufferSize,
		Workers:    settings.EventBus.Workers,
		Source:     settings.Main.Name,
	})
	defer func() {
		if err := bus.Shutdown(shutdownTimeout); err != nil {
			log.Warn("event bus did not drain", logger.Error(err))
		}
	}()

	if settings.MQTT.Enabled {
		client := mqtt.NewClient(mqtt.ConfigFromSettings(settings), m.MQTT)
		if err := client.Connect(ctx); err != nil {
			// paho keeps retrying in the background
			log.Warn("MQTT broker not reachable", logger.Error(err))
		}
		defer client.Disconnect()
		if err := bus.RegisterConsumer(mqtt.NewPublisher(client, mqtt.ConfigFromSettings(settings).Topic)); err != nil {
			return err
		}
	}

	if settings.Notification.Enabled {
		sender, err := notification.NewShoutrrrSender(settings.Notification.URLs, settings.Notification.Timeout)
		if err != nil {
			return err
		}
		notifier := notification.NewNotifier(notification.ConfigFromSettings(&settings.Notification), sender, m.Notification)
		if err := bus.RegisterConsumer(notifier); err != nil {
			return err
		}
	}

	engine, err := simulator.BuildEngine(settings,
		line.WithAlarmPublisher(bus),
		line.WithHistory(store),
		line.WithObserver(m.Line))
	if err != nil {
		return err
	}

	runner := simulator.New(engine,
		simulator.WithID(runID),
		simulator.WithTickRate(settings.Simulation.TickRate),
		simulator.WithMaxStep(settings.Simulation.MaxStep),
		simulator.WithFrameObserver(m.Line))

	log.Info("starting qcline",
		logger.String("run_id", runID),
		logger.String("version", info.GetVersion()),
		logger.Int("lanes", len(engine.LaneIDs())),
		logger.Bool("http", settings.WebServer.Enabled),
		logger.Bool("mqtt", settings.MQTT.Enabled),
		logger.Bool("notifications", settings.Notification.Enabled))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })

	if settings.WebServer.Enabled {
		server, err := api.New(settings, runner,
			api.WithHistory(store),
			api.WithMetrics(m),
			api.WithBuildInfo(info))
		if err != nil {
			return err
		}
		g.Go(func() error { return server.Run(gctx) })
	}

	err = g.Wait()
	log.Info("qcline stopped", logger.String("run_id", runID))
	return err
}
