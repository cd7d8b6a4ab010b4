package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/rpgng/internal/api"
	"github.com/annel0/rpgng/internal/config"
	"github.com/annel0/rpgng/internal/entity"
	"github.com/annel0/rpgng/internal/eventbus"
	"github.com/annel0/rpgng/internal/logging"
	"github.com/annel0/rpgng/internal/observability"
	"github.com/annel0/rpgng/internal/world"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "path to YAML config (default $RPGNG_CONFIG)")
		scenePath  = flag.String("scene", "", "path to YAML scene to load")
		inspect    = flag.Bool("inspect", false, "serve the HTTP inspector until SIGINT/SIGTERM")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rpgng: load config: %v\n", err)
		return 1
	}

	if err := initLogging(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "rpgng: %v\n", err)
		return 1
	}
	defer logging.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		logging.Error("telemetry init failed: %v", err)
		return 1
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logging.Warn("telemetry shutdown: %v", err)
		}
	}()

	bus := eventbus.NewSyncBus()
	if _, err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Error("event logging listener: %v", err)
		return 1
	}
	if url := cfg.Events.URL(); url != "" {
		js, err := eventbus.NewJetStreamBus(url, cfg.Events.Stream, time.Duration(cfg.Events.RetentionHours())*time.Hour)
		if err != nil {
			logging.Error("jetstream sink: %v", err)
			return 1
		}
		defer js.Close()
		// Отписка откладывается раньше w.Close и выполняется после него,
		// чтобы события уничтожения мира тоже ушли в JetStream.
		fwd, err := eventbus.Forward(ctx, bus, js)
		if err != nil {
			logging.Error("jetstream forward: %v", err)
			return 1
		}
		defer fwd.Unsubscribe()
		logging.Info("forwarding lifecycle events to %s (stream %s)", url, cfg.Events.Stream)
	}

	w, err := world.New(cfg, world.WithEventBus(bus))
	if err != nil {
		logging.Error("create world: %v", err)
		return 1
	}
	defer func() {
		if err := w.Close(); err != nil {
			logging.Error("close world: %v", err)
		}
	}()

	if *scenePath != "" {
		if _, err := w.LoadScene(*scenePath); err != nil {
			if errors.Is(err, entity.ErrInternalConsistency) {
				logging.Critical("registry is inconsistent: %v", err)
			} else {
				logging.Error("load scene: %v", err)
			}
			return 1
		}
	}

	st := w.Stats()
	logging.Info("world %s: %d entities, %d items, next id %d", st.ID, st.Registry.Entities, st.Items, st.Registry.NextID)
	for _, tag := range entity.Tags() {
		logging.Debug("  %-9s %d", tag, st.Registry.Components[tag])
	}

	if !*inspect && !cfg.Inspector.Enabled {
		return 0
	}

	in, err := api.NewInspector(w, api.Config{
		Addr:    cfg.Inspector.InspectorAddr(),
		Service: cfg.Telemetry.Service,
	})
	if err != nil {
		logging.Error("create inspector: %v", err)
		return 1
	}
	if err := in.Run(ctx); err != nil {
		logging.Error("inspector: %v", err)
		return 1
	}
	logging.Info("shutting down")
	return 0
}

func initLogging(c config.LogConfig) error {
	fileLevel, err := logging.ParseLevel(c.Level)
	if err != nil {
		return err
	}
	consoleLevel, err := logging.ParseLevel(c.ConsoleLevel)
	if err != nil {
		return err
	}
	if err := logging.Init(logging.Options{
		ConsoleLevel: consoleLevel,
		FileLevel:    fileLevel,
		FilePath:     c.File,
	}); err != nil {
		return err
	}
	return logging.GetLoggerManager().ApplyLevels(c.Components)
}
