package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gr-butler/soilmonitor/buffer"
	"github.com/gr-butler/soilmonitor/clocksync"
	"github.com/gr-butler/soilmonitor/config"
	"github.com/gr-butler/soilmonitor/env"
	"github.com/gr-butler/soilmonitor/led"
	"github.com/gr-butler/soilmonitor/metrics"
	"github.com/gr-butler/soilmonitor/network"
	"github.com/gr-butler/soilmonitor/power"
	"github.com/gr-butler/soilmonitor/sensors"
	"github.com/gr-butler/soilmonitor/telemetry"
	"github.com/jonboulle/clockwork"

	logger "github.com/sirupsen/logrus"
)

const version = "GRB-SoilMonitor-1.0.0"

// raw moisture reads kept for the web endpoint
const historySize = 60

func main() {
	args := env.ParseArgs()
	logger.SetFormatter(&logger.TextFormatter{FullTimestamp: true})
	if *args.Verbose {
		logger.SetLevel(logger.DebugLevel)
	}
	logger.Infof("Starting soil monitor [%v]", version)

	cfg, err := config.Load(*args.Config)
	if err != nil {
		logger.Fatalf("Failed to load config [%v]", err)
	}
	if *args.NoSleep {
		cfg.Sleep.Continuous = true
	}
	if cfg.Telemetry.Token == "" {
		logger.Error("Access token not set! TB_TOKEN or telemetry.token must be set.")
	}

	clock := clockwork.NewRealClock()
	var b *board
	if *args.Test {
		logger.Info("TEST MODE")
		b = simulatedBoard(cfg, clock)
	} else {
		b = hardwareBoard(cfg, clock)
		defer b.sensors.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		w := newStation(cfg, b, *args.Moist)
		err := w.Boot(ctx)
		if errors.Is(err, power.ErrRestart) {
			continue
		}
		if err != nil {
			logger.Errorf("Boot ended [%v]", err)
			// stay out of a tight failure loop
			b.clock.Sleep(cfg.Network.RetryDelay)
			continue
		}
		break
	}
	logger.Info("Exiting...")
}

// hardwareBoard opens the real devices. Failures here are fatal.
func hardwareBoard(cfg *config.Config, clock clockwork.Clock) *board {
	logger.Infof("%v: Initialize sensors...", time.Now().Format(time.RFC822))
	s, err := sensors.Open(cfg.Sensors)
	if err != nil {
		logger.Fatalf("Failed to initialise sensors!! [%v]", err)
	}
	platform, err := power.NewRTC(cfg.Sleep.Mode)
	if err != nil {
		logger.Fatalf("Failed to initialise power management [%v]", err)
	}
	return &board{
		sensors:   s,
		led:       led.NewLED("status", cfg.Sensors.StatusLed),
		platform:  platform,
		store:     power.NewFileStore(cfg.State.Path, cfg.Sleep.DefaultInterval),
		network:   network.NewInterface(cfg.Network.Interface, cfg.Network.Timeout, clock),
		publisher: newPublisher(cfg.Telemetry),
		ntp:       clocksync.New(clock, cfg.NTP),
		metrics:   metrics.New(),
		history:   buffer.NewHistory(historySize),
		clock:     clock,
	}
}

// simulatedBoard runs the whole cycle in process without hardware.
func simulatedBoard(cfg *config.Config, clock clockwork.Clock) *board {
	sim := sensors.NewSimulated(time.Now().UnixNano())
	return &board{
		sensors:   sensors.SimulatedSensors(sim),
		led:       led.New("status", nil),
		platform:  power.NewSim(clock),
		store:     power.NewMemoryStore(cfg.Sleep.DefaultInterval),
		network:   network.NewSim(),
		publisher: telemetry.NewRecorder(),
		ntp:       clocksync.New(clock, cfg.NTP),
		metrics:   metrics.New(),
		history:   buffer.NewHistory(historySize),
		clock:     clock,
	}
}

func newPublisher(cfg config.TelemetryConfig) telemetry.Publisher {
	if cfg.Transport == config.TransportHTTP {
		return telemetry.NewHTTP(cfg.ConnectTimeout, cfg.RPCPoll)
	}
	return telemetry.NewMQTT(cfg.ConnectTimeout)
}
