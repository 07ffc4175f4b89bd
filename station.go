package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/gr-butler/soilmonitor/buffer"
	"github.com/gr-butler/soilmonitor/config"
	"github.com/gr-butler/soilmonitor/led"
	"github.com/gr-butler/soilmonitor/metrics"
	"github.com/gr-butler/soilmonitor/network"
	"github.com/gr-butler/soilmonitor/power"
	"github.com/gr-butler/soilmonitor/sensors"
	"github.com/gr-butler/soilmonitor/smoothing"
	"github.com/gr-butler/soilmonitor/telemetry"
	"github.com/jonboulle/clockwork"
	logger "github.com/sirupsen/logrus"
)

// timeSource is the NTP corrected clock, used for log lines only.
type timeSource interface {
	Init()
	ForceSync() error
	Update() error
	FormattedDateTime() string
}

// board is everything that outlives a single boot.
type board struct {
	sensors   *sensors.Sensors
	led       *led.LED
	platform  power.Platform
	store     power.Store
	network   network.Network
	publisher telemetry.Publisher
	ntp       timeSource
	metrics   *metrics.Metrics
	history   *buffer.History
	clock     clockwork.Clock
}

// soilstation is the state of one boot. A new one is made on every wake.
type soilstation struct {
	*board
	cfg         *config.Config
	logMoisture bool

	filter *smoothing.Filter
	state  power.State

	mu     sync.Mutex
	latest webdata
}

func newStation(cfg *config.Config, b *board, logMoisture bool) *soilstation {
	w := &soilstation{
		board:       b,
		cfg:         cfg,
		logMoisture: logMoisture,
		state:       power.DefaultState(cfg.Sleep.DefaultInterval),
	}
	w.publisher.Handle("setValue", w.setInterval)
	w.publisher.Handle("getValue", w.getInterval)
	return w
}

// Boot runs one wake of the station. On hardware it only returns if
// suspending or restarting failed; the simulated platform returns
// power.ErrRestart instead.
func (w *soilstation) Boot(ctx context.Context) error {
	w.led.On()
	w.seedMoisture()

	w.loadState()
	w.armSleep()

	ip, err := w.network.Associate(ctx)
	if err != nil {
		return w.associationFailed(err)
	}
	w.state.AssociationFailures = 0
	logger.Infof("WiFi connected, IP address [%v]", ip)

	w.ntp.Init()
	if err := w.ntp.ForceSync(); err != nil {
		logger.Errorf("Failed to sync time [%v]", err)
	}

	w.readSensor(ctx)
	w.housekeeping(w.cfg.Telemetry.HousekeepingLoops)

	if w.cfg.Sleep.Continuous {
		return w.continuous(ctx)
	}
	if err := w.metrics.Push(w.cfg.Metrics.Pushgateway, w.cfg.Metrics.Job); err != nil {
		logger.Errorf("Failed to push metrics [%v]", err)
	}
	return w.suspend()
}

func (w *soilstation) seedMoisture() {
	raw, err := w.sensors.Moisture.ReadRaw()
	if err != nil {
		logger.Errorf("Failed to seed moisture filter [%v]", err)
	} else {
		w.filter = smoothing.New(raw)
		w.history.Add(raw)
		w.metrics.MoistureRaw.Set(float64(raw))
	}
	w.clock.Sleep(w.cfg.Moisture.SettleDelay)
}

func (w *soilstation) loadState() {
	state, err := w.store.Load()
	if err != nil {
		logger.Errorf("Failed to load state, using defaults [%v]", err)
	}
	w.state = state
	if w.state.SleepInterval <= 0 {
		w.state.SleepInterval = w.cfg.Sleep.DefaultInterval
	}
	logger.Infof("Boot number: %d", w.state.BootCount)
	w.state.BootCount++
	w.metrics.BootCount.Set(float64(w.state.BootCount))
	logger.Info(w.platform.WakeCause().Describe())
}

// associationFailed waits and restarts. With a failure cap configured the
// station sleeps instead once the cap is reached.
func (w *soilstation) associationFailed(err error) error {
	logger.Debugf("Association failed [%v]", err)
	logger.Error("Connection Failed! Rebooting...")
	w.clock.Sleep(w.cfg.Network.RetryDelay)
	w.state.AssociationFailures++

	limit := w.cfg.Network.MaxFailures
	if limit > 0 && w.state.AssociationFailures >= limit {
		logger.Warnf("No network after %d attempts, sleeping", w.state.AssociationFailures)
		w.state.AssociationFailures = 0
		return w.suspend()
	}
	w.saveState()
	return w.platform.Restart()
}

func (w *soilstation) saveState() {
	if err := w.store.Save(w.state); err != nil {
		logger.Errorf("Failed to save state [%v]", err)
	}
}

func (w *soilstation) housekeeping(loops int) {
	for i := 0; i < loops; i++ {
		w.publisher.Housekeeping()
		w.clock.Sleep(w.cfg.Telemetry.HousekeepingDelay)
	}
}

func (w *soilstation) endpoint() string {
	return net.JoinHostPort(w.cfg.Telemetry.Server, strconv.Itoa(w.cfg.Telemetry.Port))
}

// setValue RPC, params are the new interval in seconds.
func (w *soilstation) setInterval(params json.RawMessage) (any, error) {
	secs, err := parseSeconds(params)
	if err != nil {
		return nil, err
	}
	w.state.SleepInterval = secs
	w.saveState()
	logger.Infof("Sleep interval set to [%v] seconds", secs)
	return secs, nil
}

func (w *soilstation) getInterval(json.RawMessage) (any, error) {
	return w.state.SleepInterval, nil
}

// parseSeconds accepts 90 or "90".
func parseSeconds(params json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(params, &n); err != nil {
		var s string
		if err := json.Unmarshal(params, &s); err != nil {
			return 0, fmt.Errorf("interval must be a number of seconds: %s", params)
		}
		if n, err = strconv.Atoi(s); err != nil {
			return 0, fmt.Errorf("interval must be a number of seconds: %q", s)
		}
	}
	if n <= 0 {
		return 0, fmt.Errorf("interval must be positive: %d", n)
	}
	return n, nil
}
