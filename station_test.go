package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gr-butler/soilmonitor/buffer"
	"github.com/gr-butler/soilmonitor/config"
	"github.com/gr-butler/soilmonitor/env"
	"github.com/gr-butler/soilmonitor/led"
	"github.com/gr-butler/soilmonitor/metrics"
	"github.com/gr-butler/soilmonitor/network"
	"github.com/gr-butler/soilmonitor/power"
	"github.com/gr-butler/soilmonitor/sensors"
	"github.com/gr-butler/soilmonitor/smoothing"
	"github.com/gr-butler/soilmonitor/telemetry"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTime struct {
	mu      sync.Mutex
	syncs   int
	updates int
}

func (f *fakeTime) Init()                     {}
func (f *fakeTime) ForceSync() error          { f.syncs++; return nil }
func (f *fakeTime) FormattedDateTime() string { return "2023-03-05 04:07:09" }

func (f *fakeTime) Update() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	return nil
}

type rig struct {
	cfg      *config.Config
	sim      *sensors.Simulated
	clock    clockwork.FakeClock
	platform *power.Sim
	store    *power.MemoryStore
	net      *network.Sim
	pub      *telemetry.Recorder
	ntp      *fakeTime
	metrics  *metrics.Metrics
	log      *logtest.Hook
	b        *board
}

func newRig(t *testing.T) *rig {
	t.Helper()
	cfg := config.Default()
	cfg.Telemetry.Token = "A1_TEST_TOKEN"
	cfg.Telemetry.HousekeepingLoops = 10
	cfg.Telemetry.HousekeepingDelay = 0
	cfg.Moisture.SettleDelay = 0
	cfg.Metrics.Listen = ""

	sim := sensors.NewSimulated(1)
	sim.Jitter = 0
	fc := clockwork.NewFakeClockAt(time.Date(2023, 3, 4, 21, 7, 9, 0, time.UTC))

	r := &rig{
		cfg:      cfg,
		sim:      sim,
		clock:    fc,
		platform: power.NewSim(fc),
		store:    power.NewMemoryStore(cfg.Sleep.DefaultInterval),
		net:      network.NewSim(),
		pub:      telemetry.NewRecorder(),
		ntp:      &fakeTime{},
		metrics:  metrics.New(),
		log:      logtest.NewGlobal(),
	}
	r.b = &board{
		sensors:   sensors.SimulatedSensors(sim),
		led:       led.New("status", nil),
		platform:  r.platform,
		store:     r.store,
		network:   r.net,
		publisher: r.pub,
		ntp:       r.ntp,
		metrics:   r.metrics,
		history:   buffer.NewHistory(historySize),
		clock:     fc,
	}
	t.Cleanup(r.log.Reset)
	return r
}

func (r *rig) station() *soilstation {
	return newStation(r.cfg, r.b, false)
}

// boot runs Boot in the background; the caller drives the fake clock.
func (r *rig) boot() (*soilstation, chan error) {
	w := r.station()
	errc := make(chan error, 1)
	go func() { errc <- w.Boot(context.Background()) }()
	return w, errc
}

func (r *rig) count(msg string) int {
	n := 0
	for _, e := range r.log.AllEntries() {
		if e.Message == msg {
			n++
		}
	}
	return n
}

func waitErr(t *testing.T, errc chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("boot did not return")
		return nil
	}
}

func TestBootEndToEnd(t *testing.T) {
	r := newRig(t)
	_, errc := r.boot()

	r.clock.BlockUntil(1)
	assert.Equal(t, 30*time.Second, r.platform.Armed())
	assert.Equal(t, power.Suspended, r.platform.Phase())
	assert.Equal(t, []telemetry.Sample{
		{Name: env.Temperature, Value: 22.5},
		{Name: env.Humidity, Value: 45.0},
		{Name: env.SoilMoisture, Value: 1200.0},
	}, r.pub.Published())
	assert.Equal(t, "demo.thingsboard.io:1883", r.pub.Endpoint)
	assert.Equal(t, "A1_TEST_TOKEN", r.pub.Token)
	assert.Equal(t, 10, r.pub.Housekeeps)
	assert.Equal(t, 1, r.ntp.syncs)
	assert.Equal(t, 1, r.count("Sending data to thingsboard..."))
	assert.Equal(t, 1, r.count("System going to sleep for 30 sec"))
	assert.Equal(t, 1, r.count("Boot number: 0"))
	assert.Equal(t, 1, r.count("2023-03-05 04:07:09\t45.0\t22.5\t22.0\t1200.0"))

	r.clock.Advance(30 * time.Second)
	require.ErrorIs(t, waitErr(t, errc), power.ErrRestart)

	state, _ := r.store.Load()
	assert.Equal(t, 1, state.BootCount)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.BootCount))
	assert.Equal(t, 22.5, testutil.ToFloat64(r.metrics.Temperature))
	assert.Equal(t, power.WakeTimer, r.platform.WakeCause())
}

func TestBootCounterAcrossWakes(t *testing.T) {
	r := newRig(t)
	for i := 0; i < 3; i++ {
		_, errc := r.boot()
		r.clock.BlockUntil(1)
		r.clock.Advance(30 * time.Second)
		require.ErrorIs(t, waitErr(t, errc), power.ErrRestart)
	}
	state, _ := r.store.Load()
	assert.Equal(t, 3, state.BootCount)
	assert.Equal(t, 1, r.count("Boot number: 2"))
	assert.Equal(t, 2, r.count("Wakeup caused by timer"))
	assert.Equal(t, 3, r.platform.Suspensions())
}

func TestBootAssociationRetry(t *testing.T) {
	r := newRig(t)
	r.net.Fail = true

	for boot := 1; boot <= 3; boot++ {
		_, errc := r.boot()
		r.clock.BlockUntil(1)
		r.clock.Advance(env.ConnectRetryDelay)
		require.ErrorIs(t, waitErr(t, errc), power.ErrRestart)

		assert.Equal(t, boot, r.count("Connection Failed! Rebooting..."))
		assert.Equal(t, boot, r.platform.Restarts())
	}
	assert.Equal(t, 0, r.platform.Suspensions())
	assert.Empty(t, r.pub.Published())
	assert.Equal(t, 0, r.pub.Connects)

	state, _ := r.store.Load()
	assert.Equal(t, 3, state.AssociationFailures)
	assert.Equal(t, 3, state.BootCount)
}

func TestBootAssociationCap(t *testing.T) {
	r := newRig(t)
	r.cfg.Network.MaxFailures = 2
	r.net.Fail = true

	_, errc := r.boot()
	r.clock.BlockUntil(1)
	r.clock.Advance(env.ConnectRetryDelay)
	require.ErrorIs(t, waitErr(t, errc), power.ErrRestart)
	assert.Equal(t, 1, r.platform.Restarts())

	// second failure reaches the cap and sleeps instead
	_, errc = r.boot()
	r.clock.BlockUntil(1)
	r.clock.Advance(env.ConnectRetryDelay)
	r.clock.BlockUntil(1)
	assert.Equal(t, power.Suspended, r.platform.Phase())
	r.clock.Advance(30 * time.Second)
	require.ErrorIs(t, waitErr(t, errc), power.ErrRestart)

	assert.Equal(t, 1, r.platform.Restarts())
	assert.Equal(t, 1, r.platform.Suspensions())
	state, _ := r.store.Load()
	assert.Equal(t, 0, state.AssociationFailures)
}

func TestBootRecoversAfterFailure(t *testing.T) {
	r := newRig(t)
	r.net.Fail = true
	_, errc := r.boot()
	r.clock.BlockUntil(1)
	r.clock.Advance(env.ConnectRetryDelay)
	require.ErrorIs(t, waitErr(t, errc), power.ErrRestart)

	r.net.Fail = false
	_, errc = r.boot()
	r.clock.BlockUntil(1)
	r.clock.Advance(30 * time.Second)
	require.ErrorIs(t, waitErr(t, errc), power.ErrRestart)

	state, _ := r.store.Load()
	assert.Equal(t, 0, state.AssociationFailures)
	assert.Len(t, r.pub.Published(), 3)
}

func TestBootTelemetryUnavailable(t *testing.T) {
	r := newRig(t)
	r.pub.FailConnect = true

	_, errc := r.boot()
	r.clock.BlockUntil(1)
	assert.Equal(t, power.Suspended, r.platform.Phase())
	r.clock.Advance(30 * time.Second)
	require.ErrorIs(t, waitErr(t, errc), power.ErrRestart)

	assert.Empty(t, r.pub.Published())
	assert.Equal(t, 1, r.pub.Connects)
	assert.Equal(t, 0, r.count("Sending data to thingsboard..."))
	assert.Equal(t, 1, r.platform.Suspensions())
}

func TestBootSensorError(t *testing.T) {
	r := newRig(t)
	r.sim.Fail = true

	_, errc := r.boot()
	r.clock.BlockUntil(1)
	r.clock.Advance(30 * time.Second)
	require.ErrorIs(t, waitErr(t, errc), power.ErrRestart)

	assert.Empty(t, r.pub.Published())
	assert.Equal(t, 0, r.pub.Connects)
	assert.Equal(t, 0, r.count("2023-03-05 04:07:09\t45.0\t22.5\t22.0\t1200.0"))
	assert.Equal(t, 1, r.platform.Suspensions())
}

func TestMoistureUpdatePolicy(t *testing.T) {
	for _, tc := range []struct {
		policy string
		want   float64
	}{
		{config.UpdateDouble, 1097.5},
		{config.UpdateSingle, 1050},
	} {
		t.Run(tc.policy, func(t *testing.T) {
			r := newRig(t)
			r.cfg.Moisture.UpdatePolicy = tc.policy
			w := r.station()
			w.filter = smoothing.New(1000)
			r.sim.Moisture = 2000

			w.readSensor(context.Background())

			got := r.pub.Published()
			require.Len(t, got, 3)
			assert.Equal(t, env.SoilMoisture, got[2].Name)
			assert.InDelta(t, tc.want, got[2].Value, 1e-9)
			assert.InDelta(t, 2000, testutil.ToFloat64(r.metrics.MoistureRaw), 0)
		})
	}
}

func TestSleepDuration(t *testing.T) {
	r := newRig(t)
	w := r.station()
	w.state.SleepInterval = 90
	assert.Equal(t, 30*time.Second, w.sleepDuration())

	r.cfg.Sleep.UsePersistedInterval = true
	assert.Equal(t, 90*time.Second, w.sleepDuration())
}

func TestRPCSetValue(t *testing.T) {
	r := newRig(t)
	r.cfg.Sleep.UsePersistedInterval = true
	r.pub.Inject("getValue", nil)
	r.pub.Inject("setValue", json.RawMessage(`"120"`))

	_, errc := r.boot()
	r.clock.BlockUntil(1)
	// armed before the request was served, so this boot still uses the default
	assert.Equal(t, 60*time.Second, r.platform.Armed())
	r.clock.Advance(60 * time.Second)
	require.ErrorIs(t, waitErr(t, errc), power.ErrRestart)

	require.Len(t, r.pub.Replies, 2)
	assert.Equal(t, "60", string(r.pub.Replies[0]))
	assert.Equal(t, "120", string(r.pub.Replies[1]))
	state, _ := r.store.Load()
	assert.Equal(t, 120, state.SleepInterval)

	_, errc = r.boot()
	r.clock.BlockUntil(1)
	assert.Equal(t, 120*time.Second, r.platform.Armed())
	r.clock.Advance(120 * time.Second)
	require.ErrorIs(t, waitErr(t, errc), power.ErrRestart)
}

func TestParseSeconds(t *testing.T) {
	n, err := parseSeconds(json.RawMessage(`90`))
	require.NoError(t, err)
	assert.Equal(t, 90, n)

	n, err = parseSeconds(json.RawMessage(`"45"`))
	require.NoError(t, err)
	assert.Equal(t, 45, n)

	_, err = parseSeconds(json.RawMessage(`0`))
	assert.Error(t, err)
	_, err = parseSeconds(json.RawMessage(`"soon"`))
	assert.Error(t, err)
	_, err = parseSeconds(json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestContinuous(t *testing.T) {
	r := newRig(t)
	r.cfg.Sleep.Continuous = true
	r.cfg.Sleep.ResampleEvery = 3

	w := r.station()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Boot(ctx) }()

	require.Eventually(t, func() bool {
		return len(r.pub.Published()) >= 9
	}, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, waitErr(t, errc))
	assert.Equal(t, 0, r.platform.Suspensions())
	r.ntp.mu.Lock()
	assert.GreaterOrEqual(t, r.ntp.updates, 2)
	r.ntp.mu.Unlock()

	rec := httptest.NewRecorder()
	w.handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	out := webdata{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 22.5, out.Temperature)
	assert.Equal(t, 1200.0, out.Moisture)
	assert.Equal(t, 1200, out.RawMin)
	assert.Equal(t, 1200, out.RawMax)
	assert.Equal(t, "2023-03-05 04:07:09", out.TimeNow)
}
