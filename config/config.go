package config

import (
	"fmt"
	"os"
	"time"

	"github.com/gr-butler/soilmonitor/env"
	"gopkg.in/yaml.v3"
)

const (
	TransportMQTT = "mqtt"
	TransportHTTP = "http"

	UpdateDouble = "double"
	UpdateSingle = "single"
)

// Config represents the station configuration.
type Config struct {
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Sensors   SensorConfig    `yaml:"sensors"`
	Moisture  MoistureConfig  `yaml:"moisture"`
	Sleep     SleepConfig     `yaml:"sleep"`
	Network   NetworkConfig   `yaml:"network"`
	NTP       NTPConfig       `yaml:"ntp"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	State     StateConfig     `yaml:"state"`
}

// TelemetryConfig describes the ThingsBoard endpoint.
type TelemetryConfig struct {
	Transport         string        `yaml:"transport"` // mqtt or http
	Server            string        `yaml:"server"`
	Port              int           `yaml:"port"`
	Token             string        `yaml:"token"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	RPCPoll           time.Duration `yaml:"rpc_poll"` // http transport only
	HousekeepingLoops int           `yaml:"housekeeping_loops"`
	HousekeepingDelay time.Duration `yaml:"housekeeping_delay"`
}

// SensorConfig describes where the hardware is attached.
type SensorConfig struct {
	Bus             string `yaml:"bus"` // empty selects the first I2C bus
	BME280Addr      uint16 `yaml:"bme280_addr"`
	ADCAddr         uint16 `yaml:"adc_addr"`
	MoistureChannel int    `yaml:"moisture_channel"`
	StatusLed       string `yaml:"status_led"`
}

type MoistureConfig struct {
	UpdatePolicy string        `yaml:"update_policy"` // double or single
	SettleDelay  time.Duration `yaml:"settle_delay"`
}

// SleepConfig controls suspension between boots.
type SleepConfig struct {
	Continuous           bool          `yaml:"continuous"` // never suspend
	Duration             time.Duration `yaml:"duration"`
	UsePersistedInterval bool          `yaml:"use_persisted_interval"`
	DefaultInterval      int           `yaml:"default_interval"` // seconds, persisted default
	Mode                 string        `yaml:"mode"`             // rtcwake -m value
	ResampleEvery        int           `yaml:"resample_every"`   // continuous mode iterations
}

type NetworkConfig struct {
	Interface   string        `yaml:"interface"`
	Timeout     time.Duration `yaml:"timeout"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	MaxFailures int           `yaml:"max_failures"` // 0 retries forever
}

type NTPConfig struct {
	Server      string        `yaml:"server"`
	Offset      time.Duration `yaml:"offset"`
	UpdateEvery time.Duration `yaml:"update_every"`
	Timeout     time.Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	Listen      string `yaml:"listen"`
	Pushgateway string `yaml:"pushgateway"`
	Job         string `yaml:"job"`
}

type StateConfig struct {
	Path string `yaml:"path"`
}

// Default returns a configuration matching the deployed station.
func Default() *Config {
	return &Config{
		Telemetry: TelemetryConfig{
			Transport:         TransportMQTT,
			Server:            env.ThingsboardServer,
			Port:              1883,
			ConnectTimeout:    env.TelemetryConnectLimit,
			RPCPoll:           time.Second,
			HousekeepingLoops: env.HousekeepingLoops,
			HousekeepingDelay: env.HousekeepingDelay,
		},
		Sensors: SensorConfig{
			BME280Addr:      env.BME280_I2C,
			ADCAddr:         env.ADS1115_I2C,
			MoistureChannel: env.MoistureChannel,
			StatusLed:       env.StatusLed,
		},
		Moisture: MoistureConfig{
			UpdatePolicy: UpdateDouble,
			SettleDelay:  env.SeedSettleDelay,
		},
		Sleep: SleepConfig{
			Duration:        env.TimeToSleep,
			DefaultInterval: env.DefaultSleepInterval,
			Mode:            "mem",
			ResampleEvery:   env.ContinuousResampleAt,
		},
		Network: NetworkConfig{
			Interface:  env.DefaultInterface,
			Timeout:    env.AssociationTimeout,
			RetryDelay: env.ConnectRetryDelay,
		},
		NTP: NTPConfig{
			Server:      env.NTPServer,
			Offset:      env.NTPOffset,
			UpdateEvery: env.NTPUpdateEvery,
			Timeout:     5 * time.Second,
		},
		Metrics: MetricsConfig{
			Listen: ":2112",
			Job:    "soilmonitor",
		},
		State: StateConfig{
			Path: env.StateFile,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; missing fields are filled from the defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate rejects values the station cannot act on.
func (c *Config) Validate() error {
	switch c.Telemetry.Transport {
	case TransportMQTT, TransportHTTP:
	default:
		return fmt.Errorf("unknown telemetry transport [%v]", c.Telemetry.Transport)
	}
	switch c.Moisture.UpdatePolicy {
	case UpdateDouble, UpdateSingle:
	default:
		return fmt.Errorf("unknown moisture update policy [%v]", c.Moisture.UpdatePolicy)
	}
	if c.Network.MaxFailures < 0 {
		return fmt.Errorf("network.max_failures must not be negative [%v]", c.Network.MaxFailures)
	}
	return nil
}

// ensureDefaults fills zero values left by a partial file.
func (c *Config) ensureDefaults() {
	d := Default()

	if c.Telemetry.Transport == "" {
		c.Telemetry.Transport = d.Telemetry.Transport
	}
	if c.Telemetry.Server == "" {
		c.Telemetry.Server = d.Telemetry.Server
	}
	if c.Telemetry.Port == 0 {
		c.Telemetry.Port = d.Telemetry.Port
	}
	if c.Telemetry.ConnectTimeout == 0 {
		c.Telemetry.ConnectTimeout = d.Telemetry.ConnectTimeout
	}
	if c.Telemetry.RPCPoll == 0 {
		c.Telemetry.RPCPoll = d.Telemetry.RPCPoll
	}
	if c.Telemetry.HousekeepingLoops == 0 {
		c.Telemetry.HousekeepingLoops = d.Telemetry.HousekeepingLoops
	}
	if c.Telemetry.HousekeepingDelay == 0 {
		c.Telemetry.HousekeepingDelay = d.Telemetry.HousekeepingDelay
	}
	if c.Sensors.BME280Addr == 0 {
		c.Sensors.BME280Addr = d.Sensors.BME280Addr
	}
	if c.Sensors.ADCAddr == 0 {
		c.Sensors.ADCAddr = d.Sensors.ADCAddr
	}
	if c.Sensors.StatusLed == "" {
		c.Sensors.StatusLed = d.Sensors.StatusLed
	}
	if c.Moisture.UpdatePolicy == "" {
		c.Moisture.UpdatePolicy = d.Moisture.UpdatePolicy
	}
	if c.Moisture.SettleDelay == 0 {
		c.Moisture.SettleDelay = d.Moisture.SettleDelay
	}
	if c.Sleep.Duration == 0 {
		c.Sleep.Duration = d.Sleep.Duration
	}
	if c.Sleep.DefaultInterval == 0 {
		c.Sleep.DefaultInterval = d.Sleep.DefaultInterval
	}
	if c.Sleep.Mode == "" {
		c.Sleep.Mode = d.Sleep.Mode
	}
	if c.Sleep.ResampleEvery == 0 {
		c.Sleep.ResampleEvery = d.Sleep.ResampleEvery
	}
	if c.Network.Interface == "" {
		c.Network.Interface = d.Network.Interface
	}
	if c.Network.Timeout == 0 {
		c.Network.Timeout = d.Network.Timeout
	}
	if c.Network.RetryDelay == 0 {
		c.Network.RetryDelay = d.Network.RetryDelay
	}
	if c.NTP.Server == "" {
		c.NTP.Server = d.NTP.Server
	}
	if c.NTP.UpdateEvery == 0 {
		c.NTP.UpdateEvery = d.NTP.UpdateEvery
	}
	if c.NTP.Timeout == 0 {
		c.NTP.Timeout = d.NTP.Timeout
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = d.Metrics.Listen
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = d.Metrics.Job
	}
	if c.State.Path == "" {
		c.State.Path = d.State.Path
	}
}

// applyEnv lets the deployment keep secrets out of the config file.
func (c *Config) applyEnv() {
	if token, ok := os.LookupEnv("TB_TOKEN"); ok {
		c.Telemetry.Token = token
	}
	if server, ok := os.LookupEnv("TB_SERVER"); ok {
		c.Telemetry.Server = server
	}
	if url, ok := os.LookupEnv("PUSHGATEWAY_URL"); ok {
		c.Metrics.Pushgateway = url
	}
}
