package env

import "time"

const (
	GPIO02 = "GPIO02" // SDA
	GPIO03 = "GPIO03" // SDC
	GPIO17 = "GPIO17" // ADS1115 ALERT/RDY, unused
	GPIO20 = "GPIO20" // status LED

	StatusLed = GPIO20

	// I2C addresses
	BME280_I2C  uint16 = 0x76
	ADS1115_I2C uint16 = 0x48

	// The moisture probe sits on ADC channel 0.
	MoistureChannel = 0

	ThingsboardServer = "demo.thingsboard.io"
	TelemetryTopic    = "v1/devices/me/telemetry"
	RPCRequestTopic   = "v1/devices/me/rpc/request/+"
	RPCResponseTopic  = "v1/devices/me/rpc/response/"

	// Telemetry keys
	Temperature  = "Temperature"
	Humidity     = "Humidity"
	SoilMoisture = "SoilMoisture"

	// TimeToSleep is how long the station suspends between boots.
	TimeToSleep = 30 * time.Second
	// DefaultSleepInterval is the remotely adjustable interval kept in the
	// persisted state. It is only used when the config asks for it.
	DefaultSleepInterval = 60

	ConnectRetryDelay     = 5 * time.Second
	SeedSettleDelay       = 100 * time.Millisecond
	HousekeepingLoops     = 1000
	HousekeepingDelay     = time.Millisecond
	ContinuousResampleAt  = 30000
	AssociationTimeout    = 20 * time.Second
	TelemetryConnectLimit = 10 * time.Second

	NTPServer        = "id.pool.ntp.org"
	NTPOffset        = 7 * time.Hour
	NTPUpdateEvery   = time.Minute
	StateFile        = "/run/soilmonitor/state.json"
	DefaultInterface = "wlan0"
)
