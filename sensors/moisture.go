package sensors

import (
	"fmt"

	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
)

var channels = []ads1x15.Channel{
	ads1x15.Channel0,
	ads1x15.Channel1,
	ads1x15.Channel2,
	ads1x15.Channel3,
}

// sampler is the subset of analog.PinADC the probe needs.
type sampler interface {
	Read() (analog.Sample, error)
	Halt() error
}

type moistureProbe struct {
	pin sampler
}

// NewMoistureProbe opens the ADS1115 and returns the probe on the given
// single ended channel.
func NewMoistureProbe(bus i2c.Bus, addr uint16, channel int) (*moistureProbe, error) {
	if channel < 0 || channel >= len(channels) {
		return nil, fmt.Errorf("invalid ADC channel [%v]", channel)
	}
	logger.Infof("Starting moisture ADC I2C [%x] channel [%v]", addr, channel)
	opts := ads1x15.DefaultOpts
	opts.I2cAddress = addr
	adc, err := ads1x15.NewADS1115(bus, &opts)
	if err != nil {
		logger.Errorf("Failed to open ADS1115 [%v]", err)
		return nil, err
	}

	pin, err := adc.PinForChannel(channels[channel], 5*physic.Volt, 1*physic.Hertz, ads1x15.SaveEnergy)
	if err != nil {
		logger.Errorf("Failed to open ADC channel [%v]", err)
		return nil, err
	}
	return &moistureProbe{pin: pin}, nil
}

// ReadRaw returns the raw conversion value.
func (m *moistureProbe) ReadRaw() (int, error) {
	sample, err := m.pin.Read()
	if err != nil {
		return 0, fmt.Errorf("moisture adc read: %w", err)
	}
	return int(sample.Raw), nil
}

func (m *moistureProbe) Halt() error {
	if m.pin == nil {
		return nil
	}
	return m.pin.Halt()
}
