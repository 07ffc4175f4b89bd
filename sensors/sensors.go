package sensors

import (
	"errors"
	"fmt"

	"github.com/gr-butler/soilmonitor/config"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

/*
 * Sensors is responsible for reading the sensors and converting sensor output to real values.
 */

var ErrNoDevice = errors.New("sensor not present")

// Environment is an ambient temperature and humidity sensor. Read fails when
// the device reports a bad status; the reading is then unusable.
type Environment interface {
	Read() (Reading, error)
}

// MoistureProbe is a capacitive soil probe behind an ADC.
type MoistureProbe interface {
	ReadRaw() (int, error)
}

type Sensors struct {
	Atm      Environment
	Moisture MoistureProbe
	bus      i2c.BusCloser
	probe    *moistureProbe
}

// Open initialises the host drivers, the I2C bus and both sensors.
func Open(cfg config.SensorConfig) (*Sensors, error) {
	if _, err := host.Init(); err != nil {
		logger.Errorf("Failed to init host drivers [%v]", err)
		return nil, err
	}

	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		logger.Errorf("Failed to open I²C [%v]", err)
		return nil, err
	}
	s := &Sensors{bus: bus}

	atm, err := NewAtmosphere(bus, cfg.BME280Addr)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	s.Atm = atm

	probe, err := NewMoistureProbe(bus, cfg.ADCAddr, cfg.MoistureChannel)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	s.probe = probe
	s.Moisture = probe

	logger.Info("Sensors initialized.")
	return s, nil
}

func (s *Sensors) Close() error {
	if s.probe != nil {
		if err := s.probe.Halt(); err != nil {
			logger.Errorf("Failed to halt moisture ADC [%v]", err)
		}
	}
	if s.bus == nil {
		return nil
	}
	if err := s.bus.Close(); err != nil {
		return fmt.Errorf("closing i2c bus: %w", err)
	}
	return nil
}
