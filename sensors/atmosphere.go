package sensors

import (
	"fmt"

	logger "github.com/sirupsen/logrus"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
)

type RelHumidity float64
type TemperatureC float64

func (r RelHumidity) Float64() float64 {
	return float64(r)
}

func (t TemperatureC) Float64() float64 {
	return float64(t)
}

// Reading is one snapshot of the ambient sensor.
type Reading struct {
	Temperature TemperatureC
	Humidity    RelHumidity
	HeatIndex   TemperatureC
}

// senser is the subset of physic.SenseEnv the station needs.
type senser interface {
	Sense(e *physic.Env) error
}

type atmosphere struct {
	dev senser
}

// NewAtmosphere opens a BME280 on the bus.
func NewAtmosphere(bus i2c.Bus, addr uint16) (Environment, error) {
	logger.Infof("Starting BME280 reader [%x]", addr)
	bme, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		logger.Errorf("Failed to initialize bme280 [%v]", err)
		return nil, err
	}
	return &atmosphere{dev: bme}, nil
}

// Read senses once. Any driver error is reported as a bad status.
func (a *atmosphere) Read() (Reading, error) {
	if a.dev == nil {
		return Reading{}, ErrNoDevice
	}
	em := physic.Env{}
	if err := a.dev.Sense(&em); err != nil {
		return Reading{}, fmt.Errorf("bme280 sense: %w", err)
	}
	return NewReading(
		TemperatureC(em.Temperature.Celsius()),
		RelHumidity(float64(em.Humidity)/float64(physic.PercentRH)),
	), nil
}

// NewReading fills in the derived heat index.
func NewReading(t TemperatureC, h RelHumidity) Reading {
	return Reading{
		Temperature: t,
		Humidity:    h,
		HeatIndex:   HeatIndex(t, h),
	}
}
