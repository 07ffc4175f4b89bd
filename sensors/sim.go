package sensors

import (
	"math/rand"
	"sync"
)

// Simulated stands in for the hardware in test mode.
type Simulated struct {
	mu          sync.Mutex
	Temperature TemperatureC
	Humidity    RelHumidity
	Moisture    int
	Jitter      int // max +/- raw counts added to each moisture read
	Fail        bool
	rnd         *rand.Rand
}

func NewSimulated(seed int64) *Simulated {
	return &Simulated{
		Temperature: 22.5,
		Humidity:    45,
		Moisture:    1200,
		Jitter:      25,
		rnd:         rand.New(rand.NewSource(seed)),
	}
}

func (s *Simulated) Read() (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return Reading{}, ErrNoDevice
	}
	return NewReading(s.Temperature, s.Humidity), nil
}

func (s *Simulated) ReadRaw() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.Moisture
	if s.Jitter > 0 && s.rnd != nil {
		v += s.rnd.Intn(2*s.Jitter+1) - s.Jitter
	}
	return v, nil
}

// SimulatedSensors wires one Simulated device as both sensors.
func SimulatedSensors(sim *Simulated) *Sensors {
	return &Sensors{Atm: sim, Moisture: sim}
}
