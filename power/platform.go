package power

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	logger "github.com/sirupsen/logrus"
)

// ErrRestart is returned by platforms that restart by returning control to
// the caller instead of replacing the process.
var ErrRestart = errors.New("restart requested")

var ErrNotArmed = errors.New("suspension timer not armed")

// Phase is the station power phase.
type Phase int

const (
	Active Phase = iota
	Suspended
)

func (p Phase) String() string {
	if p == Suspended {
		return "suspended"
	}
	return "active"
}

// Platform is the board's power management.
//
// Suspend and Restart do not return on hardware unless they fail. Execution
// then starts again from the top of the program.
type Platform interface {
	WakeCause() WakeCause
	ArmTimer(d time.Duration)
	Suspend() error
	Restart() error
}

// Sim is an in process platform. Suspend sleeps on the clock for the armed
// duration and both Suspend and Restart return ErrRestart.
type Sim struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	cause       WakeCause
	armed       time.Duration
	suspensions int
	restarts    int
	phase       Phase
}

func NewSim(clock clockwork.Clock) *Sim {
	return &Sim{clock: clock}
}

func (s *Sim) WakeCause() WakeCause {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

func (s *Sim) ArmTimer(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = d
}

func (s *Sim) Armed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

func (s *Sim) Suspend() error {
	s.mu.Lock()
	d := s.armed
	if d <= 0 {
		s.mu.Unlock()
		return ErrNotArmed
	}
	s.suspensions++
	s.phase = Suspended
	s.mu.Unlock()

	logger.Debugf("Simulated suspension for [%v]", d)
	s.clock.Sleep(d)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = Active
	s.cause = WakeTimer
	return ErrRestart
}

func (s *Sim) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarts++
	s.cause = WakeUndefined
	return ErrRestart
}

func (s *Sim) Suspensions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspensions
}

func (s *Sim) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

func (s *Sim) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%d", int64(d/time.Second))
}
