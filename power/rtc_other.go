//go:build !linux

package power

import (
	"errors"
	"time"
)

type RTC struct{}

func NewRTC(mode string) (*RTC, error) {
	return nil, errors.New("rtc suspension is only supported on linux")
}

func (r *RTC) WakeCause() WakeCause   { return WakeUndefined }
func (r *RTC) ArmTimer(time.Duration) {}
func (r *RTC) Suspend() error         { return ErrNotArmed }
func (r *RTC) Restart() error         { return ErrRestart }
