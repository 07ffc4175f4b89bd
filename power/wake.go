package power

import (
	"fmt"
	"strings"
)

// WakeCause says why the station is running. It is logged and otherwise
// ignored.
type WakeCause int

const (
	WakeUndefined WakeCause = iota
	WakeExt0
	WakeExt1
	WakeTimer
	WakeTouchpad
	WakeULP
)

// WakeCauseEnv carries the cause across a re-exec.
const WakeCauseEnv = "SOIL_WAKE_CAUSE"

var wakeNames = map[WakeCause]string{
	WakeUndefined: "undefined",
	WakeExt0:      "ext0",
	WakeExt1:      "ext1",
	WakeTimer:     "timer",
	WakeTouchpad:  "touchpad",
	WakeULP:       "ulp",
}

func (w WakeCause) String() string {
	if n, ok := wakeNames[w]; ok {
		return n
	}
	return fmt.Sprintf("WakeCause(%d)", int(w))
}

// Describe returns the diagnostic line for the cause.
func (w WakeCause) Describe() string {
	switch w {
	case WakeExt0:
		return "Wakeup caused by external signal using RTC_IO"
	case WakeExt1:
		return "Wakeup caused by external signal using RTC_CNTL"
	case WakeTimer:
		return "Wakeup caused by timer"
	case WakeTouchpad:
		return "Wakeup caused by touchpad"
	case WakeULP:
		return "Wakeup caused by ULP program"
	default:
		return fmt.Sprintf("Wakeup was not caused by deep sleep: %d", int(w))
	}
}

func ParseWakeCause(s string) WakeCause {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, n := range wakeNames {
		if n == s {
			return c
		}
	}
	return WakeUndefined
}
