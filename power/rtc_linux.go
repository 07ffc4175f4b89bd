//go:build linux

package power

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	logger "github.com/sirupsen/logrus"
)

// RTC suspends with rtcwake and re-executes the binary on wake so every boot
// starts from a clean process.
type RTC struct {
	mode  string
	armed time.Duration
	cause WakeCause
	run   func(name string, args ...string) error
	exec  func(argv0 string, argv []string, envv []string) error
}

// NewRTC reads the wake cause left by the previous process. mode is passed to
// rtcwake -m (mem, standby, freeze, disk, off).
func NewRTC(mode string) (*RTC, error) {
	if _, err := exec.LookPath("rtcwake"); err != nil {
		return nil, fmt.Errorf("rtcwake not available: %w", err)
	}
	return &RTC{
		mode:  mode,
		cause: ParseWakeCause(os.Getenv(WakeCauseEnv)),
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
		exec: syscall.Exec,
	}, nil
}

func (r *RTC) WakeCause() WakeCause {
	return r.cause
}

func (r *RTC) ArmTimer(d time.Duration) {
	r.armed = d
}

func (r *RTC) Suspend() error {
	if r.armed <= 0 {
		return ErrNotArmed
	}
	if err := r.run("rtcwake", "-m", r.mode, "-s", seconds(r.armed)); err != nil {
		return fmt.Errorf("rtcwake: %w", err)
	}
	return r.reexec(WakeTimer)
}

func (r *RTC) Restart() error {
	return r.reexec(WakeUndefined)
}

func (r *RTC) reexec(cause WakeCause) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}
	logger.Debugf("Restarting [%v] wake cause [%v]", self, cause)
	envv := append(withoutWakeCause(os.Environ()), WakeCauseEnv+"="+cause.String())
	if err := r.exec(self, os.Args, envv); err != nil {
		return fmt.Errorf("exec %v: %w", self, err)
	}
	return nil
}

func withoutWakeCause(environ []string) []string {
	out := make([]string, 0, len(environ))
	prefix := WakeCauseEnv + "="
	for _, e := range environ {
		if strings.HasPrefix(e, prefix) {
			continue
		}
		out = append(out, e)
	}
	return out
}
