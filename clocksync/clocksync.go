package clocksync

import (
	"fmt"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"github.com/gr-butler/soilmonitor/config"
	"github.com/jonboulle/clockwork"
	logger "github.com/sirupsen/logrus"
)

// go magic date is Mon Jan 2 15:04:05 MST 2006
const (
	dateTimeLayout = "2006-01-02 15:04:05"
	dateLayout     = "2006-01-02"
	timeLayout     = "150405"
)

type queryFunc func(address string, opt ntp.QueryOptions) (*ntp.Response, error)

// Source is wall clock time corrected against an NTP server and shown in a
// fixed offset zone. Until the first sync it reports the local clock.
type Source struct {
	clock       clockwork.Clock
	server      string
	zone        *time.Location
	updateEvery time.Duration
	timeout     time.Duration
	query       queryFunc

	mu       sync.Mutex
	offset   time.Duration
	lastSync time.Time
	synced   bool
}

func New(clock clockwork.Clock, cfg config.NTPConfig) *Source {
	return &Source{
		clock:       clock,
		server:      cfg.Server,
		zone:        zoneFor(cfg.Offset),
		updateEvery: cfg.UpdateEvery,
		timeout:     cfg.Timeout,
		query:       ntp.QueryWithOptions,
	}
}

func zoneFor(offset time.Duration) *time.Location {
	secs := int(offset / time.Second)
	name := fmt.Sprintf("UTC%+03d:%02d", secs/3600, abs(secs%3600)/60)
	return time.FixedZone(name, secs)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Init forgets any previous correction.
func (s *Source) Init() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset = 0
	s.synced = false
	s.lastSync = time.Time{}
	logger.Infof("NTP client using [%v] zone [%v]", s.server, s.zone)
}

// ForceSync queries the server now.
func (s *Source) ForceSync() error {
	resp, err := s.query(s.server, ntp.QueryOptions{Timeout: s.timeout})
	if err != nil {
		return fmt.Errorf("ntp query %v: %w", s.server, err)
	}
	if err := resp.Validate(); err != nil {
		return fmt.Errorf("ntp response from %v: %w", s.server, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset = resp.ClockOffset
	s.synced = true
	s.lastSync = s.clock.Now()
	logger.Debugf("NTP offset [%v]", resp.ClockOffset)
	return nil
}

// Update syncs only when the last sync is older than the update interval.
func (s *Source) Update() error {
	s.mu.Lock()
	stale := !s.synced || s.clock.Since(s.lastSync) >= s.updateEvery
	s.mu.Unlock()
	if !stale {
		return nil
	}
	return s.ForceSync()
}

func (s *Source) Synced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synced
}

func (s *Source) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Now().Add(s.offset).In(s.zone)
}

// FormattedDateTime returns "YYYY-MM-DD HH:MM:SS".
func (s *Source) FormattedDateTime() string {
	return s.Now().Format(dateTimeLayout)
}

// FormattedDate returns "YYYY-MM-DD".
func (s *Source) FormattedDate() string {
	return s.Now().Format(dateLayout)
}

// CurrentTime returns "HHMMSS".
func (s *Source) CurrentTime() string {
	return s.Now().Format(timeLayout)
}
