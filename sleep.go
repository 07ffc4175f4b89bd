package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// sleepDuration is the fixed configured duration unless the config asks for
// the remotely set interval.
func (w *soilstation) sleepDuration() time.Duration {
	if w.cfg.Sleep.UsePersistedInterval && w.state.SleepInterval > 0 {
		return time.Duration(w.state.SleepInterval) * time.Second
	}
	return w.cfg.Sleep.Duration
}

func (w *soilstation) armSleep() {
	d := w.sleepDuration()
	w.platform.ArmTimer(d)
	logger.Infof("Sleep timer armed for [%d] seconds", int64(d/time.Second))
}

// suspend does not return on hardware unless suspending failed.
func (w *soilstation) suspend() error {
	w.saveState()
	w.publisher.Close()
	w.led.Off()
	logger.Infof("System going to sleep for %d sec", int64(w.sleepDuration()/time.Second))
	return w.platform.Suspend()
}

// continuous replaces suspension when sleep is disabled. It resamples every
// ResampleEvery iterations and serves metrics until ctx is done.
func (w *soilstation) continuous(ctx context.Context) error {
	logger.Info("Sleep disabled, sampling continuously")
	g, ctx := errgroup.WithContext(ctx)

	if w.cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/", w.handler)
		mux.Handle("/metrics", w.metrics.Handler())
		srv := &http.Server{Addr: w.cfg.Metrics.Listen, Handler: mux}

		g.Go(func() error {
			logger.Infof("Starting webservice on [%v]", w.cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Shutdown(context.Background())
		})
	}

	g.Go(func() error {
		defer w.publisher.Close()
		for i := 1; ; i++ {
			select {
			case <-ctx.Done():
				logger.Info("Exiting")
				return nil
			default:
			}
			if i%w.cfg.Sleep.ResampleEvery == 0 {
				if err := w.ntp.Update(); err != nil {
					logger.Errorf("Failed to sync time [%v]", err)
				}
				w.led.Flash()
				w.readSensor(ctx)
			}
			w.publisher.Housekeeping()
			w.clock.Sleep(w.cfg.Telemetry.HousekeepingDelay)
		}
	})
	return g.Wait()
}
