package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gr-butler/soilmonitor/config"
	"github.com/gr-butler/soilmonitor/env"
	"github.com/gr-butler/soilmonitor/smoothing"
	logger "github.com/sirupsen/logrus"
)

type webdata struct {
	TimeNow     string  `json:"time"`
	Temperature float64 `json:"temperature_C"`
	Humidity    float64 `json:"humidity_RH"`
	HeatIndex   float64 `json:"heat_index_C"`
	Moisture    float64 `json:"soil_moisture"`
	RawAverage  float64 `json:"soil_raw_avg"`
	RawMin      int     `json:"soil_raw_min"`
	RawMax      int     `json:"soil_raw_max"`
	BootCount   int     `json:"boot_count"`
}

type measurement struct {
	name  string
	value float64
}

// readSensor is one sample and report cycle. A sensor status error skips
// the cycle without a report line or telemetry.
func (w *soilstation) readSensor(ctx context.Context) {
	now := w.ntp.FormattedDateTime()

	reading, err := w.sensors.Atm.Read()
	if err != nil {
		logger.Debugf("Skipping cycle, environment sensor status [%v]", err)
		return
	}

	moisture, ok := w.readMoisture()
	if ok && w.cfg.Moisture.UpdatePolicy == config.UpdateDouble {
		moisture, ok = w.readMoisture()
	}

	logger.Infof("%v\t%.1f\t%.1f\t%.1f\t%.1f", now,
		reading.Humidity.Float64(),
		reading.Temperature.Float64(),
		reading.HeatIndex.Float64(),
		moisture)

	w.metrics.Temperature.Set(reading.Temperature.Float64())
	w.metrics.Humidity.Set(reading.Humidity.Float64())
	w.metrics.HeatIndex.Set(reading.HeatIndex.Float64())
	w.metrics.MoistureSmooth.Set(moisture)

	avg, mn, mx := w.history.Stats()
	w.mu.Lock()
	w.latest = webdata{
		TimeNow:     now,
		Temperature: reading.Temperature.Float64(),
		Humidity:    reading.Humidity.Float64(),
		HeatIndex:   reading.HeatIndex.Float64(),
		Moisture:    moisture,
		RawAverage:  float64(avg),
		RawMin:      int(mn),
		RawMax:      int(mx),
		BootCount:   w.state.BootCount,
	}
	w.mu.Unlock()

	record := []measurement{
		{env.Temperature, reading.Temperature.Float64()},
		{env.Humidity, reading.Humidity.Float64()},
	}
	if ok {
		record = append(record, measurement{env.SoilMoisture, moisture})
	} else {
		logger.Warn("No moisture estimate, not sending SoilMoisture")
	}
	w.publish(ctx, record)
}

// readMoisture feeds one raw sample to the filter and returns the estimate.
// A failed read leaves the filter as it was.
func (w *soilstation) readMoisture() (float64, bool) {
	raw, err := w.sensors.Moisture.ReadRaw()
	if err != nil {
		logger.Errorf("Failed to read moisture [%v]", err)
		if w.filter == nil {
			return 0, false
		}
		return w.filter.Estimate(), true
	}
	if w.logMoisture {
		logger.Infof("Moisture raw [%v]", raw)
	}
	w.history.Add(raw)
	w.metrics.MoistureRaw.Set(float64(raw))
	if w.filter == nil {
		w.filter = smoothing.New(raw)
		return w.filter.Estimate(), true
	}
	return w.filter.Update(raw), true
}

func (w *soilstation) publish(ctx context.Context, record []measurement) {
	cctx, cancel := context.WithTimeout(ctx, w.cfg.Telemetry.ConnectTimeout)
	defer cancel()
	if err := w.publisher.Connect(cctx, w.endpoint(), w.cfg.Telemetry.Token); err != nil {
		logger.Errorf("Failed to connect thingsboard [%v]", err)
		return
	}

	logger.Info("Sending data to thingsboard...")
	for _, m := range record {
		if err := w.publisher.PublishFloat(m.name, m.value); err != nil {
			logger.Errorf("Failed to publish %v [%v]", m.name, err)
			w.metrics.PublishFailures.Inc()
		}
	}
}

// handler serves the latest reading as json.
func (w *soilstation) handler(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	w.mu.Lock()
	wd := w.latest
	w.mu.Unlock()

	js, err := json.Marshal(wd)
	if err != nil {
		logger.Errorf("JSON error [%v]", err)
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	_, _ = rw.Write(js) // not much we can do if this fails
}
