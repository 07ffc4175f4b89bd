package sensors

import "math"

// HeatIndex uses the NOAA approximation: Steadman's simple formula and, above
// 79°F, the Rothfusz regression with its low and high humidity adjustments.
// https://www.wpc.ncep.noaa.gov/html/heatindex_equation.shtml
func HeatIndex(t TemperatureC, h RelHumidity) TemperatureC {
	f := ctof(t.Float64())
	rh := h.Float64()

	hi := 0.5 * (f + 61.0 + ((f - 68.0) * 1.2) + (rh * 0.094))
	if hi > 79 {
		hi = -42.379 +
			2.04901523*f +
			10.14333127*rh +
			-0.22475541*f*rh +
			-0.00683783*f*f +
			-0.05481717*rh*rh +
			0.00122874*f*f*rh +
			0.00085282*f*rh*rh +
			-0.00000199*f*f*rh*rh

		if rh < 13 && f >= 80.0 && f <= 112.0 {
			hi -= ((13.0 - rh) * 0.25) * math.Sqrt((17.0-math.Abs(f-95.0))*0.05882)
		} else if rh > 85.0 && f >= 80.0 && f <= 87.0 {
			hi += ((rh - 85.0) * 0.1) * ((87.0 - f) * 0.2)
		}
	}
	return TemperatureC(ftoc(hi))
}

func ctof(c float64) float64 {
	//(0°C × 9/5) + 32 = 32°F
	return ((c * 9 / 5) + 32)
}

func ftoc(f float64) float64 {
	return (f - 32) * 5 / 9
}
