package smoothing

// Filter is an exponential moving average over raw soil moisture samples.
//
// Each update keeps 95% of the previous estimate and blends in 5% of the new
// sample, so the estimate follows the raw signal with a time constant of
// roughly 20 samples.
type Filter struct {
	estimate float64
	updates  int
}

const (
	Retain = 0.95
	Sample = 0.05
)

// New seeds the filter with a first raw reading. No smoothing is applied to
// the seed.
func New(seed int) *Filter {
	return &Filter{estimate: float64(seed)}
}

// Update blends raw into the estimate and returns the new estimate.
// Out of range values are not clamped.
func (f *Filter) Update(raw int) float64 {
	f.estimate = Retain*f.estimate + Sample*float64(raw)
	f.updates++
	return f.estimate
}

func (f *Filter) Estimate() float64 {
	return f.estimate
}

// Updates returns the number of samples blended in since the seed.
func (f *Filter) Updates() int {
	return f.updates
}
