package status

import (
	"gonum.org/v1/gonum/floats"
	"math"
	"nilmprep/core"
	"nilmprep/errs"
	"nilmprep/stats"
)

// Thresholder turns appliance power of shape (n, t, a) into on/off status
// of the same shape.
type Thresholder struct {
	config     Config
	appliances []string
	thresholds []float64
}

// New validates config against the appliances. Every count mismatch is
// reported here, before any power is read.
func New(config Config, appliances []string) (*Thresholder, error) {
	resolved, err := config.resolve(appliances)
	if err != nil {
		return nil, err
	}
	thresholder := &Thresholder{
		config:     resolved,
		appliances: append([]string(nil), appliances...),
	}
	if resolved.Method == Fixed {
		thresholder.thresholds = resolved.Thresholds
	}
	return thresholder, nil
}

func (thresholder *Thresholder) Config() Config {
	return thresholder.config
}

func (thresholder *Thresholder) Appliances() []string {
	return append([]string(nil), thresholder.appliances...)
}

// Fitted reports whether thresholds are available.
func (thresholder *Thresholder) Fitted() bool {
	return thresholder.thresholds != nil
}

// Thresholds returns a copy of the current thresholds, nil before Fit for
// the data driven methods.
func (thresholder *Thresholder) Thresholds() []float64 {
	if thresholder.thresholds == nil {
		return nil
	}
	return append([]float64(nil), thresholder.thresholds...)
}

func (thresholder *Thresholder) checkShape(power *core.Tensor) error {
	if power.C != len(thresholder.appliances) {
		return errs.Config("appliances", "power has %d channels for %d appliances", power.C, len(thresholder.appliances))
	}
	return nil
}

// Fit computes the thresholds of the data driven methods from power. Fixed
// thresholds are left alone.
func (thresholder *Thresholder) Fit(power *core.Tensor) error {
	if err := thresholder.checkShape(power); err != nil {
		return err
	}
	if thresholder.config.Method == Fixed {
		return nil
	}
	thresholds := make([]float64, power.C)
	for k := range thresholds {
		values := make([]float64, 0, power.N*power.T)
		for i := 0; i < power.N; i++ {
			values = append(values, power.Channel(i, k)...)
		}
		switch thresholder.config.Method {
		case MidPoint:
			thresholds[k] = midPoint(values)
		case VarianceSensitive:
			thresholds[k] = varianceSensitive(values)
		case ActivityTime:
			thresholds[k] = stats.UpperQuantile(values, thresholder.config.OnFractions[k])
		}
	}
	thresholder.thresholds = thresholds
	return nil
}

// Status binarizes power against the thresholds and filters every series
// and appliance by the minimum durations. Data driven thresholds are fitted
// on power first when Fit was never called.
func (thresholder *Thresholder) Status(power *core.Tensor) (*core.Tensor, error) {
	if err := thresholder.checkShape(power); err != nil {
		return nil, err
	}
	if !thresholder.Fitted() {
		if err := thresholder.Fit(power); err != nil {
			return nil, err
		}
	}
	status := core.NewTensor(power.N, power.T, power.C)
	for i := 0; i < power.N; i++ {
		for k := 0; k < power.C; k++ {
			sequence := Binarize(power.Channel(i, k), thresholder.thresholds[k])
			status.SetChannel(i, k, FilterDuration(sequence,
				thresholder.config.MinOn[k], thresholder.config.MinOff[k]))
		}
	}
	return status, nil
}

// Binarize is 1 where the value reaches threshold and 0 elsewhere.
func Binarize(values []float64, threshold float64) []float64 {
	out := make([]float64, len(values))
	for i, value := range values {
		if value >= threshold {
			out[i] = 1
		}
	}
	return out
}

func midPoint(values []float64) float64 {
	if len(values) == 0 {
		return math.Inf(1)
	}
	low, high := floats.Min(values), floats.Max(values)
	if low == high {
		return math.Inf(1)
	}
	return (low + high) / 2
}

// varianceSensitive places the threshold at m0 + s0/(s0+s1)*(m1-m0) between
// the two clusters, and always above every value of the low cluster.
func varianceSensitive(values []float64) float64 {
	low, high, ok := stats.TwoMeans(values)
	if !ok {
		return math.Inf(1)
	}
	sigma := low.SD / (low.SD + high.SD)
	if math.IsNaN(sigma) {
		sigma = 0.5
	}
	threshold := low.Mean + sigma*(high.Mean-low.Mean)
	return math.Max(threshold, math.Nextafter(low.Max, math.Inf(1)))
}
