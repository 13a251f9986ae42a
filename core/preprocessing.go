package core

import (
	"gonum.org/v1/gonum/stat"
	"nilmprep/errs"
)

// FeatureTargetSplit separates the aggregate column, shape (n, t, 1), from
// the appliance columns, shape (n, t, a).
func FeatureTargetSplit(series *Series) (*Tensor, *Tensor, []string) {
	values := series.Values
	x := NewTensor(values.N, values.T, 1)
	y := NewTensor(values.N, values.T, values.C-1)
	for i := 0; i < values.N; i++ {
		for j := 0; j < values.T; j++ {
			x.Set(i, j, 0, values.At(i, j, 0))
			for k := 1; k < values.C; k++ {
				y.Set(i, j, k-1, values.At(i, j, k))
			}
		}
	}
	return x, y, series.Appliances()
}

// Normalize divides every channel by its scale (one scale, or one per
// channel) and optionally subtracts each series' own mean per channel.
func Normalize(tensor *Tensor, scales []float64, subtractMean bool) (*Tensor, error) {
	if len(scales) != 1 && len(scales) != tensor.C {
		return nil, errs.Config("power_scale", "got %d scales for %d channels", len(scales), tensor.C)
	}
	for _, scale := range scales {
		if scale <= 0 {
			return nil, errs.Config("power_scale", "must be positive, got %g", scale)
		}
	}
	out := NewTensor(tensor.N, tensor.T, tensor.C)
	for i := 0; i < tensor.N; i++ {
		for k := 0; k < tensor.C; k++ {
			scale := scales[0]
			if len(scales) > 1 {
				scale = scales[k]
			}
			channel := tensor.Channel(i, k)
			for j := range channel {
				channel[j] /= scale
			}
			if subtractMean {
				mean := stat.Mean(channel, nil)
				for j := range channel {
					channel[j] -= mean
				}
			}
			out.SetChannel(i, k, channel)
		}
	}
	return out, nil
}

// TrimBorder drops border samples from both ends of every series.
func TrimBorder(tensor *Tensor, border int) (*Tensor, error) {
	if border < 0 || 2*border >= tensor.T {
		return nil, errs.Config("border", "%d does not fit series of length %d", border, tensor.T)
	}
	out := NewTensor(tensor.N, tensor.T-2*border, tensor.C)
	for i := 0; i < tensor.N; i++ {
		for j := 0; j < out.T; j++ {
			for k := 0; k < tensor.C; k++ {
				out.Set(i, j, k, tensor.At(i, j+border, k))
			}
		}
	}
	return out, nil
}
