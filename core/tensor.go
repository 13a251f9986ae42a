package core

import (
	"fmt"
	"time"
)

// Tensor is a dense row-major array of shape (N, T, C): N series of T
// samples with C channels each.
type Tensor struct {
	N, T, C int
	Data    []float64
}

func NewTensor(n, t, c int) *Tensor {
	return &Tensor{N: n, T: t, C: c, Data: make([]float64, n*t*c)}
}

func (tensor *Tensor) Index(i, j, k int) int {
	return (i*tensor.T+j)*tensor.C + k
}

func (tensor *Tensor) At(i, j, k int) float64 {
	return tensor.Data[tensor.Index(i, j, k)]
}

func (tensor *Tensor) Set(i, j, k int, value float64) {
	tensor.Data[tensor.Index(i, j, k)] = value
}

func (tensor *Tensor) Shape() [3]int {
	return [3]int{tensor.N, tensor.T, tensor.C}
}

// Channel returns a copy of channel k of series i.
func (tensor *Tensor) Channel(i, k int) []float64 {
	values := make([]float64, tensor.T)
	for j := range values {
		values[j] = tensor.At(i, j, k)
	}
	return values
}

func (tensor *Tensor) SetChannel(i, k int, values []float64) {
	for j, value := range values {
		tensor.Set(i, j, k, value)
	}
}

func (tensor *Tensor) Clone() *Tensor {
	clone := NewTensor(tensor.N, tensor.T, tensor.C)
	copy(clone.Data, tensor.Data)
	return clone
}

// Select returns a new tensor holding the given series, in order.
func (tensor *Tensor) Select(indices []int) *Tensor {
	out := NewTensor(len(indices), tensor.T, tensor.C)
	size := tensor.T * tensor.C
	for dst, src := range indices {
		copy(out.Data[dst*size:(dst+1)*size], tensor.Data[src*size:(src+1)*size])
	}
	return out
}

// Series is the windowed output of a meter group: Values has shape
// (windows, window length, columns), column 0 is the aggregate and the
// appliances follow in lexicographic order.
type Series struct {
	Values  *Tensor
	Columns []string
	// Starts holds the timestamp of the first sample of every window.
	Starts []time.Time
	// Buildings holds the building every window was read from.
	Buildings []int
}

func (series *Series) Len() int {
	if series.Values == nil {
		return 0
	}
	return series.Values.N
}

func (series *Series) Appliances() []string {
	return append([]string(nil), series.Columns[1:]...)
}

func (series *Series) Column(name string) (int, bool) {
	for i, column := range series.Columns {
		if column == name {
			return i, true
		}
	}
	return -1, false
}

func (series *Series) Select(indices []int) *Series {
	starts := make([]time.Time, len(indices))
	var buildings []int
	if series.Buildings != nil {
		buildings = make([]int, len(indices))
	}
	for dst, src := range indices {
		starts[dst] = series.Starts[src]
		if buildings != nil {
			buildings[dst] = series.Buildings[src]
		}
	}
	return &Series{
		Values:    series.Values.Select(indices),
		Columns:   append([]string(nil), series.Columns...),
		Starts:    starts,
		Buildings: buildings,
	}
}

// Concat stacks series that share the same columns and window length.
func Concat(all ...*Series) (*Series, error) {
	if len(all) == 0 {
		return nil, fmt.Errorf("concat: no series")
	}
	first := all[0]
	n := 0
	for _, series := range all {
		if fmt.Sprint(series.Columns) != fmt.Sprint(first.Columns) {
			return nil, fmt.Errorf("concat: columns %v differ from %v", series.Columns, first.Columns)
		}
		if series.Values.T != first.Values.T {
			return nil, fmt.Errorf("concat: window length %d differs from %d", series.Values.T, first.Values.T)
		}
		n += series.Values.N
	}
	out := &Series{
		Values:    NewTensor(n, first.Values.T, first.Values.C),
		Columns:   append([]string(nil), first.Columns...),
		Starts:    make([]time.Time, 0, n),
		Buildings: make([]int, 0, n),
	}
	offset := 0
	for _, series := range all {
		offset += copy(out.Values.Data[offset:], series.Values.Data)
		out.Starts = append(out.Starts, series.Starts...)
		if series.Buildings != nil {
			out.Buildings = append(out.Buildings, series.Buildings...)
		} else {
			out.Buildings = append(out.Buildings, make([]int, series.Values.N)...)
		}
	}
	return out, nil
}
