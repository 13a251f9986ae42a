package core

import (
	"errors"
	"fmt"
	"math"
	"nilmprep/errs"
	"nilmprep/storage"
	"nilmprep/window"
	"time"
)

type MaterializerConfig struct {
	Window window.Config
	// Appliances restricts and fixes the appliance columns. Nil keeps every
	// appliance of the meter group.
	Appliances []string
	// ToInt truncates every value to an integer.
	ToInt      bool
	Vocabulary Vocabulary
}

func (config MaterializerConfig) Validate() error {
	if err := config.Window.Validate(); err != nil {
		return err
	}
	if config.Appliances != nil && len(config.Appliances) == 0 {
		return errs.Config("appliances", "an empty list requests no appliances; use nil for all")
	}
	return nil
}

// ColumnName is the series column a meter contributes to.
func (config MaterializerConfig) ColumnName(meter storage.Meter) string {
	if meter.Site {
		return AggregateName
	}
	return config.Vocabulary.Canonical(meter.Label)
}

// Materializer turns the intervals of a meter group into a Series.
type Materializer struct {
	store  storage.MeterStore
	config MaterializerConfig
}

func NewMaterializer(store storage.MeterStore, config MaterializerConfig) (*Materializer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Materializer{store: store, config: config}, nil
}

// SelectMeters keeps the site meters of a building and the appliance
// meters whose canonical name was requested. It fails when the building has
// no site meter.
func (m *Materializer) SelectMeters(meters []storage.Meter) ([]storage.Meter, error) {
	wanted := make(map[string]bool)
	for _, name := range m.config.Appliances {
		wanted[name] = true
	}
	selected := make([]storage.Meter, 0, len(meters))
	sites := 0
	for _, meter := range meters {
		switch {
		case meter.Site:
			sites++
			selected = append(selected, meter)
		case m.config.Appliances == nil || wanted[m.config.ColumnName(meter)]:
			selected = append(selected, meter)
		}
	}
	if sites == 0 {
		building := 0
		if len(meters) > 0 {
			building = meters[0].Building
		}
		return nil, &errs.IntegrityError{Building: building, Meter: AggregateName, Reason: "building has no site meter"}
	}
	return selected, nil
}

// Materialize reads every interval from the store and cuts it into
// windows. Any window that is not a gap-free run of samples aborts the
// whole load.
func (m *Materializer) Materialize(meters []storage.Meter, intervals []window.Interval) (*Series, error) {
	if len(meters) == 0 {
		return nil, errs.Config("meters", "no meters to materialize")
	}
	present := make([]string, 0, len(meters))
	hasSite := false
	for _, meter := range meters {
		present = append(present, m.config.ColumnName(meter))
		hasSite = hasSite || meter.Site
	}
	if !hasSite {
		return nil, &errs.IntegrityError{Building: meters[0].Building, Meter: AggregateName, Reason: "meter group has no site meter"}
	}

	length := m.config.Window.WindowLength
	columns := ContractColumns(present, m.config.Appliances)
	total := 0
	for _, interval := range intervals {
		total += interval.Windows
	}
	series := &Series{
		Values:    NewTensor(total, length, len(columns)),
		Columns:   columns,
		Starts:    make([]time.Time, 0, total),
		Buildings: make([]int, 0, total),
	}

	next := 0
	for _, interval := range intervals {
		table, err := m.readInterval(meters, interval)
		if err != nil {
			return nil, err
		}
		table, err = ApplyColumnContract(GroupColumns(table), m.config.Appliances)
		if err != nil {
			return nil, err
		}

		timestamps := make([]time.Time, 0, interval.Windows*length)
		windows := 0
		for w := 0; w < interval.Windows; w++ {
			origin := w * m.config.Window.Step
			if origin+length > len(table.Timestamps) {
				break
			}
			timestamps = append(timestamps, table.Timestamps[origin:origin+length]...)
			for c := range columns {
				values := table.Values[c][origin : origin+length]
				if m.config.ToInt {
					values = truncate(values)
				}
				series.Values.SetChannel(next, c, values)
			}
			series.Starts = append(series.Starts, table.Timestamps[origin])
			series.Buildings = append(series.Buildings, meters[0].Building)
			windows++
			next++
		}
		if err := EnsureContinuous(timestamps, m.config.Window.SamplePeriod, length); err != nil {
			var integrity *errs.IntegrityError
			if errors.As(err, &integrity) {
				integrity.Building = meters[0].Building
			}
			return nil, fmt.Errorf("interval starting %s: %w", interval.Start.Format(time.RFC3339), err)
		}
		if windows < interval.Windows {
			return nil, &errs.IntegrityError{
				Building: meters[0].Building,
				Start:    interval.Start,
				End:      interval.End,
				Reason:   "interval is missing samples",
				Expected: int64(interval.Samples),
				Actual:   int64(len(table.Timestamps)),
			}
		}
	}
	return series, nil
}

// readInterval aligns the readings of every meter on the interval's sample
// grid. Only grid points where every meter has a value are kept.
func (m *Materializer) readInterval(meters []storage.Meter, interval window.Interval) (Table, error) {
	period := m.config.Window.SamplePeriod
	n := interval.Samples
	values := make([][]float64, len(meters))
	counts := make([]int, n)
	seen := make([][]bool, len(meters))

	for i, meter := range meters {
		samples, err := m.store.ReadPower(meter, interval.Start, interval.End, period)
		if err != nil {
			return Table{}, fmt.Errorf("read %s: %w", meter, err)
		}
		values[i] = make([]float64, n)
		seen[i] = make([]bool, n)
		for _, sample := range samples {
			offset := sample.Timestamp.Sub(interval.Start)
			k := int(offset / period)
			if offset%period != 0 || k < 0 || k >= n {
				return Table{}, &errs.IntegrityError{
					Building: meter.Building,
					Meter:    meter.String(),
					Start:    interval.Start,
					End:      interval.End,
					Reason:   "sample off the interval grid at " + sample.Timestamp.UTC().Format(time.RFC3339Nano),
				}
			}
			if !seen[i][k] {
				counts[k]++
			}
			seen[i][k] = true
			values[i][k] = sample.Value
		}
	}

	table := Table{
		Timestamps: make([]time.Time, 0, n),
		Columns:    make([]string, len(meters)),
		Values:     make([][]float64, len(meters)),
	}
	for i, meter := range meters {
		table.Columns[i] = m.config.ColumnName(meter)
		table.Values[i] = make([]float64, 0, n)
	}
	for k := 0; k < n; k++ {
		if counts[k] != len(meters) {
			continue
		}
		table.Timestamps = append(table.Timestamps, interval.Start.Add(time.Duration(k)*period))
		for i := range meters {
			table.Values[i] = append(table.Values[i], values[i][k])
		}
	}
	return table, nil
}

func truncate(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, value := range values {
		out[i] = math.Trunc(value)
	}
	return out
}
