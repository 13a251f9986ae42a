package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"strconv"
	"time"
)

// Collectors counts what each building contributes to a run.
type Collectors struct {
	sections     *prometheus.CounterVec
	intervals    *prometheus.CounterVec
	windows      *prometheus.CounterVec
	loadDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on registerer, when one is
// given.
func New(registerer prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		sections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nilmprep_sections_total",
			Help: "Good sections read from the meter store, by building.",
		}, []string{"building"}),
		intervals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nilmprep_intervals_total",
			Help: "Intervals where every meter of a building recorded, by building.",
		}, []string{"building"}),
		windows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nilmprep_windows_total",
			Help: "Windows materialized, by building.",
		}, []string{"building"}),
		loadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nilmprep_load_duration_seconds",
			Help:    "Time spent loading one building.",
			Buckets: prometheus.DefBuckets,
		}, []string{"building"}),
	}
	if registerer == nil {
		return c, nil
	}
	for _, collector := range []prometheus.Collector{c.sections, c.intervals, c.windows, c.loadDuration} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func label(building int) string {
	return strconv.Itoa(building)
}

func (c *Collectors) AddSections(building int, n int) {
	c.sections.WithLabelValues(label(building)).Add(float64(n))
}

func (c *Collectors) AddIntervals(building int, n int) {
	c.intervals.WithLabelValues(label(building)).Add(float64(n))
}

func (c *Collectors) AddWindows(building int, n int) {
	c.windows.WithLabelValues(label(building)).Add(float64(n))
}

func (c *Collectors) ObserveLoad(building int, elapsed time.Duration) {
	c.loadDuration.WithLabelValues(label(building)).Observe(elapsed.Seconds())
}

func (c *Collectors) Sections(building int) prometheus.Counter {
	return c.sections.WithLabelValues(label(building))
}

func (c *Collectors) Intervals(building int) prometheus.Counter {
	return c.intervals.WithLabelValues(label(building))
}

func (c *Collectors) Windows(building int) prometheus.Counter {
	return c.windows.WithLabelValues(label(building))
}
