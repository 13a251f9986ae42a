package window

import (
	"nilmprep/errs"
	"time"
)

// NoLimit disables the cap on the number of windows.
const NoLimit = -1

type Config struct {
	SamplePeriod time.Duration
	// WindowLength is the number of samples in one window.
	WindowLength int
	// Step is the number of samples between consecutive window origins.
	Step int
	// MaxWindows caps the total number of windows, or NoLimit.
	MaxWindows int
}

// NewConfig returns a config of back to back windows with no cap.
func NewConfig(samplePeriod time.Duration, windowLength int) Config {
	return Config{
		SamplePeriod: samplePeriod,
		WindowLength: windowLength,
		Step:         windowLength,
		MaxWindows:   NoLimit,
	}
}

func (config Config) Validate() error {
	if config.SamplePeriod <= 0 {
		return errs.Config("sample_period", "must be positive, got %s", config.SamplePeriod)
	}
	if config.SamplePeriod%time.Second != 0 {
		return errs.Config("sample_period", "must be whole seconds, got %s", config.SamplePeriod)
	}
	if config.WindowLength <= 0 {
		return errs.Config("window_length", "must be positive, got %d", config.WindowLength)
	}
	if config.Step <= 0 {
		return errs.Config("step", "must be positive, got %d", config.Step)
	}
	if config.MaxWindows < NoLimit {
		return errs.Config("max_windows", "must be %d or at least 0, got %d", NoLimit, config.MaxWindows)
	}
	return nil
}

// WindowCount is the number of windows of the config that fit in the given
// number of consecutive samples.
func (config Config) WindowCount(samples int) int {
	if samples < config.WindowLength {
		return 0
	}
	return (samples-config.WindowLength)/config.Step + 1
}

// SpanSamples is the number of samples covered by count windows.
func (config Config) SpanSamples(count int) int {
	if count <= 0 {
		return 0
	}
	return (count-1)*config.Step + config.WindowLength
}

// Interval is a span where every meter of a group was recording, trimmed
// so that it holds exactly Windows windows. It covers the Samples grid
// points Start + k*SamplePeriod, k < Samples, and End is one period past
// the last of them.
type Interval struct {
	Start   time.Time
	End     time.Time
	Samples int
	Windows int
}
