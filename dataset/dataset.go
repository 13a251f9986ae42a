package dataset

import (
	"fmt"
	"gonum.org/v1/gonum/stat"
	"math/rand/v2"
	"nilmprep/core"
	"nilmprep/errs"
	"sort"
	"sync/atomic"
	"time"
)

type Mode int

const (
	// Training ignores the index of Get and crops a random window on every
	// call.
	Training Mode = iota
	// Evaluation maps every index to a fixed window; windows do not overlap.
	Evaluation
)

func (mode Mode) String() string {
	switch mode {
	case Training:
		return "training"
	case Evaluation:
		return "evaluation"
	}
	return fmt.Sprintf("Mode(%d)", int(mode))
}

type Config struct {
	// Length is the number of target samples per window.
	Length int
	// Border is the number of context samples added on each side of the
	// input window.
	Border     int
	PowerScale float64
	Mode       Mode
	Seed       int64
}

func (config Config) Validate() error {
	if config.Length <= 0 {
		return errs.Config("length", "must be positive, got %d", config.Length)
	}
	if config.Border < 0 {
		return errs.Config("border", "must not be negative, got %d", config.Border)
	}
	if config.PowerScale <= 0 {
		return errs.Config("power_scale", "must be positive, got %g", config.PowerScale)
	}
	if config.Mode != Training && config.Mode != Evaluation {
		return errs.Config("mode", "unknown %s", config.Mode)
	}
	return nil
}

// Track is one continuous recording: the aggregate power and, of shape
// (1, len, appliances), the appliance power and status. Rows lists the
// series windows the track was built from, in time order.
type Track struct {
	Aggregate []float64
	Power     *core.Tensor
	Status    *core.Tensor
	Rows      []int
}

func (track Track) Len() int {
	return len(track.Aggregate)
}

// Sample is one window. Input has Length+2*Border values, Target and
// Status have shape (1, Length, appliances).
type Sample struct {
	Track  int
	Origin int
	Input  []float64
	Target *core.Tensor
	Status *core.Tensor
}

// Dataset serves windows of a fixed set of tracks. The tracks must not be
// modified once the dataset is built; Get is then safe for concurrent use.
type Dataset struct {
	config     Config
	tracks     []Track
	appliances int
	// windows[i] is the number of evaluation windows before track i.
	windows []int
	// origins[i] is the number of training origins before track i.
	origins []int
	draws   int64
}

func New(tracks []Track, config Config) (*Dataset, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	dataset := &Dataset{
		config:  config,
		tracks:  tracks,
		windows: make([]int, len(tracks)+1),
		origins: make([]int, len(tracks)+1),
	}
	for i, track := range tracks {
		if err := dataset.checkTrack(i, track); err != nil {
			return nil, err
		}
		dataset.windows[i+1] = dataset.windows[i] + config.windowCount(track.Len())
		dataset.origins[i+1] = dataset.origins[i] + config.originCount(track.Len())
	}
	return dataset, nil
}

func (dataset *Dataset) checkTrack(i int, track Track) error {
	if track.Power == nil || track.Status == nil {
		return errs.Config("tracks", "track %d has no power or status", i)
	}
	if track.Power.Shape() != track.Status.Shape() {
		return errs.Config("tracks", "track %d: power %v and status %v differ", i, track.Power.Shape(), track.Status.Shape())
	}
	if track.Power.N != 1 || track.Power.T != track.Len() {
		return errs.Config("tracks", "track %d: power %v does not match %d aggregate samples", i, track.Power.Shape(), track.Len())
	}
	if i == 0 {
		dataset.appliances = track.Power.C
	} else if track.Power.C != dataset.appliances {
		return errs.Config("tracks", "track %d has %d appliances, track 0 has %d", i, track.Power.C, dataset.appliances)
	}
	return nil
}

func (config Config) windowCount(samples int) int {
	usable := samples - 2*config.Border
	if usable < config.Length {
		return 0
	}
	return usable / config.Length
}

func (config Config) originCount(samples int) int {
	count := samples - config.Length - 2*config.Border
	if count < 0 {
		return 0
	}
	return count
}

func (dataset *Dataset) Config() Config {
	return dataset.config
}

// Len is the number of non-overlapping windows over all tracks.
func (dataset *Dataset) Len() int {
	return dataset.windows[len(dataset.tracks)]
}

func (dataset *Dataset) Appliances() int {
	return dataset.appliances
}

// OriginRange returns the half-open range of training origins of a track.
func (dataset *Dataset) OriginRange(track int) (int, int) {
	border := dataset.config.Border
	return border, border + dataset.config.originCount(dataset.tracks[track].Len())
}

// Get returns the window at index in evaluation mode. In training mode the
// index is ignored and the origin is drawn at random, with a fresh source
// for every call.
func (dataset *Dataset) Get(index int) (*Sample, error) {
	if dataset.config.Mode == Training {
		return dataset.random()
	}
	if index < 0 || index >= dataset.Len() {
		return nil, fmt.Errorf("index %d out of range [0, %d)", index, dataset.Len())
	}
	track := sort.SearchInts(dataset.windows, index+1) - 1
	local := index - dataset.windows[track]
	return dataset.sample(track, local*dataset.config.Length+dataset.config.Border), nil
}

func (dataset *Dataset) random() (*Sample, error) {
	total := dataset.origins[len(dataset.tracks)]
	if total == 0 {
		return nil, fmt.Errorf("no track is longer than %d samples", dataset.config.Length+2*dataset.config.Border)
	}
	draw := atomic.AddInt64(&dataset.draws, 1)
	source := rand.New(rand.NewPCG(uint64(dataset.config.Seed), uint64(draw)))
	global := source.IntN(total)
	track := sort.SearchInts(dataset.origins, global+1) - 1
	return dataset.sample(track, global-dataset.origins[track]+dataset.config.Border), nil
}

func (dataset *Dataset) sample(index int, origin int) *Sample {
	track := dataset.tracks[index]
	length, border, scale := dataset.config.Length, dataset.config.Border, dataset.config.PowerScale

	input := make([]float64, length+2*border)
	for j := range input {
		input[j] = track.Aggregate[origin-border+j] / scale
	}
	mean := stat.Mean(input, nil)
	for j := range input {
		input[j] -= mean
	}

	target := core.NewTensor(1, length, dataset.appliances)
	status := core.NewTensor(1, length, dataset.appliances)
	for j := 0; j < length; j++ {
		for k := 0; k < dataset.appliances; k++ {
			target.Set(0, j, k, track.Power.At(0, origin+j, k)/scale)
			status.Set(0, j, k, track.Status.At(0, origin+j, k))
		}
	}
	return &Sample{Track: index, Origin: origin, Input: input, Target: target, Status: status}
}

// FromSeries makes one track per window of a series. status must have the
// shape of the series' appliance columns; a nil status leaves the tracks
// unlabelled for Label.
func FromSeries(series *core.Series, status *core.Tensor) ([]Track, error) {
	x, y, _ := core.FeatureTargetSplit(series)
	if status != nil && status.Shape() != y.Shape() {
		return nil, errs.Config("status", "shape %v does not match appliance power %v", status.Shape(), y.Shape())
	}
	tracks := make([]Track, x.N)
	for i := range tracks {
		tracks[i] = Track{
			Aggregate: x.Channel(i, 0),
			Power:     y.Select([]int{i}),
			Rows:      []int{i},
		}
		if status != nil {
			tracks[i].Status = status.Select([]int{i})
		}
	}
	return tracks, nil
}

// Label sets the status of every track to label(track.Power), computed over
// the whole track, and returns the same status laid out per window of
// series, of shape (n, t, appliances).
func Label(tracks []Track, series *core.Series, label func(power *core.Tensor) (*core.Tensor, error)) (*core.Tensor, error) {
	_, y, _ := core.FeatureTargetSplit(series)
	status := core.NewTensor(y.N, y.T, y.C)
	for i := range tracks {
		track := &tracks[i]
		if len(track.Rows)*y.T != track.Len() {
			return nil, errs.Config("tracks", "track %d has %d samples for %d windows of %d", i, track.Len(), len(track.Rows), y.T)
		}
		labelled, err := label(track.Power)
		if err != nil {
			return nil, err
		}
		if labelled.Shape() != track.Power.Shape() {
			return nil, errs.Config("status", "track %d: status %v does not match power %v", i, labelled.Shape(), track.Power.Shape())
		}
		track.Status = labelled
		for w, row := range track.Rows {
			for j := 0; j < y.T; j++ {
				for k := 0; k < y.C; k++ {
					status.Set(row, j, k, labelled.At(0, w*y.T+j, k))
				}
			}
		}
	}
	return status, nil
}

// JoinSeries makes one track per run of back to back windows: windows are
// taken in time order and a window joins the previous track when it comes
// from the same building and starts exactly where that track ends. A nil
// status leaves the tracks unlabelled for Label.
func JoinSeries(series *core.Series, status *core.Tensor, period time.Duration) ([]Track, error) {
	rows, err := FromSeries(series, status)
	if err != nil {
		return nil, err
	}
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	building := func(i int) int {
		if series.Buildings == nil {
			return 0
		}
		return series.Buildings[i]
	}
	sort.SliceStable(order, func(a, b int) bool {
		if building(order[a]) != building(order[b]) {
			return building(order[a]) < building(order[b])
		}
		return series.Starts[order[a]].Before(series.Starts[order[b]])
	})

	length := time.Duration(series.Values.T) * period
	var tracks []Track
	var end time.Time
	for n, i := range order {
		if n > 0 && building(i) == building(order[n-1]) && series.Starts[i].Equal(end) {
			last := &tracks[len(tracks)-1]
			*last = last.append(rows[i])
		} else {
			tracks = append(tracks, rows[i])
		}
		end = series.Starts[i].Add(length)
	}
	return tracks, nil
}

func (track Track) append(other Track) Track {
	n := track.Len() + other.Len()
	out := Track{
		Aggregate: append(append(make([]float64, 0, n), track.Aggregate...), other.Aggregate...),
		Power:     core.NewTensor(1, n, track.Power.C),
		Rows:      append(append([]int(nil), track.Rows...), other.Rows...),
	}
	copy(out.Power.Data[copy(out.Power.Data, track.Power.Data):], other.Power.Data)
	if track.Status != nil && other.Status != nil {
		out.Status = core.NewTensor(1, n, track.Status.C)
		copy(out.Status.Data[copy(out.Status.Data, track.Status.Data):], other.Status.Data)
	}
	return out
}
