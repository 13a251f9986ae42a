package dataset

import (
	"math/rand"
	"nilmprep/core"
	"nilmprep/errs"
)

func checkFractions(trainSize, validSize float64) error {
	if trainSize < 0 || validSize < 0 {
		return errs.Config("train_size", "fractions must not be negative, got %g and %g", trainSize, validSize)
	}
	if trainSize+validSize > 1 {
		return errs.Config("train_size", "train %g and valid %g add up to more than 1", trainSize, validSize)
	}
	return nil
}

// splitCounts returns the train and valid counts of n items. The test split
// takes the remainder.
func splitCounts(n int, trainSize, validSize float64) (int, int) {
	train := int(float64(n) * trainSize)
	valid := int(float64(n) * validSize)
	if train+valid > n {
		valid = n - train
	}
	return train, valid
}

// SplitSeries splits the windows of a series into train, validation and test
// series. With shuffle the windows are permuted with seed first; otherwise
// they keep their time order.
func SplitSeries(
	series *core.Series,
	trainSize float64,
	validSize float64,
	shuffle bool,
	seed int64) (*core.Series, *core.Series, *core.Series, error) {
	if err := checkFractions(trainSize, validSize); err != nil {
		return nil, nil, nil, err
	}
	n := series.Len()
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if shuffle {
		indices = rand.New(rand.NewSource(seed)).Perm(n)
	}
	train, valid := splitCounts(n, trainSize, validSize)
	return series.Select(indices[:train]),
		series.Select(indices[train : train+valid]),
		series.Select(indices[train+valid:]),
		nil
}

// SplitTrack cuts a track along time into train, validation and test parts.
func SplitTrack(track Track, trainSize float64, validSize float64) (Track, Track, Track, error) {
	if err := checkFractions(trainSize, validSize); err != nil {
		return Track{}, Track{}, Track{}, err
	}
	if track.Power == nil || track.Status == nil {
		return Track{}, Track{}, Track{}, errs.Config("track", "track has no power or status")
	}
	train, valid := splitCounts(track.Len(), trainSize, validSize)
	return track.slice(0, train),
		track.slice(train, train+valid),
		track.slice(train+valid, track.Len()),
		nil
}

func (track Track) slice(from, to int) Track {
	out := Track{
		Aggregate: append([]float64(nil), track.Aggregate[from:to]...),
		Power:     core.NewTensor(1, to-from, track.Power.C),
		Status:    core.NewTensor(1, to-from, track.Status.C),
	}
	copy(out.Power.Data, track.Power.Data[from*track.Power.C:to*track.Power.C])
	copy(out.Status.Data, track.Status.Data[from*track.Status.C:to*track.Status.C])
	return out
}
