package pipeline

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nilmprep/config"
	"nilmprep/core"
	"nilmprep/dataset"
	"nilmprep/metrics"
	"nilmprep/status"
	"nilmprep/storage"
	"nilmprep/window"
	"time"
)

// Split is one part of a prepared run: the raw windows, their status and
// the dataset serving them.
type Split struct {
	Series  *core.Series
	Status  *core.Tensor
	Dataset *dataset.Dataset
}

type Prepared struct {
	RunID      string
	Appliances []string
	Thresholds []float64
	Train      Split
	Valid      Split
	Test       Split
}

// Preparer runs the whole preparation of a config against a meter store:
// good sections, intervals, windows, splits, status and datasets.
type Preparer struct {
	store      storage.MeterStore
	config     *config.Config
	vocabulary core.Vocabulary
	logger     *zap.Logger
	metrics    *metrics.Collectors
	runID      string
}

// NewPreparer validates every stage config up front. A nil logger or nil
// collectors disable logging or metrics.
func NewPreparer(
	store storage.MeterStore,
	cfg *config.Config,
	vocabulary core.Vocabulary,
	logger *zap.Logger,
	collectors *metrics.Collectors) (*Preparer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := core.NewMaterializer(store, cfg.MaterializerConfig(vocabulary)); err != nil {
		return nil, err
	}
	if cfg.Appliances != nil {
		appliances := core.ContractColumns(nil, cfg.Appliances)[1:]
		if _, err := status.New(cfg.StatusConfig(appliances), appliances); err != nil {
			return nil, err
		}
	}
	if err := cfg.DatasetConfig(dataset.Training).Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if collectors == nil {
		var err error
		if collectors, err = metrics.New(nil); err != nil {
			return nil, err
		}
	}
	runID := uuid.New().String()
	return &Preparer{
		store:      store,
		config:     cfg,
		vocabulary: vocabulary,
		logger:     logger.With(zap.String("run", runID)),
		metrics:    collectors,
		runID:      runID,
	}, nil
}

func (p *Preparer) RunID() string {
	return p.runID
}

// LoadBuilding materializes the windows of one building.
func (p *Preparer) LoadBuilding(building int) (*core.Series, error) {
	started := time.Now()
	logger := p.logger.With(zap.Int("building", building))

	materializer, err := core.NewMaterializer(p.store, p.config.MaterializerConfig(p.vocabulary))
	if err != nil {
		return nil, err
	}
	finder, err := window.NewFinder(p.store, p.config.WindowConfig())
	if err != nil {
		return nil, err
	}
	if start, end, ok := p.config.DateRange(building); ok {
		finder.SetBounds(start, end)
		logger.Debug("restricting dates", zap.Time("start", start), zap.Time("end", end))
	}

	all, err := p.store.Meters(building)
	if err != nil {
		return nil, fmt.Errorf("building %d: %w", building, err)
	}
	meters, err := materializer.SelectMeters(all)
	if err != nil {
		return nil, err
	}
	sections, err := finder.Sections(meters)
	if err != nil {
		return nil, err
	}
	intervals, err := window.FindIntervals(sections, finder.Config())
	if err != nil {
		return nil, err
	}
	series, err := materializer.Materialize(meters, intervals)
	if err != nil {
		return nil, err
	}

	count := 0
	for _, meterSections := range sections {
		count += len(meterSections)
	}
	p.metrics.AddSections(building, count)
	p.metrics.AddIntervals(building, len(intervals))
	p.metrics.AddWindows(building, series.Len())
	p.metrics.ObserveLoad(building, time.Since(started))
	logger.Info("loaded building",
		zap.Int("meters", len(meters)),
		zap.Int("sections", count),
		zap.Int("intervals", len(intervals)),
		zap.Int("windows", series.Len()),
		zap.Strings("columns", series.Columns),
		zap.Duration("elapsed", time.Since(started)))
	return series, nil
}

// Load materializes every configured building and stacks the results.
// Buildings must yield the same columns, which holds whenever appliances
// are configured explicitly.
func (p *Preparer) Load(ctx context.Context) (*core.Series, error) {
	all := make([]*core.Series, 0, len(p.config.Buildings))
	for _, building := range p.config.Buildings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		series, err := p.LoadBuilding(building)
		if err != nil {
			p.logger.Error("load failed", zap.Int("building", building), zap.Error(err))
			return nil, err
		}
		all = append(all, series)
	}
	return core.Concat(all...)
}

// Prepare loads every building, splits the windows, fits the thresholds on
// the training split and builds one dataset per split.
func (p *Preparer) Prepare(ctx context.Context) (*Prepared, error) {
	series, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}
	appliances := series.Appliances()
	thresholder, err := status.New(p.config.StatusConfig(appliances), appliances)
	if err != nil {
		return nil, err
	}

	train, valid, test, err := dataset.SplitSeries(series,
		p.config.TrainSize, p.config.ValidSize, p.config.Shuffle, p.config.RandomSeed)
	if err != nil {
		return nil, err
	}
	_, power, _ := core.FeatureTargetSplit(train)
	if err := thresholder.Fit(power); err != nil {
		return nil, err
	}
	p.logger.Info("fitted thresholds",
		zap.String("method", string(thresholder.Config().Method)),
		zap.Strings("appliances", appliances),
		zap.Float64s("thresholds", thresholder.Thresholds()))

	prepared := &Prepared{
		RunID:      p.runID,
		Appliances: appliances,
		Thresholds: thresholder.Thresholds(),
	}
	for _, part := range []struct {
		series *core.Series
		mode   dataset.Mode
		split  *Split
		name   string
	}{
		{train, dataset.Training, &prepared.Train, "train"},
		{valid, dataset.Evaluation, &prepared.Valid, "valid"},
		{test, dataset.Evaluation, &prepared.Test, "test"},
	} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		split, err := p.split(part.series, thresholder, part.mode)
		if err != nil {
			return nil, fmt.Errorf("%s split: %w", part.name, err)
		}
		*part.split = *split
		p.logger.Info("built dataset",
			zap.String("split", part.name),
			zap.Stringer("mode", part.mode),
			zap.Int("windows", part.series.Len()),
			zap.Int("samples", split.Dataset.Len()))
	}
	return prepared, nil
}

func (p *Preparer) split(series *core.Series, thresholder *status.Thresholder, mode dataset.Mode) (*Split, error) {
	// Status is computed per joined track so runs crossing a window edge
	// are filtered whole.
	tracks, err := dataset.JoinSeries(series, nil, p.config.WindowConfig().SamplePeriod)
	if err != nil {
		return nil, err
	}
	statusTensor, err := dataset.Label(tracks, series, thresholder.Status)
	if err != nil {
		return nil, err
	}
	data, err := dataset.New(tracks, p.config.DatasetConfig(mode))
	if err != nil {
		return nil, err
	}
	return &Split{Series: series, Status: statusTensor, Dataset: data}, nil
}

// Arrays are a split in the shape handed to a training loop: Input is
// (n, window, 1) normalized and mean centred, Target and Status are
// (n, window-2*border, appliances).
type Arrays struct {
	Input  *core.Tensor
	Target *core.Tensor
	Status *core.Tensor
}

func (p *Preparer) Arrays(split Split) (*Arrays, error) {
	x, y, _ := core.FeatureTargetSplit(split.Series)
	scale := []float64{p.config.PowerScale}
	input, err := core.Normalize(x, scale, true)
	if err != nil {
		return nil, err
	}
	target, err := core.Normalize(y, scale, false)
	if err != nil {
		return nil, err
	}
	if target, err = core.TrimBorder(target, p.config.Border); err != nil {
		return nil, err
	}
	statusTensor, err := core.TrimBorder(split.Status, p.config.Border)
	if err != nil {
		return nil, err
	}
	return &Arrays{Input: input, Target: target, Status: statusTensor}, nil
}
