package pipeline

import (
	"context"
	"errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"nilmprep/config"
	"nilmprep/core"
	"nilmprep/errs"
	"nilmprep/metrics"
	"nilmprep/storage"
	"strings"
	"testing"
	"time"
)

const baseConfig = `
store:
  backend: memory
  max_gap: 2s
  fill_limit: 2s
buildings: [1, 2]
appliances: [kettle, fridge]
sample_period: 1
window_length: 10
border: 2
power_scale: 100
threshold_method: mp
train_size: 0.6
valid_size: 0.2
shuffle: false
batch_size: 4
workers: 2
`

var (
	epoch1 = time.Date(2013, 4, 1, 0, 0, 0, 0, time.UTC)
	epoch2 = time.Date(2014, 6, 1, 0, 0, 0, 0, time.UTC)
)

func fridgePower(s int) float64 {
	if (s/5)%2 == 0 {
		return 80
	}
	return 0
}

func kettlePower(s int) float64 {
	if s%20 < 3 {
		return 2000
	}
	return 0
}

// putBuilding stores n seconds of a site meter, a fridge and, optionally, a
// kettle.
func putBuilding(t *testing.T, store storage.WritableStore, building int, epoch time.Time, n int, kettle bool) {
	site := storage.Meter{Building: building, Instance: 1, Label: "mains", Site: true, SamplePeriod: time.Second}
	fridge := storage.Meter{Building: building, Instance: 2, Label: "Fridge Freezer", SamplePeriod: time.Second}
	kettleMeter := storage.Meter{Building: building, Instance: 3, Label: "kettle", SamplePeriod: time.Second}

	var siteSamples, fridgeSamples, kettleSamples []storage.Sample
	for s := 0; s < n; s++ {
		at := epoch.Add(time.Duration(s) * time.Second)
		total := 100 + fridgePower(s)
		fridgeSamples = append(fridgeSamples, storage.Sample{Timestamp: at, Value: fridgePower(s)})
		if kettle {
			total += kettlePower(s)
			kettleSamples = append(kettleSamples, storage.Sample{Timestamp: at, Value: kettlePower(s)})
		}
		siteSamples = append(siteSamples, storage.Sample{Timestamp: at, Value: total})
	}
	require.NoError(t, store.Put(site, siteSamples))
	require.NoError(t, store.Put(fridge, fridgeSamples))
	if kettle {
		require.NoError(t, store.Put(kettleMeter, kettleSamples))
	}
}

// loadConfig overrides the top level keys of baseConfig with those of extra.
func loadConfig(t *testing.T, extra string) *config.Config {
	overridden := make(map[string]bool)
	for _, line := range strings.Split(extra, "\n") {
		if key, _, ok := strings.Cut(line, ":"); ok && !strings.HasPrefix(line, " ") {
			overridden[key] = true
		}
	}
	var lines []string
	for _, line := range strings.Split(baseConfig, "\n") {
		key, _, _ := strings.Cut(line, ":")
		if !overridden[key] {
			lines = append(lines, line)
		}
	}
	cfg, err := config.LoadReader(strings.NewReader(strings.Join(lines, "\n")+extra), "yaml")
	require.NoError(t, err)
	return cfg
}

func newFixture(t *testing.T, cfg *config.Config) storage.WritableStore {
	store, err := storage.NewInMemoryStore(cfg.StoreConfig())
	require.NoError(t, err)
	putBuilding(t, store, 1, epoch1, 200, true)
	putBuilding(t, store, 2, epoch2, 100, false)
	return store
}

func TestPrepare(t *testing.T) {
	cfg := loadConfig(t, "")
	store := newFixture(t, cfg)
	registry := prometheus.NewRegistry()
	collectors, err := metrics.New(registry)
	require.NoError(t, err)
	observed, logs := observer.New(zap.InfoLevel)

	preparer, err := NewPreparer(store, cfg, core.UKDALEVocabulary(), zap.New(observed), collectors)
	require.NoError(t, err)
	prepared, err := preparer.Prepare(context.Background())
	require.NoError(t, err)

	assert.Equal(t, preparer.RunID(), prepared.RunID)
	assert.Equal(t, []string{"fridge", "kettle"}, prepared.Appliances)
	assert.Equal(t, []float64{40, 1000}, prepared.Thresholds)

	// 20 windows from building 1 and 10 from building 2, split in order.
	assert.Equal(t, 18, prepared.Train.Series.Len())
	assert.Equal(t, 6, prepared.Valid.Series.Len())
	assert.Equal(t, 6, prepared.Test.Series.Len())
	assert.Equal(t, []int{2, 2, 2, 2, 2, 2}, prepared.Test.Series.Buildings)

	assert.Equal(t, []float64{1, 1, 1, 1, 1, 0, 0, 0, 0, 0}, prepared.Train.Status.Channel(0, 0))
	assert.Equal(t, []float64{1, 1, 1, 0, 0, 0, 0, 0, 0, 0}, prepared.Train.Status.Channel(0, 1))
	for i := 0; i < prepared.Test.Series.Len(); i++ {
		assert.Equal(t, make([]float64, 10), prepared.Test.Series.Values.Channel(i, 2))
	}

	// The train split is one track of 180 samples, cropped at random.
	for i := 0; i < 50; i++ {
		sample, err := prepared.Train.Dataset.Get(0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, sample.Origin, 2)
		assert.Less(t, sample.Origin, 180-6-2)
	}
	// Valid holds building 1 windows 18..19 and building 2 windows 0..3.
	assert.Equal(t, 2+6, prepared.Valid.Dataset.Len())
	assert.Equal(t, 9, prepared.Test.Dataset.Len())

	assert.Equal(t, 3.0, testutil.ToFloat64(collectors.Sections(1)))
	assert.Equal(t, 2.0, testutil.ToFloat64(collectors.Sections(2)))
	assert.Equal(t, 1.0, testutil.ToFloat64(collectors.Intervals(1)))
	assert.Equal(t, 20.0, testutil.ToFloat64(collectors.Windows(1)))
	assert.Equal(t, 10.0, testutil.ToFloat64(collectors.Windows(2)))

	assert.Equal(t, 2, logs.FilterMessage("loaded building").Len())
	assert.Equal(t, 3, logs.FilterMessage("built dataset").Len())
	for _, entry := range logs.All() {
		assert.Equal(t, prepared.RunID, entry.ContextMap()["run"])
	}

	arrays, err := preparer.Arrays(prepared.Test)
	require.NoError(t, err)
	assert.Equal(t, [3]int{6, 10, 1}, arrays.Input.Shape())
	assert.Equal(t, [3]int{6, 6, 2}, arrays.Target.Shape())
	assert.Equal(t, [3]int{6, 6, 2}, arrays.Status.Shape())
	// Fridge power 80 at the first sample inside the border, scaled by 100.
	assert.Equal(t, 0.8, arrays.Target.At(0, 0, 0))
}

func TestPrepare_StatusAcrossWindowEdge(t *testing.T) {
	cfg := loadConfig(t, `
buildings: [1]
appliances: [kettle]
threshold_method: fixed
thresholds: [1000]
min_on_duration: [5]
train_size: 1
valid_size: 0
`)
	store, err := storage.NewInMemoryStore(cfg.StoreConfig())
	require.NoError(t, err)
	site := storage.Meter{Building: 1, Instance: 1, Label: "mains", Site: true, SamplePeriod: time.Second}
	kettle := storage.Meter{Building: 1, Instance: 2, Label: "kettle", SamplePeriod: time.Second}
	var siteSamples, kettleSamples []storage.Sample
	for s := 0; s < 40; s++ {
		at := epoch1.Add(time.Duration(s) * time.Second)
		power := 0.0
		if s >= 7 && s <= 12 {
			power = 2000
		}
		siteSamples = append(siteSamples, storage.Sample{Timestamp: at, Value: 100 + power})
		kettleSamples = append(kettleSamples, storage.Sample{Timestamp: at, Value: power})
	}
	require.NoError(t, store.Put(site, siteSamples))
	require.NoError(t, store.Put(kettle, kettleSamples))

	preparer, err := NewPreparer(store, cfg, core.UKDALEVocabulary(), nil, nil)
	require.NoError(t, err)
	prepared, err := preparer.Prepare(context.Background())
	require.NoError(t, err)

	// The four windows are back to back and form one track.
	require.Equal(t, 4, prepared.Train.Series.Len())
	from, to := prepared.Train.Dataset.OriginRange(0)
	assert.Equal(t, 2, from)
	assert.Equal(t, 32, to)

	// A six sample activation split 3+3 by the window edge survives a
	// minimum on duration of 5.
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0, 0, 1, 1, 1}, prepared.Train.Status.Channel(0, 0))
	assert.Equal(t, []float64{1, 1, 1, 0, 0, 0, 0, 0, 0, 0}, prepared.Train.Status.Channel(1, 0))
	assert.Equal(t, make([]float64, 10), prepared.Train.Status.Channel(2, 0))
	assert.Equal(t, 0, prepared.Test.Series.Len())
}

func TestLoadBuilding_DateRange(t *testing.T) {
	cfg := loadConfig(t, `
dates:
  - building: 1
    start: "2013-04-01T01:00:05+01:00"
    end: "2013-04-01T00:01:40Z"
`)
	store := newFixture(t, cfg)
	preparer, err := NewPreparer(store, cfg, core.UKDALEVocabulary(), zap.NewNop(), nil)
	require.NoError(t, err)

	series, err := preparer.LoadBuilding(1)
	require.NoError(t, err)
	// [5s, 100s) holds 95 samples, so 9 windows.
	assert.Equal(t, 9, series.Len())
	assert.Equal(t, epoch1.Add(5*time.Second), series.Starts[0])
	assert.Equal(t, 100.0, series.Values.At(0, 0, 0))
}

func TestPreparer_Errors(t *testing.T) {
	cfg := loadConfig(t, "threshold_method: fixed\nthresholds: [1, 2, 3]\n")
	_, err := NewPreparer(nil, cfg, nil, nil, nil)
	assert.True(t, errors.Is(err, errs.ErrConfig))

	cfg = loadConfig(t, "buildings: [1, 3]\n")
	store := newFixture(t, cfg)
	preparer, err := NewPreparer(store, cfg, core.UKDALEVocabulary(), nil, nil)
	require.NoError(t, err)
	_, err = preparer.Load(context.Background())
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	// A building without a site meter cannot be loaded.
	fridge := storage.Meter{Building: 4, Instance: 2, Label: "fridge", SamplePeriod: time.Second}
	require.NoError(t, store.Put(fridge, []storage.Sample{{Timestamp: epoch1, Value: 1}}))
	_, err = preparer.LoadBuilding(4)
	assert.True(t, errors.Is(err, errs.ErrIntegrity))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = preparer.Prepare(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}
