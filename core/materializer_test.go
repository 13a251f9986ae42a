package core

import (
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nilmprep/errs"
	"nilmprep/storage"
	"nilmprep/window"
	"testing"
	"time"
)

var (
	site    = storage.Meter{Building: 2, Instance: 1, Label: "mains", Site: true, SamplePeriod: time.Second}
	fridge  = storage.Meter{Building: 2, Instance: 2, Label: "Fridge Freezer", SamplePeriod: time.Second}
	kettleA = storage.Meter{Building: 2, Instance: 3, Label: "kettle", SamplePeriod: time.Second}
	kettleB = storage.Meter{Building: 2, Instance: 4, Label: "Kettle", SamplePeriod: time.Second}
)

func constant(from, to int, value float64) []storage.Sample {
	samples := make([]storage.Sample, 0)
	for s := from; s < to; s++ {
		samples = append(samples, storage.Sample{Timestamp: at(s), Value: value})
	}
	return samples
}

func newStore(t *testing.T) *storage.InMemoryStore {
	store, err := storage.NewInMemoryStore(storage.StoreConfig{MaxGap: time.Second, FillLimit: time.Second})
	require.NoError(t, err)
	require.NoError(t, store.Put(site, constant(0, 40, 100.7)))
	require.NoError(t, store.Put(fridge, constant(0, 40, 20)))
	require.NoError(t, store.Put(kettleA, constant(0, 40, 1)))
	require.NoError(t, store.Put(kettleB, constant(0, 40, 2)))
	return store
}

func newConfig(appliances []string) MaterializerConfig {
	return MaterializerConfig{
		Window:     window.NewConfig(time.Second, 10),
		Appliances: appliances,
		Vocabulary: UKDALEVocabulary(),
	}
}

func TestMaterializer_ColumnContract(t *testing.T) {
	store := newStore(t)
	materializer, err := NewMaterializer(store, newConfig([]string{"microwave", "fridge"}))
	require.NoError(t, err)

	meters, err := materializer.SelectMeters([]storage.Meter{site, fridge, kettleA, kettleB})
	require.NoError(t, err)
	assert.Equal(t, []storage.Meter{site, fridge}, meters)

	intervals := []window.Interval{{Start: at(0), End: at(20), Samples: 20, Windows: 2}}
	series, err := materializer.Materialize(meters, intervals)
	require.NoError(t, err)

	assert.Equal(t, []string{AggregateName, "fridge", "microwave"}, series.Columns)
	assert.Equal(t, [3]int{2, 10, 3}, series.Values.Shape())
	assert.Equal(t, []time.Time{at(0), at(10)}, series.Starts)
	for i := 0; i < 2; i++ {
		assert.Equal(t, 100.7, series.Values.At(i, 9, 0))
		assert.Equal(t, 20.0, series.Values.At(i, 0, 1))
		for j := 0; j < 10; j++ {
			assert.Equal(t, 0.0, series.Values.At(i, j, 2))
		}
	}
}

func TestMaterializer_SumsChannelsAndTruncates(t *testing.T) {
	store := newStore(t)
	config := newConfig(nil)
	config.ToInt = true
	config.Window.Step = 5
	materializer, err := NewMaterializer(store, config)
	require.NoError(t, err)

	meters := []storage.Meter{kettleA, site, kettleB}
	intervals := []window.Interval{{Start: at(5), End: at(25), Samples: 20, Windows: 3}}
	series, err := materializer.Materialize(meters, intervals)
	require.NoError(t, err)

	assert.Equal(t, []string{AggregateName, "kettle"}, series.Columns)
	assert.Equal(t, 3, series.Len())
	assert.Equal(t, []time.Time{at(5), at(10), at(15)}, series.Starts)
	assert.Equal(t, 100.0, series.Values.At(2, 4, 0))
	assert.Equal(t, 3.0, series.Values.At(1, 0, 1))
}

func TestMaterializer_GapIsFatal(t *testing.T) {
	store, err := storage.NewInMemoryStore(storage.StoreConfig{MaxGap: time.Second, FillLimit: time.Second})
	require.NoError(t, err)
	require.NoError(t, store.Put(site, append(constant(0, 4, 1), constant(8, 20, 1)...)))

	materializer, err := NewMaterializer(store, newConfig(nil))
	require.NoError(t, err)
	// A deliberately wrong interval that spans the gap between 4 and 8.
	intervals := []window.Interval{{Start: at(0), End: at(20), Samples: 20, Windows: 2}}
	_, err = materializer.Materialize([]storage.Meter{site}, intervals)
	var integrity *errs.IntegrityError
	require.True(t, errors.As(err, &integrity))
	assert.Equal(t, 2, integrity.Building)
	// The first window runs 0..4 then jumps to 8..12.
	assert.Equal(t, int64(9000), integrity.Expected)
	assert.Equal(t, int64(12000), integrity.Actual)
}

func TestMaterializer_EmptyAndInvalid(t *testing.T) {
	store := newStore(t)
	materializer, err := NewMaterializer(store, newConfig([]string{"fridge"}))
	require.NoError(t, err)

	series, err := materializer.Materialize([]storage.Meter{site, fridge}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, series.Len())
	assert.Equal(t, []string{AggregateName, "fridge"}, series.Columns)

	_, err = materializer.Materialize([]storage.Meter{fridge}, nil)
	assert.True(t, errors.Is(err, errs.ErrIntegrity))

	_, err = materializer.SelectMeters([]storage.Meter{fridge, kettleA})
	assert.True(t, errors.Is(err, errs.ErrIntegrity))

	_, err = materializer.Materialize(nil, nil)
	assert.True(t, errors.Is(err, errs.ErrConfig))

	_, err = NewMaterializer(store, newConfig([]string{}))
	assert.True(t, errors.Is(err, errs.ErrConfig))
}

func TestFeatureTargetSplitAndNormalize(t *testing.T) {
	series := &Series{
		Values:  &Tensor{N: 1, T: 2, C: 3, Data: []float64{10, 1, 2, 30, 3, 4}},
		Columns: []string{AggregateName, "a", "b"},
		Starts:  []time.Time{at(0)},
	}
	x, y, appliances := FeatureTargetSplit(series)
	assert.Equal(t, []float64{10, 30}, x.Data)
	assert.Equal(t, []float64{1, 2, 3, 4}, y.Data)
	assert.Equal(t, []string{"a", "b"}, appliances)

	normalized, err := Normalize(x, []float64{10}, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 1}, normalized.Data)
	assert.Equal(t, []float64{10, 30}, x.Data)

	_, err = Normalize(y, []float64{1, 2, 3}, false)
	assert.True(t, errors.Is(err, errs.ErrConfig))

	trimmed, err := TrimBorder(&Tensor{N: 1, T: 5, C: 1, Data: []float64{1, 2, 3, 4, 5}}, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 4}, trimmed.Data)
	_, err = TrimBorder(trimmed, 2)
	assert.True(t, errors.Is(err, errs.ErrConfig))
}

func TestConcatAndSelect(t *testing.T) {
	a := &Series{Values: &Tensor{N: 1, T: 2, C: 1, Data: []float64{1, 2}}, Columns: []string{AggregateName}, Starts: []time.Time{at(0)}}
	b := &Series{Values: &Tensor{N: 2, T: 2, C: 1, Data: []float64{3, 4, 5, 6}}, Columns: []string{AggregateName}, Starts: []time.Time{at(10), at(20)}}
	all, err := Concat(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, all.Values.Data)
	assert.Equal(t, 3, all.Len())

	picked := all.Select([]int{2, 0})
	assert.Equal(t, []float64{5, 6, 1, 2}, picked.Values.Data)
	assert.Equal(t, []time.Time{at(20), at(0)}, picked.Starts)

	c := &Series{Values: NewTensor(0, 2, 2), Columns: []string{AggregateName, "x"}}
	_, err = Concat(a, c)
	assert.Error(t, err)
}
