package core

import (
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nilmprep/errs"
	"testing"
	"time"
)

var epoch = time.Date(2012, 6, 1, 0, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return epoch.Add(time.Duration(seconds) * time.Second)
}

func grid(from, n int) []time.Time {
	timestamps := make([]time.Time, n)
	for i := range timestamps {
		timestamps[i] = at(from + i)
	}
	return timestamps
}

func TestGroupColumns(t *testing.T) {
	table := Table{
		Timestamps: grid(0, 3),
		Columns:    []string{"kettle", AggregateName, "kettle"},
		Values:     [][]float64{{1, 2, 3}, {10, 10, 10}, {4, 5, 6}},
	}
	grouped := GroupColumns(table)
	assert.Equal(t, []string{AggregateName, "kettle"}, grouped.Columns)
	assert.Equal(t, [][]float64{{10, 10, 10}, {5, 7, 9}}, grouped.Values)
	// The input is left alone.
	assert.Equal(t, []float64{1, 2, 3}, table.Values[0])
}

func TestApplyColumnContract_MissingApplianceIsZero(t *testing.T) {
	table := Table{
		Timestamps: grid(0, 2),
		Columns:    []string{"a", AggregateName},
		Values:     [][]float64{{3, 4}, {9, 9}},
	}
	out, err := ApplyColumnContract(table, []string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{AggregateName, "a", "b"}, out.Columns)
	assert.Equal(t, [][]float64{{9, 9}, {3, 4}, {0, 0}}, out.Values)
}

func TestApplyColumnContract_DropsUnrequested(t *testing.T) {
	table := Table{
		Timestamps: grid(0, 1),
		Columns:    []string{AggregateName, "fridge", "toaster"},
		Values:     [][]float64{{9}, {1}, {2}},
	}
	out, err := ApplyColumnContract(table, []string{"fridge"})
	require.NoError(t, err)
	assert.Equal(t, []string{AggregateName, "fridge"}, out.Columns)

	out, err = ApplyColumnContract(table, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{AggregateName, "fridge", "toaster"}, out.Columns)
}

func TestApplyColumnContract_NoAggregate(t *testing.T) {
	table := Table{Timestamps: grid(0, 1), Columns: []string{"fridge"}, Values: [][]float64{{1}}}
	_, err := ApplyColumnContract(table, nil)
	assert.True(t, errors.Is(err, errs.ErrIntegrity))
}

func TestEnsureContinuous(t *testing.T) {
	assert.NoError(t, EnsureContinuous(grid(0, 6), time.Second, 3))

	// Second series jumps over a gap: 3, 4, 9.
	timestamps := append(grid(0, 5), at(9))
	err := EnsureContinuous(timestamps, time.Second, 3)
	var integrity *errs.IntegrityError
	require.True(t, errors.As(err, &integrity))
	assert.Equal(t, int64(2000), integrity.Expected)
	assert.Equal(t, int64(6000), integrity.Actual)
	assert.Contains(t, err.Error(), "series 1")

	err = EnsureContinuous(grid(0, 5), time.Second, 3)
	assert.True(t, errors.Is(err, errs.ErrIntegrity))
}

func TestVocabulary(t *testing.T) {
	vocabulary := UKDALEVocabulary()
	assert.Equal(t, "fridge", vocabulary.Canonical("Fridge Freezer"))
	assert.Equal(t, "washingmachine", vocabulary.Canonical("washer_dryer"))
	assert.Equal(t, "kettle", vocabulary.Canonical("Kettle"))

	var empty Vocabulary
	assert.Equal(t, "fridgefreezer", empty.Canonical("fridge freezer"))

	// Copies are independent.
	vocabulary["kettle"] = "hob"
	assert.Equal(t, "kettle", UKDALEVocabulary().Canonical("kettle"))
}
