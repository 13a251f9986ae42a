package core

import (
	"fmt"
	"nilmprep/errs"
	"sort"
	"strings"
	"time"
)

// Table holds time-aligned columns. Values[c][r] is column c at
// Timestamps[r]. Tables are never modified once built; every function
// here returns a new one.
type Table struct {
	Timestamps []time.Time
	Columns    []string
	Values     [][]float64
}

// GroupColumns sums the columns that share a name into one column.
// The result's columns are in lexicographic order.
func GroupColumns(table Table) Table {
	sums := make(map[string][]float64)
	for c, name := range table.Columns {
		sum, ok := sums[name]
		if !ok {
			sum = make([]float64, len(table.Timestamps))
			sums[name] = sum
		}
		for r, value := range table.Values[c] {
			sum[r] += value
		}
	}
	names := make([]string, 0, len(sums))
	for name := range sums {
		names = append(names, name)
	}
	sort.Strings(names)

	grouped := Table{
		Timestamps: append([]time.Time(nil), table.Timestamps...),
		Columns:    names,
		Values:     make([][]float64, len(names)),
	}
	for c, name := range names {
		grouped.Values[c] = sums[name]
	}
	return grouped
}

// ContractColumns returns the column layout for a set of requested
// appliances: the aggregate first, then the appliances sorted and
// deduplicated. A nil request keeps every appliance in present.
func ContractColumns(present []string, appliances []string) []string {
	if appliances == nil {
		appliances = present
	}
	seen := make(map[string]bool)
	names := make([]string, 0, len(appliances))
	for _, name := range appliances {
		if name == AggregateName || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return append([]string{AggregateName}, names...)
}

// ApplyColumnContract reorders a grouped table to the aggregate-first
// layout. Requested appliances missing from the table become all-zero
// columns and appliances that were not requested are dropped.
func ApplyColumnContract(table Table, appliances []string) (Table, error) {
	index := make(map[string]int, len(table.Columns))
	for c, name := range table.Columns {
		index[name] = c
	}
	if _, ok := index[AggregateName]; !ok {
		return Table{}, &errs.IntegrityError{
			Meter:  AggregateName,
			Reason: "no aggregate column among [" + strings.Join(table.Columns, ", ") + "]",
		}
	}

	columns := ContractColumns(table.Columns, appliances)
	out := Table{
		Timestamps: append([]time.Time(nil), table.Timestamps...),
		Columns:    columns,
		Values:     make([][]float64, len(columns)),
	}
	for c, name := range columns {
		values := make([]float64, len(table.Timestamps))
		if src, ok := index[name]; ok {
			copy(values, table.Values[src])
		}
		out.Values[c] = values
	}
	return out, nil
}

// EnsureContinuous splits timestamps into consecutive series of seriesLen
// and fails on the first series whose first and last timestamps are not
// exactly period*(seriesLen-1) apart.
func EnsureContinuous(timestamps []time.Time, period time.Duration, seriesLen int) error {
	if seriesLen <= 0 {
		return errs.Config("series_len", "must be positive, got %d", seriesLen)
	}
	if len(timestamps)%seriesLen != 0 {
		return &errs.IntegrityError{
			Reason:   "samples do not fill a whole number of series",
			Expected: int64(seriesLen * (len(timestamps)/seriesLen + 1)),
			Actual:   int64(len(timestamps)),
		}
	}
	expected := period * time.Duration(seriesLen-1)
	for i := 0; i < len(timestamps); i += seriesLen {
		first, last := timestamps[i], timestamps[i+seriesLen-1]
		if delta := last.Sub(first); delta != expected {
			return &errs.IntegrityError{
				Start:    first.UTC(),
				End:      last.UTC(),
				Reason:   fmt.Sprintf("series %d is not continuous (milliseconds from first to last sample)", i/seriesLen),
				Expected: expected.Milliseconds(),
				Actual:   delta.Milliseconds(),
			}
		}
	}
	return nil
}
