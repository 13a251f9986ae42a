package storage

import (
	"fmt"
	"github.com/dgraph-io/ristretto"
	"time"
)

// CachedStore puts ristretto caches in front of a MeterStore. The caches
// are best effort: a miss always falls through to the wrapped store.
type CachedStore struct {
	store         MeterStore
	sectionsCache *ristretto.Cache
	readingsCache *ristretto.Cache
}

// NewCachedStore caches up to maxCost bytes of resampled readings.
func NewCachedStore(store MeterStore, maxCost int64) (*CachedStore, error) {
	sectionsCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	readingsCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedStore{
		store:         store,
		sectionsCache: sectionsCache,
		readingsCache: readingsCache,
	}, nil
}

func readingsKey(meter Meter, start, end time.Time, period time.Duration) string {
	return fmt.Sprintf("%s|%d|%d|%d", meter, start.UnixNano(), end.UnixNano(), period)
}

func (store *CachedStore) Meters(building int) ([]Meter, error) {
	return store.store.Meters(building)
}

func (store *CachedStore) GoodSections(meter Meter) ([]Section, error) {
	key := meter.String()
	if cached, found := store.sectionsCache.Get(key); found {
		sections := cached.([]Section)
		return append([]Section(nil), sections...), nil
	}
	sections, err := store.store.GoodSections(meter)
	if err != nil {
		return nil, err
	}
	store.sectionsCache.Set(key, append([]Section(nil), sections...), int64(48*len(sections)+1))
	return sections, nil
}

func (store *CachedStore) ReadPower(
	meter Meter,
	start time.Time,
	end time.Time,
	period time.Duration) ([]Sample, error) {
	key := readingsKey(meter, start, end, period)
	if cached, found := store.readingsCache.Get(key); found {
		samples := cached.([]Sample)
		return append([]Sample(nil), samples...), nil
	}
	samples, err := store.store.ReadPower(meter, start, end, period)
	if err != nil {
		return nil, err
	}
	store.readingsCache.Set(key, append([]Sample(nil), samples...), int64(32*len(samples)+1))
	return samples, nil
}

func (store *CachedStore) Close() error {
	store.sectionsCache.Close()
	store.readingsCache.Close()
	return store.store.Close()
}
