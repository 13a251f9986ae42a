package storage

import (
	"encoding/binary"
	"fmt"
	"nilmprep/errs"
	"sort"
	"sync"
	"time"
)

// Meter identifies one recording channel of a building. Site meters record
// the whole-house aggregate.
type Meter struct {
	Building     int
	Instance     int
	Label        string
	Site         bool
	SamplePeriod time.Duration
}

func (m Meter) String() string {
	return fmt.Sprintf("building%d/meter%d", m.Building, m.Instance)
}

// Section is a span of continuous recording. Readings cover [Start, End).
type Section struct {
	Start time.Time
	End   time.Time
}

func (s Section) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

type Sample struct {
	Timestamp time.Time
	Value     float64
}

// MeterStore is the query contract against a household power dataset.
// Sections and samples are returned in UTC and in chronological order; the
// sections of a single meter never overlap.
type MeterStore interface {
	Meters(building int) ([]Meter, error)
	GoodSections(meter Meter) ([]Section, error)
	ReadPower(meter Meter, start, end time.Time, period time.Duration) ([]Sample, error)
	Close() error
}

// WritableStore is a MeterStore that can be loaded with raw readings.
type WritableStore interface {
	MeterStore
	Put(meter Meter, samples []Sample) error
}

type StoreConfig struct {
	// MaxGap is the largest spacing between raw readings tolerated inside a
	// good section.
	MaxGap time.Duration
	// FillLimit bounds how long the last raw reading is carried forward
	// into empty resample buckets.
	FillLimit time.Duration
	// Cutoff clips readings above it. Zero disables clipping.
	Cutoff float64
	// Floor zeroes readings below it. Zero disables it.
	Floor float64
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MaxGap:    2 * time.Minute,
		FillLimit: 5 * time.Minute,
	}
}

func (config StoreConfig) Validate() error {
	if config.MaxGap <= 0 {
		return errs.Config("max_gap", "must be positive, got %s", config.MaxGap)
	}
	if config.FillLimit < config.MaxGap {
		return errs.Config("fill_limit",
			"must not be shorter than max_gap (%s < %s)", config.FillLimit, config.MaxGap)
	}
	if config.Cutoff < 0 || config.Floor < 0 {
		return errs.Config("cutoff", "cutoff and floor must not be negative")
	}
	if config.Cutoff > 0 && config.Floor > config.Cutoff {
		return errs.Config("floor", "%g is above cutoff %g", config.Floor, config.Cutoff)
	}
	return nil
}

const (
	MeterKind   byte = 'm'
	SectionKind byte = 'g'
	ReadingKind byte = 'r'
)

// <1 byte kind> <8 bytes building> <8 bytes instance>
// Big endian so that badger iterates meters and readings in order.
func GetMeterKey(kind byte, building, instance int) []byte {
	buf := make([]byte, 17)
	buf[0] = kind
	binary.BigEndian.PutUint64(buf[1:9], uint64(building))
	binary.BigEndian.PutUint64(buf[9:17], uint64(instance))
	return buf
}

func GetBuildingPrefix(kind byte, building int) []byte {
	buf := make([]byte, 9)
	buf[0] = kind
	binary.BigEndian.PutUint64(buf[1:9], uint64(building))
	return buf
}

// <meter key> <8 bytes unix nanos>. Only timestamps after the epoch keep
// their order.
func GetReadingKey(building, instance int, timestamp time.Time) []byte {
	buf := make([]byte, 25)
	copy(buf, GetMeterKey(ReadingKind, building, instance))
	binary.BigEndian.PutUint64(buf[17:], uint64(timestamp.UnixNano()))
	return buf
}

func GetTimestampFromKey(buf []byte) time.Time {
	return time.Unix(0, int64(binary.BigEndian.Uint64(buf[17:25]))).UTC()
}

type meterKey struct {
	building int
	instance int
}

type meterRecord struct {
	meter    Meter
	samples  []Sample
	sections []Section
}

// InMemoryStore keeps raw readings in memory. Good sections are computed
// whenever a meter's readings are put.
type InMemoryStore struct {
	config StoreConfig
	meters map[meterKey]*meterRecord
	mu     sync.RWMutex
}

func NewInMemoryStore(config StoreConfig) (*InMemoryStore, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &InMemoryStore{
		config: config,
		meters: make(map[meterKey]*meterRecord),
	}, nil
}

// Put stores the meter and adds the readings to any it already holds.
func (store *InMemoryStore) Put(meter Meter, samples []Sample) error {
	if meter.SamplePeriod <= 0 {
		return errs.Config("sample_period", "meter %s has period %s", meter, meter.SamplePeriod)
	}
	store.mu.Lock()
	defer store.mu.Unlock()

	key := meterKey{meter.Building, meter.Instance}
	record, ok := store.meters[key]
	if !ok {
		record = &meterRecord{}
		store.meters[key] = record
	}
	record.meter = meter
	record.samples = mergeSamples(record.samples, PrepareSamples(samples, store.config))
	record.sections = FindSections(record.samples, meter.SamplePeriod, store.config.MaxGap)
	return nil
}

func (store *InMemoryStore) record(meter Meter) (*meterRecord, error) {
	record, ok := store.meters[meterKey{meter.Building, meter.Instance}]
	if !ok {
		return nil, fmt.Errorf("meter %s: %w", meter, errs.ErrNotFound)
	}
	return record, nil
}

func (store *InMemoryStore) Meters(building int) ([]Meter, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	meters := make([]Meter, 0)
	for key, record := range store.meters {
		if key.building == building {
			meters = append(meters, record.meter)
		}
	}
	if len(meters) == 0 {
		return nil, fmt.Errorf("building %d: %w", building, errs.ErrNotFound)
	}
	sort.Slice(meters, func(i, j int) bool {
		return meters[i].Instance < meters[j].Instance
	})
	return meters, nil
}

func (store *InMemoryStore) GoodSections(meter Meter) ([]Section, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	record, err := store.record(meter)
	if err != nil {
		return nil, err
	}
	sections := make([]Section, len(record.sections))
	copy(sections, record.sections)
	return sections, nil
}

func (store *InMemoryStore) ReadPower(
	meter Meter,
	start time.Time,
	end time.Time,
	period time.Duration) ([]Sample, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	record, err := store.record(meter)
	if err != nil {
		return nil, err
	}
	return Resample(record.samples, start, end, period, store.config.FillLimit), nil
}

func (store *InMemoryStore) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.meters = nil
	return nil
}
