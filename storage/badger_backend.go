package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/dgraph-io/badger/v2"
	"go.uber.org/zap"
	"math"
	"nilmprep/errs"
	"time"
)

// badgerLogger routes badger's own logging through zap.
type badgerLogger struct {
	sugar *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// OpenBadgerDB opens a badger database at path, or an in-memory one when
// path is empty.
func OpenBadgerDB(path string, logger *zap.Logger) (*badger.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	option := badger.DefaultOptions(path).
		WithLogger(badgerLogger{sugar: logger.Named("badger").Sugar()})
	if path == "" {
		option = option.WithInMemory(true)
	}
	return badger.Open(option)
}

// BadgerStore persists raw readings in badger. Meter records and their good
// sections are capnp encoded and rewritten on every Put.
type BadgerStore struct {
	db     *badger.DB
	config StoreConfig
}

func NewBadgerStore(db *badger.DB, config StoreConfig) (*BadgerStore, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &BadgerStore{db: db, config: config}, nil
}

func (store *BadgerStore) Close() error {
	return store.db.Close()
}

func (store *BadgerStore) txnGet(key []byte) ([]byte, error) {
	var buf []byte
	err := store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		buf, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errs.ErrNotFound
	}
	return buf, err
}

func valueToBytes(value float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(value))
	return buf
}

func bytesToValue(buf []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(buf))
}

// Put stores the meter record, adds the readings and recomputes the
// meter's good sections over everything stored for it.
func (store *BadgerStore) Put(meter Meter, samples []Sample) error {
	if meter.SamplePeriod <= 0 {
		return errs.Config("sample_period", "meter %s has period %s", meter, meter.SamplePeriod)
	}
	prepared := PrepareSamples(samples, store.config)

	batch := store.db.NewWriteBatch()
	for _, sample := range prepared {
		key := GetReadingKey(meter.Building, meter.Instance, sample.Timestamp)
		if err := batch.Set(key, valueToBytes(sample.Value)); err != nil {
			batch.Cancel()
			return err
		}
	}
	if err := batch.Flush(); err != nil {
		return err
	}

	all, err := store.scan(meter, time.Unix(0, 0), time.Unix(0, math.MaxInt64))
	if err != nil {
		return err
	}
	sections := FindSections(all, meter.SamplePeriod, store.config.MaxGap)

	meterBuf, err := MeterToBytes(meter)
	if err != nil {
		return err
	}
	sectionsBuf, err := SectionsToBytes(sections)
	if err != nil {
		return err
	}
	return store.db.Update(func(txn *badger.Txn) error {
		err := txn.Set(GetMeterKey(MeterKind, meter.Building, meter.Instance), meterBuf)
		if err != nil {
			return err
		}
		return txn.Set(GetMeterKey(SectionKind, meter.Building, meter.Instance), sectionsBuf)
	})
}

// scan returns the stored readings of meter with timestamps in [from, to).
func (store *BadgerStore) scan(meter Meter, from, to time.Time) ([]Sample, error) {
	prefix := GetMeterKey(ReadingKind, meter.Building, meter.Instance)
	if from.UnixNano() < 0 {
		from = time.Unix(0, 0)
	}
	samples := make([]Sample, 0)
	err := store.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
		defer iter.Close()

		for iter.Seek(GetReadingKey(meter.Building, meter.Instance, from)); iter.ValidForPrefix(prefix); iter.Next() {
			item := iter.Item()
			timestamp := GetTimestampFromKey(item.Key())
			if !timestamp.Before(to) {
				break
			}
			err := item.Value(func(val []byte) error {
				samples = append(samples, Sample{Timestamp: timestamp, Value: bytesToValue(val)})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return samples, err
}

func (store *BadgerStore) Meters(building int) ([]Meter, error) {
	prefix := GetBuildingPrefix(MeterKind, building)
	meters := make([]Meter, 0)
	err := store.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
		defer iter.Close()

		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			buf, err := iter.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			meter, err := BytesToMeter(buf)
			if err != nil {
				return err
			}
			meters = append(meters, meter)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(meters) == 0 {
		return nil, fmt.Errorf("building %d: %w", building, errs.ErrNotFound)
	}
	return meters, nil
}

func (store *BadgerStore) GoodSections(meter Meter) ([]Section, error) {
	buf, err := store.txnGet(GetMeterKey(SectionKind, meter.Building, meter.Instance))
	if err != nil {
		return nil, fmt.Errorf("sections of meter %s: %w", meter, err)
	}
	return BytesToSections(buf)
}

func (store *BadgerStore) ReadPower(
	meter Meter,
	start time.Time,
	end time.Time,
	period time.Duration) ([]Sample, error) {
	// Readings up to FillLimit before start can still seed the first buckets.
	samples, err := store.scan(meter, start.Add(-store.config.FillLimit), end)
	if err != nil {
		return nil, err
	}
	return Resample(samples, start, end, period, store.config.FillLimit), nil
}
