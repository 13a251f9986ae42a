package storage

import (
	"database/sql"
	"fmt"
	"math"
	_ "modernc.org/sqlite"
	"nilmprep/errs"
	"time"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS meters (
	building  INTEGER NOT NULL,
	instance  INTEGER NOT NULL,
	label     TEXT    NOT NULL,
	site      INTEGER NOT NULL,
	period_ns INTEGER NOT NULL,
	PRIMARY KEY (building, instance)
);
CREATE TABLE IF NOT EXISTS readings (
	building INTEGER NOT NULL,
	instance INTEGER NOT NULL,
	ts       INTEGER NOT NULL,
	value    REAL    NOT NULL,
	PRIMARY KEY (building, instance, ts)
);`

// SQLiteStore keeps meters and raw readings in two sqlite tables. Good
// sections are derived from the readings on every query.
type SQLiteStore struct {
	db     *sql.DB
	config StoreConfig
}

// OpenSQLiteStore opens (and if needed creates) the database at path.
// ":memory:" gives a private in-memory database.
func OpenSQLiteStore(path string, config StoreConfig) (*SQLiteStore, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Every connection to ":memory:" is a distinct database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, config: config}, nil
}

func (store *SQLiteStore) Close() error {
	return store.db.Close()
}

func (store *SQLiteStore) Put(meter Meter, samples []Sample) error {
	if meter.SamplePeriod <= 0 {
		return errs.Config("sample_period", "meter %s has period %s", meter, meter.SamplePeriod)
	}
	tx, err := store.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	site := 0
	if meter.Site {
		site = 1
	}
	_, err = tx.Exec(
		`INSERT OR REPLACE INTO meters (building, instance, label, site, period_ns) VALUES (?, ?, ?, ?, ?)`,
		meter.Building, meter.Instance, meter.Label, site, int64(meter.SamplePeriod))
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO readings (building, instance, ts, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, sample := range PrepareSamples(samples, store.config) {
		_, err := stmt.Exec(meter.Building, meter.Instance, sample.Timestamp.UnixNano(), sample.Value)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (store *SQLiteStore) Meters(building int) ([]Meter, error) {
	rows, err := store.db.Query(
		`SELECT instance, label, site, period_ns FROM meters WHERE building = ? ORDER BY instance`,
		building)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meters := make([]Meter, 0)
	for rows.Next() {
		var site int
		var period int64
		meter := Meter{Building: building}
		if err := rows.Scan(&meter.Instance, &meter.Label, &site, &period); err != nil {
			return nil, err
		}
		meter.Site = site == 1
		meter.SamplePeriod = time.Duration(period)
		meters = append(meters, meter)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(meters) == 0 {
		return nil, fmt.Errorf("building %d: %w", building, errs.ErrNotFound)
	}
	return meters, nil
}

func (store *SQLiteStore) readings(meter Meter, from, to int64) ([]Sample, error) {
	rows, err := store.db.Query(
		`SELECT ts, value FROM readings
		 WHERE building = ? AND instance = ? AND ts >= ? AND ts < ?
		 ORDER BY ts`,
		meter.Building, meter.Instance, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := make([]Sample, 0)
	for rows.Next() {
		var ts int64
		var value float64
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, err
		}
		samples = append(samples, Sample{Timestamp: time.Unix(0, ts).UTC(), Value: value})
	}
	return samples, rows.Err()
}

func (store *SQLiteStore) GoodSections(meter Meter) ([]Section, error) {
	var count int
	err := store.db.QueryRow(
		`SELECT COUNT(*) FROM meters WHERE building = ? AND instance = ?`,
		meter.Building, meter.Instance).Scan(&count)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("meter %s: %w", meter, errs.ErrNotFound)
	}
	samples, err := store.readings(meter, math.MinInt64, math.MaxInt64)
	if err != nil {
		return nil, err
	}
	return FindSections(samples, meter.SamplePeriod, store.config.MaxGap), nil
}

func (store *SQLiteStore) ReadPower(
	meter Meter,
	start time.Time,
	end time.Time,
	period time.Duration) ([]Sample, error) {
	from := start.Add(-store.config.FillLimit).UnixNano()
	samples, err := store.readings(meter, from, end.UnixNano())
	if err != nil {
		return nil, err
	}
	return Resample(samples, start, end, period, store.config.FillLimit), nil
}
