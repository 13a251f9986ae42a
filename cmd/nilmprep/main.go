package main

import (
	"context"
	"flag"
	"fmt"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"nilmprep/config"
	"nilmprep/core"
	"nilmprep/metrics"
	"nilmprep/pipeline"
	"nilmprep/storage"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	configPath := flag.String("config", "", "Path of the YAML, JSON or TOML config file")
	debug := flag.Bool("debug", false, "Log at debug level in a human readable format")
	importDir := flag.String("import", "", "UK-DALE house directory to import before preparing")
	importBuilding := flag.Int("import-building", 1, "Building number of the imported house")
	metricsPath := flag.String("metrics", "", "Write the run's metrics in text format to this file")
	flag.Parse()

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, *configPath, *importDir, *importBuilding, *metricsPath); err != nil {
		logger.Error("nilmprep failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, logger *zap.Logger, configPath, importDir string, importBuilding int, metricsPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	var reader storage.MeterStore = store
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}()

	if importDir != "" {
		started := time.Now()
		period := cfg.WindowConfig().SamplePeriod
		channels, err := storage.ImportUKDALE(store, importDir, importBuilding, period)
		if err != nil {
			return fmt.Errorf("import %s: %w", importDir, err)
		}
		for _, channel := range channels {
			logger.Debug("imported channel",
				zap.Stringer("meter", channel.Meter),
				zap.String("label", channel.Meter.Label),
				zap.Uint64("readings", channel.Stats.NumValues),
				zap.Duration("mean_interval", channel.Stats.MeanInterval()),
				zap.Duration("max_interval", channel.Stats.MaxInterval()),
				zap.Float64("mean_power", channel.Stats.ValueStats.GetMean()))
		}
		logger.Info("imported house",
			zap.String("dir", importDir),
			zap.Int("building", importBuilding),
			zap.Int("meters", len(channels)),
			zap.Duration("elapsed", time.Since(started)))
	}

	if cfg.Store.CacheSize > 0 {
		cached, err := storage.NewCachedStore(store, cfg.Store.CacheSize)
		if err != nil {
			return err
		}
		reader = cached
	}

	registry := prometheus.NewRegistry()
	collectors, err := metrics.New(registry)
	if err != nil {
		return err
	}
	preparer, err := pipeline.NewPreparer(reader, cfg, core.UKDALEVocabulary(), logger, collectors)
	if err != nil {
		return err
	}
	prepared, err := preparer.Prepare(ctx)
	if err != nil {
		return err
	}
	logger.Info("prepared",
		zap.String("run", prepared.RunID),
		zap.Strings("appliances", prepared.Appliances),
		zap.Float64s("thresholds", prepared.Thresholds),
		zap.Int("train", prepared.Train.Dataset.Len()),
		zap.Int("valid", prepared.Valid.Dataset.Len()),
		zap.Int("test", prepared.Test.Dataset.Len()))

	if metricsPath != "" {
		if err := prometheus.WriteToTextfile(metricsPath, registry); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func openStore(cfg *config.Config, logger *zap.Logger) (storage.WritableStore, error) {
	storeConfig := cfg.StoreConfig()
	switch cfg.Store.Backend {
	case "badger":
		db, err := storage.OpenBadgerDB(cfg.Store.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open badger %s: %w", cfg.Store.Path, err)
		}
		store, err := storage.NewBadgerStore(db, storeConfig)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	case "sqlite":
		return storage.OpenSQLiteStore(cfg.Store.Path, storeConfig)
	default:
		return storage.NewInMemoryStore(storeConfig)
	}
}
