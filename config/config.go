package config

import (
	"fmt"
	"github.com/spf13/viper"
	"io"
	"nilmprep/core"
	"nilmprep/dataset"
	"nilmprep/errs"
	"nilmprep/status"
	"nilmprep/storage"
	"nilmprep/window"
	"strings"
	"time"
)

// EnvPrefix prefixes the environment variables that override file values,
// e.g. NILMPREP_WINDOW_LENGTH or NILMPREP_STORE_PATH.
const EnvPrefix = "NILMPREP"

type StoreConfig struct {
	// Backend is one of badger, sqlite or memory.
	Backend   string        `mapstructure:"backend"`
	Path      string        `mapstructure:"path"`
	MaxGap    time.Duration `mapstructure:"max_gap"`
	FillLimit time.Duration `mapstructure:"fill_limit"`
	Cutoff    float64       `mapstructure:"cutoff"`
	Floor     float64       `mapstructure:"floor"`
	// CacheSize is the read cache budget in bytes; 0 disables the cache.
	CacheSize int64 `mapstructure:"cache_size"`
}

type DateRange struct {
	Building int    `mapstructure:"building"`
	Start    string `mapstructure:"start"`
	End      string `mapstructure:"end"`
}

type Config struct {
	Store StoreConfig `mapstructure:"store"`

	Buildings  []int       `mapstructure:"buildings"`
	Dates      []DateRange `mapstructure:"dates"`
	Appliances []string    `mapstructure:"appliances"`
	ToInt      bool        `mapstructure:"to_int"`

	// SamplePeriod is in seconds.
	SamplePeriod int `mapstructure:"sample_period"`
	WindowLength int `mapstructure:"window_length"`
	Step         int `mapstructure:"step"`
	MaxWindows   int `mapstructure:"max_windows"`
	Border       int `mapstructure:"border"`

	PowerScale      float64   `mapstructure:"power_scale"`
	ThresholdMethod string    `mapstructure:"threshold_method"`
	Thresholds      []float64 `mapstructure:"thresholds"`
	OnFractions     []float64 `mapstructure:"on_fractions"`
	MinOnDuration   []int     `mapstructure:"min_on_duration"`
	MinOffDuration  []int     `mapstructure:"min_off_duration"`

	TrainSize  float64 `mapstructure:"train_size"`
	ValidSize  float64 `mapstructure:"valid_size"`
	Shuffle    bool    `mapstructure:"shuffle"`
	RandomSeed int64   `mapstructure:"random_seed"`

	BatchSize int `mapstructure:"batch_size"`
	Workers   int `mapstructure:"workers"`

	ranges map[int][2]time.Time
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", "badger")
	v.SetDefault("store.max_gap", "3m")
	v.SetDefault("store.fill_limit", "3m")
	v.SetDefault("store.cache_size", 1<<24)
	v.SetDefault("buildings", []int{1})
	v.SetDefault("sample_period", 60)
	v.SetDefault("window_length", 512)
	v.SetDefault("max_windows", window.NoLimit)
	v.SetDefault("border", 16)
	v.SetDefault("power_scale", 2000.0)
	v.SetDefault("threshold_method", string(status.MidPoint))
	v.SetDefault("train_size", 0.8)
	v.SetDefault("valid_size", 0.1)
	v.SetDefault("shuffle", true)
	v.SetDefault("batch_size", 32)
	v.SetDefault("workers", 4)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path, or only defaults and environment when
// path is empty, and validates the result.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return decode(v)
}

// LoadReader is Load for a config held in memory; format is yaml, json or
// toml.
func LoadReader(r io.Reader, format string) (*Config, error) {
	v := newViper()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("read %s config: %w", format, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	// Registered after reading so a file value under the alias moves to
	// window_length.
	v.RegisterAlias("series_len", "window_length")
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the options that no single stage owns and parses the
// date ranges. Stage configs are validated again by their constructors.
func (config *Config) Validate() error {
	if len(config.Buildings) == 0 {
		return errs.Config("buildings", "no buildings requested")
	}
	if config.Appliances != nil && len(config.Appliances) == 0 {
		return errs.Config("appliances", "no appliances requested")
	}
	if config.Appliances != nil {
		appliances := make([]string, len(config.Appliances))
		for i, name := range config.Appliances {
			appliances[i] = core.Homogenize(name)
		}
		config.Appliances = appliances
	}
	if config.TrainSize < 0 || config.ValidSize < 0 || config.TrainSize+config.ValidSize > 1 {
		return errs.Config("train_size", "train %g and valid %g must be non-negative and add up to at most 1",
			config.TrainSize, config.ValidSize)
	}
	if config.Step == 0 {
		config.Step = config.WindowLength
	}
	if err := config.WindowConfig().Validate(); err != nil {
		return err
	}
	if _, err := status.ParseMethod(config.ThresholdMethod); err != nil {
		return err
	}
	if 2*config.Border >= config.WindowLength {
		return errs.Config("border", "%d leaves no target samples in windows of %d", config.Border, config.WindowLength)
	}
	switch config.Store.Backend {
	case "badger", "sqlite", "memory":
	default:
		return errs.Config("store.backend", "unknown backend %q", config.Store.Backend)
	}

	config.ranges = make(map[int][2]time.Time, len(config.Dates))
	for _, dates := range config.Dates {
		start, err := parseTimestamp("dates.start", dates.Start)
		if err != nil {
			return err
		}
		end, err := parseTimestamp("dates.end", dates.End)
		if err != nil {
			return err
		}
		if !end.After(start) {
			return errs.Config("dates", "building %d: end %s is not after start %s", dates.Building, dates.End, dates.Start)
		}
		config.ranges[dates.Building] = [2]time.Time{start, end}
	}
	return nil
}

// parseTimestamp accepts RFC3339 timestamps only; a timestamp without a zone
// offset is ambiguous and rejected.
func parseTimestamp(field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, errs.Config(field, "%q is not an RFC3339 timestamp with a zone offset", value)
	}
	return t.UTC(), nil
}

// DateRange returns the configured range of a building, if any.
func (config *Config) DateRange(building int) (time.Time, time.Time, bool) {
	dates, ok := config.ranges[building]
	return dates[0], dates[1], ok
}

func (config *Config) WindowConfig() window.Config {
	return window.Config{
		SamplePeriod: time.Duration(config.SamplePeriod) * time.Second,
		WindowLength: config.WindowLength,
		Step:         config.Step,
		MaxWindows:   config.MaxWindows,
	}
}

func (config *Config) MaterializerConfig(vocabulary core.Vocabulary) core.MaterializerConfig {
	return core.MaterializerConfig{
		Window:     config.WindowConfig(),
		Appliances: config.Appliances,
		ToInt:      config.ToInt,
		Vocabulary: vocabulary,
	}
}

// StatusConfig lays the per-appliance options out in the order of
// appliances. Options are listed in the order of the appliances option, or
// in column order when that is unset. Lists of the wrong length are passed
// on as is for status.New to reject.
func (config *Config) StatusConfig(appliances []string) status.Config {
	position := make(map[string]int, len(config.Appliances))
	for i, name := range config.Appliances {
		if _, ok := position[name]; !ok {
			position[name] = i
		}
	}
	order := func(n int) ([]int, bool) {
		if config.Appliances == nil || n != len(config.Appliances) {
			return nil, false
		}
		indices := make([]int, len(appliances))
		for i, name := range appliances {
			p, ok := position[name]
			if !ok {
				return nil, false
			}
			indices[i] = p
		}
		return indices, true
	}
	floats := func(values []float64) []float64 {
		indices, ok := order(len(values))
		if !ok {
			return values
		}
		out := make([]float64, len(indices))
		for i, p := range indices {
			out[i] = values[p]
		}
		return out
	}
	ints := func(values []int) []int {
		indices, ok := order(len(values))
		if !ok {
			return values
		}
		out := make([]int, len(indices))
		for i, p := range indices {
			out[i] = values[p]
		}
		return out
	}
	return status.Config{
		Method:      status.Method(strings.ToLower(config.ThresholdMethod)),
		Thresholds:  floats(config.Thresholds),
		OnFractions: floats(config.OnFractions),
		MinOn:       ints(config.MinOnDuration),
		MinOff:      ints(config.MinOffDuration),
	}
}

// DatasetConfig trims the border from the window length: the input of a
// sample is a whole window and its target the part inside the border.
func (config *Config) DatasetConfig(mode dataset.Mode) dataset.Config {
	return dataset.Config{
		Length:     config.WindowLength - 2*config.Border,
		Border:     config.Border,
		PowerScale: config.PowerScale,
		Mode:       mode,
		Seed:       config.RandomSeed,
	}
}

func (config *Config) LoaderConfig(mode dataset.Mode) dataset.LoaderConfig {
	return dataset.LoaderConfig{
		BatchSize: config.BatchSize,
		Workers:   config.Workers,
		Shuffle:   config.Shuffle && mode == dataset.Training,
		Seed:      config.RandomSeed,
	}
}

func (config *Config) StoreConfig() storage.StoreConfig {
	return storage.StoreConfig{
		MaxGap:    config.Store.MaxGap,
		FillLimit: config.Store.FillLimit,
		Cutoff:    config.Store.Cutoff,
		Floor:     config.Store.Floor,
	}
}
