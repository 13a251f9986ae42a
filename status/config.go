package status

import (
	"fmt"
	"nilmprep/errs"
	"strings"
)

// Method selects how per-appliance thresholds are chosen.
type Method string

const (
	// Fixed thresholds are given by the caller, or taken from Profiles.
	Fixed Method = "fixed"
	// VarianceSensitive splits the power values into two clusters and puts
	// the threshold between them, nearer the tighter cluster.
	VarianceSensitive Method = "vs"
	// ActivityTime picks the threshold that leaves a target fraction of
	// samples on.
	ActivityTime Method = "at"
	// MidPoint is halfway between the smallest and largest power.
	MidPoint Method = "mp"
)

func ParseMethod(name string) (Method, error) {
	switch method := Method(strings.ToLower(name)); method {
	case Fixed, VarianceSensitive, ActivityTime, MidPoint:
		return method, nil
	}
	return "", errs.Config("threshold_method", "unknown method %q", name)
}

// Profile holds the defaults of one appliance. Durations are in samples.
type Profile struct {
	Threshold float64
	MinOn     int
	MinOff    int
}

// DefaultProfiles returns the activation defaults of the UK-DALE
// appliances.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		"dishwasher":     {Threshold: 10, MinOn: 30, MinOff: 30},
		"fridge":         {Threshold: 50, MinOn: 1, MinOff: 1},
		"washingmachine": {Threshold: 20, MinOn: 30, MinOff: 3},
	}
}

type Config struct {
	Method Method
	// Thresholds are the per-appliance thresholds for Fixed. Nil takes them
	// from Profiles.
	Thresholds []float64
	// OnFractions are the per-appliance target on fractions for ActivityTime.
	OnFractions []float64
	// MinOn and MinOff are per-appliance durations in samples. Nil takes
	// them from Profiles, or 0 for appliances without a profile.
	MinOn  []int
	MinOff []int
	// Profiles defaults to DefaultProfiles when nil.
	Profiles map[string]Profile
}

func countError(field string, got int, appliances []string) error {
	return errs.Config(field, "got %d values for %d appliances [%s]",
		got, len(appliances), strings.Join(appliances, ", "))
}

// resolve checks the config against the appliance list and returns it with
// every per-appliance slice filled in.
func (config Config) resolve(appliances []string) (Config, error) {
	if _, err := ParseMethod(string(config.Method)); err != nil {
		return Config{}, err
	}
	if len(appliances) == 0 {
		return Config{}, errs.Config("appliances", "no appliances to threshold")
	}
	profiles := config.Profiles
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	n := len(appliances)
	out := Config{Method: config.Method, Profiles: profiles}

	if config.Thresholds != nil && len(config.Thresholds) != n {
		return Config{}, countError("thresholds", len(config.Thresholds), appliances)
	}
	if config.Method == Fixed {
		out.Thresholds = append([]float64(nil), config.Thresholds...)
		if config.Thresholds == nil {
			out.Thresholds = make([]float64, n)
			for i, name := range appliances {
				profile, ok := profiles[name]
				if !ok {
					return Config{}, errs.Config("thresholds", "no threshold given and no profile for %q", name)
				}
				out.Thresholds[i] = profile.Threshold
			}
		}
	}

	if config.Method == ActivityTime {
		if len(config.OnFractions) != n {
			return Config{}, countError("on_fractions", len(config.OnFractions), appliances)
		}
		for i, fraction := range config.OnFractions {
			if fraction <= 0 || fraction > 1 {
				return Config{}, errs.Config("on_fractions", "%s: %g is not in (0, 1]", appliances[i], fraction)
			}
		}
		out.OnFractions = append([]float64(nil), config.OnFractions...)
	}

	var err error
	if out.MinOn, err = durations("min_on_duration", config.MinOn, appliances, profiles,
		func(profile Profile) int { return profile.MinOn }); err != nil {
		return Config{}, err
	}
	if out.MinOff, err = durations("min_off_duration", config.MinOff, appliances, profiles,
		func(profile Profile) int { return profile.MinOff }); err != nil {
		return Config{}, err
	}
	return out, nil
}

func durations(
	field string,
	given []int,
	appliances []string,
	profiles map[string]Profile,
	fallback func(Profile) int) ([]int, error) {
	if given == nil {
		out := make([]int, len(appliances))
		for i, name := range appliances {
			if profile, ok := profiles[name]; ok {
				out[i] = fallback(profile)
			}
		}
		return out, nil
	}
	if len(given) != len(appliances) {
		return nil, countError(field, len(given), appliances)
	}
	for i, value := range given {
		if value < 0 {
			return nil, errs.Config(field, "%s: must not be negative, got %d", appliances[i], value)
		}
	}
	return append([]int(nil), given...), nil
}

func (method Method) String() string {
	return string(method)
}

func (config Config) String() string {
	return fmt.Sprintf("status{method=%s thresholds=%v min_on=%v min_off=%v}",
		config.Method, config.Thresholds, config.MinOn, config.MinOff)
}
