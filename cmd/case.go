package cmd

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/registry"
	"github.com/gridplan/gridplan/plan/scenario"
)

// Case is one planning case file. All top-level sections must be listed so
// KnownFields(true) strict parsing accepts the file; typos are errors.
type Case struct {
	Setup     plan.Setup        `yaml:"setup"`
	Scenarios ScenarioSpec      `yaml:"scenarios"`
	Time      TimeSpec          `yaml:"time"`
	Zones     []registry.Zone   `yaml:"zones"`
	Lines     []registry.Line   `yaml:"lines"`
	Resources []registry.Record `yaml:"resources"`
	Policies  registry.Policies `yaml:"policies"`
	Series    SeriesSpec        `yaml:"series"`
}

// ScenarioSpec holds the marginal draw probabilities.
type ScenarioSpec struct {
	Fuel    []float64 `yaml:"fuel"`
	Weather []float64 `yaml:"weather"`
}

// TimeSpec describes the representative periods and, for long-duration
// storage, how modeled periods map onto them.
type TimeSpec struct {
	HoursPerPeriod int              `yaml:"hours_per_period"`
	Periods        int              `yaml:"periods"`
	Weights        []float64        `yaml:"weights"`
	PeriodMaps     []plan.PeriodMap `yaml:"period_maps"`
}

// SeriesSpec holds the hourly inputs, one series per draw.
type SeriesSpec struct {
	Demand       map[string][]plan.Series `yaml:"demand"`
	Availability map[string][]plan.Series `yaml:"availability"`
	FuelPrice    map[string][]plan.Series `yaml:"fuel_price"`
}

// System is a case resolved into the engine's inputs.
type System struct {
	Setup     plan.Setup
	Registry  *registry.Registry
	Scenarios *scenario.Set
	Inputs    *plan.Inputs
}

// LoadCase reads a case file with strict field checking. Setup fields the
// file omits keep their defaults.
func LoadCase(path string) (*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading case: %w", err)
	}
	c := &Case{Setup: plan.DefaultSetup()}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return nil, fmt.Errorf("parsing case %s: %w", path, err)
	}
	return c, nil
}

// Resolve validates the case and builds the registry, scenario set and
// input series.
func (c *Case) Resolve() (*System, error) {
	if err := c.Setup.Validate(); err != nil {
		return nil, err
	}
	reg, err := registry.Load(c.Resources, c.Zones, c.Lines, c.Policies)
	if err != nil {
		return nil, err
	}
	set, err := scenario.New(c.Scenarios.Fuel, c.Scenarios.Weather)
	if err != nil {
		return nil, err
	}
	ti, err := plan.NewTimeIndex(c.Time.HoursPerPeriod, c.Time.Periods, c.Time.Weights)
	if err != nil {
		return nil, err
	}
	return &System{
		Setup:     c.Setup,
		Registry:  reg,
		Scenarios: set,
		Inputs: &plan.Inputs{
			Time:         ti,
			Demand:       c.Series.Demand,
			Availability: c.Series.Availability,
			FuelPrice:    c.Series.FuelPrice,
			PeriodMaps:   c.Time.PeriodMaps,
		},
	}, nil
}
