package plan

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// UCommit selects how commitment-eligible resources are modeled.
type UCommit int

const (
	UCommitOff     UCommit = 0 // commitment-eligible units dispatch like no-commit thermal
	UCommitInteger UCommit = 1 // integer commitment/start/shutdown
	UCommitLinear  UCommit = 2 // same constraints, continuous (linearized) indicators
)

// Contingency names for the spinning-reserve contingency term.
const (
	ContingencyNone             = "none"
	ContingencyStatic           = "static"
	ContingencyDynamicInstalled = "dynamic-installed"
	ContingencyDynamicCommitted = "dynamic-committed"
)

// Benders cut schemes and stabilization methods.
const (
	CutsMulti  = "multi"
	CutsSingle = "single"

	StabilizationNone  = "none"
	StabilizationInOut = "in-out"
)

// ValidContingencies is the set of recognized contingency names.
var ValidContingencies = map[string]bool{
	"": true, ContingencyNone: true, ContingencyStatic: true,
	ContingencyDynamicInstalled: true, ContingencyDynamicCommitted: true,
}

// ValidCutSchemes is the set of recognized Benders cut schemes.
var ValidCutSchemes = map[string]bool{"": true, CutsMulti: true, CutsSingle: true}

// ValidStabilizations is the set of recognized Benders stabilization methods.
var ValidStabilizations = map[string]bool{"": true, StabilizationNone: true, StabilizationInOut: true}

// Setup holds the policy toggles. Each module consults only the fields
// relevant to it; the engine resolves the active module list from Setup once.
type Setup struct {
	UCommit               UCommit `yaml:"ucommit"`
	Reserves              bool    `yaml:"reserves"`
	Contingency           string  `yaml:"contingency"`
	StaticContingencyMW   float64 `yaml:"static_contingency_mw"`
	CO2Cap                bool    `yaml:"co2_cap"`
	EnergyShare           bool    `yaml:"energy_share"`
	CapacityReserveMargin bool    `yaml:"capacity_reserve_margin"`
	LongDurationStorage   bool    `yaml:"long_duration_storage"`
	// ContingencyBigM bounds installed capacity / commitment in the
	// dynamic-contingency auxiliary links. 0 means derive from max capacities.
	ContingencyBigM float64 `yaml:"contingency_big_m"`

	Benders BendersSetup `yaml:"benders"`
}

// BendersSetup configures the decomposition driver.
type BendersSetup struct {
	Enabled       bool          `yaml:"enabled"`
	MaxIterations int           `yaml:"max_iterations"`
	AbsTolerance  float64       `yaml:"abs_tolerance"`
	RelTolerance  float64       `yaml:"rel_tolerance"`
	Parallelism   int           `yaml:"parallelism"`
	SolveTimeout  time.Duration `yaml:"solve_timeout"`
	Cuts          string        `yaml:"cuts"`
	Stabilization string        `yaml:"stabilization"`
	InOutAlpha    float64       `yaml:"in_out_alpha"`
}

// DefaultSetup returns the toggles used when a case file omits them.
func DefaultSetup() Setup {
	return Setup{
		UCommit:     UCommitOff,
		Contingency: ContingencyNone,
		Benders: BendersSetup{
			MaxIterations: 50,
			AbsTolerance:  1e-6,
			RelTolerance:  1e-3,
			Parallelism:   4,
			SolveTimeout:  10 * time.Minute,
			Cuts:          CutsMulti,
			Stabilization: StabilizationNone,
			InOutAlpha:    0.5,
		},
	}
}

// LoadSetup reads a YAML file of policy toggles on top of DefaultSetup.
// Unknown keys are rejected so typos fail loudly.
func LoadSetup(path string) (Setup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Setup{}, fmt.Errorf("reading setup: %w", err)
	}
	s := DefaultSetup()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return Setup{}, fmt.Errorf("parsing setup: %w", err)
	}
	return s, s.Validate()
}

// Validate checks enumerated names and numeric ranges.
func (s *Setup) Validate() error {
	if s.UCommit < UCommitOff || s.UCommit > UCommitLinear {
		return Configf("ucommit", "must be 0, 1 or 2, got %d", s.UCommit)
	}
	if !ValidContingencies[s.Contingency] {
		return Configf("contingency", "unknown contingency %q", s.Contingency)
	}
	if s.Contingency == ContingencyDynamicCommitted && s.UCommit == UCommitOff {
		return Configf("contingency", "%q requires unit commitment", s.Contingency)
	}
	if s.StaticContingencyMW < 0 {
		return Configf("static_contingency_mw", "must be non-negative, got %g", s.StaticContingencyMW)
	}
	if s.ContingencyBigM < 0 {
		return Configf("contingency_big_m", "must be non-negative, got %g", s.ContingencyBigM)
	}
	b := s.Benders
	if !ValidCutSchemes[b.Cuts] {
		return Configf("benders.cuts", "unknown cut scheme %q", b.Cuts)
	}
	if !ValidStabilizations[b.Stabilization] {
		return Configf("benders.stabilization", "unknown stabilization %q", b.Stabilization)
	}
	if b.Enabled && b.MaxIterations <= 0 {
		return Configf("benders.max_iterations", "must be positive, got %d", b.MaxIterations)
	}
	if b.AbsTolerance < 0 || b.RelTolerance < 0 {
		return Configf("benders.tolerance", "must be non-negative")
	}
	if b.InOutAlpha < 0 || b.InOutAlpha > 1 {
		return Configf("benders.in_out_alpha", "must be in [0, 1], got %g", b.InOutAlpha)
	}
	return nil
}
