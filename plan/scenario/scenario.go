// Package scenario builds the joint scenario set: the Cartesian product of
// independently sampled fuel-price draws and weather/load draws, each
// weighted by the product of its marginal probabilities.
package scenario

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/gridplan/gridplan/plan"
)

// probTol is how far a marginal probability vector may drift from 1.
const probTol = 1e-9

// Scenario is one (fuel draw, weather draw) combination. Fuel and Weather
// are 1-based draw ids; Index is the 0-based position in the Set.
type Scenario struct {
	Index       int
	Fuel        int
	Weather     int
	Probability float64
}

// ID returns the stable 1-based linear id (Fuel-1)*W + Weather.
func (s Scenario) ID() int { return s.Index + 1 }

// FuelDraw and WeatherDraw return the 0-based draw positions used to address
// per-draw input series.
func (s Scenario) FuelDraw() int    { return s.Fuel - 1 }
func (s Scenario) WeatherDraw() int { return s.Weather - 1 }

func (s Scenario) String() string {
	return fmt.Sprintf("scenario %d (fuel %d, weather %d, p=%g)", s.ID(), s.Fuel, s.Weather, s.Probability)
}

// Set is the full joint scenario set.
type Set struct {
	fuelProbs    []float64
	weatherProbs []float64
	scenarios    []Scenario
	probs        []float64
}

// New builds F x W joint scenarios from the marginal probabilities. It fails
// with a DataShapeError when either marginal is empty, has a negative entry,
// or does not sum to 1.
func New(fuelProbs, weatherProbs []float64) (*Set, error) {
	if err := checkMarginal("fuel", fuelProbs); err != nil {
		return nil, err
	}
	if err := checkMarginal("weather", weatherProbs); err != nil {
		return nil, err
	}
	F, W := len(fuelProbs), len(weatherProbs)
	s := &Set{
		fuelProbs:    append([]float64(nil), fuelProbs...),
		weatherProbs: append([]float64(nil), weatherProbs...),
		scenarios:    make([]Scenario, 0, F*W),
		probs:        make([]float64, 0, F*W),
	}
	for f := 1; f <= F; f++ {
		for w := 1; w <= W; w++ {
			p := fuelProbs[f-1] * weatherProbs[w-1]
			s.scenarios = append(s.scenarios, Scenario{Index: (f-1)*W + w - 1, Fuel: f, Weather: w, Probability: p})
			s.probs = append(s.probs, p)
		}
	}
	return s, nil
}

// Uniform builds F x W equally likely joint scenarios.
func Uniform(F, W int) (*Set, error) {
	if F <= 0 || W <= 0 {
		return nil, &plan.DataShapeError{What: "scenarios", Msg: fmt.Sprintf("need at least one fuel and one weather draw, got F=%d W=%d", F, W)}
	}
	return New(uniform(F), uniform(W))
}

func uniform(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1 / float64(n)
	}
	return out
}

func checkMarginal(name string, probs []float64) error {
	if len(probs) == 0 {
		return &plan.DataShapeError{What: name + " probabilities", Msg: "no draws"}
	}
	for i, p := range probs {
		if p < 0 || math.IsNaN(p) {
			return &plan.DataShapeError{What: name + " probabilities", Msg: fmt.Sprintf("draw %d has probability %g", i+1, p)}
		}
	}
	if sum := floats.Sum(probs); math.Abs(sum-1) > probTol {
		return &plan.DataShapeError{What: name + " probabilities", Msg: fmt.Sprintf("sum to %.12g, want 1", sum)}
	}
	return nil
}

// Len returns F x W.
func (s *Set) Len() int { return len(s.scenarios) }

// Fuels returns F.
func (s *Set) Fuels() int { return len(s.fuelProbs) }

// Weathers returns W.
func (s *Set) Weathers() int { return len(s.weatherProbs) }

// ID returns the stable 1-based id of (f, w): (f-1)*W + w.
func (s *Set) ID(f, w int) int { return (f-1)*s.Weathers() + w }

// Get returns the scenario for 1-based draws (f, w).
func (s *Set) Get(f, w int) (Scenario, error) {
	if f < 1 || f > s.Fuels() || w < 1 || w > s.Weathers() {
		return Scenario{}, fmt.Errorf("no scenario for fuel %d weather %d (have %d x %d)", f, w, s.Fuels(), s.Weathers())
	}
	return s.scenarios[s.ID(f, w)-1], nil
}

// Lookup returns the scenario with 1-based id.
func (s *Set) Lookup(id int) (Scenario, error) {
	if id < 1 || id > s.Len() {
		return Scenario{}, fmt.Errorf("no scenario %d (have %d)", id, s.Len())
	}
	return s.scenarios[id-1], nil
}

// At returns the scenario at 0-based position i.
func (s *Set) At(i int) Scenario { return s.scenarios[i] }

// All returns every scenario in id order.
func (s *Set) All() []Scenario { return append([]Scenario(nil), s.scenarios...) }

// Probabilities returns the flat probability vector, indexed by position,
// that cost accumulators use as scenario weights.
func (s *Set) Probabilities() []float64 { return append([]float64(nil), s.probs...) }
