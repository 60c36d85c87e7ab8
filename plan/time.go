package plan

import "fmt"

// TimeIndex describes the operational time axis shared by every scenario:
// Periods representative periods of HoursPerPeriod hours each, laid out
// back to back so hour t belongs to period t/HoursPerPeriod.
// Hours are 0-based throughout the engine.
type TimeIndex struct {
	HoursPerPeriod int
	Periods        int
	// Weights[p] is how many modeled periods representative period p stands
	// for; every hour of p is scaled by it in cost and policy sums.
	Weights []float64
}

// NewTimeIndex validates and builds a TimeIndex. A nil weights slice means
// every period is weighted 1 (no time-domain reduction).
func NewTimeIndex(hoursPerPeriod, periods int, weights []float64) (TimeIndex, error) {
	if hoursPerPeriod <= 0 {
		return TimeIndex{}, Configf("time.hours_per_period", "must be positive, got %d", hoursPerPeriod)
	}
	if periods <= 0 {
		return TimeIndex{}, Configf("time.periods", "must be positive, got %d", periods)
	}
	if weights == nil {
		weights = make([]float64, periods)
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != periods {
		return TimeIndex{}, Configf("time.weights", "have %d weights for %d representative periods", len(weights), periods)
	}
	for p, w := range weights {
		if w <= 0 {
			return TimeIndex{}, Configf("time.weights", "period %d weight must be positive, got %g", p, w)
		}
	}
	return TimeIndex{HoursPerPeriod: hoursPerPeriod, Periods: periods, Weights: weights}, nil
}

// T returns the total number of hours per scenario.
func (ti TimeIndex) T() int { return ti.HoursPerPeriod * ti.Periods }

// Period returns the representative period containing hour t.
func (ti TimeIndex) Period(t int) int { return t / ti.HoursPerPeriod }

// Start returns the first hour of period p.
func (ti TimeIndex) Start(p int) int { return p * ti.HoursPerPeriod }

// End returns the last hour of period p.
func (ti TimeIndex) End(p int) int { return (p+1)*ti.HoursPerPeriod - 1 }

// IsStart reports whether t is the first hour of its period.
func (ti TimeIndex) IsStart(t int) bool { return t%ti.HoursPerPeriod == 0 }

// Weight returns the objective/policy weight of hour t.
func (ti TimeIndex) Weight(t int) float64 { return ti.Weights[ti.Period(t)] }

// Before returns the hour k steps before t, wrapping within t's period: the
// hour before a period-start hour is the last hour of the same period.
func (ti TimeIndex) Before(t, k int) int {
	h := ti.HoursPerPeriod
	off := ((t%h-k)%h + h) % h
	return ti.Period(t)*h + off
}

// After returns the hour k steps after t, wrapping within t's period.
func (ti TimeIndex) After(t, k int) int { return ti.Before(t, -k) }

// Window returns the k hours ending at t (t, t-1, ..., t-k+1), wrapped.
func (ti TimeIndex) Window(t, k int) []int {
	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = ti.Before(t, i)
	}
	return out
}

// Ahead returns the k hours after t (t+1, ..., t+k), wrapped.
func (ti TimeIndex) Ahead(t, k int) []int {
	out := make([]int, k)
	for i := 1; i <= k; i++ {
		out[i-1] = ti.After(t, i)
	}
	return out
}

// CheckWindow fails when a rolling window of k hours does not fit in one
// period. what names the window for the error message.
func (ti TimeIndex) CheckWindow(what string, k int) error {
	if k > ti.HoursPerPeriod {
		return Configf(what, "window of %d hours exceeds the %d-hour subperiod", k, ti.HoursPerPeriod)
	}
	return nil
}

func (ti TimeIndex) String() string {
	return fmt.Sprintf("%d periods x %d hours", ti.Periods, ti.HoursPerPeriod)
}
