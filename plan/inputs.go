package plan

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Series holds one value per hour of the time index.
type Series []float64

// PeriodMap maps each modeled (chronological) period to the representative
// period that approximates it, plus the reverse index of which modeled period
// each representative period was drawn from.
type PeriodMap struct {
	RepIndex   []int `yaml:"rep_index"`   // modeled period n -> representative period
	RepModeled []int `yaml:"rep_modeled"` // representative period p -> modeled period
}

// Modeled returns the number of modeled periods.
func (m PeriodMap) Modeled() int { return len(m.RepIndex) }

// Count returns how many modeled periods map to representative period p.
func (m PeriodMap) Count(p int) int {
	n := 0
	for _, r := range m.RepIndex {
		if r == p {
			n++
		}
	}
	return n
}

// Representative reports whether modeled period n is itself the source of a
// representative period, and which one.
func (m PeriodMap) Representative(n int) (int, bool) {
	for p, src := range m.RepModeled {
		if src == n {
			return p, true
		}
	}
	return 0, false
}

// Validate checks the map against the time index: every representative
// period is the image of its own source period and the number of modeled
// periods mapping to p equals the weight of p.
func (m PeriodMap) Validate(ti TimeIndex) error {
	if len(m.RepIndex) == 0 {
		return Configf("period_map", "no modeled periods")
	}
	if len(m.RepModeled) != ti.Periods {
		return Configf("period_map", "reverse index has %d entries for %d representative periods", len(m.RepModeled), ti.Periods)
	}
	for n, p := range m.RepIndex {
		if p < 0 || p >= ti.Periods {
			return Configf("period_map", "modeled period %d maps to unknown representative period %d", n, p)
		}
	}
	for p, n := range m.RepModeled {
		if n < 0 || n >= len(m.RepIndex) || m.RepIndex[n] != p {
			return Configf("period_map", "representative period %d is not drawn from a modeled period that maps to it", p)
		}
	}
	for p := 0; p < ti.Periods; p++ {
		if math.Abs(float64(m.Count(p))-ti.Weights[p]) > 1e-9 {
			return Configf("time.weights", "inconsistent representative-period weights: period %d has weight %g but %d modeled periods map to it",
				p, ti.Weights[p], m.Count(p))
		}
	}
	return nil
}

// Inputs holds the per-scenario time series the core consumes. Demand and
// availability vary by weather draw, fuel prices by fuel draw.
type Inputs struct {
	Time         TimeIndex
	Demand       map[string][]Series // zone -> weather draw -> hourly MW
	Availability map[string][]Series // resource -> weather draw -> hourly fraction
	FuelPrice    map[string][]Series // fuel -> fuel draw -> hourly $/MMBtu
	PeriodMaps   []PeriodMap         // per weather draw; a single entry is shared
}

// DemandAt returns the demand of zone in weather draw w at hour t.
func (in *Inputs) DemandAt(zone string, w, t int) float64 {
	return in.Demand[zone][w][t]
}

// AvailabilityAt returns the availability of resource in weather draw w at
// hour t. Resources without a series are fully available.
func (in *Inputs) AvailabilityAt(resource string, w, t int) float64 {
	s, ok := in.Availability[resource]
	if !ok {
		return 1
	}
	return s[w][t]
}

// FuelPriceAt returns the price of fuel in fuel draw f at hour t. Resources
// without a fuel, or fuels without a series, cost nothing.
func (in *Inputs) FuelPriceAt(fuel string, f, t int) float64 {
	if fuel == "" {
		return 0
	}
	s, ok := in.FuelPrice[fuel]
	if !ok {
		return 0
	}
	return s[f][t]
}

// PeriodMap returns the period map of weather draw w.
func (in *Inputs) PeriodMap(w int) (PeriodMap, bool) {
	switch len(in.PeriodMaps) {
	case 0:
		return PeriodMap{}, false
	case 1:
		return in.PeriodMaps[0], true
	default:
		return in.PeriodMaps[w], true
	}
}

// Validate enforces the time-length precondition: every series has exactly
// HoursPerPeriod x Periods entries for every draw. Fuel prices must be
// nonnegative. Resources with no availability series default to full
// availability.
func (in *Inputs) Validate(zones, resources []string, fuelDraws, weatherDraws int) error {
	T := in.Time.T()
	for _, z := range zones {
		draws, ok := in.Demand[z]
		if !ok {
			return Configf("demand", "no demand series for zone %q", z)
		}
		if err := checkDraws("demand", z, draws, weatherDraws, T); err != nil {
			return err
		}
	}
	for _, r := range resources {
		draws, ok := in.Availability[r]
		if !ok {
			logrus.Warnf("resource %q has no availability series; assuming 100%% availability", r)
			continue
		}
		if err := checkDraws("availability", r, draws, weatherDraws, T); err != nil {
			return err
		}
	}
	for fuel, draws := range in.FuelPrice {
		if err := checkDraws("fuel_price", fuel, draws, fuelDraws, T); err != nil {
			return err
		}
		// operating costs are bounded below by zero
		for f, s := range draws {
			for t, v := range s {
				if v < 0 {
					return Configf("fuel_price", "fuel %q draw %d hour %d: price is negative (%g)", fuel, f, t, v)
				}
			}
		}
	}
	if n := len(in.PeriodMaps); n > 1 && n != weatherDraws {
		return Configf("period_map", "have %d period maps for %d weather draws", n, weatherDraws)
	}
	for w, m := range in.PeriodMaps {
		if err := m.Validate(in.Time); err != nil {
			return Configf("period_map", "weather draw %d: %v", w, err)
		}
	}
	return nil
}

func checkDraws(table, key string, draws []Series, want, T int) error {
	if len(draws) != want {
		return &DataShapeError{What: fmt.Sprintf("%s[%s]", table, key), Msg: fmt.Sprintf("%d draws, want %d", len(draws), want)}
	}
	for d, s := range draws {
		if len(s) != T {
			return &DataShapeError{What: fmt.Sprintf("%s[%s]", table, key), Msg: fmt.Sprintf("draw %d has %d hours, want %d", d, len(s), T)}
		}
	}
	return nil
}
