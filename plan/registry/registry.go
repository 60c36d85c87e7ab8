// Package registry holds the static description of the system: resources,
// zones, transmission lines and policy sets. Modules query it through typed
// capability accessors rather than string-keyed set lookups.
package registry

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/gridplan/gridplan/plan"
)

// Record is one raw resource row: column name -> value.
type Record map[string]string

// Required resource columns. Every other column is optional and defaults to
// zero when absent.
var requiredColumns = []string{"resource", "zone", "tech", "existing_cap_mw", "max_cap_mw"}

// Registry is the immutable, validated system description.
type Registry struct {
	resources []Resource
	zones     []Zone
	zoneIdx   map[string]int
	lines     []Line
	policies  Policies
	subsets   map[Capability][]int
}

// Load validates raw records and topology and builds a Registry.
// A required column missing from any record is a MissingColumnError; optional
// columns missing everywhere are filled with zeros.
func Load(records []Record, zones []Zone, lines []Line, policies Policies) (*Registry, error) {
	if len(zones) == 0 {
		return nil, plan.Configf("zones", "no zones defined")
	}
	r := &Registry{
		zones:    append([]Zone(nil), zones...),
		zoneIdx:  make(map[string]int, len(zones)),
		lines:    append([]Line(nil), lines...),
		policies: policies,
		subsets:  make(map[Capability][]int),
	}
	for i, z := range zones {
		if _, dup := r.zoneIdx[z.ID]; dup {
			return nil, plan.Configf("zones", "duplicate zone %q", z.ID)
		}
		r.zoneIdx[z.ID] = i
		for s, seg := range z.Curtailment {
			if seg.MaxFraction < 0 || seg.MaxFraction > 1 {
				return nil, plan.Configf("zones", "zone %q segment %d: max_fraction %g outside [0, 1]", z.ID, s, seg.MaxFraction)
			}
			if seg.Cost < 0 {
				return nil, plan.Configf("zones", "zone %q segment %d: cost is negative (%g)", z.ID, s, seg.Cost)
			}
		}
	}
	for _, l := range lines {
		if _, ok := r.zoneIdx[l.From]; !ok {
			return nil, plan.Configf("lines", "line %q starts in unknown zone %q", l.ID, l.From)
		}
		if _, ok := r.zoneIdx[l.To]; !ok {
			return nil, plan.Configf("lines", "line %q ends in unknown zone %q", l.ID, l.To)
		}
		if l.MaxFlowMW < 0 || l.Loss < 0 || l.Loss >= 1 {
			return nil, plan.Configf("lines", "line %q has invalid flow limit or loss", l.ID)
		}
	}
	if err := r.checkPolicyZones(); err != nil {
		return nil, err
	}

	reportMissingOptional(records)
	seen := make(map[string]bool, len(records))
	for i, rec := range records {
		for _, col := range requiredColumns {
			if _, ok := rec[col]; !ok {
				return nil, &plan.MissingColumnError{Column: col, Table: fmt.Sprintf("resource record %d", i)}
			}
		}
		res, err := parseResource(i, rec)
		if err != nil {
			return nil, err
		}
		if seen[res.ID] {
			return nil, plan.Configf("resources", "duplicate resource %q", res.ID)
		}
		seen[res.ID] = true
		if _, ok := r.zoneIdx[res.Zone]; !ok {
			return nil, plan.Configf("resources", "resource %q is in unknown zone %q", res.ID, res.Zone)
		}
		if err := validateResource(&res); err != nil {
			return nil, err
		}
		r.resources = append(r.resources, res)
	}
	for c := Capability(1); c.Valid(); c <<= 1 {
		var set []int
		for i := range r.resources {
			if r.resources[i].Has(c) {
				set = append(set, i)
			}
		}
		r.subsets[c] = set
	}
	return r, nil
}

func (r *Registry) checkPolicyZones() error {
	check := func(kind, id string, zones []string) error {
		for _, z := range zones {
			if _, ok := r.zoneIdx[z]; !ok {
				return plan.Configf("policies", "%s %q references unknown zone %q", kind, id, z)
			}
		}
		return nil
	}
	for _, p := range r.policies.CO2Caps {
		if err := check("co2 cap", p.ID, p.Zones); err != nil {
			return err
		}
	}
	for _, p := range r.policies.EnergyShares {
		if err := check("energy share", p.ID, p.Zones); err != nil {
			return err
		}
	}
	for _, p := range r.policies.ReserveMargin {
		if err := check("capacity reserve margin", p.ID, p.Zones); err != nil {
			return err
		}
	}
	return nil
}

// reportMissingOptional logs each known optional column that no record has.
func reportMissingOptional(records []Record) {
	present := make(map[string]bool)
	for _, rec := range records {
		for col := range rec {
			present[col] = true
		}
	}
	var missing []string
	for _, col := range optionalColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		logrus.Debugf("resource columns absent, defaulting to zero: %s", strings.Join(missing, ", "))
	}
}

var optionalColumns = []string{
	"min_cap_mw", "unit_size_mw", "inv_cost_per_mwyr", "fixed_om_per_mwyr", "var_om_per_mwh",
	"var_om_charge_per_mwh", "heat_rate", "fuel", "start_cost_per_mw", "min_power", "ramp_up",
	"ramp_down", "up_time", "down_time", "eff_up", "eff_down", "self_discharge", "min_duration",
	"max_duration", "existing_cap_mwh", "max_cap_mwh", "inv_cost_per_mwhyr", "fixed_om_per_mwhyr",
	"flex_delay", "flex_advance", "flex_efficiency", "reg_max", "rsv_max", "reg_cost", "rsv_cost",
	"co2_per_mwh", "co2_per_start", "commit", "reserves", "long_duration", "new_build", "can_retire",
	"contingency",
}

type recordParser struct {
	rec Record
	id  string
	err error
}

func (p *recordParser) float(col string) float64 {
	v, ok := p.rec[col]
	if !ok || strings.TrimSpace(v) == "" || p.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		p.err = plan.Configf("resources", "resource %q column %q: %v", p.id, col, err)
		return 0
	}
	return f
}

// limit parses an upper capacity bound where a negative value means
// unlimited.
func (p *recordParser) limit(col string) float64 {
	v, ok := p.rec[col]
	if !ok || strings.TrimSpace(v) == "" {
		return math.Inf(1)
	}
	if f := p.float(col); f >= 0 {
		return f
	}
	return math.Inf(1)
}

func (p *recordParser) whole(col string) int {
	f := p.float(col)
	if f != math.Trunc(f) && p.err == nil {
		p.err = plan.Configf("resources", "resource %q column %q: %g is not a whole number", p.id, col, f)
	}
	return int(f)
}

func parseResource(i int, rec Record) (Resource, error) {
	p := &recordParser{rec: rec, id: rec["resource"]}
	tech, ok := ParseTech(strings.ToLower(strings.TrimSpace(rec["tech"])))
	if !ok {
		return Resource{}, plan.Configf("resources", "resource %q has unknown tech %q", p.id, rec["tech"])
	}
	res := Resource{
		Index: i,
		ID:    strings.TrimSpace(rec["resource"]),
		Zone:  strings.TrimSpace(rec["zone"]),
		Tech:  tech,

		ExistingCapMW: p.float("existing_cap_mw"),
		MinCapMW:      p.float("min_cap_mw"),
		MaxCapMW:      p.limit("max_cap_mw"),
		UnitSizeMW:    p.float("unit_size_mw"),

		InvCostPerMWyr:    p.float("inv_cost_per_mwyr"),
		FixedOMPerMWyr:    p.float("fixed_om_per_mwyr"),
		VarOMPerMWh:       p.float("var_om_per_mwh"),
		VarOMChargePerMWh: p.float("var_om_charge_per_mwh"),
		HeatRate:          p.float("heat_rate"),
		Fuel:              strings.TrimSpace(rec["fuel"]),
		StartCostPerMW:    p.float("start_cost_per_mw"),

		MinPower: p.float("min_power"),
		RampUp:   p.float("ramp_up"),
		RampDown: p.float("ramp_down"),
		UpTime:   p.whole("up_time"),
		DownTime: p.whole("down_time"),

		EffUp:         p.float("eff_up"),
		EffDown:       p.float("eff_down"),
		SelfDischarge: p.float("self_discharge"),
		MinDuration:   p.float("min_duration"),
		MaxDuration:   p.float("max_duration"),

		ExistingCapMWh:  p.float("existing_cap_mwh"),
		MaxCapMWh:       p.limit("max_cap_mwh"),
		InvCostPerMWhyr: p.float("inv_cost_per_mwhyr"),
		FixedOMPerMWhyr: p.float("fixed_om_per_mwhyr"),

		FlexDelay:      p.whole("flex_delay"),
		FlexAdvance:    p.whole("flex_advance"),
		FlexEfficiency: p.float("flex_efficiency"),

		RegMax:  p.float("reg_max"),
		RsvMax:  p.float("rsv_max"),
		RegCost: p.float("reg_cost"),
		RsvCost: p.float("rsv_cost"),

		CO2PerMWh:   p.float("co2_per_mwh"),
		CO2PerStart: p.float("co2_per_start"),

		ESR: make(map[int]float64),
		CRM: make(map[int]float64),
	}
	for c, col := range capabilityColumns {
		if p.float(col) != 0 {
			res.Caps |= c
		}
	}
	// Named policy columns: esr_1, esr_2, ... and crm_1, ... (1-based).
	for col := range rec {
		for prefix, dst := range map[string]map[int]float64{"esr_": res.ESR, "crm_": res.CRM} {
			if !strings.HasPrefix(col, prefix) {
				continue
			}
			n, err := strconv.Atoi(strings.TrimPrefix(col, prefix))
			if err != nil || n < 1 {
				return Resource{}, plan.Configf("resources", "resource %q has malformed policy column %q", res.ID, col)
			}
			if v := p.float(col); v != 0 {
				dst[n-1] = v
			}
		}
	}
	if tech == Storage || tech == FlexDemand {
		if res.EffUp == 0 {
			res.EffUp = 1
		}
		if res.EffDown == 0 {
			res.EffDown = 1
		}
		if res.FlexEfficiency == 0 {
			res.FlexEfficiency = 1
		}
	}
	if p.err != nil {
		return Resource{}, p.err
	}
	return res, nil
}

// validateResource checks value ranges. Every capacity kind present on the
// resource (power and, for storage, energy) is checked for negativity.
func validateResource(res *Resource) error {
	fail := func(format string, args ...any) error {
		return plan.Configf("resources", "resource %q: %s", res.ID, fmt.Sprintf(format, args...))
	}
	if res.ExistingCapMW < 0 {
		return fail("existing_cap_mw is negative (%g)", res.ExistingCapMW)
	}
	if res.IsStorage() && res.ExistingCapMWh < 0 {
		return fail("existing_cap_mwh is negative (%g)", res.ExistingCapMWh)
	}
	if res.MinCapMW < 0 || res.MinCapMW > res.MaxCapMW {
		return fail("min_cap_mw %g outside [0, max_cap_mw=%g]", res.MinCapMW, res.MaxCapMW)
	}
	if !res.Has(CapNewBuild) && res.ExistingCapMW > res.MaxCapMW {
		return fail("existing_cap_mw %g exceeds max_cap_mw %g", res.ExistingCapMW, res.MaxCapMW)
	}
	for name, v := range map[string]float64{
		"inv_cost_per_mwyr": res.InvCostPerMWyr, "fixed_om_per_mwyr": res.FixedOMPerMWyr,
		"var_om_per_mwh": res.VarOMPerMWh, "var_om_charge_per_mwh": res.VarOMChargePerMWh,
		"heat_rate": res.HeatRate, "start_cost_per_mw": res.StartCostPerMW,
		"inv_cost_per_mwhyr": res.InvCostPerMWhyr, "fixed_om_per_mwhyr": res.FixedOMPerMWhyr,
		"reg_cost": res.RegCost, "rsv_cost": res.RsvCost,
		"reg_max": res.RegMax, "rsv_max": res.RsvMax, "self_discharge": res.SelfDischarge,
	} {
		if v < 0 {
			return fail("%s is negative (%g)", name, v)
		}
	}
	for name, v := range map[string]float64{"min_power": res.MinPower, "ramp_up": res.RampUp, "ramp_down": res.RampDown} {
		if v < 0 || v > 1 {
			return fail("%s %g outside [0, 1]", name, v)
		}
	}
	if res.UpTime < 0 || res.DownTime < 0 || res.FlexDelay < 0 || res.FlexAdvance < 0 {
		return fail("negative time window")
	}
	if res.IsStorage() && (res.EffUp <= 0 || res.EffUp > 1 || res.EffDown <= 0 || res.EffDown > 1) {
		return fail("storage efficiencies must be in (0, 1]")
	}
	if res.Has(CapLongDuration) && !res.IsStorage() {
		return fail("long_duration is only meaningful for storage")
	}
	return nil
}

// Resources returns every resource in load order.
func (r *Registry) Resources() []Resource { return r.resources }

// Resource returns resource i.
func (r *Registry) Resource(i int) *Resource { return &r.resources[i] }

// NumResources returns the resource count.
func (r *Registry) NumResources() int { return len(r.resources) }

// Subset returns the indices of resources carrying capability c. It fails
// for capabilities the registry does not define.
func (r *Registry) Subset(c Capability) ([]int, error) {
	set, ok := r.subsets[c]
	if !ok {
		return nil, fmt.Errorf("registry has no eligibility set for %s", c)
	}
	return set, nil
}

// ByTech returns the indices of resources of the given technology class.
func (r *Registry) ByTech(t Tech) []int {
	var out []int
	for i := range r.resources {
		if r.resources[i].Tech == t {
			out = append(out, i)
		}
	}
	return out
}

// Filter returns the indices of resources satisfying keep.
func (r *Registry) Filter(keep func(*Resource) bool) []int {
	var out []int
	for i := range r.resources {
		if keep(&r.resources[i]) {
			out = append(out, i)
		}
	}
	return out
}

// IDs returns resource ids in load order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.resources))
	for i := range r.resources {
		out[i] = r.resources[i].ID
	}
	return out
}

// Name returns the id of resource i; handy as a variable-name labeller.
func (r *Registry) Name(i int) string { return r.resources[i].ID }

// Zones returns the zones in load order.
func (r *Registry) Zones() []Zone { return r.zones }

// ZoneIDs returns zone ids in load order.
func (r *Registry) ZoneIDs() []string {
	out := make([]string, len(r.zones))
	for i, z := range r.zones {
		out[i] = z.ID
	}
	return out
}

// ZoneIndex returns the position of zone id.
func (r *Registry) ZoneIndex(id string) (int, bool) {
	i, ok := r.zoneIdx[id]
	return i, ok
}

// ResourceZone returns the zone position of resource i.
func (r *Registry) ResourceZone(i int) int { return r.zoneIdx[r.resources[i].Zone] }

// Lines returns the transmission lines.
func (r *Registry) Lines() []Line { return r.lines }

// Policies returns the policy sets.
func (r *Registry) Policies() Policies { return r.policies }

// Fuels returns the distinct non-empty fuel names, sorted.
func (r *Registry) Fuels() []string {
	set := make(map[string]bool)
	for i := range r.resources {
		if f := r.resources[i].Fuel; f != "" {
			set[f] = true
		}
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
