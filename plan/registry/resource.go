package registry

import "fmt"

// Tech is a resource's technology class.
type Tech int

const (
	Thermal Tech = iota
	VRE
	Storage
	FlexDemand
	MustRun
)

var techNames = map[string]Tech{
	"thermal":  Thermal,
	"vre":      VRE,
	"storage":  Storage,
	"flex":     FlexDemand,
	"must_run": MustRun,
}

func (t Tech) String() string {
	for name, v := range techNames {
		if v == t {
			return name
		}
	}
	return fmt.Sprintf("tech(%d)", int(t))
}

// ParseTech parses a technology class name.
func ParseTech(s string) (Tech, bool) {
	t, ok := techNames[s]
	return t, ok
}

// Capability is a typed eligibility flag. Modules restrict variable creation
// to the resources carrying the flags they need.
type Capability uint16

const (
	CapCommit       Capability = 1 << iota // on/off cycling via commitment decisions
	CapReserves                            // may provide regulation and spinning reserve
	CapLongDuration                        // storage linked across representative periods
	CapNewBuild                            // investment decision: new capacity
	CapRetire                              // investment decision: retirement
	CapContingency                         // counts toward the dynamic contingency

	numCapabilities = iota
)

// capabilityColumns maps each flag to its 0/1 record column.
var capabilityColumns = map[Capability]string{
	CapCommit:       "commit",
	CapReserves:     "reserves",
	CapLongDuration: "long_duration",
	CapNewBuild:     "new_build",
	CapRetire:       "can_retire",
	CapContingency:  "contingency",
}

// Valid reports whether c is a single defined capability.
func (c Capability) Valid() bool {
	return c != 0 && c&(c-1) == 0 && c < 1<<numCapabilities
}

func (c Capability) String() string {
	if name, ok := capabilityColumns[c]; ok {
		return name
	}
	return fmt.Sprintf("capability(%#x)", uint16(c))
}

// Resource is the static description of one generation, storage or
// flexible-demand resource. Immutable after Load.
type Resource struct {
	Index int
	ID    string
	Zone  string
	Tech  Tech
	Caps  Capability

	ExistingCapMW float64
	MinCapMW      float64
	MaxCapMW      float64 // +Inf when unlimited
	UnitSizeMW    float64

	InvCostPerMWyr    float64
	FixedOMPerMWyr    float64
	VarOMPerMWh       float64
	VarOMChargePerMWh float64
	HeatRate          float64 // MMBtu/MWh
	Fuel              string
	StartCostPerMW    float64

	MinPower float64 // fraction of unit size
	RampUp   float64 // fraction of capacity per hour
	RampDown float64
	UpTime   int // hours
	DownTime int

	EffUp         float64
	EffDown       float64
	SelfDischarge float64 // fraction of state of charge lost per hour
	MinDuration   float64 // hours
	MaxDuration   float64

	ExistingCapMWh  float64
	MaxCapMWh       float64 // +Inf when unlimited
	InvCostPerMWhyr float64
	FixedOMPerMWhyr float64

	FlexDelay      int // hours deferred demand may wait
	FlexAdvance    int // hours demand may be served early
	FlexEfficiency float64

	RegMax  float64 // fraction of capacity
	RsvMax  float64
	RegCost float64 // $/MW-h
	RsvCost float64

	CO2PerMWh   float64
	CO2PerStart float64 // tonnes per MW started

	// ESR[p] is the qualifying share of output for energy-share policy p.
	ESR map[int]float64
	// CRM[p] is the capacity derating for capacity reserve margin policy p.
	CRM map[int]float64
}

// Has reports whether r carries capability c.
func (r *Resource) Has(c Capability) bool { return r.Caps&c != 0 }

// IsStorage reports whether r is a storage resource.
func (r *Resource) IsStorage() bool { return r.Tech == Storage }

// Invests reports whether r has a power-capacity decision.
func (r *Resource) Invests() bool { return r.Has(CapNewBuild) || r.Has(CapRetire) }

// UnitSize returns the commitment unit size, defaulting to 1 MW.
func (r *Resource) UnitSize() float64 {
	if r.UnitSizeMW > 0 {
		return r.UnitSizeMW
	}
	return 1
}

// Zone is a load zone.
type Zone struct {
	ID          string    `yaml:"id"`
	Curtailment []Segment `yaml:"curtailment"`
}

// Segment is one demand-curtailment price block: up to MaxFraction of zonal
// demand may go unserved at Cost $/MWh.
type Segment struct {
	Cost        float64 `yaml:"cost"`
	MaxFraction float64 `yaml:"max_fraction"`
}

// Line is an inter-zonal transmission path.
type Line struct {
	ID        string  `yaml:"id"`
	From      string  `yaml:"from"`
	To        string  `yaml:"to"`
	MaxFlowMW float64 `yaml:"max_flow_mw"`
	Loss      float64 `yaml:"loss"` // fraction lost in transit
}
