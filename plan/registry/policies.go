package registry

// Policies groups the system-level policy sets. A zero slack price makes the
// corresponding requirement hard.
type Policies struct {
	CO2Caps       []CO2Cap        `yaml:"co2_caps"`
	EnergyShares  []EnergyShare   `yaml:"energy_shares"`
	ReserveMargin []ReserveMargin `yaml:"capacity_reserve_margins"`
	Reserves      Reserves        `yaml:"reserves"`
}

// CO2Cap limits weighted emissions of the member zones, per scenario.
type CO2Cap struct {
	ID         string   `yaml:"id"`
	Zones      []string `yaml:"zones"`
	CapTonnes  float64  `yaml:"cap_tonnes"`
	SlackPrice float64  `yaml:"slack_price"`
}

// EnergyShare requires qualifying generation of at least Share of the member
// zones' demand, per scenario.
type EnergyShare struct {
	ID         string   `yaml:"id"`
	Zones      []string `yaml:"zones"`
	Share      float64  `yaml:"share"`
	SlackPrice float64  `yaml:"slack_price"`
}

// ReserveMargin requires derated capacity of at least (1+Margin) times the
// member zones' demand in every hour.
type ReserveMargin struct {
	ID         string   `yaml:"id"`
	Zones      []string `yaml:"zones"`
	Margin     float64  `yaml:"margin"`
	SlackPrice float64  `yaml:"slack_price"`
}

// Reserves parameterises the system regulation and spinning-reserve
// requirements as fractions of demand and of variable-resource output.
type Reserves struct {
	RegLoad      float64 `yaml:"reg_load"`
	RegVRE       float64 `yaml:"reg_vre"`
	RsvLoad      float64 `yaml:"rsv_load"`
	RsvVRE       float64 `yaml:"rsv_vre"`
	UnmetRsvCost float64 `yaml:"unmet_rsv_cost"`
}
