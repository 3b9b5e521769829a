package form

import "github.com/chargeguru/chargeguru/pkg/b6"

// Enablement tells which inputs and actions are available.
type Enablement struct {
	BatteryType          bool `json:"batteryType"`
	Mode                 bool `json:"mode"`
	CellCount            bool `json:"cellCount"`
	ChargeCurrent        bool `json:"chargeCurrent"`
	DischargeCurrent     bool `json:"dischargeCurrent"`
	CellDischargeVoltage bool `json:"cellDischargeVoltage"`
	EndVoltage           bool `json:"endVoltage"`
	RepeakCount          bool `json:"repeakCount"`
	CycleCount           bool `json:"cycleCount"`

	Start        bool `json:"start"`
	Stop         bool `json:"stop"`
	ChargingInfo bool `json:"chargingInfo"`
}

// inputs is one row of the enable table.
type inputs struct {
	chargeCurrent        bool
	dischargeCurrent     bool
	cellDischargeVoltage bool
	endVoltage           bool
	repeakCount          bool
	cycleCount           bool
}

// enableTable mirrors the charger firmware: which setpoints each mode uses.
var enableTable = map[b6.Mode]inputs{
	b6.LiStandard:  {chargeCurrent: true, endVoltage: true},
	b6.LiDischarge: {dischargeCurrent: true, cellDischargeVoltage: true},
	b6.LiStorage:   {chargeCurrent: true, dischargeCurrent: true, endVoltage: true},
	b6.LiFast:      {chargeCurrent: true, endVoltage: true},
	b6.LiBalance:   {chargeCurrent: true, endVoltage: true},

	b6.NiStandard:  {chargeCurrent: true, endVoltage: true},
	b6.NiAuto:      {chargeCurrent: true, endVoltage: true},
	b6.NiDischarge: {dischargeCurrent: true, cellDischargeVoltage: true},
	b6.NiRepeak:    {chargeCurrent: true, endVoltage: true, repeakCount: true},
	b6.NiCycle:     {chargeCurrent: true, dischargeCurrent: true, cellDischargeVoltage: true, endVoltage: true, cycleCount: true},

	b6.PbCharge:    {chargeCurrent: true, endVoltage: true},
	b6.PbDischarge: {dischargeCurrent: true, cellDischargeVoltage: true},
}

// Enable computes the enablement for a mode. While charging every input is
// disabled.
func Enable(m b6.Mode, charging bool) Enablement {
	if charging {
		return Enablement{Stop: true, ChargingInfo: true}
	}

	row := enableTable[m]
	return Enablement{
		BatteryType:          true,
		Mode:                 true,
		CellCount:            true,
		ChargeCurrent:        row.chargeCurrent,
		DischargeCurrent:     row.dischargeCurrent,
		CellDischargeVoltage: row.cellDischargeVoltage,
		EndVoltage:           row.endVoltage,
		RepeakCount:          row.repeakCount,
		CycleCount:           row.cycleCount,
		Start:                true,
	}
}
