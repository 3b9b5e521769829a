package b6

import (
	"encoding/json"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// MaxCells is the number of balance channels in a charge info report.
const MaxCells = 8

// State codes reported in ChargeInfo.State.
const (
	StateIdle     uint8 = 0x00
	StateCharging uint8 = 0x01
	StateComplete uint8 = 0x03
	StateError    uint8 = 0x04
)

// StateName returns a short label for a state code.
func StateName(state uint8) string {
	switch state {
	case StateCharging:
		return "CHARGING"
	case StateComplete:
		return "COMPLETE"
	case StateError:
		return "ERROR"
	default:
		return "IDLE"
	}
}

// DeviceInfo identifies the charger.
type DeviceInfo struct {
	CoreType   string  `json:"coreType"`
	CustomerID uint16  `json:"customerId"`
	LanguageID uint8   `json:"languageId"`
	SWVersion  float64 `json:"swVersion"`
	HWVersion  float64 `json:"hwVersion"`
	MachineID  uint8   `json:"machineId"`
	CellCount  int     `json:"cellCount"`
}

// SysInfo holds the charger's system settings. A limit value only matters
// when its flag is set.
type SysInfo struct {
	CycleTime    int  `json:"cycleTime"`
	TimeLimitOn  bool `json:"timeLimitOn"`
	TimeLimit    int  `json:"timeLimit"`
	CapLimitOn   bool `json:"capLimitOn"`
	CapLimit     int  `json:"capLimit"`
	KeyBuzzer    bool `json:"keyBuzzer"`
	SystemBuzzer bool `json:"systemBuzzer"`
	LowDCLimit   int  `json:"lowDcLimit"`
	TempLimit    int  `json:"tempLimit"`
	InputVoltage int  `json:"inputVoltage"`
}

// Validate checks the writable settings against the charger's input ranges.
func (s SysInfo) Validate() error {
	switch {
	case s.CycleTime < 0 || s.CycleTime > 60:
		return pkgerrors.Errorf("cycle time must be between 0 and 60 min, got %d", s.CycleTime)
	case s.TimeLimit < 0 || s.TimeLimit > 720:
		return pkgerrors.Errorf("time limit must be between 0 and 720 min, got %d", s.TimeLimit)
	case s.CapLimit < 0 || s.CapLimit > 50000:
		return pkgerrors.Errorf("capacity limit must be between 0 and 50000 mAh, got %d", s.CapLimit)
	case s.TempLimit < 20 || s.TempLimit > 80:
		return pkgerrors.Errorf("temperature limit must be between 20 and 80 °C, got %d", s.TempLimit)
	}
	return nil
}

// ChargeInfo is one telemetry snapshot. Currents are in mA, voltages in mV,
// capacity in mAh and temperatures in °C.
type ChargeInfo struct {
	State     uint8         `json:"state"`
	ErrorCode uint8         `json:"errorCode"`
	Capacity  int           `json:"capacity"`
	Time      int           `json:"time"`
	Voltage   int           `json:"voltage"`
	Current   int           `json:"current"`
	TempExt   int           `json:"tempExt"`
	TempInt   int           `json:"tempInt"`
	Impedance int           `json:"impedance"`
	Cells     [MaxCells]int `json:"cells"`
}

// ChargeProfile is the full parameter set submitted to start a cycle.
type ChargeProfile struct {
	BatteryType          BatteryType
	Mode                 Mode
	CellCount            int
	ChargeCurrent        int
	DischargeCurrent     int
	CellDischargeVoltage int
	EndVoltage           int
	RepeakCount          int
	CycleType            int
	CycleCount           int
}

// MaxCurrent is the highest charge or discharge current the charger accepts, in mA.
const MaxCurrent = 6000

// Validate checks the profile against the charger's limits.
func (p ChargeProfile) Validate(maxCells int) error {
	if !p.BatteryType.Valid() {
		return pkgerrors.Errorf("invalid battery type %d", uint8(p.BatteryType))
	}
	if p.Mode == nil {
		return pkgerrors.New("charging mode is not set")
	}
	if p.Mode.Chemistry() != p.BatteryType.Chemistry() {
		return pkgerrors.Errorf("mode %s belongs to %s batteries, not %s", p.Mode, p.Mode.Chemistry(), p.BatteryType)
	}
	if maxCells <= 0 {
		maxCells = MaxCells
	}
	if p.CellCount < 1 || p.CellCount > maxCells {
		return pkgerrors.Errorf("cell count must be between 1 and %d, got %d", maxCells, p.CellCount)
	}
	if p.ChargeCurrent < 0 || p.ChargeCurrent > MaxCurrent {
		return pkgerrors.Errorf("charge current must be between 0 and %d mA, got %d", MaxCurrent, p.ChargeCurrent)
	}
	if p.DischargeCurrent < 0 || p.DischargeCurrent > MaxCurrent {
		return pkgerrors.Errorf("discharge current must be between 0 and %d mA, got %d", MaxCurrent, p.DischargeCurrent)
	}
	return nil
}

type rawChargeProfile struct {
	BatteryType          BatteryType `json:"batteryType"`
	Mode                 string      `json:"mode"`
	CellCount            int         `json:"cellCount"`
	ChargeCurrent        int         `json:"chargeCurrent"`
	DischargeCurrent     int         `json:"dischargeCurrent"`
	CellDischargeVoltage int         `json:"cellDischargeVoltage"`
	EndVoltage           int         `json:"endVoltage"`
	RepeakCount          int         `json:"repeakCount"`
	CycleType            int         `json:"cycleType"`
	CycleCount           int         `json:"cycleCount"`
}

func (p ChargeProfile) MarshalJSON() ([]byte, error) {
	raw := rawChargeProfile{
		BatteryType:          p.BatteryType,
		CellCount:            p.CellCount,
		ChargeCurrent:        p.ChargeCurrent,
		DischargeCurrent:     p.DischargeCurrent,
		CellDischargeVoltage: p.CellDischargeVoltage,
		EndVoltage:           p.EndVoltage,
		RepeakCount:          p.RepeakCount,
		CycleType:            p.CycleType,
		CycleCount:           p.CycleCount,
	}
	if p.Mode != nil {
		raw.Mode = p.Mode.String()
	}
	return json.Marshal(raw)
}

func (p *ChargeProfile) UnmarshalJSON(b []byte) error {
	var raw rawChargeProfile
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	mode, err := ParseMode(raw.BatteryType.Chemistry(), raw.Mode)
	if err != nil {
		return fmt.Errorf("decode charge profile: %w", err)
	}
	*p = ChargeProfile{
		BatteryType:          raw.BatteryType,
		Mode:                 mode,
		CellCount:            raw.CellCount,
		ChargeCurrent:        raw.ChargeCurrent,
		DischargeCurrent:     raw.DischargeCurrent,
		CellDischargeVoltage: raw.CellDischargeVoltage,
		EndVoltage:           raw.EndVoltage,
		RepeakCount:          raw.RepeakCount,
		CycleType:            raw.CycleType,
		CycleCount:           raw.CycleCount,
	}
	return nil
}

// defaultProfiles are the charger's factory settings per battery type.
var defaultProfiles = map[BatteryType]ChargeProfile{
	LiPo:  {BatteryType: LiPo, Mode: LiStandard, CellCount: 1, ChargeCurrent: 1000, DischargeCurrent: 500, CellDischargeVoltage: 3000, EndVoltage: 4200, RepeakCount: 1, CycleCount: 1},
	LiIon: {BatteryType: LiIon, Mode: LiStandard, CellCount: 1, ChargeCurrent: 1000, DischargeCurrent: 500, CellDischargeVoltage: 2900, EndVoltage: 4100, RepeakCount: 1, CycleCount: 1},
	LiFe:  {BatteryType: LiFe, Mode: LiStandard, CellCount: 1, ChargeCurrent: 1000, DischargeCurrent: 500, CellDischargeVoltage: 2500, EndVoltage: 3600, RepeakCount: 1, CycleCount: 1},
	LiHV:  {BatteryType: LiHV, Mode: LiStandard, CellCount: 1, ChargeCurrent: 1000, DischargeCurrent: 500, CellDischargeVoltage: 3300, EndVoltage: 4350, RepeakCount: 1, CycleCount: 1},
	NiMH:  {BatteryType: NiMH, Mode: NiStandard, CellCount: 1, ChargeCurrent: 1000, DischargeCurrent: 200, CellDischargeVoltage: 1000, EndVoltage: 1500, RepeakCount: 1, CycleType: 0, CycleCount: 1},
	NiCd:  {BatteryType: NiCd, Mode: NiStandard, CellCount: 1, ChargeCurrent: 1000, DischargeCurrent: 200, CellDischargeVoltage: 850, EndVoltage: 1500, RepeakCount: 1, CycleType: 0, CycleCount: 1},
	Pb:    {BatteryType: Pb, Mode: PbCharge, CellCount: 1, ChargeCurrent: 1000, DischargeCurrent: 200, CellDischargeVoltage: 1800, EndVoltage: 2400, RepeakCount: 1, CycleCount: 1},
}

// DefaultProfile returns the factory profile for a battery type.
func DefaultProfile(t BatteryType) (ChargeProfile, error) {
	p, ok := defaultProfiles[t]
	if !ok {
		return ChargeProfile{}, pkgerrors.Errorf("no default profile for battery type %d", uint8(t))
	}
	return p, nil
}
