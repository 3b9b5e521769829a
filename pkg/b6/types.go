package b6

import (
	"fmt"
	"strings"
)

// Chemistry is the battery family that decides which charging modes exist.
type Chemistry uint8

const (
	ChemLi Chemistry = iota
	ChemNi
	ChemPb
)

func (c Chemistry) String() string {
	switch c {
	case ChemLi:
		return "Li"
	case ChemNi:
		return "Ni"
	case ChemPb:
		return "Pb"
	default:
		return fmt.Sprintf("Chemistry(%d)", uint8(c))
	}
}

// BatteryType is the battery type as encoded on the wire.
type BatteryType uint8

const (
	LiPo BatteryType = iota
	LiIon
	LiFe
	LiHV
	NiMH
	NiCd
	Pb
)

// BatteryTypes lists every battery type in the order the charger menu uses.
var BatteryTypes = []BatteryType{LiPo, LiIon, LiFe, LiHV, NiMH, NiCd, Pb}

var batteryTypeNames = map[BatteryType]string{
	LiPo:  "Li-Po",
	LiIon: "Li-Ion",
	LiFe:  "Li-Fe",
	LiHV:  "Li-Hv",
	NiMH:  "Ni-Mh",
	NiCd:  "Ni-Cd",
	Pb:    "Pb",
}

func (t BatteryType) String() string {
	if n, ok := batteryTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("BatteryType(%d)", uint8(t))
}

// Valid reports whether t is a known battery type.
func (t BatteryType) Valid() bool {
	_, ok := batteryTypeNames[t]
	return ok
}

// Chemistry returns the family of the battery type.
func (t BatteryType) Chemistry() Chemistry {
	switch t {
	case LiPo, LiIon, LiFe, LiHV:
		return ChemLi
	case NiMH, NiCd:
		return ChemNi
	default:
		return ChemPb
	}
}

// IsLi reports whether t is a lithium battery.
func (t BatteryType) IsLi() bool { return t.Chemistry() == ChemLi }

// IsNi reports whether t is a nickel battery.
func (t BatteryType) IsNi() bool { return t.Chemistry() == ChemNi }

func (t BatteryType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid battery type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *BatteryType) UnmarshalText(b []byte) error {
	v, err := ParseBatteryType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseBatteryType accepts display names such as "Li-Po" or "lipo".
func ParseBatteryType(s string) (BatteryType, error) {
	want := normalizeName(s)
	for _, t := range BatteryTypes {
		if normalizeName(t.String()) == want {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown battery type %q", s)
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "_", "")
	return strings.ReplaceAll(s, " ", "")
}

// Mode is a chemistry specific charging mode. The concrete type is one of
// LiMode, NiMode or PbMode.
type Mode interface {
	Chemistry() Chemistry
	Code() uint8
	String() string

	sealed()
}

type LiMode uint8

const (
	LiStandard LiMode = iota
	LiDischarge
	LiStorage
	LiFast
	LiBalance
)

type NiMode uint8

const (
	NiStandard NiMode = iota
	NiAuto
	NiDischarge
	NiRepeak
	NiCycle
)

type PbMode uint8

const (
	PbCharge PbMode = iota
	PbDischarge
)

var (
	liModeNames = []string{"Standard", "Discharge", "Storage", "Fast", "Balance"}
	niModeNames = []string{"Standard", "Auto", "Discharge", "Re-peak", "Cycle"}
	pbModeNames = []string{"Charge", "Discharge"}
)

func (m LiMode) Chemistry() Chemistry { return ChemLi }
func (m LiMode) Code() uint8 { return uint8(m) }
func (m LiMode) String() string { return modeName(liModeNames, uint8(m)) }
func (LiMode) sealed() {}

func (m NiMode) Chemistry() Chemistry { return ChemNi }
func (m NiMode) Code() uint8 { return uint8(m) }
func (m NiMode) String() string { return modeName(niModeNames, uint8(m)) }
func (NiMode) sealed() {}

func (m PbMode) Chemistry() Chemistry { return ChemPb }
func (m PbMode) Code() uint8 { return uint8(m) }
func (m PbMode) String() string { return modeName(pbModeNames, uint8(m)) }
func (PbMode) sealed() {}

func modeName(names []string, code uint8) string {
	if int(code) < len(names) {
		return names[code]
	}
	return fmt.Sprintf("Mode(%d)", code)
}

// ModesFor returns the charging modes available for a chemistry, in menu order.
func ModesFor(c Chemistry) []Mode {
	switch c {
	case ChemLi:
		return []Mode{LiStandard, LiDischarge, LiStorage, LiFast, LiBalance}
	case ChemNi:
		return []Mode{NiStandard, NiAuto, NiDischarge, NiRepeak, NiCycle}
	default:
		return []Mode{PbCharge, PbDischarge}
	}
}

// ParseMode finds a mode of chemistry c by its display name.
func ParseMode(c Chemistry, s string) (Mode, error) {
	want := normalizeName(s)
	for _, m := range ModesFor(c) {
		if normalizeName(m.String()) == want {
			return m, nil
		}
	}
	return nil, fmt.Errorf("unknown %s charging mode %q", c, s)
}

// ModeFromCode maps a wire code back to the mode of chemistry c.
func ModeFromCode(c Chemistry, code uint8) (Mode, error) {
	modes := ModesFor(c)
	if int(code) >= len(modes) {
		return nil, fmt.Errorf("invalid %s charging mode code %d", c, code)
	}
	return modes[code], nil
}
