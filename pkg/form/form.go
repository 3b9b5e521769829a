// Package form keeps the charge parameter selections and decides which of
// them can be edited.
package form

import (
	"encoding/json"
	"sync"

	pkgerrors "github.com/pkg/errors"

	"github.com/chargeguru/chargeguru/pkg/b6"
)

// Limits of the counters.
const (
	MaxRepeakCount = 5
	MaxCycleCount  = 5
)

var (
	// ErrCharging is returned when editing the form during a cycle.
	ErrCharging = pkgerrors.New("charge parameters cannot be changed while charging")
)

// State is the set of form selections.
type State struct {
	BatteryType          b6.BatteryType
	Mode                 b6.Mode
	CellCount            int
	ChargeCurrent        int
	DischargeCurrent     int
	CellDischargeVoltage int
	EndVoltage           int
	RepeakCount          int
	CycleCount           int
}

type rawState struct {
	BatteryType          b6.BatteryType `json:"batteryType" yaml:"batteryType"`
	Mode                 string         `json:"mode" yaml:"mode"`
	CellCount            int            `json:"cellCount" yaml:"cellCount"`
	ChargeCurrent        int            `json:"chargeCurrent" yaml:"chargeCurrent"`
	DischargeCurrent     int            `json:"dischargeCurrent" yaml:"dischargeCurrent"`
	CellDischargeVoltage int            `json:"cellDischargeVoltage" yaml:"cellDischargeVoltage"`
	EndVoltage           int            `json:"endVoltage" yaml:"endVoltage"`
	RepeakCount          int            `json:"repeakCount" yaml:"repeakCount"`
	CycleCount           int            `json:"cycleCount" yaml:"cycleCount"`
}

func (s State) raw() rawState {
	r := rawState{
		BatteryType:          s.BatteryType,
		CellCount:            s.CellCount,
		ChargeCurrent:        s.ChargeCurrent,
		DischargeCurrent:     s.DischargeCurrent,
		CellDischargeVoltage: s.CellDischargeVoltage,
		EndVoltage:           s.EndVoltage,
		RepeakCount:          s.RepeakCount,
		CycleCount:           s.CycleCount,
	}
	if s.Mode != nil {
		r.Mode = s.Mode.String()
	}
	return r
}

func (r rawState) state() (State, error) {
	var mode b6.Mode
	if r.Mode == "" {
		mode = b6.ModesFor(r.BatteryType.Chemistry())[0]
	} else {
		m, err := b6.ParseMode(r.BatteryType.Chemistry(), r.Mode)
		if err != nil {
			return State{}, err
		}
		mode = m
	}
	return State{
		BatteryType:          r.BatteryType,
		Mode:                 mode,
		CellCount:            r.CellCount,
		ChargeCurrent:        r.ChargeCurrent,
		DischargeCurrent:     r.DischargeCurrent,
		CellDischargeVoltage: r.CellDischargeVoltage,
		EndVoltage:           r.EndVoltage,
		RepeakCount:          r.RepeakCount,
		CycleCount:           r.CycleCount,
	}, nil
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.raw())
}

func (s *State) UnmarshalJSON(b []byte) error {
	var r rawState
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	st, err := r.state()
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func (s State) MarshalYAML() (interface{}, error) {
	return s.raw(), nil
}

func (s *State) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var r rawState
	if err := unmarshal(&r); err != nil {
		return err
	}
	st, err := r.state()
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// DefaultState is a single Li-Po cell with the factory setpoints.
func DefaultState() State {
	p, _ := b6.DefaultProfile(b6.LiPo)
	return FromProfile(p)
}

// FromProfile copies the form fields out of a charge profile.
func FromProfile(p b6.ChargeProfile) State {
	return State{
		BatteryType:          p.BatteryType,
		Mode:                 p.Mode,
		CellCount:            p.CellCount,
		ChargeCurrent:        p.ChargeCurrent,
		DischargeCurrent:     p.DischargeCurrent,
		CellDischargeVoltage: p.CellDischargeVoltage,
		EndVoltage:           p.EndVoltage,
		RepeakCount:          p.RepeakCount,
		CycleCount:           p.CycleCount,
	}
}

// Validate checks every field against its input range.
func (s State) Validate(maxCells int) error {
	if !s.BatteryType.Valid() {
		return pkgerrors.Errorf("invalid battery type %d", uint8(s.BatteryType))
	}
	if s.Mode == nil || s.Mode.Chemistry() != s.BatteryType.Chemistry() {
		return pkgerrors.Errorf("mode %v is not available for %s", s.Mode, s.BatteryType)
	}
	if maxCells <= 0 {
		maxCells = b6.MaxCells
	}
	switch {
	case s.CellCount < 1 || s.CellCount > maxCells:
		return pkgerrors.Errorf("cell count must be between 1 and %d, got %d", maxCells, s.CellCount)
	case s.ChargeCurrent < 0 || s.ChargeCurrent > b6.MaxCurrent:
		return pkgerrors.Errorf("charge current must be between 0 and %d mA, got %d", b6.MaxCurrent, s.ChargeCurrent)
	case s.DischargeCurrent < 0 || s.DischargeCurrent > b6.MaxCurrent:
		return pkgerrors.Errorf("discharge current must be between 0 and %d mA, got %d", b6.MaxCurrent, s.DischargeCurrent)
	case s.CellDischargeVoltage < 0 || s.EndVoltage < 0:
		return pkgerrors.New("voltages must not be negative")
	case s.RepeakCount < 1 || s.RepeakCount > MaxRepeakCount:
		return pkgerrors.Errorf("repeak count must be between 1 and %d, got %d", MaxRepeakCount, s.RepeakCount)
	case s.CycleCount < 1 || s.CycleCount > MaxCycleCount:
		return pkgerrors.Errorf("cycle count must be between 1 and %d, got %d", MaxCycleCount, s.CycleCount)
	}
	return nil
}

// Options are the choices offered by the battery type and mode selectors.
type Options struct {
	BatteryTypes []string `json:"batteryTypes"`
	Modes        []string `json:"modes"`
	MaxCells     int      `json:"maxCells"`
}

// Controller owns the form state and the charging flag.
type Controller struct {
	mu       *sync.RWMutex
	state    State
	charging bool
	maxCells int
}

// NewController starts from initial, falling back to DefaultState when it is
// not valid.
func NewController(initial State) *Controller {
	if err := initial.Validate(b6.MaxCells); err != nil {
		initial = DefaultState()
	}
	return &Controller{
		mu:       &sync.RWMutex{},
		state:    initial,
		maxCells: b6.MaxCells,
	}
}

// State returns a copy of the selections.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Charging reports the local charging flag.
func (c *Controller) Charging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.charging
}

// SetCharging flips the local charging flag.
func (c *Controller) SetCharging(charging bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.charging = charging
}

// Enablement returns which inputs and actions are available.
func (c *Controller) Enablement() Enablement {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Enable(c.state.Mode, c.charging)
}

// Options returns the selector choices for the current battery type.
func (c *Controller) Options() Options {
	c.mu.RLock()
	defer c.mu.RUnlock()

	o := Options{MaxCells: c.maxCells}
	for _, t := range b6.BatteryTypes {
		o.BatteryTypes = append(o.BatteryTypes, t.String())
	}
	for _, m := range b6.ModesFor(c.state.BatteryType.Chemistry()) {
		o.Modes = append(o.Modes, m.String())
	}
	return o
}

// SetMaxCells limits the cell count to what the charger can balance.
func (c *Controller) SetMaxCells(n int) {
	if n <= 0 || n > b6.MaxCells {
		n = b6.MaxCells
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.maxCells = n
	if c.state.CellCount > n {
		c.state.CellCount = n
	}
}

// SelectBatteryType switches the battery type and selects the first mode of
// its chemistry.
func (c *Controller) SelectBatteryType(t b6.BatteryType) error {
	if !t.Valid() {
		return pkgerrors.Errorf("invalid battery type %d", uint8(t))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.charging {
		return ErrCharging
	}
	c.state.BatteryType = t
	c.state.Mode = b6.ModesFor(t.Chemistry())[0]
	return nil
}

// SelectMode picks a mode of the current chemistry.
func (c *Controller) SelectMode(m b6.Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.charging {
		return ErrCharging
	}
	if m == nil || m.Chemistry() != c.state.BatteryType.Chemistry() {
		return pkgerrors.Errorf("mode %v is not available for %s", m, c.state.BatteryType)
	}
	c.state.Mode = m
	return nil
}

// Load replaces every selection at once, as when applying a preset.
func (c *Controller) Load(s State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.charging {
		return ErrCharging
	}
	if s.CellCount > c.maxCells {
		s.CellCount = c.maxCells
	}
	if err := s.Validate(c.maxCells); err != nil {
		return err
	}
	c.state = s
	return nil
}

// Update is a partial edit. Nil fields are left alone.
type Update struct {
	BatteryType          *string `json:"batteryType,omitempty"`
	Mode                 *string `json:"mode,omitempty"`
	CellCount            *int    `json:"cellCount,omitempty"`
	ChargeCurrent        *int    `json:"chargeCurrent,omitempty"`
	DischargeCurrent     *int    `json:"dischargeCurrent,omitempty"`
	CellDischargeVoltage *int    `json:"cellDischargeVoltage,omitempty"`
	EndVoltage           *int    `json:"endVoltage,omitempty"`
	RepeakCount          *int    `json:"repeakCount,omitempty"`
	CycleCount           *int    `json:"cycleCount,omitempty"`
}

// Apply runs an Update the way the inputs would: battery type first, then
// mode, then the numeric fields, each only if it is enabled. Nothing changes
// when any step fails.
func (c *Controller) Apply(u Update) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.charging {
		return ErrCharging
	}

	next := c.state
	if u.BatteryType != nil {
		t, err := b6.ParseBatteryType(*u.BatteryType)
		if err != nil {
			return err
		}
		if t != next.BatteryType {
			next.BatteryType = t
			next.Mode = b6.ModesFor(t.Chemistry())[0]
		}
	}
	if u.Mode != nil {
		m, err := b6.ParseMode(next.BatteryType.Chemistry(), *u.Mode)
		if err != nil {
			return err
		}
		next.Mode = m
	}

	en := Enable(next.Mode, false)
	fields := []struct {
		name    string
		enabled bool
		src     *int
		dst     *int
	}{
		{"cellCount", en.CellCount, u.CellCount, &next.CellCount},
		{"chargeCurrent", en.ChargeCurrent, u.ChargeCurrent, &next.ChargeCurrent},
		{"dischargeCurrent", en.DischargeCurrent, u.DischargeCurrent, &next.DischargeCurrent},
		{"cellDischargeVoltage", en.CellDischargeVoltage, u.CellDischargeVoltage, &next.CellDischargeVoltage},
		{"endVoltage", en.EndVoltage, u.EndVoltage, &next.EndVoltage},
		{"repeakCount", en.RepeakCount, u.RepeakCount, &next.RepeakCount},
		{"cycleCount", en.CycleCount, u.CycleCount, &next.CycleCount},
	}
	for _, f := range fields {
		if f.src == nil {
			continue
		}
		if !f.enabled {
			return pkgerrors.Errorf("%s is not used by %s %s", f.name, next.BatteryType, next.Mode)
		}
		*f.dst = *f.src
	}

	if err := next.Validate(c.maxCells); err != nil {
		return err
	}
	c.state = next
	return nil
}

// Profile layers the selections onto the charger defaults for the selected
// battery type.
func (c *Controller) Profile(defaults b6.ChargeProfile) (b6.ChargeProfile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.state
	if defaults.BatteryType != s.BatteryType {
		return b6.ChargeProfile{}, pkgerrors.Errorf("defaults are for %s, form selects %s", defaults.BatteryType, s.BatteryType)
	}

	p := defaults
	p.Mode = s.Mode
	p.CellCount = s.CellCount
	p.ChargeCurrent = s.ChargeCurrent
	p.DischargeCurrent = s.DischargeCurrent
	p.CellDischargeVoltage = s.CellDischargeVoltage
	p.EndVoltage = s.EndVoltage
	p.RepeakCount = s.RepeakCount
	p.CycleCount = s.CycleCount
	return p, nil
}

// AxisPresets returns the setpoints the current and voltage charts are
// scaled to when a cycle starts: charge current in mA, end voltage in mV and
// the cell count.
func (c *Controller) AxisPresets() (chargeCurrent, endVoltage, cells int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.ChargeCurrent, c.state.EndVoltage, c.state.CellCount
}
