package form

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/chargeguru/chargeguru/pkg/b6"
)

func ptrTo[T any](v T) *T { return &v }

func TestEnableTable(t *testing.T) {
	tests := []struct {
		mode b6.Mode
		want inputs
	}{
		{b6.LiStandard, inputs{true, false, false, true, false, false}},
		{b6.LiDischarge, inputs{false, true, true, false, false, false}},
		{b6.LiStorage, inputs{true, true, false, true, false, false}},
		{b6.LiFast, inputs{true, false, false, true, false, false}},
		{b6.LiBalance, inputs{true, false, false, true, false, false}},
		{b6.NiStandard, inputs{true, false, false, true, false, false}},
		{b6.NiAuto, inputs{true, false, false, true, false, false}},
		{b6.NiDischarge, inputs{false, true, true, false, false, false}},
		{b6.NiRepeak, inputs{true, false, false, true, true, false}},
		{b6.NiCycle, inputs{true, true, true, true, false, true}},
		{b6.PbCharge, inputs{true, false, false, true, false, false}},
		{b6.PbDischarge, inputs{false, true, true, false, false, false}},
	}
	for _, tt := range tests {
		t.Run(tt.mode.Chemistry().String()+"/"+tt.mode.String(), func(t *testing.T) {
			e := Enable(tt.mode, false)
			got := inputs{
				chargeCurrent:        e.ChargeCurrent,
				dischargeCurrent:     e.DischargeCurrent,
				cellDischargeVoltage: e.CellDischargeVoltage,
				endVoltage:           e.EndVoltage,
				repeakCount:          e.RepeakCount,
				cycleCount:           e.CycleCount,
			}
			assert.Equal(t, tt.want, got)
			assert.True(t, e.Start)
			assert.False(t, e.Stop)
			assert.False(t, e.ChargingInfo)
		})
	}
}

func TestChargingDisablesEverything(t *testing.T) {
	for _, m := range []b6.Mode{b6.NiCycle, b6.LiStorage, b6.PbCharge} {
		e := Enable(m, true)
		assert.Equal(t, Enablement{Stop: true, ChargingInfo: true}, e)
	}
}

func TestNiMhRepeak(t *testing.T) {
	c := NewController(DefaultState())

	require.NoError(t, c.SelectBatteryType(b6.NiMH))
	assert.Equal(t, b6.NiStandard, c.State().Mode)
	assert.Equal(t, []string{"Standard", "Auto", "Discharge", "Re-peak", "Cycle"}, c.Options().Modes)

	require.NoError(t, c.SelectMode(b6.NiRepeak))
	e := c.Enablement()
	assert.True(t, e.RepeakCount)
	assert.False(t, e.CycleCount)
}

func TestSelectModeRejectsOtherChemistry(t *testing.T) {
	c := NewController(DefaultState())
	assert.Error(t, c.SelectMode(b6.PbCharge))
	assert.Equal(t, b6.LiStandard, c.State().Mode)
}

func TestEditsRejectedWhileCharging(t *testing.T) {
	c := NewController(DefaultState())
	c.SetCharging(true)

	assert.ErrorIs(t, c.SelectBatteryType(b6.Pb), ErrCharging)
	assert.ErrorIs(t, c.SelectMode(b6.LiStorage), ErrCharging)
	assert.ErrorIs(t, c.Apply(Update{CellCount: ptrTo(3)}), ErrCharging)
	assert.ErrorIs(t, c.Load(DefaultState()), ErrCharging)
	assert.True(t, c.Enablement().Stop)
}

func TestApply(t *testing.T) {
	c := NewController(DefaultState())

	err := c.Apply(Update{
		BatteryType: ptrTo("Ni-Mh"),
		Mode:        ptrTo("re-peak"),
		RepeakCount: ptrTo(3),
		CellCount:   ptrTo(4),
	})
	require.NoError(t, err)
	s := c.State()
	assert.Equal(t, b6.NiMH, s.BatteryType)
	assert.Equal(t, b6.NiRepeak, s.Mode)
	assert.Equal(t, 3, s.RepeakCount)
	assert.Equal(t, 4, s.CellCount)

	// cycle count is not used by Re-peak; nothing changes.
	err = c.Apply(Update{CycleCount: ptrTo(2), CellCount: ptrTo(5)})
	assert.Error(t, err)
	assert.Equal(t, 4, c.State().CellCount)

	err = c.Apply(Update{ChargeCurrent: ptrTo(7000)})
	assert.Error(t, err)
}

func TestCellCountClampedToCharger(t *testing.T) {
	s := DefaultState()
	s.CellCount = 8
	c := NewController(s)

	c.SetMaxCells(6)
	assert.Equal(t, 6, c.State().CellCount)
	assert.Equal(t, 6, c.Options().MaxCells)
	assert.Error(t, c.Apply(Update{CellCount: ptrTo(7)}))
}

func TestProfileLayersOntoDefaults(t *testing.T) {
	c := NewController(DefaultState())
	require.NoError(t, c.SelectBatteryType(b6.NiCd))
	require.NoError(t, c.SelectMode(b6.NiCycle))
	require.NoError(t, c.Apply(Update{CycleCount: ptrTo(3), ChargeCurrent: ptrTo(1500)}))

	defaults, err := b6.DefaultProfile(b6.NiCd)
	require.NoError(t, err)
	defaults.CycleType = 1

	p, err := c.Profile(defaults)
	require.NoError(t, err)
	assert.Equal(t, b6.NiCycle, p.Mode)
	assert.Equal(t, 3, p.CycleCount)
	assert.Equal(t, 1500, p.ChargeCurrent)
	assert.Equal(t, 1, p.CycleType)

	other, _ := b6.DefaultProfile(b6.LiPo)
	_, err = c.Profile(other)
	assert.Error(t, err)
}

func TestAxisPresets(t *testing.T) {
	c := NewController(DefaultState())
	require.NoError(t, c.Apply(Update{ChargeCurrent: ptrTo(2000), CellCount: ptrTo(3)}))

	i, v, n := c.AxisPresets()
	assert.Equal(t, 2000, i)
	assert.Equal(t, 4200, v)
	assert.Equal(t, 3, n)
}

func TestStateEncoding(t *testing.T) {
	s := DefaultState()
	s.BatteryType = b6.Pb
	s.Mode = b6.PbDischarge

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"mode":"Discharge"`)

	var back State
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, s, back)

	y, err := yaml.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(y), "batteryType: Pb")

	var fromYAML State
	require.NoError(t, yaml.Unmarshal(y, &fromYAML))
	assert.Equal(t, s, fromYAML)
}
