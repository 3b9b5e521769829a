package b6

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMock(t *testing.T, opts MockOptions) (*Device, *Mock) {
	t.Helper()
	m := NewMock(opts)
	d, err := Open(m)
	require.NoError(t, err)
	return d, m
}

func lipo(cells int) ChargeProfile {
	p, _ := DefaultProfile(LiPo)
	p.CellCount = cells
	p.ChargeCurrent = 2000
	return p
}

func TestOpenReadsIdentification(t *testing.T) {
	d, _ := openMock(t, DefaultMockOptions())

	assert.Equal(t, "100069", d.CoreType())
	assert.InDelta(t, 1.10, d.SWVersion(), 0.001)
	assert.InDelta(t, 3.0, d.HWVersion(), 0.001)
	assert.Equal(t, 6, d.CellCount())
}

func TestOpenFailsWhenOffline(t *testing.T) {
	m := NewMock(DefaultMockOptions())
	m.SetOffline(true)

	_, err := Open(m)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSysInfoRoundTrip(t *testing.T) {
	d, _ := openMock(t, DefaultMockOptions())

	require.NoError(t, d.SetTimeLimit(true, 90))
	require.NoError(t, d.SetCapacityLimit(true, 2200))
	require.NoError(t, d.SetTempLimit(55))
	require.NoError(t, d.SetCycleTime(10))
	require.NoError(t, d.SetBuzzers(false, true))

	s, err := d.SysInfo()
	require.NoError(t, err)
	assert.True(t, s.TimeLimitOn)
	assert.Equal(t, 90, s.TimeLimit)
	assert.True(t, s.CapLimitOn)
	assert.Equal(t, 2200, s.CapLimit)
	assert.Equal(t, 55, s.TempLimit)
	assert.Equal(t, 10, s.CycleTime)
	assert.False(t, s.SystemBuzzer)
	assert.True(t, s.KeyBuzzer)
}

func TestChargeCycleCompletes(t *testing.T) {
	d, m := openMock(t, DefaultMockOptions())

	require.NoError(t, d.StartCharging(lipo(3)))
	assert.Equal(t, StateCharging, m.State())

	var last ChargeInfo
	for i := 0; i < 200; i++ {
		info, err := d.ChargeInfo()
		require.NoError(t, err)
		last = info
		if info.State == StateComplete {
			break
		}
		assert.Equal(t, i+1, info.Time)
	}

	assert.Equal(t, StateComplete, last.State)
	assert.Equal(t, 4200*3, last.Voltage)
	assert.Equal(t, 0, last.Cells[3])
	assert.Greater(t, last.Capacity, 0)

	require.NoError(t, d.StopCharging())
	info, err := d.ChargeInfo()
	require.NoError(t, err)
	assert.Equal(t, StateIdle, info.State)
}

func TestChargeInfoReturnsChargingError(t *testing.T) {
	opts := DefaultMockOptions()
	opts.FaultAt = 2
	opts.FaultCode = 0x05
	d, _ := openMock(t, opts)

	require.NoError(t, d.StartCharging(lipo(2)))

	_, err := d.ChargeInfo()
	require.NoError(t, err)

	info, err := d.ChargeInfo()
	require.Error(t, err)
	assert.Equal(t, StateError, info.State)

	var ce *ChargingError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, uint8(0x05), ce.Code)
	assert.Equal(t, "Reverse polarity detected", ce.Error())
}

func TestStartChargingRejectsCellMismatch(t *testing.T) {
	opts := DefaultMockOptions()
	opts.CellsPresent = 4
	d, _ := openMock(t, opts)

	err := d.StartCharging(lipo(3))
	require.Error(t, err)
	assert.True(t, IsChargingError(err))
}

func TestStartChargingValidatesProfile(t *testing.T) {
	d, _ := openMock(t, DefaultMockOptions())

	p := lipo(3)
	p.Mode = NiRepeak
	assert.Error(t, d.StartCharging(p))

	p = lipo(7)
	assert.Error(t, d.StartCharging(p))
}

func TestDefaultChargeProfileCapsCells(t *testing.T) {
	opts := DefaultMockOptions()
	d, _ := openMock(t, opts)

	for _, bt := range BatteryTypes {
		p, err := d.DefaultChargeProfile(bt)
		require.NoError(t, err)
		assert.Equal(t, bt, p.BatteryType)
		assert.Equal(t, bt.Chemistry(), p.Mode.Chemistry())
		assert.LessOrEqual(t, p.CellCount, d.CellCount())
	}
}
