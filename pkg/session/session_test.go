package session

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chargeguru/chargeguru/pkg/b6"
)

func sample(t, current, voltage int, cells ...int) b6.ChargeInfo {
	info := b6.ChargeInfo{
		State:   b6.StateCharging,
		Time:    t,
		Current: current,
		Voltage: voltage,
		TempInt: 30,
	}
	copy(info.Cells[:], cells)
	return info
}

func chart(t *testing.T, s *Session, id ChartID) Chart {
	t.Helper()
	c, ok := s.Snapshot().Chart(id)
	require.True(t, ok)
	return c
}

func TestInitialRanges(t *testing.T) {
	s := New(6)

	assert.Equal(t, Range{0, 6}, chart(t, s, ChartCurrent).Y)
	assert.Equal(t, Range{0, 4.5}, chart(t, s, ChartVoltage).Y)
	assert.Equal(t, Range{0, 6000}, chart(t, s, ChartCapacity).Y)
	assert.Equal(t, Range{20, 80}, chart(t, s, ChartTemperature).Y)
	assert.Equal(t, Range{2.0, 4.5}, chart(t, s, ChartCells).Y)
	assert.Empty(t, chart(t, s, ChartCells).Series)
}

func TestCurrentRangeFlooredAtZero(t *testing.T) {
	s := New(6)
	for i, mA := range []int{500, 1000, 1500} {
		s.Observe(sample(i, mA, 4000))
	}

	c := chart(t, s, ChartCurrent)
	assert.InDelta(t, 0.0, c.Y.Min, 1e-9)
	assert.InDelta(t, 2.0, c.Y.Max, 1e-9)
	assert.Equal(t, Range{0, 2}, c.X)
	assert.Len(t, c.Series[0].Points, 3)
}

func TestExtremaAreMonotonic(t *testing.T) {
	s := New(6)
	stream := []int{1200, 800, 1500, 900, 1000, 300, 2000}

	var prev Extrema
	for i, mA := range stream {
		s.Observe(sample(i, mA, 4000))
		cur := s.Snapshot().Extrema["current"]
		if i > 0 {
			assert.LessOrEqual(t, cur.Min, prev.Min)
			assert.GreaterOrEqual(t, cur.Max, prev.Max)
		}
		prev = cur
	}
	assert.InDelta(t, 0.3, prev.Min, 1e-9)
	assert.InDelta(t, 2.0, prev.Max, 1e-9)
}

func TestCellActivationIsMonotonic(t *testing.T) {
	s := New(6)

	s.Observe(sample(0, 1000, 8000, 4000, 4010, 0, 0))
	assert.True(t, s.CellActive(0))
	assert.True(t, s.CellActive(1))
	assert.False(t, s.CellActive(2))

	// Cell 2 drops out, cell 3 appears.
	s.Observe(sample(1, 1000, 8000, 4005, 100, 3990, 0))
	assert.True(t, s.CellActive(1))
	assert.True(t, s.CellActive(2))

	c := chart(t, s, ChartCells)
	require.Len(t, c.Series, 3)
	assert.Equal(t, "Cell 1 (V)", c.Series[0].Name)
	assert.Len(t, c.Series[1].Points, 1)
	assert.Equal(t, []int{1, 2, 3}, s.Snapshot().ActiveCells)
}

func TestCellRangeUsesSpreadMargin(t *testing.T) {
	s := New(6)
	s.Observe(sample(0, 1000, 8000, 4000, 4000))

	c := chart(t, s, ChartCells)
	assert.InDelta(t, 3.98, c.Y.Min, 1e-9)
	assert.InDelta(t, 4.02, c.Y.Max, 1e-9)

	s.Observe(sample(1, 1000, 8000, 3900, 4100))
	c = chart(t, s, ChartCells)
	assert.InDelta(t, 3.7, c.Y.Min, 1e-9)
	assert.InDelta(t, 4.3, c.Y.Max, 1e-9)
}

func TestCellsBeyondChargerCountIgnored(t *testing.T) {
	s := New(2)
	s.Observe(sample(0, 1000, 8000, 4000, 4000, 4000))

	assert.False(t, s.CellActive(2))
	assert.Len(t, chart(t, s, ChartCells).Series, 2)
}

func TestExternalTemperatureActivatesLazily(t *testing.T) {
	s := New(6)

	s.Observe(sample(0, 1000, 4000))
	assert.False(t, s.ExternalTempActive())
	assert.Len(t, chart(t, s, ChartTemperature).Series, 1)
	assert.Equal(t, Range{29.5, 30.5}, chart(t, s, ChartTemperature).Y)

	info := sample(1, 1000, 4000)
	info.TempExt = 40
	s.Observe(info)
	assert.True(t, s.ExternalTempActive())

	c := chart(t, s, ChartTemperature)
	require.Len(t, c.Series, 2)
	assert.Len(t, c.Series[1].Points, 1)
	assert.Equal(t, Range{29.5, 40.5}, c.Y)

	// A later zero reading keeps the series but adds no point.
	s.Observe(sample(2, 1000, 4000))
	c = chart(t, s, ChartTemperature)
	assert.Len(t, c.Series[1].Points, 1)
	assert.Equal(t, Range{29.5, 40.5}, c.Y)
}

func TestPresetAxesAndCapacityCeiling(t *testing.T) {
	s := New(6)
	s.PresetAxes(2000, 4200, 3)

	assert.Equal(t, Range{0, 3}, chart(t, s, ChartCurrent).Y)
	assert.InDelta(t, 13.6, chart(t, s, ChartVoltage).Y.Max, 1e-9)

	s.SetCapacityCeiling(true, 2200)
	assert.Equal(t, Range{0, 2200}, chart(t, s, ChartCapacity).Y)
	s.SetCapacityCeiling(false, 2200)
	assert.Equal(t, Range{0, 10000}, chart(t, s, ChartCapacity).Y)
}

func TestNewSessionStartsClean(t *testing.T) {
	old := New(8)
	cells := []int{4000, 4000, 4000, 4000, 4000, 4000}
	old.Observe(sample(0, 1000, 24000, cells...))
	require.Len(t, old.Snapshot().ActiveCells, 6)

	s := New(8)
	assert.NotEqual(t, old.ID, s.ID)
	assert.Empty(t, s.Snapshot().ActiveCells)
	for _, c := range s.Snapshot().Charts {
		for _, series := range c.Series {
			assert.Empty(t, series.Points, "chart %s", c.ID)
		}
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := New(6)
	s.Observe(sample(0, 1000, 4000))
	snap := s.Snapshot()

	s.Observe(sample(1, 1000, 4000))
	c, _ := snap.Chart(ChartCurrent)
	assert.Len(t, c.Series[0].Points, 1)
}

func TestReadout(t *testing.T) {
	info := b6.ChargeInfo{
		Time:     3725,
		Current:  1234,
		Voltage:  12600,
		Capacity: 850,
		TempExt:  0,
		TempInt:  31,
	}
	copy(info.Cells[:], []int{4200, 4195, 300})

	r := NewReadout(info, 3)
	assert.Equal(t, "01:02:05", r.Elapsed)
	assert.Equal(t, "1.234 A", r.Current)
	assert.Equal(t, "12.600 V", r.Voltage)
	assert.Equal(t, "850 mAh", r.Capacity)
	assert.Equal(t, "31°C", r.TempInt)
	assert.Equal(t, []string{"4.200V", "4.195V", "0.000V"}, r.Cells)
}

func TestRender(t *testing.T) {
	s := New(6)
	s.Observe(sample(0, 1000, 8000, 4000, 4000))

	var buf bytes.Buffer
	require.NoError(t, s.Snapshot().Render(&buf, ChartTemperature))
	assert.Contains(t, buf.String(), "Current (A)")
	assert.NotContains(t, buf.String(), "Temperature Internal")
}
