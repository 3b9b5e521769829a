package session

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/chargeguru/chargeguru/pkg/b6"
)

// CellThreshold is the voltage below which a balance channel counts as empty.
const CellThreshold = 0.4

const (
	linearMargin    = 0.5
	minCellMargin   = 0.02
	defaultCapacity = 10000
)

// ChartID names one of the five charts.
type ChartID string

const (
	ChartCurrent     ChartID = "current"
	ChartVoltage     ChartID = "voltage"
	ChartCapacity    ChartID = "capacity"
	ChartTemperature ChartID = "temperature"
	ChartCells       ChartID = "cells"
)

// ChartIDs lists the charts in display order.
var ChartIDs = []ChartID{ChartCurrent, ChartVoltage, ChartCapacity, ChartTemperature, ChartCells}

// Point is one sample; X is the elapsed time in seconds.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Series is an append-only run of points.
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

func (s *Series) add(x, y float64) {
	s.Points = append(s.Points, Point{X: x, Y: y})
}

// Chart is a set of series plus its visible ranges.
type Chart struct {
	ID     ChartID   `json:"id"`
	Title  string    `json:"title"`
	Series []*Series `json:"series"`
	X      Range     `json:"x"`
	Y      Range     `json:"y"`
}

func (c *Chart) clone() Chart {
	out := *c
	out.Series = make([]*Series, 0, len(c.Series))
	for _, s := range c.Series {
		cp := &Series{Name: s.Name, Points: make([]Point, len(s.Points))}
		copy(cp.Points, s.Points)
		out.Series = append(out.Series, cp)
	}
	return out
}

// Session holds the view state of one charge cycle: running extrema, lazy
// activation flags and the chart series. A new cycle gets a new Session.
type Session struct {
	ID        uuid.UUID
	StartedAt time.Time

	mu        sync.Mutex
	cellCount int

	current  Extrema
	voltage  Extrema
	capacity Extrema
	tempInt  Extrema
	tempExt  Extrema
	cells    Extrema
	elapsed  Extrema

	extTempActive bool
	cellActive    [b6.MaxCells]bool

	charts        map[ChartID]*Chart
	seriesTempInt *Series
	seriesTempExt *Series
	seriesCells   [b6.MaxCells]*Series
}

// New starts an empty session for a charger balancing up to cellCount cells.
func New(cellCount int) *Session {
	if cellCount <= 0 || cellCount > b6.MaxCells {
		cellCount = b6.MaxCells
	}

	s := &Session{
		ID:        uuid.New(),
		StartedAt: time.Now(),
		cellCount: cellCount,
		charts:    make(map[ChartID]*Chart, len(ChartIDs)),
	}

	s.charts[ChartCurrent] = &Chart{
		ID:     ChartCurrent,
		Title:  "Current (A)",
		Series: []*Series{{Name: "Current (A)"}},
		Y:      Range{Min: 0, Max: 6},
	}
	s.charts[ChartVoltage] = &Chart{
		ID:     ChartVoltage,
		Title:  "Voltage (V)",
		Series: []*Series{{Name: "Voltage (V)"}},
		Y:      Range{Min: 0, Max: 4.5},
	}
	s.charts[ChartCapacity] = &Chart{
		ID:     ChartCapacity,
		Title:  "Capacity (mAh)",
		Series: []*Series{{Name: "Capacity (mAh)"}},
		Y:      Range{Min: 0, Max: 6000},
	}

	s.seriesTempInt = &Series{Name: "Temperature Internal"}
	s.seriesTempExt = &Series{Name: "Temperature External"}
	s.charts[ChartTemperature] = &Chart{
		ID:     ChartTemperature,
		Title:  "Temperature (°C)",
		Series: []*Series{s.seriesTempInt},
		Y:      Range{Min: 20, Max: 80},
	}

	for i := range s.seriesCells {
		s.seriesCells[i] = &Series{Name: fmt.Sprintf("Cell %d (V)", i+1)}
	}
	s.charts[ChartCells] = &Chart{
		ID:    ChartCells,
		Title: "Cells voltage (V)",
		Y:     Range{Min: 2.0, Max: 4.5},
	}

	logrus.WithFields(logrus.Fields{
		"session": s.ID.String(),
		"cells":   cellCount,
	}).Debug("new charge session")

	return s
}

// CellCount returns the number of balance channels the session reads.
func (s *Session) CellCount() int {
	return s.cellCount
}

// Observe feeds one telemetry snapshot into the charts.
func (s *Session) Observe(info b6.ChargeInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := float64(info.Time)
	current := float64(info.Current) / 1000
	voltage := float64(info.Voltage) / 1000
	capacity := float64(info.Capacity)
	tempInt := float64(info.TempInt)
	tempExt := float64(info.TempExt)

	s.elapsed.Observe(t)

	s.charts[ChartCurrent].Series[0].add(t, current)
	s.charts[ChartVoltage].Series[0].add(t, voltage)
	s.charts[ChartCapacity].Series[0].add(t, capacity)
	s.seriesTempInt.add(t, tempInt)

	s.current.Observe(current)
	s.voltage.Observe(voltage)
	s.capacity.Observe(capacity)
	s.tempInt.Observe(tempInt)

	if info.TempExt > 0 {
		if !s.extTempActive {
			s.extTempActive = true
			temp := s.charts[ChartTemperature]
			temp.Series = append(temp.Series, s.seriesTempExt)
			logrus.WithField("session", s.ID.String()).Debug("external temperature probe detected")
		}
		s.tempExt.Observe(tempExt)
		s.seriesTempExt.add(t, tempExt)
	}

	x := Range{Min: s.elapsed.Min, Max: t}
	for _, id := range ChartIDs {
		s.charts[id].X = x
	}

	s.charts[ChartCurrent].Y = padded(s.current, linearMargin)
	s.charts[ChartVoltage].Y = padded(s.voltage, linearMargin)
	s.charts[ChartCapacity].Y = padded(s.capacity, linearMargin)

	temp := s.tempInt
	if s.extTempActive {
		temp.Observe(s.tempExt.Min)
		temp.Observe(s.tempExt.Max)
	}
	s.charts[ChartTemperature].Y = padded(temp, linearMargin)

	s.observeCells(t, info.Cells)
}

func (s *Session) observeCells(t float64, mv [b6.MaxCells]int) {
	var tick Extrema
	chart := s.charts[ChartCells]

	for i := 0; i < s.cellCount; i++ {
		v := float64(mv[i]) / 1000
		if v <= CellThreshold {
			continue
		}
		if !s.cellActive[i] {
			s.cellActive[i] = true
			chart.Series = append(chart.Series, s.seriesCells[i])
		}
		s.seriesCells[i].add(t, v)
		tick.Observe(v)
	}

	if !tick.Set {
		return
	}
	s.cells.Observe(tick.Min)
	s.cells.Observe(tick.Max)

	margin := math.Max(minCellMargin, s.cells.Spread())
	chart.Y = Range{Min: s.cells.Min - margin, Max: s.cells.Max + margin}
}

// PresetAxes sets the current and voltage ceilings from the setpoints of the
// cycle about to run. Currents are in mA and voltages in mV.
func (s *Session) PresetAxes(chargeCurrent, endVoltage, cells int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.charts[ChartCurrent].Y = Range{Min: 0, Max: float64(chargeCurrent)/1000 + 1}
	s.charts[ChartVoltage].Y = Range{Min: 0, Max: float64(endVoltage)*float64(cells)/1000 + 1}
}

// SetCapacityCeiling follows the charger's capacity limit.
func (s *Session) SetCapacityCeiling(limitOn bool, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ceil := float64(defaultCapacity)
	if limitOn {
		ceil = float64(limit)
	}
	s.charts[ChartCapacity].Y = Range{Min: 0, Max: ceil}
}

// CellActive reports whether balance channel i (zero based) has been seen
// carrying a cell during this session.
func (s *Session) CellActive(i int) bool {
	if i < 0 || i >= b6.MaxCells {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cellActive[i]
}

// ExternalTempActive reports whether the external probe has reported.
func (s *Session) ExternalTempActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extTempActive
}

// Snapshot is a deep copy of a session for rendering.
type Snapshot struct {
	ID                 string             `json:"id"`
	StartedAt          time.Time          `json:"startedAt"`
	Charts             []Chart            `json:"charts"`
	Extrema            map[string]Extrema `json:"extrema"`
	ActiveCells        []int              `json:"activeCells"`
	ExternalTempActive bool               `json:"externalTempActive"`
}

// Chart returns the chart with the given id.
func (s Snapshot) Chart(id ChartID) (Chart, bool) {
	for _, c := range s.Charts {
		if c.ID == id {
			return c, true
		}
	}
	return Chart{}, false
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Snapshot{
		ID:        s.ID.String(),
		StartedAt: s.StartedAt,
		Charts:    make([]Chart, 0, len(ChartIDs)),
		Extrema: map[string]Extrema{
			"current":  s.current,
			"voltage":  s.voltage,
			"capacity": s.capacity,
			"tempInt":  s.tempInt,
			"tempExt":  s.tempExt,
			"cells":    s.cells,
			"time":     s.elapsed,
		},
		ActiveCells:        []int{},
		ExternalTempActive: s.extTempActive,
	}
	for _, id := range ChartIDs {
		out.Charts = append(out.Charts, s.charts[id].clone())
	}
	for i, active := range s.cellActive {
		if active {
			out.ActiveCells = append(out.ActiveCells, i+1)
		}
	}
	return out
}
