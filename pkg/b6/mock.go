package b6

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MockOptions configures a simulated charger.
type MockOptions struct {
	Info DeviceInfo
	Sys  SysInfo
	// CellsPresent is how many balance channels carry a cell. Zero means
	// the cell count of the running profile.
	CellsPresent int
	// ExternalTemp is the reading of the external probe, 0 when absent.
	ExternalTemp int
	// FaultAt raises FaultCode once the cycle reaches this many seconds.
	FaultAt   int
	FaultCode uint8
}

// DefaultMockOptions describes a six cell charger with factory settings.
func DefaultMockOptions() MockOptions {
	return MockOptions{
		Info: DeviceInfo{
			CoreType:   "100069",
			CustomerID: 1,
			SWVersion:  1.10,
			HWVersion:  3,
			MachineID:  6,
			CellCount:  6,
		},
		Sys: SysInfo{
			CycleTime:    5,
			TimeLimit:    120,
			CapLimit:     5000,
			KeyBuzzer:    true,
			SystemBuzzer: true,
			LowDCLimit:   10000,
			TempLimit:    80,
			InputVoltage: 12000,
		},
	}
}

// Mock is an in-memory charger implementing Conn. Every charge info query
// advances a running cycle by one second.
type Mock struct {
	opts MockOptions

	mu      sync.Mutex
	pending [][]byte
	offline bool
	closed  bool

	profile  ChargeProfile
	state    uint8
	errCode  uint8
	elapsed  int
	capacity float64
	cellMV   int
}

// NewMock returns a simulated charger.
func NewMock(opts MockOptions) *Mock {
	if opts.Info.CellCount == 0 {
		opts.Info.CellCount = 6
	}
	return &Mock{opts: opts}
}

// SetOffline makes the simulated charger stop answering.
func (m *Mock) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// InjectFault raises a charging error on the next charge info query.
func (m *Mock) InjectFault(code uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateCharging {
		m.state = StateError
		m.errCode = code
	}
}

// StartExternal starts a cycle as if from the charger's own buttons.
func (m *Mock) StartExternal(p ChargeProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.start(p)
}

// State returns the simulated state code.
func (m *Mock) State() uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Profile returns the profile of the last cycle.
func (m *Mock) Profile() ChargeProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profile
}

// Reopen clears the closed flag so a daemon can connect again.
func (m *Mock) Reopen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false
	m.pending = nil
}

func (m *Mock) WriteReport(r []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.offline {
		return ErrNotFound
	}

	cmd, payload, err := decodeReport(r)
	if err != nil {
		return err
	}

	ans, err := m.handle(cmd, payload)
	if err != nil {
		return err
	}
	out, err := encodeReport(cmd, ans)
	if err != nil {
		return err
	}
	m.pending = append(m.pending, out)
	return nil
}

func (m *Mock) ReadReport(_ time.Duration) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.offline || len(m.pending) == 0 {
		return nil, ErrTimeout
	}
	r := m.pending[0]
	m.pending = m.pending[1:]
	return r, nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Mock) handle(cmd uint8, p []byte) ([]byte, error) {
	switch cmd {
	case cmdGetDevInfo:
		return encodeDeviceInfo(m.opts.Info), nil
	case cmdGetSysInfo:
		return encodeSysInfo(m.opts.Sys), nil
	case cmdGetChargeInfo:
		if m.state == StateCharging {
			m.tick()
		}
		return encodeChargeInfo(m.snapshot()), nil
	case cmdSetCycleTime:
		if len(p) < 1 {
			return []byte{1}, nil
		}
		m.opts.Sys.CycleTime = int(p[0])
	case cmdSetTimeLimit:
		if len(p) < 3 {
			return []byte{1}, nil
		}
		m.opts.Sys.TimeLimitOn = p[0] != 0
		m.opts.Sys.TimeLimit = getU16(p[1:3])
	case cmdSetCapacityLimit:
		if len(p) < 3 {
			return []byte{1}, nil
		}
		m.opts.Sys.CapLimitOn = p[0] != 0
		m.opts.Sys.CapLimit = getU16(p[1:3])
	case cmdSetTempLimit:
		if len(p) < 1 {
			return []byte{1}, nil
		}
		m.opts.Sys.TempLimit = int(p[0])
	case cmdSetBuzzers:
		if len(p) < 2 {
			return []byte{1}, nil
		}
		m.opts.Sys.SystemBuzzer = p[0] != 0
		m.opts.Sys.KeyBuzzer = p[1] != 0
	case cmdStartCharging:
		prof, err := decodeProfile(p)
		if err != nil {
			return []byte{0x0f}, nil
		}
		if m.cellsPresent(prof) != prof.CellCount && prof.BatteryType.IsLi() {
			return []byte{0x04}, nil
		}
		m.start(prof)
	case cmdStopCharging:
		m.state = StateIdle
		m.errCode = 0
	default:
		logrus.Debugf("mock charger ignores command 0x%02x", cmd)
		return []byte{1}, nil
	}
	return []byte{0}, nil
}

func (m *Mock) cellsPresent(p ChargeProfile) int {
	if m.opts.CellsPresent > 0 {
		return m.opts.CellsPresent
	}
	return p.CellCount
}

func (m *Mock) discharging() bool {
	switch m.profile.Mode {
	case LiDischarge, NiDischarge, PbDischarge:
		return true
	}
	return false
}

func (m *Mock) start(p ChargeProfile) {
	m.profile = p
	m.state = StateCharging
	m.errCode = 0
	m.elapsed = 0
	m.capacity = 0
	if m.discharging() {
		m.cellMV = p.CellDischargeVoltage + 700
	} else {
		m.cellMV = p.EndVoltage * 88 / 100
	}
}

func (m *Mock) tick() {
	m.elapsed++

	if m.opts.FaultAt > 0 && m.elapsed >= m.opts.FaultAt {
		m.state = StateError
		m.errCode = m.opts.FaultCode
		return
	}

	m.capacity += float64(m.current()) / 3600

	if m.discharging() {
		m.cellMV -= 10
		if m.cellMV <= m.profile.CellDischargeVoltage {
			m.cellMV = m.profile.CellDischargeVoltage
			m.state = StateComplete
		}
		return
	}

	step := (m.profile.EndVoltage - m.profile.EndVoltage*88/100) / 60
	if step < 1 {
		step = 1
	}
	m.cellMV += step
	if m.cellMV >= m.profile.EndVoltage {
		m.cellMV = m.profile.EndVoltage
		m.state = StateComplete
	}
	if m.opts.Sys.CapLimitOn && int(m.capacity) >= m.opts.Sys.CapLimit {
		m.state = StateComplete
	}
}

func (m *Mock) current() int {
	if m.discharging() {
		return m.profile.DischargeCurrent
	}
	// Soft start over the first three seconds.
	if m.elapsed < 3 {
		return m.profile.ChargeCurrent * m.elapsed / 3
	}
	return m.profile.ChargeCurrent
}

func (m *Mock) snapshot() ChargeInfo {
	info := ChargeInfo{
		State:     m.state,
		ErrorCode: m.errCode,
	}
	if m.state == StateIdle {
		return info
	}

	cells := m.cellsPresent(m.profile)
	info.Capacity = int(m.capacity)
	info.Time = m.elapsed
	info.Current = m.current()
	info.Voltage = m.cellMV * cells
	info.TempExt = m.opts.ExternalTemp
	info.TempInt = 25 + m.elapsed/30
	if info.TempInt > 45 {
		info.TempInt = 45
	}
	info.Impedance = 12
	for i := 0; i < MaxCells && i < cells; i++ {
		info.Cells[i] = m.cellMV + 3*i
	}
	return info
}
