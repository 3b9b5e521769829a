package daemon

import (
	"errors"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/chargeguru/chargeguru/pkg/b6"
	"github.com/chargeguru/chargeguru/pkg/events"
	"github.com/chargeguru/chargeguru/pkg/form"
	"github.com/chargeguru/chargeguru/pkg/session"
	"github.com/chargeguru/chargeguru/pkg/types"
)

// maxTransportFailures is how many requests in a row may fail before the
// handle is dropped and the charger rediscovered.
const maxTransportFailures = 3

// idleReportsToStop is how many idle reports in a row end a running cycle.
const idleReportsToStop = 2

var (
	ErrNotConnected    = errors.New("charger is not connected")
	ErrAlreadyCharging = errors.New("a charge cycle is already running")
)

// deviceMu serializes every device call together with the state below. The
// poll loop and the HTTP handlers both take it.
var (
	deviceMu  = &sync.Mutex{}
	dev       *b6.Device
	sysInfo   b6.SysInfo
	lastInfo  *b6.ChargeInfo
	sess      = session.New(b6.MaxCells)
	formCtl   = form.NewController(form.DefaultState())
	lastError string
	failures  int
	// idleReports counts idle reports in a row while the charging flag is set.
	idleReports int
)

// openConn finds the charger on the configured transport.
var openConn = func() (b6.Conn, error) {
	return nil, b6.ErrNotFound
}

func now() int64 { return time.Now().Unix() }

// connectLocked opens the charger and loads its settings and charge state.
// A failure leaves dev unset so the next tick tries again.
func connectLocked() {
	conn, err := openConn()
	if err != nil {
		logrus.WithError(err).Debug("charger not found")
		return
	}
	d, err := b6.Open(conn)
	if err != nil {
		logrus.WithError(err).Debug("charger did not identify itself")
		return
	}

	dev = d
	failures = 0
	idleReports = 0
	lastError = ""
	lastInfo = nil
	formCtl.SetMaxCells(d.CellCount())
	sess = session.New(d.CellCount())

	logrus.WithFields(logrus.Fields{
		"core":  d.CoreType(),
		"hw":    fmt.Sprintf("%.2f", d.HWVersion()),
		"sw":    fmt.Sprintf("%.2f", d.SWVersion()),
		"cells": d.CellCount(),
	}).Info("charger connected")
	hub.Publish(events.DeviceConnected, events.DeviceEvent{
		CoreType:  d.CoreType(),
		HWVersion: d.HWVersion(),
		SWVersion: d.SWVersion(),
		Cells:     d.CellCount(),
		Ts:        now(),
	})

	if _, err := loadSysInfoLocked(); err != nil {
		return
	}
	queryChargeStateLocked()
}

// queryChargeStateLocked reads the charge state while no cycle is known and
// follows a cycle started on the charger. A fault left over from an earlier
// cycle is only recorded.
func queryChargeStateLocked() {
	info, err := dev.ChargeInfo()
	if err != nil {
		if b6.IsChargingError(err) {
			failures = 0
			lastInfo = &info
			return
		}
		noteFailure("query charge state", err)
		return
	}
	failures = 0
	lastInfo = &info
	if info.State == b6.StateCharging {
		loadChargeInfoLocked()
	}
}

// dropDeviceLocked closes the handle. A cycle still running on the charger is
// picked up as a new session after reconnecting.
func dropDeviceLocked(reason string) {
	if dev == nil {
		return
	}
	if err := dev.Close(); err != nil {
		logrus.WithError(err).Debug("failed to close charger")
	}
	dev = nil
	failures = 0
	formCtl.SetCharging(false)

	logrus.WithField("reason", reason).Warn("charger disconnected")
	hub.Publish(events.DeviceDisconnected, events.DeviceEvent{Reason: reason, Ts: now()})
}

// noteFailure records a failed request without touching the display state.
func noteFailure(op string, err error) {
	lastError = fmt.Sprintf("%s: %v", op, err)
	failures++

	logrus.WithError(err).WithFields(logrus.Fields{
		"op":       op,
		"failures": failures,
	}).Warn("charger request failed")
	hub.Publish(events.DeviceWarning, events.WarningEvent{Op: op, Message: err.Error(), Ts: now()})

	if failures >= maxTransportFailures {
		dropDeviceLocked(fmt.Sprintf("%d failed requests in a row", failures))
	}
}

func loadSysInfoLocked() (b6.SysInfo, error) {
	if dev == nil {
		return b6.SysInfo{}, ErrNotConnected
	}
	s, err := dev.SysInfo()
	if err != nil {
		noteFailure("load system settings", err)
		return b6.SysInfo{}, pkgerrors.Wrap(err, "failed to load system settings")
	}
	failures = 0
	sysInfo = s
	sess.SetCapacityCeiling(s.CapLimitOn, s.CapLimit)
	return s, nil
}

// saveSysInfoLocked pushes every writable setting. The capacity chart
// follows the new capacity limit.
func saveSysInfoLocked(s b6.SysInfo) error {
	if dev == nil {
		return ErrNotConnected
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"time limit", func() error { return dev.SetTimeLimit(s.TimeLimitOn, s.TimeLimit) }},
		{"capacity limit", func() error { return dev.SetCapacityLimit(s.CapLimitOn, s.CapLimit) }},
		{"temperature limit", func() error { return dev.SetTempLimit(s.TempLimit) }},
		{"cycle time", func() error { return dev.SetCycleTime(s.CycleTime) }},
		{"buzzers", func() error { return dev.SetBuzzers(s.SystemBuzzer, s.KeyBuzzer) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			lastError = fmt.Sprintf("save %s: %v", step.name, err)
			return pkgerrors.Wrapf(err, "failed to save %s", step.name)
		}
	}

	s.LowDCLimit = sysInfo.LowDCLimit
	s.InputVoltage = sysInfo.InputVoltage
	sysInfo = s
	sess.SetCapacityCeiling(s.CapLimitOn, s.CapLimit)

	logrus.WithFields(logrus.Fields{
		"timeLimit":    s.TimeLimit,
		"timeLimitOn":  s.TimeLimitOn,
		"capLimit":     s.CapLimit,
		"capLimitOn":   s.CapLimitOn,
		"tempLimit":    s.TempLimit,
		"cycleTime":    s.CycleTime,
		"systemBuzzer": s.SystemBuzzer,
		"keyBuzzer":    s.KeyBuzzer,
	}).Info("system settings saved")
	return nil
}

// beginSessionLocked replaces the session with an empty one scaled to the
// current form setpoints.
func beginSessionLocked() {
	cells := b6.MaxCells
	if dev != nil {
		cells = dev.CellCount()
	}
	sess = session.New(cells)
	idleReports = 0
	sess.PresetAxes(formCtl.AxisPresets())
	sess.SetCapacityCeiling(sysInfo.CapLimitOn, sysInfo.CapLimit)
}

func chargeEvent() events.ChargeEvent {
	st := formCtl.State()
	ev := events.ChargeEvent{
		Session: sess.ID.String(),
		Battery: st.BatteryType.String(),
		Ts:      now(),
	}
	if st.Mode != nil {
		ev.Mode = st.Mode.String()
	}
	return ev
}

// loadChargeInfoLocked reads telemetry and feeds the session while charging.
func loadChargeInfoLocked() {
	info, err := dev.ChargeInfo()
	if err != nil {
		var ce *b6.ChargingError
		if !errors.As(err, &ce) {
			noteFailure("load charge info", err)
			return
		}
		failures = 0
		lastInfo = &info
		lastError = ce.Error()

		logrus.WithFields(logrus.Fields{
			"code":    ce.Code,
			"session": sess.ID.String(),
		}).Errorf("charging error: %s", ce.Error())
		ev := chargeEvent()
		ev.Message = ce.Error()
		ev.Code = ce.Code
		hub.Publish(events.ChargeError, ev)

		if err := stopLocked(); err != nil {
			logrus.WithError(err).Error("failed to stop charging after a charging error")
		}
		return
	}

	failures = 0
	lastInfo = &info
	charging := formCtl.Charging()

	switch info.State {
	case b6.StateCharging:
		idleReports = 0
		if !charging {
			beginSessionLocked()
			formCtl.SetCharging(true)

			logrus.WithField("session", sess.ID.String()).Info("found a charge cycle started on the charger")
			ev := chargeEvent()
			ev.External = true
			hub.Publish(events.ChargeStarted, ev)
		}
	case b6.StateComplete:
		if charging {
			formCtl.SetCharging(false)
			elapsed := session.FormatElapsed(info.Time)

			logrus.WithFields(logrus.Fields{
				"elapsed":  elapsed,
				"capacity": info.Capacity,
				"session":  sess.ID.String(),
			}).Info("charging complete")
			ev := chargeEvent()
			ev.Elapsed = elapsed
			ev.Capacity = info.Capacity
			hub.Publish(events.ChargeComplete, ev)
		}
		return
	default:
		if !charging {
			return
		}
		idleReports++
		if idleReports < idleReportsToStop {
			logrus.WithFields(logrus.Fields{
				"state":   info.State,
				"session": sess.ID.String(),
			}).Debug("charger reports idle during a cycle")
			return
		}
		idleReports = 0
		formCtl.SetCharging(false)
		logrus.WithField("session", sess.ID.String()).Info("charge cycle stopped on the charger")
		ev := chargeEvent()
		ev.External = true
		ev.Message = "stopped on the charger"
		hub.Publish(events.ChargeStopped, ev)
		return
	}

	sess.Observe(info)
	printStatus(info)
	hub.Publish(events.Telemetry, types.TelemetryEvent{
		Session: sess.ID.String(),
		Info:    info,
		Readout: session.NewReadout(info, sess.CellCount()),
	})
}

// startLocked starts a cycle from the form. The charts are reset before the
// start command and the charging flag is only set when it succeeds.
func startLocked() error {
	if dev == nil {
		return ErrNotConnected
	}
	if formCtl.Charging() {
		return ErrAlreadyCharging
	}

	st := formCtl.State()
	defaults, err := dev.DefaultChargeProfile(st.BatteryType)
	if err != nil {
		return newBadRequest(err)
	}
	profile, err := formCtl.Profile(defaults)
	if err != nil {
		return newBadRequest(err)
	}
	if err := profile.Validate(dev.CellCount()); err != nil {
		return newBadRequest(err)
	}

	beginSessionLocked()

	if err := dev.StartCharging(profile); err != nil {
		lastError = fmt.Sprintf("start charging: %v", err)
		var ce *b6.ChargingError
		if errors.As(err, &ce) {
			ev := chargeEvent()
			ev.Message = ce.Error()
			ev.Code = ce.Code
			hub.Publish(events.ChargeError, ev)
		}
		return pkgerrors.Wrap(err, "failed to start charging")
	}
	formCtl.SetCharging(true)
	lastError = ""

	logrus.WithFields(logrus.Fields{
		"session":       sess.ID.String(),
		"battery":       profile.BatteryType.String(),
		"mode":          profile.Mode.String(),
		"cells":         profile.CellCount,
		"chargeCurrent": profile.ChargeCurrent,
		"endVoltage":    profile.EndVoltage,
	}).Info("charging started")
	hub.Publish(events.ChargeStarted, chargeEvent())

	cacheForm()
	return nil
}

// stopLocked stops the cycle. The charging flag is left alone when the
// command fails.
func stopLocked() error {
	if dev == nil {
		return ErrNotConnected
	}
	if err := dev.StopCharging(); err != nil {
		lastError = fmt.Sprintf("stop charging: %v", err)
		return pkgerrors.Wrap(err, "failed to stop charging")
	}
	formCtl.SetCharging(false)

	logrus.WithField("session", sess.ID.String()).Info("charging stopped")
	hub.Publish(events.ChargeStopped, chargeEvent())
	return nil
}

// preflightLocked is the condition for a scheduled start.
func preflightLocked() error {
	if dev == nil {
		return ErrNotConnected
	}
	if formCtl.Charging() {
		return ErrAlreadyCharging
	}
	return nil
}

func startCharging() error {
	deviceMu.Lock()
	defer deviceMu.Unlock()
	return startLocked()
}

func stopCharging() error {
	deviceMu.Lock()
	defer deviceMu.Unlock()
	return stopLocked()
}

func loadSysInfo() (b6.SysInfo, error) {
	deviceMu.Lock()
	defer deviceMu.Unlock()
	return loadSysInfoLocked()
}

func saveSysInfo(s b6.SysInfo) error {
	deviceMu.Lock()
	defer deviceMu.Unlock()
	return saveSysInfoLocked(s)
}

func defaultProfile(t b6.BatteryType) (b6.ChargeProfile, error) {
	deviceMu.Lock()
	defer deviceMu.Unlock()
	if dev == nil {
		return b6.DefaultProfile(t)
	}
	return dev.DefaultChargeProfile(t)
}

func currentSnapshot() session.Snapshot {
	deviceMu.Lock()
	s := sess
	deviceMu.Unlock()
	return s.Snapshot()
}

func status() types.Status {
	deviceMu.Lock()
	defer deviceMu.Unlock()

	st := types.Status{
		Connected:        dev != nil,
		Transport:        conf.Transport(),
		Charging:         formCtl.Charging(),
		Session:          sess.ID.String(),
		SessionStartedAt: sess.StartedAt,
		LastError:        lastError,
		Enablement:       formCtl.Enablement(),
		LastPoll:         pollRecorder.GetLastRecord(),
		RecentPolls:      pollRecorder.GetRecordsIn(time.Minute),
	}
	if dev != nil {
		info := dev.Info()
		st.Device = &info
	}
	if lastInfo != nil {
		st.State = lastInfo.State
		r := session.NewReadout(*lastInfo, sess.CellCount())
		st.Readout = &r
	}
	st.StateLabel = b6.StateName(st.State)
	return st
}

// badRequest marks errors caused by the request rather than the charger.
type badRequest struct{ error }

func newBadRequest(err error) error { return badRequest{err} }

func (e badRequest) Unwrap() error { return e.error }
