package b6

import (
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a single request/answer round trip.
const DefaultTimeout = 500 * time.Millisecond

// Conn moves fixed size reports between host and charger.
type Conn interface {
	WriteReport(r []byte) error
	ReadReport(timeout time.Duration) ([]byte, error)
	Close() error
}

// Device is an open charger. Calls are serialized.
type Device struct {
	conn    Conn
	info    DeviceInfo
	timeout time.Duration

	mu *sync.Mutex
}

// Open performs the identification handshake on conn. The connection is
// closed if the handshake fails.
func Open(conn Conn) (*Device, error) {
	d := &Device{
		conn:    conn,
		timeout: DefaultTimeout,
		mu:      &sync.Mutex{},
	}

	p, err := d.transact(cmdGetDevInfo, nil, devInfoSize)
	if err != nil {
		_ = conn.Close()
		return nil, pkgerrors.Wrap(err, "failed to read device info")
	}
	info, err := decodeDeviceInfo(p)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	d.info = info

	logrus.WithFields(logrus.Fields{
		"core":  info.CoreType,
		"hw":    info.HWVersion,
		"sw":    info.SWVersion,
		"cells": info.CellCount,
	}).Debug("charger opened")

	return d, nil
}

// Close closes the underlying connection.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.Close()
}

// Info returns the identification read during Open.
func (d *Device) Info() DeviceInfo { return d.info }

// CoreType returns the charger's core identifier.
func (d *Device) CoreType() string { return d.info.CoreType }

// HWVersion returns the hardware version.
func (d *Device) HWVersion() float64 { return d.info.HWVersion }

// SWVersion returns the firmware version.
func (d *Device) SWVersion() float64 { return d.info.SWVersion }

// CellCount returns the number of cells the charger can balance.
func (d *Device) CellCount() int { return d.info.CellCount }

func (d *Device) transact(cmd uint8, payload []byte, wantSize int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"cmd":     cmd,
		"payload": payload,
	}).Trace("Trying to send command to charger")

	r, err := encodeReport(cmd, payload)
	if err != nil {
		return nil, err
	}
	if err := d.conn.WriteReport(r); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to write command 0x%02x", cmd)
	}

	ans, err := d.conn.ReadReport(d.timeout)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read answer to command 0x%02x", cmd)
	}

	gotCmd, p, err := decodeReport(ans)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid answer to command 0x%02x", cmd)
	}
	if gotCmd != cmd {
		return nil, pkgerrors.Wrapf(ErrBadPacket, "answer to command 0x%02x carries command 0x%02x", cmd, gotCmd)
	}
	if len(p) < wantSize {
		return nil, pkgerrors.Wrapf(ErrBadPacket, "answer to command 0x%02x has %d bytes, want %d", cmd, len(p), wantSize)
	}

	logrus.WithFields(logrus.Fields{
		"cmd":     cmd,
		"payload": p,
	}).Trace("Charger answered")

	return p, nil
}

func (d *Device) command(cmd uint8, payload []byte) error {
	p, err := d.transact(cmd, payload, ackSize)
	if err != nil {
		return err
	}
	if p[0] != 0 {
		return pkgerrors.Errorf("charger rejected command 0x%02x with status 0x%02x", cmd, p[0])
	}
	return nil
}

// SysInfo reads the system settings.
func (d *Device) SysInfo() (SysInfo, error) {
	p, err := d.transact(cmdGetSysInfo, nil, sysInfoSize)
	if err != nil {
		return SysInfo{}, err
	}
	return decodeSysInfo(p)
}

// SetCycleTime sets the rest time between cycles, in minutes.
func (d *Device) SetCycleTime(minutes int) error {
	return d.command(cmdSetCycleTime, []byte{uint8(minutes)})
}

// SetTimeLimit sets the safety timer, in minutes.
func (d *Device) SetTimeLimit(on bool, minutes int) error {
	p := make([]byte, 3)
	p[0] = boolByte(on)
	putU16(p[1:3], minutes)
	return d.command(cmdSetTimeLimit, p)
}

// SetCapacityLimit sets the capacity cut-off, in mAh.
func (d *Device) SetCapacityLimit(on bool, mAh int) error {
	p := make([]byte, 3)
	p[0] = boolByte(on)
	putU16(p[1:3], mAh)
	return d.command(cmdSetCapacityLimit, p)
}

// SetTempLimit sets the temperature cut-off, in °C.
func (d *Device) SetTempLimit(celsius int) error {
	return d.command(cmdSetTempLimit, []byte{uint8(celsius)})
}

// SetBuzzers switches the system and key buzzers.
func (d *Device) SetBuzzers(system, key bool) error {
	return d.command(cmdSetBuzzers, []byte{boolByte(system), boolByte(key)})
}

// ChargeInfo reads one telemetry snapshot. A fault declared by the charger
// is returned as *ChargingError together with the snapshot.
func (d *Device) ChargeInfo() (ChargeInfo, error) {
	p, err := d.transact(cmdGetChargeInfo, nil, chargeInfoSize)
	if err != nil {
		return ChargeInfo{}, err
	}
	info, err := decodeChargeInfo(p)
	if err != nil {
		return ChargeInfo{}, err
	}
	if info.State == StateError {
		return info, &ChargingError{Code: info.ErrorCode}
	}
	return info, nil
}

// DefaultChargeProfile returns the factory profile for t, limited to the
// cells this charger supports.
func (d *Device) DefaultChargeProfile(t BatteryType) (ChargeProfile, error) {
	p, err := DefaultProfile(t)
	if err != nil {
		return ChargeProfile{}, err
	}
	if p.CellCount > d.info.CellCount {
		p.CellCount = d.info.CellCount
	}
	return p, nil
}

// StartCharging starts a cycle with profile p.
func (d *Device) StartCharging(p ChargeProfile) error {
	if err := p.Validate(d.info.CellCount); err != nil {
		return pkgerrors.Wrap(err, "invalid charge profile")
	}

	ans, err := d.transact(cmdStartCharging, encodeProfile(p), ackSize)
	if err != nil {
		return err
	}
	if ans[0] != 0 {
		return &ChargingError{Code: ans[0]}
	}
	return nil
}

// StopCharging stops the running cycle.
func (d *Device) StopCharging() error {
	return d.command(cmdStopCharging, nil)
}
