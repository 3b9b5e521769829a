package b6

import (
	"encoding/binary"

	pkgerrors "github.com/pkg/errors"
)

// ReportSize is the size of every report exchanged with the charger.
const ReportSize = 64

const (
	reportMagic = 0x0f
	reportTail  = 0xff

	// magic, len, cmd, 0x00 before the payload; checksum and two tail
	// bytes after it.
	headerSize  = 4
	trailerSize = 3

	maxPayload = ReportSize - headerSize - trailerSize
)

// Command codes.
const (
	cmdStartCharging    uint8 = 0x05
	cmdSetCycleTime     uint8 = 0x11
	cmdSetTimeLimit     uint8 = 0x12
	cmdSetCapacityLimit uint8 = 0x13
	cmdSetTempLimit     uint8 = 0x14
	cmdSetBuzzers       uint8 = 0x15
	cmdGetChargeInfo    uint8 = 0x55
	cmdGetDevInfo       uint8 = 0x57
	cmdGetSysInfo       uint8 = 0x5a
	cmdStopCharging     uint8 = 0xfe
)

// Payload sizes of device answers.
const (
	devInfoSize    = 17
	sysInfoSize    = 14
	chargeInfoSize = 14 + 2*MaxCells
	ackSize        = 1
)

func checksum(b []byte) uint8 {
	var sum uint8
	for _, v := range b {
		sum += v
	}
	return sum
}

// encodeReport frames a command and its payload into a fixed size report.
func encodeReport(cmd uint8, payload []byte) ([]byte, error) {
	if len(payload) > maxPayload {
		return nil, pkgerrors.Wrapf(ErrBadPacket, "payload of %d bytes exceeds %d", len(payload), maxPayload)
	}

	r := make([]byte, ReportSize)
	r[0] = reportMagic
	r[1] = uint8(len(payload) + 3)
	r[2] = cmd
	r[3] = 0x00
	copy(r[headerSize:], payload)

	end := headerSize + len(payload)
	r[end] = checksum(r[2:end])
	r[end+1] = reportTail
	r[end+2] = reportTail

	return r, nil
}

// decodeReport validates a report and returns its command and payload.
func decodeReport(r []byte) (uint8, []byte, error) {
	if len(r) < headerSize+trailerSize {
		return 0, nil, pkgerrors.Wrapf(ErrBadPacket, "report too short: %d bytes", len(r))
	}
	if r[0] != reportMagic {
		return 0, nil, pkgerrors.Wrapf(ErrBadPacket, "unexpected magic 0x%02x", r[0])
	}

	n := int(r[1]) - 3
	if n < 0 || headerSize+n+trailerSize > len(r) {
		return 0, nil, pkgerrors.Wrapf(ErrBadPacket, "invalid length byte %d", r[1])
	}

	end := headerSize + n
	if r[end] != checksum(r[2:end]) {
		return 0, nil, ErrChecksum
	}

	payload := make([]byte, n)
	copy(payload, r[headerSize:end])

	return r[2], payload, nil
}

func putU16(b []byte, v int) {
	if v < 0 {
		v = 0
	}
	if v > 0xffff {
		v = 0xffff
	}
	binary.BigEndian.PutUint16(b, uint16(v))
}

func getU16(b []byte) int {
	return int(binary.BigEndian.Uint16(b))
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func encodeDeviceInfo(info DeviceInfo) []byte {
	p := make([]byte, devInfoSize)
	copy(p[0:6], info.CoreType)
	binary.BigEndian.PutUint16(p[8:10], info.CustomerID)
	p[10] = info.LanguageID
	major := int(info.SWVersion)
	p[11] = uint8(major)
	p[12] = uint8(int((info.SWVersion-float64(major))*100 + 0.5))
	p[13] = uint8(info.HWVersion)
	p[15] = info.MachineID
	p[16] = uint8(info.CellCount)
	return p
}

func decodeDeviceInfo(p []byte) (DeviceInfo, error) {
	if len(p) < devInfoSize {
		return DeviceInfo{}, pkgerrors.Wrapf(ErrBadPacket, "device info payload too short: %d bytes", len(p))
	}

	core := p[0:6]
	for i, c := range core {
		if c == 0 {
			core = core[:i]
			break
		}
	}

	info := DeviceInfo{
		CoreType:   string(core),
		CustomerID: binary.BigEndian.Uint16(p[8:10]),
		LanguageID: p[10],
		SWVersion:  float64(p[11]) + float64(p[12])/100,
		HWVersion:  float64(p[13]),
		MachineID:  p[15],
		CellCount:  int(p[16]),
	}
	if info.CellCount == 0 || info.CellCount > MaxCells {
		info.CellCount = 6
	}

	return info, nil
}

func encodeSysInfo(s SysInfo) []byte {
	p := make([]byte, sysInfoSize)
	p[0] = uint8(s.CycleTime)
	p[1] = boolByte(s.TimeLimitOn)
	putU16(p[2:4], s.TimeLimit)
	p[4] = boolByte(s.CapLimitOn)
	putU16(p[5:7], s.CapLimit)
	p[7] = boolByte(s.KeyBuzzer)
	p[8] = boolByte(s.SystemBuzzer)
	putU16(p[9:11], s.LowDCLimit)
	p[11] = uint8(s.TempLimit)
	putU16(p[12:14], s.InputVoltage)
	return p
}

func decodeSysInfo(p []byte) (SysInfo, error) {
	if len(p) < sysInfoSize {
		return SysInfo{}, pkgerrors.Wrapf(ErrBadPacket, "system info payload too short: %d bytes", len(p))
	}
	return SysInfo{
		CycleTime:    int(p[0]),
		TimeLimitOn:  p[1] != 0,
		TimeLimit:    getU16(p[2:4]),
		CapLimitOn:   p[4] != 0,
		CapLimit:     getU16(p[5:7]),
		KeyBuzzer:    p[7] != 0,
		SystemBuzzer: p[8] != 0,
		LowDCLimit:   getU16(p[9:11]),
		TempLimit:    int(p[11]),
		InputVoltage: getU16(p[12:14]),
	}, nil
}

func encodeChargeInfo(c ChargeInfo) []byte {
	p := make([]byte, chargeInfoSize)
	p[0] = c.State
	p[1] = c.ErrorCode
	putU16(p[2:4], c.Capacity)
	putU16(p[4:6], c.Time)
	putU16(p[6:8], c.Voltage)
	putU16(p[8:10], c.Current)
	p[10] = uint8(c.TempExt)
	p[11] = uint8(c.TempInt)
	putU16(p[12:14], c.Impedance)
	for i := 0; i < MaxCells; i++ {
		putU16(p[14+2*i:16+2*i], c.Cells[i])
	}
	return p
}

func decodeChargeInfo(p []byte) (ChargeInfo, error) {
	if len(p) < chargeInfoSize {
		return ChargeInfo{}, pkgerrors.Wrapf(ErrBadPacket, "charge info payload too short: %d bytes", len(p))
	}
	c := ChargeInfo{
		State:     p[0],
		ErrorCode: p[1],
		Capacity:  getU16(p[2:4]),
		Time:      getU16(p[4:6]),
		Voltage:   getU16(p[6:8]),
		Current:   getU16(p[8:10]),
		TempExt:   int(p[10]),
		TempInt:   int(p[11]),
		Impedance: getU16(p[12:14]),
	}
	for i := 0; i < MaxCells; i++ {
		c.Cells[i] = getU16(p[14+2*i : 16+2*i])
	}
	return c, nil
}

const profileSize = 14

func encodeProfile(p ChargeProfile) []byte {
	b := make([]byte, profileSize)
	b[0] = uint8(p.BatteryType)
	b[1] = uint8(p.CellCount)
	if p.Mode != nil {
		b[2] = p.Mode.Code()
	}
	putU16(b[3:5], p.ChargeCurrent)
	putU16(b[5:7], p.DischargeCurrent)
	putU16(b[7:9], p.CellDischargeVoltage)
	putU16(b[9:11], p.EndVoltage)
	b[11] = uint8(p.RepeakCount)
	b[12] = uint8(p.CycleType)
	b[13] = uint8(p.CycleCount)
	return b
}

func decodeProfile(b []byte) (ChargeProfile, error) {
	if len(b) < profileSize {
		return ChargeProfile{}, pkgerrors.Wrapf(ErrBadPacket, "profile payload too short: %d bytes", len(b))
	}
	bt := BatteryType(b[0])
	if !bt.Valid() {
		return ChargeProfile{}, pkgerrors.Wrapf(ErrBadPacket, "invalid battery type %d", b[0])
	}
	mode, err := ModeFromCode(bt.Chemistry(), b[2])
	if err != nil {
		return ChargeProfile{}, pkgerrors.Wrap(ErrBadPacket, err.Error())
	}
	return ChargeProfile{
		BatteryType:          bt,
		Mode:                 mode,
		CellCount:            int(b[1]),
		ChargeCurrent:        getU16(b[3:5]),
		DischargeCurrent:     getU16(b[5:7]),
		CellDischargeVoltage: getU16(b[7:9]),
		EndVoltage:           getU16(b[9:11]),
		RepeakCount:          int(b[11]),
		CycleType:            int(b[12]),
		CycleCount:           int(b[13]),
	}, nil
}
