package b6

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeReportFraming(t *testing.T) {
	r, err := encodeReport(cmdSetBuzzers, []byte{0x01, 0x00})
	if err != nil {
		t.Fatalf("encodeReport() error = %v", err)
	}
	if len(r) != ReportSize {
		t.Fatalf("len = %d, want %d", len(r), ReportSize)
	}

	want := []byte{0x0f, 0x05, 0x15, 0x00, 0x01, 0x00, 0x16, 0xff, 0xff}
	for i, b := range want {
		if r[i] != b {
			t.Errorf("r[%d] = 0x%02x, want 0x%02x", i, r[i], b)
		}
	}
}

func TestDecodeReport(t *testing.T) {
	good, _ := encodeReport(cmdGetSysInfo, []byte{1, 2, 3})

	badChecksum := append([]byte(nil), good...)
	badChecksum[7] ^= 0xff

	badMagic := append([]byte(nil), good...)
	badMagic[0] = 0x00

	badLen := append([]byte(nil), good...)
	badLen[1] = 0xfe

	tests := []struct {
		name    string
		in      []byte
		wantErr error
	}{
		{name: "valid", in: good},
		{name: "short", in: []byte{0x0f, 0x03}, wantErr: ErrBadPacket},
		{name: "checksum", in: badChecksum, wantErr: ErrChecksum},
		{name: "magic", in: badMagic, wantErr: ErrBadPacket},
		{name: "length", in: badLen, wantErr: ErrBadPacket},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, p, err := decodeReport(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("decodeReport() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeReport() error = %v", err)
			}
			if cmd != cmdGetSysInfo || len(p) != 3 || p[2] != 3 {
				t.Errorf("decodeReport() = 0x%02x %v", cmd, p)
			}
		})
	}
}

func TestDecodeDeviceInfoFallsBackToSixCells(t *testing.T) {
	p := encodeDeviceInfo(DeviceInfo{CoreType: "1000", CellCount: 0})
	info, err := decodeDeviceInfo(p)
	if err != nil {
		t.Fatalf("decodeDeviceInfo() error = %v", err)
	}
	if info.CoreType != "1000" {
		t.Errorf("CoreType = %q", info.CoreType)
	}
	if info.CellCount != 6 {
		t.Errorf("CellCount = %d, want 6", info.CellCount)
	}
}

func TestChargeProfileJSONUsesModeNames(t *testing.T) {
	p := ChargeProfile{BatteryType: NiMH, Mode: NiRepeak, CellCount: 4, RepeakCount: 2}

	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var raw map[string]any
	_ = json.Unmarshal(b, &raw)
	if raw["batteryType"] != "Ni-Mh" || raw["mode"] != "Re-peak" {
		t.Errorf("unexpected encoding %s", b)
	}

	var back ChargeProfile
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Mode != NiRepeak || back.CellCount != 4 {
		t.Errorf("decoded %+v", back)
	}

	if err := json.Unmarshal([]byte(`{"batteryType":"Pb","mode":"Storage"}`), &back); err == nil {
		t.Errorf("expected an error for a Li mode on a Pb battery")
	}
}

func TestParseBatteryType(t *testing.T) {
	tests := map[string]BatteryType{
		"Li-Po":  LiPo,
		"lipo":   LiPo,
		"LI-ION": LiIon,
		"ni mh":  NiMH,
		"Pb":     Pb,
	}
	for in, want := range tests {
		got, err := ParseBatteryType(in)
		if err != nil || got != want {
			t.Errorf("ParseBatteryType(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseBatteryType("lead"); err == nil {
		t.Errorf("ParseBatteryType(lead) should fail")
	}
}
