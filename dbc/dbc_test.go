package dbc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pithecene-io/canmill/decode"
	"github.com/pithecene-io/canmill/types"
)

const fixture = `VERSION "1.0"

NS_ :
	CM_
	BA_DEF_
	BA_
	VAL_
	SIG_VALTYPE_

BS_:

BU_: ECU GATEWAY

BO_ 692 PowertrainData: 8 ECU
 SG_ odometer : 0|32@1+ (1,0) [0|4294967295] "km" GATEWAY
 SG_ coolant_temp : 32|8@1+ (0.1,-40) [-40|120] "degC" GATEWAY

BO_ 256 ChassisStatus: 8 ECU
 SG_ wheel_speed_fl : 7|16@0+ (0.01,0) [0|655.35] "km/h" GATEWAY
 SG_ gear : 23|4@0- (1,0) [-8|7] "" GATEWAY

BO_ 2566844672 DiagBroadcast: 8 GATEWAY
 SG_ supply_voltage : 0|32@1+ (1,0) [0|0] "V" GATEWAY

BO_ 512 MuxedSensor: 8 ECU
 SG_ selector M : 0|8@1+ (1,0) [0|255] "" GATEWAY
 SG_ reading m0 : 8|16@1+ (1,0) [0|65535] "" GATEWAY

VAL_ 256 gear 0 "neutral" 1 "first" 2 "second" ;

SIG_VALTYPE_ 2566844672 supply_voltage : 1 ;
`

func parseFixture(t *testing.T) *File {
	t.Helper()
	file, err := Parse("fixture.dbc", []byte(fixture))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	return file
}

func TestParse_Messages(t *testing.T) {
	file := parseFixture(t)

	if file.Version != "1.0" {
		t.Errorf("Version = %q, want %q", file.Version, "1.0")
	}
	if file.Layout.Len() != 3 {
		t.Errorf("Layout.Len() = %d, want 3 (multiplexed message excluded)", file.Layout.Len())
	}
	if len(file.Multiplexed) != 1 || file.Multiplexed[0] != "MuxedSensor" {
		t.Errorf("Multiplexed = %v, want [MuxedSensor]", file.Multiplexed)
	}

	msg, ok := file.Layout.Lookup(0x2B4)
	if !ok {
		t.Fatal("Lookup(0x2B4) = not found")
	}
	if msg.Name != "PowertrainData" || msg.Length != 8 || msg.Sender != "ECU" || msg.Extended {
		t.Errorf("PowertrainData = %+v, want name/length/sender = PowertrainData/8/ECU, standard ID", msg)
	}
	if len(msg.Signals) != 2 {
		t.Fatalf("PowertrainData has %d signals, want 2", len(msg.Signals))
	}

	odo := msg.Signals[0]
	if odo.Name != "odometer" || odo.StartBit != 0 || odo.BitLength != 32 ||
		odo.ByteOrder != types.OrderLittleEndian || odo.Signed || odo.Scale != 1 || odo.Unit != "km" {
		t.Errorf("odometer = %+v", odo)
	}
	temp := msg.Signals[1]
	if temp.Scale != 0.1 || temp.Offset != -40 || temp.Unit != "degC" {
		t.Errorf("coolant_temp = %+v, want scale 0.1 offset -40 unit degC", temp)
	}
}

func TestParse_BigEndianAndLabels(t *testing.T) {
	file := parseFixture(t)

	msg, ok := file.Layout.Lookup(0x100)
	if !ok {
		t.Fatal("Lookup(0x100) = not found")
	}

	speed := msg.Signals[0]
	if speed.ByteOrder != types.OrderBigEndian || speed.StartBit != 7 || speed.BitLength != 16 {
		t.Errorf("wheel_speed_fl = %+v, want big endian 16 bits at start 7", speed)
	}
	if speed.Scale != 0.01 {
		t.Errorf("wheel_speed_fl.Scale = %v, want 0.01", speed.Scale)
	}

	gear := msg.Signals[1]
	if !gear.Signed {
		t.Error("gear.Signed = false, want true")
	}
	wantLabels := map[int64]string{0: "neutral", 1: "first", 2: "second"}
	if len(gear.Labels) != len(wantLabels) {
		t.Fatalf("gear.Labels = %v, want %v", gear.Labels, wantLabels)
	}
	for k, v := range wantLabels {
		if gear.Labels[k] != v {
			t.Errorf("gear.Labels[%d] = %q, want %q", k, gear.Labels[k], v)
		}
	}
}

func TestParse_ExtendedIDAndFloatOverride(t *testing.T) {
	file := parseFixture(t)

	msg, ok := file.Layout.Lookup(0x18FEF100)
	if !ok {
		t.Fatal("Lookup(0x18FEF100) = not found (extended flag not masked?)")
	}
	if !msg.Extended {
		t.Error("DiagBroadcast.Extended = false, want true")
	}
	if msg.Sender != "GATEWAY" {
		t.Errorf("DiagBroadcast.Sender = %q, want GATEWAY", msg.Sender)
	}
	if !msg.Signals[0].Float {
		t.Error("supply_voltage.Float = false, want true (SIG_VALTYPE_ override)")
	}
}

func TestParse_DecodeThroughLoadedLayout(t *testing.T) {
	file := parseFixture(t)
	d := decode.New(file.Layout)

	result := d.Decode(types.Frame{
		ID:        0x2B4,
		Timestamp: 1234567890.234567,
		Data:      []byte{0xAA, 0xBB, 0xCC, 0xDD},
	})
	if result.Status != types.StatusDecoded {
		t.Fatalf("Status = %q, want decoded (err: %+v)", result.Status, result.Err)
	}
	if result.Signals[0].Value != 3720130730.0 {
		t.Errorf("odometer = %v, want 3720130730", result.Signals[0].Value)
	}
	if result.Adjustment == nil || result.Adjustment.AdjustedLength != 8 {
		t.Errorf("Adjustment = %+v, want pad to 8", result.Adjustment)
	}
	// Padded tail decodes coolant_temp from zero bytes
	if result.Signals[1].Value != -40.0 {
		t.Errorf("coolant_temp = %v, want -40 (zero raw)", result.Signals[1].Value)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vehicle.dbc")
	if err := os.WriteFile(path, []byte(fixture), 0o644); err != nil {
		t.Fatal(err)
	}

	file, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if file.Layout.Len() != 3 {
		t.Errorf("Layout.Len() = %d, want 3", file.Layout.Len())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.dbc")); err == nil {
		t.Fatal("Load() on missing file: expected error, got nil")
	}
}

func TestParse_Garbage(t *testing.T) {
	if _, err := Parse("bad.dbc", []byte("not a dbc file at all {")); err == nil {
		t.Fatal("Parse() on garbage: expected error, got nil")
	}
}
