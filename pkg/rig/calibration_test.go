package rig

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestMotorCalibration_ToRadians(t *testing.T) {
	cal := MotorCalibration{}

	tests := []struct {
		fam      Family
		raw      int
		expected float64
	}{
		{FamilySTS, 2048, 0},           // center
		{FamilySTS, 3072, math.Pi / 2}, // quarter turn
		{FamilySTS, 1024, -math.Pi / 2},
		{FamilySCS, 512, 0},
		{FamilySCS, 512 + 1024/2, math.Pi * 150 / 180}, // half the 300° span
	}

	for _, tt := range tests {
		got := cal.ToRadians(tt.fam, tt.raw)
		if math.Abs(got-tt.expected) > 0.001 {
			t.Errorf("ToRadians(%s, %d) = %f, want %f", tt.fam, tt.raw, got, tt.expected)
		}
	}
}

func TestMotorCalibration_ToSteps(t *testing.T) {
	cal := MotorCalibration{}

	tests := []struct {
		fam      Family
		rad      float64
		expected int
	}{
		{FamilySTS, 0, 2048},
		{FamilySTS, math.Pi / 2, 3072},
		{FamilySTS, 10, 4095}, // clamped
		{FamilySTS, -10, 0},   // clamped
		{FamilySCS, 0, 512},
	}

	for _, tt := range tests {
		got := cal.ToSteps(tt.fam, tt.rad)
		if got != tt.expected {
			t.Errorf("ToSteps(%s, %f) = %d, want %d", tt.fam, tt.rad, got, tt.expected)
		}
	}
}

func TestMotorCalibration_RoundTrip(t *testing.T) {
	cal := MotorCalibration{HomingOffset: 37, DriveMode: 1}

	for _, fam := range []Family{FamilySTS, FamilySCS} {
		for raw := 100; raw <= fam.MaxStep()-100; raw += 97 {
			rad := cal.ToRadians(fam, raw)
			back := cal.ToSteps(fam, rad)
			if back != raw {
				t.Errorf("%s round-trip failed: %d -> %f -> %d", fam, raw, rad, back)
			}
		}
	}
}

func TestMotorCalibration_InRange(t *testing.T) {
	cal := MotorCalibration{RangeMin: -1, RangeMax: 1}

	tests := []struct {
		rad  float64
		want bool
	}{
		{0, true},
		{-1, true},
		{1, true},
		{1.0001, false},
		{-2, false},
		{math.NaN(), false},
		{math.Inf(1), false},
		{math.Inf(-1), false},
	}
	for _, tt := range tests {
		if got := cal.InRange(tt.rad); got != tt.want {
			t.Errorf("InRange(%f) = %v, want %v", tt.rad, got, tt.want)
		}
	}

	unbounded := MotorCalibration{}
	for _, rad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if unbounded.InRange(rad) {
			t.Errorf("unbounded range accepted %f", rad)
		}
	}
	if !unbounded.InRange(1e6) {
		t.Error("unbounded range should accept any finite value")
	}
}

func TestCalibration_MotorIDs(t *testing.T) {
	cal := DefaultCalibration(MustActuatorMap(VariantMixed))

	ids := cal.MotorIDs()
	expected := []int{11, 21, 22, 1, 2, 3, 4, 5, 6}

	if len(ids) != len(expected) {
		t.Fatalf("MotorIDs returned %d IDs, want %d", len(ids), len(expected))
	}

	for i, id := range ids {
		if id != expected[i] {
			t.Errorf("MotorIDs()[%d] = %d, want %d", i, id, expected[i])
		}
	}
}

func TestCalibration_ByID(t *testing.T) {
	cal := Calibration{
		BodyRotation: MotorCalibration{ID: 11, RangeMin: -3, RangeMax: 3},
		Stewart6:     MotorCalibration{ID: 6, RangeMin: -1, RangeMax: 1},
	}

	name, mc, ok := cal.ByID(11)
	if !ok {
		t.Fatal("ByID(11) returned false")
	}
	if name != BodyRotation {
		t.Errorf("ByID(11) returned name %s, want body_rotation", name)
	}
	if mc.RangeMin != -3 {
		t.Errorf("ByID(11) returned wrong calibration: %+v", mc)
	}

	_, _, ok = cal.ByID(99)
	if ok {
		t.Error("ByID(99) should return false")
	}
}

func TestCalibration_Check(t *testing.T) {
	m := MustActuatorMap(VariantSingle)

	cal := DefaultCalibration(m)
	if err := cal.Check(m); err != nil {
		t.Fatalf("default calibration rejected: %v", err)
	}

	bad := DefaultCalibration(m)
	mc := bad[AntennaLeft]
	mc.ID = 42
	bad[AntennaLeft] = mc
	if err := bad.Check(m); err == nil {
		t.Error("mismatched ID should be rejected")
	}

	missing := DefaultCalibration(m)
	delete(missing, Stewart3)
	if err := missing.Check(m); err == nil {
		t.Error("missing motor should be rejected")
	}
}

func TestLoadCalibration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.json")
	data := `{"body_rotation": {"id": 11, "drive_mode": 1, "homing_offset": -12, "range_min": -2.5, "range_max": 2.5}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cal, err := LoadCalibration(path)
	if err != nil {
		t.Fatalf("LoadCalibration: %v", err)
	}
	got := cal[BodyRotation]
	want := MotorCalibration{ID: 11, DriveMode: 1, HomingOffset: -12, RangeMin: -2.5, RangeMax: 2.5}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if _, err := LoadCalibration(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("missing file should fail")
	}
}
