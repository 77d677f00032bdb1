package rig

import (
	"reflect"
	"testing"
)

func TestNewActuatorMap_Variants(t *testing.T) {
	tests := []struct {
		variant     Variant
		small       Family
		wantBatches int
	}{
		{VariantMixed, FamilySCS, 2},
		{VariantSingle, FamilySTS, 1},
	}

	for _, tt := range tests {
		m, err := NewActuatorMap(tt.variant, nil)
		if err != nil {
			t.Fatalf("NewActuatorMap(%s): %v", tt.variant, err)
		}
		if m.Body().Family != tt.small || m.Antennas().Family != tt.small {
			t.Errorf("%s: body/antenna family = %s/%s, want %s", tt.variant, m.Body().Family, m.Antennas().Family, tt.small)
		}
		if m.Platform().Family != FamilySTS {
			t.Errorf("%s: platform family = %s, want sts", tt.variant, m.Platform().Family)
		}
		if got := len(m.ReadPlan()); got != tt.wantBatches {
			t.Errorf("%s: ReadPlan has %d batches, want %d", tt.variant, got, tt.wantBatches)
		}
	}
}

func TestNewActuatorMap_Unknown(t *testing.T) {
	if _, err := NewActuatorMap("hexapod", nil); err == nil {
		t.Error("unknown variant should fail")
	}
}

func TestNewActuatorMap_DuplicateAddress(t *testing.T) {
	_, err := NewActuatorMap(VariantSingle, map[MotorName]int{AntennaLeft: 3})
	if err == nil {
		t.Error("duplicate bus address should fail")
	}
}

func TestActuatorMap_ReadPlanCoversVector(t *testing.T) {
	m := MustActuatorMap(VariantMixed)

	slots := make([]int, NumMotors)
	for i := range slots {
		slots[i] = -1
	}
	for _, batch := range m.ReadPlan() {
		if len(batch.IDs) != len(batch.Slots) {
			t.Fatalf("batch %s: %d ids, %d slots", batch.Family, len(batch.IDs), len(batch.Slots))
		}
		for i, slot := range batch.Slots {
			slots[slot] = batch.IDs[i]
		}
	}

	if !reflect.DeepEqual(slots, m.IDs()) {
		t.Errorf("read plan assembles %v, want %v", slots, m.IDs())
	}
	if want := []int{11, 21, 22, 1, 2, 3, 4, 5, 6}; !reflect.DeepEqual(m.IDs(), want) {
		t.Errorf("IDs() = %v, want %v", m.IDs(), want)
	}
}

func TestActuatorMap_Lookup(t *testing.T) {
	m := MustActuatorMap(VariantSingle)

	name, ok := m.MotorByID(22)
	if !ok || name != AntennaRight {
		t.Errorf("MotorByID(22) = %s, %v", name, ok)
	}
	if _, ok := m.MotorByID(99); ok {
		t.Error("MotorByID(99) should fail")
	}

	g, ok := m.Group(GroupPlatform)
	if !ok || len(g.IDs) != 6 {
		t.Errorf("Group(platform) = %+v, %v", g, ok)
	}
}

func TestReadBatch_GatherScatter(t *testing.T) {
	m := MustActuatorMap(VariantMixed)
	vector := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8}

	out := make([]float64, NumMotors)
	for _, batch := range m.ReadPlan() {
		batch.Scatter(out, batch.Gather(vector))
	}
	if !reflect.DeepEqual(out, vector) {
		t.Errorf("round trip = %v, want %v", out, vector)
	}

	plan := m.ReadPlan()
	if got := plan[0].Gather(vector); !reflect.DeepEqual(got, []float64{0, 1, 2}) {
		t.Errorf("scs batch = %v, want [0 1 2]", got)
	}
}
