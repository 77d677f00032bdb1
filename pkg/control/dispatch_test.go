package control

import (
	"context"
	"reflect"
	"testing"

	"github.com/gwillem/minirig/pkg/bus"
	"github.com/gwillem/minirig/pkg/bus/bustest"
	"github.com/gwillem/minirig/pkg/rig"
)

func TestApply(t *testing.T) {
	m := rig.MustActuatorMap(rig.VariantMixed)
	platform := []int{1, 2, 3, 4, 5, 6}

	tests := []struct {
		name string
		cmd  Command
		want []bustest.Write
	}{
		{
			name: "all goal positions split by family",
			cmd:  SetAllGoalPositions{Positions: [rig.NumMotors]float64{0.1, 0.2, 0.3, 1, 2, 3, 4, 5, 6}},
			want: []bustest.Write{
				{Op: "write_group", Family: rig.FamilySCS, IDs: []int{11, 21, 22}, Values: []float64{0.1, 0.2, 0.3}},
				{Op: "write_group", Family: rig.FamilySTS, IDs: platform, Values: []float64{1, 2, 3, 4, 5, 6}},
			},
		},
		{
			name: "platform position",
			cmd:  SetPlatformPosition{Positions: [6]float64{1, 2, 3, 4, 5, 6}},
			want: []bustest.Write{
				{Op: "write_group", Family: rig.FamilySTS, IDs: platform, Values: []float64{1, 2, 3, 4, 5, 6}},
			},
		},
		{
			name: "body rotation",
			cmd:  SetBodyRotation{Angle: 0.5},
			want: []bustest.Write{
				{Op: "write_group", Family: rig.FamilySCS, IDs: []int{11}, Values: []float64{0.5}},
			},
		},
		{
			name: "antennas",
			cmd:  SetAntennasPositions{Positions: [2]float64{-1, 1}},
			want: []bustest.Write{
				{Op: "write_group", Family: rig.FamilySCS, IDs: []int{21, 22}, Values: []float64{-1, 1}},
			},
		},
		{
			name: "enable torque",
			cmd:  EnableTorque{},
			want: []bustest.Write{
				{Op: "set_enable", Family: rig.FamilySCS, IDs: []int{11, 21, 22}, Enable: true},
				{Op: "set_enable", Family: rig.FamilySTS, IDs: platform, Enable: true},
			},
		},
		{
			name: "disable torque",
			cmd:  DisableTorque{},
			want: []bustest.Write{
				{Op: "set_enable", Family: rig.FamilySCS, IDs: []int{11, 21, 22}},
				{Op: "set_enable", Family: rig.FamilySTS, IDs: platform},
			},
		},
		{
			name: "enable platform",
			cmd:  EnablePlatform{On: true},
			want: []bustest.Write{{Op: "set_enable", Family: rig.FamilySTS, IDs: platform, Enable: true}},
		},
		{
			name: "disable body",
			cmd:  EnableBodyRotation{On: false},
			want: []bustest.Write{{Op: "set_enable", Family: rig.FamilySCS, IDs: []int{11}}},
		},
		{
			name: "enable antennas",
			cmd:  EnableAntennas{On: true},
			want: []bustest.Write{{Op: "set_enable", Family: rig.FamilySCS, IDs: []int{21, 22}, Enable: true}},
		},
		{
			name: "platform goal current",
			cmd:  SetPlatformGoalCurrent{Currents: [6]int16{10, 20, 30, 40, 50, 60}},
			want: []bustest.Write{{
				Op: "write_i16", Family: rig.FamilySTS, Reg: bus.RegGoalCurrent,
				IDs: platform, I16: []int16{10, 20, 30, 40, 50, 60},
			}},
		},
		{
			name: "platform mode",
			cmd:  SetPlatformOperatingMode{Mode: 3},
			want: []bustest.Write{{
				Op: "write_u8", Family: rig.FamilySTS, Reg: bus.RegOperatingMode,
				IDs: platform, U8: []uint8{3, 3, 3, 3, 3, 3},
			}},
		},
		{
			name: "antennas mode",
			cmd:  SetAntennasOperatingMode{Mode: 1},
			want: []bustest.Write{{
				Op: "write_u8", Family: rig.FamilySCS, Reg: bus.RegOperatingMode,
				IDs: []int{21, 22}, U8: []uint8{1, 1},
			}},
		},
		{
			name: "body mode",
			cmd:  SetBodyRotationOperatingMode{Mode: 0},
			want: []bustest.Write{{
				Op: "write_u8", Family: rig.FamilySCS, Reg: bus.RegOperatingMode,
				IDs: []int{11}, U8: []uint8{0},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := bustest.NewSim(m)
			if err := apply(context.Background(), sim, m, tt.cmd); err != nil {
				t.Fatalf("apply failed: %v", err)
			}
			if got := sim.Writes(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("writes =\n%+v\nwant\n%+v", got, tt.want)
			}
			if sim.Reads() != 0 {
				t.Error("commands must not read")
			}
		})
	}
}

func TestApply_SingleVariantUsesOneFamily(t *testing.T) {
	m := rig.MustActuatorMap(rig.VariantSingle)
	sim := bustest.NewSim(m)

	if err := apply(context.Background(), sim, m, DisableTorque{}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	writes := sim.Writes()
	if len(writes) != 1 || writes[0].Family != rig.FamilySTS || len(writes[0].IDs) != rig.NumMotors {
		t.Errorf("writes = %+v, want one sts write for all motors", writes)
	}
}
