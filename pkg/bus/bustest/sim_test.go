package bustest

import (
	"context"
	"errors"
	"testing"

	"github.com/gwillem/minirig/pkg/bus"
	"github.com/gwillem/minirig/pkg/rig"
)

func TestSim_WriteThenRead(t *testing.T) {
	s := NewSim(rig.MustActuatorMap(rig.VariantMixed))
	ctx := context.Background()

	if err := s.WriteGroup(ctx, rig.FamilySTS, []int{1, 2}, []float64{0.5, -0.5}); err != nil {
		t.Fatalf("WriteGroup failed: %v", err)
	}
	got, err := s.ReadGroup(ctx, rig.FamilySTS, []int{2, 1})
	if err != nil {
		t.Fatalf("ReadGroup failed: %v", err)
	}
	if got[0] != -0.5 || got[1] != 0.5 {
		t.Errorf("positions = %v, want [-0.5 0.5]", got)
	}

	writes := s.Writes()
	if len(writes) != 1 || writes[0].Op != "write_group" || writes[0].Family != rig.FamilySTS {
		t.Errorf("writes = %+v", writes)
	}
}

func TestSim_ScriptedReadFailures(t *testing.T) {
	s := NewSim(rig.MustActuatorMap(rig.VariantSingle))
	ctx := context.Background()
	s.FailReads(2)

	for i := 0; i < 2; i++ {
		_, err := s.ReadGroup(ctx, rig.FamilySTS, []int{1})
		if !errors.Is(err, ErrSimulated) || !bus.IsTransport(err) {
			t.Fatalf("read %d: got %v, want simulated TransportError", i, err)
		}
	}
	if _, err := s.ReadGroup(ctx, rig.FamilySTS, []int{1}); err != nil {
		t.Errorf("third read should succeed: %v", err)
	}

	s.FailAllReads()
	for i := 0; i < 5; i++ {
		if _, err := s.ReadGroup(ctx, rig.FamilySTS, []int{1}); err == nil {
			t.Fatal("read should fail until Recover")
		}
	}
	s.Recover()
	if _, err := s.ReadGroup(ctx, rig.FamilySTS, []int{1}); err != nil {
		t.Errorf("read after Recover: %v", err)
	}
	if s.Reads() != 9 {
		t.Errorf("Reads() = %d, want 9", s.Reads())
	}
}

func TestSim_FailWritesRecordsNothing(t *testing.T) {
	s := NewSim(rig.MustActuatorMap(rig.VariantSingle))
	s.FailWrites(1)

	if err := s.SetEnable(context.Background(), rig.FamilySTS, []int{1}, true); err == nil {
		t.Fatal("expected write failure")
	}
	if len(s.Writes()) != 0 || s.TorqueEnabled(1) {
		t.Error("failed write must not take effect")
	}
	if err := s.SetEnable(context.Background(), rig.FamilySTS, []int{1}, true); err != nil {
		t.Fatalf("second write: %v", err)
	}
	if !s.TorqueEnabled(1) {
		t.Error("torque should be on")
	}
}

func TestSim_UnpluggedAndClosed(t *testing.T) {
	s := NewSim(rig.MustActuatorMap(rig.VariantMixed))
	ctx := context.Background()

	if model, err := s.Ping(ctx, rig.FamilySCS, 11); err != nil || model != 9 {
		t.Errorf("Ping(11) = %d, %v", model, err)
	}
	s.Unplug(11)
	if _, err := s.Ping(ctx, rig.FamilySCS, 11); !bus.IsTransport(err) {
		t.Errorf("unplugged ping: got %v, want TransportError", err)
	}
	if _, err := s.Ping(ctx, rig.FamilySTS, 42); err == nil {
		t.Error("unknown address should not answer")
	}

	s.Close()
	if !s.Closed() {
		t.Error("Closed() = false after Close")
	}
	if _, err := s.ReadGroup(ctx, rig.FamilySTS, []int{1}); !errors.Is(err, bus.ErrClosed) {
		t.Errorf("read after close: got %v, want ErrClosed", err)
	}
}

func TestSim_Registers(t *testing.T) {
	s := NewSim(rig.MustActuatorMap(rig.VariantSingle))
	ctx := context.Background()

	if err := s.WriteI16(ctx, rig.FamilySTS, bus.RegGoalCurrent, []int{1, 2}, []int16{100, -100}); err != nil {
		t.Fatalf("WriteI16 failed: %v", err)
	}
	got, err := s.ReadI16(ctx, rig.FamilySTS, bus.RegGoalCurrent, []int{1, 2})
	if err != nil {
		t.Fatalf("ReadI16 failed: %v", err)
	}
	if got[0] != 100 || got[1] != -100 {
		t.Errorf("goal current = %v, want [100 -100]", got)
	}

	s.SetRegister(bus.RegOperatingMode, 3, 2)
	modes, err := s.ReadU8(ctx, rig.FamilySTS, bus.RegOperatingMode, []int{3})
	if err != nil || modes[0] != 2 {
		t.Errorf("mode = %v, %v; want [2]", modes, err)
	}
}
