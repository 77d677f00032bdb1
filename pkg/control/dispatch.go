package control

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/gwillem/minirig/pkg/bus"
	"github.com/gwillem/minirig/pkg/rig"
)

// apply performs one command against the transport.
func apply(ctx context.Context, tr bus.Transport, m *rig.ActuatorMap, cmd Command) error {
	switch c := cmd.(type) {
	case SetAllGoalPositions:
		var err error
		for _, b := range m.ReadPlan() {
			err = multierr.Append(err, tr.WriteGroup(ctx, b.Family, b.IDs, b.Gather(c.Positions[:])))
		}
		return err
	case SetPlatformPosition:
		g := m.Platform()
		return tr.WriteGroup(ctx, g.Family, g.IDs, c.Positions[:])
	case SetBodyRotation:
		g := m.Body()
		return tr.WriteGroup(ctx, g.Family, g.IDs, []float64{c.Angle})
	case SetAntennasPositions:
		g := m.Antennas()
		return tr.WriteGroup(ctx, g.Family, g.IDs, c.Positions[:])

	case EnableTorque:
		return enableAll(ctx, tr, m, true)
	case DisableTorque:
		return enableAll(ctx, tr, m, false)
	case EnablePlatform:
		g := m.Platform()
		return tr.SetEnable(ctx, g.Family, g.IDs, c.On)
	case EnableBodyRotation:
		g := m.Body()
		return tr.SetEnable(ctx, g.Family, g.IDs, c.On)
	case EnableAntennas:
		g := m.Antennas()
		return tr.SetEnable(ctx, g.Family, g.IDs, c.On)

	case SetPlatformGoalCurrent:
		g := m.Platform()
		return tr.WriteI16(ctx, g.Family, bus.RegGoalCurrent, g.IDs, c.Currents[:])

	case SetPlatformOperatingMode:
		return writeMode(ctx, tr, m.Platform(), c.Mode)
	case SetAntennasOperatingMode:
		return writeMode(ctx, tr, m.Antennas(), c.Mode)
	case SetBodyRotationOperatingMode:
		return writeMode(ctx, tr, m.Body(), c.Mode)
	}
	return fmt.Errorf("unknown command %T", cmd)
}

// enableAll switches torque with one write per protocol family.
func enableAll(ctx context.Context, tr bus.Transport, m *rig.ActuatorMap, on bool) error {
	var err error
	for _, b := range m.ReadPlan() {
		err = multierr.Append(err, tr.SetEnable(ctx, b.Family, b.IDs, on))
	}
	return err
}

func writeMode(ctx context.Context, tr bus.Transport, g rig.Group, mode uint8) error {
	modes := make([]uint8, len(g.IDs))
	for i := range modes {
		modes[i] = mode
	}
	return tr.WriteU8(ctx, g.Family, bus.RegOperatingMode, g.IDs, modes)
}
