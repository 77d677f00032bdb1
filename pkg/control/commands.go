package control

import (
	"fmt"

	"github.com/gwillem/minirig/pkg/rig"
)

// Command is a motion or configuration request for the worker. The set of
// commands is closed; every command maps to exactly one kind of bus write
// and none of them reads.
type Command interface {
	command()
}

// SetAllGoalPositions moves every motor. Positions are radians in vector
// order: body rotation, left and right antenna, platform axes 1 to 6.
type SetAllGoalPositions struct {
	Positions [rig.NumMotors]float64
}

// SetPlatformPosition moves the six platform axes.
type SetPlatformPosition struct {
	Positions [6]float64
}

// SetBodyRotation turns the body.
type SetBodyRotation struct {
	Angle float64
}

// SetAntennasPositions moves the left and right antenna.
type SetAntennasPositions struct {
	Positions [2]float64
}

// EnableTorque energizes every motor.
type EnableTorque struct{}

// DisableTorque releases every motor.
type DisableTorque struct{}

// EnablePlatform switches torque on the platform axes.
type EnablePlatform struct {
	On bool
}

// EnableBodyRotation switches torque on the body motor.
type EnableBodyRotation struct {
	On bool
}

// EnableAntennas switches torque on both antennas.
type EnableAntennas struct {
	On bool
}

// SetPlatformGoalCurrent sets the current limit of each platform axis, in
// raw register units.
type SetPlatformGoalCurrent struct {
	Currents [6]int16
}

// SetPlatformOperatingMode writes the operating mode register of the platform axes.
type SetPlatformOperatingMode struct {
	Mode uint8
}

// SetAntennasOperatingMode writes the operating mode register of both antennas.
type SetAntennasOperatingMode struct {
	Mode uint8
}

// SetBodyRotationOperatingMode writes the operating mode register of the body motor.
type SetBodyRotationOperatingMode struct {
	Mode uint8
}

func (SetAllGoalPositions) command()          {}
func (SetPlatformPosition) command()          {}
func (SetBodyRotation) command()              {}
func (SetAntennasPositions) command()         {}
func (EnableTorque) command()                 {}
func (DisableTorque) command()                {}
func (EnablePlatform) command()               {}
func (EnableBodyRotation) command()           {}
func (EnableAntennas) command()               {}
func (SetPlatformGoalCurrent) command()       {}
func (SetPlatformOperatingMode) command()     {}
func (SetAntennasOperatingMode) command()     {}
func (SetBodyRotationOperatingMode) command() {}

// goals returns the motors and goal positions a command carries, or nil
// for commands that do not move anything.
func goals(cmd Command, m *rig.ActuatorMap) ([]rig.MotorName, []float64) {
	switch c := cmd.(type) {
	case SetAllGoalPositions:
		return rig.AllMotors(), c.Positions[:]
	case SetPlatformPosition:
		return m.Platform().Motors, c.Positions[:]
	case SetBodyRotation:
		return m.Body().Motors, []float64{c.Angle}
	case SetAntennasPositions:
		return m.Antennas().Motors, c.Positions[:]
	}
	return nil, nil
}

// validate checks goal positions against the calibrated range. Motors
// without a calibration entry accept any finite value.
func validate(cmd Command, m *rig.ActuatorMap, cal rig.Calibration) error {
	if cmd == nil {
		return &ValidationError{Reason: "nil command"}
	}
	motors, values := goals(cmd, m)
	for i, name := range motors {
		mc := cal[name]
		if !mc.InRange(values[i]) {
			return &ValidationError{
				Motor:  name,
				Value:  values[i],
				Min:    mc.RangeMin,
				Max:    mc.RangeMax,
				Reason: fmt.Sprintf("%T goal out of range", cmd),
			}
		}
	}
	return nil
}
