package rig

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl64"
)

// Step geometry per protocol family.
var (
	stsStepsPerRadian = 4096 / (2 * math.Pi)
	scsStepsPerRadian = 1024 / float64(mgl64.DegToRad(300))
)

// StepsPerRadian returns the encoder resolution of the family's servos.
func (f Family) StepsPerRadian() float64 {
	if f == FamilySCS {
		return scsStepsPerRadian
	}
	return stsStepsPerRadian
}

// CenterStep returns the raw position that maps to zero radians.
func (f Family) CenterStep() int {
	if f == FamilySCS {
		return 512
	}
	return 2048
}

// MaxStep returns the largest raw position the family accepts.
func (f Family) MaxStep() int {
	if f == FamilySCS {
		return 1023
	}
	return 4095
}

// MotorCalibration holds calibration data for a single motor.
// RangeMin and RangeMax bound accepted goal positions, in radians.
type MotorCalibration struct {
	ID           int     `json:"id" yaml:"id"`
	DriveMode    int     `json:"drive_mode" yaml:"drive_mode"`
	HomingOffset int     `json:"homing_offset" yaml:"homing_offset"`
	RangeMin     float64 `json:"range_min" yaml:"range_min"`
	RangeMax     float64 `json:"range_max" yaml:"range_max"`
}

// Calibration holds calibration data for all motors, keyed by motor name.
type Calibration map[MotorName]MotorCalibration

// Default goal ranges in radians.
const (
	bodyRange     = math.Pi
	antennaRange  = 3.1
	platformRange = 1.4
)

// DefaultCalibration returns a neutral calibration for every motor in m.
func DefaultCalibration(m *ActuatorMap) Calibration {
	limits := map[GroupName]float64{
		GroupBody:     bodyRange,
		GroupAntennas: antennaRange,
		GroupPlatform: platformRange,
	}
	cal := make(Calibration, NumMotors)
	for _, g := range m.Groups() {
		for i, name := range g.Motors {
			cal[name] = MotorCalibration{
				ID:       g.IDs[i],
				RangeMin: -limits[g.Name],
				RangeMax: limits[g.Name],
			}
		}
	}
	return cal
}

// LoadCalibration loads calibration data from a JSON file.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}

	var raw map[string]MotorCalibration
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse calibration JSON: %w", err)
	}

	cal := make(Calibration, len(raw))
	for name, mc := range raw {
		cal[MotorName(name)] = mc
	}
	return cal, nil
}

// ToRadians converts a raw servo position to radians.
func (c MotorCalibration) ToRadians(fam Family, raw int) float64 {
	rad := float64(raw-fam.CenterStep()-c.HomingOffset) / fam.StepsPerRadian()
	if c.DriveMode != 0 {
		rad = -rad
	}
	return rad
}

// ToSteps converts radians to a raw servo position, clamped to the
// family's encoder range.
func (c MotorCalibration) ToSteps(fam Family, rad float64) int {
	if c.DriveMode != 0 {
		rad = -rad
	}
	raw := int(math.Round(rad*fam.StepsPerRadian())) + fam.CenterStep() + c.HomingOffset
	return max(0, min(raw, fam.MaxStep()))
}

// InRange reports whether rad lies within the motor's goal range.
// A zero range accepts every finite value.
func (c MotorCalibration) InRange(rad float64) bool {
	if math.IsNaN(rad) || math.IsInf(rad, 0) {
		return false
	}
	if c.RangeMin == 0 && c.RangeMax == 0 {
		return true
	}
	return rad >= c.RangeMin && rad <= c.RangeMax
}

// MotorIDs returns the servo IDs for all motors in the calibration, in vector order.
func (c Calibration) MotorIDs() []int {
	ids := make([]int, 0, len(c))
	for _, name := range AllMotors() {
		if mc, ok := c[name]; ok {
			ids = append(ids, mc.ID)
		}
	}
	return ids
}

// ByID returns motor name and calibration for a given servo ID.
func (c Calibration) ByID(id int) (MotorName, MotorCalibration, bool) {
	for name, mc := range c {
		if mc.ID == id {
			return name, mc, true
		}
	}
	return "", MotorCalibration{}, false
}

// Check reports the first motor in m that has no calibration entry or
// whose calibrated ID disagrees with the map.
func (c Calibration) Check(m *ActuatorMap) error {
	for _, g := range m.Groups() {
		for i, name := range g.Motors {
			mc, ok := c[name]
			if !ok {
				return fmt.Errorf("motor %s has no calibration", name)
			}
			if mc.ID != g.IDs[i] {
				return fmt.Errorf("motor %s: calibration ID %d, bus address %d", name, mc.ID, g.IDs[i])
			}
			if mc.RangeMin > mc.RangeMax {
				return fmt.Errorf("motor %s: range_min %.3f above range_max %.3f", name, mc.RangeMin, mc.RangeMax)
			}
		}
	}
	return nil
}
