// Package rig describes the physical layout of the rig: which motors exist,
// which bus address and protocol family each one uses, and how they are
// grouped for control.
package rig

import "fmt"

// MotorName identifies a motor on the rig.
type MotorName string

// Motor names, in the order of the full position vector.
const (
	BodyRotation MotorName = "body_rotation"
	AntennaLeft  MotorName = "antenna_left"
	AntennaRight MotorName = "antenna_right"
	Stewart1     MotorName = "stewart_1"
	Stewart2     MotorName = "stewart_2"
	Stewart3     MotorName = "stewart_3"
	Stewart4     MotorName = "stewart_4"
	Stewart5     MotorName = "stewart_5"
	Stewart6     MotorName = "stewart_6"
)

// NumMotors is the length of the full position vector.
const NumMotors = 9

// AllMotors returns all motor names in vector order:
// body rotation, left and right antenna, then the six platform axes.
func AllMotors() []MotorName {
	return []MotorName{
		BodyRotation,
		AntennaLeft,
		AntennaRight,
		Stewart1,
		Stewart2,
		Stewart3,
		Stewart4,
		Stewart5,
		Stewart6,
	}
}

// Family is a bus protocol family. Both families share the same serial line.
type Family int

const (
	// FamilySTS is the STS/SMS register layout (little-endian, sync read).
	FamilySTS Family = iota
	// FamilySCS is the SCS register layout (big-endian, no sync read).
	FamilySCS
)

func (f Family) String() string {
	switch f {
	case FamilySTS:
		return "sts"
	case FamilySCS:
		return "scs"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// GroupName identifies a logical actuator group.
type GroupName string

// Logical groups.
const (
	GroupBody     GroupName = "body"
	GroupAntennas GroupName = "antennas"
	GroupPlatform GroupName = "platform"
)

// Group is a set of motors driven together through one protocol family.
type Group struct {
	Name   GroupName
	Family Family
	Motors []MotorName
	IDs    []int
}

// Variant selects a hardware generation of the rig.
type Variant string

const (
	// VariantMixed drives the platform over STS and body + antennas over SCS.
	VariantMixed Variant = "mixed"
	// VariantSingle drives every motor over STS.
	VariantSingle Variant = "single"
)

// Default bus addresses.
var defaultIDs = map[MotorName]int{
	BodyRotation: 11,
	AntennaLeft:  21,
	AntennaRight: 22,
	Stewart1:     1,
	Stewart2:     2,
	Stewart3:     3,
	Stewart4:     4,
	Stewart5:     5,
	Stewart6:     6,
}

// DefaultID returns the factory bus address of a motor.
func DefaultID(name MotorName) int {
	return defaultIDs[name]
}

// ActuatorMap is the immutable grouping of all motors. Build it once at
// startup with NewActuatorMap.
type ActuatorMap struct {
	variant Variant
	body    Group
	antenna Group
	stewart Group
}

// NewActuatorMap builds the map for a hardware variant. ids overrides the
// default bus address of individual motors and may be nil.
func NewActuatorMap(variant Variant, ids map[MotorName]int) (*ActuatorMap, error) {
	var small Family
	switch variant {
	case VariantMixed:
		small = FamilySCS
	case VariantSingle, "":
		variant = VariantSingle
		small = FamilySTS
	default:
		return nil, fmt.Errorf("unknown rig variant %q", variant)
	}

	id := func(name MotorName) int {
		if v, ok := ids[name]; ok {
			return v
		}
		return defaultIDs[name]
	}
	group := func(name GroupName, fam Family, motors ...MotorName) Group {
		g := Group{Name: name, Family: fam, Motors: motors, IDs: make([]int, len(motors))}
		for i, m := range motors {
			g.IDs[i] = id(m)
		}
		return g
	}

	m := &ActuatorMap{
		variant: variant,
		body:    group(GroupBody, small, BodyRotation),
		antenna: group(GroupAntennas, small, AntennaLeft, AntennaRight),
		stewart: group(GroupPlatform, FamilySTS, Stewart1, Stewart2, Stewart3, Stewart4, Stewart5, Stewart6),
	}

	seen := make(map[int]MotorName, NumMotors)
	for _, g := range m.Groups() {
		for i, addr := range g.IDs {
			if prev, dup := seen[addr]; dup {
				return nil, fmt.Errorf("bus address %d used by both %s and %s", addr, prev, g.Motors[i])
			}
			seen[addr] = g.Motors[i]
		}
	}
	return m, nil
}

// MustActuatorMap is like NewActuatorMap with default addresses and panics on error.
func MustActuatorMap(variant Variant) *ActuatorMap {
	m, err := NewActuatorMap(variant, nil)
	if err != nil {
		panic(err)
	}
	return m
}

// Variant returns the hardware variant the map was built for.
func (m *ActuatorMap) Variant() Variant { return m.variant }

// Body returns the body rotation group.
func (m *ActuatorMap) Body() Group { return m.body }

// Antennas returns the antenna group (left, right).
func (m *ActuatorMap) Antennas() Group { return m.antenna }

// Platform returns the six-axis platform group.
func (m *ActuatorMap) Platform() Group { return m.stewart }

// Groups returns all groups in vector order.
func (m *ActuatorMap) Groups() []Group {
	return []Group{m.body, m.antenna, m.stewart}
}

// Group returns the group with the given name.
func (m *ActuatorMap) Group(name GroupName) (Group, bool) {
	for _, g := range m.Groups() {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

// ReadBatch is one grouped read: every listed address on one family.
// Slots holds, for each address, its index in the full position vector.
type ReadBatch struct {
	Family Family
	IDs    []int
	Slots  []int
}

// Gather picks the batch's values out of a full position vector.
func (b ReadBatch) Gather(vector []float64) []float64 {
	out := make([]float64, len(b.Slots))
	for i, slot := range b.Slots {
		out[i] = vector[slot]
	}
	return out
}

// Scatter stores values read for the batch into a full position vector.
func (b ReadBatch) Scatter(vector, values []float64) {
	for i, slot := range b.Slots {
		vector[slot] = values[i]
	}
}

// ReadPlan returns the grouped reads needed to assemble the full position
// vector, one batch per protocol family in use.
func (m *ActuatorMap) ReadPlan() []ReadBatch {
	var plan []ReadBatch
	index := make(map[Family]int)
	slot := 0
	for _, g := range m.Groups() {
		i, ok := index[g.Family]
		if !ok {
			i = len(plan)
			index[g.Family] = i
			plan = append(plan, ReadBatch{Family: g.Family})
		}
		for _, id := range g.IDs {
			plan[i].IDs = append(plan[i].IDs, id)
			plan[i].Slots = append(plan[i].Slots, slot)
			slot++
		}
	}
	return plan
}

// MotorByID returns the motor name for a bus address.
func (m *ActuatorMap) MotorByID(id int) (MotorName, bool) {
	for _, g := range m.Groups() {
		for i, addr := range g.IDs {
			if addr == id {
				return g.Motors[i], true
			}
		}
	}
	return "", false
}

// IDs returns the bus addresses of all motors in vector order.
func (m *ActuatorMap) IDs() []int {
	ids := make([]int, 0, NumMotors)
	for _, g := range m.Groups() {
		ids = append(ids, g.IDs...)
	}
	return ids
}
