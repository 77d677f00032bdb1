// Package bus talks to the rig's servos. It exposes grouped read and write
// primitives addressed by bus ID and protocol family, and hides packet
// framing and register layout behind them.
package bus

import (
	"context"

	"github.com/gwillem/minirig/pkg/rig"
)

// Register names understood by the telemetry and configuration calls.
const (
	RegOperatingMode   = "operating_mode"
	RegGoalCurrent     = "goal_current"
	RegPresentCurrent  = "present_current"
	RegPresentPosition = "present_position"
	RegTorqueEnable    = "torque_enable"
)

// Transport is the set of bus primitives the control loop needs. Positions
// are in radians and follow the order of ids.
//
// Implementations are not safe for concurrent use; a Transport must be
// owned by a single goroutine.
type Transport interface {
	ReadGroup(ctx context.Context, fam rig.Family, ids []int) ([]float64, error)
	WriteGroup(ctx context.Context, fam rig.Family, ids []int, values []float64) error
	SetEnable(ctx context.Context, fam rig.Family, ids []int, enable bool) error

	ReadU8(ctx context.Context, fam rig.Family, reg string, ids []int) ([]uint8, error)
	ReadU16(ctx context.Context, fam rig.Family, reg string, ids []int) ([]uint16, error)
	ReadI16(ctx context.Context, fam rig.Family, reg string, ids []int) ([]int16, error)
	WriteU8(ctx context.Context, fam rig.Family, reg string, ids []int, values []uint8) error
	WriteI16(ctx context.Context, fam rig.Family, reg string, ids []int, values []int16) error

	Ping(ctx context.Context, fam rig.Family, id int) (int, error)
	Close() error
}
