package control

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/gwillem/minirig/pkg/rig"
)

// Snapshot is one complete position reading, in radians.
type Snapshot struct {
	BodyYaw  float64
	Antennas [2]float64
	Platform [6]float64

	// Timestamp is the capture time in wall-clock seconds since the Unix epoch.
	Timestamp float64
}

func newSnapshot(vector []float64, at time.Time) Snapshot {
	s := Snapshot{
		BodyYaw:   vector[0],
		Timestamp: float64(at.UnixNano()) / 1e9,
	}
	copy(s.Antennas[:], vector[1:3])
	copy(s.Platform[:], vector[3:rig.NumMotors])
	return s
}

// Vector returns the positions in vector order.
func (s Snapshot) Vector() []float64 {
	v := make([]float64, 0, rig.NumMotors)
	v = append(v, s.BodyYaw)
	v = append(v, s.Antennas[:]...)
	return append(v, s.Platform[:]...)
}

// Time returns the capture time.
func (s Snapshot) Time() time.Time {
	sec := int64(s.Timestamp)
	return time.Unix(sec, int64((s.Timestamp-float64(sec))*1e9))
}

// Degrees returns the positions in vector order, in degrees.
func (s Snapshot) Degrees() []float64 {
	v := s.Vector()
	for i := range v {
		v[i] = mgl64.RadToDeg(v[i])
	}
	return v
}

// PositionResult is the content of the position cache: a snapshot, or a
// fault message once reads have failed too often.
type PositionResult struct {
	Snapshot Snapshot
	Fault    string
}

// OK reports whether the result holds a snapshot.
func (r PositionResult) OK() bool { return r.Fault == "" }

// Err returns the fault as an error, or nil.
func (r PositionResult) Err() error {
	if r.OK() {
		return nil
	}
	return &FaultError{Message: r.Fault}
}

// State is the position polling health.
type State int

const (
	Healthy State = iota
	Degrading
	Faulted
)

func (s State) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degrading:
		return "degrading"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Health is the polling state with its consecutive failure count. Fault
// holds the message published to the cache while Faulted.
type Health struct {
	State    State
	Failures int
	Fault    string
}

func (h Health) String() string {
	switch h.State {
	case Degrading:
		return fmt.Sprintf("degrading(%d)", h.Failures)
	case Faulted:
		return fmt.Sprintf("faulted: %s", h.Fault)
	default:
		return h.State.String()
	}
}

// next returns the state after one read. Any success resets to Healthy.
// Failures degrade until threshold consecutive failures, then fault.
func (h Health) next(readErr error, threshold int) Health {
	if readErr == nil {
		return Health{State: Healthy}
	}
	n := h.Failures + 1
	if n < threshold {
		return Health{State: Degrading, Failures: n}
	}
	return Health{
		State:    Faulted,
		Failures: n,
		Fault:    fmt.Sprintf("%d consecutive read failures, last: %v", n, readErr),
	}
}
