package control

import (
	"errors"
	"fmt"

	"github.com/gwillem/minirig/pkg/rig"
)

var (
	// ErrQueueFull is returned by PushCommand under the fail policy when
	// the command queue has no room.
	ErrQueueFull = errors.New("command queue full")

	// ErrClosed is returned by PushCommand after Close.
	ErrClosed = errors.New("control loop closed")
)

// ValidationError rejects a command before any bus I/O.
type ValidationError struct {
	Motor    rig.MotorName
	Value    float64
	Min, Max float64
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Motor == "" {
		return "invalid command: " + e.Reason
	}
	return fmt.Sprintf("invalid command: %s: %s = %.4f rad, allowed [%.4f, %.4f]",
		e.Reason, e.Motor, e.Value, e.Min, e.Max)
}

// QueueError reports a command that was not enqueued.
type QueueError struct {
	Err error
}

func (e *QueueError) Error() string {
	return "push command: " + e.Err.Error()
}

func (e *QueueError) Unwrap() error {
	return e.Err
}

// ConstructionError reports why a control loop could not start.
type ConstructionError struct {
	Stage string
	Err   error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("start control loop: %s: %v", e.Stage, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// FaultError is what LastPosition returns while position reads are faulted.
type FaultError struct {
	Message string
}

func (e *FaultError) Error() string {
	return "position unavailable: " + e.Message
}
