package bus

import (
	"errors"
	"fmt"

	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/gwillem/minirig/pkg/rig"
)

// TransportError is an I/O failure or timeout on the bus.
type TransportError struct {
	Op     string
	Family rig.Family
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bus %s (%s): %v", e.Op, e.Family, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is a malformed, short or otherwise unusable reply.
type ProtocolError struct {
	Op     string
	Family rig.Family
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bus %s (%s): %s: %v", e.Op, e.Family, e.Reason, e.Err)
	}
	return fmt.Sprintf("bus %s (%s): %s", e.Op, e.Family, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("transport closed")

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocol reports whether err is, or wraps, a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// classify sorts a feetech error into the transport taxonomy.
func classify(op string, fam rig.Family, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, feetech.ErrInvalidPacket) {
		return &ProtocolError{Op: op, Family: fam, Reason: "invalid reply", Err: err}
	}
	if se, ok := feetech.GetServoError(err); ok && se.Status.HasError() {
		return &ProtocolError{Op: op, Family: fam, Reason: fmt.Sprintf("servo %d status", se.ID), Err: err}
	}
	return &TransportError{Op: op, Family: fam, Err: err}
}
