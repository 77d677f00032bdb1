// Package bustest provides a simulated rig for tests and dry runs.
package bustest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gwillem/minirig/pkg/bus"
	"github.com/gwillem/minirig/pkg/rig"
)

// ErrSimulated is the cause of every scripted failure.
var ErrSimulated = errors.New("simulated bus failure")

// Write records one write primitive as the sim received it.
type Write struct {
	Op     string
	Family rig.Family
	Reg    string
	IDs    []int
	Values []float64
	Enable bool
	U8     []uint8
	I16    []int16
}

// Sim is an in-memory rig. Goal positions are reached instantly.
// It is safe for concurrent use so tests can inspect it while a control
// loop owns it.
type Sim struct {
	mu        sync.Mutex
	positions map[int]float64
	registers map[string]map[int]int
	torque    map[int]bool
	unplugged map[int]bool
	writes    []Write
	reads     int
	failReads int // < 0 fails forever
	failWrite int
	latency   time.Duration
	closed    bool
}

var _ bus.Transport = (*Sim)(nil)

// NewSim creates a sim with every motor of m at zero.
func NewSim(m *rig.ActuatorMap) *Sim {
	s := &Sim{
		positions: make(map[int]float64, rig.NumMotors),
		registers: make(map[string]map[int]int),
		torque:    make(map[int]bool, rig.NumMotors),
		unplugged: make(map[int]bool),
	}
	for _, id := range m.IDs() {
		s.positions[id] = 0
	}
	return s
}

// SetPosition moves a motor, as if pushed by hand.
func (s *Sim) SetPosition(id int, rad float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[id] = rad
}

// Position returns the current position of a motor.
func (s *Sim) Position(id int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[id]
}

// SetRegister presets a telemetry register.
func (s *Sim) SetRegister(reg string, id, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setRegisterLocked(reg, id, value)
}

func (s *Sim) setRegisterLocked(reg string, id, value int) {
	if s.registers[reg] == nil {
		s.registers[reg] = make(map[int]int)
	}
	s.registers[reg][id] = value
}

// Register returns the value of a register.
func (s *Sim) Register(reg string, id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registers[reg][id]
}

// TorqueEnabled reports whether torque is on for a motor.
func (s *Sim) TorqueEnabled(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.torque[id]
}

// FailReads makes the next n reads fail.
func (s *Sim) FailReads(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failReads = n
}

// FailAllReads makes every read fail until Recover.
func (s *Sim) FailAllReads() {
	s.FailReads(-1)
}

// FailWrites makes the next n writes fail.
func (s *Sim) FailWrites(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrite = n
}

// Recover clears all scripted failures.
func (s *Sim) Recover() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failReads = 0
	s.failWrite = 0
}

// Unplug stops a motor from answering pings and reads.
func (s *Sim) Unplug(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unplugged[id] = true
}

// SetLatency delays every call, to mimic bus transfer time.
func (s *Sim) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Writes returns a copy of every write received, in order.
func (s *Sim) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Write, len(s.writes))
	copy(out, s.writes)
	return out
}

// Reads returns how many ReadGroup calls were made.
func (s *Sim) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Closed reports whether Close was called.
func (s *Sim) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// AwaitReads waits until at least n reads happened.
func (s *Sim) AwaitReads(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Reads() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return s.Reads() >= n
}

// enter applies latency and takes the lock; callers must unlock.
func (s *Sim) enter(op string, fam rig.Family) error {
	s.mu.Lock()
	d := s.latency
	s.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
	s.mu.Lock()
	if s.closed {
		return &bus.TransportError{Op: op, Family: fam, Err: bus.ErrClosed}
	}
	return nil
}

func (s *Sim) writeFailureLocked(op string, fam rig.Family) error {
	if s.failWrite > 0 {
		s.failWrite--
		return &bus.TransportError{Op: op, Family: fam, Err: ErrSimulated}
	}
	return nil
}

func (s *Sim) checkIDsLocked(op string, fam rig.Family, ids []int) error {
	for _, id := range ids {
		if _, ok := s.positions[id]; !ok || s.unplugged[id] {
			return &bus.TransportError{Op: op, Family: fam, Err: fmt.Errorf("servo %d: no response", id)}
		}
	}
	return nil
}

func (s *Sim) ReadGroup(ctx context.Context, fam rig.Family, ids []int) ([]float64, error) {
	if err := s.enter("read_group", fam); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	s.reads++
	if s.failReads != 0 {
		if s.failReads > 0 {
			s.failReads--
		}
		return nil, &bus.TransportError{Op: "read_group", Family: fam, Err: ErrSimulated}
	}
	if err := s.checkIDsLocked("read_group", fam, ids); err != nil {
		return nil, err
	}
	out := make([]float64, len(ids))
	for i, id := range ids {
		out[i] = s.positions[id]
	}
	return out, nil
}

func (s *Sim) WriteGroup(ctx context.Context, fam rig.Family, ids []int, values []float64) error {
	if err := s.enter("write_group", fam); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	if len(ids) != len(values) {
		return fmt.Errorf("write_group: %d ids but %d values", len(ids), len(values))
	}
	if err := s.writeFailureLocked("write_group", fam); err != nil {
		return err
	}
	s.writes = append(s.writes, Write{
		Op:     "write_group",
		Family: fam,
		IDs:    append([]int(nil), ids...),
		Values: append([]float64(nil), values...),
	})
	for i, id := range ids {
		s.positions[id] = values[i]
	}
	return nil
}

func (s *Sim) SetEnable(ctx context.Context, fam rig.Family, ids []int, enable bool) error {
	if err := s.enter("set_enable", fam); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	if err := s.writeFailureLocked("set_enable", fam); err != nil {
		return err
	}
	s.writes = append(s.writes, Write{
		Op:     "set_enable",
		Family: fam,
		IDs:    append([]int(nil), ids...),
		Enable: enable,
	})
	for _, id := range ids {
		s.torque[id] = enable
	}
	return nil
}

func (s *Sim) readRegister(op string, fam rig.Family, reg string, ids []int) ([]int, error) {
	if err := s.enter(op, fam); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	if err := s.checkIDsLocked(op, fam, ids); err != nil {
		return nil, err
	}
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = s.registers[reg][id]
	}
	return out, nil
}

func (s *Sim) ReadU8(ctx context.Context, fam rig.Family, reg string, ids []int) ([]uint8, error) {
	vals, err := s.readRegister("read_u8", fam, reg, ids)
	if err != nil {
		return nil, err
	}
	out := make([]uint8, len(vals))
	for i, v := range vals {
		out[i] = uint8(v)
	}
	return out, nil
}

func (s *Sim) ReadU16(ctx context.Context, fam rig.Family, reg string, ids []int) ([]uint16, error) {
	vals, err := s.readRegister("read_u16", fam, reg, ids)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, len(vals))
	for i, v := range vals {
		out[i] = uint16(v)
	}
	return out, nil
}

func (s *Sim) ReadI16(ctx context.Context, fam rig.Family, reg string, ids []int) ([]int16, error) {
	vals, err := s.readRegister("read_i16", fam, reg, ids)
	if err != nil {
		return nil, err
	}
	out := make([]int16, len(vals))
	for i, v := range vals {
		out[i] = int16(v)
	}
	return out, nil
}

func (s *Sim) WriteU8(ctx context.Context, fam rig.Family, reg string, ids []int, values []uint8) error {
	if err := s.enter("write_u8", fam); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	if len(ids) != len(values) {
		return fmt.Errorf("write_u8 %s: %d ids but %d values", reg, len(ids), len(values))
	}
	if err := s.writeFailureLocked("write_u8", fam); err != nil {
		return err
	}
	s.writes = append(s.writes, Write{
		Op:     "write_u8",
		Family: fam,
		Reg:    reg,
		IDs:    append([]int(nil), ids...),
		U8:     append([]uint8(nil), values...),
	})
	for i, id := range ids {
		s.setRegisterLocked(reg, id, int(values[i]))
	}
	return nil
}

func (s *Sim) WriteI16(ctx context.Context, fam rig.Family, reg string, ids []int, values []int16) error {
	if err := s.enter("write_i16", fam); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	if len(ids) != len(values) {
		return fmt.Errorf("write_i16 %s: %d ids but %d values", reg, len(ids), len(values))
	}
	if err := s.writeFailureLocked("write_i16", fam); err != nil {
		return err
	}
	s.writes = append(s.writes, Write{
		Op:     "write_i16",
		Family: fam,
		Reg:    reg,
		IDs:    append([]int(nil), ids...),
		I16:    append([]int16(nil), values...),
	})
	for i, id := range ids {
		s.setRegisterLocked(reg, id, int(values[i]))
	}
	return nil
}

// Ping answers with a plausible model number for the family.
func (s *Sim) Ping(ctx context.Context, fam rig.Family, id int) (int, error) {
	if err := s.enter("ping", fam); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	defer s.mu.Unlock()

	if err := s.checkIDsLocked("ping", fam, []int{id}); err != nil {
		return 0, err
	}
	if fam == rig.FamilySCS {
		return 9, nil
	}
	return 777, nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
