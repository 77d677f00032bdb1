package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/gwillem/minirig/pkg/rig"
)

// Config holds the settings for opening a FeetechBus.
type Config struct {
	// Port is the serial port path (e.g. "/dev/ttyACM0").
	Port string

	// BaudRate defaults to 1000000.
	BaudRate int

	// Timeout bounds every bus operation. Defaults to 10ms.
	Timeout time.Duration

	// Line replaces the serial port, mainly for tests.
	Line feetech.Transport

	// Calibration converts raw steps to radians, keyed by motor.
	Calibration rig.Calibration
}

// FeetechBus implements Transport for Feetech STS and SCS servos sharing
// one serial line.
type FeetechBus struct {
	line   *sharedLine
	buses  map[rig.Family]*feetech.Bus
	models map[rig.Family]*feetech.Model
	cal    map[int]rig.MotorCalibration
	closed bool
}

var _ Transport = (*FeetechBus)(nil)

// Open opens the serial line and attaches one protocol handler per family.
func Open(cfg Config) (*FeetechBus, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 1_000_000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Millisecond
	}

	line := cfg.Line
	if line == nil {
		sl, err := openSerial(cfg.Port, cfg.BaudRate, cfg.Timeout)
		if err != nil {
			return nil, &TransportError{Op: "open", Err: err}
		}
		line = sl
	}
	shared := share(line)

	f := &FeetechBus{
		line:  shared,
		buses: make(map[rig.Family]*feetech.Bus, 2),
		models: map[rig.Family]*feetech.Model{
			rig.FamilySTS: &feetech.ModelSTS3215,
			rig.FamilySCS: &feetech.ModelSCS0009,
		},
		cal: make(map[int]rig.MotorCalibration, len(cfg.Calibration)),
	}
	for _, mc := range cfg.Calibration {
		f.cal[mc.ID] = mc
	}

	for fam, proto := range map[rig.Family]int{
		rig.FamilySTS: feetech.ProtocolSTS,
		rig.FamilySCS: feetech.ProtocolSCS,
	} {
		b, err := feetech.NewBus(feetech.BusConfig{
			Transport: shared,
			BaudRate:  cfg.BaudRate,
			Protocol:  proto,
			Timeout:   cfg.Timeout,
		})
		if err != nil {
			shared.Close()
			return nil, &TransportError{Op: "open", Family: fam, Err: err}
		}
		f.buses[fam] = b
	}

	return f, nil
}

// Close closes the serial line.
func (f *FeetechBus) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	for _, b := range f.buses {
		b.Close()
	}
	return f.line.Close()
}

// Ping checks that a servo answers and speaks the expected protocol.
// It returns the servo's model number.
func (f *FeetechBus) Ping(ctx context.Context, fam rig.Family, id int) (int, error) {
	b, err := f.bus("ping", fam)
	if err != nil {
		return 0, err
	}
	model, err := b.Ping(ctx, id)
	if err != nil {
		return 0, classify("ping", fam, err)
	}
	if m, ok := feetech.GetModelByNumber(model); ok && m.Protocol != b.Protocol().Version() {
		return model, &ProtocolError{
			Op:     "ping",
			Family: fam,
			Reason: fmt.Sprintf("servo %d is a %s, not a %s servo", id, m.Name, fam),
		}
	}
	return model, nil
}

// ReadGroup reads present positions, in radians.
func (f *FeetechBus) ReadGroup(ctx context.Context, fam rig.Family, ids []int) ([]float64, error) {
	raw, err := f.readWords(ctx, "read_group", fam, RegPresentPosition, ids)
	if err != nil {
		return nil, err
	}
	positions := make([]float64, len(ids))
	for i, id := range ids {
		positions[i] = f.cal[id].ToRadians(fam, int(raw[i]))
	}
	return positions, nil
}

// WriteGroup writes goal positions, in radians.
func (f *FeetechBus) WriteGroup(ctx context.Context, fam rig.Family, ids []int, values []float64) error {
	if len(ids) != len(values) {
		return fmt.Errorf("write_group: %d ids but %d values", len(ids), len(values))
	}
	b, err := f.bus("write_group", fam)
	if err != nil {
		return err
	}
	proto := b.Protocol()
	data := make(map[int][]byte, len(ids))
	for i, id := range ids {
		steps := f.cal[id].ToSteps(fam, values[i])
		data[id] = proto.EncodeWord(uint16(steps))
	}
	return f.writeRegister(ctx, "write_group", fam, "goal_position", data)
}

// SetEnable switches torque on or off.
func (f *FeetechBus) SetEnable(ctx context.Context, fam rig.Family, ids []int, enable bool) error {
	var v byte
	if enable {
		v = 1
	}
	data := make(map[int][]byte, len(ids))
	for _, id := range ids {
		data[id] = []byte{v}
	}
	return f.writeRegister(ctx, "set_enable", fam, RegTorqueEnable, data)
}

// ReadU8 reads a one-byte register from every servo in ids.
func (f *FeetechBus) ReadU8(ctx context.Context, fam rig.Family, reg string, ids []int) ([]uint8, error) {
	raw, err := f.readRegister(ctx, "read_u8", fam, reg, 1, ids)
	if err != nil {
		return nil, err
	}
	out := make([]uint8, len(raw))
	for i, d := range raw {
		out[i] = d[0]
	}
	return out, nil
}

// ReadU16 reads a two-byte register from every servo in ids.
func (f *FeetechBus) ReadU16(ctx context.Context, fam rig.Family, reg string, ids []int) ([]uint16, error) {
	return f.readWords(ctx, "read_u16", fam, reg, ids)
}

// ReadI16 reads a signed two-byte register from every servo in ids.
func (f *FeetechBus) ReadI16(ctx context.Context, fam rig.Family, reg string, ids []int) ([]int16, error) {
	words, err := f.readWords(ctx, "read_i16", fam, reg, ids)
	if err != nil {
		return nil, err
	}
	out := make([]int16, len(words))
	for i, w := range words {
		out[i] = int16(w)
	}
	return out, nil
}

// WriteU8 writes a one-byte register on every servo in ids.
func (f *FeetechBus) WriteU8(ctx context.Context, fam rig.Family, reg string, ids []int, values []uint8) error {
	if len(ids) != len(values) {
		return fmt.Errorf("write_u8 %s: %d ids but %d values", reg, len(ids), len(values))
	}
	data := make(map[int][]byte, len(ids))
	for i, id := range ids {
		data[id] = []byte{values[i]}
	}
	return f.writeRegister(ctx, "write_u8", fam, reg, data)
}

// WriteI16 writes a signed two-byte register on every servo in ids.
func (f *FeetechBus) WriteI16(ctx context.Context, fam rig.Family, reg string, ids []int, values []int16) error {
	if len(ids) != len(values) {
		return fmt.Errorf("write_i16 %s: %d ids but %d values", reg, len(ids), len(values))
	}
	b, err := f.bus("write_i16", fam)
	if err != nil {
		return err
	}
	data := make(map[int][]byte, len(ids))
	for i, id := range ids {
		data[id] = b.Protocol().EncodeWord(uint16(values[i]))
	}
	return f.writeRegister(ctx, "write_i16", fam, reg, data)
}

func (f *FeetechBus) bus(op string, fam rig.Family) (*feetech.Bus, error) {
	if f.closed {
		return nil, &TransportError{Op: op, Family: fam, Err: ErrClosed}
	}
	b, ok := f.buses[fam]
	if !ok {
		return nil, &ProtocolError{Op: op, Family: fam, Reason: "unknown protocol family"}
	}
	return b, nil
}

// register resolves a register name for a family. goal_current maps onto
// the torque limit, which is how Feetech servos bound motor current.
// SCS names come from the SCS table only; the model lookup would fall back
// to STS addresses that SCS servos do not define.
func (f *FeetechBus) register(op string, fam rig.Family, name string) (feetech.Register, error) {
	if name == RegGoalCurrent {
		name = "torque_limit"
	}
	model := f.models[fam]
	var (
		reg feetech.Register
		ok  bool
	)
	if fam == rig.FamilySCS {
		reg, ok = model.Registers[name]
	} else {
		reg, ok = model.GetRegister(name)
	}
	if !ok {
		return feetech.Register{}, &ProtocolError{Op: op, Family: fam, Reason: fmt.Sprintf("no register %q on %s", name, fam)}
	}
	return reg, nil
}

func (f *FeetechBus) readWords(ctx context.Context, op string, fam rig.Family, reg string, ids []int) ([]uint16, error) {
	raw, err := f.readRegister(ctx, op, fam, reg, 2, ids)
	if err != nil {
		return nil, err
	}
	proto := f.buses[fam].Protocol()
	out := make([]uint16, len(raw))
	for i, d := range raw {
		out[i] = proto.DecodeWord(d)
	}
	return out, nil
}

// readRegister reads one register from each servo, in ids order. STS uses a
// single sync read; SCS has no sync read and is polled servo by servo.
func (f *FeetechBus) readRegister(ctx context.Context, op string, fam rig.Family, name string, size int, ids []int) ([][]byte, error) {
	b, err := f.bus(op, fam)
	if err != nil {
		return nil, err
	}
	reg, err := f.register(op, fam, name)
	if err != nil {
		return nil, err
	}
	if reg.Size != size {
		return nil, &ProtocolError{Op: op, Family: fam, Reason: fmt.Sprintf("register %s is %d bytes, not %d", name, reg.Size, size)}
	}

	out := make([][]byte, len(ids))
	if fam == rig.FamilySTS {
		data, err := b.SyncRead(ctx, reg.Address, reg.Size, ids)
		if err != nil {
			return nil, classify(op, fam, err)
		}
		for i, id := range ids {
			out[i] = data[id]
		}
	} else {
		for i, id := range ids {
			d, err := b.ReadRegister(ctx, id, reg.Address, reg.Size)
			if err != nil {
				return nil, classify(op, fam, err)
			}
			out[i] = d
		}
	}

	for i, d := range out {
		if len(d) != size {
			return nil, &ProtocolError{
				Op:     op,
				Family: fam,
				Reason: fmt.Sprintf("servo %d returned %d bytes for %s, want %d", ids[i], len(d), name, size),
			}
		}
	}
	return out, nil
}

func (f *FeetechBus) writeRegister(ctx context.Context, op string, fam rig.Family, name string, data map[int][]byte) error {
	b, err := f.bus(op, fam)
	if err != nil {
		return err
	}
	reg, err := f.register(op, fam, name)
	if err != nil {
		return err
	}
	if reg.ReadOnly {
		return &ProtocolError{Op: op, Family: fam, Reason: fmt.Sprintf("register %s is read-only", name)}
	}
	for id, d := range data {
		if len(d) != reg.Size {
			return &ProtocolError{
				Op:     op,
				Family: fam,
				Reason: fmt.Sprintf("servo %d: %d bytes for %d-byte register %s", id, len(d), reg.Size, name),
			}
		}
	}
	if err := b.SyncWrite(ctx, reg.Address, reg.Size, data); err != nil {
		return classify(op, fam, err)
	}
	return nil
}
