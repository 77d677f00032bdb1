// Package control runs the rig's control loop: one worker goroutine owns
// the bus, polls positions on a timer, and applies queued commands in
// order. Callers read the latest position and timing stats without
// touching the hardware.
package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"

	"github.com/gwillem/minirig/pkg/bus"
	"github.com/gwillem/minirig/pkg/rig"
)

// Backpressure decides what PushCommand does when the queue is full.
type Backpressure int

const (
	// Block waits for room, the caller's context, or Close.
	Block Backpressure = iota
	// Fail returns ErrQueueFull at once.
	Fail
)

// Config holds configuration for the control loop.
type Config struct {
	ReadPeriod     time.Duration
	RetryThreshold int

	// StatsPeriod enables timing stats when positive.
	StatsPeriod     time.Duration
	MaxStatsSamples int

	// InitTimeout bounds the initial position read.
	InitTimeout time.Duration

	QueueSize    int
	Backpressure Backpressure

	// TelemetryEvery samples platform current and mode every n ticks. Zero disables it.
	TelemetryEvery int

	Map         *rig.ActuatorMap
	Calibration rig.Calibration
	Logger      golog.Logger
}

func (c *Config) setDefaults() error {
	if c.ReadPeriod <= 0 {
		return fmt.Errorf("read period must be positive, got %s", c.ReadPeriod)
	}
	if c.RetryThreshold <= 0 {
		return fmt.Errorf("retry threshold must be positive, got %d", c.RetryThreshold)
	}
	if c.Map == nil {
		return fmt.Errorf("no actuator map")
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	if c.MaxStatsSamples <= 0 {
		c.MaxStatsSamples = 10000
	}
	if c.Calibration == nil {
		c.Calibration = rig.DefaultCalibration(c.Map)
	}
	if c.Logger == nil {
		c.Logger = golog.NewLogger("control")
	}
	return nil
}

// ConfigFrom builds a loop config from the rig config file settings.
func ConfigFrom(rc *rig.Config, logger golog.Logger) (Config, error) {
	if err := rc.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	m, err := rc.ActuatorMap()
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		ReadPeriod:     rc.ReadPeriod.D(),
		RetryThreshold: rc.Retries,
		StatsPeriod:    rc.StatsPeriod.D(),
		InitTimeout:    rc.InitTimeout.D(),
		QueueSize:      rc.QueueSize,
		Map:            m,
		Calibration:    rc.CalibrationFor(m),
		Logger:         logger,
	}
	if rc.Backpressure == rig.BackpressureFail {
		cfg.Backpressure = Fail
	}
	return cfg, nil
}

// Telemetry is the latest platform current and mode sample.
type Telemetry struct {
	Current [6]int16
	Mode    [6]uint8
	At      time.Time
	Err     error
}

// Loop is a running control loop.
type Loop struct {
	cfg    Config
	tr     bus.Transport
	plan   []rig.ReadBatch
	logger golog.Logger

	commands chan Command
	stop     chan struct{}
	stopOnce sync.Once
	pushMu   sync.RWMutex // held for writing while stop closes
	done     chan struct{}
	closeErr error

	mu        sync.RWMutex
	result    PositionResult
	health    Health
	telemetry Telemetry

	stats *stats // nil when disabled
	ticks int
}

// Open opens the serial bus described by rc and starts a loop on it.
func Open(ctx context.Context, rc *rig.Config, logger golog.Logger) (*Loop, error) {
	cfg, err := ConfigFrom(rc, logger)
	if err != nil {
		return nil, &ConstructionError{Stage: "config", Err: err}
	}
	tr, err := bus.Open(bus.Config{
		Port:        rc.Port,
		BaudRate:    rc.BaudRate,
		Timeout:     rc.BusTimeout.D(),
		Calibration: cfg.Calibration,
	})
	if err != nil {
		return nil, &ConstructionError{Stage: "open", Err: err}
	}
	return New(ctx, tr, cfg)
}

// New takes ownership of tr, pings every motor, and waits for a first
// position reading before starting the worker. On failure tr is closed and
// no loop is returned.
func New(ctx context.Context, tr bus.Transport, cfg Config) (*Loop, error) {
	if err := cfg.setDefaults(); err != nil {
		tr.Close()
		return nil, &ConstructionError{Stage: "config", Err: err}
	}

	l := &Loop{
		cfg:      cfg,
		tr:       tr,
		plan:     cfg.Map.ReadPlan(),
		logger:   cfg.Logger,
		commands: make(chan Command, cfg.QueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if err := l.ping(ctx); err != nil {
		tr.Close()
		return nil, &ConstructionError{Stage: "ping", Err: err}
	}
	snap, err := l.acquire(ctx)
	if err != nil {
		tr.Close()
		return nil, &ConstructionError{Stage: "initial read", Err: err}
	}
	l.result = PositionResult{Snapshot: snap}

	if cfg.StatsPeriod > 0 {
		l.stats = newStats(cfg.StatsPeriod, cfg.MaxStatsSamples, time.Now())
	}

	l.logger.Infow("control loop started",
		"variant", cfg.Map.Variant(),
		"read_period", cfg.ReadPeriod,
		"retry_threshold", cfg.RetryThreshold,
		"stats_period", cfg.StatsPeriod)

	go l.run()
	return l, nil
}

func (l *Loop) ping(ctx context.Context) error {
	for _, g := range l.cfg.Map.Groups() {
		for i, id := range g.IDs {
			model, err := l.tr.Ping(ctx, g.Family, id)
			if err != nil {
				return fmt.Errorf("ping %s (id %d): %w", g.Motors[i], id, err)
			}
			l.logger.Debugw("motor found", "motor", g.Motors[i], "id", id, "model", model)
		}
	}
	return nil
}

// acquire reads until it gets a full vector or InitTimeout passes.
func (l *Loop) acquire(ctx context.Context) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.InitTimeout)
	defer cancel()

	attempts := 0
	for {
		attempts++
		vec, err := l.readAll(ctx)
		if err == nil {
			return newSnapshot(vec, time.Now()), nil
		}
		l.logger.Debugw("initial read failed", "attempt", attempts, "error", err)

		select {
		case <-ctx.Done():
			return Snapshot{}, fmt.Errorf("no position after %d attempts in %s: %w", attempts, l.cfg.InitTimeout, err)
		case <-time.After(l.cfg.ReadPeriod):
		}
	}
}

// readAll assembles the full position vector from one read per batch.
func (l *Loop) readAll(ctx context.Context) ([]float64, error) {
	vec := make([]float64, rig.NumMotors)
	for _, b := range l.plan {
		vals, err := l.tr.ReadGroup(ctx, b.Family, b.IDs)
		if err != nil {
			return nil, err
		}
		if len(vals) != len(b.IDs) {
			return nil, &bus.ProtocolError{
				Op:     "read_group",
				Family: b.Family,
				Reason: fmt.Sprintf("got %d positions for %d motors", len(vals), len(b.IDs)),
			}
		}
		b.Scatter(vec, vals)
	}
	return vec, nil
}

func (l *Loop) run() {
	defer close(l.done)

	ctx := context.Background()
	ticker := time.NewTicker(l.cfg.ReadPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			l.closeErr = l.shutdown(ctx)
			return
		case cmd := <-l.commands:
			l.execute(ctx, cmd)
		case now := <-ticker.C:
			l.tick(ctx, now)
		}
	}
}

func (l *Loop) execute(ctx context.Context, cmd Command) {
	start := time.Now()
	err := apply(ctx, l.tr, l.cfg.Map, cmd)
	if l.stats != nil {
		l.stats.write(time.Since(start))
	}
	if err != nil {
		l.logger.Errorw("command failed", "command", fmt.Sprintf("%T", cmd), "error", err)
	}
}

func (l *Loop) tick(ctx context.Context, now time.Time) {
	start := time.Now()
	vec, err := l.readAll(ctx)
	read := time.Since(start)

	l.observe(vec, err, time.Now())
	if l.stats != nil {
		l.stats.tick(now, read)
	}

	l.ticks++
	if l.cfg.TelemetryEvery > 0 && l.ticks%l.cfg.TelemetryEvery == 0 {
		l.sampleTelemetry(ctx)
	}
}

// observe feeds one read result through the health machine and updates
// the cache. While degrading the cache keeps the last good snapshot.
func (l *Loop) observe(vec []float64, err error, now time.Time) {
	l.mu.Lock()
	prev := l.health
	l.health = prev.next(err, l.cfg.RetryThreshold)
	cur := l.health
	switch {
	case err == nil:
		l.result = PositionResult{Snapshot: newSnapshot(vec, now)}
	case cur.State == Faulted:
		l.result = PositionResult{Fault: cur.Fault}
	}
	l.mu.Unlock()

	switch {
	case err == nil && prev.State != Healthy:
		l.logger.Infow("position reads recovered", "failures", prev.Failures)
	case cur.State == Faulted && prev.State != Faulted:
		l.logger.Errorw("position reads faulted", "failures", cur.Failures, "error", err)
	case cur.State == Degrading:
		l.logger.Warnw("position read failed", "retry", cur.Failures, "threshold", l.cfg.RetryThreshold, "error", err)
	}
}

func (l *Loop) sampleTelemetry(ctx context.Context) {
	g := l.cfg.Map.Platform()
	t := Telemetry{At: time.Now()}

	current, err := l.tr.ReadI16(ctx, g.Family, bus.RegPresentCurrent, g.IDs)
	if err == nil {
		copy(t.Current[:], current)
		var modes []uint8
		modes, err = l.tr.ReadU8(ctx, g.Family, bus.RegOperatingMode, g.IDs)
		copy(t.Mode[:], modes)
	}
	if err != nil {
		t.Err = err
		l.logger.Debugw("telemetry read failed", "error", err)
	}

	l.mu.Lock()
	l.telemetry = t
	l.mu.Unlock()
}

// shutdown applies commands still in the queue, releases the motors and
// closes the bus. No command can be queued once stop is closed.
func (l *Loop) shutdown(ctx context.Context) error {
	pending := len(l.commands)
	if pending > 0 {
		l.logger.Infow("applying queued commands before shutdown", "count", pending)
	}
	for i := 0; i < pending; i++ {
		l.execute(ctx, <-l.commands)
	}

	err := enableAll(ctx, l.tr, l.cfg.Map, false)
	if err != nil {
		l.logger.Errorw("disable torque failed", "error", err)
	}
	err = multierr.Append(err, l.tr.Close())
	l.logger.Infow("control loop stopped", "ticks", l.ticks)
	return err
}

// PushCommand validates cmd and queues it for the worker. It never touches
// the bus. A full queue blocks or fails depending on the Backpressure
// setting. Every accepted command is applied exactly once, also when Close
// follows right after.
func (l *Loop) PushCommand(ctx context.Context, cmd Command) error {
	if err := validate(cmd, l.cfg.Map, l.cfg.Calibration); err != nil {
		return err
	}

	l.pushMu.RLock()
	defer l.pushMu.RUnlock()

	select {
	case <-l.stop:
		return &QueueError{Err: ErrClosed}
	default:
	}

	select {
	case l.commands <- cmd:
		return nil
	default:
	}
	if l.cfg.Backpressure == Fail {
		return &QueueError{Err: ErrQueueFull}
	}

	select {
	case l.commands <- cmd:
		return nil
	case <-l.stop:
		return &QueueError{Err: ErrClosed}
	case <-ctx.Done():
		return &QueueError{Err: ctx.Err()}
	}
}

// Result returns the content of the position cache.
func (l *Loop) Result() PositionResult {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.result
}

// LastPosition returns the latest snapshot, or a *FaultError while reads
// are faulted.
func (l *Loop) LastPosition() (Snapshot, error) {
	r := l.Result()
	return r.Snapshot, r.Err()
}

// Health returns the polling state.
func (l *Loop) Health() Health {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.health
}

// Stats returns the visible stats window. ok is false when stats are disabled.
func (l *Loop) Stats() (w StatsWindow, ok bool) {
	if l.stats == nil {
		return StatsWindow{}, false
	}
	return l.stats.window(), true
}

// Telemetry returns the latest platform telemetry sample. ok is false until
// the first sample was taken.
func (l *Loop) Telemetry() (t Telemetry, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.telemetry, !l.telemetry.At.IsZero()
}

// Map returns the actuator map the loop drives.
func (l *Loop) Map() *rig.ActuatorMap {
	return l.cfg.Map
}

// Close stops the worker, which disables torque and closes the bus. It
// waits for the worker until ctx is done. Calling Close again returns the
// same result.
func (l *Loop) Close(ctx context.Context) error {
	l.pushMu.Lock()
	l.stopOnce.Do(func() { close(l.stop) })
	l.pushMu.Unlock()
	select {
	case <-l.done:
		return l.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the worker has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
