package control

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/edaniels/golog"

	"github.com/gwillem/minirig/pkg/rig"
)

var errRead = errors.New("read timeout")

func TestHealth_Next(t *testing.T) {
	tests := []struct {
		name      string
		reads     []error
		threshold int
		want      State
		failures  int
	}{
		{"all good", []error{nil, nil}, 3, Healthy, 0},
		{"below threshold", []error{errRead, errRead}, 3, Degrading, 2},
		{"at threshold", []error{errRead, errRead, errRead}, 3, Faulted, 3},
		{"past threshold", []error{errRead, errRead, errRead, errRead}, 3, Faulted, 4},
		{"recovers from degrading", []error{errRead, nil}, 3, Healthy, 0},
		{"recovers from fault", []error{errRead, errRead, errRead, nil}, 3, Healthy, 0},
		{"counter resets", []error{errRead, errRead, nil, errRead, errRead}, 3, Degrading, 2},
		{"threshold one", []error{errRead}, 1, Faulted, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h Health
			for _, err := range tt.reads {
				h = h.next(err, tt.threshold)
			}
			if h.State != tt.want || h.Failures != tt.failures {
				t.Errorf("got %s with %d failures, want %s with %d", h.State, h.Failures, tt.want, tt.failures)
			}
			if (h.State == Faulted) != (h.Fault != "") {
				t.Errorf("fault message %q in state %s", h.Fault, h.State)
			}
		})
	}
}

// cacheLoop builds a loop without a worker, for driving observe directly.
func cacheLoop(t *testing.T, threshold int) *Loop {
	return &Loop{
		cfg:    Config{RetryThreshold: threshold},
		logger: golog.NewTestLogger(t),
	}
}

func TestObserve_StaleSnapshotWhileDegrading(t *testing.T) {
	l := cacheLoop(t, 3)
	first := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}
	l.observe(first, nil, time.Unix(100, 0))
	before := l.Result()

	l.observe(nil, errRead, time.Unix(101, 0))
	l.observe(nil, errRead, time.Unix(102, 0))

	if got := l.Result(); got != before {
		t.Errorf("cache changed while degrading: %+v, want %+v", got, before)
	}
	if h := l.Health(); h.State != Degrading || h.Failures != 2 {
		t.Errorf("health = %s, want degrading(2)", h)
	}
}

func TestObserve_FaultThenRecover(t *testing.T) {
	l := cacheLoop(t, 3)
	l.observe(make([]float64, rig.NumMotors), nil, time.Unix(100, 0))

	for i := 0; i < 3; i++ {
		l.observe(nil, errRead, time.Unix(101, 0))
	}
	if _, err := l.LastPosition(); err == nil {
		t.Fatal("expected fault after threshold")
	} else {
		var fe *FaultError
		if !errors.As(err, &fe) {
			t.Errorf("got %T, want *FaultError", err)
		}
	}

	next := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	l.observe(next, nil, time.Unix(103, 0))
	snap, err := l.LastPosition()
	if err != nil {
		t.Fatalf("fault should clear on success: %v", err)
	}
	if snap.BodyYaw != 1 || snap.Antennas != [2]float64{2, 3} || snap.Platform != [6]float64{4, 5, 6, 7, 8, 9} {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Timestamp != 103 {
		t.Errorf("timestamp = %f, want 103", snap.Timestamp)
	}
}

func TestSnapshot_Conversions(t *testing.T) {
	vec := []float64{math.Pi, 0, 0, math.Pi / 2, 0, 0, 0, 0, -math.Pi / 2}
	s := newSnapshot(vec, time.Unix(5, 500_000_000))

	if got := s.Vector(); len(got) != rig.NumMotors || got[0] != math.Pi || got[8] != -math.Pi/2 {
		t.Errorf("Vector() = %v", got)
	}
	deg := s.Degrees()
	if math.Abs(deg[0]-180) > 1e-9 || math.Abs(deg[3]-90) > 1e-9 {
		t.Errorf("Degrees() = %v", deg)
	}
	if got := s.Time(); got.Sub(time.Unix(5, 500_000_000)).Abs() > time.Microsecond {
		t.Errorf("Time() = %v", got)
	}
}
