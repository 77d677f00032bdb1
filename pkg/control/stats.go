package control

import (
	"fmt"
	"sync"
	"time"
)

// StatsWindow holds timing samples flushed from the worker.
type StatsWindow struct {
	Period        time.Duration
	TickSpacing   []time.Duration
	ReadDuration  []time.Duration
	WriteDuration []time.Duration
}

// SeriesSummary condenses one sample series.
type SeriesSummary struct {
	Count int
	Mean  time.Duration
	Max   time.Duration
}

func summarize(samples []time.Duration) SeriesSummary {
	s := SeriesSummary{Count: len(samples)}
	if s.Count == 0 {
		return s
	}
	var total time.Duration
	for _, d := range samples {
		total += d
		s.Max = max(s.Max, d)
	}
	s.Mean = total / time.Duration(s.Count)
	return s
}

func (s SeriesSummary) String() string {
	return fmt.Sprintf("n=%d mean=%s max=%s", s.Count, s.Mean, s.Max)
}

// StatsSummary condenses a window for display.
type StatsSummary struct {
	TickSpacing   SeriesSummary
	ReadDuration  SeriesSummary
	WriteDuration SeriesSummary
}

// Summary returns count, mean and max of each series.
func (w StatsWindow) Summary() StatsSummary {
	return StatsSummary{
		TickSpacing:   summarize(w.TickSpacing),
		ReadDuration:  summarize(w.ReadDuration),
		WriteDuration: summarize(w.WriteDuration),
	}
}

func (w StatsWindow) String() string {
	s := w.Summary()
	return fmt.Sprintf("stats(period=%s tick[%s] read[%s] write[%s])",
		w.Period, s.TickSpacing, s.ReadDuration, s.WriteDuration)
}

// stats buffers samples locally in the worker and moves them into the
// visible window every period. The visible window keeps the newest limit
// samples per series.
type stats struct {
	period time.Duration
	limit  int

	local     StatsWindow
	lastTick  time.Time
	lastFlush time.Time

	mu      sync.Mutex
	visible StatsWindow
}

func newStats(period time.Duration, limit int, now time.Time) *stats {
	return &stats{
		period:    period,
		limit:     limit,
		lastFlush: now,
		visible:   StatsWindow{Period: period},
	}
}

// tick records one position read and flushes when the period elapsed.
func (s *stats) tick(now time.Time, read time.Duration) {
	if !s.lastTick.IsZero() {
		s.local.TickSpacing = append(s.local.TickSpacing, now.Sub(s.lastTick))
	}
	s.lastTick = now
	s.local.ReadDuration = append(s.local.ReadDuration, read)

	if now.Sub(s.lastFlush) >= s.period {
		s.flush(now)
	}
}

// write records one command's bus time.
func (s *stats) write(d time.Duration) {
	s.local.WriteDuration = append(s.local.WriteDuration, d)
}

func (s *stats) flush(now time.Time) {
	s.mu.Lock()
	s.visible.TickSpacing = appendBounded(s.visible.TickSpacing, s.local.TickSpacing, s.limit)
	s.visible.ReadDuration = appendBounded(s.visible.ReadDuration, s.local.ReadDuration, s.limit)
	s.visible.WriteDuration = appendBounded(s.visible.WriteDuration, s.local.WriteDuration, s.limit)
	s.mu.Unlock()

	s.local.TickSpacing = s.local.TickSpacing[:0]
	s.local.ReadDuration = s.local.ReadDuration[:0]
	s.local.WriteDuration = s.local.WriteDuration[:0]
	s.lastFlush = now
}

// window returns a copy of the visible window.
func (s *stats) window() StatsWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsWindow{
		Period:        s.visible.Period,
		TickSpacing:   append([]time.Duration(nil), s.visible.TickSpacing...),
		ReadDuration:  append([]time.Duration(nil), s.visible.ReadDuration...),
		WriteDuration: append([]time.Duration(nil), s.visible.WriteDuration...),
	}
}

func appendBounded(dst, src []time.Duration, limit int) []time.Duration {
	dst = append(dst, src...)
	if limit > 0 && len(dst) > limit {
		dst = append(dst[:0:0], dst[len(dst)-limit:]...)
	}
	return dst
}
