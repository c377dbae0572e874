package obs

import (
	"sync/atomic"
	"time"

	"hftsim/internal/schema"
)

// Metrics holds the in-process counters of one run. Every method is safe on
// a nil receiver and from any goroutine.
type Metrics struct {
	events         [schema.EventFill + 1]atomic.Uint64
	rejections     [schema.RiskReasonRateLimit + 1]atomic.Uint64
	queueClosed    atomic.Uint64
	fillMismatches atomic.Uint64

	tickWait  LatencyStats
	fillDelay LatencyStats
	riskEval  LatencyStats
}

// LatencyStats keeps count, sum and extremes of duration samples.
type LatencyStats struct {
	count atomic.Uint64
	sum   atomic.Uint64
	min   atomic.Uint64
	max   atomic.Uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot is a copy of every counter. Zero counts are omitted from the maps.
type Snapshot struct {
	EventCounts      map[schema.EventType]uint64
	RiskReasonCounts map[schema.RiskReason]uint64
	QueueClosed      uint64
	FillMismatches   uint64
	TickLatency      LatencySnapshot
	OrderFlowLatency LatencySnapshot
	RiskEvalLatency  LatencySnapshot
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncEvent counts one pipeline event.
func (m *Metrics) IncEvent(typ schema.EventType) {
	if m == nil || int(typ) >= len(m.events) {
		return
	}
	m.events[typ].Add(1)
}

// ObserveTick counts a tick and records how long it waited between
// emission and handling.
func (m *Metrics) ObserveTick(tick schema.Tick, recv time.Time) {
	if m == nil {
		return
	}
	m.IncEvent(schema.EventTick)
	if tick.Ts.IsZero() || recv.IsZero() {
		return
	}
	m.tickWait.Observe(recv.Sub(tick.Ts))
}

// IncRiskReason counts a rejection.
func (m *Metrics) IncRiskReason(reason schema.RiskReason) {
	if m == nil || int(reason) >= len(m.rejections) {
		return
	}
	m.rejections[reason].Add(1)
}

// IncQueueClosed counts outboxes dropped because the order queue was closed.
func (m *Metrics) IncQueueClosed() {
	if m != nil {
		m.queueClosed.Add(1)
	}
}

// IncFillMismatch counts a fill that did not match a tracked order.
func (m *Metrics) IncFillMismatch() {
	if m != nil {
		m.fillMismatches.Add(1)
	}
}

// ObserveOrderFlow records the delay from order dispatch to its fill.
func (m *Metrics) ObserveOrderFlow(d time.Duration) {
	if m != nil {
		m.fillDelay.Observe(d)
	}
}

func (m *Metrics) ObserveRiskEval(d time.Duration) {
	if m != nil {
		m.riskEval.Observe(d)
	}
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	snap := Snapshot{
		EventCounts:      make(map[schema.EventType]uint64),
		RiskReasonCounts: make(map[schema.RiskReason]uint64),
		QueueClosed:      m.queueClosed.Load(),
		FillMismatches:   m.fillMismatches.Load(),
		TickLatency:      m.tickWait.Snapshot(),
		OrderFlowLatency: m.fillDelay.Snapshot(),
		RiskEvalLatency:  m.riskEval.Snapshot(),
	}
	for i := range m.events {
		if n := m.events[i].Load(); n > 0 {
			snap.EventCounts[schema.EventType(i)] = n
		}
	}
	for i := range m.rejections {
		if n := m.rejections[i].Load(); n > 0 {
			snap.RiskReasonCounts[schema.RiskReason(i)] = n
		}
	}
	return snap
}

// Observe records one sample. Negative durations are ignored.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	ns := uint64(d)
	// min is stored as ns+1 so zero still means "no sample yet".
	l.count.Add(1)
	l.sum.Add(ns)
	for {
		cur := l.min.Load()
		if cur != 0 && ns+1 >= cur {
			break
		}
		if l.min.CompareAndSwap(cur, ns+1) {
			break
		}
	}
	for {
		cur := l.max.Load()
		if ns <= cur {
			break
		}
		if l.max.CompareAndSwap(cur, ns) {
			break
		}
	}
}

func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := l.count.Load()
	if count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(l.min.Load() - 1),
		Max:   time.Duration(l.max.Load()),
		Avg:   time.Duration(l.sum.Load() / count),
	}
}
