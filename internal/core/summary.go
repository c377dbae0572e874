package core

import (
	"fmt"
	"sort"
	"strings"

	"hftsim/internal/obs"
	"hftsim/internal/schema"
	"hftsim/internal/state"
	"hftsim/internal/strategy"
)

// Summary is the end-of-run report.
type Summary struct {
	Strategy       strategy.Kind
	Seq            uint64
	Ticks          uint64
	Proposed       uint64
	Admitted       uint64
	Rejected       map[schema.RiskReason]uint64
	Fills          uint64
	FillMismatches uint64
	Outstanding    int
	Inventory      map[string]float64
	PnL            float64

	TickWait  obs.LatencySnapshot
	FillDelay obs.LatencySnapshot
	RiskEval  obs.LatencySnapshot
}

// Summary collects counters, inventory and mark-to-market P&L.
func (c *Coordinator) Summary() Summary {
	snap := c.metrics.Snapshot()
	rejected := make(map[schema.RiskReason]uint64, len(snap.RiskReasonCounts))
	for reason, n := range snap.RiskReasonCounts {
		if reason != schema.RiskReasonNone && n > 0 {
			rejected[reason] = n
		}
	}
	return Summary{
		Strategy:       c.engine.Kind(),
		Seq:            c.seq,
		Ticks:          snap.EventCounts[schema.EventTick],
		Proposed:       snap.EventCounts[schema.EventOrderIntent],
		Admitted:       snap.EventCounts[schema.EventOrderSent],
		Rejected:       rejected,
		Fills:          snap.EventCounts[schema.EventFill],
		FillMismatches: snap.FillMismatches,
		Outstanding:    c.gateway.Tracker().Outstanding(),
		Inventory:      c.engine.Inventory(),
		PnL:            c.engine.PnL(c.marks),
		TickWait:       snap.TickLatency,
		FillDelay:      snap.OrderFlowLatency,
		RiskEval:       snap.RiskEvalLatency,
	}
}

// Snapshot returns the final inventory as a key-ordered position snapshot.
func (s Summary) Snapshot() state.Snapshot {
	return state.SnapshotOf(s.Seq, 0, s.Inventory)
}

// RejectedTotal sums rejections over every reason.
func (s Summary) RejectedTotal() uint64 {
	var n uint64
	for _, v := range s.Rejected {
		n += v
	}
	return n
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "strategy=%s seq=%d ticks=%d proposed=%d admitted=%d rejected=%d",
		s.Strategy, s.Seq, s.Ticks, s.Proposed, s.Admitted, s.RejectedTotal())
	reasons := make([]schema.RiskReason, 0, len(s.Rejected))
	for r := range s.Rejected {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	for _, r := range reasons {
		fmt.Fprintf(&b, " %s=%d", r, s.Rejected[r])
	}
	fmt.Fprintf(&b, " fills=%d mismatches=%d outstanding=%d pnl=%.4f", s.Fills, s.FillMismatches, s.Outstanding, s.PnL)
	fmt.Fprintf(&b, " tick_wait_avg=%s fill_delay_avg=%s risk_eval_avg=%s", s.TickWait.Avg, s.FillDelay.Avg, s.RiskEval.Avg)
	for _, e := range s.Snapshot().Positions {
		fmt.Fprintf(&b, " %s=%g", e.Key, e.Qty)
	}
	return b.String()
}
