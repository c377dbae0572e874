package state

import (
	"fmt"
	"math"
	"sort"
)

// Snapshot captures positions at a point in the run.
type Snapshot struct {
	Seq       uint64          `json:"seq"`
	Cash      float64         `json:"cash"`
	Positions []PositionEntry `json:"positions"`
}

// PositionEntry is a single keyed position.
type PositionEntry struct {
	Key string  `json:"key"`
	Qty float64 `json:"qty"`
}

// Snapshot builds a snapshot from current positions.
func (r *PositionReducer) Snapshot() Snapshot {
	return r.SnapshotAt(0)
}

// SnapshotAt builds a snapshot tagged with the simulator sequence.
func (r *PositionReducer) SnapshotAt(seq uint64) Snapshot {
	return SnapshotOf(seq, r.Cash(), r.positions)
}

// SnapshotOf builds a key-ordered snapshot from a position map.
func SnapshotOf(seq uint64, cash float64, positions map[string]float64) Snapshot {
	entries := make([]PositionEntry, 0, len(positions))
	for key, qty := range positions {
		entries = append(entries, PositionEntry{Key: key, Qty: qty})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	return Snapshot{
		Seq:       seq,
		Cash:      cash,
		Positions: entries,
	}
}

// CompareSnapshots checks if two snapshots hold bit-identical positions.
func CompareSnapshots(expected, actual Snapshot) error {
	if len(expected.Positions) != len(actual.Positions) {
		return fmt.Errorf("snapshot length mismatch: expected=%d actual=%d", len(expected.Positions), len(actual.Positions))
	}
	expectedMap := make(map[string]float64, len(expected.Positions))
	for _, entry := range expected.Positions {
		expectedMap[entry.Key] = entry.Qty
	}
	for _, entry := range actual.Positions {
		want, ok := expectedMap[entry.Key]
		if !ok {
			return fmt.Errorf("snapshot missing key: %s", entry.Key)
		}
		if math.Float64bits(want) != math.Float64bits(entry.Qty) {
			return fmt.Errorf("snapshot qty mismatch: key=%s expected=%v actual=%v", entry.Key, want, entry.Qty)
		}
	}
	return nil
}
