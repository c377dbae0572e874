package obs

import "sync/atomic"

// Sequence hands out monotonically increasing identifiers starting after seed.
type Sequence struct {
	next uint64
}

// NewSequence returns a sequence whose first value is seed+1.
func NewSequence(seed uint64) *Sequence {
	return &Sequence{next: seed}
}

// Next returns the next identifier.
func (s *Sequence) Next() uint64 {
	if s == nil {
		return 0
	}
	return atomic.AddUint64(&s.next, 1)
}

// Last returns the most recently issued identifier.
func (s *Sequence) Last() uint64 {
	if s == nil {
		return 0
	}
	return atomic.LoadUint64(&s.next)
}
