package device

import "sync/atomic"

// fixedPointScale converts between floating point values and the 32.32
// fixed-point representation used for concurrent accumulation. Integer adds
// commute exactly, so concurrent unordered writers always produce the same
// sum.
const fixedPointScale = 0x100000000

// FixedPointAccumulator holds one fixed-point lane per value. It backs both
// the shared force buffer (three lanes per particle) and the energy buffer.
type FixedPointAccumulator struct {
	lanes []int64
}

func NewFixedPointAccumulator(n int) *FixedPointAccumulator {
	return &FixedPointAccumulator{lanes: make([]int64, n)}
}

// WrapFixedPoint accumulates into caller-owned storage, letting a reused
// staging buffer serve as the accumulator without reallocation.
func WrapFixedPoint(lanes []int64) *FixedPointAccumulator {
	return &FixedPointAccumulator{lanes: lanes}
}

func (a *FixedPointAccumulator) Len() int { return len(a.lanes) }

// Add atomically accumulates v into lane i.
func (a *FixedPointAccumulator) Add(i int, v float64) {
	atomic.AddInt64(&a.lanes[i], int64(v*fixedPointScale))
}

// AddRaw accumulates an already-scaled fixed point value.
func (a *FixedPointAccumulator) AddRaw(i int, v int64) {
	atomic.AddInt64(&a.lanes[i], v)
}

// Value converts lane i back to floating point.
func (a *FixedPointAccumulator) Value(i int) float64 {
	return float64(atomic.LoadInt64(&a.lanes[i])) / fixedPointScale
}

// Values converts all lanes back to floating point.
func (a *FixedPointAccumulator) Values(dst []float64) {
	for i := range a.lanes {
		dst[i] = float64(atomic.LoadInt64(&a.lanes[i])) / fixedPointScale
	}
}

// Clear zeroes all lanes.
func (a *FixedPointAccumulator) Clear() {
	for i := range a.lanes {
		atomic.StoreInt64(&a.lanes[i], 0)
	}
}
