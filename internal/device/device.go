// Package device models the compute-device capabilities the nonbonded core is
// built against: typed arrays, ordered execution queues with marker/barrier
// events, a parallel sort, and fixed-point force accumulation. A Context is
// the host-side stand-in for one device; its capability set is queried once
// and drives which engine variant gets built.
package device

import (
	"runtime"
	"sync"
)

// Capabilities describes what the device can do. Engines are selected from
// this once at initialization, never branched on in the hot path.
type Capabilities struct {
	// Supports64BitAtomics enables fixed-point scatter-add into grids.
	Supports64BitAtomics bool
	// IsCPU selects gather-style work partitioning over compute units.
	IsCPU bool
	// Vendor is the device vendor string, e.g. "NVIDIA".
	Vendor string
	// ComputeUnits is the number of parallel compute units.
	ComputeUnits int
	// NumContexts is the number of parallel execution contexts work is
	// partitioned across. NumContexts > 1 splits exceptions and energy
	// derivatives by contiguous index range.
	NumContexts int
	// ContextIndex identifies this context within [0, NumContexts).
	ContextIndex int
}

// HostCapabilities reports the capability set of the host treated as a
// single-context CPU device.
func HostCapabilities() Capabilities {
	return Capabilities{
		Supports64BitAtomics: true,
		IsCPU:                true,
		Vendor:               "host",
		ComputeUnits:         runtime.NumCPU(),
		NumContexts:          1,
	}
}

// Context owns the queues and shared accumulators for one device.
type Context struct {
	caps    Capabilities
	primary *Queue

	mu         sync.Mutex
	secondary  []*Queue
	workerPool *Pool
}

func NewContext(caps Capabilities) *Context {
	if caps.ComputeUnits <= 0 {
		caps.ComputeUnits = runtime.NumCPU()
	}
	if caps.NumContexts <= 0 {
		caps.NumContexts = 1
	}
	return &Context{
		caps:       caps,
		primary:    NewQueue(),
		workerPool: NewPool(caps.ComputeUnits),
	}
}

func (c *Context) Capabilities() Capabilities { return c.caps }

// Queue returns the primary command queue.
func (c *Context) Queue() *Queue { return c.primary }

// NewQueue creates a secondary command queue. Ordering against the primary
// queue is established only through marker/barrier events.
func (c *Context) NewQueue() *Queue {
	q := NewQueue()
	c.mu.Lock()
	c.secondary = append(c.secondary, q)
	c.mu.Unlock()
	return q
}

// Pool returns the fixed worker pool used for host-side gather/scatter.
func (c *Context) Pool() *Pool { return c.workerPool }

// Close drains all queues.
func (c *Context) Close() {
	c.primary.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range c.secondary {
		q.Close()
	}
	c.secondary = nil
}

// ContextSlice returns the contiguous index range [start,end) assigned to
// context i of count when n items are partitioned. Remainders are spread by
// the integer arithmetic itself: ranges never overlap and never leave gaps.
func ContextSlice(i, n, count int) (start, end int) {
	return i * n / count, (i + 1) * n / count
}
