package nonbonded

import (
	"strings"

	"github.com/mdkit/ewald/internal/device"
)

// offloadVendors lists the device vendors whose reciprocal Coulomb work is
// worth moving to the host while the device runs direct space.
var offloadVendors = []string{"intel"}

// offloadAvailable reports whether the CPU-offload pipeline can serve this
// configuration. Absence is never an error; the caller falls back to running
// the grid engine in line.
func offloadAvailable(s Settings, caps device.Capabilities, packing ChargePacking) bool {
	if s.Method != PME || s.DoLJPME {
		return false
	}
	if !caps.Supports64BitAtomics || caps.IsCPU {
		return false
	}
	if packing != PackedInPositions {
		return false
	}
	vendor := strings.ToLower(caps.Vendor)
	for _, v := range offloadVendors {
		if strings.Contains(vendor, v) {
			return true
		}
	}
	return false
}

// offloadPipeline runs the Coulomb reciprocal computation on the host,
// overlapped with device direct-space work. begin starts the computation
// asynchronously; finish blocks on its completion token and merges the
// result into the shared accumulators.
type offloadPipeline struct {
	engine reciprocalEngine
	result chan offloadResult
}

type offloadResult struct {
	shadow *Context
	energy float64
	err    error
}

func newOffloadPipeline(engine reciprocalEngine) *offloadPipeline {
	return &offloadPipeline{engine: engine, result: make(chan offloadResult, 1)}
}

// begin snapshots the context into a shadow with private accumulators and
// starts the reciprocal computation. Must be paired with exactly one finish.
func (p *offloadPipeline) begin(ctx *Context, s Settings, values []float64, derivs []spreadDeriv, includeForces, includeEnergy bool) {
	shadow := ctx.shadow()
	go func() {
		energy, err := p.engine.execute(shadow, s, values, derivs, includeForces, includeEnergy)
		p.result <- offloadResult{shadow: shadow, energy: energy, err: err}
	}()
}

// finish waits for the host computation, then submits the merge onto the
// device queue so it lands after the direct-space reduction.
func (p *offloadPipeline) finish(ctx *Context, includeForces bool) (float64, error) {
	r := <-p.result
	if r.err != nil {
		return 0, r.err
	}
	for name, v := range r.shadow.EnergyDerivatives() {
		ctx.AddEnergyDerivative(name, v)
	}
	if includeForces {
		queue := ctx.Device().Queue()
		queue.Submit(func() {
			for i, f := range r.shadow.Forces() {
				ctx.AddForce(i, f)
			}
		})
		queue.Sync()
	}
	return r.energy, nil
}
