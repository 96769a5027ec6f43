package nonbonded

import (
	"fmt"
	"sync"

	"github.com/mdkit/ewald/internal/device"
	"github.com/mdkit/ewald/internal/unit"
)

// Precision selects the storage representation for positions, grids and
// forces. It is fixed per Context; every kernel argument that depends on it
// is bound in the matching representation.
type Precision int

const (
	// Single stores everything as float32.
	Single Precision = iota
	// Mixed stores positions as a float32 primary plus a float32 correction
	// that together carry extra precision; forces stay single.
	Mixed
	// Double stores everything as float64.
	Double
)

func (p Precision) String() string {
	switch p {
	case Single:
		return "single"
	case Mixed:
		return "mixed"
	case Double:
		return "double"
	}
	return fmt.Sprintf("precision(%d)", int(p))
}

// ChargePacking selects where per-particle charges live. PackedInPositions
// stores them in the position buffer's fourth lane, which the CPU offload
// path requires.
type ChargePacking int

const (
	SeparateChargeBuffer ChargePacking = iota
	PackedInPositions
)

// Context is the shared simulation state one device evaluates against:
// positions in the active precision, box vectors, global parameter values,
// and the fixed-point force and energy accumulators all forces add into.
type Context struct {
	dev       *device.Context
	precision Precision
	packing   ChargePacking
	n         int

	box unit.Box

	// Position storage. posPrimary is always populated; posCorrection only
	// in mixed mode, posDouble only in double mode.
	posPrimary    *device.Array[unit.Vec3f]
	posCorrection *device.Array[unit.Vec3f]
	posDouble     *device.Array[unit.Vec3]

	forces *device.FixedPointAccumulator // 3 lanes per particle
	energy *device.FixedPointAccumulator // 1 lane per compute unit

	params map[string]float64

	derivMu      *sync.Mutex
	energyDerivs map[string]float64
}

func NewContext(dev *device.Context, n int, precision Precision, packing ChargePacking, box unit.Box) *Context {
	c := &Context{
		dev:          dev,
		precision:    precision,
		packing:      packing,
		n:            n,
		box:          box,
		forces:       device.NewFixedPointAccumulator(3 * n),
		energy:       device.NewFixedPointAccumulator(dev.Capabilities().ComputeUnits),
		params:       make(map[string]float64),
		derivMu:      &sync.Mutex{},
		energyDerivs: make(map[string]float64),
	}
	switch precision {
	case Double:
		c.posDouble = device.NewArray[unit.Vec3]("posq", n)
	case Mixed:
		c.posPrimary = device.NewArray[unit.Vec3f]("posq", n)
		c.posCorrection = device.NewArray[unit.Vec3f]("posqCorrection", n)
	default:
		c.posPrimary = device.NewArray[unit.Vec3f]("posq", n)
	}
	return c
}

func (c *Context) Device() *device.Context   { return c.dev }
func (c *Context) NumParticles() int         { return c.n }
func (c *Context) Precision() Precision      { return c.precision }
func (c *Context) Packing() ChargePacking    { return c.packing }
func (c *Context) Box() unit.Box             { return c.box }
func (c *Context) SetBox(b unit.Box)         { c.box = b }
func (c *Context) Parameter(name string) float64 {
	return c.params[name]
}
func (c *Context) SetParameter(name string, value float64) {
	c.params[name] = value
}

// shadow returns a context sharing this one's positions and box but with
// private accumulators. The offload pipeline computes into a shadow so its
// results can be merged into the shared accumulators at a defined point.
func (c *Context) shadow() *Context {
	s := *c
	s.forces = device.NewFixedPointAccumulator(3 * c.n)
	s.energy = device.NewFixedPointAccumulator(c.energy.Len())
	s.derivMu = &sync.Mutex{}
	s.energyDerivs = make(map[string]float64)
	return &s
}

// SetPositions stores positions in the context's precision. In mixed mode
// the correction term carries the part lost to float32 rounding.
func (c *Context) SetPositions(pos []unit.Vec3) error {
	if len(pos) != c.n {
		return fmt.Errorf("%w: %d positions for %d particles", device.ErrSizeMismatch, len(pos), c.n)
	}
	switch c.precision {
	case Double:
		return c.posDouble.Upload(pos)
	case Mixed:
		primary := make([]unit.Vec3f, c.n)
		correction := make([]unit.Vec3f, c.n)
		for i, p := range pos {
			primary[i] = p.ToFloat32()
			correction[i] = p.Sub(primary[i].ToFloat64()).ToFloat32()
		}
		if err := c.posPrimary.Upload(primary); err != nil {
			return err
		}
		return c.posCorrection.Upload(correction)
	default:
		primary := make([]unit.Vec3f, c.n)
		for i, p := range pos {
			primary[i] = p.ToFloat32()
		}
		return c.posPrimary.Upload(primary)
	}
}

// Position reconstructs particle i's position at the context's precision.
func (c *Context) Position(i int) unit.Vec3 {
	switch c.precision {
	case Double:
		return c.posDouble.Data()[i]
	case Mixed:
		p := c.posPrimary.Data()[i].ToFloat64()
		return p.Add(c.posCorrection.Data()[i].ToFloat64())
	default:
		return c.posPrimary.Data()[i].ToFloat64()
	}
}

// Forces downloads the accumulated forces, converted from fixed point.
func (c *Context) Forces() []unit.Vec3 {
	vals := make([]float64, 3*c.n)
	c.forces.Values(vals)
	out := make([]unit.Vec3, c.n)
	for i := range out {
		out[i] = unit.Vec3{X: vals[3*i], Y: vals[3*i+1], Z: vals[3*i+2]}
	}
	return out
}

// AddForce accumulates a force contribution for particle i.
func (c *Context) AddForce(i int, f unit.Vec3) {
	c.forces.Add(3*i, f.X)
	c.forces.Add(3*i+1, f.Y)
	c.forces.Add(3*i+2, f.Z)
}

// ClearForces zeroes the shared force and energy accumulators and the
// per-parameter derivative map.
func (c *Context) ClearForces() {
	c.forces.Clear()
	c.energy.Clear()
	c.derivMu.Lock()
	for k := range c.energyDerivs {
		c.energyDerivs[k] = 0
	}
	c.derivMu.Unlock()
}

// AddEnergy accumulates an energy contribution. Like forces it goes through
// the fixed-point accumulator so concurrent writers sum deterministically.
func (c *Context) AddEnergy(v float64) {
	c.energy.Add(0, v)
}

// Energy returns the accumulated energy since the last ClearForces.
func (c *Context) Energy() float64 {
	vals := make([]float64, c.energy.Len())
	c.energy.Values(vals)
	total := 0.0
	for _, v := range vals {
		total += v
	}
	return total
}

// AddEnergyDerivative accumulates dE/d(param). Safe for concurrent use: the
// direct-space workers and the reciprocal queue both contribute.
func (c *Context) AddEnergyDerivative(param string, v float64) {
	c.derivMu.Lock()
	c.energyDerivs[param] += v
	c.derivMu.Unlock()
}

// EnergyDerivatives returns the per-named-parameter energy derivatives
// accumulated during the last evaluation.
func (c *Context) EnergyDerivatives() map[string]float64 {
	c.derivMu.Lock()
	defer c.derivMu.Unlock()
	out := make(map[string]float64, len(c.energyDerivs))
	for k, v := range c.energyDerivs {
		out[k] = v
	}
	return out
}
