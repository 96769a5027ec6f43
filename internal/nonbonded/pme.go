package nonbonded

import (
	"math"
	"sort"

	"github.com/mdkit/ewald/internal/device"
	"github.com/mdkit/ewald/internal/fft"
	"github.com/mdkit/ewald/internal/unit"
)

// spreadStrategy picks how particle values reach the grid. The choice is
// made once from the device capability set.
type spreadStrategy int

const (
	// atomicSpread scatters fixed-point values with atomic adds; no sort.
	atomicSpread spreadStrategy = iota
	// sortedSpread orders particles by grid index and gathers per grid slab,
	// for devices without 64-bit atomics.
	sortedSpread
	// cpuSpread gathers over a fixed multiple of the compute units, which
	// schedules better on CPU devices than one worker per particle.
	cpuSpread
)

// gridBuffers is the grid storage shared between the Coulomb and dispersion
// engines. Both are sized at construction to the larger of the two grids and
// reused every evaluation; the two engines never run concurrently.
type gridBuffers struct {
	grid   []complex128
	fixed  []int64
	sorted []device.KeyValue
}

func newGridBuffers(cells, particles int) *gridBuffers {
	return &gridBuffers{
		grid:   make([]complex128, cells),
		fixed:  make([]int64, cells),
		sorted: make([]device.KeyValue, particles),
	}
}

// pmeEngine is the grid/FFT reciprocal engine: assign grid cells, spread
// values with order-4 B-splines, convolve through a 3D FFT, interpolate
// forces back. The same type serves the Coulomb and the dispersion grid,
// differing only in the influence function.
type pmeEngine struct {
	size       [3]int
	ntot       int
	alpha      float64
	dispersion bool

	moduli  [3][]float64
	plan    *fft.Plan3D
	buffers *gridBuffers

	strategy   spreadStrategy
	partitions int
}

func newPMEEngine(s Settings, caps device.Capabilities, dispersion bool, buffers *gridBuffers) (*pmeEngine, error) {
	e := &pmeEngine{
		dispersion: dispersion,
		buffers:    buffers,
	}
	if dispersion {
		e.size = s.DispersionGridSize
		e.alpha = s.DispersionAlpha
	} else {
		e.size = s.GridSize
		e.alpha = s.Alpha
	}
	e.ntot = e.size[0] * e.size[1] * e.size[2]
	for axis := 0; axis < 3; axis++ {
		e.moduli[axis] = bsplineModuli(e.size[axis])
	}
	plan, err := fft.NewPlan3D(e.size[0], e.size[1], e.size[2])
	if err != nil {
		return nil, err
	}
	e.plan = plan

	switch {
	case caps.IsCPU:
		e.strategy = cpuSpread
		e.partitions = 2 * caps.ComputeUnits
	case caps.Supports64BitAtomics:
		e.strategy = atomicSpread
	default:
		e.strategy = sortedSpread
	}
	return e, nil
}

func (e *pmeEngine) description() string {
	if e.dispersion {
		return "ljpme"
	}
	return "pme"
}

// cell holds one particle's grid placement: base cell per axis and the
// fractional offset the spline weights are evaluated at.
type cell struct {
	base [3]int
	w    [3]float64
}

func (e *pmeEngine) assign(box unit.Box, p unit.Vec3) cell {
	r := box.Reciprocal()
	t := [3]float64{
		p.X*r[0].X + p.Y*r[1].X + p.Z*r[2].X,
		p.Y*r[1].Y + p.Z*r[2].Y,
		p.Z * r[2].Z,
	}
	var c cell
	for axis := 0; axis < 3; axis++ {
		f := t[axis] - math.Floor(t[axis])
		u := f * float64(e.size[axis])
		base := int(u)
		if base >= e.size[axis] {
			base = e.size[axis] - 1
		}
		c.base[axis] = base
		c.w[axis] = u - float64(base)
	}
	return c
}

func (e *pmeEngine) flatIndex(x, y, z int) int {
	return (x*e.size[1]+y)*e.size[2] + z
}

// spreadParticle adds one particle's footprint onto the grid through add.
// Cells wrap periodically; theta[j] weights base-(PmeOrder-1)+j per axis.
func (e *pmeEngine) spreadParticle(c cell, value float64, add func(index int, v float64)) {
	tx, _ := bsplineWeights(c.w[0])
	ty, _ := bsplineWeights(c.w[1])
	tz, _ := bsplineWeights(c.w[2])
	nx, ny, nz := e.size[0], e.size[1], e.size[2]
	for ix := 0; ix < PmeOrder; ix++ {
		gx := (c.base[0] - (PmeOrder - 1) + ix + nx) % nx
		for iy := 0; iy < PmeOrder; iy++ {
			gy := (c.base[1] - (PmeOrder - 1) + iy + ny) % ny
			vxy := value * tx[ix] * ty[iy]
			for iz := 0; iz < PmeOrder; iz++ {
				gz := (c.base[2] - (PmeOrder - 1) + iz + nz) % nz
				add(e.flatIndex(gx, gy, gz), vxy*tz[iz])
			}
		}
	}
}

// spread clears the grid and distributes all particle values onto it using
// the strategy selected at construction.
func (e *pmeEngine) spread(ctx *Context, values []float64, cells []cell) {
	grid := e.buffers.grid[:e.ntot]
	for i := range grid {
		grid[i] = 0
	}
	pool := ctx.Device().Pool()
	switch e.strategy {
	case atomicSpread:
		fixed := e.buffers.fixed[:e.ntot]
		acc := device.WrapFixedPoint(fixed)
		acc.Clear()
		pool.Run(len(cells), func(start, end int) {
			for i := start; i < end; i++ {
				if values[i] == 0 {
					continue
				}
				e.spreadParticle(cells[i], values[i], func(index int, v float64) {
					acc.Add(index, v)
				})
			}
		})
		// Finishing pass: restore floating point values.
		pool.Run(e.ntot, func(start, end int) {
			for i := start; i < end; i++ {
				grid[i] = complex(acc.Value(i), 0)
			}
		})

	case sortedSpread:
		records := e.buffers.sorted[:len(cells)]
		for i, c := range cells {
			records[i] = device.KeyValue{
				Key:   int32(e.flatIndex(c.base[0], c.base[1], c.base[2])),
				Value: int32(i),
			}
		}
		device.SortByKey(pool, records)
		pool.Run(e.size[0], func(x0, x1 int) {
			e.gatherSlab(records, values, cells, grid, x0, x1)
		})

	default:
		parts := e.partitions
		pool.Run(parts, func(p0, p1 int) {
			for p := p0; p < p1; p++ {
				x0, x1 := device.ContextSlice(p, e.size[0], parts)
				for i, c := range cells {
					if values[i] == 0 {
						continue
					}
					e.spreadParticle(c, values[i], func(index int, v float64) {
						x := index / (e.size[1] * e.size[2])
						if x >= x0 && x < x1 {
							grid[index] += complex(v, 0)
						}
					})
				}
			}
		})
	}
}

// gatherSlab spreads the particles whose footprint reaches grid rows
// [x0,x1). The sorted order makes those particles a handful of contiguous
// key ranges found by binary search, so workers never scan the full list.
func (e *pmeEngine) gatherSlab(records []device.KeyValue, values []float64, cells []cell, grid []complex128, x0, x1 int) {
	nx := e.size[0]
	rowCells := e.size[1] * e.size[2]
	seen := make(map[int32]bool)
	for bx := x0; bx <= x1-1+(PmeOrder-1); bx++ {
		wx := ((bx % nx) + nx) % nx
		lo := sort.Search(len(records), func(i int) bool { return records[i].Key >= int32(wx*rowCells) })
		hi := sort.Search(len(records), func(i int) bool { return records[i].Key >= int32((wx+1)*rowCells) })
		for _, rec := range records[lo:hi] {
			if seen[rec.Value] {
				continue
			}
			seen[rec.Value] = true
			i := int(rec.Value)
			if values[i] == 0 {
				continue
			}
			e.spreadParticle(cells[i], values[i], func(index int, v float64) {
				x := index / rowCells
				if x >= x0 && x < x1 {
					grid[index] += complex(v, 0)
				}
			})
		}
	}
}

// influence returns the convolution weight for one reciprocal lattice point.
// The Coulomb form is the Gaussian-screened 1/r kernel; the dispersion form
// is the screened 1/r^6 kernel, which keeps a finite value at m=0.
func (e *pmeEngine) influence(box unit.Box, kx, ky, kz int) float64 {
	r := box.Reciprocal()
	mx, my, mz := foldFreq(kx, e.size[0]), foldFreq(ky, e.size[1]), foldFreq(kz, e.size[2])
	mhx := float64(mx) * r[0].X
	mhy := float64(mx)*r[1].X + float64(my)*r[1].Y
	mhz := float64(mx)*r[2].X + float64(my)*r[2].Y + float64(mz)*r[2].Z
	m2 := mhx*mhx + mhy*mhy + mhz*mhz
	denom := e.moduli[0][kx] * e.moduli[1][ky] * e.moduli[2][kz]
	volume := box.Volume()

	if !e.dispersion {
		if m2 == 0 {
			return 0
		}
		return math.Exp(-math.Pi*math.Pi*m2/(e.alpha*e.alpha)) / (math.Pi * volume * m2 * denom)
	}

	recipScale := -2 * math.Pi * math.Sqrt(math.Pi) / (6 * volume)
	m := math.Sqrt(m2)
	b := math.Pi * m / e.alpha
	fac1 := 2 * math.Pi * math.Pi * math.Pi * math.Sqrt(math.Pi)
	fac2 := e.alpha * e.alpha * e.alpha
	fac3 := -2 * e.alpha * math.Pi * math.Pi
	return recipScale * (fac1*math.Erfc(b)*m*m2 + math.Exp(-b*b)*(fac2+fac3*m2)) / denom
}

func foldFreq(k, n int) int {
	if k < (n+1)/2 {
		return k
	}
	return k - n
}

// execute runs the four PME stages and returns the reciprocal energy.
func (e *pmeEngine) execute(ctx *Context, s Settings, values []float64, derivs []spreadDeriv, includeForces, includeEnergy bool) (float64, error) {
	n := ctx.NumParticles()
	box := ctx.Box()

	// Stage 1: grid index assignment.
	cells := make([]cell, n)
	ctx.Device().Pool().Run(n, func(start, end int) {
		for i := start; i < end; i++ {
			cells[i] = e.assign(box, ctx.Position(i))
		}
	})

	// Stage 2: value spreading.
	e.spread(ctx, values, cells)

	// Stage 3: convolution.
	grid := e.buffers.grid[:e.ntot]
	if err := e.plan.Forward(grid, grid); err != nil {
		return 0, err
	}
	energy := 0.0
	nx, ny, nz := e.size[0], e.size[1], e.size[2]
	// The inverse transform below normalizes by the grid size, so the
	// convolution folds that factor back in to keep the potential scale.
	norm := float64(e.ntot)
	for kx := 0; kx < nx; kx++ {
		for ky := 0; ky < ny; ky++ {
			for kz := 0; kz < nz; kz++ {
				idx := e.flatIndex(kx, ky, kz)
				eterm := e.influence(box, kx, ky, kz)
				if includeEnergy {
					g := grid[idx]
					energy += 0.5 * eterm * (real(g)*real(g) + imag(g)*imag(g))
				}
				grid[idx] *= complex(eterm*norm, 0)
			}
		}
	}
	if !includeForces && len(derivs) == 0 {
		return energy, nil
	}
	if err := e.plan.Inverse(grid, grid); err != nil {
		return 0, err
	}

	// Stage 4: interpolation of forces and, where a parameter derivative
	// needs it, the per-particle potential. Partitioned like stage 2.
	var pots []float64
	needPot := make(map[int]bool, len(derivs))
	if len(derivs) > 0 {
		pots = make([]float64, n)
		for _, i := range derivParticles(derivs) {
			needPot[i] = true
		}
	}
	r := box.Reciprocal()
	fnx, fny, fnz := float64(nx), float64(ny), float64(nz)
	interpolate := func(start, end int) {
		for i := start; i < end; i++ {
			wantPot := needPot[i]
			if values[i] == 0 && !wantPot {
				continue
			}
			c := cells[i]
			tx, dx := bsplineWeights(c.w[0])
			ty, dy := bsplineWeights(c.w[1])
			tz, dz := bsplineWeights(c.w[2])
			var u, dux, duy, duz float64
			for ix := 0; ix < PmeOrder; ix++ {
				gx := (c.base[0] - (PmeOrder - 1) + ix + nx) % nx
				for iy := 0; iy < PmeOrder; iy++ {
					gy := (c.base[1] - (PmeOrder - 1) + iy + ny) % ny
					for iz := 0; iz < PmeOrder; iz++ {
						gz := (c.base[2] - (PmeOrder - 1) + iz + nz) % nz
						g := real(grid[e.flatIndex(gx, gy, gz)])
						u += tx[ix] * ty[iy] * tz[iz] * g
						dux += dx[ix] * ty[iy] * tz[iz] * g
						duy += tx[ix] * dy[iy] * tz[iz] * g
						duz += tx[ix] * ty[iy] * dz[iz] * g
					}
				}
			}
			if wantPot {
				pots[i] = u
			}
			if !includeForces {
				continue
			}
			v := values[i]
			ctx.AddForce(i, unit.Vec3{
				X: -v * fnx * r[0].X * dux,
				Y: -v * (fnx*r[1].X*dux + fny*r[1].Y*duy),
				Z: -v * (fnx*r[2].X*dux + fny*r[2].Y*duy + fnz*r[2].Z*duz),
			})
		}
	}
	if e.strategy == cpuSpread {
		parts := e.partitions
		ctx.Device().Pool().Run(parts, func(p0, p1 int) {
			for p := p0; p < p1; p++ {
				start, end := device.ContextSlice(p, n, parts)
				interpolate(start, end)
			}
		})
	} else {
		ctx.Device().Pool().Run(n, interpolate)
	}
	for _, d := range derivs {
		ctx.AddEnergyDerivative(d.name, pots[d.particle]*d.factor)
	}
	return energy, nil
}
