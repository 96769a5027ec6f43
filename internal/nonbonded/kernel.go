package nonbonded

import (
	"fmt"
	"math"

	"github.com/mdkit/ewald/internal/device"
)

// AllGroups evaluates every force group.
const AllGroups = ^uint32(0)

// ExecuteOptions selects what one evaluation computes. Groups is a bitmask;
// direct and reciprocal work each run only when their group's bit is set.
type ExecuteOptions struct {
	IncludeForces     bool
	IncludeEnergy     bool
	IncludeDirect     bool
	IncludeReciprocal bool
	Groups            uint32
}

// Kernel is a Force compiled against one Context: derived settings, the
// engine variants picked from the device capability set, and all per-particle
// derived parameters. Topology is fixed at construction; parameter values
// may change between evaluations.
type Kernel struct {
	ctx      *Context
	settings Settings

	group      int
	recipGroup int

	includeDirectSpace bool
	dispersionCorr     bool

	params      *parameterSet
	corrections *pairCorrections
	direct      directSpace

	coulomb    reciprocalEngine
	dispersion reciprocalEngine
	offload    *offloadPipeline
	recipQueue *device.Queue

	// Spread values and their parameter derivatives, rebuilt whenever
	// parameters change.
	coulombValues    []float64
	dispersionValues []float64
	coulombDerivs    []spreadDeriv
	dispersionDerivs []spreadDeriv

	selfEnergy      float64
	dispersionCoeff float64

	// Topology fingerprint checked by UpdateParameters.
	numParticles    int
	hasCoulomb      bool
	hasLJ           bool
	localExceptions []int
}

// NewKernel compiles a force description against a context.
func NewKernel(ctx *Context, f *Force) (*Kernel, error) {
	if len(f.Particles) != ctx.NumParticles() {
		return nil, fmt.Errorf("%w: force has %d particles, context %d",
			ErrInvalidConfiguration, len(f.Particles), ctx.NumParticles())
	}
	s, err := deriveSettings(f, ctx.Box())
	if err != nil {
		return nil, err
	}
	caps := ctx.Device().Capabilities()
	local := f.nontrivialExceptions()
	k := &Kernel{
		ctx:                ctx,
		settings:           s,
		group:              f.ForceGroup,
		recipGroup:         f.reciprocalGroup(),
		includeDirectSpace: f.IncludeDirectSpace,
		dispersionCorr:     f.UseDispersionCorrection,
		params:             newParameterSet(f, local),
		corrections:        newPairCorrections(f, local, caps),
		direct:             newDirectEngine(f),
		numParticles:       len(f.Particles),
		hasCoulomb:         s.HasCoulomb,
		hasLJ:              s.HasLJ,
		localExceptions:    local,
	}
	k.coulomb, k.dispersion, err = buildReciprocalEngines(s, caps, len(f.Particles))
	if err != nil {
		return nil, err
	}
	if k.coulomb != nil {
		if offloadAvailable(s, caps, ctx.Packing()) {
			k.offload = newOffloadPipeline(k.coulomb)
		} else {
			// Reciprocal work overlaps direct-space work on its own queue.
			k.recipQueue = ctx.Device().NewQueue()
		}
	}
	return k, nil
}

func (k *Kernel) Settings() Settings { return k.settings }

// PMEParameters reports the splitting width and grid dimensions of the
// Coulomb grid.
func (k *Kernel) PMEParameters() (alpha float64, grid [3]int, err error) {
	if k.settings.Method != PME && k.settings.Method != LJPME {
		return 0, grid, fmt.Errorf("%w: method %s has no PME grid", ErrWrongMethod, k.settings.Method)
	}
	return k.settings.Alpha, k.settings.GridSize, nil
}

// LJPMEParameters reports the dispersion grid. Querying it while the
// reciprocal work runs through the CPU offload pipeline is not supported.
func (k *Kernel) LJPMEParameters() (alpha float64, grid [3]int, err error) {
	if k.offload != nil {
		return 0, grid, fmt.Errorf("%w: dispersion parameters unavailable with CPU-offloaded reciprocal space", ErrUnsupportedCombination)
	}
	if !k.settings.DoLJPME {
		return 0, grid, fmt.Errorf("%w: method %s has no dispersion grid", ErrWrongMethod, k.settings.Method)
	}
	return k.settings.DispersionAlpha, k.settings.DispersionGridSize, nil
}

// EwaldKmax reports the direct summation limits.
func (k *Kernel) EwaldKmax() ([3]int, error) {
	if k.settings.Method != Ewald {
		return [3]int{}, fmt.Errorf("%w: method %s does not sum directly", ErrWrongMethod, k.settings.Method)
	}
	return k.settings.Kmax, nil
}

// SelfEnergy returns the analytic self-interaction term at the current
// parameter values.
func (k *Kernel) SelfEnergy() float64 {
	k.refreshParameters()
	return k.selfEnergy
}

// refreshParameters runs the per-evaluation dirty check and, when needed,
// the recombination of base values with active offsets.
func (k *Kernel) refreshParameters() {
	k.params.refresh(k.ctx.Parameter)
	if !k.params.recompute {
		return
	}
	k.params.apply()
	k.selfEnergy = selfEnergy(k.settings, k.params.charges, k.params.sigmas, k.params.epsilons)
	k.dispersionCoeff = dispersionCoefficient(k.settings, k.dispersionCorr, k.params.sigmas, k.params.epsilons)
	k.rebuildValues()
}

// rebuildValues refreshes the per-particle quantities the reciprocal engines
// spread. The grid engine folds sqrt of Coulomb's constant into the spread
// charge; the direct summation engine scales internally and takes raw
// charges.
func (k *Kernel) rebuildValues() {
	n := k.numParticles
	if k.coulombValues == nil {
		k.coulombValues = make([]float64, n)
	}
	scale := 1.0
	if k.settings.Method != Ewald {
		scale = math.Sqrt(OneOver4PiEps0)
	}
	for i, q := range k.params.charges {
		k.coulombValues[i] = q * scale
	}
	if k.settings.DoLJPME {
		if k.dispersionValues == nil {
			k.dispersionValues = make([]float64, n)
		}
		for i := range k.params.sigmas {
			k.dispersionValues[i] = dispersionC(k.params.sigmas[i], k.params.epsilons[i])
		}
	}

	// Parameter derivatives of the spread values, handed to the reciprocal
	// engines so dE/d(param) covers the reciprocal sum.
	k.coulombDerivs = k.coulombDerivs[:0]
	k.dispersionDerivs = k.dispersionDerivs[:0]
	for i, offsets := range k.params.particleOffsets {
		for _, o := range offsets {
			if o.charge != 0 {
				k.coulombDerivs = append(k.coulombDerivs, spreadDeriv{
					name:     k.params.names[o.paramIndex],
					particle: i,
					factor:   o.charge * scale,
				})
			}
			if k.settings.DoLJPME {
				if dc := k.params.dispersionCDeriv(i, o); dc != 0 {
					k.dispersionDerivs = append(k.dispersionDerivs, spreadDeriv{
						name:     k.params.names[o.paramIndex],
						particle: i,
						factor:   dc,
					})
				}
			}
		}
	}
}

// Execute runs one evaluation and returns the energy contribution. Forces
// are accumulated into the context's shared fixed-point buffer.
func (k *Kernel) Execute(opts ExecuteOptions) (float64, error) {
	k.refreshParameters()

	includeDirect := opts.IncludeDirect && k.includeDirectSpace && opts.Groups&(1<<uint(k.group)) != 0
	includeRecip := opts.IncludeReciprocal && k.coulomb != nil && opts.Groups&(1<<uint(k.recipGroup)) != 0

	energy := 0.0
	s := k.settings
	ctx := k.ctx

	if includeRecip && k.offload != nil {
		// Host-side reciprocal computation overlapping the direct work.
		k.offload.begin(ctx, s, k.coulombValues, k.coulombDerivs, opts.IncludeForces, opts.IncludeEnergy)
	}

	var directEnergy, correctionEnergy float64
	primary := ctx.Device().Queue()
	var recipStart *device.Event
	if includeRecip && k.offload == nil {
		// Recorded before the direct-space submissions so the reciprocal
		// queue waits only for work already queued ahead of this evaluation,
		// and the two phases genuinely overlap.
		recipStart = primary.Marker()
	}
	if includeDirect {
		primary.Submit(func() {
			directEnergy = k.direct.execute(ctx, s, k.params, opts.IncludeForces, opts.IncludeEnergy)
		})
	}
	includeExclusions := includeRecip && s.UseEwald && len(k.corrections.pairs) > 0
	includeExceptions := includeDirect && len(k.corrections.slotPairs) > 0
	if includeExclusions || includeExceptions {
		primary.Submit(func() {
			correctionEnergy = k.corrections.execute(ctx, s, k.params,
				opts.IncludeForces, opts.IncludeEnergy, includeExclusions, includeExceptions)
		})
	}

	var recipEnergy float64
	var recipErr error
	if includeRecip && k.offload == nil {
		k.recipQueue.Barrier(recipStart)
		k.recipQueue.Submit(func() {
			recipEnergy, recipErr = k.runReciprocal(opts.IncludeForces, opts.IncludeEnergy)
		})
		end := k.recipQueue.Marker()
		primary.Barrier(end)
	}
	primary.Sync()

	if includeRecip && k.offload != nil {
		e, err := k.offload.finish(ctx, opts.IncludeForces)
		if err != nil {
			return 0, err
		}
		recipEnergy = e
	}
	if recipErr != nil {
		return 0, recipErr
	}

	if opts.IncludeEnergy {
		energy = directEnergy + correctionEnergy
		if includeRecip {
			energy += recipEnergy + k.selfEnergy
		}
		if includeDirect && k.dispersionCoeff != 0 {
			energy += k.dispersionCoeff / ctx.Box().Volume()
		}
		ctx.AddEnergy(energy)
	}
	if includeRecip {
		k.params.selfEnergyDerivatives(s, ctx.AddEnergyDerivative)
	}
	return energy, nil
}

// runReciprocal drives the grid (or direct summation) engines in line.
func (k *Kernel) runReciprocal(includeForces, includeEnergy bool) (float64, error) {
	energy := 0.0
	if k.hasCoulomb || k.params.hasOffsets {
		e, err := k.coulomb.execute(k.ctx, k.settings, k.coulombValues, k.coulombDerivs, includeForces, includeEnergy)
		if err != nil {
			return 0, err
		}
		energy += e
	}
	if k.dispersion != nil {
		e, err := k.dispersion.execute(k.ctx, k.settings, k.dispersionValues, k.dispersionDerivs, includeForces, includeEnergy)
		if err != nil {
			return 0, err
		}
		energy += e
	}
	return energy, nil
}

// UpdateParameters re-reads parameter values from a force description whose
// topology must match the one the kernel was built from. Particle count,
// Coulomb/LJ presence, and the non-trivial exception set are fixed; a change
// in any of them is rejected and leaves the kernel untouched.
func (k *Kernel) UpdateParameters(f *Force) error {
	if len(f.Particles) != k.numParticles {
		return fmt.Errorf("%w: particle count changed from %d to %d",
			ErrTopologyChanged, k.numParticles, len(f.Particles))
	}
	hasCoulomb, hasLJ := f.hasCoulombLJ()
	if hasCoulomb != k.hasCoulomb || hasLJ != k.hasLJ {
		return fmt.Errorf("%w: Coulomb/LJ term presence changed", ErrTopologyChanged)
	}
	local := f.nontrivialExceptions()
	if len(local) != len(k.localExceptions) {
		return fmt.Errorf("%w: number of non-trivial exceptions changed from %d to %d",
			ErrTopologyChanged, len(k.localExceptions), len(local))
	}
	for i, idx := range local {
		old := k.localExceptions[i]
		if idx != old || f.Exceptions[idx].Particle1 != k.corrections.pairs[old].p1 ||
			f.Exceptions[idx].Particle2 != k.corrections.pairs[old].p2 {
			return fmt.Errorf("%w: exception %d changed identity", ErrTopologyChanged, idx)
		}
	}

	k.params = newParameterSet(f, local)
	k.corrections = newPairCorrections(f, local, k.ctx.Device().Capabilities())
	k.direct = newDirectEngine(f)
	return nil
}
