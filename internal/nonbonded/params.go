package nonbonded

// parameterSet owns the dirty tracking for named global parameters and the
// derived per-particle / per-exception values they feed. It is an explicit
// value object compared and updated once per evaluation.
type parameterSet struct {
	names  []string
	values []float64

	recompute          bool
	hasOffsets         bool
	hasParticleOffsets bool

	// Base values, fixed topology.
	baseParticles  []Particle
	baseExceptions []Exception // the non-trivial subset owned by this context

	// Offsets grouped by target, each tagged with an index into names.
	particleOffsets  [][]taggedOffset
	exceptionOffsets [][]taggedOffset

	// Derived values, rebuilt when recompute is set.
	charges   []float64
	sigmas    []float64
	epsilons  []float64
	exCharge  []float64
	exSigma   []float64
	exEpsilon []float64
}

type taggedOffset struct {
	paramIndex int
	charge     float64
	sigma      float64
	epsilon    float64
}

// newParameterSet records base values and groups offsets by target.
// localExceptions lists, in slot order, the global indices of the exceptions
// this context owns.
func newParameterSet(f *Force, localExceptions []int) *parameterSet {
	p := &parameterSet{
		recompute:       true,
		baseParticles:   append([]Particle(nil), f.Particles...),
		particleOffsets: make([][]taggedOffset, len(f.Particles)),
		charges:         make([]float64, len(f.Particles)),
		sigmas:          make([]float64, len(f.Particles)),
		epsilons:        make([]float64, len(f.Particles)),
	}
	localSlot := make(map[int]int, len(localExceptions))
	for slot, global := range localExceptions {
		localSlot[global] = slot
		p.baseExceptions = append(p.baseExceptions, f.Exceptions[global])
	}
	p.exceptionOffsets = make([][]taggedOffset, len(localExceptions))
	p.exCharge = make([]float64, len(localExceptions))
	p.exSigma = make([]float64, len(localExceptions))
	p.exEpsilon = make([]float64, len(localExceptions))

	for _, o := range f.ParticleOffsets {
		idx := p.paramIndex(o.Parameter)
		p.particleOffsets[o.Particle] = append(p.particleOffsets[o.Particle],
			taggedOffset{idx, o.Charge, o.Sigma, o.Epsilon})
		p.hasOffsets = true
		p.hasParticleOffsets = true
	}
	for _, o := range f.ExceptionOffsets {
		slot, ok := localSlot[o.Exception]
		if !ok {
			// Owned by a different execution context.
			p.paramIndex(o.Parameter)
			p.hasOffsets = true
			continue
		}
		idx := p.paramIndex(o.Parameter)
		p.exceptionOffsets[slot] = append(p.exceptionOffsets[slot],
			taggedOffset{idx, o.ChargeProd, o.Sigma, o.Epsilon})
		p.hasOffsets = true
	}
	return p
}

func (p *parameterSet) paramIndex(name string) int {
	for i, n := range p.names {
		if n == name {
			return i
		}
	}
	p.names = append(p.names, name)
	p.values = append(p.values, 0)
	return len(p.names) - 1
}

// refresh compares every tracked global parameter against its last seen
// value and marks derived values stale on any change.
func (p *parameterSet) refresh(lookup func(string) float64) {
	for i, name := range p.names {
		if v := lookup(name); v != p.values[i] {
			p.values[i] = v
			p.recompute = true
		}
	}
}

// apply rebuilds the derived per-particle and per-exception values from the
// base values plus active offsets. Callers skip it entirely when nothing is
// stale and no offsets exist.
func (p *parameterSet) apply() {
	for i, base := range p.baseParticles {
		q, s, e := base.Charge, base.Sigma, base.Epsilon
		for _, o := range p.particleOffsets[i] {
			v := p.values[o.paramIndex]
			q += o.charge * v
			s += o.sigma * v
			e += o.epsilon * v
		}
		p.charges[i] = q
		p.sigmas[i] = s
		p.epsilons[i] = e
	}
	for i, base := range p.baseExceptions {
		q, s, e := base.ChargeProd, base.Sigma, base.Epsilon
		for _, o := range p.exceptionOffsets[i] {
			v := p.values[o.paramIndex]
			q += o.charge * v
			s += o.sigma * v
			e += o.epsilon * v
		}
		p.exCharge[i] = q
		p.exSigma[i] = s
		p.exEpsilon[i] = e
	}
	p.recompute = false
}

// dispersionCDeriv returns the derivative of particle i's dispersion grid
// coefficient 2*sigma^3*sqrt(epsilon) along one offset's direction.
func (p *parameterSet) dispersionCDeriv(i int, o taggedOffset) float64 {
	d := 0.0
	c := dispersionC(p.sigmas[i], p.epsilons[i])
	if p.sigmas[i] != 0 {
		d += 3 * c / p.sigmas[i] * o.sigma
	}
	if p.epsilons[i] > 0 {
		d += c / (2 * p.epsilons[i]) * o.epsilon
	}
	return d
}

// selfEnergyDerivatives accumulates d(selfEnergy)/d(param) for every tracked
// parameter that offsets a particle charge (or, for LJ-PME, sigma/epsilon).
func (p *parameterSet) selfEnergyDerivatives(s Settings, add func(name string, v float64)) {
	if !s.UseEwald {
		return
	}
	for i := range p.baseParticles {
		for _, o := range p.particleOffsets[i] {
			d := -2 * p.charges[i] * s.SelfEnergyCoulombScale * o.charge
			if s.DoLJPME && p.sigmas[i] != 0 {
				sa := p.sigmas[i] * s.DispersionAlpha
				sa6 := sa * sa * sa * sa * sa * sa
				d += o.epsilon * sa6 / 3
				d += p.epsilons[i] * 2 * sa6 / p.sigmas[i] * o.sigma
			}
			add(p.names[o.paramIndex], d)
		}
	}
}
