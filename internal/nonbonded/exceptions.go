package nonbonded

import (
	"math"

	"github.com/mdkit/ewald/internal/device"
	"github.com/mdkit/ewald/internal/unit"
)

var twoOverSqrtPi = 2 / math.Sqrt(math.Pi)

// dispersionC is the per-particle coefficient spread onto the dispersion
// grid; the pair coefficient C6 is the product of the two particles' values.
func dispersionC(sigma, epsilon float64) float64 {
	return 2 * sigma * sigma * sigma * math.Sqrt(epsilon)
}

// pairCorrections owns the per-pair terms that patch the Ewald split: the
// erf-based subtraction for every excluded pair the reciprocal sum wrongly
// includes, and the explicit bonded-style terms for non-trivial exceptions.
// Work is partitioned by exception index range so parallel execution
// contexts each compute a disjoint subset.
type pairCorrections struct {
	group int

	// All exception pairs are exclusions for the reciprocal correction.
	pairs []pairIndex

	// Non-trivial exceptions owned by this context, as slots into the
	// parameterSet's exception arrays.
	slotStart, slotEnd int
	slotPairs          []pairIndex
	slotOffsets        [][]taggedOffset

	periodic bool
}

type pairIndex struct {
	p1, p2 int
}

func newPairCorrections(f *Force, localExceptions []int, caps device.Capabilities) *pairCorrections {
	c := &pairCorrections{
		group:    f.reciprocalGroup(),
		periodic: f.ExceptionsUsePeriodic,
	}
	for _, e := range f.Exceptions {
		c.pairs = append(c.pairs, pairIndex{e.Particle1, e.Particle2})
	}
	for _, global := range localExceptions {
		e := f.Exceptions[global]
		c.slotPairs = append(c.slotPairs, pairIndex{e.Particle1, e.Particle2})
	}
	c.slotStart, c.slotEnd = device.ContextSlice(caps.ContextIndex, len(c.slotPairs), caps.NumContexts)
	return c
}

// ewaldExclusionTerm evaluates the reciprocal-space contribution an excluded
// pair must give back. Returns the energy and fscale, where the force on
// particle 1 is fscale*(r1-r2).
func ewaldExclusionTerm(s Settings, chargeProd, c6, r float64) (energy, fscale float64) {
	invR := 1 / r
	if s.HasCoulomb && chargeProd != 0 {
		alphaR := s.Alpha * r
		erfAlphaR := math.Erf(alphaR)
		prefactor := OneOver4PiEps0 * chargeProd * invR
		energy -= prefactor * erfAlphaR
		fscale -= prefactor * invR * invR * (erfAlphaR - alphaR*math.Exp(-alphaR*alphaR)*twoOverSqrtPi)
	}
	if s.DoLJPME && c6 != 0 {
		dar := s.DispersionAlpha * r
		dar2 := dar * dar
		dar4 := dar2 * dar2
		dar6 := dar4 * dar2
		expDar2 := math.Exp(-dar2)
		coef := c6 * invR * invR * invR * invR * invR * invR
		energy += coef * (1 - expDar2*(1+dar2+0.5*dar4))
		fscale += 6 * coef * invR * invR * (1 - expDar2*(1+dar2+0.5*dar4+dar6/6))
	}
	return energy, fscale
}

// exceptionTerm evaluates the explicit pair interaction of a non-trivial
// exception with its override parameters. Same force convention as
// ewaldExclusionTerm.
func exceptionTerm(chargeProd, sigma, epsilon, r float64) (energy, fscale float64) {
	invR := 1 / r
	sig2 := sigma * invR * sigma * invR
	sig6 := sig2 * sig2 * sig2
	energy = OneOver4PiEps0*chargeProd*invR + 4*epsilon*sig6*(sig6-1)
	fscale = (OneOver4PiEps0*chargeProd*invR + 4*epsilon*sig6*(12*sig6-6)) * invR * invR
	return energy, fscale
}

// exclusionDerivatives accumulates d(exclusion correction)/d(param) for
// global parameters that offset either particle's values. The charge term is
// not gated on chargeProd: the derivative survives when one charge passes
// through zero.
func (c *pairCorrections) exclusionDerivatives(ctx *Context, s Settings, ps *parameterSet, p pairIndex, r float64) {
	invR := 1 / r
	dQQ := 0.0
	if s.HasCoulomb {
		dQQ = -OneOver4PiEps0 * invR * math.Erf(s.Alpha*r)
	}
	dC6 := 0.0
	if s.DoLJPME {
		dar := s.DispersionAlpha * r
		dar2 := dar * dar
		dar4 := dar2 * dar2
		invR6 := invR * invR * invR * invR * invR * invR
		dC6 = invR6 * (1 - math.Exp(-dar2)*(1+dar2+0.5*dar4))
	}
	add := func(self, other int) {
		for _, o := range ps.particleOffsets[self] {
			v := dQQ * ps.charges[other] * o.charge
			if s.DoLJPME {
				v += dC6 * dispersionC(ps.sigmas[other], ps.epsilons[other]) * ps.dispersionCDeriv(self, o)
			}
			ctx.AddEnergyDerivative(ps.names[o.paramIndex], v)
		}
	}
	add(p.p1, p.p2)
	add(p.p2, p.p1)
}

func (c *pairCorrections) distance(ctx *Context, p pairIndex) (unit.Vec3, float64) {
	delta := ctx.Position(p.p1).Sub(ctx.Position(p.p2))
	if c.periodic {
		delta = ctx.Box().MinimumImage(delta)
	}
	return delta, delta.Norm()
}

// execute adds the corrections owned by this context into the shared
// accumulators and returns their energy. Exclusion subtractions patch the
// reciprocal sum and are gated with it; exception overrides are direct-space
// work and gated separately.
func (c *pairCorrections) execute(ctx *Context, s Settings, ps *parameterSet, includeForces, includeEnergy, includeExclusions, includeExceptions bool) float64 {
	energy := 0.0
	if includeExclusions && s.UseEwald {
		start, end := device.ContextSlice(ctx.Device().Capabilities().ContextIndex, len(c.pairs), ctx.Device().Capabilities().NumContexts)
		for _, p := range c.pairs[start:end] {
			chargeProd := ps.charges[p.p1] * ps.charges[p.p2]
			c6 := 0.0
			if s.DoLJPME {
				// Geometric combination of the per-particle dispersion
				// coefficients c_i = 2*sigma^3*sqrt(epsilon).
				c6 = dispersionC(ps.sigmas[p.p1], ps.epsilons[p.p1]) * dispersionC(ps.sigmas[p.p2], ps.epsilons[p.p2])
			}
			delta, r := c.distance(ctx, p)
			if r == 0 {
				continue
			}
			e, fscale := ewaldExclusionTerm(s, chargeProd, c6, r)
			if includeEnergy {
				energy += e
			}
			if includeForces {
				ctx.AddForce(p.p1, delta.Scale(fscale))
				ctx.AddForce(p.p2, delta.Scale(-fscale))
			}
			if ps.hasParticleOffsets && len(ps.particleOffsets[p.p1])+len(ps.particleOffsets[p.p2]) > 0 {
				c.exclusionDerivatives(ctx, s, ps, p, r)
			}
		}
	}
	if !includeExceptions {
		return energy
	}
	for slot := c.slotStart; slot < c.slotEnd; slot++ {
		p := c.slotPairs[slot]
		delta, r := c.distance(ctx, p)
		if r == 0 {
			continue
		}
		e, fscale := exceptionTerm(ps.exCharge[slot], ps.exSigma[slot], ps.exEpsilon[slot], r)
		if includeEnergy {
			energy += e
		}
		if includeForces {
			ctx.AddForce(p.p1, delta.Scale(fscale))
			ctx.AddForce(p.p2, delta.Scale(-fscale))
		}
		invR := 1 / r
		sig2 := ps.exSigma[slot] * invR * ps.exSigma[slot] * invR
		sig6 := sig2 * sig2 * sig2
		for _, o := range ps.exceptionOffsets[slot] {
			d := OneOver4PiEps0 * invR * o.charge
			d += 4 * sig6 * (sig6 - 1) * o.epsilon
			if ps.exSigma[slot] != 0 {
				d += 4 * ps.exEpsilon[slot] * sig6 * (12*sig6 - 6) / ps.exSigma[slot] * o.sigma
			}
			ctx.AddEnergyDerivative(ps.names[o.paramIndex], d)
		}
	}
	return energy
}
