package nonbonded

import (
	"math"

	"github.com/mdkit/ewald/internal/device"
)

// directSpace is the short-range contract the kernel drives; directEngine is
// the host implementation.
type directSpace interface {
	execute(ctx *Context, s Settings, ps *parameterSet, includeForces, includeEnergy bool) float64
}

// directEngine is the host implementation of the short-range pairwise sum:
// every non-excluded pair within the cutoff, with the Coulomb term screened
// according to the active method. Pairs are partitioned across the worker
// pool by particle index; forces and energy go through the shared
// fixed-point accumulators so the partitioning never changes the result.
type directEngine struct {
	method   Method
	excluded map[uint64]bool
}

func pairKey(i, j int) uint64 {
	if i > j {
		i, j = j, i
	}
	return uint64(i)<<32 | uint64(j)
}

func newDirectEngine(f *Force) *directEngine {
	d := &directEngine{
		method:   f.Method,
		excluded: make(map[uint64]bool, len(f.Exceptions)),
	}
	for _, e := range f.Exceptions {
		d.excluded[pairKey(e.Particle1, e.Particle2)] = true
	}
	return d
}

// pairInteraction evaluates one in-range pair. Forces follow the
// fscale*(r1-r2) convention shared with the correction terms.
func (d *directEngine) pairInteraction(s Settings, chargeProd, sigma, epsilon, c6grid, r float64) (energy, fscale float64) {
	invR := 1 / r
	switch {
	case !s.UseEwald && d.method.usesCutoff():
		// Reaction field Coulomb.
		prefactor := OneOver4PiEps0 * chargeProd
		energy += prefactor * (invR + s.ReactionFieldK*r*r - s.ReactionFieldC)
		fscale += prefactor * (invR*invR*invR - 2*s.ReactionFieldK)
	case s.UseEwald:
		alphaR := s.Alpha * r
		erfcAlphaR := math.Erfc(alphaR)
		prefactor := OneOver4PiEps0 * chargeProd * invR
		energy += prefactor * erfcAlphaR
		fscale += prefactor * invR * invR * (erfcAlphaR + alphaR*math.Exp(-alphaR*alphaR)*twoOverSqrtPi)
	default:
		prefactor := OneOver4PiEps0 * chargeProd * invR
		energy += prefactor
		fscale += prefactor * invR * invR
	}

	if epsilon != 0 {
		sig2 := sigma * invR * sigma * invR
		sig6 := sig2 * sig2 * sig2
		lj := 4 * epsilon * sig6 * (sig6 - 1)
		ljF := 4 * epsilon * sig6 * (12*sig6 - 6) * invR * invR
		if s.UseSwitch && r > s.SwitchingDistance {
			x := r - s.SwitchingDistance
			sw := 1 + x*x*x*(s.SwitchC3+x*(s.SwitchC4+x*s.SwitchC5))
			dsw := x * x * (3*s.SwitchC3 + x*(4*s.SwitchC4+x*5*s.SwitchC5))
			ljF = ljF*sw - lj*dsw*invR
			lj *= sw
		}
		energy += lj
		fscale += ljF
	}

	if s.DoLJPME && c6grid != 0 {
		// The dispersion grid covers all pairs with the geometric rule; the
		// screened within-cutoff part is given back here, shifted so the
		// total stays continuous at the cutoff.
		dar := s.DispersionAlpha * r
		dar2 := dar * dar
		dar4 := dar2 * dar2
		dar6 := dar4 * dar2
		expDar2 := math.Exp(-dar2)
		coef := c6grid * invR * invR * invR * invR * invR * invR
		energy += coef*(1-expDar2*(1+dar2+0.5*dar4)) + c6grid*s.MultShift6
		fscale += 6 * coef * invR * invR * (1 - expDar2*(1+dar2+0.5*dar4+dar6/6))
	}
	return energy, fscale
}

// pairDerivatives accumulates d(pair energy)/d(param) for every global
// parameter that offsets either particle's values. Partial derivatives are
// taken at the combined pair parameters and chained back through the mixing
// rules: q_i*q_j, arithmetic sigma, geometric epsilon, geometric C6.
func (d *directEngine) pairDerivatives(ctx *Context, s Settings, ps *parameterSet, i, j int, sigma, epsilon, r float64) {
	invR := 1 / r
	var dQQ float64
	switch {
	case !s.UseEwald && d.method.usesCutoff():
		dQQ = OneOver4PiEps0 * (invR + s.ReactionFieldK*r*r - s.ReactionFieldC)
	case s.UseEwald:
		dQQ = OneOver4PiEps0 * invR * math.Erfc(s.Alpha*r)
	default:
		dQQ = OneOver4PiEps0 * invR
	}

	sig2 := sigma * invR * sigma * invR
	sig6 := sig2 * sig2 * sig2
	sw := 1.0
	if s.UseSwitch && r > s.SwitchingDistance {
		x := r - s.SwitchingDistance
		sw = 1 + x*x*x*(s.SwitchC3+x*(s.SwitchC4+x*s.SwitchC5))
	}
	dEps := 4 * sig6 * (sig6 - 1) * sw
	dSig := 0.0
	if sigma != 0 {
		dSig = 4 * epsilon * sig6 * (12*sig6 - 6) * sw / sigma
	}

	dC6 := 0.0
	if s.DoLJPME {
		dar := s.DispersionAlpha * r
		dar2 := dar * dar
		dar4 := dar2 * dar2
		invR6 := invR * invR * invR * invR * invR * invR
		dC6 = invR6*(1-math.Exp(-dar2)*(1+dar2+0.5*dar4)) + s.MultShift6
	}

	add := func(self, other int) {
		for _, o := range ps.particleOffsets[self] {
			v := dQQ*ps.charges[other]*o.charge + 0.5*dSig*o.sigma
			if o.epsilon != 0 && ps.epsilons[self] > 0 {
				v += dEps * epsilon / (2 * ps.epsilons[self]) * o.epsilon
			}
			if s.DoLJPME {
				v += dC6 * dispersionC(ps.sigmas[other], ps.epsilons[other]) * ps.dispersionCDeriv(self, o)
			}
			ctx.AddEnergyDerivative(ps.names[o.paramIndex], v)
		}
	}
	add(i, j)
	add(j, i)
}

// execute runs the pairwise sum over the worker pool and returns its energy.
func (d *directEngine) execute(ctx *Context, s Settings, ps *parameterSet, includeForces, includeEnergy bool) float64 {
	n := ctx.NumParticles()
	box := ctx.Box()
	periodic := d.method.usesPeriodic()
	total := device.NewFixedPointAccumulator(1)
	ctx.Device().Pool().Run(n, func(start, end int) {
		energy := 0.0
		for i := start; i < end; i++ {
			pi := ctx.Position(i)
			for j := i + 1; j < n; j++ {
				if d.excluded[pairKey(i, j)] {
					continue
				}
				delta := pi.Sub(ctx.Position(j))
				if periodic {
					delta = box.MinimumImage(delta)
				}
				r := delta.Norm()
				if r == 0 || (d.method.usesCutoff() && r >= s.Cutoff) {
					continue
				}
				chargeProd := ps.charges[i] * ps.charges[j]
				sigma := 0.5 * (ps.sigmas[i] + ps.sigmas[j])
				epsilon := math.Sqrt(ps.epsilons[i] * ps.epsilons[j])
				c6grid := 0.0
				if s.DoLJPME {
					c6grid = dispersionC(ps.sigmas[i], ps.epsilons[i]) * dispersionC(ps.sigmas[j], ps.epsilons[j])
				}
				e, fscale := d.pairInteraction(s, chargeProd, sigma, epsilon, c6grid, r)
				energy += e
				if includeForces {
					ctx.AddForce(i, delta.Scale(fscale))
					ctx.AddForce(j, delta.Scale(-fscale))
				}
				if ps.hasParticleOffsets && len(ps.particleOffsets[i])+len(ps.particleOffsets[j]) > 0 {
					d.pairDerivatives(ctx, s, ps, i, j, sigma, epsilon, r)
				}
			}
		}
		if includeEnergy {
			total.Add(0, energy)
		}
	})
	return total.Value(0)
}
