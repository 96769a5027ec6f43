package nonbonded

import (
	"math"

	"github.com/mdkit/ewald/internal/unit"
)

// ewaldEngine evaluates the reciprocal-space sum directly over all lattice
// vectors up to kmax per axis. Cost is O(N*K); it exists for small systems
// and as the reference the grid engine is checked against. Requires a
// rectangular box.
type ewaldEngine struct {
	kmax [3]int
}

func newEwaldEngine(s Settings) *ewaldEngine {
	return &ewaldEngine{kmax: s.Kmax}
}

func (e *ewaldEngine) description() string { return "ewald" }

// execute accumulates reciprocal forces into the context and returns the
// reciprocal energy. Phase factors are tabulated per particle and axis so
// the k loop does complex multiplies instead of trig calls.
func (e *ewaldEngine) execute(ctx *Context, s Settings, charges []float64, derivs []spreadDeriv, includeForces, includeEnergy bool) (float64, error) {
	n := ctx.NumParticles()
	box := ctx.Box()
	volume := box.Volume()
	recipCoeff := OneOver4PiEps0 * 4 * math.Pi / volume
	factor := -1 / (4 * s.Alpha * s.Alpha)

	// eir[axis][k][particle] = exp(i * 2*pi*k * frac coordinate).
	sizes := [3]float64{box.A.X, box.B.Y, box.C.Z}
	eir := make([][][]complex128, 3)
	pos := make([]unit.Vec3, n)
	for i := range pos {
		pos[i] = ctx.Position(i)
	}
	for axis := 0; axis < 3; axis++ {
		eir[axis] = make([][]complex128, e.kmax[axis])
		base := make([]complex128, n)
		for i, p := range pos {
			coord := [3]float64{p.X, p.Y, p.Z}[axis]
			arg := 2 * math.Pi * coord / sizes[axis]
			base[i] = complex(math.Cos(arg), math.Sin(arg))
		}
		cur := make([]complex128, n)
		for i := range cur {
			cur[i] = 1
		}
		for k := 0; k < e.kmax[axis]; k++ {
			row := make([]complex128, n)
			copy(row, cur)
			eir[axis][k] = row
			for i := range cur {
				cur[i] *= base[i]
			}
		}
	}

	conj := func(c complex128, k int) complex128 {
		if k < 0 {
			return complex(real(c), -imag(c))
		}
		return c
	}

	energy := 0.0
	phase := make([]complex128, n)
	var pot []float64
	var potParticles []int
	if len(derivs) > 0 {
		pot = make([]float64, n)
		potParticles = derivParticles(derivs)
	}
	for kx := 0; kx < e.kmax[0]; kx++ {
		lowY := 1 - e.kmax[1]
		if kx == 0 {
			lowY = 0
		}
		for ky := lowY; ky < e.kmax[1]; ky++ {
			lowZ := 1 - e.kmax[2]
			if kx == 0 && ky == 0 {
				lowZ = 1
			}
			kvx := 2 * math.Pi * float64(kx) / sizes[0]
			kvy := 2 * math.Pi * float64(ky) / sizes[1]
			for kz := lowZ; kz < e.kmax[2]; kz++ {
				kvz := 2 * math.Pi * float64(kz) / sizes[2]
				k2 := kvx*kvx + kvy*kvy + kvz*kvz
				ak := math.Exp(k2*factor) / k2
				cs, ss := 0.0, 0.0
				for i := 0; i < n; i++ {
					p := eir[0][kx][i] * conj(eir[1][abs(ky)][i], ky) * conj(eir[2][abs(kz)][i], kz)
					phase[i] = p
					cs += charges[i] * real(p)
					ss += charges[i] * imag(p)
				}
				if includeEnergy {
					energy += recipCoeff * ak * (cs*cs + ss*ss)
				}
				for _, i := range potParticles {
					pot[i] += 2 * recipCoeff * ak * (cs*real(phase[i]) + ss*imag(phase[i]))
				}
				if includeForces {
					for i := 0; i < n; i++ {
						dEdR := 2 * recipCoeff * ak * charges[i] * (cs*imag(phase[i]) - ss*real(phase[i]))
						ctx.AddForce(i, unit.Vec3{X: dEdR * kvx, Y: dEdR * kvy, Z: dEdR * kvz})
					}
				}
			}
		}
	}
	for _, d := range derivs {
		ctx.AddEnergyDerivative(d.name, pot[d.particle]*d.factor)
	}
	return energy, nil
}

func abs(k int) int {
	if k < 0 {
		return -k
	}
	return k
}
