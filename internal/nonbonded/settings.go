package nonbonded

import (
	"fmt"
	"math"

	"github.com/mdkit/ewald/internal/fft"
	"github.com/mdkit/ewald/internal/unit"
)

// OneOver4PiEps0 is Coulomb's constant in MD units (kJ/mol nm e^-2).
const OneOver4PiEps0 = 138.935456

// PmeOrder is the B-spline interpolation order used by both PME grids.
const PmeOrder = 4

// Settings holds every numeric constant derived from a Force and a box.
// They are computed once and threaded into all downstream kernels, so
// disabled terms cost nothing at evaluation time.
type Settings struct {
	Method     Method
	HasCoulomb bool
	HasLJ      bool
	DoLJPME    bool
	UseEwald   bool // Ewald, PME or LJPME

	Cutoff float64

	// Gaussian splitting widths.
	Alpha           float64
	DispersionAlpha float64

	// Direct Ewald summation limits per axis.
	Kmax [3]int

	// PME grid dimensions, rounded up to FFT-legal sizes.
	GridSize           [3]int
	DispersionGridSize [3]int

	// Reaction field constants for the cutoff methods.
	ReactionFieldK float64
	ReactionFieldC float64

	// Switching function coefficients.
	UseSwitch          bool
	SwitchingDistance  float64
	SwitchC3, SwitchC4 float64
	SwitchC5           float64

	// LJ-PME direct-space shift constants.
	InvRCut6   float64
	MultShift6 float64

	// Per-particle self energy scales. The Coulomb term subtracts
	// scale*q^2 per particle; the dispersion term adds eps*(sigma*alpha)^6/3.
	SelfEnergyCoulombScale float64
}

// deriveSettings computes all derived constants for a force in a box.
func deriveSettings(f *Force, box unit.Box) (Settings, error) {
	if err := f.validate(); err != nil {
		return Settings{}, err
	}
	hasCoulomb, hasLJ := f.hasCoulombLJ()
	s := Settings{
		Method:     f.Method,
		HasCoulomb: hasCoulomb,
		HasLJ:      hasLJ,
		DoLJPME:    f.Method == LJPME && hasLJ,
		UseEwald:   f.Method == Ewald || f.Method == PME || f.Method == LJPME,
		Cutoff:     f.Cutoff,
	}

	if f.Method.usesCutoff() {
		eps := f.ReactionFieldDielectric
		s.ReactionFieldK = math.Pow(f.Cutoff, -3) * (eps - 1) / (2*eps + 1)
		s.ReactionFieldC = (1 / f.Cutoff) * (3 * eps) / (2*eps + 1)
		if f.UseSwitchingFunction {
			d := f.SwitchingDistance - f.Cutoff
			s.UseSwitch = true
			s.SwitchingDistance = f.SwitchingDistance
			s.SwitchC3 = 10 / math.Pow(d, 3)
			s.SwitchC4 = 15 / math.Pow(d, 4)
			s.SwitchC5 = 6 / math.Pow(d, 5)
		}
	}

	if !s.UseEwald {
		return s, nil
	}
	tol := f.EwaldErrorTolerance
	s.Alpha = math.Sqrt(-math.Log(2*tol)) / f.Cutoff
	s.SelfEnergyCoulombScale = OneOver4PiEps0 * s.Alpha / math.Sqrt(math.Pi)

	switch f.Method {
	case Ewald:
		// The phase tables factor per axis only when the box vectors are
		// orthogonal, so the direct summation cannot serve a triclinic box.
		if box.B.X != 0 || box.C.X != 0 || box.C.Y != 0 {
			return Settings{}, fmt.Errorf("%w: Ewald summation requires a rectangular box", ErrInvalidConfiguration)
		}
		s.Kmax[0] = findKmax(s.Alpha, box.A.X, tol)
		s.Kmax[1] = findKmax(s.Alpha, box.B.Y, tol)
		s.Kmax[2] = findKmax(s.Alpha, box.C.Z, tol)
	case PME, LJPME:
		s.GridSize = pmeGridSize(s.Alpha, box, tol)
		if s.DoLJPME {
			s.DispersionAlpha = math.Sqrt(-math.Log(2*tol)) / f.Cutoff
			s.DispersionGridSize = pmeGridSize(s.DispersionAlpha, box, tol)
			invRCut6 := math.Pow(f.Cutoff, -6)
			dar2 := s.DispersionAlpha * f.Cutoff * s.DispersionAlpha * f.Cutoff
			dar4 := dar2 * dar2
			s.InvRCut6 = invRCut6
			s.MultShift6 = -invRCut6 * (1 - math.Exp(-dar2)*(1+dar2+0.5*dar4))
		}
	}
	return s, nil
}

// pmeGridSize derives the mesh resolution from the splitting width and
// rounds each dimension up to an FFT-legal size.
func pmeGridSize(alpha float64, box unit.Box, tol float64) [3]int {
	spread := 3 * math.Pow(tol, 0.2)
	dims := [3]float64{box.A.X, box.B.Y, box.C.Z}
	var size [3]int
	for i, d := range dims {
		n := int(math.Ceil(2 * alpha * d / spread))
		if n < PmeOrder {
			n = PmeOrder
		}
		size[i] = fft.FindLegalDimension(n)
	}
	return size
}

// findKmax grows the reciprocal summation limit until the standard error
// estimate for a truncated Ewald sum drops below the tolerance.
func findKmax(alpha, width, tol float64) int {
	kmax := 1
	err := tol
	for err >= tol {
		kmax++
		arg := math.Pi * float64(kmax) / (width * alpha)
		err = float64(kmax) * math.Sqrt(width*alpha) * 20 * math.Exp(-arg*arg)
	}
	return kmax
}

// selfEnergy computes the analytic self-interaction term from the current
// per-particle parameters.
func selfEnergy(s Settings, charges []float64, sigmas, epsilons []float64) float64 {
	if !s.UseEwald {
		return 0
	}
	e := 0.0
	for i, q := range charges {
		e -= q * q * s.SelfEnergyCoulombScale
		if s.DoLJPME {
			sa := sigmas[i] * s.DispersionAlpha
			e += epsilons[i] * sa * sa * sa * sa * sa * sa / 3
		}
	}
	return e
}

// dispersionCoefficient computes the isotropic long-range tail correction
// assuming uniform density beyond the cutoff; the energy contribution is
// coefficient / volume. Zero when the correction is off or LJ-PME already
// covers dispersion. Evaluated on the derived per-particle values so offset
// changes are reflected.
func dispersionCoefficient(s Settings, enabled bool, sigmas, epsilons []float64) float64 {
	if !enabled || s.DoLJPME || !s.Method.usesPeriodic() {
		return 0
	}
	rc3 := s.Cutoff * s.Cutoff * s.Cutoff
	rc9 := rc3 * rc3 * rc3
	sum := 0.0
	n := len(sigmas)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			// Lorentz-Berthelot combination, pairs counted once via the 1/2.
			sigma := 0.5 * (sigmas[i] + sigmas[j])
			eps := math.Sqrt(epsilons[i] * epsilons[j])
			s6 := math.Pow(sigma, 6)
			c6 := 4 * eps * s6
			c12 := c6 * s6
			sum += c12/(9*rc9) - c6/(3*rc3)
		}
	}
	return 0.5 * sum * 4 * math.Pi
}
