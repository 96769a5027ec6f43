// Package nonbonded computes long-range electrostatic and dispersion
// interactions among point particles under periodic boundary conditions using
// Ewald-type splitting. The short-range part is evaluated pairwise within a
// cutoff; the long-range part either by direct reciprocal-space summation or
// by a particle-mesh (PME) grid method.
package nonbonded

import "fmt"

// Method selects how nonbonded interactions are computed.
type Method int

const (
	NoCutoff Method = iota
	CutoffNonPeriodic
	CutoffPeriodic
	Ewald
	PME
	LJPME
)

func (m Method) String() string {
	switch m {
	case NoCutoff:
		return "no-cutoff"
	case CutoffNonPeriodic:
		return "cutoff"
	case CutoffPeriodic:
		return "cutoff-periodic"
	case Ewald:
		return "ewald"
	case PME:
		return "pme"
	case LJPME:
		return "ljpme"
	}
	return fmt.Sprintf("method(%d)", int(m))
}

func (m Method) usesCutoff() bool   { return m != NoCutoff }
func (m Method) usesPeriodic() bool { return m != NoCutoff && m != CutoffNonPeriodic }

// Particle holds the base nonbonded parameters of one particle. Offsets keyed
// by a global parameter name are applied additively on top.
type Particle struct {
	Charge  float64
	Sigma   float64
	Epsilon float64
}

// Exception overrides the default pair rule for one particle pair. An
// exception with zero ChargeProd and Epsilon and no offsets is a pure
// exclusion: the pair is omitted from both the short-range sum and the
// reciprocal-space correction, and occupies no device storage.
type Exception struct {
	Particle1  int
	Particle2  int
	ChargeProd float64
	Sigma      float64
	Epsilon    float64
}

// ParticleOffset scales (charge, sigma, epsilon) additions to one particle by
// the current value of a named global parameter.
type ParticleOffset struct {
	Parameter string
	Particle  int
	Charge    float64
	Sigma     float64
	Epsilon   float64
}

// ExceptionOffset is the exception analogue of ParticleOffset.
type ExceptionOffset struct {
	Parameter  string
	Exception  int
	ChargeProd float64
	Sigma      float64
	Epsilon    float64
}

// Force describes a complete nonbonded interaction. It is plain data; a
// Kernel compiled from it holds all derived state. Particle count and the
// exception set are fixed for the lifetime of a Kernel.
type Force struct {
	Method                    Method
	Cutoff                    float64
	EwaldErrorTolerance       float64
	ReactionFieldDielectric   float64
	UseSwitchingFunction      bool
	SwitchingDistance         float64
	UseDispersionCorrection   bool
	IncludeDirectSpace        bool
	ExceptionsUsePeriodic     bool
	ForceGroup                int
	ReciprocalSpaceForceGroup int // -1 means same as ForceGroup

	Particles        []Particle
	Exceptions       []Exception
	ParticleOffsets  []ParticleOffset
	ExceptionOffsets []ExceptionOffset
}

// NewForce returns a Force with the defaults the rest of the package expects.
func NewForce(method Method) *Force {
	return &Force{
		Method:                    method,
		Cutoff:                    1.0,
		EwaldErrorTolerance:       5e-4,
		ReactionFieldDielectric:   78.3,
		UseDispersionCorrection:   true,
		IncludeDirectSpace:        true,
		ReciprocalSpaceForceGroup: -1,
	}
}

func (f *Force) AddParticle(charge, sigma, epsilon float64) int {
	f.Particles = append(f.Particles, Particle{charge, sigma, epsilon})
	return len(f.Particles) - 1
}

func (f *Force) AddException(p1, p2 int, chargeProd, sigma, epsilon float64) int {
	f.Exceptions = append(f.Exceptions, Exception{p1, p2, chargeProd, sigma, epsilon})
	return len(f.Exceptions) - 1
}

func (f *Force) AddParticleOffset(param string, particle int, charge, sigma, epsilon float64) {
	f.ParticleOffsets = append(f.ParticleOffsets, ParticleOffset{param, particle, charge, sigma, epsilon})
}

func (f *Force) AddExceptionOffset(param string, exception int, chargeProd, sigma, epsilon float64) {
	f.ExceptionOffsets = append(f.ExceptionOffsets, ExceptionOffset{param, exception, chargeProd, sigma, epsilon})
}

// reciprocalGroup resolves the force group reciprocal-space work runs under.
func (f *Force) reciprocalGroup() int {
	if f.ReciprocalSpaceForceGroup >= 0 {
		return f.ReciprocalSpaceForceGroup
	}
	return f.ForceGroup
}

// hasCoulombLJ reports whether any particle or offset activates the Coulomb
// or Lennard-Jones terms. Disabled terms compile to nothing downstream.
func (f *Force) hasCoulombLJ() (hasCoulomb, hasLJ bool) {
	for _, p := range f.Particles {
		if p.Charge != 0 {
			hasCoulomb = true
		}
		if p.Epsilon != 0 {
			hasLJ = true
		}
	}
	for _, o := range f.ParticleOffsets {
		if o.Charge != 0 {
			hasCoulomb = true
		}
		if o.Epsilon != 0 {
			hasLJ = true
		}
	}
	return hasCoulomb, hasLJ
}

// nontrivialExceptions returns the indices of exceptions that need a device
// correction term: nonzero chargeProd or epsilon, or any attached offset.
func (f *Force) nontrivialExceptions() []int {
	withOffsets := make(map[int]bool, len(f.ExceptionOffsets))
	for _, o := range f.ExceptionOffsets {
		withOffsets[o.Exception] = true
	}
	var idx []int
	for i, e := range f.Exceptions {
		if e.ChargeProd != 0 || e.Epsilon != 0 || withOffsets[i] {
			idx = append(idx, i)
		}
	}
	return idx
}

// ParticlesIdentical reports whether two particles have identical base
// parameters. Callers use this for molecule reordering.
func (f *Force) ParticlesIdentical(i, j int) bool {
	return f.Particles[i] == f.Particles[j]
}

// ExceptionGroupsIdentical reports whether two exceptions carry the same
// override parameters.
func (f *Force) ExceptionGroupsIdentical(i, j int) bool {
	a, b := f.Exceptions[i], f.Exceptions[j]
	return a.ChargeProd == b.ChargeProd && a.Sigma == b.Sigma && a.Epsilon == b.Epsilon
}

// validate rejects descriptions no kernel can be built from.
func (f *Force) validate() error {
	if f.Method < NoCutoff || f.Method > LJPME {
		return fmt.Errorf("%w: unknown method %d", ErrInvalidConfiguration, int(f.Method))
	}
	if f.Method.usesCutoff() && f.Cutoff <= 0 {
		return fmt.Errorf("%w: cutoff must be positive", ErrInvalidConfiguration)
	}
	if f.UseSwitchingFunction && (f.SwitchingDistance <= 0 || f.SwitchingDistance >= f.Cutoff) {
		return fmt.Errorf("%w: switching distance must lie inside the cutoff", ErrInvalidConfiguration)
	}
	if f.EwaldErrorTolerance <= 0 || f.EwaldErrorTolerance >= 1 {
		return fmt.Errorf("%w: ewald error tolerance must be in (0,1)", ErrInvalidConfiguration)
	}
	for i, e := range f.Exceptions {
		if e.Particle1 < 0 || e.Particle1 >= len(f.Particles) || e.Particle2 < 0 || e.Particle2 >= len(f.Particles) {
			return fmt.Errorf("%w: exception %d references missing particle", ErrInvalidConfiguration, i)
		}
	}
	for _, o := range f.ParticleOffsets {
		if o.Particle < 0 || o.Particle >= len(f.Particles) {
			return fmt.Errorf("%w: particle offset references missing particle", ErrInvalidConfiguration)
		}
	}
	for _, o := range f.ExceptionOffsets {
		if o.Exception < 0 || o.Exception >= len(f.Exceptions) {
			return fmt.Errorf("%w: exception offset references missing exception", ErrInvalidConfiguration)
		}
	}
	return nil
}
