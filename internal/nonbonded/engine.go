package nonbonded

import "github.com/mdkit/ewald/internal/device"

// reciprocalEngine is the strategy interface the kernel drives: one concrete
// variant is built at initialization from the method and the device
// capability set, so the evaluation path never branches on capabilities.
type reciprocalEngine interface {
	// execute accumulates reciprocal forces into the context and returns
	// the reciprocal energy. values holds the per-particle quantity spread
	// into reciprocal space; its scaling is the caller's business. derivs
	// names the parameter derivatives of those values the engine must
	// accumulate alongside.
	execute(ctx *Context, s Settings, values []float64, derivs []spreadDeriv, includeForces, includeEnergy bool) (float64, error)
	description() string
}

// spreadDeriv requests one parameter derivative from a reciprocal engine.
// The reciprocal energy is quadratic in the spread values, so its derivative
// with respect to a global parameter is the per-particle potential times
// d(value)/d(parameter): dE/d(name) += potential(particle) * factor.
type spreadDeriv struct {
	name     string
	particle int
	factor   float64
}

// derivParticles returns the distinct particles named by derivs.
func derivParticles(derivs []spreadDeriv) []int {
	seen := make(map[int]bool, len(derivs))
	var out []int
	for _, d := range derivs {
		if !seen[d.particle] {
			seen[d.particle] = true
			out = append(out, d.particle)
		}
	}
	return out
}

// buildReciprocalEngines constructs the Coulomb engine and, for LJ-PME, the
// dispersion engine. The two grid engines share storage sized to the larger
// grid since they never run concurrently.
func buildReciprocalEngines(s Settings, caps device.Capabilities, particles int) (coulomb, dispersion reciprocalEngine, err error) {
	switch s.Method {
	case Ewald:
		return newEwaldEngine(s), nil, nil
	case PME, LJPME:
		cells := s.GridSize[0] * s.GridSize[1] * s.GridSize[2]
		if s.DoLJPME {
			if d := s.DispersionGridSize[0] * s.DispersionGridSize[1] * s.DispersionGridSize[2]; d > cells {
				cells = d
			}
		}
		buffers := newGridBuffers(cells, particles)
		coulombPME, err := newPMEEngine(s, caps, false, buffers)
		if err != nil {
			return nil, nil, err
		}
		if !s.DoLJPME {
			return coulombPME, nil, nil
		}
		dispersionPME, err := newPMEEngine(s, caps, true, buffers)
		if err != nil {
			return nil, nil, err
		}
		return coulombPME, dispersionPME, nil
	default:
		return nil, nil, nil
	}
}
