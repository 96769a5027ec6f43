package nonbonded

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdkit/ewald/internal/unit"
)

func TestExceptionOffsetScalesCorrection(t *testing.T) {
	f := NewForce(NoCutoff)
	f.UseDispersionCorrection = false
	f.AddParticle(0, 1, 0)
	f.AddParticle(0, 1, 0)
	f.AddParticle(0, 1, 0) // bystander
	ex := f.AddException(0, 1, 0, 1, 0)
	f.AddExceptionOffset("lambda", ex, 1, 0, 0)

	pos := []unit.Vec3{{}, {X: 0.5}, {X: 3}}
	ctx := newTestContext(t, pos, unit.CubicBox(10))
	k, err := NewKernel(ctx, f)
	require.NoError(t, err)

	ctx.SetParameter("lambda", 0.5)
	eHalf, forcesHalf := evaluate(t, ctx, k)
	ctx.SetParameter("lambda", 1.0)
	eFull, forcesFull := evaluate(t, ctx, k)

	require.NotZero(t, eHalf)
	assert.InEpsilon(t, 2*eHalf, eFull, 1e-12)
	assert.InEpsilon(t, OneOver4PiEps0*0.5/0.5, eHalf, 1e-9)

	// The bystander particle is untouched at either value.
	assert.Zero(t, forcesHalf[2].X)
	assert.Zero(t, forcesFull[2].X)

	derivs := ctx.EnergyDerivatives()
	assert.InEpsilon(t, OneOver4PiEps0/0.5, derivs["lambda"], 1e-9)
}

func TestParticleOffsetScalesCharge(t *testing.T) {
	f := NewForce(NoCutoff)
	f.UseDispersionCorrection = false
	f.AddParticle(0, 1, 0)
	f.AddParticle(1, 1, 0)
	f.AddParticleOffset("scale", 0, 1, 0, 0)

	pos := []unit.Vec3{{}, {X: 2}}
	ctx := newTestContext(t, pos, unit.CubicBox(10))
	k, err := NewKernel(ctx, f)
	require.NoError(t, err)

	ctx.SetParameter("scale", 0.25)
	eQuarter, _ := evaluate(t, ctx, k)
	ctx.SetParameter("scale", 0.5)
	eHalf, _ := evaluate(t, ctx, k)
	assert.InEpsilon(t, 2*eQuarter, eHalf, 1e-12)
	assert.InEpsilon(t, OneOver4PiEps0*0.25/2, eQuarter, 1e-9)
}

// The reported dE/d(param) for particle offsets must agree with a central
// difference of the total energy, covering the direct-space, exclusion,
// reciprocal and self terms together.
func TestParticleOffsetDerivativeMatchesGradient(t *testing.T) {
	chargeOffset := func(f *Force) { f.AddParticleOffset("scale", 0, 1, 0, 0) }
	ljOffset := func(f *Force) { f.AddParticleOffset("scale", 0, 0, 0.1, 0.5) }
	cases := []struct {
		name   string
		method Method
		offset func(*Force)
		tol    float64
	}{
		{"no cutoff charge", NoCutoff, chargeOffset, 1e-9},
		{"reaction field charge", CutoffPeriodic, chargeOffset, 1e-9},
		{"ewald charge", Ewald, chargeOffset, 1e-9},
		{"pme charge", PME, chargeOffset, 1e-9},
		{"reaction field lj", CutoffPeriodic, ljOffset, 5e-4},
		{"ljpme lj", LJPME, ljOffset, 5e-4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewForce(tc.method)
			f.Cutoff = 0.99
			f.EwaldErrorTolerance = 1e-5
			f.UseDispersionCorrection = false
			f.AddParticle(0.4, 0.3, 0.5)
			f.AddParticle(-0.9, 0.25, 0.8)
			f.AddParticle(0.5, 0.35, 0.6)
			// Pure exclusion involving the offset particle: its reciprocal
			// correction depends on the derived charge.
			f.AddException(0, 1, 0, 0.3, 0)
			tc.offset(f)

			pos := []unit.Vec3{{X: 0.8, Y: 1, Z: 1}, {X: 1.45, Y: 1.1, Z: 0.9}, {X: 1.1, Y: 1.6, Z: 1.2}}
			ctx := newTestContext(t, pos, unit.CubicBox(2))
			k, err := NewKernel(ctx, f)
			require.NoError(t, err)

			eval := func(v float64) float64 {
				ctx.SetParameter("scale", v)
				e, _ := evaluate(t, ctx, k)
				return e
			}
			eval(0.6)
			got := ctx.EnergyDerivatives()["scale"]

			const h = 1e-4
			num := (eval(0.6+h) - eval(0.6-h)) / (2 * h)
			require.NotZero(t, num)
			assert.InEpsilon(t, num, got, tc.tol)
		})
	}
}

func TestRecomputeSkippedWithoutOffsets(t *testing.T) {
	f := NewForce(NoCutoff)
	f.AddParticle(1, 1, 0)
	ps := newParameterSet(f, nil)
	ps.apply()
	require.False(t, ps.recompute)

	// Untracked globals never mark the set stale.
	ps.refresh(func(string) float64 { return 42 })
	assert.False(t, ps.recompute)
}

func TestTopologyChangeRejected(t *testing.T) {
	f, pos := rockSalt()
	ctx := newTestContext(t, pos, unit.CubicBox(2))
	k, err := NewKernel(ctx, f)
	require.NoError(t, err)
	before, _ := evaluate(t, ctx, k)

	grown := *f
	grown.Particles = append(append([]Particle(nil), f.Particles...), Particle{1, 1, 0})
	err = k.UpdateParameters(&grown)
	assert.ErrorIs(t, err, ErrTopologyChanged)

	withException := *f
	withException.Exceptions = append([]Exception(nil), f.Exceptions...)
	withException.Exceptions = append(withException.Exceptions, Exception{0, 1, 0.5, 1, 0})
	err = k.UpdateParameters(&withException)
	assert.ErrorIs(t, err, ErrTopologyChanged)

	flipped := *f
	flipped.Particles = append([]Particle(nil), f.Particles...)
	for i := range flipped.Particles {
		flipped.Particles[i].Charge = 0
	}
	err = k.UpdateParameters(&flipped)
	assert.ErrorIs(t, err, ErrTopologyChanged)

	// A rejected update leaves the kernel evaluating exactly as before.
	after, _ := evaluate(t, ctx, k)
	assert.Equal(t, before, after)
}

func TestUpdateParametersNewValues(t *testing.T) {
	f := NewForce(Ewald)
	f.Cutoff = 0.99
	f.EwaldErrorTolerance = 1e-5
	f.UseDispersionCorrection = false
	f.AddParticle(1, 1, 0)
	f.AddParticle(-1, 1, 0)
	pos := []unit.Vec3{{X: 1, Y: 1, Z: 1}, {X: 1.5, Y: 1, Z: 1}}
	ctx := newTestContext(t, pos, unit.CubicBox(4))
	k, err := NewKernel(ctx, f)
	require.NoError(t, err)
	e1, _ := evaluate(t, ctx, k)

	scaled := *f
	scaled.Particles = []Particle{{2, 1, 0}, {-2, 1, 0}}
	require.NoError(t, k.UpdateParameters(&scaled))
	e4, _ := evaluate(t, ctx, k)
	assert.InEpsilon(t, 4*e1, e4, 1e-6)
}

func TestDispersionTailScalesInverseCubed(t *testing.T) {
	build := func(l float64) float64 {
		f := NewForce(CutoffPeriodic)
		f.Cutoff = 1.0
		f.AddParticle(0, 0.3, 1)
		f.AddParticle(0, 0.3, 1)
		box := unit.CubicBox(l)
		pos := []unit.Vec3{{X: 0.1, Y: 0.1, Z: 0.1}, {X: l - 0.1, Y: l - 0.1, Z: l - 0.1}}
		ctx := newTestContext(t, pos, box)
		k, err := NewKernel(ctx, f)
		require.NoError(t, err)
		k.refreshParameters()
		return k.dispersionCoeff / box.Volume()
	}
	small := build(4)
	large := build(8)
	require.Negative(t, small)
	assert.InEpsilon(t, 8.0, small/large, 1e-12)
}

func TestValidateRejectsBadConfigurations(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Force)
	}{
		{"negative cutoff", func(f *Force) { f.Cutoff = -1 }},
		{"switch outside cutoff", func(f *Force) {
			f.UseSwitchingFunction = true
			f.SwitchingDistance = 2
		}},
		{"bad tolerance", func(f *Force) { f.EwaldErrorTolerance = 0 }},
		{"dangling exception", func(f *Force) { f.AddException(0, 5, 1, 1, 0) }},
		{"dangling particle offset", func(f *Force) { f.AddParticleOffset("p", 9, 1, 0, 0) }},
		{"dangling exception offset", func(f *Force) { f.AddExceptionOffset("p", 3, 1, 0, 0) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewForce(PME)
			f.AddParticle(1, 1, 0)
			f.AddParticle(-1, 1, 0)
			tc.mutate(f)
			_, err := deriveSettings(f, unit.CubicBox(2))
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("got %v, want configuration error", err)
			}
		})
	}
}
