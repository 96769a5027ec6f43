package nonbonded

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdkit/ewald/internal/unit"
)

func TestDeriveAlpha(t *testing.T) {
	f := NewForce(PME)
	f.AddParticle(1, 1, 0)
	f.Cutoff = 1.2
	f.EwaldErrorTolerance = 5e-4
	s, err := deriveSettings(f, unit.CubicBox(4))
	require.NoError(t, err)
	want := math.Sqrt(-math.Log(2*5e-4)) / 1.2
	assert.InEpsilon(t, want, s.Alpha, 1e-12)
	assert.InEpsilon(t, OneOver4PiEps0*want/math.Sqrt(math.Pi), s.SelfEnergyCoulombScale, 1e-12)
}

func TestReactionFieldCoefficients(t *testing.T) {
	f := NewForce(CutoffPeriodic)
	f.AddParticle(1, 1, 0)
	f.Cutoff = 1.0
	f.ReactionFieldDielectric = 78.3
	s, err := deriveSettings(f, unit.CubicBox(4))
	require.NoError(t, err)
	eps := 78.3
	assert.InEpsilon(t, (eps-1)/(2*eps+1), s.ReactionFieldK, 1e-12)
	assert.InEpsilon(t, 3*eps/(2*eps+1), s.ReactionFieldC, 1e-12)
}

func TestSwitchingCoefficients(t *testing.T) {
	f := NewForce(CutoffPeriodic)
	f.AddParticle(0, 0.3, 1)
	f.Cutoff = 1.0
	f.UseSwitchingFunction = true
	f.SwitchingDistance = 0.8
	s, err := deriveSettings(f, unit.CubicBox(4))
	require.NoError(t, err)

	// The quintic must fall from 1 at the switching distance to 0 at the
	// cutoff with vanishing slope at both ends.
	sw := func(r float64) float64 {
		x := r - s.SwitchingDistance
		return 1 + x*x*x*(s.SwitchC3+x*(s.SwitchC4+x*s.SwitchC5))
	}
	assert.InDelta(t, 1.0, sw(0.8), 1e-12)
	assert.InDelta(t, 0.0, sw(1.0), 1e-12)
	h := 1e-6
	assert.InDelta(t, 0.0, (sw(0.8+h)-sw(0.8))/h, 1e-5)
	assert.InDelta(t, 0.0, (sw(1.0)-sw(1.0-h))/h, 1e-5)
}

func TestPMEGridSizesAreLegal(t *testing.T) {
	f := NewForce(PME)
	f.AddParticle(1, 1, 0)
	f.Cutoff = 0.9
	f.EwaldErrorTolerance = 1e-4
	s, err := deriveSettings(f, unit.CubicBox(3.1))
	require.NoError(t, err)
	for axis := 0; axis < 3; axis++ {
		n := s.GridSize[axis]
		assert.GreaterOrEqual(t, n, PmeOrder)
		for _, p := range []int{2, 3, 5, 7} {
			for n%p == 0 {
				n /= p
			}
		}
		assert.Equal(t, 1, n, "axis %d size %d not 7-smooth", axis, s.GridSize[axis])
	}
}

func TestEwaldRejectsTriclinicBox(t *testing.T) {
	box, err := unit.NewBox(
		unit.Vec3{X: 2},
		unit.Vec3{X: 0.5, Y: 2},
		unit.Vec3{Z: 2},
	)
	require.NoError(t, err)

	f := NewForce(Ewald)
	f.AddParticle(1, 1, 0)
	_, err = deriveSettings(f, box)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	// The grid engine handles triclinic boxes through the reciprocal vectors.
	f.Method = PME
	_, err = deriveSettings(f, box)
	assert.NoError(t, err)
}

func TestSelfEnergy(t *testing.T) {
	f := NewForce(PME)
	f.AddParticle(2, 1, 0)
	s, err := deriveSettings(f, unit.CubicBox(4))
	require.NoError(t, err)
	got := selfEnergy(s, []float64{2}, []float64{1}, []float64{0})
	assert.InEpsilon(t, -4*s.SelfEnergyCoulombScale, got, 1e-12)
}

func TestLJPMEShiftConstants(t *testing.T) {
	f := NewForce(LJPME)
	f.AddParticle(0, 0.3, 1)
	f.Cutoff = 1.0
	s, err := deriveSettings(f, unit.CubicBox(4))
	require.NoError(t, err)
	require.True(t, s.DoLJPME)
	assert.InEpsilon(t, 1.0, s.InvRCut6, 1e-12)
	dar2 := s.DispersionAlpha * s.DispersionAlpha
	want := -(1 - math.Exp(-dar2)*(1+dar2+0.5*dar2*dar2))
	assert.InEpsilon(t, want, s.MultShift6, 1e-12)
}

func TestMethodString(t *testing.T) {
	cases := map[Method]string{
		NoCutoff:          "no-cutoff",
		CutoffNonPeriodic: "cutoff",
		CutoffPeriodic:    "cutoff-periodic",
		Ewald:             "ewald",
		PME:               "pme",
		LJPME:             "ljpme",
	}
	for m, want := range cases {
		if got := m.String(); got != want {
			t.Errorf("method %d: got %q, want %q", int(m), got, want)
		}
	}
}
