package nonbonded

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mdkit/ewald/internal/device"
	"github.com/mdkit/ewald/internal/unit"
)

func hostContext() *device.Context {
	return device.NewContext(device.HostCapabilities())
}

func newTestContext(t *testing.T, pos []unit.Vec3, box unit.Box) *Context {
	t.Helper()
	ctx := NewContext(hostContext(), len(pos), Double, SeparateChargeBuffer, box)
	require.NoError(t, ctx.SetPositions(pos))
	return ctx
}

// rockSalt returns the 8-ion NaCl unit cell with unit spacing: alternating
// +1/-1 charges on the corners of a cube of side 2.
func rockSalt() (*Force, []unit.Vec3) {
	f := NewForce(Ewald)
	f.Cutoff = 0.99
	f.EwaldErrorTolerance = 1e-5
	f.UseDispersionCorrection = false
	var pos []unit.Vec3
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			for z := 0; z < 2; z++ {
				charge := 1.0
				if (x+y+z)%2 == 1 {
					charge = -1
				}
				f.AddParticle(charge, 1, 0)
				pos = append(pos, unit.Vec3{X: float64(x), Y: float64(y), Z: float64(z)})
			}
		}
	}
	return f, pos
}

// scatteredIons returns a small neutral system with particles placed off the
// lattice so forces are nonzero.
func scatteredIons(n int, l float64) (*Force, []unit.Vec3) {
	f := NewForce(Ewald)
	f.Cutoff = 0.99
	f.EwaldErrorTolerance = 1e-5
	f.UseDispersionCorrection = false
	var pos []unit.Vec3
	// Deterministic low-discrepancy placement.
	for i := 0; i < n; i++ {
		charge := 1.0
		if i%2 == 1 {
			charge = -1
		}
		f.AddParticle(charge, 1, 0)
		fi := float64(i)
		pos = append(pos, unit.Vec3{
			X: l * math.Mod(0.37+fi*0.618033988749895, 1),
			Y: l * math.Mod(0.71+fi*0.414213562373095, 1),
			Z: l * math.Mod(0.13+fi*0.259921049894873, 1),
		})
	}
	return f, pos
}

func evaluate(t *testing.T, ctx *Context, k *Kernel) (float64, []unit.Vec3) {
	t.Helper()
	ctx.ClearForces()
	energy, err := k.Execute(ExecuteOptions{
		IncludeForces:     true,
		IncludeEnergy:     true,
		IncludeDirect:     true,
		IncludeReciprocal: true,
		Groups:            AllGroups,
	})
	require.NoError(t, err)
	return energy, ctx.Forces()
}
