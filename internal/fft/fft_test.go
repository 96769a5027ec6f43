package fft

import (
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/mjibson/go-dsp/dsputils"
	dspfft "github.com/mjibson/go-dsp/fft"
	"github.com/stretchr/testify/require"
)

func randomGrid(nx, ny, nz int, seed int64) []complex128 {
	rng := rand.New(rand.NewSource(seed))
	grid := make([]complex128, nx*ny*nz)
	for i := range grid {
		grid[i] = complex(rng.NormFloat64(), rng.NormFloat64())
	}
	return grid
}

func TestRoundTrip(t *testing.T) {
	for _, dims := range [][3]int{{4, 4, 4}, {6, 10, 14}, {5, 3, 8}} {
		nx, ny, nz := dims[0], dims[1], dims[2]
		plan, err := NewPlan3D(nx, ny, nz)
		require.NoError(t, err)

		src := randomGrid(nx, ny, nz, 1)
		work := make([]complex128, len(src))
		copy(work, src)

		require.NoError(t, plan.Forward(work, work))
		require.NoError(t, plan.Inverse(work, work))

		for i := range src {
			if cmplx.Abs(work[i]-src[i]) > 1e-10 {
				t.Fatalf("%dx%dx%d: round trip error %g at %d", nx, ny, nz, cmplx.Abs(work[i]-src[i]), i)
			}
		}
	}
}

// The forward transform must agree with an independent FFT implementation.
func TestForwardMatchesReference(t *testing.T) {
	nx, ny, nz := 6, 5, 8
	plan, err := NewPlan3D(nx, ny, nz)
	require.NoError(t, err)

	src := randomGrid(nx, ny, nz, 2)
	got := make([]complex128, len(src))
	require.NoError(t, plan.Forward(got, src))

	ref := dspfft.FFTN(dsputils.MakeMatrix(src, []int{nx, ny, nz}))
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			for z := 0; z < nz; z++ {
				want := ref.Value([]int{x, y, z})
				have := got[(x*ny+y)*nz+z]
				if cmplx.Abs(have-want) > 1e-9 {
					t.Fatalf("mismatch at (%d,%d,%d): got %v, want %v", x, y, z, have, want)
				}
			}
		}
	}
}

func TestPlanErrors(t *testing.T) {
	if _, err := NewPlan3D(0, 4, 4); err == nil {
		t.Error("expected error for zero dimension")
	}
	plan, err := NewPlan3D(4, 4, 4)
	require.NoError(t, err)
	if err := plan.Forward(make([]complex128, 63), make([]complex128, 64)); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestFindLegalDimension(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {11, 12}, {13, 14}, {17, 18},
		{31, 32}, {97, 98}, {101, 105}, {121, 125},
	}
	for _, c := range cases {
		if got := FindLegalDimension(c.in); got != c.want {
			t.Errorf("FindLegalDimension(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}
