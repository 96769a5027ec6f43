// Package fft provides the 3D complex transforms the PME engines convolve
// their grids with. Plans wrap per-axis 1D transforms from gonum and operate
// over flattened grids laid out with x slowest and z fastest, the same order
// the spreading kernels write.
package fft

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
)

var (
	ErrInvalidDimension = errors.New("fft: dimensions must be positive")
	ErrLengthMismatch   = errors.New("fft: grid length mismatch")
)

// Plan3D performs forward and inverse complex-to-complex transforms over a
// nx*ny*nz grid. A plan owns its scratch storage and is not safe for
// concurrent use; the reciprocal engines serialize transforms on one queue.
type Plan3D struct {
	nx, ny, nz int
	ftx        *fourier.CmplxFFT
	fty        *fourier.CmplxFFT
	ftz        *fourier.CmplxFFT
	line       []complex128
}

func NewPlan3D(nx, ny, nz int) (*Plan3D, error) {
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return nil, fmt.Errorf("%w: %dx%dx%d", ErrInvalidDimension, nx, ny, nz)
	}
	maxDim := nx
	if ny > maxDim {
		maxDim = ny
	}
	if nz > maxDim {
		maxDim = nz
	}
	return &Plan3D{
		nx: nx, ny: ny, nz: nz,
		ftx:  fourier.NewCmplxFFT(nx),
		fty:  fourier.NewCmplxFFT(ny),
		ftz:  fourier.NewCmplxFFT(nz),
		line: make([]complex128, maxDim),
	}, nil
}

func (p *Plan3D) Dims() (nx, ny, nz int) { return p.nx, p.ny, p.nz }
func (p *Plan3D) Len() int               { return p.nx * p.ny * p.nz }

// Forward transforms src into dst (unnormalized). dst and src may alias.
func (p *Plan3D) Forward(dst, src []complex128) error {
	return p.transform(dst, src, true)
}

// Inverse transforms src into dst and normalizes by the grid size, so a
// Forward followed by an Inverse reproduces the input.
func (p *Plan3D) Inverse(dst, src []complex128) error {
	if err := p.transform(dst, src, false); err != nil {
		return err
	}
	scale := 1.0 / float64(p.Len())
	for i := range dst {
		dst[i] *= complex(scale, 0)
	}
	return nil
}

func (p *Plan3D) transform(dst, src []complex128, forward bool) error {
	n := p.Len()
	if len(src) != n || len(dst) != n {
		return fmt.Errorf("%w: plan %d, src %d, dst %d", ErrLengthMismatch, n, len(src), len(dst))
	}
	if &dst[0] != &src[0] {
		copy(dst, src)
	}
	nx, ny, nz := p.nx, p.ny, p.nz

	// z lines are contiguous.
	for xy := 0; xy < nx*ny; xy++ {
		row := dst[xy*nz : (xy+1)*nz]
		p.apply(p.ftz, row, forward)
	}
	// y lines have stride nz.
	for x := 0; x < nx; x++ {
		for z := 0; z < nz; z++ {
			base := x*ny*nz + z
			for y := 0; y < ny; y++ {
				p.line[y] = dst[base+y*nz]
			}
			p.apply(p.fty, p.line[:ny], forward)
			for y := 0; y < ny; y++ {
				dst[base+y*nz] = p.line[y]
			}
		}
	}
	// x lines have stride ny*nz.
	for yz := 0; yz < ny*nz; yz++ {
		for x := 0; x < nx; x++ {
			p.line[x] = dst[yz+x*ny*nz]
		}
		p.apply(p.ftx, p.line[:nx], forward)
		for x := 0; x < nx; x++ {
			dst[yz+x*ny*nz] = p.line[x]
		}
	}
	return nil
}

func (p *Plan3D) apply(ft *fourier.CmplxFFT, data []complex128, forward bool) {
	if forward {
		ft.Coefficients(data, data)
	} else {
		ft.Sequence(data, data)
	}
}

// FindLegalDimension returns the smallest size >= minimum whose prime factors
// are all in {2, 3, 5, 7}, the sizes the mixed-radix transforms handle
// efficiently.
func FindLegalDimension(minimum int) int {
	if minimum < 1 {
		return 1
	}
	for size := minimum; ; size++ {
		n := size
		for _, f := range []int{2, 3, 5, 7} {
			for n%f == 0 {
				n /= f
			}
		}
		if n == 1 {
			return size
		}
	}
}
