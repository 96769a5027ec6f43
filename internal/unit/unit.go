// Package unit provides the periodic box geometry shared by the direct and
// reciprocal space engines: box vectors in reduced triclinic form, their
// inverted reciprocal vectors, and small vector types in both precisions.
package unit

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidBox = errors.New("unit: box vectors are not in reduced triclinic form")

// Vec3 is a double precision Cartesian vector.
type Vec3 struct {
	X, Y, Z float64
}

// Vec3f is the single precision representation bound to kernels running in
// single or mixed precision mode.
type Vec3f struct {
	X, Y, Z float32
}

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Dot(o Vec3) float64   { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3) Norm() float64        { return math.Sqrt(v.Dot(v)) }

// ToFloat32 rounds to the single precision representation.
func (v Vec3) ToFloat32() Vec3f {
	return Vec3f{float32(v.X), float32(v.Y), float32(v.Z)}
}

func (v Vec3f) ToFloat64() Vec3 {
	return Vec3{float64(v.X), float64(v.Y), float64(v.Z)}
}

// Box holds periodic box vectors in reduced triclinic form: A lies along x,
// B in the xy plane, C anywhere. The reciprocal engines rely on this shape,
// so it is validated at construction.
type Box struct {
	A, B, C Vec3
}

// NewBox validates that the vectors are in reduced form.
func NewBox(a, b, c Vec3) (Box, error) {
	if a.X <= 0 || b.Y <= 0 || c.Z <= 0 {
		return Box{}, fmt.Errorf("%w: diagonal elements must be positive", ErrInvalidBox)
	}
	if a.Y != 0 || a.Z != 0 || b.Z != 0 {
		return Box{}, fmt.Errorf("%w: a must lie along x and b in the xy plane", ErrInvalidBox)
	}
	return Box{A: a, B: b, C: c}, nil
}

// CubicBox returns a cubic box of side L.
func CubicBox(l float64) Box {
	return Box{A: Vec3{X: l}, B: Vec3{Y: l}, C: Vec3{Z: l}}
}

// Volume is the determinant of the (lower triangular) box matrix.
func (b Box) Volume() float64 {
	return b.A.X * b.B.Y * b.C.Z
}

// Reciprocal returns the rows of the inverted box matrix. For a reduced
// triclinic box the inverse has a short closed form, which is why NewBox
// insists on that shape.
func (b Box) Reciprocal() [3]Vec3 {
	scale := 1.0 / b.Volume()
	return [3]Vec3{
		{X: b.B.Y * b.C.Z * scale},
		{X: -b.B.X * b.C.Z * scale, Y: b.A.X * b.C.Z * scale},
		{X: (b.B.X*b.C.Y - b.B.Y*b.C.X) * scale, Y: -b.A.X * b.C.Y * scale, Z: b.A.X * b.B.Y * scale},
	}
}

// ReciprocalF returns the reciprocal vectors rounded to single precision, for
// binding to kernels running in single or mixed precision mode.
func (b Box) ReciprocalF() [3]Vec3f {
	r := b.Reciprocal()
	return [3]Vec3f{r[0].ToFloat32(), r[1].ToFloat32(), r[2].ToFloat32()}
}

// MinimumImage maps a displacement onto its nearest periodic image. Box
// vectors are applied in z, y, x order so the triclinic tilt components are
// removed before the diagonal ones.
func (b Box) MinimumImage(d Vec3) Vec3 {
	s := math.Round(d.Z / b.C.Z)
	d = d.Sub(b.C.Scale(s))
	s = math.Round(d.Y / b.B.Y)
	d = d.Sub(b.B.Scale(s))
	s = math.Round(d.X / b.A.X)
	d = d.Sub(b.A.Scale(s))
	return d
}

// Wrap maps a position into the primary periodic cell.
func (b Box) Wrap(p Vec3) Vec3 {
	r := b.Reciprocal()
	// Fractional coordinates, shifted into [0,1).
	fz := p.Z * r[2].Z
	fz -= math.Floor(fz)
	fy := p.Y*r[1].Y + p.Z*r[2].Y
	fy -= math.Floor(fy)
	fx := p.X*r[0].X + p.Y*r[1].X + p.Z*r[2].X
	fx -= math.Floor(fx)
	return Vec3{
		X: fx*b.A.X + fy*b.B.X + fz*b.C.X,
		Y: fy*b.B.Y + fz*b.C.Y,
		Z: fz * b.C.Z,
	}
}
