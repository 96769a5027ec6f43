package unit

import (
	"math"
	"testing"
)

func TestNewBoxValidation(t *testing.T) {
	cases := []struct {
		name    string
		a, b, c Vec3
		ok      bool
	}{
		{"cubic", Vec3{X: 2}, Vec3{Y: 2}, Vec3{Z: 2}, true},
		{"triclinic", Vec3{X: 4}, Vec3{X: 1, Y: 4}, Vec3{X: 0.5, Y: 1, Z: 4}, true},
		{"zero edge", Vec3{X: 0}, Vec3{Y: 2}, Vec3{Z: 2}, false},
		{"negative edge", Vec3{X: 2}, Vec3{Y: -2}, Vec3{Z: 2}, false},
		{"unreduced", Vec3{X: 2, Y: 0.1}, Vec3{Y: 2}, Vec3{Z: 2}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewBox(tc.a, tc.b, tc.c)
			if (err == nil) != tc.ok {
				t.Errorf("NewBox(%v,%v,%v): err=%v, want ok=%v", tc.a, tc.b, tc.c, err, tc.ok)
			}
		})
	}
}

func TestReciprocalInvertsBox(t *testing.T) {
	box := Box{
		A: Vec3{X: 4},
		B: Vec3{X: 1.2, Y: 4},
		C: Vec3{X: 0.7, Y: 0.9, Z: 4},
	}
	r := box.Reciprocal()
	rows := [3]Vec3{box.A, box.B, box.C}
	// recip[j] holds column j of the inverse, so box*inverse must be I.
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			got := rows[i].Dot(r[j])
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(got-want) > 1e-12 {
				t.Errorf("(box*inv)[%d][%d] = %g, want %g", i, j, got, want)
			}
		}
	}
}

func TestVolume(t *testing.T) {
	box := Box{A: Vec3{X: 2}, B: Vec3{X: 0.5, Y: 3}, C: Vec3{X: 0.1, Y: 0.2, Z: 4}}
	if v := box.Volume(); math.Abs(v-24) > 1e-12 {
		t.Errorf("volume = %g, want 24", v)
	}
}

func TestMinimumImage(t *testing.T) {
	box := CubicBox(4)
	cases := []struct {
		in, want Vec3
	}{
		{Vec3{X: 0.5}, Vec3{X: 0.5}},
		{Vec3{X: 3.5}, Vec3{X: -0.5}},
		{Vec3{X: -3.9, Y: 2.1, Z: 5}, Vec3{X: 0.1, Y: -1.9, Z: 1}},
	}
	for _, tc := range cases {
		got := box.MinimumImage(tc.in)
		if math.Abs(got.X-tc.want.X) > 1e-12 || math.Abs(got.Y-tc.want.Y) > 1e-12 || math.Abs(got.Z-tc.want.Z) > 1e-12 {
			t.Errorf("MinimumImage(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestWrapStaysInCell(t *testing.T) {
	box := Box{A: Vec3{X: 3}, B: Vec3{X: 1, Y: 3}, C: Vec3{X: 0.5, Y: 1, Z: 3}}
	points := []Vec3{
		{X: -1, Y: -2, Z: -3},
		{X: 10, Y: 7, Z: 5},
		{X: 0.1, Y: 0.1, Z: 0.1},
	}
	r := box.Reciprocal()
	for _, p := range points {
		w := box.Wrap(p)
		fz := w.Z * r[2].Z
		fy := w.Y*r[1].Y + w.Z*r[2].Y
		fx := w.X*r[0].X + w.Y*r[1].X + w.Z*r[2].X
		for _, f := range []float64{fx, fy, fz} {
			if f < -1e-12 || f >= 1+1e-12 {
				t.Errorf("Wrap(%v) = %v: fractional coordinate %g outside [0,1)", p, w, f)
			}
		}
	}
}

func TestMixedPrecisionRoundTrip(t *testing.T) {
	v := Vec3{X: 1.000000059604645, Y: -2, Z: 3}
	f := v.ToFloat32()
	back := f.ToFloat64()
	if math.Abs(back.X-v.X) > 1e-7 {
		t.Errorf("round trip error %g too large", math.Abs(back.X-v.X))
	}
}
