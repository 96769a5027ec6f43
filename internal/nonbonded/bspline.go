package nonbonded

import "math"

// Real is the floating point width a kernel computes in. The precision mode
// of the context picks one width for the whole engine; formulas shared
// between modes are written once over this constraint.
type Real interface {
	~float32 | ~float64
}

// bsplineWeights evaluates the order-4 cardinal B-spline and its derivative
// at fractional offset w in [0,1). theta[j] weights grid point
// floor(u)-(PmeOrder-1)+j; dtheta[j] is d(theta[j])/du.
func bsplineWeights[T Real](w T) (theta, dtheta [PmeOrder]T) {
	theta[0] = 1 - w
	theta[1] = w
	// Raise to order 3.
	div := T(0.5)
	theta[2] = div * w * theta[1]
	theta[1] = div * ((w+1)*theta[0] + (2-w)*theta[1])
	theta[0] = div * (1 - w) * theta[0]
	// The derivative of an order-n spline is a difference of order n-1
	// splines, so it is taken before the final raise.
	dtheta[0] = -theta[0]
	dtheta[1] = theta[0] - theta[1]
	dtheta[2] = theta[1] - theta[2]
	dtheta[3] = theta[2]
	// Raise to order 4.
	div = T(1.0 / 3.0)
	theta[3] = div * w * theta[2]
	theta[2] = div * ((w+1)*theta[1] + (3-w)*theta[2])
	theta[1] = div * ((w+2)*theta[0] + (2-w)*theta[1])
	theta[0] = div * (1 - w) * theta[0]
	return theta, dtheta
}

// bsplineModuli computes the per-axis influence-function weights: the squared
// magnitude of the discrete Fourier transform of the B-spline basis sampled
// on an n-point axis. Values below the numerical floor are replaced by the
// average of their neighbors, which removes a known small bias without
// affecting well-conditioned entries.
func bsplineModuli(n int) []float64 {
	// B-spline coefficients at the integer knots, raised to PmeOrder.
	data := make([]float64, PmeOrder)
	data[0] = 1
	for i := 3; i <= PmeOrder; i++ {
		div := 1.0 / float64(i-1)
		data[i-1] = 0
		for j := 1; j < i-1; j++ {
			data[i-j-1] = div * (float64(j)*data[i-j-2] + float64(i-j)*data[i-j-1])
		}
		data[0] = div * data[0]
	}

	samples := make([]float64, n)
	for i := 1; i <= PmeOrder && i < n; i++ {
		samples[i] = data[i-1]
	}

	moduli := make([]float64, n)
	for i := 0; i < n; i++ {
		sc, ss := 0.0, 0.0
		for j := 0; j < n; j++ {
			arg := 2 * math.Pi * float64(i) * float64(j) / float64(n)
			sc += samples[j] * math.Cos(arg)
			ss += samples[j] * math.Sin(arg)
		}
		moduli[i] = sc*sc + ss*ss
	}
	for i := 0; i < n; i++ {
		if moduli[i] < 1e-7 {
			moduli[i] = (moduli[(i-1+n)%n] + moduli[(i+1)%n]) * 0.5
		}
	}
	return moduli
}
