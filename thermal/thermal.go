// Package thermal implements the occupation algebra of the finite-temperature
// response. The coupling coefficients are the standard thermal
// double-occupation-number weights of the two-phonon propagator, split into
// the resonant channel carrying 1+n_a+n_b and the thermal channel carrying
// (n_a-n_b)/(w_b-w_a).
//
// All functions are pure. Frequencies are in Ry and must be non-negative;
// temperatures are in Kelvin.
package thermal

import (
	"math"

	"anharm"
)

// Bose returns the thermal occupation number of a mode of frequency w in Ry.
// The T=0 limit is 0.
func Bose(w, temp float64) float64 {
	if temp <= 0 {
		return 0
	}
	return 1 / math.Expm1(w*anharm.RyToK/temp)
}

// Upsilon returns the inverse displacement covariance 2w/(1+2n) of a mode.
// It is the weight that turns sampled displacements into derivatives of the
// Gaussian density in the moment estimators.
func Upsilon(w, temp float64) float64 {
	return 2 * w / (1 + 2*Bose(w, temp))
}

// ZCoeff is the coefficient applied when projecting a displacement response
// onto the Y channel of the mode pair (a, b). At T=0 it reduces to 1.
func ZCoeff(wa, na, wb, nb float64) float64 {
	return 1 + na + nb
}

// Z1Coeff is the coefficient applied when projecting a displacement response
// onto the A channel of the mode pair (a, b). Near degeneracy the finite
// difference (n_a-n_b)/(w_b-w_a) is replaced by its analytic limit -dn/dw,
// expressed through the occupations alone. At T=0 it vanishes.
func Z1Coeff(wa, na, wb, nb float64) float64 {
	if math.Abs(wa-wb) > anharm.Epsilon {
		return (na - nb) / (wb - wa)
	}
	if na <= 0 {
		return 0
	}
	// -dn/dw = beta*n*(n+1) with beta = ln(1+1/n)/w.
	return na * (na + 1) * math.Log(1+1/na) / wa
}

// X2Coeff is the coefficient applied when projecting the Y channel of the
// mode pair (a, b) back onto a displacement response. The denominator is the
// pair normalization (1+2n_a)(1+2n_b). At T=0 it reduces to 1.
func X2Coeff(wa, na, wb, nb float64) float64 {
	return (1 + na + nb) / ((1 + 2*na) * (1 + 2*nb))
}

// XCoeff is the four-mode coefficient coupling the Y channel of the pair
// (c, d) to the Y channel of the pair (a, b). It factors as
// ZCoeff(a,b)*X2Coeff(c,d); the D4 kernel exploits the factorization to keep
// its ensemble pass quadratic in the number of modes.
func XCoeff(wa, na, wb, nb, wc, nc, wd, nd float64) float64 {
	return ZCoeff(wa, na, wb, nb) * X2Coeff(wc, nc, wd, nd)
}

// X1Coeff is the four-mode coefficient coupling the Y channel of the pair
// (c, d) to the A channel of the pair (a, b). It factors as
// Z1Coeff(a,b)*X2Coeff(c,d) and vanishes at T=0.
func X1Coeff(wa, na, wb, nb, wc, nc, wd, nd float64) float64 {
	return Z1Coeff(wa, na, wb, nb) * X2Coeff(wc, nc, wd, nd)
}
