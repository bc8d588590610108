package anharm

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Ensemble is a set of sampled configurations in the mode representation.
// X and Y hold one row per mode with the configuration as the fast index,
// so the value of mode m in configuration i sits at m*NConfigs + i.
// All arrays are owned by the caller; kernels only read them.
type Ensemble struct {
	NModes   int
	NConfigs int

	// X are the displacements in Ry atomic units.
	X []float64
	// Y are the forces in Ry atomic units.
	Y []float64
	// Rho are the non-negative importance weights of the configurations.
	Rho []float64
}

// Weight returns the effective sample count, the sum of all weights.
func (e *Ensemble) Weight() float64 {
	return floats.Sum(e.Rho)
}

// Validate reports inconsistent array shapes or negative weights.
// Kernels do not call it; they treat malformed ensembles as contract
// violations. Use it on ensembles loaded from external sources.
func (e *Ensemble) Validate() error {
	if e.NModes <= 0 || e.NConfigs <= 0 {
		return errors.Errorf("%d modes, %d configurations", e.NModes, e.NConfigs)
	}
	n := e.NModes * e.NConfigs
	if len(e.X) != n {
		return errors.Errorf("X %d, expected %d", len(e.X), n)
	}
	if len(e.Y) != n {
		return errors.Errorf("Y %d, expected %d", len(e.Y), n)
	}
	if len(e.Rho) != e.NConfigs {
		return errors.Errorf("rho %d, expected %d", len(e.Rho), e.NConfigs)
	}
	for i, r := range e.Rho {
		if r < 0 || math.IsNaN(r) {
			return errors.Errorf("rho[%d] = %f", i, r)
		}
	}
	return nil
}

// Slice copies the configuration range [lo, hi) into a new ensemble.
// It is the caller-determined partitioning used by the distributed kernels.
func (e *Ensemble) Slice(lo, hi int) *Ensemble {
	if lo < 0 || hi > e.NConfigs || lo > hi {
		panic(fmt.Sprintf("%d %d %d", lo, hi, e.NConfigs))
	}
	nc := hi - lo
	s := &Ensemble{
		NModes:   e.NModes,
		NConfigs: nc,
		X:        make([]float64, e.NModes*nc),
		Y:        make([]float64, e.NModes*nc),
		Rho:      make([]float64, nc),
	}
	for m := 0; m < e.NModes; m++ {
		copy(s.X[m*nc:(m+1)*nc], e.X[m*e.NConfigs+lo:m*e.NConfigs+hi])
		copy(s.Y[m*nc:(m+1)*nc], e.Y[m*e.NConfigs+lo:m*e.NConfigs+hi])
	}
	copy(s.Rho, e.Rho[lo:hi])
	return s
}

// RandHarmonic samples nConfigs configurations from the harmonic thermal
// distribution of the given mode frequencies, with forces from the same
// harmonic potential. Since the potential is symmetric, the odd force
// constants of such an ensemble vanish up to sampling noise.
func RandHarmonic(w []float64, temp float64, nConfigs int, rng *rand.Rand) *Ensemble {
	n := len(w)
	e := &Ensemble{
		NModes:   n,
		NConfigs: nConfigs,
		X:        make([]float64, n*nConfigs),
		Y:        make([]float64, n*nConfigs),
		Rho:      make([]float64, nConfigs),
	}
	for m, wm := range w {
		var occ float64
		if temp > 0 {
			occ = 1 / math.Expm1(wm*RyToK/temp)
		}
		// <u^2> = (1+2n)/(2w) in Ry atomic units.
		sigma := math.Sqrt((1 + 2*occ) / (2 * wm))
		for i := 0; i < nConfigs; i++ {
			u := sigma * rng.NormFloat64()
			e.X[m*nConfigs+i] = u
			e.Y[m*nConfigs+i] = -wm * wm * u
		}
	}
	for i := range e.Rho {
		e.Rho[i] = 1
	}
	return e
}
