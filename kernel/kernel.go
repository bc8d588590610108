// Package kernel applies the third and fourth order anharmonic force constant
// tensors D3 and D4 to vectors and dynamical matrices in the mode basis.
// The tensors are never materialized: their contractions are estimated in a
// single weighted pass over a stochastic ensemble, using the Gaussian
// integration-by-parts moment estimators of the self-consistent harmonic
// approximation. Every output is symmetrized over the system's symmetry group
// and averaged over degenerate subspaces before it is returned.
//
// All kernels are blocking, stateless and allocate only per-call scratch.
// Array shapes are contracts: mismatches panic.
//
// References:
//   - Time-dependent self-consistent harmonic approximation, Monacelli, Mauri, Phys. Rev. B 103, 104305
package kernel

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"anharm"
	"anharm/symm"
	"anharm/thermal"
)

// Options control the shared-memory execution of a kernel call.
type Options struct {
	workers int
}

// NewOptions returns the default options: a single worker, which is the
// deterministic serial reference.
func NewOptions() Options {
	opt := Options{}
	opt.workers = 1
	return opt
}

// Workers sets the number of workers the configuration loop is partitioned
// across. Values below 1 select all available CPUs.
func (opt Options) Workers(n int) Options {
	opt.workers = n
	return opt
}

func (opt Options) numWorkers(nConfigs int) int {
	w := opt.workers
	if w < 1 {
		w = runtime.NumCPU()
	}
	if w > nConfigs {
		w = nConfigs
	}
	if w < 1 {
		w = 1
	}
	return w
}

// ApplyD3ToVector contracts the third index of D3 with input and writes the
// symmetrized result, a dyn of shape NModes x NModes, into outDyn.
func ApplyD3ToVector(e *anharm.Ensemble, w []float64, temp float64, input, outDyn []float64, g *symm.Group, options ...Options) {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	checkModes(e, w, g)
	checkLen(len(input), e.NModes)
	checkLen(len(outDyn), e.NModes*e.NModes)

	applyD3ToVectorRaw(e, w, temp, input, outDyn, e.Weight(), opt)
	g.SymmetrizeDyn(outDyn)
}

// ApplyD3ToDyn contracts two indices of D3 with inputDyn and writes the
// symmetrized result, a vector of length NModes, into output.
func ApplyD3ToDyn(e *anharm.Ensemble, w []float64, temp float64, inputDyn, output []float64, g *symm.Group, options ...Options) {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	checkModes(e, w, g)
	checkLen(len(inputDyn), e.NModes*e.NModes)
	checkLen(len(output), e.NModes)

	applyD3ToDynRaw(e, w, temp, inputDyn, output, e.Weight(), opt)
	g.SymmetrizeVector(output)
}

// ApplyD4ToDyn contracts two indices of D4 with inputDyn and writes the
// symmetrized result, a dyn of shape NModes x NModes, into outDyn.
func ApplyD4ToDyn(e *anharm.Ensemble, w []float64, temp float64, inputDyn, outDyn []float64, g *symm.Group, options ...Options) {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	checkModes(e, w, g)
	checkLen(len(inputDyn), e.NModes*e.NModes)
	checkLen(len(outDyn), e.NModes*e.NModes)

	applyD4ToDynRaw(e, w, temp, inputDyn, outDyn, e.Weight(), opt)
	g.SymmetrizeDyn(outDyn)
}

// The raw variants accumulate the unsymmetrized ensemble sums with an
// explicit effective sample count, so that the distributed wrappers can pass
// the globally reduced weight.

func applyD3ToVectorRaw(e *anharm.Ensemble, w []float64, temp float64, input, outDyn []float64, neff float64, opt Options) {
	ux := upsX(e, w, temp)
	zero(outDyn)
	parRun(e.NConfigs, opt, outDyn, func(lo, hi int, out []float64) {
		accD3Vector(e, ux, input, neff, lo, hi, out)
	})
}

func applyD3ToDynRaw(e *anharm.Ensemble, w []float64, temp float64, inputDyn, output []float64, neff float64, opt Options) {
	ux := upsX(e, w, temp)
	zero(output)
	parRun(e.NConfigs, opt, output, func(lo, hi int, out []float64) {
		accD3Dyn(e, ux, inputDyn, neff, lo, hi, out)
	})
}

func applyD4ToDynRaw(e *anharm.Ensemble, w []float64, temp float64, inputDyn, outDyn []float64, neff float64, opt Options) {
	ux := upsX(e, w, temp)
	zero(outDyn)
	parRun(e.NConfigs, opt, outDyn, func(lo, hi int, out []float64) {
		accD4Dyn(e, ux, inputDyn, neff, lo, hi, out)
	})
}

// accD3Vector adds the configurations [lo, hi) of the estimator
// sum_c d3[a,b,c]*input[c] into out. The estimator is the permutation
// average -<sym(ũ_a ũ_b f_c)>/3 with ũ = Upsilon*u.
func accD3Vector(e *anharm.Ensemble, ux, input []float64, neff float64, lo, hi int, out []float64) {
	n, nc := e.NModes, e.NConfigs
	norm := 3 * neff
	for i := lo; i < hi; i++ {
		var s1, s2 float64
		for m := 0; m < n; m++ {
			s1 += ux[m*nc+i] * input[m]
			s2 += e.Y[m*nc+i] * input[m]
		}
		r := e.Rho[i] / norm
		for a := 0; a < n; a++ {
			xa := ux[a*nc+i]
			ya := e.Y[a*nc+i]
			row := out[a*n : (a+1)*n]
			for b := 0; b < n; b++ {
				xb := ux[b*nc+i]
				yb := e.Y[b*nc+i]
				row[b] -= r * (xa*xb*s2 + (xa*yb+ya*xb)*s1)
			}
		}
	}
}

// accD3Dyn adds the configurations [lo, hi) of the transpose contraction
// sum_ab d3[a,b,c]*inputDyn[a,b] into out.
func accD3Dyn(e *anharm.Ensemble, ux, inputDyn []float64, neff float64, lo, hi int, out []float64) {
	n, nc := e.NModes, e.NConfigs
	norm := 3 * neff
	for i := lo; i < hi; i++ {
		var t1, t2, t3 float64
		for a := 0; a < n; a++ {
			xa := ux[a*nc+i]
			ya := e.Y[a*nc+i]
			row := inputDyn[a*n : (a+1)*n]
			var rx, ry float64
			for b := 0; b < n; b++ {
				rx += row[b] * ux[b*nc+i]
				ry += row[b] * e.Y[b*nc+i]
			}
			t1 += xa * rx
			t2 += xa * ry
			t3 += ya * rx
		}
		r := e.Rho[i] / norm
		for c := 0; c < n; c++ {
			out[c] -= r * (t1*e.Y[c*nc+i] + (t2+t3)*ux[c*nc+i])
		}
	}
}

// accD4Dyn adds the configurations [lo, hi) of the fourth order contraction
// sum_cd d4[a,b,c,d]*inputDyn[c,d] into out. The estimator is the
// permutation average -<sym(ũ_a ũ_b ũ_c f_d)>/4.
func accD4Dyn(e *anharm.Ensemble, ux, inputDyn []float64, neff float64, lo, hi int, out []float64) {
	n, nc := e.NModes, e.NConfigs
	norm := 4 * neff
	for i := lo; i < hi; i++ {
		var r1, r2, r3 float64
		for a := 0; a < n; a++ {
			xa := ux[a*nc+i]
			ya := e.Y[a*nc+i]
			row := inputDyn[a*n : (a+1)*n]
			var rx, ry float64
			for b := 0; b < n; b++ {
				rx += row[b] * ux[b*nc+i]
				ry += row[b] * e.Y[b*nc+i]
			}
			r1 += xa * rx
			r2 += xa * ry
			r3 += ya * rx
		}
		r := e.Rho[i] / norm
		for a := 0; a < n; a++ {
			xa := ux[a*nc+i]
			ya := e.Y[a*nc+i]
			row := out[a*n : (a+1)*n]
			for b := 0; b < n; b++ {
				xb := ux[b*nc+i]
				yb := e.Y[b*nc+i]
				row[b] -= r * (xa*xb*(r2+r3) + (xa*yb+ya*xb)*r1)
			}
		}
	}
}

// upsX returns the displacements weighted by the inverse covariance of their
// mode, in the same config-fast layout as the ensemble.
func upsX(e *anharm.Ensemble, w []float64, temp float64) []float64 {
	ux := make([]float64, len(e.X))
	nc := e.NConfigs
	for m := 0; m < e.NModes; m++ {
		u := thermal.Upsilon(w[m], temp)
		src := e.X[m*nc : (m+1)*nc]
		dst := ux[m*nc : (m+1)*nc]
		for i, x := range src {
			dst[i] = u * x
		}
	}
	return ux
}

// parRun partitions the configuration range across workers, each accumulating
// into its own buffer, and combines the partials into out with a pairwise
// tree reduction in a fixed order. With one worker it degenerates to the
// serial reference. Summation order changes with the worker count, so results
// across worker counts agree only within floating-point tolerance.
func parRun(nConfigs int, opt Options, out []float64, acc func(lo, hi int, out []float64)) {
	workers := opt.numWorkers(nConfigs)
	if workers == 1 {
		acc(0, nConfigs, out)
		return
	}

	parts := make([][]float64, workers)
	g := &errgroup.Group{}
	for k := 0; k < workers; k++ {
		k := k
		parts[k] = make([]float64, len(out))
		g.Go(func() error {
			lo := k * nConfigs / workers
			hi := (k + 1) * nConfigs / workers
			acc(lo, hi, parts[k])
			return nil
		})
	}
	g.Wait()

	for stride := 1; stride < workers; stride *= 2 {
		for k := 0; k+stride < workers; k += 2 * stride {
			floats.Add(parts[k], parts[k+stride])
		}
	}
	floats.Add(out, parts[0])
}

func zero(x []float64) {
	for i := range x {
		x[i] = 0
	}
}

func checkModes(e *anharm.Ensemble, w []float64, g *symm.Group) {
	if len(w) != e.NModes || g.NModes != e.NModes {
		panic(fmt.Sprintf("%d %d %d", e.NModes, len(w), g.NModes))
	}
}

func checkLen(got, want int) {
	if got != want {
		panic(fmt.Sprintf("%d %d", got, want))
	}
}
