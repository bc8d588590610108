package kernel

import (
	"fmt"

	"anharm"
	"anharm/symm"
	"anharm/thermal"
)

// D3FT applies D3 to the extended finite-temperature vector input and writes
// the symmetrized result into output. Both vectors are laid out [R | A | Y]
// with the A channel spanning [startA, endA); see IndexA and IndexY. The
// single-mode block couples into the pair channels with the Z (Y channel) and
// Z1 (A channel) coefficients, and the pair channels couple back with X2 and
// Z1. At T=0 the occupations vanish and the call reduces exactly to
// ApplyD3ToVector on the R block and ApplyD3ToDyn on the Y block.
func D3FT(e *anharm.Ensemble, w []float64, temp float64, startA, endA int, input, output []float64, g *symm.Group, options ...Options) {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	checkModes(e, w, g)
	checkPsi(e.NModes, startA, endA, len(input), len(output))

	d3FTRaw(e, w, temp, startA, endA, input, output, e.Weight(), opt)
	symmetrizePsi(g, startA, endA, output)
}

// D4FT applies D4 to the extended finite-temperature vector input and writes
// the symmetrized result into output. D4 couples pair channels among
// themselves: the gathered pair input is contracted through the fourth order
// estimator and scattered back with the four-mode X and X1 coefficients,
// which factor into per-pair weights. The R block receives no fourth order
// contribution. At T=0 the call reduces exactly to ApplyD4ToDyn on the Y
// block.
func D4FT(e *anharm.Ensemble, w []float64, temp float64, startA, endA int, input, output []float64, g *symm.Group, options ...Options) {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	checkModes(e, w, g)
	checkPsi(e.NModes, startA, endA, len(input), len(output))

	d4FTRaw(e, w, temp, startA, endA, input, output, e.Weight(), opt)
	symmetrizePsi(g, startA, endA, output)
}

func d3FTRaw(e *anharm.Ensemble, w []float64, temp float64, startA, endA int, input, output []float64, neff float64, opt Options) {
	n := e.NModes
	occ := occupations(w, temp)
	ux := upsX(e, w, temp)
	zero(output)

	// R block into the pair channels: raw[a,b] = sum_c d3[a,b,c]*R[c],
	// scattered with the Z and Z1 weights. raw is symmetric by construction.
	raw := make([]float64, n*n)
	parRun(e.NConfigs, opt, raw, func(lo, hi int, out []float64) {
		accD3Vector(e, ux, input[:n], neff, lo, hi, out)
	})
	for a := 0; a < n; a++ {
		for b := a; b < n; b++ {
			p := PairIndex(a, b, n)
			v := raw[a*n+b]
			output[endA+p] += thermal.ZCoeff(w[a], occ[a], w[b], occ[b]) * v
			output[startA+p] += thermal.Z1Coeff(w[a], occ[a], w[b], occ[b]) * v
		}
	}

	// Pair channels into the R block, gathered with the X2 and Z1 weights.
	gathered := gatherPairs(w, occ, startA, endA, input)
	parRun(e.NConfigs, opt, output[:n], func(lo, hi int, out []float64) {
		accD3Dyn(e, ux, gathered, neff, lo, hi, out)
	})
}

func d4FTRaw(e *anharm.Ensemble, w []float64, temp float64, startA, endA int, input, output []float64, neff float64, opt Options) {
	n := e.NModes
	occ := occupations(w, temp)
	ux := upsX(e, w, temp)
	zero(output)

	gathered := gatherPairs(w, occ, startA, endA, input)
	h := make([]float64, n*n)
	parRun(e.NConfigs, opt, h, func(lo, hi int, out []float64) {
		accD4Dyn(e, ux, gathered, neff, lo, hi, out)
	})
	for a := 0; a < n; a++ {
		for b := a; b < n; b++ {
			p := PairIndex(a, b, n)
			v := h[a*n+b]
			output[endA+p] += thermal.ZCoeff(w[a], occ[a], w[b], occ[b]) * v
			output[startA+p] += thermal.Z1Coeff(w[a], occ[a], w[b], occ[b]) * v
		}
	}
}

// gatherPairs unpacks the pair channels of a flat vector into a full
// symmetric dyn, weighting the Y channel with X2 and the A channel with Z1.
func gatherPairs(w, occ []float64, startA, endA int, psi []float64) []float64 {
	n := len(w)
	d := make([]float64, n*n)
	for a := 0; a < n; a++ {
		for b := a; b < n; b++ {
			p := PairIndex(a, b, n)
			v := psi[endA+p]*thermal.X2Coeff(w[a], occ[a], w[b], occ[b]) +
				psi[startA+p]*thermal.Z1Coeff(w[a], occ[a], w[b], occ[b])
			d[a*n+b] = v
			d[b*n+a] = v
		}
	}
	return d
}

// symmetrizePsi symmetrizes the R block as a vector and each pair channel as
// a dyn, unpacking and repacking the packed storage.
func symmetrizePsi(g *symm.Group, startA, endA int, psi []float64) {
	n := g.NModes
	g.SymmetrizeVector(psi[:n])
	symmetrizePairBlock(g, psi[startA:endA])
	symmetrizePairBlock(g, psi[endA:endA+NumPairs(n)])
}

func symmetrizePairBlock(g *symm.Group, block []float64) {
	n := g.NModes
	d := make([]float64, n*n)
	for a := 0; a < n; a++ {
		for b := a; b < n; b++ {
			p := PairIndex(a, b, n)
			d[a*n+b] = block[p]
			d[b*n+a] = block[p]
		}
	}
	g.SymmetrizeDyn(d)
	for a := 0; a < n; a++ {
		for b := a; b < n; b++ {
			block[PairIndex(a, b, n)] = d[a*n+b]
		}
	}
}

func occupations(w []float64, temp float64) []float64 {
	occ := make([]float64, len(w))
	for m, wm := range w {
		occ[m] = thermal.Bose(wm, temp)
	}
	return occ
}

func checkPsi(nModes, startA, endA, inLen, outLen int) {
	np := NumPairs(nModes)
	if startA != StartA(nModes) || endA-startA != np {
		panic(fmt.Sprintf("%d %d %d", startA, endA, nModes))
	}
	if inLen != endA+np || outLen != endA+np {
		panic(fmt.Sprintf("%d %d %d", inLen, outLen, endA+np))
	}
}
