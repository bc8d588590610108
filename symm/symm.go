// Package symm averages kernel outputs over the symmetry group of the system
// and over degenerate mode subspaces. The group average projects onto the
// symmetry-invariant component; the subspace average removes the numerical
// symmetry breaking left by finite sampling, so that physically equivalent
// modes receive identical contributions.
package symm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"anharm"
)

// Group holds the symmetry operations in the mode basis and the degeneracy
// table. Ops must be orthogonal and closed under composition; Deg[i] lists
// the members of mode i's degenerate subspace, including i itself, and
// membership must be mutual. Both invariants are the caller's responsibility.
// Symmetrization further assumes each operation maps a degenerate subspace
// onto itself, which any consistent symmetry analysis guarantees.
type Group struct {
	NModes int
	Ops    []*mat.Dense
	Deg    [][]int
}

// Identity returns the trivial group: a single identity operation and every
// mode alone in its subspace. Symmetrization under it is the identity map.
func Identity(nModes int) *Group {
	id := mat.NewDense(nModes, nModes, nil)
	deg := make([][]int, nModes)
	for i := 0; i < nModes; i++ {
		id.Set(i, i, 1)
		deg[i] = []int{i}
	}
	return &Group{NModes: nModes, Ops: []*mat.Dense{id}, Deg: deg}
}

// Subspaces builds a degeneracy table from mode frequencies, grouping modes
// whose frequencies differ by less than Epsilon.
func Subspaces(w []float64) [][]int {
	deg := make([][]int, len(w))
	for i, wi := range w {
		for j, wj := range w {
			if math.Abs(wi-wj) < anharm.Epsilon {
				deg[i] = append(deg[i], j)
			}
		}
	}
	return deg
}

// SymmetrizeVector replaces v with its group average followed by the
// degenerate subspace average. Idempotent.
func (g *Group) SymmetrizeVector(v []float64) {
	if len(v) != g.NModes {
		panic(fmt.Sprintf("%d %d", len(v), g.NModes))
	}
	n := g.NModes
	acc := mat.NewVecDense(n, nil)
	tmp := mat.NewVecDense(n, nil)
	in := mat.NewVecDense(n, v)
	for _, s := range g.Ops {
		tmp.MulVec(s, in)
		acc.AddVec(acc, tmp)
	}
	acc.ScaleVec(1/float64(len(g.Ops)), acc)

	a := acc.RawVector().Data
	for i := range v {
		sub := g.Deg[i]
		var m float64
		for _, j := range sub {
			m += a[j]
		}
		v[i] = m / float64(len(sub))
	}
}

// SymmetrizeDyn replaces the NModes x NModes matrix d (row major) with its
// group conjugation average S d S^T followed by the degenerate subspace
// average. Within a diagonal subspace block the diagonal and off-diagonal
// entries are averaged separately, which preserves the trace; cross-subspace
// blocks are averaged wholesale. Idempotent.
func (g *Group) SymmetrizeDyn(d []float64) {
	n := g.NModes
	if len(d) != n*n {
		panic(fmt.Sprintf("%d %d", len(d), n*n))
	}
	in := mat.NewDense(n, n, d)
	acc := mat.NewDense(n, n, nil)
	t1 := mat.NewDense(n, n, nil)
	t2 := mat.NewDense(n, n, nil)
	for _, s := range g.Ops {
		t1.Mul(s, in)
		t2.Mul(t1, s.T())
		acc.Add(acc, t2)
	}
	acc.Scale(1/float64(len(g.Ops)), acc)

	a := acc.RawMatrix().Data
	res := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			res[i*n+j] = blockMean(a, n, g.Deg[i], g.Deg[j], i == j)
		}
	}
	copy(d, res)
}

func blockMean(a []float64, n int, subI, subJ []int, diagonal bool) float64 {
	if !sameSubspace(subI, subJ) {
		var m float64
		for _, p := range subI {
			for _, q := range subJ {
				m += a[p*n+q]
			}
		}
		return m / float64(len(subI)*len(subJ))
	}

	var m float64
	var cnt int
	for _, p := range subI {
		for _, q := range subJ {
			if (p == q) != diagonal {
				continue
			}
			m += a[p*n+q]
			cnt++
		}
	}
	return m / float64(cnt)
}

func sameSubspace(subI, subJ []int) bool {
	for _, q := range subJ {
		if q == subI[0] {
			return true
		}
	}
	return false
}
