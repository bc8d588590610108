package symm

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// swap01 returns the group {identity, swap modes 0 and 1} with modes 0 and 1
// forming a degenerate doublet.
func swap01(nModes int) *Group {
	g := Identity(nModes)
	p := mat.NewDense(nModes, nModes, nil)
	p.Set(0, 1, 1)
	p.Set(1, 0, 1)
	for i := 2; i < nModes; i++ {
		p.Set(i, i, 1)
	}
	g.Ops = append(g.Ops, p)
	g.Deg[0] = []int{0, 1}
	g.Deg[1] = []int{0, 1}
	return g
}

func TestIdentityIsNoOp(t *testing.T) {
	t.Parallel()
	g := Identity(3)
	v := []float64{1.5, -2.25, 0.125}
	want := []float64{1.5, -2.25, 0.125}
	g.SymmetrizeVector(v)
	for i := range v {
		if v[i] != want[i] {
			t.Fatalf("%v, expected %v", v, want)
		}
	}

	d := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	wantD := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	g.SymmetrizeDyn(d)
	for i := range d {
		if d[i] != wantD[i] {
			t.Fatalf("%v, expected %v", d, wantD)
		}
	}
}

func TestDegenerateAverage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		v    []float64
		want []float64
	}{
		{v: []float64{1, 3, 7}, want: []float64{2, 2, 7}},
		{v: []float64{-4, 4, 0.5}, want: []float64{0, 0, 0.5}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v", test.v), func(t *testing.T) {
			t.Parallel()
			// Identity operations with a degenerate doublet: only the
			// subspace average acts, so noise injected asymmetrically into
			// the two degenerate modes must come out exactly equal.
			g := Identity(3)
			g.Deg[0] = []int{0, 1}
			g.Deg[1] = []int{0, 1}
			g.SymmetrizeVector(test.v)
			for i := range test.v {
				if test.v[i] != test.want[i] {
					t.Fatalf("%v, expected %v", test.v, test.want)
				}
			}
			if test.v[0] != test.v[1] {
				t.Fatalf("%v, degenerate modes differ", test.v)
			}
		})
	}
}

func TestDynBlockAverage(t *testing.T) {
	t.Parallel()
	g := Identity(3)
	g.Deg[0] = []int{0, 1}
	g.Deg[1] = []int{0, 1}
	d := []float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}
	g.SymmetrizeDyn(d)
	want := []float64{
		3, 3, 4.5,
		3, 3, 4.5,
		7.5, 7.5, 9,
	}
	for i := range d {
		if d[i] != want[i] {
			t.Fatalf("%v, expected %v", d, want)
		}
	}
}

func TestIdempotent(t *testing.T) {
	t.Parallel()
	const n = 4
	g := swap01(n)
	rng := rand.New(rand.NewPCG(7, 11))

	v := make([]float64, n)
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	once := append([]float64(nil), v...)
	g.SymmetrizeVector(once)
	twice := append([]float64(nil), once...)
	g.SymmetrizeVector(twice)
	for i := range once {
		if math.Abs(once[i]-twice[i]) > 1e-12 {
			t.Fatalf("%v, expected %v", twice, once)
		}
	}

	d := make([]float64, n*n)
	for i := range d {
		d[i] = rng.NormFloat64()
	}
	onceD := append([]float64(nil), d...)
	g.SymmetrizeDyn(onceD)
	twiceD := append([]float64(nil), onceD...)
	g.SymmetrizeDyn(twiceD)
	for i := range onceD {
		if math.Abs(onceD[i]-twiceD[i]) > 1e-12 {
			t.Fatalf("%v, expected %v", twiceD, onceD)
		}
	}
}

func TestSubspaces(t *testing.T) {
	t.Parallel()
	w := []float64{0.005, 0.005, 0.009}
	deg := Subspaces(w)
	want := [][]int{{0, 1}, {0, 1}, {2}}
	for i := range deg {
		if len(deg[i]) != len(want[i]) {
			t.Fatalf("%v, expected %v", deg, want)
		}
		for j := range deg[i] {
			if deg[i][j] != want[i][j] {
				t.Fatalf("%v, expected %v", deg, want)
			}
		}
	}
}
