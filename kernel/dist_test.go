package kernel

import (
	"math/rand/v2"
	"testing"

	"golang.org/x/sync/errgroup"

	"anharm/comm"
	"anharm/symm"
)

func TestDistMatchesSerial(t *testing.T) {
	t.Parallel()
	const n, nc = 3, 200
	rng := rand.New(rand.NewPCG(59, 61))
	e := randEnsemble(n, nc, rng)
	w := []float64{0.8, 1.0, 1.2}
	g := mirror(n)
	const temp = 250.0

	v := make([]float64, n)
	psi := make([]float64, PsiSize(n))
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	for i := range psi {
		psi[i] = rng.NormFloat64()
	}
	startA, endA := StartA(n), EndA(n)

	refDyn := make([]float64, n*n)
	ApplyD3ToVector(e, w, temp, v, refDyn, g)
	refPsi := make([]float64, PsiSize(n))
	D3FT(e, w, temp, startA, endA, psi, refPsi, g)

	const size = 2
	members := comm.NewLocal(size)
	// Uneven partition on purpose.
	bounds := []int{0, 71, nc}
	dyns := make([][]float64, size)
	psis := make([][]float64, size)
	eg := &errgroup.Group{}
	for k := 0; k < size; k++ {
		k := k
		local := e.Slice(bounds[k], bounds[k+1])
		dyns[k] = make([]float64, n*n)
		psis[k] = make([]float64, PsiSize(n))
		eg.Go(func() error {
			d := Dist{Comm: members[k]}
			if err := d.ApplyD3ToVector(local, w, temp, v, dyns[k], g); err != nil {
				return err
			}
			return d.D3FT(local, w, temp, startA, endA, psi, psis[k], g)
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("%+v", err)
	}

	for k := 0; k < size; k++ {
		for i := range refDyn {
			if !within(dyns[k][i], refDyn[i], 1e-9) {
				t.Fatalf("rank %d: dyn[%d] = %v, expected %v", k, i, dyns[k][i], refDyn[i])
			}
		}
		for i := range refPsi {
			if !within(psis[k][i], refPsi[i], 1e-9) {
				t.Fatalf("rank %d: psi[%d] = %v, expected %v", k, i, psis[k][i], refPsi[i])
			}
		}
	}
}

func TestDistD4MatchesSerial(t *testing.T) {
	t.Parallel()
	const n, nc = 3, 150
	rng := rand.New(rand.NewPCG(67, 71))
	e := randEnsemble(n, nc, rng)
	w := []float64{0.8, 1.0, 1.2}
	g := symm.Identity(n)
	const temp = 100.0

	m := make([]float64, n*n)
	for i := range m {
		m[i] = rng.NormFloat64()
	}
	refVec := make([]float64, n)
	ApplyD3ToDyn(e, w, temp, m, refVec, g)
	refDyn := make([]float64, n*n)
	ApplyD4ToDyn(e, w, temp, m, refDyn, g)

	const size = 3
	members := comm.NewLocal(size)
	bounds := []int{0, 50, 100, nc}
	vecs := make([][]float64, size)
	dyns := make([][]float64, size)
	eg := &errgroup.Group{}
	for k := 0; k < size; k++ {
		k := k
		local := e.Slice(bounds[k], bounds[k+1])
		vecs[k] = make([]float64, n)
		dyns[k] = make([]float64, n*n)
		eg.Go(func() error {
			d := Dist{Comm: members[k]}
			if err := d.ApplyD3ToDyn(local, w, temp, m, vecs[k], g); err != nil {
				return err
			}
			return d.ApplyD4ToDyn(local, w, temp, m, dyns[k], g)
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("%+v", err)
	}

	for k := 0; k < size; k++ {
		for i := range refVec {
			if !within(vecs[k][i], refVec[i], 1e-9) {
				t.Fatalf("rank %d: vec[%d] = %v, expected %v", k, i, vecs[k][i], refVec[i])
			}
		}
		for i := range refDyn {
			if !within(dyns[k][i], refDyn[i], 1e-9) {
				t.Fatalf("rank %d: dyn[%d] = %v, expected %v", k, i, dyns[k][i], refDyn[i])
			}
		}
	}
}

var _ comm.Group = (*comm.Local)(nil)

func TestDistSingleRank(t *testing.T) {
	t.Parallel()
	const n, nc = 2, 40
	rng := rand.New(rand.NewPCG(73, 79))
	e := randEnsemble(n, nc, rng)
	w := []float64{0.9, 1.1}
	g := symm.Identity(n)

	ref := make([]float64, n*n)
	ApplyD3ToVector(e, w, 0, []float64{1, -1}, ref, g)

	d := Dist{Comm: comm.NewLocal(1)[0]}
	got := make([]float64, n*n)
	if err := d.ApplyD3ToVector(e, w, 0, []float64{1, -1}, got, g); err != nil {
		t.Fatalf("%+v", err)
	}
	for i := range ref {
		if got[i] != ref[i] {
			t.Fatalf("%v, expected %v", got, ref)
		}
	}
}
