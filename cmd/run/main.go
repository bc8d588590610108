// Command run samples a harmonic test ensemble, applies the third and fourth
// order kernels across a range of temperatures and worker counts, and writes
// the resulting norms and timings to a csv file. It also checks that the
// distributed kernels reproduce the shared-memory results on a partitioned
// copy of the same ensemble.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"anharm"
	"anharm/comm"
	"anharm/kernel"
	"anharm/store"
	"anharm/symm"
)

const (
	fnameEnsemble = "ensemble.db"
	fnameNorms    = "norms.csv"
	fnameDone     = "done.txt"
)

var (
	runDir   = flag.String("d", filepath.Join("runs", "anharm"), "run directory")
	nConfigs = flag.Int("n", 2000, "number of sampled configurations")
)

// Modes 1 and 2 are degenerate on purpose, to exercise the subspace
// averaging of the symmetrizer.
var frequencies = []float64{0.0008, 0.0011, 0.0011, 0.0019}

func sample(dir string) (*anharm.Ensemble, error) {
	rng := rand.New(rand.NewPCG(2, 3))
	e := anharm.RandHarmonic(frequencies, 300, *nConfigs, rng)
	// Perturb the forces so that the odd force constants do not vanish.
	n := len(frequencies)
	for m := 0; m < n; m++ {
		for i := 0; i < e.NConfigs; i++ {
			u := e.X[m*e.NConfigs+i]
			e.Y[m*e.NConfigs+i] += 1e-4 * u * u
		}
	}
	if err := e.Validate(); err != nil {
		return nil, errors.Wrap(err, "")
	}

	if err := store.Save(filepath.Join(dir, fnameEnsemble), e, frequencies); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return e, nil
}

type measurement struct {
	op      string
	temp    float64
	workers int
	norm    float64
	seconds float64
}

func measure(e *anharm.Ensemble, g *symm.Group) ([]measurement, error) {
	n := e.NModes
	rng := rand.New(rand.NewPCG(5, 7))
	v := make([]float64, n)
	m := make([]float64, n*n)
	psi := make([]float64, kernel.PsiSize(n))
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	for a := 0; a < n; a++ {
		for b := a; b < n; b++ {
			x := rng.NormFloat64()
			m[a*n+b] = x
			m[b*n+a] = x
		}
	}
	for i := range psi {
		psi[i] = rng.NormFloat64()
	}
	startA, endA := kernel.StartA(n), kernel.EndA(n)

	ops := []struct {
		name string
		size int
		f    func(temp float64, out []float64, opt kernel.Options)
	}{
		{name: "d3_vector", size: n * n, f: func(temp float64, out []float64, opt kernel.Options) {
			kernel.ApplyD3ToVector(e, frequencies, temp, v, out, g, opt)
		}},
		{name: "d3_dyn", size: n, f: func(temp float64, out []float64, opt kernel.Options) {
			kernel.ApplyD3ToDyn(e, frequencies, temp, m, out, g, opt)
		}},
		{name: "d4_dyn", size: n * n, f: func(temp float64, out []float64, opt kernel.Options) {
			kernel.ApplyD4ToDyn(e, frequencies, temp, m, out, g, opt)
		}},
		{name: "d3_ft", size: kernel.PsiSize(n), f: func(temp float64, out []float64, opt kernel.Options) {
			kernel.D3FT(e, frequencies, temp, startA, endA, psi, out, g, opt)
		}},
		{name: "d4_ft", size: kernel.PsiSize(n), f: func(temp float64, out []float64, opt kernel.Options) {
			kernel.D4FT(e, frequencies, temp, startA, endA, psi, out, g, opt)
		}},
	}

	ms := make([]measurement, 0)
	for _, temp := range []float64{0, 100, 300} {
		for _, workers := range []int{1, 2, 4} {
			for _, op := range ops {
				out := make([]float64, op.size)
				start := time.Now()
				op.f(temp, out, kernel.NewOptions().Workers(workers))
				ms = append(ms, measurement{
					op:      op.name,
					temp:    temp,
					workers: workers,
					norm:    floats.Norm(out, 2),
					seconds: time.Since(start).Seconds(),
				})
				log.Printf("%s T=%.0f workers=%d", op.name, temp, workers)
			}
		}
	}
	return ms, nil
}

// checkDist partitions the ensemble over two group members and verifies that
// the distributed kernel agrees with the shared-memory one.
func checkDist(e *anharm.Ensemble, g *symm.Group) error {
	n := e.NModes
	const temp = 300.0
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	ref := make([]float64, n*n)
	kernel.ApplyD3ToVector(e, frequencies, temp, v, ref, g)

	const size = 2
	members := comm.NewLocal(size)
	half := e.NConfigs / 2
	bounds := []int{0, half, e.NConfigs}
	outs := make([][]float64, size)
	eg := &errgroup.Group{}
	for k := 0; k < size; k++ {
		k := k
		local := e.Slice(bounds[k], bounds[k+1])
		outs[k] = make([]float64, n*n)
		eg.Go(func() error {
			d := kernel.Dist{Comm: members[k]}
			return d.ApplyD3ToVector(local, frequencies, temp, v, outs[k], g)
		})
	}
	if err := eg.Wait(); err != nil {
		return errors.Wrap(err, "")
	}
	for k := 0; k < size; k++ {
		for i := range ref {
			if math.Abs(outs[k][i]-ref[i]) > 1e-9*math.Max(1, math.Abs(ref[i])) {
				return errors.Errorf("rank %d: %v, expected %v", k, outs[k][i], ref[i])
			}
		}
	}
	return nil
}

func writeNorms(dir string, ms []measurement) error {
	f, err := os.Create(filepath.Join(dir, fnameNorms))
	if err != nil {
		return errors.Wrap(err, "")
	}
	w := csv.NewWriter(f)

	if err1 := w.Write([]string{"op", "temp", "workers", "norm", "seconds"}); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	for _, m := range ms {
		row := []string{
			m.op,
			strconv.FormatFloat(m.temp, 'f', -1, 64),
			strconv.Itoa(m.workers),
			strconv.FormatFloat(m.norm, 'g', -1, 64),
			strconv.FormatFloat(m.seconds, 'g', -1, 64),
		}
		if err1 := w.Write(row); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
			break
		}
	}

	w.Flush()
	if err1 := w.Error(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	if err1 := f.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	donePath := filepath.Join(*runDir, fnameDone)
	if _, err := os.Stat(donePath); err == nil {
		log.Printf("%s exists, skipping", donePath)
		return nil
	}
	if err := os.MkdirAll(*runDir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}

	e, err := sample(*runDir)
	if err != nil {
		return errors.Wrap(err, "")
	}
	g := symm.Identity(e.NModes)
	g.Deg = symm.Subspaces(frequencies)

	ms, err := measure(e, g)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := writeNorms(*runDir, ms); err != nil {
		return errors.Wrap(err, "")
	}

	if err := checkDist(e, g); err != nil {
		return errors.Wrap(err, "")
	}
	log.Printf("distributed kernels agree")

	if err := os.WriteFile(donePath, nil, 0644); err != nil {
		return errors.Wrap(err, "")
	}
	fmt.Printf("wrote %s\n", filepath.Join(*runDir, fnameNorms))
	return nil
}
