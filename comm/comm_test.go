package comm

import (
	"fmt"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestAllReduceSum(t *testing.T) {
	t.Parallel()
	tests := []struct {
		size int
		n    int
	}{
		{size: 1, n: 3},
		{size: 2, n: 4},
		{size: 5, n: 7},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d_%d", test.size, test.n), func(t *testing.T) {
			t.Parallel()
			members := NewLocal(test.size)
			results := make([][]float64, test.size)
			g := &errgroup.Group{}
			for k, m := range members {
				k, m := k, m
				g.Go(func() error {
					x := make([]float64, test.n)
					for i := range x {
						x[i] = float64(m.Rank()+1) * float64(i)
					}
					if err := m.AllReduceSum(x); err != nil {
						return err
					}
					results[k] = x
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				t.Fatalf("%+v", err)
			}

			// sum over ranks of (rank+1)*i = i*size*(size+1)/2.
			factor := float64(test.size*(test.size+1)) / 2
			for k, x := range results {
				for i := range x {
					want := factor * float64(i)
					if x[i] != want {
						t.Fatalf("rank %d: %v, expected %v at %d", k, x, want, i)
					}
				}
			}
		})
	}
}

func TestAllReduceSumRounds(t *testing.T) {
	t.Parallel()
	// Back-to-back rounds from the same members must not interfere.
	members := NewLocal(3)
	g := &errgroup.Group{}
	for _, m := range members {
		m := m
		g.Go(func() error {
			for round := 0; round < 10; round++ {
				x := []float64{1, float64(round)}
				if err := m.AllReduceSum(x); err != nil {
					return err
				}
				if x[0] != 3 || x[1] != float64(3*round) {
					return fmt.Errorf("round %d: %v", round, x)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("%+v", err)
	}
}

func TestAllReduceSumMismatch(t *testing.T) {
	t.Parallel()
	members := NewLocal(2)
	errs := make([]error, 2)
	g := &errgroup.Group{}
	for k, m := range members {
		k, m := k, m
		g.Go(func() error {
			x := make([]float64, 3+k)
			errs[k] = m.AllReduceSum(x)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("%+v", err)
	}
	for k, err := range errs {
		if err == nil {
			t.Fatalf("rank %d: expected error", k)
		}
	}
}
