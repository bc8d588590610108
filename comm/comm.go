// Package comm abstracts the collective-communication layer used by the
// distributed kernels. Each participant owns a disjoint slice of the
// configuration ensemble and contributes its partial sums through a blocking
// all-reduce; every participant leaves the call with the global sum.
package comm

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Group is a process group performing synchronous collective reductions.
// AllReduceSum overwrites x with the element-wise sum of the x slices passed
// by every member of the group. It blocks until all members have joined the
// round. A failed collective returns an error on every member and leaves x
// unspecified; callers should abort the iteration.
type Group interface {
	Rank() int
	Size() int
	AllReduceSum(x []float64) error
}

// round is a single in-flight collective.
type round struct {
	sum  []float64
	err  error
	left int
	done chan struct{}
}

type hub struct {
	size int

	mu  sync.Mutex
	cur *round
}

// Local is an in-process Group member backed by shared memory. All members
// returned by NewLocal belong to the same group and may be driven from
// separate goroutines.
type Local struct {
	rank int
	h    *hub
}

// NewLocal creates an in-process group of the given size.
func NewLocal(size int) []*Local {
	if size < 1 {
		panic(fmt.Sprintf("%d", size))
	}
	h := &hub{size: size}
	members := make([]*Local, size)
	for i := range members {
		members[i] = &Local{rank: i, h: h}
	}
	return members
}

func (g *Local) Rank() int { return g.rank }
func (g *Local) Size() int { return g.h.size }

func (g *Local) AllReduceSum(x []float64) error {
	h := g.h
	h.mu.Lock()
	if h.cur == nil {
		h.cur = &round{sum: make([]float64, len(x)), left: h.size, done: make(chan struct{})}
	}
	r := h.cur
	switch {
	case len(x) != len(r.sum):
		if r.err == nil {
			r.err = errors.Errorf("rank %d sent %d values, round started with %d", g.rank, len(x), len(r.sum))
		}
	default:
		floats.Add(r.sum, x)
	}
	r.left--
	if r.left == 0 {
		h.cur = nil
		close(r.done)
	}
	h.mu.Unlock()

	<-r.done
	if r.err != nil {
		return r.err
	}
	copy(x, r.sum)
	return nil
}
