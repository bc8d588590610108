package kernel

import (
	"github.com/pkg/errors"

	"anharm"
	"anharm/comm"
	"anharm/symm"
)

// Dist runs the kernels on a configuration-partitioned ensemble. Every group
// member holds its own slice of the ensemble (see Ensemble.Slice) and the
// full copies of all other inputs. Each call computes the local partial sums,
// all-reduces them together with the effective sample count, and then runs
// the deterministic symmetrization identically on every member, so all
// members return the same global result. Collective failures abort the call
// with an error.
type Dist struct {
	Comm comm.Group
}

// ApplyD3ToVector is the distributed ApplyD3ToVector.
func (d Dist) ApplyD3ToVector(local *anharm.Ensemble, w []float64, temp float64, input, outDyn []float64, g *symm.Group, options ...Options) error {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	checkModes(local, w, g)
	checkLen(len(input), local.NModes)
	checkLen(len(outDyn), local.NModes*local.NModes)

	neff, err := d.globalWeight(local)
	if err != nil {
		return err
	}
	applyD3ToVectorRaw(local, w, temp, input, outDyn, neff, opt)
	if err := d.Comm.AllReduceSum(outDyn); err != nil {
		return errors.Wrap(err, "")
	}
	g.SymmetrizeDyn(outDyn)
	return nil
}

// ApplyD3ToDyn is the distributed ApplyD3ToDyn.
func (d Dist) ApplyD3ToDyn(local *anharm.Ensemble, w []float64, temp float64, inputDyn, output []float64, g *symm.Group, options ...Options) error {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	checkModes(local, w, g)
	checkLen(len(inputDyn), local.NModes*local.NModes)
	checkLen(len(output), local.NModes)

	neff, err := d.globalWeight(local)
	if err != nil {
		return err
	}
	applyD3ToDynRaw(local, w, temp, inputDyn, output, neff, opt)
	if err := d.Comm.AllReduceSum(output); err != nil {
		return errors.Wrap(err, "")
	}
	g.SymmetrizeVector(output)
	return nil
}

// ApplyD4ToDyn is the distributed ApplyD4ToDyn.
func (d Dist) ApplyD4ToDyn(local *anharm.Ensemble, w []float64, temp float64, inputDyn, outDyn []float64, g *symm.Group, options ...Options) error {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	checkModes(local, w, g)
	checkLen(len(inputDyn), local.NModes*local.NModes)
	checkLen(len(outDyn), local.NModes*local.NModes)

	neff, err := d.globalWeight(local)
	if err != nil {
		return err
	}
	applyD4ToDynRaw(local, w, temp, inputDyn, outDyn, neff, opt)
	if err := d.Comm.AllReduceSum(outDyn); err != nil {
		return errors.Wrap(err, "")
	}
	g.SymmetrizeDyn(outDyn)
	return nil
}

// D3FT is the distributed D3FT. The coefficient weighting and pair
// scattering are linear, so they commute with the reduction: each member
// scatters its local partials and a single all-reduce of the extended vector
// precedes symmetrization.
func (d Dist) D3FT(local *anharm.Ensemble, w []float64, temp float64, startA, endA int, input, output []float64, g *symm.Group, options ...Options) error {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	checkModes(local, w, g)
	checkPsi(local.NModes, startA, endA, len(input), len(output))

	neff, err := d.globalWeight(local)
	if err != nil {
		return err
	}
	d3FTRaw(local, w, temp, startA, endA, input, output, neff, opt)
	if err := d.Comm.AllReduceSum(output); err != nil {
		return errors.Wrap(err, "")
	}
	symmetrizePsi(g, startA, endA, output)
	return nil
}

// D4FT is the distributed D4FT.
func (d Dist) D4FT(local *anharm.Ensemble, w []float64, temp float64, startA, endA int, input, output []float64, g *symm.Group, options ...Options) error {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	checkModes(local, w, g)
	checkPsi(local.NModes, startA, endA, len(input), len(output))

	neff, err := d.globalWeight(local)
	if err != nil {
		return err
	}
	d4FTRaw(local, w, temp, startA, endA, input, output, neff, opt)
	if err := d.Comm.AllReduceSum(output); err != nil {
		return errors.Wrap(err, "")
	}
	symmetrizePsi(g, startA, endA, output)
	return nil
}

func (d Dist) globalWeight(local *anharm.Ensemble) (float64, error) {
	sum := []float64{local.Weight()}
	if err := d.Comm.AllReduceSum(sum); err != nil {
		return 0, errors.Wrap(err, "")
	}
	return sum[0], nil
}
