// Package anharm estimates the action of third and fourth order anharmonic
// force constant tensors from stochastic ensembles of vibrational normal modes.
// The tensors are never materialized; subpackage kernel computes their products
// with vectors and dynamical matrices directly from ensemble statistics, for
// consumption by a Lanczos driver.
//
// References:
//   - The stochastic self-consistent harmonic approximation, Monacelli, Bianco, Cherubini, Calandra, Errea, Mauri, J. Phys.: Condens. Matter 33 363001
//   - Time-dependent self-consistent harmonic approximation, Monacelli, Mauri, Phys. Rev. B 103, 104305
package anharm

const (
	// RyToK converts an energy in Rydberg to a temperature in Kelvin.
	RyToK = 157887.32400374097

	// KB is the Boltzmann constant in eV/K.
	KB = 8.617330337217213e-05

	// Epsilon is the threshold in Ry below which two mode frequencies are
	// treated as degenerate.
	Epsilon = 1e-6
)
