package kernel

// The extended finite-temperature vectors are laid out as [R | A | Y]:
// the N_modes single-mode entries first, then the real (A) channel of every
// unordered mode pair, then the imaginary (Y) channel. Pairs are stored once,
// in upper-triangular packed order.

// NumPairs returns the number of unordered mode pairs, diagonal included.
func NumPairs(nModes int) int {
	return nModes * (nModes + 1) / 2
}

// PairIndex maps an unordered mode pair to its packed position in
// [0, NumPairs). The mapping is a stable bijection and symmetric in its
// first two arguments.
func PairIndex(modeA, modeB, nModes int) int {
	a, b := modeA, modeB
	if a > b {
		a, b = b, a
	}
	return a*nModes - a*(a+1)/2 + b
}

// StartA returns the index where the A channel begins in the flat vector.
func StartA(nModes int) int {
	return nModes
}

// EndA returns the index one past the A channel in the flat vector.
func EndA(nModes int) int {
	return nModes + NumPairs(nModes)
}

// PsiSize returns the total length of the extended vector.
func PsiSize(nModes int) int {
	return EndA(nModes) + NumPairs(nModes)
}

// IndexA returns the flat position of the A-channel entry of a mode pair.
func IndexA(modeA, modeB, nModes int) int {
	return StartA(nModes) + PairIndex(modeA, modeB, nModes)
}

// IndexY returns the flat position of the Y-channel entry of a mode pair.
// The A and Y ranges are disjoint by construction.
func IndexY(modeA, modeB, nModes int) int {
	return EndA(nModes) + PairIndex(modeA, modeB, nModes)
}
